package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/quizarena/economy-api/internal/domain/voucher"
	"github.com/quizarena/economy-api/internal/pkg/jwt"
)

type voucherOptions struct {
	*RootOptions
	Code           string
	Description    string
	Coins          string
	BonusCoins     string
	Powerups       []string
	MaxRedemptions int
	MaxPerUser     int
	ValidFor       time.Duration
	Admin          string
}

func newVoucherCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voucher",
		Short: "Manage vouchers",
	}

	opts := &voucherOptions{RootOptions: rootOpts}
	create := &cobra.Command{
		Use:     "create",
		Short:   "Create a voucher",
		Example: "  economyctl voucher create --coins 50 --powerup hint=2 --max-redemptions 1000 --valid-for 720h",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.params()
			if err != nil {
				return err
			}
			a, err := opts.App(cmd.Context())
			if err != nil {
				return err
			}
			v, err := a.Vouchers.Create(cmd.Context(), p)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), opts.Format, v, func(w io.Writer) error {
				return writef(w, "%s %s", v.ID, v.Code)
			})
		},
	}
	create.Flags().StringVar(&opts.Code, "code", "", "voucher code, generated when empty")
	create.Flags().StringVar(&opts.Description, "description", "", "")
	create.Flags().StringVar(&opts.Coins, "coins", "0", "coins granted")
	create.Flags().StringVar(&opts.BonusCoins, "bonus", "0", "bonus coins granted")
	create.Flags().StringArrayVar(&opts.Powerups, "powerup", nil, "power-up grant as id=qty, repeatable")
	create.Flags().IntVar(&opts.MaxRedemptions, "max-redemptions", 1, "")
	create.Flags().IntVar(&opts.MaxPerUser, "max-per-user", 1, "")
	create.Flags().DurationVar(&opts.ValidFor, "valid-for", 0, "expiry from now, never when zero")
	create.Flags().StringVar(&opts.Admin, "admin", "", "admin user id recorded as creator")

	cmd.AddCommand(create)
	return cmd
}

func (o *voucherOptions) params() (voucher.CreateParams, error) {
	p := voucher.CreateParams{
		Code:           o.Code,
		Description:    o.Description,
		MaxRedemptions: o.MaxRedemptions,
		MaxPerUser:     o.MaxPerUser,
	}

	var err error
	if p.RewardCoins, err = decimal.NewFromString(o.Coins); err != nil {
		return p, fmt.Errorf("--coins: %w", err)
	}
	if p.RewardBonusCoins, err = decimal.NewFromString(o.BonusCoins); err != nil {
		return p, fmt.Errorf("--bonus: %w", err)
	}
	for _, g := range o.Powerups {
		id, qty, ok := strings.Cut(g, "=")
		n, err := strconv.Atoi(qty)
		if !ok || err != nil {
			return p, fmt.Errorf("--powerup %q: want id=qty", g)
		}
		p.Powerups = append(p.Powerups, voucher.PowerupGrant{ID: id, Qty: n})
	}
	if o.ValidFor > 0 {
		until := time.Now().UTC().Add(o.ValidFor)
		p.ValidUntil = &until
	}
	if o.Admin != "" {
		if p.CreatedBy, err = uuid.Parse(o.Admin); err != nil {
			return p, fmt.Errorf("--admin: %w", err)
		}
	}
	return p, nil
}

func newUnblockCommand(opts *RootOptions) *cobra.Command {
	var admin string
	cmd := &cobra.Command{
		Use:   "unblock USER_ID SOURCE_ADDRESS",
		Short: "Clear a rate limit block, including permanent ones",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("user id: %w", err)
			}
			adminID := uuid.Nil
			if admin != "" {
				if adminID, err = uuid.Parse(admin); err != nil {
					return fmt.Errorf("--admin: %w", err)
				}
			}
			a, err := opts.App(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Fraud.ClearBlock(cmd.Context(), adminID, userID, args[1]); err != nil {
				return err
			}
			return writef(cmd.OutOrStdout(), "cleared %s %s", userID, args[1])
		},
	}
	cmd.Flags().StringVar(&admin, "admin", "", "admin user id written to the audit log")
	return cmd
}

func newTokenCommand(opts *RootOptions) *cobra.Command {
	var (
		user string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token signed with JWT_SECRET",
		Long:  "Issue an access token for service-to-service calls or local testing. No database access is needed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch role {
			case jwt.RolePlayer, jwt.RoleAdmin, jwt.RoleService:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			userID := uuid.New()
			if user != "" {
				var err error
				if userID, err = uuid.Parse(user); err != nil {
					return fmt.Errorf("--user: %w", err)
				}
			}
			cfg := opts.Config()
			if ttl == 0 {
				ttl = cfg.JWTAccessTTL
			}
			tok, err := jwt.NewService(cfg.JWTSecret, ttl).GenerateAccessToken(userID, role)
			if err != nil {
				return err
			}
			return writef(cmd.OutOrStdout(), "%s", tok)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id, random when empty")
	cmd.Flags().StringVar(&role, "role", jwt.RoleService, "player, admin or service")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, JWT_ACCESS_TTL when zero")
	return cmd
}
