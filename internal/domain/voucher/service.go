package voucher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quizarena/economy-api/internal/domain/fraud"
	"github.com/quizarena/economy-api/internal/domain/ledger"
	"github.com/quizarena/economy-api/internal/pkg/apperr"
	"github.com/quizarena/economy-api/internal/pkg/database"
	"github.com/quizarena/economy-api/internal/pkg/money"
)

// Ledger is the part of the ledger the engine writes through.
type Ledger interface {
	CreditTx(ctx context.Context, tx *sqlx.Tx, e ledger.Entry) (*ledger.Transaction, error)
}

// Limiter is the rate limiter and fraud detector.
type Limiter interface {
	Check(ctx context.Context, userID uuid.UUID, sourceAddress string) error
	CheckPattern(ctx context.Context, userID uuid.UUID) error
	RecordFailure(ctx context.Context, a fraud.Attempt) (*fraud.Outcome, error)
	ResetTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, sourceAddress string) error
}

// Notifier confirms redemptions to players.
type Notifier interface {
	NotifyVoucherRedeemed(ctx context.Context, userID, voucherID uuid.UUID, coins, bonusCoins decimal.Decimal)
}

type Service struct {
	db       *sqlx.DB
	repo     *Repository
	ledger   Ledger
	limiter  Limiter
	catalog  Catalog
	notifier Notifier
	now      func() time.Time
}

func NewService(db *sqlx.DB, repo *Repository, ledger Ledger, limiter Limiter, catalog Catalog, notifier Notifier) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		ledger:   ledger,
		limiter:  limiter,
		catalog:  catalog,
		notifier: notifier,
		now:      time.Now,
	}
}

// Redeem validates a code and grants its rewards in one transaction. Refusals are
// returned as *RedeemError; every refusal except rate limiting is recorded by the
// limiter before returning.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (*Rewards, error) {
	if req.UserID == uuid.Nil {
		return nil, apperr.New(apperr.KindValidation, "user id is required")
	}

	if err := s.limiter.Check(ctx, req.UserID, req.SourceAddress); err != nil {
		var rl *apperr.RateLimitedError
		if errors.As(err, &rl) {
			return nil, newRedeemError(ReasonRateLimitExceeded, rl)
		}
		return nil, err
	}

	if err := s.limiter.CheckPattern(ctx, req.UserID); err != nil {
		if errors.Is(err, fraud.ErrSuspicious) {
			return nil, s.refuse(ctx, req, ReasonSuspiciousPattern)
		}
		return nil, err
	}

	code := NormalizeCode(req.Code)
	if !ValidCode(code) {
		return nil, s.refuse(ctx, req, ReasonInvalidCode)
	}

	v, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.refuse(ctx, req, ReasonInvalidCode)
		}
		return nil, apperr.Internal("load voucher", err)
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	used, err := s.repo.CountUserRedemptions(ctx2, s.db, v.ID, req.UserID)
	cancel()
	if err != nil {
		return nil, apperr.Internal("count user redemptions", err)
	}

	now := s.now().UTC()
	if reason := eligibility(v, used, now); reason != "" {
		return nil, s.refuse(ctx, req, reason)
	}

	rewards, reason, err := s.apply(ctx, req, v.ID, now)
	if err != nil {
		log.Error().Err(err).Str("user_id", req.UserID.String()).Str("voucher_id", v.ID.String()).Msg("voucher redemption failed")
		return nil, apperr.Internal("redeem voucher", err)
	}
	if reason != "" {
		return nil, s.refuse(ctx, req, reason)
	}

	log.Info().
		Str("user_id", req.UserID.String()).
		Str("voucher_id", v.ID.String()).
		Str("coins", rewards.Coins.String()).
		Str("bonus_coins", rewards.BonusCoins.String()).
		Int("powerups", len(rewards.Powerups)).
		Msg("voucher redeemed")

	if s.notifier != nil {
		s.notifier.NotifyVoucherRedeemed(ctx, req.UserID, v.ID, rewards.Coins, rewards.BonusCoins)
	}
	return rewards, nil
}

// errRefused aborts the redemption transaction with a reason.
type errRefused struct{ reason Reason }

func (e errRefused) Error() string { return string(e.reason) }

// apply runs the write side of a redemption. A reason is returned when a guard that
// passed on the read side no longer holds under the voucher lock.
func (s *Service) apply(ctx context.Context, req RedeemRequest, voucherID uuid.UUID, now time.Time) (*Rewards, Reason, error) {
	var rewards *Rewards

	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		v, err := s.repo.lockVoucher(ctx, tx, voucherID)
		if err != nil {
			return fmt.Errorf("lock voucher: %w", err)
		}

		used, err := s.repo.CountUserRedemptions(ctx, tx, v.ID, req.UserID)
		if err != nil {
			return fmt.Errorf("count user redemptions: %w", err)
		}
		if reason := eligibility(v, used, now); reason != "" {
			return errRefused{reason}
		}

		ok, err := s.repo.incrementRedemptions(ctx, tx, v.ID, now)
		if err != nil {
			return fmt.Errorf("increment redemptions: %w", err)
		}
		if !ok {
			return errRefused{ReasonMaxRedemptionsReached}
		}

		rewards = &Rewards{Coins: v.RewardCoins, BonusCoins: v.RewardBonusCoins, Powerups: v.Powerups}
		if rewards.Powerups == nil {
			rewards.Powerups = Powerups{}
		}

		if v.RewardCoins.IsPositive() || v.RewardBonusCoins.IsPositive() {
			t, err := s.ledger.CreditTx(ctx, tx, ledger.Entry{
				UserID:        req.UserID,
				Coins:         v.RewardCoins,
				BonusCoins:    v.RewardBonusCoins,
				Type:          ledger.TxTypeVoucherReward,
				ReferenceType: "voucher",
				ReferenceID:   v.ID.String(),
				Description:   "Voucher " + v.Code,
				Metadata:      ledger.Metadata{"code": v.Code},
			})
			if err != nil {
				return fmt.Errorf("credit rewards: %w", err)
			}
			rewards.TransactionID = &t.ID
		}

		for _, p := range v.Powerups {
			if err := s.repo.grantPowerup(ctx, tx, req.UserID, p.ID, p.Qty, now); err != nil {
				return fmt.Errorf("grant powerup %s: %w", p.ID, err)
			}
		}

		if err := s.repo.insertRedemption(ctx, tx, &Redemption{
			ID:                  uuid.New(),
			VoucherID:           v.ID,
			UserID:              req.UserID,
			RewardsGranted:      *rewards,
			SourceAddress:       req.SourceAddress,
			LedgerTransactionID: rewards.TransactionID,
			CreatedAt:           now,
		}); err != nil {
			return fmt.Errorf("insert redemption: %w", err)
		}

		return s.limiter.ResetTx(ctx, tx, req.UserID, req.SourceAddress)
	})

	var refused errRefused
	if errors.As(err, &refused) {
		return nil, refused.reason, nil
	}
	if err != nil {
		return nil, "", err
	}
	return rewards, "", nil
}

// refuse records the failure and returns the refusal. Recording outlives a cancelled
// request; when it fails the caller gets an internal error instead of the reason.
func (s *Service) refuse(ctx context.Context, req RedeemRequest, reason Reason) error {
	_, err := s.limiter.RecordFailure(context.WithoutCancel(ctx), fraud.Attempt{
		UserID:        req.UserID,
		SourceAddress: req.SourceAddress,
		UserAgent:     req.UserAgent,
		Code:          truncate(req.Code, maxAttemptedCode),
		Reason:        string(reason),
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", req.UserID.String()).Str("reason", string(reason)).Msg("failed to record voucher failure")
		return apperr.Internal("record voucher failure", err)
	}
	return newRedeemError(reason, nil)
}

const maxAttemptedCode = 64

// truncate cuts s to at most n bytes of valid UTF-8 without splitting a rune.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Create validates and stores a new voucher.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Voucher, error) {
	if err := s.validateCreate(ctx, &p); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	v := &Voucher{
		ID:               uuid.New(),
		Description:      p.Description,
		RewardCoins:      p.RewardCoins,
		RewardBonusCoins: p.RewardBonusCoins,
		Powerups:         p.Powerups,
		MaxRedemptions:   p.MaxRedemptions,
		MaxPerUser:       p.MaxPerUser,
		ValidFrom:        now,
		ValidUntil:       p.ValidUntil,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if p.ValidFrom != nil {
		v.ValidFrom = p.ValidFrom.UTC()
	}
	if p.CreatedBy != uuid.Nil {
		v.CreatedBy = &p.CreatedBy
	}
	if v.Powerups == nil {
		v.Powerups = Powerups{}
	}

	// generated codes retry on the rare collision; explicit codes fail fast
	attempts := 1
	if p.Code == "" {
		attempts = 5
	}
	for i := 0; i < attempts; i++ {
		v.Code = p.Code
		if v.Code == "" {
			code, err := GenerateCode()
			if err != nil {
				return nil, apperr.Internal("generate code", err)
			}
			v.Code = code
		}

		err := s.repo.Create(ctx, v)
		if err == nil {
			log.Info().Str("voucher_id", v.ID.String()).Str("code", v.Code).Int("max_redemptions", v.MaxRedemptions).Msg("voucher created")
			return v, nil
		}
		if !errors.Is(err, ErrCodeTaken) {
			return nil, apperr.Internal("create voucher", err)
		}
		if i == attempts-1 {
			return nil, ErrCodeTaken
		}
	}
	return nil, ErrCodeTaken
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidVoucher, msg)
}

func (s *Service) validateCreate(ctx context.Context, p *CreateParams) error {
	if p.Code != "" {
		p.Code = NormalizeCode(p.Code)
		if !ValidCode(p.Code) {
			return invalid("code must match AAAAA-AAA-A-AAAAA-AAA")
		}
	}
	if money.Validate(p.RewardCoins) != nil || money.Validate(p.RewardBonusCoins) != nil {
		return invalid("rewards must be non-negative with at most 2 decimal places")
	}
	if !p.RewardCoins.IsPositive() && !p.RewardBonusCoins.IsPositive() && len(p.Powerups) == 0 {
		return invalid("voucher must grant something")
	}
	if p.MaxRedemptions < 1 {
		return invalid("max_redemptions must be at least 1")
	}
	if p.MaxPerUser == 0 {
		p.MaxPerUser = 1
	}
	if p.MaxPerUser < 1 || p.MaxPerUser > p.MaxRedemptions {
		return invalid("max_per_user must be between 1 and max_redemptions")
	}
	if p.ValidFrom != nil && p.ValidUntil != nil && !p.ValidUntil.After(*p.ValidFrom) {
		return invalid("valid_until must be after valid_from")
	}

	seen := make(map[string]struct{}, len(p.Powerups))
	ids := make([]string, 0, len(p.Powerups))
	for _, g := range p.Powerups {
		if g.ID == "" || g.Qty <= 0 {
			return invalid("powerups need an id and a positive qty")
		}
		if _, dup := seen[g.ID]; dup {
			return invalid("duplicate powerup " + g.ID)
		}
		seen[g.ID] = struct{}{}
		ids = append(ids, g.ID)
	}
	if len(ids) > 0 && s.catalog != nil {
		missing, err := s.catalog.Missing(ctx, ids)
		if err != nil {
			return apperr.Internal("check powerup catalog", err)
		}
		if len(missing) > 0 {
			return invalid(fmt.Sprintf("unknown powerups %v", missing))
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Voucher, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Internal("get voucher", err)
	}
	return v, nil
}

func (s *Service) List(ctx context.Context, f ListFilters) ([]Voucher, error) {
	vs, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, apperr.Internal("list vouchers", err)
	}
	return vs, nil
}

// SetActive enables or disables a voucher.
func (s *Service) SetActive(ctx context.Context, adminID, id uuid.UUID, active bool) error {
	if err := s.repo.SetActive(ctx, id, active, s.now().UTC()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return apperr.Internal("set voucher active", err)
	}
	log.Info().Str("admin_id", adminID.String()).Str("voucher_id", id.String()).Bool("active", active).Msg("voucher status changed")
	return nil
}

func (s *Service) Redemptions(ctx context.Context, voucherID uuid.UUID, limit, offset int) ([]Redemption, error) {
	if _, err := s.Get(ctx, voucherID); err != nil {
		return nil, err
	}
	reds, err := s.repo.Redemptions(ctx, voucherID, limit, offset)
	if err != nil {
		return nil, apperr.Internal("list redemptions", err)
	}
	return reds, nil
}

func (s *Service) Inventory(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	inv, err := s.repo.UserPowerups(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("load powerups", err)
	}
	return inv, nil
}
