package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Service builds typed notifications. Delivery is best-effort: failures are logged and
// never propagate into the economy operation that triggered them.
type Service struct {
	queue Queue
	now   func() time.Time
}

func NewService(queue Queue) *Service {
	if queue == nil {
		queue = LogQueue{}
	}
	return &Service{queue: queue, now: time.Now}
}

func (s *Service) send(ctx context.Context, n *Notification) {
	n.ID = uuid.New()
	n.CreatedAt = s.now().UTC()
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), n); err != nil {
		log.Warn().Err(err).Str("notification_type", string(n.Type)).Msg("failed to enqueue notification")
	}
}

func forUser(id uuid.UUID) *uuid.UUID { return &id }

// NotifyFraudAlert tells admins about a suspicious run of failed voucher attempts.
func (s *Service) NotifyFraudAlert(ctx context.Context, userID uuid.UUID, sourceAddress string, attemptsInWindow int, blocked bool) {
	body := fmt.Sprintf("%d failed voucher attempts in the last hour from %s", attemptsInWindow, sourceAddress)
	if blocked {
		body += "; address is now blocked"
	}
	s.send(ctx, &Notification{
		Type:     TypeFraudAlert,
		Audience: AudienceAdmins,
		Title:    "Suspicious voucher activity",
		Body:     body,
		Data: map[string]any{
			"user_id":            userID.String(),
			"source_address":     sourceAddress,
			"attempts_in_window": attemptsInWindow,
			"blocked":            blocked,
		},
	})
}

// NotifyDepositMatured tells the owner a deposit can be withdrawn.
func (s *Service) NotifyDepositMatured(ctx context.Context, userID, depositID uuid.UUID, payout decimal.Decimal) {
	s.send(ctx, &Notification{
		Type:   TypeDepositMatured,
		UserID: forUser(userID),
		Title:  "Your deposit has matured",
		Body:   "You can now withdraw " + payout.StringFixed(2) + " coins",
		Data:   map[string]any{"deposit_id": depositID.String(), "payout": payout.StringFixed(2)},
	})
}

// NotifyVoucherRedeemed confirms a redemption.
func (s *Service) NotifyVoucherRedeemed(ctx context.Context, userID, voucherID uuid.UUID, coins, bonusCoins decimal.Decimal) {
	s.send(ctx, &Notification{
		Type:   TypeVoucherRedeemed,
		UserID: forUser(userID),
		Title:  "Voucher redeemed",
		Body:   fmt.Sprintf("You received %s coins and %s bonus coins", coins.StringFixed(2), bonusCoins.StringFixed(2)),
		Data: map[string]any{
			"voucher_id":  voucherID.String(),
			"coins":       coins.StringFixed(2),
			"bonus_coins": bonusCoins.StringFixed(2),
		},
	})
}

// NotifyReferralBonus tells one party of a referral that the registration bonus was paid.
func (s *Service) NotifyReferralBonus(ctx context.Context, userID, otherUserID uuid.UUID, amount decimal.Decimal) {
	s.send(ctx, &Notification{
		Type:   TypeReferralBonus,
		UserID: forUser(userID),
		Title:  "Referral bonus",
		Body:   "You received " + amount.StringFixed(2) + " bonus coins",
		Data:   map[string]any{"other_user_id": otherUserID.String(), "amount": amount.StringFixed(2)},
	})
}
