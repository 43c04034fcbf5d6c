package referral

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Link binds a referred user to the referrer. It is written once and never changed.
type Link struct {
	ReferredUserID uuid.UUID       `db:"referred_user_id" json:"referred_user_id"`
	ReferrerUserID uuid.UUID       `db:"referrer_user_id" json:"referrer_user_id"`
	CommissionRate decimal.Decimal `db:"commission_rate" json:"commission_rate"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Earning is one commission paid to a referrer for a quiz reward of the referred user.
type Earning struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	ReferrerID          uuid.UUID       `db:"referrer_id" json:"referrer_id"`
	ReferredID          uuid.UUID       `db:"referred_id" json:"referred_id"`
	SourceTransactionID uuid.UUID       `db:"source_transaction_id" json:"source_transaction_id"`
	CoinsEarned         decimal.Decimal `db:"coins_earned" json:"coins_earned"`
	CommissionEarned    decimal.Decimal `db:"commission_earned" json:"commission_earned"`
	Rate                decimal.Decimal `db:"rate" json:"rate"`
	LedgerTransactionID *uuid.UUID      `db:"ledger_transaction_id" json:"ledger_transaction_id,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
}

// Stats is the per-user referral aggregate. The bonus flag lives on the referred user's row.
type Stats struct {
	UserID                  uuid.UUID       `db:"user_id" json:"user_id"`
	TotalReferrals          int             `db:"total_referrals" json:"total_referrals"`
	TotalCommissionEarned   decimal.Decimal `db:"total_commission_earned" json:"total_commission_earned"`
	RegistrationBonusPaid   bool            `db:"registration_bonus_paid" json:"registration_bonus_paid"`
	RegistrationBonusPaidAt *time.Time      `db:"registration_bonus_paid_at" json:"registration_bonus_paid_at,omitempty"`
	UpdatedAt               time.Time       `db:"updated_at" json:"updated_at"`
}

// Terms are the program parameters. CommissionRate is copied into each link at registration.
type Terms struct {
	CommissionRate decimal.Decimal
	BonusAmount    decimal.Decimal
	QuizThreshold  int
}

// BonusResult reports the outcome of a completed-quiz check.
type BonusResult struct {
	Paid           bool            `json:"paid"`
	CompletedQuiz  int             `json:"completed_quizzes"`
	Threshold      int             `json:"threshold"`
	Amount         decimal.Decimal `json:"amount"`
	ReferrerUserID *uuid.UUID      `json:"referrer_user_id,omitempty"`
}
