package ledger

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quizarena/economy-api/internal/pkg/database"
)

// TxType tags every ledger transaction.
type TxType string

const (
	TxTypeQuizReward          TxType = "quiz_reward"
	TxTypePurchase            TxType = "purchase"
	TxTypeVoucherReward       TxType = "voucher_reward"
	TxTypeBankDeposit         TxType = "bank_deposit"
	TxTypeBankPrincipalReturn TxType = "bank_principal_return"
	TxTypeBankPenalty         TxType = "bank_penalty"
	TxTypeBankInterest        TxType = "bank_interest"
	TxTypeReferralCommission  TxType = "referral_commission"
	TxTypeReferralBonus       TxType = "referral_bonus"
	TxTypeAdminAdjustment     TxType = "admin_adjustment"
)

var validTypes = map[TxType]struct{}{
	TxTypeQuizReward:          {},
	TxTypePurchase:            {},
	TxTypeVoucherReward:       {},
	TxTypeBankDeposit:         {},
	TxTypeBankPrincipalReturn: {},
	TxTypeBankPenalty:         {},
	TxTypeBankInterest:        {},
	TxTypeReferralCommission:  {},
	TxTypeReferralBonus:       {},
	TxTypeAdminAdjustment:     {},
}

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	_, ok := validTypes[t]
	return ok
}

// EmitsCredited reports whether a committed credit of this type is published to listeners.
// Only quiz rewards feed the referral program; commissions never cascade.
func (t TxType) EmitsCredited() bool {
	return t == TxTypeQuizReward
}

// Balance is the current-state cache of a user's ledger.
type Balance struct {
	UserID     uuid.UUID       `db:"user_id" json:"user_id"`
	Coins      decimal.Decimal `db:"coins" json:"coins"`
	BonusCoins decimal.Decimal `db:"bonus_coins" json:"bonus_coins"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// Total returns coins plus bonus coins.
func (b Balance) Total() decimal.Decimal {
	return b.Coins.Add(b.BonusCoins)
}

// Metadata is free-form context stored with a transaction.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return database.JSONValue(map[string]any(m))
}

func (m *Metadata) Scan(src any) error {
	return database.ScanJSON(src, m)
}

// Transaction is an immutable ledger row. After always equals Before plus Delta.
type Transaction struct {
	Seq              int64           `db:"seq" json:"seq"`
	ID               uuid.UUID       `db:"id" json:"id"`
	UserID           uuid.UUID       `db:"user_id" json:"user_id"`
	Type             TxType          `db:"type" json:"type"`
	CoinsDelta       decimal.Decimal `db:"coins_delta" json:"coins_delta"`
	BonusCoinsDelta  decimal.Decimal `db:"bonus_coins_delta" json:"bonus_coins_delta"`
	CoinsBefore      decimal.Decimal `db:"coins_before" json:"coins_before"`
	BonusCoinsBefore decimal.Decimal `db:"bonus_coins_before" json:"bonus_coins_before"`
	CoinsAfter       decimal.Decimal `db:"coins_after" json:"coins_after"`
	BonusCoinsAfter  decimal.Decimal `db:"bonus_coins_after" json:"bonus_coins_after"`
	ReferenceType    *string         `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID      *string         `db:"reference_id" json:"reference_id,omitempty"`
	Description      string          `db:"description" json:"description"`
	Metadata         Metadata        `db:"metadata" json:"metadata,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// Amount returns coins delta plus bonus coins delta.
func (t Transaction) Amount() decimal.Decimal {
	return t.CoinsDelta.Add(t.BonusCoinsDelta)
}

// Entry describes one balance mutation. Coins and BonusCoins are non-negative;
// Credit adds them and Debit subtracts them.
type Entry struct {
	UserID        uuid.UUID
	Coins         decimal.Decimal
	BonusCoins    decimal.Decimal
	Type          TxType
	ReferenceType string
	ReferenceID   string
	Description   string
	Metadata      Metadata
}

// SearchFilters provides admin-facing transaction filtering.
type SearchFilters struct {
	UserID        *uuid.UUID
	Type          *TxType
	ReferenceType *string
	ReferenceID   *string
	DateFrom      *time.Time
	DateTo        *time.Time
	Limit         int
	Offset        int
}

// CreditedEvent is published after a credit of an observed type commits.
type CreditedEvent struct {
	Transaction Transaction
}
