package voucher

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quizarena/economy-api/internal/pkg/database"
)

// Reason explains why a redemption was refused.
type Reason string

const (
	ReasonInvalidCode           Reason = "invalid_code"
	ReasonExpired               Reason = "expired"
	ReasonNotYetValid           Reason = "not_yet_valid"
	ReasonMaxRedemptionsReached Reason = "max_redemptions_reached"
	ReasonAlreadyRedeemedByUser Reason = "already_redeemed_by_user"
	ReasonVoucherInactive       Reason = "voucher_inactive"
	ReasonSuspiciousPattern     Reason = "suspicious_pattern"
	ReasonRateLimitExceeded     Reason = "rate_limit_exceeded"
)

// PowerupGrant is a quantity of one catalog powerup.
type PowerupGrant struct {
	ID  string `json:"id"`
	Qty int    `json:"qty"`
}

// Powerups is stored as a JSONB array.
type Powerups []PowerupGrant

func (p Powerups) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return database.JSONValue([]PowerupGrant(p))
}

func (p *Powerups) Scan(src any) error {
	return database.ScanJSON(src, p)
}

// Voucher is a promotional code and its remaining capacity.
type Voucher struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	Code               string          `db:"code" json:"code"`
	Description        string          `db:"description" json:"description"`
	RewardCoins        decimal.Decimal `db:"reward_coins" json:"reward_coins"`
	RewardBonusCoins   decimal.Decimal `db:"reward_bonus_coins" json:"reward_bonus_coins"`
	Powerups           Powerups        `db:"powerups" json:"powerups"`
	MaxRedemptions     int             `db:"max_redemptions" json:"max_redemptions"`
	CurrentRedemptions int             `db:"current_redemptions" json:"current_redemptions"`
	MaxPerUser         int             `db:"max_per_user" json:"max_per_user"`
	ValidFrom          time.Time       `db:"valid_from" json:"valid_from"`
	ValidUntil         *time.Time      `db:"valid_until" json:"valid_until,omitempty"`
	Active             bool            `db:"active" json:"active"`
	CreatedBy          *uuid.UUID      `db:"created_by" json:"created_by,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// Rewards is what one redemption granted.
type Rewards struct {
	Coins         decimal.Decimal `json:"coins"`
	BonusCoins    decimal.Decimal `json:"bonus_coins"`
	Powerups      Powerups        `json:"powerups"`
	TransactionID *uuid.UUID      `json:"transaction_id,omitempty"`
}

func (r Rewards) Value() (driver.Value, error) {
	return database.JSONValue(r)
}

func (r *Rewards) Scan(src any) error {
	return database.ScanJSON(src, r)
}

// Redemption is one entry of the append-only redemption log.
type Redemption struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	VoucherID           uuid.UUID  `db:"voucher_id" json:"voucher_id"`
	UserID              uuid.UUID  `db:"user_id" json:"user_id"`
	RewardsGranted      Rewards    `db:"rewards_granted" json:"rewards_granted"`
	SourceAddress       string     `db:"source_address" json:"source_address"`
	LedgerTransactionID *uuid.UUID `db:"ledger_transaction_id" json:"ledger_transaction_id,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}

// RedeemRequest is a player's redemption attempt.
type RedeemRequest struct {
	UserID        uuid.UUID
	Code          string
	SourceAddress string
	UserAgent     string
}

// CreateParams describes a new voucher. An empty Code is generated.
type CreateParams struct {
	Code             string
	Description      string
	RewardCoins      decimal.Decimal
	RewardBonusCoins decimal.Decimal
	Powerups         Powerups
	MaxRedemptions   int
	MaxPerUser       int
	ValidFrom        *time.Time
	ValidUntil       *time.Time
	CreatedBy        uuid.UUID
}

// ListFilters narrows admin voucher listings.
type ListFilters struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}
