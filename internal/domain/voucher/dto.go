package voucher

import (
	"time"

	"github.com/shopspring/decimal"
)

// RedeemInput is the player's redeem request body.
type RedeemInput struct {
	Code string `json:"code" validate:"required,max=64"`
}

// CreateInput is the admin create request body.
type CreateInput struct {
	Code             string          `json:"code" validate:"omitempty,max=21"`
	Description      string          `json:"description" validate:"max=500"`
	RewardCoins      decimal.Decimal `json:"reward_coins" validate:"amount"`
	RewardBonusCoins decimal.Decimal `json:"reward_bonus_coins" validate:"amount"`
	Powerups         Powerups        `json:"powerups" validate:"max=20"`
	MaxRedemptions   int             `json:"max_redemptions" validate:"required,gte=1"`
	MaxPerUser       int             `json:"max_per_user" validate:"gte=0"`
	ValidFrom        *time.Time      `json:"valid_from"`
	ValidUntil       *time.Time      `json:"valid_until"`
}

type SetActiveInput struct {
	Active *bool `json:"active" validate:"required"`
}

// RedeemResponse is returned on a successful redemption.
type RedeemResponse struct {
	Coins      decimal.Decimal `json:"coins"`
	BonusCoins decimal.Decimal `json:"bonus_coins"`
	Powerups   Powerups        `json:"powerups"`
}
