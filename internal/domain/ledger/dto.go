package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuizRewardRequest is sent by the quiz service when a session pays out.
type QuizRewardRequest struct {
	UserID     uuid.UUID       `json:"user_id" validate:"required"`
	SessionID  string          `json:"session_id" validate:"required,max=64"`
	Coins      decimal.Decimal `json:"coins" validate:"amount"`
	BonusCoins decimal.Decimal `json:"bonus_coins" validate:"amount"`
}

// PurchaseRequest is sent by the shop when a player spends coins.
type PurchaseRequest struct {
	UserID     uuid.UUID       `json:"user_id" validate:"required"`
	OrderID    string          `json:"order_id" validate:"required,max=64"`
	Coins      decimal.Decimal `json:"coins" validate:"amount"`
	BonusCoins decimal.Decimal `json:"bonus_coins" validate:"amount"`
}

// AdjustRequest is an admin balance correction. Deltas are signed.
type AdjustRequest struct {
	UserID          uuid.UUID       `json:"user_id" validate:"required"`
	CoinsDelta      decimal.Decimal `json:"coins_delta"`
	BonusCoinsDelta decimal.Decimal `json:"bonus_coins_delta"`
	Reason          string          `json:"reason" validate:"required,max=500"`
}

type BalanceResponse struct {
	Coins      decimal.Decimal `json:"coins"`
	BonusCoins decimal.Decimal `json:"bonus_coins"`
	Total      decimal.Decimal `json:"total"`
}

func NewBalanceResponse(b *Balance) BalanceResponse {
	return BalanceResponse{Coins: b.Coins, BonusCoins: b.BonusCoins, Total: b.Total()}
}
