package bank

import "github.com/shopspring/decimal"

type CreateDepositRequest struct {
	Coins      decimal.Decimal `json:"coins" validate:"amount"`
	BonusCoins decimal.Decimal `json:"bonus_coins" validate:"amount"`
}

// DepositResponse adds the current quote to a deposit.
type DepositResponse struct {
	Deposit
	Quote *Quote `json:"quote,omitempty"`
}
