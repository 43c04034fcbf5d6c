package bank

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the deposit lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusMatured   Status = "matured"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Deposit is a time-locked placement of coins. Rates are snapshots taken at creation.
type Deposit struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	UserID              uuid.UUID       `db:"user_id" json:"user_id"`
	CoinsDeposited      decimal.Decimal `db:"coins_deposited" json:"coins_deposited"`
	BonusCoinsDeposited decimal.Decimal `db:"bonus_coins_deposited" json:"bonus_coins_deposited"`
	InterestRate        decimal.Decimal `db:"interest_rate" json:"interest_rate"`
	PenaltyRate         decimal.Decimal `db:"penalty_rate" json:"penalty_rate"`
	DurationDays        int             `db:"duration_days" json:"duration_days"`
	DepositDate         time.Time       `db:"deposit_date" json:"deposit_date"`
	MaturityDate        time.Time       `db:"maturity_date" json:"maturity_date"`
	Status              Status          `db:"status" json:"status"`
	Locked              bool            `db:"locked" json:"locked"`
	InterestEarned      decimal.Decimal `db:"interest_earned" json:"interest_earned"`
	PenaltyFee          decimal.Decimal `db:"penalty_fee" json:"penalty_fee"`
	Payout              decimal.Decimal `db:"payout" json:"payout"`
	WithdrawnAt         *time.Time      `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// Total returns the deposited principal.
func (d *Deposit) Total() decimal.Decimal {
	return d.CoinsDeposited.Add(d.BonusCoinsDeposited)
}

// TxType tags a deposit sub-ledger entry.
type TxType string

const (
	TxDeposit         TxType = "deposit"
	TxPrincipalReturn TxType = "principal_return"
	TxPenalty         TxType = "penalty"
	TxInterest        TxType = "interest"
)

// Transaction is one entry of the deposit sub-ledger. Amounts are always non-negative;
// the type gives the direction.
type Transaction struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	DepositID           uuid.UUID       `db:"deposit_id" json:"deposit_id"`
	UserID              uuid.UUID       `db:"user_id" json:"user_id"`
	Type                TxType          `db:"type" json:"type"`
	Coins               decimal.Decimal `db:"coins" json:"coins"`
	BonusCoins          decimal.Decimal `db:"bonus_coins" json:"bonus_coins"`
	LedgerTransactionID *uuid.UUID      `db:"ledger_transaction_id" json:"ledger_transaction_id,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
}

// Terms are the deposit parameters in force when a deposit is created.
type Terms struct {
	InterestRate decimal.Decimal
	PenaltyRate  decimal.Decimal
	DurationDays int
	MinDeposit   decimal.Decimal
	MaxDeposit   decimal.Decimal
}

// Withdrawal is the result of closing a deposit.
type Withdrawal struct {
	Deposit    Deposit         `json:"deposit"`
	Coins      decimal.Decimal `json:"coins"`
	BonusCoins decimal.Decimal `json:"bonus_coins"`
	Payout     decimal.Decimal `json:"payout"`
	Penalty    decimal.Decimal `json:"penalty"`
	Interest   decimal.Decimal `json:"interest"`
}

// Quote shows what each withdrawal path would pay right now.
type Quote struct {
	DepositID       uuid.UUID       `json:"deposit_id"`
	Status          Status          `json:"status"`
	Locked          bool            `json:"locked"`
	CanWithdrawNow  bool            `json:"can_withdraw_now"`
	Matured         bool            `json:"matured"`
	EarlyPenalty    decimal.Decimal `json:"early_penalty"`
	EarlyPayout     decimal.Decimal `json:"early_payout"`
	MaturedInterest decimal.Decimal `json:"matured_interest"`
	MaturedPayout   decimal.Decimal `json:"matured_payout"`
	MaturityDate    time.Time       `json:"maturity_date"`
}
