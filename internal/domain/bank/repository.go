package bank

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const depositColumns = `id, user_id, coins_deposited, bonus_coins_deposited, interest_rate, penalty_rate, duration_days,
	deposit_date, maturity_date, status, locked, interest_earned, penalty_fee, payout, withdrawn_at, created_at, updated_at`

func (r *Repository) insertDeposit(ctx context.Context, tx *sqlx.Tx, d *Deposit) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO bank_deposits (
			id, user_id, coins_deposited, bonus_coins_deposited, interest_rate, penalty_rate, duration_days,
			deposit_date, maturity_date, status, locked, interest_earned, penalty_fee, payout, created_at, updated_at
		) VALUES (
			:id, :user_id, :coins_deposited, :bonus_coins_deposited, :interest_rate, :penalty_rate, :duration_days,
			:deposit_date, :maturity_date, :status, :locked, :interest_earned, :penalty_fee, :payout, :created_at, :updated_at
		)
	`, d)
	return err
}

func (r *Repository) insertTransaction(ctx context.Context, tx *sqlx.Tx, t *Transaction) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO bank_transactions (id, deposit_id, user_id, type, coins, bonus_coins, ledger_transaction_id, created_at)
		VALUES (:id, :deposit_id, :user_id, :type, :coins, :bonus_coins, :ledger_transaction_id, :created_at)
	`, t)
	return err
}

// lockDeposit locks a deposit owned by userID. Deposits of other users are reported as missing.
func (r *Repository) lockDeposit(ctx context.Context, tx *sqlx.Tx, userID, id uuid.UUID) (*Deposit, error) {
	var d Deposit
	err := tx.GetContext(ctx, &d, `
		SELECT `+depositColumns+` FROM bank_deposits WHERE id = $1 AND user_id = $2 FOR UPDATE
	`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// close records the terminal state of a withdrawn deposit.
func (r *Repository) close(ctx context.Context, tx *sqlx.Tx, d *Deposit) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE bank_deposits
		SET status = $2, penalty_fee = $3, payout = $4, withdrawn_at = $5, updated_at = $5
		WHERE id = $1
	`, d.ID, d.Status, d.PenaltyFee, d.Payout, d.WithdrawnAt)
	return err
}

func (r *Repository) Get(ctx context.Context, userID, id uuid.UUID) (*Deposit, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var d Deposit
	err := r.db.GetContext(ctx2, &d, `SELECT `+depositColumns+` FROM bank_deposits WHERE id = $1 AND user_id = $2`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repository) List(ctx context.Context, userID uuid.UUID, status *Status) ([]Deposit, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var statusArg interface{}
	if status != nil {
		statusArg = string(*status)
	}

	deposits := make([]Deposit, 0)
	err := r.db.SelectContext(ctx2, &deposits, `
		SELECT `+depositColumns+` FROM bank_deposits
		WHERE user_id = $1 AND ($2::text IS NULL OR status = $2::text)
		ORDER BY created_at DESC
	`, userID, statusArg)
	return deposits, err
}

// MarkMatured moves unlocked active deposits past maturity to matured and returns them.
func (r *Repository) MarkMatured(ctx context.Context, now time.Time, limit int) ([]Deposit, error) {
	ctx2, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	deposits := make([]Deposit, 0)
	err := r.db.SelectContext(ctx2, &deposits, `
		UPDATE bank_deposits
		SET status = 'matured', updated_at = $1
		WHERE id IN (
			SELECT id FROM bank_deposits
			WHERE status = 'active' AND NOT locked AND maturity_date <= $1
			ORDER BY maturity_date
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		AND status = 'active'
		RETURNING `+depositColumns, now, limit)
	return deposits, err
}

// SetLocked flips the admin lock on a non-terminal deposit.
func (r *Repository) SetLocked(ctx context.Context, id uuid.UUID, locked bool, now time.Time) (*Deposit, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var d Deposit
	err := r.db.GetContext(ctx2, &d, `
		UPDATE bank_deposits SET locked = $2, updated_at = $3
		WHERE id = $1 AND status IN ('active', 'matured')
		RETURNING `+depositColumns, id, locked, now)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := r.db.GetContext(ctx2, &exists, `SELECT EXISTS (SELECT 1 FROM bank_deposits WHERE id = $1)`, id); err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrClosed
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repository) Transactions(ctx context.Context, depositID uuid.UUID) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	txs := make([]Transaction, 0)
	err := r.db.SelectContext(ctx2, &txs, `
		SELECT id, deposit_id, user_id, type, coins, bonus_coins, ledger_transaction_id, created_at
		FROM bank_transactions WHERE deposit_id = $1 ORDER BY created_at, type
	`, depositID)
	return txs, err
}
