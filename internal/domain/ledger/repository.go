package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const queryTimeout = 3 * time.Second

// Repository provides balance and transaction log storage.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const transactionColumns = `seq, id, user_id, type, coins_delta, bonus_coins_delta, coins_before, bonus_coins_before,
	coins_after, bonus_coins_after, reference_type, reference_id, description, metadata, created_at`

// lockBalance creates the balance row if missing and locks it for the rest of tx.
func (r *Repository) lockBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*Balance, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_balances (user_id, coins, bonus_coins)
		VALUES ($1, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return nil, err
	}

	var b Balance
	err := tx.GetContext(ctx, &b, `
		SELECT user_id, coins, bonus_coins, updated_at
		FROM user_balances
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) updateBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, coins, bonusCoins decimal.Decimal, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE user_balances
		SET coins = $2, bonus_coins = $3, updated_at = $4
		WHERE user_id = $1
	`, userID, coins, bonusCoins, at)
	return err
}

func (r *Repository) insertTransaction(ctx context.Context, tx *sqlx.Tx, t *Transaction) error {
	return tx.QueryRowxContext(ctx, `
		INSERT INTO ledger_transactions (
			id, user_id, type, coins_delta, bonus_coins_delta, coins_before, bonus_coins_before,
			coins_after, bonus_coins_after, reference_type, reference_id, description, metadata, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING seq
	`, t.ID, t.UserID, string(t.Type), t.CoinsDelta, t.BonusCoinsDelta, t.CoinsBefore, t.BonusCoinsBefore,
		t.CoinsAfter, t.BonusCoinsAfter, t.ReferenceType, t.ReferenceID, t.Description, t.Metadata, t.CreatedAt,
	).Scan(&t.Seq)
}

// findByReference returns the transaction already recorded for a reference, or nil.
func (r *Repository) findByReference(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, typ TxType, refType, refID string) (*Transaction, error) {
	txs := make([]Transaction, 0, 1)
	if err := tx.SelectContext(ctx, &txs, `
		SELECT `+transactionColumns+`
		FROM ledger_transactions
		WHERE user_id = $1 AND type = $2 AND reference_type = $3 AND reference_id = $4
		LIMIT 1
	`, userID, string(typ), refType, refID); err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return &txs[0], nil
}

// GetBalance returns the cached balance, zero for users without ledger activity.
func (r *Repository) GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	balances := make([]Balance, 0, 1)
	if err := r.db.SelectContext(ctx2, &balances, `
		SELECT user_id, coins, bonus_coins, updated_at FROM user_balances WHERE user_id = $1
	`, userID); err != nil {
		return nil, err
	}
	if len(balances) == 0 {
		return &Balance{UserID: userID, Coins: decimal.Zero, BonusCoins: decimal.Zero}, nil
	}
	return &balances[0], nil
}

// GetTransaction loads one transaction by id.
func (r *Repository) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	txs := make([]Transaction, 0, 1)
	if err := r.db.SelectContext(ctx2, &txs, `SELECT `+transactionColumns+` FROM ledger_transactions WHERE id = $1`, id); err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, ErrNotFound
	}
	return &txs[0], nil
}

// ListTransactions returns a user's history, newest first.
func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	txs := make([]Transaction, 0)
	err := r.db.SelectContext(ctx2, &txs, `
		SELECT `+transactionColumns+`
		FROM ledger_transactions
		WHERE user_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return txs, err
}

// SearchTransactions returns filtered transactions for admins.
func (r *Repository) SearchTransactions(ctx context.Context, filters SearchFilters) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	base := `SELECT ` + transactionColumns + ` FROM ledger_transactions WHERE 1=1`
	args := make([]interface{}, 0, 8)
	idx := 1

	if filters.UserID != nil {
		base += fmt.Sprintf(" AND user_id = $%d", idx)
		args = append(args, *filters.UserID)
		idx++
	}
	if filters.Type != nil && *filters.Type != "" {
		base += fmt.Sprintf(" AND type = $%d", idx)
		args = append(args, string(*filters.Type))
		idx++
	}
	if filters.ReferenceType != nil && *filters.ReferenceType != "" {
		base += fmt.Sprintf(" AND reference_type = $%d", idx)
		args = append(args, *filters.ReferenceType)
		idx++
	}
	if filters.ReferenceID != nil && *filters.ReferenceID != "" {
		base += fmt.Sprintf(" AND reference_id = $%d", idx)
		args = append(args, *filters.ReferenceID)
		idx++
	}
	if filters.DateFrom != nil {
		base += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *filters.DateFrom)
		idx++
	}
	if filters.DateTo != nil {
		base += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, *filters.DateTo)
		idx++
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	base = strings.TrimSpace(base) + fmt.Sprintf(" ORDER BY seq DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, filters.Offset)

	txs := make([]Transaction, 0)
	err := r.db.SelectContext(ctx2, &txs, base, args...)
	return txs, err
}

// History returns a user's full log in append order. Replay reads it without a timeout
// because long-lived accounts can have large logs.
func (r *Repository) History(ctx context.Context, userID uuid.UUID) ([]Transaction, error) {
	txs := make([]Transaction, 0)
	err := r.db.SelectContext(ctx, &txs, `
		SELECT `+transactionColumns+`
		FROM ledger_transactions
		WHERE user_id = $1
		ORDER BY seq ASC
	`, userID)
	return txs, err
}
