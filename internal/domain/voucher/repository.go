package voucher

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quizarena/economy-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const voucherColumns = `id, code, description, reward_coins, reward_bonus_coins, powerups, max_redemptions,
	current_redemptions, max_per_user, valid_from, valid_until, active, created_by, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, v *Voucher) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx2, `
		INSERT INTO vouchers (
			id, code, description, reward_coins, reward_bonus_coins, powerups, max_redemptions,
			current_redemptions, max_per_user, valid_from, valid_until, active, created_by, created_at, updated_at
		) VALUES (
			:id, :code, :description, :reward_coins, :reward_bonus_coins, :powerups, :max_redemptions,
			:current_redemptions, :max_per_user, :valid_from, :valid_until, :active, :created_by, :created_at, :updated_at
		)
	`, v)
	if database.IsUniqueViolation(err, "vouchers_code_key") {
		return ErrCodeTaken
	}
	return err
}

func (r *Repository) getOne(ctx context.Context, q sqlx.QueryerContext, query string, arg interface{}) (*Voucher, error) {
	var v Voucher
	if err := sqlx.GetContext(ctx, q, &v, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *Repository) GetByCode(ctx context.Context, code string) (*Voucher, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return r.getOne(ctx2, r.db, `SELECT `+voucherColumns+` FROM vouchers WHERE code = $1`, code)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Voucher, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return r.getOne(ctx2, r.db, `SELECT `+voucherColumns+` FROM vouchers WHERE id = $1`, id)
}

// lockVoucher locks the voucher row for the rest of tx.
func (r *Repository) lockVoucher(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Voucher, error) {
	return r.getOne(ctx, tx, `SELECT `+voucherColumns+` FROM vouchers WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repository) CountUserRedemptions(ctx context.Context, q sqlx.QueryerContext, voucherID, userID uuid.UUID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, `
		SELECT COUNT(*) FROM voucher_redemptions WHERE voucher_id = $1 AND user_id = $2
	`, voucherID, userID)
	return n, err
}

// incrementRedemptions is the guarded counter bump. It reports false when the voucher is full.
func (r *Repository) incrementRedemptions(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE vouchers
		SET current_redemptions = current_redemptions + 1, updated_at = $2
		WHERE id = $1 AND current_redemptions < max_redemptions
	`, id, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Repository) insertRedemption(ctx context.Context, tx *sqlx.Tx, red *Redemption) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO voucher_redemptions (id, voucher_id, user_id, rewards_granted, source_address, ledger_transaction_id, created_at)
		VALUES (:id, :voucher_id, :user_id, :rewards_granted, :source_address, :ledger_transaction_id, :created_at)
	`, red)
	return err
}

// grantPowerup adds qty to the user's inventory, creating the row on first grant.
func (r *Repository) grantPowerup(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, powerupID string, qty int, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO user_powerups (user_id, powerup_id, quantity, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, powerup_id) DO UPDATE
		SET quantity = user_powerups.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
	`, userID, powerupID, qty, now)
	return err
}

func (r *Repository) List(ctx context.Context, f ListFilters) ([]Voucher, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	vouchers := make([]Voucher, 0)
	err := r.db.SelectContext(ctx2, &vouchers, `
		SELECT `+voucherColumns+` FROM vouchers
		WHERE ($1 = FALSE OR active)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, f.ActiveOnly, limit, f.Offset)
	return vouchers, err
}

func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool, now time.Time) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `UPDATE vouchers SET active = $2, updated_at = $3 WHERE id = $1`, id, active, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Redemptions(ctx context.Context, voucherID uuid.UUID, limit, offset int) ([]Redemption, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	reds := make([]Redemption, 0)
	err := r.db.SelectContext(ctx2, &reds, `
		SELECT id, voucher_id, user_id, rewards_granted, source_address, ledger_transaction_id, created_at
		FROM voucher_redemptions
		WHERE voucher_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, voucherID, limit, offset)
	return reds, err
}

// UserPowerups returns a user's powerup inventory.
func (r *Repository) UserPowerups(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows := make([]struct {
		PowerupID string `db:"powerup_id"`
		Quantity  int    `db:"quantity"`
	}, 0)
	if err := r.db.SelectContext(ctx2, &rows, `
		SELECT powerup_id, quantity FROM user_powerups WHERE user_id = $1
	`, userID); err != nil {
		return nil, err
	}
	inv := make(map[string]int, len(rows))
	for _, row := range rows {
		inv[row.PowerupID] = row.Quantity
	}
	return inv, nil
}
