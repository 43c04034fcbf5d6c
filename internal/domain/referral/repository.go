package referral

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/quizarena/economy-api/internal/domain/ledger"
	"github.com/quizarena/economy-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) insertLink(ctx context.Context, tx *sqlx.Tx, l *Link) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO referral_links (referred_user_id, referrer_user_id, commission_rate, created_at)
		VALUES ($1, $2, $3, $4)
	`, l.ReferredUserID, l.ReferrerUserID, l.CommissionRate, l.CreatedAt)
	if database.IsUniqueViolation(err, "referral_links_pkey") {
		return ErrAlreadyReferred
	}
	return err
}

func (r *Repository) ensureStats(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO referral_stats (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	return err
}

func (r *Repository) incrementReferrals(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO referral_stats (user_id, total_referrals, updated_at) VALUES ($1, 1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET total_referrals = referral_stats.total_referrals + 1, updated_at = EXCLUDED.updated_at
	`, userID, now)
	return err
}

func (r *Repository) addCommission(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO referral_stats (user_id, total_commission_earned, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET total_commission_earned = referral_stats.total_commission_earned + EXCLUDED.total_commission_earned,
		    updated_at = EXCLUDED.updated_at
	`, userID, amount, now)
	return err
}

// claimEarning inserts the earning row unless the source transaction was already paid.
func (r *Repository) claimEarning(ctx context.Context, tx *sqlx.Tx, e *Earning) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO referral_earnings (id, referrer_id, referred_id, source_transaction_id, coins_earned, commission_earned, rate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT referral_earnings_source_key DO NOTHING
	`, e.ID, e.ReferrerID, e.ReferredID, e.SourceTransactionID, e.CoinsEarned, e.CommissionEarned, e.Rate, e.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *Repository) setEarningTransaction(ctx context.Context, tx *sqlx.Tx, earningID, ledgerTxID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `UPDATE referral_earnings SET ledger_transaction_id = $2 WHERE id = $1`, earningID, ledgerTxID)
	return err
}

// claimBonus flips the bonus flag of the referred user. Only one caller ever sees true.
func (r *Repository) claimBonus(ctx context.Context, tx *sqlx.Tx, referredID uuid.UUID, now time.Time) (bool, error) {
	if err := r.ensureStats(ctx, tx, referredID); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE referral_stats
		SET registration_bonus_paid = TRUE, registration_bonus_paid_at = $2, updated_at = $2
		WHERE user_id = $1 AND NOT registration_bonus_paid
	`, referredID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *Repository) GetLink(ctx context.Context, referredID uuid.UUID) (*Link, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var l Link
	err := r.db.GetContext(ctx2, &l, `
		SELECT referred_user_id, referrer_user_id, commission_rate, created_at
		FROM referral_links WHERE referred_user_id = $1
	`, referredID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetStats returns the stats row, or zero stats when the user has none.
func (r *Repository) GetStats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var s Stats
	err := r.db.GetContext(ctx2, &s, `
		SELECT user_id, total_referrals, total_commission_earned, registration_bonus_paid,
		       registration_bonus_paid_at, updated_at
		FROM referral_stats WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return &Stats{UserID: userID, TotalCommissionEarned: decimal.Zero}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) ListEarnings(ctx context.Context, referrerID uuid.UUID, limit, offset int) ([]Earning, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	earnings := make([]Earning, 0)
	err := r.db.SelectContext(ctx2, &earnings, `
		SELECT id, referrer_id, referred_id, source_transaction_id, coins_earned, commission_earned,
		       rate, ledger_transaction_id, created_at
		FROM referral_earnings WHERE referrer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, referrerID, limit, offset)
	return earnings, err
}

func (r *Repository) ListReferred(ctx context.Context, referrerID uuid.UUID) ([]Link, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	links := make([]Link, 0)
	err := r.db.SelectContext(ctx2, &links, `
		SELECT referred_user_id, referrer_user_id, commission_rate, created_at
		FROM referral_links WHERE referrer_user_id = $1
		ORDER BY created_at DESC
	`, referrerID)
	return links, err
}

// UnpaidRewards returns quiz rewards of referred users that have no earning row yet.
func (r *Repository) UnpaidRewards(ctx context.Context, since time.Time, limit int) ([]ledger.Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	txs := make([]ledger.Transaction, 0)
	err := r.db.SelectContext(ctx2, &txs, `
		SELECT lt.seq, lt.id, lt.user_id, lt.type, lt.coins_delta, lt.bonus_coins_delta,
		       lt.coins_before, lt.bonus_coins_before, lt.coins_after, lt.bonus_coins_after,
		       lt.reference_type, lt.reference_id, lt.description, lt.metadata, lt.created_at
		FROM ledger_transactions lt
		JOIN referral_links rl ON rl.referred_user_id = lt.user_id
		WHERE lt.type = 'quiz_reward'
		  AND lt.created_at >= $1
		  AND lt.created_at >= rl.created_at
		  AND NOT EXISTS (SELECT 1 FROM referral_earnings re WHERE re.source_transaction_id = lt.id)
		ORDER BY lt.seq
		LIMIT $2
	`, since, limit)
	return txs, err
}
