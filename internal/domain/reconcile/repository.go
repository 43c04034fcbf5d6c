package reconcile

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const queryTimeout = 30 * time.Second

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

type balanceRow struct {
	UserID     string          `db:"user_id"`
	LogCoins   decimal.Decimal `db:"log_coins"`
	LogBonus   decimal.Decimal `db:"log_bonus"`
	CacheCoins decimal.Decimal `db:"cache_coins"`
	CacheBonus decimal.Decimal `db:"cache_bonus"`
}

func (r *Repository) balances(ctx context.Context) ([]balanceRow, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows := make([]balanceRow, 0)
	err := r.db.SelectContext(ctx2, &rows, `
		SELECT COALESCE(ub.user_id, s.user_id)::text AS user_id,
		       COALESCE(s.coins, 0) AS log_coins, COALESCE(s.bonus_coins, 0) AS log_bonus,
		       COALESCE(ub.coins, 0) AS cache_coins, COALESCE(ub.bonus_coins, 0) AS cache_bonus
		FROM user_balances ub
		FULL OUTER JOIN (
			SELECT user_id, SUM(coins_delta) AS coins, SUM(bonus_coins_delta) AS bonus_coins
			FROM ledger_transactions GROUP BY user_id
		) s ON s.user_id = ub.user_id
		ORDER BY 1
	`)
	return rows, err
}

type chainRow struct {
	ID          string          `db:"id"`
	PrevCoins   decimal.Decimal `db:"prev_coins"`
	PrevBonus   decimal.Decimal `db:"prev_bonus"`
	CoinsBefore decimal.Decimal `db:"coins_before"`
	BonusBefore decimal.Decimal `db:"bonus_coins_before"`
}

// brokenChains returns transactions whose before values differ from the previous after values.
func (r *Repository) brokenChains(ctx context.Context) (int, []chainRow, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var total int
	if err := r.db.GetContext(ctx2, &total, `SELECT COUNT(*) FROM ledger_transactions`); err != nil {
		return 0, nil, err
	}

	rows := make([]chainRow, 0)
	err := r.db.SelectContext(ctx2, &rows, `
		SELECT id::text AS id, prev_coins, prev_bonus, coins_before, bonus_coins_before
		FROM (
			SELECT id, seq, coins_before, bonus_coins_before,
			       LAG(coins_after, 1, 0::numeric) OVER w AS prev_coins,
			       LAG(bonus_coins_after, 1, 0::numeric) OVER w AS prev_bonus
			FROM ledger_transactions
			WINDOW w AS (PARTITION BY user_id ORDER BY seq)
		) t
		WHERE coins_before <> prev_coins OR bonus_coins_before <> prev_bonus
		ORDER BY seq
	`)
	return total, rows, err
}

type countRow struct {
	Key    string `db:"key"`
	Log    int    `db:"log_count"`
	Cached int    `db:"cached"`
}

func (r *Repository) voucherCounters(ctx context.Context) ([]countRow, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows := make([]countRow, 0)
	err := r.db.SelectContext(ctx2, &rows, `
		SELECT v.id::text AS key, COUNT(vr.id) AS log_count, v.current_redemptions AS cached
		FROM vouchers v
		LEFT JOIN voucher_redemptions vr ON vr.voucher_id = v.id
		GROUP BY v.id, v.current_redemptions
		ORDER BY v.id
	`)
	return rows, err
}

type depositRow struct {
	UserID    string          `db:"user_id"`
	SubLedger decimal.Decimal `db:"subledger"`
	Open      decimal.Decimal `db:"open_total"`
}

func (r *Repository) deposits(ctx context.Context) ([]depositRow, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows := make([]depositRow, 0)
	err := r.db.SelectContext(ctx2, &rows, `
		SELECT COALESCE(t.user_id, d.user_id)::text AS user_id,
		       COALESCE(t.net, 0) AS subledger, COALESCE(d.open_total, 0) AS open_total
		FROM (
			SELECT user_id, SUM(CASE type
				WHEN 'deposit' THEN coins + bonus_coins
				WHEN 'principal_return' THEN -(coins + bonus_coins)
				ELSE 0 END) AS net
			FROM bank_transactions GROUP BY user_id
		) t
		FULL OUTER JOIN (
			SELECT user_id, SUM(coins_deposited + bonus_coins_deposited) AS open_total
			FROM bank_deposits WHERE status IN ('active', 'matured') GROUP BY user_id
		) d ON d.user_id = t.user_id
		ORDER BY 1
	`)
	return rows, err
}

type statsRow struct {
	UserID          string          `db:"user_id"`
	CachedReferrals int             `db:"cached_referrals"`
	LogReferrals    int             `db:"log_referrals"`
	CachedEarned    decimal.Decimal `db:"cached_earned"`
	LogEarned       decimal.Decimal `db:"log_earned"`
	CachedBonusPaid bool            `db:"cached_bonus_paid"`
	LogBonusPaid    bool            `db:"log_bonus_paid"`
}

const statsQuery = `
	WITH users AS (
		SELECT user_id FROM referral_stats
		UNION SELECT referrer_user_id FROM referral_links
		UNION SELECT referrer_id FROM referral_earnings
	),
	links AS (
		SELECT referrer_user_id AS user_id, COUNT(*) AS n FROM referral_links GROUP BY referrer_user_id
	),
	earned AS (
		SELECT referrer_id AS user_id, SUM(commission_earned) AS total FROM referral_earnings GROUP BY referrer_id
	),
	bonuses AS (
		SELECT DISTINCT reference_id FROM ledger_transactions
		WHERE type = 'referral_bonus' AND reference_type = 'referral'
	)
	SELECT u.user_id::text AS user_id,
	       COALESCE(rs.total_referrals, 0) AS cached_referrals,
	       COALESCE(l.n, 0) AS log_referrals,
	       COALESCE(rs.total_commission_earned, 0) AS cached_earned,
	       COALESCE(e.total, 0) AS log_earned,
	       COALESCE(rs.registration_bonus_paid, FALSE) AS cached_bonus_paid,
	       (b.reference_id IS NOT NULL) AS log_bonus_paid
	FROM users u
	LEFT JOIN referral_stats rs ON rs.user_id = u.user_id
	LEFT JOIN links l ON l.user_id = u.user_id
	LEFT JOIN earned e ON e.user_id = u.user_id
	LEFT JOIN bonuses b ON b.reference_id = u.user_id::text
`

func (r *Repository) referralStats(ctx context.Context) ([]statsRow, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows := make([]statsRow, 0)
	err := r.db.SelectContext(ctx2, &rows, statsQuery+` ORDER BY 1`)
	return rows, err
}

// RepairResult counts rewritten cache rows per table.
type RepairResult struct {
	Balances      int64 `json:"balances"`
	Vouchers      int64 `json:"vouchers"`
	ReferralStats int64 `json:"referral_stats"`
}

// repair rebuilds the balance, voucher counter and referral stats caches from their logs
// while writers are blocked. A set bonus flag is never cleared.
func (r *Repository) repair(ctx context.Context, tx *sqlx.Tx, now time.Time) (*RepairResult, error) {
	if _, err := tx.ExecContext(ctx, `
		LOCK TABLE user_balances, ledger_transactions, vouchers, voucher_redemptions,
		           referral_stats, referral_links, referral_earnings
		IN SHARE ROW EXCLUSIVE MODE
	`); err != nil {
		return nil, err
	}

	res := &RepairResult{}
	steps := []struct {
		dst   *int64
		query string
	}{
		{&res.Balances, `
			INSERT INTO user_balances (user_id, coins, bonus_coins, updated_at)
			SELECT user_id, SUM(coins_delta), SUM(bonus_coins_delta), $1
			FROM ledger_transactions GROUP BY user_id
			ON CONFLICT (user_id) DO UPDATE
			SET coins = EXCLUDED.coins, bonus_coins = EXCLUDED.bonus_coins, updated_at = EXCLUDED.updated_at
			WHERE user_balances.coins <> EXCLUDED.coins OR user_balances.bonus_coins <> EXCLUDED.bonus_coins`},
		{&res.Balances, `
			UPDATE user_balances ub SET coins = 0, bonus_coins = 0, updated_at = $1
			WHERE (ub.coins <> 0 OR ub.bonus_coins <> 0)
			  AND NOT EXISTS (SELECT 1 FROM ledger_transactions lt WHERE lt.user_id = ub.user_id)`},
		{&res.Vouchers, `
			UPDATE vouchers v SET current_redemptions = c.n, updated_at = $1
			FROM (
				SELECT v2.id, COUNT(vr.id) AS n FROM vouchers v2
				LEFT JOIN voucher_redemptions vr ON vr.voucher_id = v2.id
				GROUP BY v2.id
			) c
			WHERE c.id = v.id AND v.current_redemptions <> c.n`},
		{&res.ReferralStats, `
			INSERT INTO referral_stats (user_id, total_referrals, total_commission_earned, registration_bonus_paid, updated_at)
			SELECT s.user_id::uuid, s.log_referrals, s.log_earned, s.log_bonus_paid, $1
			FROM (` + statsQuery + `) s
			ON CONFLICT (user_id) DO UPDATE
			SET total_referrals = EXCLUDED.total_referrals,
			    total_commission_earned = EXCLUDED.total_commission_earned,
			    registration_bonus_paid = referral_stats.registration_bonus_paid OR EXCLUDED.registration_bonus_paid,
			    updated_at = EXCLUDED.updated_at
			WHERE referral_stats.total_referrals <> EXCLUDED.total_referrals
			   OR referral_stats.total_commission_earned <> EXCLUDED.total_commission_earned
			   OR (EXCLUDED.registration_bonus_paid AND NOT referral_stats.registration_bonus_paid)`},
	}

	for _, step := range steps {
		out, err := tx.ExecContext(ctx, step.query, now)
		if err != nil {
			return nil, err
		}
		n, err := out.RowsAffected()
		if err != nil {
			return nil, err
		}
		*step.dst += n
	}
	return res, nil
}
