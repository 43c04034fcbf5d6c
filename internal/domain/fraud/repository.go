package fraud

import (
	"context"
	"fmt"
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

const stateColumns = `user_id, source_address, failed_attempts, last_attempt_at, blocked_until, permanently_blocked, updated_at`

// GetState returns the state of a pair or nil when it is Normal.
func (r *Repository) GetState(ctx context.Context, userID uuid.UUID, sourceAddress string) (*State, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	states := make([]State, 0, 1)
	if err := r.db.SelectContext(ctx2, &states, `
		SELECT `+stateColumns+` FROM voucher_rate_limits WHERE user_id = $1 AND source_address = $2
	`, userID, sourceAddress); err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, nil
	}
	return &states[0], nil
}

// lockUser serializes failure recording for one user across all addresses.
func (r *Repository) lockUser(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, userID.String())
	return err
}

// lockState creates the row on first failure and locks it.
func (r *Repository) lockState(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, sourceAddress string, now time.Time) (*State, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO voucher_rate_limits (user_id, source_address, failed_attempts, last_attempt_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)
		ON CONFLICT (user_id, source_address) DO NOTHING
	`, userID, sourceAddress, now); err != nil {
		return nil, err
	}

	var st State
	if err := tx.GetContext(ctx, &st, `
		SELECT `+stateColumns+` FROM voucher_rate_limits
		WHERE user_id = $1 AND source_address = $2
		FOR UPDATE
	`, userID, sourceAddress); err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *Repository) saveState(ctx context.Context, tx *sqlx.Tx, st State) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE voucher_rate_limits
		SET failed_attempts = $3, last_attempt_at = $4, blocked_until = $5, permanently_blocked = $6, updated_at = $7
		WHERE user_id = $1 AND source_address = $2
	`, st.UserID, st.SourceAddress, st.FailedAttempts, st.LastAttemptAt, st.BlockedUntil, st.PermanentlyBlocked, st.UpdatedAt)
	return err
}

// resetElapsed clears an elapsed temporary block. Permanent blocks are untouched.
func (r *Repository) resetElapsed(ctx context.Context, userID uuid.UUID, sourceAddress string, now time.Time) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx2, `
		UPDATE voucher_rate_limits
		SET failed_attempts = 0, blocked_until = NULL, updated_at = $3
		WHERE user_id = $1 AND source_address = $2
		  AND NOT permanently_blocked AND blocked_until IS NOT NULL AND blocked_until <= $3
	`, userID, sourceAddress, now)
	return err
}

func (r *Repository) deleteState(ctx context.Context, ex sqlx.ExecerContext, userID uuid.UUID, sourceAddress string) (int64, error) {
	res, err := ex.ExecContext(ctx, `
		DELETE FROM voucher_rate_limits WHERE user_id = $1 AND source_address = $2
	`, userID, sourceAddress)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) blockPermanently(ctx context.Context, userID uuid.UUID, sourceAddress string, now time.Time) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx2, `
		INSERT INTO voucher_rate_limits (user_id, source_address, failed_attempts, last_attempt_at, permanently_blocked, updated_at)
		VALUES ($1, $2, 0, $3, TRUE, $3)
		ON CONFLICT (user_id, source_address) DO UPDATE
		SET permanently_blocked = TRUE, updated_at = EXCLUDED.updated_at
	`, userID, sourceAddress, now)
	return err
}

// CountFailures counts a user's logged failures at or after since, across all addresses.
func (r *Repository) CountFailures(ctx context.Context, q sqlx.QueryerContext, userID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, `
		SELECT COUNT(*) FROM voucher_fraud_logs WHERE user_id = $1 AND created_at >= $2
	`, userID, since)
	return n, err
}

func (r *Repository) notifiedSince(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, since time.Time) (bool, error) {
	var notified bool
	err := tx.GetContext(ctx, &notified, `
		SELECT EXISTS (
			SELECT 1 FROM voucher_fraud_logs
			WHERE user_id = $1 AND created_at >= $2 AND admin_notified
		)
	`, userID, since)
	return notified, err
}

func (r *Repository) insertLog(ctx context.Context, tx *sqlx.Tx, e *LogEntry) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO voucher_fraud_logs (
			id, user_id, attempted_code, reason, source_address, user_agent,
			attempts_in_window, suspicious, admin_notified, created_at
		) VALUES (
			:id, :user_id, :attempted_code, :reason, :source_address, :user_agent,
			:attempts_in_window, :suspicious, :admin_notified, :created_at
		)
	`, e)
	return err
}

// ListLogs returns fraud log entries, newest first.
func (r *Repository) ListLogs(ctx context.Context, f LogFilters) ([]LogEntry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT id, user_id, attempted_code, reason, source_address, user_agent,
		attempts_in_window, suspicious, admin_notified, created_at
		FROM voucher_fraud_logs WHERE 1=1`
	args := make([]interface{}, 0, 6)
	argN := 1

	if f.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argN)
		args = append(args, *f.UserID)
		argN++
	}
	if f.SourceAddress != "" {
		query += fmt.Sprintf(" AND source_address = $%d", argN)
		args = append(args, f.SourceAddress)
		argN++
	}
	if f.SuspiciousOnly {
		query += " AND suspicious"
	}
	if f.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argN)
		args = append(args, *f.Since)
		argN++
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argN, argN+1)
	args = append(args, limit, f.Offset)

	entries := make([]LogEntry, 0)
	err := r.db.SelectContext(ctx2, &entries, query, args...)
	return entries, err
}

// ListBlocked returns pairs that are currently blocked, temporarily or permanently.
func (r *Repository) ListBlocked(ctx context.Context, now time.Time) ([]State, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	states := make([]State, 0)
	err := r.db.SelectContext(ctx2, &states, `
		SELECT `+stateColumns+` FROM voucher_rate_limits
		WHERE permanently_blocked OR blocked_until > $1
		ORDER BY updated_at DESC
	`, now)
	return states, err
}

// DeleteExpired removes pairs whose temporary block has elapsed and unblocked pairs idle
// since before staleBefore.
func (r *Repository) DeleteExpired(ctx context.Context, now, staleBefore time.Time) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `
		DELETE FROM voucher_rate_limits
		WHERE NOT permanently_blocked
		  AND ((blocked_until IS NOT NULL AND blocked_until <= $1)
		       OR (blocked_until IS NULL AND last_attempt_at < $2))
	`, now, staleBefore)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
