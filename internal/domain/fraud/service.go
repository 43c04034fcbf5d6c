package fraud

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/quizarena/economy-api/internal/pkg/apperr"
	"github.com/quizarena/economy-api/internal/pkg/database"
)

// Notifier receives admin alerts for suspicious activity.
type Notifier interface {
	NotifyFraudAlert(ctx context.Context, userID uuid.UUID, sourceAddress string, attemptsInWindow int, blocked bool)
}

// Service is the voucher rate limiter and fraud detector.
type Service struct {
	db       *sqlx.DB
	repo     *Repository
	policy   Policy
	notifier Notifier
	now      func() time.Time
}

func NewService(db *sqlx.DB, repo *Repository, policy Policy, notifier Notifier) *Service {
	return &Service{db: db, repo: repo, policy: policy, notifier: notifier, now: time.Now}
}

func (s *Service) Policy() Policy { return s.policy }

// Check returns *apperr.RateLimitedError while the pair is blocked. An elapsed
// temporary block is reset here so the next failure starts a fresh count.
func (s *Service) Check(ctx context.Context, userID uuid.UUID, sourceAddress string) error {
	now := s.now().UTC()
	st, err := s.repo.GetState(ctx, userID, sourceAddress)
	if err != nil {
		return apperr.Internal("read rate limit state", err)
	}

	d := s.policy.Evaluate(st, now)
	if !d.Allowed {
		return &apperr.RateLimitedError{RetryAfter: d.RetryAfter, Permanent: d.Permanent}
	}
	if d.Reset {
		if err := s.repo.resetElapsed(ctx, userID, sourceAddress, now); err != nil {
			return apperr.Internal("reset elapsed block", err)
		}
		log.Info().Str("user_id", userID.String()).Str("source_address", sourceAddress).Msg("voucher block elapsed; counter reset")
	}
	return nil
}

// CheckPattern rejects users with too many failures across all addresses in the window.
func (s *Service) CheckPattern(ctx context.Context, userID uuid.UUID) error {
	if s.policy.RejectThreshold <= 0 {
		return nil
	}
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	count, err := s.repo.CountFailures(ctx2, s.db, userID, s.now().UTC().Add(-s.policy.Window))
	if err != nil {
		return apperr.Internal("count failures", err)
	}
	if s.policy.Reject(count) {
		return ErrSuspicious
	}
	return nil
}

// RecordFailure logs a failed attempt and advances the pair's counter in its own
// transaction, then alerts admins if the failure escalated.
func (s *Service) RecordFailure(ctx context.Context, a Attempt) (*Outcome, error) {
	if a.UserID == uuid.Nil {
		return nil, ErrInvalidIdentity
	}
	now := s.now().UTC()
	out := &Outcome{}
	notify := false

	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.repo.lockUser(ctx, tx, a.UserID); err != nil {
			return apperr.Internal("lock user failures", err)
		}
		st, err := s.repo.lockState(ctx, tx, a.UserID, a.SourceAddress, now)
		if err != nil {
			return apperr.Internal("lock rate limit state", err)
		}

		next, escalated := s.policy.Fail(*st, now)
		if err := s.repo.saveState(ctx, tx, next); err != nil {
			return apperr.Internal("save rate limit state", err)
		}

		since := now.Add(-s.policy.Window)
		prior, err := s.repo.CountFailures(ctx, tx, a.UserID, since)
		if err != nil {
			return apperr.Internal("count failures", err)
		}
		count := prior + 1
		suspicious := s.policy.Suspicious(count)

		alreadyNotified := false
		if suspicious {
			if alreadyNotified, err = s.repo.notifiedSince(ctx, tx, a.UserID, since); err != nil {
				return apperr.Internal("check prior alerts", err)
			}
		}
		notify = shouldNotify(suspicious, alreadyNotified, escalated)

		out.State = next
		out.Escalated = escalated
		out.Entry = LogEntry{
			ID:               uuid.New(),
			UserID:           a.UserID,
			AttemptedCode:    a.Code,
			Reason:           a.Reason,
			SourceAddress:    a.SourceAddress,
			UserAgent:        a.UserAgent,
			AttemptsInWindow: count,
			Suspicious:       suspicious,
			AdminNotified:    notify,
			CreatedAt:        now,
		}
		if err := s.repo.insertLog(ctx, tx, &out.Entry); err != nil {
			return apperr.Internal("insert fraud log", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := log.Warn().
		Str("user_id", a.UserID.String()).
		Str("source_address", a.SourceAddress).
		Str("reason", a.Reason).
		Int("failed_attempts", out.State.FailedAttempts).
		Int("attempts_in_window", out.Entry.AttemptsInWindow)
	if out.Escalated {
		ev.Msg("voucher attempts blocked")
	} else {
		ev.Msg("voucher attempt failed")
	}

	if notify && s.notifier != nil {
		s.notifier.NotifyFraudAlert(ctx, a.UserID, a.SourceAddress, out.Entry.AttemptsInWindow, out.Escalated)
	}
	return out, nil
}

// ResetTx returns the pair to Normal inside the caller's transaction. Permanent blocks
// only clear through ClearBlock.
func (s *Service) ResetTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, sourceAddress string) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM voucher_rate_limits
		WHERE user_id = $1 AND source_address = $2 AND NOT permanently_blocked
	`, userID, sourceAddress); err != nil {
		return apperr.Internal("reset rate limit state", err)
	}
	return nil
}

// ClearBlock is the admin clearance of any block, permanent or not.
func (s *Service) ClearBlock(ctx context.Context, adminID, userID uuid.UUID, sourceAddress string) error {
	if userID == uuid.Nil || sourceAddress == "" {
		return ErrInvalidIdentity
	}
	n, err := s.repo.deleteState(ctx, s.db, userID, sourceAddress)
	if err != nil {
		return apperr.Internal("clear block", err)
	}
	if n == 0 {
		return ErrStateNotFound
	}
	log.Info().Str("admin_id", adminID.String()).Str("user_id", userID.String()).Str("source_address", sourceAddress).Msg("voucher block cleared")
	return nil
}

// BlockPermanently blocks a pair until an admin clears it.
func (s *Service) BlockPermanently(ctx context.Context, adminID, userID uuid.UUID, sourceAddress string) error {
	if userID == uuid.Nil || sourceAddress == "" {
		return ErrInvalidIdentity
	}
	if err := s.repo.blockPermanently(ctx, userID, sourceAddress, s.now().UTC()); err != nil {
		return apperr.Internal("block permanently", err)
	}
	log.Info().Str("admin_id", adminID.String()).Str("user_id", userID.String()).Str("source_address", sourceAddress).Msg("voucher address blocked permanently")
	return nil
}

func (s *Service) ListLogs(ctx context.Context, f LogFilters) ([]LogEntry, error) {
	entries, err := s.repo.ListLogs(ctx, f)
	if err != nil {
		return nil, apperr.Internal("list fraud logs", err)
	}
	return entries, nil
}

func (s *Service) ListBlocked(ctx context.Context) ([]State, error) {
	states, err := s.repo.ListBlocked(ctx, s.now().UTC())
	if err != nil {
		return nil, apperr.Internal("list blocked", err)
	}
	return states, nil
}

// CleanupExpired deletes pairs whose temporary block has elapsed and pairs with no
// failure within retention.
func (s *Service) CleanupExpired(ctx context.Context, retention time.Duration) (int64, error) {
	now := s.now().UTC()
	n, err := s.repo.DeleteExpired(ctx, now, now.Add(-retention))
	if err != nil {
		return 0, apperr.Internal("cleanup expired blocks", err)
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("expired voucher blocks cleaned up")
	}
	return n, nil
}
