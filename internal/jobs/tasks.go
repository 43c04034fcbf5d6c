package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/quizarena/economy-api/internal/domain/bank"
	"github.com/quizarena/economy-api/internal/domain/reconcile"
)

// Job names.
const (
	MaturitySweep      = "maturity_sweep"
	CommissionBackfill = "commission_backfill"
	RateLimitCleanup   = "rate_limit_cleanup"
	Reconcile          = "reconcile"
)

type Sweeper interface {
	SweepMatured(ctx context.Context) ([]bank.Deposit, error)
}

type Backfiller interface {
	BackfillCommissions(ctx context.Context, since time.Time) (int, error)
}

type Cleaner interface {
	CleanupExpired(ctx context.Context, retention time.Duration) (int64, error)
}

type Reconciler interface {
	Run(ctx context.Context) (*reconcile.Report, error)
	Archive(ctx context.Context, report *reconcile.Report) (string, error)
}

func SweepTask(s Sweeper) Task {
	return func(ctx context.Context) (string, error) {
		swept, err := s.SweepMatured(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d deposits matured", len(swept)), nil
	}
}

// BackfillTask re-checks quiz rewards newer than lookback.
func BackfillTask(b Backfiller, lookback time.Duration) Task {
	return func(ctx context.Context) (string, error) {
		n, err := b.BackfillCommissions(ctx, time.Now().Add(-lookback))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d commissions paid", n), nil
	}
}

func CleanupTask(c Cleaner, retention time.Duration) Task {
	return func(ctx context.Context) (string, error) {
		n, err := c.CleanupExpired(ctx, retention)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d rate limit rows deleted", n), nil
	}
}

// ReconcileTask runs a read-only reconcile and archives the report.
func ReconcileTask(r Reconciler) Task {
	return func(ctx context.Context) (string, error) {
		report, err := r.Run(ctx)
		if err != nil {
			return "", err
		}
		key, err := r.Archive(ctx, report)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d failed checks, archived to %s", report.Failed(), key), nil
	}
}
