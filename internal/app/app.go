// Package app wires the economy services shared by the API server and economyctl.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/quizarena/economy-api/internal/config"
	"github.com/quizarena/economy-api/internal/domain/bank"
	"github.com/quizarena/economy-api/internal/domain/fraud"
	"github.com/quizarena/economy-api/internal/domain/ledger"
	"github.com/quizarena/economy-api/internal/domain/notification"
	"github.com/quizarena/economy-api/internal/domain/reconcile"
	"github.com/quizarena/economy-api/internal/domain/referral"
	"github.com/quizarena/economy-api/internal/domain/voucher"
	"github.com/quizarena/economy-api/internal/jobs"
	"github.com/quizarena/economy-api/internal/pkg/database"
	"github.com/quizarena/economy-api/internal/pkg/jwt"
	"github.com/quizarena/economy-api/internal/pkg/storage"
)

type App struct {
	Config  *config.Config
	Economy *config.EconomyStore
	DB      *sqlx.DB
	Redis   *redis.Client
	JWT     *jwt.Service

	Notifications *notification.Service
	Ledger        *ledger.Service
	Fraud         *fraud.Service
	Throttle      *fraud.Throttle
	Vouchers      *voucher.Service
	Bank          *bank.Service
	Referrals     *referral.Service
	Reconcile     *reconcile.Service
}

// New connects to Postgres and Redis and builds every service. Redis is optional:
// when it cannot be reached notifications are logged and the redeem throttle is off.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	economy, err := config.NewEconomyStore(cfg.Economy, cfg.EconomyFile)
	if err != nil {
		return nil, fmt.Errorf("economy config: %w", err)
	}

	db, err := database.NewPostgres(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.ApplySchemaOnStart {
		if err := database.ApplySchema(ctx, db); err != nil {
			database.ClosePostgres(db)
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	rdb, err := database.NewRedis(cfg.RedisURL, cfg.RedisPoolSize)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, notifications will only be logged")
		rdb = nil
	}

	a := &App{
		Config:  cfg,
		Economy: economy,
		DB:      db,
		Redis:   rdb,
		JWT:     jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL),
	}
	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.Config

	var queue notification.Queue
	if a.Redis != nil {
		queue = notification.NewRedisQueue(a.Redis, cfg.NotificationQueueKey, cfg.NotificationQueueMaxLen)
	}
	a.Notifications = notification.NewService(queue)

	a.Ledger = ledger.NewService(a.DB, ledger.NewRepository(a.DB))

	a.Fraud = fraud.NewService(a.DB, fraud.NewRepository(a.DB), fraud.Policy{
		MaxAttempts:         cfg.RateLimitMaxAttempts,
		BlockDuration:       cfg.RateLimitBlockDuration,
		Window:              cfg.FraudWindow,
		SuspiciousThreshold: cfg.FraudSuspiciousThreshold,
		RejectThreshold:     cfg.FraudRejectThreshold,
		PermanentOnBlock:    cfg.RateLimitPermanentOnBlock,
	}, a.Notifications)
	a.Throttle = fraud.NewThrottle(a.Redis, cfg.VoucherRequestsPerMinute, time.Minute)

	a.Vouchers = voucher.NewService(a.DB, voucher.NewRepository(a.DB), a.Ledger, a.Fraud, voucher.NewDBCatalog(a.DB), a.Notifications)
	a.Bank = bank.NewService(a.DB, bank.NewRepository(a.DB), a.Ledger, a.BankTerms, a.Notifications)
	a.Referrals = referral.NewService(a.DB, referral.NewRepository(a.DB), a.Ledger, referral.NewDBQuizCounter(a.DB), a.ReferralTerms, a.Notifications)
	a.Ledger.Subscribe(a.Referrals)

	archive, err := storage.New(storage.Config{
		Backend:     cfg.ArchiveBackend,
		LocalPath:   cfg.ArchiveLocalPath,
		S3Endpoint:  cfg.S3Endpoint,
		S3Region:    cfg.S3Region,
		S3Bucket:    cfg.S3Bucket,
		S3AccessKey: cfg.S3AccessKey,
		S3SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		return fmt.Errorf("report archive: %w", err)
	}
	a.Reconcile = reconcile.NewService(a.DB, reconcile.NewRepository(a.DB), archive)
	return nil
}

// BankTerms reads the deposit terms from the current economy snapshot.
func (a *App) BankTerms() bank.Terms {
	e := a.Economy.Load()
	return bank.Terms{
		InterestRate: e.InterestRate,
		PenaltyRate:  e.PenaltyRate,
		DurationDays: e.DepositDurationDays,
		MinDeposit:   e.MinDeposit,
		MaxDeposit:   e.MaxDeposit,
	}
}

// ReferralTerms reads the referral program terms from the current economy snapshot.
func (a *App) ReferralTerms() referral.Terms {
	e := a.Economy.Load()
	return referral.Terms{
		CommissionRate: e.CommissionRate,
		BonusAmount:    e.RegistrationBonusAmount,
		QuizThreshold:  e.CompletedQuizThreshold,
	}
}

// Scheduler registers the maintenance jobs configured in cfg.
func (a *App) Scheduler() (*jobs.Scheduler, error) {
	cfg := a.Config
	s := jobs.NewScheduler()
	for _, j := range []struct {
		name    string
		spec    string
		timeout time.Duration
		task    jobs.Task
	}{
		{jobs.MaturitySweep, cfg.MaturitySweepSpec, 2 * time.Minute, jobs.SweepTask(a.Bank)},
		{jobs.CommissionBackfill, cfg.CommissionBackfillSpec, 5 * time.Minute, jobs.BackfillTask(a.Referrals, cfg.BackfillLookback)},
		{jobs.RateLimitCleanup, cfg.RateLimitCleanupSpec, time.Minute, jobs.CleanupTask(a.Fraud, cfg.RateLimitRetention)},
		{jobs.Reconcile, cfg.ReconcileSpec, 10 * time.Minute, jobs.ReconcileTask(a.Reconcile)},
	} {
		if err := s.Register(j.name, j.spec, j.timeout, j.task); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Close releases the connections.
func (a *App) Close() {
	database.CloseRedis(a.Redis)
	database.ClosePostgres(a.DB)
}
