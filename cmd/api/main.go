package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/quizarena/economy-api/internal/app"
	"github.com/quizarena/economy-api/internal/config"
	"github.com/quizarena/economy-api/internal/domain/bank"
	"github.com/quizarena/economy-api/internal/domain/fraud"
	"github.com/quizarena/economy-api/internal/domain/ledger"
	"github.com/quizarena/economy-api/internal/domain/referral"
	"github.com/quizarena/economy-api/internal/domain/voucher"
	"github.com/quizarena/economy-api/internal/middleware"
	"github.com/quizarena/economy-api/internal/pkg/database"
	"github.com/quizarena/economy-api/internal/pkg/jwt"
	"github.com/quizarena/economy-api/internal/pkg/logger"
	pkgresponse "github.com/quizarena/economy-api/internal/pkg/response"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
		Service:     "economy-api",
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting economy API")

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise services")
	}
	defer a.Close()

	scheduler, err := a.Scheduler()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	if cfg.JobsEnabled {
		scheduler.Start()
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid TRUSTED_PROXIES")
	}

	r := newRouter(handlers{
		ledger:   ledger.NewHandler(a.Ledger),
		vouchers: voucher.NewHandler(a.Vouchers, a.Throttle),
		bank:     bank.NewHandler(a.Bank),
		referral: referral.NewHandler(a.Referrals),
		fraud:    fraud.NewHandler(a.Fraud),
	}, a.JWT, proxies, cfg.AllowedOrigins, func(ctx context.Context) error {
		return database.Ping(ctx, a.DB, a.Redis)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			e, err := a.Economy.Reload()
			if err != nil {
				log.Error().Err(err).Msg("Economy config reload failed, keeping current values")
				continue
			}
			log.Info().
				Str("interest_rate", e.InterestRate.String()).
				Str("penalty_rate", e.PenaltyRate.String()).
				Str("commission_rate", e.CommissionRate.String()).
				Msg("Economy config reloaded")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	signal.Stop(reload)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if cfg.JobsEnabled {
		scheduler.Stop()
	}

	log.Info().Msg("Server exited properly")
}

type handlers struct {
	ledger   *ledger.Handler
	vouchers *voucher.Handler
	bank     *bank.Handler
	referral *referral.Handler
	fraud    *fraud.Handler
}

// newRouter builds the HTTP surface. ready backs the readiness probe.
func newRouter(h handlers, jwtService *jwt.Service, proxies *middleware.ProxyTrust, allowedOrigins []string, ready func(context.Context) error) chi.Router {
	authMiddleware := middleware.Auth(jwtService)

	r := chi.NewRouter()

	r.Use(middleware.RealIP(proxies))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(allowedOrigins))
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			log.Warn().Err(err).Msg("readiness check failed")
			pkgresponse.Error(w, http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable")
			return
		}
		pkgresponse.OK(w, map[string]string{"status": "ready"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/wallet", h.ledger.Routes(authMiddleware))
		r.Mount("/vouchers", h.vouchers.Routes(authMiddleware))
		r.Mount("/bank/deposits", h.bank.Routes(authMiddleware))
		r.Mount("/referrals", h.referral.Routes(authMiddleware))
	})

	// Called by the quiz and shop services with a service token
	r.Route("/internal", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireService())
		h.ledger.InternalRoutes(r)
		h.referral.InternalRoutes(r)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireAdmin())
		r.Mount("/ledger", h.ledger.AdminRoutes())
		r.Mount("/vouchers", h.vouchers.AdminRoutes())
		r.Mount("/deposits", h.bank.AdminRoutes())
		r.Mount("/fraud", h.fraud.AdminRoutes())
	})

	return r
}
