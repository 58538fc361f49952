// File: cmd/app/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v4/pgxpool"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/config"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/adapter"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/adapters/notify"
	payAdapters "github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/adapters/payment"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/api"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/db/migrations"
	pg "github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/db/postgres"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/logging"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/metrics"
	red "github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/redis"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/sched"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/security"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/web"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/worker"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted PII)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	// ---- Sentry ----
	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			Release:     version,
		}); err != nil {
			logger.Warn().Err(err).Msg("sentry init failed; continuing without it")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// ---- Metrics ----
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	if err := run(ctx, cfg, logger); err != nil {
		sentry.CaptureException(err)
		logger.Error().Err(err).Msg("service stopped with error")
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
}

func run(parent context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// ---- Migrations ----
	if cfg.Database.AutoMigrate {
		if err := migrate(cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	go observePool(ctx, pool.Stat)

	// ---- Redis (optional) ----
	var (
		locker  red.Locker
		limiter red.Limiter
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
		locker = red.NewLocker(redisClient)
		limiter = red.NewRateLimiter(redisClient)
	} else {
		logger.Warn().Msg("redis not configured: sweeps run unlocked and rate limits are off")
	}

	// ---- Encryption ----
	var cipher security.FieldCipher = security.Plaintext{}
	if key := cfg.Security.EncryptionKey; key != "" {
		encSvc, err := security.NewEncryptionService(key)
		if err != nil {
			return fmt.Errorf("encryption: %w", err)
		}
		cipher = encSvc
	}

	// ---- Repositories ----
	purchaseRepo := pg.NewPostgresPurchaseRepo(pool, cipher)
	userRepo := pg.NewPostgresUserRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	renewalRepo := pg.NewRenewalRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Payment gateway ----
	gateway, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}

	// ---- Order notifications ----
	workers := worker.NewPool(cfg.Notifier.Workers, 0, logger)
	workers.Start(ctx)
	defer workers.Stop()
	notifier := notify.NewWebhookNotifier(cfg.Notifier, workers, logger)

	// ---- Use cases ----
	activationUC := usecase.NewActivationUseCase(purchaseRepo, subRepo, renewalRepo, txManager, logger)
	ledgerUC := usecase.NewLedgerUseCase(purchaseRepo, gateway, activationUC, notifier, usecase.LedgerConfig{
		PendingWindow: cfg.Scheduler.PendingWindow,
		Batch:         cfg.Scheduler.ReconcileBatch,
	}, logger)
	checkoutUC := usecase.NewCheckoutUseCase(gateway, ledgerUC, userRepo, notifier, logger)
	linkerUC := usecase.NewLinkerUseCase(purchaseRepo, userRepo, gateway, activationUC, cfg.Scheduler.OrphanBatch, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, renewalRepo, logger)

	// ---- Sweeps ----
	runner := sched.NewRunner(locker, cfg.Scheduler.RunTimeout, logger)
	runner.Add(sched.NewPaymentReconciler(ledgerUC), cfg.Scheduler.ReconcileInterval)
	runner.Add(sched.NewOrphanLinker(linkerUC), cfg.Scheduler.OrphanSweepInterval)
	runner.Add(sched.NewExpiryWorker(subUC), cfg.Scheduler.ExpiryInterval)
	runner.Start(ctx)

	// ---- HTTP servers ----
	public := api.NewServer(api.Options{
		Checkout:          checkoutUC,
		Ledger:            ledgerUC,
		Linker:            linkerUC,
		Tokens:            api.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Audience),
		Limiter:           limiter,
		CheckoutPerMinute: cfg.HTTP.CheckoutPerMinute,
		PollPerMinute:     cfg.HTTP.PollPerMinute,
		WebhookSecret:     cfg.Payment.Pix.WebhookSecret,
		RequestTimeout:    cfg.HTTP.RequestTimeout,
		Dev:               cfg.Runtime.Dev,
	}, logger)
	publicSrv := api.NewHTTPServer(fmt.Sprintf(":%d", cfg.HTTP.Port), public.Routes())

	authMgr := web.NewAuthManager(cfg.Admin.APIKey, !cfg.Runtime.Dev, "", cfg.Admin.SessionTTL)
	admin := web.NewServer(ledgerUC, activationUC, subUC, runner, authMgr, cfg.Admin.APIKey, logger)
	adminSrv := api.NewHTTPServer(fmt.Sprintf(":%d", cfg.Admin.Port), admin.Handler())

	errCh := make(chan error, 2)
	for name, srv := range map[string]*http.Server{"public": publicSrv, "admin": adminSrv} {
		go func(name string, srv *http.Server) {
			logger.Info().Str("server", name).Str("addr", srv.Addr).Msg("http listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s server: %w", name, err)
			}
		}(name, srv)
	}

	// ---- Graceful shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = publicSrv.Shutdown(shutdownCtx)
	_ = adminSrv.Shutdown(shutdownCtx)

	// sweep loops exit on cancel; in-flight runs finish first
	cancel()
	runner.Wait()
	return runErr
}

func observePool(ctx context.Context, stat func() *pgxpool.Stat) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.ObservePool(stat())
		}
	}
}

func newGateway(cfg *config.Config, logger *zerolog.Logger) (adapter.PaymentGateway, error) {
	if cfg.Payment.Pix.Fake {
		logger.Warn().Msg("using fake PIX gateway")
		return payAdapters.NewFakeGateway(), nil
	}
	pix, err := payAdapters.NewPixGateway(cfg.Payment.Pix.BaseURL, cfg.Payment.Pix.AppID, cfg.Payment.Pix.Timeout, logger)
	if err != nil {
		return nil, fmt.Errorf("pix gateway: %w", err)
	}
	if cfg.Payment.TestEmailPattern == "" {
		return pix, nil
	}
	bypass, err := payAdapters.NewTestBypassGateway(pix, cfg.Payment.TestEmailPattern, cfg.Payment.TestPaymentPrefix, logger)
	if err != nil {
		return nil, fmt.Errorf("test bypass: %w", err)
	}
	return bypass, nil
}

func migrate(url string, logger *zerolog.Logger) error {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return fmt.Errorf("open migrations db: %w", err)
	}
	defer db.Close()
	if err := migrations.Up(db, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
