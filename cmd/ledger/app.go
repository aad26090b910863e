package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/boddenberg/bank-ledger/internal/config"
	"github.com/boddenberg/bank-ledger/internal/infra/cache"
	"github.com/boddenberg/bank-ledger/internal/infra/filestore"
	"github.com/boddenberg/bank-ledger/internal/infra/observability"
	"github.com/boddenberg/bank-ledger/internal/infra/resilience"
	"github.com/boddenberg/bank-ledger/internal/infra/security"
	"github.com/boddenberg/bank-ledger/internal/infra/sqlite"
	"github.com/boddenberg/bank-ledger/internal/port"
	"github.com/boddenberg/bank-ledger/internal/service"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// app holds the wired services for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	ledger   *service.LedgerService
	auth     *service.AuthService
	exporter *service.Exporter
	stats    *service.StatsService

	closers []func() error
}

// newApp wires configuration, observability, storage and services, then
// loads both stores concurrently.
func newApp(ctx context.Context, configPath string) (*app, error) {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFile)
	a := &app{cfg: cfg, logger: logger}

	logger.Info("configuration loaded",
		zap.String("backend", cfg.Backend),
		zap.String("log_level", cfg.LogLevel),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff.Duration),
		zap.Duration("session_ttl", cfg.SessionTTL.Duration),
		zap.Bool("tracing", cfg.OTLPEndpoint != ""),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "bank-ledger")
	if err != nil {
		logger.Error("failed to init tracer", zap.Error(err))
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(ctx)
	})

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff.Duration,
	}
	breakers := resilience.NewBreakers(cfg.Backend)

	// --- Storage ---
	var (
		ledgerStore     port.LedgerStore
		credentialStore port.CredentialStore
	)
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLitePath, breakers, resilienceCfg, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		ledgerStore, credentialStore = db, db
		logger.Info("using sqlite backend", zap.String("path", cfg.SQLitePath))
	default:
		fs := filestore.NewStore(cfg.LedgerFile, cfg.UsersFile, breakers, resilienceCfg, logger)
		ledgerStore, credentialStore = fs, fs
		logger.Info("using file backend",
			zap.String("ledger_file", cfg.LedgerFile),
			zap.String("users_file", cfg.UsersFile),
		)
	}

	// --- Services ---
	revoked := cache.New[time.Time](cfg.SessionTTL.Duration)
	a.closers = append(a.closers, func() error { revoked.Close(); return nil })

	a.ledger = service.NewLedgerService(ledgerStore, metrics, logger)
	a.auth = service.NewAuthService(
		credentialStore,
		security.NewBcryptHasher(cfg.BcryptCost),
		revoked,
		cfg.SessionSecret,
		cfg.SessionTTL.Duration,
		metrics,
		logger,
	)
	a.exporter = service.NewExporter(a.ledger, logger)
	a.stats = service.NewStatsService(a.ledger, a.auth, metrics)

	// --- Load both stores ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.ledger.Load(gctx) })
	g.Go(func() error { return a.auth.Load(gctx) })
	if err := g.Wait(); err != nil {
		logger.Error("startup load failed", zap.Error(err))
		a.close()
		return nil, err
	}
	return a, nil
}

// exportPath resolves the configured export file.
func (a *app) exportPath() string {
	return filepath.Clean(a.cfg.ExportFile)
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
