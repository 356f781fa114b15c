package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/npezzotti/fairshare/internal/api"
	"github.com/npezzotti/fairshare/internal/config"
	"github.com/npezzotti/fairshare/internal/database"
	"github.com/npezzotti/fairshare/internal/identity"
	"github.com/npezzotti/fairshare/internal/scheduler"
	"github.com/npezzotti/fairshare/internal/server"
	"github.com/npezzotti/fairshare/internal/service"
	"github.com/npezzotti/fairshare/internal/stats"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

const relayBufferSize = 256

func main() {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.Load(config.Flags(), os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger, cfg); err != nil {
		logger.Fatal("fatal error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Environment == config.EnvProduction {
		zcfg = zap.NewProductionConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	return zcfg.Build()
}

func openRepository(ctx context.Context, cfg *config.Config) (database.Repository, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		repo, err := database.NewPgRepository(cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if err := repo.Migrate(); err != nil {
			repo.Close(ctx)
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return repo, nil
	default:
		repo, err := database.NewMongoRepository(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := repo.EnsureIndexes(ctx); err != nil {
			repo.Close(ctx)
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return repo, nil
	}
}

func newVerifier(cfg *config.Config) identity.Verifier {
	switch cfg.AuthProvider {
	case config.AuthHMAC:
		return identity.NewHMACVerifier(cfg.SigningKey, cfg.TokenIssuer)
	case config.AuthDev:
		return identity.NewDevVerifier(cfg.DevUID, cfg.DevEmail, cfg.DevName)
	default:
		return identity.NewFirebaseVerifier(cfg.FirebaseProjectID, cfg.FirebaseCertsURL)
	}
}

func run(logger *zap.Logger, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	repo, err := openRepository(startCtx, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("db open: %w", err)
	}

	svc := service.New(logger, repo)
	err = svc.MigrateLegacyResources(startCtx)
	cancel()
	if err != nil {
		repo.Close(context.Background())
		return fmt.Errorf("migrate legacy resources: %w", err)
	}

	if cfg.AuthProvider == config.AuthDev {
		logger.Warn("dev auth provider enabled, every request is authenticated as the dev user",
			zap.String("uid", cfg.DevUID))
	}
	resolver := identity.NewResolver(logger, newVerifier(cfg), repo)

	statsUpdater := stats.NewStatsUpdater()
	statsUpdater.Run()
	defer statsUpdater.Stop()

	relay := server.NewLocalRelay(logger, relayBufferSize)
	chatServer, err := server.NewChatServer(logger, svc, relay, statsUpdater, server.Limits{
		SendRate:  rate.Limit(cfg.ChatSendRate),
		SendBurst: cfg.ChatSendBurst,
	})
	if err != nil {
		relay.Close()
		repo.Close(context.Background())
		return fmt.Errorf("new chat server: %w", err)
	}
	go chatServer.Run()

	sched, err := scheduler.New(logger, svc, cfg.ChoreSweepSchedule)
	if err != nil {
		relay.Close()
		repo.Close(context.Background())
		return fmt.Errorf("new scheduler: %w", err)
	}
	sched.Start()

	app := api.NewApp(logger, cfg, svc, chatServer, relay, resolver, statsUpdater)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("server stopped", zap.Error(serveErr))
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	var errs []error
	if err := app.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
	}

	logger.Info("shutting down chat server")
	if err := chatServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("chat server shutdown: %w", err))
	}
	relay.Close()

	if err := repo.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("db close: %w", err))
	}

	return errors.Join(append([]error{serveErr}, errs...)...)
}
