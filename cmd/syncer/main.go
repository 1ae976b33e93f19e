package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Kareem-Elnokali/system-creator/internal/config"
	"github.com/Kareem-Elnokali/system-creator/internal/db"
	"github.com/Kareem-Elnokali/system-creator/internal/metrics"
	syncsvc "github.com/Kareem-Elnokali/system-creator/internal/sync"
	"github.com/Kareem-Elnokali/system-creator/pkg/mfa"
)

// The syncer runs one batch pass over all active tenants and exits, which
// suits cron. With --loop it stays up and repeats on the configured interval.
func main() {
	loop := flag.Bool("loop", false, "keep running and sync on the configured interval")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	database, err := db.NewConnection(cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	repo := db.NewRepository(database)
	metricsCollector := metrics.NewCollector(cfg.Metrics, logger)

	var remote mfa.RemoteService
	if cfg.MFA.OfflineMode {
		logger.Warn("MFA offline mode enabled, serving synthetic statistics")
		remote = mfa.NewOfflineClient(logger)
	} else {
		remote = mfa.NewClient(cfg.MFA, repo, metricsCollector, logger)
	}

	syncer := syncsvc.NewService(repo, remote, metricsCollector, logger, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("Shutting down syncer...")
		cancel()
	}()

	go metricsCollector.StartRemoteWrite(ctx)

	runOnce(ctx, syncer, logger)

	if *loop {
		ticker := time.NewTicker(cfg.Sync.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("Syncer stopped")
				return
			case <-ticker.C:
				runOnce(ctx, syncer, logger)
			}
		}
	}
}

func runOnce(ctx context.Context, syncer *syncsvc.Service, logger *zap.Logger) {
	result, err := syncer.SyncAllActive(ctx)
	if err != nil {
		logger.Error("Batch sync failed", zap.Error(err))
		return
	}

	logger.Info("Batch sync finished",
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Strings("errors", result.Errors),
	)
}
