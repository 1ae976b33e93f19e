package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Kareem-Elnokali/system-creator/internal/api"
	"github.com/Kareem-Elnokali/system-creator/internal/api/handlers"
	"github.com/Kareem-Elnokali/system-creator/internal/config"
	"github.com/Kareem-Elnokali/system-creator/internal/connection"
	"github.com/Kareem-Elnokali/system-creator/internal/db"
	"github.com/Kareem-Elnokali/system-creator/internal/metrics"
	syncsvc "github.com/Kareem-Elnokali/system-creator/internal/sync"
	"github.com/Kareem-Elnokali/system-creator/internal/verify"
	"github.com/Kareem-Elnokali/system-creator/pkg/mfa"
)

func main() {
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

	if err := db.Migrate(database, cfg.Database.MigrationsPath); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

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
	gateway := connection.NewService(repo, syncer, logger)
	verifier := verify.NewVerifier(cfg.Verify, logger)

	h := handlers.NewHandler(repo, gateway, syncer, remote, verifier, metricsCollector, logger)
	server := api.NewServer(cfg, h, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go metricsCollector.StartRemoteWrite(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("API server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
