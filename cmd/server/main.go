package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ravitejakamalapuram/copytradepro/internal/config"
	"github.com/ravitejakamalapuram/copytradepro/internal/di"
	"github.com/ravitejakamalapuram/copytradepro/internal/scheduler"
	"github.com/ravitejakamalapuram/copytradepro/internal/server"
	"github.com/ravitejakamalapuram/copytradepro/internal/version"
	"github.com/ravitejakamalapuram/copytradepro/pkg/logger"
)

func main() {
	// Load configuration first; the log level comes from it
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info"})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("version", version.Version).
		Str("data_dir", cfg.DataDir).
		Msg("Starting CopyTradePro")

	// Scheduler is created before wiring so jobs can be registered during it
	sched := scheduler.New(log)

	container, err := di.Wire(cfg, sched, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
