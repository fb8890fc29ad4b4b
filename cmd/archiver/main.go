package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"kiosk/internal/config"
	"kiosk/internal/history"
	"kiosk/internal/store"
)

// Archiver runs one archival pass against the configured store and exits.
// Scheduling (cron, systemd timer, the tray app) lives outside the core.
func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	st, cleanup, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("store open failed", zap.Error(err))
	}
	defer cleanup()

	archiver := history.NewArchiver(st, cfg.ArchiveWindow, logger)
	archived, err := archiver.ArchiveToday(ctx)
	switch {
	case errors.Is(err, history.ErrNothingToArchive):
		logger.Info("nothing to archive")
	case err != nil:
		logger.Fatal("archive failed", zap.Error(err))
	default:
		logger.Info("archive complete", zap.Int("archived", archived))
	}
}

func openStore(cfg config.App, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case "redis":
		r := store.NewRedis(cfg.RedisAddr)
		if !r.Healthy(context.Background()) {
			logger.Warn("redis not reachable", zap.String("addr", cfg.RedisAddr))
		}
		return r, func() { _ = r.Client.Close() }, nil
	case "postgres":
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	default:
		f, err := store.NewFile(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return f, func() {}, nil
	}
}
