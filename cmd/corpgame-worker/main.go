package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Egg3901/corpgame-sub004/internal/app"
	"github.com/Egg3901/corpgame-sub004/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("CORPGAME_CONFIG"))
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	if cfg.RunOnce {
		if err := tick(ctx, a); err != nil {
			logger.Error("tick failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	logger.Info("worker started", "tick_every", cfg.TickInterval.String(), "quarter", cfg.QuarterDuration.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := tick(ctx, a); err != nil {
				logger.Error("tick failed", "err", err)
			}
		}
	}
}

// tick resolves expired proposals, then runs the turn for the current period.
// Run skips already-processed corporations, so ticking more often than the
// quarter span is harmless.
func tick(ctx context.Context, a *app.App) error {
	if _, err := a.Gov.ResolveDue(ctx); err != nil {
		return err
	}
	_, err := a.Turns.Run(ctx, a.Clock.CurrentPeriod())
	return err
}
