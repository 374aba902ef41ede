package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/coldbell/signalpool/internal/config"
	"github.com/coldbell/signalpool/internal/crank"
	"github.com/coldbell/signalpool/internal/logging"
)

func main() {
	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(bootstrapLogger); err != nil {
		bootstrapLogger.Error("crank exited", "err", err)
		os.Exit(1)
	}
}

// run reports failures through bootstrapLogger once the service logger is gone.
func run(bootstrapLogger *slog.Logger) error {
	cfg, err := config.LoadCrankConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLogger, err := logging.New("crank", cfg.Log)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer closeWith(bootstrapLogger, closeLogger)

	if source, err := config.CurrentConfigSource(); err == nil {
		logger.Info("configuration loaded", "phase", source.Phase, "path", source.Path, "loaded", source.Loaded)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := crank.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize crank: %w", err)
	}
	return svc.Run(ctx)
}

func closeWith(logger *slog.Logger, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Error("failed to close logger", "err", err)
	}
}
