// Package main renders frames without a window and writes them as PNG files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-render/internal/config"
	"github.com/Faultbox/midgard-render/internal/headless"
	"github.com/Faultbox/midgard-render/internal/logger"
)

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths, err := headless.Run(ctx, cfg)
	if err != nil {
		logger.Fatal("headless render failed", zap.Error(err), zap.Int("written", len(paths)))
	}
	logger.Info("headless render finished", zap.Int("frames", len(paths)), zap.String("dir", cfg.Output.ScreenshotDir))
}
