package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/shopclient/pkg/config"
	pkgerrors "github.com/angelmondragon/shopclient/pkg/errors"
	"github.com/angelmondragon/shopclient/pkg/logger"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "shopctl", Output: os.Stderr})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "shopctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"driver": cfg.DB.Driver,
	})

	root := newRootCmd(func(ctx context.Context) (*app, error) {
		return openApp(ctx, cfg, logg)
	})
	if err := root.ExecuteContext(ctx); err != nil {
		logg.Error(logg.WithField(ctx, "dump", pkgerrors.Dump(err)), "command failed", err)
		os.Exit(1)
	}
}
