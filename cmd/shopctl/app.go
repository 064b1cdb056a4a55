package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/shopclient/internal/cache"
	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/driver/gormdriver"
	"github.com/angelmondragon/shopclient/internal/driver/memdriver"
	"github.com/angelmondragon/shopclient/internal/engine"
	"github.com/angelmondragon/shopclient/internal/schema"
	"github.com/angelmondragon/shopclient/pkg/config"
	"github.com/angelmondragon/shopclient/pkg/db"
	pkgerrors "github.com/angelmondragon/shopclient/pkg/errors"
	"github.com/angelmondragon/shopclient/pkg/logger"
	"github.com/angelmondragon/shopclient/pkg/metrics"
	"github.com/angelmondragon/shopclient/pkg/redis"
	"github.com/angelmondragon/shopclient/pkg/security"
)

// app is everything a command needs, opened per invocation.
type app struct {
	cfg       *config.Config
	logg      *logger.Logger
	client    *engine.Client
	db        *db.Client
	redis     *redis.Client
	registry  *prometheus.Registry
	passwords security.ArgonParams
}

type opener func(ctx context.Context) (*app, error)

func openApp(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*app, error) {
	reg, err := schema.Build()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInitialization, err, "invalid schema")
	}
	defaults, err := engine.TxOptionsFromConfig(cfg.Engine)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logg:      logg,
		registry:  prometheus.NewRegistry(),
		passwords: security.ParamsFromConfig(cfg.Password),
	}

	var drv driver.Driver
	switch cfg.DB.Driver {
	case config.DriverMemory:
		drv = memdriver.New(reg)
	default:
		if a.db, err = db.New(ctx, cfg.DB, logg); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInitialization, err, "failed to bootstrap database")
		}
		if drv, err = gormdriver.New(reg, a.db); err != nil {
			_ = a.db.Close()
			return nil, pkgerrors.Wrap(pkgerrors.CodeInitialization, err, "failed to map models")
		}
	}

	var resultCache *cache.Cache
	if cfg.Redis.Enabled {
		if a.redis, err = redis.New(ctx, cfg.Redis, logg); err != nil {
			_ = drv.Close()
			return nil, pkgerrors.Wrap(pkgerrors.CodeInitialization, err, "failed to bootstrap redis")
		}
		resultCache = cache.New(a.redis, cfg.Engine.CacheTTL, logg)
	}

	a.client, err = engine.New(engine.Params{
		Registry: reg,
		Driver:   drv,
		Cache:    resultCache,
		Metrics:  metrics.NewOperationMetrics(a.registry),
		Logger:   logg,
		Defaults: defaults,
	})
	if err != nil {
		return nil, multierr.Append(err, a.closeTransport(drv))
	}
	return a, nil
}

func (a *app) closeTransport(drv driver.Driver) error {
	err := drv.Close()
	if a.redis != nil {
		err = multierr.Append(err, a.redis.Close())
	}
	return err
}

// Close releases the engine, and with it the database, then redis.
func (a *app) Close() error {
	err := a.client.Close()
	if a.redis != nil {
		err = multierr.Append(err, a.redis.Close())
	}
	return err
}
