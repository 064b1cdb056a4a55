// Package engine is the entry point of the query engine: a Client with one
// Delegate per public entity, batch and interactive transactions, and the
// metrics, logging and caching wrapped around every operation.
package engine

import (
	"context"
	"time"

	"github.com/angelmondragon/shopclient/internal/aggregate"
	"github.com/angelmondragon/shopclient/internal/cache"
	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/loader"
	"github.com/angelmondragon/shopclient/internal/mutation"
	"github.com/angelmondragon/shopclient/internal/schema"
	"github.com/angelmondragon/shopclient/pkg/config"
	pkgerrors "github.com/angelmondragon/shopclient/pkg/errors"
	"github.com/angelmondragon/shopclient/pkg/logger"
	"github.com/angelmondragon/shopclient/pkg/metrics"
)

const (
	defaultMaxWait = 2 * time.Second
	defaultTimeout = 5 * time.Second
)

// TxOptions configure a transaction. Zero values fall back to the client
// defaults.
type TxOptions struct {
	// MaxWait bounds how long beginning the transaction may block.
	MaxWait time.Duration
	// Timeout bounds the interactive callback.
	Timeout        time.Duration
	IsolationLevel driver.IsolationLevel
}

// TxOptionsFromConfig converts the engine configuration into transaction
// defaults.
func TxOptionsFromConfig(cfg config.EngineConfig) (TxOptions, error) {
	level, err := driver.ParseIsolationLevel(cfg.IsolationLevel)
	if err != nil {
		return TxOptions{}, pkgerrors.Wrap(pkgerrors.CodeInitialization, err, "invalid transaction isolation level")
	}
	return TxOptions{MaxWait: cfg.TxMaxWait, Timeout: cfg.TxTimeout, IsolationLevel: level}, nil
}

func (o TxOptions) withDefaults(d TxOptions) TxOptions {
	if o.MaxWait <= 0 {
		o.MaxWait = d.MaxWait
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.IsolationLevel == driver.IsolationDefault {
		o.IsolationLevel = d.IsolationLevel
	}
	return o
}

// Params configure a Client.
type Params struct {
	Registry *schema.Registry
	Driver   driver.Driver
	// Cache is optional; without it findUnique always reads the driver.
	Cache    *cache.Cache
	Metrics  *metrics.OperationMetrics
	Logger   *logger.Logger
	Defaults TxOptions
	// Clock overrides the time source used for createdAt and updatedAt.
	Clock func() time.Time
}

// Client runs operations against a driver. A Client returned to a
// transaction callback is bound to that transaction's session.
type Client struct {
	reg      *schema.Registry
	drv      driver.Driver
	loader   *loader.Loader
	agg      *aggregate.Aggregator
	mut      *mutation.Executor
	cache    *cache.Cache
	metrics  *metrics.OperationMetrics
	logg     *logger.Logger
	defaults TxOptions

	tx        *txState
	delegates map[string]*Delegate
}

// New builds a client. The registry and driver are required.
func New(params Params) (*Client, error) {
	if params.Registry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInitialization, "schema registry required")
	}
	if params.Driver == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInitialization, "storage driver required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	l := loader.New(params.Registry)
	mut := mutation.New(l)
	if params.Clock != nil {
		mut.WithClock(params.Clock)
	}
	c := &Client{
		reg:     params.Registry,
		drv:     params.Driver,
		loader:  l,
		agg:     aggregate.New(l),
		mut:     mut,
		cache:   params.Cache,
		metrics: params.Metrics,
		logg:    logg,
		defaults: params.Defaults.withDefaults(TxOptions{
			MaxWait: defaultMaxWait,
			Timeout: defaultTimeout,
		}),
	}
	c.delegates = c.buildDelegates()
	return c, nil
}

func (c *Client) buildDelegates() map[string]*Delegate {
	out := map[string]*Delegate{}
	for _, e := range c.reg.Public() {
		out[e.Name] = &Delegate{c: c, entity: e}
	}
	return out
}

// withTx returns a copy of c bound to st.
func (c *Client) withTx(st *txState) *Client {
	clone := *c
	clone.tx = st
	clone.delegates = clone.buildDelegates()
	return &clone
}

// Registry returns the schema the client was built with.
func (c *Client) Registry() *schema.Registry {
	return c.reg
}

// InTransaction reports whether c is bound to a transaction.
func (c *Client) InTransaction() bool {
	return c.tx != nil
}

// Close releases the driver. It must not be called on a transaction-bound
// client.
func (c *Client) Close() error {
	if c.tx != nil {
		return pkgerrors.New(pkgerrors.CodeTxClosed, "cannot close the driver from inside a transaction")
	}
	if err := c.drv.Close(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnknownRequest, err, "close driver")
	}
	return nil
}

// Delegate returns the delegate of a public entity.
func (c *Client) Delegate(entity string) (*Delegate, error) {
	d, ok := c.delegates[entity]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown model %q", entity).
			WithDetails(map[string]any{"entity": entity, "field": "", "reason": "unknown model"})
	}
	return d, nil
}

func (c *Client) Shop() *Delegate { return c.delegates[schema.EntityShop] }

func (c *Client) Brand() *Delegate { return c.delegates[schema.EntityBrand] }

func (c *Client) User() *Delegate { return c.delegates[schema.EntityUser] }

func (c *Client) Session() *Delegate { return c.delegates[schema.EntitySession] }

func (c *Client) Token() *Delegate { return c.delegates[schema.EntityToken] }

func (c *Client) UserBrand() *Delegate { return c.delegates[schema.EntityUserBrand] }

func (c *Client) UserShop() *Delegate { return c.delegates[schema.EntityUserShop] }

func (c *Client) Review() *Delegate { return c.delegates[schema.EntityReview] }

// invalidate drops cached reads of every entity written by a committed
// unit of work.
func (c *Client) invalidate(ctx context.Context, touched map[string]bool) {
	if c.cache == nil || len(touched) == 0 {
		return
	}
	names := make([]string, 0, len(touched))
	for name := range touched {
		names = append(names, name)
	}
	c.cache.Invalidate(ctx, names...)
}
