package engine

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/shopclient/internal/driver"
	pkgerrors "github.com/angelmondragon/shopclient/pkg/errors"
)

// run executes one operation. Inside a transaction it uses the session;
// otherwise reads go to the driver and writes run in an implicit
// transaction. precheck is a validation error found before any I/O.
func run[T any](c *Client, ctx context.Context, entity, operation string, write bool, precheck error, fn func(ctx context.Context, exec driver.Executor) (T, error)) (T, error) {
	start := time.Now()
	ctx = c.logg.WithOperation(c.logg.WithEntity(ctx, entity), operation)

	var (
		out T
		err = precheck
	)
	if err == nil {
		switch {
		case c.tx != nil:
			ctx = c.logg.WithTxID(ctx, c.tx.id)
			out, err = inSession(ctx, c.tx, fn)
		case write:
			out, err = implicit(c, ctx, fn)
		default:
			out, err = fn(ctx, c.drv)
		}
	}
	err = classify(err)
	c.observe(ctx, entity, operation, time.Since(start), err)
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// implicit wraps a standalone write in its own transaction so multi-step
// writes are atomic.
func implicit[T any](c *Client, ctx context.Context, fn func(ctx context.Context, exec driver.Executor) (T, error)) (T, error) {
	var zero T
	session, err := c.drv.Begin(ctx, driver.TxOptions{
		Isolation: c.defaults.IsolationLevel,
		MaxWait:   c.defaults.MaxWait,
	})
	if err != nil {
		return zero, beginError(err)
	}
	exec := newTrackingExecutor(session)
	out, err := fn(ctx, exec)
	if err != nil {
		c.metrics.IncTransaction(modeImplicit, outcomeRollback)
		return zero, rollback(ctx, session, err)
	}
	if err := session.Commit(ctx); err != nil {
		c.metrics.IncTransaction(modeImplicit, outcomeRollback)
		return zero, pkgerrors.Wrap(pkgerrors.CodeUnknownRequest, err, "commit failed")
	}
	c.metrics.IncTransaction(modeImplicit, outcomeCommit)
	c.invalidate(ctx, exec.touched)
	return out, nil
}

func (c *Client) observe(ctx context.Context, entity, operation string, elapsed time.Duration, err error) {
	c.metrics.ObserveDuration(entity, operation, elapsed)
	if err == nil {
		c.metrics.IncSuccess(entity, operation)
		c.logg.Debug(ctx, "operation completed", map[string]any{"duration_ms": elapsed.Milliseconds()})
		return
	}
	code := pkgerrors.CodeOf(err)
	c.metrics.IncFailure(entity, operation, string(code))
	switch code {
	case pkgerrors.CodeUnknownRequest, pkgerrors.CodeInitialization:
		c.logg.Error(ctx, "operation failed", err)
	case pkgerrors.CodeConstraint, pkgerrors.CodeTxTimeout, pkgerrors.CodeTxClosed:
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "operation rejected")
	default:
		c.logg.Debug(ctx, "operation rejected", map[string]any{"error": err.Error(), "code": string(code)})
	}
}

// classify gives every error leaving the engine a code. Driver failures
// the engine cannot interpret become UNKNOWN_REQUEST.
func classify(err error) error {
	if err == nil || pkgerrors.As(err) != nil {
		return err
	}
	var ce *driver.ConstraintError
	switch {
	case errors.As(err, &ce):
		fields := ce.Fields
		if fields == nil {
			fields = []string{}
		}
		return pkgerrors.Wrap(pkgerrors.CodeConstraint, err, "unique constraint failed").WithDetails(map[string]any{
			"constraint": ce.Constraint,
			"fields":     fields,
			"kind":       "unique",
		})
	case errors.Is(err, driver.ErrSessionClosed):
		return pkgerrors.Wrap(pkgerrors.CodeTxClosed, err, "transaction already closed")
	case errors.Is(err, driver.ErrBeginTimeout), errors.Is(err, context.DeadlineExceeded):
		return pkgerrors.Wrap(pkgerrors.CodeTxTimeout, err, "transaction timed out")
	}
	return pkgerrors.Wrap(pkgerrors.CodeUnknownRequest, err, "driver request failed")
}

func beginError(err error) error {
	if errors.Is(err, driver.ErrBeginTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeTxTimeout, err, "could not begin transaction within maxWait")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInitialization, err, "could not begin transaction")
}
