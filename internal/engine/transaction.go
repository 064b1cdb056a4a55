package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/shopclient/internal/driver"
	pkgerrors "github.com/angelmondragon/shopclient/pkg/errors"
)

const (
	modeBatch       = "batch"
	modeInteractive = "interactive"
	modeImplicit    = "implicit"

	outcomeCommit   = "commit"
	outcomeRollback = "rollback"
	outcomeTimeout  = "timeout"
)

var errTxTimeout = errors.New("transaction timeout elapsed")

// TxFunc is the callback of an interactive transaction. Every operation it
// issues through tx runs on the transaction's session.
type TxFunc func(ctx context.Context, tx *Client) error

// Operation is one entry of a batch transaction.
type Operation func(ctx context.Context, tx *Client) (any, error)

// txState is the session shared by a transaction-bound client. mu
// serializes operations and the final commit or rollback.
type txState struct {
	id   string
	ctx  context.Context
	exec *trackingExecutor

	mu      sync.Mutex
	session driver.Session
	closed  bool
}

func inSession[T any](ctx context.Context, st *txState, fn func(ctx context.Context, exec driver.Executor) (T, error)) (T, error) {
	var zero T
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed || st.ctx.Err() != nil {
		return zero, pkgerrors.New(pkgerrors.CodeTxClosed, "transaction already closed").
			WithDetails(map[string]any{"tx_id": st.id})
	}
	return fn(ctx, st.exec)
}

// finish commits or rolls back once; later calls report done false.
func (st *txState) finish(ctx context.Context, commit bool) (done bool, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return false, nil
	}
	st.closed = true
	if commit {
		return true, st.session.Commit(ctx)
	}
	return true, st.session.Rollback(ctx)
}

// Transaction runs ops in order inside one transaction and returns their
// results. Any failure discards the whole batch.
func (c *Client) Transaction(ctx context.Context, ops ...Operation) ([]any, error) {
	results := make([]any, 0, len(ops))
	err := c.transact(ctx, modeBatch, c.defaults, false, func(ctx context.Context, tx *Client) error {
		for _, op := range ops {
			out, err := op(ctx, tx)
			if err != nil {
				return err
			}
			results = append(results, out)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// InteractiveTransaction runs fn inside a transaction. maxWait bounds
// beginning it and timeout bounds fn; when the timeout elapses the
// transaction is rolled back at once, operations still issued on tx fail
// with TRANSACTION_CLOSED and the call returns TRANSACTION_TIMEOUT.
func (c *Client) InteractiveTransaction(ctx context.Context, fn TxFunc, opts TxOptions) error {
	return c.transact(ctx, modeInteractive, opts.withDefaults(c.defaults), true, fn)
}

func (c *Client) transact(ctx context.Context, mode string, opts TxOptions, timed bool, fn TxFunc) error {
	if c.tx != nil {
		return fn(ctx, c)
	}

	session, err := c.drv.Begin(ctx, driver.TxOptions{Isolation: opts.IsolationLevel, MaxWait: opts.MaxWait})
	if err != nil {
		err = beginError(err)
		c.metrics.IncTransaction(mode, outcomeTimeout)
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "transaction not started")
		return err
	}

	var (
		txCtx  context.Context
		cancel context.CancelFunc
	)
	if timed {
		txCtx, cancel = context.WithTimeoutCause(ctx, opts.Timeout, errTxTimeout)
	} else {
		txCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	st := &txState{
		id:      uuid.NewString(),
		ctx:     txCtx,
		exec:    newTrackingExecutor(session),
		session: session,
	}
	txCtx = c.logg.WithTxID(txCtx, st.id)
	c.logg.Debug(txCtx, "transaction started", map[string]any{"mode": mode, "isolation": string(opts.IsolationLevel)})

	stop := context.AfterFunc(txCtx, func() {
		if done, rbErr := st.finish(context.WithoutCancel(ctx), false); done && rbErr != nil {
			c.logg.Error(txCtx, "rollback after abort failed", rbErr)
		}
	})

	defer func() {
		if p := recover(); p != nil {
			stop()
			_, _ = st.finish(context.WithoutCancel(ctx), false)
			c.metrics.IncTransaction(mode, outcomeRollback)
			panic(p)
		}
	}()

	fnErr := fn(txCtx, c.withTx(st))

	if !stop() {
		// The context ended before fn returned: the session is being or
		// has been rolled back by the abort hook.
		_, _ = st.finish(context.WithoutCancel(ctx), false)
		if errors.Is(context.Cause(txCtx), errTxTimeout) {
			c.metrics.IncTransaction(mode, outcomeTimeout)
			c.logg.Warn(txCtx, "transaction timed out and was rolled back")
			return pkgerrors.Newf(pkgerrors.CodeTxTimeout, "transaction exceeded its timeout of %s", opts.Timeout).
				WithDetails(map[string]any{"tx_id": st.id, "timeout": opts.Timeout.String()})
		}
		c.metrics.IncTransaction(mode, outcomeRollback)
		return pkgerrors.Wrap(pkgerrors.CodeUnknownRequest, multierr.Append(fnErr, ctx.Err()), "transaction cancelled")
	}

	if fnErr != nil {
		_, rbErr := st.finish(ctx, false)
		c.metrics.IncTransaction(mode, outcomeRollback)
		c.logg.Warn(c.logg.WithField(txCtx, "error", fnErr.Error()), "transaction rolled back")
		return multierr.Append(fnErr, rbErr)
	}

	if _, err := st.finish(ctx, true); err != nil {
		c.metrics.IncTransaction(mode, outcomeRollback)
		return classify(err)
	}
	c.metrics.IncTransaction(mode, outcomeCommit)
	c.invalidate(ctx, st.exec.touched)
	c.logg.Debug(txCtx, "transaction committed", map[string]any{"mode": mode})
	return nil
}

// rollback discards session after cause and keeps cause as the reported
// error.
func rollback(ctx context.Context, session driver.Session, cause error) error {
	return multierr.Append(cause, session.Rollback(ctx))
}

// trackingExecutor records which entities a unit of work wrote so their
// cached reads can be dropped after commit.
type trackingExecutor struct {
	driver.Executor
	touched map[string]bool
}

func newTrackingExecutor(exec driver.Executor) *trackingExecutor {
	return &trackingExecutor{Executor: exec, touched: map[string]bool{}}
}

func (t *trackingExecutor) Insert(ctx context.Context, entity string, row driver.Row, opts driver.InsertOptions) (driver.Row, bool, error) {
	t.touched[entity] = true
	return t.Executor.Insert(ctx, entity, row, opts)
}

func (t *trackingExecutor) Update(ctx context.Context, entity string, id int64, values driver.Row) (driver.Row, error) {
	t.touched[entity] = true
	return t.Executor.Update(ctx, entity, id, values)
}

func (t *trackingExecutor) Delete(ctx context.Context, entity string, ids []int64) (int64, error) {
	t.touched[entity] = true
	return t.Executor.Delete(ctx, entity, ids)
}
