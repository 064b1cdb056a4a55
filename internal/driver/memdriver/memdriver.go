// Package memdriver is an in-process driver holding every table in memory.
// Transactions work on a private copy of the store that replaces the shared
// one on commit. A single slot serializes transactions and standalone
// operations, which makes every transaction serializable.
package memdriver

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/schema"
)

type Driver struct {
	reg  *schema.Registry
	slot chan struct{}

	mu    sync.Mutex
	state *store
}

var _ driver.Driver = (*Driver)(nil)

func New(reg *schema.Registry) *Driver {
	return &Driver{
		reg:   reg,
		slot:  make(chan struct{}, 1),
		state: newStore(reg),
	}
}

func (d *Driver) acquire(ctx context.Context, maxWait time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var timeout <-chan time.Time
	if maxWait > 0 {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case d.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return driver.ErrBeginTimeout
	}
}

func (d *Driver) release() {
	<-d.slot
}

// standalone runs fn against the shared store while holding the slot.
func (d *Driver) standalone(ctx context.Context, fn func(s *store) error) error {
	if err := d.acquire(ctx, 0); err != nil {
		return err
	}
	defer d.release()
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d.state)
}

func (d *Driver) Scan(ctx context.Context, scan driver.Scan) ([]driver.Row, error) {
	var rows []driver.Row
	err := d.standalone(ctx, func(s *store) error {
		var err error
		rows, err = s.scan(scan)
		return err
	})
	return rows, err
}

func (d *Driver) Insert(ctx context.Context, entity string, row driver.Row, opts driver.InsertOptions) (driver.Row, bool, error) {
	var (
		stored   driver.Row
		inserted bool
	)
	err := d.standalone(ctx, func(s *store) error {
		var err error
		stored, inserted, err = s.insert(entity, row, opts)
		return err
	})
	return stored, inserted, err
}

func (d *Driver) Update(ctx context.Context, entity string, id int64, values driver.Row) (driver.Row, error) {
	var stored driver.Row
	err := d.standalone(ctx, func(s *store) error {
		var err error
		stored, err = s.update(entity, id, values)
		return err
	})
	return stored, err
}

func (d *Driver) Delete(ctx context.Context, entity string, ids []int64) (int64, error) {
	var n int64
	err := d.standalone(ctx, func(s *store) error {
		var err error
		n, err = s.delete(entity, ids)
		return err
	})
	return n, err
}

// Begin waits for the slot, bounded by opts.MaxWait and ctx. Every isolation
// level is honoured as serializable.
func (d *Driver) Begin(ctx context.Context, opts driver.TxOptions) (driver.Session, error) {
	if err := d.acquire(ctx, opts.MaxWait); err != nil {
		return nil, err
	}
	d.mu.Lock()
	work := d.state.clone()
	d.mu.Unlock()
	return &session{driver: d, work: work}, nil
}

func (d *Driver) Close() error {
	return nil
}

type session struct {
	driver *Driver

	mu     sync.Mutex
	work   *store
	closed bool
}

func (s *session) with(ctx context.Context, fn func(st *store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.work)
}

func (s *session) Scan(ctx context.Context, scan driver.Scan) ([]driver.Row, error) {
	var rows []driver.Row
	err := s.with(ctx, func(st *store) error {
		var err error
		rows, err = st.scan(scan)
		return err
	})
	return rows, err
}

func (s *session) Insert(ctx context.Context, entity string, row driver.Row, opts driver.InsertOptions) (driver.Row, bool, error) {
	var (
		stored   driver.Row
		inserted bool
	)
	err := s.with(ctx, func(st *store) error {
		var err error
		stored, inserted, err = st.insert(entity, row, opts)
		return err
	})
	return stored, inserted, err
}

func (s *session) Update(ctx context.Context, entity string, id int64, values driver.Row) (driver.Row, error) {
	var stored driver.Row
	err := s.with(ctx, func(st *store) error {
		var err error
		stored, err = st.update(entity, id, values)
		return err
	})
	return stored, err
}

func (s *session) Delete(ctx context.Context, entity string, ids []int64) (int64, error) {
	var n int64
	err := s.with(ctx, func(st *store) error {
		var err error
		n, err = st.delete(entity, ids)
		return err
	})
	return n, err
}

func (s *session) Commit(ctx context.Context) error {
	return s.finish(true)
}

func (s *session) Rollback(ctx context.Context) error {
	return s.finish(false)
}

func (s *session) finish(commit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	s.closed = true
	if commit {
		s.driver.mu.Lock()
		s.driver.state = s.work
		s.driver.mu.Unlock()
	}
	s.work = nil
	s.driver.release()
	return nil
}

func sortedIDs(rows map[int64]driver.Row) []int64 {
	ids := make([]int64, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
