// Package gormdriver stores rows in a SQL database through GORM. Each entity
// maps onto its model in pkg/db/models; rows are copied in and out of model
// structs using the field layout GORM parses from those models.
package gormdriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/multierr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormschema "gorm.io/gorm/schema"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/schema"
	"github.com/angelmondragon/shopclient/pkg/db"
	"github.com/angelmondragon/shopclient/pkg/db/models"
)

type Driver struct {
	client *db.Client
	conn   *gorm.DB
	tables map[string]*table
}

var _ driver.Driver = (*Driver)(nil)

// New maps every registry entity onto its model. It fails when an entity has
// no model or a field has no column.
func New(reg *schema.Registry, client *db.Client) (*Driver, error) {
	conn := client.DB()
	byTable := make(map[string]*schema.Entity)
	for _, e := range reg.Entities() {
		byTable[e.Table] = e
	}

	d := &Driver{client: client, conn: conn, tables: make(map[string]*table)}
	parsed := &sync.Map{}
	for _, model := range models.All() {
		sch, err := gormschema.Parse(model, parsed, conn.NamingStrategy)
		if err != nil {
			return nil, fmt.Errorf("parsing model %T: %w", model, err)
		}
		e, ok := byTable[sch.Table]
		if !ok {
			continue
		}
		t, err := newTable(e, sch)
		if err != nil {
			return nil, err
		}
		d.tables[e.Name] = t
	}
	for _, e := range reg.Entities() {
		if _, ok := d.tables[e.Name]; !ok {
			return nil, fmt.Errorf("no model for entity %s (table %s)", e.Name, e.Table)
		}
	}
	return d, nil
}

func (d *Driver) table(entity string) (*table, error) {
	t, ok := d.tables[entity]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", entity)
	}
	return t, nil
}

func (d *Driver) Scan(ctx context.Context, scan driver.Scan) ([]driver.Row, error) {
	return d.scan(d.conn.WithContext(ctx), scan)
}

func (d *Driver) Insert(ctx context.Context, entity string, row driver.Row, opts driver.InsertOptions) (driver.Row, bool, error) {
	return d.insert(d.conn.WithContext(ctx), entity, row, opts)
}

func (d *Driver) Update(ctx context.Context, entity string, id int64, values driver.Row) (driver.Row, error) {
	return d.update(d.conn.WithContext(ctx), entity, id, values)
}

func (d *Driver) Delete(ctx context.Context, entity string, ids []int64) (int64, error) {
	return d.delete(d.conn.WithContext(ctx), entity, ids)
}

// Begin reserves a pooled connection, waiting at most opts.MaxWait, and opens
// the transaction on it. The connection goes back to the pool when the
// session ends.
func (d *Driver) Begin(ctx context.Context, opts driver.TxOptions) (driver.Session, error) {
	sqlDB, err := d.conn.DB()
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if opts.MaxWait > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, opts.MaxWait)
	}
	conn, err := sqlDB.Conn(waitCtx)
	cancel()
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, driver.ErrBeginTimeout
		}
		return nil, err
	}

	base := d.conn.Session(&gorm.Session{NewDB: true, Context: ctx})
	base.Statement.ConnPool = conn
	tx := base.Begin(&sql.TxOptions{Isolation: isolation(opts.Isolation)})
	if tx.Error != nil {
		return nil, multierr.Append(tx.Error, conn.Close())
	}
	return &session{driver: d, tx: tx, conn: conn}, nil
}

func (d *Driver) Close() error {
	return d.client.Close()
}

func isolation(level driver.IsolationLevel) sql.IsolationLevel {
	switch level {
	case driver.IsolationReadUncommitted:
		return sql.LevelReadUncommitted
	case driver.IsolationReadCommitted:
		return sql.LevelReadCommitted
	case driver.IsolationRepeatableRead:
		return sql.LevelRepeatableRead
	case driver.IsolationSerializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

func (d *Driver) scan(conn *gorm.DB, scan driver.Scan) ([]driver.Row, error) {
	t, err := d.table(scan.Entity)
	if err != nil {
		return nil, err
	}
	q := conn
	for _, cond := range scan.Conds {
		col, err := t.column(cond.Field)
		if err != nil {
			return nil, err
		}
		values := make([]any, 0, len(cond.Values))
		for _, v := range cond.Values {
			if v != nil {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			return nil, nil
		}
		q = q.Where(clause.IN{Column: clause.Column{Name: col}, Values: values})
	}

	dest := reflect.New(reflect.SliceOf(t.model))
	if err := q.Order(clause.OrderByColumn{Column: clause.Column{Name: idColumn}}).Find(dest.Interface()).Error; err != nil {
		return nil, t.translate(err)
	}
	list := dest.Elem()
	rows := make([]driver.Row, 0, list.Len())
	for i := range list.Len() {
		rows = append(rows, t.toRow(list.Index(i)))
	}
	return rows, nil
}

func (d *Driver) insert(conn *gorm.DB, entity string, row driver.Row, opts driver.InsertOptions) (driver.Row, bool, error) {
	t, err := d.table(entity)
	if err != nil {
		return nil, false, err
	}
	values := row.Clone()
	delete(values, idField)
	model := t.newModel()
	if err := t.assign(model, values); err != nil {
		return nil, false, err
	}

	q := conn
	if opts.OnConflictDoNothing {
		q = q.Clauses(clause.OnConflict{DoNothing: true})
	}
	res := q.Create(model.Interface())
	if res.Error != nil {
		return nil, false, t.translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	return t.toRow(model), true, nil
}

func (d *Driver) update(conn *gorm.DB, entity string, id int64, values driver.Row) (driver.Row, error) {
	t, err := d.table(entity)
	if err != nil {
		return nil, err
	}
	assignments := make(map[string]any, len(values))
	for name, v := range values {
		if name == idField {
			continue
		}
		col, err := t.column(name)
		if err != nil {
			return nil, err
		}
		assignments[col] = v
	}
	// An empty assignment list would fail in GORM; the update is then a read.
	if len(assignments) > 0 {
		res := conn.Model(t.newModel().Interface()).
			Where(clause.Eq{Column: clause.Column{Name: idColumn}, Value: id}).
			UpdateColumns(assignments)
		if res.Error != nil {
			return nil, t.translate(res.Error)
		}
	}
	return d.find(conn, t, id)
}

func (d *Driver) find(conn *gorm.DB, t *table, id int64) (driver.Row, error) {
	model := t.newModel()
	res := conn.Where(clause.Eq{Column: clause.Column{Name: idColumn}, Value: id}).Limit(1).Find(model.Interface())
	if res.Error != nil {
		return nil, t.translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, driver.ErrRowNotFound
	}
	return t.toRow(model), nil
}

func (d *Driver) delete(conn *gorm.DB, entity string, ids []int64) (int64, error) {
	t, err := d.table(entity)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	res := conn.Where(clause.IN{Column: clause.Column{Name: idColumn}, Values: values}).Delete(t.newModel().Interface())
	if res.Error != nil {
		return 0, t.translate(res.Error)
	}
	return res.RowsAffected, nil
}

type session struct {
	driver *Driver

	mu     sync.Mutex
	tx     *gorm.DB
	conn   *sql.Conn
	closed bool
}

func (s *session) with(ctx context.Context, fn func(conn *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.tx.WithContext(ctx))
}

func (s *session) Scan(ctx context.Context, scan driver.Scan) ([]driver.Row, error) {
	var rows []driver.Row
	err := s.with(ctx, func(conn *gorm.DB) error {
		var err error
		rows, err = s.driver.scan(conn, scan)
		return err
	})
	return rows, err
}

func (s *session) Insert(ctx context.Context, entity string, row driver.Row, opts driver.InsertOptions) (driver.Row, bool, error) {
	var (
		stored   driver.Row
		inserted bool
	)
	err := s.with(ctx, func(conn *gorm.DB) error {
		var err error
		stored, inserted, err = s.driver.insert(conn, entity, row, opts)
		return err
	})
	return stored, inserted, err
}

func (s *session) Update(ctx context.Context, entity string, id int64, values driver.Row) (driver.Row, error) {
	var stored driver.Row
	err := s.with(ctx, func(conn *gorm.DB) error {
		var err error
		stored, err = s.driver.update(conn, entity, id, values)
		return err
	})
	return stored, err
}

func (s *session) Delete(ctx context.Context, entity string, ids []int64) (int64, error) {
	var n int64
	err := s.with(ctx, func(conn *gorm.DB) error {
		var err error
		n, err = s.driver.delete(conn, entity, ids)
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

// finish ends the transaction once and hands the connection back. A
// rollback of a transaction database/sql already aborted is not an error.
func (s *session) finish(commit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return driver.ErrSessionClosed
	}
	s.closed = true

	var err error
	if commit {
		err = s.tx.Commit().Error
		if errors.Is(err, sql.ErrTxDone) {
			err = driver.ErrSessionClosed
		}
	} else {
		err = s.tx.Rollback().Error
		if errors.Is(err, sql.ErrTxDone) {
			err = nil
		}
	}
	return multierr.Append(err, s.conn.Close())
}
