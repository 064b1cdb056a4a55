package memdriver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/schema"
)

func newDriver(t *testing.T) *Driver {
	t.Helper()
	return New(schema.MustBuild())
}

func shopRow(name string) driver.Row {
	return driver.Row{"name": name, "type": "cafe", "latitude": 1.0, "longitude": 2.0}
}

func TestInsertAssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	d := newDriver(t)

	first, ok, err := d.Insert(ctx, schema.EntityShop, shopRow("a"), driver.InsertOptions{})
	require.NoError(t, err)
	require.True(t, ok)
	second, _, err := d.Insert(ctx, schema.EntityShop, shopRow("b"), driver.InsertOptions{})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID())
	assert.Equal(t, int64(2), second.ID())
	assert.Nil(t, first["createdAt"], "missing fields are stored as null")
}

func TestUniqueViolationAndSkip(t *testing.T) {
	ctx := context.Background()
	d := newDriver(t)

	_, _, err := d.Insert(ctx, schema.EntityShop, shopRow("a"), driver.InsertOptions{})
	require.NoError(t, err)

	_, _, err = d.Insert(ctx, schema.EntityShop, shopRow("a"), driver.InsertOptions{})
	require.ErrorIs(t, err, driver.ErrUniqueViolation)
	var cerr *driver.ConstraintError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "Shop_name_key", cerr.Constraint)
	assert.Equal(t, []string{"name"}, cerr.Fields)

	row, inserted, err := d.Insert(ctx, schema.EntityShop, shopRow("a"), driver.InsertOptions{OnConflictDoNothing: true})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Nil(t, row)
}

func TestNullMembersNeverConflict(t *testing.T) {
	ctx := context.Background()
	d := newDriver(t)
	row := driver.Row{"handle": nil}
	_, _, err := d.Insert(ctx, schema.EntitySession, row, driver.InsertOptions{})
	require.NoError(t, err)
	_, _, err = d.Insert(ctx, schema.EntitySession, row, driver.InsertOptions{})
	require.NoError(t, err)
}

func TestScanConditions(t *testing.T) {
	ctx := context.Background()
	d := newDriver(t)
	for _, name := range []string{"a", "b", "c"} {
		_, _, err := d.Insert(ctx, schema.EntityShop, shopRow(name), driver.InsertOptions{})
		require.NoError(t, err)
	}

	rows, err := d.Scan(ctx, driver.Scan{Entity: schema.EntityShop, Conds: []driver.Cond{{Field: "name", Values: []any{"c", "a"}}}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0]["name"])
	assert.Equal(t, "c", rows[1]["name"])

	rows, err = d.Scan(ctx, driver.Scan{Entity: schema.EntityShop, Conds: []driver.Cond{{Field: "name"}}})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	d := newDriver(t)
	a, _, _ := d.Insert(ctx, schema.EntityShop, shopRow("a"), driver.InsertOptions{})
	_, _, _ = d.Insert(ctx, schema.EntityShop, shopRow("b"), driver.InsertOptions{})

	updated, err := d.Update(ctx, schema.EntityShop, a.ID(), driver.Row{"type": "bar"})
	require.NoError(t, err)
	assert.Equal(t, "bar", updated["type"])
	assert.Equal(t, "a", updated["name"])

	_, err = d.Update(ctx, schema.EntityShop, a.ID(), driver.Row{"name": "b"})
	require.ErrorIs(t, err, driver.ErrUniqueViolation)

	_, err = d.Update(ctx, schema.EntityShop, 99, driver.Row{"type": "bar"})
	require.ErrorIs(t, err, driver.ErrRowNotFound)

	n, err := d.Delete(ctx, schema.EntityShop, []int64{a.ID(), 99})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSessionCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	d := newDriver(t)

	sess, err := d.Begin(ctx, driver.TxOptions{})
	require.NoError(t, err)
	_, _, err = sess.Insert(ctx, schema.EntityShop, shopRow("rolled"), driver.InsertOptions{})
	require.NoError(t, err)
	require.NoError(t, sess.Rollback(ctx))

	_, err = sess.Scan(ctx, driver.Scan{Entity: schema.EntityShop})
	require.ErrorIs(t, err, driver.ErrSessionClosed)

	sess, err = d.Begin(ctx, driver.TxOptions{})
	require.NoError(t, err)
	_, _, err = sess.Insert(ctx, schema.EntityShop, shopRow("kept"), driver.InsertOptions{})
	require.NoError(t, err)
	require.NoError(t, sess.Commit(ctx))

	rows, err := d.Scan(ctx, driver.Scan{Entity: schema.EntityShop})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "kept", rows[0]["name"])
}

func TestBeginHonoursMaxWait(t *testing.T) {
	ctx := context.Background()
	d := newDriver(t)

	held, err := d.Begin(ctx, driver.TxOptions{})
	require.NoError(t, err)

	_, err = d.Begin(ctx, driver.TxOptions{MaxWait: 20 * time.Millisecond})
	require.ErrorIs(t, err, driver.ErrBeginTimeout)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = d.Scan(waitCtx, driver.Scan{Entity: schema.EntityShop})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, held.Commit(ctx))
	_, err = d.Scan(ctx, driver.Scan{Entity: schema.EntityShop})
	require.NoError(t, err)
}
