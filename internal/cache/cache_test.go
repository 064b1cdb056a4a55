package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
	"github.com/angelmondragon/shopclient/pkg/logger"
	"github.com/angelmondragon/shopclient/pkg/redis"
)

type memoryStore struct {
	data map[string]string
	fail error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	if s.fail != nil {
		return "", s.fail
	}
	v, ok := s.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	if s.fail != nil {
		return s.fail
	}
	s.data[key] = fmt.Sprint(value)
	return nil
}

func (s *memoryStore) Incr(_ context.Context, key string) (int64, error) {
	if s.fail != nil {
		return 0, s.fail
	}
	n, _ := strconv.ParseInt(s.data[key], 10, 64)
	n++
	s.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (s *memoryStore) QueryKey(entity string, version int64, hash string) string {
	return fmt.Sprintf("q:%s:v%d:%s", entity, version, hash)
}

func (s *memoryStore) VersionKey(entity string) string {
	return "v:" + entity
}

func userEntity(t *testing.T) *schema.Entity {
	t.Helper()
	e, ok := schema.MustBuild().Entity(schema.EntityUser)
	require.True(t, ok)
	return e
}

// save caches rec the way a reader does after a miss.
func save(ctx context.Context, c *Cache, entity *schema.Entity, where query.UniqueWhere, fields []string, rec query.Record) {
	_, _, slot := c.Lookup(ctx, entity, where, fields)
	c.Save(ctx, slot, rec)
}

func TestLookupRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	c := New(store, time.Minute, logger.Nop())
	user := userEntity(t)
	where := query.UniqueWhere{"email": "ada@example.com"}
	created := time.Date(2026, 3, 4, 5, 6, 7, 8000, time.UTC)

	_, hit, slot := c.Lookup(ctx, user, where, nil)
	assert.False(t, hit)

	rec := query.Record{
		"id":          int64(1),
		"email":       "ada@example.com",
		"name":        nil,
		"createdAt":   created,
		"preferences": json.RawMessage(`{"theme":"dark"}`),
	}
	c.Save(ctx, slot, rec)

	got, hit, _ := c.Lookup(ctx, user, where, nil)
	require.True(t, hit)
	assert.Equal(t, int64(1), got["id"])
	assert.Equal(t, "ada@example.com", got["email"])
	assert.Nil(t, got["name"])
	assert.True(t, created.Equal(got["createdAt"].(time.Time)))
	assert.Equal(t, json.RawMessage(`{"theme":"dark"}`), got["preferences"])

	_, hit, _ = c.Lookup(ctx, user, where, []string{"email"})
	assert.False(t, hit, "a different projection is a different entry")
}

func TestCachedMissAndInvalidate(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	c := New(store, time.Minute, logger.Nop())
	user := userEntity(t)
	where := query.UniqueWhere{"id": int64(9)}

	save(ctx, c, user, where, nil, nil)
	rec, hit, _ := c.Lookup(ctx, user, where, nil)
	assert.True(t, hit)
	assert.Nil(t, rec)

	c.Invalidate(ctx, schema.EntityUser)
	assert.Equal(t, "1", store.data["v:User"])
	_, hit, _ = c.Lookup(ctx, user, where, nil)
	assert.False(t, hit)
}

func TestStoreFailuresAreMisses(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	store.fail = errors.New("connection refused")
	c := New(store, time.Minute, logger.Nop())
	user := userEntity(t)
	where := query.UniqueWhere{"id": int64(1)}

	save(ctx, c, user, where, nil, query.Record{"id": int64(1)})
	c.Invalidate(ctx, schema.EntityUser)
	_, hit, _ := c.Lookup(ctx, user, where, nil)
	assert.False(t, hit)
}

func TestUndecodableEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	c := New(store, time.Minute, logger.Nop())
	user := userEntity(t)
	where := query.UniqueWhere{"id": int64(1)}

	save(ctx, c, user, where, nil, query.Record{"id": int64(1), "nickname": "ada"})
	_, hit, _ := c.Lookup(ctx, user, where, nil)
	assert.False(t, hit)
}

func TestWriteBetweenMissAndSaveIsNotServed(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	c := New(store, time.Minute, logger.Nop())
	user := userEntity(t)
	where := query.UniqueWhere{"id": int64(1)}

	_, hit, slot := c.Lookup(ctx, user, where, nil)
	require.False(t, hit)

	c.Invalidate(ctx, schema.EntityUser)
	c.Save(ctx, slot, query.Record{"id": int64(1), "name": "Old"})

	_, hit, _ = c.Lookup(ctx, user, where, nil)
	assert.False(t, hit, "a result read before the write must not be served after it")
}
