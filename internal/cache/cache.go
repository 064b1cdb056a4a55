// Package cache keeps flat findUnique results in a key-value store. Keys
// embed a per-entity version that every committed write bumps, so stale
// entries are never read again and simply expire.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
	"github.com/angelmondragon/shopclient/pkg/logger"
	"github.com/angelmondragon/shopclient/pkg/redis"
)

// Store is the subset of pkg/redis.Client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	QueryKey(entity string, version int64, hash string) string
	VersionKey(entity string) string
}

type Cache struct {
	store Store
	ttl   time.Duration
	log   *logger.Logger
}

func New(store Store, ttl time.Duration, log *logger.Logger) *Cache {
	return &Cache{store: store, ttl: ttl, log: log}
}

const missing = "null"

// Slot is the entry a Lookup resolved. It pins the entity version seen at
// lookup time, so a result read before a concurrent write is stored under
// the old version and never served after it.
type Slot struct {
	entity string
	key    string
}

// Lookup returns the cached result for a unique lookup. hit is false when
// nothing usable is cached; a hit with a nil record is a cached miss. The
// returned slot is where Save stores the result read on a miss.
func (c *Cache) Lookup(ctx context.Context, entity *schema.Entity, where query.UniqueWhere, fields []string) (rec query.Record, hit bool, slot Slot) {
	slot.entity = entity.Name
	key, err := c.key(ctx, entity.Name, where, fields)
	if err != nil {
		c.warn(ctx, entity.Name, "cache key", err)
		return nil, false, slot
	}
	slot.key = key
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn(ctx, entity.Name, "cache read", err)
		}
		return nil, false, slot
	}
	if raw == missing {
		return nil, true, slot
	}
	rec, err = decode(entity, raw)
	if err != nil {
		c.warn(ctx, entity.Name, "cache decode", err)
		return nil, false, slot
	}
	return rec, true, slot
}

// Save stores rec, which may be nil, in slot. A slot whose key could not be
// resolved is skipped.
func (c *Cache) Save(ctx context.Context, slot Slot, rec query.Record) {
	if slot.key == "" {
		return
	}
	value := []byte(missing)
	if rec != nil {
		var err error
		if value, err = json.Marshal(rec); err != nil {
			c.warn(ctx, slot.entity, "cache encode", err)
			return
		}
	}
	if err := c.store.Set(ctx, slot.key, string(value), c.ttl); err != nil {
		c.warn(ctx, slot.entity, "cache write", err)
	}
}

// Invalidate bumps the version of every entity so earlier entries are no
// longer addressed.
func (c *Cache) Invalidate(ctx context.Context, entities ...string) {
	for _, name := range entities {
		if _, err := c.store.Incr(ctx, c.store.VersionKey(name)); err != nil {
			c.warn(ctx, name, "cache invalidate", err)
		}
	}
}

func (c *Cache) version(ctx context.Context, entity string) (int64, error) {
	raw, err := c.store.Get(ctx, c.store.VersionKey(entity))
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (c *Cache) key(ctx context.Context, entity string, where query.UniqueWhere, fields []string) (string, error) {
	version, err := c.version(ctx, entity)
	if err != nil {
		return "", err
	}
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	payload, err := json.Marshal(struct {
		Where  map[string]any `json:"where"`
		Fields []string       `json:"fields"`
	}{Where: where, Fields: sorted})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return c.store.QueryKey(entity, version, hex.EncodeToString(sum[:])), nil
}

func (c *Cache) warn(ctx context.Context, entity, msg string, err error) {
	ctx = c.log.WithFields(ctx, map[string]any{"entity": entity, "error": err.Error()})
	c.log.Warn(ctx, msg+" failed")
}

// decode rebuilds a record with the canonical value types of entity.
func decode(entity *schema.Entity, raw string) (query.Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, err
	}
	rec := make(query.Record, len(fields))
	for name, value := range fields {
		f, ok := entity.Field(name)
		if !ok {
			return nil, fmt.Errorf("%s has no field %q", entity.Name, name)
		}
		if bytes.Equal(value, []byte(missing)) {
			rec[name] = nil
			continue
		}
		v, err := decodeValue(f, value)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", entity.Name, name, err)
		}
		rec[name] = f.Output(v)
	}
	return rec, nil
}

func decodeValue(f *schema.Field, value json.RawMessage) (any, error) {
	switch f.Type {
	case schema.Int:
		var n int64
		err := json.Unmarshal(value, &n)
		return n, err
	case schema.Float:
		var n float64
		err := json.Unmarshal(value, &n)
		return n, err
	case schema.JSON:
		return schema.CanonicalJSON(value)
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return nil, err
	}
	return f.Coerce(s)
}
