package engine_test

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopclient/internal/cache"
	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/driver/memdriver"
	"github.com/angelmondragon/shopclient/internal/engine"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
	pkgerrors "github.com/angelmondragon/shopclient/pkg/errors"
	"github.com/angelmondragon/shopclient/pkg/logger"
	"github.com/angelmondragon/shopclient/pkg/metrics"
	"github.com/angelmondragon/shopclient/pkg/redis"
)

type fixture struct {
	client *engine.Client
	drv    *memdriver.Driver
}

func newFixture(t *testing.T, mutate ...func(*engine.Params)) *fixture {
	t.Helper()
	reg := schema.MustBuild()
	drv := memdriver.New(reg)
	params := engine.Params{
		Registry: reg,
		Driver:   drv,
		Logger:   logger.Nop(),
		Defaults: engine.TxOptions{MaxWait: 500 * time.Millisecond, Timeout: 2 * time.Second},
	}
	for _, fn := range mutate {
		fn(&params)
	}
	client, err := engine.New(params)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return &fixture{client: client, drv: drv}
}

func shopData(name string) query.Data {
	return query.Data{"name": name, "type": "cafe", "latitude": 45.5, "longitude": -122.6}
}

func (f *fixture) shop(t *testing.T, name string) query.Record {
	t.Helper()
	rec, err := f.client.Shop().Create(context.Background(), query.CreateArgs{Data: shopData(name)})
	require.NoError(t, err)
	return rec
}

func (f *fixture) user(t *testing.T, email string) query.Record {
	t.Helper()
	rec, err := f.client.User().Create(context.Background(), query.CreateArgs{Data: query.Data{"email": email}})
	require.NoError(t, err)
	return rec
}

func (f *fixture) count(t *testing.T, d *engine.Delegate) int64 {
	t.Helper()
	n, err := d.Count(context.Background(), query.CountArgs{})
	require.NoError(t, err)
	return n
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) map[string]any {
	t.Helper()
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr, "untyped error %v", err)
	require.Equal(t, code, appErr.Code(), "error %v", err)
	details, _ := appErr.Details().(map[string]any)
	return details
}

func TestNewRequiresRegistryAndDriver(t *testing.T) {
	_, err := engine.New(engine.Params{Driver: memdriver.New(schema.MustBuild())})
	requireCode(t, err, pkgerrors.CodeInitialization)

	_, err = engine.New(engine.Params{Registry: schema.MustBuild()})
	requireCode(t, err, pkgerrors.CodeInitialization)
}

func TestDelegatesCoverPublicEntities(t *testing.T) {
	f := newFixture(t)
	for _, e := range f.client.Registry().Public() {
		d, err := f.client.Delegate(e.Name)
		require.NoError(t, err)
		assert.Equal(t, e.Name, d.Entity().Name)
	}
	_, err := f.client.Delegate(schema.EntityBrandShop)
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestFindUniqueVariants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created := f.shop(t, "Alpha")

	rec, err := f.client.Shop().FindUnique(ctx, query.FindUniqueArgs{Where: query.UniqueWhere{"name": "Alpha"}})
	require.NoError(t, err)
	assert.Equal(t, created.Int("id"), rec.Int("id"))

	rec, err = f.client.Shop().FindUnique(ctx, query.FindUniqueArgs{Where: query.UniqueWhere{"name": "Missing"}})
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = f.client.Shop().FindUniqueOrThrow(ctx, query.FindUniqueArgs{Where: query.UniqueWhere{"name": "Missing"}})
	details := requireCode(t, err, pkgerrors.CodeNotFound)
	assert.Equal(t, schema.EntityShop, details["entity"])

	_, err = f.client.Shop().FindUnique(ctx, query.FindUniqueArgs{Where: query.UniqueWhere{"type": "cafe"}})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestFindFirstVariants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, name := range []string{"Alpha", "Bravo", "Charlie"} {
		f.shop(t, name)
	}

	rec, err := f.client.Shop().FindFirst(ctx, query.FindArgs{OrderBy: []query.OrderBy{query.OrderDesc("name")}})
	require.NoError(t, err)
	assert.Equal(t, "Charlie", rec.String("name"))

	rec, err = f.client.Shop().FindFirst(ctx, query.FindArgs{Where: query.StartsWith("name", "Z")})
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = f.client.Shop().FindFirstOrThrow(ctx, query.FindArgs{Where: query.StartsWith("name", "Z")})
	requireCode(t, err, pkgerrors.CodeNotFound)

	rec, err = f.client.Shop().FindFirstOrThrow(ctx, query.FindArgs{Where: query.Contains("name", "rav")})
	require.NoError(t, err)
	assert.Equal(t, "Bravo", rec.String("name"))
}

func TestCreateWithNestedWritesAndInclude(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	data := shopData("Alpha")
	data["brands"] = query.Create(
		query.Data{"name": "Acme", "type": "roaster"},
		query.Data{"name": "Zenith", "type": "roaster"},
	)

	rec, err := f.client.Shop().Create(ctx, query.CreateArgs{
		Data: data,
		Select: &query.Selection{
			Fields:  []string{"id", "name"},
			Include: map[string]*query.Nested{"brands": {OrderBy: []query.OrderBy{query.OrderAsc("name")}}},
		},
	})
	require.NoError(t, err)
	assert.False(t, rec.Has("type"))
	brands := rec.Many("brands")
	require.Len(t, brands, 2)
	assert.Equal(t, "Acme", brands[0].String("name"))
	assert.Equal(t, int64(2), f.count(t, f.client.Brand()))
}

func TestInvalidSelectionWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.client.Shop().Create(ctx, query.CreateArgs{
		Data:   shopData("Alpha"),
		Select: &query.Selection{Fields: []string{"nope"}},
	})
	details := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, "nope", details["field"])
	assert.Zero(t, f.count(t, f.client.Shop()))
}

func TestCreateManySkipDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.user(t, "ada@example.com")
	shop := f.shop(t, "Alpha")
	pair := query.Data{"userId": user.Int("id"), "shopId": shop.Int("id")}

	_, err := f.client.UserShop().CreateMany(ctx, query.CreateManyArgs{Data: []query.Data{pair, pair}})
	details := requireCode(t, err, pkgerrors.CodeConstraint)
	assert.Equal(t, "UserShop_userId_shopId_key", details["constraint"])
	assert.Zero(t, f.count(t, f.client.UserShop()), "a failed batch leaves nothing behind")

	out, err := f.client.UserShop().CreateMany(ctx, query.CreateManyArgs{Data: []query.Data{pair, pair}, SkipDuplicates: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Count)
}

func TestUpsertByName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	args := query.UpsertArgs{
		Where:  query.UniqueWhere{"name": "Alpha"},
		Create: shopData("Alpha"),
		Update: query.Data{"type": "bakery"},
	}

	created, err := f.client.Shop().Upsert(ctx, args)
	require.NoError(t, err)
	assert.Equal(t, "cafe", created.String("type"))

	updated, err := f.client.Shop().Upsert(ctx, args)
	require.NoError(t, err)
	assert.Equal(t, created.Int("id"), updated.Int("id"))
	assert.Equal(t, "Alpha", updated.String("name"))
	assert.Equal(t, "bakery", updated.String("type"))
	assert.Equal(t, int64(1), f.count(t, f.client.Shop()))
}

func TestUpdateAndUpdateMany(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.shop(t, "Alpha")
	f.shop(t, "Bravo")

	_, err := f.client.Shop().Update(ctx, query.UpdateArgs{Where: query.UniqueWhere{"name": "Missing"}, Data: query.Data{"type": "bar"}})
	requireCode(t, err, pkgerrors.CodeNotFound)

	out, err := f.client.Shop().UpdateMany(ctx, query.UpdateManyArgs{
		Where: query.In("name", "Alpha", "Bravo"),
		Data:  query.Data{"latitude": query.Increment(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Count)

	rec, err := f.client.Shop().FindUniqueOrThrow(ctx, query.FindUniqueArgs{Where: query.UniqueWhere{"name": "Bravo"}})
	require.NoError(t, err)
	assert.InDelta(t, 46.5, rec.Float("latitude"), 1e-9)
}

func TestDeleteReturnsRowLoadedBeforeRemoval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	data := shopData("Alpha")
	data["brands"] = query.Create(query.Data{"name": "Acme", "type": "roaster"})
	_, err := f.client.Shop().Create(ctx, query.CreateArgs{Data: data})
	require.NoError(t, err)

	deleted, err := f.client.Shop().Delete(ctx, query.DeleteArgs{
		Where:  query.UniqueWhere{"name": "Alpha"},
		Select: &query.Selection{Include: map[string]*query.Nested{"brands": {}}},
	})
	require.NoError(t, err)
	require.Len(t, deleted.Many("brands"), 1)

	brand, err := f.client.Brand().FindUniqueOrThrow(ctx, query.FindUniqueArgs{
		Where:  query.UniqueWhere{"name": "Acme"},
		Select: &query.Selection{Include: map[string]*query.Nested{"shops": {}}},
	})
	require.NoError(t, err)
	assert.Empty(t, brand.Many("shops"), "join rows cascade with the shop")

	_, err = f.client.Shop().Delete(ctx, query.DeleteArgs{Where: query.UniqueWhere{"name": "Alpha"}})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestDeleteUserWithReviewsIsRestricted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.user(t, "ada@example.com")
	shop := f.shop(t, "Alpha")
	_, err := f.client.Review().Create(ctx, query.CreateArgs{Data: query.Data{
		"rating": 5, "userId": user.Int("id"), "shopId": shop.Int("id"),
	}})
	require.NoError(t, err)

	_, err = f.client.User().Delete(ctx, query.DeleteArgs{Where: query.ByID(user.Int("id"))})
	details := requireCode(t, err, pkgerrors.CodeConstraint)
	assert.Equal(t, "Review_userId_fkey", details["constraint"])
	assert.Equal(t, "foreign_key", details["kind"])
	assert.Equal(t, int64(1), f.count(t, f.client.User()))
	assert.Equal(t, int64(1), f.count(t, f.client.Review()))

	out, err := f.client.Review().DeleteMany(ctx, query.DeleteManyArgs{Where: query.Equals("userId", user.Int("id"))})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Count)

	_, err = f.client.User().Delete(ctx, query.DeleteArgs{Where: query.ByID(user.Int("id"))})
	require.NoError(t, err)
	assert.Zero(t, f.count(t, f.client.User()))
}

func TestAggregationThroughDelegates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	shops := []query.Record{f.shop(t, "Alpha"), f.shop(t, "Bravo")}
	users := []query.Record{f.user(t, "a@example.com"), f.user(t, "b@example.com")}
	ratings := [][3]int{{0, 0, 5}, {1, 0, 3}, {0, 1, 2}}
	for _, r := range ratings {
		_, err := f.client.Review().Create(ctx, query.CreateArgs{Data: query.Data{
			"userId": users[r[0]].Int("id"), "shopId": shops[r[1]].Int("id"), "rating": r[2],
		}})
		require.NoError(t, err)
	}

	agg, err := f.client.Review().Aggregate(ctx, query.AggregateArgs{Count: []string{query.CountAll}, Avg: []string{"rating"}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), agg.Count[query.CountAll])
	assert.InDelta(t, 10.0/3, agg.Avg["rating"], 1e-9)

	groups, err := f.client.Review().GroupBy(ctx, query.GroupByArgs{
		By:     []string{"shopId"},
		Having: query.Having(query.AggCount, query.Gte(query.CountAll, 2)),
		Avg:    []string{"rating"},
	})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, shops[0].Int("id"), groups[0].Int("shopId"))

	_, err = f.client.Review().GroupBy(ctx, query.GroupByArgs{By: []string{"shopId"}, Take: query.Take(1)})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.client.Review().GroupBy(ctx, query.GroupByArgs{
		By:     []string{"shopId"},
		Having: query.Having(query.AggAvg, query.Gte("rating", 3)),
	})
	requireCode(t, err, pkgerrors.CodeValidation)

	n, err := f.client.Review().Count(ctx, query.CountArgs{Where: query.Lt("rating", 5)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestOperationMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	f := newFixture(t, func(p *engine.Params) {
		p.Metrics = metrics.NewOperationMetrics(reg)
	})
	f.shop(t, "Alpha")
	_, err := f.client.Shop().Create(ctx, query.CreateArgs{Data: shopData("Alpha")})
	requireCode(t, err, pkgerrors.CodeConstraint)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, l := range m.GetLabel() {
				key += fmt.Sprintf(",%s=%s", l.GetName(), l.GetValue())
			}
			if m.GetCounter() != nil {
				values[key] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["shopclient_operation_success_total,entity=Shop,operation=create"])
	assert.Equal(t, 1.0, values["shopclient_operation_failure_total,code=CONSTRAINT_VIOLATION,entity=Shop,operation=create"])
	assert.Equal(t, 1.0, values["shopclient_transactions_total,mode=implicit,outcome=commit"])
	assert.Equal(t, 1.0, values["shopclient_transactions_total,mode=implicit,outcome=rollback"])
}

type memoryStore struct {
	data map[string]string
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := s.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.data[key] = fmt.Sprint(value)
	return nil
}

func (s *memoryStore) Incr(_ context.Context, key string) (int64, error) {
	n, _ := strconv.ParseInt(s.data[key], 10, 64)
	n++
	s.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (s *memoryStore) QueryKey(entity string, version int64, hash string) string {
	return fmt.Sprintf("q:%s:%d:%s", entity, version, hash)
}

func (s *memoryStore) VersionKey(entity string) string {
	return "v:" + entity
}

func TestFindUniqueUsesCacheUntilWrite(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{data: map[string]string{}}
	f := newFixture(t, func(p *engine.Params) {
		p.Cache = cache.New(store, time.Minute, logger.Nop())
	})
	user := f.user(t, "ada@example.com")
	where := query.UniqueWhere{"email": "ada@example.com"}

	rec, err := f.client.User().FindUnique(ctx, query.FindUniqueArgs{Where: where})
	require.NoError(t, err)
	assert.Nil(t, rec["name"])

	// A write that bypasses the client is invisible while the entry lives.
	_, err = f.drv.Update(ctx, schema.EntityUser, user.Int("id"), driver.Row{"name": "Ada"})
	require.NoError(t, err)
	rec, err = f.client.User().FindUnique(ctx, query.FindUniqueArgs{Where: where})
	require.NoError(t, err)
	assert.Nil(t, rec["name"])

	_, err = f.client.User().Update(ctx, query.UpdateArgs{Where: where, Data: query.Data{"bio": "math"}})
	require.NoError(t, err)
	rec, err = f.client.User().FindUnique(ctx, query.FindUniqueArgs{Where: where})
	require.NoError(t, err)
	assert.Equal(t, "Ada", rec.String("name"))
	assert.Equal(t, "math", rec.String("bio"))
	assert.Equal(t, "2", store.data["v:User"])
}
