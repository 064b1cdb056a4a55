package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/driver/memdriver"
	"github.com/angelmondragon/shopclient/internal/loader"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
	pkgerrors "github.com/angelmondragon/shopclient/pkg/errors"
)

type fixture struct {
	reg  *schema.Registry
	exec *memdriver.Driver
	agg  *Aggregator
}

// newFixture seeds three shops and reviews with ratings per shop:
// shop 1 -> 5, 3; shop 2 -> 4; shop 3 -> 1, 2, 3.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := schema.MustBuild()
	f := &fixture{reg: reg, exec: memdriver.New(reg), agg: New(loader.New(reg))}
	ctx := context.Background()

	for _, name := range []string{"Alpha", "Bravo", "Charlie"} {
		_, _, err := f.exec.Insert(ctx, schema.EntityShop, driver.Row{"name": name, "type": "cafe", "latitude": 1.5, "longitude": 2.5}, driver.InsertOptions{})
		require.NoError(t, err)
	}
	comment := func(i int) any {
		if i%2 == 0 {
			return nil
		}
		return "ok"
	}
	reviews := []struct{ user, shop, rating int64 }{
		{1, 1, 5}, {2, 1, 3}, {1, 2, 4}, {1, 3, 1}, {2, 3, 2}, {3, 3, 3},
	}
	for i, r := range reviews {
		_, _, err := f.exec.Insert(ctx, schema.EntityReview, driver.Row{
			"userId": r.user, "shopId": r.shop, "rating": r.rating, "comment": comment(i),
		}, driver.InsertOptions{})
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) entity(name string) *schema.Entity {
	e, _ := f.reg.Entity(name)
	return e
}

func TestAggregate(t *testing.T) {
	f := newFixture(t)
	res, err := f.agg.Aggregate(context.Background(), f.exec, f.entity(schema.EntityReview), query.AggregateArgs{
		Count: []string{query.CountAll, "comment"},
		Avg:   []string{"rating"},
		Sum:   []string{"rating"},
		Min:   []string{"rating"},
		Max:   []string{"rating"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), res.Count[query.CountAll])
	assert.Equal(t, int64(3), res.Count["comment"])
	assert.Equal(t, 3.0, res.Avg["rating"])
	assert.Equal(t, int64(18), res.Sum["rating"])
	assert.Equal(t, int64(1), res.Min["rating"])
	assert.Equal(t, int64(5), res.Max["rating"])
}

func TestAggregateEmptySetIsNull(t *testing.T) {
	f := newFixture(t)
	res, err := f.agg.Aggregate(context.Background(), f.exec, f.entity(schema.EntityReview), query.AggregateArgs{
		Where: query.Gt("rating", 10),
		Count: []string{query.CountAll},
		Avg:   []string{"rating"},
		Sum:   []string{"rating"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Count[query.CountAll])
	assert.Nil(t, res.Avg["rating"])
	assert.Nil(t, res.Sum["rating"])
	assert.Nil(t, res.Min)
}

func TestAggregateFloatSumIsExact(t *testing.T) {
	f := newFixture(t)
	res, err := f.agg.Aggregate(context.Background(), f.exec, f.entity(schema.EntityShop), query.AggregateArgs{
		Sum: []string{"latitude"},
		Avg: []string{"longitude"},
	})
	require.NoError(t, err)
	assert.Equal(t, 4.5, res.Sum["latitude"])
	assert.Equal(t, 2.5, res.Avg["longitude"])
}

func TestAggregateRejectsNonNumeric(t *testing.T) {
	f := newFixture(t)
	_, err := f.agg.Aggregate(context.Background(), f.exec, f.entity(schema.EntityReview), query.AggregateArgs{
		Max: []string{"comment"},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestCountWithWindow(t *testing.T) {
	f := newFixture(t)
	n, err := f.agg.Count(context.Background(), f.exec, f.entity(schema.EntityReview), query.CountArgs{
		Where: query.Equals("shopId", 3),
		Take:  query.Take(2),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGroupByWithHaving(t *testing.T) {
	f := newFixture(t)
	groups, err := f.agg.GroupBy(context.Background(), f.exec, f.entity(schema.EntityReview), query.GroupByArgs{
		By:     []string{"shopId"},
		Having: query.Having(query.AggCount, query.Gte(query.CountAll, 2)),
		Count:  []string{query.CountAll},
		Avg:    []string{"rating"},
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, int64(1), groups[0].Int("shopId"))
	assert.Equal(t, query.Record{query.CountAll: int64(2)}, groups[0]["_count"])
	assert.Equal(t, query.Record{"rating": 4.0}, groups[0]["_avg"])
	assert.Equal(t, int64(3), groups[1].Int("shopId"))
	assert.Equal(t, query.Record{"rating": 2.0}, groups[1]["_avg"])
}

func TestGroupByHavingAggregatesByField(t *testing.T) {
	f := newFixture(t)
	groups, err := f.agg.GroupBy(context.Background(), f.exec, f.entity(schema.EntityReview), query.GroupByArgs{
		By:     []string{"shopId", "rating"},
		Having: query.Having(query.AggMax, query.Gte("rating", 4)),
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, int64(1), groups[0].Int("shopId"))
	assert.Equal(t, int64(5), groups[0].Int("rating"))
	assert.Equal(t, int64(2), groups[1].Int("shopId"))
	assert.Equal(t, int64(4), groups[1].Int("rating"))
}

func TestGroupByHavingNilChildIsTrue(t *testing.T) {
	f := newFixture(t)
	groups, err := f.agg.GroupBy(context.Background(), f.exec, f.entity(schema.EntityReview), query.GroupByArgs{
		By:     []string{"shopId"},
		Having: query.Or(nil),
	})
	require.NoError(t, err)
	assert.Len(t, groups, 3)

	groups, err = f.agg.GroupBy(context.Background(), f.exec, f.entity(schema.EntityReview), query.GroupByArgs{
		By:     []string{"shopId"},
		Having: query.Not(nil),
	})
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestGroupByOrderingAndPaging(t *testing.T) {
	f := newFixture(t)
	groups, err := f.agg.GroupBy(context.Background(), f.exec, f.entity(schema.EntityReview), query.GroupByArgs{
		By:      []string{"shopId"},
		OrderBy: []query.OrderBy{query.OrderDesc("shopId")},
		Take:    query.Take(2),
		Sum:     []string{"rating"},
		Having:  query.Or(query.Equals("shopId", 1), query.Having(query.AggCount, query.Gt(query.CountAll, 2))),
	})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, int64(3), groups[0].Int("shopId"))
	assert.Equal(t, query.Record{"rating": int64(6)}, groups[0]["_sum"])
	assert.Equal(t, int64(1), groups[1].Int("shopId"))
}

func TestGroupByValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]struct {
		args   query.GroupByArgs
		reason string
	}{
		"empty by": {
			args:   query.GroupByArgs{},
			reason: "by must not be empty",
		},
		"having outside by": {
			args:   query.GroupByArgs{By: []string{"shopId"}, Having: query.Gt("rating", 2)},
			reason: "having conditions on plain fields must use a by field",
		},
		"aggregate outside by": {
			args:   query.GroupByArgs{By: []string{"shopId"}, Having: query.Having(query.AggAvg, query.Gte("rating", 3))},
			reason: "having fields must be listed in by",
		},
		"count of field outside by": {
			args:   query.GroupByArgs{By: []string{"shopId"}, Having: query.Having(query.AggCount, query.Gt("comment", 0))},
			reason: "having fields must be listed in by",
		},
		"order outside by": {
			args:   query.GroupByArgs{By: []string{"shopId"}, OrderBy: []query.OrderBy{query.OrderAsc("rating")}},
			reason: "orderBy fields must be listed in by",
		},
		"take without order": {
			args:   query.GroupByArgs{By: []string{"shopId"}, Take: query.Take(1)},
			reason: "take and skip require orderBy",
		},
		"negative take": {
			args:   query.GroupByArgs{By: []string{"shopId"}, OrderBy: []query.OrderBy{query.OrderAsc("shopId")}, Take: query.Take(-1)},
			reason: "take must not be negative",
		},
		"relation by": {
			args:   query.GroupByArgs{By: []string{"shop"}},
			reason: "cannot group by a relation",
		},
		"avg on string": {
			args:   query.GroupByArgs{By: []string{"shopId"}, Having: query.Having(query.AggAvg, query.Gt("comment", 1))},
			reason: "_avg needs a numeric field, got String",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.agg.GroupBy(context.Background(), f.exec, f.entity(schema.EntityReview), tc.args)
			require.Error(t, err)
			appErr := pkgerrors.As(err)
			require.NotNil(t, appErr)
			assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())
			details, ok := appErr.Details().(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tc.reason, details["reason"])
		})
	}
}
