package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
	pkgerrors "github.com/angelmondragon/shopclient/pkg/errors"
)

// staticFetcher serves relations from fixed maps keyed by relation name.
type staticFetcher map[string]map[int64][]driver.Row

func (f staticFetcher) Related(_ context.Context, rel *schema.Relation, parents []driver.Row) (map[int64][]driver.Row, error) {
	out := map[int64][]driver.Row{}
	for _, p := range parents {
		out[p.ID()] = f[rel.Name][p.ID()]
	}
	return out, nil
}

func users() []driver.Row {
	return []driver.Row{
		{"id": int64(1), "name": "Ada", "email": "ada@example.com", "role": "ADMIN"},
		{"id": int64(2), "name": nil, "email": "bob@example.com", "role": "USER"},
		{"id": int64(3), "name": "carla", "email": "carla@example.com", "role": "USER"},
	}
}

func compileUser(t *testing.T, where query.Filter) *Predicate {
	t.Helper()
	reg := schema.MustBuild()
	user, _ := reg.Entity(schema.EntityUser)
	pred, err := Compile(reg, user, where)
	require.NoError(t, err)
	return pred
}

func matchIDs(t *testing.T, where query.Filter, fetch RelatedFetcher) []int64 {
	t.Helper()
	rows, err := compileUser(t, where).Filter(context.Background(), users(), fetch)
	require.NoError(t, err)
	ids := []int64{}
	for _, r := range rows {
		ids = append(ids, r.ID())
	}
	return ids
}

func TestEmptyCombinators(t *testing.T) {
	assert.Equal(t, []int64{1, 2, 3}, matchIDs(t, query.And(), nil))
	assert.Empty(t, matchIDs(t, query.Or(), nil))
	assert.Equal(t, []int64{1, 2, 3}, matchIDs(t, query.Not(), nil))
	assert.Equal(t, []int64{1, 2, 3}, matchIDs(t, nil, nil))
}

func TestNullComparisonsAreUnknown(t *testing.T) {
	assert.Equal(t, []int64{3}, matchIDs(t, query.NotEquals("name", "Ada"), nil))
	assert.Equal(t, []int64{3}, matchIDs(t, query.Not(query.Equals("name", "Ada")), nil))
	assert.Equal(t, []int64{2}, matchIDs(t, query.IsNull("name"), nil))
	assert.Equal(t, []int64{1, 3}, matchIDs(t, query.IsNotNull("name"), nil))
	assert.Equal(t, []int64{1}, matchIDs(t, query.Or(query.Equals("name", "Ada"), query.Equals("name", "zed")), nil))
}

func TestNotIsConjunctionOfNegations(t *testing.T) {
	where := query.Not(query.Equals("role", "ADMIN"), query.Equals("email", "bob@example.com"))
	assert.Equal(t, []int64{3}, matchIDs(t, where, nil))
}

func TestStringOperators(t *testing.T) {
	assert.Equal(t, []int64{3}, matchIDs(t, query.StartsWith("name", "car"), nil))
	assert.Equal(t, []int64{1, 3}, matchIDs(t, query.Contains("name", "A").Insensitive(), nil))
	assert.Equal(t, []int64{1}, matchIDs(t, query.Contains("name", "A"), nil))
	assert.Equal(t, []int64{1}, matchIDs(t, query.Equals("name", "ADA").Insensitive(), nil))
	assert.Equal(t, []int64{2}, matchIDs(t, query.EndsWith("email", "B@EXAMPLE.COM").Insensitive(), nil))
}

func TestInAndNotIn(t *testing.T) {
	assert.Empty(t, matchIDs(t, query.In("name"), nil))
	assert.Equal(t, []int64{1, 3}, matchIDs(t, query.NotIn("name"), nil))
	assert.Equal(t, []int64{1, 3}, matchIDs(t, query.In("id", 1, 3), nil))
	assert.Equal(t, []int64{2}, matchIDs(t, query.Cond{Field: "id", Op: query.OpNotIn, Value: []int64{1, 3}}, nil))
	assert.Equal(t, []int64{2, 3}, matchIDs(t, query.Gt("id", 1.0), nil))
}

func TestRelationQuantifiers(t *testing.T) {
	fetch := staticFetcher{
		"reviews": {
			1: {{"id": int64(10), "rating": int64(5)}, {"id": int64(11), "rating": int64(2)}},
			2: {{"id": int64(12), "rating": int64(4)}},
		},
	}
	assert.Equal(t, []int64{1, 2}, matchIDs(t, query.Some("reviews", query.Gte("rating", 4)), fetch))
	assert.Equal(t, []int64{2, 3}, matchIDs(t, query.Every("reviews", query.Gte("rating", 4)), fetch), "every is vacuously true")
	assert.Equal(t, []int64{3}, matchIDs(t, query.None("reviews", nil), fetch))
	assert.Equal(t, []int64{2, 3}, matchIDs(t, query.None("reviews", query.Lt("rating", 3)), fetch))
}

func TestToOneQuantifiers(t *testing.T) {
	reg := schema.MustBuild()
	session, _ := reg.Entity(schema.EntitySession)
	rows := []driver.Row{
		{"id": int64(1), "userId": int64(7)},
		{"id": int64(2), "userId": nil},
	}
	fetch := staticFetcher{"user": {1: {{"id": int64(7), "role": "ADMIN"}}}}

	run := func(where query.Filter) []int64 {
		pred, err := Compile(reg, session, where)
		require.NoError(t, err)
		out, err := pred.Filter(context.Background(), rows, fetch)
		require.NoError(t, err)
		ids := []int64{}
		for _, r := range out {
			ids = append(ids, r.ID())
		}
		return ids
	}
	assert.Equal(t, []int64{2}, run(query.Is("user", nil)))
	assert.Equal(t, []int64{1}, run(query.IsNot("user", nil)))
	assert.Equal(t, []int64{1}, run(query.Is("user", query.Equals("role", "ADMIN"))))
	assert.Equal(t, []int64{2}, run(query.IsNot("user", query.Equals("role", "ADMIN"))))
}

func TestCompileRejectsInvalidFilters(t *testing.T) {
	reg := schema.MustBuild()
	user, _ := reg.Entity(schema.EntityUser)

	cases := map[string]query.Filter{
		"unknown field":         query.Equals("nickname", "x"),
		"ordered json":          query.Gt("preferences", 1),
		"string op on int":      query.Contains("id", "1"),
		"mode on non-string":    query.Equals("id", 1).Insensitive(),
		"required null":         query.Equals("email", nil),
		"bad coercion":          query.Equals("id", "one"),
		"list quantifier":       query.Is("reviews", nil),
		"nested unknown field":  query.Some("reviews", query.Equals("nope", 1)),
		"relation as scalar":    query.Equals("reviews", 1),
		"scalar as relation":    query.Some("email", nil),
		"aggregate outside":     query.Having(query.AggAvg, query.Gt("id", 1)),
		"unknown relation":      query.Some("friends", nil),
		"null in list":          query.In("id", 1, nil),
		"in without list":       query.Cond{Field: "id", Op: query.OpIn, Value: 3},
		"nested unknown":        query.Not(query.Or(query.Equals("ghost", 1))),
		"fractional int":        query.Equals("id", 1.5),
		"contains on datetime":  query.StartsWith("createdAt", "2024"),
		"insensitive on json":   query.Equals("preferences", "x").Insensitive(),
	}
	for name, where := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Compile(reg, user, where)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err), "got %v", err)
		})
	}
}

func TestPushdownCollectsTopLevelEqualities(t *testing.T) {
	pred := compileUser(t, query.And(
		query.Equals("email", "ada@example.com"),
		query.In("id", 1, 2),
		query.Or(query.Equals("role", "ADMIN")),
		query.Equals("name", "ada").Insensitive(),
		query.IsNull("name"),
	))
	assert.Equal(t, []driver.Cond{
		{Field: "email", Values: []any{"ada@example.com"}},
		{Field: "id", Values: []any{int64(1), int64(2)}},
	}, pred.Pushdown())
}

func TestTriLogic(t *testing.T) {
	assert.Equal(t, True, And())
	assert.Equal(t, False, Or())
	assert.Equal(t, Unknown, And(True, Unknown))
	assert.Equal(t, False, And(Unknown, False))
	assert.Equal(t, True, Or(Unknown, True))
	assert.Equal(t, Unknown, Or(False, Unknown))
	assert.Equal(t, Unknown, Unknown.Not())
}
