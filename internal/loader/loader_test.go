package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/driver/memdriver"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
	pkgerrors "github.com/angelmondragon/shopclient/pkg/errors"
)

type fixture struct {
	reg    *schema.Registry
	exec   *memdriver.Driver
	loader *Loader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := schema.MustBuild()
	f := &fixture{reg: reg, exec: memdriver.New(reg), loader: New(reg)}

	for i, name := range []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf", "Hotel", "India", "Juliet"} {
		typ := "cafe"
		if i%2 == 1 {
			typ = "bar"
		}
		f.insert(t, schema.EntityShop, driver.Row{"name": name, "type": typ, "latitude": float64(i), "longitude": 0.0})
	}
	f.insert(t, schema.EntityBrand, driver.Row{"name": "Acme", "type": "roaster"})
	f.insert(t, schema.EntityBrand, driver.Row{"name": "Bolt", "type": "roaster"})
	f.insert(t, schema.EntityBrandShop, driver.Row{"brandId": int64(1), "shopId": int64(1)})
	f.insert(t, schema.EntityBrandShop, driver.Row{"brandId": int64(2), "shopId": int64(1)})
	f.insert(t, schema.EntityBrandShop, driver.Row{"brandId": int64(2), "shopId": int64(2)})

	f.insert(t, schema.EntityUser, driver.Row{"email": "ada@example.com", "role": "ADMIN", "name": "Ada"})
	f.insert(t, schema.EntityUser, driver.Row{"email": "bob@example.com", "role": "USER"})
	f.insert(t, schema.EntityReview, driver.Row{"rating": int64(5), "userId": int64(1), "shopId": int64(1)})
	f.insert(t, schema.EntityReview, driver.Row{"rating": int64(2), "userId": int64(2), "shopId": int64(1)})
	f.insert(t, schema.EntityReview, driver.Row{"rating": int64(4), "userId": int64(1), "shopId": int64(2)})
	f.insert(t, schema.EntitySession, driver.Row{"handle": "s1", "userId": int64(1)})
	f.insert(t, schema.EntitySession, driver.Row{"handle": "s2", "userId": nil})
	return f
}

func (f *fixture) insert(t *testing.T, entity string, row driver.Row) {
	t.Helper()
	_, _, err := f.exec.Insert(context.Background(), entity, row, driver.InsertOptions{})
	require.NoError(t, err)
}

func (f *fixture) entity(name string) *schema.Entity {
	e, _ := f.reg.Entity(name)
	return e
}

func names(records []query.Record) []string {
	out := []string{}
	for _, r := range records {
		out = append(out, r.String("name"))
	}
	return out
}

func TestFindManyCursorWindows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shop := f.entity(schema.EntityShop)

	page, err := f.loader.FindMany(ctx, f.exec, shop, query.FindArgs{
		Cursor: query.ByID(5),
		Take:   query.Take(2),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, query.IDs(page))

	page, err = f.loader.FindMany(ctx, f.exec, shop, query.FindArgs{
		Cursor: query.ByID(5),
		Take:   query.Take(-2),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, query.IDs(page))

	page, err = f.loader.FindMany(ctx, f.exec, shop, query.FindArgs{
		Cursor: query.ByID(5),
		Skip:   1,
		Take:   query.Take(2),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 7}, query.IDs(page))

	page, err = f.loader.FindMany(ctx, f.exec, shop, query.FindArgs{
		Where:  query.Equals("type", "bar"),
		Cursor: query.ByID(5),
		Take:   query.Take(2),
	})
	require.NoError(t, err)
	assert.Empty(t, page, "cursor outside the filtered set yields nothing")
}

func TestFindManyOrderingAndDistinct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shop := f.entity(schema.EntityShop)

	page, err := f.loader.FindMany(ctx, f.exec, shop, query.FindArgs{
		OrderBy: []query.OrderBy{query.OrderDesc("latitude")},
		Take:    query.Take(3),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Juliet", "India", "Hotel"}, names(page))

	page, err = f.loader.FindMany(ctx, f.exec, shop, query.FindArgs{
		Distinct: []string{"type"},
		Select:   &query.Selection{Fields: []string{"id", "type"}},
	})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "cafe", page[0].String("type"))
	assert.False(t, page[0].Has("name"))
}

func TestNullOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.entity(schema.EntityUser)

	asc, err := f.loader.FindMany(ctx, f.exec, user, query.FindArgs{OrderBy: []query.OrderBy{query.OrderAsc("name")}})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, query.IDs(asc))

	desc, err := f.loader.FindMany(ctx, f.exec, user, query.FindArgs{OrderBy: []query.OrderBy{query.OrderDesc("name")}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, query.IDs(desc))

	last, err := f.loader.FindMany(ctx, f.exec, user, query.FindArgs{OrderBy: []query.OrderBy{{Field: "name", Nulls: query.NullsLast}}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, query.IDs(last))
}

func TestIncludesAndCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shop := f.entity(schema.EntityShop)

	page, err := f.loader.FindMany(ctx, f.exec, shop, query.FindArgs{
		Where: query.In("id", 1, 2, 3),
		Select: &query.Selection{
			Fields: []string{"id", "name"},
			Include: map[string]*query.Nested{
				"brands": {OrderBy: []query.OrderBy{query.OrderDesc("name")}},
				"reviews": {
					Where:  query.Gte("rating", 4),
					Select: &query.Selection{Include: map[string]*query.Nested{"user": nil}},
				},
			},
			Count: []string{"reviews", "likedBy"},
		},
	})
	require.NoError(t, err)
	require.Len(t, page, 3)

	assert.Equal(t, []string{"Bolt", "Acme"}, names(page[0].Many("brands")))
	assert.Equal(t, []string{"Bolt"}, names(page[1].Many("brands")))
	assert.Empty(t, page[2].Many("brands"))

	reviews := page[0].Many("reviews")
	require.Len(t, reviews, 1)
	assert.Equal(t, "ada@example.com", reviews[0].One("user").String("email"))

	assert.Equal(t, int64(2), page[0].RelationCount("reviews"))
	assert.Equal(t, int64(0), page[0].RelationCount("likedBy"))
	assert.Equal(t, int64(0), page[2].RelationCount("reviews"))
}

func TestNullableToOneInclude(t *testing.T) {
	f := newFixture(t)
	sessions, err := f.loader.FindMany(context.Background(), f.exec, f.entity(schema.EntitySession), query.FindArgs{
		Select: &query.Selection{Include: map[string]*query.Nested{"user": {Select: &query.Selection{Fields: []string{"email"}}}}},
	})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "ada@example.com", sessions[0].One("user").String("email"))
	assert.True(t, sessions[1].IsNull("user"))
}

func TestRelationFiltersThroughLoader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shops, err := f.loader.FindMany(ctx, f.exec, f.entity(schema.EntityShop), query.FindArgs{
		Where: query.Some("brands", query.Equals("name", "Bolt")),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, query.IDs(shops))

	shops, err = f.loader.FindMany(ctx, f.exec, f.entity(schema.EntityShop), query.FindArgs{
		Where: query.And(query.Some("reviews", nil), query.Every("reviews", query.Gte("rating", 4))),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, query.IDs(shops))
}

func TestFindManyValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shop := f.entity(schema.EntityShop)

	cases := map[string]query.FindArgs{
		"negative skip":       {Skip: -1},
		"unknown order":       {OrderBy: []query.OrderBy{query.OrderAsc("rank")}},
		"non unique cursor":   {Cursor: query.UniqueWhere{"type": "bar"}},
		"unknown select":      {Select: &query.Selection{Fields: []string{"rank"}}},
		"relation in fields":  {Select: &query.Selection{Fields: []string{"brands"}}},
		"unknown include":     {Select: &query.Selection{Include: map[string]*query.Nested{"owners": nil}}},
		"count on scalar":     {Select: &query.Selection{Count: []string{"name"}}},
		"unknown distinct":    {Distinct: []string{"rank"}},
		"nested bad where":    {Select: &query.Selection{Include: map[string]*query.Nested{"reviews": {Where: query.Equals("stars", 1)}}}},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.loader.FindMany(ctx, f.exec, shop, args)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err), "got %v", err)
		})
	}

	_, err := f.loader.FindMany(ctx, f.exec, f.entity(schema.EntityReview), query.FindArgs{
		Select: &query.Selection{Include: map[string]*query.Nested{"user": {Take: query.Take(1)}}},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestFindUniqueRowUsesCompoundKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	review := f.entity(schema.EntityReview)

	row, err := f.loader.FindUniqueRow(ctx, f.exec, review, query.UniqueWhere{"shopId": 1, "userId": 2})
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(2), row["rating"])

	row, err = f.loader.FindUniqueRow(ctx, f.exec, review, query.UniqueWhere{"shopId": 3, "userId": 2})
	require.NoError(t, err)
	assert.Nil(t, row)

	_, err = f.loader.FindUniqueRow(ctx, f.exec, review, query.UniqueWhere{"shopId": 1})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}
