package loader

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
	"github.com/angelmondragon/shopclient/pkg/pagination"
)

// Window orders, deduplicates and pages a filtered row set.
type Window struct {
	OrderBy  []query.OrderBy
	Cursor   query.UniqueWhere
	Take     *int
	Skip     int
	Distinct []string
}

func (w Window) empty() bool {
	return len(w.OrderBy) == 0 && w.Cursor == nil && w.Take == nil && w.Skip == 0 && len(w.Distinct) == 0
}

// validate checks the window against entity and coerces the cursor.
func (w Window) validate(entity *schema.Entity) (Window, error) {
	if w.Skip < 0 {
		return w, schema.Invalid(entity.Name, "", "skip must not be negative")
	}
	if err := ValidateOrderBy(entity, w.OrderBy); err != nil {
		return w, err
	}
	for _, name := range w.Distinct {
		if _, ok := entity.Field(name); !ok {
			return w, schema.Invalid(entity.Name, name, "unknown distinct field")
		}
	}
	if w.Cursor != nil {
		cursor, err := CoerceUnique(entity, w.Cursor)
		if err != nil {
			return w, err
		}
		w.Cursor = cursor
	}
	return w, nil
}

// ValidateOrderBy rejects unknown or unorderable fields.
func ValidateOrderBy(entity *schema.Entity, orderBy []query.OrderBy) error {
	for _, ob := range orderBy {
		f, ok := entity.Field(ob.Field)
		if !ok {
			return schema.Invalid(entity.Name, ob.Field, "unknown orderBy field")
		}
		if !f.Type.Ordered() {
			return schema.Invalid(entity.Name, ob.Field, "cannot order by %s fields", f.Type)
		}
	}
	return nil
}

// CoerceUnique checks that where names exactly one unique constraint with
// non-null values and returns it with canonical values.
func CoerceUnique(entity *schema.Entity, where query.UniqueWhere) (query.UniqueWhere, error) {
	if len(where) == 0 {
		return nil, schema.Invalid(entity.Name, "", "unique where must not be empty")
	}
	keys := where.Keys()
	if !entity.IsUniqueKey(keys) {
		return nil, schema.Invalid(entity.Name, strings.Join(keys, ","), "fields do not form a unique key")
	}
	out := make(query.UniqueWhere, len(where))
	for _, k := range keys {
		f, _ := entity.Field(k)
		if where[k] == nil {
			return nil, schema.Invalid(entity.Name, k, "unique key values must not be null")
		}
		v, err := f.Coerce(where[k])
		if err != nil {
			return nil, schema.Invalid(entity.Name, k, "%v", err)
		}
		out[k] = v
	}
	return out, nil
}

// SortRows orders rows in place. Nulls come first ascending and last
// descending unless the clause says otherwise; id breaks ties.
func SortRows(rows []driver.Row, orderBy []query.OrderBy) {
	clauses := orderBy
	hasID := false
	for _, ob := range orderBy {
		if ob.Field == "id" {
			hasID = true
		}
	}
	if !hasID {
		clauses = append(append([]query.OrderBy(nil), orderBy...), query.OrderAsc("id"))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return CompareRows(rows[i], rows[j], clauses) < 0
	})
}

// CompareRows orders two rows by the clauses alone, without a tie-breaker.
func CompareRows(a, b driver.Row, orderBy []query.OrderBy) int {
	for _, ob := range orderBy {
		if c := compareForOrder(a[ob.Field], b[ob.Field], ob); c != 0 {
			return c
		}
	}
	return 0
}

func compareForOrder(a, b any, ob query.OrderBy) int {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0
		}
		nullsFirst := ob.Order == query.Asc
		switch ob.Nulls {
		case query.NullsFirst:
			nullsFirst = true
		case query.NullsLast:
			nullsFirst = false
		}
		if (a == nil) == nullsFirst {
			return -1
		}
		return 1
	}
	c := schema.Compare(a, b)
	if ob.Order == query.Desc {
		return -c
	}
	return c
}

// distinctRows keeps the first row of each combination of fields.
func distinctRows(rows []driver.Row, fields []string) []driver.Row {
	if len(fields) == 0 {
		return rows
	}
	seen := map[string]bool{}
	out := make([]driver.Row, 0, len(rows))
	for _, r := range rows {
		key := GroupKey(r, fields)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// GroupKey renders the values of fields as a map key.
func GroupKey(r driver.Row, fields []string) string {
	var sb strings.Builder
	for _, f := range fields {
		switch v := r[f].(type) {
		case nil:
			sb.WriteString("n;")
		case time.Time:
			fmt.Fprintf(&sb, "t%d;", v.UnixNano())
		default:
			fmt.Fprintf(&sb, "%T%q;", v, fmt.Sprint(v))
		}
	}
	return sb.String()
}

// applyWindow sorts, deduplicates and pages rows that already passed the
// filter. A cursor that matches no row yields an empty page.
func applyWindow(rows []driver.Row, w Window) []driver.Row {
	SortRows(rows, w.OrderBy)
	rows = distinctRows(rows, w.Distinct)

	cursor := -1
	if w.Cursor != nil {
		for i, r := range rows {
			if matchesUnique(r, w.Cursor) {
				cursor = i
				break
			}
		}
		if cursor < 0 {
			return []driver.Row{}
		}
	}
	start, end := pagination.Window(len(rows), cursor, w.Skip, w.Take)
	return rows[start:end]
}

func matchesUnique(r driver.Row, where query.UniqueWhere) bool {
	for k, v := range where {
		if !schema.Equal(r[k], v) {
			return false
		}
	}
	return true
}
