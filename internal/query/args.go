package query

import "sort"

type SortOrder int

const (
	Asc SortOrder = iota
	Desc
)

type NullsOrder int

const (
	NullsDefault NullsOrder = iota
	NullsFirst
	NullsLast
)

type OrderBy struct {
	Field string
	Order SortOrder
	Nulls NullsOrder
}

func OrderAsc(field string) OrderBy { return OrderBy{Field: field, Order: Asc} }

func OrderDesc(field string) OrderBy { return OrderBy{Field: field, Order: Desc} }

// UniqueWhere identifies one row through the id or another unique
// constraint; compound constraints list every member field.
type UniqueWhere map[string]any

// ByID is a UniqueWhere on the surrogate key.
func ByID(id int64) UniqueWhere { return UniqueWhere{"id": id} }

// Keys returns the field names in sorted order.
func (w UniqueWhere) Keys() []string { return sortedKeys(w) }

// Take builds the optional take argument.
func Take(n int) *int { return &n }

// Selection shapes a result. Empty Fields means every scalar field.
type Selection struct {
	Fields  []string
	Include map[string]*Nested
	Count   []string
}

// Nested shapes and filters the rows of one included relation.
type Nested struct {
	Where    Filter
	OrderBy  []OrderBy
	Cursor   UniqueWhere
	Take     *int
	Skip     int
	Distinct []string
	Select   *Selection
}

type FindUniqueArgs struct {
	Where  UniqueWhere
	Select *Selection
}

type FindArgs struct {
	Where    Filter
	OrderBy  []OrderBy
	Cursor   UniqueWhere
	Take     *int
	Skip     int
	Distinct []string
	Select   *Selection
}

type CountArgs struct {
	Where   Filter
	OrderBy []OrderBy
	Cursor  UniqueWhere
	Take    *int
	Skip    int
}

type AggregateArgs struct {
	Where   Filter
	OrderBy []OrderBy
	Cursor  UniqueWhere
	Take    *int
	Skip    int

	// Count accepts field names and "_all".
	Count []string
	Avg   []string
	Sum   []string
	Min   []string
	Max   []string
}

// CountAll is the Count selector for the number of rows.
const CountAll = "_all"

type AggregateResult struct {
	Count map[string]int64
	Avg   map[string]any
	Sum   map[string]any
	Min   map[string]any
	Max   map[string]any
}

type GroupByArgs struct {
	By      []string
	Where   Filter
	Having  Filter
	OrderBy []OrderBy
	Take    *int
	Skip    int

	Count []string
	Avg   []string
	Sum   []string
	Min   []string
	Max   []string
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
