package query

import "time"

// Record is one result row. Scalars hold int64, float64, string, time.Time,
// json.RawMessage, or nil. Included to-one relations hold a Record (or
// nil), list relations a []Record, and relation counts sit under "_count".
type Record map[string]any

func (r Record) Int(field string) int64 {
	v, _ := r[field].(int64)
	return v
}

func (r Record) Float(field string) float64 {
	v, _ := r[field].(float64)
	return v
}

func (r Record) String(field string) string {
	v, _ := r[field].(string)
	return v
}

func (r Record) Time(field string) time.Time {
	v, _ := r[field].(time.Time)
	return v
}

func (r Record) IsNull(field string) bool {
	v, ok := r[field]
	return ok && v == nil
}

func (r Record) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// One returns an included to-one relation, or nil.
func (r Record) One(relation string) Record {
	v, _ := r[relation].(Record)
	return v
}

// Many returns an included list relation.
func (r Record) Many(relation string) []Record {
	v, _ := r[relation].([]Record)
	return v
}

// RelationCount returns the _count entry for relation.
func (r Record) RelationCount(relation string) int64 {
	counts, _ := r["_count"].(Record)
	return counts.Int(relation)
}

// IDs collects the id of each record.
func IDs(records []Record) []int64 {
	out := make([]int64, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Int("id"))
	}
	return out
}
