package memdriver

import (
	"fmt"

	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/schema"
)

type table struct {
	entity *schema.Entity
	rows   map[int64]driver.Row
	nextID int64
}

type store struct {
	tables map[string]*table
}

func newStore(reg *schema.Registry) *store {
	s := &store{tables: map[string]*table{}}
	for _, e := range reg.Entities() {
		s.tables[e.Name] = &table{entity: e, rows: map[int64]driver.Row{}, nextID: 1}
	}
	return s
}

func (s *store) clone() *store {
	out := &store{tables: make(map[string]*table, len(s.tables))}
	for name, t := range s.tables {
		rows := make(map[int64]driver.Row, len(t.rows))
		for id, row := range t.rows {
			rows[id] = row
		}
		out.tables[name] = &table{entity: t.entity, rows: rows, nextID: t.nextID}
	}
	return out
}

func (s *store) table(entity string) (*table, error) {
	t, ok := s.tables[entity]
	if !ok {
		return nil, fmt.Errorf("memdriver: unknown entity %q", entity)
	}
	return t, nil
}

func (s *store) scan(scan driver.Scan) ([]driver.Row, error) {
	t, err := s.table(scan.Entity)
	if err != nil {
		return nil, err
	}
	out := []driver.Row{}
	for _, id := range sortedIDs(t.rows) {
		row := t.rows[id]
		if matches(row, scan.Conds) {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

func matches(row driver.Row, conds []driver.Cond) bool {
	for _, c := range conds {
		found := false
		for _, v := range c.Values {
			if v != nil && schema.Equal(row[c.Field], v) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *store) insert(entity string, row driver.Row, opts driver.InsertOptions) (driver.Row, bool, error) {
	t, err := s.table(entity)
	if err != nil {
		return nil, false, err
	}
	stored := driver.Row{}
	for _, f := range t.entity.Fields() {
		stored[f.Name] = row[f.Name]
	}
	stored["id"] = t.nextID
	if cerr := t.checkUnique(stored, 0); cerr != nil {
		if opts.OnConflictDoNothing {
			return nil, false, nil
		}
		return nil, false, cerr
	}
	t.rows[t.nextID] = stored
	t.nextID++
	return stored.Clone(), true, nil
}

func (s *store) update(entity string, id int64, values driver.Row) (driver.Row, error) {
	t, err := s.table(entity)
	if err != nil {
		return nil, err
	}
	current, ok := t.rows[id]
	if !ok {
		return nil, driver.ErrRowNotFound
	}
	next := current.Clone()
	for k, v := range values {
		if k == "id" {
			continue
		}
		if _, known := t.entity.Field(k); !known {
			return nil, fmt.Errorf("memdriver: %s has no field %q", entity, k)
		}
		next[k] = v
	}
	if cerr := t.checkUnique(next, id); cerr != nil {
		return nil, cerr
	}
	t.rows[id] = next
	return next.Clone(), nil
}

func (s *store) delete(entity string, ids []int64) (int64, error) {
	t, err := s.table(entity)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		if _, ok := t.rows[id]; ok {
			delete(t.rows, id)
			n++
		}
	}
	return n, nil
}

// checkUnique rejects row when another row shares every member of a unique
// constraint. Constraints with a null member never conflict.
func (t *table) checkUnique(row driver.Row, self int64) error {
	for _, u := range t.entity.Uniques() {
		if len(u.Fields) == 1 && u.Fields[0] == "id" {
			continue
		}
		if hasNull(row, u.Fields) {
			continue
		}
		for id, other := range t.rows {
			if id == self {
				continue
			}
			if sameKey(row, other, u.Fields) {
				return &driver.ConstraintError{
					Entity:     t.entity.Name,
					Constraint: u.Name,
					Fields:     append([]string(nil), u.Fields...),
				}
			}
		}
	}
	return nil
}

func hasNull(row driver.Row, fields []string) bool {
	for _, f := range fields {
		if row[f] == nil {
			return true
		}
	}
	return false
}

func sameKey(a, b driver.Row, fields []string) bool {
	for _, f := range fields {
		if !schema.Equal(a[f], b[f]) {
			return false
		}
	}
	return true
}
