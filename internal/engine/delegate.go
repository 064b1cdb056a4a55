package engine

import (
	"context"

	"github.com/angelmondragon/shopclient/internal/cache"
	"github.com/angelmondragon/shopclient/internal/driver"
	"github.com/angelmondragon/shopclient/internal/loader"
	"github.com/angelmondragon/shopclient/internal/mutation"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/internal/schema"
	pkgerrors "github.com/angelmondragon/shopclient/pkg/errors"
)

// Delegate exposes the operation set of one entity.
type Delegate struct {
	c      *Client
	entity *schema.Entity
}

// Entity returns the schema entity the delegate operates on.
func (d *Delegate) Entity() *schema.Entity {
	return d.entity
}

func (d *Delegate) FindUnique(ctx context.Context, args query.FindUniqueArgs) (query.Record, error) {
	return run(d.c, ctx, d.entity.Name, "findUnique", false, d.checkSelection(args.Select),
		func(ctx context.Context, exec driver.Executor) (query.Record, error) {
			return d.findUnique(ctx, exec, args)
		})
}

// FindUniqueOrThrow is FindUnique that fails with NOT_FOUND instead of
// returning nil.
func (d *Delegate) FindUniqueOrThrow(ctx context.Context, args query.FindUniqueArgs) (query.Record, error) {
	return run(d.c, ctx, d.entity.Name, "findUniqueOrThrow", false, d.checkSelection(args.Select),
		func(ctx context.Context, exec driver.Executor) (query.Record, error) {
			rec, err := d.findUnique(ctx, exec, args)
			if err != nil {
				return nil, err
			}
			if rec == nil {
				return nil, mutation.NotFound(d.entity.Name, args.Where)
			}
			return rec, nil
		})
}

func (d *Delegate) findUnique(ctx context.Context, exec driver.Executor, args query.FindUniqueArgs) (query.Record, error) {
	key, err := loader.CoerceUnique(d.entity, args.Where)
	if err != nil {
		return nil, err
	}
	cacheable := d.c.cache != nil && d.c.tx == nil && flat(args.Select)
	var fields []string
	if args.Select != nil {
		fields = args.Select.Fields
	}
	var slot cache.Slot
	if cacheable {
		var (
			rec query.Record
			hit bool
		)
		if rec, hit, slot = d.c.cache.Lookup(ctx, d.entity, key, fields); hit {
			return rec, nil
		}
	}
	row, err := d.c.loader.FindUniqueRow(ctx, exec, d.entity, key)
	if err != nil {
		return nil, err
	}
	var rec query.Record
	if row != nil {
		if rec, err = d.project(ctx, exec, row, args.Select); err != nil {
			return nil, err
		}
	}
	if cacheable {
		d.c.cache.Save(ctx, slot, rec)
	}
	return rec, nil
}

// FindFirst returns the first record of FindMany, or nil.
func (d *Delegate) FindFirst(ctx context.Context, args query.FindArgs) (query.Record, error) {
	return run(d.c, ctx, d.entity.Name, "findFirst", false, nil,
		func(ctx context.Context, exec driver.Executor) (query.Record, error) {
			return d.findFirst(ctx, exec, args)
		})
}

func (d *Delegate) FindFirstOrThrow(ctx context.Context, args query.FindArgs) (query.Record, error) {
	return run(d.c, ctx, d.entity.Name, "findFirstOrThrow", false, nil,
		func(ctx context.Context, exec driver.Executor) (query.Record, error) {
			rec, err := d.findFirst(ctx, exec, args)
			if err != nil {
				return nil, err
			}
			if rec == nil {
				return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "no %s record matches the given filter", d.entity.Name).
					WithDetails(map[string]any{"entity": d.entity.Name})
			}
			return rec, nil
		})
}

func (d *Delegate) findFirst(ctx context.Context, exec driver.Executor, args query.FindArgs) (query.Record, error) {
	if args.Take == nil || *args.Take >= 0 {
		args.Take = query.Take(1)
	} else {
		args.Take = query.Take(-1)
	}
	recs, err := d.c.loader.FindMany(ctx, exec, d.entity, args)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

func (d *Delegate) FindMany(ctx context.Context, args query.FindArgs) ([]query.Record, error) {
	return run(d.c, ctx, d.entity.Name, "findMany", false, nil,
		func(ctx context.Context, exec driver.Executor) ([]query.Record, error) {
			return d.c.loader.FindMany(ctx, exec, d.entity, args)
		})
}

func (d *Delegate) Create(ctx context.Context, args query.CreateArgs) (query.Record, error) {
	return run(d.c, ctx, d.entity.Name, "create", true, d.checkSelection(args.Select),
		func(ctx context.Context, exec driver.Executor) (query.Record, error) {
			row, err := d.c.mut.Create(ctx, exec, d.entity, args.Data)
			if err != nil {
				return nil, err
			}
			return d.project(ctx, exec, row, args.Select)
		})
}

func (d *Delegate) CreateMany(ctx context.Context, args query.CreateManyArgs) (query.BatchPayload, error) {
	return run(d.c, ctx, d.entity.Name, "createMany", true, nil,
		func(ctx context.Context, exec driver.Executor) (query.BatchPayload, error) {
			n, err := d.c.mut.CreateMany(ctx, exec, d.entity, args.Data, args.SkipDuplicates)
			return query.BatchPayload{Count: n}, err
		})
}

func (d *Delegate) Update(ctx context.Context, args query.UpdateArgs) (query.Record, error) {
	return run(d.c, ctx, d.entity.Name, "update", true, d.checkSelection(args.Select),
		func(ctx context.Context, exec driver.Executor) (query.Record, error) {
			row, err := d.c.mut.Update(ctx, exec, d.entity, args.Where, args.Data)
			if err != nil {
				return nil, err
			}
			return d.project(ctx, exec, row, args.Select)
		})
}

func (d *Delegate) UpdateMany(ctx context.Context, args query.UpdateManyArgs) (query.BatchPayload, error) {
	return run(d.c, ctx, d.entity.Name, "updateMany", true, nil,
		func(ctx context.Context, exec driver.Executor) (query.BatchPayload, error) {
			n, err := d.c.mut.UpdateMany(ctx, exec, d.entity, args.Where, args.Data)
			return query.BatchPayload{Count: n}, err
		})
}

// Upsert updates the row matching Where, or creates it from Create.
func (d *Delegate) Upsert(ctx context.Context, args query.UpsertArgs) (query.Record, error) {
	return run(d.c, ctx, d.entity.Name, "upsert", true, d.checkSelection(args.Select),
		func(ctx context.Context, exec driver.Executor) (query.Record, error) {
			row, err := d.c.mut.Upsert(ctx, exec, d.entity, args.Where, args.Create, args.Update)
			if err != nil {
				return nil, err
			}
			return d.project(ctx, exec, row, args.Select)
		})
}

// Delete removes one row and returns it, with its selection loaded before
// the row and its dependents are gone.
func (d *Delegate) Delete(ctx context.Context, args query.DeleteArgs) (query.Record, error) {
	return run(d.c, ctx, d.entity.Name, "delete", true, d.checkSelection(args.Select),
		func(ctx context.Context, exec driver.Executor) (query.Record, error) {
			row, err := d.c.mut.Locate(ctx, exec, d.entity, args.Where)
			if err != nil {
				return nil, err
			}
			rec, err := d.project(ctx, exec, row, args.Select)
			if err != nil {
				return nil, err
			}
			if _, err := d.c.mut.DeleteRows(ctx, exec, d.entity, []driver.Row{row}); err != nil {
				return nil, err
			}
			return rec, nil
		})
}

func (d *Delegate) DeleteMany(ctx context.Context, args query.DeleteManyArgs) (query.BatchPayload, error) {
	return run(d.c, ctx, d.entity.Name, "deleteMany", true, nil,
		func(ctx context.Context, exec driver.Executor) (query.BatchPayload, error) {
			n, err := d.c.mut.DeleteMany(ctx, exec, d.entity, args.Where)
			return query.BatchPayload{Count: n}, err
		})
}

func (d *Delegate) Aggregate(ctx context.Context, args query.AggregateArgs) (*query.AggregateResult, error) {
	return run(d.c, ctx, d.entity.Name, "aggregate", false, nil,
		func(ctx context.Context, exec driver.Executor) (*query.AggregateResult, error) {
			return d.c.agg.Aggregate(ctx, exec, d.entity, args)
		})
}

func (d *Delegate) GroupBy(ctx context.Context, args query.GroupByArgs) ([]query.Record, error) {
	return run(d.c, ctx, d.entity.Name, "groupBy", false, nil,
		func(ctx context.Context, exec driver.Executor) ([]query.Record, error) {
			return d.c.agg.GroupBy(ctx, exec, d.entity, args)
		})
}

func (d *Delegate) Count(ctx context.Context, args query.CountArgs) (int64, error) {
	return run(d.c, ctx, d.entity.Name, "count", false, nil,
		func(ctx context.Context, exec driver.Executor) (int64, error) {
			return d.c.agg.Count(ctx, exec, d.entity, args)
		})
}

func (d *Delegate) checkSelection(sel *query.Selection) error {
	return d.c.loader.ValidateSelection(d.entity, sel)
}

func (d *Delegate) project(ctx context.Context, exec driver.Executor, row driver.Row, sel *query.Selection) (query.Record, error) {
	recs, err := d.c.loader.Project(ctx, exec, d.entity, []driver.Row{row}, sel)
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

// flat reports whether sel loads no relations.
func flat(sel *query.Selection) bool {
	return sel == nil || (len(sel.Include) == 0 && len(sel.Count) == 0)
}
