package engine

import (
	"context"

	"github.com/angelmondragon/shopclient/internal/query"
)

// bind defers a delegate call to the transaction it ends up running in.
func bind[A, R any](d *Delegate, call func(*Delegate, context.Context, A) (R, error), args A) Operation {
	entity := d.entity.Name
	return func(ctx context.Context, tx *Client) (any, error) {
		out, err := call(tx.delegates[entity], ctx, args)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

func (d *Delegate) FindUniqueOp(args query.FindUniqueArgs) Operation {
	return bind(d, (*Delegate).FindUnique, args)
}

func (d *Delegate) FindFirstOp(args query.FindArgs) Operation {
	return bind(d, (*Delegate).FindFirst, args)
}

func (d *Delegate) FindManyOp(args query.FindArgs) Operation {
	return bind(d, (*Delegate).FindMany, args)
}

func (d *Delegate) CreateOp(args query.CreateArgs) Operation {
	return bind(d, (*Delegate).Create, args)
}

func (d *Delegate) CreateManyOp(args query.CreateManyArgs) Operation {
	return bind(d, (*Delegate).CreateMany, args)
}

func (d *Delegate) UpdateOp(args query.UpdateArgs) Operation {
	return bind(d, (*Delegate).Update, args)
}

func (d *Delegate) UpdateManyOp(args query.UpdateManyArgs) Operation {
	return bind(d, (*Delegate).UpdateMany, args)
}

func (d *Delegate) UpsertOp(args query.UpsertArgs) Operation {
	return bind(d, (*Delegate).Upsert, args)
}

func (d *Delegate) DeleteOp(args query.DeleteArgs) Operation {
	return bind(d, (*Delegate).Delete, args)
}

func (d *Delegate) DeleteManyOp(args query.DeleteManyArgs) Operation {
	return bind(d, (*Delegate).DeleteMany, args)
}

func (d *Delegate) AggregateOp(args query.AggregateArgs) Operation {
	return bind(d, (*Delegate).Aggregate, args)
}

func (d *Delegate) GroupByOp(args query.GroupByArgs) Operation {
	return bind(d, (*Delegate).GroupBy, args)
}

func (d *Delegate) CountOp(args query.CountArgs) Operation {
	return bind(d, (*Delegate).Count, args)
}
