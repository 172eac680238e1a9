package builder

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
)

// Get runs the query and materializes one record per row, then eager loads
// the relations requested with With.
func (q Query) Get(ctx context.Context) ([]*Record, error) {
	sql, args, err := q.ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := q.model.db.db.Query(ctx, sql, args)
	if err != nil {
		return nil, err
	}

	records := make([]*Record, len(rows))
	for i, row := range rows {
		records[i] = newRecord(q.model, row, true)
	}

	for _, name := range q.with {
		if err := q.model.loadRelation(ctx, records, name); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// First returns the first matching record, or nil when there is none.
func (q Query) First(ctx context.Context) (*Record, error) {
	records, err := q.Limit(1).Get(ctx)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// Count returns the number of matching rows. Only the WHERE state and the
// soft-delete scope apply: projection, joins, grouping, ordering and limits
// are ignored.
func (q Query) Count(ctx context.Context) (int64, error) {
	sql, args, err := q.compile("COUNT(*)", clauses{})
	if err != nil {
		return 0, err
	}
	return q.model.db.db.QueryInt(ctx, sql, args)
}

// Exists reports whether any row matches. Like Count it ignores joins.
func (q Query) Exists(ctx context.Context) (bool, error) {
	inner, args, err := q.compile("1", clauses{})
	if err != nil {
		return false, err
	}
	v, err := q.model.db.db.QueryValue(ctx, "SELECT EXISTS ("+inner+")", args)
	if err != nil {
		return false, err
	}
	exists, _ := v.(bool)
	return exists, nil
}

// Pluck returns the values of one column for the matching rows, honouring
// ordering and limits.
func (q Query) Pluck(ctx context.Context, col string) ([]any, error) {
	column, err := q.column(col)
	if err != nil {
		return nil, err
	}
	sql, args, err := q.compile(column, clauses{joins: true, ordering: true})
	if err != nil {
		return nil, err
	}
	values, err := q.model.db.db.QueryColumn(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		values[i] = fromDriver(v)
	}
	return values, nil
}

// FirstPluck returns one column of the first matching row, or nil.
func (q Query) FirstPluck(ctx context.Context, col string) (any, error) {
	values, err := q.Limit(1).Pluck(ctx, col)
	if err != nil || len(values) == 0 {
		return nil, err
	}
	return values[0], nil
}

// Page is one page of results.
type Page struct {
	Data      []*Record `json:"data"`
	Total     int64     `json:"total"`
	Page      int       `json:"page"`
	PageCount int       `json:"page_count"`
	PerPage   int       `json:"per_page"`
}

// Paginate returns page (1-based) of perPage records together with the
// total row count. Both values are clamped to at least 1. The count and
// the page are fetched concurrently when the connection allows it, and
// one after the other on a single connection or transaction.
func (q Query) Paginate(ctx context.Context, page, perPage int) (*Page, error) {
	if q.model == nil {
		return nil, errUnbound
	}
	page = max(page, 1)
	perPage = max(perPage, 1)

	result := &Page{Page: page, PerPage: perPage}
	pageQuery := q.Limit(perPage).Offset((page - 1) * perPage)

	if q.model.db.db.Concurrent() {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			total, err := q.Count(gctx)
			result.Total = total
			return err
		})
		g.Go(func() error {
			data, err := pageQuery.Get(gctx)
			result.Data = data
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		total, err := q.Count(ctx)
		if err != nil {
			return nil, err
		}
		data, err := pageQuery.Get(ctx)
		if err != nil {
			return nil, err
		}
		result.Total, result.Data = total, data
	}

	result.PageCount = int((result.Total + int64(perPage) - 1) / int64(perPage))
	return result, nil
}

// isNoRows reports whether err means a single-row statement found nothing.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
