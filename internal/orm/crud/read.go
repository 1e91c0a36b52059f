package crud

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/pgmeta/internal/orm/codegen"
	"github.com/conduit-lang/pgmeta/internal/orm/schema"
	"github.com/conduit-lang/pgmeta/internal/orm/tracking"
)

// Fetch retrieves every record of entity matching the equality filters in where.
// Filters are keyed by property key; a nil or empty map selects all rows.
func (o *Operations) Fetch(
	ctx context.Context,
	entity *schema.Entity,
	where map[string]interface{},
) ([]*tracking.Record, error) {
	table, err := o.tableFor(entity)
	if err != nil {
		return nil, err
	}

	clause, args, err := buildWhere(entity, where)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s%s", codegen.QuoteIdentifier(table), clause)

	o.trace(OperationRead, table, query, args)
	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results, err := scanRows(rows, entity)
	if err != nil {
		return nil, err
	}

	records := make([]*tracking.Record, 0, len(results))
	for _, values := range results {
		records = append(records, tracking.Track(values, entity, false))
	}
	return records, nil
}

// FetchOne returns the first matching record, or nil when nothing matches
func (o *Operations) FetchOne(
	ctx context.Context,
	entity *schema.Entity,
	where map[string]interface{},
) (*tracking.Record, error) {
	records, err := o.Fetch(ctx, entity, where)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// Find retrieves a record by its primary key, or nil when it does not exist
func (o *Operations) Find(
	ctx context.Context,
	entity *schema.Entity,
	id interface{},
) (*tracking.Record, error) {
	pk, err := entity.RequirePrimaryKey()
	if err != nil {
		return nil, err
	}
	return o.FetchOne(ctx, entity, map[string]interface{}{pk.PropertyKey: id})
}

// Count returns the number of records matching the equality filters in where
func (o *Operations) Count(
	ctx context.Context,
	entity *schema.Entity,
	where map[string]interface{},
) (int64, error) {
	table, err := o.tableFor(entity)
	if err != nil {
		return 0, err
	}

	clause, args, err := buildWhere(entity, where)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", codegen.QuoteIdentifier(table), clause)

	o.trace(OperationRead, table, query, args)
	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, rows.Err()
}

// buildWhere translates property-keyed filters into a WHERE clause.
// Conditions follow column declaration order.
func buildWhere(entity *schema.Entity, where map[string]interface{}) (string, []interface{}, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for key := range where {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := columnForKey(entity, key); err != nil {
			return "", nil, err
		}
	}

	var conditions []string
	var args []interface{}
	for _, col := range entity.Columns() {
		value, ok := where[col.PropertyKey]
		if !ok {
			continue
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", codegen.QuoteIdentifier(col.Name), len(args)))
	}

	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}
