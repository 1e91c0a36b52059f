package crud

import (
	"context"
	"fmt"

	"github.com/conduit-lang/pgmeta/internal/orm/codegen"
	"github.com/conduit-lang/pgmeta/internal/orm/tracking"
)

// Delete removes the row of a persisted record by its primary key
func (o *Operations) Delete(ctx context.Context, rec *tracking.Record) error {
	entity := rec.Entity()
	table, err := o.tableFor(entity)
	if err != nil {
		return err
	}

	pk, err := entity.RequirePrimaryKey()
	if err != nil {
		return err
	}

	id, err := primaryKeyValue(rec, pk)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		"DELETE FROM %s WHERE %s = $1",
		codegen.QuoteIdentifier(table),
		codegen.QuoteIdentifier(pk.Name),
	)

	o.trace(OperationDelete, table, query, []interface{}{id})
	_, err = o.db.ExecContext(ctx, query, id)
	return err
}
