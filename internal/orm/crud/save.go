package crud

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/conduit-lang/pgmeta/internal/orm/codegen"
	"github.com/conduit-lang/pgmeta/internal/orm/schema"
	"github.com/conduit-lang/pgmeta/internal/orm/tracking"
)

// ErrMissingPrimaryKeyValue is returned when a persisted record has no primary key value
var ErrMissingPrimaryKeyValue = errors.New("record has no primary key value")

// Save persists a record. A new record is inserted, a dirty record updates only
// its dirty columns, a clean record issues no SQL. The record is clean afterwards.
func (o *Operations) Save(ctx context.Context, rec *tracking.Record) error {
	entity := rec.Entity()
	table, err := o.tableFor(entity)
	if err != nil {
		return err
	}

	switch {
	case rec.IsNew():
		if err := o.insert(ctx, table, rec); err != nil {
			return err
		}
	case rec.IsDirty():
		if err := o.update(ctx, table, rec); err != nil {
			return err
		}
	}

	rec.MarkClean()
	return nil
}

// SaveAll saves records in order and stops at the first failure
func (o *Operations) SaveAll(ctx context.Context, records ...*tracking.Record) error {
	for i, rec := range records {
		if err := o.Save(ctx, rec); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// update writes the dirty columns of a persisted record
func (o *Operations) update(ctx context.Context, table string, rec *tracking.Record) error {
	entity := rec.Entity()
	pk, err := entity.RequirePrimaryKey()
	if err != nil {
		return err
	}

	changes := rec.Changes()
	for _, key := range rec.DirtyKeys() {
		if _, err := columnForKey(entity, key); err != nil {
			return err
		}
	}

	var sets []string
	var args []interface{}
	for _, col := range entity.Columns() {
		value, dirty := changes[col.PropertyKey]
		if !dirty {
			continue
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", codegen.QuoteIdentifier(col.Name), len(args)))
	}

	id, err := primaryKeyValue(rec, pk)
	if err != nil {
		return err
	}
	args = append(args, id)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d",
		codegen.QuoteIdentifier(table),
		strings.Join(sets, ", "),
		codegen.QuoteIdentifier(pk.Name),
		len(args),
	)

	o.trace(OperationUpdate, table, query, args)
	_, err = o.db.ExecContext(ctx, query, args...)
	return err
}

func primaryKeyValue(rec *tracking.Record, pk *schema.Column) (interface{}, error) {
	id := rec.Get(pk.PropertyKey)
	if id == nil {
		return nil, fmt.Errorf("%s.%s: %w", rec.Entity().Name, pk.PropertyKey, ErrMissingPrimaryKeyValue)
	}
	return id, nil
}
