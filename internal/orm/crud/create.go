package crud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conduit-lang/pgmeta/internal/orm/codegen"
	"github.com/conduit-lang/pgmeta/internal/orm/schema"
	"github.com/conduit-lang/pgmeta/internal/orm/tracking"
)

// ErrNoRowReturned is returned when an INSERT ... RETURNING yields no row
var ErrNoRowReturned = errors.New("insert returned no row")

// Create returns a new, clean record of entity holding zero values. No SQL is issued.
// The primary key and optional columns start unset so the database supplies them.
// A zero time on a Timestamp or Date column counts as unassigned: insert leaves it
// out so a column default applies, or PostgreSQL rejects the missing NOT NULL value.
func (o *Operations) Create(entity *schema.Entity) (*tracking.Record, error) {
	if _, err := o.tableFor(entity); err != nil {
		return nil, err
	}

	values := make(map[string]interface{})
	for _, col := range entity.Columns() {
		if col.Primary {
			continue
		}
		if col.Optional {
			values[col.PropertyKey] = nil
			continue
		}
		values[col.PropertyKey] = zeroValue(col.Type)
	}

	return tracking.TrackBlank(values, entity), nil
}

// zeroValue returns the in-memory zero value for a column type
func zeroValue(t schema.ColumnType) interface{} {
	switch t.(type) {
	case schema.Number:
		return int64(0)
	case schema.String, schema.Enum:
		return ""
	case schema.Timestamp, schema.Date:
		return time.Time{}
	default:
		return nil
	}
}

func isZeroTime(value interface{}) bool {
	t, ok := value.(time.Time)
	return ok && t.IsZero()
}

// insert persists a new record and adopts the values the database returns
func (o *Operations) insert(ctx context.Context, table string, rec *tracking.Record) error {
	entity := rec.Entity()
	if _, err := entity.RequirePrimaryKey(); err != nil {
		return err
	}

	var columns []string
	var placeholders []string
	var args []interface{}
	for _, col := range entity.Columns() {
		value, ok := rec.Lookup(col.PropertyKey)
		if !ok || value == nil || isZeroTime(value) {
			continue
		}
		args = append(args, value)
		columns = append(columns, codegen.QuoteIdentifier(col.Name))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	var query string
	if len(columns) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", codegen.QuoteIdentifier(table))
	} else {
		query = fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			codegen.QuoteIdentifier(table),
			strings.Join(columns, ", "),
			strings.Join(placeholders, ", "),
		)
	}

	o.trace(OperationCreate, table, query, args)
	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	returned, err := scanRows(rows, entity)
	if err != nil {
		return err
	}
	if len(returned) == 0 {
		return ErrNoRowReturned
	}

	for key, value := range returned[0] {
		rec.Set(key, value)
	}
	return nil
}
