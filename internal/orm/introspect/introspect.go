// Package introspect reads the live PostgreSQL catalog into a Schema snapshot.
// Snapshots are recomputed on every call and never cached. Nothing here writes.
package introspect

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/conduit-lang/pgmeta/internal/orm/codegen"
)

// DefaultLedgerTable is the table recording applied migration versions
const DefaultLedgerTable = "schema_versions"

const defaultConcurrency = 4

const (
	tablesQuery = `SELECT table_name FROM information_schema.tables ` +
		`WHERE table_schema = 'public' AND table_type = 'BASE TABLE' AND table_name <> $1 ` +
		`ORDER BY table_name`

	columnsQuery = `SELECT column_name, data_type, udt_name, is_nullable, character_maximum_length, column_default ` +
		`FROM information_schema.columns ` +
		`WHERE table_schema = 'public' AND table_name = $1 ` +
		`ORDER BY ordinal_position`

	enumsQuery = `SELECT t.typname, e.enumlabel FROM pg_type t ` +
		`JOIN pg_enum e ON e.enumtypid = t.oid ` +
		`JOIN pg_namespace n ON n.oid = t.typnamespace ` +
		`WHERE n.nspname = 'public' ` +
		`ORDER BY t.typname, e.enumsortorder`

	ledgerExistsQuery = `SELECT EXISTS(SELECT 1 FROM information_schema.tables ` +
		`WHERE table_schema = 'public' AND table_name = $1)`
)

// Querier is the read capability the introspector needs
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Introspector reads tables, columns and enum types from the public schema
type Introspector struct {
	db          Querier
	concurrency int
	ledgerTable string
	logger      *zap.Logger
}

// Option configures an Introspector
type Option func(*Introspector)

// WithConcurrency bounds the number of tables whose columns are read at once
func WithConcurrency(n int) Option {
	return func(i *Introspector) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// WithLedgerTable overrides the migration ledger table name
func WithLedgerTable(name string) Option {
	return func(i *Introspector) {
		i.ledgerTable = name
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(i *Introspector) {
		i.logger = logger
	}
}

// New creates an Introspector over db
func New(db Querier, opts ...Option) *Introspector {
	i := &Introspector{
		db:          db,
		concurrency: defaultConcurrency,
		ledgerTable: DefaultLedgerTable,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// GetSchema returns every base table of the public schema except the ledger,
// with columns in ordinal order, and every enum type with labels in sort order.
func (i *Introspector) GetSchema(ctx context.Context) (*Schema, error) {
	names, err := i.tableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables := make([]Table, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for idx, name := range names {
		idx, name := idx, name
		g.Go(func() error {
			cols, err := i.columns(gctx, name)
			if err != nil {
				return fmt.Errorf("failed to read columns of %s: %w", name, err)
			}
			tables[idx] = Table{Name: name, Columns: cols}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	enums, err := i.enums(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read enum types: %w", err)
	}

	i.logger.Debug("introspected schema",
		zap.Int("tables", len(tables)),
		zap.Int("enums", len(enums)),
	)

	return &Schema{Tables: tables, Enums: enums}, nil
}

// GetNextMigrationVersion returns 1 when the ledger does not exist, else the highest applied version plus one
func (i *Introspector) GetNextMigrationVersion(ctx context.Context) (int, error) {
	exists, err := i.ledgerExists(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to check ledger table: %w", err)
	}
	if !exists {
		return 1, nil
	}

	query := fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", codegen.QuoteIdentifier(i.ledgerTable))
	var last int
	if err := queryScalar(ctx, i.db, query, &last); err != nil {
		return 0, fmt.Errorf("failed to read last applied version: %w", err)
	}
	return last + 1, nil
}

func (i *Introspector) tableNames(ctx context.Context) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, tablesQuery, i.ledgerTable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (i *Introspector) columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := i.db.QueryContext(ctx, columnsQuery, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			col        Column
			isNullable string
			maxLength  sql.NullInt64
			defaultVal sql.NullString
		)
		if err := rows.Scan(&col.Name, &col.DataType, &col.UDTName, &isNullable, &maxLength, &defaultVal); err != nil {
			return nil, err
		}
		col.Nullable = isNullable == "YES"
		if maxLength.Valid {
			n := int(maxLength.Int64)
			col.CharacterMaxLength = &n
		}
		if defaultVal.Valid {
			d := defaultVal.String
			col.ColumnDefault = &d
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (i *Introspector) enums(ctx context.Context) ([]Enum, error) {
	rows, err := i.db.QueryContext(ctx, enumsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enums []Enum
	for rows.Next() {
		var name, label string
		if err := rows.Scan(&name, &label); err != nil {
			return nil, err
		}
		if n := len(enums); n > 0 && enums[n-1].Name == name {
			enums[n-1].Values = append(enums[n-1].Values, label)
			continue
		}
		enums = append(enums, Enum{Name: name, Values: []string{label}})
	}
	return enums, rows.Err()
}

func (i *Introspector) ledgerExists(ctx context.Context) (bool, error) {
	var exists bool
	if err := queryScalar(ctx, i.db, ledgerExistsQuery, &exists, i.ledgerTable); err != nil {
		return false, err
	}
	return exists, nil
}

func queryScalar(ctx context.Context, db Querier, query string, dest interface{}, args ...interface{}) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	if err := rows.Scan(dest); err != nil {
		return err
	}
	return rows.Err()
}
