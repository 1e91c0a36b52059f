package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/conduit-lang/pgmeta/internal/orm/codegen"
	"github.com/conduit-lang/pgmeta/internal/orm/introspect"
)

// Querier is the database capability the runner and ledger need
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// AppliedVersion is one row of the ledger
type AppliedVersion struct {
	Version     int
	Description string
	CreatedAt   time.Time
}

// Ledger records applied migration versions in a table
type Ledger struct {
	db    Querier
	table string
}

// NewLedger creates a ledger backed by table
func NewLedger(db Querier, table string) *Ledger {
	if table == "" {
		table = introspect.DefaultLedgerTable
	}
	return &Ledger{db: db, table: table}
}

// Table returns the ledger table name
func (l *Ledger) Table() string {
	return l.table
}

// Initialize creates the ledger table if it does not exist
func (l *Ledger) Initialize(ctx context.Context) error {
	query := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (version INTEGER PRIMARY KEY, description VARCHAR(255) NOT NULL, created_at TIMESTAMP NOT NULL DEFAULT now())",
		codegen.QuoteIdentifier(l.table),
	)
	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to initialize ledger table: %w", err)
	}
	return nil
}

// Exists reports whether the ledger table exists
func (l *Ledger) Exists(ctx context.Context) (bool, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`,
		l.table,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger table: %w", err)
	}
	defer rows.Close()

	var exists bool
	if rows.Next() {
		if err := rows.Scan(&exists); err != nil {
			return false, fmt.Errorf("failed to check ledger table: %w", err)
		}
	}
	return exists, rows.Err()
}

// LastApplied returns the highest applied version, or 0 when none is
func (l *Ledger) LastApplied(ctx context.Context) (int, error) {
	rows, err := l.db.QueryContext(ctx,
		fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", codegen.QuoteIdentifier(l.table)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to read last applied version: %w", err)
	}
	defer rows.Close()

	var last int
	if rows.Next() {
		if err := rows.Scan(&last); err != nil {
			return 0, fmt.Errorf("failed to read last applied version: %w", err)
		}
	}
	return last, rows.Err()
}

// Applied returns every ledger row in version order
func (l *Ledger) Applied(ctx context.Context) ([]AppliedVersion, error) {
	rows, err := l.db.QueryContext(ctx,
		fmt.Sprintf("SELECT version, description, created_at FROM %s ORDER BY version ASC", codegen.QuoteIdentifier(l.table)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied versions: %w", err)
	}
	defer rows.Close()

	var applied []AppliedVersion
	for rows.Next() {
		var v AppliedVersion
		if err := rows.Scan(&v.Version, &v.Description, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan applied version: %w", err)
		}
		applied = append(applied, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating applied versions: %w", err)
	}
	return applied, nil
}

// Record appends a ledger row for version
func (l *Ledger) Record(ctx context.Context, version int, description string) error {
	query := fmt.Sprintf("INSERT INTO %s (version, description) VALUES ($1, $2)", codegen.QuoteIdentifier(l.table))
	if _, err := l.db.ExecContext(ctx, query, version, description); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", version, err)
	}
	return nil
}
