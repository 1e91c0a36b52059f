// Package crud is the metadata-driven persistence service. It translates
// tracked records to and from SQL rows using the entity declarations held by
// the registry.
package crud

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/conduit-lang/pgmeta/internal/orm/schema"
)

// Operation represents a CRUD operation type
type Operation int

const (
	// OperationCreate represents an insert
	OperationCreate Operation = iota
	// OperationRead represents a select
	OperationRead
	// OperationUpdate represents an update
	OperationUpdate
	// OperationDelete represents a delete
	OperationDelete
)

// String returns the string representation of the operation
func (o Operation) String() string {
	switch o {
	case OperationCreate:
		return "create"
	case OperationRead:
		return "read"
	case OperationUpdate:
		return "update"
	case OperationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Querier is the subset of *sql.DB, *sql.Conn and *sql.Tx the service needs
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Operations provides CRUD operations for registered entities
type Operations struct {
	db       Querier
	registry *schema.Registry
	logger   *zap.Logger
}

// Option configures Operations
type Option func(*Operations)

// WithLogger sets the logger used for statement tracing
func WithLogger(logger *zap.Logger) Option {
	return func(o *Operations) {
		o.logger = logger
	}
}

// NewOperations creates a persistence service over db for the entities in registry
func NewOperations(db Querier, registry *schema.Registry, opts ...Option) *Operations {
	o := &Operations{
		db:       db,
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// tableFor resolves the table of a registered entity
func (o *Operations) tableFor(entity *schema.Entity) (string, error) {
	if entity == nil {
		return "", &schema.MetadataError{Message: "nil entity"}
	}
	table, ok := o.registry.Get(entity)
	if !ok {
		if _, err := entity.TableMetadata(); err != nil {
			return "", err
		}
		return "", &schema.MetadataError{Entity: entity.Name, Message: "entity is not registered"}
	}
	return table.TableName, nil
}

// columnForKey resolves a property key to its declared column
func columnForKey(entity *schema.Entity, key string) (*schema.Column, error) {
	col, ok := entity.ColumnByKey(key)
	if !ok {
		return nil, &schema.MetadataError{Entity: entity.Name, Message: "unknown property " + key}
	}
	return col, nil
}

func (o *Operations) trace(op Operation, table, query string, args []interface{}) {
	o.logger.Debug("executing statement",
		zap.Stringer("operation", op),
		zap.String("table", table),
		zap.String("sql", query),
		zap.Int("args", len(args)),
	)
}
