package migrate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/pgmeta/internal/orm/codegen"
	"github.com/conduit-lang/pgmeta/internal/orm/introspect"
	"github.com/conduit-lang/pgmeta/internal/orm/schema"
)

// Handler applies one migration. It receives the runner for its DDL helpers.
type Handler func(ctx context.Context, r *Runner) error

// Migration is a registered, versioned migration handler
type Migration struct {
	Version     int
	Description string
	Handler     Handler
}

// Status is the applied and pending state of registered migrations
type Status struct {
	Applied []AppliedVersion
	Pending []*Migration
}

// Runner applies registered migrations in strict version order and records
// each in the ledger after its handler returns. A handler and its ledger row
// are not wrapped in a transaction, so handlers should issue idempotent DDL.
type Runner struct {
	db       Querier
	registry *schema.Registry
	ddlGen   *codegen.DDLGenerator
	ledger   *Ledger
	lock     DistributedLock
	logger   *zap.Logger

	mu         sync.Mutex
	migrations map[int]*Migration
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithLock holds lock for the duration of Run
func WithLock(lock DistributedLock) RunnerOption {
	return func(r *Runner) {
		r.lock = lock
	}
}

// WithLedgerTable overrides the ledger table name
func WithLedgerTable(table string) RunnerOption {
	return func(r *Runner) {
		r.ledger = NewLedger(r.db, table)
	}
}

// NewRunner creates a new migration runner
func NewRunner(db Querier, registry *schema.Registry, opts ...RunnerOption) *Runner {
	r := &Runner{
		db:         db,
		registry:   registry,
		ddlGen:     codegen.NewDDLGenerator(),
		ledger:     NewLedger(db, introspect.DefaultLedgerTable),
		logger:     zap.NewNop(),
		migrations: make(map[int]*Migration),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterMigration registers handler under version. Registering a version again replaces it.
func (r *Runner) RegisterMigration(version int, description string, handler Handler) error {
	if version <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidVersion, version)
	}
	if handler == nil {
		return fmt.Errorf("migration %d has no handler", version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.migrations[version] = &Migration{
		Version:     version,
		Description: description,
		Handler:     handler,
	}
	return nil
}

// Migrations returns the registered migrations in version order
func (r *Runner) Migrations() []*Migration {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Migration, 0, len(r.migrations))
	for _, m := range r.migrations {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// Run applies every registered version above the ledger's last applied one
// in ascending order and returns the versions applied. A version with no
// registered migration stops the run with a SequenceGapError; versions below
// it stay applied.
func (r *Runner) Run(ctx context.Context) ([]int, error) {
	logger := r.logger.With(zap.String("run_id", uuid.NewString()))

	if r.lock != nil {
		release, err := r.lock.Acquire(ctx, "pgmeta:migrate:"+r.ledger.Table())
		if err != nil {
			return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		defer release()
		logger.Debug("acquired migration lock")
	}

	if err := r.ledger.Initialize(ctx); err != nil {
		return nil, err
	}

	last, err := r.ledger.LastApplied(ctx)
	if err != nil {
		return nil, err
	}

	registered, highest := r.snapshot()
	if highest <= last {
		logger.Info("no pending migrations", zap.Int("last_applied", last))
		return nil, nil
	}

	logger.Info("applying migrations",
		zap.Int("last_applied", last),
		zap.Int("highest_registered", highest),
	)

	var applied []int
	for v := last + 1; v <= highest; v++ {
		m, ok := registered[v]
		if !ok {
			logger.Error("migration sequence gap", zap.Int("version", v), zap.Ints("applied", applied))
			return applied, &SequenceGapError{Version: v, LastApplied: v - 1}
		}

		start := time.Now()
		if err := m.Handler(ctx, r); err != nil {
			logger.Error("migration failed", zap.Int("version", m.Version), zap.Error(err))
			return applied, fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		if err := r.ledger.Record(ctx, m.Version, m.Description); err != nil {
			return applied, err
		}

		applied = append(applied, m.Version)
		logger.Info("applied migration",
			zap.Int("version", m.Version),
			zap.String("description", m.Description),
			zap.Duration("duration", time.Since(start)),
		)
	}

	return applied, nil
}

// snapshot copies the registered migrations and returns the highest version
func (r *Runner) snapshot() (map[int]*Migration, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	registered := make(map[int]*Migration, len(r.migrations))
	highest := 0
	for v, m := range r.migrations {
		registered[v] = m
		if v > highest {
			highest = v
		}
	}
	return registered, highest
}

// Status reports applied ledger rows and the registered versions not yet applied.
// It does not create the ledger.
func (r *Runner) Status(ctx context.Context) (*Status, error) {
	status := &Status{}

	exists, err := r.ledger.Exists(ctx)
	if err != nil {
		return nil, err
	}

	last := 0
	if exists {
		if status.Applied, err = r.ledger.Applied(ctx); err != nil {
			return nil, err
		}
		for _, v := range status.Applied {
			if v.Version > last {
				last = v.Version
			}
		}
	}

	for _, m := range r.Migrations() {
		if m.Version > last {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

// Exec runs a statement on behalf of a handler
func (r *Runner) Exec(ctx context.Context, query string, args ...interface{}) error {
	r.logger.Debug("executing migration statement", zap.String("sql", query))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return nil
}

// MigrateCreateEntity creates the enum types and table of a registered entity.
// Every statement tolerates objects that already exist.
func (r *Runner) MigrateCreateEntity(ctx context.Context, entity *schema.Entity) error {
	if err := r.requireRegistered(entity); err != nil {
		return err
	}

	for _, stmt := range r.ddlGen.GenerateEnumTypes(entity, true) {
		if err := r.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	createTable, err := r.ddlGen.GenerateCreateTable(entity, true)
	if err != nil {
		return err
	}
	return r.Exec(ctx, createTable)
}

// AddColumn adds the column declared under propertyKey to a registered
// entity's table, with its enum type and foreign key constraint when declared.
// Every statement tolerates objects that already exist.
func (r *Runner) AddColumn(ctx context.Context, entity *schema.Entity, propertyKey string) error {
	if err := r.requireRegistered(entity); err != nil {
		return err
	}

	col, ok := entity.ColumnByKey(propertyKey)
	if !ok {
		return &schema.MetadataError{Entity: entity.Name, Message: "unknown property " + propertyKey}
	}

	if col.Kind() == schema.KindEnum {
		if err := r.Exec(ctx, r.ddlGen.GenerateEnumTypeIfNotExists(entity.TableName(), col)); err != nil {
			return err
		}
	}

	addColumn, err := r.ddlGen.GenerateAddColumn(entity, col, true)
	if err != nil {
		return err
	}
	if err := r.Exec(ctx, addColumn); err != nil {
		return err
	}

	if fk, ok := entity.ForeignKeyFor(propertyKey); ok {
		return r.Exec(ctx, r.ddlGen.GenerateAddForeignKey(entity, fk, true))
	}
	return nil
}

func (r *Runner) requireRegistered(entity *schema.Entity) error {
	if entity == nil {
		return &schema.MetadataError{Message: "nil entity"}
	}
	if _, err := entity.TableMetadata(); err != nil {
		return err
	}
	if _, ok := r.registry.Get(entity); !ok {
		return &schema.MetadataError{Entity: entity.Name, Message: "entity is not registered"}
	}
	return nil
}
