package migrate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/pgmeta/internal/orm/schema"
)

const (
	createLedgerSQL = `CREATE TABLE IF NOT EXISTS "schema_versions" (version INTEGER PRIMARY KEY, description VARCHAR(255) NOT NULL, created_at TIMESTAMP NOT NULL DEFAULT now())`
	lastAppliedSQL  = `SELECT COALESCE(MAX(version), 0) FROM "schema_versions"`
	recordSQL       = `INSERT INTO "schema_versions" (version, description) VALUES ($1, $2)`
	ledgerExistsSQL = `SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`
	appliedSQL      = `SELECT version, description, created_at FROM "schema_versions" ORDER BY version ASC`
)

type runnerFixture struct {
	mock     sqlmock.Sqlmock
	runner   *Runner
	habit    *schema.Entity
	registry *schema.Registry
	calls    []int
}

func newRunnerFixture(t *testing.T, opts ...RunnerOption) *runnerFixture {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	habit := habitEntity()
	registry := schema.NewRegistry().MustRegister(habit)

	return &runnerFixture{
		mock:     mock,
		runner:   NewRunner(db, registry, opts...),
		habit:    habit,
		registry: registry,
	}
}

// register adds no-op handlers for versions that record their invocation
func (f *runnerFixture) register(t *testing.T, versions ...int) {
	t.Helper()
	for _, v := range versions {
		v := v
		require.NoError(t, f.runner.RegisterMigration(v, "step", func(ctx context.Context, r *Runner) error {
			f.calls = append(f.calls, v)
			return nil
		}))
	}
}

func (f *runnerFixture) expectLedger(lastApplied int) {
	f.mock.ExpectExec(createLedgerSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectQuery(lastAppliedSQL).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(lastApplied)))
}

func (f *runnerFixture) expectRecord(version int) {
	f.mock.ExpectExec(recordSQL).
		WithArgs(version, "step").
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestRun_FreshLedger(t *testing.T) {
	f := newRunnerFixture(t)
	f.register(t, 2, 1)

	f.expectLedger(0)
	f.expectRecord(1)
	f.expectRecord(2)

	applied, err := f.runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, applied)
	assert.Equal(t, []int{1, 2}, f.calls)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRun_AppliesOnlyPending(t *testing.T) {
	f := newRunnerFixture(t)
	f.register(t, 1, 2, 3)

	f.expectLedger(2)
	f.expectRecord(3)

	applied, err := f.runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{3}, applied)
	assert.Equal(t, []int{3}, f.calls)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRun_Idempotent(t *testing.T) {
	f := newRunnerFixture(t)
	f.register(t, 1, 2, 3)

	f.expectLedger(0)
	f.expectRecord(1)
	f.expectRecord(2)
	f.expectRecord(3)
	f.expectLedger(3)

	first, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, first)

	second, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)

	assert.Equal(t, []int{1, 2, 3}, f.calls)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRun_SequenceGap(t *testing.T) {
	f := newRunnerFixture(t)
	f.register(t, 1, 2, 4)

	f.expectLedger(1)
	f.expectRecord(2)

	applied, err := f.runner.Run(context.Background())
	require.Error(t, err)

	var gap *SequenceGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, 3, gap.Version)
	assert.Equal(t, 2, gap.LastApplied)
	assert.True(t, IsSequenceGap(err))
	assert.Equal(t, []int{2}, applied)
	assert.Equal(t, []int{2}, f.calls)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRun_SequenceGapAppliesVersionsBelowGap(t *testing.T) {
	f := newRunnerFixture(t)
	f.register(t, 1, 3)

	f.expectLedger(0)
	f.expectRecord(1)

	applied, err := f.runner.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsSequenceGap(err))
	assert.EqualError(t, err, "migration 2 is not registered (last applied: 1)")

	assert.Equal(t, []int{1}, applied)
	assert.Equal(t, []int{1}, f.calls)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRun_SequenceGapAtFirstPendingVersion(t *testing.T) {
	f := newRunnerFixture(t)
	f.register(t, 3)

	f.expectLedger(1)

	applied, err := f.runner.Run(context.Background())
	var gap *SequenceGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, 2, gap.Version)
	assert.Equal(t, 1, gap.LastApplied)
	assert.Empty(t, applied)
	assert.Empty(t, f.calls)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	f := newRunnerFixture(t)
	f.register(t, 1, 3)
	require.NoError(t, f.runner.RegisterMigration(2, "broken", func(ctx context.Context, r *Runner) error {
		return errors.New("relation already exists")
	}))

	f.expectLedger(0)
	f.expectRecord(1)

	applied, err := f.runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 2 (broken) failed")
	assert.Contains(t, err.Error(), "relation already exists")

	assert.Equal(t, []int{1}, applied)
	assert.Equal(t, []int{1}, f.calls)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRun_LedgerInitFailure(t *testing.T) {
	f := newRunnerFixture(t)
	f.register(t, 1)

	f.mock.ExpectExec(createLedgerSQL).WillReturnError(errors.New("permission denied"))

	_, err := f.runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize ledger table")
	assert.Empty(t, f.calls)
}

func TestRun_NothingRegistered(t *testing.T) {
	f := newRunnerFixture(t)
	f.expectLedger(4)

	applied, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRun_LogsRunID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f := newRunnerFixture(t, WithLogger(zap.New(core)))
	f.register(t, 1)

	f.expectLedger(0)
	f.expectRecord(1)

	_, err := f.runner.Run(context.Background())
	require.NoError(t, err)

	entries := logs.FilterMessage("applied migration").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.NotEmpty(t, fields["run_id"])
	assert.EqualValues(t, 1, fields["version"])
}

func TestRun_CustomLedgerTable(t *testing.T) {
	f := newRunnerFixture(t, WithLedgerTable("app_versions"))
	f.register(t, 1)

	f.mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "app_versions" (version INTEGER PRIMARY KEY, description VARCHAR(255) NOT NULL, created_at TIMESTAMP NOT NULL DEFAULT now())`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectQuery(`SELECT COALESCE(MAX(version), 0) FROM "app_versions"`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(1)))

	_, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

type fakeLock struct {
	key        string
	acquireErr error
	released   bool
}

func (l *fakeLock) Acquire(ctx context.Context, key string) (func(), error) {
	l.key = key
	if l.acquireErr != nil {
		return nil, l.acquireErr
	}
	return func() { l.released = true }, nil
}

func TestRun_WithLock(t *testing.T) {
	lock := &fakeLock{}
	f := newRunnerFixture(t, WithLock(lock))
	f.register(t, 1)

	f.expectLedger(0)
	f.expectRecord(1)

	_, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pgmeta:migrate:schema_versions", lock.key)
	assert.True(t, lock.released)
}

func TestRun_LockFailure(t *testing.T) {
	lock := &fakeLock{acquireErr: errors.New("canceled")}
	f := newRunnerFixture(t, WithLock(lock))
	f.register(t, 1)

	_, err := f.runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to acquire migration lock")
	assert.Empty(t, f.calls)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegisterMigration(t *testing.T) {
	f := newRunnerFixture(t)
	noop := func(ctx context.Context, r *Runner) error { return nil }

	assert.ErrorIs(t, f.runner.RegisterMigration(0, "zero", noop), ErrInvalidVersion)
	assert.ErrorIs(t, f.runner.RegisterMigration(-1, "negative", noop), ErrInvalidVersion)
	assert.Error(t, f.runner.RegisterMigration(1, "nil handler", nil))

	require.NoError(t, f.runner.RegisterMigration(2, "first", noop))
	require.NoError(t, f.runner.RegisterMigration(1, "one", noop))
	require.NoError(t, f.runner.RegisterMigration(2, "second", noop))

	migrations := f.runner.Migrations()
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "second", migrations[1].Description)
}

func TestMigrateCreateEntity(t *testing.T) {
	f := newRunnerFixture(t)

	f.mock.ExpectExec(`DO $$ BEGIN CREATE TYPE "habits_cadence_enum" AS ENUM ('daily', 'weekly'); EXCEPTION WHEN duplicate_object THEN NULL; END $$;`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectExec("CREATE TABLE IF NOT EXISTS \"habits\" (\n" +
		"  \"id\" SERIAL PRIMARY KEY,\n" +
		"  \"name\" VARCHAR(255) NOT NULL,\n" +
		"  \"cadence\" \"habits_cadence_enum\" NOT NULL\n" +
		");").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := f.runner.MigrateCreateEntity(context.Background(), f.habit)
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAddColumn(t *testing.T) {
	f := newRunnerFixture(t)
	f.habit.
		Column("notes", schema.String{}, schema.Optional()).
		Column("priority", schema.Enum{Values: []string{"low", "high"}}).
		Column("userId", schema.Number{}, schema.Optional()).
		ForeignKey("userId", "users", "id")

	t.Run("plain column", func(t *testing.T) {
		f.mock.ExpectExec(`ALTER TABLE "habits" ADD COLUMN IF NOT EXISTS "notes" TEXT;`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, f.runner.AddColumn(context.Background(), f.habit, "notes"))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("enum column", func(t *testing.T) {
		f.mock.ExpectExec(`DO $$ BEGIN CREATE TYPE "habits_priority_enum" AS ENUM ('low', 'high'); EXCEPTION WHEN duplicate_object THEN NULL; END $$;`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		f.mock.ExpectExec(`ALTER TABLE "habits" ADD COLUMN IF NOT EXISTS "priority" "habits_priority_enum" NOT NULL;`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, f.runner.AddColumn(context.Background(), f.habit, "priority"))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("foreign key column", func(t *testing.T) {
		f.mock.ExpectExec(`ALTER TABLE "habits" ADD COLUMN IF NOT EXISTS "user_id" INTEGER;`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		f.mock.ExpectExec(`DO $$ BEGIN ALTER TABLE "habits" ADD CONSTRAINT "fk_habits_user_id" FOREIGN KEY ("user_id") REFERENCES "users" ("id"); EXCEPTION WHEN duplicate_object THEN NULL; END $$;`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, f.runner.AddColumn(context.Background(), f.habit, "userId"))
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("unknown property", func(t *testing.T) {
		err := f.runner.AddColumn(context.Background(), f.habit, "missing")
		require.Error(t, err)
		assert.True(t, schema.IsMetadataError(err))
	})
}

func TestHelpersRequireRegisteredEntity(t *testing.T) {
	f := newRunnerFixture(t)
	stranger := schema.NewEntity("Goal").Table("goals").Column("id", schema.Number{}, schema.Primary())
	untabled := schema.NewEntity("Loose").Column("id", schema.Number{}, schema.Primary())

	err := f.runner.MigrateCreateEntity(context.Background(), stranger)
	require.Error(t, err)
	assert.True(t, schema.IsMetadataError(err))
	assert.Contains(t, err.Error(), "entity is not registered")

	err = f.runner.AddColumn(context.Background(), untabled, "id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no table declaration found")

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMigrationHandlerUsesHelpers(t *testing.T) {
	f := newRunnerFixture(t)
	require.NoError(t, f.runner.RegisterMigration(1, "create habits", func(ctx context.Context, r *Runner) error {
		return r.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS "pgcrypto"`)
	}))

	f.expectLedger(0)
	f.mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectExec(recordSQL).WithArgs(1, "create habits").WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, applied)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStatus(t *testing.T) {
	f := newRunnerFixture(t)
	f.register(t, 1, 2, 3)
	appliedAt := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	f.mock.ExpectQuery(ledgerExistsSQL).
		WithArgs("schema_versions").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	f.mock.ExpectQuery(appliedSQL).
		WillReturnRows(sqlmock.NewRows([]string{"version", "description", "created_at"}).
			AddRow(int64(1), "create users", appliedAt).
			AddRow(int64(2), "create habits", appliedAt))

	status, err := f.runner.Status(context.Background())
	require.NoError(t, err)

	require.Len(t, status.Applied, 2)
	assert.Equal(t, "create habits", status.Applied[1].Description)
	assert.Equal(t, appliedAt, status.Applied[0].CreatedAt)
	require.Len(t, status.Pending, 1)
	assert.Equal(t, 3, status.Pending[0].Version)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStatus_NoLedger(t *testing.T) {
	f := newRunnerFixture(t)
	f.register(t, 1, 2)

	f.mock.ExpectQuery(ledgerExistsSQL).
		WithArgs("schema_versions").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	status, err := f.runner.Status(context.Background())
	require.NoError(t, err)
	assert.Empty(t, status.Applied)
	assert.Len(t, status.Pending, 2)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPostgresLock(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	key := "pgmeta:migrate:schema_versions"
	lockID := hashLockKey(key)
	assert.GreaterOrEqual(t, lockID, int64(0))
	assert.Equal(t, lockID, hashLockKey(key))

	mock.ExpectExec(`SELECT pg_advisory_lock($1)`).WithArgs(lockID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SELECT pg_advisory_unlock($1)`).WithArgs(lockID).WillReturnResult(sqlmock.NewResult(0, 0))

	release, err := NewPostgresLock(db).Acquire(context.Background(), key)
	require.NoError(t, err)
	release()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLock_AcquireError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`SELECT pg_advisory_lock($1)`).WillReturnError(errors.New("canceling statement"))

	release, err := NewPostgresLock(db).Acquire(context.Background(), "k")
	require.Error(t, err)
	assert.Nil(t, release)
	assert.Contains(t, err.Error(), "pg_advisory_lock")
}
