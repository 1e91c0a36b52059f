package app

import (
	"context"

	"github.com/conduit-lang/pgmeta/internal/orm/migrate"
)

// RegisterMigrations registers the application's schema history with r.
// Versions are append-only: a shipped version is never renumbered or edited.
func RegisterMigrations(r *migrate.Runner) error {
	migrations := []struct {
		version     int
		description string
		handler     migrate.Handler
	}{
		{1, "create users table", func(ctx context.Context, r *migrate.Runner) error {
			return r.MigrateCreateEntity(ctx, User)
		}},
		{2, "create habits table", func(ctx context.Context, r *migrate.Runner) error {
			return r.MigrateCreateEntity(ctx, Habit)
		}},
		{3, "add habit notes", func(ctx context.Context, r *migrate.Runner) error {
			return r.AddColumn(ctx, Habit, "notes")
		}},
	}

	for _, m := range migrations {
		if err := r.RegisterMigration(m.version, m.description, m.handler); err != nil {
			return err
		}
	}
	return nil
}
