package commands

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/pgmeta/internal/cli/ui"
	"github.com/conduit-lang/pgmeta/internal/orm/migrate"
)

func newMigrateCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long: `Apply and inspect the versioned migrations registered by the application.

Versions are applied strictly in ascending order after the last version
recorded in the ledger table. A missing version stops the run; versions
below it stay applied and recorded.

Available subcommands:
  up      - Apply all pending migrations
  status  - Show applied and pending migrations`,
	}

	cmd.AddCommand(newMigrateUpCommand(s))
	cmd.AddCommand(newMigrateStatusCommand(s))

	return cmd
}

func newMigrateUpCommand(s *session) *cobra.Command {
	var useLock bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		Long: `Apply every registered migration above the last applied version.

Without --lock, two processes running at once may both try the same
version. --lock serializes runs with a PostgreSQL advisory lock.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runMigrateUp(cmd, useLock)
		},
	}

	cmd.Flags().BoolVar(&useLock, "lock", false, "Hold a PostgreSQL advisory lock while migrating")

	return cmd
}

func (s *session) runMigrateUp(cmd *cobra.Command, useLock bool) error {
	ctx := cmd.Context()
	successColor := color.New(color.FgGreen, color.Bold)
	infoColor := color.New(color.FgCyan)
	out := cmd.OutOrStdout()

	cfg, logger, err := s.setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := s.connect(cmd, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := []migrate.RunnerOption{
		migrate.WithLogger(logger),
		migrate.WithLedgerTable(cfg.Migrations.LedgerTable),
	}
	if useLock {
		opts = append(opts, migrate.WithLock(migrate.NewPostgresLock(db)))
	}

	runner := migrate.NewRunner(db, s.env.Project.Registry, opts...)
	if err := s.registerMigrations(runner); err != nil {
		return err
	}

	applied, err := runner.Run(ctx)
	for _, v := range applied {
		successColor.Fprintf(out, "  ✓ Applied migration %d\n", v)
	}
	if err != nil {
		message := categorizeDatabaseError(err, s.verbose)
		detail := ""
		if len(applied) > 0 {
			detail = fmt.Sprintf("%d migration(s) were applied before the failure.", len(applied))
		}
		return report(cmd, ui.MigrationError(message, detail, color.NoColor), err)
	}

	if len(applied) == 0 {
		infoColor.Fprintln(out, "No pending migrations")
		return nil
	}

	successColor.Fprintf(out, "\n✓ Applied %d migration(s)\n", len(applied))
	return nil
}

func newMigrateStatusCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long:  "List applied migrations from the ledger and registered migrations still pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runMigrateStatus(cmd)
		},
	}
}

func (s *session) runMigrateStatus(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, logger, err := s.setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := s.connect(cmd, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	runner := migrate.NewRunner(db, s.env.Project.Registry,
		migrate.WithLogger(logger),
		migrate.WithLedgerTable(cfg.Migrations.LedgerTable),
	)
	if err := s.registerMigrations(runner); err != nil {
		return err
	}

	status, err := runner.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %s", categorizeDatabaseError(err, s.verbose))
	}

	if len(status.Applied) == 0 && len(status.Pending) == 0 {
		fmt.Fprintln(out, "No migrations registered or applied")
		return nil
	}

	table := ui.NewTable(out, color.NoColor, "VERSION", "DESCRIPTION", "STATE", "APPLIED AT")
	for _, v := range status.Applied {
		table.AddRow(strconv.Itoa(v.Version), v.Description, "applied", v.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	for _, m := range status.Pending {
		table.AddRow(strconv.Itoa(m.Version), m.Description, "pending", "-")
	}
	table.Render()

	fmt.Fprintf(out, "\n%d applied, %d pending\n", len(status.Applied), len(status.Pending))
	return nil
}

func (s *session) registerMigrations(runner *migrate.Runner) error {
	if s.env.Project.RegisterMigrations == nil {
		return nil
	}
	if err := s.env.Project.RegisterMigrations(runner); err != nil {
		return fmt.Errorf("failed to register migrations: %w", err)
	}
	return nil
}
