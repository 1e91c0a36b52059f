package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/pgmeta/internal/cli/ui"
	"github.com/conduit-lang/pgmeta/internal/orm/introspect"
	"github.com/conduit-lang/pgmeta/internal/orm/migrate"
	"github.com/conduit-lang/pgmeta/internal/orm/schema"
)

type diffOptions struct {
	outDir   string
	write    bool
	name     string
	yes      bool
	entities []string
}

func newDiffCommand(s *session) *cobra.Command {
	opts := &diffOptions{}

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Preview the SQL reconciling the database with declared entities",
		Long: `Introspect the live database, compare it with every registered entity
and render the SQL needed to reconcile them.

The SQL is printed to stdout unless --out or --write is given, in which
case it is written to DIR/YYYY-MM-DD-<name>.sql. --write uses the
migrations.dir setting. Writing a file that drops columns
asks for confirmation unless --yes is set. Column alterations are only
described in comments and must be written by hand.`,
		Example: `  pgmeta diff
  pgmeta diff --entity Habit
  pgmeta diff --out migrations --name add-habit-notes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runDiff(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Write the migration file into `DIR` instead of stdout")
	cmd.Flags().BoolVarP(&opts.write, "write", "w", false, "Write the migration file into migrations.dir")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "Migration file name (defaults to the generated description)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Write destructive migrations without asking")
	cmd.Flags().StringSliceVarP(&opts.entities, "entity", "e", nil, "Only diff the named entities")

	return cmd
}

func (s *session) runDiff(cmd *cobra.Command, opts *diffOptions) error {
	ctx := cmd.Context()

	cfg, logger, err := s.setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	entities, err := s.selectEntities(cmd, opts.entities)
	if err != nil {
		return err
	}

	db, err := s.connect(cmd, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	in := introspect.New(db,
		introspect.WithConcurrency(cfg.Introspect.Concurrency),
		introspect.WithLedgerTable(cfg.Migrations.LedgerTable),
		introspect.WithLogger(logger),
	)

	live, err := in.GetSchema(ctx)
	if err != nil {
		return fmt.Errorf("introspection failed: %s", categorizeDatabaseError(err, s.verbose))
	}

	version, err := in.GetNextMigrationVersion(ctx)
	if err != nil {
		return fmt.Errorf("introspection failed: %s", categorizeDatabaseError(err, s.verbose))
	}

	ops, err := migrate.NewDiffer().ComputeDiff(entities, live)
	if err != nil {
		return err
	}

	logger.Debug("computed schema diff",
		zap.Int("operations", len(ops)),
		zap.Int("version", version),
	)

	stderr := cmd.ErrOrStderr()
	if len(ops) == 0 {
		fmt.Fprintln(stderr, ui.Success("database schema matches the declared entities", color.NoColor))
		return nil
	}

	s.printSummary(cmd, ops)

	sql, err := migrate.NewGenerator(migrate.WithClock(s.env.Now)).Generate(ops, version)
	if err != nil {
		return err
	}

	outDir := opts.outDir
	if outDir == "" && opts.write {
		outDir = cfg.Migrations.Dir
	}
	if outDir == "" {
		fmt.Fprint(cmd.OutOrStdout(), sql)
		return nil
	}

	if migrate.HasDestructive(ops) && !opts.yes {
		fmt.Fprint(stderr, ui.Warning("this migration drops columns and their data", color.NoColor))
		ok, err := s.env.Confirm("Write the migration file anyway?")
		if err != nil {
			return fmt.Errorf("confirmation failed: %w", err)
		}
		if !ok {
			fmt.Fprintln(stderr, "Aborted: no file written")
			return nil
		}
	}

	fileName := migrate.FileName(s.env.Now(), migrate.GenerateDescription(ops), opts.name)
	path, err := migrate.WriteFile(outDir, fileName, sql)
	if err != nil {
		return err
	}

	fmt.Fprintln(stderr, ui.Success("wrote "+path, color.NoColor))
	return nil
}

// selectEntities returns the registered entities, narrowed to names when given
func (s *session) selectEntities(cmd *cobra.Command, names []string) ([]*schema.Entity, error) {
	registry := s.env.Project.Registry
	if len(names) == 0 {
		return registry.Entities(), nil
	}

	var known []string
	for _, e := range registry.Entities() {
		known = append(known, e.Name)
	}

	var entities []*schema.Entity
	for _, name := range names {
		entity, ok := registry.Lookup(name)
		if !ok {
			err := fmt.Errorf("unknown entity %q", name)
			return nil, report(cmd, ui.EntityNotFound(name, ui.Suggest(name, known, 3), color.NoColor), err)
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func (s *session) printSummary(cmd *cobra.Command, ops []migrate.Operation) {
	out := cmd.ErrOrStderr()

	table := ui.NewTable(out, color.NoColor, "CHANGE", "TARGET")
	for _, op := range ops {
		change := op.Type().String()
		if migrate.IsDestructive(op) {
			change += " (destructive)"
		}
		target := op.Table()
		if _, after, found := strings.Cut(op.String(), " column "); found {
			target = after
		}
		table.AddRow(change, target)
	}
	table.Render()

	counts := migrate.Summarize(ops)
	var parts []string
	for _, change := range []migrate.ChangeType{
		migrate.ChangeCreateTable,
		migrate.ChangeAddColumn,
		migrate.ChangeDropColumn,
		migrate.ChangeAlterColumn,
	} {
		if n := counts[change]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, change))
		}
	}
	fmt.Fprintf(out, "\n%s\n\n", strings.Join(parts, ", "))
}
