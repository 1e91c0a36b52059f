package commands

import (
	"database/sql"
	"errors"
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/pgmeta/internal/cli/config"
	"github.com/conduit-lang/pgmeta/internal/cli/ui"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// session carries the global flags and the environment shared by subcommands
type session struct {
	env     *Env
	verbose bool
	noColor bool
}

// NewRootCommand creates the root command
func NewRootCommand(env *Env) *cobra.Command {
	s := &session{env: env}

	rootCmd := &cobra.Command{
		Use:   "pgmeta",
		Short: "Metadata-driven PostgreSQL schema diffing and migrations",
		Long: color.CyanString(`pgmeta - declared entities, live PostgreSQL schema

pgmeta compares entity declarations against the live database,
renders reviewable migration SQL and applies versioned migrations.

Commands:
  • diff            Preview or write the SQL reconciling the database
  • migrate up      Apply registered migrations in version order
  • migrate status  Show applied and pending migrations`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if s.noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&s.verbose, "verbose", "v", false, "Show detailed error messages")
	rootCmd.PersistentFlags().BoolVar(&s.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(newDiffCommand(s))
	rootCmd.AddCommand(newMigrateCommand(s))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the pgmeta version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			out := cmd.OutOrStdout()
			table := ui.NewTable(out, color.NoColor, "COMPONENT", "VALUE")
			table.AddRow("pgmeta version", Version)
			table.AddRow("Git commit", GitCommit)
			table.AddRow("Build date", BuildDate)
			table.AddRow("Go version", goVer)
			table.Render()
		},
	}
}

// setup loads the configuration and builds the logger
func (s *session) setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := s.env.LoadConfig()
	if err != nil {
		return nil, nil, report(cmd, ui.ConfigError(err.Error(), color.NoColor), err)
	}

	logger, err := s.env.NewLogger(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// connect opens the configured database
func (s *session) connect(cmd *cobra.Command, cfg *config.Config) (*sql.DB, error) {
	url, err := cfg.DatabaseURL()
	if err != nil {
		return nil, report(cmd, ui.ConfigError(err.Error(), color.NoColor), err)
	}

	db, err := s.env.OpenDB(cmd.Context(), url)
	if err != nil {
		return nil, redactCredentials(err)
	}
	return db, nil
}

// Execute runs the root command
func Execute(env *Env) error {
	rootCmd := NewRootCommand(env)
	if err := rootCmd.Execute(); err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			errorColor := color.New(color.FgRed, color.Bold)
			errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return err
	}
	return nil
}

// reportedError wraps an error whose message was already shown to the user
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// report writes message to stderr and marks err as shown
func report(cmd *cobra.Command, message string, err error) error {
	fmt.Fprint(cmd.ErrOrStderr(), message)
	return &reportedError{err: err}
}
