package commands

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/pgmeta/internal/cli/config"
	"github.com/conduit-lang/pgmeta/internal/orm/migrate"
	"github.com/conduit-lang/pgmeta/internal/orm/schema"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

// Project supplies the entities and migrations the commands operate on
type Project struct {
	Registry *schema.Registry
	// RegisterMigrations registers every versioned migration handler on r
	RegisterMigrations func(r *migrate.Runner) error
}

// Env holds the collaborators commands reach the outside world through
type Env struct {
	Project    Project
	LoadConfig func() (*config.Config, error)
	OpenDB     func(ctx context.Context, url string) (*sql.DB, error)
	NewLogger  func(level string) (*zap.Logger, error)
	Confirm    func(message string) (bool, error)
	Now        func() time.Time
}

// DefaultEnv returns an Env backed by pgmeta.yml, PostgreSQL and an interactive terminal
func DefaultEnv(project Project) *Env {
	return &Env{
		Project:    project,
		LoadConfig: config.Load,
		OpenDB:     openPostgres,
		NewLogger:  newLogger,
		Confirm:    confirm,
		Now:        time.Now,
	}
}

func openPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// newLogger builds a development logger for debug and a console production logger otherwise
func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	if lvl == zapcore.DebugLevel {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func confirm(message string) (bool, error) {
	ok := false
	prompt := &survey.Confirm{
		Message: message,
		Default: false,
	}
	if err := survey.AskOne(prompt, &ok); err != nil {
		return false, err
	}
	return ok, nil
}
