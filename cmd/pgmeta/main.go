package main

import (
	"os"

	"github.com/conduit-lang/pgmeta/internal/app"
	"github.com/conduit-lang/pgmeta/internal/cli/commands"
)

func main() {
	env := commands.DefaultEnv(commands.Project{
		Registry:           app.NewRegistry(),
		RegisterMigrations: app.RegisterMigrations,
	})

	if err := commands.Execute(env); err != nil {
		os.Exit(1)
	}
}
