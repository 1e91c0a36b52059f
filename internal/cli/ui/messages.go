package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Level represents the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Message is a headed, indented block of user-facing output
type Message struct {
	Level       Level
	Context     string
	Problem     string
	Detail      string
	Suggestions []string
	Hints       []string
	NoColor     bool
}

// Format renders the message.
//
//	❌ DATABASE ERROR: relation "habits" already exists
//
//	   Did you mean: Habit?
//
//	   → Check migration status: pgmeta migrate status
func (m Message) Format() string {
	var b strings.Builder

	var header *color.Color
	var symbol string
	switch m.Level {
	case LevelWarning:
		header, symbol = color.New(color.FgYellow, color.Bold), "⚠️"
	case LevelInfo:
		header, symbol = color.New(color.FgCyan, color.Bold), "ℹ️"
	default:
		header, symbol = color.New(color.FgRed, color.Bold), "❌"
	}
	body := color.New(color.FgWhite)
	hint := color.New(color.FgCyan)
	if m.NoColor {
		header.DisableColor()
		body.DisableColor()
		hint.DisableColor()
	}

	if m.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(m.Context), m.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}

	if m.Detail != "" {
		b.WriteString("\n")
		for _, line := range strings.Split(m.Detail, "\n") {
			body.Fprintf(&b, "   %s\n", line)
		}
	}

	if len(m.Suggestions) > 0 {
		b.WriteString("\n")
		fmt.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}

	if len(m.Hints) > 0 {
		b.WriteString("\n")
		for _, h := range m.Hints {
			hint.Fprintf(&b, "   → %s\n", h)
		}
	}

	return b.String()
}

// Success renders a one-line success message
func Success(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// Warning renders a warning message
func Warning(message string, noColor bool) string {
	return Message{Level: LevelWarning, Problem: message, NoColor: noColor}.Format()
}

// EntityNotFound renders an error for an unknown entity name with close matches
func EntityNotFound(name string, suggestions []string, noColor bool) string {
	return Message{
		Level:       LevelError,
		Context:     "entity not found",
		Problem:     fmt.Sprintf("no registered entity named '%s'", name),
		Suggestions: suggestions,
		Hints:       []string{"List entities: pgmeta diff --help"},
		NoColor:     noColor,
	}.Format()
}

// ConfigError renders a configuration error
func ConfigError(message string, noColor bool) string {
	return Message{
		Level:   LevelError,
		Context: "configuration error",
		Problem: message,
		Hints: []string{
			"Set DATABASE_URL or database.url in pgmeta.yml",
			"Get help: pgmeta --help",
		},
		NoColor: noColor,
	}.Format()
}

// MigrationError renders a failed migration run
func MigrationError(message, detail string, noColor bool) string {
	return Message{
		Level:   LevelError,
		Context: "migration failed",
		Problem: message,
		Detail:  detail,
		Hints: []string{
			"Check migration status: pgmeta migrate status",
			"Get help: pgmeta migrate --help",
		},
		NoColor: noColor,
	}.Format()
}
