package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/conduit-lang/pgmeta/internal/orm/codegen"
	"github.com/conduit-lang/pgmeta/internal/orm/schema"
)

// Generator renders operations into a reviewable SQL document.
// Altered columns only ever produce comments; destructive statements carry a warning.
type Generator struct {
	ddlGen *codegen.DDLGenerator
	now    func() time.Time
}

// GeneratorOption configures a Generator
type GeneratorOption func(*Generator)

// WithClock sets the clock used for the header timestamp
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator creates a new migration generator
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		ddlGen: codegen.NewDDLGenerator(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate renders the SQL document for ops labelled with version
func (g *Generator) Generate(ops []Operation, version int) (string, error) {
	var sql strings.Builder

	sql.WriteString(fmt.Sprintf("-- Migration: %d\n", version))
	sql.WriteString(fmt.Sprintf("-- Description: %s\n", GenerateDescription(ops)))
	sql.WriteString(fmt.Sprintf("-- Generated at: %s\n", g.now().UTC().Format(time.RFC3339)))

	for _, op := range ops {
		var block string
		var err error

		switch o := op.(type) {
		case CreateTable:
			block, err = g.generateCreateTable(o)
		case AddColumn:
			block, err = g.generateAddColumn(o)
		case DropColumn:
			block = g.generateDropColumn(o)
		case AlterColumn:
			block = g.generateAlterColumn(o)
		default:
			err = fmt.Errorf("unsupported operation %T", op)
		}
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}

		sql.WriteString("\n")
		sql.WriteString(block)
	}

	return sql.String(), nil
}

func (g *Generator) generateCreateTable(op CreateTable) (string, error) {
	var sql strings.Builder
	sql.WriteString(fmt.Sprintf("-- Create table: %s\n", op.Table()))

	for _, stmt := range g.ddlGen.GenerateEnumTypes(op.Entity, false) {
		sql.WriteString(stmt)
		sql.WriteString("\n")
	}

	createTable, err := g.ddlGen.GenerateCreateTable(op.Entity, false)
	if err != nil {
		return "", err
	}
	sql.WriteString(createTable)
	sql.WriteString("\n")

	return sql.String(), nil
}

func (g *Generator) generateAddColumn(op AddColumn) (string, error) {
	var sql strings.Builder
	sql.WriteString(fmt.Sprintf("-- Add column: %s.%s\n", op.Table(), op.Column.Name))

	if op.Column.Kind() == schema.KindEnum && !op.EnumExists {
		sql.WriteString(g.ddlGen.GenerateEnumType(op.Table(), op.Column))
		sql.WriteString("\n")
	}

	addColumn, err := g.ddlGen.GenerateAddColumn(op.Entity, op.Column, false)
	if err != nil {
		return "", err
	}
	sql.WriteString(addColumn)
	sql.WriteString("\n")

	if fk, ok := op.Entity.ForeignKeyFor(op.Column.PropertyKey); ok {
		sql.WriteString(g.ddlGen.GenerateAddForeignKey(op.Entity, fk, false))
		sql.WriteString("\n")
	}

	return sql.String(), nil
}

func (g *Generator) generateDropColumn(op DropColumn) string {
	return fmt.Sprintf(
		"-- WARNING: dropping %s.%s permanently deletes its data. Review before applying.\n%s\n",
		op.TableName,
		op.Column.Name,
		g.ddlGen.GenerateDropColumn(op.TableName, op.Column.Name),
	)
}

func (g *Generator) generateAlterColumn(op AlterColumn) string {
	var sql strings.Builder
	c := op.Changes

	sql.WriteString(fmt.Sprintf("-- WARNING: %s.%s differs from its declaration. Write this change by hand.\n",
		op.Table(), op.Column.Name))
	if c.TypeChanged {
		sql.WriteString(fmt.Sprintf("--   type: %s -> %s\n", c.OldType, c.NewType))
	}
	if c.MaxLengthChanged {
		sql.WriteString(fmt.Sprintf("--   max length: %s -> %s\n", c.OldType, c.NewType))
	}
	if c.NullabilityChanged {
		sql.WriteString(fmt.Sprintf("--   nullability: %s -> %s\n", nullability(c.OldNullable), nullability(c.NewNullable)))
	}
	sql.WriteString(fmt.Sprintf("-- ALTER TABLE %s ALTER COLUMN %s ...;\n",
		codegen.QuoteIdentifier(op.Table()), codegen.QuoteIdentifier(op.Column.Name)))

	return sql.String()
}

func nullability(nullable bool) string {
	if nullable {
		return "NULL"
	}
	return "NOT NULL"
}

// GenerateDescription describes ops by their leading kind of change.
// Kinds rank create table, add column, drop column, alter column. Up to two
// items are named; more collapse to a count.
func GenerateDescription(ops []Operation) string {
	if len(ops) == 0 {
		return "no schema changes"
	}

	byType := make(map[ChangeType][]string)
	for _, op := range ops {
		var name string
		switch o := op.(type) {
		case CreateTable:
			name = o.Table()
		case AddColumn:
			name = o.Table() + "." + o.Column.Name
		case DropColumn:
			name = o.TableName + "." + o.Column.Name
		case AlterColumn:
			name = o.Table() + "." + o.Column.Name
		}
		byType[op.Type()] = append(byType[op.Type()], name)
	}

	phrases := []struct {
		kind     ChangeType
		verb     string
		singular string
		plural   string
	}{
		{ChangeCreateTable, "create", "table", "tables"},
		{ChangeAddColumn, "add", "column", "columns"},
		{ChangeDropColumn, "drop", "column", "columns"},
		{ChangeAlterColumn, "alter", "column", "columns"},
	}

	for _, p := range phrases {
		names := byType[p.kind]
		switch len(names) {
		case 0:
			continue
		case 1:
			return fmt.Sprintf("%s %s %s", p.verb, names[0], p.singular)
		case 2:
			return fmt.Sprintf("%s %s and %s %s", p.verb, names[0], names[1], p.plural)
		default:
			return fmt.Sprintf("%s %d %s", p.verb, len(names), p.plural)
		}
	}
	return "schema changes"
}

// FileName returns "YYYY-MM-DD-kebab-case.sql", preferring name over description
func FileName(date time.Time, description, name string) string {
	slug := kebabCase(name)
	if slug == "" {
		slug = kebabCase(description)
	}
	if slug == "" {
		slug = "migration"
	}
	return fmt.Sprintf("%s-%s.sql", date.Format("2006-01-02"), slug)
}

func kebabCase(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// WriteFile writes contents to dir/fileName, creating dir when needed
func WriteFile(dir, fileName, contents string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create migrations directory: %w", err)
	}

	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return "", fmt.Errorf("failed to write migration file: %w", err)
	}
	return path, nil
}
