package codegen

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/pgmeta/internal/orm/schema"
)

// DDLGenerator generates PostgreSQL DDL statements from entity declarations.
// Idempotent variants tolerate objects that already exist so a handler can be replayed.
type DDLGenerator struct {
	typeMapper *TypeMapper
}

// NewDDLGenerator creates a new DDL generator
func NewDDLGenerator() *DDLGenerator {
	return &DDLGenerator{
		typeMapper: NewTypeMapper(),
	}
}

// GenerateEnumType generates a CREATE TYPE statement for an enum column
func (g *DDLGenerator) GenerateEnumType(table string, col *schema.Column) string {
	values := col.EnumValues()
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = QuoteLiteral(v)
	}

	return fmt.Sprintf(
		"CREATE TYPE %s AS ENUM (%s);",
		QuoteIdentifier(schema.EnumTypeName(table, col.Name)),
		strings.Join(quoted, ", "),
	)
}

// GenerateEnumTypeIfNotExists wraps CREATE TYPE in a block that ignores duplicates.
// PostgreSQL has no CREATE TYPE IF NOT EXISTS.
func (g *DDLGenerator) GenerateEnumTypeIfNotExists(table string, col *schema.Column) string {
	return ignoreDuplicate(g.GenerateEnumType(table, col))
}

// GenerateEnumTypes generates CREATE TYPE statements for every enum column in declaration order
func (g *DDLGenerator) GenerateEnumTypes(entity *schema.Entity, ifNotExists bool) []string {
	table := entity.TableName()

	var stmts []string
	for _, col := range entity.Columns() {
		if col.Kind() != schema.KindEnum {
			continue
		}
		if ifNotExists {
			stmts = append(stmts, g.GenerateEnumTypeIfNotExists(table, col))
		} else {
			stmts = append(stmts, g.GenerateEnumType(table, col))
		}
	}
	return stmts
}

// GenerateCreateTable generates a CREATE TABLE statement with columns in
// declaration order followed by named foreign key constraints
func (g *DDLGenerator) GenerateCreateTable(entity *schema.Entity, ifNotExists bool) (string, error) {
	tableMeta, err := entity.TableMetadata()
	if err != nil {
		return "", err
	}
	table := tableMeta.TableName

	var defs []string
	for _, col := range entity.Columns() {
		def, err := g.typeMapper.ColumnDefinition(table, col)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", table, err)
		}
		defs = append(defs, def)
	}
	for _, fk := range entity.ForeignKeys() {
		defs = append(defs, g.GenerateForeignKeyClause(entity, fk))
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(QuoteIdentifier(table))
	b.WriteString(" (\n")
	for i, def := range defs {
		b.WriteString("  ")
		b.WriteString(def)
		if i < len(defs)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");")

	return b.String(), nil
}

// GenerateForeignKeyClause renders a named table constraint for a foreign key
func (g *DDLGenerator) GenerateForeignKeyClause(entity *schema.Entity, fk *schema.ForeignKey) string {
	column := entity.ForeignKeyColumn(fk)
	clause := fmt.Sprintf(
		"CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		QuoteIdentifier(schema.ForeignKeyName(entity.TableName(), column)),
		QuoteIdentifier(column),
		QuoteIdentifier(fk.ReferencedTable),
		QuoteIdentifier(fk.ReferencedColumn),
	)
	if action := fk.OnDelete.SQL(); action != "" {
		clause += " ON DELETE " + action
	}
	return clause
}

// GenerateAddForeignKey generates an ALTER TABLE ... ADD CONSTRAINT statement
func (g *DDLGenerator) GenerateAddForeignKey(entity *schema.Entity, fk *schema.ForeignKey, ifNotExists bool) string {
	stmt := fmt.Sprintf(
		"ALTER TABLE %s ADD %s;",
		QuoteIdentifier(entity.TableName()),
		g.GenerateForeignKeyClause(entity, fk),
	)
	if ifNotExists {
		return ignoreDuplicate(stmt)
	}
	return stmt
}

// GenerateAddColumn generates an ALTER TABLE ... ADD COLUMN statement
func (g *DDLGenerator) GenerateAddColumn(entity *schema.Entity, col *schema.Column, ifNotExists bool) (string, error) {
	table := entity.TableName()
	def, err := g.typeMapper.ColumnDefinition(table, col)
	if err != nil {
		return "", fmt.Errorf("table %s: %w", table, err)
	}

	clause := "ADD COLUMN "
	if ifNotExists {
		clause += "IF NOT EXISTS "
	}
	return fmt.Sprintf("ALTER TABLE %s %s%s;", QuoteIdentifier(table), clause, def), nil
}

// GenerateDropColumn generates an ALTER TABLE ... DROP COLUMN statement
func (g *DDLGenerator) GenerateDropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", QuoteIdentifier(table), QuoteIdentifier(column))
}

func ignoreDuplicate(stmt string) string {
	return fmt.Sprintf("DO $$ BEGIN %s EXCEPTION WHEN duplicate_object THEN NULL; END $$;", stmt)
}
