// Package codegen renders PostgreSQL DDL from entity declarations.
// It is shared by the migration generator (reviewable SQL files) and the
// migration runner helpers (idempotent DDL executed by handlers).
package codegen

import (
	"fmt"

	"github.com/lib/pq"

	"github.com/conduit-lang/pgmeta/internal/orm/schema"
)

// Catalog data types as reported by information_schema.columns
const (
	CatalogInteger     = "integer"
	CatalogVarchar     = "character varying"
	CatalogText        = "text"
	CatalogUserDefined = "USER-DEFINED"
	CatalogTimestampTZ = "timestamp with time zone"
	CatalogDate        = "date"
)

// TypeMapper maps declared column types to PostgreSQL types
type TypeMapper struct{}

// NewTypeMapper creates a new TypeMapper
func NewTypeMapper() *TypeMapper {
	return &TypeMapper{}
}

// MapType returns the SQL type of a non-primary column of table
func (tm *TypeMapper) MapType(table string, col *schema.Column) (string, error) {
	switch t := col.Type.(type) {
	case schema.Number:
		return "INTEGER", nil
	case schema.String:
		if t.MaxLength > 0 {
			return fmt.Sprintf("VARCHAR(%d)", t.MaxLength), nil
		}
		return "TEXT", nil
	case schema.Enum:
		return QuoteIdentifier(schema.EnumTypeName(table, col.Name)), nil
	case schema.Timestamp:
		return "TIMESTAMP WITH TIME ZONE", nil
	case schema.Date:
		return "DATE", nil
	default:
		return "", fmt.Errorf("unsupported column type: %v", col.Type)
	}
}

// MapNullability returns the NOT NULL constraint for a required column, "" otherwise
func (tm *TypeMapper) MapNullability(col *schema.Column) string {
	if col.Optional {
		return ""
	}
	return "NOT NULL"
}

// ColumnDefinition renders the column as it appears in CREATE TABLE or ADD COLUMN
func (tm *TypeMapper) ColumnDefinition(table string, col *schema.Column) (string, error) {
	if col.Primary {
		return fmt.Sprintf("%s SERIAL PRIMARY KEY", QuoteIdentifier(col.Name)), nil
	}

	sqlType, err := tm.MapType(table, col)
	if err != nil {
		return "", fmt.Errorf("column %s: %w", col.Name, err)
	}

	def := fmt.Sprintf("%s %s", QuoteIdentifier(col.Name), sqlType)
	if null := tm.MapNullability(col); null != "" {
		def += " " + null
	}
	return def, nil
}

// CatalogType returns the data_type and udt_name a live column must report
// to match the declaration. udtName is only meaningful for enums.
func (tm *TypeMapper) CatalogType(table string, col *schema.Column) (dataType, udtName string) {
	if col.Primary {
		return CatalogInteger, ""
	}

	switch t := col.Type.(type) {
	case schema.Number:
		return CatalogInteger, ""
	case schema.String:
		if t.MaxLength > 0 {
			return CatalogVarchar, ""
		}
		return CatalogText, ""
	case schema.Enum:
		return CatalogUserDefined, schema.EnumTypeName(table, col.Name)
	case schema.Timestamp:
		return CatalogTimestampTZ, ""
	case schema.Date:
		return CatalogDate, ""
	default:
		return "", ""
	}
}

// QuoteIdentifier wraps a SQL identifier in double quotes and escapes internal quotes
func QuoteIdentifier(identifier string) string {
	return pq.QuoteIdentifier(identifier)
}

// QuoteLiteral renders a string as a SQL literal
func QuoteLiteral(literal string) string {
	return pq.QuoteLiteral(literal)
}
