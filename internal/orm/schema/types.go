// Package schema provides the metadata model for pgmeta entities.
// An Entity declares its table, an ordered list of columns and optional foreign keys.
// The same declaration drives persistence, drift detection and DDL generation.
package schema

import (
	"fmt"
	"strings"
)

// Kind represents the kind of value a column stores
type Kind int

const (
	KindNumber Kind = iota
	KindString
	KindEnum
	KindTimestamp
	KindDate
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindEnum:
		return "enum"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// ColumnType is the closed set of column type variants.
// Each variant carries only the parameters relevant to its kind.
type ColumnType interface {
	Kind() Kind
	String() string
	columnType()
}

// Number is an integer column
type Number struct{}

// String is a text column. MaxLength > 0 maps to VARCHAR(MaxLength), otherwise TEXT.
type String struct {
	MaxLength int
}

// Enum is a column backed by a database enum type
type Enum struct {
	Values []string
}

// Timestamp is a timestamp-with-time-zone column
type Timestamp struct{}

// Date is a calendar date column
type Date struct{}

func (Number) Kind() Kind    { return KindNumber }
func (String) Kind() Kind    { return KindString }
func (Enum) Kind() Kind      { return KindEnum }
func (Timestamp) Kind() Kind { return KindTimestamp }
func (Date) Kind() Kind      { return KindDate }

func (Number) columnType()    {}
func (String) columnType()    {}
func (Enum) columnType()      {}
func (Timestamp) columnType() {}
func (Date) columnType()      {}

func (Number) String() string { return "number" }

func (s String) String() string {
	if s.MaxLength > 0 {
		return fmt.Sprintf("string(%d)", s.MaxLength)
	}
	return "string"
}

func (e Enum) String() string {
	return fmt.Sprintf("enum[%s]", strings.Join(e.Values, ", "))
}

func (Timestamp) String() string { return "timestamp" }
func (Date) String() string      { return "date" }

// Column describes one declared column of an entity
type Column struct {
	PropertyKey string
	Name        string
	Type        ColumnType
	Primary     bool
	Optional    bool
}

// Kind returns the kind of the column's type
func (c *Column) Kind() Kind {
	return c.Type.Kind()
}

// MaxLength returns the declared maximum length of a string column, or 0
func (c *Column) MaxLength() int {
	if s, ok := c.Type.(String); ok {
		return s.MaxLength
	}
	return 0
}

// EnumValues returns the members of an enum column, or nil
func (c *Column) EnumValues() []string {
	if e, ok := c.Type.(Enum); ok {
		return e.Values
	}
	return nil
}

// String returns a readable representation like "name: string(255)!"
func (c *Column) String() string {
	s := fmt.Sprintf("%s: %s", c.PropertyKey, c.Type.String())
	if c.Optional {
		return s + "?"
	}
	return s + "!"
}

// ColumnOption configures a column declaration
type ColumnOption func(*Column)

// Primary marks the column as the entity's primary key
func Primary() ColumnOption {
	return func(c *Column) { c.Primary = true }
}

// Optional marks the column as nullable
func Optional() ColumnOption {
	return func(c *Column) { c.Optional = true }
}

// ColumnName overrides the database column name (default: snake_case of the property key)
func ColumnName(name string) ColumnOption {
	return func(c *Column) { c.Name = name }
}

// CascadeAction represents the ON DELETE behavior of a foreign key
type CascadeAction int

const (
	CascadeUnset CascadeAction = iota
	CascadeRestrict
	CascadeCascade
	CascadeSetNull
	CascadeNoAction
)

// String returns the string representation of the cascade action
func (c CascadeAction) String() string {
	switch c {
	case CascadeRestrict:
		return "restrict"
	case CascadeCascade:
		return "cascade"
	case CascadeSetNull:
		return "set_null"
	case CascadeNoAction:
		return "no_action"
	default:
		return ""
	}
}

// SQL returns the SQL keyword for the action, or "" when unset
func (c CascadeAction) SQL() string {
	switch c {
	case CascadeRestrict:
		return "RESTRICT"
	case CascadeCascade:
		return "CASCADE"
	case CascadeSetNull:
		return "SET NULL"
	case CascadeNoAction:
		return "NO ACTION"
	default:
		return ""
	}
}

// ForeignKey declares that a property references a column of another table
type ForeignKey struct {
	PropertyKey      string
	ReferencedTable  string
	ReferencedColumn string
	OnDelete         CascadeAction
}

// ForeignKeyOption configures a foreign key declaration
type ForeignKeyOption func(*ForeignKey)

// OnDelete sets the ON DELETE action of a foreign key
func OnDelete(action CascadeAction) ForeignKeyOption {
	return func(fk *ForeignKey) { fk.OnDelete = action }
}

// TableMetadata binds an entity to its table
type TableMetadata struct {
	TableName string
	Entity    *Entity
}

// Entity is the declaration of one persistent entity type.
// Entities are compared by identity.
type Entity struct {
	Name        string
	table       *TableMetadata
	columns     []*Column
	foreignKeys []*ForeignKey
}

// NewEntity creates an entity declaration without a table
func NewEntity(name string) *Entity {
	return &Entity{Name: name}
}

// Table declares the table backing the entity. The first declaration wins.
func (e *Entity) Table(name string) *Entity {
	if e.table == nil {
		e.table = &TableMetadata{TableName: name, Entity: e}
	}
	return e
}

// Column appends a column declaration
func (e *Entity) Column(propertyKey string, t ColumnType, opts ...ColumnOption) *Entity {
	col := &Column{
		PropertyKey: propertyKey,
		Name:        toSnakeCase(propertyKey),
		Type:        t,
	}
	for _, opt := range opts {
		opt(col)
	}
	e.columns = append(e.columns, col)
	return e
}

// ForeignKey appends a foreign key declaration
func (e *Entity) ForeignKey(propertyKey, referencedTable, referencedColumn string, opts ...ForeignKeyOption) *Entity {
	fk := &ForeignKey{
		PropertyKey:      propertyKey,
		ReferencedTable:  referencedTable,
		ReferencedColumn: referencedColumn,
	}
	for _, opt := range opts {
		opt(fk)
	}
	e.foreignKeys = append(e.foreignKeys, fk)
	return e
}

// TableMetadata returns the table declaration or a MetadataError
func (e *Entity) TableMetadata() (*TableMetadata, error) {
	if e.table == nil {
		return nil, &MetadataError{Entity: e.Name, Message: "no table declaration found"}
	}
	return e.table, nil
}

// TableName returns the declared table name, or "" when undeclared
func (e *Entity) TableName() string {
	if e.table == nil {
		return ""
	}
	return e.table.TableName
}

// Columns returns the columns in declaration order
func (e *Entity) Columns() []*Column {
	out := make([]*Column, len(e.columns))
	copy(out, e.columns)
	return out
}

// ForeignKeys returns the foreign keys in declaration order
func (e *Entity) ForeignKeys() []*ForeignKey {
	out := make([]*ForeignKey, len(e.foreignKeys))
	copy(out, e.foreignKeys)
	return out
}

// PrimaryKey returns the first column flagged primary
func (e *Entity) PrimaryKey() (*Column, bool) {
	for _, col := range e.columns {
		if col.Primary {
			return col, true
		}
	}
	return nil, false
}

// RequirePrimaryKey returns the primary key column or a MetadataError
func (e *Entity) RequirePrimaryKey() (*Column, error) {
	col, ok := e.PrimaryKey()
	if !ok {
		return nil, &MetadataError{Entity: e.Name, Message: "no primary key column declared"}
	}
	return col, nil
}

// ColumnByKey finds a column by property key
func (e *Entity) ColumnByKey(propertyKey string) (*Column, bool) {
	for _, col := range e.columns {
		if col.PropertyKey == propertyKey {
			return col, true
		}
	}
	return nil, false
}

// ColumnByName finds a column by database column name
func (e *Entity) ColumnByName(name string) (*Column, bool) {
	for _, col := range e.columns {
		if col.Name == name {
			return col, true
		}
	}
	return nil, false
}

// ForeignKeyFor returns the foreign key declared on a property, if any
func (e *Entity) ForeignKeyFor(propertyKey string) (*ForeignKey, bool) {
	for _, fk := range e.foreignKeys {
		if fk.PropertyKey == propertyKey {
			return fk, true
		}
	}
	return nil, false
}

// ForeignKeyColumn resolves the column name a foreign key is declared on.
// Falls back to the snake_case property key when no column carries it.
func (e *Entity) ForeignKeyColumn(fk *ForeignKey) string {
	if col, ok := e.ColumnByKey(fk.PropertyKey); ok {
		return col.Name
	}
	return toSnakeCase(fk.PropertyKey)
}

// EnumTypeName returns the database enum type name for a column
func EnumTypeName(table, column string) string {
	return fmt.Sprintf("%s_%s_enum", table, column)
}

// ForeignKeyName returns the constraint name for a foreign key on a column
func ForeignKeyName(table, column string) string {
	return fmt.Sprintf("fk_%s_%s", table, column)
}

// toSnakeCase converts a string to snake_case
func toSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			// "createdAt" -> "created_at", "HTTPServer" -> "http_server"
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}
