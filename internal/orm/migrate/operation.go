// Package migrate detects drift between declared entities and the live
// database, renders reviewable migration SQL, and applies versioned
// migration handlers recorded in a ledger table.
package migrate

import (
	"fmt"

	"github.com/conduit-lang/pgmeta/internal/orm/introspect"
	"github.com/conduit-lang/pgmeta/internal/orm/schema"
)

// ChangeType represents the type of schema change
type ChangeType int

const (
	ChangeCreateTable ChangeType = iota
	ChangeAddColumn
	ChangeDropColumn
	ChangeAlterColumn
)

// String returns the string representation of the change type
func (c ChangeType) String() string {
	switch c {
	case ChangeCreateTable:
		return "create_table"
	case ChangeAddColumn:
		return "add_column"
	case ChangeDropColumn:
		return "drop_column"
	case ChangeAlterColumn:
		return "alter_column"
	default:
		return "unknown"
	}
}

// Operation is one schema change needed to reconcile an entity with the live database.
// The variants are CreateTable, AddColumn, DropColumn and AlterColumn.
type Operation interface {
	Type() ChangeType
	Table() string
	String() string
	operation()
}

// CreateTable creates the table of an entity that does not exist live
type CreateTable struct {
	Entity *schema.Entity
}

// AddColumn adds a declared column missing from the live table
type AddColumn struct {
	Entity *schema.Entity
	Column *schema.Column
	// EnumExists is true when the column's enum type already exists live
	EnumExists bool
}

// DropColumn drops a live column the entity no longer declares
type DropColumn struct {
	TableName string
	Column    introspect.Column
}

// AlterColumn reports a column whose live definition differs from its declaration
type AlterColumn struct {
	Entity  *schema.Entity
	Column  *schema.Column
	Live    introspect.Column
	Changes ColumnChanges
}

// ColumnChanges summarizes how a live column differs from its declaration
type ColumnChanges struct {
	TypeChanged        bool
	NullabilityChanged bool
	MaxLengthChanged   bool
	OldType            string
	NewType            string
	OldNullable        bool
	NewNullable        bool
}

// Any reports whether anything differs
func (c ColumnChanges) Any() bool {
	return c.TypeChanged || c.NullabilityChanged || c.MaxLengthChanged
}

func (CreateTable) Type() ChangeType { return ChangeCreateTable }
func (AddColumn) Type() ChangeType   { return ChangeAddColumn }
func (DropColumn) Type() ChangeType  { return ChangeDropColumn }
func (AlterColumn) Type() ChangeType { return ChangeAlterColumn }

func (o CreateTable) Table() string { return o.Entity.TableName() }
func (o AddColumn) Table() string   { return o.Entity.TableName() }
func (o DropColumn) Table() string  { return o.TableName }
func (o AlterColumn) Table() string { return o.Entity.TableName() }

func (o CreateTable) String() string {
	return fmt.Sprintf("create table %s", o.Table())
}

func (o AddColumn) String() string {
	return fmt.Sprintf("add column %s.%s", o.Table(), o.Column.Name)
}

func (o DropColumn) String() string {
	return fmt.Sprintf("drop column %s.%s", o.TableName, o.Column.Name)
}

func (o AlterColumn) String() string {
	return fmt.Sprintf("alter column %s.%s", o.Table(), o.Column.Name)
}

func (CreateTable) operation() {}
func (AddColumn) operation()   {}
func (DropColumn) operation()  {}
func (AlterColumn) operation() {}

// IsDestructive reports whether applying the operation can lose data
func IsDestructive(op Operation) bool {
	return op.Type() == ChangeDropColumn
}

// HasDestructive reports whether any operation can lose data
func HasDestructive(ops []Operation) bool {
	for _, op := range ops {
		if IsDestructive(op) {
			return true
		}
	}
	return false
}

// Summarize counts operations per change type
func Summarize(ops []Operation) map[ChangeType]int {
	counts := make(map[ChangeType]int)
	for _, op := range ops {
		counts[op.Type()]++
	}
	return counts
}
