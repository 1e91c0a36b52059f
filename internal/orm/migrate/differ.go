package migrate

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/pgmeta/internal/orm/codegen"
	"github.com/conduit-lang/pgmeta/internal/orm/introspect"
	"github.com/conduit-lang/pgmeta/internal/orm/schema"
)

// Differ compares entity declarations against a live schema snapshot.
// It never proposes dropping a table that no entity declares.
type Differ struct {
	typeMapper *codegen.TypeMapper
}

// NewDiffer creates a new schema differ
func NewDiffer() *Differ {
	return &Differ{
		typeMapper: codegen.NewTypeMapper(),
	}
}

// ComputeDiff returns the operations reconciling entities with live, in entity order.
// Per table: a missing table yields one CreateTable; otherwise declared columns
// are checked in declaration order, then undeclared live columns are dropped.
func (d *Differ) ComputeDiff(entities []*schema.Entity, live *introspect.Schema) ([]Operation, error) {
	if live == nil {
		live = &introspect.Schema{}
	}

	var ops []Operation
	for _, entity := range entities {
		tableMeta, err := entity.TableMetadata()
		if err != nil {
			return nil, err
		}

		table, exists := live.Table(tableMeta.TableName)
		if !exists {
			ops = append(ops, CreateTable{Entity: entity})
			continue
		}

		ops = append(ops, d.diffColumns(entity, table, live)...)
	}
	return ops, nil
}

// ComputeRegistryDiff diffs every registered entity in registration order
func (d *Differ) ComputeRegistryDiff(registry *schema.Registry, live *introspect.Schema) ([]Operation, error) {
	return d.ComputeDiff(registry.Entities(), live)
}

func (d *Differ) diffColumns(entity *schema.Entity, table *introspect.Table, live *introspect.Schema) []Operation {
	var ops []Operation
	declared := make(map[string]bool)

	for _, col := range entity.Columns() {
		declared[col.Name] = true

		liveCol, exists := table.Column(col.Name)
		if !exists {
			op := AddColumn{Entity: entity, Column: col}
			if col.Kind() == schema.KindEnum {
				op.EnumExists = live.HasEnum(schema.EnumTypeName(table.Name, col.Name))
			}
			ops = append(ops, op)
			continue
		}

		if changes := d.CompareColumn(table.Name, col, liveCol); changes.Any() {
			ops = append(ops, AlterColumn{
				Entity:  entity,
				Column:  col,
				Live:    *liveCol,
				Changes: changes,
			})
		}
	}

	for _, liveCol := range table.Columns {
		if !declared[liveCol.Name] {
			ops = append(ops, DropColumn{TableName: table.Name, Column: liveCol})
		}
	}
	return ops
}

// CompareColumn reports how a live column differs from its declaration
func (d *Differ) CompareColumn(table string, col *schema.Column, live *introspect.Column) ColumnChanges {
	dataType, udtName := d.typeMapper.CatalogType(table, col)

	typeChanged := live.DataType != dataType
	if col.Primary && !hasSequenceDefault(live) {
		typeChanged = true
	}
	if col.Kind() == schema.KindEnum && live.UDTName != udtName {
		typeChanged = true
	}

	maxLengthChanged := false
	if !typeChanged && dataType == codegen.CatalogVarchar {
		maxLengthChanged = live.CharacterMaxLength == nil || *live.CharacterMaxLength != col.MaxLength()
	}

	wantNullable := col.Optional && !col.Primary

	return ColumnChanges{
		TypeChanged:        typeChanged,
		NullabilityChanged: live.Nullable != wantNullable,
		MaxLengthChanged:   maxLengthChanged,
		OldType:            describeLive(live),
		NewType:            d.describeDeclared(table, col),
		OldNullable:        live.Nullable,
		NewNullable:        wantNullable,
	}
}

func hasSequenceDefault(live *introspect.Column) bool {
	return live.ColumnDefault != nil && strings.Contains(*live.ColumnDefault, "nextval(")
}

func describeLive(live *introspect.Column) string {
	switch {
	case live.DataType == codegen.CatalogUserDefined:
		return live.UDTName
	case live.CharacterMaxLength != nil:
		return fmt.Sprintf("%s(%d)", live.DataType, *live.CharacterMaxLength)
	case hasSequenceDefault(live):
		return live.DataType + " (serial)"
	default:
		return live.DataType
	}
}

func (d *Differ) describeDeclared(table string, col *schema.Column) string {
	dataType, udtName := d.typeMapper.CatalogType(table, col)
	switch {
	case col.Primary:
		return dataType + " (serial)"
	case udtName != "":
		return udtName
	case col.MaxLength() > 0:
		return fmt.Sprintf("%s(%d)", dataType, col.MaxLength())
	default:
		return dataType
	}
}
