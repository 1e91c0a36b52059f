package introspect

// Column is a live column as reported by information_schema.columns
type Column struct {
	Name               string
	DataType           string
	UDTName            string
	Nullable           bool
	CharacterMaxLength *int
	ColumnDefault      *string
}

// Table is a live base table with its columns in ordinal order
type Table struct {
	Name    string
	Columns []Column
}

// Column finds a column by name
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Enum is a live enum type with its labels in sort order
type Enum struct {
	Name   string
	Values []string
}

// Schema is a snapshot of the live public schema
type Schema struct {
	Tables []Table
	Enums  []Enum
}

// Table finds a table by name
func (s *Schema) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// Enum finds an enum type by name
func (s *Schema) Enum(name string) (*Enum, bool) {
	for i := range s.Enums {
		if s.Enums[i].Name == name {
			return &s.Enums[i], true
		}
	}
	return nil, false
}

// HasEnum reports whether an enum type exists
func (s *Schema) HasEnum(name string) bool {
	_, ok := s.Enum(name)
	return ok
}
