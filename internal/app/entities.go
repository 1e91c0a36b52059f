// Package app declares the habit tracker's entities and versioned migrations,
// and a small account and habit store built on the persistence service.
package app

import "github.com/conduit-lang/pgmeta/internal/orm/schema"

// Habit cadences
const (
	CadenceDaily  = "daily"
	CadenceWeekly = "weekly"
)

var (
	// User is a registered account. Password holds a bcrypt hash.
	User = schema.NewEntity("User").
		Table("users").
		Column("id", schema.Number{}, schema.Primary()).
		Column("username", schema.String{MaxLength: 64}).
		Column("password", schema.String{MaxLength: 255}).
		Column("createdAt", schema.Timestamp{})

	// Habit is a recurring activity a user tracks
	Habit = schema.NewEntity("Habit").
		Table("habits").
		Column("id", schema.Number{}, schema.Primary()).
		Column("userId", schema.Number{}).
		Column("name", schema.String{MaxLength: 255}).
		Column("cadence", schema.Enum{Values: []string{CadenceDaily, CadenceWeekly}}).
		Column("notes", schema.String{}, schema.Optional()).
		Column("startedOn", schema.Date{}, schema.Optional()).
		Column("createdAt", schema.Timestamp{}).
		ForeignKey("userId", "users", "id", schema.OnDelete(schema.CascadeCascade))
)

// NewRegistry returns a registry holding every application entity
func NewRegistry() *schema.Registry {
	return schema.NewRegistry().MustRegister(User, Habit)
}
