package tracking

import (
	"encoding/json"

	"github.com/conduit-lang/pgmeta/internal/orm/schema"
)

// Record is a tracked entity instance: its field values keyed by property key,
// the snapshot last known to be persisted, and whether it has ever been saved.
// A Record is meant to be mutated by one goroutine between load and save.
type Record struct {
	entity  *schema.Entity
	tracker *ChangeTracker
	isNew   bool
}

// Track wraps values as a record of entity.
// A new record starts with an empty snapshot so every assigned field is dirty;
// a loaded record uses values as its snapshot and starts clean.
func Track(values map[string]interface{}, entity *schema.Entity, isNew bool) *Record {
	var original map[string]interface{}
	if !isNew {
		original = values
	}
	return &Record{
		entity:  entity,
		tracker: NewChangeTracker(original, values),
		isNew:   isNew,
	}
}

// TrackBlank returns a new record whose snapshot equals values.
// Only fields assigned afterwards are dirty.
func TrackBlank(values map[string]interface{}, entity *schema.Entity) *Record {
	return &Record{
		entity:  entity,
		tracker: NewChangeTracker(values, values),
		isNew:   true,
	}
}

// Entity returns the entity declaration the record belongs to
func (r *Record) Entity() *schema.Entity {
	return r.entity
}

// Get returns the current value of a property
func (r *Record) Get(key string) interface{} {
	v, _ := r.tracker.CurrentValue(key)
	return v
}

// Lookup returns the current value of a property and whether it is set
func (r *Record) Lookup(key string) (interface{}, bool) {
	return r.tracker.CurrentValue(key)
}

// Set assigns a property value
func (r *Record) Set(key string, value interface{}) *Record {
	r.tracker.SetFieldValue(key, value)
	return r
}

// Values returns a copy of the current property values
func (r *Record) Values() map[string]interface{} {
	return r.tracker.Current()
}

// IsNew reports whether the record has never been saved
func (r *Record) IsNew() bool {
	return r.isNew
}

// IsDirty reports whether any property differs from the persisted snapshot
func (r *Record) IsDirty() bool {
	return r.tracker.HasChanges()
}

// Changes returns the dirty properties with their current values
func (r *Record) Changes() map[string]interface{} {
	return r.tracker.GetChangedData()
}

// DirtyKeys returns the dirty property keys in sorted order
func (r *Record) DirtyKeys() []string {
	return r.tracker.ChangedFields()
}

// MarkClean records the current values as persisted
func (r *Record) MarkClean() {
	r.tracker.Reset()
	r.isNew = false
}

// MarshalJSON encodes the record as its property map
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Values())
}
