// Package tracking records which fields of an entity record differ from the
// values last known to be persisted. The dirty set drives UPDATE statements
// that touch only the changed columns.
package tracking

import (
	"reflect"
	"sort"
	"sync"
	"time"
)

// FieldChange represents a change to a single field
type FieldChange struct {
	Field    string
	OldValue interface{}
	NewValue interface{}
}

// ChangeTracker holds the persisted snapshot of a record and its current values
type ChangeTracker struct {
	mu       sync.RWMutex
	original map[string]interface{}
	current  map[string]interface{}
	changes  map[string]*FieldChange
}

// NewChangeTracker creates a tracker from a persisted snapshot and the current values.
// A field missing from original compares as nil, so with a nil original every
// current field holding a value is dirty.
func NewChangeTracker(original, current map[string]interface{}) *ChangeTracker {
	ct := &ChangeTracker{
		original: copyMap(original),
		current:  copyMap(current),
		changes:  make(map[string]*FieldChange),
	}
	ct.computeChanges()
	return ct
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}

func (ct *ChangeTracker) computeChanges() {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	for field, newValue := range ct.current {
		oldValue := ct.original[field]
		if !valuesEqual(oldValue, newValue) {
			ct.changes[field] = &FieldChange{
				Field:    field,
				OldValue: oldValue,
				NewValue: newValue,
			}
		}
	}
}

// valuesEqual compares two field values. Times compare by instant so that a
// value read back from the database equals the one that was written.
func valuesEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
		return false
	}

	return reflect.DeepEqual(a, b)
}

// ChangedFields returns the dirty field names in sorted order
func (ct *ChangeTracker) ChangedFields() []string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	fields := make([]string, 0, len(ct.changes))
	for field := range ct.changes {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// CurrentValue returns the current value of a field
func (ct *ChangeTracker) CurrentValue(field string) (interface{}, bool) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	v, ok := ct.current[field]
	return v, ok
}

// Current returns a copy of every current field value
func (ct *ChangeTracker) Current() map[string]interface{} {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return copyMap(ct.current)
}

// HasChanges returns true if any field is dirty
func (ct *ChangeTracker) HasChanges() bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.changes) > 0
}

// Reset makes the current values the persisted snapshot and clears the dirty set
func (ct *ChangeTracker) Reset() {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.original = copyMap(ct.current)
	ct.changes = make(map[string]*FieldChange)
}

// SetFieldValue updates a field value and recomputes its dirty state.
// A value equal to the snapshot leaves the dirty set; a field absent from the
// snapshot reads as nil.
func (ct *ChangeTracker) SetFieldValue(field string, value interface{}) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.current[field] = value

	oldValue := ct.original[field]
	if !valuesEqual(oldValue, value) {
		ct.changes[field] = &FieldChange{
			Field:    field,
			OldValue: oldValue,
			NewValue: value,
		}
		return
	}
	delete(ct.changes, field)
}

// GetChangedData returns the dirty fields with their current values
func (ct *ChangeTracker) GetChangedData() map[string]interface{} {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	result := make(map[string]interface{}, len(ct.changes))
	for field, change := range ct.changes {
		result[field] = change.NewValue
	}
	return result
}
