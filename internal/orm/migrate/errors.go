package migrate

import (
	"errors"
	"fmt"
)

// ErrInvalidVersion is returned when registering a non-positive version
var ErrInvalidVersion = errors.New("migration version must be positive")

// SequenceGapError reports a version between the ledger and the highest
// registered migration that has no handler. LastApplied is the version applied
// just before the gap was reached.
type SequenceGapError struct {
	Version     int
	LastApplied int
}

// Error implements the error interface
func (e *SequenceGapError) Error() string {
	return fmt.Sprintf("migration %d is not registered (last applied: %d)", e.Version, e.LastApplied)
}

// IsSequenceGap returns true if err is or wraps a SequenceGapError
func IsSequenceGap(err error) bool {
	var gap *SequenceGapError
	return errors.As(err, &gap)
}
