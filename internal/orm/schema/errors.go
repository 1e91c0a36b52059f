package schema

import (
	"errors"
	"fmt"
)

// ErrMetadata is matched by every MetadataError via errors.Is
var ErrMetadata = errors.New("metadata error")

// MetadataError reports a missing or invalid entity declaration.
// These are developer errors and are returned synchronously, before any SQL is issued.
type MetadataError struct {
	Entity  string
	Message string
}

// Error implements the error interface
func (e *MetadataError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("metadata error: %s", e.Message)
	}
	return fmt.Sprintf("metadata error: %s: %s", e.Entity, e.Message)
}

// Is reports whether target is ErrMetadata
func (e *MetadataError) Is(target error) bool {
	return target == ErrMetadata
}

// IsMetadataError returns true if err is or wraps a MetadataError
func IsMetadataError(err error) bool {
	return errors.Is(err, ErrMetadata)
}
