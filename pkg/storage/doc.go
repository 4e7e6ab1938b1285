// Package storage holds what the access log backends share: the errors
// they report and the tenant Scope that filters their reads. The backends
// themselves live in the memory, pebble and postgres subpackages.
package storage

import "errors"

var (
	// ErrNotFound means the record is unknown or outside the caller's scope.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a record with the same ID was already stored.
	ErrConflict = errors.New("record already exists")
)
