package store

import "errors"

// ErrDuplicateRecord is returned when an insert violates a uniqueness
// constraint on a business identifier
var ErrDuplicateRecord = errors.New("duplicate record")
