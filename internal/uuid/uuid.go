// Package uuid generates record and queue identifiers. Local records keep the
// same id on the server, so ids must be globally unique from creation.
package uuid

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ShortLen is the number of characters kept by Short.
const ShortLen = 8

// New generates a new UUID v4.
func New() string {
	return uuid.New().String()
}

// Parse parses a v4 UUID.
func Parse(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "invalid id %q", s)
	}
	if id.Version() != 4 {
		return uuid.Nil, errors.Errorf("expected UUID v4, got v%d", id.Version())
	}
	return id, nil
}

// IsValid reports whether s is a v4 UUID in canonical dashed form.
func IsValid(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := Parse(s)
	return err == nil
}

// Short truncates an id for logs and diagnostics, where full ids would
// identify customer records.
func Short(id string) string {
	if len(id) <= ShortLen {
		return id
	}
	return id[:ShortLen]
}
