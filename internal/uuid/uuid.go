// Package uuid provides ID generation and validation for events and sync
// tasks, including the temp-ID scheme for locally originated events that the
// remote store has not yet confirmed.
package uuid

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// TempPrefix marks an event ID as locally originated and not yet confirmed
// by the remote store. The prefix is the sole signal distinguishing unsynced
// from synced events during merge, so no other code should string-match it.
const TempPrefix = "temp-"

// UUID v4 format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
// where y is one of [8, 9, a, b] (variant bits)
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new UUID v4.
func New() string {
	return uuid.New().String()
}

// NewTemp generates an ID for a locally originated, unconfirmed event.
func NewTemp() string {
	return TempPrefix + uuid.New().String()
}

// IsTemp reports whether the ID belongs to an unconfirmed local event.
func IsTemp(id string) bool {
	return strings.HasPrefix(id, TempPrefix)
}

// IsValid checks if a string is a valid UUID v4.
// Enforces strict format with dashes and correct variant bits.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// Validate returns an error if the string is not a valid UUID v4.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid UUID v4 format: %q", s)
	}
	return nil
}
