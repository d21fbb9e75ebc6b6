// Package ids generates and validates the ULID identifiers used as public
// resource ids across the API.
package ids

import (
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var ErrInvalidULID = errors.New("invalid ULID")

// New returns a fresh uppercase ULID.
func New() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.DefaultEntropy()).String()
}

// NewAt returns a ULID with the given timestamp component. Used by tests
// that need deterministic ordering.
func NewAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// Validate checks ULID syntax (26 chars, Crockford base32).
func Validate(value string) error {
	value = strings.TrimSpace(value)
	if len(value) != ulid.EncodedSize {
		return ErrInvalidULID
	}
	if _, err := ulid.ParseStrict(strings.ToUpper(value)); err != nil {
		return ErrInvalidULID
	}
	return nil
}
