// Package idgen produces opaque "{PREFIX}-{RANDOM}" identifiers.
//
// The random part is a ULID: uppercase alphanumeric, unique across
// processes, and lexically sortable by creation time, so list queries
// ordered by ID come back in insertion order.
package idgen

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// ULID is the default generator. The zero value is ready to use.
type ULID struct{}

// GenerateID returns prefix + "-" + ULID, or the bare ULID for an empty prefix.
func (ULID) GenerateID(prefix string) string {
	id := ulid.Make().String()
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// Prefix returns the part before the first "-", or "" if there is none.
func Prefix(id string) string {
	p, _, ok := strings.Cut(id, "-")
	if !ok {
		return ""
	}
	return p
}
