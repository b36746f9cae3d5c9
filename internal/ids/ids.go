// Package ids generates the identifiers used for communities, cohorts, role
// grants and request tracing.
package ids

import "github.com/oklog/ulid/v2"

// New returns a lexicographically sortable ULID string. The default entropy
// source is monotonic and safe for concurrent use.
func New() string {
	return ulid.Make().String()
}
