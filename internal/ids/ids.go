// Package ids mints primary keys for auth records.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// New returns a lexicographically sortable identifier used as the primary
// key for users, OTPs and revoked-token records. Entropy comes from
// crypto/rand; identifiers are never guessable from their neighbors.
func New() string {
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String()
}
