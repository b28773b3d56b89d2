package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. Used for account and message ids; ULIDs
// sort by creation time, which keeps message ids roughly chronological.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
