// Package ids generates ULIDs for storage keys and request identifiers.
// Entity ids visible in the public API are UUIDs; ULIDs are used where
// insertion-ordered keys help, like token rows and log correlation.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier. The monotonic
// entropy source is shared, so New is safe for concurrent use.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
