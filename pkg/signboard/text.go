package signboard

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ShortIDLength is the length of generated signboard ids.
const ShortIDLength = 8

// ShortID returns an 8-character lowercase id taken from a random UUID.
// The alphabet is lowercase hex, giving 2^32 possible values.
func ShortID() string {
	return strings.ToLower(uuid.NewString()[:ShortIDLength])
}

// ListSafe flattens text to a single line for list output.
// Each newline or carriage return becomes one space.
func ListSafe(text string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(text)
}

// ListLine formats one list entry as "<id> <single-line-text>".
func ListLine(s Signboard) string {
	return s.ID + " " + ListSafe(s.Text)
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRequestID returns a fresh correlation id for one request.
// ULIDs from a monotonic source never repeat within a process.
func NewRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
