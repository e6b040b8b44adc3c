package fees

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a prefixed random identifier, e.g. "rec-3f2a...".
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// NewReceiptNo returns a human-readable receipt number for a payment made at paidAt.
func NewReceiptNo(paidAt time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "RCP-" + paidAt.UTC().Format("20060102") + "-" + strings.ToUpper(id[:8])
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
