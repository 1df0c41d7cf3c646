package realtime

import (
	"time"

	"calcsync/cmd/identity/ids"
)

// NewChannelID returns a ULID used as channel id in logs and metrics.
func NewChannelID(now time.Time) string {
	return ids.MustULID(now)
}
