package realtime

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testChannel(userID string, n int) *Channel {
	return NewChannel(fmt.Sprintf("%s-%d", userID, n), userID, 8)
}

// drain returns everything queued on ch without blocking.
func drain(ch *Channel) [][]byte {
	var out [][]byte
	for {
		select {
		case m := <-ch.Outbound():
			out = append(out, m)
		default:
			return out
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
