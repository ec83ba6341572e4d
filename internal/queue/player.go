package queue

import (
	"strings"
	"time"
)

// Player is one waiting entry in the queue.
type Player struct {
	ID            string // canonical "name#tag" identifier
	MMR           int
	Region        string
	PrimaryLane   Lane
	SecondaryLane Lane
	JoinedAt      time.Time
	Position      int    // dense 1-based rank by join time
	ConnID        string // transport connection handle; empty until the client identifies
}

// CanonicalID derives the single identifier form used everywhere past the
// boundary. Clients send names in mixed casings and with stray whitespace;
// normalization happens once at ingress.
func CanonicalID(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
