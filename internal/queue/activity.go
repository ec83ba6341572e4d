package queue

import (
	"time"

	"github.com/google/uuid"
)

// maxActivities bounds the in-memory event feed. Oldest entries fall off.
const maxActivities = 20

type ActivityType string

const (
	ActivityPlayerJoined ActivityType = "player_joined"
	ActivityPlayerLeft   ActivityType = "player_left"
	ActivityMatchCreated ActivityType = "match_created"
	ActivityQueueCleared ActivityType = "queue_cleared"
)

// Activity is one entry in the queue's observability feed. It is not
// authoritative state; it only exists so clients can show "what happened".
type Activity struct {
	ID         string       `json:"id"`
	Timestamp  time.Time    `json:"timestamp"`
	Type       ActivityType `json:"type"`
	Message    string       `json:"message"`
	PlayerName string       `json:"playerName,omitempty"`
	Lane       Lane         `json:"lane,omitempty"`
}

// activityLog keeps the most recent entries, newest first.
// Callers hold the store mutex.
type activityLog struct {
	entries []Activity
}

func (a *activityLog) add(kind ActivityType, message, playerName string, lane Lane) {
	entry := Activity{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Type:       kind,
		Message:    message,
		PlayerName: playerName,
		Lane:       lane,
	}
	a.entries = append([]Activity{entry}, a.entries...)
	if len(a.entries) > maxActivities {
		a.entries = a.entries[:maxActivities]
	}
}

func (a *activityLog) recent() []Activity {
	return append([]Activity(nil), a.entries...)
}
