// Package types defines the wire vocabulary spoken over the websocket. The
// message kinds form a closed set; anything outside it is rejected at the
// boundary before touching queue state.
package types

import "time"

// Client -> Server message kinds.
const (
	MsgJoinQueue    = "join_queue"
	MsgLeaveQueue   = "leave_queue"
	MsgAcceptMatch  = "accept_match"
	MsgDeclineMatch = "decline_match"
)

// Server -> Client message kinds.
const (
	MsgQueueUpdate    = "queue_update"
	MsgQueueJoined    = "queue_joined"
	MsgMatchCreated   = "match_created"
	MsgMatchCancelled = "match_cancelled"
	MsgDraftStarted   = "draft_started"
	MsgError          = "error"
)

type ClientMessage struct {
	Type          string `json:"type"`
	PlayerID      string `json:"playerId,omitempty"`
	MMR           int    `json:"mmr,omitempty"`
	Region        string `json:"region,omitempty"`
	PrimaryLane   string `json:"primaryLane,omitempty"`
	SecondaryLane string `json:"secondaryLane,omitempty"`
	MatchID       string `json:"matchId,omitempty"`
}

// PlayerInfo is one queued player as shown in queue_update.
type PlayerInfo struct {
	PlayerID      string    `json:"playerId"`
	MMR           int       `json:"mmr"`
	PrimaryLane   string    `json:"primaryLane"`
	SecondaryLane string    `json:"secondaryLane"`
	Position      int       `json:"position"`
	JoinTime      time.Time `json:"joinTime"`
}

// TeamSlot is one lane assignment inside a proposed match.
type TeamSlot struct {
	PlayerID string `json:"playerId"`
	Lane     string `json:"lane"`
	MMR      int    `json:"mmr"`
	Autofill bool   `json:"autofill"`
}

type TeamInfo struct {
	Players    []TeamSlot `json:"players"`
	AverageMMR float64    `json:"averageMMR"`
}

type ActivityInfo struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
}

type ServerMessage struct {
	Type string `json:"type"`

	// queue_update
	Players       []PlayerInfo   `json:"players,omitempty"`
	Size          int            `json:"size,omitempty"`
	Activities    []ActivityInfo `json:"activities,omitempty"`
	EstimatedWait int            `json:"estimatedWait,omitempty"` // seconds

	// queue_joined
	Position int `json:"position,omitempty"`

	// match_created / match_cancelled / draft_started
	MatchID          string    `json:"matchId,omitempty"`
	Team1            *TeamInfo `json:"team1,omitempty"`
	Team2            *TeamInfo `json:"team2,omitempty"`
	AverageMMR       float64   `json:"averageMMR,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	DecliningPlayers []string  `json:"decliningPlayers,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}
