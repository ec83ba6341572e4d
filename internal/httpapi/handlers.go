package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-matchmaking-backend/internal/matchmaking"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/presence"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// QueueStatus serves the same payload the routine broadcast carries, for
// clients that poll instead of holding a socket.
func QueueStatus(e *matchmaking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(e.QueueStatus())
	}
}

// ClearQueue empties the queue. Ops path, not exposed to game clients.
func ClearQueue(e *matchmaking.Engine, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := e.Clear(); err != nil {
			log.Error("clear queue", zap.Error(err))
			http.Error(w, "clear failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// LinkIdentity ties a discord user to a game identity for the presence
// gate. The chat platform calls this when a player runs its link flow.
func LinkIdentity(gate *presence.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PlayerID      string `json:"playerId"`
			DiscordUserID string `json:"discordUserId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" || req.DiscordUserID == "" {
			http.Error(w, "playerId and discordUserId are required", http.StatusBadRequest)
			return
		}
		gate.Link(req.PlayerID, req.DiscordUserID)
		w.WriteHeader(http.StatusNoContent)
	}
}
