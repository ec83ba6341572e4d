package ws

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-matchmaking-backend/internal/broadcast"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/match"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/matchmaking"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/queue"
	"github.com/DoyleJ11/lol-matchmaking-backend/pkg/types"
)

func Handler(e *matchmaking.Engine, gw *broadcast.Gateway, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := randID(8)
		out := gw.Subscribe(connID)
		defer gw.Unsubscribe(connID)
		// A dropped socket counts as a leave; it races harmlessly with an
		// explicit leave_queue.
		defer func() {
			if _, lerr := e.LeaveByConnection(connID); lerr != nil {
				log.Warn("leave on disconnect", zap.String("conn", connID), zap.Error(lerr))
			}
		}()

		// Writer goroutine: the single writer for this socket. It merges
		// gateway broadcasts with direct acknowledgements from the reader.
		direct := make(chan types.ServerMessage, 8)
		writerDone := make(chan struct{})
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			defer close(writerDone)
			for {
				var (
					msg types.ServerMessage
					ok  bool
				)
				select {
				case msg, ok = <-out:
				case msg, ok = <-direct:
				case <-writeCtx.Done():
					return
				}
				if !ok {
					return
				}
				write(writeCtx, conn, msg)
			}
		}()

		// Reader loop. Queue clients idle for long stretches, so no read
		// deadline here; a dead peer surfaces as a read error.
		for {
			_, data, rerr := conn.Read(r.Context())
			if rerr != nil {
				switch websocket.CloseStatus(rerr) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm types.ClientMessage
			if uerr := json.Unmarshal(data, &cm); uerr != nil {
				if !send(direct, writerDone, types.ServerMessage{Type: types.MsgError, Error: "bad json"}) {
					return
				}
				continue
			}

			if msg, handled := dispatch(e, connID, cm); handled {
				if !send(direct, writerDone, msg) {
					return
				}
			}
		}
	}
}

// dispatch validates one inbound message and applies it to the engine. The
// returned message, when handled, is the direct acknowledgement for this
// client; broadcasts go through the gateway separately.
func dispatch(e *matchmaking.Engine, connID string, cm types.ClientMessage) (types.ServerMessage, bool) {
	switch cm.Type {
	case types.MsgJoinQueue:
		return handleJoin(e, connID, cm), true

	case types.MsgLeaveQueue:
		if _, err := e.LeaveByConnection(connID); err != nil {
			return errorMsg("leave failed, try again"), true
		}
		// Leaving when not queued is a successful no-op.
		return types.ServerMessage{}, false

	case types.MsgAcceptMatch, types.MsgDeclineMatch:
		if cm.MatchID == "" || cm.PlayerID == "" {
			return errorMsg("matchId and playerId are required"), true
		}
		accept := cm.Type == types.MsgAcceptMatch
		err := e.Respond(cm.MatchID, queue.CanonicalID(cm.PlayerID), accept)
		switch {
		case errors.Is(err, match.ErrMatchNotFound), errors.Is(err, match.ErrNotInMatch):
			return errorMsg(err.Error()), true
		case err != nil:
			return errorMsg("response failed, try again"), true
		}
		// The outcome reaches the client as draft_started or
		// match_cancelled via broadcast.
		return types.ServerMessage{}, false

	default:
		return errorMsg("unknown message type"), true
	}
}

func handleJoin(e *matchmaking.Engine, connID string, cm types.ClientMessage) types.ServerMessage {
	if cm.PlayerID == "" {
		return errorMsg("playerId is required")
	}
	if cm.MMR < 0 {
		return errorMsg("mmr must not be negative")
	}
	primary, ok := queue.ParseLane(cm.PrimaryLane)
	if !ok {
		return errorMsg("unknown primary lane")
	}
	secondary, ok := queue.ParseLane(cm.SecondaryLane)
	if !ok {
		return errorMsg("unknown secondary lane")
	}

	id := queue.CanonicalID(cm.PlayerID)
	pos, err := e.Join(queue.Player{
		ID:            id,
		MMR:           cm.MMR,
		Region:        cm.Region,
		PrimaryLane:   primary,
		SecondaryLane: secondary,
		ConnID:        connID,
	})
	switch {
	case errors.Is(err, queue.ErrAlreadyQueued):
		// Rehydrated entries have no connection yet; re-attach this one
		// before rejecting the duplicate.
		e.Identify(id, connID)
		return errorMsg("already in queue")
	case errors.Is(err, matchmaking.ErrNotEligible):
		return errorMsg("join requires presence in the lobby channel")
	case err != nil:
		return errorMsg("join failed, try again")
	}

	return types.ServerMessage{
		Type:          types.MsgQueueJoined,
		Position:      pos,
		EstimatedWait: e.EstimatedWait(),
	}
}

// send queues a direct message for the writer; false means the writer is
// gone and the connection is beyond saving.
func send(direct chan<- types.ServerMessage, writerDone <-chan struct{}, msg types.ServerMessage) bool {
	select {
	case direct <- msg:
		return true
	case <-writerDone:
		return false
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}

func errorMsg(text string) types.ServerMessage {
	return types.ServerMessage{Type: types.MsgError, Error: text}
}

func randID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
