// Package matchmaking ties the queue store, balancer, match registry and
// broadcast gateway together behind one engine object, constructed once per
// process.
package matchmaking

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-matchmaking-backend/internal/balance"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/broadcast"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/match"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/queue"
	"github.com/DoyleJ11/lol-matchmaking-backend/pkg/types"
)

var ErrNotEligible = errors.New("player not present in the lobby channel")

// Gate is the external eligibility check consulted before a join is
// accepted. The presence adapter implements it; a nil gate allows everyone.
type Gate interface {
	Allowed(playerID string) bool
}

type Engine struct {
	store *queue.Store
	reg   *match.Registry
	gw    *broadcast.Gateway
	gate  Gate
	log   *zap.Logger
}

func NewEngine(ctx context.Context, store *queue.Store, gw *broadcast.Gateway, gate Gate, acceptTimeout time.Duration, log *zap.Logger) *Engine {
	e := &Engine{
		store: store,
		gw:    gw,
		gate:  gate,
		log:   log,
	}
	e.reg = match.NewRegistry(ctx, acceptTimeout, match.Hooks{
		Requeue:   e.requeue,
		Cancelled: e.matchCancelled,
		HandedOff: e.matchHandedOff,
	}, log)
	return e
}

// Join validates eligibility and puts the player in the queue.
func (e *Engine) Join(p queue.Player) (int, error) {
	if e.gate != nil && !e.gate.Allowed(p.ID) {
		return 0, ErrNotEligible
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	pos, err := e.store.Join(p)
	if err != nil {
		return 0, err
	}
	e.BroadcastQueueUpdate()
	return pos, nil
}

func (e *Engine) Leave(id string) (bool, error) {
	removed, err := e.store.Leave(id)
	if removed {
		e.BroadcastQueueUpdate()
	}
	return removed, err
}

func (e *Engine) LeaveByConnection(connID string) (bool, error) {
	removed, err := e.store.LeaveByConnection(connID)
	if removed {
		e.BroadcastQueueUpdate()
	}
	return removed, err
}

// Respond forwards one accept/decline to the owning match.
func (e *Engine) Respond(matchID, playerID string, accept bool) error {
	return e.reg.Respond(matchID, playerID, accept)
}

// Identify re-attaches a connection handle to a rehydrated queue entry.
func (e *Engine) Identify(playerID, connID string) bool {
	return e.store.Identify(playerID, connID)
}

func (e *Engine) ActiveMatchCount() int { return e.reg.ActiveCount() }

// ArchivedMatches returns retained terminal match records, newest first.
func (e *Engine) ArchivedMatches() []match.Match { return e.reg.Archived() }

// Shutdown stops all in-flight match controllers.
func (e *Engine) Shutdown() { e.reg.Shutdown() }

// Clear empties the queue (ops path).
func (e *Engine) Clear() error {
	if err := e.store.Clear(); err != nil {
		return err
	}
	e.BroadcastQueueUpdate()
	return nil
}

// TryFormMatch is the scheduler's per-tick attempt: reserve the ten
// longest-waiting players, balance them, and start a match. A balancing
// failure restores the candidates and waits for the next tick.
func (e *Engine) TryFormMatch() {
	if e.store.Size() < balance.MatchSize {
		return
	}

	players, err := e.store.ReserveOldest(balance.MatchSize)
	if err != nil {
		if !errors.Is(err, queue.ErrNotEnough) {
			e.log.Error("reserve candidates", zap.Error(err))
		}
		return
	}

	res, err := balance.Teams(players)
	if err != nil {
		// Internal-only: log, put the candidates back, retry next tick.
		e.log.Warn("balancing failed", zap.Error(err))
		if rerr := e.store.Restore(players); rerr != nil {
			e.log.Error("restore candidates", zap.Error(rerr))
		}
		return
	}

	m := e.reg.Create(res, players)
	e.store.AddActivity(queue.ActivityMatchCreated, "match created, average MMR gap "+strconv.Itoa(int(res.Gap())))
	e.log.Info("match created",
		zap.String("match", m.ID),
		zap.Float64("teamA_mmr", res.TeamA.AverageMMR),
		zap.Float64("teamB_mmr", res.TeamB.AverageMMR),
		zap.Float64("gap", res.Gap()))

	e.gw.PublishImmediate(types.ServerMessage{
		Type:       types.MsgMatchCreated,
		MatchID:    m.ID,
		Team1:      teamInfo(m.TeamA),
		Team2:      teamInfo(m.TeamB),
		AverageMMR: (m.TeamA.AverageMMR + m.TeamB.AverageMMR) / 2,
	})
	e.BroadcastQueueUpdate()
}

// QueueStatus builds the queue_update payload.
func (e *Engine) QueueStatus() types.ServerMessage {
	snap := e.store.Snapshot()
	players := make([]types.PlayerInfo, 0, len(snap))
	for _, p := range snap {
		players = append(players, types.PlayerInfo{
			PlayerID:      p.ID,
			MMR:           p.MMR,
			PrimaryLane:   string(p.PrimaryLane),
			SecondaryLane: string(p.SecondaryLane),
			Position:      p.Position,
			JoinTime:      p.JoinedAt,
		})
	}
	acts := e.store.Activities()
	activities := make([]types.ActivityInfo, 0, len(acts))
	for _, a := range acts {
		activities = append(activities, types.ActivityInfo{
			ID:        a.ID,
			Timestamp: a.Timestamp,
			Type:      string(a.Type),
			Message:   a.Message,
		})
	}
	return types.ServerMessage{
		Type:          types.MsgQueueUpdate,
		Players:       players,
		Size:          len(snap),
		Activities:    activities,
		EstimatedWait: estimatedWait(len(snap)),
	}
}

// BroadcastQueueUpdate pushes the current snapshot through the routine
// (rate-limited) broadcast class.
func (e *Engine) BroadcastQueueUpdate() {
	e.gw.PublishRoutine(e.QueueStatus())
}

// EstimatedWait exposes the wait heuristic for the join acknowledgement.
func (e *Engine) EstimatedWait() int {
	return estimatedWait(e.store.Size())
}

// estimatedWait in seconds: grows with a short queue, flat once a match is
// possible.
func estimatedWait(size int) int {
	if size < balance.MatchSize {
		if w := size * 5; w > 30 {
			return w
		}
		return 30
	}
	return 60
}

func (e *Engine) requeue(players []queue.Player) {
	if err := e.store.Restore(players); err != nil {
		e.log.Error("requeue accepted players", zap.Error(err))
	}
	e.BroadcastQueueUpdate()
}

func (e *Engine) matchCancelled(m match.Match, decliners []string) {
	e.gw.PublishImmediate(types.ServerMessage{
		Type:             types.MsgMatchCancelled,
		MatchID:          m.ID,
		Reason:           m.CancelReason,
		DecliningPlayers: decliners,
	})
}

func (e *Engine) matchHandedOff(m match.Match) {
	e.gw.PublishImmediate(types.ServerMessage{
		Type:    types.MsgDraftStarted,
		MatchID: m.ID,
		Team1:   teamInfo(m.TeamA),
		Team2:   teamInfo(m.TeamB),
	})
}

func teamInfo(t balance.Team) *types.TeamInfo {
	info := &types.TeamInfo{AverageMMR: t.AverageMMR}
	for _, a := range t.Assignments {
		info.Players = append(info.Players, types.TeamSlot{
			PlayerID: a.Player.ID,
			Lane:     string(a.Lane),
			MMR:      a.Player.MMR,
			Autofill: a.Autofill,
		})
	}
	return info
}
