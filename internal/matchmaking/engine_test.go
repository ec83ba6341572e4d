package matchmaking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-matchmaking-backend/internal/broadcast"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/match"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/queue"
	"github.com/DoyleJ11/lol-matchmaking-backend/pkg/types"
)

type memDB struct {
	mu   sync.Mutex
	rows map[string]queue.Player
}

func newMemDB() *memDB { return &memDB{rows: make(map[string]queue.Player)} }

func (m *memDB) AddPlayer(p queue.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.ID] = p
	return nil
}

func (m *memDB) RemovePlayer(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memDB) ListActivePlayers() ([]queue.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]queue.Player, 0, len(m.rows))
	for _, p := range m.rows {
		out = append(out, p)
	}
	return out, nil
}

func (m *memDB) UpdatePosition(id string, position int) error { return nil }

type denyGate struct{ allowed map[string]bool }

func (g denyGate) Allowed(id string) bool { return g.allowed[id] }

type env struct {
	engine *Engine
	store  *queue.Store
	gw     *broadcast.Gateway
	out    <-chan types.ServerMessage
}

func newEnv(t *testing.T, gate Gate, timeout time.Duration) *env {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := zap.NewNop()
	store := queue.NewStore(newMemDB(), log)
	gw := broadcast.NewGateway(0, log)
	e := NewEngine(ctx, store, gw, gate, timeout, log)
	return &env{engine: e, store: store, gw: gw, out: gw.Subscribe("test")}
}

func queuedPlayer(i int, lanes [2]queue.Lane) queue.Player {
	return queue.Player{
		ID:            "p" + string(rune('a'+i)) + "#na",
		MMR:           2400 - i*50,
		PrimaryLane:   lanes[0],
		SecondaryLane: lanes[1],
		JoinedAt:      time.Unix(1_700_000_000+int64(i), 0),
	}
}

// fillQueue joins n players with rotating lane preferences so any ten of
// them always balance.
func fillQueue(t *testing.T, e *Engine, n int) []queue.Player {
	t.Helper()
	order := queue.CanonicalOrder
	players := make([]queue.Player, 0, n)
	for i := 0; i < n; i++ {
		p := queuedPlayer(i, [2]queue.Lane{order[i%5], order[(i+1)%5]})
		pos, err := e.Join(p)
		require.NoError(t, err)
		require.Equal(t, i+1, pos)
		players = append(players, p)
	}
	return players
}

// nextMatchCreated drains broadcasts until the match announcement arrives.
func nextMatchCreated(t *testing.T, out <-chan types.ServerMessage) types.ServerMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-out:
			if msg.Type == types.MsgMatchCreated {
				return msg
			}
		case <-deadline:
			t.Fatalf("no match_created broadcast")
		}
	}
}

func TestJoinAcknowledgesPosition(t *testing.T) {
	env := newEnv(t, nil, time.Second)
	pos, err := env.engine.Join(queuedPlayer(0, [2]queue.Lane{queue.LaneMid, queue.LaneTop}))
	require.NoError(t, err)
	require.Equal(t, 1, pos)
	require.Equal(t, 1, env.store.Size())
}

func TestJoinRejectedByGate(t *testing.T) {
	env := newEnv(t, denyGate{allowed: map[string]bool{}}, time.Second)
	_, err := env.engine.Join(queuedPlayer(0, [2]queue.Lane{queue.LaneMid, queue.LaneTop}))
	require.ErrorIs(t, err, ErrNotEligible)
	require.Zero(t, env.store.Size())
}

func TestDuplicateJoinIsHardError(t *testing.T) {
	env := newEnv(t, nil, time.Second)
	p := queuedPlayer(0, [2]queue.Lane{queue.LaneMid, queue.LaneTop})
	_, err := env.engine.Join(p)
	require.NoError(t, err)
	_, err = env.engine.Join(p)
	require.ErrorIs(t, err, queue.ErrAlreadyQueued)
	require.Equal(t, 1, env.store.Size())
}

func TestTickBelowTenDoesNothing(t *testing.T) {
	env := newEnv(t, nil, time.Second)
	fillQueue(t, env.engine, 9)
	env.engine.TryFormMatch()
	require.Equal(t, 9, env.store.Size())
	require.Zero(t, env.engine.ActiveMatchCount())
}

func TestTickMatchesTenLongestWaiting(t *testing.T) {
	env := newEnv(t, nil, time.Minute)
	players := fillQueue(t, env.engine, 11)

	env.engine.TryFormMatch()

	require.Equal(t, 1, env.engine.ActiveMatchCount())
	require.Equal(t, 1, env.store.Size())

	// The eleventh joiner was skipped and now fronts the queue.
	snap := env.store.Snapshot()
	require.Equal(t, players[10].ID, snap[0].ID)
	require.Equal(t, 1, snap[0].Position)

	msg := nextMatchCreated(t, env.out)
	require.NotEmpty(t, msg.MatchID)
	require.Len(t, msg.Team1.Players, 5)
	require.Len(t, msg.Team2.Players, 5)

	matched := make(map[string]bool)
	for _, s := range msg.Team1.Players {
		matched[s.PlayerID] = true
	}
	for _, s := range msg.Team2.Players {
		matched[s.PlayerID] = true
	}
	for _, p := range players[:10] {
		require.True(t, matched[p.ID], "player %s missing from match", p.ID)
	}
	require.False(t, matched[players[10].ID])
}

func TestDeclineRequeuesAcceptorsInOriginalOrder(t *testing.T) {
	env := newEnv(t, nil, time.Minute)
	players := fillQueue(t, env.engine, 10)
	env.engine.TryFormMatch()

	msg := nextMatchCreated(t, env.out)
	decliner := players[4]
	for _, p := range players {
		if p.ID == decliner.ID {
			continue
		}
		require.NoError(t, env.engine.Respond(msg.MatchID, p.ID, true))
	}
	require.NoError(t, env.engine.Respond(msg.MatchID, decliner.ID, false))

	// Requeue runs on the controller goroutine.
	require.Eventually(t, func() bool {
		return env.store.Size() == 9
	}, 2*time.Second, 10*time.Millisecond)

	snap := env.store.Snapshot()
	want := make([]string, 0, 9)
	for _, p := range players {
		if p.ID != decliner.ID {
			want = append(want, p.ID)
		}
	}
	got := make([]string, 0, len(snap))
	for i, p := range snap {
		require.Equal(t, i+1, p.Position)
		got = append(got, p.ID)
	}
	require.Equal(t, want, got, "acceptors must keep their original seniority")
}

func TestAllAcceptEmptiesMatchFromRegistry(t *testing.T) {
	env := newEnv(t, nil, time.Minute)
	players := fillQueue(t, env.engine, 10)
	env.engine.TryFormMatch()
	msg := nextMatchCreated(t, env.out)

	for _, p := range players {
		require.NoError(t, env.engine.Respond(msg.MatchID, p.ID, true))
	}

	require.Eventually(t, func() bool {
		return env.engine.ActiveMatchCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	archived := env.engine.ArchivedMatches()
	require.Len(t, archived, 1)
	require.Equal(t, match.StateHandedOff, archived[0].State)
	require.Zero(t, env.store.Size())
}

func TestRespondUnknownMatch(t *testing.T) {
	env := newEnv(t, nil, time.Second)
	err := env.engine.Respond("nope", "pa#na", true)
	require.ErrorIs(t, err, match.ErrMatchNotFound)
}

func TestLeaveUnknownPlayerIsNoop(t *testing.T) {
	env := newEnv(t, nil, time.Second)
	removed, err := env.engine.Leave("ghost#na")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestEstimatedWaitHeuristic(t *testing.T) {
	cases := []struct {
		size int
		want int
	}{
		{0, 30}, {3, 30}, {6, 30}, {7, 35}, {9, 45}, {10, 60}, {40, 60},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, estimatedWait(tc.size), "size %d", tc.size)
	}
}

func TestQueueStatusSnapshot(t *testing.T) {
	env := newEnv(t, nil, time.Second)
	fillQueue(t, env.engine, 3)

	st := env.engine.QueueStatus()
	require.Equal(t, types.MsgQueueUpdate, st.Type)
	require.Equal(t, 3, st.Size)
	require.Len(t, st.Players, 3)
	require.Equal(t, 30, st.EstimatedWait)
	require.NotEmpty(t, st.Activities, "joins should be in the activity feed")
}

func TestClearEmptiesQueueAndBroadcasts(t *testing.T) {
	env := newEnv(t, nil, time.Second)
	fillQueue(t, env.engine, 4)
	require.NoError(t, env.engine.Clear())
	require.Zero(t, env.store.Size())
}

var errListBroken = errors.New("list failed")

type brokenListDB struct{ *memDB }

func (b brokenListDB) ListActivePlayers() ([]queue.Player, error) {
	return nil, errListBroken
}

func TestRehydrateSurfacesPersistenceError(t *testing.T) {
	store := queue.NewStore(brokenListDB{memDB: newMemDB()}, zap.NewNop())
	require.ErrorIs(t, store.Rehydrate(), errListBroken)
}
