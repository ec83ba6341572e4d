package queue

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDB is an in-memory Persistence with switchable failure injection.
type fakeDB struct {
	rows       map[string]Player
	failAdd    bool
	failRemove bool
}

var errInjected = errors.New("injected persistence failure")

func newFakeDB() *fakeDB { return &fakeDB{rows: make(map[string]Player)} }

func (f *fakeDB) AddPlayer(p Player) error {
	if f.failAdd {
		return errInjected
	}
	// The durable schema has no connection column.
	p.ConnID = ""
	f.rows[p.ID] = p
	return nil
}

func (f *fakeDB) RemovePlayer(id string) error {
	if f.failRemove {
		return errInjected
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeDB) ListActivePlayers() ([]Player, error) {
	out := make([]Player, 0, len(f.rows))
	for _, p := range f.rows {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeDB) UpdatePosition(id string, position int) error {
	p, ok := f.rows[id]
	if !ok {
		return nil
	}
	p.Position = position
	f.rows[id] = p
	return nil
}

func testPlayer(id string, joinOffset int) Player {
	return Player{
		ID:          id,
		MMR:         1500,
		PrimaryLane: LaneMid,
		JoinedAt:    time.Unix(1_700_000_000+int64(joinOffset), 0),
		ConnID:      "conn-" + id,
	}
}

func requireDensePositions(t *testing.T, s *Store) {
	t.Helper()
	snap := s.Snapshot()
	for i, p := range snap {
		require.Equal(t, i+1, p.Position, "player %s at index %d", p.ID, i)
	}
	prev := time.Time{}
	for _, p := range snap {
		require.False(t, p.JoinedAt.Before(prev), "ordering broken at %s", p.ID)
		prev = p.JoinedAt
	}
}

func TestJoinAssignsDensePositions(t *testing.T) {
	s := NewStore(newFakeDB(), zap.NewNop())

	for i, id := range []string{"ahri#1", "zed#2", "lux#3"} {
		pos, err := s.Join(testPlayer(id, i))
		require.NoError(t, err)
		require.Equal(t, i+1, pos)
	}
	require.Equal(t, 3, s.Size())
	requireDensePositions(t, s)
}

func TestJoinDuplicateRejectedUnchanged(t *testing.T) {
	s := NewStore(newFakeDB(), zap.NewNop())

	_, err := s.Join(testPlayer("ahri#1", 0))
	require.NoError(t, err)

	before := s.Snapshot()
	_, err = s.Join(testPlayer("ahri#1", 5))
	require.ErrorIs(t, err, ErrAlreadyQueued)
	require.Equal(t, before, s.Snapshot())
}

func TestLeaveIsIdempotent(t *testing.T) {
	s := NewStore(newFakeDB(), zap.NewNop())
	_, err := s.Join(testPlayer("ahri#1", 0))
	require.NoError(t, err)

	removed, err := s.Leave("ahri#1")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = s.Leave("ahri#1")
	require.NoError(t, err)
	require.False(t, removed)
	require.Equal(t, 0, s.Size())

	removed, err = s.Leave("never-joined#0")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestLeaveRenumbersRemaining(t *testing.T) {
	s := NewStore(newFakeDB(), zap.NewNop())
	ids := []string{"a#1", "b#1", "c#1", "d#1"}
	for i, id := range ids {
		_, err := s.Join(testPlayer(id, i))
		require.NoError(t, err)
	}

	removed, err := s.Leave("b#1")
	require.NoError(t, err)
	require.True(t, removed)

	snap := s.Snapshot()
	require.Equal(t, []string{"a#1", "c#1", "d#1"}, snapshotIDs(snap))
	requireDensePositions(t, s)
}

func TestLeaveByConnection(t *testing.T) {
	s := NewStore(newFakeDB(), zap.NewNop())
	_, err := s.Join(testPlayer("ahri#1", 0))
	require.NoError(t, err)

	removed, err := s.LeaveByConnection("conn-ahri#1")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = s.LeaveByConnection("")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestJoinRollsBackOnPersistenceFailure(t *testing.T) {
	db := newFakeDB()
	s := NewStore(db, zap.NewNop())

	db.failAdd = true
	_, err := s.Join(testPlayer("ahri#1", 0))
	require.ErrorIs(t, err, errInjected)
	require.Equal(t, 0, s.Size())
	require.Empty(t, db.rows)

	db.failAdd = false
	_, err = s.Join(testPlayer("ahri#1", 0))
	require.NoError(t, err)
}

func TestLeaveRollsBackOnPersistenceFailure(t *testing.T) {
	db := newFakeDB()
	s := NewStore(db, zap.NewNop())
	_, err := s.Join(testPlayer("ahri#1", 0))
	require.NoError(t, err)

	db.failRemove = true
	_, err = s.Leave("ahri#1")
	require.ErrorIs(t, err, errInjected)
	require.Equal(t, 1, s.Size())
	require.Len(t, db.rows, 1)
}

func TestReserveOldestTakesLongestWaiting(t *testing.T) {
	s := NewStore(newFakeDB(), zap.NewNop())
	for i := 0; i < 12; i++ {
		_, err := s.Join(testPlayer(string(rune('a'+i))+"#q", i))
		require.NoError(t, err)
	}

	reserved, err := s.ReserveOldest(10)
	require.NoError(t, err)
	require.Len(t, reserved, 10)
	require.Equal(t, "a#q", reserved[0].ID)
	require.Equal(t, "j#q", reserved[9].ID)

	require.Equal(t, 2, s.Size())
	snap := s.Snapshot()
	require.Equal(t, []string{"k#q", "l#q"}, snapshotIDs(snap))
	requireDensePositions(t, s)
}

func TestReserveOldestFailsWhenShort(t *testing.T) {
	s := NewStore(newFakeDB(), zap.NewNop())
	_, err := s.Join(testPlayer("ahri#1", 0))
	require.NoError(t, err)

	_, err = s.ReserveOldest(10)
	require.ErrorIs(t, err, ErrNotEnough)
	require.Equal(t, 1, s.Size())
}

func TestRestorePreservesSeniority(t *testing.T) {
	s := NewStore(newFakeDB(), zap.NewNop())
	for i := 0; i < 10; i++ {
		_, err := s.Join(testPlayer(string(rune('a'+i))+"#q", i))
		require.NoError(t, err)
	}

	reserved, err := s.ReserveOldest(10)
	require.NoError(t, err)

	// A latecomer joins while the ten are reserved.
	_, err = s.Join(testPlayer("late#q", 100))
	require.NoError(t, err)

	// Nine come back (the decliner is dropped); they keep seniority over
	// the latecomer.
	require.NoError(t, s.Restore(reserved[:9]))

	snap := s.Snapshot()
	require.Equal(t, 10, len(snap))
	require.Equal(t, "a#q", snap[0].ID)
	require.Equal(t, "late#q", snap[9].ID)
	requireDensePositions(t, s)
}

func TestRehydrateRoundTrip(t *testing.T) {
	db := newFakeDB()
	s := NewStore(db, zap.NewNop())
	for i := 0; i < 5; i++ {
		_, err := s.Join(testPlayer(string(rune('a'+i))+"#q", i))
		require.NoError(t, err)
	}
	want := snapshotIDs(s.Snapshot())

	restarted := NewStore(db, zap.NewNop())
	require.NoError(t, restarted.Rehydrate())
	require.Equal(t, want, snapshotIDs(restarted.Snapshot()))
	requireDensePositions(t, restarted)
}

func TestClearEmptiesQueue(t *testing.T) {
	db := newFakeDB()
	s := NewStore(db, zap.NewNop())
	for i := 0; i < 3; i++ {
		_, err := s.Join(testPlayer(string(rune('a'+i))+"#q", i))
		require.NoError(t, err)
	}

	require.NoError(t, s.Clear())
	require.Equal(t, 0, s.Size())
	require.Empty(t, db.rows)
}

func TestIdentifyAttachesConnection(t *testing.T) {
	db := newFakeDB()
	s := NewStore(db, zap.NewNop())
	_, err := s.Join(testPlayer("ahri#1", 0))
	require.NoError(t, err)

	restarted := NewStore(db, zap.NewNop())
	require.NoError(t, restarted.Rehydrate())
	require.Empty(t, restarted.Snapshot()[0].ConnID)

	require.True(t, restarted.Identify("ahri#1", "conn-new"))
	require.Equal(t, "conn-new", restarted.Snapshot()[0].ConnID)
	require.False(t, restarted.Identify("ghost#1", "conn-x"))
}

func TestActivityLogBounded(t *testing.T) {
	s := NewStore(newFakeDB(), zap.NewNop())
	for i := 0; i < 30; i++ {
		id := string(rune('a'+i%26)) + "#act" + string(rune('0'+i/26))
		_, err := s.Join(testPlayer(id, i))
		require.NoError(t, err)
	}
	acts := s.Activities()
	require.Len(t, acts, maxActivities)
	// Newest first.
	require.True(t, !acts[0].Timestamp.Before(acts[len(acts)-1].Timestamp))
}

func TestRandomOpsKeepPositionsDense(t *testing.T) {
	s := NewStore(newFakeDB(), zap.NewNop())
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		id := string(rune('a'+rng.Intn(20))) + "#fuzz"
		if rng.Intn(2) == 0 {
			_, err := s.Join(testPlayer(id, i))
			if err != nil {
				require.ErrorIs(t, err, ErrAlreadyQueued)
			}
		} else {
			_, err := s.Leave(id)
			require.NoError(t, err)
		}
		requireDensePositions(t, s)
	}
}

func snapshotIDs(players []Player) []string {
	ids := make([]string, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.ID)
	}
	return ids
}
