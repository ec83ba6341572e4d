// Package queue holds the ordered set of waiting players. All mutation goes
// through the Store, which writes through to durable persistence before
// committing anything in memory: a crash can lose an in-flight request but
// can never resurrect a player that was already removed.
package queue

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Persistence is the durable mirror of the queue. It is the source of truth
// on startup and a mandatory write-through target on every mutation.
type Persistence interface {
	AddPlayer(p Player) error
	RemovePlayer(id string) error
	ListActivePlayers() ([]Player, error)
	UpdatePosition(id string, position int) error
}

type Store struct {
	mu      sync.Mutex
	players []Player // ordered by join time; Position = index+1
	db      Persistence
	acts    activityLog
	log     *zap.Logger
}

func NewStore(db Persistence, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

// Rehydrate loads the durable queue contents into memory. Connection handles
// are empty until the corresponding clients reconnect and re-identify.
func (s *Store) Rehydrate() error {
	players, err := s.db.ListActivePlayers()
	if err != nil {
		return fmt.Errorf("rehydrate queue: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players = players
	s.sortAndRenumberLocked()
	s.log.Info("queue rehydrated", zap.Int("players", len(players)))
	return nil
}

// Join appends a player and returns their 1-based position.
// Duplicate identifiers are a hard error; the queue is left unchanged.
func (s *Store) Join(p Player) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range s.players {
		if q.ID == p.ID {
			return 0, ErrAlreadyQueued
		}
	}

	p.Position = len(s.players) + 1
	if err := s.db.AddPlayer(p); err != nil {
		return 0, fmt.Errorf("persist join: %w", err)
	}
	s.players = append(s.players, p)
	s.acts.add(ActivityPlayerJoined, p.ID+" joined the queue as "+p.PrimaryLane.Display(), p.ID, p.PrimaryLane)
	s.log.Info("player joined queue",
		zap.String("player", p.ID),
		zap.Int("mmr", p.MMR),
		zap.Int("position", p.Position))
	return p.Position, nil
}

// Leave removes a player by identifier. Removing a non-member is not an
// error; disconnect-triggered leaves race harmlessly with explicit ones.
func (s *Store) Leave(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(func(p Player) bool { return p.ID == id })
}

// LeaveByConnection removes a player by transport connection handle. Used
// when a client disconnects without an explicit leave message.
func (s *Store) LeaveByConnection(connID string) (bool, error) {
	if connID == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(func(p Player) bool { return p.ConnID == connID })
}

func (s *Store) removeLocked(match func(Player) bool) (bool, error) {
	for i, p := range s.players {
		if !match(p) {
			continue
		}
		if err := s.db.RemovePlayer(p.ID); err != nil {
			return false, fmt.Errorf("persist leave: %w", err)
		}
		s.players = append(s.players[:i], s.players[i+1:]...)
		s.renumberLocked()
		s.acts.add(ActivityPlayerLeft, p.ID+" left the queue", p.ID, "")
		s.log.Info("player left queue", zap.String("player", p.ID))
		return true, nil
	}
	return false, nil
}

// Snapshot returns a point-in-time copy of the queue ordered by position.
func (s *Store) Snapshot() []Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Player(nil), s.players...)
}

func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

// ReserveOldest atomically removes and returns the n longest-waiting
// players. No join or leave can interleave with the selection. When the
// persistence write-through fails partway, the already-removed records are
// re-added and the in-memory queue is left untouched.
func (s *Store) ReserveOldest(n int) ([]Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.players) < n {
		return nil, ErrNotEnough
	}

	reserved := append([]Player(nil), s.players[:n]...)
	for i, p := range reserved {
		if err := s.db.RemovePlayer(p.ID); err != nil {
			for _, back := range reserved[:i] {
				if aerr := s.db.AddPlayer(back); aerr != nil {
					s.log.Error("re-add after failed reserve", zap.String("player", back.ID), zap.Error(aerr))
				}
			}
			return nil, fmt.Errorf("persist reserve: %w", err)
		}
	}

	s.players = append([]Player(nil), s.players[n:]...)
	s.renumberLocked()
	return reserved, nil
}

// Restore re-inserts players that were reserved for a match, preserving
// their original join timestamps so they keep queue seniority.
func (s *Store) Restore(players []Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, p := range players {
		already := false
		for _, q := range s.players {
			if q.ID == p.ID {
				already = true
				break
			}
		}
		if already {
			continue
		}
		if err := s.db.AddPlayer(p); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("persist restore: %w", err)
			}
			s.log.Error("restore player", zap.String("player", p.ID), zap.Error(err))
			continue
		}
		s.players = append(s.players, p)
	}
	s.sortAndRenumberLocked()
	return firstErr
}

// Clear empties the queue entirely.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.players {
		if err := s.db.RemovePlayer(p.ID); err != nil {
			return fmt.Errorf("persist clear: %w", err)
		}
	}
	cleared := len(s.players)
	s.players = nil
	s.acts.add(ActivityQueueCleared, "queue cleared", "", "")
	s.log.Info("queue cleared", zap.Int("players", cleared))
	return nil
}

// Identify attaches a live connection handle to an already-queued player,
// typically after a restart rehydrated the queue without connections.
func (s *Store) Identify(id, connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.players {
		if s.players[i].ID == id {
			s.players[i].ConnID = connID
			return true
		}
	}
	return false
}

// AddActivity records a feed entry for events that originate outside the
// store, such as match creation.
func (s *Store) AddActivity(kind ActivityType, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acts.add(kind, message, "", "")
}

// Activities returns the most recent feed entries, newest first.
func (s *Store) Activities() []Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acts.recent()
}

func (s *Store) sortAndRenumberLocked() {
	sort.SliceStable(s.players, func(i, j int) bool {
		if s.players[i].JoinedAt.Equal(s.players[j].JoinedAt) {
			return s.players[i].ID < s.players[j].ID
		}
		return s.players[i].JoinedAt.Before(s.players[j].JoinedAt)
	})
	s.renumberLocked()
}

// renumberLocked re-derives the dense 1..N ranking. Position updates happen
// after the primary record is already durable; a failed update is logged,
// not rolled back, because the durable order is derivable from join time.
func (s *Store) renumberLocked() {
	for i := range s.players {
		pos := i + 1
		if s.players[i].Position == pos {
			continue
		}
		s.players[i].Position = pos
		if err := s.db.UpdatePosition(s.players[i].ID, pos); err != nil {
			s.log.Warn("update queue position",
				zap.String("player", s.players[i].ID),
				zap.Int("position", pos),
				zap.Error(err))
		}
	}
}
