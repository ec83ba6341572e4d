package match

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-matchmaking-backend/internal/balance"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/queue"
)

// maxArchived bounds the terminal-match history kept for status queries.
const maxArchived = 50

// Registry owns the set of in-flight matches. Two awaiting matches are fully
// independent; the registry only routes responses and keeps a bounded
// archive of terminal records.
type Registry struct {
	mu      sync.Mutex
	active  map[string]*Controller
	archive []Match

	timeout time.Duration
	hooks   Hooks
	ctx     context.Context
	log     *zap.Logger
}

func NewRegistry(ctx context.Context, timeout time.Duration, hooks Hooks, log *zap.Logger) *Registry {
	r := &Registry{
		active:  make(map[string]*Controller),
		timeout: timeout,
		ctx:     ctx,
		log:     log,
	}
	// Wrap Done so terminal matches leave the active set and land in the
	// archive before the caller-provided hook runs.
	r.hooks = Hooks{
		Requeue:   hooks.Requeue,
		Cancelled: hooks.Cancelled,
		HandedOff: hooks.HandedOff,
		Done: func(m Match) {
			r.retire(m)
			if hooks.Done != nil {
				hooks.Done(m)
			}
		},
	}
	return r
}

// Create starts a controller for a freshly balanced match and returns its
// initial record.
func (r *Registry) Create(res *balance.Result, reserved []queue.Player) Match {
	id := uuid.NewString()
	c := newController(r.ctx, id, res, reserved, r.timeout, r.hooks, r.log)

	r.mu.Lock()
	r.active[id] = c
	r.mu.Unlock()

	reply := make(chan Match, 1)
	c.Inbox() <- GetView{Reply: reply}
	return <-reply
}

// Respond routes one player's accept/decline to the owning controller.
// Unknown match ids, including matches that already reached a terminal
// state, come back as ErrMatchNotFound with no side effect.
func (r *Registry) Respond(matchID, playerID string, accept bool) error {
	r.mu.Lock()
	c, ok := r.active[matchID]
	r.mu.Unlock()
	if !ok {
		return ErrMatchNotFound
	}

	// The controller may reach a terminal state between the lookup above and
	// the send below; its closed lifetime channel keeps this from blocking on
	// a loop that already exited.
	reply := make(chan error, 1)
	select {
	case c.Inbox() <- Respond{PlayerID: playerID, Accept: accept, Reply: reply}:
	case <-c.done():
		return ErrMatchNotFound
	case <-r.ctx.Done():
		return ErrMatchNotFound
	}
	select {
	case err := <-reply:
		return err
	case <-c.done():
		// The loop answers before exiting, so a buffered reply wins over
		// the closed lifetime channel.
		select {
		case err := <-reply:
			return err
		default:
		}
		return ErrMatchNotFound
	case <-r.ctx.Done():
		return ErrMatchNotFound
	}
}

// ActiveCount reports how many matches are still collecting responses.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Archived returns the retained terminal records, most recent first.
func (r *Registry) Archived() []Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Match(nil), r.archive...)
}

func (r *Registry) retire(m Match) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, m.ID)
	r.archive = append([]Match{m}, r.archive...)
	if len(r.archive) > maxArchived {
		r.archive = r.archive[:maxArchived]
	}
}

// Shutdown stops every in-flight controller.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.active {
		c.Inbox() <- Shutdown{}
		delete(r.active, id)
	}
}
