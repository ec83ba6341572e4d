// Package broadcast fans queue and match state changes out to every
// connected observer. Match lifecycle events go out immediately; routine
// queue snapshots are rate-limited so a burst of joins cannot flood clients.
package broadcast

import (
	"crypto/sha256"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-matchmaking-backend/pkg/types"
)

type Gateway struct {
	mu   sync.Mutex
	subs map[string]chan types.ServerMessage

	cooldown    time.Duration
	lastRoutine time.Time
	lastHash    [sha256.Size]byte
	pending     *types.ServerMessage
	flushTimer  *time.Timer

	log *zap.Logger
}

func NewGateway(cooldown time.Duration, log *zap.Logger) *Gateway {
	return &Gateway{
		subs:     make(map[string]chan types.ServerMessage),
		cooldown: cooldown,
		log:      log,
	}
}

// Subscribe registers an observer outbox. The gateway owns the channel: it
// is closed when the observer unsubscribes or falls too far behind.
func (g *Gateway) Subscribe(id string) <-chan types.ServerMessage {
	out := make(chan types.ServerMessage, 16)
	g.mu.Lock()
	defer g.mu.Unlock()
	if old, ok := g.subs[id]; ok {
		close(old)
	}
	g.subs[id] = out
	return out
}

func (g *Gateway) Unsubscribe(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ch, ok := g.subs[id]; ok {
		close(ch)
		delete(g.subs, id)
	}
}

// PublishImmediate fans a message out with no delay, bypassing throttling.
// Used for joins/leaves and match lifecycle events.
func (g *Gateway) PublishImmediate(msg types.ServerMessage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deliverLocked(msg)
}

// PublishRoutine coalesces messages to at most one per cooldown window; the
// most recent pending update wins. Unchanged payloads are never re-sent.
func (g *Gateway) PublishRoutine(msg types.ServerMessage) {
	g.mu.Lock()
	defer g.mu.Unlock()

	hash, ok := payloadHash(msg)
	if ok && hash == g.lastHash {
		// Current state matches what observers already have; anything still
		// pending from this window is stale.
		g.pending = nil
		return
	}

	now := time.Now()
	if wait := g.cooldown - now.Sub(g.lastRoutine); wait > 0 {
		g.pending = &msg
		if g.flushTimer == nil {
			g.flushTimer = time.AfterFunc(wait, g.flushPending)
		}
		return
	}

	g.lastRoutine = now
	g.lastHash = hash
	g.deliverLocked(msg)
}

func (g *Gateway) flushPending() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.flushTimer = nil
	if g.pending == nil {
		return
	}
	msg := *g.pending
	g.pending = nil

	hash, ok := payloadHash(msg)
	if ok && hash == g.lastHash {
		return
	}
	g.lastRoutine = time.Now()
	g.lastHash = hash
	g.deliverLocked(msg)
}

// deliverLocked never blocks: observers that cannot keep up are dropped.
func (g *Gateway) deliverLocked(msg types.ServerMessage) {
	for id, ch := range g.subs {
		select {
		case ch <- msg:
		default:
			g.log.Warn("dropping slow observer", zap.String("observer", id))
			close(ch)
			delete(g.subs, id)
		}
	}
}

func payloadHash(msg types.ServerMessage) ([sha256.Size]byte, bool) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return [sha256.Size]byte{}, false
	}
	return sha256.Sum256(raw), true
}
