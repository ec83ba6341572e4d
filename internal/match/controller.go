// Package match runs the lifecycle of a proposed match: collect one
// accept/decline per player under a hard timeout, then either hand the teams
// off to the draft or recycle the accepting players back into the queue.
package match

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-matchmaking-backend/internal/balance"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/queue"
)

type State string

const (
	StateForming            State = "forming"
	StateAwaitingAcceptance State = "awaiting_acceptance"
	StateAccepted           State = "accepted"
	StateDeclined           State = "declined"
	StateTimedOut           State = "timed_out"
	StateHandedOff          State = "handed_off"
	StateCancelled          State = "cancelled"
)

type merr string

func (e merr) Error() string { return string(e) }

var (
	ErrMatchNotFound = merr("match not found")
	ErrNotInMatch    = merr("player not part of this match")
)

// Match is the record a controller mutates. Once it reaches HandedOff or
// Cancelled it is never touched again.
type Match struct {
	ID           string
	TeamA        balance.Team
	TeamB        balance.Team
	CreatedAt    time.Time
	State        State
	Responses    map[string]bool // player id -> accepted
	CancelReason string
}

func (m Match) view() Match {
	cp := m
	cp.Responses = make(map[string]bool, len(m.Responses))
	for k, v := range m.Responses {
		cp.Responses[k] = v
	}
	return cp
}

// Hooks are the controller's only way to reach the rest of the system.
type Hooks struct {
	Requeue   func(players []queue.Player)
	Cancelled func(m Match, decliners []string)
	HandedOff func(m Match)
	Done      func(m Match)
}

type Msg interface{ isCtrlMsg() }

// Respond records one player's accept or decline.
type Respond struct {
	PlayerID string
	Accept   bool
	Reply    chan error
}

func (Respond) isCtrlMsg() {}

type timedOut struct{}

func (timedOut) isCtrlMsg() {}

type GetView struct{ Reply chan Match }

func (GetView) isCtrlMsg() {}

type Shutdown struct{}

func (Shutdown) isCtrlMsg() {}

// Controller serializes all response recording for one match: applying a
// response and evaluating "are all ten resolved" never races with another
// response.
type Controller struct {
	inbox   chan Msg
	m       Match
	players map[string]queue.Player // original queued entries, join time preserved
	timer   *time.Timer
	hooks   Hooks
	ctx     context.Context
	cancel  context.CancelFunc
	log     *zap.Logger
}

func newController(parent context.Context, id string, res *balance.Result, reserved []queue.Player, timeout time.Duration, hooks Hooks, log *zap.Logger) *Controller {
	ctx, cancel := context.WithCancel(parent)

	players := make(map[string]queue.Player, len(reserved))
	for _, p := range reserved {
		players[p.ID] = p
	}

	c := &Controller{
		inbox: make(chan Msg, 32),
		m: Match{
			ID:        id,
			TeamA:     res.TeamA,
			TeamB:     res.TeamB,
			CreatedAt: time.Now(),
			State:     StateForming,
			Responses: make(map[string]bool, len(reserved)),
		},
		players: players,
		hooks:   hooks,
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
	}

	// The ten players are already reserved out of the queue; the match goes
	// straight to collecting responses.
	c.m.State = StateAwaitingAcceptance
	c.timer = time.AfterFunc(timeout, func() {
		select {
		case c.inbox <- timedOut{}:
		case <-c.ctx.Done():
		}
	})

	go c.loop()
	return c
}

func (c *Controller) Inbox() chan<- Msg { return c.inbox }

// done is closed once the controller's loop has exited.
func (c *Controller) done() <-chan struct{} { return c.ctx.Done() }

func (c *Controller) loop() {
	defer c.cancel()
	for {
		select {
		case <-c.ctx.Done():
			c.timer.Stop()
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Respond:
				if done := c.handleRespond(msg); done {
					return
				}

			case timedOut:
				if c.m.State != StateAwaitingAcceptance {
					break
				}
				var decliners []string
				for id := range c.players {
					if !c.m.Responses[id] {
						decliners = append(decliners, id)
					}
				}
				c.finish(StateTimedOut, "acceptance timed out", decliners)
				return

			case GetView:
				msg.Reply <- c.m.view()

			case Shutdown:
				c.timer.Stop()
				return
			}
		}
	}
}

// handleRespond applies one response. Returns true when the match reached a
// terminal state and the loop should exit.
func (c *Controller) handleRespond(msg Respond) bool {
	if c.m.State != StateAwaitingAcceptance {
		msg.Reply <- ErrMatchNotFound
		return false
	}
	if _, ok := c.players[msg.PlayerID]; !ok {
		msg.Reply <- ErrNotInMatch
		return false
	}
	if _, dup := c.m.Responses[msg.PlayerID]; dup {
		// Repeated response: keep the first answer, not an error.
		msg.Reply <- nil
		return false
	}

	c.m.Responses[msg.PlayerID] = msg.Accept
	msg.Reply <- nil
	c.log.Info("match response",
		zap.String("match", c.m.ID),
		zap.String("player", msg.PlayerID),
		zap.Bool("accept", msg.Accept))

	if !msg.Accept {
		c.finish(StateDeclined, msg.PlayerID+" declined the match", []string{msg.PlayerID})
		return true
	}

	accepted := 0
	for _, ok := range c.m.Responses {
		if ok {
			accepted++
		}
	}
	if accepted == len(c.players) {
		c.handOff()
		return true
	}
	return false
}

// finish runs the Declined/TimedOut -> Cancelled path: accepting players go
// back to the queue with their original join time, everyone in decliners is
// dropped and must explicitly re-join.
func (c *Controller) finish(terminal State, reason string, decliners []string) {
	c.timer.Stop()
	c.m.State = terminal

	dropped := make(map[string]bool, len(decliners))
	for _, id := range decliners {
		dropped[id] = true
	}
	var back []queue.Player
	for id, p := range c.players {
		if c.m.Responses[id] && !dropped[id] {
			back = append(back, p)
		}
	}

	c.m.State = StateCancelled
	c.m.CancelReason = reason
	c.log.Info("match cancelled",
		zap.String("match", c.m.ID),
		zap.String("reason", reason),
		zap.Strings("decliners", decliners),
		zap.Int("requeued", len(back)))

	if len(back) > 0 && c.hooks.Requeue != nil {
		c.hooks.Requeue(back)
	}
	if c.hooks.Cancelled != nil {
		c.hooks.Cancelled(c.m.view(), decliners)
	}
	if c.hooks.Done != nil {
		c.hooks.Done(c.m.view())
	}
}

func (c *Controller) handOff() {
	c.timer.Stop()
	c.m.State = StateAccepted
	c.m.State = StateHandedOff
	c.log.Info("match handed off to draft", zap.String("match", c.m.ID))
	if c.hooks.HandedOff != nil {
		c.hooks.HandedOff(c.m.view())
	}
	if c.hooks.Done != nil {
		c.hooks.Done(c.m.view())
	}
}
