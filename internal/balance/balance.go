// Package balance turns ten queued players into two five-player teams, each
// covering the five lanes exactly once. Stated lane preferences win over
// forced ("autofill") assignment, and higher-MMR players get first claim on
// their preferred lane.
package balance

import (
	"math"
	"sort"

	"github.com/DoyleJ11/lol-matchmaking-backend/internal/queue"
)

const (
	TeamSize  = 5
	MatchSize = 2 * TeamSize
)

type berr string

func (e berr) Error() string { return string(e) }

var (
	ErrWrongCount      = berr("balancer needs exactly ten players")
	ErrDuplicatePlayer = berr("duplicate player in candidate set")
	ErrLaneCapacity    = berr("lane capacity invariant violated")
)

// Assignment pairs a player with exactly one lane. Autofill marks the lane
// as forced rather than preferred.
type Assignment struct {
	Player   queue.Player
	Lane     queue.Lane
	Autofill bool
}

// Team is five assignments, one per lane, in canonical lane order.
type Team struct {
	Assignments []Assignment
	AverageMMR  float64
}

type Result struct {
	TeamA Team
	TeamB Team
}

// Gap is the absolute average-MMR difference between the two teams. It is
// reported for observability only; a wide gap never blocks match creation.
func (r *Result) Gap() float64 {
	return math.Abs(r.TeamA.AverageMMR - r.TeamB.AverageMMR)
}

// Players returns the identifiers on both teams.
func (r *Result) Players() []string {
	ids := make([]string, 0, MatchSize)
	for _, a := range r.TeamA.Assignments {
		ids = append(ids, a.Player.ID)
	}
	for _, a := range r.TeamB.Assignments {
		ids = append(ids, a.Player.ID)
	}
	return ids
}

// Teams assigns lanes and splits the candidates into two balanced teams.
// Exactly one single pass; when the lane counters do not come out even the
// caller simply waits for the next tick with a refreshed candidate set.
func Teams(candidates []queue.Player) (*Result, error) {
	if len(candidates) != MatchSize {
		return nil, ErrWrongCount
	}
	seen := make(map[string]struct{}, MatchSize)
	for _, p := range candidates {
		if _, dup := seen[p.ID]; dup {
			return nil, ErrDuplicatePlayer
		}
		seen[p.ID] = struct{}{}
	}

	sorted := append([]queue.Player(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MMR > sorted[j].MMR })

	counts := make(map[queue.Lane]int, TeamSize)
	assignments := make([]Assignment, 0, MatchSize)
	for _, p := range sorted {
		lane, autofill := pickLane(p, counts)
		counts[lane]++
		assignments = append(assignments, Assignment{Player: p, Lane: lane, Autofill: autofill})
	}

	for _, lane := range queue.CanonicalOrder {
		if counts[lane] != 2 {
			return nil, ErrLaneCapacity
		}
	}

	return split(assignments), nil
}

// pickLane tries primary, then secondary, then the first canonical lane
// with capacity. Each lane holds at most two players across both teams.
// Players queued as fill are eligible anywhere and never count as autofill.
func pickLane(p queue.Player, counts map[queue.Lane]int) (queue.Lane, bool) {
	if p.PrimaryLane != queue.LaneFill && counts[p.PrimaryLane] < 2 {
		return p.PrimaryLane, false
	}
	if p.SecondaryLane != queue.LaneFill && p.SecondaryLane != p.PrimaryLane && counts[p.SecondaryLane] < 2 {
		return p.SecondaryLane, false
	}
	fill := p.PrimaryLane == queue.LaneFill || p.SecondaryLane == queue.LaneFill
	for _, lane := range queue.CanonicalOrder {
		if counts[lane] < 2 {
			return lane, !fill
		}
	}
	// Unreachable with ten players and five lanes of capacity two; the
	// caller's counter check still catches it.
	return queue.CanonicalOrder[0], true
}

// split pairs the two players of each lane: the higher-MMR player of each
// pair goes to team A, the lower to team B. Both teams receive one high- and
// one low-MMR player per lane, which keeps average team MMR naturally close.
func split(assignments []Assignment) *Result {
	byLane := make(map[queue.Lane][]Assignment, TeamSize)
	for _, a := range assignments {
		byLane[a.Lane] = append(byLane[a.Lane], a)
	}

	res := &Result{}
	for _, lane := range queue.CanonicalOrder {
		pair := byLane[lane]
		hi, lo := pair[0], pair[1]
		if lo.Player.MMR > hi.Player.MMR {
			hi, lo = lo, hi
		}
		res.TeamA.Assignments = append(res.TeamA.Assignments, hi)
		res.TeamB.Assignments = append(res.TeamB.Assignments, lo)
	}
	res.TeamA.AverageMMR = averageMMR(res.TeamA.Assignments)
	res.TeamB.AverageMMR = averageMMR(res.TeamB.Assignments)
	return res
}

func averageMMR(assignments []Assignment) float64 {
	sum := 0
	for _, a := range assignments {
		sum += a.Player.MMR
	}
	return float64(sum) / float64(len(assignments))
}
