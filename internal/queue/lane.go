package queue

import "strings"

// Lane is one of the five role slots each team fills exactly once.
type Lane string

const (
	LaneTop     Lane = "top"
	LaneJungle  Lane = "jungle"
	LaneMid     Lane = "mid"
	LaneBottom  Lane = "bottom"
	LaneSupport Lane = "support"

	// LaneFill means no stated preference: eligible for any lane.
	LaneFill Lane = "fill"
)

// CanonicalOrder is the fixed lane order used for autofill fallback and for
// laying out teams.
var CanonicalOrder = []Lane{LaneTop, LaneJungle, LaneMid, LaneBottom, LaneSupport}

// ParseLane normalizes a client-supplied lane string. Common aliases from
// older clients ("adc", "bot", "any") are accepted.
func ParseLane(s string) (Lane, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "top":
		return LaneTop, true
	case "jungle", "jg":
		return LaneJungle, true
	case "mid", "middle":
		return LaneMid, true
	case "bottom", "bot", "adc":
		return LaneBottom, true
	case "support", "sup":
		return LaneSupport, true
	case "fill", "any", "":
		return LaneFill, true
	default:
		return "", false
	}
}

func (l Lane) Display() string {
	switch l {
	case LaneTop:
		return "Top"
	case LaneJungle:
		return "Jungle"
	case LaneMid:
		return "Mid"
	case LaneBottom:
		return "Bottom"
	case LaneSupport:
		return "Support"
	case LaneFill:
		return "Fill"
	}
	return string(l)
}
