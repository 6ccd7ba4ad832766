package env

import "github.com/Authize/Clash-Royale-AI/internal/screen"

// Action is one discrete placement choice: a hand slot plus a fractional
// field position. Card refers to a slot, not a card identity: what is in
// the slot is read from the hand detection at execution time. The no-op
// sentinel carries Card == NoopCard.
type Action struct {
	Card  int     // hand slot 0..3, or NoopCard
	XFrac float64 // in [0,1], left edge of field = 0
	YFrac float64 // in [0,1], top edge of field = 0
}

// NoopCard marks the do-nothing action.
const NoopCard = -1

// IsNoop reports whether this is the no-op sentinel.
func (a Action) IsNoop() bool { return a.Card == NoopCard }

// ActionSpace enumerates every (card slot, grid cell) placement plus one
// trailing no-op. Enumeration order is card-major, then x, then y, and is
// never reordered: a value learned for index i must mean the same placement
// across process restarts.
type ActionSpace struct {
	numCards int
	gridW    int
	gridH    int
	actions  []Action
}

// NewActionSpace enumerates the action set for the given grid resolution.
func NewActionSpace(numCards, gridW, gridH int) *ActionSpace {
	as := &ActionSpace{numCards: numCards, gridW: gridW, gridH: gridH}
	as.actions = make([]Action, 0, numCards*gridW*gridH+1)
	for card := 0; card < numCards; card++ {
		for x := 0; x < gridW; x++ {
			for y := 0; y < gridH; y++ {
				as.actions = append(as.actions, Action{
					Card:  card,
					XFrac: float64(x) / float64(gridW-1),
					YFrac: float64(y) / float64(gridH-1),
				})
			}
		}
	}
	as.actions = append(as.actions, Action{Card: NoopCard})
	return as
}

// Size returns the total number of actions including the no-op.
func (as *ActionSpace) Size() int { return len(as.actions) }

// NoopIndex returns the index of the no-op action (always the last one).
func (as *ActionSpace) NoopIndex() int { return len(as.actions) - 1 }

// Decode maps an index back to its action. Out-of-range indices decode to
// the no-op: an invalid choice must degrade to doing nothing, never panic.
func (as *ActionSpace) Decode(index int) Action {
	if index < 0 || index >= len(as.actions) {
		return Action{Card: NoopCard}
	}
	return as.actions[index]
}

// Enumerate returns the full ordered action list. The returned slice is
// shared; callers must not mutate it.
func (as *ActionSpace) Enumerate() []Action { return as.actions }

// ScreenCoords maps an action's fractional position to absolute screen
// pixels inside the field rect.
func (as *ActionSpace) ScreenCoords(a Action, field screen.Rect) (int, int) {
	x := field.X + int(a.XFrac*float64(field.W))
	y := field.Y + int(a.YFrac*float64(field.H))
	return x, y
}
