package agent

import (
	"github.com/Authize/Clash-Royale-AI/internal/env"
)

// Strategy override thresholds. Coordinates are normalized field positions.
const (
	saveElixirFloor = 3.0  // below this, hold unless defense is urgent
	commitElixir    = 6.0  // below this, hold while ahead on board presence
	highElixir      = 8.0  // at or above this, a play should be forced
	deepY           = 0.65 // enemy this deep needs an answer
	shallowY        = 0.3  // enemy this shallow is still the towers' problem
	laneLeftX       = 0.33
	laneRightX      = 0.67
	confidentQ      = 0.7 // Q-value needed to force a high-elixir play
	minObservations = 3   // samples before a learned stat is trusted
	trustedRate     = 0.5 // success rate needed to act on a learned stat
)

// Override runs the heuristic strategy layer ahead of the greedy argmax.
// It is a pure function of the state, the Q-values and the accumulated
// statistics, and returns false whenever no condition is confidently met,
// including on malformed input. The overrides bias the policy; they never
// replace it.
func Override(state env.StateVector, q []float64, noop int, st *Stats) (int, bool) {
	if st == nil || len(state) < env.StateSize || len(q) == 0 || noop < 0 || noop >= len(q) {
		return 0, false
	}
	elixir := state.Elixir()
	enemies := state.EnemyPositions()
	allies := state.AllyCount()

	if shouldSaveElixir(elixir, enemies, allies) {
		return noop, true
	}
	if a, ok := bestTrusted(st.phases[battlePhase(elixir)], len(q)); ok {
		return a, true
	}
	if elixir >= highElixir {
		if a, ok := forcedPlay(q, noop); ok {
			return a, true
		}
	}
	if len(enemies) > 0 {
		if a, ok := counterAction(st, enemyProfiles(enemies), len(q)); ok {
			return a, true
		}
	}
	if allies > 0 {
		if a, ok := firstValid(st.positioning[positioningKey(allies)], len(q)); ok {
			return a, true
		}
	}
	if a, ok := bestTrusted(st.timing[int(elixir)], len(q)); ok {
		return a, true
	}
	return 0, false
}

// shouldSaveElixir decides whether holding is better than any play.
func shouldSaveElixir(elixir float64, enemies [][2]float64, allies int) bool {
	if elixir < saveElixirFloor && !urgentDefense(enemies) {
		return true
	}
	// Every enemy still shallow in their own half: let the towers work.
	if len(enemies) > 0 && allShallow(enemies) {
		return true
	}
	// Ahead on board presence with a modest bank: wait for a better spot.
	if allies > len(enemies) && elixir < commitElixir {
		return true
	}
	return false
}

func urgentDefense(enemies [][2]float64) bool {
	for _, p := range enemies {
		if p[1] > deepY {
			return true
		}
	}
	return false
}

func allShallow(enemies [][2]float64) bool {
	for _, p := range enemies {
		if p[1] >= shallowY {
			return false
		}
	}
	return true
}

// bestTrusted returns the action with the highest success rate among stats
// seen often enough to trust, if any clears the rate bar.
func bestTrusted(stats map[int]*actionStat, numActions int) (int, bool) {
	best, bestRate := -1, trustedRate
	for action, s := range stats {
		if action >= numActions || s.Uses < minObservations {
			continue
		}
		if r := s.successRate(); r > bestRate {
			best, bestRate = action, r
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// forcedPlay picks the most confident non-noop action when elixir is about
// to overflow. Without a confident option it declines, leaving the choice
// to the value function.
func forcedPlay(q []float64, noop int) (int, bool) {
	best, bestQ := -1, confidentQ
	for a, v := range q {
		if a == noop {
			continue
		}
		if v > bestQ {
			best, bestQ = a, v
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

func counterAction(st *Stats, profiles []string, numActions int) (int, bool) {
	for _, profile := range profiles {
		if a, ok := firstValid(st.counters[profile], numActions); ok {
			return a, true
		}
	}
	return 0, false
}

func firstValid(actions []int, numActions int) (int, bool) {
	for _, a := range actions {
		if a >= 0 && a < numActions {
			return a, true
		}
	}
	return 0, false
}

// battlePhase buckets the elixir economy into rough match phases.
func battlePhase(elixir float64) string {
	switch {
	case elixir < 4:
		return "early"
	case elixir < 7:
		return "mid"
	default:
		return "late"
	}
}

// enemyProfiles classifies the visible enemy force into coarse profiles
// used as counter-strategy keys.
func enemyProfiles(enemies [][2]float64) []string {
	if len(enemies) == 0 {
		return nil
	}
	var profiles []string
	if len(enemies) > 3 {
		profiles = append(profiles, "swarm")
	}
	left, right, deep := false, false, false
	for _, p := range enemies {
		if p[0] < laneLeftX {
			left = true
		}
		if p[0] > laneRightX {
			right = true
		}
		if p[1] > deepY {
			deep = true
		}
	}
	if deep {
		profiles = append(profiles, "push")
	}
	if left {
		profiles = append(profiles, "left_lane")
	}
	if right {
		profiles = append(profiles, "right_lane")
	}
	return profiles
}

// positioningKey buckets how spread the ally force is.
func positioningKey(allies int) string {
	switch {
	case allies == 0:
		return "empty"
	case allies == 1:
		return "single"
	case allies > 2:
		return "crowded"
	default:
		return "balanced"
	}
}
