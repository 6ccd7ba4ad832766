// Package env turns noisy perception into a Markov decision process: a fixed
// shape state vector, a stable discrete action space, shaped rewards, and a
// reset/step environment over the detector and actuator collaborators.
package env

import (
	"github.com/Authize/Clash-Royale-AI/internal/screen"
	"github.com/Authize/Clash-Royale-AI/internal/vision"
)

const (
	// MaxAllies and MaxEnemies bound how many mobile units per side are
	// tracked in the state vector. Detections beyond the cap are truncated
	// in detector order; missing units pad with zeros.
	MaxAllies  = 10
	MaxEnemies = 10

	// MaxElixir is the elixir cap used for normalization.
	MaxElixir = 10

	// NumCards is the hand size: four fixed slots.
	NumCards = 4

	// StateSize is the fixed encoded state length:
	// [elixir] + 2 coords per tracked unit on each side.
	StateSize = 1 + 2*(MaxAllies+MaxEnemies)
)

// StateVector is the fixed-length numeric encoding of one observed frame.
// Layout: [elixir/10, a1x, a1y, …, a10x, a10y, e1x, e1y, …, e10x, e10y],
// all coordinates normalized to [0,1] over the play field; unused slots are
// zero. The slice is owned by the caller once returned; the environment
// never retains or mutates it.
type StateVector []float64

// Elixir recovers the raw elixir reading from the encoded state.
func (s StateVector) Elixir() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[0] * MaxElixir
}

// EnemyPresence sums the normalized Y coordinates of all encoded enemy
// units. Only Y is summed; including X would bias the signal toward one
// lane. Depth is what matters: an enemy deep in our half dominates the sum.
func (s StateVector) EnemyPresence() float64 {
	total := 0.0
	for i := enemyOffset + 1; i < len(s); i += 2 {
		total += s[i]
	}
	return total
}

// EnemyPositions returns the non-zero enemy unit slots as (x, y) pairs in
// normalized coordinates.
func (s StateVector) EnemyPositions() [][2]float64 {
	var out [][2]float64
	for i := enemyOffset; i+1 < len(s); i += 2 {
		x, y := s[i], s[i+1]
		if x != 0 || y != 0 {
			out = append(out, [2]float64{x, y})
		}
	}
	return out
}

// AllyCount returns how many ally slots are populated.
func (s StateVector) AllyCount() int {
	n := 0
	for i := 1; i+1 < enemyOffset && i+1 < len(s); i += 2 {
		if s[i] != 0 || s[i+1] != 0 {
			n++
		}
	}
	return n
}

// enemyOffset is the index of the first enemy coordinate.
const enemyOffset = 1 + 2*MaxAllies

// EncodeState converts raw detections plus an elixir reading into the fixed
// state layout. It never fails: zero detections produce a zero-padded vector,
// and more than the tracked cap truncates in detector order. Towers are
// excluded; they are counted separately, not treated as mobile units.
func EncodeState(dets []vision.Detection, elixir int, field screen.Rect) StateVector {
	s := make(StateVector, StateSize)
	s[0] = clamp01(float64(elixir) / MaxElixir)

	w, h := float64(field.W), float64(field.H)
	if w <= 0 || h <= 0 {
		return s
	}

	ai, ei := 0, 0
	for _, d := range dets {
		switch {
		case d.IsAllyUnit():
			if ai < MaxAllies {
				s[1+2*ai] = clamp01(d.X / w)
				s[1+2*ai+1] = clamp01(d.Y / h)
				ai++
			}
		case d.IsEnemyUnit():
			if ei < MaxEnemies {
				s[enemyOffset+2*ei] = clamp01(d.X / w)
				s[enemyOffset+2*ei+1] = clamp01(d.Y / h)
				ei++
			}
		}
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
