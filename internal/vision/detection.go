// Package vision adapts an external object-detection backend into typed
// detections the environment can consume. The backend is treated as noisy:
// a frame may yield zero predictions, and callers are expected to degrade
// gracefully rather than error.
package vision

import (
	"context"
	"strings"
)

// Detection is one detected object on a captured frame. X and Y are the
// center of the bounding box in pixels relative to the captured region.
// Detections are ephemeral; they live for a single state computation.
type Detection struct {
	Class      string
	Confidence float64
	X, Y       float64
	Width      float64
	Height     float64
}

// Detector produces detections for a captured frame. Implementations must
// return an empty slice (not an error) when the backend simply sees nothing.
type Detector interface {
	Infer(ctx context.Context, image []byte) ([]Detection, error)
}

// Tower class names emitted by the troop-detection model. Towers are tracked
// separately from mobile units and are excluded from the unit encoder.
const (
	ClassAllyKingTower      = "ally king tower"
	ClassAllyPrincessTower  = "ally princess tower"
	ClassEnemyKingTower     = "enemy king tower"
	ClassEnemyPrincessTower = "enemy princess tower"
)

var towerClasses = map[string]struct{}{
	ClassAllyKingTower:      {},
	ClassAllyPrincessTower:  {},
	ClassEnemyKingTower:     {},
	ClassEnemyPrincessTower: {},
}

// NormalizeClass canonicalizes a class name for prefix comparisons.
func NormalizeClass(class string) string {
	return strings.ToLower(strings.TrimSpace(class))
}

// IsTower reports whether the detection is one of the four tower classes.
func (d Detection) IsTower() bool {
	_, ok := towerClasses[NormalizeClass(d.Class)]
	return ok
}

// IsAllyUnit reports whether the detection is an ally mobile unit.
func (d Detection) IsAllyUnit() bool {
	return !d.IsTower() && strings.HasPrefix(NormalizeClass(d.Class), "ally")
}

// IsEnemyUnit reports whether the detection is an enemy mobile unit.
func (d Detection) IsEnemyUnit() bool {
	return !d.IsTower() && strings.HasPrefix(NormalizeClass(d.Class), "enemy")
}

// FilterConfidence returns the detections at or above min, preserving the
// detector's return order. The backend does not pre-filter; this is the
// caller-side threshold required by the detector contract.
func FilterConfidence(dets []Detection, min float64) []Detection {
	out := dets[:0:0]
	for _, d := range dets {
		if d.Confidence >= min {
			out = append(out, d)
		}
	}
	return out
}

// CountClass returns how many detections carry the given (normalized) class.
func CountClass(dets []Detection, class string) int {
	n := 0
	for _, d := range dets {
		if NormalizeClass(d.Class) == class {
			n++
		}
	}
	return n
}
