// Package screen defines the actuator contract: how the bot captures pixels
// and injects input into the game window. The environment and navigator are
// written against the Actuator interface; concrete backends (ADB, a desktop
// emulator window) live behind it.
package screen

import (
	"context"
	"time"
)

// Rect is a screen region in absolute pixels.
type Rect struct {
	X, Y, W, H int
}

// Center returns the midpoint of the rect.
func (r Rect) Center() (int, int) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Geometry describes where the game surfaces live on screen. All coordinates
// are absolute pixels for a pre-configured emulator window.
type Geometry struct {
	Field   Rect // play field (troops are placed inside this rect)
	CardBar Rect // hand area, four card slots left to right

	// Elixir probe: a horizontal run of pixels over the elixir bar.
	ElixirRowY    int
	ElixirStartX  int
	ElixirStepX   int
	ElixirMaxPips int
}

// DefaultGeometry is the windowed-emulator preset the bot was calibrated
// against. Override per setup; none of the core logic depends on these
// specific numbers.
func DefaultGeometry() Geometry {
	return Geometry{
		Field:         Rect{X: 1376, Y: 120, W: 462, H: 649},
		CardBar:       Rect{X: 1450, Y: 847, W: 412, H: 124},
		ElixirRowY:    989,
		ElixirStartX:  1512,
		ElixirStepX:   38,
		ElixirMaxPips: 10,
	}
}

// Template names the actuator may be asked to locate. Locating is purely a
// navigation aid; backends without template matching report not-found.
const (
	TemplateBattleButton = "battle_button"
	TemplateOKButton     = "ok_button"
	TemplateClaimButton  = "claim_button"
	TemplateWinnerBanner = "winner_banner"
	TemplateMatchOver    = "match_over"
	TemplateTrophyRoad   = "trophy_road"
	TemplateElixirBar    = "elixir_bar"
	TemplateCardSlot     = "card_slot"
	TemplateChestSlot    = "chest_slot"
)

// Actuator captures screen regions and performs input. All methods are
// best-effort: a backend that cannot support an operation reports failure
// (or not-found) rather than panicking, and callers degrade gracefully.
type Actuator interface {
	// Capture grabs the given region as an encoded image (PNG).
	Capture(ctx context.Context, region Rect) ([]byte, error)

	// CaptureCards grabs the four card slots as individual images, left to
	// right.
	CaptureCards(ctx context.Context) ([][]byte, error)

	// CountElixir reads the current elixir level (0..10). Backends that
	// cannot read pixels return 0 with a nil error.
	CountElixir(ctx context.Context) (int, error)

	// Locate finds a named template on screen. ok is false when the template
	// is absent or the backend has no template matching.
	Locate(ctx context.Context, template string) (Rect, bool)

	Click(x, y int) error
	Drag(x1, y1, x2, y2 int, duration time.Duration) error
	KeyPress(key string) error
}

// Nop is an Actuator that does nothing. Embed it to implement only the
// operations a backend actually supports; every other hook defaults to a
// well-defined no-op instead of being probed for at runtime.
type Nop struct{}

func (Nop) Capture(context.Context, Rect) ([]byte, error)   { return nil, nil }
func (Nop) CaptureCards(context.Context) ([][]byte, error)  { return nil, nil }
func (Nop) CountElixir(context.Context) (int, error)        { return 0, nil }
func (Nop) Locate(context.Context, string) (Rect, bool)     { return Rect{}, false }
func (Nop) Click(int, int) error                            { return nil }
func (Nop) Drag(int, int, int, int, time.Duration) error    { return nil }
func (Nop) KeyPress(string) error                           { return nil }

var _ Actuator = Nop{}
