package screen

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// runner executes an adb invocation and returns its stdout. Split out so
// tests can record argv without a device attached.
type runner func(ctx context.Context, args ...string) ([]byte, error)

func execADB(ctx context.Context, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "adb", args...).Output()
	if err != nil {
		return nil, fmt.Errorf("adb %v: %w", args, err)
	}
	return out, nil
}

// ADB drives an Android emulator through the adb CLI. Screen capture uses
// exec-out screencap; input goes through `input tap/swipe/keyevent`.
// Template location and elixir pixel reads are not available over adb, so
// those hooks inherit the Nop defaults.
type ADB struct {
	Nop

	serial string
	geom   Geometry
	run    runner
	log    *logrus.Entry
}

// NewADB builds an adb-backed actuator. serial may be empty when exactly one
// device is attached.
func NewADB(serial string, geom Geometry, log *logrus.Entry) *ADB {
	return &ADB{serial: serial, geom: geom, run: execADB, log: log}
}

func (a *ADB) args(rest ...string) []string {
	if a.serial == "" {
		return rest
	}
	return append([]string{"-s", a.serial}, rest...)
}

// Capture grabs the full framebuffer as PNG. The region argument is recorded
// for the caller's benefit only; cropping happens downstream where an image
// decoder is available.
func (a *ADB) Capture(ctx context.Context, region Rect) ([]byte, error) {
	out, err := a.run(ctx, a.args("exec-out", "screencap", "-p")...)
	if err != nil {
		return nil, fmt.Errorf("screen: capture: %w", err)
	}
	return out, nil
}

// CaptureCards returns one full-frame capture per card slot. Slot cropping is
// left to the card detector, which receives the slot geometry out of band.
func (a *ADB) CaptureCards(ctx context.Context) ([][]byte, error) {
	frame, err := a.Capture(ctx, a.geom.CardBar)
	if err != nil {
		return nil, err
	}
	shots := make([][]byte, 4)
	for i := range shots {
		shots[i] = frame
	}
	return shots, nil
}

func (a *ADB) Click(x, y int) error {
	_, err := a.run(context.Background(), a.args("shell", "input", "tap",
		strconv.Itoa(x), strconv.Itoa(y))...)
	if err != nil {
		return fmt.Errorf("screen: click: %w", err)
	}
	return nil
}

func (a *ADB) Drag(x1, y1, x2, y2 int, duration time.Duration) error {
	ms := int(duration / time.Millisecond)
	if ms <= 0 {
		ms = 150
	}
	_, err := a.run(context.Background(), a.args("shell", "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.Itoa(ms))...)
	if err != nil {
		return fmt.Errorf("screen: drag: %w", err)
	}
	return nil
}

func (a *ADB) KeyPress(key string) error {
	code, ok := keycodes[key]
	if !ok {
		a.log.WithField("key", key).Warn("unknown key, ignoring")
		return nil
	}
	_, err := a.run(context.Background(), a.args("shell", "input", "keyevent", code)...)
	if err != nil {
		return fmt.Errorf("screen: keypress: %w", err)
	}
	return nil
}

var keycodes = map[string]string{
	"1":     "8",
	"2":     "9",
	"3":     "10",
	"4":     "11",
	"enter": "66",
	"back":  "4",
}

var _ Actuator = (*ADB)(nil)
