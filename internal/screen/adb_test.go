package screen

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRunner captures adb argv instead of executing anything.
type recordingRunner struct {
	calls  [][]string
	output []byte
	err    error
}

func (r *recordingRunner) run(_ context.Context, args ...string) ([]byte, error) {
	r.calls = append(r.calls, args)
	return r.output, r.err
}

func newTestADB(rec *recordingRunner, serial string) *ADB {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	a := NewADB(serial, DefaultGeometry(), logrus.NewEntry(l))
	a.run = rec.run
	return a
}

func TestADBCaptureArgs(t *testing.T) {
	rec := &recordingRunner{output: []byte("png-bytes")}
	a := newTestADB(rec, "")

	out, err := a.Capture(context.Background(), DefaultGeometry().Field)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), out)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, []string{"exec-out", "screencap", "-p"}, rec.calls[0])
}

func TestADBSerialPrefix(t *testing.T) {
	rec := &recordingRunner{}
	a := newTestADB(rec, "emulator-5554")

	require.NoError(t, a.Click(100, 200))
	require.Len(t, rec.calls, 1)
	assert.Equal(t,
		[]string{"-s", "emulator-5554", "shell", "input", "tap", "100", "200"},
		rec.calls[0])
}

func TestADBDragArgs(t *testing.T) {
	rec := &recordingRunner{}
	a := newTestADB(rec, "")

	require.NoError(t, a.Drag(1, 2, 3, 4, 250*time.Millisecond))
	require.Len(t, rec.calls, 1)
	assert.Equal(t,
		[]string{"shell", "input", "swipe", "1", "2", "3", "4", "250"},
		rec.calls[0])
}

func TestADBDragDefaultDuration(t *testing.T) {
	rec := &recordingRunner{}
	a := newTestADB(rec, "")

	require.NoError(t, a.Drag(1, 2, 3, 4, 0))
	assert.Equal(t, "150", rec.calls[0][len(rec.calls[0])-1])
}

func TestADBKeyPress(t *testing.T) {
	rec := &recordingRunner{}
	a := newTestADB(rec, "")

	require.NoError(t, a.KeyPress("2"))
	require.Len(t, rec.calls, 1)
	assert.Equal(t, []string{"shell", "input", "keyevent", "9"}, rec.calls[0])

	// Unknown keys are ignored, not errors.
	require.NoError(t, a.KeyPress("bogus"))
	assert.Len(t, rec.calls, 1)
}

func TestADBCaptureCardsReturnsFourSlots(t *testing.T) {
	rec := &recordingRunner{output: []byte("frame")}
	a := newTestADB(rec, "")

	shots, err := a.CaptureCards(context.Background())
	require.NoError(t, err)
	assert.Len(t, shots, 4)
}

func TestNopActuatorDefaults(t *testing.T) {
	var a Actuator = Nop{}

	_, ok := a.Locate(context.Background(), TemplateBattleButton)
	assert.False(t, ok)

	n, err := a.CountElixir(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.NoError(t, a.Click(0, 0))
	assert.NoError(t, a.KeyPress("1"))
}

func TestRectCenter(t *testing.T) {
	x, y := (Rect{X: 10, Y: 20, W: 100, H: 50}).Center()
	assert.Equal(t, 60, x)
	assert.Equal(t, 45, y)
}
