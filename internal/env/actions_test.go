package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Authize/Clash-Royale-AI/internal/screen"
)

func TestActionSpaceSizeAndNoDuplicates(t *testing.T) {
	as := NewActionSpace(4, 18, 28)

	require.Equal(t, 4*18*28+1, as.Size())

	seen := make(map[Action]struct{}, as.Size())
	for _, a := range as.Enumerate() {
		_, dup := seen[a]
		require.False(t, dup, "duplicate action %+v", a)
		seen[a] = struct{}{}
	}
}

func TestActionSpaceDecodeRoundTrip(t *testing.T) {
	as := NewActionSpace(4, 6, 8)

	for i, want := range as.Enumerate() {
		assert.Equal(t, want, as.Decode(i), "index %d", i)
	}
}

func TestActionSpaceEnumerationOrderIsCardMajor(t *testing.T) {
	as := NewActionSpace(2, 3, 2)

	// card 0 occupies indices [0, 6), card 1 occupies [6, 12).
	assert.Equal(t, 0, as.Decode(0).Card)
	assert.Equal(t, 0, as.Decode(5).Card)
	assert.Equal(t, 1, as.Decode(6).Card)

	// Within a card block, x advances before wrapping; y is innermost.
	a0 := as.Decode(0)
	a1 := as.Decode(1)
	assert.Equal(t, a0.XFrac, a1.XFrac)
	assert.Less(t, a0.YFrac, a1.YFrac)
}

func TestActionSpaceLastIndexIsNoop(t *testing.T) {
	as := NewActionSpace(4, 18, 28)

	noop := as.Decode(4 * 18 * 28)
	assert.Equal(t, Action{Card: NoopCard, XFrac: 0, YFrac: 0}, noop)
	assert.True(t, noop.IsNoop())
	assert.Equal(t, 4*18*28, as.NoopIndex())
}

func TestActionSpaceDecodeOutOfRangeIsNoop(t *testing.T) {
	as := NewActionSpace(4, 18, 28)

	assert.True(t, as.Decode(-1).IsNoop())
	assert.True(t, as.Decode(as.Size()).IsNoop())
	assert.True(t, as.Decode(as.Size()+1000).IsNoop())
}

func TestActionSpaceFractionsSpanUnitInterval(t *testing.T) {
	as := NewActionSpace(1, 5, 5)

	first := as.Decode(0)
	assert.Equal(t, 0.0, first.XFrac)
	assert.Equal(t, 0.0, first.YFrac)

	last := as.Decode(5*5 - 1)
	assert.Equal(t, 1.0, last.XFrac)
	assert.Equal(t, 1.0, last.YFrac)
}

func TestScreenCoords(t *testing.T) {
	as := NewActionSpace(4, 18, 28)
	field := screen.Rect{X: 1376, Y: 120, W: 462, H: 649}

	x, y := as.ScreenCoords(Action{Card: 0, XFrac: 0, YFrac: 0}, field)
	assert.Equal(t, 1376, x)
	assert.Equal(t, 120, y)

	x, y = as.ScreenCoords(Action{Card: 0, XFrac: 1, YFrac: 1}, field)
	assert.Equal(t, 1376+462, x)
	assert.Equal(t, 120+649, y)

	x, y = as.ScreenCoords(Action{Card: 0, XFrac: 0.5, YFrac: 0.5}, field)
	assert.Equal(t, 1376+231, x)
	assert.Equal(t, 120+324, y)
}

func TestActionSpaceStableAcrossConstruction(t *testing.T) {
	// Two independently built spaces must agree index-for-index; a trained
	// value function's output indices have to keep their meaning.
	a := NewActionSpace(4, 18, 28)
	b := NewActionSpace(4, 18, 28)

	require.Equal(t, a.Size(), b.Size())
	for i := 0; i < a.Size(); i += 97 {
		assert.Equal(t, a.Decode(i), b.Decode(i))
	}
}
