package nav

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Authize/Clash-Royale-AI/internal/screen"
)

// fakeActuator scripts template visibility and records clicks.
type fakeActuator struct {
	screen.Nop

	visible map[string]screen.Rect
	elixir  int
	clicks  []([2]int)
	keys    []string

	// onClick lets a test mutate visibility as a side effect of clicking.
	onClick func()
}

func (f *fakeActuator) Locate(_ context.Context, tmpl string) (screen.Rect, bool) {
	r, ok := f.visible[tmpl]
	return r, ok
}

func (f *fakeActuator) CountElixir(context.Context) (int, error) {
	return f.elixir, nil
}

func (f *fakeActuator) Click(x, y int) error {
	f.clicks = append(f.clicks, [2]int{x, y})
	if f.onClick != nil {
		f.onClick()
	}
	return nil
}

func (f *fakeActuator) KeyPress(key string) error {
	f.keys = append(f.keys, key)
	return nil
}

func newTestNav(f *fakeActuator) *Navigator {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	n := New(f, logrus.NewEntry(l))
	n.settle = 0
	return n
}

func TestClassifyPriority(t *testing.T) {
	f := &fakeActuator{visible: map[string]screen.Rect{
		screen.TemplateMatchOver:    {X: 1, Y: 1, W: 2, H: 2},
		screen.TemplateBattleButton: {X: 1, Y: 1, W: 2, H: 2},
	}}
	n := newTestNav(f)

	// The modal match-over banner shadows the home-screen indicator.
	assert.Equal(t, ScreenPostMatch, n.Classify(context.Background()))
}

func TestClassifyElixirWinsOverHomeProbes(t *testing.T) {
	f := &fakeActuator{
		visible: map[string]screen.Rect{
			screen.TemplateBattleButton: {X: 1, Y: 1, W: 2, H: 2},
		},
		elixir: 4,
	}
	n := newTestNav(f)

	assert.Equal(t, ScreenBattle, n.Classify(context.Background()))
}

func TestClassifyHomeAndUnknown(t *testing.T) {
	f := &fakeActuator{visible: map[string]screen.Rect{
		screen.TemplateChestSlot: {X: 5, Y: 5, W: 2, H: 2},
	}}
	n := newTestNav(f)
	assert.Equal(t, ScreenHome, n.Classify(context.Background()))

	f.visible = map[string]screen.Rect{}
	assert.Equal(t, ScreenUnknown, n.Classify(context.Background()))
}

func TestNavigateToBattleIdempotent(t *testing.T) {
	f := &fakeActuator{elixir: 5}
	n := newTestNav(f)

	assert.True(t, n.NavigateToBattle(context.Background()))
	assert.Empty(t, f.clicks, "already in battle, nothing should be clicked")
}

func TestNavigateToBattleFromHome(t *testing.T) {
	f := &fakeActuator{visible: map[string]screen.Rect{
		screen.TemplateBattleButton: {X: 100, Y: 200, W: 40, H: 20},
	}}
	// Clicking the battle button puts us in battle.
	f.onClick = func() {
		f.elixir = 5
	}
	n := newTestNav(f)

	assert.True(t, n.NavigateToBattle(context.Background()))
	require.Len(t, f.clicks, 1)
	assert.Equal(t, [2]int{120, 210}, f.clicks[0])
}

func TestNavigateToBattleGivesUp(t *testing.T) {
	f := &fakeActuator{} // nothing ever visible
	n := newTestNav(f)
	n.maxAttempts = 4

	assert.False(t, n.NavigateToBattle(context.Background()))
	// Stuck recovery should have fallen back to the back key at least once.
	assert.NotEmpty(t, f.keys)
}

func TestSmartButtonClickPriority(t *testing.T) {
	f := &fakeActuator{visible: map[string]screen.Rect{
		screen.TemplateOKButton:     {X: 0, Y: 0, W: 10, H: 10},
		screen.TemplateBattleButton: {X: 50, Y: 50, W: 10, H: 10},
	}}
	n := newTestNav(f)

	assert.True(t, n.SmartButtonClick(context.Background()))
	require.Len(t, f.clicks, 1)
	// Battle button outranks OK.
	assert.Equal(t, [2]int{55, 55}, f.clicks[0])
}

func TestDismissFallsBackToBackKey(t *testing.T) {
	f := &fakeActuator{}
	n := newTestNav(f)

	n.DismissResults(context.Background())
	assert.Equal(t, []string{"back"}, f.keys)
}

func TestNavigateRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fakeActuator{}
	n := newTestNav(f)
	assert.False(t, n.NavigateToBattle(ctx))
	assert.Empty(t, f.clicks)
}
