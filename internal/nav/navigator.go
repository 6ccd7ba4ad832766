// Package nav classifies the current game screen and walks the menu flow to
// reach the battle screen. It is deliberately dumb: a priority-ordered set of
// template probes plus retry loops. All of it is best-effort; the environment
// treats navigation failure as a recoverable condition.
package nav

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Authize/Clash-Royale-AI/internal/screen"
)

// Screen is the coarse screen classification used by the environment.
type Screen int

const (
	ScreenUnknown Screen = iota
	ScreenHome
	ScreenBattle
	ScreenPostMatch
	ScreenTrophyRoad
)

func (s Screen) String() string {
	switch s {
	case ScreenHome:
		return "home"
	case ScreenBattle:
		return "battle"
	case ScreenPostMatch:
		return "post_match"
	case ScreenTrophyRoad:
		return "trophy_road"
	default:
		return "unknown"
	}
}

// Navigator reaches and leaves the battle screen using actuator probes.
type Navigator struct {
	act screen.Actuator
	log *logrus.Entry

	// Stuck-screen tracking: same classification too many times in a row
	// triggers a recovery click.
	lastScreen  Screen
	sameCount   int
	stuckAfter  int
	maxAttempts int
	settle      time.Duration
}

// New builds a Navigator over the given actuator.
func New(act screen.Actuator, log *logrus.Entry) *Navigator {
	return &Navigator{
		act:         act,
		log:         log,
		stuckAfter:  3,
		maxAttempts: 15,
		settle:      2 * time.Second,
	}
}

// Classify determines the current screen. Probe order is deliberate: the
// match-over banner and trophy-road dialog are modal and shadow everything
// beneath them, so they win over home/battle indicators.
//
// When template probes fail entirely, a positive elixir reading is taken as
// proof of being in battle; elixir exists nowhere else in the UI. The
// elixir reading wins any disagreement with the probes.
func (n *Navigator) Classify(ctx context.Context) Screen {
	if _, ok := n.act.Locate(ctx, screen.TemplateMatchOver); ok {
		return ScreenPostMatch
	}
	if _, ok := n.act.Locate(ctx, screen.TemplateTrophyRoad); ok {
		return ScreenTrophyRoad
	}

	if elixir, err := n.act.CountElixir(ctx); err == nil && elixir > 0 {
		return ScreenBattle
	}

	for _, tmpl := range []string{screen.TemplateElixirBar, screen.TemplateCardSlot} {
		if _, ok := n.act.Locate(ctx, tmpl); ok {
			return ScreenBattle
		}
	}
	for _, tmpl := range []string{screen.TemplateBattleButton, screen.TemplateChestSlot} {
		if _, ok := n.act.Locate(ctx, tmpl); ok {
			return ScreenHome
		}
	}
	return ScreenUnknown
}

// InBattle reports whether the bot is currently in a live match.
func (n *Navigator) InBattle(ctx context.Context) bool {
	return n.Classify(ctx) == ScreenBattle
}

// NavigateToBattle drives the UI toward a live match. It is idempotent: if
// already in battle it returns true immediately. Returns false when the
// battle screen was not reached within the attempt budget.
func (n *Navigator) NavigateToBattle(ctx context.Context) bool {
	for attempt := 0; attempt < n.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}

		s := n.Classify(ctx)
		n.trackStuck(s)

		switch s {
		case ScreenBattle:
			n.resetStuck()
			return true
		case ScreenHome:
			n.SmartButtonClick(ctx)
		case ScreenPostMatch, ScreenTrophyRoad:
			n.dismiss(ctx)
		default:
			if n.sameCount >= n.stuckAfter {
				n.recover(ctx)
			} else {
				n.SmartButtonClick(ctx)
			}
		}
		n.sleep(ctx, n.settle)
	}
	n.log.Warn("battle screen not reached within attempt budget")
	return false
}

// SmartButtonClick clicks the most relevant visible button, in priority
// order battle > claim > ok. Returns true when something was clicked.
func (n *Navigator) SmartButtonClick(ctx context.Context) bool {
	for _, tmpl := range []string{
		screen.TemplateBattleButton,
		screen.TemplateClaimButton,
		screen.TemplateOKButton,
	} {
		if r, ok := n.act.Locate(ctx, tmpl); ok {
			x, y := r.Center()
			if err := n.act.Click(x, y); err != nil {
				n.log.WithError(err).WithField("template", tmpl).Warn("button click failed")
				continue
			}
			n.log.WithField("template", tmpl).Debug("clicked button")
			return true
		}
	}
	return false
}

// DismissResults clears a post-match or trophy-road dialog if one is up.
func (n *Navigator) DismissResults(ctx context.Context) {
	n.dismiss(ctx)
}

func (n *Navigator) dismiss(ctx context.Context) {
	if r, ok := n.act.Locate(ctx, screen.TemplateOKButton); ok {
		x, y := r.Center()
		if err := n.act.Click(x, y); err != nil {
			n.log.WithError(err).Warn("ok click failed")
		}
		return
	}
	// OK not found: press back, which dismisses most modal screens.
	if err := n.act.KeyPress("back"); err != nil {
		n.log.WithError(err).Warn("back keypress failed")
	}
}

// recover tries to unstick an unrecognized screen: dismiss whatever is up,
// then give the UI a moment.
func (n *Navigator) recover(ctx context.Context) {
	n.log.WithField("screen", n.lastScreen.String()).Info("screen appears stuck, attempting recovery")
	n.dismiss(ctx)
	n.resetStuck()
}

func (n *Navigator) trackStuck(s Screen) {
	if s == n.lastScreen {
		n.sameCount++
	} else {
		n.lastScreen = s
		n.sameCount = 1
	}
}

func (n *Navigator) resetStuck() {
	n.lastScreen = ScreenUnknown
	n.sameCount = 0
}

func (n *Navigator) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
