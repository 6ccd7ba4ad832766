package env

import (
	"context"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Authize/Clash-Royale-AI/internal/config"
	"github.com/Authize/Clash-Royale-AI/internal/nav"
	"github.com/Authize/Clash-Royale-AI/internal/screen"
	"github.com/Authize/Clash-Royale-AI/internal/vision"
)

// DefaultSpellCards are the hand cards treated as spells for the spell-waste
// penalty. Override through Options if the deck differs.
var DefaultSpellCards = []string{
	"Fireball", "Zap", "Arrows", "Tornado", "Rocket", "Lightning", "Freeze",
}

// UnknownCard is the placeholder for a hand slot the card detector could not
// identify.
const UnknownCard = "Unknown"

// Options configures an Environment beyond its collaborators.
type Options struct {
	Geometry      screen.Geometry
	GridWidth     int
	GridHeight    int
	MinConfidence float64
	AutoPlayAgain bool
	WatcherPoll   time.Duration
	SpellCards    []string
	Reward        config.Reward
}

// Environment implements the reset/step contract over the detector,
// actuator, and navigator collaborators. One background goroutine per live
// Environment polls for the match-ending screen; everything else runs on the
// caller's goroutine.
type Environment struct {
	troops vision.Detector
	cards  vision.Detector
	act    screen.Actuator
	nav    *nav.Navigator
	space  *ActionSpace
	reward *RewardModel
	log    *logrus.Entry

	geom          screen.Geometry
	minConfidence float64
	autoPlayAgain bool
	watcherPoll   time.Duration
	spellCards    map[string]struct{}

	// UI settle times. Overridable so tests run without real waits.
	actionDelay      time.Duration
	battleStartDelay time.Duration
	resetDelay       time.Duration

	mailbox      outcomeMailbox
	watcherStop  chan struct{}
	watcherDone  chan struct{}
	watcherAlive atomic.Bool

	// Per-episode screen-mode flags, reset on Reset.
	matchOver     bool
	trophySkipped bool
	inBattle      bool

	prevEnemyTowers int
	haveTowerCount  bool

	currentHand []string
}

// New builds an Environment. troops and cards are the two detector backends
// (field units vs per-slot card identification).
func New(troops, cards vision.Detector, act screen.Actuator, navigator *nav.Navigator,
	opts Options, log *logrus.Entry) *Environment {

	spells := opts.SpellCards
	if spells == nil {
		spells = DefaultSpellCards
	}
	spellSet := make(map[string]struct{}, len(spells))
	for _, s := range spells {
		spellSet[s] = struct{}{}
	}

	poll := opts.WatcherPoll
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}

	return &Environment{
		troops:        troops,
		cards:         cards,
		act:           act,
		nav:           navigator,
		space:         NewActionSpace(NumCards, opts.GridWidth, opts.GridHeight),
		reward:        NewRewardModel(opts.Reward),
		log:           log,
		geom:          opts.Geometry,
		minConfidence: opts.MinConfidence,
		autoPlayAgain: opts.AutoPlayAgain,
		watcherPoll:   poll,
		spellCards:    spellSet,

		actionDelay:      time.Second,
		battleStartDelay: 2 * time.Second,
		resetDelay:       3 * time.Second,
	}
}

// ActionSpace exposes the environment's action enumeration.
func (e *Environment) ActionSpace() *ActionSpace { return e.space }

// StateSize returns the fixed encoded state length.
func (e *Environment) StateSize() int { return StateSize }

// Reset prepares a fresh episode: clears terminal and screen-mode flags,
// best-effort leaves any non-battle screen, restarts the terminal watcher,
// and returns the initial state.
func (e *Environment) Reset(ctx context.Context) (StateVector, error) {
	e.stopWatcher()

	if e.autoPlayAgain {
		// The watcher's OK click rolled us into the next match; let it load.
		e.sleep(ctx, e.resetDelay)
	} else if !e.nav.InBattle(ctx) {
		e.nav.DismissResults(ctx)
		if !e.nav.NavigateToBattle(ctx) {
			e.log.Warn("reset: battle screen not reached, continuing anyway")
		}
	}

	e.mailbox.clear()
	e.reward.Reset()
	e.matchOver = false
	e.trophySkipped = false
	e.inBattle = false
	e.currentHand = nil
	e.prevEnemyTowers = e.countEnemyPrincessTowers(ctx)
	e.haveTowerCount = true

	e.startWatcher()
	return e.observe(ctx), nil
}

// Step executes one MDP transition. done only ever becomes true through the
// terminal watcher (or its synchronous fallback); step-count truncation is
// the training driver's concern.
func (e *Environment) Step(ctx context.Context, actionIndex int) (StateVector, float64, bool, error) {
	switch e.nav.Classify(ctx) {
	case nav.ScreenHome:
		// Screen transition, not a game action: try to start a battle and
		// hand back a small reward so the policy is not blamed for menus.
		e.inBattle = false
		if e.nav.SmartButtonClick(ctx) {
			e.sleep(ctx, e.battleStartDelay)
			e.inBattle = true
		}
		return e.observe(ctx), 5, false, nil

	case nav.ScreenTrophyRoad:
		if !e.trophySkipped {
			e.trophySkipped = true
			e.nav.DismissResults(ctx)
			return e.observe(ctx), 10, false, nil
		}

	case nav.ScreenPostMatch:
		// Post-match UI cannot accept game actions; force no-op until the
		// watcher resolves the result.
		if !e.matchOver {
			e.log.Info("match over screen detected, forcing no-op until result resolves")
		}
		e.matchOver = true
		e.inBattle = false

	case nav.ScreenBattle:
		e.inBattle = true
	}

	if e.matchOver {
		actionIndex = e.space.NoopIndex()

		// Watcher-death fallback: resolve the result synchronously from the
		// screen rather than hanging here forever.
		if !e.watcherAlive.Load() {
			if outcome := e.detectGameEnd(ctx); outcome != "" {
				e.mailbox.post(outcome)
			}
		}
	}

	// Terminal takes priority over any in-flight action.
	if outcome := e.mailbox.peek(); outcome != "" {
		next := e.observe(ctx)
		reward := e.reward.Compute(next) + e.reward.Terminal(outcome)
		e.log.WithFields(logrus.Fields{
			"outcome": outcome,
			"reward":  reward,
		}).Info("episode ended")
		e.matchOver = false
		return next, reward, true, nil
	}

	e.currentHand = e.detectHand(ctx)
	if e.handUnknown() {
		if !e.inBattle {
			// Not actually in a match; doing nothing is the only safe move.
			return e.observe(ctx), 0, false, nil
		}
		// In battle but blind: neutral center click rather than a guess.
		cx, cy := e.geom.Field.Center()
		if err := e.act.Click(cx, cy); err != nil {
			e.log.WithError(err).Warn("neutral click failed")
		}
		return e.observe(ctx), 0, false, nil
	}

	action := e.space.Decode(actionIndex)
	spellPenalty := 0.0

	if !action.IsNoop() {
		if action.Card >= len(e.currentHand) {
			// Slot beyond the known hand: invalid, treated as no-op.
			return e.observe(ctx), 0, false, nil
		}
		cardName := e.currentHand[action.Card]
		x, y := e.space.ScreenCoords(action, e.geom.Field)
		e.playCard(action.Card, x, y)
		e.sleep(ctx, e.actionDelay)

		if _, isSpell := e.spellCards[cardName]; isSpell {
			spellPenalty = e.spellWaste(ctx, x, y)
		}
	}

	towerBonus := 0.0
	currTowers := e.countEnemyPrincessTowers(ctx)
	if e.haveTowerCount && currTowers < e.prevEnemyTowers {
		towerBonus = e.reward.TowerDestroyedBonus()
		e.log.WithField("towers", currTowers).Info("enemy princess tower down")
	}
	e.prevEnemyTowers = currTowers
	e.haveTowerCount = true

	next := e.observe(ctx)
	reward := e.reward.Compute(next) + spellPenalty + towerBonus
	return next, reward, false, nil
}

// Close stops the terminal watcher and blocks until it has exited. Safe to
// call multiple times.
func (e *Environment) Close() {
	e.stopWatcher()
}

// ---------------------------------------------------------------------------
// Perception helpers
// ---------------------------------------------------------------------------

// observe captures the field and encodes the current state. Perception
// failures degrade to an empty frame; the state vector always comes back
// well-formed.
func (e *Environment) observe(ctx context.Context) StateVector {
	var dets []vision.Detection
	frame, err := e.act.Capture(ctx, e.geom.Field)
	if err != nil {
		e.log.WithError(err).Warn("field capture failed, using empty frame")
	} else if frame != nil {
		dets, err = e.troops.Infer(ctx, frame)
		if err != nil {
			e.log.WithError(err).Warn("troop inference failed, using empty detections")
			dets = nil
		}
	}
	dets = vision.FilterConfidence(dets, e.minConfidence)

	elixir, err := e.act.CountElixir(ctx)
	if err != nil {
		e.log.WithError(err).Warn("elixir read failed, using zero")
		elixir = 0
	}
	return EncodeState(dets, elixir, e.geom.Field)
}

// detectHand identifies the card in each of the four slots. A slot whose
// detection fails degrades to UnknownCard.
func (e *Environment) detectHand(ctx context.Context) []string {
	shots, err := e.act.CaptureCards(ctx)
	if err != nil {
		e.log.WithError(err).Warn("card capture failed")
		return nil
	}
	hand := make([]string, 0, len(shots))
	for i, shot := range shots {
		name := UnknownCard
		if shot != nil {
			dets, err := e.cards.Infer(ctx, shot)
			if err != nil {
				e.log.WithError(err).WithField("slot", i).Warn("card inference failed")
			} else if len(dets) > 0 {
				name = dets[0].Class
			}
		}
		hand = append(hand, name)
	}
	return hand
}

// handUnknown reports whether hand identification degenerated to nothing
// usable: no slots at all, or every slot unknown.
func (e *Environment) handUnknown() bool {
	if len(e.currentHand) == 0 {
		return true
	}
	for _, c := range e.currentHand {
		if c != UnknownCard {
			return false
		}
	}
	return true
}

// playCard selects the hand slot by its hotkey and clicks the placement.
func (e *Environment) playCard(slot, x, y int) {
	if err := e.act.KeyPress(strconv.Itoa(slot + 1)); err != nil {
		e.log.WithError(err).WithField("slot", slot).Warn("card hotkey failed")
	}
	if err := e.act.Click(x, y); err != nil {
		e.log.WithError(err).Warn("placement click failed")
	}
}

// spellWaste returns the penalty when no enemy unit sits within the spell
// radius of the click point, zero otherwise.
func (e *Environment) spellWaste(ctx context.Context, clickX, clickY int) float64 {
	state := e.observe(ctx)
	radius := e.reward.SpellRadius()
	fx, fy := float64(e.geom.Field.X), float64(e.geom.Field.Y)
	fw, fh := float64(e.geom.Field.W), float64(e.geom.Field.H)
	for _, pos := range state.EnemyPositions() {
		ex := fx + pos[0]*fw
		ey := fy + pos[1]*fh
		if math.Hypot(ex-float64(clickX), ey-float64(clickY)) < radius {
			return 0
		}
	}
	e.log.Debug("spell hit nothing, applying waste penalty")
	return e.reward.SpellWastePenalty()
}

// countEnemyPrincessTowers runs a dedicated detector pass for the tower
// count. Failures report the previous count so a bad frame cannot fake a
// tower kill.
func (e *Environment) countEnemyPrincessTowers(ctx context.Context) int {
	frame, err := e.act.Capture(ctx, e.geom.Field)
	if err != nil || frame == nil {
		return e.prevEnemyTowers
	}
	dets, err := e.troops.Infer(ctx, frame)
	if err != nil {
		return e.prevEnemyTowers
	}
	return vision.CountClass(dets, vision.ClassEnemyPrincessTower)
}

// ---------------------------------------------------------------------------
// Terminal watcher
// ---------------------------------------------------------------------------

func (e *Environment) startWatcher() {
	e.watcherStop = make(chan struct{})
	e.watcherDone = make(chan struct{})
	e.watcherAlive.Store(true)
	go e.watch(e.watcherStop, e.watcherDone)
}

func (e *Environment) stopWatcher() {
	if e.watcherStop == nil {
		return
	}
	select {
	case <-e.watcherStop:
		// already closed
	default:
		close(e.watcherStop)
	}
	<-e.watcherDone
	e.watcherStop = nil
	e.watcherDone = nil
}

// watch polls for the match-ending screen at a fixed cadence, independent of
// the step loop, and posts the result to the mailbox. A single slow
// detection call therefore cannot stall training. Panics inside one poll are
// recovered and the loop continues.
func (e *Environment) watch(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer e.watcherAlive.Store(false)

	ticker := time.NewTicker(e.watcherPoll)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if outcome := e.pollOnce(); outcome != "" {
				e.mailbox.post(outcome)
				return
			}
		}
	}
}

// pollOnce runs one guarded end-of-match detection.
func (e *Environment) pollOnce() (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("panic", r).Error("terminal watcher poll panicked, continuing")
			outcome = ""
		}
	}()
	return e.detectGameEnd(context.Background())
}

// detectGameEnd looks for the winner banner and resolves victory vs defeat
// by which half of the arena the banner sits in (the winner's name is shown
// next to their side). It then clicks through the results screen.
func (e *Environment) detectGameEnd(ctx context.Context) string {
	banner, ok := e.act.Locate(ctx, screen.TemplateWinnerBanner)
	if !ok {
		return ""
	}
	_, bannerY := banner.Center()
	splitY := e.geom.Field.Y + e.geom.Field.H/2

	outcome := OutcomeDefeat
	if bannerY > splitY {
		outcome = OutcomeVictory
	}

	// Leave the results screen so the next reset starts from a menu.
	if okBtn, found := e.act.Locate(ctx, screen.TemplateOKButton); found {
		x, y := okBtn.Center()
		if err := e.act.Click(x, y); err != nil {
			e.log.WithError(err).Warn("results OK click failed")
		}
	} else {
		// Fixed fallback: OK lives bottom-center under the card bar.
		x, y := e.geom.CardBar.Center()
		if err := e.act.Click(x, e.geom.CardBar.Y+e.geom.CardBar.H+60); err != nil {
			e.log.WithError(err).WithField("x", x).WithField("y", y).Warn("results fallback click failed")
		}
	}
	return outcome
}

func (e *Environment) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
