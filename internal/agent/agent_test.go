package agent

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Authize/Clash-Royale-AI/internal/config"
	"github.com/Authize/Clash-Royale-AI/internal/env"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func testAgentConfig() config.Agent {
	return config.Agent{
		Gamma:        0.95,
		Epsilon:      1.0,
		EpsilonMin:   0.01,
		EpsilonDecay: 0.997,
		LearningRate: 0.001,
		MaxLearnRate: 0.01,
		MemorySize:   100,
		BatchSize:    8,
		HiddenSize:   16,
		GradClipNorm: 1.0,
	}
}

const testActions = 12

func newTestAgent(t *testing.T, cfg config.Agent) *Agent {
	t.Helper()
	return New(cfg, env.StateSize, testActions, testActions-1, testRNG(42), quietLog())
}

func zeroState() env.StateVector { return make(env.StateVector, env.StateSize) }

func TestActGreedyEqualsArgmax(t *testing.T) {
	cfg := testAgentConfig()
	cfg.Epsilon = 0
	cfg.SmartOverrides = false
	a := newTestAgent(t, cfg)
	state := stateWith(5, nil, nil)

	q := a.online.Forward(state)
	assert.Equal(t, argmax(q), a.Act(state))
}

func TestActExploresWithFullEpsilon(t *testing.T) {
	cfg := testAgentConfig()
	cfg.Epsilon = 1.0
	a := newTestAgent(t, cfg)

	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		action := a.Act(zeroState())
		require.GreaterOrEqual(t, action, 0)
		require.Less(t, action, testActions)
		seen[action] = true
	}
	assert.Greater(t, len(seen), 1, "full exploration must not be deterministic")
}

func TestReplayNoOpBelowBatchSize(t *testing.T) {
	cfg := testAgentConfig()
	a := newTestAgent(t, cfg)
	state := stateWith(5, nil, nil)
	before := a.online.Forward(state)

	for i := 0; i < cfg.BatchSize-1; i++ {
		a.Remember(zeroState(), i%testActions, 1.0, zeroState(), false)
	}
	_, trained := a.Replay(cfg.BatchSize)

	assert.False(t, trained)
	assert.Equal(t, before, a.online.Forward(state), "parameters must not move without a full batch")
	assert.Equal(t, cfg.Epsilon, a.Epsilon(), "epsilon must not decay without a training step")
}

func TestReplayTrainsAndDecaysEpsilon(t *testing.T) {
	cfg := testAgentConfig()
	a := newTestAgent(t, cfg)
	for i := 0; i < 20; i++ {
		a.Remember(zeroState(), i%testActions, 1.0, zeroState(), i%5 == 0)
	}

	_, trained := a.Replay(cfg.BatchSize)

	require.True(t, trained)
	assert.InDelta(t, cfg.Epsilon*cfg.EpsilonDecay, a.Epsilon(), 1e-12)
}

func TestReplayDecaysSlowerAfterDefeat(t *testing.T) {
	cfg := testAgentConfig()
	cfg.Epsilon = 0.5
	a := newTestAgent(t, cfg)
	for i := 0; i < 20; i++ {
		a.Remember(zeroState(), i%testActions, 1.0, zeroState(), false)
	}
	a.UpdateGameOutcome(env.OutcomeDefeat, -100, nil)
	epsAfterDefeat := a.Epsilon()

	_, trained := a.Replay(cfg.BatchSize)

	require.True(t, trained)
	assert.InDelta(t, epsAfterDefeat*cfg.EpsilonDecay*lossDecaySlowdown, a.Epsilon(), 1e-12)
}

func TestVictoryBookkeeping(t *testing.T) {
	a := newTestAgent(t, testAgentConfig())

	a.UpdateGameOutcome(env.OutcomeVictory, 120, nil)
	a.UpdateGameOutcome(env.OutcomeVictory, 110, nil)

	assert.Equal(t, 2, a.Stats().WinStreak)
	assert.Equal(t, 2, a.Stats().BestWinStreak)
	assert.Equal(t, 2, a.Stats().TotalWins)
}

func TestDefeatResetsStreakAndBumpsEpsilon(t *testing.T) {
	cfg := testAgentConfig()
	cfg.Epsilon = 0.3
	a := newTestAgent(t, cfg)
	a.UpdateGameOutcome(env.OutcomeVictory, 100, nil)

	a.UpdateGameOutcome(env.OutcomeDefeat, -100, nil)

	assert.Equal(t, 0, a.Stats().WinStreak)
	assert.Equal(t, 1, a.Stats().BestWinStreak)
	assert.InDelta(t, 0.4, a.Epsilon(), 1e-12)
}

func TestDefeatEpsilonRespectsCap(t *testing.T) {
	cfg := testAgentConfig()
	cfg.Epsilon = 0.78
	a := newTestAgent(t, cfg)

	a.UpdateGameOutcome(env.OutcomeDefeat, -100, nil)

	assert.InDelta(t, defeatEpsilonCap, a.Epsilon(), 1e-12)
}

func TestRepeatedDefeatsBumpEpsilonHarder(t *testing.T) {
	cfg := testAgentConfig()
	cfg.Epsilon = 0.2
	a := newTestAgent(t, cfg)

	a.UpdateGameOutcome(env.OutcomeDefeat, -100, nil) // 0.3
	a.UpdateGameOutcome(env.OutcomeDefeat, -100, nil) // 0.4, then the 2-of-3 bump

	assert.InDelta(t, 0.55, a.Epsilon(), 1e-12)
}

func TestDefeatBoostsLearningRateUpToCap(t *testing.T) {
	cfg := testAgentConfig()
	a := newTestAgent(t, cfg)

	a.UpdateGameOutcome(env.OutcomeDefeat, -80, nil)
	assert.InDelta(t, cfg.LearningRate*defeatLearnBoost, a.LearningRate(), 1e-12)

	for i := 0; i < 50; i++ {
		a.UpdateGameOutcome(env.OutcomeDefeat, -80, nil)
	}
	assert.InDelta(t, cfg.MaxLearnRate, a.LearningRate(), 1e-12)
}

func TestDefeatPunishesRecentTransitions(t *testing.T) {
	a := newTestAgent(t, testAgentConfig())
	for i := 0; i < 8; i++ {
		a.Remember(zeroState(), i%testActions, 1.0, zeroState(), false)
	}

	a.UpdateGameOutcome(env.OutcomeDefeat, -200, nil) // severity 2.0

	n := a.memory.Len()
	// Most recent hit hardest: -2*5, then -2*4 and so on over the window.
	assert.InDelta(t, 1.0-10.0, a.memory.At(n-1).Reward, 1e-12)
	assert.InDelta(t, 1.0-8.0, a.memory.At(n-2).Reward, 1e-12)
	assert.InDelta(t, 1.0-2.0, a.memory.At(n-5).Reward, 1e-12)
	assert.InDelta(t, 1.0, a.memory.At(n-6).Reward, 1e-12, "older transitions untouched")
}

func TestFailedStrategiesSurfaceAsLossPenalty(t *testing.T) {
	a := newTestAgent(t, testAgentConfig())

	a.UpdateGameOutcome(env.OutcomeDefeat, -100, []string{"overcommit"})

	// severity 1.0 * 10 * scale 0.01
	assert.InDelta(t, 0.1, a.pendingStrategyPenalty(), 1e-12)
}
