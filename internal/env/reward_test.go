package env

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Authize/Clash-Royale-AI/internal/config"
)

func testRewardConfig() config.Reward {
	return config.Reward{
		EnemyPresenceWeight: 0.5,
		DefensiveBonus:      5,
		DefenseSuccessBonus: 10,
		EfficiencyBonus:     3,
		CloseEnemyPenalty:   2,
		DangerY:             0.65,
		SpellWastePenalty:   5,
		SpellRadius:         100,
		TowerDestroyedBonus: 20,
		VictoryBonus:        100,
		DefeatPenalty:       100,
	}
}

// stateWith builds a synthetic state with the given elixir and enemy
// (x, y) pairs.
func stateWith(elixir float64, enemies ...[2]float64) StateVector {
	s := make(StateVector, StateSize)
	s[0] = elixir / MaxElixir
	for i, e := range enemies {
		if i >= MaxEnemies {
			break
		}
		s[enemyOffset+2*i] = e[0]
		s[enemyOffset+2*i+1] = e[1]
	}
	return s
}

func TestRewardMonotoneInEnemyPresence(t *testing.T) {
	// More enemy presence, all else equal, must be strictly worse.
	var rewards []float64
	for _, y := range []float64{0.1, 0.3, 0.5} {
		rm := NewRewardModel(testRewardConfig())
		r := rm.Compute(stateWith(5, [2]float64{0.5, y}))
		rewards = append(rewards, r)
	}
	for i := 1; i < len(rewards); i++ {
		assert.Less(t, rewards[i], rewards[i-1], "deeper enemy %d should score worse", i)
	}
}

func TestRewardDefenseSuccessTerm(t *testing.T) {
	rm := NewRewardModel(testRewardConfig())

	// Enemy presence drops 0.8 -> 0.3 with elixir unchanged.
	r1 := rm.Compute(stateWith(5, [2]float64{0.4, 0.8}))
	r2 := rm.Compute(stateWith(5, [2]float64{0.4, 0.3}))

	// Base terms: -0.5*0.8 vs -0.5*0.3; defense-success adds 10*0.5.
	assert.InDelta(t, -0.4-2, r1, 1e-9) // 0.8 > DangerY: close-enemy penalty too
	assert.InDelta(t, -0.15+10*0.5, r2, 1e-9)
	assert.Greater(t, r2, r1)
}

func TestRewardDefensiveSpendBonus(t *testing.T) {
	rm := NewRewardModel(testRewardConfig())

	rm.Compute(stateWith(8, [2]float64{0.5, 0.4}))
	// Spend 3 elixir while the same enemy is still present.
	r := rm.Compute(stateWith(5, [2]float64{0.5, 0.4}))

	// base -0.2, defensive +5; no reduction so no success/efficiency terms.
	assert.InDelta(t, -0.2+5, r, 1e-9)
}

func TestRewardEfficiencyUsesMin(t *testing.T) {
	cfg := testRewardConfig()
	rm := NewRewardModel(cfg)

	rm.Compute(stateWith(9, [2]float64{0.5, 0.9}))
	// Spend 6 elixir to clear 0.9 presence: efficiency bonus is 3*min(6, 0.9).
	r := rm.Compute(stateWith(3))

	want := 0.0 + // base: no presence left
		cfg.DefensiveBonus*0 + // presence is now zero, no defensive spend bonus
		cfg.DefenseSuccessBonus*0.9 +
		cfg.EfficiencyBonus*0.9
	assert.InDelta(t, want, r, 1e-9)
}

func TestRewardCloseEnemyPenaltyCountsDangerZone(t *testing.T) {
	rm := NewRewardModel(testRewardConfig())

	r := rm.Compute(stateWith(5,
		[2]float64{0.2, 0.9}, // in danger zone
		[2]float64{0.8, 0.7}, // in danger zone
		[2]float64{0.5, 0.2}, // safe
	))

	presence := 0.9 + 0.7 + 0.2
	assert.InDelta(t, -presence*0.5-2*2, r, 1e-9)
}

func TestRewardResetClearsCarriedMemory(t *testing.T) {
	rm := NewRewardModel(testRewardConfig())

	rm.Compute(stateWith(9, [2]float64{0.5, 0.9}))
	rm.Reset()

	// After reset this is a "first frame" again: no delta terms even though
	// elixir dropped and presence vanished.
	r := rm.Compute(stateWith(3))
	assert.InDelta(t, 0, r, 1e-9)
}

func TestRewardTerminalBonuses(t *testing.T) {
	rm := NewRewardModel(testRewardConfig())

	assert.Equal(t, 100.0, rm.Terminal(OutcomeVictory))
	assert.Equal(t, -100.0, rm.Terminal(OutcomeDefeat))
	assert.Zero(t, rm.Terminal("draw"))
	assert.Zero(t, rm.Terminal(""))
}

func TestRewardEmptyStateIsZero(t *testing.T) {
	rm := NewRewardModel(testRewardConfig())
	assert.Zero(t, rm.Compute(nil))
}
