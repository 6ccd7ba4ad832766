package env

import (
	"math"

	"github.com/Authize/Clash-Royale-AI/internal/config"
)

// RewardModel computes the per-step shaping reward. Tower HP is not reliably
// observable frame to frame, so the reward is a heuristic potential function
// over observable proxies: enemy presence, elixir spend, and their deltas.
// Per-step terms are kept small relative to the terminal bonuses so that the
// learned policy chases wins, not shaping.
//
// The model carries the previous frame's elixir and enemy presence between
// calls; Reset clears that memory at episode boundaries.
type RewardModel struct {
	cfg config.Reward

	havePrev     bool
	prevElixir   float64
	prevPresence float64
}

// NewRewardModel builds a reward model with the given coefficients.
func NewRewardModel(cfg config.Reward) *RewardModel {
	return &RewardModel{cfg: cfg}
}

// Reset forgets the carried frame-to-frame memory. Call at episode start.
func (r *RewardModel) Reset() {
	r.havePrev = false
	r.prevElixir = 0
	r.prevPresence = 0
}

// Compute returns the shaping reward for the current state and updates the
// carried memory. The first call after Reset produces only the base enemy
// presence term and the close-enemy penalty; delta terms need a previous
// frame.
func (r *RewardModel) Compute(curr StateVector) float64 {
	if len(curr) == 0 {
		return 0
	}

	elixir := curr.Elixir()
	presence := curr.EnemyPresence()

	// Base term: letting enemies accumulate on the field is always bad.
	reward := -presence * r.cfg.EnemyPresenceWeight

	if r.havePrev {
		elixirSpent := r.prevElixir - elixir
		presenceReduced := r.prevPresence - presence

		// Spending while under pressure is defense, not waste.
		if presence > 0 && elixirSpent > 0 {
			reward += r.cfg.DefensiveBonus
		}

		// Actually clearing enemies pays more than mere activity.
		if presenceReduced > 0 {
			reward += r.cfg.DefenseSuccessBonus * presenceReduced
		}

		// Proportionate response: min() punishes both overkill and underkill.
		if elixirSpent > 0 && presenceReduced > 0 {
			reward += r.cfg.EfficiencyBonus * math.Min(elixirSpent, presenceReduced)
		}
	}

	// Passivity near our towers costs, whether or not anything changed.
	if presence > 0 {
		close := 0
		for _, pos := range curr.EnemyPositions() {
			if pos[1] > r.cfg.DangerY {
				close++
			}
		}
		reward -= r.cfg.CloseEnemyPenalty * float64(close)
	}

	r.havePrev = true
	r.prevElixir = elixir
	r.prevPresence = presence
	return reward
}

// SpellWastePenalty is the flat penalty for casting a spell with no enemy
// inside the configured radius of the click point.
func (r *RewardModel) SpellWastePenalty() float64 { return -r.cfg.SpellWastePenalty }

// SpellRadius is the pixel radius of the spell-waste check.
func (r *RewardModel) SpellRadius() float64 { return r.cfg.SpellRadius }

// TowerDestroyedBonus is paid once per detected drop in the enemy princess
// tower count.
func (r *RewardModel) TowerDestroyedBonus() float64 { return r.cfg.TowerDestroyedBonus }

// Terminal returns the episode-ending bonus for the given outcome string
// ("victory" or "defeat"); any other value maps to zero.
func (r *RewardModel) Terminal(outcome string) float64 {
	switch outcome {
	case OutcomeVictory:
		return r.cfg.VictoryBonus
	case OutcomeDefeat:
		return -r.cfg.DefeatPenalty
	default:
		return 0
	}
}
