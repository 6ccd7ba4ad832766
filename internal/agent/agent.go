package agent

import (
	"math/rand/v2"

	"github.com/sirupsen/logrus"

	"github.com/Authize/Clash-Royale-AI/internal/config"
	"github.com/Authize/Clash-Royale-AI/internal/env"
)

// lossRecord remembers one recent defeat for the adaptation layer.
type lossRecord struct {
	Reward   float64
	Severity float64
}

const (
	recentLossCap = 10 // defeats remembered by the adaptation layer

	punishWindow = 5 // transitions retroactively penalized after a defeat

	// Epsilon perturbations after defeats.
	defeatEpsilonBump = 0.1
	defeatEpsilonCap  = 0.8
	streakEpsilonBump = 0.15
	streakEpsilonCap  = 0.7

	lossDecaySlowdown = 0.95 // epsilon decay multiplier while defeats are recent
	defeatLearnBoost  = 1.1  // learning rate multiplier after a defeat

	strategyPenaltyScale = 0.01 // failed-strategy penalty weight in the loss
)

// Agent is the value-based learner: an online Q-network, a hard-synced
// target copy, the replay buffer and an epsilon-greedy policy with optional
// strategy overrides. It is driven from a single goroutine and needs no
// internal locking.
type Agent struct {
	online *Network
	target *Network
	memory *ReplayBuffer
	stats  *Stats
	rng    *rand.Rand
	log    *logrus.Entry

	actionSize int
	noopIndex  int

	gamma        float64
	epsilon      float64
	epsilonMin   float64
	epsilonDecay float64
	maxLearnRate float64

	smartOverrides bool

	recentLosses      []lossRecord
	strategyPenalties map[string]float64
}

// New builds an agent for the given action space size. noopIndex is the
// action the save-elixir override maps to.
func New(cfg config.Agent, stateSize, actionSize, noopIndex int, rng *rand.Rand, log *logrus.Entry) *Agent {
	a := &Agent{
		online:     NewNetwork(stateSize, cfg.HiddenSize, actionSize, cfg.LearningRate, cfg.GradClipNorm, rng),
		target:     NewNetwork(stateSize, cfg.HiddenSize, actionSize, cfg.LearningRate, cfg.GradClipNorm, rng),
		memory:     NewReplayBuffer(cfg.MemorySize),
		stats:      NewStats(),
		rng:        rng,
		log:        log,
		actionSize: actionSize,
		noopIndex:  noopIndex,

		gamma:        cfg.Gamma,
		epsilon:      cfg.Epsilon,
		epsilonMin:   cfg.EpsilonMin,
		epsilonDecay: cfg.EpsilonDecay,
		maxLearnRate: cfg.MaxLearnRate,

		smartOverrides:    cfg.SmartOverrides,
		strategyPenalties: make(map[string]float64),
	}
	a.UpdateTargetModel()
	return a
}

// Act picks an action for the state: uniform random with probability
// epsilon, otherwise the strategy override layer and finally the greedy
// argmax over the online network.
func (a *Agent) Act(state env.StateVector) int {
	if a.rng.Float64() < a.epsilon {
		return a.rng.IntN(a.actionSize)
	}
	q := a.online.Forward(state)
	if a.smartOverrides {
		if action, ok := Override(state, q, a.noopIndex, a.stats); ok {
			return action
		}
	}
	return argmax(q)
}

func argmax(q []float64) int {
	best := 0
	for i, v := range q {
		if v > q[best] {
			best = i
		}
	}
	return best
}

// Remember appends a transition to the replay buffer and folds it into the
// strategy statistics.
func (a *Agent) Remember(state env.StateVector, action int, reward float64, next env.StateVector, done bool) {
	a.memory.Push(Transition{
		State:     state,
		Action:    action,
		Reward:    reward,
		NextState: next,
		Done:      done,
	})
	a.stats.ObserveTransition(state, action, reward)
}

// Replay runs one training step over a loss-biased sample of the buffer.
// It is a no-op while the buffer holds fewer than batchSize transitions.
// Returns the training loss and whether a step ran.
func (a *Agent) Replay(batchSize int) (float64, bool) {
	if a.memory.Len() < batchSize {
		return 0, false
	}
	batch := a.memory.SampleBiased(a.rng, batchSize)

	states := make([][]float64, len(batch))
	actions := make([]int, len(batch))
	targets := make([]float64, len(batch))
	for i, t := range batch {
		states[i] = t.State
		actions[i] = t.Action
		target := t.Reward
		if !t.Done {
			nq := a.target.Forward(t.NextState)
			target += a.gamma * nq[argmax(nq)]
		}
		targets[i] = target
	}

	loss := a.online.TrainBatch(states, actions, targets, a.pendingStrategyPenalty())

	// Decay exploration, slower while recent defeats are still informing
	// the adaptation layer.
	if a.epsilon > a.epsilonMin {
		rate := a.epsilonDecay
		if len(a.recentLosses) > 0 {
			rate *= lossDecaySlowdown
		}
		a.epsilon *= rate
		if a.epsilon < a.epsilonMin {
			a.epsilon = a.epsilonMin
		}
	}
	return loss, true
}

func (a *Agent) pendingStrategyPenalty() float64 {
	var total float64
	for _, p := range a.strategyPenalties {
		total += p
	}
	return total * strategyPenaltyScale
}

// UpdateTargetModel hard-copies the online weights into the target network.
// The trainer calls this once per episode, not per step.
func (a *Agent) UpdateTargetModel() {
	a.online.CopyInto(a.target)
}

// UpdateGameOutcome applies the once-per-episode adaptation. On defeat the
// win streak resets, the last few stored transitions are retroactively
// penalized with the most recent punished hardest, exploration and the
// learning rate are pushed up toward their caps, and any named failed
// strategies accumulate penalties that surface as a loss adjustment in
// Replay. On victory only the streak bookkeeping moves. This is a heuristic
// control loop, not a convergent algorithm.
func (a *Agent) UpdateGameOutcome(outcome string, totalReward float64, failedStrategies []string) {
	a.stats.RecordOutcome(outcome)

	switch outcome {
	case env.OutcomeVictory:
		a.log.WithFields(logrus.Fields{
			"streak": a.stats.WinStreak,
			"best":   a.stats.BestWinStreak,
		}).Info("victory")

	case env.OutcomeDefeat:
		severity := totalReward / 100
		if severity < 0 {
			severity = -severity
		}
		a.punishRecent(severity)

		for _, s := range failedStrategies {
			a.strategyPenalties[s] += severity * 10
		}

		a.epsilon = bumpCapped(a.epsilon, defeatEpsilonBump, defeatEpsilonCap)
		if a.stats.RecentDefeats(3) >= 2 {
			a.epsilon = bumpCapped(a.epsilon, streakEpsilonBump, streakEpsilonCap)
		}

		lr := a.online.LearningRate() * defeatLearnBoost
		if lr > a.maxLearnRate {
			lr = a.maxLearnRate
		}
		a.online.SetLearningRate(lr)

		a.recentLosses = append(a.recentLosses, lossRecord{Reward: totalReward, Severity: severity})
		if len(a.recentLosses) > recentLossCap {
			a.recentLosses = a.recentLosses[1:]
		}

		a.log.WithFields(logrus.Fields{
			"severity":      severity,
			"epsilon":       a.epsilon,
			"learning_rate": lr,
		}).Info("defeat, adaptation applied")
	}
}

// punishRecent lowers the stored rewards of the last few transitions so the
// next replays learn from the losing sequence. The most recent transition is
// punished hardest.
func (a *Agent) punishRecent(severity float64) {
	n := a.memory.Len()
	if n == 0 || severity == 0 {
		return
	}
	window := punishWindow
	if window > n {
		window = n
	}
	for i := 0; i < window; i++ {
		// i counts back from the newest transition.
		a.memory.AdjustReward(n-1-i, -severity*float64(window-i))
	}
}

// bumpCapped raises v by delta but never above ceiling. A v already above
// the ceiling is pulled down to it, matching the adaptation's hard caps.
func bumpCapped(v, delta, ceiling float64) float64 {
	v += delta
	if v > ceiling {
		return ceiling
	}
	return v
}

// Epsilon reports the current exploration rate.
func (a *Agent) Epsilon() float64 { return a.epsilon }

// SetEpsilon overrides the exploration rate, used when resuming from a
// checkpoint or forcing greedy play.
func (a *Agent) SetEpsilon(eps float64) { a.epsilon = eps }

// LearningRate reports the online optimizer's current step size.
func (a *Agent) LearningRate() float64 { return a.online.LearningRate() }

// Stats exposes the outcome and strategy statistics for display.
func (a *Agent) Stats() *Stats { return a.stats }

// MemoryLen reports how many transitions the replay buffer holds.
func (a *Agent) MemoryLen() int { return a.memory.Len() }
