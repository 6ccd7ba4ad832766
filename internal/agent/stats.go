package agent

import (
	"github.com/Authize/Clash-Royale-AI/internal/env"
)

// actionStat accumulates per-action outcome counts.
type actionStat struct {
	Uses      int
	Successes int
	AvgReward float64
}

func (s *actionStat) observe(reward float64) {
	s.Uses++
	if reward > 0 {
		s.Successes++
	}
	s.AvgReward += (reward - s.AvgReward) / float64(s.Uses)
}

func (s *actionStat) successRate() float64 {
	if s.Uses == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Uses)
}

// Stats tracks match outcomes and per-action success statistics that the
// strategy override layer reads. Only ever touched from the training
// goroutine.
type Stats struct {
	TotalWins     int
	TotalLosses   int
	WinStreak     int
	BestWinStreak int

	recent []string // last recentOutcomes match results, oldest first

	cards       map[int]*actionStat            // per-action memory
	phases      map[string]map[int]*actionStat // battle phase -> action
	timing      map[int]map[int]*actionStat    // elixir level -> action
	counters    map[string][]int               // enemy profile -> successful actions
	positioning map[string][]int               // board shape -> successful actions
}

const (
	recentOutcomes  = 20
	strategyListCap = 20
)

// NewStats returns an empty tracker.
func NewStats() *Stats {
	return &Stats{
		cards:       make(map[int]*actionStat),
		phases:      make(map[string]map[int]*actionStat),
		timing:      make(map[int]map[int]*actionStat),
		counters:    make(map[string][]int),
		positioning: make(map[string][]int),
	}
}

// RecordOutcome updates totals, streaks and the recent-outcome window.
func (st *Stats) RecordOutcome(outcome string) {
	switch outcome {
	case env.OutcomeVictory:
		st.TotalWins++
		st.WinStreak++
		if st.WinStreak > st.BestWinStreak {
			st.BestWinStreak = st.WinStreak
		}
	case env.OutcomeDefeat:
		st.TotalLosses++
		st.WinStreak = 0
	}
	st.recent = append(st.recent, outcome)
	if len(st.recent) > recentOutcomes {
		st.recent = st.recent[1:]
	}
}

// RecentDefeats counts defeats among the last n recorded outcomes.
func (st *Stats) RecentDefeats(n int) int {
	if n > len(st.recent) {
		n = len(st.recent)
	}
	defeats := 0
	for _, o := range st.recent[len(st.recent)-n:] {
		if o == env.OutcomeDefeat {
			defeats++
		}
	}
	return defeats
}

// WinRate is wins over all finished matches, zero before the first one.
func (st *Stats) WinRate() float64 {
	total := st.TotalWins + st.TotalLosses
	if total == 0 {
		return 0
	}
	return float64(st.TotalWins) / float64(total)
}

// ObserveTransition folds one step into the per-action statistics.
// Malformed states are skipped rather than allowed to break the training
// loop.
func (st *Stats) ObserveTransition(state env.StateVector, action int, reward float64) {
	if len(state) < env.StateSize || action < 0 {
		return
	}
	elixir := state.Elixir()
	enemies := state.EnemyPositions()

	stat := st.cards[action]
	if stat == nil {
		stat = &actionStat{}
		st.cards[action] = stat
	}
	stat.observe(reward)

	phase := battlePhase(elixir)
	if st.phases[phase] == nil {
		st.phases[phase] = make(map[int]*actionStat)
	}
	ps := st.phases[phase][action]
	if ps == nil {
		ps = &actionStat{}
		st.phases[phase][action] = ps
	}
	ps.observe(reward)

	level := int(elixir)
	if st.timing[level] == nil {
		st.timing[level] = make(map[int]*actionStat)
	}
	ts := st.timing[level][action]
	if ts == nil {
		ts = &actionStat{}
		st.timing[level][action] = ts
	}
	ts.observe(reward)

	if reward > 0 {
		for _, profile := range enemyProfiles(enemies) {
			st.counters[profile] = appendCapped(st.counters[profile], action)
		}
		key := positioningKey(state.AllyCount())
		st.positioning[key] = appendCapped(st.positioning[key], action)
	}
}

func appendCapped(list []int, action int) []int {
	list = append(list, action)
	if len(list) > strategyListCap {
		list = list[1:]
	}
	return list
}
