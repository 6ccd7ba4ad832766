// Package trainer drives the episodic training loop: reset, act, step,
// remember, replay, then once-per-episode target sync, outcome adaptation,
// checkpointing and progress reporting.
package trainer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Authize/Clash-Royale-AI/internal/agent"
	"github.com/Authize/Clash-Royale-AI/internal/env"
	"github.com/Authize/Clash-Royale-AI/internal/history"
	"github.com/Authize/Clash-Royale-AI/internal/telemetry"
)

// Outcome classifies a finished episode.
type Outcome string

const (
	OutcomeVictory Outcome = "victory"
	OutcomeDefeat  Outcome = "defeat"
	OutcomeDraw    Outcome = "draw"
	OutcomeTimeout Outcome = "timeout"
	OutcomeError   Outcome = "error"
)

// Reward thresholds separating victory, draw and defeat for a terminated
// episode.
const (
	victoryThreshold = 50.0
	defeatThreshold  = -50.0
)

// Error handling: an escalating pause after each consecutive failed
// episode, giving up once the cap is reached.
const (
	maxConsecutiveErrors = 5
	errorBackoffBase     = 5 * time.Second
)

// Environment is the slice of the environment the trainer drives.
type Environment interface {
	Reset(ctx context.Context) (env.StateVector, error)
	Step(ctx context.Context, actionIndex int) (env.StateVector, float64, bool, error)
	Close()
}

// Learner is the slice of the agent the trainer drives.
type Learner interface {
	Act(state env.StateVector) int
	Remember(state env.StateVector, action int, reward float64, next env.StateVector, done bool)
	Replay(batchSize int) (float64, bool)
	UpdateTargetModel()
	UpdateGameOutcome(outcome string, totalReward float64, failedStrategies []string)
	Save(path string) error
	Epsilon() float64
	LearningRate() float64
	Stats() *agent.Stats
}

// Recorder persists finished episodes.
type Recorder interface {
	Record(ctx context.Context, ep history.Episode) error
}

// Publisher reports training progress.
type Publisher interface {
	Publish(ctx context.Context, snap telemetry.Snapshot)
}

// Options configures a training run.
type Options struct {
	Episodes     int
	MaxSteps     int
	BatchSize    int
	BestWindow   int // moving-average window for the best checkpoint
	ModelsDir    string
	StartEpisode int // first episode number, non-zero when resuming
}

// Metadata is the sidecar JSON written next to each checkpoint.
type Metadata struct {
	Epsilon     float64 `json:"epsilon"`
	Episode     int     `json:"episode"`
	TotalReward float64 `json:"total_reward"`
	AvgReward   float64 `json:"avg_reward"`
	Timestamp   string  `json:"timestamp"`
}

// Checkpoint file names under ModelsDir. "latest" is overwritten every
// episode; "best" only when the trailing average improves on all priors.
const (
	LatestCheckpoint = "latest.ckpt"
	BestCheckpoint   = "best.ckpt"
	LatestMetadata   = "latest.json"
	BestMetadata     = "best.json"
)

// Trainer runs the training loop over an environment and a learner.
type Trainer struct {
	env     Environment
	learner Learner
	store   Recorder
	pub     Publisher
	opts    Options
	log     *logrus.Entry

	recentRewards []float64
	bestAvg       float64
	haveBest      bool

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration)
}

// New wires a trainer. store and pub may be nil to disable persistence or
// progress reporting.
func New(e Environment, l Learner, store Recorder, pub Publisher, opts Options, log *logrus.Entry) *Trainer {
	return &Trainer{
		env:     e,
		learner: l,
		store:   store,
		pub:     pub,
		opts:    opts,
		log:     log,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run executes episodes until the configured count is reached or the
// context is cancelled. Cancellation is a clean stop, not an error.
func (t *Trainer) Run(ctx context.Context) error {
	consecutiveErrors := 0

	for ep := t.opts.StartEpisode; ep < t.opts.Episodes; ep++ {
		if ctx.Err() != nil {
			t.log.Info("training interrupted, stopping cleanly")
			return nil
		}

		t.log.WithFields(logrus.Fields{
			"episode": ep + 1,
			"epsilon": t.learner.Epsilon(),
		}).Info("episode starting")

		outcome, totalReward, steps, err := t.runEpisode(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			consecutiveErrors++
			t.log.WithError(err).WithField("consecutive", consecutiveErrors).Error("episode failed")
			if consecutiveErrors >= maxConsecutiveErrors {
				return fmt.Errorf("aborting after %d consecutive failed episodes: %w", consecutiveErrors, err)
			}
			t.sleep(ctx, time.Duration(consecutiveErrors)*errorBackoffBase)
			continue
		}
		consecutiveErrors = 0

		t.learner.UpdateTargetModel()
		if outcome == OutcomeVictory || outcome == OutcomeDefeat || outcome == OutcomeDraw {
			t.learner.UpdateGameOutcome(string(outcome), totalReward, failedStrategies(totalReward))
		}

		avg := t.pushReward(totalReward)
		t.log.WithFields(logrus.Fields{
			"episode":      ep + 1,
			"outcome":      outcome,
			"total_reward": totalReward,
			"avg_reward":   avg,
			"steps":        steps,
			"win_streak":   t.learner.Stats().WinStreak,
		}).Info("episode finished")

		t.checkpoint(ep+1, totalReward, avg)
		t.record(ctx, ep+1, outcome, totalReward, avg, steps)
		t.publish(ctx, ep+1, outcome, totalReward, avg, steps)
	}
	return nil
}

// runEpisode plays one episode to termination or the step cap.
func (t *Trainer) runEpisode(ctx context.Context) (Outcome, float64, int, error) {
	state, err := t.env.Reset(ctx)
	if err != nil {
		return OutcomeError, 0, 0, fmt.Errorf("reset: %w", err)
	}

	var totalReward float64
	done := false
	steps := 0
	for !done && steps < t.opts.MaxSteps {
		if ctx.Err() != nil {
			return OutcomeError, totalReward, steps, ctx.Err()
		}
		action := t.learner.Act(state)
		next, reward, d, err := t.env.Step(ctx, action)
		if err != nil {
			return OutcomeError, totalReward, steps, fmt.Errorf("step %d: %w", steps, err)
		}
		t.learner.Remember(state, action, reward, next, d)
		t.learner.Replay(t.opts.BatchSize)

		state = next
		totalReward += reward
		done = d
		steps++
	}
	return classify(done, totalReward), totalReward, steps, nil
}

// classify maps a finished episode to its outcome. A run that only hit the
// step cap is a timeout, not a result.
func classify(done bool, totalReward float64) Outcome {
	if !done {
		return OutcomeTimeout
	}
	switch {
	case totalReward > victoryThreshold:
		return OutcomeVictory
	case totalReward < defeatThreshold:
		return OutcomeDefeat
	default:
		return OutcomeDraw
	}
}

// failedStrategies names the strategies the adaptation layer should
// penalize after a heavy loss.
func failedStrategies(totalReward float64) []string {
	if totalReward < defeatThreshold {
		return []string{"aggressive"}
	}
	return nil
}

// pushReward folds the episode reward into the moving window and returns
// the current average.
func (t *Trainer) pushReward(reward float64) float64 {
	t.recentRewards = append(t.recentRewards, reward)
	if len(t.recentRewards) > t.opts.BestWindow {
		t.recentRewards = t.recentRewards[1:]
	}
	var sum float64
	for _, r := range t.recentRewards {
		sum += r
	}
	return sum / float64(len(t.recentRewards))
}

// checkpoint saves the latest model every episode and promotes it to best
// when the full-window average improves on all priors. Checkpoint failures
// are logged, not fatal; training continues on the in-memory model.
func (t *Trainer) checkpoint(episode int, totalReward, avgReward float64) {
	meta := Metadata{
		Epsilon:     t.learner.Epsilon(),
		Episode:     episode,
		TotalReward: totalReward,
		AvgReward:   avgReward,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	if err := t.saveWithMetadata(LatestCheckpoint, LatestMetadata, meta); err != nil {
		t.log.WithError(err).Warn("latest checkpoint failed")
	}

	// Best is only meaningful once the window is full.
	if len(t.recentRewards) < t.opts.BestWindow {
		return
	}
	if t.haveBest && avgReward <= t.bestAvg {
		return
	}
	t.bestAvg = avgReward
	t.haveBest = true
	meta.AvgReward = avgReward
	if err := t.saveWithMetadata(BestCheckpoint, BestMetadata, meta); err != nil {
		t.log.WithError(err).Warn("best checkpoint failed")
		return
	}
	t.log.WithFields(logrus.Fields{
		"episode":    episode,
		"avg_reward": avgReward,
	}).Info("new best model")
}

func (t *Trainer) saveWithMetadata(model, metaName string, meta Metadata) error {
	if err := t.learner.Save(filepath.Join(t.opts.ModelsDir, model)); err != nil {
		return err
	}
	return WriteMetadata(filepath.Join(t.opts.ModelsDir, metaName), meta)
}

// WriteMetadata writes a checkpoint sidecar file.
func WriteMetadata(path string, meta Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadMetadata loads a checkpoint sidecar file, used when resuming.
func ReadMetadata(path string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse metadata %s: %w", path, err)
	}
	return meta, nil
}

func (t *Trainer) record(ctx context.Context, episode int, outcome Outcome, totalReward, avgReward float64, steps int) {
	if t.store == nil {
		return
	}
	err := t.store.Record(ctx, history.Episode{
		Episode:     episode,
		Outcome:     string(outcome),
		TotalReward: totalReward,
		AvgReward:   avgReward,
		Steps:       steps,
		Epsilon:     t.learner.Epsilon(),
	})
	if err != nil {
		t.log.WithError(err).Warn("history record failed")
	}
}

func (t *Trainer) publish(ctx context.Context, episode int, outcome Outcome, totalReward, avgReward float64, steps int) {
	if t.pub == nil {
		return
	}
	st := t.learner.Stats()
	t.pub.Publish(ctx, telemetry.Snapshot{
		Episode:       episode,
		Step:          steps,
		Epsilon:       t.learner.Epsilon(),
		LearningRate:  t.learner.LearningRate(),
		TotalReward:   totalReward,
		AvgReward:     avgReward,
		Wins:          st.TotalWins,
		Losses:        st.TotalLosses,
		WinStreak:     st.WinStreak,
		BestWinStreak: st.BestWinStreak,
		Status:        status(episode, avgReward, t.learner.Epsilon()),
	})
}

// status is the coarse human-readable training stage for dashboards.
func status(episode int, avgReward, epsilon float64) string {
	switch {
	case episode < 100:
		return "learning"
	case episode < 500:
		return "training"
	case avgReward > 50 && epsilon < 0.2:
		return "ready"
	case avgReward > 20:
		return "good"
	default:
		return "improving"
	}
}
