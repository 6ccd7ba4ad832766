// Command play runs the trained model greedily against a live emulator:
// no exploration, no learning, just the best known policy.
package main

import (
	"context"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/Authize/Clash-Royale-AI/internal/agent"
	"github.com/Authize/Clash-Royale-AI/internal/config"
	"github.com/Authize/Clash-Royale-AI/internal/env"
	"github.com/Authize/Clash-Royale-AI/internal/nav"
	"github.com/Authize/Clash-Royale-AI/internal/screen"
	"github.com/Authize/Clash-Royale-AI/internal/trainer"
	"github.com/Authize/Clash-Royale-AI/internal/vision"
)

func main() {
	log := newLogger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	geom := screen.DefaultGeometry()
	actuator := screen.NewADB(cfg.ADBSerial, geom, log)
	navigator := nav.New(actuator, log)
	troops := vision.NewClient(cfg.InferenceURL, cfg.APIKey, cfg.TroopWorkspace, cfg.TroopWorkflow, log)
	cards := vision.NewClient(cfg.InferenceURL, cfg.APIKey, cfg.CardWorkspace, cfg.CardWorkflow, log)

	environment := env.New(troops, cards, actuator, navigator, env.Options{
		Geometry:      geom,
		GridWidth:     cfg.GridWidth,
		GridHeight:    cfg.GridHeight,
		MinConfidence: cfg.MinConfidence,
		AutoPlayAgain: cfg.AutoPlayAgain,
		WatcherPoll:   cfg.WatcherPoll,
		Reward:        cfg.Reward,
	}, log)
	defer environment.Close()

	rng := rand.New(rand.NewPCG(1, 2))
	space := environment.ActionSpace()
	learner := agent.New(cfg.Agent, environment.StateSize(), space.Size(), space.NoopIndex(), rng, log)
	if !loadModel(learner, cfg.ModelsDir, log) {
		log.Fatal("no usable checkpoint in models dir; train first")
	}
	// Pure exploitation: the loaded epsilon is discarded.
	learner.SetEpsilon(0)

	for episode := 1; ctx.Err() == nil; episode++ {
		state, err := environment.Reset(ctx)
		if err != nil {
			log.WithError(err).Error("reset failed")
			continue
		}
		var total float64
		for steps := 0; steps < cfg.MaxSteps && ctx.Err() == nil; steps++ {
			action := learner.Act(state)
			next, reward, done, err := environment.Step(ctx, action)
			if err != nil {
				log.WithError(err).Error("step failed")
				break
			}
			state = next
			total += reward
			if done {
				break
			}
		}
		log.WithFields(logrus.Fields{
			"episode":      episode,
			"total_reward": total,
		}).Info("match finished")
	}
}

// loadModel prefers the best checkpoint and falls back to the latest.
func loadModel(learner *agent.Agent, modelsDir string, log *logrus.Entry) bool {
	for _, name := range []string{trainer.BestCheckpoint, trainer.LatestCheckpoint} {
		path := filepath.Join(modelsDir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := learner.Load(path); err != nil {
			log.WithError(err).WithField("path", path).Warn("checkpoint unreadable")
			continue
		}
		return true
	}
	return false
}

func newLogger() *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		l.SetLevel(lvl)
	}
	return logrus.NewEntry(l).WithField("app", "play")
}
