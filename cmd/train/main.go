// Command train runs the learning loop against a live emulator: it wires
// the detectors, the ADB actuator, the environment and the agent together,
// resumes from the latest checkpoint when one exists, and trains until the
// episode budget runs out or the process is interrupted.
package main

import (
	"context"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/Authize/Clash-Royale-AI/internal/agent"
	"github.com/Authize/Clash-Royale-AI/internal/config"
	"github.com/Authize/Clash-Royale-AI/internal/env"
	"github.com/Authize/Clash-Royale-AI/internal/history"
	"github.com/Authize/Clash-Royale-AI/internal/nav"
	"github.com/Authize/Clash-Royale-AI/internal/screen"
	"github.com/Authize/Clash-Royale-AI/internal/telemetry"
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

	rng := newRNG()
	space := environment.ActionSpace()
	learner := agent.New(cfg.Agent, environment.StateSize(), space.Size(), space.NoopIndex(), rng, log)

	startEpisode := resume(learner, cfg.ModelsDir, log)

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		log.WithError(err).Fatal("open history store")
	}
	defer store.Close()

	rdb := telemetry.NewRedisClient(cfg.TelemetryRedis)
	if rdb != nil {
		defer rdb.Close()
	}
	publisher := telemetry.New(
		filepath.Join(cfg.LogsDir, "metrics.csv"),
		filepath.Join(cfg.LogsDir, "overlay.json"),
		rdb, log)

	tr := trainer.New(environment, learner, store, publisher, trainer.Options{
		Episodes:     cfg.Episodes,
		MaxSteps:     cfg.MaxSteps,
		BatchSize:    cfg.Agent.BatchSize,
		BestWindow:   cfg.BestWindow,
		ModelsDir:    cfg.ModelsDir,
		StartEpisode: startEpisode,
	}, log)

	log.WithFields(logrus.Fields{
		"episodes":      cfg.Episodes,
		"start_episode": startEpisode,
		"epsilon":       learner.Epsilon(),
		"actions":       space.Size(),
	}).Info("training starting")

	if err := tr.Run(ctx); err != nil {
		log.WithError(err).Fatal("training aborted")
	}
	log.Info("training finished")
}

// resume loads the latest checkpoint and its sidecar metadata when present,
// returning the episode to continue from. A fresh run starts at zero.
func resume(learner *agent.Agent, modelsDir string, log *logrus.Entry) int {
	ckpt := filepath.Join(modelsDir, trainer.LatestCheckpoint)
	if _, err := os.Stat(ckpt); err != nil {
		return 0
	}
	if err := learner.Load(ckpt); err != nil {
		log.WithError(err).Warn("latest checkpoint unreadable, starting fresh")
		return 0
	}
	meta, err := trainer.ReadMetadata(filepath.Join(modelsDir, trainer.LatestMetadata))
	if err != nil {
		log.WithError(err).Warn("checkpoint metadata unreadable, episode count resets")
		return 0
	}
	log.WithFields(logrus.Fields{
		"episode": meta.Episode,
		"epsilon": meta.Epsilon,
	}).Info("resuming from checkpoint")
	return meta.Episode
}

func newLogger() *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		l.SetLevel(lvl)
	}
	return logrus.NewEntry(l).WithField("app", "train")
}

func newRNG() *rand.Rand {
	seed := uint64(42)
	if s, err := strconv.ParseUint(os.Getenv("SEED"), 10, 64); err == nil {
		seed = s
	}
	return rand.New(rand.NewPCG(seed, seed^0x5DEECE66D))
}
