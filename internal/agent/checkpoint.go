package agent

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// checkpointFile is the on-disk model snapshot. Run metadata (episode
// count, rewards, timestamps) lives in a sidecar JSON written by the
// trainer, so the weights file stays a single self-contained blob.
type checkpointFile struct {
	Weights      netWeights
	Epsilon      float64
	LearningRate float64
}

// Save writes the online network weights plus epsilon and learning rate to
// path. The write goes through a temp file and rename so a crash never
// leaves a truncated checkpoint behind.
func (a *Agent) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	cp := checkpointFile{
		Weights:      a.online.snapshot(),
		Epsilon:      a.epsilon,
		LearningRate: a.online.LearningRate(),
	}
	if err := gob.NewEncoder(tmp).Encode(cp); err != nil {
		tmp.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("finalize checkpoint: %w", err)
	}
	a.log.WithField("path", path).Debug("checkpoint saved")
	return nil
}

// Load restores weights from a checkpoint into both the online and target
// networks, along with the saved epsilon and learning rate. The checkpoint
// must match the agent's network dimensions.
func (a *Agent) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	var cp checkpointFile
	if err := gob.NewDecoder(f).Decode(&cp); err != nil {
		return fmt.Errorf("decode checkpoint: %w", err)
	}
	if !a.online.restore(cp.Weights) {
		return fmt.Errorf("checkpoint %s: dimensions %dx%dx%d do not match network %dx%dx%d",
			path, cp.Weights.InDim, cp.Weights.HidDim, cp.Weights.OutDim,
			a.online.inDim, a.online.hidDim, a.online.outDim)
	}
	a.online.CopyInto(a.target)
	a.epsilon = cp.Epsilon
	if cp.LearningRate > 0 {
		a.online.SetLearningRate(cp.LearningRate)
	}
	a.log.WithField("path", path).Info("checkpoint loaded")
	return nil
}
