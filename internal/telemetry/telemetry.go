// Package telemetry exposes training progress to the outside world: a CSV
// metrics log, a JSON snapshot for overlays, and an optional Redis mirror.
// Publishing is strictly best-effort; a failed sink warns and training
// continues.
package telemetry

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Snapshot is one training progress report.
type Snapshot struct {
	Episode       int     `json:"episode"`
	Step          int     `json:"step"`
	Epsilon       float64 `json:"epsilon"`
	LearningRate  float64 `json:"learning_rate"`
	TotalReward   float64 `json:"total_reward"`
	AvgReward     float64 `json:"avg_reward"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinStreak     int     `json:"win_streak"`
	BestWinStreak int     `json:"best_win_streak"`
	Status        string  `json:"status"`
	UpdatedAt     string  `json:"updated_at"`
}

// Redis keys for the mirrored snapshot and its bounded history.
const (
	redisLatestKey  = "bot:telemetry:latest"
	redisHistoryKey = "bot:telemetry:history"
	redisHistoryCap = 500
)

// redisCommands is the slice of the go-redis client the publisher needs,
// narrowed so tests can stub it.
type redisCommands interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
}

// Publisher fans a snapshot out to the configured sinks. Any sink may be
// disabled by leaving its field empty or nil.
type Publisher struct {
	csvPath     string
	overlayPath string
	rdb         redisCommands
	log         *logrus.Entry
}

// New builds a publisher. csvPath and overlayPath may be empty to disable
// those sinks; rdb may be nil to disable the Redis mirror.
func New(csvPath, overlayPath string, rdb *redis.Client, log *logrus.Entry) *Publisher {
	p := &Publisher{csvPath: csvPath, overlayPath: overlayPath, log: log}
	if rdb != nil {
		p.rdb = rdb
	}
	return p
}

// NewRedisClient connects a go-redis client for the given address, or
// returns nil for an empty address.
func NewRedisClient(addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr})
}

// Publish writes the snapshot to every configured sink. Errors are logged
// at Warn level and never returned; telemetry must not stop training.
func (p *Publisher) Publish(ctx context.Context, snap Snapshot) {
	if snap.UpdatedAt == "" {
		snap.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if p.csvPath != "" {
		if err := p.appendCSV(snap); err != nil {
			p.log.WithError(err).Warn("telemetry: csv append failed")
		}
	}
	if p.overlayPath != "" {
		if err := p.writeOverlay(snap); err != nil {
			p.log.WithError(err).Warn("telemetry: overlay write failed")
		}
	}
	if p.rdb != nil {
		if err := p.publishRedis(ctx, snap); err != nil {
			p.log.WithError(err).Warn("telemetry: redis publish failed")
		}
	}
}

var csvHeader = []string{
	"episode", "step", "epsilon", "learning_rate", "total_reward",
	"avg_reward", "wins", "losses", "win_streak", "best_win_streak",
	"status", "updated_at",
}

func (p *Publisher) appendCSV(snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(p.csvPath), 0o755); err != nil {
		return err
	}
	_, statErr := os.Stat(p.csvPath)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(p.csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	row := []string{
		strconv.Itoa(snap.Episode),
		strconv.Itoa(snap.Step),
		formatFloat(snap.Epsilon),
		formatFloat(snap.LearningRate),
		formatFloat(snap.TotalReward),
		formatFloat(snap.AvgReward),
		strconv.Itoa(snap.Wins),
		strconv.Itoa(snap.Losses),
		strconv.Itoa(snap.WinStreak),
		strconv.Itoa(snap.BestWinStreak),
		snap.Status,
		snap.UpdatedAt,
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// writeOverlay replaces the snapshot file atomically so a reader never sees
// a half-written JSON document.
func (p *Publisher) writeOverlay(snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(p.overlayPath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := p.overlayPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.overlayPath)
}

func (p *Publisher) publishRedis(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := p.rdb.Set(ctx, redisLatestKey, data, 0).Err(); err != nil {
		return fmt.Errorf("set latest: %w", err)
	}
	if err := p.rdb.LPush(ctx, redisHistoryKey, data).Err(); err != nil {
		return fmt.Errorf("push history: %w", err)
	}
	if err := p.rdb.LTrim(ctx, redisHistoryKey, 0, redisHistoryCap-1).Err(); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return nil
}
