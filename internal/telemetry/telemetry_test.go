package telemetry

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func sampleSnapshot() Snapshot {
	return Snapshot{
		Episode:     3,
		Step:        120,
		Epsilon:     0.42,
		TotalReward: 85.5,
		AvgReward:   12.25,
		Wins:        2,
		Losses:      1,
		Status:      "battling",
	}
}

func TestCSVAppendWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "metrics.csv")
	p := New(path, "", nil, quietLog())

	p.Publish(context.Background(), sampleSnapshot())
	p.Publish(context.Background(), sampleSnapshot())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus two data rows")
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "3", rows[1][0])
	assert.Equal(t, "0.42", rows[1][2])
	assert.NotEmpty(t, rows[1][11], "timestamp filled in")
}

func TestOverlayWrittenAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.json")
	p := New("", path, nil, quietLog())

	p.Publish(context.Background(), sampleSnapshot())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, 3, snap.Episode)
	assert.Equal(t, "battling", snap.Status)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file renamed away")
}

// fakeRedis records the commands the publisher issues.
type fakeRedis struct {
	sets   map[string]string
	pushes []string
	trims  int
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	if f.sets == nil {
		f.sets = make(map[string]string)
	}
	f.sets[key] = string(value.([]byte))
	return redis.NewStatusCmd(ctx)
}

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	for _, v := range values {
		f.pushes = append(f.pushes, string(v.([]byte)))
	}
	return redis.NewIntCmd(ctx)
}

func (f *fakeRedis) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.trims++
	return redis.NewStatusCmd(ctx)
}

func TestRedisMirror(t *testing.T) {
	rdb := &fakeRedis{}
	p := &Publisher{rdb: rdb, log: quietLog()}

	p.Publish(context.Background(), sampleSnapshot())

	require.Contains(t, rdb.sets, redisLatestKey)
	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(rdb.sets[redisLatestKey]), &snap))
	assert.Equal(t, 3, snap.Episode)
	assert.Len(t, rdb.pushes, 1)
	assert.Equal(t, 1, rdb.trims)
}

func TestSinkFailureDoesNotPanic(t *testing.T) {
	// A directory where the CSV file should be forces an open error.
	dir := t.TempDir()
	p := New(dir, "", nil, quietLog())

	assert.NotPanics(t, func() { p.Publish(context.Background(), sampleSnapshot()) })
}

func TestNewRedisClient(t *testing.T) {
	assert.Nil(t, NewRedisClient(""))
	assert.NotNil(t, NewRedisClient("localhost:6379"))
}
