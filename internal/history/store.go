// Package history persists per-episode training results in a local SQLite
// database so long runs can be analyzed after the fact.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Episode is one finished episode's summary row.
type Episode struct {
	ID          string
	Episode     int
	Outcome     string
	TotalReward float64
	AvgReward   float64
	Steps       int
	Epsilon     float64
	CreatedAt   time.Time
}

// Store is a SQLite-backed episode log. Safe for use from the single
// training goroutine; the connection pool is pinned to one connection.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	id           TEXT PRIMARY KEY,
	episode      INTEGER NOT NULL,
	outcome      TEXT NOT NULL,
	total_reward REAL NOT NULL,
	avg_reward   REAL NOT NULL,
	steps        INTEGER NOT NULL,
	epsilon      REAL NOT NULL,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_episodes_episode ON episodes(episode);
`

// Open creates or opens the episode database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create history dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure history db: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure history db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record inserts one episode row. A zero ID or CreatedAt is filled in.
func (s *Store) Record(ctx context.Context, ep Episode) error {
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (id, episode, outcome, total_reward, avg_reward, steps, epsilon, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.Episode, ep.Outcome, ep.TotalReward, ep.AvgReward,
		ep.Steps, ep.Epsilon, ep.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record episode %d: %w", ep.Episode, err)
	}
	return nil
}

// Recent returns up to n most recent episodes, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Episode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, episode, outcome, total_reward, avg_reward, steps, epsilon, created_at
		FROM episodes ORDER BY episode DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent episodes: %w", err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		var ep Episode
		var created string
		if err := rows.Scan(&ep.ID, &ep.Episode, &ep.Outcome, &ep.TotalReward,
			&ep.AvgReward, &ep.Steps, &ep.Epsilon, &created); err != nil {
			return nil, fmt.Errorf("scan episode row: %w", err)
		}
		ep.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, ep)
	}
	return out, rows.Err()
}

// RecentWinRate computes the victory share over the last n episodes. With
// no recorded episodes it returns zero.
func (s *Store) RecentWinRate(ctx context.Context, n int) (float64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN outcome = 'victory' THEN 1 ELSE 0 END), 0)
		FROM (SELECT outcome FROM episodes ORDER BY episode DESC LIMIT ?)`, n)

	var total, wins int
	if err := row.Scan(&total, &wins); err != nil {
		return 0, fmt.Errorf("query win rate: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(wins) / float64(total), nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
