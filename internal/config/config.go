// Package config loads bot configuration from the environment.
//
// A .env file in the working directory is honored when present (via
// godotenv), matching how the detector credentials are normally supplied.
// Anything the bot cannot recover from mid-run, such as missing detector
// credentials, missing workspace identifiers, fails here, before the first
// episode starts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Reward holds every shaping and terminal coefficient used by the reward
// model. All values are tunable through the environment; the defaults are the
// magnitudes the bot has been trained with so far.
type Reward struct {
	EnemyPresenceWeight float64 // base penalty per unit of summed enemy Y
	DefensiveBonus      float64 // flat bonus for spending elixir while enemies are present
	DefenseSuccessBonus float64 // per-unit bonus for reducing enemy presence
	EfficiencyBonus     float64 // per-unit bonus on min(elixir spent, presence reduced)
	CloseEnemyPenalty   float64 // per-enemy penalty beyond DangerY
	DangerY             float64 // normalized Y above which an enemy counts as close
	SpellWastePenalty   float64 // flat penalty for a spell with no nearby enemy
	SpellRadius         float64 // pixel radius for the spell-waste check
	TowerDestroyedBonus float64 // once per enemy princess tower lost
	VictoryBonus        float64 // terminal
	DefeatPenalty       float64 // terminal (positive magnitude, subtracted)
}

// Agent holds the learning hyperparameters.
type Agent struct {
	Gamma          float64
	Epsilon        float64
	EpsilonMin     float64
	EpsilonDecay   float64
	LearningRate   float64
	MaxLearnRate   float64
	MemorySize     int
	BatchSize      int
	HiddenSize     int
	GradClipNorm   float64
	SmartOverrides bool
}

// Config is the resolved configuration for a bot process.
type Config struct {
	// Detector backend.
	InferenceURL   string
	APIKey         string
	TroopWorkspace string
	CardWorkspace  string
	TroopWorkflow  string
	CardWorkflow   string
	MinConfidence  float64

	// Action grid.
	GridWidth  int
	GridHeight int

	// Episode control.
	Episodes       int
	MaxSteps       int
	AutoPlayAgain  bool
	WatcherPoll    time.Duration
	BestWindow     int
	ModelsDir      string
	LogsDir        string
	HistoryPath    string
	TelemetryRedis string // empty disables the redis publisher

	// ADB actuator.
	ADBSerial string

	Reward Reward
	Agent  Agent
}

// Load reads configuration from the environment, after merging in a .env file
// if one exists. It returns an error for any missing required key; callers
// are expected to treat that as fatal.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg := &Config{
		InferenceURL:   getStr("INFERENCE_API_URL", "http://localhost:9001"),
		TroopWorkflow:  getStr("WORKFLOW_TROOP_DETECTION", "detect-count-and-visualize"),
		CardWorkflow:   getStr("WORKFLOW_CARD_DETECTION", "custom-workflow"),
		MinConfidence:  getFloat("MIN_CONFIDENCE", 0.3),
		GridWidth:      getInt("GRID_WIDTH", 18),
		GridHeight:     getInt("GRID_HEIGHT", 28),
		Episodes:       getInt("EPISODES", 10000),
		MaxSteps:       getInt("MAX_STEPS_PER_EPISODE", 2000),
		AutoPlayAgain:  getBool("AUTO_PLAY_AGAIN", false),
		WatcherPoll:    getDuration("WATCHER_POLL_INTERVAL", 500*time.Millisecond),
		BestWindow:     getInt("BEST_REWARD_WINDOW", 50),
		ModelsDir:      getStr("MODELS_DIR", "models"),
		LogsDir:        getStr("LOGS_DIR", "logs"),
		HistoryPath:    getStr("HISTORY_DB", "logs/history.db"),
		TelemetryRedis: getStr("TELEMETRY_REDIS_ADDR", ""),
		ADBSerial:      getStr("ADB_SERIAL", ""),
		Reward: Reward{
			EnemyPresenceWeight: getFloat("REWARD_ENEMY_PRESENCE", 0.5),
			DefensiveBonus:      getFloat("REWARD_DEFENSIVE", 5),
			DefenseSuccessBonus: getFloat("REWARD_DEFENSE_SUCCESS", 10),
			EfficiencyBonus:     getFloat("REWARD_EFFICIENCY", 3),
			CloseEnemyPenalty:   getFloat("REWARD_CLOSE_ENEMY", 2),
			DangerY:             getFloat("REWARD_DANGER_Y", 0.65),
			SpellWastePenalty:   getFloat("REWARD_SPELL_WASTE", 5),
			SpellRadius:         getFloat("REWARD_SPELL_RADIUS", 100),
			TowerDestroyedBonus: getFloat("REWARD_TOWER_DESTROYED", 20),
			VictoryBonus:        getFloat("REWARD_VICTORY", 100),
			DefeatPenalty:       getFloat("REWARD_DEFEAT", 100),
		},
		Agent: Agent{
			Gamma:          getFloat("AGENT_GAMMA", 0.95),
			Epsilon:        getFloat("AGENT_EPSILON", 1.0),
			EpsilonMin:     getFloat("AGENT_EPSILON_MIN", 0.01),
			EpsilonDecay:   getFloat("AGENT_EPSILON_DECAY", 0.997),
			LearningRate:   getFloat("AGENT_LEARNING_RATE", 0.001),
			MaxLearnRate:   getFloat("AGENT_MAX_LEARNING_RATE", 0.01),
			MemorySize:     getInt("AGENT_MEMORY_SIZE", 10000),
			BatchSize:      getInt("AGENT_BATCH_SIZE", 32),
			HiddenSize:     getInt("AGENT_HIDDEN_SIZE", 64),
			GradClipNorm:   getFloat("AGENT_GRAD_CLIP", 1.0),
			SmartOverrides: getBool("AGENT_SMART_OVERRIDES", true),
		},
	}

	var err error
	if cfg.APIKey, err = require("ROBOFLOW_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.TroopWorkspace, err = require("WORKSPACE_TROOP_DETECTION"); err != nil {
		return nil, err
	}
	if cfg.CardWorkspace, err = require("WORKSPACE_CARD_DETECTION"); err != nil {
		return nil, err
	}
	if cfg.GridWidth < 2 || cfg.GridHeight < 2 {
		return nil, fmt.Errorf("config: grid %dx%d is too small", cfg.GridWidth, cfg.GridHeight)
	}
	return cfg, nil
}

func require(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("config: %s environment variable is not set; check your .env file", key)
	}
	return v, nil
}

func getStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "1", "true", "yes", "y", "TRUE", "Yes", "Y":
			return true
		case "0", "false", "no", "n", "FALSE", "No", "N":
			return false
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
