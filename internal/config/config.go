// Package config loads the bot configuration from a YAML file, with
// environment variables taking precedence over file values.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration, loaded once before the
// orchestrator starts and read-only afterwards.
type Config struct {
	Token              string         `mapstructure:"token"`
	URL                string         `mapstructure:"url"`
	MaxConcurrentGames int            `mapstructure:"max_concurrent_games"`
	SortChallengesBy   string         `mapstructure:"sort_challenges_by"` // "best" or "first"
	Abort              AbortConfig    `mapstructure:"abort"`
	Challenge          ChallengeRules `mapstructure:"challenge"`
	Engine             EngineConfig   `mapstructure:"engine"`
}

// AbortConfig controls the idle-abort guard for stalled opponents.
type AbortConfig struct {
	// After is the idle window measured from the last game activity.
	After time.Duration `mapstructure:"after"`
	// MinMoves disables aborting once this many plies have been played.
	MinMoves int `mapstructure:"min_moves"`
}

// ChallengeRules decide which incoming challenges are eligible.
type ChallengeRules struct {
	Variants  []string `mapstructure:"variants"`
	Speeds    []string `mapstructure:"speeds"`
	Modes     []string `mapstructure:"modes"` // "rated", "casual"
	AcceptBot bool     `mapstructure:"accept_bot"`
	MinRating int      `mapstructure:"min_rating"`
	MaxRating int      `mapstructure:"max_rating"`
}

// EngineConfig selects and configures the external engine process.
type EngineConfig struct {
	Path    string            `mapstructure:"path"`
	Options map[string]string `mapstructure:"options"`
	Book    BookConfig        `mapstructure:"book"`
}

// BookConfig configures the opening book lookup.
type BookConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Backend   string `mapstructure:"backend"` // "file" or "redis"
	Path      string `mapstructure:"path"`
	RedisURL  string `mapstructure:"redis_url"`
	Randomize bool   `mapstructure:"randomize"`
	MinWeight int    `mapstructure:"min_weight"`
	MaxDepth  int    `mapstructure:"max_depth"`
}

// Load reads the config file at path and applies defaults and env overrides.
// Environment variables use the SQUIRE_ prefix with underscores, e.g.
// SQUIRE_TOKEN or SQUIRE_MAX_CONCURRENT_GAMES.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("squire")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("url", "https://lichess.org/")
	v.SetDefault("max_concurrent_games", 1)
	v.SetDefault("sort_challenges_by", "best")
	v.SetDefault("abort.after", "20s")
	v.SetDefault("abort.min_moves", 2)
	v.SetDefault("challenge.variants", []string{"standard"})
	v.SetDefault("challenge.speeds", []string{"bullet", "blitz", "rapid"})
	v.SetDefault("challenge.modes", []string{"casual", "rated"})
	v.SetDefault("engine.book.backend", "file")
	v.SetDefault("engine.book.min_weight", 1)
	v.SetDefault("engine.book.max_depth", 8)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf("config: token is required")
	}
	if cfg.MaxConcurrentGames < 1 {
		return nil, fmt.Errorf("config: max_concurrent_games must be at least 1, got %d", cfg.MaxConcurrentGames)
	}
	if cfg.Engine.Path == "" {
		return nil, fmt.Errorf("config: engine.path is required")
	}
	return &cfg, nil
}
