// Package config holds the typed server configuration.
// Values are resolved once at startup: defaults, then the config file, then
// .env and ARENA_* environment variables, then command-line flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MRamiBalles/TankArenaBridge/internal/platform/logger"
)

// Config holds every tunable of the arena server. Keys that existed in the
// legacy config.json keep their spelling so old files load unchanged.
type Config struct {
	// Controller connection
	ConnectionIP      string  `yaml:"connectionIP" json:"connectionIP"`
	ConnectionPort    int     `yaml:"connectionPort" json:"connectionPort"`
	ReceiveBufferSize int     `yaml:"receive_buffer_size" json:"receive_buffer_size"`
	ReplyTimeout      float64 `yaml:"reply_timeout" json:"reply_timeout"` // seconds per step reply, 0 blocks forever
	Verbose           bool    `yaml:"verbose" json:"verbose"`

	// Stepping
	ActionRepeat    int     `yaml:"action_repeat" json:"action_repeat"`
	TimeScale       float64 `yaml:"time_scale" json:"time_scale"`
	TickRate        int     `yaml:"tick_rate" json:"tick_rate"` // fixed ticks per simulated second
	Unthrottled     bool    `yaml:"unthrottled" json:"unthrottled"`
	MaxCatchUpSteps int     `yaml:"max_catch_up_steps" json:"max_catch_up_steps"`
	Async           bool    `yaml:"async" json:"async"`
	AsyncQueueSize  int     `yaml:"async_queue_size" json:"async_queue_size"`

	// Arena and match
	ArenaPath   string  `yaml:"arena_path" json:"arena_path"`
	GameMaxTime float64 `yaml:"game_maxTime" json:"game_maxTime"` // seconds
	Seed        int64   `yaml:"seed" json:"seed"`

	// Tanks
	PlayerSpeed            float64 `yaml:"player_speed" json:"player_speed"`
	PlayerTriggerThreshold float64 `yaml:"player_triggerThreshold" json:"player_triggerThreshold"`
	PlayerReloadTime       float64 `yaml:"player_reloadTime" json:"player_reloadTime"`
	PlayerMaxHealth        float64 `yaml:"player_maxHealth" json:"player_maxHealth"`
	Player1AI              bool    `yaml:"player1_ai" json:"player1_ai"`
	Player2AI              bool    `yaml:"player2_ai" json:"player2_ai"`
	Player1Enabled         bool    `yaml:"player1_enabled" json:"player1_enabled"`
	Player2Enabled         bool    `yaml:"player2_enabled" json:"player2_enabled"`

	// Projectiles
	BulletSpeed      float64 `yaml:"bullet_speed" json:"bullet_speed"`
	BulletTimeToLive float64 `yaml:"bullet_timeToLive" json:"bullet_timeToLive"` // seconds
	BulletDamage     float64 `yaml:"bullet_damage" json:"bullet_damage"`

	// Supporting services; empty values disable them
	MonitorAddress string  `yaml:"monitor_address" json:"monitor_address"`
	SpectatorRate  float64 `yaml:"spectator_rate" json:"spectator_rate"` // frames per second
	StoragePath    string  `yaml:"storage_path" json:"storage_path"`
	TrajectoryDir  string  `yaml:"trajectory_dir" json:"trajectory_dir"`
	NATSURL        string  `yaml:"nats_url" json:"nats_url"`
	NATSBucket     string  `yaml:"nats_bucket" json:"nats_bucket"`
}

// DefaultConfig returns the stock arena settings. The monitor and the
// episode ledger stay off until configured.
func DefaultConfig() *Config {
	return &Config{
		ConnectionIP:      "127.0.0.1",
		ConnectionPort:    50000,
		ReceiveBufferSize: 64 * 1024,

		ActionRepeat:    1,
		TimeScale:       1,
		TickRate:        50,
		MaxCatchUpSteps: 8,
		AsyncQueueSize:  16,

		GameMaxTime: 60,
		Seed:        1,

		PlayerSpeed:            3,
		PlayerTriggerThreshold: 0.5,
		PlayerReloadTime:       0.33,
		PlayerMaxHealth:        1,
		Player1AI:              true,
		Player2AI:              true,
		Player1Enabled:         true,
		Player2Enabled:         true,

		BulletSpeed:      15,
		BulletTimeToLive: 10,
		BulletDamage:     1,

		SpectatorRate: 20,
		NATSBucket:    "arena-episodes",
	}
}

// TrainingConfig returns settings for headless training runs: ticks run as
// fast as the controller answers and no monitor is served.
func TrainingConfig() *Config {
	c := DefaultConfig()
	c.Unthrottled = true
	c.MaxCatchUpSteps = runtime.NumCPU() * 8
	return c
}

// DebugConfig returns slow-motion verbose settings for watching an agent,
// with the local monitor and a ledger in the working directory.
func DebugConfig() *Config {
	c := DefaultConfig()
	c.Verbose = true
	c.MonitorAddress = "127.0.0.1:8080"
	c.StoragePath = "arena.db"
	c.TimeScale = 0.25
	c.SpectatorRate = 50
	return c
}

// Profile returns a named configuration profile.
func Profile(name string) (*Config, error) {
	switch strings.ToLower(name) {
	case "", "default":
		return DefaultConfig(), nil
	case "training":
		return TrainingConfig(), nil
	case "debug":
		return DebugConfig(), nil
	default:
		return nil, fmt.Errorf("unknown config profile %q", name)
	}
}

// Load resolves the configuration: profile defaults, then path (if any),
// then the environment. The result is validated.
func Load(profile, path string) (*Config, error) {
	c, err := Profile(profile)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := c.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile overlays values from a YAML or JSON file. Keys absent from the
// file keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, c)
	} else {
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks every value eagerly and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.ConnectionIP != "", "connectionIP must not be empty")
	check(c.ConnectionPort >= 0 && c.ConnectionPort <= 65535, "connectionPort %d out of range", c.ConnectionPort)
	check(c.ReceiveBufferSize >= 512, "receive_buffer_size %d is below 512 bytes", c.ReceiveBufferSize)
	check(c.ReplyTimeout >= 0, "reply_timeout must not be negative")
	check(c.ActionRepeat >= 1, "action_repeat must be at least 1, got %d", c.ActionRepeat)
	check(c.TimeScale > 0, "time_scale must be positive, got %v", c.TimeScale)
	check(c.TickRate > 0, "tick_rate must be positive, got %d", c.TickRate)
	check(c.MaxCatchUpSteps >= 1, "max_catch_up_steps must be at least 1")
	check(c.AsyncQueueSize >= 1, "async_queue_size must be at least 1")
	check(c.GameMaxTime > 0, "game_maxTime must be positive")
	check(c.PlayerSpeed >= 0, "player_speed must not be negative")
	check(c.PlayerReloadTime >= 0, "player_reloadTime must not be negative")
	check(c.PlayerMaxHealth > 0, "player_maxHealth must be positive")
	check(c.BulletSpeed > 0, "bullet_speed must be positive")
	check(c.BulletTimeToLive > 0, "bullet_timeToLive must be positive")
	check(c.BulletDamage >= 0, "bullet_damage must not be negative")
	check(c.SpectatorRate > 0, "spectator_rate must be positive")
	if c.NATSURL != "" {
		check(c.NATSBucket != "", "nats_bucket is required when nats_url is set")
	}
	return errors.Join(errs...)
}

// ListenAddress is the controller listener's host:port.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.ConnectionIP, fmt.Sprint(c.ConnectionPort))
}

// FixedDelta is the simulated seconds advanced per tick.
func (c *Config) FixedDelta() float64 {
	return 1 / float64(c.TickRate)
}

// ReplyTimeoutDuration converts the reply timeout to a Duration. Zero means no timeout.
func (c *Config) ReplyTimeoutDuration() time.Duration {
	return time.Duration(c.ReplyTimeout * float64(time.Second))
}

// EntitySettings is the per-tank control configuration.
type EntitySettings struct {
	ID      int
	Remote  bool
	Enabled bool
}

// Entities returns the settings of the two tracked tanks in slot order.
func (c *Config) Entities() []EntitySettings {
	return []EntitySettings{
		{ID: 1, Remote: c.Player1AI, Enabled: c.Player1Enabled},
		{ID: 2, Remote: c.Player2AI, Enabled: c.Player2Enabled},
	}
}

// LogSummary writes every configuration value. Only visible in verbose mode.
func (c *Config) LogSummary(log *logger.Logger) {
	data, err := yaml.Marshal(c)
	if err != nil {
		log.Error("failed to render config", "err", err)
		return
	}
	values := make(map[string]any)
	if err := yaml.Unmarshal(data, &values); err != nil {
		log.Error("failed to render config", "err", err)
		return
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		log.Info("config", "key", k, "value", values[k])
	}
}
