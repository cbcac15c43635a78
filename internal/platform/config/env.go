package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "ARENA_"

// LoadDotEnv loads .env from the working directory if present. Variables
// already set in the environment win.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// ApplyEnv overlays ARENA_* variables using lookup (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	integer := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		}
	}
	float := func(dst *float64) func(string) error {
		return func(v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			*dst = f
			return nil
		}
	}
	boolean := func(dst *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*dst = b
			return nil
		}
	}

	overrides := []struct {
		key string
		set func(string) error
	}{
		{"CONNECTION_IP", str(&c.ConnectionIP)},
		{"CONNECTION_PORT", integer(&c.ConnectionPort)},
		{"REPLY_TIMEOUT", float(&c.ReplyTimeout)},
		{"VERBOSE", boolean(&c.Verbose)},
		{"ACTION_REPEAT", integer(&c.ActionRepeat)},
		{"TIME_SCALE", float(&c.TimeScale)},
		{"TICK_RATE", integer(&c.TickRate)},
		{"UNTHROTTLED", boolean(&c.Unthrottled)},
		{"ASYNC", boolean(&c.Async)},
		{"ARENA_PATH", str(&c.ArenaPath)},
		{"GAME_MAX_TIME", float(&c.GameMaxTime)},
		{"PLAYER1_AI", boolean(&c.Player1AI)},
		{"PLAYER2_AI", boolean(&c.Player2AI)},
		{"PLAYER1_ENABLED", boolean(&c.Player1Enabled)},
		{"PLAYER2_ENABLED", boolean(&c.Player2Enabled)},
		{"MONITOR_ADDRESS", str(&c.MonitorAddress)},
		{"STORAGE_PATH", str(&c.StoragePath)},
		{"TRAJECTORY_DIR", str(&c.TrajectoryDir)},
		{"NATS_URL", str(&c.NATSURL)},
	}

	var errs []error
	for _, o := range overrides {
		v, ok := lookup(EnvPrefix + o.key)
		if !ok {
			continue
		}
		if err := o.set(v); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, o.key, v, err))
		}
	}
	return errors.Join(errs...)
}
