package quarantine

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Config defines where quarantined spans are stored and how long they are kept.
type Config struct {
	// Path is the BoltDB file holding quarantined spans
	Path string `mapstructure:"path"`

	// Retention is how long a record is kept before pruning removes it
	Retention time.Duration `mapstructure:"retention"`

	// PruneSchedule is a cron expression for automatic pruning, empty disables it
	PruneSchedule string `mapstructure:"prune_schedule"`
}

// DefaultConfig returns a configuration that keeps records for a week and prunes
// them hourly. Path must still be set.
func DefaultConfig() Config {
	return Config{
		Retention:     7 * 24 * time.Hour,
		PruneSchedule: "@hourly",
	}
}

// Validate checks if the quarantine configuration is valid
func (cfg Config) Validate() error {
	if cfg.Path == "" {
		return errors.New("path must be set")
	}
	if cfg.Retention < 0 {
		return fmt.Errorf("retention must not be negative, got %s", cfg.Retention)
	}
	if cfg.PruneSchedule != "" {
		if cfg.Retention == 0 {
			return errors.New("retention must be set when prune_schedule is set")
		}
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			return fmt.Errorf("invalid prune_schedule %q: %w", cfg.PruneSchedule, err)
		}
	}
	return nil
}
