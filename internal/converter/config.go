package converter

import (
	"fmt"
)

const (
	// IDOverflowTruncate keeps the low 64 bits of ids longer than 16 hex characters.
	IDOverflowTruncate = "truncate"

	// IDOverflowReject fails conversion of spans with ids longer than 16 hex characters.
	IDOverflowReject = "reject"
)

// Config defines how spans are converted.
type Config struct {
	// IDOverflow is the policy for trace, span and parent ids wider than 64 bits
	IDOverflow string `mapstructure:"id_overflow"`
}

// DefaultConfig returns the default converter configuration.
func DefaultConfig() Config {
	return Config{
		IDOverflow: IDOverflowTruncate,
	}
}

// Validate checks if the converter configuration is valid
func (cfg Config) Validate() error {
	switch cfg.IDOverflow {
	case IDOverflowTruncate, IDOverflowReject:
		return nil
	default:
		return fmt.Errorf("id_overflow must be %q or %q, got %q", IDOverflowTruncate, IDOverflowReject, cfg.IDOverflow)
	}
}
