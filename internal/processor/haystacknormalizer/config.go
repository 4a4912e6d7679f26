package haystacknormalizer

import (
	"fmt"

	"github.com/deepaksharma/haystack-span-converter/internal/converter"
	"github.com/deepaksharma/haystack-span-converter/internal/quarantine"
	"go.opentelemetry.io/collector/component"
)

// Config defines configuration for the Haystack normalizer processor.
type Config struct {
	converter.Config `mapstructure:",squash"`

	// Quarantine stores spans that fail conversion, nil disables it
	Quarantine *quarantine.Config `mapstructure:"quarantine"`

	// DropInvalid removes spans that fail conversion from the batch
	DropInvalid bool `mapstructure:"drop_invalid"`
}

var _ component.Config = (*Config)(nil)

// Validate checks if the processor configuration is valid
func (cfg *Config) Validate() error {
	if err := cfg.Config.Validate(); err != nil {
		return err
	}
	if cfg.Quarantine != nil {
		if err := cfg.Quarantine.Validate(); err != nil {
			return fmt.Errorf("invalid quarantine: %w", err)
		}
	}
	return nil
}

func createDefaultConfig() component.Config {
	return &Config{
		Config:      converter.DefaultConfig(),
		DropInvalid: true,
	}
}
