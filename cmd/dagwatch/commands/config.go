package commands

import (
	"github.com/dagwatch/dagwatch/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Dagwatch config.Config `mapstructure:",squash"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Dagwatch: *config.NewDefaultConfig(),
	}
}
