package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Template renders the default configuration as devctl.toml.
func Template() (string, error) {
	def := Default()
	data, err := toml.Marshal(fileConfig{
		Timeout:      def.Timeout.String(),
		PollInterval: def.PollInterval.String(),
		KillGrace:    def.KillGrace.String(),
		LogLevel:     def.LogLevel,
		ADB:          def.ADB,
		Fastboot:     def.Fastboot,
		Heimdall:     def.Heimdall,
	})
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return string(data), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
