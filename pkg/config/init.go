package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const configHeader = `# DittoUDP Configuration File
#
# Settings may be overridden with DITTOUDP_* environment variables, where
# nested keys are joined with underscores, e.g.:
#
#   DITTOUDP_LOGGING_LEVEL=DEBUG
#   DITTOUDP_ADAPTERS_UDP_PORT=9000
#
# peers.type selects the peer table: memory or badger. Only the section
# named by the type is read.

`

// InitConfig writes a configuration file with default values to the
// default location and returns its path.
//
// Fails if the file already exists, unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a configuration file with default values to path,
// creating parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as YAML preceded by a header.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var b strings.Builder
	b.WriteString(configHeader)

	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	return b.String(), nil
}
