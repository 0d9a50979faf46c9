package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// read parses a YAML file into out after expanding ${VAR} references.
func read(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), out); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

// LoadRelay reads a relay config file without defaults or validation.
func LoadRelay(path string) (*RelayConfig, error) {
	var cfg RelayConfig
	if err := read(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadRelayAndValidate loads a relay config, applies defaults, and validates.
func LoadRelayAndValidate(path string) (*RelayConfig, error) {
	cfg, err := LoadRelay(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadBoard reads a board config file without defaults or validation.
func LoadBoard(path string) (*BoardConfig, error) {
	var cfg BoardConfig
	if err := read(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadBoardWithDefaults loads a board config and applies default values.
func LoadBoardWithDefaults(path string) (*BoardConfig, error) {
	cfg, err := LoadBoard(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadBoardAndValidate loads a board config, applies defaults, and validates.
func LoadBoardAndValidate(path string) (*BoardConfig, error) {
	cfg, err := LoadBoardWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// DefaultRelay returns a relay config with every default applied.
func DefaultRelay() *RelayConfig {
	cfg := &RelayConfig{}
	cfg.applyDefaults()
	return cfg
}
