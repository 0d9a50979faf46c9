// Package config loads YAML configuration for the relay and board processes.
//
// Files may reference environment variables as ${VAR}; they are expanded
// before parsing. Load* functions apply defaults and validate.
package config
