// Package config provides the embedded default configuration for twinbridge.
package config

import (
	_ "embed"
)

// DefaultConfigYAML contains the embedded default configuration in YAML format.
// It is written out by "twinbridge config create".
//
//go:embed twinrc.default.yaml
var DefaultConfigYAML []byte
