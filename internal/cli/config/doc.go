// Package config provides CLI configuration for tokmesh-cli.
//
// This package defines CLI-specific configuration:
//
//   - spec.go: CLIConfig struct (~/.tokmesh/cli.yaml)
//   - loader.go: Configuration loading, saving, and flag/env merging
//
// Configuration includes the default admin server target, the default
// output format, and a set of named server profiles. No tokmesh-cli flag
// selects a profile by name.
package config
