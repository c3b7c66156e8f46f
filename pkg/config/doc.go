// Package config provides configuration management for the dotup application.
//
// It wraps other package configuration to provide a single API for
// loading, validating, and writing configuration files in YAML format.
// A machine-local overlay (config.local.yaml) can sit next to the main
// configuration to add managers and rules for a single host.
package config
