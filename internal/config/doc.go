// Package config handles loading and validation of the client configuration
// from a YAML file, with environment overrides for secrets.
package config
