// Package config provides application configuration management.
//
// The config package loads configuration from YAML files and environment
// defaults using viper. It covers the server transports, structured logging,
// on-disk storage layout, sandbox backends (local Docker containers and the
// remote managed sandbox service), agent loop defaults, conversation history
// limits, and the retry policy.
//
// Configuration is validated at load time; an invalid configuration fails
// startup rather than surfacing later during a session.
package config
