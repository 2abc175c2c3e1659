// Package srt provides a public API for sandboxing commands.
package srt

import (
	"github.com/svngoku/sandbox-runtime/internal/config"
	"github.com/svngoku/sandbox-runtime/internal/sandbox"
)

// Config is the configuration for the sandbox runtime.
type Config = config.Config

// NetworkConfig defines network restrictions.
type NetworkConfig = config.NetworkConfig

// FilesystemConfig defines filesystem restrictions.
type FilesystemConfig = config.FilesystemConfig

// DockerConfig defines container execution settings.
type DockerConfig = config.DockerConfig

// Manager handles sandbox initialization and command execution.
type Manager = sandbox.Manager

// Violation describes one observed policy breach.
type Violation = sandbox.Violation

// ViolationStore collects violations and fans them out to subscribers.
type ViolationStore = sandbox.ViolationStore

// Subscriber receives violations as they are recorded.
type Subscriber = sandbox.Subscriber

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc = sandbox.SubscriberFunc

// NewManager creates a new sandbox manager.
// If debug is true, verbose logging is enabled.
// If monitor is true, only violations (blocked requests) are logged.
func NewManager(cfg *Config, debug, monitor bool) (*Manager, error) {
	return sandbox.NewManager(cfg, debug, monitor)
}

// DefaultConfig returns the default configuration: network allowed unless
// denied, filesystem read-everything/write-nothing.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig loads configuration from a file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultSettingsPath returns the default settings file path.
func DefaultSettingsPath() string {
	return config.DefaultSettingsPath()
}
