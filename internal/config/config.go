// Package config defines the configuration types and loading for the
// sandbox runtime. Settings files are JSONC (JSON with comments).
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/svngoku/sandbox-runtime/internal/errdefs"
)

// Config is the main sandbox runtime configuration.
type Config struct {
	Network    NetworkConfig    `json:"network"`
	Filesystem FilesystemConfig `json:"filesystem"`

	// Docker selects the container-based execution strategy when present.
	Docker *DockerConfig `json:"docker,omitempty"`

	// IgnoreViolations maps a command name to target patterns whose
	// violations should be suppressed from the violation store.
	IgnoreViolations map[string][]string `json:"ignoreViolations,omitempty"`

	// EnableWeakerNestedSandbox relaxes network namespace isolation so the
	// sandbox can run inside containers that lack CAP_NET_ADMIN.
	EnableWeakerNestedSandbox bool `json:"enableWeakerNestedSandbox,omitempty"`
}

// NetworkConfig defines network restrictions.
type NetworkConfig struct {
	// AllowedDomains lists domain patterns to allow. Empty means
	// allow-unless-denied; non-empty means deny-unless-allowed.
	AllowedDomains []string `json:"allowedDomains"`

	// DeniedDomains lists domain patterns to deny. Denial always wins.
	DeniedDomains []string `json:"deniedDomains"`

	AllowUnixSockets    []string `json:"allowUnixSockets,omitempty"`
	AllowAllUnixSockets bool     `json:"allowAllUnixSockets,omitempty"`
	AllowLocalBinding   bool     `json:"allowLocalBinding,omitempty"`
}

// FilesystemConfig defines filesystem restrictions. The default stance is
// read-everything, write-nothing; DenyWrite overrides AllowWrite.
type FilesystemConfig struct {
	DenyRead   []string `json:"denyRead"`
	AllowWrite []string `json:"allowWrite"`
	DenyWrite  []string `json:"denyWrite"`
}

// DockerConfig describes the container execution strategy.
type DockerConfig struct {
	Image       string            `json:"image"`
	Name        string            `json:"name,omitempty"`
	Workdir     string            `json:"workdir,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Volumes     []string          `json:"volumes,omitempty"`
	NetworkMode string            `json:"networkMode,omitempty"`
	AutoRemove  *bool             `json:"autoRemove,omitempty"`
	User        string            `json:"user,omitempty"`
	CPULimit    float64           `json:"cpuLimit,omitempty"`
	MemoryLimit int64             `json:"memoryLimit,omitempty"`
}

// ShouldAutoRemove reports whether the container is removed after execution.
// Defaults to true when unset.
func (d *DockerConfig) ShouldAutoRemove() bool {
	return d.AutoRemove == nil || *d.AutoRemove
}

// Default returns the default configuration: empty domain lists and a
// read-everything/write-nothing filesystem.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			AllowedDomains: []string{},
			DeniedDomains:  []string{},
		},
		Filesystem: FilesystemConfig{
			DenyRead:   []string{},
			AllowWrite: []string{},
			DenyWrite:  []string{},
		},
	}
}

// DefaultSettingsPath returns the default settings file path.
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".srt-settings.json"
	}
	return filepath.Join(home, ".srt-settings.json")
}

// Load reads a settings file. A missing or empty file yields (nil, nil) so
// callers can fall back to Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided settings path - intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errdefs.Wrap(errdefs.KindIo, err, "failed to read settings file")
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var cfg Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return nil, errdefs.Wrap(errdefs.KindSerialization, err, "invalid JSON in settings file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration as pretty-printed JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errdefs.Wrap(errdefs.KindSerialization, err, "failed to encode settings")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // settings are not secret
		return errdefs.Wrap(errdefs.KindIo, err, "failed to write settings file")
	}
	return nil
}

// Validate checks the configuration for structural mistakes. Domain pattern
// compilation is the proxy filter's job; this catches shapes that can never
// be a valid pattern or path.
func (c *Config) Validate() error {
	for _, domain := range c.Network.AllowedDomains {
		if err := validateDomainPattern(domain); err != nil {
			return errdefs.Newf(errdefs.KindConfig, "invalid allowed domain %q: %w", domain, err)
		}
	}
	for _, domain := range c.Network.DeniedDomains {
		if err := validateDomainPattern(domain); err != nil {
			return errdefs.Newf(errdefs.KindConfig, "invalid denied domain %q: %w", domain, err)
		}
	}

	if slices.Contains(c.Filesystem.DenyRead, "") {
		return errdefs.New(errdefs.KindConfig, "filesystem.denyRead contains empty path")
	}
	if slices.Contains(c.Filesystem.AllowWrite, "") {
		return errdefs.New(errdefs.KindConfig, "filesystem.allowWrite contains empty path")
	}
	if slices.Contains(c.Filesystem.DenyWrite, "") {
		return errdefs.New(errdefs.KindConfig, "filesystem.denyWrite contains empty path")
	}

	if c.Docker != nil && c.Docker.Image == "" {
		return errdefs.New(errdefs.KindConfig, "docker.image is required when docker is configured")
	}

	return nil
}

func validateDomainPattern(pattern string) error {
	if pattern == "" {
		return errdefs.New(errdefs.KindConfig, "empty domain pattern")
	}
	if strings.Contains(pattern, "://") || strings.Contains(pattern, "/") {
		return errdefs.New(errdefs.KindConfig, "domain pattern cannot contain protocol or path")
	}
	if strings.ContainsAny(pattern, " \t") {
		return errdefs.New(errdefs.KindConfig, "domain pattern cannot contain whitespace")
	}
	return nil
}
