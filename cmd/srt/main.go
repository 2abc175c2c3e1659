// Package main implements the srt CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/svngoku/sandbox-runtime/internal/config"
	"github.com/svngoku/sandbox-runtime/internal/sandbox"
)

// Build-time variables (set via -ldflags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var (
	debug        bool
	monitor      bool
	settingsPath string
	cmdString    string
	showVersion  bool

	allowDomains []string
	denyDomains  []string
	allowWrite   []string
	denyRead     []string
	denyWrite    []string

	dockerImage   string
	dockerName    string
	dockerWorkdir string

	exitCode int
)

func main() {
	rootCmd := newRootCmd()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = 1
	}
	os.Exit(exitCode)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "srt [flags] -- [command...]",
		Short: "Run commands in a sandbox with network and filesystem restrictions",
		Long: `srt runs commands in a sandboxed environment with network and
filesystem restrictions.

With no configuration, network access is allowed unless a domain is denied.
Listing any allowed domain switches to deny-unless-allowed; denied domains
always win. Configure domains in ~/.srt-settings.json or pass a settings
file with --settings.

Examples:
  srt curl https://example.com               # Allowed (no policy configured)
  srt --deny-domain example.com -- curl -s https://example.com   # Blocked
  srt --allow-domain github.com git fetch    # Deny all but github.com
  srt -c "echo hello && ls"                  # Run with shell expansion
  srt --settings config.json npm install
  srt --docker-image node:22 -c "npm test"   # Run inside a container

Configuration file format (~/.srt-settings.json):
{
  "network": {
    "allowedDomains": ["github.com", "*.npmjs.org"],
    "deniedDomains": []
  },
  "filesystem": {
    "denyRead": [],
    "allowWrite": ["."],
    "denyWrite": []
  }
}`,
		RunE:          runCommand,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
	}

	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	rootCmd.Flags().BoolVarP(&monitor, "monitor", "m", false, "Monitor and log sandbox violations (macOS: log stream, all: proxy denials)")
	rootCmd.Flags().StringVarP(&settingsPath, "settings", "s", "", "Path to settings file (default: $SRT_SETTINGS or ~/.srt-settings.json)")
	rootCmd.Flags().StringVarP(&cmdString, "c", "c", "", "Run command string directly (like sh -c)")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Show version information")

	rootCmd.Flags().StringArrayVar(&allowDomains, "allow-domain", nil, "Allow network access to domain (can be repeated)")
	rootCmd.Flags().StringArrayVar(&denyDomains, "deny-domain", nil, "Deny network access to domain (can be repeated)")
	rootCmd.Flags().StringArrayVar(&allowWrite, "allow-write", nil, "Allow writes to path (can be repeated)")
	rootCmd.Flags().StringArrayVar(&denyRead, "deny-read", nil, "Deny reads from path (can be repeated)")
	rootCmd.Flags().StringArrayVar(&denyWrite, "deny-write", nil, "Deny writes to path (can be repeated)")

	rootCmd.Flags().StringVar(&dockerImage, "docker-image", "", "Run the command inside a container from this image")
	rootCmd.Flags().StringVar(&dockerName, "docker-name", "", "Container name (with --docker-image)")
	rootCmd.Flags().StringVar(&dockerWorkdir, "docker-workdir", "", "Working directory inside the container")

	rootCmd.Flags().SetInterspersed(true)

	return rootCmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Printf("srt - sandbox runtime for running untrusted commands\n")
		fmt.Printf("  Version: %s\n", version)
		fmt.Printf("  Built:   %s\n", buildTime)
		fmt.Printf("  Commit:  %s\n", gitCommit)
		return nil
	}

	var command string
	switch {
	case cmdString != "":
		command = cmdString
	case len(args) > 0:
		command = strings.Join(args, " ")
	default:
		return fmt.Errorf("no command specified. Use -c <command> or provide command arguments")
	}

	if debug {
		fmt.Fprintf(os.Stderr, "[srt] Command: %s\n", command)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyOverrides(cfg)

	manager, err := sandbox.NewManager(cfg, debug, monitor)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	defer func() {
		if err := manager.Reset(); err != nil && debug {
			fmt.Fprintf(os.Stderr, "[srt] Warning: cleanup failed: %v\n", err)
		}
	}()

	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize sandbox: %w", err)
	}

	if monitor {
		manager.ViolationStore().Subscribe(sandbox.SubscriberFunc(func(v sandbox.Violation) {
			fmt.Fprintf(os.Stderr, "[srt] VIOLATION %s: %s\n", v.Kind, v.Target)
		}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code, err := manager.Execute(ctx, command)
	if err != nil {
		return fmt.Errorf("command failed: %w", err)
	}

	// Set the exit code but return nil so deferred cleanup runs
	exitCode = code
	return nil
}

// loadConfig resolves the settings file in precedence order: the --settings
// flag, the SRT_SETTINGS environment variable, then the default path. A
// missing default file falls back to the default configuration.
func loadConfig() (*config.Config, error) {
	path := settingsPath
	if path == "" {
		path = os.Getenv("SRT_SETTINGS")
	}

	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if cfg == nil {
			return nil, fmt.Errorf("settings file not found: %s", path)
		}
		return cfg, nil
	}

	defaultPath := config.DefaultSettingsPath()
	cfg, err := config.Load(defaultPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg == nil {
		if debug {
			fmt.Fprintf(os.Stderr, "[srt] No config found at %s, using default (allow network unless denied)\n", defaultPath)
		}
		cfg = config.Default()
	}
	return cfg, nil
}

// applyOverrides layers the one-off command-line grants on top of the
// loaded configuration.
func applyOverrides(cfg *config.Config) {
	cfg.Network.AllowedDomains = append(cfg.Network.AllowedDomains, allowDomains...)
	cfg.Network.DeniedDomains = append(cfg.Network.DeniedDomains, denyDomains...)
	cfg.Filesystem.AllowWrite = append(cfg.Filesystem.AllowWrite, allowWrite...)
	cfg.Filesystem.DenyRead = append(cfg.Filesystem.DenyRead, denyRead...)
	cfg.Filesystem.DenyWrite = append(cfg.Filesystem.DenyWrite, denyWrite...)

	if dockerImage != "" {
		if cfg.Docker == nil {
			cfg.Docker = &config.DockerConfig{}
		}
		cfg.Docker.Image = dockerImage
		if dockerName != "" {
			cfg.Docker.Name = dockerName
		}
		if dockerWorkdir != "" {
			cfg.Docker.Workdir = dockerWorkdir
		}
	}
}
