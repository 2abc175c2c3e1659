package sandbox

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/svngoku/sandbox-runtime/internal/config"
	"github.com/svngoku/sandbox-runtime/internal/errdefs"
	"github.com/svngoku/sandbox-runtime/internal/platform"
	"github.com/svngoku/sandbox-runtime/internal/proxy"
)

// Manager owns the lifecycle of a sandbox session: it starts the filtering
// proxies, builds platform isolation profiles, executes commands, and tears
// everything down on Reset.
type Manager struct {
	mu sync.Mutex

	config     *config.Config
	httpProxy  *proxy.HTTPProxy
	socksProxy *proxy.SOCKSProxy
	violations *ViolationStore

	httpPort  int
	socksPort int

	debug       bool
	monitor     bool
	initialized bool
}

// NewManager validates the configuration and returns an uninitialized
// manager. No resources are bound until Initialize.
func NewManager(cfg *config.Config, debug, monitor bool) (*Manager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := NewViolationStore(debug)
	store.SetIgnoreRules(cfg.IgnoreViolations)

	return &Manager{
		config:     cfg,
		violations: store,
		debug:      debug,
		monitor:    monitor,
	}, nil
}

// Initialize starts the HTTP and SOCKS5 filtering proxies on ephemeral
// localhost ports and, on macOS, the violation observer. Idempotent.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	filter, err := proxy.NewFilter(m.config.Network.AllowedDomains, m.config.Network.DeniedDomains, m.debug)
	if err != nil {
		return err
	}

	httpProxy := proxy.NewHTTPProxy(filter, m.debug, m.monitor)
	httpPort, err := httpProxy.Start()
	if err != nil {
		return err
	}

	socksProxy := proxy.NewSOCKSProxy(filter, m.debug, m.monitor)
	socksPort, err := socksProxy.Start()
	if err != nil {
		httpProxy.Stop()
		return err
	}

	m.httpProxy = httpProxy
	m.socksProxy = socksProxy
	m.httpPort = httpPort
	m.socksPort = socksPort

	if err := m.violations.StartObserver(); err != nil {
		m.logDebug("violation observer unavailable: %v", err)
	}

	m.initialized = true
	m.logDebug("initialized with http proxy on %d and socks proxy on %d", httpPort, socksPort)
	return nil
}

// WrapCommand produces the platform-specific command line that runs the
// given shell command under sandbox restrictions. Requires Initialize.
func (m *Manager) WrapCommand(command string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return "", errdefs.New(errdefs.KindExecution, "sandbox manager is not initialized")
	}

	builder, err := NewProfileBuilder(platform.Detect(), m.config, m.httpPort, m.socksPort, m.debug)
	if err != nil {
		return "", err
	}
	return builder.WrapCommand(command)
}

// Execute runs a shell command under sandbox restrictions and returns its
// exit code. With a Docker configuration the command runs in a container;
// otherwise it runs on the host wrapped in the platform profile.
func (m *Manager) Execute(ctx context.Context, command string) (int, error) {
	if m.config.Docker != nil {
		return m.executeInDocker(ctx, command)
	}

	wrapped, err := m.WrapCommand(command)
	if err != nil {
		return -1, err
	}
	return RunShell(ctx, wrapped)
}

func (m *Manager) executeInDocker(ctx context.Context, command string) (int, error) {
	ds, err := NewDockerSandbox(m.config.Docker, m.debug)
	if err != nil {
		return -1, err
	}
	defer ds.Close()

	if err := ds.CreateContainer(ctx); err != nil {
		return -1, err
	}
	if m.config.Docker.ShouldAutoRemove() {
		defer func() {
			if err := ds.RemoveContainer(context.Background()); err != nil {
				m.logDebug("container cleanup failed: %v", err)
			}
		}()
	}
	if err := ds.StartContainer(ctx); err != nil {
		return -1, err
	}
	return ds.ExecuteCommand(ctx, command)
}

// Reset stops the proxies and the violation observer and returns the
// manager to its uninitialized state. Idempotent.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil
	}

	var firstErr error
	if m.httpProxy != nil {
		if err := m.httpProxy.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.httpProxy = nil
	}
	if m.socksProxy != nil {
		if err := m.socksProxy.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.socksProxy = nil
	}
	m.violations.StopObserver()

	m.httpPort = 0
	m.socksPort = 0
	m.initialized = false
	m.logDebug("reset complete")
	return firstErr
}

// ViolationStore exposes the manager's violation log for subscription and
// inspection.
func (m *Manager) ViolationStore() *ViolationStore {
	return m.violations
}

// HTTPPort returns the bound HTTP proxy port, or 0 before Initialize.
func (m *Manager) HTTPPort() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.httpPort
}

// SOCKSPort returns the bound SOCKS5 proxy port, or 0 before Initialize.
func (m *Manager) SOCKSPort() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.socksPort
}

// Initialized reports whether the proxies are running.
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

func (m *Manager) logDebug(format string, args ...any) {
	if m.debug {
		fmt.Fprintf(os.Stderr, "[srt:manager] "+format+"\n", args...)
	}
}
