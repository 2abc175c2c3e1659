package sandbox

import (
	"fmt"
	"os"

	"github.com/svngoku/sandbox-runtime/internal/config"
	"github.com/svngoku/sandbox-runtime/internal/errdefs"
)

// LinuxBuilder wraps commands with bubblewrap (bwrap): network and IPC
// namespaces plus a read-only root with explicit read-write binds.
type LinuxBuilder struct {
	cfg        *config.Config
	bwrapPath  string
	httpPort   int
	socksPort  int
	seccomp    *SeccompSource
	unshareNet bool
	debug      bool
}

// NewLinuxBuilder checks for bwrap and constructs the builder. A missing
// bwrap is a fatal CommandNotFound error.
func NewLinuxBuilder(cfg *config.Config, httpPort, socksPort int, debug bool) (*LinuxBuilder, error) {
	bwrapPath, err := CommandPath("bwrap")
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindCommandNotFound, err, "bubblewrap (bwrap) is required on Linux")
	}

	return &LinuxBuilder{
		cfg:        cfg,
		bwrapPath:  bwrapPath,
		httpPort:   httpPort,
		socksPort:  socksPort,
		seccomp:    NewSeccompSource(""),
		unshareNet: !cfg.EnableWeakerNestedSandbox && CanUnshareNetwork(),
		debug:      debug,
	}, nil
}

// WrapCommand builds the bwrap invocation. denyRead/denyWrite have no
// per-path enforcement under this mechanism beyond the blanket read-only
// root; the macOS builder enforces them individually.
func (b *LinuxBuilder) WrapCommand(command string) (string, error) {
	args := []string{b.bwrapPath}

	if b.unshareNet {
		args = append(args, "--unshare-net")
	} else {
		b.logDebug("skipping --unshare-net (weaker nested sandbox)")
	}
	args = append(args, "--unshare-ipc")

	fsArgs, err := b.filesystemArgs()
	if err != nil {
		return "", err
	}
	args = append(args, fsArgs...)

	if b.httpPort > 0 {
		proxyURL := fmt.Sprintf("http://localhost:%d", b.httpPort)
		args = append(args,
			"--setenv", "HTTP_PROXY", proxyURL,
			"--setenv", "HTTPS_PROXY", proxyURL,
		)
	}

	inner := command
	if !b.cfg.Network.AllowAllUnixSockets {
		// Unix socket syscalls are blocked with a pre-built seccomp filter
		// when one is available; its absence only weakens, never aborts.
		if wrapped, err := b.seccomp.WrapWithFilter(command); err == nil {
			inner = wrapped
		} else {
			b.logDebug("seccomp filter unavailable: %v", err)
		}
	}

	args = append(args, "sh", "-c", inner)

	wrapped := ShellQuote(args)
	b.logDebug("wrapped command: %s", wrapped)
	return wrapped, nil
}

// filesystemArgs produces the mount plan: read-only root as the default-deny
// baseline, read-write binds for existing allowWrite paths, fresh /tmp,
// /dev, and /proc.
func (b *LinuxBuilder) filesystemArgs() ([]string, error) {
	args := []string{"--ro-bind", "/", "/"}

	for _, path := range b.cfg.Filesystem.AllowWrite {
		expanded, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		// Paths absent at build time are skipped, not an error.
		if fileExists(expanded) {
			args = append(args, "--bind", expanded, expanded)
		} else {
			b.logDebug("skipping missing allowWrite path: %s", expanded)
		}
	}

	args = append(args,
		"--tmpfs", "/tmp",
		"--dev", "/dev",
		"--proc", "/proc",
	)

	return args, nil
}

func (b *LinuxBuilder) logDebug(format string, args ...any) {
	if b.debug {
		fmt.Fprintf(os.Stderr, "[srt:linux] "+format+"\n", args...)
	}
}
