package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/svngoku/sandbox-runtime/internal/errdefs"
	"github.com/svngoku/sandbox-runtime/internal/platform"
)

// SeccompSource locates pre-built seccomp BPF artifacts. The runtime never
// compiles filters itself; it only consumes a filter blob and a helper that
// applies the filter before exec'ing the command.
type SeccompSource struct {
	baseDir string
}

// NewSeccompSource creates a source rooted at baseDir. An empty baseDir uses
// the SRT_SECCOMP_DIR environment variable, falling back to a "seccomp"
// directory next to the running executable.
func NewSeccompSource(baseDir string) *SeccompSource {
	if baseDir == "" {
		baseDir = os.Getenv("SRT_SECCOMP_DIR")
	}
	if baseDir == "" {
		if exe, err := os.Executable(); err == nil {
			baseDir = filepath.Join(filepath.Dir(exe), "seccomp")
		} else {
			baseDir = "seccomp"
		}
	}
	return &SeccompSource{baseDir: baseDir}
}

// FilterPath returns the pre-built unix-socket-blocking BPF filter for an
// architecture, or a Config error when none is installed.
func (s *SeccompSource) FilterPath(arch string) (string, error) {
	path := filepath.Join(s.baseDir, arch, "unix-block.bpf")
	if !fileExists(path) {
		return "", errdefs.Newf(errdefs.KindConfig, "seccomp BPF filter not found for architecture %s", arch)
	}
	return path, nil
}

// HelperPath returns the helper script that installs a filter and execs the
// wrapped command.
func (s *SeccompSource) HelperPath() (string, error) {
	path := filepath.Join(s.baseDir, "apply-seccomp-and-exec.py")
	if !fileExists(path) {
		return "", errdefs.New(errdefs.KindConfig, "seccomp helper not found")
	}
	return path, nil
}

// WrapWithFilter wraps command so the filter for the current architecture is
// applied before it runs.
func (s *SeccompSource) WrapWithFilter(command string) (string, error) {
	filterPath, err := s.FilterPath(platform.Arch())
	if err != nil {
		return "", err
	}
	helperPath, err := s.HelperPath()
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("python3 %s %s -- %s",
		ShellQuoteSingle(helperPath),
		ShellQuoteSingle(filterPath),
		command,
	), nil
}
