package sandbox

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/svngoku/sandbox-runtime/internal/platform"
)

// KernelVersion returns the running kernel's major and minor version parsed
// from uname. Returns zeros when the release string is unparsable.
func KernelVersion() (major, minor int) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return 0, 0
	}

	release := unix.ByteSliceToString(uts.Release[:])
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return 0, 0
	}

	major, _ = strconv.Atoi(parts[0])
	// Strip any trailing non-numeric suffix (e.g. "5.15-generic").
	minorStr := parts[1]
	if idx := strings.IndexFunc(minorStr, func(r rune) bool { return r < '0' || r > '9' }); idx >= 0 {
		minorStr = minorStr[:idx]
	}
	minor, _ = strconv.Atoi(minorStr)
	return major, minor
}

// CanUnshareNetwork reports whether the kernel supports unprivileged network
// namespace creation (user namespaces landed in 3.8). Callers additionally
// disable it for weaker nested sandboxes.
func CanUnshareNetwork() bool {
	if platform.Detect() != platform.Linux {
		return false
	}
	major, minor := KernelVersion()
	return major > 3 || (major == 3 && minor >= 8)
}
