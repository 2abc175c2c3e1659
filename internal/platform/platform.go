// Package platform probes the host operating system and architecture so the
// sandbox can pick an isolation strategy once at startup.
package platform

import "runtime"

// Platform identifies an operating system the runtime knows about.
type Platform string

const (
	MacOS   Platform = "macos"
	Linux   Platform = "linux"
	Windows Platform = "windows"
	Unknown Platform = "unknown"
)

func (p Platform) String() string { return string(p) }

// Detect returns the platform the process is running on.
func Detect() Platform {
	switch runtime.GOOS {
	case "darwin":
		return MacOS
	case "linux":
		return Linux
	case "windows":
		return Windows
	default:
		return Unknown
	}
}

// IsSupported reports whether an OS-level sandbox exists for this platform.
func IsSupported() bool {
	p := Detect()
	return p == MacOS || p == Linux
}

// Arch returns the architecture name used to key pre-built seccomp filters.
func Arch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	default:
		return runtime.GOARCH
	}
}
