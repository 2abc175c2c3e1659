package sandbox

import (
	"github.com/svngoku/sandbox-runtime/internal/config"
	"github.com/svngoku/sandbox-runtime/internal/errdefs"
	"github.com/svngoku/sandbox-runtime/internal/platform"
)

// ProfileBuilder translates the filesystem policy and the proxy ports into a
// concrete wrapped invocation for one isolation mechanism.
type ProfileBuilder interface {
	// WrapCommand embeds command in the platform's isolation wrapper.
	WrapCommand(command string) (string, error)
}

// NewProfileBuilder selects the isolation mechanism for the given platform.
// Construction verifies the platform's isolation executable is present;
// absence is fatal, there is no fallback between strategies.
func NewProfileBuilder(plat platform.Platform, cfg *config.Config, httpPort, socksPort int, debug bool) (ProfileBuilder, error) {
	switch plat {
	case platform.Linux:
		return NewLinuxBuilder(cfg, httpPort, socksPort, debug)
	case platform.MacOS:
		return NewMacOSBuilder(cfg, httpPort, socksPort, debug)
	default:
		return nil, errdefs.Newf(errdefs.KindUnsupportedPlatform, "platform %s is not supported", plat)
	}
}
