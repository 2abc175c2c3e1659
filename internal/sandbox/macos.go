package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/svngoku/sandbox-runtime/internal/config"
	"github.com/svngoku/sandbox-runtime/internal/errdefs"
)

// MacOSBuilder wraps commands with sandbox-exec and a generated seatbelt
// profile. Later profile statements override earlier ones for the same
// resource, which is how the policy's own precedence (deny over allow) is
// expressed.
type MacOSBuilder struct {
	cfg       *config.Config
	httpPort  int
	socksPort int
	debug     bool
}

// NewMacOSBuilder checks for sandbox-exec and constructs the builder. A
// missing executable means this host cannot sandbox at all.
func NewMacOSBuilder(cfg *config.Config, httpPort, socksPort int, debug bool) (*MacOSBuilder, error) {
	if !CommandExists("sandbox-exec") {
		return nil, errdefs.New(errdefs.KindUnsupportedPlatform, "sandbox-exec is not available on this system")
	}

	return &MacOSBuilder{
		cfg:       cfg,
		httpPort:  httpPort,
		socksPort: socksPort,
		debug:     debug,
	}, nil
}

// GenerateProfile renders the seatbelt profile text. Statement order matters:
// the deny-default baseline comes first and the denyWrite rules come last so
// they take the highest precedence.
func (b *MacOSBuilder) GenerateProfile() (string, error) {
	var profile strings.Builder

	profile.WriteString("(version 1)\n")
	profile.WriteString("(deny default)\n")

	// The process needs these to run at all.
	profile.WriteString("(allow process*)\n")
	profile.WriteString("(allow sysctl*)\n")
	profile.WriteString("(allow mach*)\n")

	b.writeNetworkRules(&profile)

	if err := b.writeFilesystemRules(&profile); err != nil {
		return "", err
	}

	b.logDebug("generated profile:\n%s", profile.String())
	return profile.String(), nil
}

// writeNetworkRules permits outbound traffic only toward the two loopback
// proxies, plus any configured unix sockets and local binding.
func (b *MacOSBuilder) writeNetworkRules(profile *strings.Builder) {
	if b.httpPort > 0 {
		fmt.Fprintf(profile, "(allow network* (remote ip \"localhost:%d\"))\n", b.httpPort)
	}
	if b.socksPort > 0 {
		fmt.Fprintf(profile, "(allow network* (remote ip \"localhost:%d\"))\n", b.socksPort)
	}

	if b.cfg.Network.AllowLocalBinding {
		profile.WriteString("(allow network-bind (local ip \"localhost:*\"))\n")
		profile.WriteString("(allow network-inbound (local ip \"localhost:*\"))\n")
	}

	if b.cfg.Network.AllowAllUnixSockets {
		profile.WriteString("(allow network* (subpath \"/\"))\n")
	} else {
		for _, socketPath := range b.cfg.Network.AllowUnixSockets {
			expanded, err := ExpandPath(socketPath)
			if err != nil {
				continue
			}
			fmt.Fprintf(profile, "(allow network* (subpath %s))\n", escapeProfilePath(expanded))
		}
	}
}

// writeFilesystemRules emits reads-then-writes in policy precedence order:
// allow all reads, deny the denyRead subtrees, allow the allowWrite
// subtrees, then deny the denyWrite subtrees last.
func (b *MacOSBuilder) writeFilesystemRules(profile *strings.Builder) error {
	fs := b.cfg.Filesystem

	profile.WriteString("(allow file-read*)\n")

	for _, path := range fs.DenyRead {
		expanded, err := ExpandPath(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(profile, "(deny file-read* (subpath %s))\n", escapeProfilePath(expanded))
	}

	for _, path := range fs.AllowWrite {
		expanded, err := ExpandPath(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(profile, "(allow file-write* (subpath %s))\n", escapeProfilePath(expanded))
	}

	for _, path := range fs.DenyWrite {
		expanded, err := ExpandPath(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(profile, "(deny file-write* (subpath %s))\n", escapeProfilePath(expanded))
	}

	return nil
}

// WrapCommand writes the profile to a process-scoped temp file and builds
// the sandbox-exec invocation.
func (b *MacOSBuilder) WrapCommand(command string) (string, error) {
	profile, err := b.GenerateProfile()
	if err != nil {
		return "", err
	}

	profilePath := filepath.Join(os.TempDir(), fmt.Sprintf("srt-profile-%d.sb", os.Getpid()))
	if err := os.WriteFile(profilePath, []byte(profile), 0o600); err != nil {
		return "", errdefs.Wrap(errdefs.KindIo, err, "failed to write sandbox profile")
	}

	wrapped := fmt.Sprintf("sandbox-exec -f %s sh -c %s",
		ShellQuoteSingle(profilePath),
		ShellQuoteSingle(command),
	)

	b.logDebug("wrapped command: %s", wrapped)
	return wrapped, nil
}

// escapeProfilePath quotes a path for embedding in a seatbelt profile.
func escapeProfilePath(path string) string {
	return fmt.Sprintf("%q", path)
}

func (b *MacOSBuilder) logDebug(format string, args ...any) {
	if b.debug {
		fmt.Fprintf(os.Stderr, "[srt:macos] "+format+"\n", args...)
	}
}
