package sandbox

import (
	"strings"
	"testing"

	"github.com/svngoku/sandbox-runtime/internal/config"
)

// testMacOSBuilder constructs a builder directly so profile generation can
// be tested on any host.
func testMacOSBuilder(cfg *config.Config) *MacOSBuilder {
	return &MacOSBuilder{
		cfg:       cfg,
		httpPort:  18080,
		socksPort: 18081,
	}
}

func TestMacOSProfileBaseline(t *testing.T) {
	b := testMacOSBuilder(config.Default())

	profile, err := b.GenerateProfile()
	if err != nil {
		t.Fatalf("GenerateProfile() error = %v", err)
	}

	if !strings.HasPrefix(profile, "(version 1)\n(deny default)\n") {
		t.Errorf("profile must open with version and deny default:\n%s", profile)
	}
	for _, want := range []string{
		"(allow process*)",
		"(allow sysctl*)",
		"(allow mach*)",
		"(allow file-read*)",
		`(allow network* (remote ip "localhost:18080"))`,
		`(allow network* (remote ip "localhost:18081"))`,
	} {
		if !strings.Contains(profile, want) {
			t.Errorf("profile missing %q:\n%s", want, profile)
		}
	}
	if strings.Contains(profile, "network-bind") {
		t.Error("local binding must not be allowed by default")
	}
}

func TestMacOSProfileWriteRuleOrder(t *testing.T) {
	cfg := config.Default()
	cfg.Filesystem.DenyRead = []string{"/secrets"}
	cfg.Filesystem.AllowWrite = []string{"/work"}
	cfg.Filesystem.DenyWrite = []string{"/work/.git"}
	b := testMacOSBuilder(cfg)

	profile, err := b.GenerateProfile()
	if err != nil {
		t.Fatalf("GenerateProfile() error = %v", err)
	}

	allowRead := strings.Index(profile, "(allow file-read*)")
	denyRead := strings.Index(profile, `(deny file-read* (subpath "/secrets"))`)
	allowWrite := strings.Index(profile, `(allow file-write* (subpath "/work"))`)
	denyWrite := strings.Index(profile, `(deny file-write* (subpath "/work/.git"))`)

	for name, idx := range map[string]int{
		"allow read": allowRead, "deny read": denyRead,
		"allow write": allowWrite, "deny write": denyWrite,
	} {
		if idx < 0 {
			t.Fatalf("profile missing %s rule:\n%s", name, profile)
		}
	}

	// Later statements win, so the order encodes the policy precedence.
	if !(allowRead < denyRead && denyRead < allowWrite && allowWrite < denyWrite) {
		t.Errorf("rules out of precedence order:\n%s", profile)
	}
}

func TestMacOSProfileLocalBinding(t *testing.T) {
	cfg := config.Default()
	cfg.Network.AllowLocalBinding = true
	b := testMacOSBuilder(cfg)

	profile, err := b.GenerateProfile()
	if err != nil {
		t.Fatalf("GenerateProfile() error = %v", err)
	}
	if !strings.Contains(profile, `(allow network-bind (local ip "localhost:*"))`) {
		t.Errorf("profile missing network-bind rule:\n%s", profile)
	}
	if !strings.Contains(profile, `(allow network-inbound (local ip "localhost:*"))`) {
		t.Errorf("profile missing network-inbound rule:\n%s", profile)
	}
}

func TestMacOSProfileUnixSockets(t *testing.T) {
	t.Run("all sockets", func(t *testing.T) {
		cfg := config.Default()
		cfg.Network.AllowAllUnixSockets = true
		profile, err := testMacOSBuilder(cfg).GenerateProfile()
		if err != nil {
			t.Fatalf("GenerateProfile() error = %v", err)
		}
		if !strings.Contains(profile, `(allow network* (subpath "/"))`) {
			t.Errorf("profile missing blanket socket rule:\n%s", profile)
		}
	})

	t.Run("specific sockets", func(t *testing.T) {
		cfg := config.Default()
		cfg.Network.AllowUnixSockets = []string{"/var/run/docker.sock"}
		profile, err := testMacOSBuilder(cfg).GenerateProfile()
		if err != nil {
			t.Fatalf("GenerateProfile() error = %v", err)
		}
		if !strings.Contains(profile, `(allow network* (subpath "/var/run/docker.sock"))`) {
			t.Errorf("profile missing socket rule:\n%s", profile)
		}
		if strings.Contains(profile, `(allow network* (subpath "/"))`) {
			t.Error("blanket socket rule must not appear for a specific list")
		}
	})
}

func TestEscapeProfilePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/plain", `"/plain"`},
		{`/with"quote`, `"/with\"quote"`},
		{"/with space", `"/with space"`},
	}

	for _, tt := range tests {
		if got := escapeProfilePath(tt.path); got != tt.want {
			t.Errorf("escapeProfilePath(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}
