package sandbox

import (
	"testing"

	"github.com/svngoku/sandbox-runtime/internal/config"
	"github.com/svngoku/sandbox-runtime/internal/errdefs"
	"github.com/svngoku/sandbox-runtime/internal/platform"
)

func TestNewProfileBuilderUnsupportedPlatform(t *testing.T) {
	for _, plat := range []platform.Platform{platform.Windows, platform.Unknown} {
		_, err := NewProfileBuilder(plat, config.Default(), 8080, 8081, false)
		if err == nil {
			t.Fatalf("NewProfileBuilder(%s) should fail", plat)
		}
		if !errdefs.IsKind(err, errdefs.KindUnsupportedPlatform) {
			t.Errorf("error kind = %v, want unsupported platform", errdefs.KindOf(err))
		}
	}
}
