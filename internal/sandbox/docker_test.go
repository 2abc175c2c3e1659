package sandbox

import (
	"sort"
	"testing"

	"github.com/docker/docker/api/types/mount"
)

func TestDockerEnvList(t *testing.T) {
	if got := dockerEnvList(nil); got != nil {
		t.Errorf("dockerEnvList(nil) = %v, want nil", got)
	}

	got := dockerEnvList(map[string]string{"CI": "true", "LANG": "C"})
	sort.Strings(got)
	want := []string{"CI=true", "LANG=C"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("dockerEnvList() = %v, want %v", got, want)
	}
}

func TestDockerMounts(t *testing.T) {
	mounts, err := dockerMounts([]string{"/src:/work", "/data:/data:ro"})
	if err != nil {
		t.Fatalf("dockerMounts() error = %v", err)
	}
	if len(mounts) != 2 {
		t.Fatalf("got %d mounts, want 2", len(mounts))
	}

	if mounts[0].Type != mount.TypeBind || mounts[0].Source != "/src" || mounts[0].Target != "/work" || mounts[0].ReadOnly {
		t.Errorf("mount[0] = %+v", mounts[0])
	}
	if mounts[1].Source != "/data" || !mounts[1].ReadOnly {
		t.Errorf("mount[1] = %+v", mounts[1])
	}
}

func TestDockerMountsInvalid(t *testing.T) {
	tests := []struct {
		name string
		spec string
	}{
		{"no separator", "/just-a-path"},
		{"too many parts", "a:b:c:d"},
		{"bad mode", "/src:/work:rx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := dockerMounts([]string{tt.spec}); err == nil {
				t.Errorf("dockerMounts(%q) should fail", tt.spec)
			}
		})
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef0123"); got != "0123456789ab" {
		t.Errorf("shortID() = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID() = %q", got)
	}
}
