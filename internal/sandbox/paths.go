package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/svngoku/sandbox-runtime/internal/errdefs"
)

// ExpandPath performs shell-style expansion on a policy path: a leading "~"
// becomes the user's home directory and $VAR references are substituted from
// the environment. Failure to resolve home is a configuration error.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errdefs.Newf(errdefs.KindConfig, "failed to expand path %q: %w", path, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(os.ExpandEnv(path)), nil
}

// ContainsGlobChars reports whether a path uses glob metacharacters.
func ContainsGlobChars(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

// MatchTarget reports whether a violation target matches an ignore pattern.
// Glob patterns use doublestar semantics (so "**/node_modules/**" works);
// plain patterns match by substring.
func MatchTarget(pattern, target string) bool {
	if ContainsGlobChars(pattern) {
		ok, err := doublestar.Match(pattern, target)
		return err == nil && ok
	}
	return strings.Contains(target, pattern)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
