package sandbox

import (
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/svngoku/sandbox-runtime/internal/errdefs"
)

// CommandExists reports whether an executable is resolvable on PATH.
func CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// CommandPath resolves an executable on PATH or returns a CommandNotFound
// error.
func CommandPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", errdefs.Newf(errdefs.KindCommandNotFound, "%s: %w", name, err)
	}
	return path, nil
}

// RunShell runs a command string through sh -c with inherited stdio and
// returns the child's exit code verbatim. A non-zero exit is not an error;
// failure to spawn is.
func RunShell(ctx context.Context, command string) (int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command) //nolint:gosec // wrapped invocation built by the profile builders - intentional
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, errdefs.Wrap(errdefs.KindExecution, err, "failed to run command")
	}
	return 0, nil
}
