package backend

import (
	"context"
	"errors"
	"os/exec"
)

// CommandRunner spawns one build-tool process and returns its combined
// output and exit code. It is the seam used to fake process execution in
// tests.
type CommandRunner interface {
	Run(ctx context.Context, dir string, env []string, name string, args ...string) (output string, exitCode int)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) (string, int) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = env

	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), exitErr.ExitCode()
		}
		// Spawn failure (binary missing, context cancelled before start).
		return string(out) + err.Error(), -1
	}
	return string(out), 0
}
