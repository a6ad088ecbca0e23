package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// ErrUnsupportedPlatform is returned by runners that have no implementation on this OS
var ErrUnsupportedPlatform = errors.New("not supported on this platform")

// Runner executes external commands and captures their output
type Runner struct {
	logger *zap.Logger
}

// NewRunner creates a new command runner
func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{logger: logger}
}

// Output runs name with args and returns its trimmed standard output.
// Standard error is folded into the returned error.
func (r *Runner) Output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		if errOut.Len() > 0 {
			return "", fmt.Errorf("%s failed: %w (stderr: %s)", name, err, strings.TrimSpace(errOut.String()))
		}
		return "", fmt.Errorf("%s failed: %w", name, err)
	}

	r.logger.Debug("Command finished",
		zap.String("command", name),
		zap.Int("bytes", out.Len()))

	return strings.TrimSpace(out.String()), nil
}
