//go:build !darwin
// +build !darwin

package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// StubScriptRunner is a placeholder for platforms without AppleScript
type StubScriptRunner struct {
	logger *zap.Logger
}

// NewScriptRunner creates a stub script runner for unsupported platforms
func NewScriptRunner(logger *zap.Logger, _ *Runner) *StubScriptRunner {
	logger.Warn("Application scripting is not available on this platform")
	return &StubScriptRunner{logger: logger}
}

// Run always fails on unsupported platforms
func (r *StubScriptRunner) Run(ctx context.Context, script string) (string, error) {
	return "", fmt.Errorf("osascript: %w", ErrUnsupportedPlatform)
}
