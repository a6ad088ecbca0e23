//go:build darwin
// +build darwin

package executor

import (
	"context"

	"go.uber.org/zap"
)

// OsaScriptRunner runs AppleScript through osascript
type OsaScriptRunner struct {
	logger *zap.Logger
	runner *Runner
}

// NewScriptRunner creates the platform script runner (macOS implementation)
func NewScriptRunner(logger *zap.Logger, runner *Runner) *OsaScriptRunner {
	return &OsaScriptRunner{logger: logger, runner: runner}
}

// Run executes script and returns its result in recompilable source form
func (r *OsaScriptRunner) Run(ctx context.Context, script string) (string, error) {
	return r.runner.Output(ctx, "/usr/bin/osascript", "-s", "s", "-e", script)
}
