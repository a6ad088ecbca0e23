package executor

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// processQueryTimeout bounds a process list scan
const processQueryTimeout = 500 * time.Millisecond

// ProcessChecker answers process-list queries through gopsutil
type ProcessChecker struct {
	logger *zap.Logger
}

// NewProcessChecker creates a new process checker
func NewProcessChecker(logger *zap.Logger) *ProcessChecker {
	return &ProcessChecker{logger: logger}
}

// IsRunning reports whether a process named name exists. Names compare case-insensitively.
func (p *ProcessChecker) IsRunning(name string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), processQueryTimeout)
	defer cancel()

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		p.logger.Debug("Failed to list processes", zap.Error(err))
		return false
	}

	for _, proc := range procs {
		n, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// OSVersion returns the running OS version string (e.g. "15.4.1"), or "" when unknown
func OSVersion(logger *zap.Logger) string {
	ctx, cancel := context.WithTimeout(context.Background(), processQueryTimeout)
	defer cancel()

	_, _, v, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		logger.Warn("Failed to read OS version", zap.Error(err))
		return ""
	}
	return v
}
