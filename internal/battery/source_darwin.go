//go:build darwin
// +build darwin

package battery

import (
	"github.com/genricoloni/notchd/internal/domain"
	"github.com/genricoloni/notchd/internal/executor"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// NewPowerSource returns a pmset source polling at the configured interval
func NewPowerSource(logger *zap.Logger, cfg domain.Config, clock clockwork.Clock, runner *executor.Runner) domain.PowerSource {
	return NewPmsetSource(logger, clock, runner, cfg.GetBatteryPoll())
}
