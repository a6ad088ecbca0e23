//go:build linux
// +build linux

package battery

import (
	"github.com/genricoloni/notchd/internal/domain"
	"github.com/genricoloni/notchd/internal/executor"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// NewPowerSource returns the UPower source
func NewPowerSource(logger *zap.Logger, _ domain.Config, _ clockwork.Clock, _ *executor.Runner) domain.PowerSource {
	return NewUPowerSource(logger)
}
