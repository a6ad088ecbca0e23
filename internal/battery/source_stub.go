//go:build !linux && !darwin
// +build !linux,!darwin

package battery

import (
	"context"
	"fmt"

	"github.com/genricoloni/notchd/internal/domain"
	"github.com/genricoloni/notchd/internal/executor"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// StubSource reports no power source on unsupported platforms
type StubSource struct {
	changes chan domain.PowerChangeKind
}

// NewPowerSource returns a source that never reports a battery
func NewPowerSource(logger *zap.Logger, _ domain.Config, _ clockwork.Clock, _ *executor.Runner) domain.PowerSource {
	logger.Warn("Battery monitoring is not available on this platform")
	ch := make(chan domain.PowerChangeKind)
	close(ch)
	return &StubSource{changes: ch}
}

// Start always fails on unsupported platforms
func (s *StubSource) Start(ctx context.Context) error {
	return fmt.Errorf("power source: %w", executor.ErrUnsupportedPlatform)
}

// Stop is a no-op
func (s *StubSource) Stop() error { return nil }

// Changes returns a closed channel
func (s *StubSource) Changes() <-chan domain.PowerChangeKind { return s.changes }

// Description returns an empty description
func (s *StubSource) Description() (map[string]any, error) { return map[string]any{}, nil }

// LowPowerMode always reports false
func (s *StubSource) LowPowerMode() bool { return false }
