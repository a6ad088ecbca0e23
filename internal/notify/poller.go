package notify

import (
	"context"
	"sync"
	"time"

	"github.com/genricoloni/notchd/internal/domain"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Poller posts a fixed set of notification names on every tick.
// It stands in for distributed notifications, which Go cannot receive without cgo.
type Poller struct {
	logger   *zap.Logger
	notifier domain.Notifier
	clock    clockwork.Clock
	interval time.Duration
	names    []string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPoller creates a poller for the given names
func NewPoller(logger *zap.Logger, notifier domain.Notifier, clock clockwork.Clock, interval time.Duration, names ...string) *Poller {
	return &Poller{
		logger:   logger,
		notifier: notifier,
		clock:    clock,
		interval: interval,
		names:    names,
	}
}

// Start launches the ticking goroutine. It returns immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	ticker := p.clock.NewTicker(p.interval)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.Chan():
				for _, name := range p.names {
					p.notifier.Post(name)
				}
			}
		}
	}()

	p.logger.Info("Notification poller started",
		zap.Duration("interval", p.interval),
		zap.Strings("names", p.names))
	return nil
}

// Stop halts the poller and waits for the ticking goroutine to exit
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Notification poller stopped")
	return nil
}
