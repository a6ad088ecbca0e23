package battery

import (
	"context"
	"sync"
	"time"

	"github.com/genricoloni/notchd/internal/domain"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ActivityManager recomputes a BatteryInfo on every power source callback and delivers one
// event per changed field. Events are delivered one at a time, each after a fixed delay.
type ActivityManager struct {
	logger *zap.Logger
	clock  clockwork.Clock
	source domain.PowerSource
	delay  time.Duration

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	prev      *domain.BatteryInfo
	queue     []domain.BatteryEvent
	observers map[int]func(domain.BatteryEvent)
	nextID    int

	updateMu sync.Mutex    // Serializes snapshot and commit so baselines land in read order
	wake     chan struct{} // Signals the drain loop that the queue grew
	wg       sync.WaitGroup
}

// NewActivityManager creates a new battery activity manager
func NewActivityManager(logger *zap.Logger, cfg domain.Config, clock clockwork.Clock, source domain.PowerSource) *ActivityManager {
	return &ActivityManager{
		logger:    logger,
		clock:     clock,
		source:    source,
		delay:     cfg.GetBatteryDeliveryDelay(),
		observers: make(map[int]func(domain.BatteryEvent)),
		wake:      make(chan struct{}, 1),
	}
}

// Start subscribes to the power source and takes the first snapshot.
// A source that cannot start leaves the default snapshot in place; Start itself never fails.
func (m *ActivityManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.mu.Unlock()

	if err := m.source.Start(runCtx); err != nil {
		m.logger.Warn("Power source unavailable, reporting default battery state", zap.Error(err))
	}

	m.update("initial")

	m.wg.Add(2)
	go m.watch(runCtx)
	go m.drain(runCtx)

	m.logger.Info("Battery monitoring started")
	return nil
}

// Stop ends monitoring. Queued events are discarded.
func (m *ActivityManager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	err := m.source.Stop()
	m.wg.Wait()

	m.logger.Info("Battery monitoring stopped", zap.Error(err))
	return err
}

// AddObserver registers fn and returns its handle
func (m *ActivityManager) AddObserver(fn func(domain.BatteryEvent)) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.observers[m.nextID] = fn
	return m.nextID
}

// RemoveObserver unregisters a handle. Unknown handles are ignored.
func (m *ActivityManager) RemoveObserver(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.observers, id)
}

// Info returns the latest snapshot, or the default before the first one
func (m *ActivityManager) Info() domain.BatteryInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prev == nil {
		return domain.BatteryInfo{}
	}
	return *m.prev
}

func (m *ActivityManager) watch(ctx context.Context) {
	defer m.wg.Done()

	changes := m.source.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case kind, ok := <-changes:
			if !ok {
				m.logger.Debug("Power source change stream closed")
				return
			}
			reason := "powerSource"
			if kind == domain.LowPowerModeChange {
				reason = "lowPowerMode"
			}
			m.update(reason)
		}
	}
}

// update takes a snapshot, queues its differences and makes it the new baseline
func (m *ActivityManager) update(reason string) {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	info := m.snapshot()

	m.mu.Lock()
	events := diff(m.prev, info)
	m.prev = &info
	m.queue = append(m.queue, events...)
	m.mu.Unlock()

	m.logger.Debug("Battery snapshot",
		zap.String("reason", reason),
		zap.Float64("capacity", info.CurrentCapacity),
		zap.Bool("pluggedIn", info.IsPluggedIn),
		zap.Bool("charging", info.IsCharging),
		zap.Int("events", len(events)))

	if len(events) > 0 {
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
}

// snapshot reads the power source, falling back to the zero BatteryInfo
func (m *ActivityManager) snapshot() domain.BatteryInfo {
	desc, err := m.source.Description()
	if err != nil {
		m.logger.Warn("Failed to read power source description", zap.Error(err))
		return domain.BatteryInfo{}
	}
	info, err := InfoFromDescription(desc, m.source.LowPowerMode())
	if err != nil {
		m.logger.Warn("Incomplete power source description, using default snapshot", zap.Error(err))
		return domain.BatteryInfo{}
	}
	return info
}

// drain delivers queued events in order. The next event is not taken before the
// current delivery has completed.
func (m *ActivityManager) drain(ctx context.Context) {
	defer m.wg.Done()

	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-m.wake:
				continue
			}
		}
		ev := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(m.delay):
		}
		m.deliver(ev)
	}
}

func (m *ActivityManager) deliver(ev domain.BatteryEvent) {
	m.mu.Lock()
	fns := make([]func(domain.BatteryEvent), 0, len(m.observers))
	for id := 1; id <= m.nextID; id++ {
		if fn, ok := m.observers[id]; ok {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	m.logger.Debug("Delivering battery event", zap.Stringer("kind", ev.Kind), zap.Int("observers", len(fns)))
	for _, fn := range fns {
		fn(ev)
	}
}
