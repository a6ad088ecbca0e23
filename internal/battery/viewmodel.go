package battery

import (
	"context"
	"sync"

	"github.com/genricoloni/notchd/internal/broadcast"
	"github.com/genricoloni/notchd/internal/domain"
	"go.uber.org/zap"
)

// Status is the simplified battery state shown to the user
type Status struct {
	Level            float64 // percent of max capacity
	IsPluggedIn      bool
	IsCharging       bool
	IsInLowPowerMode bool
	TimeRemaining    int
	MaxCapacity      float64
}

// NoticeKind identifies a transient battery notice
type NoticeKind int

const (
	NoticePluggedIn NoticeKind = iota
	NoticeUnplugged
	NoticeChargingStarted
	NoticeChargingStopped
	NoticeLowPowerOn
	NoticeLowPowerOff
	NoticeLowBattery
)

func (k NoticeKind) String() string {
	switch k {
	case NoticePluggedIn:
		return "pluggedIn"
	case NoticeUnplugged:
		return "unplugged"
	case NoticeChargingStarted:
		return "chargingStarted"
	case NoticeChargingStopped:
		return "chargingStopped"
	case NoticeLowPowerOn:
		return "lowPowerOn"
	case NoticeLowPowerOff:
		return "lowPowerOff"
	case NoticeLowBattery:
		return "lowBattery"
	default:
		return "unknown"
	}
}

// Notice is emitted on a user-relevant transition
type Notice struct {
	Kind   NoticeKind
	Status Status
}

// StatusViewModel applies battery events to a published Status and raises notices.
// The first event of each kind only sets state.
type StatusViewModel struct {
	logger    *zap.Logger
	manager   *ActivityManager
	threshold float64

	mu        sync.Mutex
	status    Status
	current   float64
	seen      map[domain.BatteryEventKind]bool
	lowWarned bool
	handle    int
	observing bool

	out     *broadcast.Broadcaster[Status]
	notices *broadcast.Broadcaster[Notice]
}

// NewStatusViewModel creates a view model fed by manager
func NewStatusViewModel(logger *zap.Logger, cfg domain.Config, manager *ActivityManager) *StatusViewModel {
	return &StatusViewModel{
		logger:    logger,
		manager:   manager,
		threshold: cfg.GetLowBatteryThreshold(),
		seen:      make(map[domain.BatteryEventKind]bool),
		out:       broadcast.New[Status](),
		notices:   broadcast.New[Notice](),
	}
}

// Start registers with the activity manager
func (v *StatusViewModel) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.observing {
		return nil
	}
	v.handle = v.manager.AddObserver(v.handleEvent)
	v.observing = true
	return nil
}

// Stop unregisters and closes Watch and Notices channels
func (v *StatusViewModel) Stop(ctx context.Context) error {
	v.mu.Lock()
	if v.observing {
		v.manager.RemoveObserver(v.handle)
		v.observing = false
	}
	v.mu.Unlock()

	v.out.Close()
	v.notices.Close()
	return nil
}

// Status returns the current status
func (v *StatusViewModel) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

// Watch subscribes to status changes
func (v *StatusViewModel) Watch() (<-chan Status, func()) {
	return v.out.Subscribe()
}

// Notices subscribes to battery notices
func (v *StatusViewModel) Notices() (<-chan Notice, func()) {
	return v.notices.Subscribe()
}

func (v *StatusViewModel) handleEvent(ev domain.BatteryEvent) {
	v.mu.Lock()
	primed := v.seen[ev.Kind]
	v.seen[ev.Kind] = true

	var notices []NoticeKind
	info := ev.Info
	switch ev.Kind {
	case domain.PowerSourceChanged:
		v.status.IsPluggedIn = info.IsPluggedIn
		if info.IsPluggedIn {
			notices = append(notices, NoticePluggedIn)
			v.lowWarned = false
		} else {
			notices = append(notices, NoticeUnplugged)
		}
	case domain.BatteryLevelChanged:
		v.current = info.CurrentCapacity
	case domain.ChargingChanged:
		v.status.IsCharging = info.IsCharging
		if info.IsCharging {
			notices = append(notices, NoticeChargingStarted)
		} else {
			notices = append(notices, NoticeChargingStopped)
		}
	case domain.LowPowerModeChanged:
		v.status.IsInLowPowerMode = info.IsInLowPowerMode
		if info.IsInLowPowerMode {
			notices = append(notices, NoticeLowPowerOn)
		} else {
			notices = append(notices, NoticeLowPowerOff)
		}
	case domain.TimeRemainingChanged:
		v.status.TimeRemaining = info.TimeRemaining
	case domain.MaxCapacityChanged:
		v.status.MaxCapacity = info.MaxCapacity
	}
	if !primed {
		notices = nil
	}
	v.status.Level = level(v.current, v.status.MaxCapacity)

	if ev.Kind == domain.BatteryLevelChanged || ev.Kind == domain.PowerSourceChanged {
		low := v.status.Level > 0 && v.status.Level <= v.threshold && !v.status.IsPluggedIn
		if low && !v.lowWarned {
			notices = append(notices, NoticeLowBattery)
			v.lowWarned = true
		} else if v.status.Level > v.threshold {
			v.lowWarned = false
		}
	}
	status := v.status
	v.mu.Unlock()

	v.out.Publish(status)
	for _, kind := range notices {
		v.logger.Info("Battery notice",
			zap.Stringer("notice", kind),
			zap.Float64("level", status.Level),
			zap.Bool("pluggedIn", status.IsPluggedIn))
		v.notices.Publish(Notice{Kind: kind, Status: status})
	}
}

// level expresses current capacity as a percentage of max capacity
func level(current, maxCapacity float64) float64 {
	if maxCapacity <= 0 {
		return current
	}
	return current / maxCapacity * 100
}
