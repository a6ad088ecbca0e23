package battery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/genricoloni/notchd/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	upowerService     = "org.freedesktop.UPower"
	upowerPath        = "/org/freedesktop/UPower"
	displayDevicePath = "/org/freedesktop/UPower/devices/DisplayDevice"
	deviceInterface   = "org.freedesktop.UPower.Device"

	profilesService   = "net.hadess.PowerProfiles"
	profilesPath      = "/net/hadess/PowerProfiles"
	profilesInterface = "net.hadess.PowerProfiles"
	powerSaverProfile = "power-saver"

	propertiesChanged = "org.freedesktop.DBus.Properties.PropertiesChanged"

	// UPower device states
	upowerCharging = 1
)

var errNotConnected = errors.New("not connected to the system bus")

// UPowerSource reads the aggregate battery through UPower's display device and
// low power mode through power-profiles-daemon.
type UPowerSource struct {
	logger          *zap.Logger
	dial            func() (DBusClient, error)
	changes         chan domain.PowerChangeKind
	mu              sync.Mutex
	running         bool
	stopped         bool
	cancel          context.CancelFunc
	conn            DBusClient
	lastDropWarning time.Time
	wg              sync.WaitGroup
}

// NewUPowerSource creates a new UPower power source
func NewUPowerSource(logger *zap.Logger) *UPowerSource {
	return &UPowerSource{
		logger:  logger,
		dial:    NewStdDBusClient,
		changes: make(chan domain.PowerChangeKind, 8),
	}
}

// Start connects to the system bus and subscribes to property changes
func (s *UPowerSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	monitorCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	conn, err := s.dial()
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("system bus connection failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchSender(upowerService),
	); err != nil {
		return fmt.Errorf("failed to add UPower match signal: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(profilesPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		// Low power mode then only refreshes with the next battery change
		s.logger.Warn("Failed to add power profiles match signal", zap.Error(err))
	}

	s.wg.Add(1)
	go s.monitorSignals(monitorCtx)

	s.logger.Info("UPower source started")
	return nil
}

// Stop ends signal monitoring and closes the change stream
func (s *UPowerSource) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	close(s.changes)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			return fmt.Errorf("failed to close D-Bus connection: %w", err)
		}
	}
	return nil
}

// Changes emits one value per relevant PropertiesChanged signal
func (s *UPowerSource) Changes() <-chan domain.PowerChangeKind {
	return s.changes
}

// Description reads the display device into a power source description.
// A missing battery yields an empty description.
func (s *UPowerSource) Description() (map[string]any, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, errNotConnected
	}

	present, err := property[bool](conn, upowerService, displayDevicePath, deviceInterface+".IsPresent")
	if err != nil {
		return nil, err
	}
	if !present {
		return map[string]any{}, nil
	}

	percentage, err := property[float64](conn, upowerService, displayDevicePath, deviceInterface+".Percentage")
	if err != nil {
		return nil, err
	}
	state, err := property[uint32](conn, upowerService, displayDevicePath, deviceInterface+".State")
	if err != nil {
		return nil, err
	}
	toFull, err := property[int64](conn, upowerService, displayDevicePath, deviceInterface+".TimeToFull")
	if err != nil {
		return nil, err
	}
	onBattery, err := property[bool](conn, upowerService, upowerPath, upowerService+".OnBattery")
	if err != nil {
		return nil, err
	}

	source := StateACPower
	if onBattery {
		source = StateBatteryPower
	}

	return map[string]any{
		KeyCurrentCapacity:  percentage,
		KeyMaxCapacity:      100,
		KeyIsCharging:       state == upowerCharging,
		KeyPowerSourceState: source,
		KeyTimeToFullCharge: toFull / 60,
	}, nil
}

// LowPowerMode reports whether the power-saver profile is active.
// Systems without power-profiles-daemon report false.
func (s *UPowerSource) LowPowerMode() bool {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return false
	}

	profile, err := property[string](conn, profilesService, profilesPath, profilesInterface+".ActiveProfile")
	if err != nil {
		s.logger.Debug("Power profile unavailable", zap.Error(err))
		return false
	}
	return profile == powerSaverProfile
}

func property[T any](conn DBusClient, dest, path, prop string) (T, error) {
	var zero T
	variant, err := conn.GetProperty(dest, path, prop)
	if err != nil {
		return zero, fmt.Errorf("failed to get %s: %w", prop, err)
	}
	v, ok := variant.Value().(T)
	if !ok {
		return zero, fmt.Errorf("unexpected type %T for %s", variant.Value(), prop)
	}
	return v, nil
}

// monitorSignals listens for D-Bus signals and processes them
func (s *UPowerSource) monitorSignals(ctx context.Context) {
	defer s.wg.Done()

	signals := make(chan *dbus.Signal, 10)
	s.conn.Signal(signals)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			if sig == nil {
				continue
			}
			s.handleSignal(sig)
		}
	}
}

// handleSignal maps a PropertiesChanged signal to a power change
func (s *UPowerSource) handleSignal(sig *dbus.Signal) {
	if sig.Name != propertiesChanged || len(sig.Body) < 2 {
		return
	}

	interfaceName, ok := sig.Body[0].(string)
	if !ok {
		return
	}
	changedProps, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	var kind domain.PowerChangeKind
	switch {
	case interfaceName == deviceInterface && sig.Path == displayDevicePath:
		kind = domain.PowerSourceChange
	case interfaceName == upowerService:
		if _, ok := changedProps["OnBattery"]; !ok {
			return
		}
		kind = domain.PowerSourceChange
	case interfaceName == profilesInterface:
		if _, ok := changedProps["ActiveProfile"]; !ok {
			return
		}
		kind = domain.LowPowerModeChange
	default:
		return
	}

	s.logger.Debug("Power property change",
		zap.String("interface", interfaceName),
		zap.Int("properties", len(changedProps)))

	select {
	case s.changes <- kind:
	default:
		s.logChannelFullWarning()
	}
}

// logChannelFullWarning logs a dropped change at most once every 5 seconds
func (s *UPowerSource) logChannelFullWarning() {
	s.mu.Lock()
	defer s.mu.Unlock()

	const warningInterval = 5 * time.Second
	now := time.Now()
	if now.Sub(s.lastDropWarning) >= warningInterval {
		s.logger.Warn("Power change channel full, dropping notification")
		s.lastDropWarning = now
	}
}
