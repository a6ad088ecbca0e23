package battery

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/genricoloni/notchd/internal/config"
	"github.com/genricoloni/notchd/internal/domain"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeSource is a scriptable power source
type fakeSource struct {
	mu       sync.Mutex
	desc     map[string]any
	descErr  error
	lowPower bool
	startErr error
	changes  chan domain.PowerChangeKind
	stopped  bool
}

func newFakeSource(desc map[string]any) *fakeSource {
	return &fakeSource{desc: desc, changes: make(chan domain.PowerChangeKind, 8)}
}

func (s *fakeSource) Start(ctx context.Context) error { return s.startErr }

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.changes)
	}
	return nil
}

func (s *fakeSource) Changes() <-chan domain.PowerChangeKind { return s.changes }

func (s *fakeSource) Description() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc, s.descErr
}

func (s *fakeSource) LowPowerMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lowPower
}

func (s *fakeSource) set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]any, len(s.desc))
	for k, val := range s.desc {
		next[k] = val
	}
	next[key] = v
	s.desc = next
}

func description(capacity float64, charging, plugged bool) map[string]any {
	state := StateBatteryPower
	if plugged {
		state = StateACPower
	}
	return map[string]any{
		KeyCurrentCapacity:  capacity,
		KeyMaxCapacity:      100.0,
		KeyIsCharging:       charging,
		KeyPowerSourceState: state,
		KeyTimeToFullCharge: 0,
	}
}

// recorder collects delivered events
type recorder struct {
	mu     sync.Mutex
	events []domain.BatteryEvent
}

func (r *recorder) observe(ev domain.BatteryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []domain.BatteryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.BatteryEvent(nil), r.events...)
}

func testConfig(t *testing.T, env map[string]string) *config.AppConfig {
	t.Helper()
	return config.Load(zap.NewNop(), filepath.Join(t.TempDir(), "none.toml"), func(k string) string { return env[k] })
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timeout waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newTestActivityManager(t *testing.T, logger *zap.Logger, clock clockwork.Clock, source domain.PowerSource) (*ActivityManager, *recorder) {
	t.Helper()
	m := NewActivityManager(logger, testConfig(t, nil), clock, source)
	rec := &recorder{}
	m.AddObserver(rec.observe)
	if err := m.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { m.Stop(context.Background()) })
	return m, rec
}

// deliverNext releases the event the drain loop is currently delaying
func deliverNext(t *testing.T, clock *clockwork.FakeClock, rec *recorder, want int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("drain loop never waited: %v", err)
	}
	clock.Advance(time.Second)
	eventually(t, "event delivery", func() bool { return len(rec.snapshot()) >= want })
}

func TestDiff(t *testing.T) {
	base := domain.BatteryInfo{CurrentCapacity: 50, MaxCapacity: 100}

	tests := []struct {
		name     string
		prev     *domain.BatteryInfo
		cur      domain.BatteryInfo
		expected []domain.BatteryEventKind
	}{
		{
			name:     "Charging Only",
			prev:     &base,
			cur:      domain.BatteryInfo{CurrentCapacity: 50, MaxCapacity: 100, IsCharging: true},
			expected: []domain.BatteryEventKind{domain.ChargingChanged},
		},
		{
			name: "No Change",
			prev: &base,
			cur:  base,
		},
		{
			name: "Plugged In And Charging",
			prev: &base,
			cur:  domain.BatteryInfo{CurrentCapacity: 50, MaxCapacity: 100, IsPluggedIn: true, IsCharging: true, TimeRemaining: 90},
			expected: []domain.BatteryEventKind{
				domain.PowerSourceChanged, domain.ChargingChanged, domain.TimeRemainingChanged,
			},
		},
		{
			name: "First Snapshot Reports Every Field",
			cur:  domain.BatteryInfo{CurrentCapacity: 80, MaxCapacity: 100, IsPluggedIn: true},
			expected: []domain.BatteryEventKind{
				domain.PowerSourceChanged, domain.BatteryLevelChanged, domain.ChargingChanged,
				domain.LowPowerModeChanged, domain.TimeRemainingChanged, domain.MaxCapacityChanged,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := diff(tt.prev, tt.cur)
			if len(events) != len(tt.expected) {
				t.Fatalf("expected %d events, got %d: %+v", len(tt.expected), len(events), events)
			}
			for i, ev := range events {
				if ev.Kind != tt.expected[i] {
					t.Errorf("event %d: expected %v, got %v", i, tt.expected[i], ev.Kind)
				}
				if ev.Info != tt.cur {
					t.Errorf("event %d carries %+v, want %+v", i, ev.Info, tt.cur)
				}
			}
		})
	}
}

func TestInfoFromDescription(t *testing.T) {
	full := description(80, true, true)

	without := func(key string) map[string]any {
		d := make(map[string]any, len(full))
		for k, v := range full {
			if k != key {
				d[k] = v
			}
		}
		return d
	}

	tests := []struct {
		name      string
		desc      map[string]any
		lowPower  bool
		expected  domain.BatteryInfo
		expectErr bool
	}{
		{
			name:     "Complete",
			desc:     full,
			lowPower: true,
			expected: domain.BatteryInfo{
				IsPluggedIn: true, IsCharging: true, CurrentCapacity: 80, MaxCapacity: 100, IsInLowPowerMode: true,
			},
		},
		{
			name: "Integer Values",
			desc: map[string]any{
				KeyCurrentCapacity: 42, KeyMaxCapacity: int64(100), KeyIsCharging: false,
				KeyPowerSourceState: StateBatteryPower, KeyTimeToFullCharge: int64(-1),
			},
			expected: domain.BatteryInfo{CurrentCapacity: 42, MaxCapacity: 100, TimeRemaining: -1},
		},
		{name: "Empty", desc: map[string]any{}, expectErr: true},
		{name: "Missing Current Capacity", desc: without(KeyCurrentCapacity), expectErr: true},
		{name: "Missing Max Capacity", desc: without(KeyMaxCapacity), expectErr: true},
		{name: "Missing Charging Flag", desc: without(KeyIsCharging), expectErr: true},
		{name: "Missing Source State", desc: without(KeyPowerSourceState), expectErr: true},
		{name: "Missing Time To Full", desc: without(KeyTimeToFullCharge), expectErr: true},
		{
			name:      "Wrong Type",
			desc:      map[string]any{KeyCurrentCapacity: "80", KeyMaxCapacity: 100, KeyIsCharging: true, KeyPowerSourceState: StateACPower, KeyTimeToFullCharge: 0},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := InfoFromDescription(tt.desc, tt.lowPower)
			if tt.expectErr {
				if !errors.Is(err, ErrMissingField) {
					t.Fatalf("expected ErrMissingField, got %v", err)
				}
				if info != (domain.BatteryInfo{}) {
					t.Errorf("expected default snapshot, got %+v", info)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if info != tt.expected {
				t.Errorf("expected %+v, got %+v", tt.expected, info)
			}
		})
	}
}

func TestActivityManager_FirstSnapshotEmitsSixEvents(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := newFakeSource(description(80, false, true))
	_, rec := newTestActivityManager(t, zap.NewNop(), clock, source)

	expected := []domain.BatteryEventKind{
		domain.PowerSourceChanged, domain.BatteryLevelChanged, domain.ChargingChanged,
		domain.LowPowerModeChanged, domain.TimeRemainingChanged, domain.MaxCapacityChanged,
	}
	for i := range expected {
		deliverNext(t, clock, rec, i+1)
	}

	events := rec.snapshot()
	want := domain.BatteryInfo{IsPluggedIn: true, CurrentCapacity: 80, MaxCapacity: 100}
	for i, ev := range events {
		if ev.Kind != expected[i] {
			t.Errorf("event %d: expected %v, got %v", i, expected[i], ev.Kind)
		}
		if ev.Info != want {
			t.Errorf("event %d: expected %+v, got %+v", i, want, ev.Info)
		}
	}
}

func TestActivityManager_ChargingChangeEmitsOneEvent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := newFakeSource(description(50, false, false))
	m, rec := newTestActivityManager(t, zap.NewNop(), clock, source)

	for i := 0; i < 6; i++ {
		deliverNext(t, clock, rec, i+1)
	}

	source.set(KeyIsCharging, true)
	source.changes <- domain.PowerSourceChange
	deliverNext(t, clock, rec, 7)

	events := rec.snapshot()
	if len(events) != 7 {
		t.Fatalf("expected 7 events, got %d", len(events))
	}
	if events[6].Kind != domain.ChargingChanged {
		t.Errorf("expected chargingChanged, got %v", events[6].Kind)
	}

	m.mu.Lock()
	pending := len(m.queue)
	m.mu.Unlock()
	if pending != 0 {
		t.Errorf("expected empty queue, got %d pending events", pending)
	}
	if !m.Info().IsCharging {
		t.Error("baseline was not replaced by the new snapshot")
	}
}

// gatedSource holds its first Description call until gate is closed, then serves readings in order
type gatedSource struct {
	*fakeSource
	gate     chan struct{}
	readings []map[string]any

	callMu sync.Mutex
	calls  int
}

func (s *gatedSource) Description() (map[string]any, error) {
	s.callMu.Lock()
	n := s.calls
	s.calls++
	s.callMu.Unlock()

	if n == 0 {
		<-s.gate
	}
	return s.readings[min(n, len(s.readings)-1)], nil
}

func TestActivityManager_BaselineFollowsReadOrder(t *testing.T) {
	source := &gatedSource{
		fakeSource: newFakeSource(nil),
		gate:       make(chan struct{}),
		readings:   []map[string]any{description(50, false, false), description(60, false, false)},
	}
	m := NewActivityManager(zap.NewNop(), testConfig(t, nil), clockwork.NewFakeClock(), source)

	// A callback already pending when monitoring starts
	source.changes <- domain.PowerSourceChange

	started := make(chan error, 1)
	go func() { started <- m.Start(context.Background()) }()
	t.Cleanup(func() { m.Stop(context.Background()) })

	close(source.gate)
	if err := <-started; err != nil {
		t.Fatalf("Start: %v", err)
	}

	eventually(t, "second reading", func() bool {
		source.callMu.Lock()
		defer source.callMu.Unlock()
		return source.calls >= 2
	})
	eventually(t, "latest baseline", func() bool { return m.Info().CurrentCapacity == 60 })

	time.Sleep(10 * time.Millisecond)
	if got := m.Info().CurrentCapacity; got != 60 {
		t.Errorf("older reading replaced the baseline: capacity %v", got)
	}
}

func TestActivityManager_DeliveryIsSerialized(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := newFakeSource(description(80, false, true))
	m := NewActivityManager(zap.NewNop(), testConfig(t, nil), clock, source)

	release := make(chan struct{})
	var mu sync.Mutex
	var delivered []domain.BatteryEventKind
	m.AddObserver(func(ev domain.BatteryEvent) {
		mu.Lock()
		delivered = append(delivered, ev.Kind)
		first := len(delivered) == 1
		mu.Unlock()
		if first {
			<-release
		}
	})
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered)
	}

	if err := m.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { m.Stop(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(999 * time.Millisecond)
	if count() != 0 {
		t.Fatal("event delivered before the delay elapsed")
	}
	clock.Advance(time.Millisecond)
	eventually(t, "first delivery", func() bool { return count() == 1 })

	// The first observer call is still running, so nothing else may be in flight
	clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if count() != 1 {
		t.Fatalf("expected one delivery while the first is blocked, got %d", count())
	}

	close(release)
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if count() != 1 {
		t.Fatalf("second event skipped its delay, got %d deliveries", count())
	}
	clock.Advance(time.Second)
	eventually(t, "second delivery", func() bool { return count() == 2 })
}

func TestActivityManager_DefaultSnapshot(t *testing.T) {
	tests := []struct {
		name       string
		desc       map[string]any
		descErr    error
		startErr   error
		expectLogs []string
	}{
		{
			name:       "Missing Key",
			desc:       map[string]any{KeyCurrentCapacity: 80.0, KeyMaxCapacity: 100.0},
			expectLogs: []string{"Incomplete power source description, using default snapshot"},
		},
		{
			name:       "No Power Source",
			desc:       map[string]any{},
			expectLogs: []string{"Incomplete power source description, using default snapshot"},
		},
		{
			name:       "Description Error",
			descErr:    errors.New("bus gone"),
			expectLogs: []string{"Failed to read power source description"},
		},
		{
			name:     "Source Fails To Start",
			desc:     map[string]any{},
			startErr: errors.New("no system bus"),
			expectLogs: []string{
				"Power source unavailable, reporting default battery state",
				"Incomplete power source description, using default snapshot",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			clock := clockwork.NewFakeClock()
			source := newFakeSource(tt.desc)
			source.descErr = tt.descErr
			source.startErr = tt.startErr

			m, rec := newTestActivityManager(t, zap.New(core), clock, source)

			if info := m.Info(); info != (domain.BatteryInfo{}) {
				t.Errorf("expected default snapshot, got %+v", info)
			}
			for _, msg := range tt.expectLogs {
				if logs.FilterMessage(msg).Len() == 0 {
					t.Errorf("expected log %q", msg)
				}
			}

			// The default is still reported field by field
			deliverNext(t, clock, rec, 1)
			if ev := rec.snapshot()[0]; ev.Info != (domain.BatteryInfo{}) {
				t.Errorf("expected default info in event, got %+v", ev.Info)
			}
		})
	}
}

func TestActivityManager_Observers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := newFakeSource(description(80, false, true))
	m, rec := newTestActivityManager(t, zap.NewNop(), clock, source)

	removed := &recorder{}
	id := m.AddObserver(removed.observe)
	m.RemoveObserver(id)
	m.RemoveObserver(id)
	m.RemoveObserver(9999)
	m.RemoveObserver(-1)

	deliverNext(t, clock, rec, 1)
	if n := len(removed.snapshot()); n != 0 {
		t.Errorf("removed observer received %d events", n)
	}
}

func TestActivityManager_LowPowerModeChange(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := newFakeSource(description(80, false, true))
	_, rec := newTestActivityManager(t, zap.NewNop(), clock, source)

	for i := 0; i < 6; i++ {
		deliverNext(t, clock, rec, i+1)
	}

	source.mu.Lock()
	source.lowPower = true
	source.mu.Unlock()
	source.changes <- domain.LowPowerModeChange
	deliverNext(t, clock, rec, 7)

	ev := rec.snapshot()[6]
	if ev.Kind != domain.LowPowerModeChanged || !ev.Info.IsInLowPowerMode {
		t.Errorf("expected lowPowerModeChanged with low power on, got %+v", ev)
	}
}
