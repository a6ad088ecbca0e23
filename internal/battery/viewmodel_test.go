package battery

import (
	"context"
	"testing"
	"time"

	"github.com/genricoloni/notchd/internal/domain"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// primeEvents is the first delivery of every kind for a plugged-in battery at 80%
func primeEvents() []domain.BatteryEvent {
	info := domain.BatteryInfo{IsPluggedIn: true, CurrentCapacity: 80, MaxCapacity: 100}
	kinds := []domain.BatteryEventKind{
		domain.PowerSourceChanged, domain.BatteryLevelChanged, domain.ChargingChanged,
		domain.LowPowerModeChanged, domain.TimeRemainingChanged, domain.MaxCapacityChanged,
	}
	events := make([]domain.BatteryEvent, len(kinds))
	for i, k := range kinds {
		events[i] = domain.BatteryEvent{Kind: k, Info: info}
	}
	return events
}

func TestStatusViewModel_Notices(t *testing.T) {
	unplugged := domain.BatteryInfo{CurrentCapacity: 80, MaxCapacity: 100}
	low := domain.BatteryInfo{CurrentCapacity: 19, MaxCapacity: 100}
	lower := domain.BatteryInfo{CurrentCapacity: 12, MaxCapacity: 100}
	recovered := domain.BatteryInfo{CurrentCapacity: 30, MaxCapacity: 100}

	tests := []struct {
		name     string
		events   []domain.BatteryEvent
		expected []NoticeKind
	}{
		{name: "First Events Only Set State"},
		{
			name:     "Unplugged",
			events:   []domain.BatteryEvent{{Kind: domain.PowerSourceChanged, Info: unplugged}},
			expected: []NoticeKind{NoticeUnplugged},
		},
		{
			name: "Charging Started",
			events: []domain.BatteryEvent{
				{Kind: domain.ChargingChanged, Info: domain.BatteryInfo{IsPluggedIn: true, IsCharging: true}},
			},
			expected: []NoticeKind{NoticeChargingStarted},
		},
		{
			name: "Low Power Mode Toggled",
			events: []domain.BatteryEvent{
				{Kind: domain.LowPowerModeChanged, Info: domain.BatteryInfo{IsInLowPowerMode: true}},
				{Kind: domain.LowPowerModeChanged, Info: domain.BatteryInfo{}},
			},
			expected: []NoticeKind{NoticeLowPowerOn, NoticeLowPowerOff},
		},
		{
			name: "Low Battery Warned Once",
			events: []domain.BatteryEvent{
				{Kind: domain.PowerSourceChanged, Info: unplugged},
				{Kind: domain.BatteryLevelChanged, Info: low},
				{Kind: domain.BatteryLevelChanged, Info: lower},
			},
			expected: []NoticeKind{NoticeUnplugged, NoticeLowBattery},
		},
		{
			name: "Low Battery Rearmed After Recovery",
			events: []domain.BatteryEvent{
				{Kind: domain.PowerSourceChanged, Info: unplugged},
				{Kind: domain.BatteryLevelChanged, Info: low},
				{Kind: domain.BatteryLevelChanged, Info: recovered},
				{Kind: domain.BatteryLevelChanged, Info: lower},
			},
			expected: []NoticeKind{NoticeUnplugged, NoticeLowBattery, NoticeLowBattery},
		},
		{
			name: "No Low Battery While Plugged In",
			events: []domain.BatteryEvent{
				{Kind: domain.BatteryLevelChanged, Info: domain.BatteryInfo{IsPluggedIn: true, CurrentCapacity: 10, MaxCapacity: 100}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := NewActivityManager(zap.NewNop(), testConfig(t, nil), clockwork.NewFakeClock(), newFakeSource(nil))
			vm := NewStatusViewModel(zap.NewNop(), testConfig(t, nil), mgr)

			for _, ev := range primeEvents() {
				vm.handleEvent(ev)
			}

			notices, cancel := vm.Notices()
			defer cancel()

			var got []NoticeKind
			for _, ev := range tt.events {
				vm.handleEvent(ev)
				for {
					select {
					case n := <-notices:
						got = append(got, n.Kind)
						continue
					default:
					}
					break
				}
			}

			if len(got) != len(tt.expected) {
				t.Fatalf("expected notices %v, got %v", tt.expected, got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("notice %d: expected %v, got %v", i, tt.expected[i], got[i])
				}
			}
		})
	}
}

func TestStatusViewModel_Status(t *testing.T) {
	mgr := NewActivityManager(zap.NewNop(), testConfig(t, nil), clockwork.NewFakeClock(), newFakeSource(nil))
	vm := NewStatusViewModel(zap.NewNop(), testConfig(t, nil), mgr)

	watch, cancel := vm.Watch()
	defer cancel()

	info := domain.BatteryInfo{IsPluggedIn: true, IsCharging: true, CurrentCapacity: 45, MaxCapacity: 90, TimeRemaining: 30}
	for _, kind := range []domain.BatteryEventKind{
		domain.PowerSourceChanged, domain.BatteryLevelChanged, domain.ChargingChanged,
		domain.LowPowerModeChanged, domain.TimeRemainingChanged, domain.MaxCapacityChanged,
	} {
		vm.handleEvent(domain.BatteryEvent{Kind: kind, Info: info})
	}

	expected := Status{Level: 50, IsPluggedIn: true, IsCharging: true, TimeRemaining: 30, MaxCapacity: 90}
	if got := vm.Status(); got != expected {
		t.Errorf("expected %+v, got %+v", expected, got)
	}
	select {
	case s := <-watch:
		if s != expected {
			t.Errorf("watcher expected %+v, got %+v", expected, s)
		}
	default:
		t.Error("watcher received nothing")
	}
}

// Events flow from the power source through the activity manager into the view model
func TestStatusViewModel_EndToEnd(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := newFakeSource(description(80, false, true))
	mgr := NewActivityManager(zap.NewNop(), testConfig(t, nil), clock, source)
	vm := NewStatusViewModel(zap.NewNop(), testConfig(t, nil), mgr)

	if err := vm.Start(t.Context()); err != nil {
		t.Fatalf("view model Start: %v", err)
	}
	if err := mgr.Start(t.Context()); err != nil {
		t.Fatalf("manager Start: %v", err)
	}

	ctx, cancelCtx := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelCtx()
	for i := 0; i < 6; i++ {
		if err := clock.BlockUntilContext(ctx, 1); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Second)
	}

	eventually(t, "status from battery events", func() bool {
		s := vm.Status()
		return s.Level == 80 && s.IsPluggedIn && s.MaxCapacity == 100
	})

	if err := mgr.Stop(context.Background()); err != nil {
		t.Errorf("manager Stop: %v", err)
	}
	if err := vm.Stop(context.Background()); err != nil {
		t.Errorf("view model Stop: %v", err)
	}

	watch, _ := vm.Watch()
	if _, ok := <-watch; ok {
		t.Error("expected closed watch channel after Stop")
	}
}
