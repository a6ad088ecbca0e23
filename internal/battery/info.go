// Package battery turns OS power-source callbacks into ordered, staggered change events.
package battery

import (
	"errors"
	"fmt"

	"github.com/genricoloni/notchd/internal/domain"
)

// ErrMissingField is returned when the power source description lacks a required key
var ErrMissingField = errors.New("power source description is missing a required field")

// Power source description keys
const (
	KeyCurrentCapacity  = "Current Capacity"
	KeyMaxCapacity      = "Max Capacity"
	KeyIsCharging       = "Is Charging"
	KeyPowerSourceState = "Power Source State"
	KeyTimeToFullCharge = "Time to Full Charge"

	// Power Source State values
	StateACPower      = "AC Power"
	StateBatteryPower = "Battery Power"
)

// InfoFromDescription builds a snapshot from a power source description.
// Every key is required: a partial description yields the zero BatteryInfo and ErrMissingField.
func InfoFromDescription(desc map[string]any, lowPowerMode bool) (domain.BatteryInfo, error) {
	current, err := number(desc, KeyCurrentCapacity)
	if err != nil {
		return domain.BatteryInfo{}, err
	}
	maxCap, err := number(desc, KeyMaxCapacity)
	if err != nil {
		return domain.BatteryInfo{}, err
	}
	timeToFull, err := number(desc, KeyTimeToFullCharge)
	if err != nil {
		return domain.BatteryInfo{}, err
	}
	charging, ok := desc[KeyIsCharging].(bool)
	if !ok {
		return domain.BatteryInfo{}, fmt.Errorf("%w: %q", ErrMissingField, KeyIsCharging)
	}
	state, ok := desc[KeyPowerSourceState].(string)
	if !ok {
		return domain.BatteryInfo{}, fmt.Errorf("%w: %q", ErrMissingField, KeyPowerSourceState)
	}

	return domain.BatteryInfo{
		IsPluggedIn:      state == StateACPower,
		IsCharging:       charging,
		CurrentCapacity:  current,
		MaxCapacity:      maxCap,
		IsInLowPowerMode: lowPowerMode,
		TimeRemaining:    int(timeToFull),
	}, nil
}

func number(desc map[string]any, key string) (float64, error) {
	switch v := desc[key].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrMissingField, key)
}

// diff returns one event per field that differs between prev and cur.
// Without a previous snapshot every field is reported.
func diff(prev *domain.BatteryInfo, cur domain.BatteryInfo) []domain.BatteryEvent {
	var base domain.BatteryInfo
	first := prev == nil
	if !first {
		base = *prev
	}

	var events []domain.BatteryEvent
	add := func(changed bool, kind domain.BatteryEventKind) {
		if first || changed {
			events = append(events, domain.BatteryEvent{Kind: kind, Info: cur})
		}
	}
	add(cur.IsPluggedIn != base.IsPluggedIn, domain.PowerSourceChanged)
	add(cur.CurrentCapacity != base.CurrentCapacity, domain.BatteryLevelChanged)
	add(cur.IsCharging != base.IsCharging, domain.ChargingChanged)
	add(cur.IsInLowPowerMode != base.IsInLowPowerMode, domain.LowPowerModeChanged)
	add(cur.TimeRemaining != base.TimeRemaining, domain.TimeRemainingChanged)
	add(cur.MaxCapacity != base.MaxCapacity, domain.MaxCapacityChanged)
	return events
}
