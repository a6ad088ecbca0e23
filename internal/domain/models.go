package domain

import (
	"bytes"
	"time"
)

// MediaSource identifies a media controller variant
type MediaSource string

const (
	// SourceNowPlaying is the system media bridge (helper subprocess)
	SourceNowPlaying MediaSource = "nowplaying"
	// SourceAppleMusic is the Apple Music scripting bridge
	SourceAppleMusic MediaSource = "applemusic"
	// SourceSpotify is the Spotify scripting bridge
	SourceSpotify MediaSource = "spotify"
)

// Valid reports whether s names a known media source
func (s MediaSource) Valid() bool {
	switch s {
	case SourceNowPlaying, SourceAppleMusic, SourceSpotify:
		return true
	}
	return false
}

// RepeatMode is the repeat setting of a player
type RepeatMode int

const (
	// RepeatOff disables repeat
	RepeatOff RepeatMode = 1
	// RepeatOne repeats the current track
	RepeatOne RepeatMode = 2
	// RepeatAll repeats the whole queue
	RepeatAll RepeatMode = 3
)

// ParseRepeatMode maps a raw ordinal to a RepeatMode. Unknown values map to RepeatOff.
func ParseRepeatMode(v int) RepeatMode {
	switch RepeatMode(v) {
	case RepeatOne:
		return RepeatOne
	case RepeatAll:
		return RepeatAll
	default:
		return RepeatOff
	}
}

// Next returns the mode that follows m in the off -> all -> one -> off cycle
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

func (m RepeatMode) String() string {
	switch m {
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "off"
	}
}

// PlaybackState is one snapshot of a media source.
// Times are in seconds.
type PlaybackState struct {
	BundleIdentifier string
	IsPlaying        bool
	Title            string
	Artist           string
	Album            string
	Artwork          []byte
	Duration         float64
	CurrentTime      float64
	PlaybackRate     float64
	IsShuffled       bool
	RepeatMode       RepeatMode
	LastUpdated      time.Time
	Volume           float64
	IsFavorite       bool
}

// NewPlaybackState returns the default state: nothing playing, real-time rate, repeat off
func NewPlaybackState(bundleID string) PlaybackState {
	return PlaybackState{
		BundleIdentifier: bundleID,
		PlaybackRate:     1,
		RepeatMode:       RepeatOff,
	}
}

// Equal compares the externally meaningful fields. LastUpdated is bookkeeping and ignored.
func (s PlaybackState) Equal(o PlaybackState) bool {
	return s.BundleIdentifier == o.BundleIdentifier &&
		s.IsPlaying == o.IsPlaying &&
		s.Title == o.Title &&
		s.Artist == o.Artist &&
		s.Album == o.Album &&
		bytes.Equal(s.Artwork, o.Artwork) &&
		s.Duration == o.Duration &&
		s.CurrentTime == o.CurrentTime &&
		s.PlaybackRate == o.PlaybackRate &&
		s.IsShuffled == o.IsShuffled &&
		s.RepeatMode == o.RepeatMode &&
		s.Volume == o.Volume &&
		s.IsFavorite == o.IsFavorite
}

// Clamped returns a copy with CurrentTime in [0, Duration] and Volume in [0, 1]
func (s PlaybackState) Clamped() PlaybackState {
	if s.Duration < 0 {
		s.Duration = 0
	}
	s.CurrentTime = Clamp(s.CurrentTime, 0, s.Duration)
	s.Volume = Clamp(s.Volume, 0, 1)
	return s
}

// Clamp limits v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Capabilities are the static feature flags of a controller
type Capabilities struct {
	SupportsVolumeControl bool
	SupportsFavorite      bool
}

// BatteryInfo is a snapshot of the power source.
// Capacities are percent-like units, TimeRemaining is in minutes.
type BatteryInfo struct {
	IsPluggedIn      bool
	IsCharging       bool
	CurrentCapacity  float64
	MaxCapacity      float64
	IsInLowPowerMode bool
	TimeRemaining    int
}

// BatteryEventKind names the field a BatteryEvent reports
type BatteryEventKind int

const (
	PowerSourceChanged BatteryEventKind = iota
	BatteryLevelChanged
	ChargingChanged
	LowPowerModeChanged
	TimeRemainingChanged
	MaxCapacityChanged
)

func (k BatteryEventKind) String() string {
	switch k {
	case PowerSourceChanged:
		return "powerSourceChanged"
	case BatteryLevelChanged:
		return "batteryLevelChanged"
	case ChargingChanged:
		return "chargingChanged"
	case LowPowerModeChanged:
		return "lowPowerModeChanged"
	case TimeRemainingChanged:
		return "timeRemainingChanged"
	case MaxCapacityChanged:
		return "maxCapacityChanged"
	default:
		return "unknown"
	}
}

// BatteryEvent reports that one field of BatteryInfo changed.
// Info is the snapshot that produced the event.
type BatteryEvent struct {
	Kind BatteryEventKind
	Info BatteryInfo
}

// PowerChangeKind distinguishes the two OS callbacks a PowerSource forwards
type PowerChangeKind int

const (
	// PowerSourceChange fires when any power source attribute changes
	PowerSourceChange PowerChangeKind = iota
	// LowPowerModeChange fires when low power mode is toggled
	LowPowerModeChange
)
