package music

import (
	"reflect"
	"time"

	"github.com/genricoloni/notchd/internal/domain"
)

// NowPlaying is the UI-facing projection of the active controller's state
type NowPlaying struct {
	Source           domain.MediaSource
	BundleIdentifier string

	Title  string
	Artist string
	Album  string

	// Artwork is the album art, or the application icon when UsingAppIcon is set
	Artwork      []byte
	UsingAppIcon bool

	IsPlaying    bool
	IsPlayerIdle bool
	// PlaybackChangedAt is when IsPlaying last flipped
	PlaybackChangedAt time.Time

	Duration     float64
	ElapsedTime  float64
	PlaybackRate float64
	// Timestamp is when ElapsedTime was sampled
	Timestamp time.Time

	IsShuffled bool
	RepeatMode domain.RepeatMode
	Volume     float64
	IsFavorite bool

	CanControlVolume bool
	CanFavorite      bool

	// IsFlipping is raised briefly when the track changes
	IsFlipping bool
	// SneakPeek is raised for a while when a new track starts playing
	SneakPeek bool
}

// EstimatedPosition extrapolates the playhead at now. It has no side effects.
func (n NowPlaying) EstimatedPosition(now time.Time) float64 {
	return EstimatePosition(n.ElapsedTime, n.Duration, n.PlaybackRate, n.Timestamp, n.IsPlaying, now)
}

// EstimatePosition returns min(elapsed, duration) when paused, otherwise
// elapsed advanced by the wall time since sampled at the given rate, clamped to [0, duration].
func EstimatePosition(elapsed, duration, rate float64, sampled time.Time, playing bool, now time.Time) float64 {
	if duration < 0 {
		duration = 0
	}
	if !playing || sampled.IsZero() {
		return domain.Clamp(elapsed, 0, duration)
	}
	return domain.Clamp(elapsed+now.Sub(sampled).Seconds()*rate, 0, duration)
}

func (n NowPlaying) equal(o NowPlaying) bool {
	return reflect.DeepEqual(n, o)
}
