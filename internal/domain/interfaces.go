package domain

import (
	"context"
	"time"
)

// MediaController is the capability contract shared by every media source variant.
// Commands are fire-and-forget: failures are logged by the implementation, never returned.
type MediaController interface {
	// Source names the controller variant
	Source() MediaSource

	// Updates streams snapshots in the order the source produced them
	Updates() <-chan PlaybackState

	// Capabilities returns the static feature flags of this controller
	Capabilities() Capabilities

	Play()
	Pause()
	TogglePlay()
	NextTrack()
	PreviousTrack()
	// Seek moves the playhead to the given position in seconds
	Seek(seconds float64)
	ToggleShuffle()
	ToggleRepeat()
	// SetVolume sets the player volume, level in [0, 1]
	SetVolume(level float64)
	SetFavorite(favorite bool)

	// IsActive reports whether the source application is reachable.
	// It must return within a bounded time.
	IsActive() bool

	// Refresh asks the controller to re-read authoritative state and publish it
	Refresh()

	// Close stops delivering updates and releases every resource held by the controller
	Close() error
}

// ScriptRunner executes an inter-application script and returns its trimmed output
//
//go:generate mockgen -destination=mocks/script_runner_mock.go -package=mocks github.com/genricoloni/notchd/internal/domain ScriptRunner
type ScriptRunner interface {
	Run(ctx context.Context, script string) (string, error)
}

// ProcessChecker queries the OS process list
//
//go:generate mockgen -destination=mocks/process_checker_mock.go -package=mocks github.com/genricoloni/notchd/internal/domain ProcessChecker
type ProcessChecker interface {
	// IsRunning reports whether a process with the given name exists
	IsRunning(name string) bool
}

// Fetcher defines the interface for retrieving album artwork
//
//go:generate mockgen -destination=mocks/fetcher_mock.go -package=mocks github.com/genricoloni/notchd/internal/domain Fetcher
type Fetcher interface {
	// Fetch downloads image data from a URL
	// Returns the raw image bytes or an error
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Notifier delivers named notifications to registered observers
type Notifier interface {
	// Observe registers fn for notifications named name.
	// The returned function removes the registration; it is safe to call more than once.
	Observe(name string, fn func()) (cancel func())

	// Post delivers the named notification to its observers
	Post(name string)
}

// IconProvider resolves the icon of an application, used when a track carries no artwork
type IconProvider interface {
	Icon(bundleID string) ([]byte, bool)
}

// PowerSource is the OS power-source boundary.
// Description returns the power source description dictionary keyed by the IOPS key names.
type PowerSource interface {
	Start(ctx context.Context) error
	Stop() error

	// Changes emits one value per OS callback
	Changes() <-chan PowerChangeKind

	Description() (map[string]any, error)
	LowPowerMode() bool
}

// Config defines the interface for application configuration
type Config interface {
	// GetMediaSource returns the preferred media source
	GetMediaSource() MediaSource

	// GetBridgeHelper returns the executable that runs the media bridge script
	GetBridgeHelper() string
	// GetBridgeScript returns the resource path handed to the bridge helper
	GetBridgeScript() string
	// GetBridgeDeprecatedFrom returns the first OS version where the bridge is unusable, or ""
	GetBridgeDeprecatedFrom() string

	GetIdleWait() time.Duration
	GetSettleDelay() time.Duration
	GetNotificationPoll() time.Duration
	GetHealthCheck() time.Duration
	GetSneakPeek() time.Duration
	GetArtworkCacheSize() int
	GetIconDir() string

	GetBatteryPoll() time.Duration
	GetBatteryDeliveryDelay() time.Duration
	GetLowBatteryThreshold() float64
}
