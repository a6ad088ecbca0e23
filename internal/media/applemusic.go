package media

import (
	"context"
	"fmt"
	"time"

	"github.com/genricoloni/notchd/internal/domain"
	"github.com/genricoloni/notchd/internal/notify"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	appleMusicBundleID = "com.apple.Music"
	appleMusicProcess  = "Music"
)

// appleMusicStateScript returns
// {playing, title, artist, album, position, duration, shuffle, repeat ordinal, volume %, artwork data, favorite}
const appleMusicStateScript = `tell application "Music"
	try
		set isPlaying to (player state is playing)
		set t to current track
		set shuffleState to shuffle enabled
		set repeatValue to 1
		if song repeat is one then
			set repeatValue to 2
		else if song repeat is all then
			set repeatValue to 3
		end if
		set artData to ""
		try
			set artData to raw data of artwork 1 of t
		end try
		return {isPlaying, name of t, artist of t, album of t, player position, duration of t, shuffleState, repeatValue, sound volume, artData, favorited of t}
	on error
		return {false, "Unknown", "Unknown", "Unknown", 0, 0, false, 1, 0, "", false}
	end try
end tell`

const appleMusicFallback = `{false, "Unknown", "Unknown", "Unknown", 0, 0, false, 1, 0, "", false}`

func appleMusicTell(cmd string) string {
	return fmt.Sprintf("tell application %q to %s", "Music", cmd)
}

func appleMusicRepeat(mode domain.RepeatMode) string {
	// Music names its repeat constants like the mode strings
	return appleMusicTell("set song repeat to " + mode.String())
}

var appleMusicSpec = scriptSpec{
	source:       domain.SourceAppleMusic,
	bundleID:     appleMusicBundleID,
	processName:  appleMusicProcess,
	notification: notify.MusicPlayerInfo,
	capabilities: domain.Capabilities{SupportsVolumeControl: true, SupportsFavorite: true},
	stateScript:  appleMusicStateScript,
	fallback:     appleMusicFallback,
	arity:        11,
	decode: func(r *tupleReader) scriptResult {
		s := domain.NewPlaybackState(appleMusicBundleID)
		s.IsPlaying = r.bool(0)
		s.Title = r.string(1)
		s.Artist = r.string(2)
		s.Album = r.string(3)
		s.CurrentTime = r.float(4)
		s.Duration = r.float(5)
		s.IsShuffled = r.bool(6)
		s.RepeatMode = domain.ParseRepeatMode(int(r.float(7)))
		s.Volume = r.float(8) / 100
		s.Artwork = r.bytes(9)
		s.IsFavorite = r.bool(10)
		return scriptResult{state: s}
	},
	commands: scriptCommands{
		play:     appleMusicTell("play"),
		pause:    appleMusicTell("pause"),
		toggle:   appleMusicTell("playpause"),
		next:     appleMusicTell("next track"),
		previous: appleMusicTell("previous track"),
		seek: func(seconds float64) string {
			return appleMusicTell(fmt.Sprintf("set player position to %.3f", seconds))
		},
		shuffle: func(enabled bool) string {
			return appleMusicTell(fmt.Sprintf("set shuffle enabled to %t", enabled))
		},
		repeat: appleMusicRepeat,
		volume: func(percent int) string {
			return appleMusicTell(fmt.Sprintf("set sound volume to %d", percent))
		},
		favorite: func(favorite bool) string {
			return appleMusicTell(fmt.Sprintf("set favorited of current track to %t", favorite))
		},
	},
}

// NewAppleMusicController creates a controller for the Music application.
// It supports volume control and favorites.
func NewAppleMusicController(
	ctx context.Context,
	logger *zap.Logger,
	clock clockwork.Clock,
	runner domain.ScriptRunner,
	procs domain.ProcessChecker,
	notifier domain.Notifier,
	settleDelay time.Duration,
) *ScriptController {
	return newScriptController(ctx, logger, clock, runner, procs, notifier, nil, settleDelay, appleMusicSpec)
}
