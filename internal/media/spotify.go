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
	spotifyBundleID = "com.spotify.client"
	spotifyProcess  = "Spotify"
)

// spotifyStateScript returns
// {playing, title, artist, album, position, duration ms, shuffle, repeating, volume %, artwork url}
const spotifyStateScript = `tell application "Spotify"
	try
		set isPlaying to (player state is playing)
		set t to current track
		return {isPlaying, name of t, artist of t, album of t, player position, duration of t, shuffling, repeating, sound volume, artwork url of t}
	on error
		return {false, "Unknown", "Unknown", "Unknown", 0, 0, false, false, 0, ""}
	end try
end tell`

const spotifyFallback = `{false, "Unknown", "Unknown", "Unknown", 0, 0, false, false, 0, ""}`

func spotifyTell(cmd string) string {
	return fmt.Sprintf("tell application %q to %s", "Spotify", cmd)
}

var spotifySpec = scriptSpec{
	source:       domain.SourceSpotify,
	bundleID:     spotifyBundleID,
	processName:  spotifyProcess,
	notification: notify.SpotifyPlaybackStateChanged,
	capabilities: domain.Capabilities{SupportsVolumeControl: true},
	stateScript:  spotifyStateScript,
	fallback:     spotifyFallback,
	arity:        10,
	decode: func(r *tupleReader) scriptResult {
		s := domain.NewPlaybackState(spotifyBundleID)
		s.IsPlaying = r.bool(0)
		s.Title = r.string(1)
		s.Artist = r.string(2)
		s.Album = r.string(3)
		s.CurrentTime = r.float(4)
		s.Duration = r.float(5) / 1000
		s.IsShuffled = r.bool(6)
		if r.bool(7) {
			s.RepeatMode = domain.RepeatAll
		}
		s.Volume = r.float(8) / 100
		return scriptResult{state: s, artworkURL: r.string(9)}
	},
	commands: scriptCommands{
		play:     spotifyTell("play"),
		pause:    spotifyTell("pause"),
		toggle:   spotifyTell("playpause"),
		next:     spotifyTell("next track"),
		previous: spotifyTell("previous track"),
		seek: func(seconds float64) string {
			return spotifyTell(fmt.Sprintf("set player position to %.3f", seconds))
		},
		shuffle: func(enabled bool) string {
			return spotifyTell(fmt.Sprintf("set shuffling to %t", enabled))
		},
		// Spotify only knows repeat on or off, reported as all. The cycle moves all to one, which means off here.
		repeat: func(mode domain.RepeatMode) string {
			return spotifyTell(fmt.Sprintf("set repeating to %t", mode == domain.RepeatAll))
		},
		volume: func(percent int) string {
			return spotifyTell(fmt.Sprintf("set sound volume to %d", percent))
		},
	},
}

// NewSpotifyController creates a controller for the Spotify application.
// Artwork is downloaded through fetcher and attached once available.
func NewSpotifyController(
	ctx context.Context,
	logger *zap.Logger,
	clock clockwork.Clock,
	runner domain.ScriptRunner,
	procs domain.ProcessChecker,
	notifier domain.Notifier,
	fetcher domain.Fetcher,
	settleDelay time.Duration,
) *ScriptController {
	return newScriptController(ctx, logger, clock, runner, procs, notifier, fetcher, settleDelay, spotifySpec)
}
