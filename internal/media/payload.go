package media

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/genricoloni/notchd/internal/domain"
	"go.uber.org/zap"
)

// shuffleModeOff is the bridge's encoding for "shuffle disabled"; every other value means enabled
const shuffleModeOff = 1

// bridgeLine is one newline-delimited JSON object emitted by the bridge helper
type bridgeLine struct {
	Payload bridgePayload `json:"payload"`
	Diff    *bool         `json:"diff"`
}

// bridgePayload fields are pointers so an absent field can be told apart from a zero value
type bridgePayload struct {
	Title                             *string  `json:"title"`
	Artist                            *string  `json:"artist"`
	Album                             *string  `json:"album"`
	Duration                          *float64 `json:"duration"`
	ElapsedTime                       *float64 `json:"elapsedTime"`
	ShuffleMode                       *int     `json:"shuffleMode"`
	RepeatMode                        *int     `json:"repeatMode"`
	ArtworkData                       *string  `json:"artworkData"`
	Timestamp                         *string  `json:"timestamp"`
	PlaybackRate                      *float64 `json:"playbackRate"`
	Playing                           *bool    `json:"playing"`
	ParentApplicationBundleIdentifier *string  `json:"parentApplicationBundleIdentifier"`
	BundleIdentifier                  *string  `json:"bundleIdentifier"`
	Volume                            *float64 `json:"volume"`
}

func decodeBridgeLine(line []byte) (bridgeLine, error) {
	var l bridgeLine
	if err := json.Unmarshal(line, &l); err != nil {
		return l, fmt.Errorf("failed to decode bridge line: %w", err)
	}
	return l, nil
}

func (l bridgeLine) isDiff() bool {
	return l.Diff != nil && *l.Diff
}

// applyBridgeLine folds one bridge line into prev.
// A full line resets absent fields to their defaults; a diff carries them forward.
func applyBridgeLine(logger *zap.Logger, prev domain.PlaybackState, l bridgeLine, now time.Time) domain.PlaybackState {
	diff := l.isDiff()
	p := l.Payload

	next := prev
	if !diff {
		next = domain.NewPlaybackState("")
	}

	// Browser-hosted players report the browser as parent application
	switch {
	case p.ParentApplicationBundleIdentifier != nil && *p.ParentApplicationBundleIdentifier != "":
		next.BundleIdentifier = *p.ParentApplicationBundleIdentifier
	case p.BundleIdentifier != nil:
		next.BundleIdentifier = *p.BundleIdentifier
	}

	setString(&next.Title, p.Title)
	setString(&next.Artist, p.Artist)
	setString(&next.Album, p.Album)
	setFloat(&next.Duration, p.Duration)
	setFloat(&next.PlaybackRate, p.PlaybackRate)
	setFloat(&next.Volume, p.Volume)
	if p.Playing != nil {
		next.IsPlaying = *p.Playing
	}
	if p.ShuffleMode != nil {
		next.IsShuffled = *p.ShuffleMode != shuffleModeOff
	}
	if p.RepeatMode != nil {
		next.RepeatMode = domain.ParseRepeatMode(*p.RepeatMode)
	}

	if p.ArtworkData != nil {
		art, err := base64.StdEncoding.DecodeString(*p.ArtworkData)
		if err != nil {
			logger.Warn("Failed to decode artwork, dropping it",
				zap.String("title", next.Title),
				zap.Error(err))
			art = nil
		}
		next.Artwork = art
	}

	sampled := now
	if p.Timestamp != nil {
		if ts, err := time.Parse(time.RFC3339Nano, *p.Timestamp); err == nil {
			sampled = ts
		} else {
			logger.Debug("Ignoring unparseable timestamp", zap.String("timestamp", *p.Timestamp))
		}
	}

	switch {
	case p.ElapsedTime != nil:
		next.CurrentTime = *p.ElapsedTime
		next.LastUpdated = sampled
	case diff && !next.IsPlaying:
		if !prev.LastUpdated.IsZero() {
			elapsed := now.Sub(prev.LastUpdated).Seconds()
			next.CurrentTime = prev.CurrentTime + elapsed*prev.PlaybackRate
		}
		next.LastUpdated = now
	case diff:
		// Playing: the position is extrapolated downstream from the previous sample
	default:
		next.CurrentTime = 0
		next.LastUpdated = sampled
	}

	return next.Clamped()
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
