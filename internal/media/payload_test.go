package media

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/genricoloni/notchd/internal/domain"
	"go.uber.org/zap"
)

func mustDecode(t *testing.T, line string) bridgeLine {
	t.Helper()
	l, err := decodeBridgeLine([]byte(line))
	if err != nil {
		t.Fatalf("decode %s: %v", line, err)
	}
	return l
}

func TestApplyBridgeLine_Fields(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := domain.NewPlaybackState("com.apple.Music")
	prev.Title = "A"
	prev.Artist = "Artist A"
	prev.IsShuffled = true
	prev.Duration = 100
	prev.CurrentTime = 40
	prev.IsPlaying = true
	prev.LastUpdated = now.Add(-time.Second)

	art := []byte{0x89, 'P', 'N', 'G'}

	tests := []struct {
		name  string
		line  string
		check func(t *testing.T, got domain.PlaybackState)
	}{
		{
			name: "Diff Keeps Absent Title",
			line: `{"payload":{"artist":"Artist B"},"diff":true}`,
			check: func(t *testing.T, got domain.PlaybackState) {
				if got.Title != "A" {
					t.Errorf("title: expected A, got %q", got.Title)
				}
				if got.Artist != "Artist B" {
					t.Errorf("artist: expected Artist B, got %q", got.Artist)
				}
			},
		},
		{
			name: "Full Resets Absent Title",
			line: `{"payload":{"artist":"Artist B"}}`,
			check: func(t *testing.T, got domain.PlaybackState) {
				if got.Title != "" {
					t.Errorf("title: expected empty, got %q", got.Title)
				}
				if got.IsShuffled {
					t.Error("shuffle should reset to off")
				}
				if got.PlaybackRate != 1 {
					t.Errorf("rate should reset to 1, got %v", got.PlaybackRate)
				}
			},
		},
		{
			name: "Shuffle Mode One Means Off",
			line: `{"payload":{"shuffleMode":1},"diff":true}`,
			check: func(t *testing.T, got domain.PlaybackState) {
				if got.IsShuffled {
					t.Error("shuffleMode 1 should mean shuffle off")
				}
			},
		},
		{
			name: "Other Shuffle Modes Mean On",
			line: `{"payload":{"shuffleMode":3},"diff":true}`,
			check: func(t *testing.T, got domain.PlaybackState) {
				if !got.IsShuffled {
					t.Error("shuffleMode 3 should mean shuffle on")
				}
			},
		},
		{
			name: "Repeat Ordinal",
			line: `{"payload":{"repeatMode":2},"diff":true}`,
			check: func(t *testing.T, got domain.PlaybackState) {
				if got.RepeatMode != domain.RepeatOne {
					t.Errorf("repeat: expected one, got %s", got.RepeatMode)
				}
			},
		},
		{
			name: "Parent Bundle Preferred",
			line: `{"payload":{"bundleIdentifier":"com.apple.WebKit.GPU","parentApplicationBundleIdentifier":"com.apple.Safari"},"diff":true}`,
			check: func(t *testing.T, got domain.PlaybackState) {
				if got.BundleIdentifier != "com.apple.Safari" {
					t.Errorf("bundle: expected com.apple.Safari, got %s", got.BundleIdentifier)
				}
			},
		},
		{
			name: "Empty Parent Bundle Ignored",
			line: `{"payload":{"bundleIdentifier":"com.spotify.client","parentApplicationBundleIdentifier":""},"diff":true}`,
			check: func(t *testing.T, got domain.PlaybackState) {
				if got.BundleIdentifier != "com.spotify.client" {
					t.Errorf("bundle: expected com.spotify.client, got %s", got.BundleIdentifier)
				}
			},
		},
		{
			name: "Artwork Decoded",
			line: `{"payload":{"artworkData":"` + base64.StdEncoding.EncodeToString(art) + `"},"diff":true}`,
			check: func(t *testing.T, got domain.PlaybackState) {
				if string(got.Artwork) != string(art) {
					t.Errorf("artwork: expected %v, got %v", art, got.Artwork)
				}
			},
		},
		{
			name: "Bad Artwork Dropped Rest Applied",
			line: `{"payload":{"artworkData":"%%%not-base64","title":"B"},"diff":true}`,
			check: func(t *testing.T, got domain.PlaybackState) {
				if got.Artwork != nil {
					t.Errorf("artwork should be nil, got %d bytes", len(got.Artwork))
				}
				if got.Title != "B" {
					t.Errorf("title: expected B, got %q", got.Title)
				}
			},
		},
		{
			name: "Explicit Elapsed Used Verbatim",
			line: `{"payload":{"elapsedTime":12.5,"timestamp":"2026-03-01T11:59:58Z"},"diff":true}`,
			check: func(t *testing.T, got domain.PlaybackState) {
				if got.CurrentTime != 12.5 {
					t.Errorf("current time: expected 12.5, got %v", got.CurrentTime)
				}
				if !got.LastUpdated.Equal(now.Add(-2 * time.Second)) {
					t.Errorf("last updated should be the payload timestamp, got %v", got.LastUpdated)
				}
			},
		},
		{
			name: "Playing Diff Keeps Position",
			line: `{"payload":{"playing":true},"diff":true}`,
			check: func(t *testing.T, got domain.PlaybackState) {
				if got.CurrentTime != 40 {
					t.Errorf("current time: expected 40, got %v", got.CurrentTime)
				}
				if !got.LastUpdated.Equal(prev.LastUpdated) {
					t.Error("last updated should carry forward while playing")
				}
			},
		},
		{
			name: "Paused Diff Extrapolates",
			line: `{"payload":{"playing":false},"diff":true}`,
			check: func(t *testing.T, got domain.PlaybackState) {
				if got.CurrentTime != 41 {
					t.Errorf("current time: expected 41, got %v", got.CurrentTime)
				}
				if !got.LastUpdated.Equal(now) {
					t.Errorf("last updated should be now, got %v", got.LastUpdated)
				}
			},
		},
		{
			name: "Full Without Elapsed Resets Position",
			line: `{"payload":{"title":"C","duration":300}}`,
			check: func(t *testing.T, got domain.PlaybackState) {
				if got.CurrentTime != 0 {
					t.Errorf("current time: expected 0, got %v", got.CurrentTime)
				}
			},
		},
		{
			name: "Elapsed Clamped To Duration",
			line: `{"payload":{"elapsedTime":250},"diff":true}`,
			check: func(t *testing.T, got domain.PlaybackState) {
				if got.CurrentTime != 100 {
					t.Errorf("current time: expected clamp to 100, got %v", got.CurrentTime)
				}
			},
		},
		{
			name: "Negative Elapsed Clamped To Zero",
			line: `{"payload":{"elapsedTime":-4},"diff":true}`,
			check: func(t *testing.T, got domain.PlaybackState) {
				if got.CurrentTime != 0 {
					t.Errorf("current time: expected 0, got %v", got.CurrentTime)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyBridgeLine(zap.NewNop(), prev, mustDecode(t, tt.line), now)
			tt.check(t, got)
		})
	}
}

func TestDecodeBridgeLine_Malformed(t *testing.T) {
	for _, line := range []string{`{"payload":`, `not json`, `{"payload":{"title":5}}`} {
		if _, err := decodeBridgeLine([]byte(line)); err == nil {
			t.Errorf("expected error for %q", line)
		}
	}
}

func TestDecodeBridgeLine_DiffDefaultsToFull(t *testing.T) {
	l := mustDecode(t, `{"payload":{"title":"X"}}`)
	if l.isDiff() {
		t.Error("absent diff should mean a full snapshot")
	}
	l = mustDecode(t, `{"payload":{},"diff":false}`)
	if l.isDiff() {
		t.Error("diff=false should mean a full snapshot")
	}
}
