package engine

import (
	"context"
	"sync"
	"time"

	"github.com/genricoloni/notchd/internal/battery"
	"github.com/genricoloni/notchd/internal/music"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const debounceDuration = 500 * time.Millisecond

// NowPlayingSource publishes now-playing state
type NowPlayingSource interface {
	Watch() (<-chan music.NowPlaying, func())
}

// NoticeSource publishes battery notices
type NoticeSource interface {
	Notices() (<-chan battery.Notice, func())
}

// Engine reports what the notch would show.
// Now-playing changes are debounced so skipping through tracks logs only where it settles.
type Engine struct {
	logger  *zap.Logger
	clock   clockwork.Clock
	music   NowPlayingSource
	notices NoticeSource

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a new reporting engine
func NewEngine(logger *zap.Logger, clock clockwork.Clock, music NowPlayingSource, notices NoticeSource) *Engine {
	return &Engine{
		logger:  logger,
		clock:   clock,
		music:   music,
		notices: notices,
	}
}

// Start launches the engine's event processing loop in a goroutine.
// It returns immediately (non-blocking).
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel

	states, unwatch := e.music.Watch()
	notices, unnotice := e.notices.Notices()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer unwatch()
		defer unnotice()
		e.runLoop(loopCtx, states, notices)
	}()

	e.logger.Info("Engine started")
	return nil
}

// Stop ends the processing loop
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	e.wg.Wait()
	e.logger.Info("Engine stopped")
	return nil
}

// runLoop is the main event processing loop with debouncing
func (e *Engine) runLoop(ctx context.Context, states <-chan music.NowPlaying, notices <-chan battery.Notice) {
	timer := e.clock.NewTimer(debounceDuration)
	timer.Stop()

	var pending *music.NowPlaying

	for {
		select {
		case <-ctx.Done():
			return

		case np, ok := <-states:
			if !ok {
				e.logger.Debug("Now-playing stream closed")
				states = nil
				continue
			}
			pending = &np
			timer.Reset(debounceDuration)
			e.logger.Debug("Now-playing change, debouncing",
				zap.String("title", np.Title),
				zap.Bool("playing", np.IsPlaying))

		case n, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			e.logger.Info("Battery",
				zap.Stringer("notice", n.Kind),
				zap.Float64("level", n.Status.Level),
				zap.Bool("pluggedIn", n.Status.IsPluggedIn),
				zap.Bool("charging", n.Status.IsCharging),
				zap.Int("minutesToFull", n.Status.TimeRemaining))

		case <-timer.Chan():
			if pending != nil {
				e.report(*pending)
				pending = nil
			}
		}
	}
}

// report logs a settled now-playing state
func (e *Engine) report(np music.NowPlaying) {
	if np.IsPlayerIdle {
		e.logger.Info("Player idle", zap.String("source", string(np.Source)))
		return
	}
	if !np.IsPlaying {
		e.logger.Info("Playback paused",
			zap.String("track", np.Title),
			zap.String("artist", np.Artist))
		return
	}

	e.logger.Info("Now playing",
		zap.String("source", string(np.Source)),
		zap.String("bundle", np.BundleIdentifier),
		zap.String("track", np.Title),
		zap.String("artist", np.Artist),
		zap.String("album", np.Album),
		zap.Float64("position", np.EstimatedPosition(e.clock.Now())),
		zap.Float64("duration", np.Duration),
		zap.Bool("appIcon", np.UsingAppIcon),
		zap.Int("artworkBytes", len(np.Artwork)))
}
