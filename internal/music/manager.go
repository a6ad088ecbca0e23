package music

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/genricoloni/notchd/internal/broadcast"
	"github.com/genricoloni/notchd/internal/domain"
	"github.com/genricoloni/notchd/internal/processor"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// flipDuration is how long IsFlipping stays raised after a track change
const flipDuration = 200 * time.Millisecond

// ControllerFactory selects and builds media controllers
type ControllerFactory interface {
	// Resolve maps a preferred source to the source Create would build
	Resolve(pref domain.MediaSource) domain.MediaSource
	// Create builds a controller for pref; it never fails
	Create(ctx context.Context, pref domain.MediaSource) domain.MediaController
}

// Manager owns the active media controller and projects its updates into NowPlaying.
// Only updates of the currently installed controller reach the published state.
type Manager struct {
	logger  *zap.Logger
	cfg     domain.Config
	clock   clockwork.Clock
	factory ControllerFactory
	icons   domain.IconProvider
	artwork *processor.ArtworkCache
	out     *broadcast.Broadcaster[NowPlaying]

	switchMu sync.Mutex // Serializes controller switchover

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	running     bool
	preferred   domain.MediaSource
	active      domain.MediaController
	installedAs installation // What the active controller was built for
	generation  uint64       // Bumped whenever the active controller is detached
	state       NowPlaying
	rawArtwork  []byte // Artwork of the last snapshot, before icon substitution
	artRevision uint64 // Bumped on every track identity change, keys the resize cache

	idleTimer clockwork.Timer
	idleToken uint64
	flipTimer clockwork.Timer
	flipToken uint64
	peekTimer clockwork.Timer
	peekToken uint64

	wg sync.WaitGroup // Tracks forwarding and health check goroutines
}

// installation records the preference a controller was created for and what it resolved to.
// Create may fall back to another source, so the controller's own Source can differ from resolved.
type installation struct {
	preferred domain.MediaSource
	resolved  domain.MediaSource
}

// NewManager creates a new music manager. The preferred source comes from cfg.
func NewManager(
	logger *zap.Logger,
	cfg domain.Config,
	clock clockwork.Clock,
	factory ControllerFactory,
	icons domain.IconProvider,
	artwork *processor.ArtworkCache,
) *Manager {
	return &Manager{
		logger:    logger,
		cfg:       cfg,
		clock:     clock,
		factory:   factory,
		icons:     icons,
		artwork:   artwork,
		out:       broadcast.New[NowPlaying](),
		preferred: cfg.GetMediaSource(),
		state:     NowPlaying{IsPlayerIdle: true, PlaybackRate: 1, RepeatMode: domain.RepeatOff},
	}
}

// Start installs the preferred controller and starts the health check.
// It returns immediately (non-blocking).
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	// The manager outlives the start context
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	pref := m.preferred
	m.mu.Unlock()

	m.logger.Info("Music manager starting", zap.String("preferred", string(pref)))
	m.switchTo(pref)

	m.wg.Add(1)
	go m.healthLoop(m.ctx)
	return nil
}

// Stop detaches and closes the active controller, cancels every timer and closes Watch channels
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.switchMu.Lock()
	m.mu.Lock()
	active := m.detachLocked()
	m.stopTimersLocked()
	m.mu.Unlock()
	m.switchMu.Unlock()

	var err error
	if active != nil {
		err = active.Close()
	}
	m.wg.Wait()
	m.out.Close()

	m.logger.Info("Music manager stopped", zap.Error(err))
	return err
}

// SetPreferredSource records a new preference and switches to the controller it resolves to
func (m *Manager) SetPreferredSource(src domain.MediaSource) {
	m.mu.Lock()
	m.preferred = src
	running := m.running
	m.mu.Unlock()

	m.logger.Info("Preferred media source changed", zap.String("source", string(src)))
	if running {
		m.switchTo(src)
	}
}

// switchTo replaces the active controller. The previous controller is detached before
// the new one is built, so none of its trailing updates can be applied.
func (m *Manager) switchTo(pref domain.MediaSource) {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	old := m.detachLocked()
	ctx := m.ctx
	m.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			m.logger.Warn("Failed to close previous media controller",
				zap.String("source", string(old.Source())),
				zap.Error(err))
		}
	}

	resolved := m.factory.Resolve(pref)
	ctrl := m.factory.Create(ctx, pref)

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		ctrl.Close()
		return
	}
	m.active = ctrl
	m.installedAs = installation{preferred: pref, resolved: resolved}
	gen := m.generation
	caps := ctrl.Capabilities()
	m.state.Source = ctrl.Source()
	m.state.CanControlVolume = caps.SupportsVolumeControl
	m.state.CanFavorite = caps.SupportsFavorite
	m.publishLocked()
	m.mu.Unlock()

	m.logger.Info("Media controller installed",
		zap.String("preferred", string(pref)),
		zap.String("source", string(ctrl.Source())),
		zap.Uint64("generation", gen))

	m.wg.Add(1)
	go m.forward(gen, ctrl)
}

// detachLocked unsubscribes the active controller and returns it for closing
func (m *Manager) detachLocked() domain.MediaController {
	old := m.active
	m.active = nil
	m.generation++
	return old
}

func (m *Manager) forward(gen uint64, ctrl domain.MediaController) {
	defer m.wg.Done()
	for s := range ctrl.Updates() {
		m.apply(gen, s)
	}
}

// apply projects one controller snapshot into the published state
func (m *Manager) apply(gen uint64, s domain.PlaybackState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.active == nil {
		m.logger.Debug("Dropping update from replaced controller",
			zap.Uint64("generation", gen),
			zap.String("title", s.Title))
		return
	}

	s = s.Clamped()
	st := m.state

	if s.IsPlaying != st.IsPlaying {
		st.IsPlaying = s.IsPlaying
		st.PlaybackChangedAt = m.clock.Now()
		if s.IsPlaying {
			st.IsPlayerIdle = false
			m.cancelIdleLocked()
		} else {
			m.scheduleIdleLocked()
		}
	}

	sourceChanged := s.BundleIdentifier != st.BundleIdentifier
	identityChanged := sourceChanged ||
		s.Title != st.Title ||
		s.Artist != st.Artist ||
		s.Album != st.Album ||
		!bytes.Equal(s.Artwork, m.rawArtwork)

	if identityChanged {
		st.IsFlipping = true
		m.scheduleFlipLocked()

		m.rawArtwork = s.Artwork
		m.artRevision++
		st.Artwork, st.UsingAppIcon = m.resolveArtwork(s)

		titleChanged := s.Title != st.Title || s.Artist != st.Artist
		if titleChanged && s.IsPlaying && s.Title != "" {
			st.SneakPeek = true
			m.scheduleSneakPeekLocked()
		}
	}

	st.BundleIdentifier = s.BundleIdentifier
	st.Title = s.Title
	st.Artist = s.Artist
	st.Album = s.Album
	st.ElapsedTime = s.CurrentTime
	st.Timestamp = s.LastUpdated
	st.Duration = s.Duration
	st.PlaybackRate = s.PlaybackRate
	st.IsShuffled = s.IsShuffled
	st.RepeatMode = s.RepeatMode
	st.Volume = s.Volume
	st.IsFavorite = s.IsFavorite

	if sourceChanged {
		caps := m.active.Capabilities()
		st.CanControlVolume = caps.SupportsVolumeControl
		st.CanFavorite = caps.SupportsFavorite
	}

	if st.equal(m.state) {
		return
	}
	if identityChanged {
		m.logger.Info("Now playing",
			zap.String("source", s.BundleIdentifier),
			zap.String("title", s.Title),
			zap.String("artist", s.Artist),
			zap.Bool("appIcon", st.UsingAppIcon))
	}
	m.state = st
	m.publishLocked()
}

// resolveArtwork prefers the snapshot's art, then the source application's icon
func (m *Manager) resolveArtwork(s domain.PlaybackState) ([]byte, bool) {
	if len(s.Artwork) > 0 {
		return s.Artwork, false
	}
	if m.icons != nil && s.BundleIdentifier != "" {
		if icon, ok := m.icons.Icon(s.BundleIdentifier); ok {
			return icon, true
		}
	}
	return nil, false
}

func (m *Manager) publishLocked() {
	m.out.Publish(m.state)
}

// scheduleIdleLocked starts the idle countdown, replacing any pending one
func (m *Manager) scheduleIdleLocked() {
	m.cancelIdleLocked()
	token := m.idleToken
	m.idleTimer = m.clock.AfterFunc(m.cfg.GetIdleWait(), func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if token != m.idleToken || m.state.IsPlaying || m.state.IsPlayerIdle {
			return
		}
		m.state.IsPlayerIdle = true
		m.logger.Debug("Player idle")
		m.publishLocked()
	})
}

func (m *Manager) cancelIdleLocked() {
	m.idleToken++
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
}

func (m *Manager) scheduleFlipLocked() {
	m.flipToken++
	if m.flipTimer != nil {
		m.flipTimer.Stop()
	}
	token := m.flipToken
	m.flipTimer = m.clock.AfterFunc(flipDuration, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if token != m.flipToken || !m.state.IsFlipping {
			return
		}
		m.state.IsFlipping = false
		m.publishLocked()
	})
}

func (m *Manager) scheduleSneakPeekLocked() {
	m.peekToken++
	if m.peekTimer != nil {
		m.peekTimer.Stop()
	}
	token := m.peekToken
	m.peekTimer = m.clock.AfterFunc(m.cfg.GetSneakPeek(), func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if token != m.peekToken || !m.state.SneakPeek {
			return
		}
		m.state.SneakPeek = false
		m.publishLocked()
	})
}

func (m *Manager) stopTimersLocked() {
	m.cancelIdleLocked()
	m.flipToken++
	m.peekToken++
	for _, t := range []clockwork.Timer{m.flipTimer, m.peekTimer} {
		if t != nil {
			t.Stop()
		}
	}
	m.flipTimer, m.peekTimer = nil, nil
}

// healthLoop refreshes a reachable controller and reselects when it becomes unreachable
func (m *Manager) healthLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := m.clock.NewTicker(m.cfg.GetHealthCheck())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.checkHealth()
		}
	}
}

func (m *Manager) checkHealth() {
	m.mu.Lock()
	active := m.active
	pref := m.preferred
	installed := m.installedAs
	m.mu.Unlock()

	if active == nil {
		return
	}
	if active.IsActive() {
		active.Refresh()
		return
	}

	resolved := m.factory.Resolve(pref)
	if resolved == active.Source() || (installation{preferred: pref, resolved: resolved}) == installed {
		// Creating again would yield the same controller, or the same fallback
		m.logger.Debug("Media source unreachable, keeping controller",
			zap.String("source", string(active.Source())),
			zap.String("preferred", string(resolved)))
		return
	}
	m.logger.Info("Media source unreachable, reselecting",
		zap.String("active", string(active.Source())),
		zap.String("preferred", string(resolved)))
	m.switchTo(pref)
}

// State returns the current projection
func (m *Manager) State() NowPlaying {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Watch subscribes to state changes. Slow watchers skip to the latest state.
func (m *Manager) Watch() (<-chan NowPlaying, func()) {
	return m.out.Subscribe()
}

// EstimatedPosition extrapolates the current playhead at now
func (m *Manager) EstimatedPosition(now time.Time) float64 {
	return m.State().EstimatedPosition(now)
}

// Artwork returns the current artwork resized to fill width x height
func (m *Manager) Artwork(width, height int) ([]byte, bool) {
	m.mu.Lock()
	art := m.state.Artwork
	rev := m.artRevision
	m.mu.Unlock()

	if len(art) == 0 || m.artwork == nil {
		return nil, false
	}

	key := processor.ArtworkKey{Track: strconv.FormatUint(rev, 10), Width: width, Height: height}
	data, err := m.artwork.Get(key, art)
	if err != nil {
		m.logger.Warn("Failed to resize artwork", zap.Int("width", width), zap.Int("height", height), zap.Error(err))
		return nil, false
	}
	return data, true
}

// controller returns the active controller, or nil between switchovers
func (m *Manager) controller() domain.MediaController {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Manager) do(name string, fn func(domain.MediaController)) {
	c := m.controller()
	if c == nil {
		m.logger.Debug("No active media controller, dropping command", zap.String("command", name))
		return
	}
	fn(c)
}

func (m *Manager) Play()          { m.do("play", domain.MediaController.Play) }
func (m *Manager) Pause()         { m.do("pause", domain.MediaController.Pause) }
func (m *Manager) TogglePlay()    { m.do("toggle", domain.MediaController.TogglePlay) }
func (m *Manager) NextTrack()     { m.do("next", domain.MediaController.NextTrack) }
func (m *Manager) PreviousTrack() { m.do("previous", domain.MediaController.PreviousTrack) }
func (m *Manager) ToggleShuffle() { m.do("shuffle", domain.MediaController.ToggleShuffle) }
func (m *Manager) ToggleRepeat()  { m.do("repeat", domain.MediaController.ToggleRepeat) }

func (m *Manager) Seek(seconds float64) {
	m.do("seek", func(c domain.MediaController) { c.Seek(seconds) })
}

func (m *Manager) SetVolume(level float64) {
	m.do("volume", func(c domain.MediaController) { c.SetVolume(domain.Clamp(level, 0, 1)) })
}

func (m *Manager) SetFavorite(favorite bool) {
	m.do("favorite", func(c domain.MediaController) { c.SetFavorite(favorite) })
}

// ToggleFavorite flips the favorite flag of the current track.
// It is a no-op when the active controller does not support favorites.
func (m *Manager) ToggleFavorite() {
	m.mu.Lock()
	c := m.active
	favorite := m.state.IsFavorite
	m.mu.Unlock()

	if c == nil || !c.Capabilities().SupportsFavorite {
		m.logger.Debug("Favorites not supported by the active controller")
		return
	}
	c.SetFavorite(!favorite)
}
