package media

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/genricoloni/notchd/internal/domain"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ErrQueryFailed is returned when a scripted state query errors or yields an unusable result
var ErrQueryFailed = errors.New("media query failed")

const scriptTimeout = 5 * time.Second

// scriptResult is one decoded state query.
// artworkURL is set by sources that return a link instead of image data.
type scriptResult struct {
	state      domain.PlaybackState
	artworkURL string
}

// scriptCommands holds the command scripts of one application.
// volume and favorite are nil when the application does not support them.
type scriptCommands struct {
	play, pause, toggle, next, previous string

	seek     func(seconds float64) string
	shuffle  func(enabled bool) string
	repeat   func(mode domain.RepeatMode) string
	volume   func(percent int) string
	favorite func(favorite bool) string
}

// scriptSpec describes one scriptable application
type scriptSpec struct {
	source       domain.MediaSource
	bundleID     string
	processName  string
	notification string
	capabilities domain.Capabilities

	stateScript string
	fallback    string // Result the state script returns when the application raises an error
	arity       int
	decode      func(r *tupleReader) scriptResult

	commands scriptCommands
}

// ScriptController drives one scriptable application.
// Every notification triggers one numbered refresh; a refresh result is applied only when no
// result of a later trigger has been applied already.
type ScriptController struct {
	logger   *zap.Logger
	clock    clockwork.Clock
	runner   domain.ScriptRunner
	procs    domain.ProcessChecker
	fetcher  domain.Fetcher
	spec     scriptSpec
	fallback []any
	pub      *publisher
	settle   *settler

	unobserve func()
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup // Tracks refresh and command goroutines

	mu       sync.Mutex
	closed   bool
	trigger  uint64 // Number of the latest refresh trigger
	applied  uint64 // Number of the trigger whose result is in state
	state    domain.PlaybackState
	hasState bool
	artURL   string // Artwork URL of the last applied result
	art      []byte // Image fetched for artURL, nil until the fetch completes
}

func newScriptController(
	ctx context.Context,
	logger *zap.Logger,
	clock clockwork.Clock,
	runner domain.ScriptRunner,
	procs domain.ProcessChecker,
	notifier domain.Notifier,
	fetcher domain.Fetcher,
	settleDelay time.Duration,
	spec scriptSpec,
) *ScriptController {
	fallback, err := parseScriptList(spec.fallback)
	if err != nil {
		panic(fmt.Sprintf("invalid fallback result for %s: %v", spec.source, err))
	}

	ctrlCtx, cancel := context.WithCancel(ctx)
	c := &ScriptController{
		logger:   logger.With(zap.String("source", string(spec.source))),
		clock:    clock,
		runner:   runner,
		procs:    procs,
		fetcher:  fetcher,
		spec:     spec,
		fallback: fallback,
		pub:      newPublisher(logger),
		ctx:      ctrlCtx,
		cancel:   cancel,
		state:    domain.NewPlaybackState(spec.bundleID),
	}
	c.settle = newSettler(clock, settleDelay, c.Refresh)
	c.unobserve = notifier.Observe(spec.notification, c.Refresh)

	c.logger.Info("Script controller started",
		zap.String("bundle", spec.bundleID),
		zap.String("notification", spec.notification))

	// Initial read; skipped when the application is not running
	c.Refresh()
	return c
}

// Source names the controller variant
func (c *ScriptController) Source() domain.MediaSource { return c.spec.source }

// Updates streams applied query results
func (c *ScriptController) Updates() <-chan domain.PlaybackState { return c.pub.updates }

// Capabilities reports the application's optional features
func (c *ScriptController) Capabilities() domain.Capabilities { return c.spec.capabilities }

// IsActive reports whether the application process is running
func (c *ScriptController) IsActive() bool {
	return c.procs.IsRunning(c.spec.processName)
}

// Refresh queries the application in the background
func (c *ScriptController) Refresh() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.trigger++
	seq := c.trigger
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.refresh(seq)
	}()
}

func (c *ScriptController) refresh(seq uint64) {
	// Addressing a stopped application would launch it
	if !c.IsActive() {
		c.logger.Debug("Application not running, skipping query", zap.String("process", c.spec.processName))
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, scriptTimeout)
	defer cancel()

	out, err := c.runner.Run(ctx, c.spec.stateScript)
	if err == nil {
		var res scriptResult
		if res, err = c.decode(out); err == nil {
			c.apply(seq, res)
			return
		}
	}
	if c.ctx.Err() != nil {
		return
	}
	c.logger.Error("Media query failed, keeping previous state", zap.Uint64("trigger", seq), zap.Error(err))
}

func (c *ScriptController) decode(out string) (scriptResult, error) {
	items, err := parseScriptList(out)
	if err != nil {
		return scriptResult{}, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	if len(items) != c.spec.arity {
		return scriptResult{}, fmt.Errorf("%w: got %d items, want %d", ErrQueryFailed, len(items), c.spec.arity)
	}
	if reflect.DeepEqual(items, c.fallback) {
		return scriptResult{}, fmt.Errorf("%w: application reported an error", ErrQueryFailed)
	}

	r := &tupleReader{t: items}
	res := c.spec.decode(r)
	if r.err != nil {
		return scriptResult{}, fmt.Errorf("%w: %v", ErrQueryFailed, r.err)
	}
	return res, nil
}

func (c *ScriptController) apply(seq uint64, res scriptResult) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if seq <= c.applied {
		c.mu.Unlock()
		c.logger.Debug("Dropping superseded query result", zap.Uint64("trigger", seq), zap.Uint64("applied", c.applied))
		return
	}
	c.applied = seq

	state := res.state
	state.BundleIdentifier = c.spec.bundleID
	state.LastUpdated = c.clock.Now()

	var fetchURL string
	if res.artworkURL != "" {
		if res.artworkURL != c.artURL {
			c.artURL = res.artworkURL
			c.art = nil
			fetchURL = res.artworkURL
		}
		state.Artwork = c.art
	}
	state = state.Clamped()

	changed := !c.hasState || !state.Equal(c.state)
	c.state = state
	c.hasState = true
	c.mu.Unlock()

	if changed {
		c.pub.publish(state)
	}
	if fetchURL != "" && c.fetcher != nil {
		c.fetchArtwork(fetchURL)
	}
}

// fetchArtwork downloads the image at url and attaches it to the current state,
// unless a later result has moved on to another track
func (c *ScriptController) fetchArtwork(url string) {
	data, err := c.fetcher.Fetch(c.ctx, url)
	if err != nil {
		// Forget the URL so the next refresh of this track retries
		c.mu.Lock()
		if c.artURL == url {
			c.artURL = ""
		}
		c.mu.Unlock()
		c.logger.Warn("Artwork fetch failed, continuing without artwork", zap.String("url", url), zap.Error(err))
		return
	}

	c.mu.Lock()
	if c.closed || c.artURL != url {
		c.mu.Unlock()
		return
	}
	c.art = data
	c.state.Artwork = data
	state := c.state
	c.mu.Unlock()

	c.pub.publish(state)
}

func (c *ScriptController) Play()          { c.command(c.spec.commands.play, false) }
func (c *ScriptController) Pause()         { c.command(c.spec.commands.pause, false) }
func (c *ScriptController) TogglePlay()    { c.command(c.spec.commands.toggle, false) }
func (c *ScriptController) NextTrack()     { c.command(c.spec.commands.next, false) }
func (c *ScriptController) PreviousTrack() { c.command(c.spec.commands.previous, false) }

func (c *ScriptController) Seek(seconds float64) {
	c.command(c.spec.commands.seek(seconds), true)
}

func (c *ScriptController) ToggleShuffle() {
	c.mu.Lock()
	enabled := !c.state.IsShuffled
	c.mu.Unlock()
	c.command(c.spec.commands.shuffle(enabled), true)
}

func (c *ScriptController) ToggleRepeat() {
	c.mu.Lock()
	next := c.state.RepeatMode.Next()
	c.mu.Unlock()
	c.command(c.spec.commands.repeat(next), true)
}

func (c *ScriptController) SetVolume(level float64) {
	if c.spec.commands.volume == nil {
		c.logger.Debug("Volume control not supported", zap.Float64("level", level))
		return
	}
	percent := int(domain.Clamp(level, 0, 1)*100 + 0.5)
	c.command(c.spec.commands.volume(percent), true)
}

func (c *ScriptController) SetFavorite(favorite bool) {
	if c.spec.commands.favorite == nil {
		c.logger.Debug("Favorites not supported", zap.Bool("favorite", favorite))
		return
	}
	c.command(c.spec.commands.favorite(favorite), true)
}

// command runs script in the background. settle schedules a follow-up refresh for
// mutations the application does not announce.
func (c *ScriptController) command(script string, settle bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		if !c.IsActive() {
			c.logger.Debug("Application not running, dropping command", zap.String("process", c.spec.processName))
			return
		}

		ctx, cancel := context.WithTimeout(c.ctx, scriptTimeout)
		defer cancel()

		if _, err := c.runner.Run(ctx, script); err != nil {
			c.logger.Warn("Media command failed", zap.Error(err))
			return
		}
		if settle {
			c.settle.schedule()
		}
	}()
}

// Close unregisters the notification and stops publishing before waiting for in-flight work
func (c *ScriptController) Close() error {
	c.unobserve()
	c.pub.close()
	c.settle.stop()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.logger.Info("Script controller stopped")
	return nil
}
