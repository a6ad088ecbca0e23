package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/genricoloni/notchd/internal/domain"
	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrTransportUnavailable is returned when a controller's transport cannot be brought up
var ErrTransportUnavailable = errors.New("media transport unavailable")

const (
	bridgeStreamMode = "stream"
	commandTimeout   = 5 * time.Second
)

// MediaRemote command identifiers understood by the helper's send mode
const (
	remotePlay     = 0
	remotePause    = 1
	remoteToggle   = 2
	remoteNext     = 4
	remotePrevious = 5
)

// CommandRunner runs a one-shot external command
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// BridgeController follows whichever application owns system media focus by reading
// the newline-delimited JSON stream of a helper process.
type BridgeController struct {
	logger *zap.Logger
	clock  clockwork.Clock
	helper string
	script string
	runner CommandRunner
	pub    *publisher
	settle *settler

	mu        sync.Mutex
	state     domain.PlaybackState
	closed    bool
	streamErr error // Abnormal stream or helper exit, reported by Close

	ctx    context.Context
	cancel context.CancelFunc
	cmd    *exec.Cmd
	wg     sync.WaitGroup // Tracks the stream reader and command goroutines
}

// NewBridgeController launches `helper script stream` and starts consuming its output.
// It fails with ErrTransportUnavailable when the helper cannot be started.
func NewBridgeController(
	ctx context.Context,
	logger *zap.Logger,
	clock clockwork.Clock,
	helper, script string,
	runner CommandRunner,
	settleDelay time.Duration,
) (*BridgeController, error) {
	if _, err := exec.LookPath(helper); err != nil {
		return nil, fmt.Errorf("%w: helper %s: %v", ErrTransportUnavailable, helper, err)
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("%w: script %s: %v", ErrTransportUnavailable, script, err)
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, helper, script, bridgeStreamMode)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to start %s: %v", ErrTransportUnavailable, helper, err)
	}

	b := &BridgeController{
		logger: logger,
		clock:  clock,
		helper: helper,
		script: script,
		runner: runner,
		pub:    newPublisher(logger),
		state:  domain.NewPlaybackState(""),
		ctx:    procCtx,
		cancel: cancel,
		cmd:    cmd,
	}
	b.settle = newSettler(clock, settleDelay, b.Refresh)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		streamErr := b.consume(stdout)
		if err := cmd.Wait(); err != nil && procCtx.Err() == nil {
			b.logger.Error("Media bridge helper exited", zap.Error(err))
			streamErr = multierr.Append(streamErr, fmt.Errorf("helper exited: %w", err))
		}
		b.mu.Lock()
		b.streamErr = streamErr
		b.mu.Unlock()
	}()

	logger.Info("Media bridge started",
		zap.String("helper", helper),
		zap.String("script", script),
		zap.Int("pid", cmd.Process.Pid))

	return b, nil
}

// consume reads complete lines until r is exhausted. Each line is handled as soon as it ends.
// It returns the read error unless the stream ended normally or the controller was closed.
func (b *BridgeController) consume(r io.Reader) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			b.handleLine(line)
		}
		if err == nil {
			continue
		}
		if b.ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, io.EOF) {
			b.logger.Warn("Media bridge stream closed, keeping last known state")
			return nil
		}
		b.logger.Error("Media bridge stream failed", zap.Error(err))
		return fmt.Errorf("stream read: %w", err)
	}
}

func (b *BridgeController) handleLine(line []byte) {
	l, err := decodeBridgeLine(line)
	if err != nil {
		b.logger.Warn("Skipping malformed bridge line", zap.Error(err), zap.Int("bytes", len(line)))
		return
	}

	b.mu.Lock()
	b.state = applyBridgeLine(b.logger, b.state, l, b.clock.Now())
	state := b.state
	b.mu.Unlock()

	b.pub.publish(state)
}

// Source names the controller variant
func (b *BridgeController) Source() domain.MediaSource { return domain.SourceNowPlaying }

// Updates streams reconciled snapshots in line order
func (b *BridgeController) Updates() <-chan domain.PlaybackState { return b.pub.updates }

// Capabilities of the bridge: transport only
func (b *BridgeController) Capabilities() domain.Capabilities { return domain.Capabilities{} }

// IsActive always reports true: the helper has no cheap liveness probe, staleness shows as
// an absence of updates.
func (b *BridgeController) IsActive() bool { return true }

// Refresh republishes the last reconciled state; the stream itself is push-only
func (b *BridgeController) Refresh() {
	b.mu.Lock()
	state := b.state
	b.mu.Unlock()
	b.pub.publish(state)
}

func (b *BridgeController) Play()          { b.send(remotePlay) }
func (b *BridgeController) Pause()         { b.send(remotePause) }
func (b *BridgeController) TogglePlay()    { b.send(remoteToggle) }
func (b *BridgeController) NextTrack()     { b.send(remoteNext) }
func (b *BridgeController) PreviousTrack() { b.send(remotePrevious) }

// Seek moves the playhead; the helper expects microseconds
func (b *BridgeController) Seek(seconds float64) {
	b.run(true, "seek", strconv.FormatInt(int64(seconds*1e6), 10))
}

func (b *BridgeController) ToggleShuffle() {
	b.mu.Lock()
	mode := 3
	if b.state.IsShuffled {
		mode = shuffleModeOff
	}
	b.mu.Unlock()
	b.run(true, "shuffle", strconv.Itoa(mode))
}

func (b *BridgeController) ToggleRepeat() {
	b.mu.Lock()
	next := b.state.RepeatMode.Next()
	b.mu.Unlock()
	b.run(true, "repeat", strconv.Itoa(int(next)))
}

func (b *BridgeController) SetVolume(level float64) {
	b.logger.Debug("Volume control is not supported by the media bridge", zap.Float64("level", level))
}

func (b *BridgeController) SetFavorite(favorite bool) {
	b.logger.Debug("Favorites are not supported by the media bridge", zap.Bool("favorite", favorite))
}

func (b *BridgeController) send(id int) {
	b.run(false, "send", strconv.Itoa(id))
}

// run issues a one-shot helper command in the background
func (b *BridgeController) run(settle bool, args ...string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	full := append([]string{b.script}, args...)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
		defer cancel()

		if _, err := b.runner.Output(ctx, b.helper, full...); err != nil {
			b.logger.Warn("Media bridge command failed", zap.Strings("args", args), zap.Error(err))
			return
		}
		if settle {
			b.settle.schedule()
		}
	}()
}

// Close stops publishing, then terminates the helper and waits for every goroutine.
// It reports stream failures that happened while the controller was running.
func (b *BridgeController) Close() error {
	b.pub.close()
	b.settle.stop()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	err := b.streamErr
	b.mu.Unlock()

	b.logger.Info("Media bridge stopped", zap.Error(err))
	return err
}
