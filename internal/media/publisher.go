package media

import (
	"sync"
	"time"

	"github.com/genricoloni/notchd/internal/domain"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const updateBufferSize = 16

// publisher owns a controller's update channel. Sends never block; once closed, nothing is sent.
type publisher struct {
	logger          *zap.Logger
	mu              sync.Mutex
	updates         chan domain.PlaybackState
	closed          bool
	lastDropWarning time.Time // Rate limiting for "channel full" warnings
}

func newPublisher(logger *zap.Logger) *publisher {
	return &publisher{
		logger:  logger,
		updates: make(chan domain.PlaybackState, updateBufferSize),
	}
}

// publish reports whether state was handed to the channel
func (p *publisher) publish(state domain.PlaybackState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}

	select {
	case p.updates <- state:
		return true
	default:
		// Rate limit to max one warning per 5 seconds
		if now := time.Now(); now.Sub(p.lastDropWarning) >= 5*time.Second {
			p.logger.Warn("Update channel full, dropping playback state",
				zap.String("bundle", state.BundleIdentifier),
				zap.String("title", state.Title))
			p.lastDropWarning = now
		}
		return false
	}
}

func (p *publisher) close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.updates)
}

// settler schedules the follow-up refresh after a command whose effect is not pushed back.
// A pending refresh is cancelled before a new one is scheduled.
type settler struct {
	clock   clockwork.Clock
	delay   time.Duration
	refresh func()

	mu      sync.Mutex
	timer   clockwork.Timer
	stopped bool
}

func newSettler(clock clockwork.Clock, delay time.Duration, refresh func()) *settler {
	return &settler{clock: clock, delay: delay, refresh: refresh}
}

func (s *settler) schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(s.delay, s.refresh)
}

func (s *settler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
