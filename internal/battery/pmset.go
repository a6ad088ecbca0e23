package battery

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/notchd/internal/domain"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const pmsetTimeout = 3 * time.Second

// CommandRunner runs an external command and returns its standard output
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) (string, error)
}

var (
	drawingFrom  = regexp.MustCompile(`Now drawing from '([^']+)'`)
	batteryLine  = regexp.MustCompile(`-InternalBattery-\d+.*?\t(\d+)%;\s*([^;]+);\s*(.*)`)
	remaining    = regexp.MustCompile(`(\d+):(\d+) remaining`)
	lowPowerLine = regexp.MustCompile(`^\s*(?:lowpowermode|powermode)\s+(\d+)`)
)

// ParsePmsetBatt converts `pmset -g batt` output into a power source description.
// Machines without an internal battery yield an empty description.
func ParsePmsetBatt(out string) map[string]any {
	m := drawingFrom.FindStringSubmatch(out)
	b := batteryLine.FindStringSubmatch(out)
	if m == nil || b == nil {
		return map[string]any{}
	}

	percent, err := strconv.Atoi(b[1])
	if err != nil {
		return map[string]any{}
	}
	status := strings.TrimSpace(b[2])
	charging := status == "charging"

	minutes := 0
	if charging {
		if r := remaining.FindStringSubmatch(b[3]); r != nil {
			h, _ := strconv.Atoi(r[1])
			mins, _ := strconv.Atoi(r[2])
			minutes = h*60 + mins
		}
	}

	return map[string]any{
		KeyCurrentCapacity:  percent,
		KeyMaxCapacity:      100,
		KeyIsCharging:       charging,
		KeyPowerSourceState: m[1],
		KeyTimeToFullCharge: minutes,
	}
}

// ParsePmsetLowPower reports whether `pmset -g` output has low power mode enabled
func ParsePmsetLowPower(out string) bool {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		if m := lowPowerLine.FindStringSubmatch(scanner.Text()); m != nil {
			return m[1] == "1"
		}
	}
	return false
}

// PmsetSource polls pmset and reports a change whenever its output differs from the previous poll
type PmsetSource struct {
	logger   *zap.Logger
	clock    clockwork.Clock
	runner   CommandRunner
	interval time.Duration
	changes  chan domain.PowerChangeKind

	mu        sync.Mutex
	running   bool
	stopped   bool
	cancel    context.CancelFunc
	lastBatt  string
	lastPower bool
	wg        sync.WaitGroup
}

// NewPmsetSource creates a new pmset power source
func NewPmsetSource(logger *zap.Logger, clock clockwork.Clock, runner CommandRunner, interval time.Duration) *PmsetSource {
	return &PmsetSource{
		logger:   logger,
		clock:    clock,
		runner:   runner,
		interval: interval,
		changes:  make(chan domain.PowerChangeKind, 8),
	}
}

// Start takes the baseline reading and begins polling
func (s *PmsetSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	pollCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	batt, err := s.batt(pollCtx)
	if err != nil {
		cancel()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}
	power, _ := s.power(pollCtx)

	s.mu.Lock()
	s.lastBatt = batt
	s.lastPower = power
	s.mu.Unlock()

	s.wg.Add(1)
	go s.poll(pollCtx)

	s.logger.Info("pmset source started", zap.Duration("interval", s.interval))
	return nil
}

// Stop ends polling and closes the change stream
func (s *PmsetSource) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	close(s.changes)
	return nil
}

// Changes emits one value per detected change
func (s *PmsetSource) Changes() <-chan domain.PowerChangeKind {
	return s.changes
}

// Description runs `pmset -g batt` and parses it
func (s *PmsetSource) Description() (map[string]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pmsetTimeout)
	defer cancel()

	out, err := s.batt(ctx)
	if err != nil {
		return nil, err
	}
	return ParsePmsetBatt(out), nil
}

// LowPowerMode runs `pmset -g` and reports the low power mode flag
func (s *PmsetSource) LowPowerMode() bool {
	ctx, cancel := context.WithTimeout(context.Background(), pmsetTimeout)
	defer cancel()

	on, err := s.power(ctx)
	if err != nil {
		s.logger.Debug("Low power mode unavailable", zap.Error(err))
	}
	return on
}

func (s *PmsetSource) batt(ctx context.Context) (string, error) {
	out, err := s.runner.Output(ctx, "pmset", "-g", "batt")
	if err != nil {
		return "", fmt.Errorf("pmset batt failed: %w", err)
	}
	return out, nil
}

func (s *PmsetSource) power(ctx context.Context) (bool, error) {
	out, err := s.runner.Output(ctx, "pmset", "-g")
	if err != nil {
		return false, fmt.Errorf("pmset failed: %w", err)
	}
	return ParsePmsetLowPower(out), nil
}

func (s *PmsetSource) poll(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.check(ctx)
		}
	}
}

// check compares a fresh reading against the previous one
func (s *PmsetSource) check(ctx context.Context) {
	batt, err := s.batt(ctx)
	if err != nil {
		s.logger.Debug("Battery poll failed", zap.Error(err))
		return
	}
	power, err := s.power(ctx)
	if err != nil {
		s.logger.Debug("Low power mode poll failed", zap.Error(err))
	}

	s.mu.Lock()
	battChanged := batt != s.lastBatt
	powerChanged := err == nil && power != s.lastPower
	s.lastBatt = batt
	if err == nil {
		s.lastPower = power
	}
	s.mu.Unlock()

	if battChanged {
		s.emit(domain.PowerSourceChange)
	}
	if powerChanged {
		s.emit(domain.LowPowerModeChange)
	}
}

func (s *PmsetSource) emit(kind domain.PowerChangeKind) {
	select {
	case s.changes <- kind:
	default:
		s.logger.Debug("Power change channel full, dropping notification")
	}
}
