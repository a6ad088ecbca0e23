package media

import (
	"context"
	"fmt"

	"github.com/genricoloni/notchd/internal/domain"
	"github.com/hashicorp/go-version"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// OSVersion is the running OS version string, e.g. "15.4.1"
type OSVersion string

// Factory selects and builds media controllers
type Factory struct {
	logger    *zap.Logger
	cfg       domain.Config
	clock     clockwork.Clock
	scripts   domain.ScriptRunner
	commands  CommandRunner
	procs     domain.ProcessChecker
	notifier  domain.Notifier
	fetcher   domain.Fetcher
	osVersion OSVersion
}

// NewFactory creates a new controller factory
func NewFactory(
	logger *zap.Logger,
	cfg domain.Config,
	clock clockwork.Clock,
	scripts domain.ScriptRunner,
	commands CommandRunner,
	procs domain.ProcessChecker,
	notifier domain.Notifier,
	fetcher domain.Fetcher,
	osVersion OSVersion,
) *Factory {
	return &Factory{
		logger:    logger,
		cfg:       cfg,
		clock:     clock,
		scripts:   scripts,
		commands:  commands,
		procs:     procs,
		notifier:  notifier,
		fetcher:   fetcher,
		osVersion: osVersion,
	}
}

// Resolve maps a preferred source to the source that will be built.
// The system bridge is replaced by Apple Music from the configured deprecation version on.
func (f *Factory) Resolve(pref domain.MediaSource) domain.MediaSource {
	if !pref.Valid() {
		f.logger.Warn("Unknown media source, using system bridge", zap.String("source", string(pref)))
		pref = domain.SourceNowPlaying
	}

	from := f.cfg.GetBridgeDeprecatedFrom()
	if pref != domain.SourceNowPlaying || from == "" || f.osVersion == "" {
		return pref
	}
	cmp, err := compareVersions(string(f.osVersion), from)
	if err != nil {
		f.logger.Warn("Cannot compare OS versions, keeping system bridge", zap.Error(err))
		return pref
	}
	if cmp >= 0 {
		f.logger.Info("System bridge unavailable on this OS version, using Apple Music",
			zap.String("osVersion", string(f.osVersion)),
			zap.String("deprecatedFrom", from))
		return domain.SourceAppleMusic
	}
	return pref
}

// Create builds the controller for pref. When the resolved controller cannot be
// constructed, the Apple Music controller is returned instead.
func (f *Factory) Create(ctx context.Context, pref domain.MediaSource) domain.MediaController {
	switch source := f.Resolve(pref); source {
	case domain.SourceNowPlaying:
		ctrl, err := NewBridgeController(ctx, f.logger, f.clock,
			f.cfg.GetBridgeHelper(), f.cfg.GetBridgeScript(), f.commands, f.cfg.GetSettleDelay())
		if err == nil {
			return ctrl
		}
		f.logger.Warn("System bridge unavailable, falling back to Apple Music", zap.Error(err))
	case domain.SourceSpotify:
		return NewSpotifyController(ctx, f.logger, f.clock, f.scripts, f.procs, f.notifier, f.fetcher, f.cfg.GetSettleDelay())
	}
	return NewAppleMusicController(ctx, f.logger, f.clock, f.scripts, f.procs, f.notifier, f.cfg.GetSettleDelay())
}

// compareVersions compares dotted OS versions such as "15.4" and "15.4.1".
// Missing components count as zero.
func compareVersions(a, b string) (int, error) {
	va, err := version.NewVersion(a)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", a, err)
	}
	vb, err := version.NewVersion(b)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", b, err)
	}
	return va.Compare(vb), nil
}
