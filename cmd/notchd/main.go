package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/genricoloni/notchd/internal/battery"
	"github.com/genricoloni/notchd/internal/config"
	"github.com/genricoloni/notchd/internal/domain"
	"github.com/genricoloni/notchd/internal/engine"
	"github.com/genricoloni/notchd/internal/executor"
	"github.com/genricoloni/notchd/internal/fetcher"
	"github.com/genricoloni/notchd/internal/media"
	"github.com/genricoloni/notchd/internal/music"
	"github.com/genricoloni/notchd/internal/notify"
	"github.com/genricoloni/notchd/internal/processor"
	"github.com/jonboulle/clockwork"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// AppOptions is the complete dependency graph of the daemon
var AppOptions = fx.Options(
	// Provide dependencies
	fx.Provide(
		newLogger,
		newClock,
		fx.Annotate(config.NewAppConfig, fx.As(new(domain.Config))),
		executor.NewRunner,
		fx.Annotate(executor.NewScriptRunner, fx.As(new(domain.ScriptRunner))),
		fx.Annotate(executor.NewProcessChecker, fx.As(new(domain.ProcessChecker))),
		fx.Annotate(fetcher.NewHTTPFetcher, fx.As(new(domain.Fetcher))),
		notify.NewCenter,
		newPoller,
		newOSVersion,
		newControllerFactory,
		fx.Annotate(music.NewFileIconProvider, fx.As(new(domain.IconProvider))),
		processor.NewArtworkCache,
		music.NewManager,
		battery.NewPowerSource,
		battery.NewActivityManager,
		battery.NewStatusViewModel,
		newEngine,
	),

	// Lifecycle hooks
	fx.Invoke(registerHooks),
)

func main() {
	app := fx.New(
		AppOptions,
		// Logger configuration
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start the application
	if err := app.Start(ctx); err != nil {
		panic(err)
	}

	// Wait for interrupt signal
	<-ctx.Done()

	// Stop the application gracefully
	if err := app.Stop(context.Background()); err != nil {
		panic(err)
	}
}

// newLogger creates a new zap logger instance. NOTCHD_DEBUG switches to the development config.
func newLogger() (*zap.Logger, error) {
	if os.Getenv("NOTCHD_DEBUG") != "" {
		return zap.NewDevelopment()
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return logger, nil
}

func newClock() clockwork.Clock {
	return clockwork.NewRealClock()
}

// newPoller ticks the notifications the script controllers refresh on
func newPoller(logger *zap.Logger, center *notify.Center, clock clockwork.Clock, cfg domain.Config) *notify.Poller {
	return notify.NewPoller(logger, center, clock, cfg.GetNotificationPoll(),
		notify.MusicPlayerInfo, notify.SpotifyPlaybackStateChanged)
}

func newOSVersion(logger *zap.Logger) media.OSVersion {
	return media.OSVersion(executor.OSVersion(logger))
}

func newControllerFactory(
	logger *zap.Logger,
	cfg domain.Config,
	clock clockwork.Clock,
	scripts domain.ScriptRunner,
	runner *executor.Runner,
	procs domain.ProcessChecker,
	center *notify.Center,
	fetch domain.Fetcher,
	osVersion media.OSVersion,
) music.ControllerFactory {
	return media.NewFactory(logger, cfg, clock, scripts, runner, procs, center, fetch, osVersion)
}

func newEngine(logger *zap.Logger, clock clockwork.Clock, manager *music.Manager, status *battery.StatusViewModel) *engine.Engine {
	return engine.NewEngine(logger, clock, manager, status)
}

// registerHooks sets up application lifecycle hooks.
// Consumers start before producers and stop after them.
func registerHooks(
	lc fx.Lifecycle,
	logger *zap.Logger,
	poller *notify.Poller,
	manager *music.Manager,
	activity *battery.ActivityManager,
	status *battery.StatusViewModel,
	eng *engine.Engine,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx = context.WithoutCancel(ctx)
			if err := eng.Start(ctx); err != nil {
				return err
			}
			if err := status.Start(ctx); err != nil {
				return err
			}
			if err := activity.Start(ctx); err != nil {
				return err
			}
			if err := manager.Start(ctx); err != nil {
				return err
			}
			if err := poller.Start(ctx); err != nil {
				return err
			}
			logger.Info("notchd started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")
			return multierr.Combine(
				poller.Stop(),
				manager.Stop(ctx),
				activity.Stop(ctx),
				status.Stop(ctx),
				eng.Stop(ctx),
			)
		},
	})
}
