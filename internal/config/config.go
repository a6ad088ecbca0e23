package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/20after4/configdir"
	"github.com/genricoloni/notchd/internal/domain"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

const (
	appName        = "notchd"
	configFileName = "config.toml"

	defaultMediaSource         = domain.SourceNowPlaying
	defaultBridgeHelper        = "/usr/bin/perl"
	defaultBridgeScriptName    = "mediaremote-adapter.pl"
	defaultIdleWait            = 3 * time.Second
	defaultSettleDelay         = 150 * time.Millisecond
	defaultNotificationPoll    = time.Second
	defaultHealthCheck         = 5 * time.Second
	defaultSneakPeek           = 1500 * time.Millisecond
	defaultArtworkCacheSize    = 32
	defaultBatteryPoll         = 5 * time.Second
	defaultBatteryDelay        = time.Second
	defaultLowBatteryThreshold = 20
)

// fileConfig mirrors config.toml. Durations are Go duration strings.
type fileConfig struct {
	MediaSource          string  `toml:"media_source"`
	BridgeHelper         string  `toml:"bridge_helper"`
	BridgeScript         string  `toml:"bridge_script"`
	BridgeDeprecatedFrom string  `toml:"bridge_deprecated_from"`
	IdleWait             string  `toml:"idle_wait"`
	SettleDelay          string  `toml:"settle_delay"`
	NotificationPoll     string  `toml:"notification_poll"`
	HealthCheck          string  `toml:"health_check"`
	SneakPeek            string  `toml:"sneak_peek"`
	ArtworkCacheSize     int     `toml:"artwork_cache_size"`
	IconDir              string  `toml:"icon_dir"`
	BatteryPoll          string  `toml:"battery_poll"`
	BatteryDeliveryDelay string  `toml:"battery_delivery_delay"`
	LowBatteryThreshold  float64 `toml:"low_battery_threshold"`
}

// AppConfig holds application configuration
type AppConfig struct {
	logger *zap.Logger

	mediaSource          domain.MediaSource
	bridgeHelper         string
	bridgeScript         string
	bridgeDeprecatedFrom string
	idleWait             time.Duration
	settleDelay          time.Duration
	notificationPoll     time.Duration
	healthCheck          time.Duration
	sneakPeek            time.Duration
	artworkCacheSize     int
	iconDir              string
	batteryPoll          time.Duration
	batteryDeliveryDelay time.Duration
	lowBatteryThreshold  float64
}

// NewAppConfig creates a new application configuration instance.
// Values come from defaults, then the config file, then NOTCHD_* environment variables.
func NewAppConfig(logger *zap.Logger) *AppConfig {
	path := os.Getenv("NOTCHD_CONFIG")
	if path == "" {
		path = filepath.Join(configdir.LocalConfig(appName), configFileName)
	}
	return Load(logger, path, os.Getenv)
}

// Load builds the configuration from the file at path (optional) and the getenv lookup
func Load(logger *zap.Logger, path string, getenv func(string) string) *AppConfig {
	c := defaults()
	c.logger = logger

	if fc, err := readFile(path); err == nil {
		c.applyFile(fc)
		logger.Debug("Configuration file loaded", zap.String("path", path))
	} else if !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Ignoring unreadable configuration file", zap.String("path", path), zap.Error(err))
	}

	c.applyEnv(getenv)

	logger.Info("Configuration loaded",
		zap.String("mediaSource", string(c.mediaSource)),
		zap.String("bridgeScript", c.bridgeScript),
		zap.Duration("idleWait", c.idleWait),
		zap.Int("artworkCacheSize", c.artworkCacheSize))

	return c
}

func defaults() *AppConfig {
	return &AppConfig{
		mediaSource:          defaultMediaSource,
		bridgeHelper:         defaultBridgeHelper,
		bridgeScript:         defaultBridgeScript(),
		idleWait:             defaultIdleWait,
		settleDelay:          defaultSettleDelay,
		notificationPoll:     defaultNotificationPoll,
		healthCheck:          defaultHealthCheck,
		sneakPeek:            defaultSneakPeek,
		artworkCacheSize:     defaultArtworkCacheSize,
		batteryPoll:          defaultBatteryPoll,
		batteryDeliveryDelay: defaultBatteryDelay,
		lowBatteryThreshold:  defaultLowBatteryThreshold,
	}
}

// defaultBridgeScript resolves the adapter script inside the app bundle resources
func defaultBridgeScript() string {
	exe, err := os.Executable()
	if err != nil {
		return defaultBridgeScriptName
	}
	return filepath.Join(filepath.Dir(exe), "..", "Resources", defaultBridgeScriptName)
}

func readFile(path string) (*fileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fc := &fileConfig{}
	if err := toml.NewDecoder(f).Decode(fc); err != nil {
		return nil, err
	}
	return fc, nil
}

func (c *AppConfig) applyFile(fc *fileConfig) {
	c.setSource("media_source", fc.MediaSource)
	c.setString(&c.bridgeHelper, fc.BridgeHelper)
	c.setString(&c.bridgeScript, fc.BridgeScript)
	c.setString(&c.bridgeDeprecatedFrom, fc.BridgeDeprecatedFrom)
	c.setDuration("idle_wait", &c.idleWait, fc.IdleWait)
	c.setDuration("settle_delay", &c.settleDelay, fc.SettleDelay)
	c.setDuration("notification_poll", &c.notificationPoll, fc.NotificationPoll)
	c.setDuration("health_check", &c.healthCheck, fc.HealthCheck)
	c.setDuration("sneak_peek", &c.sneakPeek, fc.SneakPeek)
	c.setDuration("battery_poll", &c.batteryPoll, fc.BatteryPoll)
	c.setDuration("battery_delivery_delay", &c.batteryDeliveryDelay, fc.BatteryDeliveryDelay)
	c.setString(&c.iconDir, fc.IconDir)
	if fc.ArtworkCacheSize > 0 {
		c.artworkCacheSize = fc.ArtworkCacheSize
	}
	if fc.LowBatteryThreshold > 0 {
		c.lowBatteryThreshold = fc.LowBatteryThreshold
	}
}

func (c *AppConfig) applyEnv(getenv func(string) string) {
	c.setSource("NOTCHD_MEDIA_SOURCE", getenv("NOTCHD_MEDIA_SOURCE"))
	c.setString(&c.bridgeHelper, getenv("NOTCHD_BRIDGE_HELPER"))
	c.setString(&c.bridgeScript, os.ExpandEnv(getenv("NOTCHD_BRIDGE_SCRIPT")))
	c.setString(&c.bridgeDeprecatedFrom, getenv("NOTCHD_BRIDGE_DEPRECATED_FROM"))
	c.setDuration("NOTCHD_IDLE_WAIT", &c.idleWait, getenv("NOTCHD_IDLE_WAIT"))
	c.setDuration("NOTCHD_SETTLE_DELAY", &c.settleDelay, getenv("NOTCHD_SETTLE_DELAY"))
	c.setDuration("NOTCHD_NOTIFICATION_POLL", &c.notificationPoll, getenv("NOTCHD_NOTIFICATION_POLL"))
	c.setDuration("NOTCHD_HEALTH_CHECK", &c.healthCheck, getenv("NOTCHD_HEALTH_CHECK"))
	c.setDuration("NOTCHD_SNEAK_PEEK", &c.sneakPeek, getenv("NOTCHD_SNEAK_PEEK"))
	c.setDuration("NOTCHD_BATTERY_POLL", &c.batteryPoll, getenv("NOTCHD_BATTERY_POLL"))
	c.setDuration("NOTCHD_BATTERY_DELAY", &c.batteryDeliveryDelay, getenv("NOTCHD_BATTERY_DELAY"))

	iconDir := os.ExpandEnv(getenv("NOTCHD_ICON_DIR"))
	// Expand path if it starts with ~
	if len(iconDir) > 0 && iconDir[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			iconDir = filepath.Join(home, iconDir[1:])
		}
	}
	c.setString(&c.iconDir, iconDir)

	if v := getenv("NOTCHD_ARTWORK_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.artworkCacheSize = n
		} else {
			c.logger.Warn("Invalid artwork cache size, keeping default", zap.String("value", v))
		}
	}
	if v := getenv("NOTCHD_LOW_BATTERY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 100 {
			c.lowBatteryThreshold = f
		} else {
			c.logger.Warn("Invalid low battery threshold, keeping default", zap.String("value", v))
		}
	}
}

func (c *AppConfig) setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *AppConfig) setSource(key, v string) {
	if v == "" {
		return
	}
	src := domain.MediaSource(v)
	if !src.Valid() {
		c.logger.Warn("Unknown media source, keeping previous value",
			zap.String("key", key),
			zap.String("value", v))
		return
	}
	c.mediaSource = src
}

func (c *AppConfig) setDuration(key string, dst *time.Duration, v string) {
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		c.logger.Warn("Invalid duration, keeping previous value",
			zap.String("key", key),
			zap.String("value", v))
		return
	}
	*dst = d
}

// GetMediaSource returns the preferred media source
func (c *AppConfig) GetMediaSource() domain.MediaSource { return c.mediaSource }

// GetBridgeHelper returns the executable that runs the media bridge script
func (c *AppConfig) GetBridgeHelper() string { return c.bridgeHelper }

// GetBridgeScript returns the resource path handed to the bridge helper
func (c *AppConfig) GetBridgeScript() string { return c.bridgeScript }

// GetBridgeDeprecatedFrom returns the first OS version where the bridge is unusable
func (c *AppConfig) GetBridgeDeprecatedFrom() string { return c.bridgeDeprecatedFrom }

func (c *AppConfig) GetIdleWait() time.Duration             { return c.idleWait }
func (c *AppConfig) GetSettleDelay() time.Duration          { return c.settleDelay }
func (c *AppConfig) GetNotificationPoll() time.Duration     { return c.notificationPoll }
func (c *AppConfig) GetHealthCheck() time.Duration          { return c.healthCheck }
func (c *AppConfig) GetSneakPeek() time.Duration            { return c.sneakPeek }
func (c *AppConfig) GetArtworkCacheSize() int               { return c.artworkCacheSize }
func (c *AppConfig) GetIconDir() string                     { return c.iconDir }
func (c *AppConfig) GetBatteryPoll() time.Duration          { return c.batteryPoll }
func (c *AppConfig) GetBatteryDeliveryDelay() time.Duration { return c.batteryDeliveryDelay }
func (c *AppConfig) GetLowBatteryThreshold() float64        { return c.lowBatteryThreshold }
