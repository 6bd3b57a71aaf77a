package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/dagwatch/dagwatch/src/common"
	"github.com/dagwatch/dagwatch/src/feed"
	"github.com/dagwatch/dagwatch/src/metrics"
	"github.com/dagwatch/dagwatch/src/pipeline"
	"github.com/dagwatch/dagwatch/src/retention"
	"github.com/go-playground/validator/v10"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultConfigName is the name, without extension, of the optional
	// configuration file read from the data directory.
	DefaultConfigName = "dagwatch"

	// DefaultInfoLogFile receives info and above when LogDir is set.
	DefaultInfoLogFile = "dagwatch_info.log"

	// DefaultDebugLogFile receives debug entries when LogDir is set.
	DefaultDebugLogFile = "dagwatch_debug.log"
)

// Default configuration values.
const (
	DefaultLogLevel            = "debug"
	DefaultFeedURL             = feed.DefaultURL
	DefaultServiceAddr         = "127.0.0.1:8000"
	DefaultNoService           = false
	DefaultRetryDelay          = feed.DefaultRetryDelay
	DefaultHandshakeTimeout    = feed.DefaultHandshakeTimeout
	DefaultBufferSize          = feed.DefaultBufferSize
	DefaultMaxSlotsRetained    = retention.DefaultMaxSlotsRetained
	DefaultSweepInterval       = pipeline.DefaultSweepInterval
	DefaultInitialSweepDelay   = pipeline.DefaultInitialSweepDelay
	DefaultMetricsInterval     = pipeline.DefaultMetricsInterval
	DefaultTPSWindow           = metrics.DefaultWindow
	DefaultInitialFlagDuration = pipeline.DefaultInitialFlagDuration
	DefaultPushInterval        = 1 * time.Second
)

// Config contains all the configuration properties of a dagwatch process.
type Config struct {
	// DataDir is the directory searched for the optional configuration file.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log" validate:"oneof=debug info warn error fatal panic"`

	// LogDir, when set, is where the info and debug log files are written in
	// addition to the console output.
	LogDir string `mapstructure:"log-dir"`

	// FeedURL is the websocket endpoint of the ledger node streaming vertex
	// events.
	FeedURL string `mapstructure:"feed" validate:"required,url"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP service.
	ServiceAddr string `mapstructure:"service-listen" validate:"required_unless=NoService true"`

	// RetryDelay is the pause between the loss of the feed connection and the
	// next connection attempt.
	RetryDelay time.Duration `mapstructure:"retry" validate:"gt=0"`

	// HandshakeTimeout bounds the websocket opening handshake.
	HandshakeTimeout time.Duration `mapstructure:"handshake-timeout" validate:"gt=0"`

	// BufferSize is the capacity of the channel between the feed and the
	// pipeline.
	BufferSize int `mapstructure:"buffer" validate:"gte=0"`

	// MaxSlotsRetained is the width, in slots, of the retention window.
	MaxSlotsRetained uint32 `mapstructure:"max-slots" validate:"gt=0"`

	// SweepInterval is the period of the retention sweep.
	SweepInterval time.Duration `mapstructure:"sweep" validate:"gt=0"`

	// InitialSweepDelay is how long after each connection the isolated
	// vertices are cleared.
	InitialSweepDelay time.Duration `mapstructure:"initial-sweep" validate:"gte=0"`

	// MetricsInterval is the period at which TPS is recomputed.
	MetricsInterval time.Duration `mapstructure:"metrics" validate:"gt=0"`

	// TPSWindow is the sliding window over which TPS is averaged.
	TPSWindow time.Duration `mapstructure:"tps-window" validate:"gt=0"`

	// InitialFlagDuration is how long a new vertex is reported as initial.
	InitialFlagDuration time.Duration `mapstructure:"initial-flag" validate:"gte=0"`

	// PushInterval is the period at which the graph is pushed to websocket
	// clients of the service.
	PushInterval time.Duration `mapstructure:"push" validate:"gt=0"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:             DefaultDataDir(),
		LogLevel:            DefaultLogLevel,
		FeedURL:             DefaultFeedURL,
		NoService:           DefaultNoService,
		ServiceAddr:         DefaultServiceAddr,
		RetryDelay:          DefaultRetryDelay,
		HandshakeTimeout:    DefaultHandshakeTimeout,
		BufferSize:          DefaultBufferSize,
		MaxSlotsRetained:    DefaultMaxSlotsRetained,
		SweepInterval:       DefaultSweepInterval,
		InitialSweepDelay:   DefaultInitialSweepDelay,
		MetricsInterval:     DefaultMetricsInterval,
		TPSWindow:           DefaultTPSWindow,
		InitialFlagDuration: DefaultInitialFlagDuration,
		PushInterval:        DefaultPushInterval,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// Validate checks the configuration values. The returned error lists every
// invalid field.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// FeedConfig returns the configuration of the feed supervisor.
func (c *Config) FeedConfig() feed.Config {
	return feed.Config{
		URL:              c.FeedURL,
		RetryDelay:       c.RetryDelay,
		HandshakeTimeout: c.HandshakeTimeout,
		BufferSize:       c.BufferSize,
	}
}

// PipelineConfig returns the configuration of the ingestion pipeline.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		MaxSlotsRetained:    c.MaxSlotsRetained,
		SweepInterval:       c.SweepInterval,
		InitialSweepDelay:   c.InitialSweepDelay,
		MetricsInterval:     c.MetricsInterval,
		TPSWindow:           c.TPSWindow,
		InitialFlagDuration: c.InitialFlagDuration,
	}
}

// Logger returns a formatted logrus Entry, with prefix set to "dagwatch".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogDir != "" {
			c.addFileHook()
		}
	}
	return c.logger.WithField("prefix", "dagwatch")
}

// addFileHook mirrors the log output to files in LogDir. A file that cannot
// be created is skipped and the console output is kept.
func (c *Config) addFileHook() {
	pathMap := lfshook.PathMap{}

	levels := map[logrus.Level]string{
		logrus.InfoLevel:  DefaultInfoLogFile,
		logrus.DebugLevel: DefaultDebugLogFile,
	}

	for level, name := range levels {
		path := filepath.Join(c.LogDir, name)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			c.logger.WithError(err).Infof("Failed to open %s, using default stderr", path)
			continue
		}
		f.Close()

		pathMap[level] = path
		if level == logrus.InfoLevel {
			for _, l := range []logrus.Level{logrus.WarnLevel, logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel} {
				pathMap[l] = path
			}
		}
	}

	if len(pathMap) == 0 {
		return
	}

	c.logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))
}

// DefaultDataDir return the default directory name for the dagwatch
// configuration file based on the underlying OS, attempting to respect
// conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Dagwatch")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Dagwatch")
		} else {
			return filepath.Join(home, ".dagwatch")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
