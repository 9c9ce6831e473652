// Package config defines the configuration of a cairn server.
//
// Whether cairn is started from Go code or from the command line, options
// travel in the Config object defined here. The served directory is the only
// required piece: everything under it is visible to clients, and a
// repository is any subdirectory holding a revision store under .cairn/db.
package config

import (
	"os"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/cairn-scm/cairn/src/common"
	"github.com/cairn-scm/cairn/src/graph"
)

// Default configuration values.
const (
	DefaultLogLevel = "debug"
	DefaultBindAddr = "127.0.0.1:7641"
	DefaultTimeout  = 300 * time.Second
)

// Config contains all the configuration properties of a cairn server.
type Config struct {
	// Directory is the root of the served tree. Client paths are resolved
	// against it and cannot escape it.
	Directory string `mapstructure:"directory"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, copies info- and debug-level output to this file.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port the TCP server listens on.
	BindAddr string `mapstructure:"listen"`

	// HTTPAddr is the address:port of the optional HTTP front end; empty
	// disables it.
	HTTPAddr string `mapstructure:"http-listen"`

	// Inet serves a single connection over stdin/stdout instead of
	// listening, the mode used under inetd and ssh tunnels.
	Inet bool `mapstructure:"inet"`

	// ReadOnly refuses all mutating operations.
	ReadOnly bool `mapstructure:"readonly"`

	// NoVFS refuses raw filesystem verbs, limiting clients to the
	// high-level repository verbs.
	NoVFS bool `mapstructure:"no-vfs"`

	// Timeout drops connections idle for this long between requests.
	Timeout time.Duration `mapstructure:"timeout"`

	// SearchBudget bounds the serialized size of one parent-map response.
	// The default is tuned for typical revision-id lengths; deployments
	// with long keys or slow links may want it lower.
	SearchBudget int `mapstructure:"search-budget"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Directory:    ".",
		LogLevel:     DefaultLogLevel,
		BindAddr:     DefaultBindAddr,
		Timeout:      DefaultTimeout,
		SearchBudget: graph.DefaultSearchBudget,
	}
}

// NewTestConfig returns a config object with default values and a logger
// wired to the test runner.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// Logger returns a formatted logrus Entry, with prefix set to "cairn".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			if _, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY, 0666); err != nil {
				c.logger.WithField("file", c.LogFile).Info("Cannot open log file, using stderr only")
			} else {
				c.logger.Hooks.Add(lfshook.NewHook(
					lfshook.PathMap{
						logrus.InfoLevel:  c.LogFile,
						logrus.DebugLevel: c.LogFile,
					},
					&logrus.TextFormatter{},
				))
			}
		}
	}
	return c.logger.WithField("prefix", "cairn")
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
