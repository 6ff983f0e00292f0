package config

import "time"

// Provider defines read access to the loaded configuration
type Provider interface {
	// GetPeriod returns the polling period
	GetPeriod() time.Duration

	// GetTimeout returns the per-invocation source timeout
	GetTimeout() time.Duration

	// GetMetrics returns the enabled metric keys in display order
	GetMetrics() []string

	// GetLogLevel returns the configured logging level
	GetLogLevel() string
}

// Option defines a configuration option that can be passed to Load
type Option func(*options) error

// options holds internal configuration options
type options struct {
	configPath string
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}
