package config

import "codeberg.org/mutker/nvidiautil/internal/errors"

const (
	ErrInvalidConfig   = errors.ErrInvalidConfig
	ErrReadConfig      = errors.ErrReadConfig
	ErrBindFlags       = errors.ErrBindFlags
	ErrInvalidInterval = errors.ErrInvalidInterval
	ErrInvalidLogLevel = errors.ErrInvalidLogLevel
	ErrNoConfigFile    = errors.ErrorCode("config_no_file")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrNoConfigFile: "No configuration file to watch",
	})
}

// FieldError describes a rejected configuration value.
type FieldError struct {
	Field  string
	Value  any
	Reason string
}
