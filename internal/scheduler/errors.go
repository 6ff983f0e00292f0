package scheduler

import "codeberg.org/mutker/nvidiautil/internal/errors"

const (
	ErrInvalidInterval = errors.ErrInvalidInterval
)
