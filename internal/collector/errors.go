package collector

import "codeberg.org/mutker/nvidiautil/internal/errors"

const (
	ErrSourceMismatch  = errors.ErrorCode("collector_source_mismatch")
	ErrDuplicateMetric = errors.ErrorCode("collector_duplicate_metric")
	ErrInvalidObserver = errors.ErrorCode("collector_invalid_observer")
	ErrInvalidDevice   = errors.ErrorCode("collector_invalid_device")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrSourceMismatch:  "Metric is bound to a different source",
		ErrDuplicateMetric: "Metric already added to collector",
		ErrInvalidObserver: "Observer must not be nil",
		ErrInvalidDevice:   "Device index out of range",
	})
}
