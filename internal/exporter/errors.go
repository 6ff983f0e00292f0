package exporter

import "codeberg.org/mutker/nvidiautil/internal/errors"

const (
	ErrRegisterMetric  = errors.ErrorCode("exporter_register_failed")
	ErrUnknownSpec     = errors.ErrorCode("exporter_unknown_spec")
	ErrListenFailed    = errors.ErrorCode("exporter_listen_failed")
	ErrServerShutdown  = errors.ErrShutdownFailed
	ErrServerNotActive = errors.ErrorCode("exporter_server_not_started")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrRegisterMetric:  "Failed to register Prometheus collector",
		ErrUnknownSpec:     "Metric is not exported",
		ErrListenFailed:    "Failed to listen for metrics requests",
		ErrServerNotActive: "Metrics server is not started",
	})
}
