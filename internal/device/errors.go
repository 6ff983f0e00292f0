package device

import (
	"codeberg.org/mutker/nvidiautil/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	// Enumeration Errors
	ErrNoDevices         = errors.ErrorCode("no_devices")
	ErrEnumerationFailed = errors.ErrorCode("device_enumeration_failed")
	ErrUnknownEnumerator = errors.ErrorCode("device_unknown_enumerator")

	// NVML Errors
	ErrInitFailed        = errors.ErrorCode("gpu_init_failed")
	ErrShutdownFailed    = errors.ErrorCode("gpu_shutdown_failed")
	ErrNotInitialized    = errors.ErrorCode("gpu_not_initialized")
	ErrDeviceCountFailed = errors.ErrorCode("gpu_device_count_failed")
	ErrDeviceNotFound    = errors.ErrorCode("gpu_device_not_found")
	ErrDeviceInfoFailed  = errors.ErrorCode("gpu_device_info_failed")
	ErrReadingFailed     = errors.ErrorCode("gpu_reading_failed")
	ErrUnsupportedQuery  = errors.ErrorCode("gpu_unsupported_query")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrNoDevices:         "No GPUs found",
		ErrEnumerationFailed: "Failed to enumerate GPUs",
		ErrUnknownEnumerator: "Unknown device enumerator",
		ErrInitFailed:        "Failed to initialize NVML",
		ErrShutdownFailed:    "Failed to shut down NVML",
		ErrNotInitialized:    "NVML not initialized",
		ErrDeviceCountFailed: "Failed to get GPU count",
		ErrDeviceNotFound:    "GPU not found",
		ErrDeviceInfoFailed:  "Failed to get GPU info",
		ErrReadingFailed:     "Failed to read GPU telemetry",
		ErrUnsupportedQuery:  "Query not available through NVML",
	})
}

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

// newNVMLError creates an error from an NVML return code
func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

// IsNVMLSuccess checks if a Return value indicates success
func IsNVMLSuccess(ret nvml.Return) bool {
	return ret == nvml.SUCCESS
}
