package pipeline

import "codeberg.org/mutker/nvidiautil/internal/errors"

const (
	ErrNoSource      = errors.ErrorCode("pipeline_no_source")
	ErrNoEnumerator  = errors.ErrorCode("pipeline_no_enumerator")
	ErrPipelineClose = errors.ErrShutdownFailed
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrNoSource:     "No source configured for metric",
		ErrNoEnumerator: "No device enumerator configured",
	})
}
