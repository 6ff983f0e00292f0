package source

import "codeberg.org/mutker/nvidiautil/internal/errors"

const (
	ErrSourceUnavailable = errors.ErrorCode("source_unavailable")
	ErrSourceNonZeroExit = errors.ErrorCode("source_nonzero_exit")
	ErrSourceEmptyOutput = errors.ErrorCode("source_empty_output")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrSourceUnavailable: "Source command unavailable",
		ErrSourceNonZeroExit: "Source command failed",
		ErrSourceEmptyOutput: "Source command produced no output",
	})
}

// Failure is attached to source errors.
type Failure struct {
	Source   string
	Path     string
	ExitCode int
	Stderr   string
}

// IsSourceError reports whether err is one of the source failure modes.
func IsSourceError(err error) bool {
	switch errors.CodeOf(err) {
	case ErrSourceUnavailable, ErrSourceNonZeroExit, ErrSourceEmptyOutput:
		return true
	}
	return false
}
