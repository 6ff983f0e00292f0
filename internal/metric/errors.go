package metric

import "codeberg.org/mutker/nvidiautil/internal/errors"

const (
	// Parse Errors
	ErrParseCountMismatch  = errors.ErrorCode("parse_count_mismatch")
	ErrParseMalformedValue = errors.ErrorCode("parse_malformed_value")

	// Definition Errors
	ErrInvalidSpec      = errors.ErrorCode("metric_invalid_spec")
	ErrInvalidDeviceNum = errors.ErrorCode("metric_invalid_device_count")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrParseCountMismatch:  "Parsed value count does not match device count",
		ErrParseMalformedValue: "Malformed metric value",
		ErrInvalidSpec:         "Invalid metric definition",
		ErrInvalidDeviceNum:    "Invalid device count",
	})
}

// CountMismatch is attached to ErrParseCountMismatch errors.
type CountMismatch struct {
	Metric   string
	Expected int
	Found    int
}

// MalformedValue is attached to ErrParseMalformedValue errors.
type MalformedValue struct {
	Metric string
	Token  string
}

func countMismatch(key string, expected, found int) error {
	return errors.New().WithData(ErrParseCountMismatch, CountMismatch{
		Metric:   key,
		Expected: expected,
		Found:    found,
	})
}

func malformed(key, token string) error {
	return errors.New().WithData(ErrParseMalformedValue, MalformedValue{
		Metric: key,
		Token:  token,
	})
}
