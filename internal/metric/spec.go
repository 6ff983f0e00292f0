package metric

import "codeberg.org/mutker/nvidiautil/internal/errors"

// SourceID names the external tool a Spec reads from.
type SourceID string

const (
	SourceSMI      SourceID = "nvidia-smi"
	SourceSettings SourceID = "nvidia-settings"
)

// ParseFunc turns raw source output into exactly deviceCount values in
// device-index order. key is used for error reporting only.
type ParseFunc func(key, raw string, deviceCount int) ([]Value, error)

// Spec describes one metric family.
type Spec struct {
	Key         string
	DisplayName string
	Icon        string
	Source      SourceID
	// Query is the fragment handed to the source, e.g. an nvidia-smi
	// --query-gpu field or an nvidia-settings attribute.
	Query string
	Kind  Kind
	Unit  Unit
	Parse ParseFunc
}

// Validate checks that the spec is usable by a collector.
func (s Spec) Validate() error {
	errFactory := errors.New()

	switch {
	case s.Key == "":
		return errFactory.WithMessage(ErrInvalidSpec, "metric key is empty")
	case s.Source == "":
		return errFactory.WithData(ErrInvalidSpec, "no source for "+s.Key)
	case s.Query == "":
		return errFactory.WithData(ErrInvalidSpec, "no query for "+s.Key)
	case s.Parse == nil:
		return errFactory.WithData(ErrInvalidSpec, "no parser for "+s.Key)
	}

	return nil
}

// Values parses raw output for deviceCount devices. A parser result of any
// other length is reported as a count mismatch.
func (s Spec) Values(raw string, deviceCount int) ([]Value, error) {
	if deviceCount <= 0 {
		return nil, errors.New().WithData(ErrInvalidDeviceNum, deviceCount)
	}
	if s.Parse == nil {
		return nil, errors.New().WithData(ErrInvalidSpec, "no parser for "+s.Key)
	}

	values, err := s.Parse(s.Key, raw, deviceCount)
	if err != nil {
		return nil, err
	}
	if len(values) != deviceCount {
		return nil, countMismatch(s.Key, deviceCount, len(values))
	}

	return values, nil
}
