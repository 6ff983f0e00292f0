package device

import (
	"context"
	"strings"
	"time"

	"codeberg.org/mutker/nvidiautil/internal/errors"
	"codeberg.org/mutker/nvidiautil/internal/source"
)

const (
	EnumeratorSMI  = "smi"
	EnumeratorNVML = "nvml"
)

// Device is one GPU, addressed by its zero-based index.
type Device struct {
	Index int    `yaml:"index"`
	Name  string `yaml:"name"`
}

// Enumerator lists the GPUs once at startup.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Device, error)
}

// NewEnumerator returns the enumerator named by kind.
func NewEnumerator(kind, smiPath string, timeout time.Duration) (Enumerator, error) {
	switch kind {
	case "", EnumeratorSMI:
		return NewSMIEnumerator(smiPath, timeout), nil
	case EnumeratorNVML:
		return NewNVMLEnumerator(), nil
	}

	return nil, errors.New().WithData(ErrUnknownEnumerator, kind)
}

// ParseNames turns newline separated device names into devices. Blank
// lines are skipped, so output with or without a trailing newline yields
// the same devices.
func ParseNames(output string) []Device {
	var devices []Device
	for _, line := range strings.Split(output, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		devices = append(devices, Device{Index: len(devices), Name: name})
	}

	return devices
}

// SMIEnumerator lists GPUs through nvidia-smi.
type SMIEnumerator struct {
	source source.Source
}

func NewSMIEnumerator(path string, timeout time.Duration) *SMIEnumerator {
	if path == "" {
		path = source.DefaultSMIPath
	}

	return NewSourceEnumerator(source.NewCommand("nvidia-smi", path, func(_ []string) []string {
		return []string{"--query-gpu=gpu_name", "--format=csv,noheader"}
	}, timeout))
}

// NewSourceEnumerator reads device names from an arbitrary source.
func NewSourceEnumerator(src source.Source) *SMIEnumerator {
	return &SMIEnumerator{source: src}
}

func (e *SMIEnumerator) Enumerate(ctx context.Context) ([]Device, error) {
	errFactory := errors.New()

	out, err := e.source.Invoke(ctx, nil)
	if err != nil {
		if errors.CodeOf(err) == source.ErrSourceEmptyOutput {
			return nil, errFactory.Wrap(ErrNoDevices, err)
		}
		return nil, errFactory.Wrap(ErrEnumerationFailed, err)
	}

	devices := ParseNames(out)
	if len(devices) == 0 {
		return nil, errFactory.New(ErrNoDevices)
	}

	return devices, nil
}
