package device

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"codeberg.org/mutker/nvidiautil/internal/errors"
)

const (
	milliWattsToWatts = 1000
	bytesToMiB        = 1024 * 1024
)

// nvmlReading renders one nvidia-smi --query-gpu field for a device.
type nvmlReading struct {
	unit string
	read func(lib nvmlLibrary, index int) (string, error)
}

func counter(unit string, get func(nvmlLibrary, int) (uint32, error)) nvmlReading {
	return nvmlReading{unit: unit, read: func(lib nvmlLibrary, index int) (string, error) {
		v, err := get(lib, index)
		if err != nil {
			return "", err
		}
		return withUnit(strconv.FormatUint(uint64(v), 10), unit), nil
	}}
}

func watts(get func(nvmlLibrary, int) (uint32, error)) nvmlReading {
	return nvmlReading{unit: "W", read: func(lib nvmlLibrary, index int) (string, error) {
		mw, err := get(lib, index)
		if err != nil {
			return "", err
		}
		w := float64(mw) / milliWattsToWatts
		return withUnit(strconv.FormatFloat(w, 'f', 2, 64), "W"), nil
	}}
}

func memory(pick func(total, used uint64) uint64) nvmlReading {
	return nvmlReading{unit: "MiB", read: func(lib nvmlLibrary, index int) (string, error) {
		info, err := lib.GetMemoryInfo(index)
		if err != nil {
			return "", err
		}
		mib := pick(info.Total, info.Used) / bytesToMiB
		return withUnit(strconv.FormatUint(mib, 10), "MiB"), nil
	}}
}

// Fields nvidia-smi would answer for the built-in metrics.
var nvmlReadings = map[string]nvmlReading{
	"name": {read: func(lib nvmlLibrary, index int) (string, error) {
		return lib.GetDeviceName(index)
	}},
	"temperature.gpu": counter("", nvmlLibrary.GetTemperature),
	"fan.speed":       counter("%", nvmlLibrary.GetFanSpeed),
	"clocks.gr":       counter("MHz", nvmlLibrary.GetGraphicsClock),
	"power.draw":      watts(nvmlLibrary.GetPowerUsage),
	"power.limit":     watts(nvmlLibrary.GetPowerLimit),
	"memory.used":     memory(func(_, used uint64) uint64 { return used }),
	"memory.total":    memory(func(total, _ uint64) uint64 { return total }),
	"utilization.gpu": {unit: "%", read: func(lib nvmlLibrary, index int) (string, error) {
		rates, err := lib.GetUtilization(index)
		if err != nil {
			return "", err
		}
		return withUnit(strconv.FormatUint(uint64(rates.Gpu), 10), "%"), nil
	}},
}

func withUnit(v, unit string) string {
	if unit == "" {
		return v
	}
	return v + " " + unit
}

// NVMLSource answers nvidia-smi --query-gpu fields through NVML and
// renders them as nvidia-smi CSV with a header row, so the same parsers
// apply. NVML is initialized on first use and stays open until Close.
type NVMLSource struct {
	name string
	lib  nvmlLibrary

	mu   sync.Mutex
	open bool
}

// NewNVMLSource returns an NVML source reporting itself as name.
func NewNVMLSource(name string) *NVMLSource {
	return &NVMLSource{name: name, lib: &nvmlWrapper{}}
}

func (s *NVMLSource) Name() string {
	return s.name
}

func (s *NVMLSource) Invoke(ctx context.Context, queries []string) (string, error) {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	fields := make([]string, 0, len(queries))
	readings := make([]nvmlReading, 0, len(queries))
	for _, q := range queries {
		r, ok := nvmlReadings[q]
		if !ok {
			return "", errFactory.WithData(ErrUnsupportedQuery, q)
		}
		fields = append(fields, q)
		readings = append(readings, r)
	}
	if len(fields) == 0 {
		return "", errFactory.WithMessage(ErrUnsupportedQuery, "no fields requested")
	}

	if !s.open {
		if err := s.lib.Initialize(); err != nil {
			return "", errFactory.Wrap(ErrInitFailed, err)
		}
		s.open = true
	}

	count, err := s.lib.GetDeviceCount()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, field := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(field)
		if readings[i].unit != "" {
			b.WriteString(" [" + readings[i].unit + "]")
		}
	}
	b.WriteByte('\n')

	for index := 0; index < count; index++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		for i, r := range readings {
			cell, err := r.read(s.lib, index)
			if err != nil {
				return "", errFactory.Wrap(ErrReadingFailed, err).WithData(struct {
					Field string
					Index int
				}{
					Field: fields[i],
					Index: index,
				})
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(cell)
		}
		b.WriteByte('\n')
	}

	return b.String(), nil
}

// Close shuts NVML down if Invoke opened it.
func (s *NVMLSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	s.open = false

	return s.lib.Shutdown()
}
