package metric

import (
	"sort"

	"codeberg.org/mutker/nvidiautil/internal/errors"
)

var catalog = []Spec{
	{
		Key:         "utilization",
		DisplayName: "Utilisation",
		Icon:        "utilisation",
		Source:      SourceSettings,
		Query:       "[gpu]/GPUUtilization",
		Kind:        KindNumber,
		Unit:        UnitPercent,
		Parse:       KeyValue("graphics", KindNumber, UnitPercent),
	},
	{
		Key:         "temperature",
		DisplayName: "Temperature",
		Icon:        "temperature",
		Source:      SourceSettings,
		Query:       "[gpu]/GPUCoreTemp",
		Kind:        KindNumber,
		Unit:        UnitCelsius,
		Parse:       KeyValue("GPUCoreTemp", KindNumber, UnitCelsius),
	},
	{
		Key:         "memory",
		DisplayName: "Memory Usage",
		Icon:        "memory",
		Source:      SourceSettings,
		Query:       "[gpu]/UsedDedicatedGPUMemory",
		Kind:        KindNumber,
		Unit:        UnitMiB,
		Parse:       KeyValue("UsedDedicatedGPUMemory", KindNumber, UnitMiB),
	},
	{
		Key:         "fan",
		DisplayName: "Fan Speed",
		Icon:        "fan",
		Source:      SourceSettings,
		Query:       "[fan]/GPUCurrentFanSpeed",
		Kind:        KindNumber,
		Unit:        UnitPercent,
		Parse:       TargetKeyValue(TargetFan, "GPUCurrentFanSpeed", KindNumber, UnitPercent),
	},
	{
		Key:         "fan_rpm",
		DisplayName: "Fan Speed (RPM)",
		Icon:        "fan",
		Source:      SourceSettings,
		Query:       "[fan]/GPUCurrentFanSpeedRPM",
		Kind:        KindNumber,
		Unit:        UnitRPM,
		Parse:       TargetKeyValue(TargetFan, "GPUCurrentFanSpeedRPM", KindNumber, UnitRPM),
	},
	smiNumber("power", "Power Usage", "power", "power.draw", UnitWatt),
	smiNumber("smi_memory", "Memory Usage", "memory", "memory.used", UnitMiB),
	smiNumber("memory_total", "Memory Total", "memory", "memory.total", UnitMiB),
	smiNumber("smi_fan", "Fan Speed", "fan", "fan.speed", UnitPercent),
	smiNumber("smi_temperature", "Core Temperature", "temperature", "temperature.gpu", UnitCelsius),
	smiNumber("clock_graphics", "Graphics Clock", "utilisation", "clocks.gr", UnitMHz),
	{
		Key:         "name",
		DisplayName: "Name",
		Icon:        "card",
		Source:      SourceSMI,
		Query:       "name",
		Kind:        KindText,
		Parse:       CSV("name", KindText, UnitNone),
	},
}

func smiNumber(key, display, icon, field string, unit Unit) Spec {
	return Spec{
		Key:         key,
		DisplayName: display,
		Icon:        icon,
		Source:      SourceSMI,
		Query:       field,
		Kind:        KindNumber,
		Unit:        unit,
		Parse:       CSV(field, KindNumber, unit),
	}
}

// DefaultKeys are the metrics shown when none are configured. Power is the
// only default read from nvidia-smi.
func DefaultKeys() []string {
	return []string{"utilization", "temperature", "memory", "fan", "power"}
}

// Catalog returns every built-in spec.
func Catalog() []Spec {
	specs := make([]Spec, len(catalog))
	copy(specs, catalog)

	return specs
}

// Keys returns the sorted keys of the built-in specs.
func Keys() []string {
	keys := make([]string, 0, len(catalog))
	for _, s := range catalog {
		keys = append(keys, s.Key)
	}
	sort.Strings(keys)

	return keys
}

// Lookup finds a built-in spec by key.
func Lookup(key string) (Spec, bool) {
	for _, s := range catalog {
		if s.Key == key {
			return s, true
		}
	}

	return Spec{}, false
}

// Select resolves keys to specs, keeping order and dropping duplicates.
func Select(keys []string) ([]Spec, error) {
	errFactory := errors.New()
	seen := make(map[string]bool, len(keys))
	specs := make([]Spec, 0, len(keys))

	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true

		spec, ok := Lookup(key)
		if !ok {
			return nil, errFactory.WithData(errors.ErrUnknownMetric, key)
		}
		specs = append(specs, spec)
	}

	return specs, nil
}
