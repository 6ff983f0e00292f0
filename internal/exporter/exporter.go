package exporter

import (
	"strconv"
	"sync"

	"codeberg.org/mutker/nvidiautil/internal/collector"
	"codeberg.org/mutker/nvidiautil/internal/device"
	"codeberg.org/mutker/nvidiautil/internal/errors"
	"codeberg.org/mutker/nvidiautil/internal/metric"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nvidiautil"

// unitScale maps a display unit to a Prometheus base unit suffix and the
// factor that converts into it.
var unitScale = map[metric.Unit]struct {
	suffix string
	factor float64
}{
	metric.UnitNone:    {"", 1},
	metric.UnitPercent: {"percent", 1},
	metric.UnitMiB:     {"bytes", 1024 * 1024},
	metric.UnitCelsius: {"celsius", 1},
	metric.UnitRPM:     {"rpm", 1},
	metric.UnitWatt:    {"watts", 1},
	metric.UnitMHz:     {"hertz", 1e6},
}

type textKey struct {
	metric string
	device int
}

// Exporter mirrors dispatched values into Prometheus gauges. Numeric
// metrics become one gauge each; text metrics share an info gauge whose
// value label carries the text.
type Exporter struct {
	registry *prometheus.Registry
	names    map[int]string
	gauges   map[string]*prometheus.GaugeVec
	factors  map[string]float64
	info     *prometheus.GaugeVec
	updates  *prometheus.CounterVec

	mu   sync.Mutex
	text map[textKey]string
}

func New(specs []metric.Spec, devices []device.Device) (*Exporter, error) {
	errFactory := errors.New()

	e := &Exporter{
		registry: prometheus.NewRegistry(),
		names:    make(map[int]string, len(devices)),
		gauges:   make(map[string]*prometheus.GaugeVec),
		factors:  make(map[string]float64),
		text:     make(map[textKey]string),
	}
	for _, d := range devices {
		e.names[d.Index] = d.Name
	}

	e.info = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "text_info",
		Help:      "Text metrics, carried in the value label.",
	}, []string{"metric", "device", "name", "value"})
	e.updates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "updates_total",
		Help:      "Values dispatched per metric.",
	}, []string{"metric"})

	collectors := []prometheus.Collector{e.info, e.updates}

	for _, spec := range specs {
		if spec.Kind != metric.KindNumber {
			continue
		}

		scale, ok := unitScale[spec.Unit]
		if !ok {
			scale.factor = 1
		}
		name := spec.Key
		if scale.suffix != "" {
			name += "_" + scale.suffix
		}

		gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      spec.DisplayName + " reported by " + string(spec.Source) + ".",
		}, []string{"device", "name"})

		e.gauges[spec.Key] = gauge
		e.factors[spec.Key] = scale.factor
		collectors = append(collectors, gauge)
	}

	for _, c := range collectors {
		if err := e.registry.Register(c); err != nil {
			return nil, errFactory.Wrap(ErrRegisterMetric, err)
		}
	}

	return e, nil
}

// Registry returns the registry holding the exporter's collectors.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Observer returns the observer feeding the given metric.
func (e *Exporter) Observer(spec metric.Spec) (collector.Observer, error) {
	if spec.Kind == metric.KindText {
		return collector.ObserverFunc(func(dev int, value metric.Value) {
			e.setText(spec.Key, dev, value.String())
		}), nil
	}

	gauge, ok := e.gauges[spec.Key]
	if !ok {
		return nil, errors.New().WithData(ErrUnknownSpec, spec.Key)
	}
	factor := e.factors[spec.Key]
	updates := e.updates.WithLabelValues(spec.Key)

	return collector.ObserverFunc(func(dev int, value metric.Value) {
		if !value.IsNumber() {
			return
		}
		gauge.WithLabelValues(strconv.Itoa(dev), e.names[dev]).Set(value.Number * factor)
		updates.Inc()
	}), nil
}

func (e *Exporter) setText(key string, dev int, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := strconv.Itoa(dev)
	k := textKey{metric: key, device: dev}
	if prev, ok := e.text[k]; ok {
		if prev == value {
			e.updates.WithLabelValues(key).Inc()
			return
		}
		e.info.DeleteLabelValues(key, idx, e.names[dev], prev)
	}

	e.text[k] = value
	e.info.WithLabelValues(key, idx, e.names[dev], value).Set(1)
	e.updates.WithLabelValues(key).Inc()
}
