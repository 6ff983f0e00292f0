package snapshot

import (
	"time"

	"codeberg.org/mutker/nvidiautil/internal/metric"
)

// Entry is the stored latest value of one metric on one device.
type Entry struct {
	Metric    string      `yaml:"metric"`
	Device    int         `yaml:"device"`
	Kind      metric.Kind `yaml:"-"`
	Number    float64     `yaml:"number,omitempty"`
	Unit      metric.Unit `yaml:"unit,omitempty"`
	Text      string      `yaml:"text,omitempty"`
	Display   string      `yaml:"display"`
	UpdatedAt time.Time   `yaml:"updated_at"`
}

// Value rebuilds the metric value held by the entry.
func (e Entry) Value() metric.Value {
	if e.Kind == metric.KindText {
		return metric.Text(e.Text)
	}
	return metric.Number(e.Number, e.Unit)
}

type entryKey struct {
	metric string
	device int
}
