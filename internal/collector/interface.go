package collector

import (
	"context"

	"codeberg.org/mutker/nvidiautil/internal/metric"
)

// Observer receives the latest value of one metric for one device.
type Observer interface {
	OnValue(device int, value metric.Value)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(device int, value metric.Value)

func (f ObserverFunc) OnValue(device int, value metric.Value) {
	f(device, value)
}

// Processor performs one poll-parse-dispatch cycle.
type Processor interface {
	Name() string
	Process(ctx context.Context) error
}
