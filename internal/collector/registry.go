package collector

import (
	"sync"

	"codeberg.org/mutker/nvidiautil/internal/errors"
	"codeberg.org/mutker/nvidiautil/internal/metric"
)

type subscription struct {
	metric string
	device int
}

// Registry maps (metric key, device index) to observers. Observers are
// called in the order they were registered.
type Registry struct {
	mu   sync.RWMutex
	subs map[subscription][]Observer
}

func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[subscription][]Observer),
	}
}

// Register adds an observer for a metric on one device. Registering the
// same observer twice delivers every value to it twice.
func (r *Registry) Register(key string, device int, obs Observer) error {
	errFactory := errors.New()

	if obs == nil {
		return errFactory.WithData(ErrInvalidObserver, key)
	}
	if device < 0 {
		return errFactory.WithData(ErrInvalidDevice, device)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub := subscription{metric: key, device: device}
	r.subs[sub] = append(r.subs[sub], obs)

	return nil
}

// Dispatch delivers value to every observer of (key, device) and returns
// how many were called. Observers run outside the lock, so they may
// register further observers.
func (r *Registry) Dispatch(key string, device int, value metric.Value) int {
	r.mu.RLock()
	observers := r.subs[subscription{metric: key, device: device}]
	r.mu.RUnlock()

	for _, obs := range observers {
		obs.OnValue(device, value)
	}

	return len(observers)
}

// Count returns the number of observers registered for (key, device).
func (r *Registry) Count(key string, device int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.subs[subscription{metric: key, device: device}])
}
