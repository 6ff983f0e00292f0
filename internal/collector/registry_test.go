package collector_test

import (
	"sync"
	"testing"

	"codeberg.org/mutker/nvidiautil/internal/collector"
	"codeberg.org/mutker/nvidiautil/internal/errors"
	"codeberg.org/mutker/nvidiautil/internal/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDispatchOrder(t *testing.T) {
	registry := collector.NewRegistry()

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		require.NoError(t, registry.Register("fan", 1, collector.ObserverFunc(func(_ int, _ metric.Value) {
			order = append(order, name)
		})))
	}

	delivered := registry.Dispatch("fan", 1, metric.Number(30, metric.UnitPercent))

	assert.Equal(t, 3, delivered)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestRegistryKeysAreIsolated(t *testing.T) {
	registry := collector.NewRegistry()
	fan0 := &recorder{}
	fan1 := &recorder{}
	power0 := &recorder{}

	require.NoError(t, registry.Register("fan", 0, fan0))
	require.NoError(t, registry.Register("fan", 1, fan1))
	require.NoError(t, registry.Register("power", 0, power0))

	registry.Dispatch("fan", 1, metric.Number(45, metric.UnitPercent))

	assert.Empty(t, fan0.calls())
	assert.Equal(t, []call{{device: 1, value: metric.Number(45, metric.UnitPercent)}}, fan1.calls())
	assert.Empty(t, power0.calls())
	assert.Equal(t, 0, registry.Dispatch("memory", 0, metric.Number(1, metric.UnitMiB)))
}

func TestRegistryRejectsInvalid(t *testing.T) {
	registry := collector.NewRegistry()

	assert.Equal(t, collector.ErrInvalidObserver, errors.CodeOf(registry.Register("fan", 0, nil)))
	assert.Equal(t, collector.ErrInvalidDevice, errors.CodeOf(registry.Register("fan", -1, &recorder{})))
	assert.Equal(t, 0, registry.Count("fan", 0))
}

func TestRegistryConcurrentRegisterAndDispatch(t *testing.T) {
	registry := collector.NewRegistry()
	obs := &recorder{}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			assert.NoError(t, registry.Register("fan", 0, obs))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			registry.Dispatch("fan", 0, metric.Number(float64(i), metric.UnitPercent))
		}
	}()
	wg.Wait()

	assert.Equal(t, 100, registry.Count("fan", 0))
}

func TestObserverMayRegisterDuringDispatch(t *testing.T) {
	registry := collector.NewRegistry()
	late := &recorder{}

	require.NoError(t, registry.Register("fan", 0, collector.ObserverFunc(func(_ int, _ metric.Value) {
		assert.NoError(t, registry.Register("fan", 0, late))
	})))

	registry.Dispatch("fan", 0, metric.Number(1, metric.UnitPercent))
	assert.Empty(t, late.calls())

	registry.Dispatch("fan", 0, metric.Number(2, metric.UnitPercent))
	assert.Len(t, late.calls(), 1)
}
