package panel_test

import (
	"bytes"
	"context"
	"testing"

	"codeberg.org/mutker/nvidiautil/internal/device"
	"codeberg.org/mutker/nvidiautil/internal/metric"
	"codeberg.org/mutker/nvidiautil/internal/panel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func specs(t *testing.T, keys ...string) []metric.Spec {
	t.Helper()

	selected, err := metric.Select(keys)
	require.NoError(t, err)

	return selected
}

func TestRender(t *testing.T) {
	devices := []device.Device{{Index: 0, Name: "RTX 3080"}, {Index: 1, Name: "RTX 3090"}}
	p := panel.New(nil, specs(t, "temperature", "fan"), devices)

	p.Observer("temperature").OnValue(0, metric.Number(61, metric.UnitCelsius))
	p.Observer("temperature").OnValue(1, metric.Number(47, metric.UnitCelsius))
	p.Observer("fan").OnValue(0, metric.Number(35, metric.UnitPercent))

	out := p.Render()
	assert.Contains(t, out, "GPU")
	assert.Contains(t, out, "Temperature")
	assert.Contains(t, out, "Fan Speed")
	assert.Contains(t, out, "0: RTX 3080")
	assert.Contains(t, out, "1: RTX 3090")
	assert.Contains(t, out, "61°C")
	assert.Contains(t, out, "47°C")
	assert.Contains(t, out, "35%")
}

func TestValueKeepsLatest(t *testing.T) {
	p := panel.New(nil, specs(t, "power"), []device.Device{{Index: 0}})
	obs := p.Observer("power")

	_, ok := p.Value("power", 0)
	assert.False(t, ok)

	obs.OnValue(0, metric.Number(100, metric.UnitWatt))
	obs.OnValue(0, metric.Number(150.5, metric.UnitWatt))

	v, ok := p.Value("power", 0)
	require.True(t, ok)
	assert.Equal(t, metric.Number(150.5, metric.UnitWatt), v)
	assert.Contains(t, p.Render(), "150.5 W")
}

func TestProcessWritesTable(t *testing.T) {
	var buf bytes.Buffer
	p := panel.New(&buf, specs(t, "utilization"), []device.Device{{Index: 0}})

	require.NoError(t, p.Process(context.Background()))
	assert.Contains(t, buf.String(), "Utilisation")
	assert.Equal(t, "panel", p.Name())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, p.Process(ctx))
}
