package exporter_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"codeberg.org/mutker/nvidiautil/internal/device"
	"codeberg.org/mutker/nvidiautil/internal/errors"
	"codeberg.org/mutker/nvidiautil/internal/exporter"
	"codeberg.org/mutker/nvidiautil/internal/metric"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDevices = []device.Device{
	{Index: 0, Name: "RTX 3080"},
	{Index: 1, Name: "RTX 3090"},
}

func mustSpec(t *testing.T, key string) metric.Spec {
	t.Helper()

	spec, ok := metric.Lookup(key)
	require.True(t, ok, key)

	return spec
}

func TestNumericGauge(t *testing.T) {
	temp := mustSpec(t, "temperature")
	exp, err := exporter.New([]metric.Spec{temp}, testDevices)
	require.NoError(t, err)

	obs, err := exp.Observer(temp)
	require.NoError(t, err)
	obs.OnValue(0, metric.Number(60, metric.UnitCelsius))
	obs.OnValue(1, metric.Number(48, metric.UnitCelsius))
	obs.OnValue(0, metric.Number(62, metric.UnitCelsius))

	expected := `
# HELP nvidiautil_temperature_celsius Temperature reported by nvidia-settings.
# TYPE nvidiautil_temperature_celsius gauge
nvidiautil_temperature_celsius{device="0",name="RTX 3080"} 62
nvidiautil_temperature_celsius{device="1",name="RTX 3090"} 48
`
	err = testutil.GatherAndCompare(exp.Registry(), strings.NewReader(expected), "nvidiautil_temperature_celsius")
	require.NoError(t, err)
}

func TestNumericGaugeIgnoresText(t *testing.T) {
	temp := mustSpec(t, "temperature")
	exp, err := exporter.New([]metric.Spec{temp}, testDevices)
	require.NoError(t, err)

	obs, err := exp.Observer(temp)
	require.NoError(t, err)
	obs.OnValue(0, metric.Number(60, metric.UnitCelsius))
	obs.OnValue(0, metric.Text("N/A"))

	expected := `
# HELP nvidiautil_updates_total Values dispatched per metric.
# TYPE nvidiautil_updates_total counter
nvidiautil_updates_total{metric="temperature"} 1
`
	err = testutil.GatherAndCompare(exp.Registry(), strings.NewReader(expected), "nvidiautil_updates_total")
	require.NoError(t, err)
}

func TestUnitConversion(t *testing.T) {
	memory := mustSpec(t, "memory")
	clock := mustSpec(t, "clock_graphics")
	exp, err := exporter.New([]metric.Spec{memory, clock}, testDevices)
	require.NoError(t, err)

	memObs, err := exp.Observer(memory)
	require.NoError(t, err)
	memObs.OnValue(0, metric.Number(2, metric.UnitMiB))

	clockObs, err := exp.Observer(clock)
	require.NoError(t, err)
	clockObs.OnValue(0, metric.Number(1500, metric.UnitMHz))

	expected := `
# HELP nvidiautil_memory_bytes Memory Usage reported by nvidia-settings.
# TYPE nvidiautil_memory_bytes gauge
nvidiautil_memory_bytes{device="0",name="RTX 3080"} 2.097152e+06
# HELP nvidiautil_clock_graphics_hertz Graphics Clock reported by nvidia-smi.
# TYPE nvidiautil_clock_graphics_hertz gauge
nvidiautil_clock_graphics_hertz{device="0",name="RTX 3080"} 1.5e+09
`
	err = testutil.GatherAndCompare(exp.Registry(), strings.NewReader(expected),
		"nvidiautil_memory_bytes", "nvidiautil_clock_graphics_hertz")
	require.NoError(t, err)
}

func TestTextInfoReplacesPreviousValue(t *testing.T) {
	name := mustSpec(t, "name")
	exp, err := exporter.New([]metric.Spec{name}, testDevices)
	require.NoError(t, err)

	obs, err := exp.Observer(name)
	require.NoError(t, err)
	obs.OnValue(0, metric.Text("old"))
	obs.OnValue(0, metric.Text("new"))
	obs.OnValue(0, metric.Text("new"))

	expected := `
# HELP nvidiautil_text_info Text metrics, carried in the value label.
# TYPE nvidiautil_text_info gauge
nvidiautil_text_info{device="0",metric="name",name="RTX 3080",value="new"} 1
`
	err = testutil.GatherAndCompare(exp.Registry(), strings.NewReader(expected), "nvidiautil_text_info")
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(exp.Registry(), "nvidiautil_updates_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestObserverForUnexportedSpec(t *testing.T) {
	exp, err := exporter.New(nil, testDevices)
	require.NoError(t, err)

	_, err = exp.Observer(mustSpec(t, "fan"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, exporter.ErrUnknownSpec))
}

func TestServer(t *testing.T) {
	fan := mustSpec(t, "fan")
	exp, err := exporter.New([]metric.Spec{fan}, testDevices)
	require.NoError(t, err)

	obs, err := exp.Observer(fan)
	require.NoError(t, err)
	obs.OnValue(1, metric.Number(40, metric.UnitPercent))

	srv := exporter.NewServer("127.0.0.1:0", exp.Registry(), nil)
	require.NoError(t, srv.Start())
	defer srv.Shutdown(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `nvidiautil_fan_percent{device="1",name="RTX 3090"} 40`)

	resp, err = http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerShutdownBeforeStart(t *testing.T) {
	srv := exporter.NewServer("127.0.0.1:0", prometheus.NewRegistry(), nil)

	err := srv.Shutdown(context.Background())
	assert.True(t, errors.HasCode(err, exporter.ErrServerNotActive))
}

func TestServerListenError(t *testing.T) {
	exp, err := exporter.New(nil, nil)
	require.NoError(t, err)

	srv := exporter.NewServer("256.0.0.1:99999", exp.Registry(), nil)
	err = srv.Start()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, exporter.ErrListenFailed))
}
