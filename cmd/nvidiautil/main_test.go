package main

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/nvidiautil/internal/device"
	"codeberg.org/mutker/nvidiautil/internal/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var testDevices = []device.Device{{Index: 0, Name: "RTX 3080"}, {Index: 1, Name: "RTX 3090"}}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"run", "devices", "query"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}

	for _, flag := range []string{"config", "interval", "metrics", "log-level", "exporter-addr", "snapshot"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestWriteDevices(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeDevices(&buf, testDevices, false))
	assert.Equal(t, "0: RTX 3080\n1: RTX 3090\n", buf.String())

	buf.Reset()
	require.NoError(t, writeDevices(&buf, testDevices, true))

	var decoded []device.Device
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, testDevices, decoded)
}

func TestReadingsReport(t *testing.T) {
	specs, err := metric.Select([]string{"temperature", "fan"})
	require.NoError(t, err)

	r := newReadings()
	r.observer("temperature").OnValue(0, metric.Number(60, metric.UnitCelsius))
	r.observer("temperature").OnValue(1, metric.Number(50, metric.UnitCelsius))
	r.observer("fan").OnValue(1, metric.Number(40, metric.UnitPercent))

	report := r.report(testDevices, specs)
	require.Len(t, report, 2)

	assert.Equal(t, []reading{{Metric: "temperature", Name: "Temperature", Value: "60°C"}}, report[0].Readings)
	assert.Equal(t, []reading{
		{Metric: "temperature", Name: "Temperature", Value: "50°C"},
		{Metric: "fan", Name: "Fan Speed", Value: "40%"},
	}, report[1].Readings)

	var buf bytes.Buffer
	require.NoError(t, writeYAML(&buf, report))
	assert.Contains(t, buf.String(), "name: RTX 3090")
	assert.Contains(t, buf.String(), "value: 40%")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	printBanner(&buf, "gpu")
	assert.NotEmpty(t, buf.String())
	assert.Greater(t, bytes.Count(buf.Bytes(), []byte("\n")), 1)
}
