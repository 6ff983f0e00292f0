package device_test

import (
	"context"
	"testing"

	"codeberg.org/mutker/nvidiautil/internal/device"
	"codeberg.org/mutker/nvidiautil/internal/errors"
	"codeberg.org/mutker/nvidiautil/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	out string
	err error
}

func (s staticSource) Name() string { return "nvidia-smi" }

func (s staticSource) Invoke(_ context.Context, _ []string) (string, error) {
	return s.out, s.err
}

func TestParseNamesTrailingNewline(t *testing.T) {
	withNewline := device.ParseNames("NVIDIA GeForce RTX 3080\nNVIDIA GeForce GTX 1080\n")
	withoutNewline := device.ParseNames("NVIDIA GeForce RTX 3080\nNVIDIA GeForce GTX 1080")

	expected := []device.Device{
		{Index: 0, Name: "NVIDIA GeForce RTX 3080"},
		{Index: 1, Name: "NVIDIA GeForce GTX 1080"},
	}
	assert.Equal(t, expected, withNewline)
	assert.Equal(t, expected, withoutNewline)
}

func TestParseNamesSkipsBlankLines(t *testing.T) {
	devices := device.ParseNames("\r\nTesla T4\r\n\n  \nTesla T4\n\n")

	require.Len(t, devices, 2)
	assert.Equal(t, device.Device{Index: 1, Name: "Tesla T4"}, devices[1])
	assert.Empty(t, device.ParseNames(""))
	assert.Empty(t, device.ParseNames("\n"))
}

func TestSourceEnumerator(t *testing.T) {
	e := device.NewSourceEnumerator(staticSource{out: "Tesla T4\n"})

	devices, err := e.Enumerate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []device.Device{{Index: 0, Name: "Tesla T4"}}, devices)
}

func TestSourceEnumeratorNoDevices(t *testing.T) {
	empty := errors.New().New(source.ErrSourceEmptyOutput)

	_, err := device.NewSourceEnumerator(staticSource{err: empty}).Enumerate(context.Background())
	assert.Equal(t, device.ErrNoDevices, errors.CodeOf(err))

	_, err = device.NewSourceEnumerator(staticSource{out: "\n\n"}).Enumerate(context.Background())
	assert.Equal(t, device.ErrNoDevices, errors.CodeOf(err))
}

func TestSourceEnumeratorFailure(t *testing.T) {
	missing := errors.New().New(source.ErrSourceUnavailable)

	_, err := device.NewSourceEnumerator(staticSource{err: missing}).Enumerate(context.Background())
	assert.Equal(t, device.ErrEnumerationFailed, errors.CodeOf(err))
	assert.True(t, errors.HasCode(err, source.ErrSourceUnavailable))
}

func TestNewEnumerator(t *testing.T) {
	e, err := device.NewEnumerator("", "", 0)
	require.NoError(t, err)
	assert.IsType(t, &device.SMIEnumerator{}, e)

	e, err = device.NewEnumerator(device.EnumeratorNVML, "", 0)
	require.NoError(t, err)
	assert.IsType(t, &device.NVMLEnumerator{}, e)

	_, err = device.NewEnumerator("pci", "", 0)
	assert.Equal(t, device.ErrUnknownEnumerator, errors.CodeOf(err))
}
