package metric_test

import (
	"testing"

	"codeberg.org/mutker/nvidiautil/internal/errors"
	"codeberg.org/mutker/nvidiautil/internal/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogSpecsAreValid(t *testing.T) {
	seen := map[string]bool{}
	for _, spec := range metric.Catalog() {
		require.NoError(t, spec.Validate(), spec.Key)
		assert.False(t, seen[spec.Key], "duplicate key %s", spec.Key)
		seen[spec.Key] = true
	}

	for _, key := range metric.DefaultKeys() {
		assert.True(t, seen[key], "default key %s missing from catalog", key)
	}
}

func TestSelect(t *testing.T) {
	specs, err := metric.Select([]string{"power", "utilization", "power"})
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "power", specs[0].Key)
	assert.Equal(t, metric.SourceSMI, specs[0].Source)
	assert.Equal(t, "utilization", specs[1].Key)
	assert.Equal(t, metric.SourceSettings, specs[1].Source)
}

func TestSelectUnknown(t *testing.T) {
	_, err := metric.Select([]string{"voltage"})
	assert.Equal(t, errors.ErrUnknownMetric, errors.CodeOf(err))
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "45%", metric.Number(45, metric.UnitPercent).String())
	assert.Equal(t, "65°C", metric.Number(65, metric.UnitCelsius).String())
	assert.Equal(t, "120.5 W", metric.Number(120.5, metric.UnitWatt).String())
	assert.Equal(t, "7", metric.Number(7, metric.UnitNone).String())
	assert.Equal(t, "RTX", metric.Text("RTX").String())
}

func TestSpecValidate(t *testing.T) {
	assert.Equal(t, metric.ErrInvalidSpec, errors.CodeOf(metric.Spec{}.Validate()))
	assert.Equal(t, metric.ErrInvalidSpec, errors.CodeOf(metric.Spec{Key: "x", Source: metric.SourceSMI, Query: "x"}.Validate()))
}
