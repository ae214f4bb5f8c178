package analysis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
)

func TestIntensityScore(t *testing.T) {
	num := dataset.Num
	missing := dataset.Missing()

	tests := []struct {
		name                      string
		usage, screen, data, apps dataset.Value
		want                      float64
		wantMissing               bool
	}{
		{name: "weighted sum", usage: num(50), screen: num(2), data: num(100), apps: num(10), want: 41.6},
		{name: "all zero", usage: num(0), screen: num(0), data: num(0), apps: num(0), want: 0},
		{name: "negative inputs still sum", usage: num(-10), screen: num(0), data: num(0), apps: num(0), want: -4},
		{name: "missing usage", usage: missing, screen: num(2), data: num(100), apps: num(10), wantMissing: true},
		{name: "missing screen", usage: num(50), screen: missing, data: num(100), apps: num(10), wantMissing: true},
		{name: "missing data", usage: num(50), screen: num(2), data: missing, apps: num(10), wantMissing: true},
		{name: "missing apps", usage: num(50), screen: num(2), data: num(100), apps: missing, wantMissing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IntensityScore(tt.usage, tt.screen, tt.data, tt.apps)
			if tt.wantMissing {
				assert.True(t, got.IsMissing())
				return
			}
			require.True(t, got.Valid)
			assert.InDelta(t, tt.want, got.Float, 1e-9)
		})
	}
}

func TestCustomWeights(t *testing.T) {
	w := Weights{AppUsage: 1, ScreenOn: 0, DataUsage: 0, AppsInstalled: 0}
	got := w.Score(dataset.Num(7), dataset.Num(100), dataset.Num(100), dataset.Num(100))
	assert.InDelta(t, 7.0, got.Float, 1e-9)
}

func scoreInputDataset(t *testing.T, extra ...*dataset.Column) *dataset.Dataset {
	t.Helper()
	num := dataset.Num
	cols := []*dataset.Column{
		dataset.NewTextColumn(dataset.UserID, []string{"1", "2"}),
		dataset.NewNumericColumn(dataset.AppUsageTime, []dataset.Value{num(50), dataset.Missing()}),
		dataset.NewNumericColumn(dataset.ScreenOnTime, []dataset.Value{num(2), num(3)}),
		dataset.NewNumericColumn(dataset.DataUsage, []dataset.Value{num(100), num(200)}),
		dataset.NewNumericColumn(dataset.AppsInstalled, []dataset.Value{num(10), num(20)}),
	}
	ds, err := dataset.FromColumns("memory", append(cols, extra...)...)
	require.NoError(t, err)
	return ds
}

func TestDeriveScore(t *testing.T) {
	ds := scoreInputDataset(t)

	scored, err := DeriveScore(ds)
	require.NoError(t, err)

	assert.False(t, ds.HasColumn(dataset.UsageIntensityScore), "input must not change")
	col, err := scored.NumericColumn(dataset.UsageIntensityScore)
	require.NoError(t, err)
	assert.InDelta(t, 41.6, col.Num(0).Float, 1e-9)
	assert.True(t, col.Num(1).IsMissing())
	assert.Equal(t, ds.Len(), scored.Len())
}

func TestDeriveScoreReplacesExisting(t *testing.T) {
	stale := dataset.NewNumericColumn(dataset.UsageIntensityScore, []dataset.Value{dataset.Num(-1), dataset.Num(-1)})
	ds := scoreInputDataset(t, stale)

	scored, err := DeriveScore(ds)
	require.NoError(t, err)
	assert.Equal(t, len(ds.Columns()), len(scored.Columns()))

	col, err := scored.NumericColumn(dataset.UsageIntensityScore)
	require.NoError(t, err)
	assert.InDelta(t, 41.6, col.Num(0).Float, 1e-9)
}

func TestDeriveScoreErrors(t *testing.T) {
	t.Run("missing input column", func(t *testing.T) {
		ds, err := dataset.FromColumns("memory",
			dataset.NewNumericColumn(dataset.AppUsageTime, []dataset.Value{dataset.Num(1)}))
		require.NoError(t, err)

		_, err = DeriveScore(ds)
		var unknown *dataset.UnknownColumnError
		assert.True(t, errors.As(err, &unknown))
	})

	t.Run("text input column", func(t *testing.T) {
		ds, err := dataset.FromColumns("memory",
			dataset.NewTextColumn(dataset.AppUsageTime, []string{"1"}),
			dataset.NewNumericColumn(dataset.ScreenOnTime, []dataset.Value{dataset.Num(1)}),
			dataset.NewNumericColumn(dataset.DataUsage, []dataset.Value{dataset.Num(1)}),
			dataset.NewNumericColumn(dataset.AppsInstalled, []dataset.Value{dataset.Num(1)}),
		)
		require.NoError(t, err)

		_, err = DeriveScore(ds)
		var kind *dataset.ColumnKindError
		assert.True(t, errors.As(err, &kind))
	})
}
