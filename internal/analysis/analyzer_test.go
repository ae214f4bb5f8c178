package analysis

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/usagepulse/internal/cache"
	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
	"github.com/ZanzyTHEbar/usagepulse/internal/monitoring"
	"github.com/ZanzyTHEbar/usagepulse/internal/query"
)

const sampleCSV = "../dataset/testdata/user_behavior_sample.csv"

func copySample(t *testing.T) string {
	t.Helper()
	raw, err := os.ReadFile(sampleCSV)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "user_behavior.csv")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func newTestAnalyzer(t *testing.T, source string, responses *cache.Cache) (*Analyzer, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics()
	a := NewAnalyzer(Options{
		Source:    source,
		Responses: responses,
		Metrics:   metrics,
		Logger:    monitoring.NewLoggerTo(io.Discard, "error", "json"),
	})
	return a, metrics
}

func TestPreprocessorReport(t *testing.T) {
	raw, err := dataset.NewLoader(dataset.Options{}, nil).Load(context.Background(), sampleCSV)
	require.NoError(t, err)

	p := NewPreprocessor(DefaultWeights, monitoring.NewLoggerTo(io.Discard, "error", "json"))
	ds, report, err := p.Process(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, 12, report.Rows)
	assert.Equal(t, 1, report.Missing[dataset.AppUsageTime])
	assert.Equal(t, 1, report.Missing[dataset.BatteryDrain])
	assert.Equal(t, 1, report.Missing[dataset.UsageIntensityScore])
	assert.Equal(t, 0, report.Missing[dataset.Age])
	assert.Equal(t, []string{dataset.AppUsageTime, dataset.BatteryDrain, dataset.UsageIntensityScore}, report.Incomplete())

	score, err := ds.NumericColumn(dataset.UsageIntensityScore)
	require.NoError(t, err)
	// 0.4*393 + 0.3*6.4 + 0.2*1122 + 0.1*67
	assert.InDelta(t, 390.22, score.Num(0).Float, 1e-9)
}

func TestPreprocessorHonorsCancellation(t *testing.T) {
	raw, err := dataset.NewLoader(dataset.Options{}, nil).Load(context.Background(), sampleCSV)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPreprocessor(DefaultWeights, monitoring.NewLoggerTo(io.Discard, "error", "json"))
	_, _, err = p.Process(ctx, raw)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKPIs(t *testing.T) {
	a, _ := newTestAnalyzer(t, copySample(t), nil)
	ctx := context.Background()

	tests := []struct {
		name         string
		sel          query.Selection
		filteredRows int
		want         map[string]string
	}{
		{
			name:         "no filter",
			sel:          nil,
			filteredRows: 12,
			want: map[string]string{
				"avg_app_usage":      "283.4",
				"avg_apps_installed": "54.8",
			},
		},
		{
			name:         "iOS only",
			sel:          query.Selection{dataset.OperatingSystem: {"iOS"}},
			filteredRows: 3,
			want: map[string]string{
				"avg_app_usage":       "305.5",
				"avg_screen_time":     "5.30",
				"avg_battery_drain":   "1662",
				"avg_intensity_score": "359.4",
			},
		},
		{
			name:         "empty gender set",
			sel:          query.Selection{dataset.Gender: {}},
			filteredRows: 0,
			want: map[string]string{
				"avg_app_usage":     "n/a",
				"avg_battery_drain": "n/a",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := a.KPIs(ctx, tt.sel)
			require.NoError(t, err)
			assert.Equal(t, 12, k.TotalRows)
			assert.Equal(t, tt.filteredRows, k.FilteredRows)
			assert.Len(t, k.Metrics, len(kpiSpecs))

			for key, display := range tt.want {
				m, ok := k.Get(key)
				require.True(t, ok, key)
				assert.Equal(t, display, m.Display, key)
			}
		})
	}
}

func TestDashboard(t *testing.T) {
	a, metrics := newTestAnalyzer(t, copySample(t), nil)

	d, err := a.Dashboard(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 12, d.KPIs.FilteredRows)
	assert.Equal(t, []string{"Male", "Female"}, d.Filters.Genders)
	assert.Equal(t, []string{"Android", "iOS"}, d.Filters.OperatingSystems)

	t.Run("engagement", func(t *testing.T) {
		total := 0
		for _, b := range d.Engagement.UsageHistogram {
			total += b.Count
		}
		assert.Len(t, d.Engagement.UsageHistogram, UsageHistogramBuckets)
		assert.Equal(t, 11, total)

		require.NotNil(t, d.Engagement.UsageVsBattery)
		assert.Len(t, d.Engagement.UsageVsBattery.Points, 11)
		require.NotNil(t, d.Engagement.UsageVsBattery.Trend)
		assert.Greater(t, d.Engagement.UsageVsBattery.Trend.Slope, 0.0)

		m := d.Engagement.Correlation
		require.NotNil(t, m)
		assert.Equal(t, CorrelationColumns, m.Columns)
		for i := range m.Columns {
			assert.InDelta(t, 1.0, m.At(i, i).Float, 1e-12)
		}
	})

	t.Run("device", func(t *testing.T) {
		require.Len(t, d.Device.UsageByOS, 2)
		assert.Equal(t, "Android", d.Device.UsageByOS[0].Group)
		assert.Equal(t, 9, d.Device.UsageByOS[0].Count)
		assert.Equal(t, 2, d.Device.UsageByOS[1].Count)

		top := d.Device.TopDevicesByBattery
		require.Len(t, top, 5)
		assert.Equal(t, "OnePlus 9", top[0].Group)
		assert.InDelta(t, 2143.5, top[0].Value.Float, 1e-9)
		assert.Equal(t, "Xiaomi Mi 11", top[4].Group)
	})

	t.Run("demographics", func(t *testing.T) {
		ages := make([]string, len(d.Demographics.UsageByAge))
		for i, g := range d.Demographics.UsageByAge {
			ages[i] = g.Group
		}
		assert.Equal(t, []string{"20", "21", "25", "31", "40", "42", "47"}, ages)
		assert.InDelta(t, 829.0, d.Demographics.UsageByAge[3].Value.Float, 1e-9)

		require.Len(t, d.Demographics.UsageByGender, 2)
		assert.InDelta(t, 1852.0/6.0, d.Demographics.UsageByGender[0].Value.Float, 1e-9)
		assert.InDelta(t, 253.0, d.Demographics.UsageByGender[1].Value.Float, 1e-9)
	})

	t.Run("behavior", func(t *testing.T) {
		dist := d.Behavior.ClassDistribution
		require.Len(t, dist, 4)
		assert.Equal(t, "4", dist[0].Category)
		assert.Equal(t, 4, dist[0].Count)
		assert.Equal(t, "5", dist[3].Category)
		assert.Len(t, d.Behavior.UsageByClass, 4)
	})

	assert.Equal(t, int64(1), metrics.GetStats()["pipeline_evaluations"])
}

func TestDatasetIsPreparedOnce(t *testing.T) {
	source := copySample(t)
	a, metrics := newTestAnalyzer(t, source, nil)
	ctx := context.Background()

	first, err := a.Dataset(ctx)
	require.NoError(t, err)
	second, err := a.Dataset(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), metrics.GetStats()["dataset_loads"])

	// a rewritten source is picked up without an explicit reload
	raw, err := os.ReadFile(source)
	require.NoError(t, err)
	raw = append(raw, []byte("13,OnePlus 9,Android,100,2.0,800,20,300,30,Male,1\n")...)
	require.NoError(t, os.WriteFile(source, raw, 0o644))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(source, later, later))

	third, err := a.Dataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 13, third.Len())
}

func TestReloadClearsResponses(t *testing.T) {
	responses := cache.NewCache(time.Minute)
	defer responses.Close()
	responses.Set("k", "application/json", []byte("{}"))

	a, metrics := newTestAnalyzer(t, copySample(t), responses)
	ctx := context.Background()

	_, err := a.Dataset(ctx)
	require.NoError(t, err)

	ds, err := a.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, ds.Len())
	assert.Equal(t, 0, responses.Size())
	assert.Equal(t, int64(2), metrics.GetStats()["dataset_loads"])
}

func TestAnalyzerErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing source", func(t *testing.T) {
		a, _ := newTestAnalyzer(t, filepath.Join(t.TempDir(), "absent.csv"), nil)
		_, err := a.Dashboard(ctx, nil)
		var nf *dataset.SourceNotFoundError
		assert.True(t, errors.As(err, &nf))
	})

	t.Run("schema", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.csv")
		require.NoError(t, os.WriteFile(path, []byte("User ID,Age\n1,20\n"), 0o644))
		a, _ := newTestAnalyzer(t, path, nil)
		_, err := a.KPIs(ctx, nil)
		var schema *dataset.SchemaError
		assert.True(t, errors.As(err, &schema))
	})

	t.Run("unknown filter column", func(t *testing.T) {
		a, _ := newTestAnalyzer(t, copySample(t), nil)
		_, err := a.KPIs(ctx, query.Selection{"Planet": {"Mars"}})
		var unknown *dataset.UnknownColumnError
		assert.True(t, errors.As(err, &unknown))
	})
}

func TestSortByNumericGroup(t *testing.T) {
	groups := []query.GroupValue{{Group: "42"}, {Group: "x"}, {Group: "7"}, {Group: "19.5"}}
	sortByNumericGroup(groups)

	got := make([]string, len(groups))
	for i, g := range groups {
		got[i] = g.Group
	}
	assert.Equal(t, []string{"7", "19.5", "42", "x"}, got)
}
