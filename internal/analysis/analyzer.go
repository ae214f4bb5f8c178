package analysis

import (
	"context"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ZanzyTHEbar/usagepulse/internal/cache"
	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
	"github.com/ZanzyTHEbar/usagepulse/internal/monitoring"
	"github.com/ZanzyTHEbar/usagepulse/internal/query"
)

type kpiSpec struct {
	key       string
	label     string
	column    string
	unit      string
	precision int
}

var kpiSpecs = []kpiSpec{
	{"avg_app_usage", "Avg Usage", dataset.AppUsageTime, "min/day", 1},
	{"avg_screen_time", "Avg Screen Time", dataset.ScreenOnTime, "hrs/day", 2},
	{"avg_battery_drain", "Avg Battery Drain", dataset.BatteryDrain, "mAh", 0},
	{"avg_data_usage", "Avg Data Usage", dataset.DataUsage, "MB/day", 1},
	{"avg_apps_installed", "Avg Apps Installed", dataset.AppsInstalled, "", 1},
	{"avg_intensity_score", "Avg Intensity Score", dataset.UsageIntensityScore, "", 1},
}

// CorrelationColumns are the columns of the correlation heatmap.
var CorrelationColumns = append(append([]string{}, dataset.NumericColumns...), dataset.UsageIntensityScore)

// Options configures an Analyzer.
type Options struct {
	Source    string
	Loader    dataset.Options
	Weights   Weights
	Responses *cache.Cache
	Telemetry *monitoring.Telemetry
	Metrics   *monitoring.Metrics
	Logger    *monitoring.Logger
}

// Analyzer orchestrates the pipeline: the prepared dataset is built once per
// source version and every request filters and aggregates it.
type Analyzer struct {
	source       string
	loader       *dataset.Loader
	preprocessor *Preprocessor
	datasets     *cache.DatasetCache
	responses    *cache.Cache
	telemetry    *monitoring.Telemetry
	metrics      *monitoring.Metrics
	logger       *monitoring.Logger
}

// NewAnalyzer creates a new analyzer with all components
func NewAnalyzer(opts Options) *Analyzer {
	if opts.Telemetry == nil {
		opts.Telemetry = monitoring.NoopTelemetry()
	}
	if opts.Metrics == nil {
		opts.Metrics = monitoring.NewMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = monitoring.NewLogger("info", "json")
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights
	}

	a := &Analyzer{
		source:       opts.Source,
		loader:       dataset.NewLoader(opts.Loader, opts.Logger.Logger),
		preprocessor: NewPreprocessor(opts.Weights, opts.Logger),
		responses:    opts.Responses,
		telemetry:    opts.Telemetry,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
	}
	a.datasets = cache.NewDatasetCache(a.prepare, opts.Metrics, opts.Logger)
	return a
}

// Source returns the configured dataset path.
func (a *Analyzer) Source() string { return a.source }

// Version fingerprints the current source file: its path, size and
// modification time. An unreadable source has the empty version.
func (a *Analyzer) Version() string {
	fp, err := cache.Stat(a.source)
	if err != nil {
		return ""
	}
	return fp.String()
}

// Datasets exposes the prepared dataset cache.
func (a *Analyzer) Datasets() *cache.DatasetCache { return a.datasets }

// prepare runs the load, normalize and score stages.
func (a *Analyzer) prepare(ctx context.Context, source string) (ds *dataset.Dataset, err error) {
	ctx, span := a.telemetry.StartSpan(ctx, "pipeline.prepare", attribute.String("source", source))
	start := time.Now()
	defer func() {
		a.telemetry.Pipeline.RecordLoad(ctx, source, time.Since(start), err)
		monitoring.EndSpan(span, err)
	}()

	raw, err := a.loader.Load(ctx, source)
	if err != nil {
		return nil, err
	}
	a.logger.PipelineLogger("load", source, raw.Len(), time.Since(start), false)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ds, _, err = a.preprocessor.Process(ctx, raw)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", ds.Len()))
	return ds, nil
}

// Dataset returns the prepared dataset, reading the source only when it
// changed since the last load.
func (a *Analyzer) Dataset(ctx context.Context) (*dataset.Dataset, error) {
	start := time.Now()
	ds, hit, err := a.datasets.Get(ctx, a.source)
	if err != nil {
		return nil, err
	}
	a.logger.PipelineLogger("prepare", a.source, ds.Len(), time.Since(start), hit)
	return ds, nil
}

// Reload drops every cached dataset and response, then reads the source again.
func (a *Analyzer) Reload(ctx context.Context) (*dataset.Dataset, error) {
	a.datasets.Invalidate(a.source)
	if a.responses != nil {
		a.responses.Clear()
	}
	a.logger.SystemLogger("reload", a.source)
	return a.Dataset(ctx)
}

// Evaluate filters the prepared dataset with sel and hands the view to fn,
// recording the evaluation as operation.
func (a *Analyzer) Evaluate(ctx context.Context, operation string, sel query.Selection, fn func(*query.View) error) (err error) {
	ds, err := a.Dataset(ctx)
	if err != nil {
		return err
	}

	ctx, span := a.telemetry.StartSpan(ctx, "pipeline."+operation)
	defer func() { monitoring.EndSpan(span, err) }()

	start := time.Now()
	v, err := query.Apply(ds, sel)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("rows.total", ds.Len()), attribute.Int("rows.selected", v.Len()))

	if err = fn(v); err != nil {
		return err
	}

	a.metrics.IncrementEvaluation()
	a.telemetry.Pipeline.RecordEvaluation(ctx, operation, v.Len(), time.Since(start))
	return nil
}

// Filters lists the distinct gender and operating system values of the full
// dataset.
func (a *Analyzer) Filters(ctx context.Context) (FilterOptions, error) {
	ds, err := a.Dataset(ctx)
	if err != nil {
		return FilterOptions{}, err
	}
	return filterOptions(ds)
}

func filterOptions(ds *dataset.Dataset) (FilterOptions, error) {
	all := query.All(ds)
	genders, err := all.Distinct(dataset.Gender)
	if err != nil {
		return FilterOptions{}, err
	}
	systems, err := all.Distinct(dataset.OperatingSystem)
	if err != nil {
		return FilterOptions{}, err
	}
	return FilterOptions{Genders: genders, OperatingSystems: systems}, nil
}

// KPIs computes the metric cards for sel.
func (a *Analyzer) KPIs(ctx context.Context, sel query.Selection) (*KPIs, error) {
	var out *KPIs
	err := a.Evaluate(ctx, "kpis", sel, func(v *query.View) error {
		var err error
		out, err = kpis(v)
		return err
	})
	return out, err
}

func kpis(v *query.View) (*KPIs, error) {
	out := &KPIs{
		TotalRows:    v.Dataset().Len(),
		FilteredRows: v.Len(),
		Metrics:      make([]KPI, 0, len(kpiSpecs)),
	}
	for _, spec := range kpiSpecs {
		mean, err := query.Mean(v, spec.column)
		if err != nil {
			return nil, err
		}
		out.Metrics = append(out.Metrics, KPI{
			Key:     spec.key,
			Label:   spec.label,
			Column:  spec.column,
			Value:   mean,
			Display: mean.Format(spec.precision),
			Unit:    spec.unit,
		})
	}
	return out, nil
}

// Dashboard computes the KPI block and every tab for sel.
func (a *Analyzer) Dashboard(ctx context.Context, sel query.Selection) (*Dashboard, error) {
	d := &Dashboard{Source: a.source, Selection: sel, GeneratedAt: time.Now().UTC()}

	err := a.Evaluate(ctx, "dashboard", sel, func(v *query.View) error {
		var err error
		if d.KPIs, err = kpis(v); err != nil {
			return err
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		if d.Engagement, err = engagement(v); err != nil {
			return err
		}
		if d.Device, err = device(v); err != nil {
			return err
		}
		if d.Demographics, err = demographics(v); err != nil {
			return err
		}
		if d.Behavior, err = behavior(v); err != nil {
			return err
		}
		d.Filters, err = filterOptions(v.Dataset())
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func engagement(v *query.View) (EngagementTab, error) {
	var (
		tab EngagementTab
		err error
	)
	if tab.UsageHistogram, err = query.Histogram(v, dataset.AppUsageTime, UsageHistogramBuckets); err != nil {
		return tab, err
	}
	if tab.UsageVsBattery, err = query.Scatter(v, dataset.AppUsageTime, dataset.BatteryDrain); err != nil {
		return tab, err
	}
	tab.Correlation, err = query.CorrelationMatrix(v, CorrelationColumns)
	return tab, err
}

func device(v *query.View) (DeviceTab, error) {
	var (
		tab DeviceTab
		err error
	)
	if tab.UsageByOS, err = query.BoxSummary(v, dataset.OperatingSystem, dataset.AppUsageTime); err != nil {
		return tab, err
	}
	tab.TopDevicesByBattery, err = query.TopN(v, dataset.DeviceModel, dataset.BatteryDrain, TopDevices, true)
	return tab, err
}

func demographics(v *query.View) (DemographicsTab, error) {
	var (
		tab DemographicsTab
		err error
	)
	if tab.UsageByAge, err = query.GroupSum(v, dataset.Age, dataset.AppUsageTime); err != nil {
		return tab, err
	}
	sortByNumericGroup(tab.UsageByAge)
	tab.UsageByGender, err = query.GroupMean(v, dataset.Gender, dataset.AppUsageTime)
	return tab, err
}

func behavior(v *query.View) (BehaviorTab, error) {
	var (
		tab BehaviorTab
		err error
	)
	if tab.ClassDistribution, err = query.DistributionCounts(v, dataset.BehaviorClass); err != nil {
		return tab, err
	}
	tab.UsageByClass, err = query.BoxSummary(v, dataset.BehaviorClass, dataset.AppUsageTime)
	return tab, err
}

// sortByNumericGroup orders groups by their numeric label so bars follow the
// axis. Labels that do not parse keep their relative order after the rest.
func sortByNumericGroup(groups []query.GroupValue) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, errA := strconv.ParseFloat(groups[i].Group, 64)
		b, errB := strconv.ParseFloat(groups[j].Group, 64)
		switch {
		case errA != nil:
			return false
		case errB != nil:
			return true
		default:
			return a < b
		}
	})
}
