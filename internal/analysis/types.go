package analysis

import (
	"time"

	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
	"github.com/ZanzyTHEbar/usagepulse/internal/query"
)

const (
	// UsageHistogramBuckets is the bucket count of the app usage histogram.
	UsageHistogramBuckets = 30
	// TopDevices is the length of the battery drain ranking.
	TopDevices = 10
)

// KPI is one headline metric card.
type KPI struct {
	Key     string        `json:"key"`
	Label   string        `json:"label"`
	Column  string        `json:"column"`
	Value   dataset.Value `json:"value"`
	Display string        `json:"display"`
	Unit    string        `json:"unit,omitempty"`
}

// KPIs is the metric card block for one selection.
type KPIs struct {
	TotalRows    int   `json:"total_rows"`
	FilteredRows int   `json:"filtered_rows"`
	Metrics      []KPI `json:"metrics"`
}

// Get returns the metric with key.
func (k *KPIs) Get(key string) (KPI, bool) {
	for _, m := range k.Metrics {
		if m.Key == key {
			return m, true
		}
	}
	return KPI{}, false
}

// EngagementTab relates usage to battery and the other numeric columns.
type EngagementTab struct {
	UsageHistogram []query.Bucket       `json:"usage_histogram"`
	UsageVsBattery *query.ScatterResult `json:"usage_vs_battery"`
	Correlation    *query.Matrix        `json:"correlation"`
}

// DeviceTab compares operating systems and device models.
type DeviceTab struct {
	UsageByOS           []query.BoxStats   `json:"usage_by_os"`
	TopDevicesByBattery []query.GroupValue `json:"top_devices_by_battery"`
}

// DemographicsTab breaks usage down by age and gender.
type DemographicsTab struct {
	UsageByAge    []query.GroupValue `json:"usage_by_age"`
	UsageByGender []query.GroupValue `json:"usage_by_gender"`
}

// BehaviorTab describes the behavior classes.
type BehaviorTab struct {
	ClassDistribution []query.CategoryCount `json:"class_distribution"`
	UsageByClass      []query.BoxStats      `json:"usage_by_class"`
}

// FilterOptions lists the selectable values of each filter.
type FilterOptions struct {
	Genders          []string `json:"genders"`
	OperatingSystems []string `json:"operating_systems"`
}

// Dashboard is the complete payload for one filter selection.
type Dashboard struct {
	Source       string          `json:"source"`
	Selection    query.Selection `json:"selection"`
	KPIs         *KPIs           `json:"kpis"`
	Engagement   EngagementTab   `json:"engagement"`
	Device       DeviceTab       `json:"device"`
	Demographics DemographicsTab `json:"demographics"`
	Behavior     BehaviorTab     `json:"behavior"`
	Filters      FilterOptions   `json:"filters"`
	GeneratedAt  time.Time       `json:"generated_at"`
}
