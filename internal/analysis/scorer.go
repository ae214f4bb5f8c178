package analysis

import (
	"fmt"

	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
)

// Weights are the coefficients of the usage intensity score.
type Weights struct {
	AppUsage      float64 `json:"app_usage"`
	ScreenOn      float64 `json:"screen_on"`
	DataUsage     float64 `json:"data_usage"`
	AppsInstalled float64 `json:"apps_installed"`
}

// DefaultWeights favor daily app usage over screen time, data and app count.
var DefaultWeights = Weights{
	AppUsage:      0.4,
	ScreenOn:      0.3,
	DataUsage:     0.2,
	AppsInstalled: 0.1,
}

var scoreInputs = []string{
	dataset.AppUsageTime,
	dataset.ScreenOnTime,
	dataset.DataUsage,
	dataset.AppsInstalled,
}

// Score is the weighted sum of the four inputs, or missing if any input is.
func (w Weights) Score(usage, screen, data, apps dataset.Value) dataset.Value {
	if usage.IsMissing() || screen.IsMissing() || data.IsMissing() || apps.IsMissing() {
		return dataset.Missing()
	}
	return dataset.Num(w.AppUsage*usage.Float +
		w.ScreenOn*screen.Float +
		w.DataUsage*data.Float +
		w.AppsInstalled*apps.Float)
}

// Derive returns a copy of ds with the score column set. An existing score
// column is replaced.
func (w Weights) Derive(ds *dataset.Dataset) (*dataset.Dataset, error) {
	inputs := make([]*dataset.Column, len(scoreInputs))
	for i, name := range scoreInputs {
		col, err := ds.NumericColumn(name)
		if err != nil {
			return nil, fmt.Errorf("derive score: %w", err)
		}
		inputs[i] = col
	}

	scores := make([]dataset.Value, ds.Len())
	for i := range scores {
		scores[i] = w.Score(inputs[0].Num(i), inputs[1].Num(i), inputs[2].Num(i), inputs[3].Num(i))
	}

	return ds.WithColumn(dataset.NewNumericColumn(dataset.UsageIntensityScore, scores))
}

// IntensityScore scores one row with DefaultWeights.
func IntensityScore(usage, screen, data, apps dataset.Value) dataset.Value {
	return DefaultWeights.Score(usage, screen, data, apps)
}

// DeriveScore adds the usage intensity score with DefaultWeights.
func DeriveScore(ds *dataset.Dataset) (*dataset.Dataset, error) {
	return DefaultWeights.Derive(ds)
}
