package query

import (
	"math"
	"sort"

	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
)

// BoxStats is the five-number summary of one group.
type BoxStats struct {
	Group  string        `json:"group"`
	Count  int           `json:"count"`
	Min    dataset.Value `json:"min"`
	Q1     dataset.Value `json:"q1"`
	Median dataset.Value `json:"median"`
	Q3     dataset.Value `json:"q3"`
	Max    dataset.Value `json:"max"`
}

// BoxSummary summarizes value per group, first-seen group order.
func BoxSummary(v *View, groupCol, valueCol string) ([]BoxStats, error) {
	groups, err := groupBy(v, groupCol, valueCol)
	if err != nil {
		return nil, err
	}

	out := make([]BoxStats, len(groups))
	for k, g := range groups {
		out[k] = summarize(g.label, g.xs)
	}
	return out, nil
}

func summarize(label string, xs []float64) BoxStats {
	b := BoxStats{Group: label, Count: len(xs)}
	if len(xs) == 0 {
		return b
	}

	sorted := append([]float64{}, xs...)
	sort.Float64s(sorted)

	b.Min = dataset.Num(sorted[0])
	b.Max = dataset.Num(sorted[len(sorted)-1])
	b.Q1 = dataset.Num(quantile(sorted, 0.25))
	b.Median = dataset.Num(quantile(sorted, 0.5))
	b.Q3 = dataset.Num(quantile(sorted, 0.75))
	return b
}

// quantile interpolates between the closest ranks of sorted, (n-1)p based.
// gonum's stat.Quantile offers only the empirical and k/n interpolated
// definitions, neither of which yields the midpoint median for even n.
func quantile(sorted []float64, p float64) float64 {
	h := p * float64(len(sorted)-1)
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	f := h - lo
	if d := sorted[i+1] - sorted[i]; !math.IsInf(d, 0) {
		return sorted[i] + f*d
	}
	return sorted[i]*(1-f) + sorted[i+1]*f
}
