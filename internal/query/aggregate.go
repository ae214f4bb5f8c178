package query

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
)

// GroupValue is one group of a grouped aggregate.
type GroupValue struct {
	Group string        `json:"group"`
	Value dataset.Value `json:"value"`
	Count int           `json:"count"`
}

// CategoryCount is one category of a distribution.
type CategoryCount struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Share    float64 `json:"share"`
}

// Mean averages the present values of column. An empty or all-missing view
// yields a missing value.
func Mean(v *View, column string) (dataset.Value, error) {
	xs, err := v.Values(column)
	if err != nil {
		return dataset.Value{}, err
	}
	if len(xs) == 0 {
		return dataset.Missing(), nil
	}
	return dataset.Num(stat.Mean(xs, nil)), nil
}

type group struct {
	label string
	xs    []float64
}

// groupBy partitions the present values of value by the text of groupCol.
// Groups come back in first-seen order; rows with a blank group are skipped.
func groupBy(v *View, groupCol, valueCol string) ([]*group, error) {
	gc, err := v.ds.Column(groupCol)
	if err != nil {
		return nil, err
	}
	vc, err := v.ds.NumericColumn(valueCol)
	if err != nil {
		return nil, err
	}

	index := make(map[string]*group)
	var groups []*group
	for _, i := range v.rows {
		label := gc.Text(i)
		if label == "" {
			continue
		}
		g, ok := index[label]
		if !ok {
			g = &group{label: label}
			index[label] = g
			groups = append(groups, g)
		}
		if x := vc.Num(i); x.Valid {
			g.xs = append(g.xs, x.Float)
		}
	}
	return groups, nil
}

// GroupMean averages value per group in first-seen group order. A group whose
// values are all missing has a missing mean.
func GroupMean(v *View, groupCol, valueCol string) ([]GroupValue, error) {
	groups, err := groupBy(v, groupCol, valueCol)
	if err != nil {
		return nil, err
	}

	out := make([]GroupValue, len(groups))
	for k, g := range groups {
		out[k] = GroupValue{Group: g.label, Count: len(g.xs), Value: dataset.Missing()}
		if len(g.xs) > 0 {
			out[k].Value = dataset.Num(stat.Mean(g.xs, nil))
		}
	}
	return out, nil
}

// GroupSum totals value per group in first-seen group order.
func GroupSum(v *View, groupCol, valueCol string) ([]GroupValue, error) {
	groups, err := groupBy(v, groupCol, valueCol)
	if err != nil {
		return nil, err
	}

	out := make([]GroupValue, len(groups))
	for k, g := range groups {
		out[k] = GroupValue{Group: g.label, Count: len(g.xs), Value: dataset.Missing()}
		if len(g.xs) > 0 {
			out[k].Value = dataset.Num(floats.Sum(g.xs))
		}
	}
	return out, nil
}

// TopN ranks group means and keeps the first n. Ties keep first-seen order and
// groups with a missing mean rank last.
func TopN(v *View, groupCol, valueCol string, n int, descending bool) ([]GroupValue, error) {
	if n <= 0 {
		return nil, &ParameterError{Name: "n", Value: fmt.Sprint(n), Reason: "must be positive"}
	}

	means, err := GroupMean(v, groupCol, valueCol)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(means, func(i, j int) bool {
		a, b := means[i].Value, means[j].Value
		if !a.Valid || !b.Valid {
			return a.Valid && !b.Valid
		}
		if descending {
			return a.Float > b.Float
		}
		return a.Float < b.Float
	})

	if n < len(means) {
		means = means[:n]
	}
	return means, nil
}

// DistributionCounts counts rows per non-blank value of column in first-seen
// order, with each category's share of the counted rows.
func DistributionCounts(v *View, column string) ([]CategoryCount, error) {
	col, err := v.ds.Column(column)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var out []CategoryCount
	total := 0
	for _, i := range v.rows {
		label := col.Text(i)
		if label == "" {
			continue
		}
		k, ok := index[label]
		if !ok {
			k = len(out)
			index[label] = k
			out = append(out, CategoryCount{Category: label})
		}
		out[k].Count++
		total++
	}

	for k := range out {
		out[k].Share = float64(out[k].Count) / float64(total)
	}
	if out == nil {
		out = []CategoryCount{}
	}
	return out, nil
}
