package query

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MaxHistogramBuckets bounds the bucket count of a single histogram.
const MaxHistogramBuckets = 1000

// Bucket is one equal-width histogram bin. Bins are half-open except the
// last, which includes Upper.
type Bucket struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Histogram bins the present values of column into buckets equal-width bins
// spanning their range. An empty view yields no bins; a single distinct value
// yields one bin holding every value.
func Histogram(v *View, column string, buckets int) ([]Bucket, error) {
	if buckets <= 0 {
		return nil, &ParameterError{Name: "buckets", Value: fmt.Sprint(buckets), Reason: "must be positive"}
	}
	if buckets > MaxHistogramBuckets {
		return nil, &ParameterError{Name: "buckets", Value: fmt.Sprint(buckets),
			Reason: fmt.Sprintf("must be at most %d", MaxHistogramBuckets)}
	}

	xs, err := v.Values(column)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return []Bucket{}, nil
	}

	sort.Float64s(xs)
	lo, hi := xs[0], xs[len(xs)-1]
	if lo == hi {
		return []Bucket{{Lower: lo, Upper: hi, Count: len(xs)}}, nil
	}

	dividers := make([]float64, buckets+1)
	if math.IsInf(hi-lo, 0) {
		// the width overflows; interpolate between the finite endpoints
		for k := range dividers {
			f := float64(k) / float64(buckets)
			dividers[k] = lo*(1-f) + hi*f
		}
	} else {
		floats.Span(dividers, lo, hi)
	}
	dividers[0] = lo
	dividers[buckets] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, xs, nil)

	out := make([]Bucket, buckets)
	for k := range out {
		out[k] = Bucket{Lower: dividers[k], Upper: dividers[k+1], Count: int(counts[k])}
	}
	out[buckets-1].Upper = hi
	return out, nil
}
