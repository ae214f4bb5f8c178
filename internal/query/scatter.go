package query

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
)

// Point is one paired observation.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Trendline is an ordinary least-squares fit y = Intercept + Slope*x.
type Trendline struct {
	Slope     float64       `json:"slope"`
	Intercept float64       `json:"intercept"`
	RSquared  dataset.Value `json:"r_squared"`
	XMin      float64       `json:"x_min"`
	XMax      float64       `json:"x_max"`
}

// At evaluates the fitted line.
func (t *Trendline) At(x float64) float64 {
	return t.Intercept + t.Slope*x
}

// ScatterResult holds the paired points of two columns and their fit.
type ScatterResult struct {
	X      string     `json:"x"`
	Y      string     `json:"y"`
	Points []Point    `json:"points"`
	Trend  *Trendline `json:"trend"`
}

// Scatter pairs the rows where both columns are present and fits a trendline.
// Trend is nil with fewer than two points or when x does not vary.
func Scatter(v *View, xCol, yCol string) (*ScatterResult, error) {
	xc, err := v.ds.NumericColumn(xCol)
	if err != nil {
		return nil, err
	}
	yc, err := v.ds.NumericColumn(yCol)
	if err != nil {
		return nil, err
	}

	res := &ScatterResult{X: xc.Name, Y: yc.Name, Points: []Point{}}
	xs := make([]float64, 0, len(v.rows))
	ys := make([]float64, 0, len(v.rows))
	for _, i := range v.rows {
		x, y := xc.Num(i), yc.Num(i)
		if !x.Valid || !y.Valid {
			continue
		}
		res.Points = append(res.Points, Point{X: x.Float, Y: y.Float})
		xs = append(xs, x.Float)
		ys = append(ys, y.Float)
	}

	if len(xs) < 2 || stat.Variance(xs, nil) == 0 {
		return res, nil
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if !finite(alpha) || !finite(beta) {
		// sums of squares overflowed; no line can be reported
		return res, nil
	}
	res.Trend = &Trendline{
		Slope:     beta,
		Intercept: alpha,
		RSquared:  dataset.Num(stat.RSquared(xs, ys, nil, alpha, beta)),
		XMin:      floats.Min(xs),
		XMax:      floats.Max(xs),
	}
	return res, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
