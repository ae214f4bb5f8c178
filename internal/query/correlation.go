package query

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
)

// Matrix is a square correlation matrix labelled by column.
type Matrix struct {
	Columns []string          `json:"columns"`
	Values  [][]dataset.Value `json:"values"`
}

// At returns the coefficient for columns i and j.
func (m *Matrix) At(i, j int) dataset.Value {
	return m.Values[i][j]
}

// CorrelationMatrix computes pairwise Pearson coefficients. Each pair uses only
// the rows where both values are present; a pair with fewer than two such rows
// or with zero variance on either side is missing.
func CorrelationMatrix(v *View, columns []string) (*Matrix, error) {
	cols := make([]*dataset.Column, len(columns))
	for k, name := range columns {
		col, err := v.ds.NumericColumn(name)
		if err != nil {
			return nil, err
		}
		cols[k] = col
	}

	m := &Matrix{
		Columns: make([]string, len(cols)),
		Values:  make([][]dataset.Value, len(cols)),
	}
	for k, col := range cols {
		m.Columns[k] = col.Name
		m.Values[k] = make([]dataset.Value, len(cols))
	}

	for i := range cols {
		for j := i; j < len(cols); j++ {
			r := v.pearson(cols[i], cols[j])
			if i == j && r.Valid {
				r = dataset.Num(1)
			}
			m.Values[i][j] = r
			m.Values[j][i] = r
		}
	}
	return m, nil
}

func (v *View) pearson(a, b *dataset.Column) dataset.Value {
	xs := make([]float64, 0, len(v.rows))
	ys := make([]float64, 0, len(v.rows))
	for _, i := range v.rows {
		x, y := a.Num(i), b.Num(i)
		if x.Valid && y.Valid {
			xs = append(xs, x.Float)
			ys = append(ys, y.Float)
		}
	}
	if len(xs) < 2 {
		return dataset.Missing()
	}
	if stat.Variance(xs, nil) == 0 || stat.Variance(ys, nil) == 0 {
		return dataset.Missing()
	}

	r := stat.Correlation(xs, ys, nil)
	return dataset.Num(math.Max(-1, math.Min(1, r)))
}
