package query

import (
	"fmt"

	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
)

// Selection maps a categorical column to the values a row may hold. A column
// present with no values excludes every row; an absent column is unconstrained.
type Selection map[string][]string

// Clone returns a deep copy of s.
func (s Selection) Clone() Selection {
	out := make(Selection, len(s))
	for k, vals := range s {
		out[k] = append([]string{}, vals...)
	}
	return out
}

// DefaultFilterColumns are pre-selected by DefaultSelection.
var DefaultFilterColumns = []string{dataset.Gender, dataset.OperatingSystem}

// DefaultSelection selects every observed value of the gender and operating
// system columns, in first-seen order.
func DefaultSelection(ds *dataset.Dataset) (Selection, error) {
	all := All(ds)
	sel := make(Selection, len(DefaultFilterColumns))
	for _, name := range DefaultFilterColumns {
		col, err := ds.Column(name)
		if err != nil {
			return nil, err
		}
		sel[col.Name] = all.distinct(col, true)
	}
	return sel, nil
}

// View is a read-only window of dataset rows.
type View struct {
	ds   *dataset.Dataset
	rows []int
}

// All returns a view over every row of ds.
func All(ds *dataset.Dataset) *View {
	rows := make([]int, ds.Len())
	for i := range rows {
		rows[i] = i
	}
	return &View{ds: ds, rows: rows}
}

// Apply retains the rows whose value is allowed for every column in sel, in
// dataset order. The dataset is not modified.
func Apply(ds *dataset.Dataset, sel Selection) (*View, error) {
	type constraint struct {
		col     *dataset.Column
		allowed map[string]struct{}
	}

	constraints := make([]constraint, 0, len(sel))
	for name, values := range sel {
		col, err := ds.Column(name)
		if err != nil {
			return nil, err
		}
		allowed := make(map[string]struct{}, len(values))
		for _, v := range values {
			allowed[v] = struct{}{}
		}
		constraints = append(constraints, constraint{col: col, allowed: allowed})
	}

	rows := make([]int, 0, ds.Len())
next:
	for i := 0; i < ds.Len(); i++ {
		for _, c := range constraints {
			if _, ok := c.allowed[c.col.Text(i)]; !ok {
				continue next
			}
		}
		rows = append(rows, i)
	}

	return &View{ds: ds, rows: rows}, nil
}

func (v *View) Len() int { return len(v.rows) }

func (v *View) Dataset() *dataset.Dataset { return v.ds }

// Rows returns the dataset row indexes of the view.
func (v *View) Rows() []int {
	return append([]int{}, v.rows...)
}

// Records returns the typed rows of the view.
func (v *View) Records() []dataset.Record {
	out := make([]dataset.Record, len(v.rows))
	for k, i := range v.rows {
		out[k] = v.ds.Record(i)
	}
	return out
}

// Page returns at most limit records starting at offset.
func (v *View) Page(offset, limit int) ([]dataset.Record, error) {
	if offset < 0 {
		return nil, &ParameterError{Name: "offset", Value: fmt.Sprint(offset), Reason: "must not be negative"}
	}
	if limit <= 0 {
		return nil, &ParameterError{Name: "limit", Value: fmt.Sprint(limit), Reason: "must be positive"}
	}
	if offset >= len(v.rows) {
		return []dataset.Record{}, nil
	}
	end := offset + limit
	if end > len(v.rows) {
		end = len(v.rows)
	}
	out := make([]dataset.Record, 0, end-offset)
	for _, i := range v.rows[offset:end] {
		out = append(out, v.ds.Record(i))
	}
	return out, nil
}

// Values returns the present values of a numeric column.
func (v *View) Values(column string) ([]float64, error) {
	col, err := v.ds.NumericColumn(column)
	if err != nil {
		return nil, err
	}
	return v.present(col), nil
}

func (v *View) present(col *dataset.Column) []float64 {
	xs := make([]float64, 0, len(v.rows))
	for _, i := range v.rows {
		if x := col.Num(i); x.Valid {
			xs = append(xs, x.Float)
		}
	}
	return xs
}

// Distinct returns the non-blank values of column in first-seen order.
func (v *View) Distinct(column string) ([]string, error) {
	col, err := v.ds.Column(column)
	if err != nil {
		return nil, err
	}
	return v.distinct(col, false), nil
}

func (v *View) distinct(col *dataset.Column, keepBlank bool) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, i := range v.rows {
		s := col.Text(i)
		if s == "" && !keepBlank {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
