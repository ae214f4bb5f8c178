package dataset

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Value is an optional numeric cell. The zero Value is missing.
type Value struct {
	Float float64
	Valid bool
}

// Num returns a present Value. NaN and infinities are treated as missing.
func Num(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Value{Float: f, Valid: true}
}

// Missing returns the missing marker.
func Missing() Value {
	return Value{}
}

func (v Value) IsMissing() bool {
	return !v.Valid
}

// Or returns the float or def when missing.
func (v Value) Or(def float64) float64 {
	if !v.Valid {
		return def
	}
	return v.Float
}

// Format renders the value with a fixed precision, or "n/a" when missing.
func (v Value) Format(prec int) string {
	if !v.Valid {
		return "n/a"
	}
	return strconv.FormatFloat(v.Float, 'f', prec, 64)
}

func (v Value) String() string {
	return v.Format(-1)
}

// MarshalJSON encodes a missing value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Num(f)
	return nil
}
