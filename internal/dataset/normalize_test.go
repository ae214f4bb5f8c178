package dataset

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "app usage header", input: "App Usage Time (min/day)", expected: AppUsageTime},
		{name: "screen header", input: "Screen On Time (hours/day)", expected: ScreenOnTime},
		{name: "battery header", input: "Battery Drain (mAh/day)", expected: BatteryDrain},
		{name: "data header", input: "Data Usage (MB/day)", expected: DataUsage},
		{name: "surrounding whitespace", input: "  User ID ", expected: UserID},
		{name: "case-insensitive match", input: "operating system", expected: OperatingSystem},
		{name: "already canonical", input: AppUsageTime, expected: AppUsageTime},
		{name: "repeated separators", input: "Device   Model", expected: DeviceModel},
		{name: "unknown column keeps spelling", input: "Region (EU/US)", expected: "Region_EU_US"},
		{name: "tab separated words", input: "Free\tText", expected: "Free_Text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeIdentifier(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, got, NormalizeIdentifier(got), "must be idempotent")
		})
	}
}

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Value
	}{
		{name: "integer", input: "393", want: Num(393)},
		{name: "decimal with spaces", input: " 6.4 ", want: Num(6.4)},
		{name: "empty", input: "", want: Missing()},
		{name: "garbage", input: "abc", want: Missing()},
		{name: "nan literal", input: "NaN", want: Missing()},
		{name: "infinity literal", input: "Inf", want: Missing()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseNumeric(tt.input))
		})
	}
}

func rawSample() *Dataset {
	return New("inline", []string{
		"User ID", "Operating System", "App Usage Time (min/day)", "Age", "Gender",
	}, [][]string{
		{"1", "Android", "100", "30", "Male"},
		{"2", "iOS", "", "41", "Female"},
		{"3", "Android", "n/a", "x", "Female"},
	})
}

func TestNormalize(t *testing.T) {
	ds, err := Normalize(rawSample())
	require.NoError(t, err)

	assert.Equal(t, []string{UserID, OperatingSystem, AppUsageTime, Age, Gender}, ds.Columns())
	assert.Equal(t, 3, ds.Len())

	usage, err := ds.Column(AppUsageTime)
	require.NoError(t, err)
	assert.Equal(t, KindNumeric, usage.Kind)
	assert.Equal(t, Num(100), usage.Num(0))
	assert.True(t, usage.Num(1).IsMissing())
	assert.True(t, usage.Num(2).IsMissing())

	os, err := ds.Column("Operating System")
	require.NoError(t, err)
	assert.Equal(t, KindText, os.Kind)
	assert.Equal(t, "iOS", os.Text(1))

	assert.Equal(t, map[string]int{AppUsageTime: 2, Age: 1}, MissingCounts(ds))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	once, err := Normalize(rawSample())
	require.NoError(t, err)
	twice, err := Normalize(once)
	require.NoError(t, err)

	assert.Equal(t, once.Columns(), twice.Columns())
	for _, name := range once.Columns() {
		a, _ := once.Column(name)
		b, _ := twice.Column(name)
		require.Equal(t, a.Kind, b.Kind, name)
		for i := 0; i < once.Len(); i++ {
			assert.Equal(t, a.Num(i), b.Num(i))
			assert.Equal(t, a.Text(i), b.Text(i))
		}
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	raw := rawSample()
	_, err := Normalize(raw)
	require.NoError(t, err)

	col, err := raw.Column("App Usage Time (min/day)")
	require.NoError(t, err)
	assert.Equal(t, KindText, col.Kind)
	assert.Equal(t, "App Usage Time (min/day)", col.Name)
}

func TestNormalizeCollision(t *testing.T) {
	raw := New("dup.csv", []string{"Age", "age ", "Gender"}, [][]string{{"1", "2", "Male"}})

	_, err := Normalize(raw)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Len(t, schemaErr.Collisions, 1)
	assert.Contains(t, err.Error(), "identifier collisions")
}

func TestWithColumn(t *testing.T) {
	ds, err := Normalize(rawSample())
	require.NoError(t, err)

	score := NewNumericColumn(UsageIntensityScore, []Value{Num(1), Num(2), Missing()})
	extended, err := ds.WithColumn(score)
	require.NoError(t, err)
	assert.False(t, ds.HasColumn(UsageIntensityScore))
	assert.True(t, extended.HasColumn(UsageIntensityScore))

	replaced, err := extended.WithColumn(NewNumericColumn(UsageIntensityScore, []Value{Num(9), Num(9), Num(9)}))
	require.NoError(t, err)
	assert.Equal(t, len(extended.Columns()), len(replaced.Columns()))

	_, err = ds.WithColumn(NewNumericColumn("short", []Value{Num(1)}))
	assert.Error(t, err)
}

func TestUnknownAndKindErrors(t *testing.T) {
	ds, err := Normalize(rawSample())
	require.NoError(t, err)

	_, err = ds.Column("Shoe Size")
	var unknown *UnknownColumnError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Shoe Size", unknown.Column)

	_, err = ds.NumericColumn(Gender)
	var kindErr *ColumnKindError
	require.ErrorAs(t, err, &kindErr)
	assert.Equal(t, KindNumeric, kindErr.Want)
}

func TestValueJSON(t *testing.T) {
	out, err := json.Marshal([]Value{Num(1.5), Missing()})
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5, null]`, string(out))

	var back []Value
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, []Value{Num(1.5), Missing()}, back)

	assert.True(t, Num(math.NaN()).IsMissing())
	assert.Equal(t, "n/a", Missing().Format(1))
	assert.Equal(t, "2.50", Num(2.5).Format(2))
}
