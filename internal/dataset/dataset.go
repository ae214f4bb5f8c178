package dataset

import (
	"fmt"
	"strings"
)

// Kind is the storage kind of a column.
type Kind int

const (
	KindText Kind = iota
	KindNumeric
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	default:
		return "text"
	}
}

// Column holds the cells of one attribute. Exactly one of text or nums is
// populated, depending on Kind.
type Column struct {
	Name string
	Kind Kind
	text []string
	nums []Value
}

// NewTextColumn wraps cells without copying them.
func NewTextColumn(name string, cells []string) *Column {
	return &Column{Name: name, Kind: KindText, text: cells}
}

// NewNumericColumn wraps values without copying them.
func NewNumericColumn(name string, values []Value) *Column {
	return &Column{Name: name, Kind: KindNumeric, nums: values}
}

func (c *Column) Len() int {
	if c.Kind == KindNumeric {
		return len(c.nums)
	}
	return len(c.text)
}

// Text returns the cell as text. Numeric cells are formatted, missing ones
// are empty.
func (c *Column) Text(i int) string {
	if c.Kind == KindNumeric {
		if !c.nums[i].Valid {
			return ""
		}
		return c.nums[i].String()
	}
	return c.text[i]
}

// Num returns the numeric cell, or a missing Value for text columns.
func (c *Column) Num(i int) Value {
	if c.Kind != KindNumeric {
		return Value{}
	}
	return c.nums[i]
}

// renamed shares the storage of c under a new name.
func (c *Column) renamed(name string) *Column {
	cp := *c
	cp.Name = name
	return &cp
}

// Dataset is an immutable column store. Transformations return new datasets
// that share untouched columns with their input.
type Dataset struct {
	Source  string
	columns []*Column
	index   map[string]int
	rows    int
}

func columnKey(name string) string {
	return strings.ToLower(NormalizeIdentifier(name))
}

// New builds a text-only dataset from a header and records. Short records
// are padded with empty cells and extra cells are dropped.
func New(source string, header []string, records [][]string) *Dataset {
	cols := make([]*Column, len(header))
	for j, name := range header {
		cells := make([]string, len(records))
		for i, rec := range records {
			if j < len(rec) {
				cells[i] = rec[j]
			}
		}
		cols[j] = NewTextColumn(name, cells)
	}

	ds, _ := FromColumns(source, cols...)
	return ds
}

// FromColumns assembles a dataset from columns of equal length. Names are
// looked up by canonical identifier; the first column wins on duplicates.
func FromColumns(source string, cols ...*Column) (*Dataset, error) {
	ds := &Dataset{
		Source:  source,
		columns: cols,
		index:   make(map[string]int, len(cols)),
	}
	for j, col := range cols {
		if j == 0 {
			ds.rows = col.Len()
		} else if col.Len() != ds.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", col.Name, col.Len(), ds.rows)
		}
		key := columnKey(col.Name)
		if _, dup := ds.index[key]; !dup {
			ds.index[key] = j
		}
	}
	return ds, nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return d.rows }

// Columns returns the column names in source order.
func (d *Dataset) Columns() []string {
	names := make([]string, len(d.columns))
	for j, col := range d.columns {
		names[j] = col.Name
	}
	return names
}

// HasColumn accepts either the source spelling or the canonical identifier.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[columnKey(name)]
	return ok
}

// Column looks a column up by name.
func (d *Dataset) Column(name string) (*Column, error) {
	j, ok := d.index[columnKey(name)]
	if !ok {
		return nil, &UnknownColumnError{Column: name}
	}
	return d.columns[j], nil
}

// NumericColumn is Column restricted to numeric columns.
func (d *Dataset) NumericColumn(name string) (*Column, error) {
	col, err := d.Column(name)
	if err != nil {
		return nil, err
	}
	if col.Kind != KindNumeric {
		return nil, &ColumnKindError{Column: col.Name, Want: KindNumeric}
	}
	return col, nil
}

// WithColumn returns a dataset with col appended, or replacing the column of
// the same canonical name. The receiver is left untouched.
func (d *Dataset) WithColumn(col *Column) (*Dataset, error) {
	if len(d.columns) > 0 && col.Len() != d.rows {
		return nil, fmt.Errorf("column %q has %d rows, want %d", col.Name, col.Len(), d.rows)
	}

	cols := make([]*Column, len(d.columns), len(d.columns)+1)
	copy(cols, d.columns)
	if j, ok := d.index[columnKey(col.Name)]; ok {
		cols[j] = col
	} else {
		cols = append(cols, col)
	}
	return FromColumns(d.Source, cols...)
}

// Record is the typed view of one row.
type Record struct {
	UserID         string `json:"user_id"`
	DeviceModel    string `json:"device_model"`
	OS             string `json:"operating_system"`
	AppUsageMin    Value  `json:"app_usage_time_min_day"`
	ScreenOnHours  Value  `json:"screen_on_time_hours_day"`
	BatteryDrain   Value  `json:"battery_drain_mah_day"`
	AppsInstalled  Value  `json:"number_of_apps_installed"`
	DataUsageMB    Value  `json:"data_usage_mb_day"`
	Age            Value  `json:"age"`
	Gender         string `json:"gender"`
	BehaviorClass  string `json:"user_behavior_class"`
	IntensityScore Value  `json:"usage_intensity_score"`
}

// Record returns row i. Absent columns leave their fields zero.
func (d *Dataset) Record(i int) Record {
	text := func(name string) string {
		if col, err := d.Column(name); err == nil {
			return col.Text(i)
		}
		return ""
	}
	num := func(name string) Value {
		if col, err := d.Column(name); err == nil {
			return col.Num(i)
		}
		return Value{}
	}

	return Record{
		UserID:         text(UserID),
		DeviceModel:    text(DeviceModel),
		OS:             text(OperatingSystem),
		AppUsageMin:    num(AppUsageTime),
		ScreenOnHours:  num(ScreenOnTime),
		BatteryDrain:   num(BatteryDrain),
		AppsInstalled:  num(AppsInstalled),
		DataUsageMB:    num(DataUsage),
		Age:            num(Age),
		Gender:         text(Gender),
		BehaviorClass:  text(BehaviorClass),
		IntensityScore: num(UsageIntensityScore),
	}
}
