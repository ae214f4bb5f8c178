package dataset

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const samplePath = "testdata/user_behavior_sample.csv"

var sampleHeader = []string{
	"User ID", "Device Model", "Operating System", "App Usage Time (min/day)",
	"Screen On Time (hours/day)", "Battery Drain (mAh/day)", "Number of Apps Installed",
	"Data Usage (MB/day)", "Age", "Gender", "User Behavior Class",
}

var sampleRows = [][]string{
	{"1", "Google Pixel 5", "Android", "393", "6.4", "1872", "67", "1122", "40", "Male", "4"},
	{"2", "iPhone 12", "iOS", "187", "4.3", "1367", "58", "988", "31", "Female", "3"},
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func joinRows(sep string, rows ...[]string) string {
	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = strings.Join(row, sep)
	}
	return strings.Join(lines, "\n") + "\n"
}

func TestLoadSampleCSV(t *testing.T) {
	ds, err := NewLoader(Options{}, nil).Load(context.Background(), samplePath)
	require.NoError(t, err)

	assert.Equal(t, 12, ds.Len())
	assert.Equal(t, samplePath, ds.Source)
	for _, name := range RequiredColumns {
		assert.True(t, ds.HasColumn(name), name)
	}

	col, err := ds.Column(DeviceModel)
	require.NoError(t, err)
	assert.Equal(t, KindText, col.Kind)
	assert.Equal(t, "Google Pixel 5", col.Text(0))
}

func TestLoadDelimiters(t *testing.T) {
	tests := []struct {
		name string
		file string
		sep  string
		opts Options
	}{
		{name: "semicolon sniffed", file: "data.csv", sep: ";"},
		{name: "pipe sniffed", file: "data.txt", sep: "|"},
		{name: "tsv by extension", file: "data.tsv", sep: "\t"},
		{name: "explicit delimiter", file: "data.csv", sep: ";", opts: Options{Delimiter: ';'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, joinRows(tt.sep, append([][]string{sampleHeader}, sampleRows...)...))

			ds, err := NewLoader(tt.opts, nil).Load(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, 2, ds.Len())

			col, err := ds.Column(OperatingSystem)
			require.NoError(t, err)
			assert.Equal(t, "iOS", col.Text(1))
		})
	}
}

func TestLoadRaggedRows(t *testing.T) {
	content := joinRows(",", sampleHeader,
		[]string{"1", "Google Pixel 5", "Android", "393"},
		append(append([]string{}, sampleRows[1]...), "extra", "cells"),
	)
	path := writeFile(t, "ragged.csv", "\ufeff"+content)

	ds, err := NewLoader(Options{}, nil).Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, len(sampleHeader), len(ds.Columns()))

	gender, err := ds.Column(Gender)
	require.NoError(t, err)
	assert.Equal(t, "", gender.Text(0))
	assert.Equal(t, "Female", gender.Text(1))

	assert.True(t, ds.HasColumn(UserID), "byte order mark must be stripped")
}

func TestLoadHeaderOnly(t *testing.T) {
	path := writeFile(t, "empty.csv", joinRows(",", sampleHeader))

	ds, err := NewLoader(Options{}, nil).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing source", func(t *testing.T) {
		_, err := NewLoader(Options{}, nil).Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
		var notFound *SourceNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Contains(t, err.Error(), "nope.csv")
	})

	t.Run("directory source", func(t *testing.T) {
		_, err := NewLoader(Options{}, nil).Load(context.Background(), t.TempDir())
		var notFound *SourceNotFoundError
		require.ErrorAs(t, err, &notFound)
	})

	t.Run("missing required columns", func(t *testing.T) {
		path := writeFile(t, "partial.csv", "user id,gender\n1,Male\n")
		_, err := NewLoader(Options{}, nil).Load(context.Background(), path)

		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.NotContains(t, schemaErr.Missing, UserID)
		assert.NotContains(t, schemaErr.Missing, Gender)
		assert.Contains(t, schemaErr.Missing, AppUsageTime)
		assert.Contains(t, err.Error(), AppUsageTime)
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeFile(t, "blank.csv", "")
		_, err := NewLoader(Options{}, nil).Load(context.Background(), path)

		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Len(t, schemaErr.Missing, len(RequiredColumns))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewLoader(Options{}, nil).Load(ctx, samplePath)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoadWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "behavior.xlsx")

	f := excelize.NewFile()
	for i, row := range append([][]string{sampleHeader}, sampleRows...) {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &cells))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	ds, err := NewLoader(Options{}, nil).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())

	ds, err = Normalize(ds)
	require.NoError(t, err)
	usage, err := ds.NumericColumn(AppUsageTime)
	require.NoError(t, err)
	assert.Equal(t, Num(393), usage.Num(0))
}

func TestLoadSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "behavior.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)

	quoted := make([]string, len(sampleHeader))
	marks := make([]string, len(sampleHeader))
	for i, h := range sampleHeader {
		quoted[i] = `"` + h + `"`
		marks[i] = "?"
	}
	_, err = db.Exec(`CREATE TABLE user_behavior (` + strings.Join(quoted, ", ") + `)`)
	require.NoError(t, err)

	for _, row := range sampleRows {
		args := make([]any, len(row))
		for i, v := range row {
			args[i] = v
		}
		_, err = db.Exec(`INSERT INTO user_behavior VALUES (`+strings.Join(marks, ", ")+`)`, args...)
		require.NoError(t, err)
	}
	_, err = db.Exec(`INSERT INTO user_behavior ("User ID", "Gender") VALUES ('3', 'Male')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	ds, err := NewLoader(Options{}, nil).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())

	ds, err = Normalize(ds)
	require.NoError(t, err)
	battery, err := ds.NumericColumn(BatteryDrain)
	require.NoError(t, err)
	assert.Equal(t, Num(1367), battery.Num(1))
	assert.True(t, battery.Num(2).IsMissing(), "NULL cells become missing")

	_, err = NewLoader(Options{Table: "other"}, nil).Load(context.Background(), path)
	assert.Error(t, err)

	_, err = NewLoader(Options{Table: "x; DROP TABLE user_behavior"}, nil).Load(context.Background(), path)
	assert.ErrorContains(t, err, "invalid table name")
}
