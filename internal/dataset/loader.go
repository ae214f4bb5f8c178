package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ZanzyTHEbar/usagepulse/internal/database"
)

const ctxCheckEvery = 1024

// Options controls how sources are read.
type Options struct {
	// Delimiter for delimited text. Zero sniffs it from the header line.
	Delimiter rune
	// Sheet of a workbook. Empty selects the first sheet.
	Sheet string
	// Table of a SQLite source. Empty selects database.DefaultTable.
	Table string
}

// Loader reads tabular sources into text-only datasets.
type Loader struct {
	opts   Options
	logger *slog.Logger
}

func NewLoader(opts Options, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Table == "" {
		opts.Table = database.DefaultTable
	}
	return &Loader{opts: opts, logger: logger}
}

// Load reads source and validates that every required column is present.
func (l *Loader) Load(ctx context.Context, source string) (*Dataset, error) {
	info, err := os.Stat(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &SourceNotFoundError{Source: source, Err: err}
		}
		return nil, fmt.Errorf("stat %s: %w", source, err)
	}
	if info.IsDir() {
		return nil, &SourceNotFoundError{Source: source, Err: fmt.Errorf("%s is a directory", source)}
	}

	var header []string
	var records [][]string

	ext := strings.ToLower(filepath.Ext(source))
	switch ext {
	case ".xlsx", ".xlsm":
		header, records, err = l.readWorkbook(ctx, source)
	case ".db", ".sqlite", ".sqlite3":
		header, records, err = l.readSQLite(ctx, source)
	default:
		header, records, err = l.readDelimited(ctx, source)
	}
	if err != nil {
		return nil, err
	}

	if missing := missingRequired(header); len(missing) > 0 {
		return nil, &SchemaError{Source: source, Missing: missing}
	}

	l.logger.Info("Dataset loaded",
		"source", source,
		"format", strings.TrimPrefix(ext, "."),
		"rows", len(records),
		"columns", len(header))

	return New(source, header, records), nil
}

func missingRequired(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, name := range header {
		present[columnKey(name)] = true
	}

	var missing []string
	for _, name := range RequiredColumns {
		if !present[strings.ToLower(name)] {
			missing = append(missing, name)
		}
	}
	return missing
}

func (l *Loader) readDelimited(ctx context.Context, source string) ([]string, [][]string, error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", source, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	delim := l.opts.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br, source)
	}

	r := csv.NewReader(br)
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header of %s: %w", source, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var records [][]string
	for {
		if len(records)%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", source, err)
		}
		records = append(records, rec)
	}

	return header, records, nil
}

// sniffDelimiter picks the candidate that occurs most often in the first line.
func sniffDelimiter(br *bufio.Reader, source string) rune {
	if strings.EqualFold(filepath.Ext(source), ".tsv") {
		return '\t'
	}

	line, _ := br.Peek(4096)
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	best, bestCount := ',', 0
	for _, candidate := range []rune{',', ';', '\t', '|'} {
		if n := bytes.Count(line, []byte(string(candidate))); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}

func (l *Loader) readWorkbook(ctx context.Context, source string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(source)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook %s: %w", source, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			l.logger.Warn("Failed to close workbook", "source", source, "error", err)
		}
	}()

	sheet := l.opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil, fmt.Errorf("workbook %s has no sheets", source)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q of %s: %w", sheet, source, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}

	records := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		records = append(records, row)
	}
	return rows[0], records, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func (l *Loader) readSQLite(ctx context.Context, source string) ([]string, [][]string, error) {
	db, err := database.Open(ctx, source)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", source, err)
	}
	defer db.Close()

	header, records, err := db.ReadTable(ctx, l.opts.Table)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", source, err)
	}
	return header, records, nil
}
