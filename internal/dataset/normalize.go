package dataset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

var identifierReplacer = strings.NewReplacer("(", "_", ")", "_", "/", "_")

// NormalizeIdentifier canonicalizes a source header: whitespace, parentheses
// and slashes become underscores, runs of underscores collapse, and leading or
// trailing underscores are dropped. Names that match a schema column
// case-insensitively take the schema spelling.
func NormalizeIdentifier(name string) string {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	s = identifierReplacer.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	prev := false
	for _, r := range s {
		if r == '_' {
			if prev {
				continue
			}
			prev = true
		} else {
			prev = false
		}
		b.WriteRune(r)
	}
	s = strings.Trim(b.String(), "_")

	if canonical, ok := knownByLower[strings.ToLower(s)]; ok {
		return canonical
	}
	return s
}

// ParseNumeric parses a cell. Empty or unparsable cells are missing.
func ParseNumeric(cell string) Value {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return Value{}
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return Value{}
	}
	return Num(f)
}

// Normalize canonicalizes column identifiers and coerces the numeric schema
// columns. Applying it to its own output yields an equal dataset.
func Normalize(d *Dataset) (*Dataset, error) {
	seen := make(map[string]string, len(d.columns))
	var collisions []string

	cols := make([]*Column, len(d.columns))
	for j, col := range d.columns {
		name := NormalizeIdentifier(col.Name)
		key := strings.ToLower(name)
		if first, dup := seen[key]; dup {
			collisions = append(collisions, fmt.Sprintf("%q and %q -> %s", first, col.Name, name))
			continue
		}
		seen[key] = col.Name

		if numericByLower[key] && col.Kind == KindText {
			cols[j] = coerce(name, col)
			continue
		}
		cols[j] = col.renamed(name)
	}

	if len(collisions) > 0 {
		sort.Strings(collisions)
		return nil, &SchemaError{Source: d.Source, Collisions: collisions}
	}
	return FromColumns(d.Source, cols...)
}

func coerce(name string, col *Column) *Column {
	values := make([]Value, col.Len())
	for i := range values {
		values[i] = ParseNumeric(col.text[i])
	}
	return NewNumericColumn(name, values)
}

// MissingCounts reports how many cells of each numeric column are missing.
func MissingCounts(d *Dataset) map[string]int {
	counts := make(map[string]int)
	for _, col := range d.columns {
		if col.Kind != KindNumeric {
			continue
		}
		n := 0
		for _, v := range col.nums {
			if !v.Valid {
				n++
			}
		}
		counts[col.Name] = n
	}
	return counts
}
