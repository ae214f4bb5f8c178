package dataset

import (
	"fmt"
	"strings"
)

// SourceNotFoundError is returned when the dataset source does not exist.
type SourceNotFoundError struct {
	Source string
	Err    error
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("dataset source not found: %s", e.Source)
}

func (e *SourceNotFoundError) Unwrap() error { return e.Err }

// SchemaError reports required columns absent from a source, or distinct
// source headers that normalize to the same identifier.
type SchemaError struct {
	Source     string
	Missing    []string
	Collisions []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required columns: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Collisions) > 0 {
		parts = append(parts, "identifier collisions: "+strings.Join(e.Collisions, ", "))
	}
	if len(parts) == 0 {
		parts = append(parts, "invalid schema")
	}
	if e.Source == "" {
		return "dataset " + strings.Join(parts, "; ")
	}
	return fmt.Sprintf("dataset %s: %s", e.Source, strings.Join(parts, "; "))
}

// UnknownColumnError is returned when a query references a column that is
// not part of the dataset.
type UnknownColumnError struct {
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q", e.Column)
}

// ColumnKindError is returned when an operation needs a column of another kind.
type ColumnKindError struct {
	Column string
	Want   Kind
}

func (e *ColumnKindError) Error() string {
	return fmt.Sprintf("column %q is not %s", e.Column, e.Want)
}
