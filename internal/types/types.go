package types

import (
	"time"

	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
	"github.com/ZanzyTHEbar/usagepulse/internal/query"
)

// ColumnRequest names a single column.
type ColumnRequest struct {
	Column string `form:"column" binding:"required"`
}

// HistogramRequest represents the query of the histogram endpoint
type HistogramRequest struct {
	Column  string `form:"column" binding:"required"`
	Buckets int    `form:"buckets" binding:"omitempty,min=1,max=1000"`
}

// GroupRequest names a categorical group column and a numeric value column.
type GroupRequest struct {
	Group string `form:"group" binding:"required"`
	Value string `form:"value" binding:"required"`
}

// TopRequest represents the query of the top-N endpoint
type TopRequest struct {
	Group string `form:"group" binding:"required"`
	Value string `form:"value" binding:"required"`
	N     int    `form:"n"`
	Order string `form:"order" binding:"omitempty,oneof=asc desc"`
}

// Descending reports whether the ranking is largest first. Desc is the default.
func (r TopRequest) Descending() bool { return r.Order != "asc" }

// ScatterRequest names the two axes of a scatter plot.
type ScatterRequest struct {
	X string `form:"x" binding:"required"`
	Y string `form:"y" binding:"required"`
}

// CorrelationRequest lists the matrix columns. Empty selects every numeric column.
type CorrelationRequest struct {
	Columns []string `form:"column"`
}

// RecordsRequest pages through the filtered rows.
type RecordsRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// Response envelopes. Every aggregate echoes the selection it was computed for.

// AggregateResponse wraps one aggregate result.
type AggregateResponse struct {
	Operation    string          `json:"operation"`
	Selection    query.Selection `json:"selection"`
	FilteredRows int             `json:"filtered_rows"`
	Result       interface{}     `json:"result"`
}

// RecordsResponse is one page of filtered rows.
type RecordsResponse struct {
	Selection query.Selection  `json:"selection"`
	Total     int              `json:"total"`
	Offset    int              `json:"offset"`
	Limit     int              `json:"limit"`
	Records   []dataset.Record `json:"records"`
}

// ReloadResponse reports a completed reload.
type ReloadResponse struct {
	Source   string    `json:"source"`
	Rows     int       `json:"rows"`
	Reloaded time.Time `json:"reloaded_at"`
}

// HealthResponse represents the health endpoint payload
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Version   string                 `json:"version"`
	Source    string                 `json:"source"`
	Rows      int                    `json:"rows"`
	Error     string                 `json:"error,omitempty"`
	Cache     map[string]interface{} `json:"cache"`
	Datasets  map[string]interface{} `json:"datasets"`
}
