package main

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ZanzyTHEbar/usagepulse/docs"
	"github.com/ZanzyTHEbar/usagepulse/internal/analysis"
	"github.com/ZanzyTHEbar/usagepulse/internal/cache"
	"github.com/ZanzyTHEbar/usagepulse/internal/config"
	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
	apperrors "github.com/ZanzyTHEbar/usagepulse/internal/errors"
	"github.com/ZanzyTHEbar/usagepulse/internal/frontend"
	"github.com/ZanzyTHEbar/usagepulse/internal/middleware"
	"github.com/ZanzyTHEbar/usagepulse/internal/monitoring"
	"github.com/ZanzyTHEbar/usagepulse/internal/query"
	"github.com/ZanzyTHEbar/usagepulse/internal/ratelimit"
	"github.com/ZanzyTHEbar/usagepulse/internal/render"
	"github.com/ZanzyTHEbar/usagepulse/internal/security"
	"github.com/ZanzyTHEbar/usagepulse/internal/types"
)

const (
	version = "1.0.0"

	defaultPageSize = 50
	maxPageSize     = 1000
)

// filterParams maps query parameters to the columns they constrain.
var filterParams = []struct {
	param  string
	column string
}{
	{"gender", dataset.Gender},
	{"os", dataset.OperatingSystem},
}

// server holds the long-lived components shared by the handlers.
type server struct {
	cfg         *config.Config
	analyzer    *analysis.Analyzer
	renderer    *render.Renderer
	responses   *cache.Cache
	limiter     *ratelimit.RateLimiter
	compression *middleware.CompressionMiddleware
	security    *security.SecurityMiddleware
	telemetry   *monitoring.Telemetry
	metrics     *monitoring.Metrics
	logger      *monitoring.Logger
}

// setupRouter wires the middleware chain and every route.
func (s *server) setupRouter() (*gin.Engine, error) {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(monitoring.RequestIDMiddleware())
	r.Use(apperrors.RecoveryHandler())
	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	r.Use(monitoring.TracingMiddleware(s.telemetry))
	r.Use(monitoring.SecurityMonitoringMiddleware(s.logger))
	r.Use(apperrors.ErrorHandler())

	r.Use(security.SecurityHeadersMiddleware(s.cfg.Security.EnableHSTS))
	r.Use(s.security.CORS())
	r.Use(s.security.RequestTimeout)
	r.Use(s.security.ValidateContentType)
	r.Use(s.security.ValidateQuery)
	if s.limiter != nil {
		r.Use(s.limiter.IPRateLimitMiddleware("/health", "/metrics", "/metrics/prometheus"))
	}

	// compression wraps the cache so cached bodies stay uncompressed
	r.Use(s.compression.Handler())
	if s.responses != nil {
		// a rewritten source file changes every key
		s.responses.SetVersion(s.analyzer.Version)
		r.Use(s.responses.Middleware("/api/", s.metrics, s.logger, "/api/ratelimit", "/api/ratelimit/stats"))
	}

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.metrics.GetStats())
	})
	r.GET("/metrics/prometheus", s.handlePrometheus)
	r.GET("/cache/stats", s.handleCacheStats)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api")
	{
		api.GET("/filters", s.handleFilters)
		api.GET("/dashboard", s.handleDashboard)
		api.GET("/kpis", s.handleKPIs)
		api.GET("/records", s.handleRecords)
		api.GET("/charts/:name", s.handleChart)
		api.POST("/reload", s.handleReload)

		agg := api.Group("/aggregate")
		agg.GET("/mean", s.handleMean)
		agg.GET("/histogram", s.handleHistogram)
		agg.GET("/group-mean", s.handleGroupMean)
		agg.GET("/top", s.handleTop)
		agg.GET("/correlation", s.handleCorrelation)
		agg.GET("/distribution", s.handleDistribution)
		agg.GET("/box", s.handleBox)
		agg.GET("/scatter", s.handleScatter)

		if s.limiter != nil {
			api.GET("/ratelimit", s.limiter.HandleRateLimitStatus())
			api.GET("/ratelimit/stats", s.limiter.HandleRateLimitStats())
		}
	}

	distFS, err := frontend.GetDistFS()
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded dashboard: %w", err)
	}
	tmpl, err := frontend.LoadIndexTemplate(distFS)
	if err != nil {
		return nil, err
	}
	spa := frontend.NewSPAHandler(distFS, tmpl, s.logger)

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found", "path": c.Request.URL.Path})
			return
		}
		c.Next()
	}, security.CSPMiddleware(s.cfg.Security.CSPReportURI), spa)

	return r, nil
}

// parseSelection reads the filter parameters. A parameter that is present
// with only blank values selects nothing; an absent one leaves its column
// unconstrained.
func parseSelection(c *gin.Context) query.Selection {
	params := c.Request.URL.Query()
	sel := query.Selection{}
	for _, f := range filterParams {
		values, ok := params[f.param]
		if !ok {
			continue
		}
		kept := make([]string, 0, len(values))
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				kept = append(kept, v)
			}
		}
		sel[f.column] = kept
	}
	return sel
}

func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		apperrors.Respond(c, apperrors.NewValidationError("Invalid request parameters", err))
		return false
	}
	return true
}

func (s *server) handleHealth(c *gin.Context) {
	resp := types.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   version,
		Source:    s.analyzer.Source(),
		Datasets:  s.analyzer.Datasets().Stats(),
	}
	if s.responses != nil {
		resp.Cache = s.responses.Stats()
	}

	ds, err := s.analyzer.Dataset(c.Request.Context())
	if err != nil {
		resp.Status = "degraded"
		resp.Error = apperrors.ToAppError(err).ErrBuilder.Msg
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	resp.Rows = ds.Len()
	c.JSON(http.StatusOK, resp)
}

func (s *server) handlePrometheus(c *gin.Context) {
	if s.telemetry.PrometheusHTTP == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "prometheus exporter disabled"})
		return
	}
	s.telemetry.PrometheusHTTP.ServeHTTP(c.Writer, c.Request)
}

func (s *server) handleCacheStats(c *gin.Context) {
	stats := gin.H{
		"datasets":    s.analyzer.Datasets().Stats(),
		"compression": s.compression.GetStats(),
	}
	if s.responses != nil {
		stats["responses"] = s.responses.Stats()
	}
	c.JSON(http.StatusOK, stats)
}

func (s *server) handleFilters(c *gin.Context) {
	opts, err := s.analyzer.Filters(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, opts)
}

func (s *server) handleDashboard(c *gin.Context) {
	d, err := s.analyzer.Dashboard(c.Request.Context(), parseSelection(c))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *server) handleKPIs(c *gin.Context) {
	k, err := s.analyzer.KPIs(c.Request.Context(), parseSelection(c))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, k)
}

// aggregate evaluates fn over the filtered view and writes the enveloped result.
func (s *server) aggregate(c *gin.Context, operation string, fn func(*query.View) (interface{}, error)) {
	sel := parseSelection(c)
	resp := types.AggregateResponse{Operation: operation, Selection: sel}

	err := s.analyzer.Evaluate(c.Request.Context(), operation, sel, func(v *query.View) error {
		result, err := fn(v)
		if err != nil {
			return err
		}
		resp.FilteredRows = v.Len()
		resp.Result = result
		return nil
	})
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) handleMean(c *gin.Context) {
	var req types.ColumnRequest
	if !bindQuery(c, &req) {
		return
	}
	s.aggregate(c, "mean", func(v *query.View) (interface{}, error) {
		return query.Mean(v, req.Column)
	})
}

func (s *server) handleHistogram(c *gin.Context) {
	var req types.HistogramRequest
	if !bindQuery(c, &req) {
		return
	}
	if _, ok := c.GetQuery("buckets"); !ok {
		req.Buckets = analysis.UsageHistogramBuckets
	}
	s.aggregate(c, "histogram", func(v *query.View) (interface{}, error) {
		return query.Histogram(v, req.Column, req.Buckets)
	})
}

func (s *server) handleGroupMean(c *gin.Context) {
	var req types.GroupRequest
	if !bindQuery(c, &req) {
		return
	}
	s.aggregate(c, "group_mean", func(v *query.View) (interface{}, error) {
		return query.GroupMean(v, req.Group, req.Value)
	})
}

func (s *server) handleTop(c *gin.Context) {
	var req types.TopRequest
	if !bindQuery(c, &req) {
		return
	}
	if _, ok := c.GetQuery("n"); !ok {
		req.N = analysis.TopDevices
	}
	s.aggregate(c, "top", func(v *query.View) (interface{}, error) {
		return query.TopN(v, req.Group, req.Value, req.N, req.Descending())
	})
}

func (s *server) handleCorrelation(c *gin.Context) {
	var req types.CorrelationRequest
	if !bindQuery(c, &req) {
		return
	}
	columns := req.Columns
	if len(columns) == 0 {
		columns = analysis.CorrelationColumns
	}
	s.aggregate(c, "correlation", func(v *query.View) (interface{}, error) {
		return query.CorrelationMatrix(v, columns)
	})
}

func (s *server) handleDistribution(c *gin.Context) {
	var req types.ColumnRequest
	if !bindQuery(c, &req) {
		return
	}
	s.aggregate(c, "distribution", func(v *query.View) (interface{}, error) {
		return query.DistributionCounts(v, req.Column)
	})
}

func (s *server) handleBox(c *gin.Context) {
	var req types.GroupRequest
	if !bindQuery(c, &req) {
		return
	}
	s.aggregate(c, "box", func(v *query.View) (interface{}, error) {
		return query.BoxSummary(v, req.Group, req.Value)
	})
}

func (s *server) handleScatter(c *gin.Context) {
	var req types.ScatterRequest
	if !bindQuery(c, &req) {
		return
	}
	s.aggregate(c, "scatter", func(v *query.View) (interface{}, error) {
		return query.Scatter(v, req.X, req.Y)
	})
}

func (s *server) handleRecords(c *gin.Context) {
	var req types.RecordsRequest
	if !bindQuery(c, &req) {
		return
	}
	if _, ok := c.GetQuery("limit"); !ok {
		req.Limit = defaultPageSize
	}
	if req.Limit > maxPageSize {
		apperrors.Respond(c, &query.ParameterError{Name: "limit", Value: fmt.Sprint(req.Limit), Reason: fmt.Sprintf("must be at most %d", maxPageSize)})
		return
	}

	sel := parseSelection(c)
	resp := types.RecordsResponse{Selection: sel, Offset: req.Offset, Limit: req.Limit}
	err := s.analyzer.Evaluate(c.Request.Context(), "records", sel, func(v *query.View) error {
		records, err := v.Page(req.Offset, req.Limit)
		if err != nil {
			return err
		}
		resp.Total = v.Len()
		resp.Records = records
		return nil
	})
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) handleChart(c *gin.Context) {
	file := c.Param("name")
	name := strings.TrimSuffix(file, ".png")
	if name == file || !render.Known(name) {
		apperrors.Respond(c, &query.ParameterError{Name: "chart", Value: file, Reason: "unknown chart"})
		return
	}

	ctx := c.Request.Context()
	d, err := s.analyzer.Dashboard(ctx, parseSelection(c))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	var buf bytes.Buffer
	if err := s.renderer.Render(ctx, name, d, &buf); err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.Data(http.StatusOK, render.ContentType, buf.Bytes())
}

func (s *server) handleReload(c *gin.Context) {
	ds, err := s.analyzer.Reload(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, types.ReloadResponse{
		Source:   s.analyzer.Source(),
		Rows:     ds.Len(),
		Reloaded: time.Now().UTC(),
	})
}
