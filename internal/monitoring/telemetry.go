package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "usagepulse"

// TelemetryConfig selects the trace and metric exporters.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	TraceExporter  string // "stdout" or "none"
	MetricExporter string // "prometheus" or "none"
	SampleRatio    float64
}

// Telemetry bundles the OpenTelemetry providers and the pipeline instruments.
// A zero-configured Telemetry (see NoopTelemetry) is safe to use everywhere.
type Telemetry struct {
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Pipeline       *PipelineInstruments

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// PipelineInstruments are the OTel instruments recorded by the dashboard pipeline.
type PipelineInstruments struct {
	loads         metric.Int64Counter
	loadErrors    metric.Int64Counter
	loadDuration  metric.Float64Histogram
	evaluations   metric.Int64Counter
	evalDuration  metric.Float64Histogram
	rowsSelected  metric.Int64Histogram
	chartRenders  metric.Int64Counter
	httpRequests  metric.Int64Counter
	httpDurations metric.Float64Histogram
}

// NoopTelemetry returns telemetry that records nothing.
func NoopTelemetry() *Telemetry {
	t := &Telemetry{
		Tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
		Meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	// the noop meter never fails
	t.Pipeline, _ = newPipelineInstruments(t.Meter)
	return t
}

// InitTelemetry wires tracing and metrics according to cfg. Metrics go to a
// dedicated Prometheus registry exposed through PrometheusHTTP.
func InitTelemetry(cfg TelemetryConfig, logger *Logger) (*Telemetry, error) {
	t := NoopTelemetry()

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	switch cfg.TraceExporter {
	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		t.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
		)
		t.Tracer = t.tracerProvider.Tracer(instrumentationName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
		otel.SetTracerProvider(t.tracerProvider)
	case "none", "":
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}

	switch cfg.MetricExporter {
	case "prometheus":
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		t.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		t.Meter = t.meterProvider.Meter(instrumentationName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
		t.PrometheusHTTP = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		otel.SetMeterProvider(t.meterProvider)

		if t.Pipeline, err = newPipelineInstruments(t.Meter); err != nil {
			return nil, fmt.Errorf("failed to create pipeline instruments: %w", err)
		}
	case "none", "":
	default:
		return nil, fmt.Errorf("unsupported metric exporter: %s", cfg.MetricExporter)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if logger != nil {
		logger.Info("Telemetry initialized",
			"trace_exporter", cfg.TraceExporter,
			"metric_exporter", cfg.MetricExporter,
			"sample_ratio", cfg.SampleRatio,
		)
	}
	return t, nil
}

// Shutdown flushes and stops the providers that were started.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tracerProvider != nil {
		errs = append(errs, t.tracerProvider.Shutdown(ctx))
	}
	if t.meterProvider != nil {
		errs = append(errs, t.meterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// StartSpan starts an internal span on the telemetry tracer.
func (t *Telemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func newPipelineInstruments(meter metric.Meter) (*PipelineInstruments, error) {
	var (
		p   PipelineInstruments
		err error
	)

	if p.loads, err = meter.Int64Counter("dataset_loads_total",
		metric.WithDescription("Total number of dataset source reads")); err != nil {
		return nil, err
	}
	if p.loadErrors, err = meter.Int64Counter("dataset_load_errors_total",
		metric.WithDescription("Total number of failed dataset source reads")); err != nil {
		return nil, err
	}
	if p.loadDuration, err = meter.Float64Histogram("dataset_load_duration_seconds",
		metric.WithDescription("Load, normalize and score duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if p.evaluations, err = meter.Int64Counter("dashboard_evaluations_total",
		metric.WithDescription("Total number of filter and aggregate evaluations")); err != nil {
		return nil, err
	}
	if p.evalDuration, err = meter.Float64Histogram("dashboard_evaluation_duration_seconds",
		metric.WithDescription("Filter and aggregate duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if p.rowsSelected, err = meter.Int64Histogram("dashboard_rows_selected",
		metric.WithDescription("Rows passing the active filter")); err != nil {
		return nil, err
	}
	if p.chartRenders, err = meter.Int64Counter("chart_renders_total",
		metric.WithDescription("Total number of rendered chart images")); err != nil {
		return nil, err
	}
	if p.httpRequests, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests")); err != nil {
		return nil, err
	}
	if p.httpDurations, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return &p, nil
}

// RecordLoad records one source read.
func (p *PipelineInstruments) RecordLoad(ctx context.Context, source string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("source", source))
	p.loads.Add(ctx, 1, attrs)
	if err != nil {
		p.loadErrors.Add(ctx, 1, attrs)
	}
	p.loadDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordEvaluation records one filter-and-aggregate pass.
func (p *PipelineInstruments) RecordEvaluation(ctx context.Context, operation string, rows int, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	p.evaluations.Add(ctx, 1, attrs)
	p.evalDuration.Record(ctx, d.Seconds(), attrs)
	p.rowsSelected.Record(ctx, int64(rows), attrs)
}

// RecordChartRender counts one rendered chart.
func (p *PipelineInstruments) RecordChartRender(ctx context.Context, chart string) {
	p.chartRenders.Add(ctx, 1, metric.WithAttributes(attribute.String("chart", chart)))
}

// TracingMiddleware opens a server span per request, continuing any
// incoming W3C trace context, and records request metrics.
func TracingMiddleware(t *Telemetry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		ctx, span := t.Tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(c.Request.Method),
				semconv.HTTPRouteKey.String(route),
				semconv.ClientAddressKey.String(c.ClientIP()),
				semconv.UserAgentOriginalKey.String(c.Request.UserAgent()),
			),
		)
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			c.Header("X-Trace-ID", sc.TraceID().String())
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last().Err)
		}

		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.Int("status", status),
		)
		t.Pipeline.httpRequests.Add(ctx, 1, attrs)
		t.Pipeline.httpDurations.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}
