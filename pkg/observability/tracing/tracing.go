// Package tracing manages the OpenTelemetry tracer provider lifecycle.
// Spans cover the triage pipeline stages and outbound Loki/LLM calls; the
// httpclient wrapper propagates W3C trace context to downstream services.
package tracing

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
)

// Exporter types.
const (
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
)

// Options 追踪配置。
type Options struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service-name" mapstructure:"service-name"`
	Exporter    string  `json:"exporter" mapstructure:"exporter"`
	Endpoint    string  `json:"endpoint" mapstructure:"endpoint"`
	SampleRatio float64 `json:"sample-ratio" mapstructure:"sample-ratio"`
}

// NewOptions 返回默认追踪配置。
func NewOptions() *Options {
	return &Options{
		Enabled:     false,
		ServiceName: "alm",
		Exporter:    ExporterStdout,
		Endpoint:    "localhost:4318",
		SampleRatio: 1.0,
	}
}

// Validate 校验配置。
func (o *Options) Validate() []error {
	var errs []error
	if o.Exporter != ExporterStdout && o.Exporter != ExporterOTLPHTTP {
		errs = append(errs, fmt.Errorf("tracing.exporter must be %q or %q", ExporterStdout, ExporterOTLPHTTP))
	}
	if o.SampleRatio < 0 || o.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample-ratio must be in [0,1]"))
	}
	return errs
}

// AddFlags 注册命令行参数。
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "tracing.enabled", o.Enabled, "Enable distributed tracing.")
	fs.StringVar(&o.ServiceName, "tracing.service-name", o.ServiceName, "Service name reported on spans.")
	fs.StringVar(&o.Exporter, "tracing.exporter", o.Exporter, "Span exporter: stdout or otlp-http.")
	fs.StringVar(&o.Endpoint, "tracing.endpoint", o.Endpoint, "OTLP HTTP endpoint host:port.")
	fs.Float64Var(&o.SampleRatio, "tracing.sample-ratio", o.SampleRatio, "Trace sampling ratio in [0,1].")
}

// Provider 管理 tracer provider 生命周期。
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider 创建并注册全局 tracer provider。
// Enabled 为 false 时返回 no-op provider，调用方无需区分。
func NewProvider(ctx context.Context, opts *Options) (*Provider, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if !opts.Enabled {
		return &Provider{tp: sdktrace.NewTracerProvider()}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch opts.Exporter {
	case ExporterOTLPHTTP:
		exporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(opts.Endpoint),
			otlptracehttp.WithInsecure(),
		)
	default:
		exporter, err = stdouttrace.New(
			stdouttrace.WithWriter(os.Stdout),
			stdouttrace.WithPrettyPrint(),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
		)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tp: tp}, nil
}

// Tracer 返回命名 tracer。
func (p *Provider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if p.tp == nil {
		return otel.Tracer(name, opts...)
	}
	return p.tp.Tracer(name, opts...)
}

// Shutdown 刷新并关闭 provider。
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
