package otel

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/bravo68web/gitsshd/internal/config"
)

const shutdownTimeout = 5 * time.Second

// Config holds OpenTelemetry provider configuration
type Config struct {
	// Endpoint is the OTEL collector endpoint (e.g., "localhost:4317")
	Endpoint string

	ServiceName    string
	ServiceVersion string
	Environment    string

	// Insecure disables TLS for the OTEL connection
	Insecure bool

	// UseHTTP uses HTTP instead of gRPC for the OTEL exporter
	UseHTTP bool

	// Headers are additional headers to send with OTEL requests
	Headers map[string]string

	// ExportTimeout bounds a single batch export
	ExportTimeout time.Duration
}

// FromTelemetryConfig maps the telemetry section of the daemon config
func FromTelemetryConfig(cfg *config.TelemetryConfig, version string) *Config {
	return &Config{
		Endpoint:       cfg.Endpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Insecure:       cfg.Insecure,
		UseHTTP:        cfg.UseHTTP,
		Headers:        cfg.Headers,
		ExportTimeout:  shutdownTimeout,
	}
}

// Provider owns the OTEL log pipeline and the tracer provider used for exec spans
type Provider struct {
	config         *Config
	logProvider    *sdklog.LoggerProvider
	tracerProvider *sdktrace.TracerProvider
	logger         log.Logger
	resource       *resource.Resource
}

// NewProvider creates a provider exporting logs over OTLP (gRPC unless UseHTTP is set)
func NewProvider(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL endpoint is not configured")
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	var batchOpts []sdklog.BatchProcessorOption
	if cfg.ExportTimeout > 0 {
		batchOpts = append(batchOpts, sdklog.WithExportTimeout(cfg.ExportTimeout))
	}

	return newProvider(cfg, sdklog.NewBatchProcessor(exporter, batchOpts...))
}

func newProvider(cfg *Config, processor sdklog.Processor) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	logProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(processor),
	)

	return &Provider{
		config:         cfg,
		logProvider:    logProvider,
		tracerProvider: sdktrace.NewTracerProvider(sdktrace.WithResource(res)),
		logger:         logProvider.Logger(cfg.ServiceName),
		resource:       res,
	}, nil
}

func createExporter(ctx context.Context, cfg *Config) (sdklog.Exporter, error) {
	if cfg.UseHTTP {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlploghttp.WithHeaders(cfg.Headers))
		}
		return otlploghttp.New(ctx, opts...)
	}

	var opts []otlploggrpc.Option
	if cfg.Insecure {
		conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}
		opts = append(opts, otlploggrpc.WithGRPCConn(conn))
	} else {
		opts = append(opts, otlploggrpc.WithEndpoint(cfg.Endpoint))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploggrpc.WithHeaders(cfg.Headers))
	}
	return otlploggrpc.New(ctx, opts...)
}

// RegisterGlobal installs the tracer provider so otel.Tracer spans get real IDs
func (p *Provider) RegisterGlobal() {
	otel.SetTracerProvider(p.tracerProvider)
}

// Logger returns the OTEL logger
func (p *Provider) Logger() log.Logger {
	return p.logger
}

// Resource returns the OTEL resource
func (p *Provider) Resource() *resource.Resource {
	return p.resource
}

// ForceFlush forces a flush of all pending logs
func (p *Provider) ForceFlush(ctx context.Context) error {
	return p.logProvider.ForceFlush(ctx)
}

// Shutdown flushes and stops the log and trace pipelines
func (p *Provider) Shutdown(ctx context.Context) error {
	logErr := p.logProvider.Shutdown(ctx)
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return err
	}
	return logErr
}

// Close implements io.Closer so the provider can be handed to the logger
func (p *Provider) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return p.Shutdown(ctx)
}

var _ io.Closer = (*Provider)(nil)
