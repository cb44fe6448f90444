package instrumentation

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceVersion is used when no version is provided.
const DefaultServiceVersion = "unknown"

// Config holds instrumentation configuration.
type Config struct {
	// ServiceName identifies the embedding service. Default: "ipcguard".
	ServiceName string

	// ServiceVersion is the version of the embedding service.
	ServiceVersion string

	// Enabled controls whether instrumentation is active. When false,
	// no-op providers are installed and instrumented paths carry zero
	// overhead.
	Enabled bool

	// MeterProvider overrides the default SDK meter provider. Hosts that
	// export metrics should pass a provider configured with their reader.
	MeterProvider metric.MeterProvider

	// TracerProvider overrides the default SDK tracer provider.
	TracerProvider trace.TracerProvider

	// Resource allows custom resource attributes. If nil, a default
	// resource is created from the service name and version.
	Resource *resource.Resource
}

// Instrumentation provides OpenTelemetry components for the engine.
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	metrics *Metrics

	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates a new instrumentation instance.
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = "ipcguard"
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
	}

	if config.Enabled {
		inst.initializeProviders()
	} else {
		inst.meterProvider = noop.NewMeterProvider()
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	var err error
	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

// initializeProviders installs the configured providers, falling back to SDK
// providers carrying the resource. SDK providers constructed here are
// registered for shutdown.
func (i *Instrumentation) initializeProviders() {
	if i.config.MeterProvider != nil {
		i.meterProvider = i.config.MeterProvider
	} else {
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(i.resource))
		i.meterProvider = mp
		i.shutdownFuncs = append(i.shutdownFuncs, mp.Shutdown)
	}

	if i.config.TracerProvider != nil {
		i.tracerProvider = i.config.TracerProvider
	} else {
		tp := sdktrace.NewTracerProvider(sdktrace.WithResource(i.resource))
		i.tracerProvider = tp
		i.shutdownFuncs = append(i.shutdownFuncs, tp.Shutdown)
	}
}

// Shutdown gracefully shuts down providers constructed by New.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var shutdownErr error

	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})

	return shutdownErr
}

// Meter returns a named meter for the given scope (e.g. "pipeline",
// "ratelimit", "monitor").
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter("github.com/oselabs/ipcguard/" + scope)
}

// Tracer returns a named tracer for the given scope.
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer("github.com/oselabs/ipcguard/" + scope)
}

// Metrics returns the metrics holder for recording metric values.
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// TracerProvider returns the underlying tracer provider.
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}

// MeterProvider returns the underlying meter provider.
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}
