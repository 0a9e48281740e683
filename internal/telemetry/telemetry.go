// =============================================================================
// Oracle OpenTelemetry SDK Initialization
// =============================================================================
// Wraps OTel SDK setup for traces and metrics. When telemetry is disabled,
// no exporters are created and global providers remain noop.
// =============================================================================

package telemetry

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/agent/debate"
	"github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67/config"
)

// InstrumentationName is the tracer and meter name used by the debate engine.
const InstrumentationName = "github.com/KhoaLaptop/Counterfactual-Financial-Oracle-67"

// Providers holds the OTel SDK TracerProvider and MeterProvider.
// When telemetry is disabled, both fields are nil and Shutdown is a no-op.
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init initializes the OTel SDK. When cfg.Enabled is false, it returns
// a noop Providers (nil tp/mp) without connecting to any external service.
func Init(cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(buildVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
	)

	return &Providers{tp: tp, mp: mp}, nil
}

// Tracer returns the engine tracer. Disabled providers fall back to the
// global provider, which is a noop unless something else installed one.
func (p *Providers) Tracer() trace.Tracer {
	if p == nil || p.tp == nil {
		return otel.Tracer(InstrumentationName)
	}
	return p.tp.Tracer(InstrumentationName)
}

// Meter returns the engine meter.
func (p *Providers) Meter() metric.Meter {
	if p == nil || p.mp == nil {
		return otel.Meter(InstrumentationName)
	}
	return p.mp.Meter(InstrumentationName)
}

// TurnCounter returns a debate.TurnObserver that counts turns on the
// "oracle.debate.turns" instrument, labelled by role.
func TurnCounter(meter metric.Meter) (debate.TurnObserver, error) {
	counter, err := meter.Int64Counter("oracle.debate.turns",
		metric.WithDescription("Debate turns appended to transcripts"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create turn counter: %w", err)
	}
	return debate.TurnObserverFunc(func(_ string, turn debate.DebateTurn) {
		counter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("role", string(turn.Role)),
		))
	}), nil
}

// Shutdown flushes pending spans/metrics and closes exporters in parallel.
// Safe to call on noop Providers (nil tp/mp).
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var g errgroup.Group
	if p.tp != nil {
		g.Go(func() error {
			if err := p.tp.Shutdown(ctx); err != nil {
				return fmt.Errorf("shutdown tracer provider: %w", err)
			}
			return nil
		})
	}
	if p.mp != nil {
		g.Go(func() error {
			if err := p.mp.Shutdown(ctx); err != nil {
				return fmt.Errorf("shutdown meter provider: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// buildVersion extracts the module version from Go build info.
// Falls back to "dev" if unavailable.
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
