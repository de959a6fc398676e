package otel

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanifauzan/greenmart/internal/log"
)

var Tracer = otel.Tracer("github.com/hanifauzan/greenmart")

func RecordError(err error, span trace.Span) {
	if err == nil {
		return
	}
	span.AddEvent(err.Error())
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}

// InitTracerProvider wires the OTLP gRPC exporter when an endpoint is
// configured. With an empty endpoint tracing stays on the no-op provider and
// the returned shutdown func does nothing.
func InitTracerProvider(c context.Context, endpoint string) (func(context.Context) error, error) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "InitTracerProvider").
		Logger()

	if endpoint == "" {
		logger.Debug().Msg("otel endpoint is empty, skipping tracer provider")
		return func(context.Context) error { return nil }, nil
	}

	logger = logger.With().Str(log.KeyProcess, "initializing trace exporter").Logger()
	logger.Info().Msg("initializing trace exporter")
	traceExporter, err := otlptracegrpc.New(
		c,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		err = fmt.Errorf("failed initializing trace exporter with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Msg("initialized trace exporter")

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	otel.SetTracerProvider(provider)
	Tracer = provider.Tracer("github.com/hanifauzan/greenmart")

	return provider.Shutdown, nil
}
