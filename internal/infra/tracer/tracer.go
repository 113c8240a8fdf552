// Package tracer wires OpenTelemetry tracing and defines the vault's span
// vocabulary: spans are named vault.<operation> and tagged with the photo
// they touch, so a trace of a gallery load reads as a sequence of per-photo
// decrypt/decode operations.
package tracer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"photovault/internal/infra/config"
)

const scope = "photovault"

// Span attribute keys. Kept as constants so dashboards never chase a
// renamed string.
const (
	attrPhotoID   = "vault.photo_id"
	attrBatchSize = "vault.batch_size"
	attrMaskMode  = "vault.mask_mode"
)

// Setup installs the global TracerProvider and returns its shutdown
// function. Disabled tracing (or the noop exporter) installs a noop
// provider, so Op callers pay nothing.
func Setup(ctx context.Context, cfg config.TracerConfig) (func(context.Context) error, error) {
	keepRunning := func(context.Context) error { return nil }

	if !cfg.Enabled || cfg.Exporter == "" || cfg.Exporter == "noop" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return keepRunning, nil
	}
	if cfg.Exporter != "stdout" {
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Op starts a span for one vault operation. photoID may be empty for
// batch operations that span the whole library.
func Op(ctx context.Context, operation, photoID string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(scope).Start(ctx, "vault."+operation)
	if photoID != "" {
		span.SetAttributes(attribute.String(attrPhotoID, photoID))
	}
	return ctx, span
}

// Fail marks the span failed with err.
func Fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// BatchSize records how many photos a batch operation covered.
func BatchSize(span trace.Span, n int) {
	span.SetAttributes(attribute.Int(attrBatchSize, n))
}

// MaskMode records the mask mode a masking operation applied.
func MaskMode(span trace.Span, mode string) {
	span.SetAttributes(attribute.String(attrMaskMode, mode))
}
