package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestStartSpanAndEndSpanRecordOutcome(t *testing.T) {
	recorder := installRecorder(t)

	_, ok := StartSpan(context.Background(), "op.ok")
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "op.failed")
	EndSpan(failed, errors.New("store down"))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 ended spans, got %d", len(spans))
	}
	if spans[0].Name() != "op.ok" || spans[0].Status().Code == codes.Error {
		t.Fatalf("unexpected first span %q status %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Name() != "op.failed" || spans[1].Status().Code != codes.Error {
		t.Fatalf("expected error status on failed span, got %v", spans[1].Status())
	}
	if len(spans[1].Events()) == 0 {
		t.Fatal("expected recorded error event")
	}
}

func TestStartSpanNestsUnderParent(t *testing.T) {
	recorder := installRecorder(t)

	ctx, parent := StartSpan(context.Background(), "parent")
	_, child := StartSpan(ctx, "child")
	EndSpan(child, nil)
	EndSpan(parent, nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Fatal("expected child span parented to the outer span")
	}
}
