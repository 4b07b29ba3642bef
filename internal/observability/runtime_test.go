package observability

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRuntimeShutdownReverseOrderAndJoinsErrors(t *testing.T) {
	var order []string
	r := &Runtime{}
	r.add("logs", func(context.Context) error { order = append(order, "logs"); return nil })
	r.add("metrics", func(context.Context) error { order = append(order, "metrics"); return errors.New("exporter closed") })
	r.add("traces", func(context.Context) error { order = append(order, "traces"); return nil })

	err := r.Shutdown(context.Background())
	if got := strings.Join(order, ","); got != "traces,metrics,logs" {
		t.Fatalf("unexpected shutdown order %s", got)
	}
	if err == nil || !strings.Contains(err.Error(), "shutdown metrics: exporter closed") {
		t.Fatalf("expected joined metrics error, got %v", err)
	}
}

func TestNilRuntimeShutdown(t *testing.T) {
	var r *Runtime
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected nil runtime shutdown to succeed, got %v", err)
	}
}
