package api

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/nour-derwich/system-management-pulse-hr/domain"
	"github.com/nour-derwich/system-management-pulse-hr/room"
)

func TestEventMetricsLogSuccess(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)

	metrics := newEventMetrics(logger, "move-task", "conn-1")
	metrics.start = metrics.start.Add(-20 * time.Millisecond)
	metrics.Log(nil)

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Message != "gateway.event.metrics" {
		t.Fatalf("unexpected message: %s", entry.Message)
	}
	if entry.Level != log.DebugLevel {
		t.Fatalf("success must log at debug, got %v", entry.Level)
	}
	if entry.Data["event"] != "move-task" || entry.Data["conn"] != "conn-1" {
		t.Fatalf("unexpected fields: %#v", entry.Data)
	}
	if total, ok := entry.Data["total_ms"].(float64); !ok || total <= 0 {
		t.Fatalf("expected positive total_ms, got %#v", entry.Data["total_ms"])
	}
}

func TestEventMetricsLogErrorStages(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		stage string
	}{
		{name: "validation", err: domain.ValidationError{Msg: "bad"}, stage: "validation"},
		{name: "not found", err: domain.NotFoundError{Kind: "task", ID: "t1"}, stage: "not_found"},
		{name: "operation", err: errors.New("boom"), stage: "operation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()

			metrics := newEventMetrics(logger, "create-task", "conn-1")
			metrics.Log(tt.err)

			entry := hook.LastEntry()
			if entry == nil {
				t.Fatal("expected a log entry")
			}
			if entry.Level != log.WarnLevel {
				t.Fatalf("errors must log at warn, got %v", entry.Level)
			}
			if entry.Data["error_stage"] != tt.stage {
				t.Fatalf("expected stage %q, got %#v", tt.stage, entry.Data["error_stage"])
			}
			if entry.Data["error"] != tt.err.Error() {
				t.Fatalf("unexpected error field: %#v", entry.Data["error"])
			}
		})
	}
}

func TestHandleFrameEmitsSpan(t *testing.T) {
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	b, _ := newTestBroadcaster(&fakeOps{})
	conn := &fakeConn{id: "c1"}
	b.HandleFrame(context.Background(), conn, []byte(`{"event":"join-board","data":{"boardId":"b1"}}`))

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "gateway.event" {
		t.Fatalf("unexpected span name: %s", span.Name)
	}
	attrs := attributesToMap(span.Attributes)
	if attrs["event"] != "join-board" {
		t.Fatalf("unexpected event attribute: %#v", attrs["event"])
	}
}

func TestDurationToMillis(t *testing.T) {
	if got := durationToMillis(-time.Second); got != 0 {
		t.Fatalf("negative duration must clamp to 0, got %v", got)
	}
	if got := durationToMillis(1500 * time.Microsecond); got != 1.5 {
		t.Fatalf("expected 1.5, got %v", got)
	}
}

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter, func()) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	}
	return tp, exporter, cleanup
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

var _ room.Conn = (*fakeConn)(nil)
