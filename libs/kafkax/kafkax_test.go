package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMeta_Fallbacks(t *testing.T) {
	msg := kafka.Message{Topic: "consultation.requested.v1", Key: []byte("c-1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "c-1" || meta.EventType != "consultation.requested.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	msg.Headers = EventMeta{EventID: "evt-9", EventType: "consultation.confirmed.v1"}.Headers()
	meta = ExtractEventMeta(msg)
	if meta.EventID != "evt-9" || meta.EventType != "consultation.confirmed.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled, Remote: true,
	}))

	headers := InjectTraceHeaders(ctx, EventMeta{EventID: "e", EventType: "t"}.Headers())
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatal("expected traceparent header")
	}
	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	if got.TraceID() != traceID {
		t.Fatalf("trace id mismatch: %s", got.TraceID())
	}
}

func TestReadyCheck_NoBrokers(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestSetHeader_Replaces(t *testing.T) {
	headers := SetHeader(EventMeta{EventID: "e", EventType: "t"}.Headers(), HeaderEventID, "e2")
	if len(headers) != 2 || HeaderValue(headers, HeaderEventID) != "e2" {
		t.Fatalf("unexpected headers %v", headers)
	}
	if headers = SetHeader(headers, "x", "1"); len(headers) != 3 {
		t.Fatalf("expected appended header, got %v", headers)
	}
}
