package kafkax

import (
	"context"
	"net/http"
	"strings"

	otelx "github.com/agribeta/agribeta/libs/otel"
	"github.com/segmentio/kafka-go"
)

// InjectTraceHeaders adds the W3C trace headers for ctx to headers. Keys are
// written lower-case, as other producers on the topics do.
func InjectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	h := http.Header{}
	otelx.InjectHeaders(ctx, h)
	for k, v := range h {
		if len(v) > 0 {
			headers = SetHeader(headers, strings.ToLower(k), v[0])
		}
	}
	return headers
}

// ExtractTraceContext returns ctx carrying the remote span found on msg.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	h := make(http.Header, len(msg.Headers))
	for _, kh := range msg.Headers {
		h.Set(kh.Key, string(kh.Value))
	}
	return otelx.ExtractHeaders(ctx, h)
}
