package workerpresentation

import (
	"context"

	"github.com/invoicedesk/invoiceform/internal/observability"
	"github.com/invoicedesk/invoiceform/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// WithEventContext injects an event-scoped logger for background handler
// executions. Dynamic fields only: event_id (generated), the event name, and
// trace_id/span_id when the incoming context carries a valid span.
func WithEventContext(
	ctx context.Context,
	tel observability.Observability,
	event string,
	base observability.Logger,
) context.Context {
	if base == nil {
		if tel == nil {
			tel = observability.NewNop()
		}
		base = tel.Logger()
	}

	fields := make([]observability.Field, 0, 4)
	fields = append(fields, observability.F("event_id", uuid.NewString()))
	if event != "" {
		fields = append(fields, observability.F("event", event))
	}

	sc := trace.SpanContextFromContext(ctx)
	if sc.TraceID().IsValid() {
		fields = append(fields, observability.F("trace_id", sc.TraceID().String()))
	}
	if sc.SpanID().IsValid() {
		fields = append(fields, observability.F("span_id", sc.SpanID().String()))
	}

	return logctx.With(ctx, base.With(fields...))
}
