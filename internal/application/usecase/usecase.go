// Package usecase carries the per-operation telemetry plumbing shared by the
// form session services: one span, one request counter sample and one duration
// sample per executed operation.
package usecase

import (
	"context"
	"time"

	"github.com/invoicedesk/invoiceform/internal/observability"
	"github.com/invoicedesk/invoiceform/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanPrefix = "UC."

// Tracked is one in-flight operation. Begin/End bracket the operation body;
// Fail tags the status label before an error return.
type Tracked struct {
	useCase    string
	span       trace.Span
	start      time.Time
	reqCounter observability.Counter
	durHist    observability.Histogram
	logger     observability.Logger
	outcome    string
	statusText string
}

func Begin(ctx context.Context, tel observability.Observability, name string, attrs ...attribute.KeyValue) (context.Context, *Tracked) {
	if tel == nil {
		tel = observability.NewNop()
	}
	logger := logctx.FromOr(ctx, tel.Logger()).With(observability.F("use_case", name))

	spanAttrs := append([]attribute.KeyValue{attribute.String("use_case", name)}, attrs...)
	ctx, span := tel.Tracer().Start(ctx, spanPrefix+name, spanAttrs...)

	metrics := tel.Metrics()
	return ctx, &Tracked{
		useCase:    name,
		span:       span,
		start:      time.Now(),
		reqCounter: metrics.Counter(observability.MUsecaseRequests),
		durHist:    metrics.Histogram(observability.MUsecaseDuration),
		logger:     logger,
		outcome:    "success",
		statusText: "OK",
	}
}

// Fail marks the operation as failed with a short machine-readable status.
func (t *Tracked) Fail(status string) {
	t.outcome = "error"
	t.statusText = status
}

// End closes the span and flushes the metric samples. Call it via defer with
// the operation's named error return.
func (t *Tracked) End(ctx context.Context, err error) {
	lat := time.Since(t.start).Seconds()

	if t.span != nil {
		if err != nil {
			t.span.RecordError(err)
			t.span.SetStatus(codes.Error, t.statusText)
		} else {
			t.span.SetStatus(codes.Ok, t.statusText)
		}
		t.span.End()
	}

	if t.reqCounter != nil {
		t.reqCounter.Add(1,
			observability.L("use_case", t.useCase),
			observability.L("outcome", t.outcome),
		)
	}
	if t.durHist != nil {
		t.durHist.Observe(lat, observability.L("use_case", t.useCase))
	}

	fields := []observability.Field{
		observability.F("outcome", t.outcome),
		observability.F("status", t.statusText),
		observability.F("latency_seconds", lat),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	t.logger.Info("use_case_done", fields...)
}
