package worker

import (
	"context"
	"time"

	"github.com/invoicedesk/invoiceform/internal/domain/catalog"
	domoutbox "github.com/invoicedesk/invoiceform/internal/domain/outbox"
	"github.com/invoicedesk/invoiceform/internal/observability"
	"github.com/invoicedesk/invoiceform/internal/observability/logctx"
	workerpresentation "github.com/invoicedesk/invoiceform/internal/presentation/worker"
)

// Worker executes catalog lookups off the request path. Form sessions publish
// lookup_requested and carry on; the worker answers with lookup_completed,
// echoing the slot and sequence so the session can drop stale responses.
type Worker struct {
	finder     catalog.Finder
	subscriber domoutbox.Subscriber
	publisher  domoutbox.Publisher
	log        observability.Logger
	tel        observability.Observability
}

func New(finder catalog.Finder, sub domoutbox.Subscriber, pub domoutbox.Publisher, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.NewNop()
	}
	return &Worker{
		finder:     finder,
		subscriber: sub,
		publisher:  pub,
		log:        tel.Logger().With(observability.F("component", "lookup_worker")),
		tel:        tel,
	}
}

func (w *Worker) Start() {
	w.subscriber.Subscribe(catalog.LookupRequestedEvent{}.EventName(), w.handleLookupRequested)
}

func (w *Worker) handleLookupRequested(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(catalog.LookupRequestedEvent)
	if !ok {
		return nil
	}

	ctx = workerpresentation.WithEventContext(ctx, w.tel, evt.EventName(), w.log)
	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("session_id", evt.SessionID),
		observability.F("slot", evt.Slot),
		observability.F("kind", string(evt.Kind)),
	)

	completed := catalog.LookupCompletedEvent{
		SessionID: evt.SessionID,
		Slot:      evt.Slot,
		Seq:       evt.Seq,
		Kind:      evt.Kind,
		Query:     evt.Query,
	}

	switch evt.Kind {
	case catalog.LookupSearch:
		products, err := w.finder.Search(ctx, evt.Query)
		if err != nil {
			completed.Err = err.Error()
		} else {
			completed.Products = products
		}
	case catalog.LookupSKU:
		product, err := w.finder.BySKU(ctx, evt.Query)
		if err != nil {
			completed.Err = err.Error()
		} else {
			completed.Products = []catalog.Product{product}
		}
	case catalog.LookupQuote:
		quote, err := w.finder.Quote(ctx, evt.Query)
		if err != nil {
			completed.Err = err.Error()
		} else {
			completed.Quote = &quote
		}
	default:
		logger.Warn("lookup_kind_unknown")
		return nil
	}

	if completed.Failed() {
		logger.Warn("lookup_failed", observability.F("error", completed.Err))
	} else {
		logger.Debug("lookup_completed")
	}
	completed.OccurredAt = time.Now().UTC()
	return w.publisher.Publish(ctx, completed)
}
