package picker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/invoicedesk/invoiceform/internal/application/usecase"
	"github.com/invoicedesk/invoiceform/internal/domain/catalog"
	"github.com/invoicedesk/invoiceform/internal/domain/order"
	domoutbox "github.com/invoicedesk/invoiceform/internal/domain/outbox"
	"github.com/invoicedesk/invoiceform/internal/domain/pricing"
	"github.com/invoicedesk/invoiceform/internal/form"
	"github.com/invoicedesk/invoiceform/internal/observability"
	"github.com/invoicedesk/invoiceform/internal/observability/logctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	flowName = "picker"

	useCaseOpen        = "picker.open"
	useCaseSearch      = "picker.search"
	useCaseSelect      = "picker.select"
	useCaseSetQuantity = "picker.set_quantity"
	useCaseSave        = "picker.save"
	useCaseCancel      = "picker.cancel"
	useCaseRemoveLine  = "picker.remove_line"
	useCaseClose       = "picker.close"

	slotSearch   = "search"
	slotPreload  = "preload-"
	minSearchLen = 3
	preloadSeq   = 1
)

// Service drives the modal picker flow: open a form session, search the
// catalog, pick a result, commit it as a line. Searches run through the event
// bus and resolve asynchronously; callers observe the outcome via a later
// snapshot or the picker.results_ready event.
type Service struct {
	sessions   Repository
	publisher  domoutbox.Publisher
	idGen      IDGenerator
	defaultVAT decimal.Decimal

	tel          observability.Observability
	log          observability.Logger
	staleCounter observability.Counter
}

func NewService(
	sessions Repository,
	publisher domoutbox.Publisher,
	idGen IDGenerator,
	defaultVAT decimal.Decimal,
	tel observability.Observability,
) *Service {
	if tel == nil {
		tel = observability.NewNop()
	}
	return &Service{
		sessions:     sessions,
		publisher:    publisher,
		idGen:        idGen,
		defaultVAT:   defaultVAT,
		tel:          tel,
		log:          tel.Logger().With(observability.F("flow", flowName)),
		staleCounter: tel.Metrics().Counter(observability.MLookupStaleDiscards),
	}
}

// Start registers the lookup completion handler on the bus.
func (s *Service) Start(sub domoutbox.Subscriber) {
	sub.Subscribe(catalog.LookupCompletedEvent{}.EventName(), s.handleLookupCompleted)
}

// Open creates a session, optionally preloading lines from a previously
// submitted form. Preloaded records are re-fetched by SKU through the bus; the
// stored price, VAT rate and quantity are applied once each fetch resolves.
// Records with a null name are placeholder rows and are skipped.
func (s *Service) Open(ctx context.Context, preload []form.Record) (_ View, err error) {
	ctx, tr := usecase.Begin(ctx, s.tel, useCaseOpen)
	defer func() { tr.End(ctx, err) }()

	sess := newSession(s.idGen.NewID())
	if err = s.sessions.Insert(ctx, sess); err != nil {
		tr.Fail("SESSION_INSERT_FAILED")
		return View{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	logger := logctx.FromOr(ctx, s.log)
	for i, rec := range preload {
		if !rec.Present() {
			continue
		}
		slot := fmt.Sprintf("%s%d", slotPreload, i)
		sess.preload[slot] = rec
		evt := catalog.NewLookupRequestedEvent(sess.id, slot, preloadSeq, catalog.LookupSKU, rec.SKU)
		if perr := s.publisher.Publish(ctx, evt); perr != nil {
			delete(sess.preload, slot)
			logger.Warn("preload_publish_failed",
				observability.F("slot", slot),
				observability.F("error", perr),
			)
		}
	}
	return viewOf(sess), nil
}

// Search issues a catalog search for the query. Queries of two characters or
// fewer are ignored, matching the entry threshold of the search box.
func (s *Service) Search(ctx context.Context, sessionID, query string) (_ View, err error) {
	ctx, tr := usecase.Begin(ctx, s.tel, useCaseSearch,
		attribute.String("session.id", sessionID),
	)
	defer func() { tr.End(ctx, err) }()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		tr.Fail("SESSION_NOT_FOUND")
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if utf8.RuneCountInString(query) < minSearchLen {
		return viewOf(sess), nil
	}

	sess.searchSeq++
	sess.state = StateSearching
	evt := catalog.NewLookupRequestedEvent(sess.id, slotSearch, sess.searchSeq, catalog.LookupSearch, query)
	if err = s.publisher.Publish(ctx, evt); err != nil {
		tr.Fail("PUBLISH_FAILED")
		return View{}, err
	}
	return viewOf(sess), nil
}

// Select picks a result by list position. The first price tier becomes the
// unit price and the configured default VAT rate is applied; the quantity
// defaults to one until the user changes it.
func (s *Service) Select(ctx context.Context, sessionID string, index int) (_ View, err error) {
	ctx, tr := usecase.Begin(ctx, s.tel, useCaseSelect,
		attribute.String("session.id", sessionID),
	)
	defer func() { tr.End(ctx, err) }()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		tr.Fail("SESSION_NOT_FOUND")
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if index < 0 || index >= len(sess.results) {
		tr.Fail("RESULT_NOT_FOUND")
		return View{}, ErrNoSuchResult
	}
	p := sess.results[index]
	price, ok := p.FirstTierPrice()
	if !ok {
		tr.Fail("NO_PRICE_TIERS")
		return View{}, pricing.ErrNoTiers
	}

	sess.selected = &p
	sess.unitPrice = price
	sess.vatRate = s.defaultVAT
	if sess.quantity <= 0 {
		sess.quantity = 1
	}
	sess.state = StateProductSelected
	return viewOf(sess), nil
}

// SetQuantity updates the draft quantity and re-resolves the unit price
// against the selected product's tiers. A zero quantity means the input was
// cleared and falls back to one.
func (s *Service) SetQuantity(ctx context.Context, sessionID string, quantity int64) (_ View, err error) {
	ctx, tr := usecase.Begin(ctx, s.tel, useCaseSetQuantity,
		attribute.String("session.id", sessionID),
	)
	defer func() { tr.End(ctx, err) }()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		tr.Fail("SESSION_NOT_FOUND")
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if quantity < 0 {
		tr.Fail("QUANTITY_INVALID")
		return View{}, order.ErrInvalidQuantity
	}
	if quantity == 0 {
		quantity = 1
	}
	sess.quantity = quantity

	if sess.selected != nil {
		price, perr := pricing.ResolveUnitPrice(sess.selected.Tiers, quantity)
		if perr != nil {
			tr.Fail("NO_PRICE_TIERS")
			return View{}, perr
		}
		sess.unitPrice = price
	}
	return viewOf(sess), nil
}

// Save commits the current selection as an order line and closes the modal.
func (s *Service) Save(ctx context.Context, sessionID string) (_ View, err error) {
	ctx, tr := usecase.Begin(ctx, s.tel, useCaseSave,
		attribute.String("session.id", sessionID),
	)
	defer func() { tr.End(ctx, err) }()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		tr.Fail("SESSION_NOT_FOUND")
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.selected == nil {
		tr.Fail("NOTHING_SELECTED")
		return View{}, ErrNothingSelected
	}
	qty := sess.quantity
	if qty <= 0 {
		qty = 1
	}
	if _, err = sess.order.AddLine(sess.selected.Name, sess.selected.SKU, qty, sess.unitPrice, sess.vatRate); err != nil {
		tr.Fail("ADD_LINE_FAILED")
		return View{}, err
	}
	sess.resetTransient()
	s.publishTotals(ctx, sess)
	return viewOf(sess), nil
}

// Cancel discards the modal state without touching committed lines.
func (s *Service) Cancel(ctx context.Context, sessionID string) (_ View, err error) {
	ctx, tr := usecase.Begin(ctx, s.tel, useCaseCancel,
		attribute.String("session.id", sessionID),
	)
	defer func() { tr.End(ctx, err) }()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		tr.Fail("SESSION_NOT_FOUND")
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.resetTransient()
	return viewOf(sess), nil
}

// RemoveLine deletes a committed line by its index and republishes totals.
// Remaining lines keep their indexes; the numbering gap is deliberate.
func (s *Service) RemoveLine(ctx context.Context, sessionID string, index int) (_ View, err error) {
	ctx, tr := usecase.Begin(ctx, s.tel, useCaseRemoveLine,
		attribute.String("session.id", sessionID),
	)
	defer func() { tr.End(ctx, err) }()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		tr.Fail("SESSION_NOT_FOUND")
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err = sess.order.RemoveLine(index); err != nil {
		tr.Fail("LINE_NOT_FOUND")
		return View{}, err
	}
	s.publishTotals(ctx, sess)
	return viewOf(sess), nil
}

// Close removes the session.
func (s *Service) Close(ctx context.Context, sessionID string) (err error) {
	ctx, tr := usecase.Begin(ctx, s.tel, useCaseClose,
		attribute.String("session.id", sessionID),
	)
	defer func() { tr.End(ctx, err) }()

	if err = s.sessions.Remove(ctx, sessionID); err != nil {
		tr.Fail("SESSION_NOT_FOUND")
		return err
	}
	return nil
}

// Snapshot returns the current render state.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (View, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return viewOf(sess), nil
}

// Totals returns the aggregate totals and VAT buckets.
func (s *Service) Totals(ctx context.Context, sessionID string) (TotalsView, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return TotalsView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return totalsViewOf(sess.order.Totals()), nil
}

// FormFields renders the committed lines as submit-ready hidden fields.
func (s *Service) FormFields(ctx context.Context, sessionID string) ([]form.Field, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return form.Encode(sess.order.Lines()), nil
}

func (s *Service) handleLookupCompleted(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(catalog.LookupCompletedEvent)
	if !ok || evt.Kind == catalog.LookupQuote {
		return nil
	}
	sess, err := s.sessions.Get(ctx, evt.SessionID)
	if errors.Is(err, ErrSessionNotFound) {
		// another flow's session, or already closed
		return nil
	}
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("session_id", evt.SessionID),
		observability.F("slot", evt.Slot),
	)

	switch {
	case evt.Slot == slotSearch && evt.Kind == catalog.LookupSearch:
		if evt.Seq < sess.searchSeq || evt.Seq <= sess.appliedSeq {
			s.staleCounter.Add(1, observability.L("flow", flowName))
			logger.Debug("lookup_discarded_stale", observability.F("seq", evt.Seq))
			return nil
		}
		sess.appliedSeq = evt.Seq
		if evt.Failed() {
			// keep whatever the modal was showing; the search just yields nothing new
			logger.Warn("search_failed", observability.F("error", evt.Err))
			sess.state = StateResultsShown
			return nil
		}
		sess.results = evt.Products
		sess.state = StateResultsShown
		return s.publisher.Publish(ctx, ResultsReadyEvent{
			SessionID:  sess.id,
			Count:      len(sess.results),
			OccurredAt: evt.OccurredAt,
		})

	case strings.HasPrefix(evt.Slot, slotPreload) && evt.Kind == catalog.LookupSKU:
		rec, pending := sess.preload[evt.Slot]
		if !pending {
			s.staleCounter.Add(1, observability.L("flow", flowName))
			return nil
		}
		delete(sess.preload, evt.Slot)
		if evt.Failed() || len(evt.Products) == 0 {
			logger.Warn("preload_fetch_failed", observability.F("error", evt.Err))
			return nil
		}
		p := evt.Products[0]
		qty := rec.Quantity.IntPart()
		if qty <= 0 {
			qty = 1
		}
		if _, aerr := sess.order.AddLine(p.Name, p.SKU, qty, rec.Price, rec.VATPercentage); aerr != nil {
			logger.Warn("preload_line_rejected", observability.F("error", aerr))
			return nil
		}
		s.publishTotals(ctx, sess)
		return nil
	}
	return nil
}

// publishTotals emits the aggregate snapshot. Caller holds the session lock;
// Publish only enqueues, so this never blocks on handlers.
func (s *Service) publishTotals(ctx context.Context, sess *Session) {
	evt := order.NewTotalsUpdatedEvent(sess.id, flowName, sess.order.Totals(), sess.order.Len())
	if err := s.publisher.Publish(ctx, evt); err != nil {
		logctx.FromOr(ctx, s.log).Warn("totals_publish_failed",
			observability.F("session_id", sess.id),
			observability.F("error", err),
		)
	}
}
