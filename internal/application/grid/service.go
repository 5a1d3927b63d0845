package grid

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/invoicedesk/invoiceform/internal/application/usecase"
	"github.com/invoicedesk/invoiceform/internal/domain/catalog"
	"github.com/invoicedesk/invoiceform/internal/domain/order"
	domoutbox "github.com/invoicedesk/invoiceform/internal/domain/outbox"
	"github.com/invoicedesk/invoiceform/internal/observability"
	"github.com/invoicedesk/invoiceform/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
)

const (
	flowName = "grid"

	useCaseOpen        = "grid.open"
	useCaseSetProduct  = "grid.set_product"
	useCaseSetQuantity = "grid.set_quantity"
	useCaseClose       = "grid.close"
)

// Service drives the inline grid flow: every row of the invoice table is
// directly editable, typing an identifier triggers an async quote lookup, and
// totals plus the VAT summary are recomputed from the full row set on every
// change.
type Service struct {
	sessions  Repository
	publisher domoutbox.Publisher
	idGen     IDGenerator

	tel          observability.Observability
	log          observability.Logger
	staleCounter observability.Counter
}

func NewService(
	sessions Repository,
	publisher domoutbox.Publisher,
	idGen IDGenerator,
	tel observability.Observability,
) *Service {
	if tel == nil {
		tel = observability.NewNop()
	}
	return &Service{
		sessions:     sessions,
		publisher:    publisher,
		idGen:        idGen,
		tel:          tel,
		log:          tel.Logger().With(observability.F("flow", flowName)),
		staleCounter: tel.Metrics().Counter(observability.MLookupStaleDiscards),
	}
}

// Start registers the quote completion handler on the bus.
func (s *Service) Start(sub domoutbox.Subscriber) {
	sub.Subscribe(catalog.LookupCompletedEvent{}.EventName(), s.handleLookupCompleted)
}

// Open creates a session with a single blank row.
func (s *Service) Open(ctx context.Context) (_ View, err error) {
	ctx, tr := usecase.Begin(ctx, s.tel, useCaseOpen)
	defer func() { tr.End(ctx, err) }()

	sess := newSession(s.idGen.NewID())
	if err = s.sessions.Insert(ctx, sess); err != nil {
		tr.Fail("SESSION_INSERT_FAILED")
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return viewOf(sess), nil
}

// SetProduct records a new identifier in a row and kicks off the quote
// lookup. An empty identifier clears the row in place; the row itself stays,
// positions never shift.
func (s *Service) SetProduct(ctx context.Context, sessionID string, position int, identifier string) (_ View, err error) {
	ctx, tr := usecase.Begin(ctx, s.tel, useCaseSetProduct,
		attribute.String("session.id", sessionID),
		attribute.Int("row.position", position),
	)
	defer func() { tr.End(ctx, err) }()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		tr.Fail("SESSION_NOT_FOUND")
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if position < 0 || position >= len(sess.rows) {
		tr.Fail("ROW_NOT_FOUND")
		return View{}, ErrNoSuchRow
	}
	r := sess.rows[position]
	r.seq++ // invalidates any lookup still in flight for this row

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		r.identifier = ""
		r.quote = nil
		r.state = RowEmpty
		s.refresh(ctx, sess)
		return viewOf(sess), nil
	}

	r.identifier = identifier
	r.quote = nil
	r.state = RowFetching

	evt := catalog.NewLookupRequestedEvent(sess.id, strconv.Itoa(position), r.seq, catalog.LookupQuote, identifier)
	if err = s.publisher.Publish(ctx, evt); err != nil {
		tr.Fail("PUBLISH_FAILED")
		return View{}, err
	}
	s.refresh(ctx, sess)
	return viewOf(sess), nil
}

// SetQuantity updates a row's quantity. Zero means the input was cleared and
// falls back to one.
func (s *Service) SetQuantity(ctx context.Context, sessionID string, position int, quantity int64) (_ View, err error) {
	ctx, tr := usecase.Begin(ctx, s.tel, useCaseSetQuantity,
		attribute.String("session.id", sessionID),
		attribute.Int("row.position", position),
	)
	defer func() { tr.End(ctx, err) }()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		tr.Fail("SESSION_NOT_FOUND")
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if position < 0 || position >= len(sess.rows) {
		tr.Fail("ROW_NOT_FOUND")
		return View{}, ErrNoSuchRow
	}
	if quantity < 0 {
		tr.Fail("QUANTITY_INVALID")
		return View{}, order.ErrInvalidQuantity
	}
	if quantity == 0 {
		quantity = 1
	}
	sess.rows[position].quantity = quantity
	s.refresh(ctx, sess)
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

func (s *Service) handleLookupCompleted(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(catalog.LookupCompletedEvent)
	if !ok || evt.Kind != catalog.LookupQuote {
		return nil
	}
	sess, err := s.sessions.Get(ctx, evt.SessionID)
	if errors.Is(err, ErrSessionNotFound) {
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

	position, err := strconv.Atoi(evt.Slot)
	if err != nil || position < 0 || position >= len(sess.rows) {
		logger.Warn("quote_slot_invalid")
		return nil
	}
	r := sess.rows[position]

	if evt.Seq < r.seq {
		s.staleCounter.Add(1, observability.L("flow", flowName))
		logger.Debug("lookup_discarded_stale", observability.F("seq", evt.Seq))
		return nil
	}

	if evt.Failed() || evt.Quote == nil {
		// identifier stays so the user sees what they typed; derived fields clear
		r.quote = nil
		r.state = RowEmpty
		logger.Warn("quote_failed", observability.F("error", evt.Err))
	} else {
		q := *evt.Quote
		r.quote = &q
		r.state = RowPopulated
		r.appliedSeq = evt.Seq
		if r.quantity <= 0 {
			r.quantity = 1
		}
	}

	s.refresh(ctx, sess)
	return s.publisher.Publish(ctx, RowUpdatedEvent{
		SessionID:  sess.id,
		Position:   position,
		OccurredAt: evt.OccurredAt,
	})
}

// refresh rebuilds the order lines from the populated rows, recomputes totals
// and the VAT summary, keeps the trailing blank row invariant, and publishes
// the totals snapshot. Caller holds the session lock.
func (s *Service) refresh(ctx context.Context, sess *Session) {
	if !sess.hasBlankRow() {
		sess.rows = append(sess.rows, &row{state: RowEmpty})
	}

	lines := make([]order.Line, 0, len(sess.rows))
	for i, r := range sess.rows {
		if r.state != RowPopulated || r.quote == nil {
			continue
		}
		lines = append(lines, order.Line{
			Index:     i,
			SKU:       r.identifier,
			Quantity:  r.quantity,
			UnitPrice: r.quote.Cost,
			VATRate:   r.quote.VATRate,
		})
	}
	sess.order.ReplaceLines(lines)
	sess.rebuildSummary()

	evt := order.NewTotalsUpdatedEvent(sess.id, flowName, sess.order.Totals(), sess.order.Len())
	if err := s.publisher.Publish(ctx, evt); err != nil {
		logctx.FromOr(ctx, s.log).Warn("totals_publish_failed",
			observability.F("session_id", sess.id),
			observability.F("error", err),
		)
	}
}
