package picker

import (
	"context"
	"fmt"
	"testing"

	"github.com/invoicedesk/invoiceform/internal/domain/catalog"
	domoutbox "github.com/invoicedesk/invoiceform/internal/domain/outbox"
	"github.com/invoicedesk/invoiceform/internal/domain/order"
	"github.com/invoicedesk/invoiceform/internal/domain/pricing"
	"github.com/invoicedesk/invoiceform/internal/form"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureBus struct {
	events []domoutbox.Event
}

func (b *captureBus) Publish(_ context.Context, e domoutbox.Event) error {
	b.events = append(b.events, e)
	return nil
}

func (b *captureBus) Subscribe(string, domoutbox.Handler) {}

func (b *captureBus) requested() []catalog.LookupRequestedEvent {
	var out []catalog.LookupRequestedEvent
	for _, e := range b.events {
		if evt, ok := e.(catalog.LookupRequestedEvent); ok {
			out = append(out, evt)
		}
	}
	return out
}

func (b *captureBus) totals() []order.TotalsUpdatedEvent {
	var out []order.TotalsUpdatedEvent
	for _, e := range b.events {
		if evt, ok := e.(order.TotalsUpdatedEvent); ok {
			out = append(out, evt)
		}
	}
	return out
}

type seqIDs struct{ n int }

func (g *seqIDs) NewID() string {
	g.n++
	return fmt.Sprintf("sess-%d", g.n)
}

type memRepo struct {
	sessions map[string]*Session
}

func newMemRepo() *memRepo { return &memRepo{sessions: make(map[string]*Session)} }

func (r *memRepo) Insert(_ context.Context, s *Session) error {
	if _, ok := r.sessions[s.ID()]; ok {
		return ErrSessionExists
	}
	r.sessions[s.ID()] = s
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (*Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *memRepo) Remove(_ context.Context, id string) error {
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService() (*Service, *captureBus) {
	bus := &captureBus{}
	svc := NewService(newMemRepo(), bus, &seqIDs{}, d("21"), nil)
	return svc, bus
}

func widget() catalog.Product {
	return catalog.Product{
		Name: "Widget", SKU: "W-1", CurrentStock: 12,
		Tiers: []pricing.Tier{
			{MinQuantity: 1, UnitPrice: d("10.00")},
			{MinQuantity: 10, UnitPrice: d("9.00")},
			{MinQuantity: 50, UnitPrice: d("8.00")},
		},
	}
}

func searchCompleted(sessionID string, seq uint64, products ...catalog.Product) catalog.LookupCompletedEvent {
	return catalog.LookupCompletedEvent{
		SessionID: sessionID,
		Slot:      "search",
		Seq:       seq,
		Kind:      catalog.LookupSearch,
		Products:  products,
	}
}

func TestOpenEmptyForm(t *testing.T) {
	svc, bus := newTestService()

	view, err := svc.Open(context.Background(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, view.SessionID)
	assert.Equal(t, StateClosed, view.State)
	assert.Empty(t, view.Lines)
	assert.Empty(t, bus.requested())
}

func TestShortQueryIsIgnored(t *testing.T) {
	svc, bus := newTestService()
	ctx := context.Background()
	view, err := svc.Open(ctx, nil)
	require.NoError(t, err)

	got, err := svc.Search(ctx, view.SessionID, "ab")
	require.NoError(t, err)
	assert.Equal(t, StateClosed, got.State)
	assert.Empty(t, bus.requested())
}

func TestSearchSelectSave(t *testing.T) {
	svc, bus := newTestService()
	ctx := context.Background()
	view, err := svc.Open(ctx, nil)
	require.NoError(t, err)
	id := view.SessionID

	got, err := svc.Search(ctx, id, "wid")
	require.NoError(t, err)
	assert.Equal(t, StateSearching, got.State)

	reqs := bus.requested()
	require.Len(t, reqs, 1)
	assert.Equal(t, catalog.LookupSearch, reqs[0].Kind)
	assert.EqualValues(t, 1, reqs[0].Seq)

	require.NoError(t, svc.handleLookupCompleted(ctx, searchCompleted(id, 1, widget())))

	got, err = svc.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateResultsShown, got.State)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "Widget", got.Results[0].Name)

	got, err = svc.Select(ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, StateProductSelected, got.State)
	assert.Equal(t, "Widget", got.SelectedName)
	assert.Equal(t, "10.00", got.UnitPrice, "first tier price applies on selection")
	assert.Equal(t, "21", got.VATRate, "default VAT rate applies on selection")
	assert.EqualValues(t, 1, got.Quantity)

	got, err = svc.SetQuantity(ctx, id, 50)
	require.NoError(t, err)
	assert.Equal(t, "8.00", got.UnitPrice, "price follows the quantity into the 50+ tier")

	got, err = svc.Save(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, got.State)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "400.00", got.Lines[0].Exclusive)
	assert.Equal(t, "400.00", got.Totals.Exclusive)
	assert.Equal(t, "84.00", got.Totals.VAT)
	assert.Equal(t, "484.00", got.Totals.Inclusive)

	totals := bus.totals()
	require.Len(t, totals, 1)
	assert.Equal(t, id, totals[0].SessionID)
	assert.Equal(t, "picker", totals[0].Flow)
}

func TestStaleSearchResultsAreDiscarded(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	view, err := svc.Open(ctx, nil)
	require.NoError(t, err)
	id := view.SessionID

	_, err = svc.Search(ctx, id, "first query")
	require.NoError(t, err)
	_, err = svc.Search(ctx, id, "second query")
	require.NoError(t, err)

	stale := catalog.Product{Name: "Stale", SKU: "S-1", Tiers: widget().Tiers}
	fresh := catalog.Product{Name: "Fresh", SKU: "F-1", Tiers: widget().Tiers}

	// the older completion arrives second-to-last and must not win
	require.NoError(t, svc.handleLookupCompleted(ctx, searchCompleted(id, 1, stale)))
	got, err := svc.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateSearching, got.State)
	assert.Empty(t, got.Results)

	require.NoError(t, svc.handleLookupCompleted(ctx, searchCompleted(id, 2, fresh)))
	got, err = svc.Snapshot(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "Fresh", got.Results[0].Name)

	// a duplicate of the stale completion after the fresh one is also dropped
	require.NoError(t, svc.handleLookupCompleted(ctx, searchCompleted(id, 1, stale)))
	got, err = svc.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Fresh", got.Results[0].Name)
}

func TestSaveWithoutSelection(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	view, err := svc.Open(ctx, nil)
	require.NoError(t, err)

	_, err = svc.Save(ctx, view.SessionID)
	assert.ErrorIs(t, err, ErrNothingSelected)
}

func TestSelectOutOfRange(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	view, err := svc.Open(ctx, nil)
	require.NoError(t, err)

	_, err = svc.Select(ctx, view.SessionID, 0)
	assert.ErrorIs(t, err, ErrNoSuchResult)
}

func TestSelectWithoutTiers(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	view, err := svc.Open(ctx, nil)
	require.NoError(t, err)
	id := view.SessionID

	_, err = svc.Search(ctx, id, "bare")
	require.NoError(t, err)
	bare := catalog.Product{Name: "Bare", SKU: "B-1"}
	require.NoError(t, svc.handleLookupCompleted(ctx, searchCompleted(id, 1, bare)))

	_, err = svc.Select(ctx, id, 0)
	assert.ErrorIs(t, err, pricing.ErrNoTiers)
}

func TestCancelKeepsCommittedLines(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	view, err := svc.Open(ctx, nil)
	require.NoError(t, err)
	id := view.SessionID

	_, err = svc.Search(ctx, id, "wid")
	require.NoError(t, err)
	require.NoError(t, svc.handleLookupCompleted(ctx, searchCompleted(id, 1, widget())))
	_, err = svc.Select(ctx, id, 0)
	require.NoError(t, err)
	_, err = svc.Save(ctx, id)
	require.NoError(t, err)

	// second modal round, abandoned
	_, err = svc.Search(ctx, id, "wid")
	require.NoError(t, err)
	require.NoError(t, svc.handleLookupCompleted(ctx, searchCompleted(id, 2, widget())))
	_, err = svc.Select(ctx, id, 0)
	require.NoError(t, err)

	got, err := svc.Cancel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, got.State)
	assert.Empty(t, got.SelectedName)
	require.Len(t, got.Lines, 1, "cancel only discards the modal draft")
}

func TestRemoveLine(t *testing.T) {
	svc, bus := newTestService()
	ctx := context.Background()
	view, err := svc.Open(ctx, nil)
	require.NoError(t, err)
	id := view.SessionID

	for i := 0; i < 2; i++ {
		_, err = svc.Search(ctx, id, "wid")
		require.NoError(t, err)
		require.NoError(t, svc.handleLookupCompleted(ctx, searchCompleted(id, uint64(i+1), widget())))
		_, err = svc.Select(ctx, id, 0)
		require.NoError(t, err)
		_, err = svc.Save(ctx, id)
		require.NoError(t, err)
	}

	got, err := svc.RemoveLine(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 1, got.Lines[0].Index, "surviving line keeps its index")
	assert.Equal(t, "10.00", got.Totals.Exclusive)

	_, err = svc.RemoveLine(ctx, id, 0)
	assert.ErrorIs(t, err, order.ErrLineNotFound)

	// add + save + remove each publish totals
	assert.Len(t, bus.totals(), 3)
}

func TestOpenWithPreload(t *testing.T) {
	svc, bus := newTestService()
	ctx := context.Background()

	name := "Widget"
	records := []form.Record{
		{Name: nil},
		{Name: &name, SKU: "W-1", Price: d("9.50"), VATPercentage: d("9"), Quantity: d("4")},
	}

	view, err := svc.Open(ctx, records)
	require.NoError(t, err)
	id := view.SessionID

	reqs := bus.requested()
	require.Len(t, reqs, 1, "placeholder rows are not fetched")
	assert.Equal(t, catalog.LookupSKU, reqs[0].Kind)
	assert.Equal(t, "preload-1", reqs[0].Slot)
	assert.Equal(t, "W-1", reqs[0].Query)

	require.NoError(t, svc.handleLookupCompleted(ctx, catalog.LookupCompletedEvent{
		SessionID: id,
		Slot:      "preload-1",
		Seq:       1,
		Kind:      catalog.LookupSKU,
		Products:  []catalog.Product{widget()},
	}))

	got, err := svc.Snapshot(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "Widget", got.Lines[0].ProductName)
	assert.EqualValues(t, 4, got.Lines[0].Quantity)
	assert.Equal(t, "9.50", got.Lines[0].UnitPrice, "stored price wins over the fetched tiers")
	assert.Equal(t, "9", got.Lines[0].VATRate, "stored VAT rate wins over the default")
	assert.Equal(t, "38.00", got.Totals.Exclusive)
}

func TestFormFields(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	view, err := svc.Open(ctx, nil)
	require.NoError(t, err)
	id := view.SessionID

	_, err = svc.Search(ctx, id, "wid")
	require.NoError(t, err)
	require.NoError(t, svc.handleLookupCompleted(ctx, searchCompleted(id, 1, widget())))
	_, err = svc.Select(ctx, id, 0)
	require.NoError(t, err)
	_, err = svc.Save(ctx, id)
	require.NoError(t, err)

	fields, err := svc.FormFields(ctx, id)
	require.NoError(t, err)
	require.Len(t, fields, 5)
	assert.Equal(t, form.Field{Name: "products-0-name", Value: "Widget"}, fields[0])
	assert.Equal(t, form.Field{Name: "products-0-price", Value: "10.00"}, fields[2])
}

func TestCompletionForUnknownSessionIsIgnored(t *testing.T) {
	svc, _ := newTestService()
	err := svc.handleLookupCompleted(context.Background(), searchCompleted("ghost", 1, widget()))
	assert.NoError(t, err)
}

func TestClose(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	view, err := svc.Open(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Close(ctx, view.SessionID))
	_, err = svc.Snapshot(ctx, view.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
