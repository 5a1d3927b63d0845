package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/invoicedesk/invoiceform/internal/application/grid"
	"github.com/invoicedesk/invoiceform/internal/application/picker"
	"github.com/invoicedesk/invoiceform/internal/domain/catalog"
	"github.com/invoicedesk/invoiceform/internal/domain/order"
	"github.com/invoicedesk/invoiceform/internal/domain/pricing"
	"github.com/invoicedesk/invoiceform/internal/form"
	"github.com/invoicedesk/invoiceform/internal/observability"
	"github.com/invoicedesk/invoiceform/internal/observability/logctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Handler is the thin embedding surface over the form session services. A
// page frontend (or a test harness) drives sessions through these endpoints;
// all pricing and totals logic stays behind the services.
type Handler struct {
	pickerService *picker.Service
	gridService   *grid.Service
	log           observability.Logger
	tel           observability.Observability
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
)

func NewHandler(pickerSvc *picker.Service, gridSvc *grid.Service, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.NewNop()
	}
	return &Handler{
		pickerService: pickerSvc,
		gridService:   gridSvc,
		log:           tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:           tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	h.muxHandle(mux, http.MethodPost, "/picker/open", h.handlePickerOpen)
	h.muxHandle(mux, http.MethodPost, "/picker/search", h.handlePickerSearch)
	h.muxHandle(mux, http.MethodPost, "/picker/select", h.handlePickerSelect)
	h.muxHandle(mux, http.MethodPost, "/picker/quantity", h.handlePickerQuantity)
	h.muxHandle(mux, http.MethodPost, "/picker/save", h.handlePickerSave)
	h.muxHandle(mux, http.MethodPost, "/picker/cancel", h.handlePickerCancel)
	h.muxHandle(mux, http.MethodPost, "/picker/line/delete", h.handlePickerRemoveLine)
	h.muxHandle(mux, http.MethodPost, "/picker/close", h.handlePickerClose)
	h.muxHandle(mux, http.MethodGet, "/picker/view", h.handlePickerView)
	h.muxHandle(mux, http.MethodGet, "/picker/totals", h.handlePickerTotals)
	h.muxHandle(mux, http.MethodGet, "/picker/form", h.handlePickerForm)

	h.muxHandle(mux, http.MethodPost, "/grid/open", h.handleGridOpen)
	h.muxHandle(mux, http.MethodPost, "/grid/product", h.handleGridProduct)
	h.muxHandle(mux, http.MethodPost, "/grid/quantity", h.handleGridQuantity)
	h.muxHandle(mux, http.MethodPost, "/grid/close", h.handleGridClose)
	h.muxHandle(mux, http.MethodGet, "/grid/view", h.handleGridView)

	h.muxHandle(mux, http.MethodGet, "/health", h.handleHealth)

	return mux
}

// muxHandle wires one route with the middleware chain:
// Trace → ObservabilityMiddleware (request logger + metrics) → Access log → Handler
func (h *Handler) muxHandle(mux *http.ServeMux, method, route string, handler http.HandlerFunc) {
	mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		// stable route template for low-cardinality labels
		ctx := contextWithRoute(r.Context(), route)
		r = r.WithContext(ctx)

		wrapped := h.withTrace(
			ObservabilityMiddleware(
				logctx.FromOr(ctx, h.log),
				func(r *http.Request) string { return r.Header.Get(headerRequestID) },
				h.tel,
			)(
				h.withAccessLog(handler),
			),
		)
		wrapped.ServeHTTP(w, r)
	})
}

type openPickerRequest struct {
	// FormData is the JSON array a previous submit left in the page, verbatim.
	FormData string `json:"form_data"`
}

func (h *Handler) handlePickerOpen(w http.ResponseWriter, r *http.Request) {
	var req openPickerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	records, err := form.DecodeRecords(req.FormData)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := h.pickerService.Open(r.Context(), records)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type pickerSearchRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

func (h *Handler) handlePickerSearch(w http.ResponseWriter, r *http.Request) {
	var req pickerSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := h.pickerService.Search(r.Context(), req.SessionID, req.Query)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type pickerSelectRequest struct {
	SessionID   string `json:"session_id"`
	ResultIndex int    `json:"result_index"`
}

func (h *Handler) handlePickerSelect(w http.ResponseWriter, r *http.Request) {
	var req pickerSelectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := h.pickerService.Select(r.Context(), req.SessionID, req.ResultIndex)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type pickerQuantityRequest struct {
	SessionID string `json:"session_id"`
	Quantity  int64  `json:"quantity"`
}

func (h *Handler) handlePickerQuantity(w http.ResponseWriter, r *http.Request) {
	var req pickerQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := h.pickerService.SetQuantity(r.Context(), req.SessionID, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

func (h *Handler) handlePickerSave(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := h.pickerService.Save(r.Context(), req.SessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handlePickerCancel(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := h.pickerService.Cancel(r.Context(), req.SessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type pickerRemoveLineRequest struct {
	SessionID string `json:"session_id"`
	LineIndex int    `json:"line_index"`
}

func (h *Handler) handlePickerRemoveLine(w http.ResponseWriter, r *http.Request) {
	var req pickerRemoveLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := h.pickerService.RemoveLine(r.Context(), req.SessionID, req.LineIndex)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handlePickerClose(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.pickerService.Close(r.Context(), req.SessionID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePickerView(w http.ResponseWriter, r *http.Request) {
	view, err := h.pickerService.Snapshot(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handlePickerTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.pickerService.Totals(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

type formFieldsResponse struct {
	Fields []form.Field `json:"fields"`
}

func (h *Handler) handlePickerForm(w http.ResponseWriter, r *http.Request) {
	fields, err := h.pickerService.FormFields(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formFieldsResponse{Fields: fields})
}

func (h *Handler) handleGridOpen(w http.ResponseWriter, r *http.Request) {
	view, err := h.gridService.Open(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type gridProductRequest struct {
	SessionID  string `json:"session_id"`
	Row        int    `json:"row"`
	Identifier string `json:"identifier"`
}

func (h *Handler) handleGridProduct(w http.ResponseWriter, r *http.Request) {
	var req gridProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := h.gridService.SetProduct(r.Context(), req.SessionID, req.Row, req.Identifier)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type gridQuantityRequest struct {
	SessionID string `json:"session_id"`
	Row       int    `json:"row"`
	Quantity  int64  `json:"quantity"`
}

func (h *Handler) handleGridQuantity(w http.ResponseWriter, r *http.Request) {
	var req gridQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := h.gridService.SetQuantity(r.Context(), req.SessionID, req.Row, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleGridClose(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.gridService.Close(r.Context(), req.SessionID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGridView(w http.ResponseWriter, r *http.Request) {
	view, err := h.gridService.Snapshot(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes,
// relying on the request-scoped logger injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request with W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("invoiceform.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := route
		if spanName == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, picker.ErrSessionNotFound),
		errors.Is(err, grid.ErrSessionNotFound),
		errors.Is(err, order.ErrLineNotFound),
		errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, pricing.ErrNoTiers),
		errors.Is(err, picker.ErrNoSuchResult),
		errors.Is(err, picker.ErrNothingSelected),
		errors.Is(err, grid.ErrNoSuchRow):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, catalog.ErrUnavailable),
		errors.Is(err, catalog.ErrMalformedResponse):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template so downstream metrics and
// logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
