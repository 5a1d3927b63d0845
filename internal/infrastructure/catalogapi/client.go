package catalogapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/invoicedesk/invoiceform/internal/domain/catalog"
	"github.com/invoicedesk/invoiceform/internal/domain/pricing"
	"github.com/invoicedesk/invoiceform/internal/observability"
	"github.com/invoicedesk/invoiceform/internal/observability/logctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	peerWarehouse = "warehouse"

	endpointFind   = "find_product"
	endpointBySKU  = "product"
	endpointSearch = "search_product"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the warehouse product service. One request per call, no
// retries; every non-2xx response collapses into catalog.ErrUnavailable
// except 404, which maps to catalog.ErrNotFound.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client

	log          observability.Logger
	tracer       observability.Tracer
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func New(cfg Config, tel observability.Observability) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	baseLog := observability.NopLogger()
	tracer := observability.NopTracer()
	metrics := observability.NopMetrics()
	if tel != nil {
		baseLog = tel.Logger()
		tracer = tel.Tracer()
		metrics = tel.Metrics()
	}

	return &Client{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		httpc:        &http.Client{Timeout: timeout},
		log:          baseLog.With(observability.F("component", "catalog_client")),
		tracer:       tracer,
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

type wireTier struct {
	StartRange int64           `json:"start_range"`
	Price      decimal.Decimal `json:"price"`
}

type wireProduct struct {
	Name          string     `json:"name"`
	SKU           string     `json:"sku"`
	CurrentStock  int        `json:"currentstock"`
	PossibleStock int        `json:"possible_stock"`
	Prices        []wireTier `json:"prices"`
}

type wireFindResponse struct {
	Products []wireProduct `json:"products"`
}

type wireQuote struct {
	Cost          decimal.Decimal `json:"cost"`
	AssemblyCosts decimal.Decimal `json:"assemblycosts"`
	VAT           decimal.Decimal `json:"vat"`
	Stock         int             `json:"stock"`
	PossibleStock int             `json:"possible_stock"`
}

// Search queries by partial name or SKU. A response without a products key is
// an empty result set, not an error.
func (c *Client) Search(ctx context.Context, query string) ([]catalog.Product, error) {
	var body wireFindResponse
	if err := c.get(ctx, endpointFind, query, &body); err != nil {
		return nil, err
	}
	out := make([]catalog.Product, 0, len(body.Products))
	for _, p := range body.Products {
		out = append(out, toProduct(p))
	}
	return out, nil
}

func (c *Client) BySKU(ctx context.Context, sku string) (catalog.Product, error) {
	var body wireProduct
	if err := c.get(ctx, endpointBySKU, sku, &body); err != nil {
		return catalog.Product{}, err
	}
	return toProduct(body), nil
}

func (c *Client) Quote(ctx context.Context, identifier string) (catalog.Quote, error) {
	var body wireQuote
	if err := c.get(ctx, endpointSearch, identifier, &body); err != nil {
		return catalog.Quote{}, err
	}
	return catalog.Quote{
		Cost:          body.Cost,
		AssemblyCosts: body.AssemblyCosts,
		VATRate:       body.VAT,
		Stock:         body.Stock,
		PossibleStock: body.PossibleStock,
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint, arg string, dst any) (err error) {
	ctx, span := c.tracer.Start(ctx, "EXT."+endpoint,
		attribute.String("peer", peerWarehouse),
		attribute.String("endpoint", endpoint),
	)
	start := time.Now()
	outcome := "success"
	defer func() {
		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, outcome)
			} else {
				span.SetStatus(codes.Ok, "OK")
			}
			span.End()
		}
		if c.extCounter != nil {
			c.extCounter.Add(1,
				observability.L("peer", peerWarehouse),
				observability.L("endpoint", endpoint),
				observability.L("outcome", outcome),
			)
		}
		if c.extHistogram != nil {
			c.extHistogram.Observe(time.Since(start).Seconds(),
				observability.L("peer", peerWarehouse),
				observability.L("endpoint", endpoint),
			)
		}
	}()

	reqURL := fmt.Sprintf("%s/%s/%s?apikey=%s",
		c.baseURL, endpoint, url.PathEscape(arg), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		outcome = "error"
		return fmt.Errorf("catalog client: build request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		outcome = "error"
		return fmt.Errorf("%w: %w", catalog.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		outcome = "not_found"
		return catalog.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		outcome = "error"
		logctx.FromOr(ctx, c.log).Warn("warehouse_request_failed",
			observability.F("endpoint", endpoint),
			observability.F("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: status %d", catalog.ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		outcome = "error"
		return fmt.Errorf("%w: %w", catalog.ErrMalformedResponse, err)
	}
	return nil
}

func toProduct(p wireProduct) catalog.Product {
	tiers := make([]pricing.Tier, 0, len(p.Prices))
	for _, t := range p.Prices {
		tiers = append(tiers, pricing.Tier{MinQuantity: t.StartRange, UnitPrice: t.Price})
	}
	// The service is expected to return tiers ascending; enforce it so the
	// pricing precondition always holds.
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinQuantity < tiers[j].MinQuantity })
	return catalog.Product{
		Name:          p.Name,
		SKU:           p.SKU,
		CurrentStock:  p.CurrentStock,
		PossibleStock: p.PossibleStock,
		Tiers:         tiers,
	}
}
