// Package http implements the exchange-rate provider against the public
// cotizaciones API. Quotes are cached per calendar day; a miss from the
// upstream maps to rates.ErrRateUnavailable so matchers can skip the
// cross-currency path instead of failing the task.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"adva/ms_conciliacion_core/internal/core/rates"
	"adva/ms_conciliacion_core/internal/infrastructure/cache"

	"github.com/shopspring/decimal"
)

const (
	// RatesBaseURL is the base URL of the Argentine quotes API.
	RatesBaseURL = "https://api.argentinadatos.com/v1"
	// DefaultTimeout is the default timeout for quote requests.
	DefaultTimeout = 10 * time.Second
)

// Client implements the rates.Provider interface over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	cache   *cache.RateCache
	log     *slog.Logger
}

// NewClient creates a new exchange-rate HTTP client.
// If baseURL is empty, uses the default quotes API URL.
func NewClient(baseURL string, httpClient *http.Client, rateCache *cache.RateCache, log *slog.Logger) rates.Provider {
	if baseURL == "" {
		baseURL = RatesBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: DefaultTimeout,
		}
	}
	if rateCache == nil {
		rateCache = cache.NewRateCache(0)
	}

	return &Client{
		baseURL: baseURL,
		client:  httpClient,
		cache:   rateCache,
		log:     log,
	}
}

// quoteResponse represents the JSON response from the quotes API.
type quoteResponse struct {
	Fecha  string          `json:"fecha"`
	Compra decimal.Decimal `json:"compra"`
	Venta  decimal.Decimal `json:"venta"`
}

// QuoteFor retrieves the ARS/USD quote for a given date, hitting the cache
// first. The upstream returning no quote for the date (weekend, holiday,
// future date) yields rates.ErrRateUnavailable.
func (c *Client) QuoteFor(ctx context.Context, date time.Time) (rates.Quote, error) {
	if quote, ok := c.cache.Get(date); ok {
		return quote, nil
	}

	apiURL, err := url.Parse(c.baseURL + "/cotizaciones/dolar")
	if err != nil {
		return rates.Quote{}, fmt.Errorf("invalid base URL: %w", err)
	}

	fecha := date.Format("2006-01-02")
	query := apiURL.Query()
	query.Set("fecha", fecha)
	apiURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL.String(), nil)
	if err != nil {
		return rates.Quote{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug("consultando cotización", "fecha", fecha, "url", apiURL.String())

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("error consultando cotización", "fecha", fecha, "error", err)
		return rates.Quote{}, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.log.Warn("cotización no disponible", "fecha", fecha)
		return rates.Quote{}, fmt.Errorf("fecha %s: %w", fecha, rates.ErrRateUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.log.Warn("API de cotizaciones devolvió estado no-200", "status", resp.StatusCode, "body", string(body), "fecha", fecha)
		return rates.Quote{}, fmt.Errorf("quote API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return rates.Quote{}, fmt.Errorf("read response body: %w", err)
	}

	var result quoteResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.log.Warn("respuesta de cotización inválida", "error", err, "body", string(body), "fecha", fecha)
		return rates.Quote{}, fmt.Errorf("parse quote response: %w", err)
	}

	if result.Venta.IsZero() {
		c.log.Warn("cotización sin valor de venta", "fecha", fecha)
		return rates.Quote{}, fmt.Errorf("fecha %s: %w", fecha, rates.ErrRateUnavailable)
	}

	parsedFecha := date
	if t, err := time.Parse("2006-01-02", result.Fecha); err == nil {
		parsedFecha = t
	}

	quote := rates.Quote{
		Fecha:  parsedFecha,
		Compra: result.Compra,
		Venta:  result.Venta,
	}
	c.cache.Set(date, quote)

	c.log.Debug("cotización obtenida", "fecha", fecha, "venta", quote.Venta.String())

	return quote, nil
}
