// Package rates defines the exchange-rate contract. Conversions always use
// the venta side of the quote.
package rates

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrRateUnavailable is returned when no quote exists for the requested date.
// Matchers treat it as "no cross-currency match", never as a fatal error.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// Quote is the ARS/USD quote for one day.
type Quote struct {
	Fecha  time.Time
	Compra decimal.Decimal
	Venta  decimal.Decimal
}

// Provider resolves the ARS/USD quote for a given date.
type Provider interface {
	QuoteFor(ctx context.Context, date time.Time) (Quote, error)
}
