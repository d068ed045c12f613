package currency

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mmynk/limitly/internal/apperr"
)

// Conversion is the outcome of normalizing an entered amount.
//
// A degraded conversion is still usable: the rate fell back to 1 and Amount
// equals Original. Callers decide whether that is acceptable.
type Conversion struct {
	Original float64 // amount as entered
	Currency string  // currency as entered
	Amount   float64 // amount in the target currency
	Rate     float64 // Amount = Original * Rate
	Degraded bool
	Cause    error // why the conversion degraded, nil otherwise
}

// Normalizer converts amounts into a target currency using a RateSource.
type Normalizer struct {
	rates   RateSource
	timeout time.Duration
}

// NewNormalizer creates a normalizer. timeout bounds each rate lookup; zero
// leaves it to the rate source.
func NewNormalizer(rates RateSource, timeout time.Duration) *Normalizer {
	return &Normalizer{rates: rates, timeout: timeout}
}

// Normalize converts amount from one currency to another. Same-currency input
// passes through with rate 1. If the rate cannot be fetched the conversion
// degrades to rate 1 instead of failing.
func (n *Normalizer) Normalize(ctx context.Context, amount float64, from, to string) Conversion {
	c := Conversion{Original: amount, Currency: from, Amount: amount, Rate: 1}
	if from == to {
		return c
	}

	rate, err := n.lookup(ctx, from, to)
	if err != nil {
		slog.Warn("Currency conversion degraded, using rate 1",
			"from", from,
			"to", to,
			"amount", amount,
			"error", err,
		)
		c.Degraded = true
		c.Cause = apperr.Degraded("exchange_rates", err)
		return c
	}

	c.Rate = rate
	c.Amount = amount * rate
	return c
}

func (n *Normalizer) lookup(ctx context.Context, from, to string) (float64, error) {
	if n.rates == nil {
		return 0, fmt.Errorf("no rate source configured")
	}
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	rates, err := n.rates.GetRates(ctx, from)
	if err != nil {
		return 0, err
	}
	rate, ok := rates[to]
	if !ok {
		return 0, fmt.Errorf("%w: no %s rate for base %s", ErrRatesUnavailable, to, from)
	}
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, fmt.Errorf("%w: invalid %s rate %v", ErrRatesUnavailable, to, rate)
	}
	return rate, nil
}
