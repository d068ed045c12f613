// Package currency converts entered amounts into a base currency.
package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// RateSource looks up exchange rates. GetRates returns, for each currency
// code, how many units of that currency one unit of base buys.
type RateSource interface {
	GetRates(ctx context.Context, base string) (map[string]float64, error)
}

// ErrRatesUnavailable is returned when the upstream answered but without usable rates.
var ErrRatesUnavailable = errors.New("exchange rates unavailable")

// ratesResponse matches the open.er-api.com "latest" payload.
type ratesResponse struct {
	Result   string             `json:"result"`
	BaseCode string             `json:"base_code"`
	Rates    map[string]float64 `json:"rates"`
}

// HTTPRateSource fetches rates from an open.er-api.com compatible endpoint.
type HTTPRateSource struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPRateSource creates a rate source for baseURL (e.g.
// https://open.er-api.com/v6/latest). Every request is bounded by timeout and
// passes through a circuit breaker, so a dead upstream fails fast.
func NewHTTPRateSource(baseURL string, timeout time.Duration) *HTTPRateSource {
	return &HTTPRateSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "exchange-rates",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// GetRates fetches the rate table for base.
func (s *HTTPRateSource) GetRates(ctx context.Context, base string) (map[string]float64, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.fetch(ctx, base)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]float64), nil
}

func (s *HTTPRateSource) fetch(ctx context.Context, base string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+url.PathEscape(base), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build rates request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: upstream status %d", ErrRatesUnavailable, resp.StatusCode)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode rates: %w", err)
	}
	if body.Result != "success" || len(body.Rates) == 0 {
		return nil, fmt.Errorf("%w: result %q", ErrRatesUnavailable, body.Result)
	}

	return body.Rates, nil
}
