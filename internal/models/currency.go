package models

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
)

// DefaultCurrency is the base currency for personal expenses and new groups
// unless configured otherwise.
const DefaultCurrency = "INR"

// supportedCurrencies are the currencies a group may use as its base and an
// expense may be entered in.
var supportedCurrencies = map[string]bool{
	"INR": true,
	"USD": true,
	"EUR": true,
	"GBP": true,
}

// SupportedCurrencies returns the supported ISO codes in a stable order.
func SupportedCurrencies() []string {
	return []string{"INR", "USD", "EUR", "GBP"}
}

// ParseCurrency validates an ISO 4217 code and returns it in canonical form.
// Empty input yields fallback.
func ParseCurrency(code, fallback string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fallback, nil
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("invalid currency code %q: %w", code, err)
	}
	canonical := unit.String()
	if !supportedCurrencies[canonical] {
		return "", fmt.Errorf("currency %s is not supported", canonical)
	}
	return canonical, nil
}

// FormatAmount renders an amount with its currency symbol, e.g. for prompts.
// Unknown codes fall back to "CODE 12.34".
func FormatAmount(code string, amount float64) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%s %.2f", code, amount)
	}
	return fmt.Sprint(currency.Symbol(unit.Amount(amount)))
}
