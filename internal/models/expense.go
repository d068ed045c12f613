package models

import (
	"fmt"
	"strings"
)

// ShareTolerance is the largest allowed gap between the sum of an expense's
// shares and its amount. It absorbs floating-point division remainders.
const ShareTolerance = 0.1

// SplitType is how an expense amount was divided.
type SplitType string

const (
	SplitEqual SplitType = "EQUAL"
	SplitExact SplitType = "EXACT"
)

// ParseSplitType normalizes a split mode string.
func ParseSplitType(s string) (SplitType, error) {
	switch SplitType(strings.ToUpper(strings.TrimSpace(s))) {
	case SplitEqual:
		return SplitEqual, nil
	case SplitExact:
		return SplitExact, nil
	}
	return "", fmt.Errorf("unknown split mode %q", s)
}

// Category is the closed set of expense categories.
type Category string

const (
	CategoryFood          Category = "Food"
	CategoryTravel        Category = "Travel"
	CategoryRent          Category = "Rent"
	CategoryUtilities     Category = "Utilities"
	CategoryEntertainment Category = "Entertainment"
	CategoryOther         Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryFood, CategoryTravel, CategoryRent, CategoryUtilities, CategoryEntertainment, CategoryOther,
}

// ParseCategory matches s case-insensitively. Empty input means Other.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CategoryOther, nil
	}
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Share is one debtor's portion of an expense, in the expense's base currency.
type Share struct {
	UserID string
	Amount float64

	// PaidStatus is advisory only; settlement does not read it.
	PaidStatus bool
}

// Expense is an amount paid by one user and divided among debtors.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	Description string

	// Amount is the base-currency value; authoritative for settlement.
	Amount float64

	// OriginalAmount, Currency and ExchangeRate record what the payer entered:
	// Amount = OriginalAmount * ExchangeRate.
	OriginalAmount float64
	Currency       string
	ExchangeRate   float64

	Category Category

	// PaidBy is the sole creditor and the only user allowed to edit the expense.
	PaidBy string

	// Shares are owned by the expense, in submission order.
	Shares []Share

	SplitType SplitType

	// GroupID is empty for personal expenses.
	GroupID string

	// CreatedAt and UpdatedAt are Unix timestamps.
	CreatedAt int64
	UpdatedAt int64
}

// IsPersonal reports whether the expense belongs to no group.
func (e *Expense) IsPersonal() bool {
	return e.GroupID == ""
}

// ShareOf returns userID's share amount and whether the user is a debtor.
func (e *Expense) ShareOf(userID string) (float64, bool) {
	for _, s := range e.Shares {
		if s.UserID == userID {
			return s.Amount, true
		}
	}
	return 0, false
}

// Participants returns the debtor IDs in share order.
func (e *Expense) Participants() []string {
	ids := make([]string, len(e.Shares))
	for i, s := range e.Shares {
		ids[i] = s.UserID
	}
	return ids
}
