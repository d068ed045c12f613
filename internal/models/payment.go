package models

// Payment represents a settle-up transfer between group members.
type Payment struct {
	// ID is the unique identifier for the payment (UUID format).
	ID string

	// GroupID is the group this payment belongs to.
	GroupID string

	// FromUserID is the member who paid (debtor settling up).
	FromUserID string

	// ToUserID is the member who received the money (creditor being paid).
	ToUserID string

	// Amount is the payment amount in the group's base currency.
	Amount float64

	// Note is an optional description.
	Note string

	// CreatedBy is the user ID who recorded this payment.
	CreatedBy string

	// CreatedAt is the Unix timestamp when the payment was recorded.
	CreatedAt int64
}
