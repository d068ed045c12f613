package models

// Group represents a set of users sharing expenses.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Roommates", "Goa Trip").
	Name string

	// BaseCurrency is the currency every group expense Amount is stored in.
	BaseCurrency string

	// InviteCode is the short unique token other users redeem to join.
	InviteCode string

	// CreatedBy is the owner's user ID. Only the owner may edit or delete the group.
	CreatedBy string

	// Members are the user IDs of everyone in the group, owner included.
	Members []string

	// CreatedAt and UpdatedAt are Unix timestamps.
	CreatedAt int64
	UpdatedAt int64
}

// HasMember reports whether userID belongs to the group.
func (g *Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}
