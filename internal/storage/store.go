// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/limitly/internal/models"
)

var (
	// ErrNotFound is returned (wrapped) when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned (wrapped) when a write violates a uniqueness rule.
	ErrConflict = errors.New("conflict")
)

// Store defines the persistence operations the services need.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the service layer.
type Store interface {
	UserStore
	GroupStore
	ExpenseStore
	PaymentStore

	// Close releases any resources held by the store.
	Close() error
}

// UserStore persists accounts.
type UserStore interface {
	// CreateUser inserts a user. Returns ErrConflict if the email is taken.
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// GetUsersByIDs returns a map of user ID to User.
	// Users that don't exist are omitted from the result.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)

	UpdateUserBudget(ctx context.Context, userID string, budget float64) error
}

// GroupStore persists groups and their membership.
type GroupStore interface {
	// CreateGroup inserts the group and its initial members.
	// Returns ErrConflict if the invite code is already used.
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	GetGroupByInviteCode(ctx context.Context, code string) (*models.Group, error)
	ListGroupsByMember(ctx context.Context, userID string) ([]*models.Group, error)

	// UpdateGroup saves name and base currency.
	UpdateGroup(ctx context.Context, group *models.Group) error

	// AddGroupMember adds a user to a group.
	// Returns ErrConflict if the user is already a member.
	AddGroupMember(ctx context.Context, groupID, userID string) error

	// DeleteGroup removes a group with its expenses, shares and payments.
	DeleteGroup(ctx context.Context, groupID string) error
}

// ExpenseStore persists expenses with their shares.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, expense *models.Expense) error
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// UpdateExpense replaces every mutable field and the full share list.
	UpdateExpense(ctx context.Context, expense *models.Expense) error
	DeleteExpense(ctx context.Context, expenseID string) error

	// ListExpensesByGroup returns a group's expenses ordered by creation time,
	// oldest first unless newestFirst is set.
	ListExpensesByGroup(ctx context.Context, groupID string, newestFirst bool) ([]*models.Expense, error)

	// ListExpensesByParticipant returns every expense (group or personal) in
	// which the user holds a share, created at or after since (unix seconds).
	ListExpensesByParticipant(ctx context.Context, userID string, since int64) ([]*models.Expense, error)

	// ListPersonalExpenses returns the user's expenses that belong to no group, newest first.
	ListPersonalExpenses(ctx context.Context, userID string) ([]*models.Expense, error)
}

// PaymentStore persists recorded settle-up transfers.
type PaymentStore interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	ListPaymentsByGroup(ctx context.Context, groupID string) ([]*models.Payment, error)
	DeletePayment(ctx context.Context, paymentID string) error
}
