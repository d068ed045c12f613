package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/limitly/internal/models"
	"github.com/mmynk/limitly/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "Failed to create store")
	t.Cleanup(func() { store.Close() })
	return store
}

func mustUser(t *testing.T, store *SQLiteStore, email, name string) *models.User {
	t.Helper()
	user := models.NewUser(email, name, "hash")
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

func mustGroup(t *testing.T, store *SQLiteStore, code string, members ...*models.User) *models.Group {
	t.Helper()
	now := time.Now().Unix()
	group := &models.Group{
		ID:           "group-" + code,
		Name:         "Flat " + code,
		BaseCurrency: "INR",
		InviteCode:   code,
		CreatedBy:    members[0].ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, m := range members {
		group.Members = append(group.Members, m.ID)
	}
	require.NoError(t, store.CreateGroup(context.Background(), group))
	return group
}

func TestUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, store, "alice@example.com", "Alice")

	t.Run("GetUserByEmail", func(t *testing.T) {
		got, err := store.GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, alice, got)
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		err := store.CreateUser(ctx, models.NewUser("alice@example.com", "Other", "hash"))
		assert.ErrorIs(t, err, storage.ErrConflict)
	})

	t.Run("missing user is not found", func(t *testing.T) {
		_, err := store.GetUserByID(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = store.GetUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("UpdateUserBudget", func(t *testing.T) {
		require.NoError(t, store.UpdateUserBudget(ctx, alice.ID, 15000))
		got, err := store.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, 15000.0, got.MonthlyBudget)

		assert.ErrorIs(t, store.UpdateUserBudget(ctx, "nope", 1), storage.ErrNotFound)
	})

	t.Run("GetUsersByIDs skips unknown ids", func(t *testing.T) {
		bob := mustUser(t, store, "bob@example.com", "Bob")
		users, err := store.GetUsersByIDs(ctx, []string{alice.ID, bob.ID, "ghost"})
		require.NoError(t, err)
		assert.Len(t, users, 2)
		assert.Equal(t, "Bob", users[bob.ID].Name)

		empty, err := store.GetUsersByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func TestGroups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, store, "alice@example.com", "Alice")
	bob := mustUser(t, store, "bob@example.com", "Bob")
	group := mustGroup(t, store, "ABC123", alice)

	t.Run("GetGroup and GetGroupByInviteCode", func(t *testing.T) {
		got, err := store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.Equal(t, group, got)

		byCode, err := store.GetGroupByInviteCode(ctx, "ABC123")
		require.NoError(t, err)
		assert.Equal(t, group.ID, byCode.ID)

		_, err = store.GetGroupByInviteCode(ctx, "ZZZZZZ")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("invite code is unique", func(t *testing.T) {
		dup := &models.Group{ID: "other", Name: "x", BaseCurrency: "INR", InviteCode: "ABC123", CreatedBy: bob.ID}
		assert.ErrorIs(t, store.CreateGroup(ctx, dup), storage.ErrConflict)
	})

	t.Run("AddGroupMember rejects re-join", func(t *testing.T) {
		require.NoError(t, store.AddGroupMember(ctx, group.ID, bob.ID))
		assert.ErrorIs(t, store.AddGroupMember(ctx, group.ID, bob.ID), storage.ErrConflict)

		got, err := store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{alice.ID, bob.ID}, got.Members)
	})

	t.Run("ListGroupsByMember", func(t *testing.T) {
		mustGroup(t, store, "XYZ789", bob)

		groups, err := store.ListGroupsByMember(ctx, bob.ID)
		require.NoError(t, err)
		assert.Len(t, groups, 2)

		groups, err = store.ListGroupsByMember(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, []string{alice.ID, bob.ID}, groups[0].Members)
	})

	t.Run("UpdateGroup", func(t *testing.T) {
		group.Name = "Renamed"
		group.BaseCurrency = "USD"
		require.NoError(t, store.UpdateGroup(ctx, group))

		got, err := store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, "USD", got.BaseCurrency)
	})
}

func TestExpenses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, store, "alice@example.com", "Alice")
	bob := mustUser(t, store, "bob@example.com", "Bob")
	group := mustGroup(t, store, "ABC123", alice, bob)

	newExpense := func(desc string, createdAt int64) *models.Expense {
		return &models.Expense{
			Description:    desc,
			Amount:         100,
			OriginalAmount: 100,
			Currency:       "INR",
			ExchangeRate:   1,
			Category:       models.CategoryFood,
			PaidBy:         alice.ID,
			SplitType:      models.SplitExact,
			GroupID:        group.ID,
			CreatedAt:      createdAt,
			Shares: []models.Share{
				{UserID: bob.ID, Amount: 70},
				{UserID: alice.ID, Amount: 30},
			},
		}
	}

	first := newExpense("Dinner", 1000)
	second := newExpense("Taxi", 2000)
	require.NoError(t, store.CreateExpense(ctx, first))
	require.NoError(t, store.CreateExpense(ctx, second))

	t.Run("CreateExpense fills ID and GetExpense round-trips shares in order", func(t *testing.T) {
		assert.NotEmpty(t, first.ID)
		got, err := store.GetExpense(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	})

	t.Run("ListExpensesByGroup ordering", func(t *testing.T) {
		asc, err := store.ListExpensesByGroup(ctx, group.ID, false)
		require.NoError(t, err)
		require.Len(t, asc, 2)
		assert.Equal(t, "Dinner", asc[0].Description)

		desc, err := store.ListExpensesByGroup(ctx, group.ID, true)
		require.NoError(t, err)
		assert.Equal(t, "Taxi", desc[0].Description)
		assert.Len(t, desc[0].Shares, 2)
	})

	t.Run("UpdateExpense replaces shares", func(t *testing.T) {
		first.Amount = 90
		first.OriginalAmount = 90
		first.SplitType = models.SplitEqual
		first.Shares = []models.Share{
			{UserID: alice.ID, Amount: 45},
			{UserID: bob.ID, Amount: 45},
		}
		require.NoError(t, store.UpdateExpense(ctx, first))

		got, err := store.GetExpense(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, 90.0, got.Amount)
		assert.Equal(t, models.SplitEqual, got.SplitType)
		assert.Equal(t, first.Shares, got.Shares)
	})

	t.Run("ListExpensesByParticipant filters by share and time", func(t *testing.T) {
		carol := mustUser(t, store, "carol@example.com", "Carol")

		all, err := store.ListExpensesByParticipant(ctx, bob.ID, 0)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		recent, err := store.ListExpensesByParticipant(ctx, bob.ID, 1500)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "Taxi", recent[0].Description)

		none, err := store.ListExpensesByParticipant(ctx, carol.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("personal expenses", func(t *testing.T) {
		personal := &models.Expense{
			Description: "Coffee", Amount: 5, OriginalAmount: 5, Currency: "INR", ExchangeRate: 1,
			Category: models.CategoryFood, PaidBy: bob.ID, SplitType: models.SplitEqual,
			Shares: []models.Share{{UserID: bob.ID, Amount: 5}},
		}
		require.NoError(t, store.CreateExpense(ctx, personal))

		got, err := store.ListPersonalExpenses(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].IsPersonal())

		got, err = store.ListPersonalExpenses(ctx, alice.ID)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("DeleteExpense", func(t *testing.T) {
		require.NoError(t, store.DeleteExpense(ctx, second.ID))
		_, err := store.GetExpense(ctx, second.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, store.DeleteExpense(ctx, second.ID), storage.ErrNotFound)
	})
}

func TestPaymentsAndGroupDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := mustUser(t, store, "alice@example.com", "Alice")
	bob := mustUser(t, store, "bob@example.com", "Bob")
	group := mustGroup(t, store, "ABC123", alice, bob)

	payment := &models.Payment{GroupID: group.ID, FromUserID: bob.ID, ToUserID: alice.ID, Amount: 50, CreatedBy: bob.ID}
	require.NoError(t, store.CreatePayment(ctx, payment))
	assert.NotEmpty(t, payment.ID)

	got, err := store.GetPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment, got)

	withNote := &models.Payment{GroupID: group.ID, FromUserID: bob.ID, ToUserID: alice.ID, Amount: 10, Note: "cash", CreatedBy: bob.ID}
	require.NoError(t, store.CreatePayment(ctx, withNote))

	list, err := store.ListPaymentsByGroup(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cash", list[1].Note)

	require.NoError(t, store.DeletePayment(ctx, withNote.ID))
	assert.ErrorIs(t, store.DeletePayment(ctx, withNote.ID), storage.ErrNotFound)

	expense := &models.Expense{
		Description: "Groceries", Amount: 80, OriginalAmount: 80, Currency: "INR", ExchangeRate: 1,
		Category: models.CategoryFood, PaidBy: alice.ID, SplitType: models.SplitEqual, GroupID: group.ID,
		Shares: []models.Share{{UserID: alice.ID, Amount: 40}, {UserID: bob.ID, Amount: 40}},
	}
	require.NoError(t, store.CreateExpense(ctx, expense))

	t.Run("DeleteGroup cascades", func(t *testing.T) {
		require.NoError(t, store.DeleteGroup(ctx, group.ID))

		_, err := store.GetGroup(ctx, group.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = store.GetExpense(ctx, expense.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = store.GetPayment(ctx, payment.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		groups, err := store.ListGroupsByMember(ctx, bob.ID)
		require.NoError(t, err)
		assert.Empty(t, groups)

		assert.ErrorIs(t, store.DeleteGroup(ctx, group.ID), storage.ErrNotFound)
	})
}
