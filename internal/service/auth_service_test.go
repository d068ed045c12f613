package service

import (
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/limitly/internal/apperr"
)

func TestAuthService_RegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	reg, err := invoke[RegisterRequest, AuthResponse](env, "", AuthServiceName, "Register", &RegisterRequest{
		Name: "Alice", Email: "Alice@Example.com", Password: "password123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "alice@example.com", reg.User.Email)
	assert.Equal(t, "Alice", reg.User.Name)

	login, err := invoke[LoginRequest, AuthResponse](env, "", AuthServiceName, "Login", &LoginRequest{
		Email: "ALICE@example.com", Password: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)

	me, err := invoke[GetMeRequest, GetMeResponse](env, login.Token, UserServiceName, "GetMe", &GetMeRequest{})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, me.User.ID)
}

func TestAuthService_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.register("Alice")

	t.Run("duplicate email", func(t *testing.T) {
		_, err := invoke[RegisterRequest, AuthResponse](env, "", AuthServiceName, "Register", &RegisterRequest{
			Name: "Other", Email: "alice@example.com", Password: "password123",
		})
		assertAppError(t, err, connect.CodeAlreadyExists, apperr.KindConflict, apperr.ReasonEmailExists)
	})

	t.Run("weak password", func(t *testing.T) {
		_, err := invoke[RegisterRequest, AuthResponse](env, "", AuthServiceName, "Register", &RegisterRequest{
			Name: "Bob", Email: "bob@example.com", Password: "short",
		})
		assertAppError(t, err, connect.CodeInvalidArgument, apperr.KindValidation, apperr.ReasonWeakPassword)
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := invoke[RegisterRequest, AuthResponse](env, "", AuthServiceName, "Register", &RegisterRequest{
			Email: "carol@example.com", Password: "password123",
		})
		assertAppError(t, err, connect.CodeInvalidArgument, apperr.KindValidation, "")
	})

	logins := []struct {
		name string
		req  LoginRequest
		code connect.Code
	}{
		{"wrong password", LoginRequest{Email: "alice@example.com", Password: "password124"}, connect.CodeUnauthenticated},
		{"unknown email", LoginRequest{Email: "nobody@example.com", Password: "password123"}, connect.CodeUnauthenticated},
		{"empty", LoginRequest{}, connect.CodeInvalidArgument},
	}
	for _, tt := range logins {
		t.Run(tt.name, func(t *testing.T) {
			_, err := invoke[LoginRequest, AuthResponse](env, "", AuthServiceName, "Login", &tt.req)
			assert.Equal(t, tt.code, connect.CodeOf(err))
		})
	}
}

func TestUserService_BudgetAndStats(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register("Alice")
	bob := env.register("Bob")
	group := env.createGroup(alice, "Flat", bob)

	env.mustExpense(alice, &CreateExpenseRequest{Description: "Dinner", Amount: 300, Category: "Food", GroupID: group.ID})
	env.mustExpense(bob, &CreateExpenseRequest{Description: "Cab", Amount: 100, Category: "travel", GroupID: group.ID})
	env.mustExpense(alice, &CreateExpenseRequest{Description: "Books", Amount: 40})

	stats, err := invoke[GetStatsRequest, GetStatsResponse](env, alice.Token, UserServiceName, "GetStats", &GetStatsRequest{})
	require.NoError(t, err)
	assert.InDelta(t, 240.0, stats.TotalSpent, 0.001)
	assert.InDelta(t, 150.0, stats.CategoryBreakdown["Food"], 0.001)
	assert.InDelta(t, 50.0, stats.CategoryBreakdown["Travel"], 0.001)
	assert.InDelta(t, 40.0, stats.CategoryBreakdown["Other"], 0.001)
	assert.Zero(t, stats.MonthlyBudget)

	_, err = invoke[UpdateBudgetRequest, UpdateBudgetResponse](env, alice.Token, UserServiceName, "UpdateBudget",
		&UpdateBudgetRequest{MonthlyBudget: -1})
	assertAppError(t, err, connect.CodeInvalidArgument, apperr.KindValidation, "")

	updated, err := invoke[UpdateBudgetRequest, UpdateBudgetResponse](env, alice.Token, UserServiceName, "UpdateBudget",
		&UpdateBudgetRequest{MonthlyBudget: 5000})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, updated.User.MonthlyBudget)

	me, err := invoke[GetMeRequest, GetMeResponse](env, alice.Token, UserServiceName, "GetMe", &GetMeRequest{})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, me.User.MonthlyBudget)
}
