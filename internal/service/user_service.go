package service

import (
	"context"
	"log/slog"
	"math"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/limitly/internal/apperr"
	"github.com/mmynk/limitly/internal/models"
	"github.com/mmynk/limitly/internal/storage"
)

// UserService serves the caller's own profile, spending stats and budget.
type UserService struct {
	store storage.Store
}

// NewUserService creates a new UserService with the given storage backend.
func NewUserService(store storage.Store) *UserService {
	return &UserService{store: store}
}

// Handler returns the path prefix and handler serving UserService.
func (s *UserService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	p := newProcedureSet(UserServiceName, opts)
	handle(p, "GetMe", s.GetMe)
	handle(p, "GetStats", s.GetStats)
	handle(p, "UpdateBudget", s.UpdateBudget)
	return p.mount()
}

// GetMe returns the authenticated user.
func (s *UserService) GetMe(ctx context.Context, req *connect.Request[GetMeRequest]) (*connect.Response[GetMeResponse], error) {
	user, err := s.store.GetUserByID(ctx, callerID(ctx))
	if err != nil {
		return nil, toConnectError(storeErr(err, "user"))
	}
	return connect.NewResponse(&GetMeResponse{User: toUser(user)}), nil
}

// GetStats totals the caller's shares across every expense they take part in.
func (s *UserService) GetStats(ctx context.Context, req *connect.Request[GetStatsRequest]) (*connect.Response[GetStatsResponse], error) {
	userID := callerID(ctx)
	slog.Info("GetStats request received", "user_id", userID)

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, toConnectError(storeErr(err, "user"))
	}

	expenses, err := s.store.ListExpensesByParticipant(ctx, userID, 0)
	if err != nil {
		return nil, toConnectError(apperr.Internal(err))
	}

	total, breakdown := spendingOf(userID, expenses)
	return connect.NewResponse(&GetStatsResponse{
		TotalSpent:        round2(total),
		CategoryBreakdown: breakdown,
		MonthlyBudget:     user.MonthlyBudget,
	}), nil
}

// UpdateBudget sets the caller's monthly budget.
func (s *UserService) UpdateBudget(ctx context.Context, req *connect.Request[UpdateBudgetRequest]) (*connect.Response[UpdateBudgetResponse], error) {
	userID := callerID(ctx)
	budget := req.Msg.MonthlyBudget
	if budget < 0 || math.IsNaN(budget) || math.IsInf(budget, 0) {
		return nil, toConnectError(apperr.Validation("monthly_budget must be zero or positive"))
	}

	if err := s.store.UpdateUserBudget(ctx, userID, budget); err != nil {
		return nil, toConnectError(storeErr(err, "user"))
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, toConnectError(storeErr(err, "user"))
	}

	slog.Info("Budget updated", "user_id", userID, "monthly_budget", budget)
	return connect.NewResponse(&UpdateBudgetResponse{User: toUser(user)}), nil
}

// spendingOf sums userID's shares, overall and per category.
func spendingOf(userID string, expenses []*models.Expense) (float64, map[string]float64) {
	var total float64
	breakdown := make(map[string]float64)
	for _, e := range expenses {
		share, ok := e.ShareOf(userID)
		if !ok {
			continue
		}
		total += share
		breakdown[string(e.Category)] += share
	}
	for k, v := range breakdown {
		breakdown[k] = round2(v)
	}
	return total, breakdown
}
