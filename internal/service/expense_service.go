package service

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mmynk/limitly/internal/apperr"
	"github.com/mmynk/limitly/internal/calculator"
	"github.com/mmynk/limitly/internal/currency"
	"github.com/mmynk/limitly/internal/metrics"
	"github.com/mmynk/limitly/internal/models"
	"github.com/mmynk/limitly/internal/storage"
)

// ExpenseService implements the Connect ExpenseService.
type ExpenseService struct {
	store           storage.Store
	normalizer      *currency.Normalizer
	defaultCurrency string
	metrics         *metrics.Metrics
}

// NewExpenseService creates an expense service. Personal expenses are kept in
// defaultCurrency; m may be nil.
func NewExpenseService(store storage.Store, normalizer *currency.Normalizer, defaultCurrency string, m *metrics.Metrics) *ExpenseService {
	return &ExpenseService{
		store:           store,
		normalizer:      normalizer,
		defaultCurrency: defaultCurrency,
		metrics:         m,
	}
}

// Handler returns the path prefix and handler serving ExpenseService.
func (s *ExpenseService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	p := newProcedureSet(ExpenseServiceName, opts)
	handle(p, "CreateExpense", s.CreateExpense)
	handle(p, "GetExpense", s.GetExpense)
	handle(p, "ListGroupExpenses", s.ListGroupExpenses)
	handle(p, "ListPersonalExpenses", s.ListPersonalExpenses)
	handle(p, "UpdateExpense", s.UpdateExpense)
	handle(p, "DeleteExpense", s.DeleteExpense)
	handle(p, "GetGroupAnalytics", s.GetGroupAnalytics)
	return p.mount()
}

// expenseScope is where an expense lives: a group, or the payer's personal ledger.
type expenseScope struct {
	group *models.Group
	payer string
	base  string
}

func (sc expenseScope) defaultSplit() calculator.SplitInput {
	if sc.group == nil {
		return calculator.Equal(sc.payer)
	}
	return calculator.Equal(sc.group.Members...)
}

// checkDebtors rejects shares owed by anyone outside the scope.
func (sc expenseScope) checkDebtors(shares []models.Share) error {
	for _, sh := range shares {
		if sc.group == nil {
			if sh.UserID != sc.payer {
				return apperr.Validation("a personal expense can only be split to the payer").
					WithReason(apperr.ReasonInvalidSplit)
			}
			continue
		}
		if !sc.group.HasMember(sh.UserID) {
			return apperr.Validation("user %s is not a member of this group", sh.UserID).
				WithReason(apperr.ReasonNotGroupMember)
		}
	}
	return nil
}

// scopeOf resolves the group of an expense, or the personal scope when groupID is empty.
func (s *ExpenseService) scopeOf(ctx context.Context, groupID, userID string) (expenseScope, error) {
	if strings.TrimSpace(groupID) == "" {
		return expenseScope{payer: userID, base: s.defaultCurrency}, nil
	}
	group, err := memberGroup(ctx, s.store, groupID, userID)
	if err != nil {
		return expenseScope{}, err
	}
	return expenseScope{group: group, payer: userID, base: group.BaseCurrency}, nil
}

func (s *ExpenseService) normalize(ctx context.Context, amount float64, from, to string) currency.Conversion {
	conv := s.normalizer.Normalize(ctx, amount, from, to)
	if conv.Degraded {
		s.metrics.Degraded("exchange_rates")
	}
	return conv
}

// toBase converts shares computed on the entered amount into the base
// currency. EQUAL shares are re-divided; EXACT shares keep their proportions
// and are scaled to sum to the converted amount.
func toBase(mode models.SplitType, shares []models.Share, conv currency.Conversion) ([]models.Share, error) {
	if conv.Rate == 1 {
		return shares, nil
	}
	if mode == models.SplitEqual {
		participants := make([]string, len(shares))
		for i, sh := range shares {
			participants[i] = sh.UserID
		}
		return calculator.ComputeSplit(conv.Amount, calculator.Equal(participants...))
	}
	scaled := calculator.ScaleShares(shares, conv.Amount)
	if err := calculator.ValidateShares(conv.Amount, scaled); err != nil {
		return nil, err
	}
	return scaled, nil
}

func validAmount(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return apperr.Validation("amount must be a positive number")
	}
	return nil
}

// CreateExpense records an expense paid by the caller.
func (s *ExpenseService) CreateExpense(ctx context.Context, req *connect.Request[CreateExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	userID := callerID(ctx)
	slog.Info("CreateExpense request received",
		"user_id", userID,
		"group_id", req.Msg.GroupID,
		"amount", req.Msg.Amount,
		"currency", req.Msg.Currency,
	)

	description := strings.TrimSpace(req.Msg.Description)
	if description == "" {
		return nil, toConnectError(apperr.Validation("description is required"))
	}
	if err := validAmount(req.Msg.Amount); err != nil {
		return nil, toConnectError(err)
	}
	category, err := parseCategory(req.Msg.Category)
	if err != nil {
		return nil, toConnectError(err)
	}

	scope, err := s.scopeOf(ctx, req.Msg.GroupID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}
	inputCurrency, err := parseCurrency(req.Msg.Currency, scope.base)
	if err != nil {
		return nil, toConnectError(err)
	}

	split := scope.defaultSplit()
	if req.Msg.Split != nil {
		if split, err = toSplitInput(req.Msg.Split); err != nil {
			return nil, toConnectError(err)
		}
	}

	shares, err := calculator.ComputeSplit(req.Msg.Amount, split)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := scope.checkDebtors(shares); err != nil {
		return nil, toConnectError(err)
	}

	conv := s.normalize(ctx, req.Msg.Amount, inputCurrency, scope.base)
	if shares, err = toBase(split.Mode, shares, conv); err != nil {
		return nil, toConnectError(err)
	}

	now := time.Now().Unix()
	expense := &models.Expense{
		ID:             uuid.New().String(),
		Description:    description,
		Amount:         conv.Amount,
		OriginalAmount: conv.Original,
		Currency:       conv.Currency,
		ExchangeRate:   conv.Rate,
		Category:       category,
		PaidBy:         userID,
		Shares:         shares,
		SplitType:      split.Mode,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if scope.group != nil {
		expense.GroupID = scope.group.ID
	}

	if err := s.store.CreateExpense(ctx, expense); err != nil {
		slog.Error("CreateExpense failed", "error", err)
		return nil, toConnectError(apperr.Internal(err))
	}

	slog.Info("Expense created",
		"expense_id", expense.ID,
		"amount", expense.Amount,
		"rate", expense.ExchangeRate,
		"degraded", conv.Degraded,
	)
	return connect.NewResponse(&ExpenseResponse{Expense: toExpense(expense), Degraded: conv.Degraded}), nil
}

// GetExpense returns an expense visible to the caller: any member may read a
// group expense, only the payer a personal one.
func (s *ExpenseService) GetExpense(ctx context.Context, req *connect.Request[GetExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	userID := callerID(ctx)
	expense, err := s.loadExpense(ctx, req.Msg.ExpenseID)
	if err != nil {
		return nil, toConnectError(err)
	}

	if expense.IsPersonal() {
		if expense.PaidBy != userID {
			return nil, toConnectError(apperr.Forbidden("not your expense"))
		}
	} else if _, err := memberGroup(ctx, s.store, expense.GroupID, userID); err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ExpenseResponse{Expense: toExpense(expense)}), nil
}

// ListGroupExpenses returns a group's expenses, newest first.
func (s *ExpenseService) ListGroupExpenses(ctx context.Context, req *connect.Request[ListGroupExpensesRequest]) (*connect.Response[ListExpensesResponse], error) {
	group, err := memberGroup(ctx, s.store, req.Msg.GroupID, callerID(ctx))
	if err != nil {
		return nil, toConnectError(err)
	}

	expenses, err := s.store.ListExpensesByGroup(ctx, group.ID, true)
	if err != nil {
		return nil, toConnectError(apperr.Internal(err))
	}
	return connect.NewResponse(&ListExpensesResponse{Expenses: toExpenses(expenses)}), nil
}

// ListPersonalExpenses returns the caller's group-less expenses, newest first.
func (s *ExpenseService) ListPersonalExpenses(ctx context.Context, req *connect.Request[ListPersonalExpensesRequest]) (*connect.Response[ListExpensesResponse], error) {
	expenses, err := s.store.ListPersonalExpenses(ctx, callerID(ctx))
	if err != nil {
		return nil, toConnectError(apperr.Internal(err))
	}
	return connect.NewResponse(&ListExpensesResponse{Expenses: toExpenses(expenses)}), nil
}

// UpdateExpense edits an expense. Only the payer may edit it.
//
// Shares follow the edit: a new split is validated like on create; an
// amount or currency change without one re-divides an EQUAL split over the
// existing participants and is rejected for EXACT (SPLIT_REQUIRED). An
// unchanged currency keeps the stored exchange rate.
func (s *ExpenseService) UpdateExpense(ctx context.Context, req *connect.Request[UpdateExpenseRequest]) (*connect.Response[ExpenseResponse], error) {
	userID := callerID(ctx)
	slog.Info("UpdateExpense request received", "expense_id", req.Msg.ExpenseID, "user_id", userID)

	expense, err := s.ownedExpense(ctx, req.Msg.ExpenseID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	if req.Msg.Description != nil {
		description := strings.TrimSpace(*req.Msg.Description)
		if description == "" {
			return nil, toConnectError(apperr.Validation("description cannot be empty"))
		}
		expense.Description = description
	}
	if req.Msg.Category != nil {
		if expense.Category, err = parseCategory(*req.Msg.Category); err != nil {
			return nil, toConnectError(err)
		}
	}

	scope, err := s.scopeOf(ctx, expense.GroupID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	original, inputCurrency := expense.OriginalAmount, expense.Currency
	if req.Msg.Amount != nil {
		if err := validAmount(*req.Msg.Amount); err != nil {
			return nil, toConnectError(err)
		}
		original = *req.Msg.Amount
	}
	if req.Msg.Currency != nil {
		if inputCurrency, err = parseCurrency(*req.Msg.Currency, expense.Currency); err != nil {
			return nil, toConnectError(err)
		}
	}
	currencyChanged := inputCurrency != expense.Currency
	repriced := currencyChanged || original != expense.OriginalAmount

	var degraded bool
	switch {
	case req.Msg.Split != nil:
		split, err := toSplitInput(req.Msg.Split)
		if err != nil {
			return nil, toConnectError(err)
		}
		shares, err := calculator.ComputeSplit(original, split)
		if err != nil {
			return nil, toConnectError(err)
		}
		if err := scope.checkDebtors(shares); err != nil {
			return nil, toConnectError(err)
		}
		conv := s.reprice(ctx, expense, original, inputCurrency, scope.base, currencyChanged)
		if shares, err = toBase(split.Mode, shares, conv); err != nil {
			return nil, toConnectError(err)
		}
		applyConversion(expense, conv)
		expense.Shares = shares
		expense.SplitType = split.Mode
		degraded = conv.Degraded

	case repriced:
		if expense.SplitType == models.SplitExact {
			_, err := calculator.RecomputeForAmount(expense.SplitType, expense.Shares, original)
			return nil, toConnectError(err)
		}
		conv := s.reprice(ctx, expense, original, inputCurrency, scope.base, currencyChanged)
		shares, err := calculator.RecomputeForAmount(expense.SplitType, expense.Shares, conv.Amount)
		if err != nil {
			return nil, toConnectError(err)
		}
		applyConversion(expense, conv)
		expense.Shares = shares
		degraded = conv.Degraded
	}

	if err := s.store.UpdateExpense(ctx, expense); err != nil {
		slog.Error("UpdateExpense failed", "expense_id", expense.ID, "error", err)
		return nil, toConnectError(storeErr(err, "expense"))
	}

	slog.Info("Expense updated", "expense_id", expense.ID, "amount", expense.Amount)
	return connect.NewResponse(&ExpenseResponse{Expense: toExpense(expense), Degraded: degraded}), nil
}

// reprice converts a new entered amount. Without a currency change the
// stored rate is reused and no lookup happens.
func (s *ExpenseService) reprice(ctx context.Context, expense *models.Expense, original float64, inputCurrency, base string, currencyChanged bool) currency.Conversion {
	if currencyChanged {
		return s.normalize(ctx, original, inputCurrency, base)
	}
	return currency.Conversion{
		Original: original,
		Currency: inputCurrency,
		Amount:   original * expense.ExchangeRate,
		Rate:     expense.ExchangeRate,
	}
}

func applyConversion(expense *models.Expense, conv currency.Conversion) {
	expense.OriginalAmount = conv.Original
	expense.Currency = conv.Currency
	expense.ExchangeRate = conv.Rate
	expense.Amount = conv.Amount
}

// DeleteExpense removes an expense. Only the payer may delete it.
func (s *ExpenseService) DeleteExpense(ctx context.Context, req *connect.Request[DeleteExpenseRequest]) (*connect.Response[DeleteExpenseResponse], error) {
	userID := callerID(ctx)
	slog.Info("DeleteExpense request received", "expense_id", req.Msg.ExpenseID, "user_id", userID)

	expense, err := s.ownedExpense(ctx, req.Msg.ExpenseID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if err := s.store.DeleteExpense(ctx, expense.ID); err != nil {
		return nil, toConnectError(storeErr(err, "expense"))
	}

	slog.Info("Expense deleted", "expense_id", expense.ID)
	return connect.NewResponse(&DeleteExpenseResponse{}), nil
}

// GetGroupAnalytics summarizes a group's spending in its base currency.
func (s *ExpenseService) GetGroupAnalytics(ctx context.Context, req *connect.Request[GetGroupAnalyticsRequest]) (*connect.Response[GetGroupAnalyticsResponse], error) {
	group, err := memberGroup(ctx, s.store, req.Msg.GroupID, callerID(ctx))
	if err != nil {
		return nil, toConnectError(err)
	}

	expenses, err := s.store.ListExpensesByGroup(ctx, group.ID, false)
	if err != nil {
		return nil, toConnectError(apperr.Internal(err))
	}

	var total float64
	breakdown := make(map[string]float64)
	paid := make(map[string]float64)
	for _, e := range expenses {
		total += e.Amount
		breakdown[string(e.Category)] += e.Amount
		paid[e.PaidBy] += e.Amount
	}
	for k, v := range breakdown {
		breakdown[k] = round2(v)
	}

	resp := &GetGroupAnalyticsResponse{
		Total:             round2(total),
		CategoryBreakdown: breakdown,
		Currency:          group.BaseCurrency,
	}

	if top := topSpender(group.Members, paid); top != "" {
		users, err := usersOf(ctx, s.store, []string{top})
		if err != nil {
			return nil, toConnectError(err)
		}
		resp.TopSpender = &TopSpender{UserID: top, Amount: round2(paid[top])}
		if u, ok := users[top]; ok {
			resp.TopSpender.Name = u.Name
		}
	}

	return connect.NewResponse(resp), nil
}

// topSpender returns the member who paid the most, earliest member on ties,
// or "" when nobody has paid anything.
func topSpender(members []string, paid map[string]float64) string {
	ranked := make([]string, 0, len(members))
	for _, m := range members {
		if paid[m] > 0 {
			ranked = append(ranked, m)
		}
	}
	if len(ranked) == 0 {
		return ""
	}
	sort.SliceStable(ranked, func(i, j int) bool { return paid[ranked[i]] > paid[ranked[j]] })
	return ranked[0]
}

func (s *ExpenseService) loadExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expenseID, err := requireID(expenseID, "expense_id")
	if err != nil {
		return nil, err
	}
	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, storeErr(err, "expense")
	}
	return expense, nil
}

// ownedExpense loads an expense the caller must have paid.
func (s *ExpenseService) ownedExpense(ctx context.Context, expenseID, userID string) (*models.Expense, error) {
	expense, err := s.loadExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if expense.PaidBy != userID {
		return nil, apperr.Forbidden("only the payer can modify this expense")
	}
	return expense, nil
}
