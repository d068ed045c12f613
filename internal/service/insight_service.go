package service

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/limitly/internal/apperr"
	"github.com/mmynk/limitly/internal/llm"
	"github.com/mmynk/limitly/internal/metrics"
	"github.com/mmynk/limitly/internal/models"
	"github.com/mmynk/limitly/internal/storage"
)

const (
	noExpensesInsight = "No expenses found to analyze."
	noBudgetAnalysis  = "Please set a monthly budget to get analysis."
	noBudgetTip       = "Go to profile to set a budget."

	chatWindow = 30 * 24 * time.Hour
)

// InsightService answers AI questions about the caller's spending. Every
// procedure degrades to a placeholder answer instead of failing when the
// model is unavailable.
type InsightService struct {
	store           storage.Store
	advisor         *llm.Advisor
	defaultCurrency string
	metrics         *metrics.Metrics
	now             func() time.Time
}

// NewInsightService creates an insight service; m may be nil.
func NewInsightService(store storage.Store, advisor *llm.Advisor, defaultCurrency string, m *metrics.Metrics) *InsightService {
	return &InsightService{
		store:           store,
		advisor:         advisor,
		defaultCurrency: defaultCurrency,
		metrics:         m,
		now:             time.Now,
	}
}

// Handler returns the path prefix and handler serving InsightService.
func (s *InsightService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	p := newProcedureSet(InsightServiceName, opts)
	handle(p, "GetInsights", s.GetInsights)
	handle(p, "GetBudgetAnalysis", s.GetBudgetAnalysis)
	handle(p, "Chat", s.Chat)
	return p.mount()
}

// GetInsights returns saving tips drawn from all of the caller's expenses.
func (s *InsightService) GetInsights(ctx context.Context, req *connect.Request[GetInsightsRequest]) (*connect.Response[GetInsightsResponse], error) {
	userID := callerID(ctx)
	slog.Info("GetInsights request received", "user_id", userID)

	expenses, err := s.store.ListExpensesByParticipant(ctx, userID, 0)
	if err != nil {
		return nil, toConnectError(apperr.Internal(err))
	}
	if len(expenses) == 0 {
		return connect.NewResponse(&GetInsightsResponse{Insights: []string{noExpensesInsight}}), nil
	}

	items, err := s.spendItems(ctx, userID, expenses)
	if err != nil {
		return nil, toConnectError(err)
	}

	insights, degraded := s.advisor.Insights(ctx, items)
	if degraded {
		s.metrics.Degraded("llm")
	}
	return connect.NewResponse(&GetInsightsResponse{Insights: insights, Degraded: degraded}), nil
}

// GetBudgetAnalysis compares the caller's spending this month against their
// monthly budget.
func (s *InsightService) GetBudgetAnalysis(ctx context.Context, req *connect.Request[GetBudgetAnalysisRequest]) (*connect.Response[GetBudgetAnalysisResponse], error) {
	userID := callerID(ctx)
	slog.Info("GetBudgetAnalysis request received", "user_id", userID)

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, toConnectError(storeErr(err, "user"))
	}

	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	expenses, err := s.store.ListExpensesByParticipant(ctx, userID, monthStart.Unix())
	if err != nil {
		return nil, toConnectError(apperr.Internal(err))
	}
	spent, breakdown := spendingOf(userID, expenses)

	resp := &GetBudgetAnalysisResponse{
		Budget:     user.MonthlyBudget,
		TotalSpent: round2(spent),
	}
	if user.MonthlyBudget == 0 {
		resp.Analysis = noBudgetAnalysis
		resp.Tips = []string{noBudgetTip}
		return connect.NewResponse(resp), nil
	}

	code := primaryCurrency(expenses, s.defaultCurrency)
	format := func(v float64) string { return models.FormatAmount(code, v) }
	advice, degraded := s.advisor.BudgetAdvice(ctx, user.MonthlyBudget, spent, breakdown, code, format)
	if degraded {
		s.metrics.Degraded("llm")
	}

	resp.Analysis = advice.Analysis
	resp.Tips = advice.Tips
	resp.Degraded = degraded
	return connect.NewResponse(resp), nil
}

// Chat answers a free-form question using the caller's last 30 days of expenses.
func (s *InsightService) Chat(ctx context.Context, req *connect.Request[ChatRequest]) (*connect.Response[ChatResponse], error) {
	userID := callerID(ctx)
	message := strings.TrimSpace(req.Msg.Message)
	if message == "" {
		return nil, toConnectError(apperr.Validation("message is required"))
	}
	slog.Info("Chat request received", "user_id", userID, "length", len(message))

	since := s.now().Add(-chatWindow).Unix()
	expenses, err := s.store.ListExpensesByParticipant(ctx, userID, since)
	if err != nil {
		return nil, toConnectError(apperr.Internal(err))
	}
	items, err := s.spendItems(ctx, userID, expenses)
	if err != nil {
		return nil, toConnectError(err)
	}

	answer, degraded := s.advisor.Chat(ctx, message, items)
	if degraded {
		s.metrics.Degraded("llm")
	}
	return connect.NewResponse(&ChatResponse{Response: answer, Degraded: degraded}), nil
}

// spendItems renders expenses as the caller sees them: their own share, with
// the group name when there is one.
func (s *InsightService) spendItems(ctx context.Context, userID string, expenses []*models.Expense) ([]llm.SpendItem, error) {
	groups, err := s.store.ListGroupsByMember(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	groupNames := make(map[string]string, len(groups))
	for _, g := range groups {
		groupNames[g.ID] = g.Name
	}

	items := make([]llm.SpendItem, 0, len(expenses))
	for _, e := range expenses {
		share, ok := e.ShareOf(userID)
		if !ok {
			continue
		}
		// Shown in the currency the payer entered.
		if e.ExchangeRate > 0 {
			share /= e.ExchangeRate
		}
		items = append(items, llm.SpendItem{
			Description: e.Description,
			Amount:      models.FormatAmount(e.Currency, share),
			Category:    string(e.Category),
			Date:        time.Unix(e.CreatedAt, 0).UTC().Format(time.DateOnly),
			Group:       groupNames[e.GroupID],
		})
	}
	return items, nil
}

// primaryCurrency is the currency most expenses were entered in, ties broken
// alphabetically.
func primaryCurrency(expenses []*models.Expense, fallback string) string {
	counts := make(map[string]int)
	for _, e := range expenses {
		counts[e.Currency]++
	}
	if len(counts) == 0 {
		return fallback
	}
	codes := make([]string, 0, len(counts))
	for c := range counts {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool {
		if counts[codes[i]] != counts[codes[j]] {
			return counts[codes[i]] > counts[codes[j]]
		}
		return codes[i] < codes[j]
	})
	return codes[0]
}
