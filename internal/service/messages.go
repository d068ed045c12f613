package service

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/limitly/internal/calculator"
	"github.com/mmynk/limitly/internal/models"
)

// Wire messages. Every procedure takes one request struct and returns one
// response struct, encoded by JSONCodec.

type User struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	MonthlyBudget float64 `json:"monthly_budget"`
	CreatedAt     int64   `json:"created_at"`
}

type Member struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type Group struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	BaseCurrency string   `json:"base_currency"`
	InviteCode   string   `json:"invite_code"`
	CreatedBy    string   `json:"created_by"`
	Members      []Member `json:"members"`
	CreatedAt    int64    `json:"created_at"`
	UpdatedAt    int64    `json:"updated_at"`
}

type Share struct {
	UserID     string  `json:"user_id"`
	Amount     float64 `json:"amount"`
	PaidStatus bool    `json:"paid_status"`
}

type Expense struct {
	ID             string  `json:"id"`
	Description    string  `json:"description"`
	Amount         float64 `json:"amount"`
	OriginalAmount float64 `json:"original_amount"`
	Currency       string  `json:"currency"`
	ExchangeRate   float64 `json:"exchange_rate"`
	Category       string  `json:"category"`
	PaidBy         string  `json:"paid_by"`
	Shares         []Share `json:"shares"`
	SplitType      string  `json:"split_type"`
	GroupID        string  `json:"group_id,omitempty"`
	CreatedAt      int64   `json:"created_at"`
	UpdatedAt      int64   `json:"updated_at"`
}

// Split is the tagged split payload: {"mode":"EQUAL","participants":[...]}
// or {"mode":"EXACT","shares":[{"user_id":...,"amount":...}]}.
type Split struct {
	Mode         string       `json:"mode"`
	Participants []string     `json:"participants,omitempty"`
	Shares       []SplitShare `json:"shares,omitempty"`
}

type SplitShare struct {
	UserID string   `json:"user_id"`
	Amount *float64 `json:"amount"`
}

type Payment struct {
	ID         string  `json:"id"`
	GroupID    string  `json:"group_id"`
	FromUserID string  `json:"from_user_id"`
	ToUserID   string  `json:"to_user_id"`
	Amount     float64 `json:"amount"`
	Note       string  `json:"note,omitempty"`
	CreatedBy  string  `json:"created_by"`
	CreatedAt  int64   `json:"created_at"`
}

// Auth

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// User

type GetMeRequest struct{}

type GetMeResponse struct {
	User User `json:"user"`
}

type GetStatsRequest struct{}

type GetStatsResponse struct {
	TotalSpent        float64            `json:"total_spent"`
	CategoryBreakdown map[string]float64 `json:"category_breakdown"`
	MonthlyBudget     float64            `json:"monthly_budget"`
}

type UpdateBudgetRequest struct {
	MonthlyBudget float64 `json:"monthly_budget"`
}

type UpdateBudgetResponse struct {
	User User `json:"user"`
}

// Group

type CreateGroupRequest struct {
	Name         string `json:"name"`
	BaseCurrency string `json:"base_currency,omitempty"`
}

type JoinGroupRequest struct {
	InviteCode string `json:"invite_code"`
}

type GetGroupRequest struct {
	GroupID string `json:"group_id"`
}

type UpdateGroupRequest struct {
	GroupID      string  `json:"group_id"`
	Name         *string `json:"name,omitempty"`
	BaseCurrency *string `json:"base_currency,omitempty"`
}

type DeleteGroupRequest struct {
	GroupID string `json:"group_id"`
}

type DeleteGroupResponse struct{}

type GroupResponse struct {
	Group Group `json:"group"`
}

type ListGroupsRequest struct{}

type ListGroupsResponse struct {
	Groups []Group `json:"groups"`
}

// Expense

type CreateExpenseRequest struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency,omitempty"`
	Category    string  `json:"category,omitempty"`
	GroupID     string  `json:"group_id,omitempty"`
	Split       *Split  `json:"split,omitempty"`
}

type GetExpenseRequest struct {
	ExpenseID string `json:"expense_id"`
}

type UpdateExpenseRequest struct {
	ExpenseID   string   `json:"expense_id"`
	Description *string  `json:"description,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
	Currency    *string  `json:"currency,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Split       *Split   `json:"split,omitempty"`
}

type DeleteExpenseRequest struct {
	ExpenseID string `json:"expense_id"`
}

type DeleteExpenseResponse struct{}

type ExpenseResponse struct {
	Expense Expense `json:"expense"`
	// Degraded is set when the exchange rate could not be fetched and the
	// amount was stored unconverted.
	Degraded bool `json:"degraded"`
}

type ListGroupExpensesRequest struct {
	GroupID string `json:"group_id"`
}

type ListPersonalExpensesRequest struct{}

type ListExpensesResponse struct {
	Expenses []Expense `json:"expenses"`
}

type GetGroupAnalyticsRequest struct {
	GroupID string `json:"group_id"`
}

type TopSpender struct {
	UserID string  `json:"user_id"`
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

type GetGroupAnalyticsResponse struct {
	Total             float64            `json:"total"`
	CategoryBreakdown map[string]float64 `json:"category_breakdown"`
	TopSpender        *TopSpender        `json:"top_spender,omitempty"`
	Currency          string             `json:"currency"`
}

// Settlement

type GetSettlementRequest struct {
	GroupID string `json:"group_id"`
}

type MemberBalance struct {
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	Paid        float64 `json:"paid"`
	Owed        float64 `json:"owed"`
	Net         float64 `json:"net"`
}

type Transfer struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	FromName string  `json:"from_name"`
	ToName   string  `json:"to_name"`
	Amount   float64 `json:"amount"`
}

type GetSettlementResponse struct {
	// Balances is keyed by display name; duplicate names are qualified with a short user ID.
	Balances  map[string]float64 `json:"balances"`
	Members   []MemberBalance    `json:"members"`
	Transfers []Transfer         `json:"transfers"`
	Currency  string             `json:"currency"`
}

type RecordPaymentRequest struct {
	GroupID  string  `json:"group_id"`
	ToUserID string  `json:"to_user_id"`
	Amount   float64 `json:"amount"`
	Note     string  `json:"note,omitempty"`
}

type PaymentResponse struct {
	Payment Payment `json:"payment"`
}

type ListPaymentsRequest struct {
	GroupID string `json:"group_id"`
}

type ListPaymentsResponse struct {
	Payments []Payment `json:"payments"`
}

type DeletePaymentRequest struct {
	PaymentID string `json:"payment_id"`
}

type DeletePaymentResponse struct{}

// Insight

type GetInsightsRequest struct{}

type GetInsightsResponse struct {
	Insights []string `json:"insights"`
	Degraded bool     `json:"degraded"`
}

type GetBudgetAnalysisRequest struct{}

type GetBudgetAnalysisResponse struct {
	Budget     float64  `json:"budget"`
	TotalSpent float64  `json:"total_spent"`
	Analysis   string   `json:"analysis"`
	Tips       []string `json:"tips"`
	Degraded   bool     `json:"degraded"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Response string `json:"response"`
	Degraded bool   `json:"degraded"`
}

// Conversions

func toUser(u *models.User) User {
	return User{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		MonthlyBudget: u.MonthlyBudget,
		CreatedAt:     u.CreatedAt,
	}
}

func toGroup(g *models.Group, users map[string]*models.User) Group {
	members := make([]Member, len(g.Members))
	for i, id := range g.Members {
		members[i] = Member{UserID: id}
		if u, ok := users[id]; ok {
			members[i].Name = u.Name
		}
	}
	return Group{
		ID:           g.ID,
		Name:         g.Name,
		BaseCurrency: g.BaseCurrency,
		InviteCode:   g.InviteCode,
		CreatedBy:    g.CreatedBy,
		Members:      members,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
}

func toExpense(e *models.Expense) Expense {
	shares := make([]Share, len(e.Shares))
	for i, s := range e.Shares {
		shares[i] = Share{UserID: s.UserID, Amount: s.Amount, PaidStatus: s.PaidStatus}
	}
	return Expense{
		ID:             e.ID,
		Description:    e.Description,
		Amount:         e.Amount,
		OriginalAmount: e.OriginalAmount,
		Currency:       e.Currency,
		ExchangeRate:   e.ExchangeRate,
		Category:       string(e.Category),
		PaidBy:         e.PaidBy,
		Shares:         shares,
		SplitType:      string(e.SplitType),
		GroupID:        e.GroupID,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func toExpenses(expenses []*models.Expense) []Expense {
	out := make([]Expense, len(expenses))
	for i, e := range expenses {
		out[i] = toExpense(e)
	}
	return out
}

func toPayment(p *models.Payment) Payment {
	return Payment{
		ID:         p.ID,
		GroupID:    p.GroupID,
		FromUserID: p.FromUserID,
		ToUserID:   p.ToUserID,
		Amount:     p.Amount,
		Note:       p.Note,
		CreatedBy:  p.CreatedBy,
		CreatedAt:  p.CreatedAt,
	}
}

// toSplitInput converts the wire payload. Mode parsing happens here; the
// calculator rejects payloads that mix participants and shares.
func toSplitInput(s *Split) (calculator.SplitInput, error) {
	mode, err := models.ParseSplitType(s.Mode)
	if err != nil {
		return calculator.SplitInput{}, invalidSplitErr(err)
	}
	in := calculator.SplitInput{Mode: mode, Participants: s.Participants}
	for _, sh := range s.Shares {
		in.Shares = append(in.Shares, calculator.ShareInput{UserID: sh.UserID, Amount: sh.Amount})
	}
	return in, nil
}

// round2 rounds a money value for presentation.
func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
