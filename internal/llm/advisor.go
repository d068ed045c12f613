package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Fallback texts returned when the model cannot be reached or answers garbage.
const (
	FallbackInsight      = "Unable to generate insights at this time."
	UnparsedInsight      = "Unable to parse insights."
	FallbackAnalysis     = "Unable to analyze budget."
	FallbackTip          = "Track your expenses carefully."
	FallbackChatResponse = "I'm having trouble thinking right now. Please try again."
)

const insightSystemPrompt = `Analyze the provided spending data and return a JSON object with a key "insights" containing an array of 3 strings.
Analyze transaction patterns and generate personalized savings recommendations.
Each string should be a concise, actionable saving tip or insight based on their actual spending habits.
Example Output: { "insights": ["Consider cooking on weekends to save on dining out.", "You can save ~10% by booking travel in advance.", "Review unused subscriptions to cut monthly costs."] }`

const chatSystemPrompt = `You are Limitly AI, a helpful and friendly financial assistant.
Use the provided financial context to answer user questions.
Return a JSON object with a single key "response".
Example Output: { "response": "Your helpful message here." }`

// SpendItem is one expense as seen from a single user: their share, not the
// expense total.
type SpendItem struct {
	Description string `json:"desc,omitempty"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Date        string `json:"date"`
	Group       string `json:"group,omitempty"`
}

// BudgetAdvice is the model's read on a monthly budget.
type BudgetAdvice struct {
	Analysis string   `json:"analysis"`
	Tips     []string `json:"tips"`
}

// Advisor wraps a Completer with prompts and fallbacks. Every method returns a
// usable answer; the bool reports whether it is a fallback.
type Advisor struct {
	llm Completer
}

// NewAdvisor creates an advisor over the given completer.
func NewAdvisor(llm Completer) *Advisor {
	return &Advisor{llm: llm}
}

// Insights returns up to a handful of saving tips for the user's spending.
func (a *Advisor) Insights(ctx context.Context, items []SpendItem) ([]string, bool) {
	data, _ := json.Marshal(items)
	text, err := a.llm.Complete(ctx, insightSystemPrompt, "Data: "+string(data), true)
	if err != nil {
		slog.Warn("Insight generation degraded", "upstream", "llm", "error", err)
		return []string{FallbackInsight}, true
	}

	var out struct {
		Insights []string `json:"insights"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		slog.Warn("Insight response not JSON", "upstream", "llm", "error", err)
		return []string{FallbackInsight}, true
	}
	if len(out.Insights) == 0 {
		return []string{UnparsedInsight}, true
	}
	return out.Insights, false
}

// BudgetAdvice analyzes spending against a monthly budget. Money values in the
// prompt are rendered in currencyCode.
func (a *Advisor) BudgetAdvice(ctx context.Context, budget, spent float64, breakdown map[string]float64, currencyCode string, format func(float64) string) (BudgetAdvice, bool) {
	fallback := BudgetAdvice{Analysis: FallbackAnalysis, Tips: []string{FallbackTip}}

	system := fmt.Sprintf(`You are a financial advisor.
Analyze the budget status and provide a JSON object with:
1. "analysis": A short string (2 sentences).
2. "tips": An array of 2 strings (specific tips).

IMPORTANT: Always use the '%s' symbol or code when mentioning money values. Do NOT use '$' unless the currency is USD.
Example Output: { "analysis": "...", "tips": ["...", "..."] }`, currencyCode)

	rendered := make(map[string]string, len(breakdown))
	for cat, v := range breakdown {
		rendered[cat] = format(v)
	}
	cats, _ := json.Marshal(rendered)

	var user strings.Builder
	fmt.Fprintf(&user, "Monthly Budget: %s\n", format(budget))
	fmt.Fprintf(&user, "Total Spent So Far: %s\n", format(spent))
	fmt.Fprintf(&user, "Category Breakdown: %s\n", cats)
	fmt.Fprintf(&user, "Currency: %s\n", currencyCode)

	text, err := a.llm.Complete(ctx, system, user.String(), true)
	if err != nil {
		slog.Warn("Budget analysis degraded", "upstream", "llm", "error", err)
		return fallback, true
	}

	var out BudgetAdvice
	if err := json.Unmarshal([]byte(text), &out); err != nil || out.Analysis == "" {
		slog.Warn("Budget response unusable", "upstream", "llm", "error", err)
		return fallback, true
	}
	if out.Tips == nil {
		out.Tips = []string{}
	}
	return out, false
}

// Chat answers a free-form question with recent expenses as context.
func (a *Advisor) Chat(ctx context.Context, msg string, recent []SpendItem) (string, bool) {
	data, _ := json.Marshal(recent)
	user := fmt.Sprintf("Context (Expenses): %s\nUser Message: %q", data, msg)

	text, err := a.llm.Complete(ctx, chatSystemPrompt, user, true)
	if err != nil {
		slog.Warn("Chat degraded", "upstream", "llm", "error", err)
		return FallbackChatResponse, true
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil || out.Response == "" {
		slog.Warn("Chat response unusable", "upstream", "llm", "error", err)
		return FallbackChatResponse, true
	}
	return out.Response, false
}
