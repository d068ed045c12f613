package calculator

import (
	"fmt"
	"sort"

	"github.com/mmynk/limitly/internal/models"
)

// settleEpsilon hides floating point noise when matching debts.
const settleEpsilon = 0.01

// MemberBalance represents the balance information for one group member.
type MemberBalance struct {
	UserID     string
	NetBalance float64 // Positive = owed money, Negative = owes money
	TotalPaid  float64 // Expense amounts paid plus payments sent
	TotalOwed  float64 // Shares owed plus payments received
}

// DebtEdge represents a suggested transfer from one member to another.
type DebtEdge struct {
	From   string // Member who owes
	To     string // Member who is owed
	Amount float64
}

// PaymentForBalance represents a recorded payment with the minimal information
// needed for balance calculations.
type PaymentForBalance struct {
	FromUserID string // Who paid (debtor settling up)
	ToUserID   string // Who received (creditor being paid)
	Amount     float64
}

// Ledger accumulates balances keyed by user ID.
type Ledger struct {
	order    []string
	balances map[string]*MemberBalance
}

// NewLedger creates a ledger with a zero balance for each of members.
func NewLedger(members ...string) *Ledger {
	l := &Ledger{balances: make(map[string]*MemberBalance)}
	for _, m := range members {
		l.member(m)
	}
	return l
}

func (l *Ledger) member(id string) *MemberBalance {
	if b, ok := l.balances[id]; ok {
		return b
	}
	b := &MemberBalance{UserID: id}
	l.balances[id] = b
	l.order = append(l.order, id)
	return b
}

// AddExpense folds one expense: every debtor is debited their share, then the
// payer is credited the full base-currency amount.
func (l *Ledger) AddExpense(e *models.Expense) {
	for _, s := range e.Shares {
		b := l.member(s.UserID)
		b.NetBalance -= s.Amount
		b.TotalOwed += s.Amount
	}
	payer := l.member(e.PaidBy)
	payer.NetBalance += e.Amount
	payer.TotalPaid += e.Amount
}

// AddPayment folds a settle-up payment: the sender's balance improves, the
// receiver's decreases by the same amount.
func (l *Ledger) AddPayment(p PaymentForBalance) {
	from := l.member(p.FromUserID)
	from.NetBalance += p.Amount
	from.TotalPaid += p.Amount

	to := l.member(p.ToUserID)
	to.NetBalance -= p.Amount
	to.TotalOwed += p.Amount
}

// Net returns the net balance per user ID.
func (l *Ledger) Net() map[string]float64 {
	out := make(map[string]float64, len(l.balances))
	for id, b := range l.balances {
		out[id] = b.NetBalance
	}
	return out
}

// Members returns member balances in first-seen order.
func (l *Ledger) Members() []MemberBalance {
	out := make([]MemberBalance, len(l.order))
	for i, id := range l.order {
		out[i] = *l.balances[id]
	}
	return out
}

// CalculateGroupBalances folds a group's expenses, then its payments, into
// per-member balances and a simplified set of transfers.
//
// Algorithm:
//   - For each expense: each debtor owes their share, the payer is credited +amount
//   - For each payment: sender credited, receiver debited
//   - Debt matrix: simplified using greedy matching, largest amounts first
//
// The sum of all net balances is zero within floating point error because each
// expense's shares sum to its amount.
func CalculateGroupBalances(members []string, expenses []*models.Expense, payments []PaymentForBalance) ([]MemberBalance, []DebtEdge) {
	ledger := NewLedger(members...)
	for _, e := range expenses {
		ledger.AddExpense(e)
	}
	for _, p := range payments {
		ledger.AddPayment(p)
	}

	balances := ledger.Members()
	return balances, SimplifyDebts(balances)
}

// SimplifyDebts matches debtors with creditors to minimize the number of transfers.
func SimplifyDebts(balances []MemberBalance) []DebtEdge {
	type party struct {
		id     string
		amount float64
	}

	var creditors, debtors []party
	for _, b := range balances {
		if b.NetBalance > settleEpsilon {
			creditors = append(creditors, party{b.UserID, b.NetBalance})
		} else if b.NetBalance < -settleEpsilon {
			debtors = append(debtors, party{b.UserID, -b.NetBalance}) // Make positive
		}
	}

	byAmount := func(ps []party) func(i, j int) bool {
		return func(i, j int) bool {
			if ps[i].amount != ps[j].amount {
				return ps[i].amount > ps[j].amount
			}
			return ps[i].id < ps[j].id
		}
	}
	sort.Slice(creditors, byAmount(creditors))
	sort.Slice(debtors, byAmount(debtors))

	var edges []DebtEdge
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		// Amount to settle is minimum of what debtor owes and creditor is owed
		amount := debtors[i].amount
		if creditors[j].amount < amount {
			amount = creditors[j].amount
		}

		if amount > settleEpsilon {
			edges = append(edges, DebtEdge{From: debtors[i].id, To: creditors[j].id, Amount: amount})
		}

		debtors[i].amount -= amount
		creditors[j].amount -= amount

		// Move to next debtor/creditor if fully settled
		if debtors[i].amount < settleEpsilon {
			i++
		}
		if creditors[j].amount < settleEpsilon {
			j++
		}
	}

	return edges
}

// DisplayKeys maps user IDs to presentation keys. Names are used as-is unless
// two members share a name, in which case each is qualified with a short ID.
func DisplayKeys(users map[string]*models.User, ids []string) map[string]string {
	counts := make(map[string]int)
	for _, id := range ids {
		counts[displayName(users, id)]++
	}

	keys := make(map[string]string, len(ids))
	for _, id := range ids {
		name := displayName(users, id)
		if counts[name] > 1 {
			name = fmt.Sprintf("%s (%s)", name, shortID(id))
		}
		keys[id] = name
	}
	return keys
}

func displayName(users map[string]*models.User, id string) string {
	if u, ok := users[id]; ok && u.Name != "" {
		return u.Name
	}
	return shortID(id)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
