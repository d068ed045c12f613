package service

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/limitly/internal/apperr"
	"github.com/mmynk/limitly/internal/calculator"
	"github.com/mmynk/limitly/internal/models"
	"github.com/mmynk/limitly/internal/storage"
)

// SettlementService computes group balances and records settle-up payments.
type SettlementService struct {
	store storage.Store
}

// NewSettlementService creates a new SettlementService with the given storage backend.
func NewSettlementService(store storage.Store) *SettlementService {
	return &SettlementService{store: store}
}

// Handler returns the path prefix and handler serving SettlementService.
func (s *SettlementService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	p := newProcedureSet(SettlementServiceName, opts)
	handle(p, "GetSettlement", s.GetSettlement)
	handle(p, "RecordPayment", s.RecordPayment)
	handle(p, "ListPayments", s.ListPayments)
	handle(p, "DeletePayment", s.DeletePayment)
	return p.mount()
}

// GetSettlement recomputes a group's balances from all of its expenses and
// payments. Nothing is cached between calls.
func (s *SettlementService) GetSettlement(ctx context.Context, req *connect.Request[GetSettlementRequest]) (*connect.Response[GetSettlementResponse], error) {
	userID := callerID(ctx)
	slog.Info("GetSettlement request received", "group_id", req.Msg.GroupID, "user_id", userID)

	group, err := memberGroup(ctx, s.store, req.Msg.GroupID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	expenses, err := s.store.ListExpensesByGroup(ctx, group.ID, false)
	if err != nil {
		return nil, toConnectError(apperr.Internal(err))
	}
	payments, err := s.store.ListPaymentsByGroup(ctx, group.ID)
	if err != nil {
		return nil, toConnectError(apperr.Internal(err))
	}

	paymentsForBalance := make([]calculator.PaymentForBalance, len(payments))
	for i, p := range payments {
		paymentsForBalance[i] = calculator.PaymentForBalance{
			FromUserID: p.FromUserID,
			ToUserID:   p.ToUserID,
			Amount:     p.Amount,
		}
	}

	balances, edges := calculator.CalculateGroupBalances(group.Members, expenses, paymentsForBalance)

	// The ledger may hold debtors outside Members; resolve every ID it saw.
	ids := make([]string, len(balances))
	for i, b := range balances {
		ids[i] = b.UserID
	}
	users, err := usersOf(ctx, s.store, ids)
	if err != nil {
		return nil, toConnectError(err)
	}
	keys := calculator.DisplayKeys(users, ids)

	resp := &GetSettlementResponse{
		Balances:  make(map[string]float64, len(balances)),
		Members:   make([]MemberBalance, len(balances)),
		Transfers: make([]Transfer, len(edges)),
		Currency:  group.BaseCurrency,
	}
	nets := make([]float64, len(balances))
	for i, b := range balances {
		nets[i] = b.NetBalance
	}
	nets = roundNets(nets)
	for i, b := range balances {
		resp.Balances[keys[b.UserID]] = nets[i]
		resp.Members[i] = MemberBalance{
			UserID:      b.UserID,
			DisplayName: keys[b.UserID],
			Paid:        round2(b.TotalPaid),
			Owed:        round2(b.TotalOwed),
			Net:         nets[i],
		}
	}
	for i, e := range edges {
		resp.Transfers[i] = Transfer{
			From:     e.From,
			To:       e.To,
			FromName: keys[e.From],
			ToName:   keys[e.To],
			Amount:   round2(e.Amount),
		}
	}

	slog.Info("GetSettlement successful",
		"group_id", group.ID,
		"expenses", len(expenses),
		"payments", len(payments),
		"transfers", len(edges),
	)
	return connect.NewResponse(resp), nil
}

// RecordPayment records that the caller paid another member of the group.
func (s *SettlementService) RecordPayment(ctx context.Context, req *connect.Request[RecordPaymentRequest]) (*connect.Response[PaymentResponse], error) {
	userID := callerID(ctx)
	slog.Info("RecordPayment request received",
		"group_id", req.Msg.GroupID,
		"from", userID,
		"to", req.Msg.ToUserID,
		"amount", req.Msg.Amount,
	)

	group, err := memberGroup(ctx, s.store, req.Msg.GroupID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	toUserID, err := requireID(req.Msg.ToUserID, "to_user_id")
	if err != nil {
		return nil, toConnectError(err)
	}
	if toUserID == userID {
		return nil, toConnectError(apperr.Validation("cannot record a payment to yourself"))
	}
	if !group.HasMember(toUserID) {
		return nil, toConnectError(apperr.Validation("user %s is not a member of this group", toUserID).
			WithReason(apperr.ReasonNotGroupMember))
	}
	amount := req.Msg.Amount
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, toConnectError(apperr.Validation("amount must be a positive number"))
	}

	payment := &models.Payment{
		ID:         uuid.New().String(),
		GroupID:    group.ID,
		FromUserID: userID,
		ToUserID:   toUserID,
		Amount:     amount,
		Note:       strings.TrimSpace(req.Msg.Note),
		CreatedBy:  userID,
		CreatedAt:  time.Now().Unix(),
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		slog.Error("RecordPayment failed", "error", err)
		return nil, toConnectError(apperr.Internal(err))
	}

	slog.Info("Payment recorded", "payment_id", payment.ID, "group_id", group.ID)
	return connect.NewResponse(&PaymentResponse{Payment: toPayment(payment)}), nil
}

// ListPayments returns the payments recorded in a group.
func (s *SettlementService) ListPayments(ctx context.Context, req *connect.Request[ListPaymentsRequest]) (*connect.Response[ListPaymentsResponse], error) {
	group, err := memberGroup(ctx, s.store, req.Msg.GroupID, callerID(ctx))
	if err != nil {
		return nil, toConnectError(err)
	}

	payments, err := s.store.ListPaymentsByGroup(ctx, group.ID)
	if err != nil {
		return nil, toConnectError(apperr.Internal(err))
	}

	out := make([]Payment, len(payments))
	for i, p := range payments {
		out[i] = toPayment(p)
	}
	return connect.NewResponse(&ListPaymentsResponse{Payments: out}), nil
}

// DeletePayment removes a payment. Only whoever recorded it may delete it.
func (s *SettlementService) DeletePayment(ctx context.Context, req *connect.Request[DeletePaymentRequest]) (*connect.Response[DeletePaymentResponse], error) {
	userID := callerID(ctx)
	paymentID, err := requireID(req.Msg.PaymentID, "payment_id")
	if err != nil {
		return nil, toConnectError(err)
	}

	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, toConnectError(storeErr(err, "payment"))
	}
	if payment.CreatedBy != userID {
		return nil, toConnectError(apperr.Forbidden("only the recorder can delete this payment"))
	}

	if err := s.store.DeletePayment(ctx, payment.ID); err != nil {
		return nil, toConnectError(storeErr(err, "payment"))
	}

	slog.Info("Payment deleted", "payment_id", payment.ID, "user_id", userID)
	return connect.NewResponse(&DeletePaymentResponse{}), nil
}

// roundNets rounds net balances to cents while keeping their sum at zero.
// The rounding drift goes to the largest balance.
func roundNets(nets []float64) []float64 {
	out := make([]float64, len(nets))
	if len(nets) == 0 {
		return out
	}
	rounded := make([]decimal.Decimal, len(nets))
	sum := decimal.Zero
	largest := 0
	for i, n := range nets {
		rounded[i] = decimal.NewFromFloat(n).Round(2)
		sum = sum.Add(rounded[i])
		if math.Abs(n) > math.Abs(nets[largest]) {
			largest = i
		}
	}
	rounded[largest] = rounded[largest].Sub(sum)
	for i, d := range rounded {
		out[i] = d.InexactFloat64()
	}
	return out
}
