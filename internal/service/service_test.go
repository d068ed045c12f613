package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/limitly/internal/apperr"
	"github.com/mmynk/limitly/internal/auth"
	"github.com/mmynk/limitly/internal/currency"
	"github.com/mmynk/limitly/internal/llm"
	"github.com/mmynk/limitly/internal/metrics"
	"github.com/mmynk/limitly/internal/middleware"
	"github.com/mmynk/limitly/internal/storage/sqlite"
	"github.com/mmynk/limitly/pkg/logging"
)

// testRates maps a base currency to its rate table.
var testRates = map[string]map[string]float64{
	"USD": {"USD": 1, "INR": 80, "EUR": 0.5, "GBP": 0.8},
	"EUR": {"EUR": 1, "INR": 90, "USD": 2, "GBP": 1.6},
	"INR": {"INR": 1, "USD": 0.0125, "EUR": 0.011, "GBP": 0.01},
}

// fakeRates serves testRates in the open.er-api.com format and counts hits.
type fakeRates struct {
	*httptest.Server
	hits atomic.Int64
}

func newFakeRates(t *testing.T) *fakeRates {
	t.Helper()
	f := &fakeRates{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		base := strings.TrimPrefix(r.URL.Path, "/latest/")
		rates, ok := testRates[base]
		if !ok {
			http.Error(w, "unknown base", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result":    "success",
			"base_code": base,
			"rates":     rates,
		})
	}))
	t.Cleanup(f.Close)
	return f
}

// stubCompleter returns a canned completion and records how often it was asked.
type stubCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (c *stubCompleter) set(reply string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply, c.err = reply, err
}

func (c *stubCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *stubCompleter) Complete(ctx context.Context, system, user string, wantJSON bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.reply, c.err
}

func testLogger() *slog.Logger {
	return logging.New(io.Discard, slog.LevelDebug, "json")
}

type testEnv struct {
	t       *testing.T
	url     string
	store   *sqlite.SQLiteStore
	groups  *GroupService
	insight *InsightService
	llm     *stubCompleter
	metrics *metrics.Metrics
}

type testUser struct {
	ID    string
	Name  string
	Token string
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithRates(t, newFakeRates(t).URL+"/latest")
}

// newTestEnvWithRates serves every service over httptest the way main wires
// them, with rates fetched from ratesURL.
func newTestEnvWithRates(t *testing.T, ratesURL string) *testEnv {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to create store")
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	authenticator := auth.NewPasswordAuthenticator(store).WithCost(bcrypt.MinCost)
	normalizer := currency.NewNormalizer(currency.NewHTTPRateSource(ratesURL, time.Second), time.Second)
	completer := &stubCompleter{}

	env := &testEnv{
		t:       t,
		store:   store,
		groups:  NewGroupService(store, "INR"),
		insight: NewInsightService(store, llm.NewAdvisor(completer), "INR", m),
		llm:     completer,
		metrics: m,
	}

	public := connect.WithInterceptors(middleware.MetricsInterceptor(m), middleware.LoggingInterceptor())
	private := connect.WithInterceptors(
		middleware.MetricsInterceptor(m),
		middleware.RequireAuth(jwtManager),
		middleware.LoggingInterceptor(),
	)

	mux := http.NewServeMux()
	mux.Handle(NewAuthService(authenticator, jwtManager, testLogger()).Handler(public))
	mux.Handle(NewUserService(store).Handler(private))
	mux.Handle(env.groups.Handler(private))
	mux.Handle(NewExpenseService(store, normalizer, "INR", m).Handler(private))
	mux.Handle(NewSettlementService(store).Handler(private))
	mux.Handle(env.insight.Handler(private))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	env.url = srv.URL
	return env
}

// invoke calls service/method as the holder of token ("" for anonymous).
func invoke[Req, Res any](env *testEnv, token, service, method string, msg *Req) (*Res, error) {
	client := connect.NewClient[Req, Res](http.DefaultClient,
		env.url+Procedure(service, method),
		connect.WithCodec(JSONCodec{}),
	)
	req := connect.NewRequest(msg)
	if token != "" {
		req.Header().Set("Authorization", "Bearer "+token)
	}
	resp, err := client.CallUnary(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (e *testEnv) register(name string) testUser {
	e.t.Helper()
	resp, err := invoke[RegisterRequest, AuthResponse](e, "", AuthServiceName, "Register", &RegisterRequest{
		Name:     name,
		Email:    strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		Password: "password123",
	})
	require.NoError(e.t, err, "register %s", name)
	return testUser{ID: resp.User.ID, Name: name, Token: resp.Token}
}

func (e *testEnv) createGroup(owner testUser, name string, members ...testUser) Group {
	e.t.Helper()
	resp, err := invoke[CreateGroupRequest, GroupResponse](e, owner.Token, GroupServiceName, "CreateGroup",
		&CreateGroupRequest{Name: name})
	require.NoError(e.t, err)
	for _, m := range members {
		_, err := invoke[JoinGroupRequest, GroupResponse](e, m.Token, GroupServiceName, "JoinGroup",
			&JoinGroupRequest{InviteCode: resp.Group.InviteCode})
		require.NoError(e.t, err, "join %s", m.Name)
	}
	return resp.Group
}

func (e *testEnv) createExpense(payer testUser, req *CreateExpenseRequest) (*ExpenseResponse, error) {
	return invoke[CreateExpenseRequest, ExpenseResponse](e, payer.Token, ExpenseServiceName, "CreateExpense", req)
}

func (e *testEnv) mustExpense(payer testUser, req *CreateExpenseRequest) Expense {
	e.t.Helper()
	resp, err := e.createExpense(payer, req)
	require.NoError(e.t, err)
	return resp.Expense
}

func (e *testEnv) settlement(u testUser, groupID string) *GetSettlementResponse {
	e.t.Helper()
	resp, err := invoke[GetSettlementRequest, GetSettlementResponse](e, u.Token, SettlementServiceName, "GetSettlement",
		&GetSettlementRequest{GroupID: groupID})
	require.NoError(e.t, err)
	return resp
}

func equalSplit(ids ...string) *Split {
	return &Split{Mode: "EQUAL", Participants: ids}
}

func exactSplit(shares map[string]float64) *Split {
	s := &Split{Mode: "EXACT"}
	for id, amount := range shares {
		s.Shares = append(s.Shares, SplitShare{UserID: id, Amount: &amount})
	}
	return s
}

// assertAppError checks the Connect code and the {kind, reason} detail of err.
func assertAppError(t *testing.T, err error, code connect.Code, kind apperr.Kind, reason string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, connect.CodeOf(err), "code: %v", err)
	gotKind, gotReason := ErrorInfo(err)
	assert.Equal(t, kind, gotKind)
	assert.Equal(t, reason, gotReason)
}

func sumShares(e Expense) float64 {
	var sum float64
	for _, s := range e.Shares {
		sum += s.Amount
	}
	return sum
}

func TestUnauthenticatedCallsRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := invoke[ListGroupsRequest, ListGroupsResponse](env, "", GroupServiceName, "ListGroups", &ListGroupsRequest{})
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = invoke[GetMeRequest, GetMeResponse](env, "not-a-token", UserServiceName, "GetMe", &GetMeRequest{})
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestUnknownFieldsRejected(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register("Alice")

	type bogus struct {
		Name  string `json:"name"`
		Extra string `json:"extra"`
	}
	_, err := invoke[bogus, GroupResponse](env, alice.Token, GroupServiceName, "CreateGroup", &bogus{Name: "x", Extra: "y"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}
