package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"warikan/internal/core"
	"warikan/internal/services"
	"warikan/internal/storage"
)

type fakeTripStore struct {
	trips   map[string]core.Trip
	members map[string][]core.TripMember
}

func newFakeTripStore() *fakeTripStore {
	return &fakeTripStore{
		trips:   make(map[string]core.Trip),
		members: make(map[string][]core.TripMember),
	}
}

func (s *fakeTripStore) CreateTrip(ctx context.Context, t core.Trip) (core.Trip, error) {
	t.ID = fmt.Sprintf("trip-%d", len(s.trips)+1)
	s.trips[t.ID] = t
	return t, nil
}

func (s *fakeTripStore) GetTrip(ctx context.Context, tripID string) (core.Trip, error) {
	t, ok := s.trips[tripID]
	if !ok {
		return core.Trip{}, storage.ErrTripNotFound
	}
	return t, nil
}

func (s *fakeTripStore) AddMember(ctx context.Context, m core.TripMember) (core.TripMember, error) {
	m.ID = fmt.Sprintf("member-%d", len(s.members[m.TripID])+1)
	s.members[m.TripID] = append(s.members[m.TripID], m)
	return m, nil
}

func (s *fakeTripStore) ListMembers(ctx context.Context, tripID string) ([]core.TripMember, error) {
	return s.members[tripID], nil
}

type fakeExpenseWriter struct {
	expenses map[string]core.Expense
}

func newFakeExpenseWriter() *fakeExpenseWriter {
	return &fakeExpenseWriter{expenses: make(map[string]core.Expense)}
}

func (s *fakeExpenseWriter) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if !e.IsProcessing {
		if err := e.Validate(); err != nil {
			return core.Expense{}, err
		}
	}
	e.ID = fmt.Sprintf("expense-%d", len(s.expenses)+1)
	s.expenses[e.ID] = e
	return e, nil
}

func (s *fakeExpenseWriter) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	old, ok := s.expenses[e.ID]
	if !ok {
		return core.Expense{}, storage.ErrExpenseNotFound
	}
	s.expenses[e.ID] = e
	return old, nil
}

func (s *fakeExpenseWriter) DeleteExpense(ctx context.Context, tripID, expenseID string) error {
	if _, ok := s.expenses[expenseID]; !ok {
		return storage.ErrExpenseNotFound
	}
	delete(s.expenses, expenseID)
	return nil
}

func (s *fakeExpenseWriter) GetExpense(ctx context.Context, tripID, expenseID string) (core.Expense, error) {
	e, ok := s.expenses[expenseID]
	if !ok {
		return core.Expense{}, storage.ErrExpenseNotFound
	}
	return e, nil
}

func (s *fakeExpenseWriter) ListExpenses(ctx context.Context, tripID string) ([]core.Expense, error) {
	var out []core.Expense
	for _, e := range s.expenses {
		if e.TripID == tripID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeBalanceResolver struct {
	balances services.TripBalances
	err      error
}

func (s *fakeBalanceResolver) TripBalances(ctx context.Context, tripID string) (services.TripBalances, error) {
	if s.err != nil {
		return services.TripBalances{}, s.err
	}
	return s.balances, nil
}

func newTestServer() (*Server, *fakeTripStore, *fakeExpenseWriter, *fakeBalanceResolver) {
	trips := newFakeTripStore()
	expenses := newFakeExpenseWriter()
	balances := &fakeBalanceResolver{}
	return NewServer(":0", trips, expenses, balances), trips, expenses, balances
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetTrip(t *testing.T) {
	server, _, _, _ := newTestServer()

	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/trips", map[string]any{
		"name":         "Kyoto",
		"tripCurrency": "JPY",
		"exchangeRate": 0.0067,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created tripResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" || created.Name != "Kyoto" || created.TripCurrency != "JPY" {
		t.Errorf("created trip: %+v", created)
	}

	rec = doJSON(t, server.Handler(), http.MethodGet, "/api/v1/trips/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, server.Handler(), http.MethodGet, "/api/v1/trips/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing trip status = %d, want 404", rec.Code)
	}
}

func TestCreateTrip_Invalid(t *testing.T) {
	server, _, _, _ := newTestServer()

	cases := []map[string]any{
		{"tripCurrency": "JPY"},                      // no name
		{"name": "Kyoto"},                            // no currency
		{"name": "Kyoto", "tripCurrency": "JPYEN"},   // bad currency code
	}
	for _, body := range cases {
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/trips", body)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("body %v: status = %d, want 422", body, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/trips", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON status = %d, want 400", rec.Code)
	}
}

func TestAddAndListMembers(t *testing.T) {
	server, trips, _, _ := newTestServer()
	trips.trips["trip-1"] = core.Trip{ID: "trip-1", Name: "Kyoto", TripCurrency: "JPY"}

	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/trips/trip-1/members", map[string]any{
		"name":        "Alice",
		"avatarEmoji": "🦊",
		"isHost":      true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add member status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server.Handler(), http.MethodPost, "/api/v1/trips/ghost/members", map[string]any{
		"name": "Bob",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("member on missing trip status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, server.Handler(), http.MethodGet, "/api/v1/trips/trip-1/members", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list members status = %d", rec.Code)
	}
	var members []memberResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &members); err != nil {
		t.Fatalf("decode members: %v", err)
	}
	if len(members) != 1 || members[0].Name != "Alice" || !members[0].IsHost {
		t.Errorf("members: %+v", members)
	}
}

func TestExpenseLifecycle(t *testing.T) {
	server, _, expenses, _ := newTestServer()

	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/trips/trip-1/expenses", map[string]any{
		"description":         "Dinner",
		"grandTotal":          100,
		"paidByMemberId":      "alice",
		"sharedWithMemberIds": []string{"alice", "bob"},
		"items": []map[string]any{
			{"name": "steak", "price": 60, "sharedByMemberIds": []string{"alice"}},
			{"name": "salad", "price": 40},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create expense status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created expenseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode expense: %v", err)
	}
	if created.Status != "settled" || !created.Enabled || len(created.Items) != 2 {
		t.Errorf("created expense: %+v", created)
	}

	rec = doJSON(t, server.Handler(), http.MethodPut,
		"/api/v1/trips/trip-1/expenses/"+created.ID, map[string]any{
			"description":         "Dinner",
			"grandTotal":          120,
			"paidByMemberId":      "alice",
			"sharedWithMemberIds": []string{"alice", "bob"},
		})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	var updated expenseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode updated: %v", err)
	}
	if updated.GrandTotal != 120 {
		t.Errorf("updated total = %v, want 120", updated.GrandTotal)
	}

	rec = doJSON(t, server.Handler(), http.MethodGet, "/api/v1/trips/trip-1/expenses", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	rec = doJSON(t, server.Handler(), http.MethodDelete,
		"/api/v1/trips/trip-1/expenses/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if len(expenses.expenses) != 0 {
		t.Error("expense not removed from store")
	}

	rec = doJSON(t, server.Handler(), http.MethodGet,
		"/api/v1/trips/trip-1/expenses/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("deleted expense status = %d, want 404", rec.Code)
	}
}

func TestCreateExpense_DomainValidation(t *testing.T) {
	server, _, _, _ := newTestServer()

	// Settled expense with no sharers fails domain validation.
	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/trips/trip-1/expenses", map[string]any{
		"description":    "Dinner",
		"grandTotal":     100,
		"paidByMemberId": "alice",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("no sharers status = %d, want 422", rec.Code)
	}

	// A processing placeholder is accepted without the usual fields.
	rec = doJSON(t, server.Handler(), http.MethodPost, "/api/v1/trips/trip-1/expenses", map[string]any{
		"isProcessing": true,
	})
	if rec.Code != http.StatusCreated {
		t.Errorf("placeholder status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	var placeholder expenseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &placeholder); err != nil {
		t.Fatalf("decode placeholder: %v", err)
	}
	if placeholder.Status != "processing" {
		t.Errorf("placeholder status field = %s, want processing", placeholder.Status)
	}
}

func TestTripBalancesEndpoint(t *testing.T) {
	server, _, _, balances := newTestServer()
	balances.balances = services.TripBalances{
		TripID: "trip-1",
		Members: []services.MemberBalance{
			{MemberID: "alice", Name: "Alice", Paid: 90, Owed: 50, Balance: 40},
			{MemberID: "bob", Name: "Bob", Paid: 10, Owed: 50, Balance: -40},
		},
		Settlements: []services.Settlement{
			{FromMemberID: "bob", ToMemberID: "alice", Amount: 40},
		},
	}

	rec := doJSON(t, server.Handler(), http.MethodGet, "/api/v1/trips/trip-1/balances", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balances status = %d", rec.Code)
	}
	var resp tripBalancesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode balances: %v", err)
	}
	if len(resp.Members) != 2 || len(resp.Settlements) != 1 {
		t.Fatalf("balances shape: %+v", resp)
	}
	if resp.Settlements[0].FromMemberID != "bob" || resp.Settlements[0].Amount != 40 {
		t.Errorf("settlement: %+v", resp.Settlements[0])
	}

	rec = doJSON(t, server.Handler(), http.MethodGet, "/api/v1/trips/trip-1/debts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("debts status = %d", rec.Code)
	}
	var debts []settlementPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &debts); err != nil {
		t.Fatalf("decode debts: %v", err)
	}
	if len(debts) != 1 || debts[0].ToMemberID != "alice" {
		t.Errorf("debts: %+v", debts)
	}

	balances.err = storage.ErrTripNotFound
	rec = doJSON(t, server.Handler(), http.MethodGet, "/api/v1/trips/ghost/balances", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing trip balances status = %d, want 404", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	server, _, _, _ := newTestServer()

	for _, path := range []string{"/health", "/ready"} {
		rec := doJSON(t, server.Handler(), http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}
