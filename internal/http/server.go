// Package http exposes the trip ledger as a JSON API: trips and members,
// expense writes, and the resolved balance and settlement views.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"warikan/internal/core"
	"warikan/internal/log"
	"warikan/internal/services"
)

// TripStore is the trip and member surface the handlers need.
// *storage.SQLiteRepository implements it.
type TripStore interface {
	CreateTrip(ctx context.Context, t core.Trip) (core.Trip, error)
	GetTrip(ctx context.Context, tripID string) (core.Trip, error)
	AddMember(ctx context.Context, m core.TripMember) (core.TripMember, error)
	ListMembers(ctx context.Context, tripID string) ([]core.TripMember, error)
}

// ExpenseWriter is the expense surface the handlers need.
// *services.ExpenseService implements it.
type ExpenseWriter interface {
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	DeleteExpense(ctx context.Context, tripID, expenseID string) error
	GetExpense(ctx context.Context, tripID, expenseID string) (core.Expense, error)
	ListExpenses(ctx context.Context, tripID string) ([]core.Expense, error)
}

// BalanceResolver resolves the read-side balance view.
// *services.BalanceService implements it.
type BalanceResolver interface {
	TripBalances(ctx context.Context, tripID string) (services.TripBalances, error)
}

type Server struct {
	httpServer *http.Server
	trips      TripStore
	expenses   ExpenseWriter
	balances   BalanceResolver
	validate   *validator.Validate
}

func NewServer(addr string, trips TripStore, expenses ExpenseWriter, balances BalanceResolver) *Server {
	s := &Server{
		trips:    trips,
		expenses: expenses,
		balances: balances,
		validate: validator.New(),
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger)

	router.Get("/health", handleHealth)
	router.Get("/ready", handleReady)

	router.Route("/api/v1/trips", func(r chi.Router) {
		r.Post("/", s.handleCreateTrip)
		r.Route("/{tripID}", func(r chi.Router) {
			r.Get("/", s.handleGetTrip)
			r.Get("/balances", s.handleTripBalances)
			r.Get("/debts", s.handleTripDebts)

			r.Post("/members", s.handleAddMember)
			r.Get("/members", s.handleListMembers)

			r.Post("/expenses", s.handleCreateExpense)
			r.Get("/expenses", s.handleListExpenses)
			r.Get("/expenses/{expenseID}", s.handleGetExpense)
			r.Put("/expenses/{expenseID}", s.handleUpdateExpense)
			r.Delete("/expenses/{expenseID}", s.handleDeleteExpense)
		})
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		sl := log.NewStructuredLogger(log.FromContext(r.Context()))
		sl.LogHTTPEnd(r.Context(), r, rec.status, time.Since(start).Milliseconds())
	})
}
