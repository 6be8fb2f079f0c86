package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"warikan/internal/core"
)

type expenseItemPayload struct {
	Name              string   `json:"name"`
	TranslatedName    string   `json:"translatedName,omitempty"`
	Price             float64  `json:"price" validate:"gte=0"`
	Quantity          float64  `json:"quantity,omitempty" validate:"gte=0"`
	SharedByMemberIDs []string `json:"sharedByMemberIds,omitempty"`
}

type expenseRequest struct {
	Description         string               `json:"description" validate:"max=200"`
	Category            string               `json:"category,omitempty"`
	GrandTotal          float64              `json:"grandTotal" validate:"gte=0"`
	PaidByMemberID      string               `json:"paidByMemberId"`
	SharedWithMemberIDs []string             `json:"sharedWithMemberIds"`
	Enabled             *bool                `json:"enabled,omitempty"`
	IsProcessing        bool                 `json:"isProcessing,omitempty"`
	Items               []expenseItemPayload `json:"items,omitempty" validate:"dive"`
	InputCurrency       string               `json:"inputCurrency,omitempty" validate:"omitempty,len=3"`
	ReceiptImageURL     string               `json:"receiptImageUrl,omitempty" validate:"omitempty,url"`
	PaidAt              *time.Time           `json:"paidAt,omitempty"`
}

type expenseResponse struct {
	ID                  string               `json:"id"`
	TripID              string               `json:"tripId"`
	Description         string               `json:"description"`
	Category            string               `json:"category,omitempty"`
	GrandTotal          float64              `json:"grandTotal"`
	PaidByMemberID      string               `json:"paidByMemberId"`
	SharedWithMemberIDs []string             `json:"sharedWithMemberIds"`
	Enabled             bool                 `json:"enabled"`
	IsProcessing        bool                 `json:"isProcessing"`
	Status              string               `json:"status"`
	Items               []expenseItemPayload `json:"items,omitempty"`
	InputCurrency       string               `json:"inputCurrency,omitempty"`
	ReceiptImageURL     string               `json:"receiptImageUrl,omitempty"`
	PaidAt              *time.Time           `json:"paidAt,omitempty"`
	CreatedAt           time.Time            `json:"createdAt"`
}

func (req expenseRequest) toExpense(tripID string) core.Expense {
	e := core.Expense{
		TripID:              tripID,
		Description:         req.Description,
		Category:            req.Category,
		GrandTotal:          req.GrandTotal,
		PaidByMemberID:      req.PaidByMemberID,
		SharedWithMemberIDs: req.SharedWithMemberIDs,
		Enabled:             true,
		IsProcessing:        req.IsProcessing,
		InputCurrency:       req.InputCurrency,
		ReceiptImageURL:     req.ReceiptImageURL,
	}
	if req.Enabled != nil {
		e.Enabled = *req.Enabled
	}
	if req.PaidAt != nil {
		e.PaidAt = *req.PaidAt
	}
	for _, it := range req.Items {
		e.Items = append(e.Items, core.ExpenseItem{
			Name:              it.Name,
			TranslatedName:    it.TranslatedName,
			Price:             it.Price,
			Quantity:          it.Quantity,
			SharedByMemberIDs: it.SharedByMemberIDs,
		})
	}
	return e
}

func expenseToResponse(e core.Expense) expenseResponse {
	resp := expenseResponse{
		ID:                  e.ID,
		TripID:              e.TripID,
		Description:         e.Description,
		Category:            e.Category,
		GrandTotal:          e.GrandTotal,
		PaidByMemberID:      e.PaidByMemberID,
		SharedWithMemberIDs: e.SharedWithMemberIDs,
		Enabled:             e.Enabled,
		IsProcessing:        e.IsProcessing,
		Status:              e.Status().String(),
		InputCurrency:       e.InputCurrency,
		ReceiptImageURL:     e.ReceiptImageURL,
		CreatedAt:           e.CreatedAt,
	}
	if !e.PaidAt.IsZero() {
		paidAt := e.PaidAt
		resp.PaidAt = &paidAt
	}
	for _, it := range e.Items {
		resp.Items = append(resp.Items, expenseItemPayload{
			Name:              it.Name,
			TranslatedName:    it.TranslatedName,
			Price:             it.Price,
			Quantity:          it.Quantity,
			SharedByMemberIDs: it.SharedByMemberIDs,
		})
	}
	return resp
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")

	var req expenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.expenses.CreateExpense(r.Context(), req.toExpense(tripID))
	if err != nil {
		respondStorageError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Expense created",
		"trip_id", tripID,
		"expense_id", created.ID,
		"grand_total", created.GrandTotal,
		"status", created.Status().String())
	respondJSON(w, r, http.StatusCreated, expenseToResponse(created))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	expenseID := chi.URLParam(r, "expenseID")

	var req expenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	e := req.toExpense(tripID)
	e.ID = expenseID
	if _, err := s.expenses.UpdateExpense(r.Context(), e); err != nil {
		respondStorageError(w, r, err)
		return
	}

	updated, err := s.expenses.GetExpense(r.Context(), tripID, expenseID)
	if err != nil {
		respondStorageError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Expense updated",
		"trip_id", tripID,
		"expense_id", expenseID,
		"grand_total", updated.GrandTotal,
		"status", updated.Status().String())
	respondJSON(w, r, http.StatusOK, expenseToResponse(updated))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	expenseID := chi.URLParam(r, "expenseID")

	if err := s.expenses.DeleteExpense(r.Context(), tripID, expenseID); err != nil {
		respondStorageError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Expense deleted",
		"trip_id", tripID, "expense_id", expenseID)
	respondJSON(w, r, http.StatusNoContent, nil)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	expenseID := chi.URLParam(r, "expenseID")

	e, err := s.expenses.GetExpense(r.Context(), tripID, expenseID)
	if err != nil {
		respondStorageError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, expenseToResponse(e))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")

	expenses, err := s.expenses.ListExpenses(r.Context(), tripID)
	if err != nil {
		respondStorageError(w, r, err)
		return
	}

	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, expenseToResponse(e))
	}
	respondJSON(w, r, http.StatusOK, out)
}
