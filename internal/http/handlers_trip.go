package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"warikan/internal/core"
)

type createTripRequest struct {
	Name            string  `json:"name" validate:"required,max=100"`
	TripCurrency    string  `json:"tripCurrency" validate:"required,len=3"`
	DefaultCurrency string  `json:"defaultCurrency" validate:"omitempty,len=3"`
	ExchangeRate    float64 `json:"exchangeRate" validate:"gte=0"`
	OwnerID         string  `json:"ownerId"`
}

type tripResponse struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	TripCurrency          string    `json:"tripCurrency"`
	DefaultCurrency       string    `json:"defaultCurrency,omitempty"`
	ExchangeRate          float64   `json:"exchangeRate,omitempty"`
	OwnerID               string    `json:"ownerId,omitempty"`
	TotalExpenses         float64   `json:"totalExpenses"`
	EnabledTotalExpenses  float64   `json:"enabledTotalExpenses"`
	DisabledTotalExpenses float64   `json:"disabledTotalExpenses"`
	ExpenseCount          int64     `json:"expenseCount"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

func tripToResponse(t core.Trip) tripResponse {
	return tripResponse{
		ID:                    t.ID,
		Name:                  t.Name,
		TripCurrency:          t.TripCurrency,
		DefaultCurrency:       t.DefaultCurrency,
		ExchangeRate:          t.ExchangeRate,
		OwnerID:               t.OwnerID,
		TotalExpenses:         t.TotalExpenses,
		EnabledTotalExpenses:  t.EnabledTotalExpenses,
		DisabledTotalExpenses: t.DisabledTotalExpenses,
		ExpenseCount:          t.ExpenseCount,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var req createTripRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	trip := core.Trip{
		Name:            req.Name,
		TripCurrency:    req.TripCurrency,
		DefaultCurrency: req.DefaultCurrency,
		ExchangeRate:    req.ExchangeRate,
		OwnerID:         req.OwnerID,
	}
	if err := trip.Validate(); err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.trips.CreateTrip(r.Context(), trip)
	if err != nil {
		respondStorageError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Trip created",
		"trip_id", created.ID, "name", created.Name, "currency", created.TripCurrency)
	respondJSON(w, r, http.StatusCreated, tripToResponse(created))
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	trip, err := s.trips.GetTrip(r.Context(), tripID)
	if err != nil {
		respondStorageError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, tripToResponse(trip))
}

type addMemberRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	AvatarEmoji string `json:"avatarEmoji"`
	IsHost      bool   `json:"isHost"`
}

type memberResponse struct {
	ID          string  `json:"id"`
	TripID      string  `json:"tripId"`
	Name        string  `json:"name"`
	AvatarEmoji string  `json:"avatarEmoji,omitempty"`
	IsHost      bool    `json:"isHost"`
	Spending    float64 `json:"spending"`
}

func memberToResponse(m core.TripMember) memberResponse {
	return memberResponse{
		ID:          m.ID,
		TripID:      m.TripID,
		Name:        m.Name,
		AvatarEmoji: m.AvatarEmoji,
		IsHost:      m.IsHost,
		Spending:    m.Spending,
	}
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")

	var req addMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	// The trip must exist before a member can join it.
	if _, err := s.trips.GetTrip(r.Context(), tripID); err != nil {
		respondStorageError(w, r, err)
		return
	}

	member := core.TripMember{
		TripID:      tripID,
		Name:        req.Name,
		AvatarEmoji: req.AvatarEmoji,
		IsHost:      req.IsHost,
	}
	if err := member.Validate(); err != nil {
		respondError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	added, err := s.trips.AddMember(r.Context(), member)
	if err != nil {
		respondStorageError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "Member added",
		"trip_id", tripID, "member_id", added.ID, "name", added.Name)
	respondJSON(w, r, http.StatusCreated, memberToResponse(added))
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	members, err := s.trips.ListMembers(r.Context(), tripID)
	if err != nil {
		respondStorageError(w, r, err)
		return
	}

	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberToResponse(m))
	}
	respondJSON(w, r, http.StatusOK, out)
}
