package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type memberBalancePayload struct {
	MemberID string  `json:"memberId"`
	Name     string  `json:"name"`
	Paid     float64 `json:"paid"`
	Owed     float64 `json:"owed"`
	Balance  float64 `json:"balance"`
}

type settlementPayload struct {
	FromMemberID string  `json:"fromMemberId"`
	ToMemberID   string  `json:"toMemberId"`
	Amount       float64 `json:"amount"`
}

type tripBalancesResponse struct {
	TripID      string                 `json:"tripId"`
	Members     []memberBalancePayload `json:"members"`
	Settlements []settlementPayload    `json:"settlements"`
}

func (s *Server) handleTripBalances(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")

	balances, err := s.balances.TripBalances(r.Context(), tripID)
	if err != nil {
		respondStorageError(w, r, err)
		return
	}

	resp := tripBalancesResponse{
		TripID:      balances.TripID,
		Members:     make([]memberBalancePayload, 0, len(balances.Members)),
		Settlements: make([]settlementPayload, 0, len(balances.Settlements)),
	}
	for _, m := range balances.Members {
		resp.Members = append(resp.Members, memberBalancePayload{
			MemberID: m.MemberID,
			Name:     m.Name,
			Paid:     m.Paid,
			Owed:     m.Owed,
			Balance:  m.Balance,
		})
	}
	for _, st := range balances.Settlements {
		resp.Settlements = append(resp.Settlements, settlementPayload{
			FromMemberID: st.FromMemberID,
			ToMemberID:   st.ToMemberID,
			Amount:       st.Amount,
		})
	}
	respondJSON(w, r, http.StatusOK, resp)
}

// handleTripDebts returns only the pairwise transfers, for clients that
// render the "who pays whom" view without the full balance table.
func (s *Server) handleTripDebts(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")

	balances, err := s.balances.TripBalances(r.Context(), tripID)
	if err != nil {
		respondStorageError(w, r, err)
		return
	}

	out := make([]settlementPayload, 0, len(balances.Settlements))
	for _, st := range balances.Settlements {
		out = append(out, settlementPayload{
			FromMemberID: st.FromMemberID,
			ToMemberID:   st.ToMemberID,
			Amount:       st.Amount,
		})
	}
	respondJSON(w, r, http.StatusOK, out)
}
