package v1

import (
	"net/http"

	"github.com/tinoosan/fintrack/internal/ledger"
)

func (s *Server) postCard(w http.ResponseWriter, r *http.Request) {
	var req postCardRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	limit, err := s.parseAmount("credit_limit", req.CreditLimit)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	c, err := s.accountSvc.CreateCard(r.Context(), ledger.Card{
		UserID:      ownerOf(r),
		Name:        req.Name,
		Brand:       req.Brand,
		CreditLimit: limit,
		ClosingDay:  req.ClosingDay,
		DueDay:      req.DueDay,
	})
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toCardResponse(c))
}

func (s *Server) listCards(w http.ResponseWriter, r *http.Request) {
	list, err := s.accountSvc.ListCards(r.Context(), ownerOf(r))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	out := make([]cardResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toCardResponse(c))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getCard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "card")
	if !ok {
		return
	}
	c, err := s.accountSvc.GetCard(r.Context(), ownerOf(r), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toCardResponse(c))
}

func (s *Server) updateCard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "card")
	if !ok {
		return
	}
	var req patchCardRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	c, err := s.accountSvc.GetCard(r.Context(), ownerOf(r), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Brand != nil {
		c.Brand = *req.Brand
	}
	if req.CreditLimit != nil {
		if c.CreditLimit, err = s.parseAmount("credit_limit", *req.CreditLimit); err != nil {
			writeServiceErr(w, err)
			return
		}
	}
	if req.ClosingDay != nil {
		c.ClosingDay = *req.ClosingDay
	}
	if req.DueDay != nil {
		c.DueDay = *req.DueDay
	}
	updated, err := s.accountSvc.UpdateCard(r.Context(), c)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toCardResponse(updated))
}

// deleteCard also drops the card's invoices.
func (s *Server) deleteCard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "card")
	if !ok {
		return
	}
	if err := s.accountSvc.DeleteCard(r.Context(), ownerOf(r), id); err != nil {
		writeServiceErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
