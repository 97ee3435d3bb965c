package v1

import (
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/service/invoice"
)

// ensureInvoice handles POST /v1/cards/{id}/invoices/{month}: create the
// invoice if absent, otherwise recompute its amount.
func (s *Server) ensureInvoice(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "card")
	if !ok {
		return
	}
	month, err := ledger.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	inv, err := s.invoiceSvc.Ensure(r.Context(), ownerOf(r), cardID, month)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	var cardID *uuid.UUID
	if raw := r.URL.Query().Get("card_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(w, "invalid card_id")
			return
		}
		cardID = &id
	}
	list, err := s.invoiceSvc.List(r.Context(), ownerOf(r), cardID)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	out := make([]invoiceResponse, 0, len(list))
	for _, inv := range list {
		out = append(out, toInvoiceResponse(inv))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invoice")
	if !ok {
		return
	}
	inv, err := s.invoiceSvc.Get(r.Context(), ownerOf(r), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (s *Server) payInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invoice")
	if !ok {
		return
	}
	var req payInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	amount, err := s.parseAmount("amount", req.Amount)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	var date time.Time
	if req.Date != "" {
		if date, err = parseDate("date", req.Date); err != nil {
			writeServiceErr(w, err)
			return
		}
	}
	inv, err := s.invoiceSvc.Pay(r.Context(), ownerOf(r), id, invoice.PayInput{Amount: amount, Date: date, AccountID: req.AccountID})
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	invoiceSettlements.WithLabelValues("pay").Inc()
	toJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (s *Server) unpayInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invoice")
	if !ok {
		return
	}
	inv, err := s.invoiceSvc.Unpay(r.Context(), ownerOf(r), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	invoiceSettlements.WithLabelValues("unpay").Inc()
	toJSON(w, http.StatusOK, toInvoiceResponse(inv))
}
