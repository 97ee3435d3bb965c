package v1

import (
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tinoosan/fintrack/internal/dictionary"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/service/transaction"
)

func pathID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func (s *Server) postTransaction(w http.ResponseWriter, r *http.Request) {
	in, ok := r.Context().Value(ctxKeyPostTransaction).(transaction.Intent)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated request missing", "operation_failed")
		return
	}
	rows, err := s.txSvc.Create(r.Context(), in)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	transactionsCreated.WithLabelValues(string(in.Kind)).Add(float64(len(rows)))
	toJSON(w, http.StatusCreated, toTransactionsResponse(rows, len(rows)))
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	f, ok := r.Context().Value(ctxKeyListTransactions).(ledger.TransactionFilter)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated query missing", "operation_failed")
		return
	}
	rows, err := s.txSvc.List(r.Context(), ownerOf(r), f)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toTransactionsResponse(rows, len(rows)))
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "transaction")
	if !ok {
		return
	}
	t, err := s.txSvc.Get(r.Context(), ownerOf(r), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toTransactionResponse(t))
}

// patchTransaction handles PATCH /v1/transactions/{id}?apply_to_group=&regenerate_fixed=
func (s *Server) patchTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "transaction")
	if !ok {
		return
	}
	var opts transaction.UpdateOptions
	var err error
	if opts.ApplyToGroup, err = queryBool(r, "apply_to_group"); err != nil {
		badRequest(w, "invalid apply_to_group")
		return
	}
	if opts.RegenerateFixed, err = queryBool(r, "regenerate_fixed"); err != nil {
		badRequest(w, "invalid regenerate_fixed")
		return
	}
	var req patchTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	p, err := s.toPatch(req)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	res, err := s.txSvc.Update(r.Context(), ownerOf(r), id, p, opts)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toTransactionsResponse(res.Transactions, res.Count))
}

func (s *Server) toPatch(req patchTransactionRequest) (transaction.Patch, error) {
	p := transaction.Patch{
		Title:            req.Title,
		CategoryID:       req.CategoryID,
		SourceAccountID:  req.SourceAccountID,
		DestAccountID:    req.DestAccountID,
		CardID:           req.CardID,
		GoalID:           req.GoalID,
		InstallmentCount: req.InstallmentCount,
	}
	if req.Amount != nil {
		a, err := s.parseAmount("amount", *req.Amount)
		if err != nil {
			return transaction.Patch{}, err
		}
		p.Amount = &a
	}
	if req.Kind != nil {
		k, err := dictionary.ParseKind(*req.Kind)
		if err != nil {
			return transaction.Patch{}, err
		}
		p.Kind = &k
	}
	if req.Date != nil {
		d, err := parseDate("date", *req.Date)
		if err != nil {
			return transaction.Patch{}, err
		}
		p.Date = &d
	}
	return p, nil
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "transaction")
	if !ok {
		return
	}
	if err := s.txSvc.Delete(r.Context(), ownerOf(r), id); err != nil {
		writeServiceErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
