package v1

import (
	"net/http"

	"github.com/tinoosan/fintrack/internal/ledger"
)

func (s *Server) postAccount(w http.ResponseWriter, r *http.Request) {
	in, ok := r.Context().Value(ctxKeyPostAccount).(ledger.Account)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "validated request missing", "operation_failed")
		return
	}
	acc, err := s.accountSvc.Create(r.Context(), in)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toAccountResponse(acc))
}

// postDefaultWallet is idempotent: it returns the existing wallet when present.
func (s *Server) postDefaultWallet(w http.ResponseWriter, r *http.Request) {
	acc, err := s.accountSvc.EnsureDefaultWallet(r.Context(), ownerOf(r))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(acc))
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := s.accountSvc.List(r.Context(), ownerOf(r))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	out := make([]accountResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAccountResponse(a))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "account")
	if !ok {
		return
	}
	acc, err := s.accountSvc.Get(r.Context(), ownerOf(r), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(acc))
}

func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "account")
	if !ok {
		return
	}
	var req patchAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	acc, err := s.accountSvc.Get(r.Context(), ownerOf(r), id)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	if req.Name != nil {
		acc.Name = *req.Name
	}
	if req.Kind != nil {
		acc.Kind = ledger.AccountKind(*req.Kind)
	}
	if req.IsMain != nil {
		acc.IsMain = *req.IsMain
	}
	updated, err := s.accountSvc.Update(r.Context(), acc)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(updated))
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "account")
	if !ok {
		return
	}
	if err := s.accountSvc.Delete(r.Context(), ownerOf(r), id); err != nil {
		writeServiceErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
