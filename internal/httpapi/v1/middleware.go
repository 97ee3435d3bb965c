package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/fintrack/internal/dictionary"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/service/transaction"
)

type ctxKey string

const (
	ctxKeyPostTransaction  ctxKey = "validatedPostTransaction"
	ctxKeyListTransactions ctxKey = "validatedListTransactions"
	ctxKeyPostAccount      ctxKey = "validatedPostAccount"
)

// validatePostTransaction decodes POST /v1/transactions, translates the kind
// vocabulary once, and stores the resulting Intent in the request context.
func (s *Server) validatePostTransaction() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req postTransactionRequest
			if err := decodeJSON(r, &req); err != nil {
				badRequest(w, "invalid JSON: "+err.Error())
				return
			}
			in, err := s.toIntent(ownerOf(r), req)
			if err != nil {
				writeServiceErr(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostTransaction, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) toIntent(userID uuid.UUID, req postTransactionRequest) (transaction.Intent, error) {
	kind, err := dictionary.ParseKind(req.Kind)
	if err != nil {
		return transaction.Intent{}, err
	}
	amount, err := s.parseAmount("amount", req.Amount)
	if err != nil {
		return transaction.Intent{}, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return transaction.Intent{}, err
	}
	return transaction.Intent{
		UserID:          userID,
		Title:           req.Title,
		Amount:          amount,
		Kind:            kind,
		Date:            date,
		CategoryID:      req.CategoryID,
		SourceAccountID: req.SourceAccountID,
		DestAccountID:   req.DestAccountID,
		CardID:          req.CardID,
		GoalID:          req.GoalID,
		Installments:    req.Installments,
		Fixed:           req.Fixed,
	}, nil
}

// validateListTransactions parses from, to, kind, card_id and group_id.
func (s *Server) validateListTransactions() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			var f ledger.TransactionFilter
			if raw := q.Get("from"); raw != "" {
				t, err := parseDate("from", raw)
				if err != nil {
					badRequest(w, err.Error())
					return
				}
				f.From = &t
			}
			if raw := q.Get("to"); raw != "" {
				t, err := parseDate("to", raw)
				if err != nil {
					badRequest(w, err.Error())
					return
				}
				// A bare date covers the whole day.
				if len(raw) == len(dateLayout) {
					t = t.Add(24*time.Hour - time.Nanosecond)
				}
				f.To = &t
			}
			if raw := q.Get("kind"); raw != "" {
				k, err := dictionary.ParseKind(raw)
				if err != nil {
					badRequest(w, err.Error())
					return
				}
				f.Kind = k
			}
			for name, dst := range map[string]**uuid.UUID{"card_id": &f.CardID, "group_id": &f.GroupID} {
				if raw := q.Get(name); raw != "" {
					id, err := uuid.Parse(raw)
					if err != nil {
						badRequest(w, "invalid "+name)
						return
					}
					*dst = &id
				}
			}
			ctx := context.WithValue(r.Context(), ctxKeyListTransactions, f)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validatePostAccount parses and validates POST /v1/accounts and stores the account.
func (s *Server) validatePostAccount() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req postAccountRequest
			if err := decodeJSON(r, &req); err != nil {
				badRequest(w, "invalid JSON: "+err.Error())
				return
			}
			in := ledger.Account{UserID: ownerOf(r), Name: req.Name, Kind: ledger.AccountKind(req.Kind), IsMain: req.IsMain}
			if req.Balance != "" {
				bal, err := s.parseAmount("balance", req.Balance)
				if err != nil {
					writeServiceErr(w, err)
					return
				}
				in.Balance = bal
			}
			if err := s.accountSvc.ValidateCreate(in); err != nil {
				writeServiceErr(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostAccount, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
