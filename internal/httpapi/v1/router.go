// Package v1 wires the HTTP surface of the fintrack service.
// It keeps handlers thin, delegating business rules to the service layer.
package v1

import (
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tinoosan/fintrack/internal/events"
	"github.com/tinoosan/fintrack/internal/service/account"
	"github.com/tinoosan/fintrack/internal/service/invoice"
	"github.com/tinoosan/fintrack/internal/service/transaction"
	"github.com/tinoosan/fintrack/internal/storage"
)

// Options configures the HTTP server.
type Options struct {
	// Currency is the single currency amounts are parsed in.
	Currency string
	// JWTSecret enables bearer-token owner resolution (HS256). When empty the
	// owner comes from the user_id query parameter.
	JWTSecret string
}

// Server wires handlers and middleware using Chi.
type Server struct {
	txSvc      transaction.Service
	invoiceSvc invoice.Service
	accountSvc account.Service
	ready      ReadyChecker
	currency   string
	jwtSecret  []byte
	log        *slog.Logger
	rt         *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
// The logger is used by request logging, panic recovery and the services.
func New(store storage.Store, pub events.Publisher, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Currency == "" {
		opts.Currency = "BRL"
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)

	s := &Server{
		txSvc:      transaction.New(store, pub, logger),
		invoiceSvc: invoice.NewService(store, pub, logger),
		accountSvc: account.New(store, opts.Currency, logger),
		ready:      store,
		currency:   opts.Currency,
		log:        logger,
		rt:         r,
	}
	if opts.JWTSecret != "" {
		s.jwtSecret = []byte(opts.JWTSecret)
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
	// Ops (unversioned, no owner)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Handle("/metrics", metricsHandler())

	// Vocabulary and billing arithmetic need no owner either.
	s.rt.Get("/v1/dictionary/kinds", s.getKindsDictionary)
	s.rt.Get("/v1/billing/window", s.billingWindow)
	s.rt.Get("/v1/billing/invoice-month", s.invoiceMonth)

	s.rt.Group(func(r chi.Router) {
		r.Use(s.owner)

		// Transactions
		r.With(requireJSON, s.validatePostTransaction()).Post("/v1/transactions", s.postTransaction)
		r.With(s.validateListTransactions()).Get("/v1/transactions", s.listTransactions)
		r.Get("/v1/transactions/{id}", s.getTransaction)
		r.With(requireJSON).Patch("/v1/transactions/{id}", s.patchTransaction)
		r.Delete("/v1/transactions/{id}", s.deleteTransaction)

		// Invoices
		r.Post("/v1/cards/{id}/invoices/{month}", s.ensureInvoice)
		r.Get("/v1/invoices", s.listInvoices)
		r.Get("/v1/invoices/{id}", s.getInvoice)
		r.With(requireJSON).Post("/v1/invoices/{id}/pay", s.payInvoice)
		r.Post("/v1/invoices/{id}/unpay", s.unpayInvoice)

		// Accounts
		r.With(requireJSON, s.validatePostAccount()).Post("/v1/accounts", s.postAccount)
		r.Post("/v1/accounts/default-wallet", s.postDefaultWallet)
		r.Get("/v1/accounts", s.listAccounts)
		r.Get("/v1/accounts/{id}", s.getAccount)
		r.With(requireJSON).Patch("/v1/accounts/{id}", s.updateAccount)
		r.Delete("/v1/accounts/{id}", s.deleteAccount)

		// Cards
		r.With(requireJSON).Post("/v1/cards", s.postCard)
		r.Get("/v1/cards", s.listCards)
		r.Get("/v1/cards/{id}", s.getCard)
		r.With(requireJSON).Patch("/v1/cards/{id}", s.updateCard)
		r.Delete("/v1/cards/{id}", s.deleteCard)

		// Goals
		r.With(requireJSON).Post("/v1/goals", s.postGoal)
		r.Get("/v1/goals", s.listGoals)
		r.Get("/v1/goals/{id}", s.getGoal)
	})
}
