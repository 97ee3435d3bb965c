// Package storage declares the persistence contract shared by the memory,
// postgres and sqlite backends.
//
// Every read-modify-write sequence of the ledger runs inside Store.InTx so a
// revert-then-apply (or destroy-then-recreate) either fully commits or leaves
// balances, limits and invoices untouched. Backends serialize transactions
// that touch the same account or card row.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/fintrack/internal/ledger"
)

// Store opens storage transactions.
type Store interface {
	// InTx runs fn inside one transaction. A non-nil error from fn rolls back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// Ready reports backend connectivity.
	Ready(ctx context.Context) error
}

// Tx is the set of operations available inside a storage transaction.
// Lookups of a missing row return the matching errs.Err*NotFound.
type Tx interface {
	// Accounts
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error)
	GetAccount(ctx context.Context, userID, accountID uuid.UUID) (ledger.Account, error)
	CreateAccount(ctx context.Context, a ledger.Account) error
	SaveAccount(ctx context.Context, a ledger.Account) error
	DeleteAccount(ctx context.Context, userID, accountID uuid.UUID) error

	// Cards
	ListCards(ctx context.Context, userID uuid.UUID) ([]ledger.Card, error)
	GetCard(ctx context.Context, userID, cardID uuid.UUID) (ledger.Card, error)
	CreateCard(ctx context.Context, c ledger.Card) error
	SaveCard(ctx context.Context, c ledger.Card) error
	// DeleteCard also removes the card's invoices.
	DeleteCard(ctx context.Context, userID, cardID uuid.UUID) error

	// Goals
	ListGoals(ctx context.Context, userID uuid.UUID) ([]ledger.Goal, error)
	GetGoal(ctx context.Context, userID, goalID uuid.UUID) (ledger.Goal, error)
	CreateGoal(ctx context.Context, g ledger.Goal) error
	SaveGoal(ctx context.Context, g ledger.Goal) error

	// Transactions
	GetTransaction(ctx context.Context, userID, txID uuid.UUID) (ledger.Transaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, f ledger.TransactionFilter) ([]ledger.Transaction, error)
	CreateTransactions(ctx context.Context, ts []ledger.Transaction) error
	UpdateTransaction(ctx context.Context, t ledger.Transaction) error
	DeleteTransactions(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error
	// TransactionsByGroup returns the rows of an installment group ordered by index.
	TransactionsByGroup(ctx context.Context, userID, groupID uuid.UUID) ([]ledger.Transaction, error)
	// TransactionsByRecurrence returns the rows of a fixed series ordered by date.
	TransactionsByRecurrence(ctx context.Context, userID, recurrenceID uuid.UUID) ([]ledger.Transaction, error)
	// CardExpensesBetween returns card_expense rows of a card dated within [from, to].
	CardExpensesBetween(ctx context.Context, userID, cardID uuid.UUID, from, to time.Time) ([]ledger.Transaction, error)

	// Invoices
	GetInvoice(ctx context.Context, userID, invoiceID uuid.UUID) (ledger.Invoice, error)
	InvoiceByCardMonth(ctx context.Context, userID, cardID uuid.UUID, month ledger.Month) (ledger.Invoice, error)
	ListInvoices(ctx context.Context, userID uuid.UUID, cardID *uuid.UUID) ([]ledger.Invoice, error)
	// CreateInvoice returns errs.ErrConflict when (card, month) already exists.
	CreateInvoice(ctx context.Context, inv ledger.Invoice) error
	SaveInvoice(ctx context.Context, inv ledger.Invoice) error
}
