// Package memory provides an in-memory implementation of storage.Store used
// for development and tests.
//
// InTx holds the store-wide write lock for the whole transaction and works on
// a copy of the data; the copy replaces the live data only when fn succeeds.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/storage"
)

type data struct {
	accounts     map[uuid.UUID]ledger.Account
	cards        map[uuid.UUID]ledger.Card
	goals        map[uuid.UUID]ledger.Goal
	transactions map[uuid.UUID]ledger.Transaction
	invoices     map[uuid.UUID]ledger.Invoice
}

func newData() *data {
	return &data{
		accounts:     make(map[uuid.UUID]ledger.Account),
		cards:        make(map[uuid.UUID]ledger.Card),
		goals:        make(map[uuid.UUID]ledger.Goal),
		transactions: make(map[uuid.UUID]ledger.Transaction),
		invoices:     make(map[uuid.UUID]ledger.Invoice),
	}
}

// clone copies the maps. Entities are stored by value and replaced as a
// whole on write, so a shallow copy of each map is enough.
func (d *data) clone() *data {
	out := &data{
		accounts:     make(map[uuid.UUID]ledger.Account, len(d.accounts)),
		cards:        make(map[uuid.UUID]ledger.Card, len(d.cards)),
		goals:        make(map[uuid.UUID]ledger.Goal, len(d.goals)),
		transactions: make(map[uuid.UUID]ledger.Transaction, len(d.transactions)),
		invoices:     make(map[uuid.UUID]ledger.Invoice, len(d.invoices)),
	}
	for k, v := range d.accounts {
		out.accounts[k] = v
	}
	for k, v := range d.cards {
		out.cards[k] = v
	}
	for k, v := range d.goals {
		out.goals[k] = v
	}
	for k, v := range d.transactions {
		out.transactions[k] = v
	}
	for k, v := range d.invoices {
		out.invoices[k] = v
	}
	return out
}

// Store is an in-memory storage.Store. It is safe for concurrent use;
// transactions are fully serialized.
type Store struct {
	mu sync.Mutex
	d  *data
}

// New constructs an empty in-memory store.
func New() *Store { return &Store{d: newData()} }

// InTx implements storage.Store.
func (s *Store) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.d.clone()
	if err := fn(&tx{d: work}); err != nil {
		return err
	}
	s.d = work
	return nil
}

// Ready implements storage.Store.
func (s *Store) Ready(context.Context) error { return nil }

// Seed helpers for local dev/tests.
func (s *Store) SeedAccount(a ledger.Account) { s.mu.Lock(); s.d.accounts[a.ID] = a; s.mu.Unlock() }
func (s *Store) SeedCard(c ledger.Card)       { s.mu.Lock(); s.d.cards[c.ID] = c; s.mu.Unlock() }
func (s *Store) SeedGoal(g ledger.Goal)       { s.mu.Lock(); s.d.goals[g.ID] = g; s.mu.Unlock() }

// Reset drops all data.
func (s *Store) Reset() {
	s.mu.Lock()
	s.d = newData()
	s.mu.Unlock()
}

// tx operates on the working copy owned by one InTx call.
type tx struct {
	d *data
}

func (t *tx) ListAccounts(_ context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	out := make([]ledger.Account, 0)
	for _, a := range t.d.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (t *tx) GetAccount(_ context.Context, userID, accountID uuid.UUID) (ledger.Account, error) {
	a, ok := t.d.accounts[accountID]
	if !ok || a.UserID != userID {
		return ledger.Account{}, errs.ErrAccountNotFound
	}
	return a, nil
}

func (t *tx) CreateAccount(_ context.Context, a ledger.Account) error {
	if _, ok := t.d.accounts[a.ID]; ok {
		return fmt.Errorf("account %s: %w", a.ID, errs.ErrConflict)
	}
	t.d.accounts[a.ID] = a
	return nil
}

func (t *tx) SaveAccount(_ context.Context, a ledger.Account) error {
	cur, ok := t.d.accounts[a.ID]
	if !ok || cur.UserID != a.UserID {
		return errs.ErrAccountNotFound
	}
	t.d.accounts[a.ID] = a
	return nil
}

func (t *tx) DeleteAccount(_ context.Context, userID, accountID uuid.UUID) error {
	a, ok := t.d.accounts[accountID]
	if !ok || a.UserID != userID {
		return errs.ErrAccountNotFound
	}
	delete(t.d.accounts, accountID)
	return nil
}

func (t *tx) ListCards(_ context.Context, userID uuid.UUID) ([]ledger.Card, error) {
	out := make([]ledger.Card, 0)
	for _, c := range t.d.cards {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (t *tx) GetCard(_ context.Context, userID, cardID uuid.UUID) (ledger.Card, error) {
	c, ok := t.d.cards[cardID]
	if !ok || c.UserID != userID {
		return ledger.Card{}, errs.ErrCardNotFound
	}
	return c, nil
}

func (t *tx) CreateCard(_ context.Context, c ledger.Card) error {
	if _, ok := t.d.cards[c.ID]; ok {
		return fmt.Errorf("card %s: %w", c.ID, errs.ErrConflict)
	}
	t.d.cards[c.ID] = c
	return nil
}

func (t *tx) SaveCard(_ context.Context, c ledger.Card) error {
	cur, ok := t.d.cards[c.ID]
	if !ok || cur.UserID != c.UserID {
		return errs.ErrCardNotFound
	}
	t.d.cards[c.ID] = c
	return nil
}

// DeleteCard removes the card and its invoices.
func (t *tx) DeleteCard(_ context.Context, userID, cardID uuid.UUID) error {
	c, ok := t.d.cards[cardID]
	if !ok || c.UserID != userID {
		return errs.ErrCardNotFound
	}
	delete(t.d.cards, cardID)
	for id, inv := range t.d.invoices {
		if inv.CardID == cardID {
			delete(t.d.invoices, id)
		}
	}
	return nil
}

func (t *tx) ListGoals(_ context.Context, userID uuid.UUID) ([]ledger.Goal, error) {
	out := make([]ledger.Goal, 0)
	for _, g := range t.d.goals {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (t *tx) GetGoal(_ context.Context, userID, goalID uuid.UUID) (ledger.Goal, error) {
	g, ok := t.d.goals[goalID]
	if !ok || g.UserID != userID {
		return ledger.Goal{}, errs.ErrGoalNotFound
	}
	return g, nil
}

func (t *tx) CreateGoal(_ context.Context, g ledger.Goal) error {
	if _, ok := t.d.goals[g.ID]; ok {
		return fmt.Errorf("goal %s: %w", g.ID, errs.ErrConflict)
	}
	t.d.goals[g.ID] = g
	return nil
}

func (t *tx) SaveGoal(_ context.Context, g ledger.Goal) error {
	cur, ok := t.d.goals[g.ID]
	if !ok || cur.UserID != g.UserID {
		return errs.ErrGoalNotFound
	}
	t.d.goals[g.ID] = g
	return nil
}

func (t *tx) GetTransaction(_ context.Context, userID, txID uuid.UUID) (ledger.Transaction, error) {
	tr, ok := t.d.transactions[txID]
	if !ok || tr.UserID != userID {
		return ledger.Transaction{}, errs.ErrTransactionNotFound
	}
	return tr, nil
}

func (t *tx) ListTransactions(_ context.Context, userID uuid.UUID, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	out := make([]ledger.Transaction, 0)
	for _, tr := range t.d.transactions {
		if tr.UserID != userID || !matches(tr, f) {
			continue
		}
		out = append(out, tr)
	}
	sortTransactions(out)
	return out, nil
}

func matches(tr ledger.Transaction, f ledger.TransactionFilter) bool {
	if f.From != nil && tr.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && tr.Date.After(*f.To) {
		return false
	}
	if f.Kind != "" && tr.Kind != f.Kind {
		return false
	}
	if f.CardID != nil && (tr.CardID == nil || *tr.CardID != *f.CardID) {
		return false
	}
	if f.GroupID != nil && (tr.InstallmentGroupID == nil || *tr.InstallmentGroupID != *f.GroupID) {
		return false
	}
	return true
}

// sortTransactions orders by date, then installment index, then id.
func sortTransactions(ts []ledger.Transaction) {
	sort.Slice(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.InstallmentIndex != b.InstallmentIndex {
			return a.InstallmentIndex < b.InstallmentIndex
		}
		return a.ID.String() < b.ID.String()
	})
}

func (t *tx) CreateTransactions(_ context.Context, ts []ledger.Transaction) error {
	for _, tr := range ts {
		if _, ok := t.d.transactions[tr.ID]; ok {
			return fmt.Errorf("transaction %s: %w", tr.ID, errs.ErrConflict)
		}
	}
	for _, tr := range ts {
		t.d.transactions[tr.ID] = tr
	}
	return nil
}

func (t *tx) UpdateTransaction(_ context.Context, tr ledger.Transaction) error {
	cur, ok := t.d.transactions[tr.ID]
	if !ok || cur.UserID != tr.UserID {
		return errs.ErrTransactionNotFound
	}
	t.d.transactions[tr.ID] = tr
	return nil
}

func (t *tx) DeleteTransactions(_ context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	for _, id := range ids {
		if tr, ok := t.d.transactions[id]; ok && tr.UserID == userID {
			delete(t.d.transactions, id)
		}
	}
	return nil
}

func (t *tx) TransactionsByGroup(_ context.Context, userID, groupID uuid.UUID) ([]ledger.Transaction, error) {
	out := make([]ledger.Transaction, 0)
	for _, tr := range t.d.transactions {
		if tr.UserID == userID && tr.InstallmentGroupID != nil && *tr.InstallmentGroupID == groupID {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstallmentIndex < out[j].InstallmentIndex })
	return out, nil
}

func (t *tx) TransactionsByRecurrence(_ context.Context, userID, recurrenceID uuid.UUID) ([]ledger.Transaction, error) {
	out := make([]ledger.Transaction, 0)
	for _, tr := range t.d.transactions {
		if tr.UserID == userID && tr.RecurrenceID != nil && *tr.RecurrenceID == recurrenceID {
			out = append(out, tr)
		}
	}
	sortTransactions(out)
	return out, nil
}

func (t *tx) CardExpensesBetween(_ context.Context, userID, cardID uuid.UUID, from, to time.Time) ([]ledger.Transaction, error) {
	out := make([]ledger.Transaction, 0)
	for _, tr := range t.d.transactions {
		if tr.UserID != userID || tr.Kind != ledger.KindCardExpense || tr.CardID == nil || *tr.CardID != cardID {
			continue
		}
		if tr.Date.Before(from) || tr.Date.After(to) {
			continue
		}
		out = append(out, tr)
	}
	sortTransactions(out)
	return out, nil
}

func (t *tx) GetInvoice(_ context.Context, userID, invoiceID uuid.UUID) (ledger.Invoice, error) {
	inv, ok := t.d.invoices[invoiceID]
	if !ok || inv.UserID != userID {
		return ledger.Invoice{}, errs.ErrInvoiceNotFound
	}
	return inv, nil
}

func (t *tx) InvoiceByCardMonth(_ context.Context, userID, cardID uuid.UUID, month ledger.Month) (ledger.Invoice, error) {
	for _, inv := range t.d.invoices {
		if inv.UserID == userID && inv.CardID == cardID && inv.Month == month {
			return inv, nil
		}
	}
	return ledger.Invoice{}, errs.ErrInvoiceNotFound
}

func (t *tx) ListInvoices(_ context.Context, userID uuid.UUID, cardID *uuid.UUID) ([]ledger.Invoice, error) {
	out := make([]ledger.Invoice, 0)
	for _, inv := range t.d.invoices {
		if inv.UserID != userID {
			continue
		}
		if cardID != nil && inv.CardID != *cardID {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month.Before(out[j].Month)
		}
		return out[i].CardID.String() < out[j].CardID.String()
	})
	return out, nil
}

func (t *tx) CreateInvoice(_ context.Context, inv ledger.Invoice) error {
	for _, cur := range t.d.invoices {
		if cur.CardID == inv.CardID && cur.Month == inv.Month {
			return fmt.Errorf("invoice %s for card %s: %w", inv.Month, inv.CardID, errs.ErrConflict)
		}
	}
	t.d.invoices[inv.ID] = inv
	return nil
}

func (t *tx) SaveInvoice(_ context.Context, inv ledger.Invoice) error {
	cur, ok := t.d.invoices[inv.ID]
	if !ok || cur.UserID != inv.UserID {
		return errs.ErrInvoiceNotFound
	}
	t.d.invoices[inv.ID] = inv
	return nil
}
