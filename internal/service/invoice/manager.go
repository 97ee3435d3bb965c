// Package invoice manages the per (card, month) invoice lifecycle:
// create-if-absent, recompute, pay and unpay. Paying and unpaying keep the
// card's available limit and the paying account's balance in lockstep with
// the invoice state.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/billing"
	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/service/balance"
	"github.com/tinoosan/fintrack/internal/storage"
)

// Repo is the storage surface the manager needs.
type Repo interface {
	balance.Repo
	CardExpensesBetween(ctx context.Context, userID, cardID uuid.UUID, from, to time.Time) ([]ledger.Transaction, error)
	GetInvoice(ctx context.Context, userID, invoiceID uuid.UUID) (ledger.Invoice, error)
	InvoiceByCardMonth(ctx context.Context, userID, cardID uuid.UUID, month ledger.Month) (ledger.Invoice, error)
	CreateInvoice(ctx context.Context, inv ledger.Invoice) error
	SaveInvoice(ctx context.Context, inv ledger.Invoice) error
}

var _ Repo = (storage.Tx)(nil)

// Manager runs invoice operations inside one storage transaction.
type Manager struct {
	repo Repo
	mut  *balance.Mutator
}

// NewManager binds a manager to repo, usually the current storage.Tx.
func NewManager(repo Repo) *Manager {
	return &Manager{repo: repo, mut: balance.New(repo)}
}

// Total sums the representative card expenses billed on card's invoice for
// month: standalone purchases and installment #1 of each group.
func (m *Manager) Total(ctx context.Context, card ledger.Card, month ledger.Month) (money.Amount, error) {
	curr := card.CreditLimit.Curr().Code()
	start, end, err := billing.Window(month, card.ClosingDay)
	if err != nil {
		return ledger.Zero(curr), err
	}
	rows, err := m.repo.CardExpensesBetween(ctx, card.UserID, card.ID, start, end)
	if err != nil {
		return ledger.Zero(curr), err
	}
	amounts := make([]money.Amount, 0, len(rows))
	for _, t := range rows {
		if t.CountsTowardInvoice() {
			amounts = append(amounts, t.Amount)
		}
	}
	return ledger.Sum(curr, amounts...)
}

// Ensure creates the invoice for (cardID, month) if missing, or recomputes
// the amount of the existing one. Paid state is never touched.
func (m *Manager) Ensure(ctx context.Context, userID, cardID uuid.UUID, month ledger.Month) (ledger.Invoice, error) {
	if !month.Valid() {
		return ledger.Invoice{}, fmt.Errorf("%s: %w", month, errs.ErrInvalidMonthFormat)
	}
	card, err := m.repo.GetCard(ctx, userID, cardID)
	if err != nil {
		return ledger.Invoice{}, err
	}
	total, err := m.Total(ctx, card, month)
	if err != nil {
		return ledger.Invoice{}, err
	}
	inv, err := m.repo.InvoiceByCardMonth(ctx, userID, cardID, month)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		inv = ledger.Invoice{ID: uuid.New(), CardID: cardID, UserID: userID, Month: month, Amount: total}
		err = m.repo.CreateInvoice(ctx, inv)
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, errs.ErrConflict) {
			return ledger.Invoice{}, err
		}
		// Lost a create race: the row exists now, recompute it instead.
		if inv, err = m.repo.InvoiceByCardMonth(ctx, userID, cardID, month); err != nil {
			return ledger.Invoice{}, err
		}
	case err != nil:
		return ledger.Invoice{}, err
	}
	inv.Amount = total
	if err := m.repo.SaveInvoice(ctx, inv); err != nil {
		return ledger.Invoice{}, err
	}
	return inv, nil
}

// Refresh recomputes the invoice for (cardID, month) only when it already
// exists. A missing card or invoice is not an error.
func (m *Manager) Refresh(ctx context.Context, userID, cardID uuid.UUID, month ledger.Month) error {
	card, err := m.repo.GetCard(ctx, userID, cardID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	inv, err := m.repo.InvoiceByCardMonth(ctx, userID, cardID, month)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if inv.Amount, err = m.Total(ctx, card, month); err != nil {
		return err
	}
	return m.repo.SaveInvoice(ctx, inv)
}

// MarkPaid records a payment of paidAmount. The card gets back
// min(paidAmount, CreditLimit-AvailableLimit) and the paying account, when
// given, is debited by paidAmount.
func (m *Manager) MarkPaid(ctx context.Context, userID, invoiceID uuid.UUID, paidAmount money.Amount, paymentDate time.Time, payingAccountID *uuid.UUID) (ledger.Invoice, error) {
	if !paidAmount.IsPos() {
		return ledger.Invoice{}, fmt.Errorf("paid amount must be > 0: %w", errs.ErrInvalidAmount)
	}
	if _, err := ledger.Exact(paidAmount); err != nil {
		return ledger.Invoice{}, err
	}
	inv, err := m.repo.GetInvoice(ctx, userID, invoiceID)
	if err != nil {
		return ledger.Invoice{}, err
	}
	if inv.Paid {
		return ledger.Invoice{}, fmt.Errorf("invoice %s already paid: %w", invoiceID, errs.ErrConflict)
	}
	card, err := m.repo.GetCard(ctx, userID, inv.CardID)
	if err != nil {
		return ledger.Invoice{}, err
	}
	if payingAccountID != nil {
		if _, err := m.repo.GetAccount(ctx, userID, *payingAccountID); err != nil {
			return ledger.Invoice{}, err
		}
	}

	used, err := card.CreditLimit.Sub(card.AvailableLimit)
	if err != nil {
		return ledger.Invoice{}, err
	}
	release, err := ledger.Clamp(paidAmount, ledger.Zero(paidAmount.Curr().Code()), used)
	if err != nil {
		return ledger.Invoice{}, err
	}
	if _, err := m.mut.ApplyCardEffect(ctx, userID, card.ID, release, true); err != nil {
		return ledger.Invoice{}, err
	}
	if err := m.mut.ApplyAccountEffect(ctx, userID, payingAccountID, paidAmount, balance.EffectCardPayment, false); err != nil {
		return ledger.Invoice{}, err
	}

	paid := paidAmount
	date := paymentDate.UTC()
	inv.Paid = true
	inv.Amount = paidAmount
	inv.PaymentDate = &date
	inv.PaidAmount = &paid
	inv.PaidFromAccountID = payingAccountID
	if err := m.repo.SaveInvoice(ctx, inv); err != nil {
		return ledger.Invoice{}, err
	}
	return inv, nil
}

// MarkUnpaid reopens a paid invoice. The amount owed is recomputed from the
// current transactions and reserved again on the card (clamped); the
// recorded payment, if debited from an account, is refunded.
func (m *Manager) MarkUnpaid(ctx context.Context, userID, invoiceID uuid.UUID) (ledger.Invoice, error) {
	inv, err := m.repo.GetInvoice(ctx, userID, invoiceID)
	if err != nil {
		return ledger.Invoice{}, err
	}
	if !inv.Paid {
		return ledger.Invoice{}, fmt.Errorf("invoice %s is not paid: %w", invoiceID, errs.ErrConflict)
	}
	card, err := m.repo.GetCard(ctx, userID, inv.CardID)
	if err != nil {
		return ledger.Invoice{}, err
	}
	total, err := m.Total(ctx, card, inv.Month)
	if err != nil {
		return ledger.Invoice{}, err
	}
	if _, err := m.mut.ApplyCardEffect(ctx, userID, card.ID, total, false); err != nil {
		return ledger.Invoice{}, err
	}
	if inv.PaidAmount != nil {
		if err := m.mut.ApplyAccountEffect(ctx, userID, inv.PaidFromAccountID, *inv.PaidAmount, balance.EffectCardPayment, true); err != nil {
			return ledger.Invoice{}, err
		}
	}

	inv.Paid = false
	inv.Amount = total
	inv.PaymentDate = nil
	inv.PaidAmount = nil
	inv.PaidFromAccountID = nil
	if err := m.repo.SaveInvoice(ctx, inv); err != nil {
		return ledger.Invoice{}, err
	}
	return inv, nil
}
