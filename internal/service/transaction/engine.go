// Package transaction orchestrates the lifecycle of ledger transactions:
// single rows, installment groups and fixed monthly series.
//
// Every operation validates its input first and then runs as one storage
// transaction: the stored effect of a row is reverted before the new one is
// applied, and grouped edits destroy and recreate the group, so a failure at
// any step leaves balances, limits and invoices as they were.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/billing"
	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/events"
	"github.com/tinoosan/fintrack/internal/installment"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/service/balance"
	"github.com/tinoosan/fintrack/internal/service/invoice"
	"github.com/tinoosan/fintrack/internal/storage"
)

type Service interface {
	// Create returns every row written: one for a single transaction, the
	// installments of a split, or the occurrences of a fixed series.
	Create(ctx context.Context, in Intent) ([]ledger.Transaction, error)
	Update(ctx context.Context, userID, id uuid.UUID, p Patch, opts UpdateOptions) (UpdateResult, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	Get(ctx context.Context, userID, id uuid.UUID) (ledger.Transaction, error)
	List(ctx context.Context, userID uuid.UUID, f ledger.TransactionFilter) ([]ledger.Transaction, error)
}

type service struct {
	store  storage.Store
	pub    events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func New(store storage.Store, pub events.Publisher, logger *slog.Logger) Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &service{store: store, pub: pub, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// txScope bundles the helpers bound to one storage transaction.
type txScope struct {
	tx  storage.Tx
	mut *balance.Mutator
	inv *invoice.Manager
}

func scope(tx storage.Tx) txScope {
	return txScope{tx: tx, mut: balance.New(tx), inv: invoice.NewManager(tx)}
}

func (s *service) Create(ctx context.Context, in Intent) ([]ledger.Transaction, error) {
	plan, err := validateIntent(in)
	if err != nil {
		return nil, err
	}
	base := in.row()
	base.CreatedAt = s.now()

	var rows []ledger.Transaction
	err = s.store.InTx(ctx, func(tx storage.Tx) error {
		sc := scope(tx)
		card, err := sc.checkRefs(ctx, base)
		if err != nil {
			return err
		}
		switch {
		case plan != nil:
			rows = installmentRows(base, *plan)
			if err := tx.CreateTransactions(ctx, rows); err != nil {
				return err
			}
			// The whole purchase is reserved against the limit at once.
			if err := sc.mut.ApplyAmount(ctx, rows[0], plan.Total, false); err != nil {
				return err
			}
		case in.Fixed:
			rows = fixedRows(base, base.Date, 0, FixedOccurrences, uuid.New())
			if err := tx.CreateTransactions(ctx, rows); err != nil {
				return err
			}
			if err := sc.mut.Apply(ctx, rows[0], false); err != nil {
				return err
			}
		default:
			t := base
			t.ID = uuid.New()
			t.Applied = true
			rows = []ledger.Transaction{t}
			if err := tx.CreateTransactions(ctx, rows); err != nil {
				return err
			}
			if err := sc.mut.Apply(ctx, t, false); err != nil {
				return err
			}
		}
		if card != nil {
			_, err := sc.inv.Ensure(ctx, base.UserID, card.ID, billing.InvoiceMonth(rows[0].Date, card.ClosingDay))
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "create transaction", err)
	}
	s.publish(ctx, events.New(events.TransactionCreated, in.UserID, rows[0].ID, map[string]string{
		"kind":  string(in.Kind),
		"count": strconv.Itoa(len(rows)),
	}))
	return rows, nil
}

func (s *service) Get(ctx context.Context, userID, id uuid.UUID) (ledger.Transaction, error) {
	var out ledger.Transaction
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.GetTransaction(ctx, userID, id)
		return err
	})
	if err != nil {
		return ledger.Transaction{}, s.fail(ctx, "get transaction", err)
	}
	return out, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	if userID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, errs.Validation(fmt.Sprintf("unknown kind %q", f.Kind))
	}
	var out []ledger.Transaction
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.ListTransactions(ctx, userID, f)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "list transactions", err)
	}
	return out, nil
}

// checkRefs verifies that every account, card and goal t points to exists.
// It returns the card for card expenses.
func (sc txScope) checkRefs(ctx context.Context, t ledger.Transaction) (*ledger.Card, error) {
	for _, id := range []*uuid.UUID{t.SourceAccountID, t.DestAccountID} {
		if id == nil {
			continue
		}
		if _, err := sc.tx.GetAccount(ctx, t.UserID, *id); err != nil {
			return nil, err
		}
	}
	if t.GoalID != nil {
		if _, err := sc.tx.GetGoal(ctx, t.UserID, *t.GoalID); err != nil {
			return nil, err
		}
	}
	if t.CardID == nil {
		return nil, nil
	}
	card, err := sc.tx.GetCard(ctx, t.UserID, *t.CardID)
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// syncInvoice recomputes the invoice a card expense belongs to. Representative
// rows make sure the invoice exists; other rows only refresh an existing one.
func (sc txScope) syncInvoice(ctx context.Context, t ledger.Transaction) error {
	return sc.invoiceOf(ctx, t, t.CountsTowardInvoice())
}

// refreshInvoice recomputes the invoice t belonged to, if it exists.
func (sc txScope) refreshInvoice(ctx context.Context, t ledger.Transaction) error {
	return sc.invoiceOf(ctx, t, false)
}

// invoiceOf skips rows that are not card expenses or whose card is gone.
func (sc txScope) invoiceOf(ctx context.Context, t ledger.Transaction, ensure bool) error {
	if t.Kind != ledger.KindCardExpense || t.CardID == nil {
		return nil
	}
	card, err := sc.tx.GetCard(ctx, t.UserID, *t.CardID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	month := billing.InvoiceMonth(t.Date, card.ClosingDay)
	if ensure {
		_, err = sc.inv.Ensure(ctx, t.UserID, card.ID, month)
		return err
	}
	return sc.inv.Refresh(ctx, t.UserID, card.ID, month)
}

// installmentRows turns a split plan into rows. All rows are Applied: the
// group reservation covers every part.
func installmentRows(base ledger.Transaction, plan installment.Plan) []ledger.Transaction {
	rows := make([]ledger.Transaction, 0, len(plan.Installments))
	for _, in := range plan.Installments {
		r := base
		gid := plan.GroupID
		r.ID = uuid.New()
		r.Amount = in.Amount
		r.Date = in.Date
		r.IsInstallment = true
		r.InstallmentIndex = in.Index
		r.InstallmentCount = in.Count
		r.InstallmentGroupID = &gid
		r.OriginalTotalAmount = in.OriginalTotal
		r.IsFixed = false
		r.RecurrenceID = nil
		r.Applied = true
		rows = append(rows, r)
	}
	return rows
}

// fixedRows generates occurrences from..to-1 of a monthly series anchored at
// start. Only occurrence 0 is Applied; later ones are inert records.
func fixedRows(base ledger.Transaction, start time.Time, from, to int, recurrenceID uuid.UUID) []ledger.Transaction {
	rows := make([]ledger.Transaction, 0, to-from)
	for i := from; i < to; i++ {
		r := base
		rid := recurrenceID
		r.ID = uuid.New()
		r.Date = start.AddDate(0, i, 0)
		r.IsFixed = true
		r.RecurrenceID = &rid
		r.Applied = i == 0
		r.IsInstallment = false
		r.InstallmentIndex, r.InstallmentCount = 0, 0
		r.InstallmentGroupID = nil
		r.OriginalTotalAmount = nil
		rows = append(rows, r)
	}
	return rows
}

// groupHead returns installment #1 of rows.
func groupHead(rows []ledger.Transaction) (ledger.Transaction, bool) {
	for _, r := range rows {
		if r.InstallmentIndex == 1 {
			return r, true
		}
	}
	return ledger.Transaction{}, false
}

// groupTotal is what a group holds against the card: the head's original
// total, or the sum of the remaining rows when that is absent.
func groupTotal(rows []ledger.Transaction, curr string) (money.Amount, error) {
	if head, ok := groupHead(rows); ok && head.OriginalTotalAmount != nil {
		return *head.OriginalTotalAmount, nil
	}
	amounts := make([]money.Amount, len(rows))
	for i, r := range rows {
		amounts[i] = r.Amount
	}
	return ledger.Sum(curr, amounts...)
}

func ids(rows []ledger.Transaction) []uuid.UUID {
	out := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ignoreMissing drops not-found errors from reverting an effect: a deleted
// account, card or goal is not repaired.
func ignoreMissing(err error) error {
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	return err
}

// fail returns domain errors untouched and hides anything else behind
// ErrOperationFailed after logging the cause.
func (s *service) fail(ctx context.Context, op string, err error) error {
	if errs.IsDomain(err) {
		return err
	}
	s.logger.ErrorContext(ctx, op+" failed", "err", err)
	return fmt.Errorf("%s: %w", op, errs.ErrOperationFailed)
}

func (s *service) publish(ctx context.Context, e events.Event) {
	if err := s.pub.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "publish event failed", "event", e.Name, "err", err)
	}
}
