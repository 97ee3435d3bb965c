package transaction

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/events"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/storage"
)

// Delete removes a transaction and reverts what it holds:
//   - installment #1 releases the whole group total and removes every row
//     of the group;
//   - installment #k (k > 1) releases its own amount and removes only itself;
//   - any other row reverts its effect if applied.
func (s *service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil || id == uuid.Nil {
		return errs.ErrInvalid
	}
	removed := 0
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		t, err := tx.GetTransaction(ctx, userID, id)
		if err != nil {
			return err
		}
		sc := scope(tx)
		switch {
		case t.IsGroupHead():
			removed, err = sc.deleteGroup(ctx, t)
		case t.IsInstallment && t.InstallmentGroupID != nil:
			removed, err = 1, sc.deleteInstallment(ctx, t)
		default:
			removed, err = 1, sc.deleteOne(ctx, t)
		}
		return err
	})
	if err != nil {
		return s.fail(ctx, "delete transaction", err)
	}
	s.publish(ctx, events.New(events.TransactionDeleted, userID, id, map[string]string{
		"count": strconv.Itoa(removed),
	}))
	return nil
}

func (sc txScope) deleteOne(ctx context.Context, t ledger.Transaction) error {
	if t.Applied {
		if err := ignoreMissing(sc.mut.Apply(ctx, t, true)); err != nil {
			return err
		}
	}
	if err := sc.tx.DeleteTransactions(ctx, t.UserID, []uuid.UUID{t.ID}); err != nil {
		return err
	}
	return sc.refreshInvoice(ctx, t)
}

func (sc txScope) deleteGroup(ctx context.Context, head ledger.Transaction) (int, error) {
	rows, err := sc.tx.TransactionsByGroup(ctx, head.UserID, *head.InstallmentGroupID)
	if err != nil {
		return 0, err
	}
	total, err := groupTotal(rows, head.Amount.Curr().Code())
	if err != nil {
		return 0, err
	}
	if err := ignoreMissing(sc.mut.ApplyAmount(ctx, head, total, true)); err != nil {
		return 0, err
	}
	if err := sc.tx.DeleteTransactions(ctx, head.UserID, ids(rows)); err != nil {
		return 0, err
	}
	return len(rows), sc.refreshInvoice(ctx, head)
}

func (sc txScope) deleteInstallment(ctx context.Context, t ledger.Transaction) error {
	if err := ignoreMissing(sc.mut.Apply(ctx, t, true)); err != nil {
		return err
	}
	// The head's original total follows the rows that remain.
	released := t
	released.Amount = ledger.Zero(t.Amount.Curr().Code())
	if err := sc.shiftGroupTotal(ctx, &released, t); err != nil {
		return err
	}
	if err := sc.tx.DeleteTransactions(ctx, t.UserID, []uuid.UUID{t.ID}); err != nil {
		return err
	}
	return sc.refreshInvoice(ctx, t)
}
