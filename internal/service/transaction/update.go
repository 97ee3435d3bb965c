package transaction

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/events"
	"github.com/tinoosan/fintrack/internal/installment"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/storage"
)

func (s *service) Update(ctx context.Context, userID, id uuid.UUID, p Patch, opts UpdateOptions) (UpdateResult, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return UpdateResult{}, errs.ErrInvalid
	}
	if err := p.check(); err != nil {
		return UpdateResult{}, err
	}
	var res UpdateResult
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		old, err := tx.GetTransaction(ctx, userID, id)
		if err != nil {
			return err
		}
		sc := scope(tx)
		if opts.ApplyToGroup && old.IsInstallment && old.InstallmentGroupID != nil {
			res, err = sc.updateGroup(ctx, old, p)
			return err
		}
		res, err = sc.updateOne(ctx, old, p, opts)
		return err
	})
	if err != nil {
		return UpdateResult{}, s.fail(ctx, "update transaction", err)
	}
	subject := id
	if len(res.Transactions) > 0 {
		subject = res.Transactions[0].ID
	}
	s.publish(ctx, events.New(events.TransactionUpdated, userID, subject, map[string]string{
		"count":          strconv.Itoa(res.Count),
		"apply_to_group": strconv.FormatBool(opts.ApplyToGroup),
	}))
	return res, nil
}

// updateOne reverts the stored effect of old, persists the merged row and
// applies its effect.
func (sc txScope) updateOne(ctx context.Context, old ledger.Transaction, p Patch, opts UpdateOptions) (UpdateResult, error) {
	if p.InstallmentCount != nil {
		return UpdateResult{}, errs.Validation("installment_count requires apply_to_group on an installment row")
	}
	if opts.RegenerateFixed && (!old.IsFixed || old.RecurrenceID == nil) {
		return UpdateResult{}, errs.Validation("regenerate_fixed requires a fixed transaction")
	}
	next := merge(old, p)
	if old.IsInstallment && (next.Kind != old.Kind || !sameID(next.CardID, old.CardID)) {
		return UpdateResult{}, errs.Validation("kind and card_id of an installment change with apply_to_group")
	}
	if old.IsFixed && next.Kind != ledger.KindIncome && next.Kind != ledger.KindExpense {
		return UpdateResult{}, errs.Validation("only income and expense can be fixed")
	}
	if err := validate(next); err != nil {
		return UpdateResult{}, err
	}
	if _, err := sc.checkRefs(ctx, next); err != nil {
		return UpdateResult{}, err
	}

	if old.Applied {
		if err := ignoreMissing(sc.mut.Apply(ctx, old, true)); err != nil {
			return UpdateResult{}, err
		}
	}
	if next.IsInstallment {
		if err := sc.shiftGroupTotal(ctx, &next, old); err != nil {
			return UpdateResult{}, err
		}
	}
	if err := sc.tx.UpdateTransaction(ctx, next); err != nil {
		return UpdateResult{}, err
	}
	if next.Applied {
		if err := sc.mut.Apply(ctx, next, false); err != nil {
			return UpdateResult{}, err
		}
	}
	if err := sc.refreshInvoice(ctx, old); err != nil {
		return UpdateResult{}, err
	}
	if err := sc.syncInvoice(ctx, next); err != nil {
		return UpdateResult{}, err
	}

	res := UpdateResult{Transactions: []ledger.Transaction{next}, Count: 1}
	if opts.RegenerateFixed {
		rows, err := sc.regenerateFixed(ctx, next)
		if err != nil {
			return UpdateResult{}, err
		}
		res.Transactions = append(res.Transactions, rows...)
		res.Count = len(res.Transactions)
	}
	return res, nil
}

// shiftGroupTotal keeps the head's original total equal to the sum of the
// group when one installment changes amount.
func (sc txScope) shiftGroupTotal(ctx context.Context, next *ledger.Transaction, old ledger.Transaction) error {
	delta, err := next.Amount.Sub(old.Amount)
	if err != nil {
		return err
	}
	if delta.IsZero() {
		return nil
	}
	if next.IsGroupHead() {
		if next.OriginalTotalAmount != nil {
			total, err := next.OriginalTotalAmount.Add(delta)
			if err != nil {
				return err
			}
			next.OriginalTotalAmount = &total
		}
		return nil
	}
	rows, err := sc.tx.TransactionsByGroup(ctx, next.UserID, *next.InstallmentGroupID)
	if err != nil {
		return err
	}
	head, ok := groupHead(rows)
	if !ok || head.OriginalTotalAmount == nil {
		return nil
	}
	total, err := head.OriginalTotalAmount.Add(delta)
	if err != nil {
		return err
	}
	head.OriginalTotalAmount = &total
	return sc.tx.UpdateTransaction(ctx, head)
}

// regenerateFixed replaces the inert rows of next's series dated after next
// with a fresh run, so the series again spans FixedOccurrences months from
// next. Rows on or before the edited date are left alone.
func (sc txScope) regenerateFixed(ctx context.Context, next ledger.Transaction) ([]ledger.Transaction, error) {
	series, err := sc.tx.TransactionsByRecurrence(ctx, next.UserID, *next.RecurrenceID)
	if err != nil {
		return nil, err
	}
	var drop []uuid.UUID
	for _, r := range series {
		if r.ID != next.ID && !r.Applied && r.Date.After(next.Date) {
			drop = append(drop, r.ID)
		}
	}
	if err := sc.tx.DeleteTransactions(ctx, next.UserID, drop); err != nil {
		return nil, err
	}
	base := next
	base.Applied = false
	rows := fixedRows(base, next.Date, 1, FixedOccurrences, *next.RecurrenceID)
	for i := range rows {
		rows[i].CreatedAt = next.CreatedAt
	}
	if err := sc.tx.CreateTransactions(ctx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// updateGroup releases the group's reservation, destroys its rows, re-splits
// the purchase with the patched total/count/start and reserves the new total.
// The released amount is the group's OriginalTotalAmount (the sum of the
// surviving rows when the head is gone), not the old per-installment amount
// times the old count, so a rounding remainder on the last part is released
// exactly once.
func (sc txScope) updateGroup(ctx context.Context, old ledger.Transaction, p Patch) (UpdateResult, error) {
	rows, err := sc.tx.TransactionsByGroup(ctx, old.UserID, *old.InstallmentGroupID)
	if err != nil {
		return UpdateResult{}, err
	}
	head, ok := groupHead(rows)
	if !ok {
		head = rows[0]
	}
	reserved, err := groupTotal(rows, old.Amount.Curr().Code())
	if err != nil {
		return UpdateResult{}, err
	}

	total := reserved
	if p.Amount != nil {
		total = *p.Amount
	}
	count := head.InstallmentCount
	if p.InstallmentCount != nil {
		count = *p.InstallmentCount
	}
	rowPatch := p
	rowPatch.Amount = &total
	rowPatch.InstallmentCount = nil
	next := merge(head, rowPatch)
	if next.Kind != ledger.KindCardExpense {
		return UpdateResult{}, errs.Validation("installments are only available for card_expense")
	}
	if err := validate(next); err != nil {
		return UpdateResult{}, err
	}
	plan, err := installment.Split(total, count, next.Date)
	if err != nil {
		return UpdateResult{}, err
	}
	if _, err := sc.checkRefs(ctx, next); err != nil {
		return UpdateResult{}, err
	}

	if err := ignoreMissing(sc.mut.ApplyAmount(ctx, head, reserved, true)); err != nil {
		return UpdateResult{}, err
	}
	if err := sc.tx.DeleteTransactions(ctx, old.UserID, ids(rows)); err != nil {
		return UpdateResult{}, err
	}

	var created []ledger.Transaction
	if count == 1 {
		t := next
		t.ID = uuid.New()
		t.IsInstallment = false
		t.InstallmentIndex, t.InstallmentCount = 0, 0
		t.InstallmentGroupID = nil
		t.OriginalTotalAmount = nil
		t.Applied = true
		created = []ledger.Transaction{t}
	} else {
		created = installmentRows(next, plan)
	}
	if err := sc.tx.CreateTransactions(ctx, created); err != nil {
		return UpdateResult{}, err
	}
	if err := sc.mut.ApplyAmount(ctx, created[0], total, false); err != nil {
		return UpdateResult{}, err
	}
	if err := sc.refreshInvoice(ctx, head); err != nil {
		return UpdateResult{}, err
	}
	if err := sc.syncInvoice(ctx, created[0]); err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Transactions: created, Count: count}, nil
}
