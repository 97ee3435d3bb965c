// Package balance applies and reverts the monetary side effect of a
// transaction on accounts, cards and goals.
//
// A Mutator is bound to one storage transaction. Effects are not idempotent:
// callers revert exactly once before re-applying on edit and exactly once on
// delete.
package balance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/storage"
)

// Repo is the state the mutator reads and writes.
type Repo interface {
	GetAccount(ctx context.Context, userID, accountID uuid.UUID) (ledger.Account, error)
	SaveAccount(ctx context.Context, a ledger.Account) error
	GetCard(ctx context.Context, userID, cardID uuid.UUID) (ledger.Card, error)
	SaveCard(ctx context.Context, c ledger.Card) error
	GetGoal(ctx context.Context, userID, goalID uuid.UUID) (ledger.Goal, error)
	SaveGoal(ctx context.Context, g ledger.Goal) error
}

var _ Repo = (storage.Tx)(nil)

// Effect names the direction an amount moves an account balance.
type Effect int

const (
	// EffectIncome credits the account.
	EffectIncome Effect = iota + 1
	// EffectExpense debits the account.
	EffectExpense
	// EffectCardPayment debits the account paying a card invoice.
	EffectCardPayment
	// EffectGoalDeposit debits the account funding a goal.
	EffectGoalDeposit
)

func (e Effect) credits() bool { return e == EffectIncome }

// Mutator applies ledger effects through a Repo.
type Mutator struct {
	repo Repo
}

// New binds a mutator to repo, usually the current storage.Tx.
func New(repo Repo) *Mutator { return &Mutator{repo: repo} }

// ApplyAccountEffect moves amount on one account. It is a no-op when
// accountID is nil or the account no longer exists.
func (m *Mutator) ApplyAccountEffect(ctx context.Context, userID uuid.UUID, accountID *uuid.UUID, amount money.Amount, effect Effect, revert bool) error {
	if accountID == nil {
		return nil
	}
	acc, err := m.repo.GetAccount(ctx, userID, *accountID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	credit := effect.credits() != revert
	if acc.Balance, err = move(acc.Balance, amount, credit); err != nil {
		return err
	}
	return m.repo.SaveAccount(ctx, acc)
}

// ApplyTransferEffect debits from and credits to (or the reverse when
// revert is set). Both accounts are loaded before either is written; if one
// side is missing nothing changes.
func (m *Mutator) ApplyTransferEffect(ctx context.Context, userID uuid.UUID, from, to *uuid.UUID, amount money.Amount, revert bool) error {
	if from == nil || to == nil {
		return nil
	}
	src, err := m.repo.GetAccount(ctx, userID, *from)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	dst, err := m.repo.GetAccount(ctx, userID, *to)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if src.Balance, err = move(src.Balance, amount, revert); err != nil {
		return err
	}
	if dst.Balance, err = move(dst.Balance, amount, !revert); err != nil {
		return err
	}
	if err := m.repo.SaveAccount(ctx, src); err != nil {
		return err
	}
	return m.repo.SaveAccount(ctx, dst)
}

// ApplyCardEffect reserves amount against the card's available limit, or
// releases it when revert is set. The result is clamped to [0, CreditLimit].
func (m *Mutator) ApplyCardEffect(ctx context.Context, userID, cardID uuid.UUID, amount money.Amount, revert bool) (ledger.Card, error) {
	card, err := m.repo.GetCard(ctx, userID, cardID)
	if errors.Is(err, errs.ErrNotFound) {
		return ledger.Card{}, fmt.Errorf("card %s: %w", cardID, errs.ErrCardNotFound)
	}
	if err != nil {
		return ledger.Card{}, err
	}
	next, err := move(card.AvailableLimit, amount, revert)
	if err != nil {
		return ledger.Card{}, err
	}
	if card.AvailableLimit, err = ledger.Clamp(next, ledger.Zero(card.CreditLimit.Curr().Code()), card.CreditLimit); err != nil {
		return ledger.Card{}, err
	}
	if err := m.repo.SaveCard(ctx, card); err != nil {
		return ledger.Card{}, err
	}
	return card, nil
}

// ApplyGoalEffect adds amount to the goal's current amount (subtracts on revert).
func (m *Mutator) ApplyGoalEffect(ctx context.Context, userID, goalID uuid.UUID, amount money.Amount, revert bool) error {
	g, err := m.repo.GetGoal(ctx, userID, goalID)
	if errors.Is(err, errs.ErrNotFound) {
		return fmt.Errorf("goal %s: %w", goalID, errs.ErrGoalNotFound)
	}
	if err != nil {
		return err
	}
	if g.CurrentAmount, err = move(g.CurrentAmount, amount, !revert); err != nil {
		return err
	}
	return m.repo.SaveGoal(ctx, g)
}

// Apply applies (or reverts) the stored effect of t using t.Amount.
func (m *Mutator) Apply(ctx context.Context, t ledger.Transaction, revert bool) error {
	return m.ApplyAmount(ctx, t, t.Amount, revert)
}

// ApplyAmount applies the effect of t's kind with an explicit amount. Grouped
// installment purchases use it to reserve or release a whole group at once.
func (m *Mutator) ApplyAmount(ctx context.Context, t ledger.Transaction, amount money.Amount, revert bool) error {
	switch t.Kind {
	case ledger.KindIncome:
		return m.ApplyAccountEffect(ctx, t.UserID, t.SourceAccountID, amount, EffectIncome, revert)
	case ledger.KindExpense:
		return m.ApplyAccountEffect(ctx, t.UserID, t.SourceAccountID, amount, EffectExpense, revert)
	case ledger.KindTransfer:
		return m.ApplyTransferEffect(ctx, t.UserID, t.SourceAccountID, t.DestAccountID, amount, revert)
	case ledger.KindCardExpense:
		if t.CardID == nil {
			return errs.Validation("card_expense requires card_id")
		}
		_, err := m.ApplyCardEffect(ctx, t.UserID, *t.CardID, amount, revert)
		return err
	case ledger.KindGoalDeposit:
		if t.GoalID == nil {
			return errs.Validation("goal_deposit requires goal_id")
		}
		if err := m.ApplyGoalEffect(ctx, t.UserID, *t.GoalID, amount, revert); err != nil {
			return err
		}
		return m.ApplyAccountEffect(ctx, t.UserID, t.SourceAccountID, amount, EffectGoalDeposit, revert)
	default:
		return errs.Validation(fmt.Sprintf("unknown transaction kind %q", t.Kind))
	}
}

// move adds amount to v when credit is set and subtracts it otherwise.
func move(v, amount money.Amount, credit bool) (money.Amount, error) {
	if credit {
		return v.Add(amount)
	}
	return v.Sub(amount)
}
