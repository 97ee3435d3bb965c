package transaction

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/installment"
	"github.com/tinoosan/fintrack/internal/ledger"
)

// FixedOccurrences is how many monthly rows a fixed transaction generates.
const FixedOccurrences = 12

// Intent describes a transaction to create.
type Intent struct {
	UserID uuid.UUID
	Title  string
	// Amount is the purchase total; for installments it is split.
	Amount          money.Amount
	Kind            ledger.TransactionKind
	Date            time.Time
	CategoryID      *uuid.UUID
	SourceAccountID *uuid.UUID
	DestAccountID   *uuid.UUID
	CardID          *uuid.UUID
	GoalID          *uuid.UUID
	// Installments > 1 splits a card expense into monthly parts.
	Installments int
	// Fixed generates FixedOccurrences monthly rows of an income or expense.
	Fixed bool
}

func (in Intent) row() ledger.Transaction {
	return ledger.Transaction{
		UserID:          in.UserID,
		Title:           strings.TrimSpace(in.Title),
		Amount:          in.Amount,
		Kind:            in.Kind,
		Date:            in.Date.UTC(),
		CategoryID:      in.CategoryID,
		SourceAccountID: in.SourceAccountID,
		DestAccountID:   in.DestAccountID,
		CardID:          in.CardID,
		GoalID:          in.GoalID,
	}
}

// Patch lists the fields an update changes; nil means unchanged.
type Patch struct {
	Title *string
	// Amount is the per-row amount, or the new purchase total when the
	// update applies to a whole installment group.
	Amount          *money.Amount
	Kind            *ledger.TransactionKind
	Date            *time.Time
	CategoryID      *uuid.UUID
	SourceAccountID *uuid.UUID
	DestAccountID   *uuid.UUID
	CardID          *uuid.UUID
	GoalID          *uuid.UUID
	// InstallmentCount re-splits a group; only valid with ApplyToGroup.
	InstallmentCount *int
}

// UpdateOptions selects the update flavor.
type UpdateOptions struct {
	// ApplyToGroup rewrites the whole installment group of the row.
	ApplyToGroup bool
	// RegenerateFixed replaces the inert future rows of a fixed series with
	// a fresh set starting at the edited date.
	RegenerateFixed bool
}

// UpdateResult holds the rows written by an update. Count is the number of
// rows in the result; grouped updates report the new installment count.
type UpdateResult struct {
	Transactions []ledger.Transaction
	Count        int
}

func (p Patch) check() error {
	if p.Amount != nil {
		if !p.Amount.IsPos() {
			return fmt.Errorf("amount must be > 0: %w", errs.ErrInvalidAmount)
		}
		if _, err := ledger.Exact(*p.Amount); err != nil {
			return err
		}
	}
	if p.Kind != nil && !p.Kind.Valid() {
		return errs.Validation(fmt.Sprintf("unknown kind %q", *p.Kind))
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return errs.Validation("title is required")
	}
	if p.Date != nil && p.Date.IsZero() {
		return errs.Validation("date is required")
	}
	if p.InstallmentCount != nil && (*p.InstallmentCount < 1 || *p.InstallmentCount > installment.MaxInstallments) {
		return fmt.Errorf("%d parts: %w", *p.InstallmentCount, errs.ErrInvalidInstallmentCount)
	}
	return nil
}

// merge applies p on top of old. When the kind changes, references that the
// new kind does not use are dropped before the patch fields are applied.
func merge(old ledger.Transaction, p Patch) ledger.Transaction {
	next := old
	if p.Kind != nil && *p.Kind != old.Kind {
		next.Kind = *p.Kind
		strip(&next)
	}
	if p.Title != nil {
		next.Title = strings.TrimSpace(*p.Title)
	}
	if p.Amount != nil {
		next.Amount = *p.Amount
	}
	if p.Date != nil {
		next.Date = p.Date.UTC()
	}
	if p.CategoryID != nil {
		next.CategoryID = p.CategoryID
	}
	if p.SourceAccountID != nil {
		next.SourceAccountID = p.SourceAccountID
	}
	if p.DestAccountID != nil {
		next.DestAccountID = p.DestAccountID
	}
	if p.CardID != nil {
		next.CardID = p.CardID
	}
	if p.GoalID != nil {
		next.GoalID = p.GoalID
	}
	return next
}

// strip clears references the kind of t does not use.
func strip(t *ledger.Transaction) {
	r := rulesFor(t.Kind)
	if !r.source {
		t.SourceAccountID = nil
	}
	if !r.dest {
		t.DestAccountID = nil
	}
	if !r.card {
		t.CardID = nil
	}
	if !r.goal {
		t.GoalID = nil
	}
}

// refRules lists which references a kind accepts and which it requires.
type refRules struct {
	source, dest, card, goal bool
	needSource, needDest     bool
	needCard, needGoal       bool
}

func rulesFor(k ledger.TransactionKind) refRules {
	switch k {
	case ledger.KindIncome, ledger.KindExpense:
		return refRules{source: true, needSource: true}
	case ledger.KindTransfer:
		return refRules{source: true, dest: true, needSource: true, needDest: true}
	case ledger.KindCardExpense:
		return refRules{source: true, card: true, needCard: true}
	case ledger.KindGoalDeposit:
		return refRules{source: true, goal: true, needGoal: true}
	}
	return refRules{}
}

// validate checks a complete row. It never touches storage.
func validate(t ledger.Transaction) error {
	if t.UserID == uuid.Nil {
		return errs.Validation("user_id is required")
	}
	if t.Title == "" {
		return errs.Validation("title is required")
	}
	if !t.Kind.Valid() {
		return errs.Validation(fmt.Sprintf("unknown kind %q", t.Kind))
	}
	if !t.Amount.IsPos() {
		return fmt.Errorf("amount must be > 0: %w", errs.ErrInvalidAmount)
	}
	if _, err := ledger.Exact(t.Amount); err != nil {
		return err
	}
	if t.Date.IsZero() {
		return errs.Validation("date is required")
	}
	r := rulesFor(t.Kind)
	switch {
	case r.needSource && t.SourceAccountID == nil:
		return errs.Validation(fmt.Sprintf("%s requires source_account_id", t.Kind))
	case r.needDest && t.DestAccountID == nil:
		return errs.Validation(fmt.Sprintf("%s requires dest_account_id", t.Kind))
	case r.needCard && t.CardID == nil:
		return errs.Validation(fmt.Sprintf("%s requires card_id", t.Kind))
	case r.needGoal && t.GoalID == nil:
		return errs.Validation(fmt.Sprintf("%s requires goal_id", t.Kind))
	case !r.source && t.SourceAccountID != nil:
		return errs.Validation(fmt.Sprintf("%s does not take source_account_id", t.Kind))
	case !r.dest && t.DestAccountID != nil:
		return errs.Validation(fmt.Sprintf("%s does not take dest_account_id", t.Kind))
	case !r.card && t.CardID != nil:
		return errs.Validation(fmt.Sprintf("%s does not take card_id", t.Kind))
	case !r.goal && t.GoalID != nil:
		return errs.Validation(fmt.Sprintf("%s does not take goal_id", t.Kind))
	}
	if t.Kind == ledger.KindTransfer && *t.SourceAccountID == *t.DestAccountID {
		return errs.Validation("transfer accounts must differ")
	}
	return nil
}

// validateIntent checks everything about in that does not need storage and
// returns the installment plan when the intent is split.
func validateIntent(in Intent) (*installment.Plan, error) {
	if err := validate(in.row()); err != nil {
		return nil, err
	}
	if in.Installments < 0 || in.Installments > installment.MaxInstallments {
		return nil, fmt.Errorf("%d parts: %w", in.Installments, errs.ErrInvalidInstallmentCount)
	}
	if in.Fixed {
		if in.Kind != ledger.KindIncome && in.Kind != ledger.KindExpense {
			return nil, errs.Validation("only income and expense can be fixed")
		}
		if in.Installments > 1 {
			return nil, errs.Validation("a fixed transaction cannot have installments")
		}
	}
	if in.Installments <= 1 {
		return nil, nil
	}
	if in.Kind != ledger.KindCardExpense {
		return nil, errs.Validation("installments are only available for card_expense")
	}
	plan, err := installment.Split(in.Amount, in.Installments, in.Date.UTC())
	if err != nil {
		return nil, err
	}
	return &plan, nil
}
