// Package installment splits a purchase into monthly installments.
//
// Rounding policy: every installment but the last gets total/count rounded to
// the currency's minor unit; the last one absorbs the remainder, so a group
// always sums to the original total and matches previously issued invoices
// cent for cent. Totals finer than the minor unit are rejected.
package installment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
)

// MaxInstallments bounds the number of parts a purchase can be split into.
const MaxInstallments = 999

// Installment is one part of a split purchase.
type Installment struct {
	Index  int
	Count  int
	Amount money.Amount
	Date   time.Time
	// OriginalTotal is only set on the first installment.
	OriginalTotal *money.Amount
}

// Plan is the result of a split: installments sharing one group id.
type Plan struct {
	GroupID      uuid.UUID
	Total        money.Amount
	Installments []Installment
}

// Split divides total into count installments, the first dated start and
// each following one a calendar month later.
func Split(total money.Amount, count int, start time.Time) (Plan, error) {
	if count < 1 || count > MaxInstallments {
		return Plan{}, fmt.Errorf("%d parts: %w", count, errs.ErrInvalidInstallmentCount)
	}
	if !total.IsPos() {
		return Plan{}, fmt.Errorf("total must be > 0: %w", errs.ErrInvalidAmount)
	}
	total, err := ledger.Exact(total)
	if err != nil {
		return Plan{}, err
	}
	code, scale := total.Curr().Code(), total.Curr().Scale()
	parts, err := decimal.New(int64(count), 0)
	if err != nil {
		return Plan{}, err
	}
	exact, err := total.Quo(parts)
	if err != nil {
		return Plan{}, err
	}
	if count > 1 {
		cent := money.MustNewAmount(code, 1, scale)
		c, err := exact.Cmp(cent)
		if err != nil {
			return Plan{}, err
		}
		if c < 0 {
			return Plan{}, fmt.Errorf("share below one cent: %w", errs.ErrInvalidAmount)
		}
	}
	share := exact.Round(scale)

	plan := Plan{GroupID: uuid.New(), Total: total, Installments: make([]Installment, 0, count)}
	allocated := ledger.Zero(code)
	for i := 1; i <= count; i++ {
		amt := share
		if i == count {
			amt, err = total.Sub(allocated)
			if err != nil {
				return Plan{}, err
			}
			if !amt.IsPos() {
				return Plan{}, fmt.Errorf("rounding leaves last installment at %s: %w", amt.Decimal(), errs.ErrInvariantViolation)
			}
		} else {
			allocated, err = allocated.Add(share)
			if err != nil {
				return Plan{}, err
			}
		}
		inst := Installment{Index: i, Count: count, Amount: amt, Date: start.AddDate(0, i-1, 0)}
		if i == 1 {
			t := total
			inst.OriginalTotal = &t
		}
		plan.Installments = append(plan.Installments, inst)
	}
	return plan, nil
}
