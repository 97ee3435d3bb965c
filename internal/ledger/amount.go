package ledger

import (
	"fmt"

	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/errs"
)

// Zero returns a zero amount in curr at the currency's scale.
func Zero(curr string) money.Amount {
	return money.MustNewAmount(curr, 0, money.MustParseCurr(curr).Scale())
}

// Clamp bounds a to [lo, hi].
func Clamp(a, lo, hi money.Amount) (money.Amount, error) {
	if c, err := a.Cmp(lo); err != nil {
		return a, err
	} else if c < 0 {
		return lo, nil
	}
	if c, err := a.Cmp(hi); err != nil {
		return a, err
	} else if c > 0 {
		return hi, nil
	}
	return a, nil
}

// Sum adds amounts together starting from zero in curr.
func Sum(curr string, amounts ...money.Amount) (money.Amount, error) {
	total := Zero(curr)
	for _, a := range amounts {
		v, err := total.Add(a)
		if err != nil {
			return total, err
		}
		total = v
	}
	return total, nil
}

// Exact trims trailing zeros down to the currency scale and rejects amounts
// that still carry more decimals than the currency has ("10.005" BRL).
// Every stored amount must be exact so minor units round-trip unchanged.
func Exact(a money.Amount) (money.Amount, error) {
	scale := a.Curr().Scale()
	t := a.Trim(scale)
	if t.Scale() > scale {
		return a, fmt.Errorf("%s has more than %d decimals: %w", a.Decimal(), scale, errs.ErrInvalidAmount)
	}
	if _, err := Minor(t); err != nil {
		return a, err
	}
	return t, nil
}

// Minor returns the amount in minor units (cents). It fails when the amount
// does not fit in an int64.
func Minor(a money.Amount) (int64, error) {
	units, ok := a.MinorUnits()
	if !ok {
		return 0, fmt.Errorf("%s overflows minor units: %w", a.Decimal(), errs.ErrInvalidAmount)
	}
	return units, nil
}

// Minors converts several amounts to minor units, stopping at the first failure.
func Minors(amounts ...money.Amount) ([]int64, error) {
	out := make([]int64, len(amounts))
	for i, a := range amounts {
		m, err := Minor(a)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}
