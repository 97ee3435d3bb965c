package installment

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/fintrack/internal/errs"
)

func brl(s string) money.Amount { return money.MustParseAmount("BRL", s) }

func sumOf(t *testing.T, p Plan) money.Amount {
	t.Helper()
	total := money.MustNewAmount("BRL", 0, 2)
	for _, in := range p.Installments {
		var err error
		total, err = total.Add(in.Amount)
		require.NoError(t, err)
	}
	return total
}

func TestSplit_RemainderOnLast(t *testing.T) {
	start := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	p, err := Split(brl("100.00"), 3, start)
	require.NoError(t, err)
	require.Len(t, p.Installments, 3)
	require.Equal(t, "33.33", p.Installments[0].Amount.Decimal().String())
	require.Equal(t, "33.33", p.Installments[1].Amount.Decimal().String())
	require.Equal(t, "33.34", p.Installments[2].Amount.Decimal().String())
	require.NotEqual(t, uuid.Nil, p.GroupID)

	require.NotNil(t, p.Installments[0].OriginalTotal)
	require.Equal(t, "100.00", p.Installments[0].OriginalTotal.Decimal().String())
	require.Nil(t, p.Installments[1].OriginalTotal)
	require.Nil(t, p.Installments[2].OriginalTotal)

	require.Equal(t, start, p.Installments[0].Date)
	require.Equal(t, time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC), p.Installments[1].Date)
	require.Equal(t, time.Date(2024, time.May, 15, 0, 0, 0, 0, time.UTC), p.Installments[2].Date)
}

func TestSplit_SingleInstallment(t *testing.T) {
	p, err := Split(brl("42.10"), 1, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, p.Installments, 1)
	require.Equal(t, "42.10", p.Installments[0].Amount.Decimal().String())
}

func TestSplit_DatesRollOverShortMonths(t *testing.T) {
	p, err := Split(brl("90.00"), 2, time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	// Jan 31 + 1 month normalizes to Mar 2 in a leap year.
	require.Equal(t, time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC), p.Installments[1].Date)
}

func TestSplit_ExactSumAcrossCounts(t *testing.T) {
	totals := []string{"1000000.00", "987654.31", "12345.67"}
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range totals {
		total := brl(s)
		for count := 1; count <= MaxInstallments; count++ {
			p, err := Split(total, count, start)
			if errors.Is(err, errs.ErrInvariantViolation) {
				continue
			}
			require.NoError(t, err, "total=%s count=%d", s, count)
			require.Len(t, p.Installments, count)
			sum := sumOf(t, p)
			eq, err := sum.Cmp(total)
			require.NoError(t, err)
			if eq != 0 {
				t.Fatalf("total=%s count=%d sum=%s", s, count, sum)
			}
			for _, in := range p.Installments {
				require.True(t, in.Amount.IsPos(), "total=%s count=%d", s, count)
			}
		}
	}
}

func TestSplit_SmallTotalsNeverDrift(t *testing.T) {
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"100.00", "10.00", "0.07", "1.01"} {
		for count := 1; count <= 50; count++ {
			p, err := Split(brl(s), count, start)
			if err != nil {
				require.True(t, errors.Is(err, errs.ErrInvalidAmount) || errors.Is(err, errs.ErrInvariantViolation), "total=%s count=%d err=%v", s, count, err)
				continue
			}
			c, err := sumOf(t, p).Cmp(brl(s))
			require.NoError(t, err)
			require.Zero(t, c, "total=%s count=%d", s, count)
		}
	}
}

func TestSplit_InvalidCount(t *testing.T) {
	for _, n := range []int{0, -1, MaxInstallments + 1} {
		_, err := Split(brl("10.00"), n, time.Now())
		require.ErrorIs(t, err, errs.ErrInvalidInstallmentCount)
	}
}

func TestSplit_InvalidAmount(t *testing.T) {
	_, err := Split(brl("0"), 2, time.Now())
	require.ErrorIs(t, err, errs.ErrInvalidAmount)
	_, err = Split(brl("-5.00"), 1, time.Now())
	require.ErrorIs(t, err, errs.ErrInvalidAmount)
	// 1.99 / 200 is below one cent per part.
	_, err = Split(brl("1.99"), 200, time.Now())
	require.ErrorIs(t, err, errs.ErrInvalidAmount)
}

func TestSplit_SubCentTotalIsRejected(t *testing.T) {
	// Stored as minor units, 10.005 would round to 10.01 while the parts sum to 10.005.
	_, err := Split(brl("10.005"), 2, time.Now())
	require.ErrorIs(t, err, errs.ErrInvalidAmount)

	p, err := Split(brl("10.500"), 2, time.Now())
	require.NoError(t, err)
	require.Equal(t, "10.50", p.Total.Decimal().String())
	require.Equal(t, "5.25", p.Installments[1].Amount.Decimal().String())
}

func TestSplit_RoundingThatOvershootsIsRejected(t *testing.T) {
	// 3.00 / 200 = 0.015 rounds to 0.02; 199 parts would already exceed the total.
	_, err := Split(brl("3.00"), 200, time.Now())
	require.ErrorIs(t, err, errs.ErrInvariantViolation)
}
