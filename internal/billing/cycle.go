// Package billing maps calendar dates to credit card billing cycles.
//
// A card with closing day C bills, for month M, every purchase from
// (C of M-1) + 1 day through C of M inclusive. Day numbers that do not exist
// in a month roll over the way time.Date normalizes them: closing day 31 in
// April closes on May 1st.
package billing

import (
	"fmt"
	"time"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
)

// Window returns the inclusive date range of purchases billed on the invoice
// of month for a card closing on closingDay.
func Window(month ledger.Month, closingDay int) (start, end time.Time, err error) {
	if !month.Valid() {
		return time.Time{}, time.Time{}, fmt.Errorf("%s: %w", month, errs.ErrInvalidMonthFormat)
	}
	start = time.Date(month.Year, month.Month-1, closingDay+1, 0, 0, 0, 0, time.UTC)
	end = time.Date(month.Year, month.Month, closingDay, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
	return start, end, nil
}

// WindowFor parses a "YYYY-MM" month and returns its billing window.
func WindowFor(month string, closingDay int) (start, end time.Time, err error) {
	m, err := ledger.ParseMonth(month)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return Window(m, closingDay)
}

// InvoiceMonth returns the invoice month that owns a purchase made on date.
// Purchases after the closing day roll into the next month; a purchase on the
// closing day itself stays in the current month.
func InvoiceMonth(date time.Time, closingDay int) ledger.Month {
	if date.Day() > closingDay {
		return ledger.MonthOf(date).AddMonths(1)
	}
	return ledger.MonthOf(date)
}

// Contains reports whether t falls inside [start, end].
func Contains(start, end, t time.Time) bool {
	return !t.Before(start) && !t.After(end)
}
