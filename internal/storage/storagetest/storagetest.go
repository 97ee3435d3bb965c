// Package storagetest holds a behavioral suite every storage.Store backend
// must pass.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/storage"
)

func brl(s string) money.Amount { return money.MustParseAmount("BRL", s) }

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

// Run exercises s. Every subtest works on a fresh user so backends may be
// shared across runs.
func Run(t *testing.T, s storage.Store) {
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, s) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, s) })
	t.Run("CardsAndInvoices", func(t *testing.T) { testCardsAndInvoices(t, s) })
	t.Run("Goals", func(t *testing.T) { testGoals(t, s) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, s) })
}

func testAccounts(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := uuid.New()
	acc := ledger.Account{ID: uuid.New(), UserID: user, Name: "Nubank", Kind: ledger.AccountKindChecking, IsMain: true, Balance: brl("-12.34")}

	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error { return tx.CreateAccount(ctx, acc) }))

	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error {
		got, err := tx.GetAccount(ctx, user, acc.ID)
		require.NoError(t, err)
		require.Equal(t, "-12.34", got.Balance.Decimal().String())
		require.Equal(t, "BRL", got.Balance.Curr().Code())
		require.True(t, got.IsMain)

		got.Balance = brl("100.00")
		got.IsMain = false
		require.NoError(t, tx.SaveAccount(ctx, got))

		list, err := tx.ListAccounts(ctx, user)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, "100.00", list[0].Balance.Decimal().String())
		require.False(t, list[0].IsMain)
		return nil
	}))

	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error {
		_, err := tx.GetAccount(ctx, uuid.New(), acc.ID)
		require.ErrorIs(t, err, errs.ErrAccountNotFound)
		require.NoError(t, tx.DeleteAccount(ctx, user, acc.ID))
		require.ErrorIs(t, tx.DeleteAccount(ctx, user, acc.ID), errs.ErrNotFound)
		return nil
	}))
}

func testRollback(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := uuid.New()
	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.CreateAccount(ctx, ledger.Account{ID: uuid.New(), UserID: user, Name: "Temp", Kind: ledger.AccountKindOther, Balance: brl("1.00")}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error {
		list, err := tx.ListAccounts(ctx, user)
		require.NoError(t, err)
		require.Empty(t, list)
		return nil
	}))
}

func testCardsAndInvoices(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := uuid.New()
	card := ledger.Card{ID: uuid.New(), UserID: user, Name: "Visa", Brand: "visa", CreditLimit: brl("1000.00"), AvailableLimit: brl("700.00"), ClosingDay: 10, DueDay: 20}
	march := ledger.Month{Year: 2024, Month: time.March}
	inv := ledger.Invoice{ID: uuid.New(), CardID: card.ID, UserID: user, Month: march, Amount: brl("300.00")}

	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.CreateCard(ctx, card); err != nil {
			return err
		}
		return tx.CreateInvoice(ctx, inv)
	}))

	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error {
		got, err := tx.GetCard(ctx, user, card.ID)
		require.NoError(t, err)
		require.Equal(t, "700.00", got.AvailableLimit.Decimal().String())
		require.Equal(t, 10, got.ClosingDay)

		// A duplicate (card, month) reports a conflict and leaves the
		// transaction usable.
		dup := inv
		dup.ID = uuid.New()
		require.ErrorIs(t, tx.CreateInvoice(ctx, dup), errs.ErrConflict)

		byMonth, err := tx.InvoiceByCardMonth(ctx, user, card.ID, march)
		require.NoError(t, err)
		require.Equal(t, inv.ID, byMonth.ID)
		require.Equal(t, march, byMonth.Month)

		paid := brl("300.00")
		at := day(2024, time.March, 20)
		from := uuid.New()
		byMonth.Paid = true
		byMonth.PaidAmount = &paid
		byMonth.PaymentDate = &at
		byMonth.PaidFromAccountID = &from
		require.NoError(t, tx.SaveInvoice(ctx, byMonth))

		got2, err := tx.GetInvoice(ctx, user, inv.ID)
		require.NoError(t, err)
		require.True(t, got2.Paid)
		require.Equal(t, "300.00", got2.PaidAmount.Decimal().String())
		require.True(t, got2.PaymentDate.Equal(at))
		require.Equal(t, from, *got2.PaidFromAccountID)

		_, err = tx.InvoiceByCardMonth(ctx, user, card.ID, march.AddMonths(1))
		require.ErrorIs(t, err, errs.ErrInvoiceNotFound)

		list, err := tx.ListInvoices(ctx, user, &card.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		return nil
	}))

	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.DeleteCard(ctx, user, card.ID))
		_, err := tx.GetCard(ctx, user, card.ID)
		require.ErrorIs(t, err, errs.ErrCardNotFound)
		_, err = tx.GetInvoice(ctx, user, inv.ID)
		require.ErrorIs(t, err, errs.ErrInvoiceNotFound)
		return nil
	}))
}

func testGoals(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := uuid.New()
	g := ledger.Goal{ID: uuid.New(), UserID: user, Name: "Trip", TargetAmount: brl("5000.00"), CurrentAmount: ledger.Zero("BRL")}
	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error { return tx.CreateGoal(ctx, g) }))
	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error {
		got, err := tx.GetGoal(ctx, user, g.ID)
		require.NoError(t, err)
		got.CurrentAmount = brl("25.50")
		require.NoError(t, tx.SaveGoal(ctx, got))
		list, err := tx.ListGoals(ctx, user)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, "25.50", list[0].CurrentAmount.Decimal().String())
		_, err = tx.GetGoal(ctx, user, uuid.New())
		require.ErrorIs(t, err, errs.ErrGoalNotFound)
		return nil
	}))
}

func testTransactions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	user := uuid.New()
	cardID := uuid.New()
	group := uuid.New()
	series := uuid.New()
	source := uuid.New()
	total := brl("300.00")

	var rows []ledger.Transaction
	for i := 1; i <= 3; i++ {
		r := ledger.Transaction{
			ID: uuid.New(), UserID: user, Title: "TV", Amount: brl("100.00"), Kind: ledger.KindCardExpense,
			Date: day(2024, time.Month(2+i), 15), CardID: &cardID,
			IsInstallment: true, InstallmentIndex: i, InstallmentCount: 3, InstallmentGroupID: &group, Applied: true,
		}
		if i == 1 {
			r.OriginalTotalAmount = &total
		}
		rows = append(rows, r)
	}
	salary := ledger.Transaction{
		ID: uuid.New(), UserID: user, Title: "Salary", Amount: brl("5000.00"), Kind: ledger.KindIncome,
		Date: day(2024, time.March, 5), SourceAccountID: &source, IsFixed: true, RecurrenceID: &series, Applied: true,
	}
	nextSalary := salary
	nextSalary.ID = uuid.New()
	nextSalary.Date = day(2024, time.April, 5)
	nextSalary.Applied = false
	rows = append(rows, salary, nextSalary)

	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error { return tx.CreateTransactions(ctx, rows) }))

	require.NoError(t, s.InTx(ctx, func(tx storage.Tx) error {
		head, err := tx.GetTransaction(ctx, user, rows[0].ID)
		require.NoError(t, err)
		require.True(t, head.IsGroupHead())
		require.Equal(t, "300.00", head.OriginalTotalAmount.Decimal().String())
		require.Equal(t, cardID, *head.CardID)
		require.Nil(t, head.SourceAccountID)
		require.True(t, head.Date.Equal(day(2024, time.March, 15)))

		second, err := tx.GetTransaction(ctx, user, rows[1].ID)
		require.NoError(t, err)
		require.Nil(t, second.OriginalTotalAmount)

		grp, err := tx.TransactionsByGroup(ctx, user, group)
		require.NoError(t, err)
		require.Len(t, grp, 3)
		for i, r := range grp {
			require.Equal(t, i+1, r.InstallmentIndex)
		}

		rec, err := tx.TransactionsByRecurrence(ctx, user, series)
		require.NoError(t, err)
		require.Len(t, rec, 2)
		require.True(t, rec[0].Applied)
		require.False(t, rec[1].Applied)

		// Window bounds are inclusive.
		in, err := tx.CardExpensesBetween(ctx, user, cardID, day(2024, time.March, 15), day(2024, time.April, 15))
		require.NoError(t, err)
		require.Len(t, in, 2)

		from := day(2024, time.April, 1)
		all, err := tx.ListTransactions(ctx, user, ledger.TransactionFilter{From: &from})
		require.NoError(t, err)
		require.Len(t, all, 3)
		income, err := tx.ListTransactions(ctx, user, ledger.TransactionFilter{Kind: ledger.KindIncome})
		require.NoError(t, err)
		require.Len(t, income, 2)
		byGroup, err := tx.ListTransactions(ctx, user, ledger.TransactionFilter{GroupID: &group, CardID: &cardID})
		require.NoError(t, err)
		require.Len(t, byGroup, 3)

		second.Amount = brl("150.00")
		second.Title = "TV (edited)"
		require.NoError(t, tx.UpdateTransaction(ctx, second))
		got, err := tx.GetTransaction(ctx, user, second.ID)
		require.NoError(t, err)
		require.Equal(t, "150.00", got.Amount.Decimal().String())
		require.Equal(t, "TV (edited)", got.Title)

		require.NoError(t, tx.DeleteTransactions(ctx, user, []uuid.UUID{rows[0].ID, rows[1].ID}))
		_, err = tx.GetTransaction(ctx, user, rows[0].ID)
		require.ErrorIs(t, err, errs.ErrTransactionNotFound)
		grp, err = tx.TransactionsByGroup(ctx, user, group)
		require.NoError(t, err)
		require.Len(t, grp, 1)
		return nil
	}))
}
