package transaction

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/events"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/service/invoice"
	"github.com/tinoosan/fintrack/internal/storage"
	"github.com/tinoosan/fintrack/internal/storage/memory"
)

func brl(s string) money.Amount { return money.MustParseAmount("BRL", s) }

func ptr[T any](v T) *T { return &v }

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

type fixture struct {
	store    *memory.Store
	svc      Service
	invoices invoice.Service
	pub      *events.Recorder
	user     uuid.UUID
	wallet   ledger.Account
	bank     ledger.Account
	card     ledger.Card
	goal     ledger.Goal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), pub: &events.Recorder{}, user: uuid.New()}
	f.svc = New(f.store, f.pub, nil)
	f.invoices = invoice.NewService(f.store, f.pub, nil)
	f.wallet = ledger.Account{ID: uuid.New(), UserID: f.user, Name: "Wallet", Kind: ledger.AccountKindWallet, IsMain: true, Balance: brl("1000.00")}
	f.bank = ledger.Account{ID: uuid.New(), UserID: f.user, Name: "Bank", Kind: ledger.AccountKindChecking, Balance: brl("500.00")}
	f.card = ledger.Card{ID: uuid.New(), UserID: f.user, Name: "Visa", CreditLimit: brl("1000.00"), AvailableLimit: brl("1000.00"), ClosingDay: 10, DueDay: 20}
	f.goal = ledger.Goal{ID: uuid.New(), UserID: f.user, Name: "Trip", TargetAmount: brl("3000.00"), CurrentAmount: brl("0.00")}
	f.store.SeedAccount(f.wallet)
	f.store.SeedAccount(f.bank)
	f.store.SeedCard(f.card)
	f.store.SeedGoal(f.goal)
	return f
}

func (f *fixture) cardIntent(amount string, date time.Time, parts int) Intent {
	return Intent{UserID: f.user, Title: "purchase", Amount: brl(amount), Kind: ledger.KindCardExpense, Date: date, CardID: &f.card.ID, Installments: parts}
}

func (f *fixture) available(t *testing.T) string {
	t.Helper()
	var out string
	require.NoError(t, f.store.InTx(context.Background(), func(tx storage.Tx) error {
		c, err := tx.GetCard(context.Background(), f.user, f.card.ID)
		out = c.AvailableLimit.Decimal().String()
		return err
	}))
	return out
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) string {
	t.Helper()
	var out string
	require.NoError(t, f.store.InTx(context.Background(), func(tx storage.Tx) error {
		a, err := tx.GetAccount(context.Background(), f.user, id)
		out = a.Balance.Decimal().String()
		return err
	}))
	return out
}

func (f *fixture) invoice(t *testing.T, month ledger.Month) ledger.Invoice {
	t.Helper()
	var out ledger.Invoice
	require.NoError(t, f.store.InTx(context.Background(), func(tx storage.Tx) error {
		var err error
		out, err = tx.InvoiceByCardMonth(context.Background(), f.user, f.card.ID, month)
		return err
	}))
	return out
}

func (f *fixture) all(t *testing.T) []ledger.Transaction {
	t.Helper()
	rows, err := f.svc.List(context.Background(), f.user, ledger.TransactionFilter{})
	require.NoError(t, err)
	return rows
}

func TestScenario_CardLimitThroughPurchasesAndInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rows, err := f.svc.Create(ctx, f.cardIntent("300.00", day(2024, time.March, 5), 0))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "700.00", f.available(t))
	march := f.invoice(t, ledger.Month{Year: 2024, Month: time.March})
	require.Equal(t, "300.00", march.Amount.Decimal().String())

	rows, err = f.svc.Create(ctx, f.cardIntent("300.00", day(2024, time.March, 15), 3))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "400.00", f.available(t))
	april := f.invoice(t, ledger.Month{Year: 2024, Month: time.April})
	require.Equal(t, "100.00", april.Amount.Decimal().String())

	_, err = f.invoices.Pay(ctx, f.user, march.ID, invoice.PayInput{Amount: brl("300.00"), Date: day(2024, time.March, 20)})
	require.NoError(t, err)
	require.Equal(t, "700.00", f.available(t))

	_, err = f.invoices.Unpay(ctx, f.user, march.ID)
	require.NoError(t, err)
	require.Equal(t, "400.00", f.available(t))
}

func TestCreate_Installments(t *testing.T) {
	f := newFixture(t)
	rows, err := f.svc.Create(context.Background(), f.cardIntent("100.00", day(2024, time.January, 20), 3))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	gid := rows[0].InstallmentGroupID
	require.NotNil(t, gid)
	for i, r := range rows {
		require.True(t, r.IsInstallment)
		require.Equal(t, i+1, r.InstallmentIndex)
		require.Equal(t, 3, r.InstallmentCount)
		require.Equal(t, *gid, *r.InstallmentGroupID)
	}
	require.Equal(t, "100.00", rows[0].OriginalTotalAmount.Decimal().String())
	require.Nil(t, rows[1].OriginalTotalAmount)
	require.Equal(t, "33.34", rows[2].Amount.Decimal().String())
	require.Equal(t, "900.00", f.available(t))
	require.Equal(t, []string{events.TransactionCreated}, f.pub.Names())
}

func TestDelete_GroupHeadReleasesWholeTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.available(t)
	rows, err := f.svc.Create(ctx, f.cardIntent("1000.00", day(2024, time.May, 2), 7))
	require.NoError(t, err)
	require.Equal(t, "0.00", f.available(t))

	require.NoError(t, f.svc.Delete(ctx, f.user, rows[0].ID))
	require.Equal(t, before, f.available(t))
	require.Empty(t, f.all(t))
	// The invoice survives with nothing left on it.
	require.True(t, f.invoice(t, ledger.Month{Year: 2024, Month: time.May}).Amount.IsZero())
}

func TestDelete_LaterInstallmentReleasesOwnAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows, err := f.svc.Create(ctx, f.cardIntent("300.00", day(2024, time.May, 2), 3))
	require.NoError(t, err)
	require.Equal(t, "700.00", f.available(t))

	require.NoError(t, f.svc.Delete(ctx, f.user, rows[2].ID))
	require.Equal(t, "800.00", f.available(t))
	left := f.all(t)
	require.Len(t, left, 2)
	head, err := f.svc.Get(ctx, f.user, rows[0].ID)
	require.NoError(t, err)
	require.Equal(t, "200.00", head.OriginalTotalAmount.Decimal().String())

	require.NoError(t, f.svc.Delete(ctx, f.user, rows[0].ID))
	require.Equal(t, "1000.00", f.available(t))
	require.Empty(t, f.all(t))
}

func TestDelete_TransferRestoresBothAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows, err := f.svc.Create(ctx, Intent{UserID: f.user, Title: "move", Amount: brl("250.00"), Kind: ledger.KindTransfer, Date: day(2024, time.March, 1), SourceAccountID: &f.wallet.ID, DestAccountID: &f.bank.ID})
	require.NoError(t, err)
	require.Equal(t, "750.00", f.balance(t, f.wallet.ID))
	require.Equal(t, "750.00", f.balance(t, f.bank.ID))

	require.NoError(t, f.svc.Delete(ctx, f.user, rows[0].ID))
	require.Equal(t, "1000.00", f.balance(t, f.wallet.ID))
	require.Equal(t, "500.00", f.balance(t, f.bank.ID))
	require.Empty(t, f.all(t))
	require.Equal(t, []string{events.TransactionCreated, events.TransactionDeleted}, f.pub.Names())
}

func TestDelete_CardExpenseRefreshesInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows, err := f.svc.Create(ctx, f.cardIntent("120.00", day(2024, time.June, 3), 0))
	require.NoError(t, err)
	june := ledger.Month{Year: 2024, Month: time.June}
	require.Equal(t, "120.00", f.invoice(t, june).Amount.Decimal().String())
	require.Equal(t, "880.00", f.available(t))

	require.NoError(t, f.svc.Delete(ctx, f.user, rows[0].ID))
	require.Equal(t, "1000.00", f.available(t))
	require.Equal(t, "0.00", f.invoice(t, june).Amount.Decimal().String())
	require.Empty(t, f.all(t))
}

func TestDelete_NotFound(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Delete(context.Background(), f.user, uuid.New())
	require.ErrorIs(t, err, errs.ErrTransactionNotFound)
}

func TestCreate_SingleKinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, Intent{UserID: f.user, Title: "salary", Amount: brl("200.00"), Kind: ledger.KindIncome, Date: day(2024, time.March, 1), SourceAccountID: &f.wallet.ID})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, Intent{UserID: f.user, Title: "rent", Amount: brl("50.00"), Kind: ledger.KindExpense, Date: day(2024, time.March, 1), SourceAccountID: &f.wallet.ID})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, Intent{UserID: f.user, Title: "move", Amount: brl("100.00"), Kind: ledger.KindTransfer, Date: day(2024, time.March, 1), SourceAccountID: &f.wallet.ID, DestAccountID: &f.bank.ID})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, Intent{UserID: f.user, Title: "save", Amount: brl("25.00"), Kind: ledger.KindGoalDeposit, Date: day(2024, time.March, 1), SourceAccountID: &f.wallet.ID, GoalID: &f.goal.ID})
	require.NoError(t, err)

	require.Equal(t, "1025.00", f.balance(t, f.wallet.ID))
	require.Equal(t, "600.00", f.balance(t, f.bank.ID))
	require.NoError(t, f.store.InTx(ctx, func(tx storage.Tx) error {
		g, err := tx.GetGoal(ctx, f.user, f.goal.ID)
		require.Equal(t, "25.00", g.CurrentAmount.Decimal().String())
		return err
	}))
}

func TestCreate_ValidationNeverMutates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   Intent
		want error
	}{
		{"transfer to itself", Intent{UserID: f.user, Title: "x", Amount: brl("1.00"), Kind: ledger.KindTransfer, Date: day(2024, 1, 1), SourceAccountID: &f.wallet.ID, DestAccountID: &f.wallet.ID}, errs.ErrValidation},
		{"transfer without destination", Intent{UserID: f.user, Title: "x", Amount: brl("1.00"), Kind: ledger.KindTransfer, Date: day(2024, 1, 1), SourceAccountID: &f.wallet.ID}, errs.ErrValidation},
		{"card expense without card", Intent{UserID: f.user, Title: "x", Amount: brl("1.00"), Kind: ledger.KindCardExpense, Date: day(2024, 1, 1)}, errs.ErrValidation},
		{"income with card", Intent{UserID: f.user, Title: "x", Amount: brl("1.00"), Kind: ledger.KindIncome, Date: day(2024, 1, 1), SourceAccountID: &f.wallet.ID, CardID: &f.card.ID}, errs.ErrValidation},
		{"unknown kind", Intent{UserID: f.user, Title: "x", Amount: brl("1.00"), Kind: "gift", Date: day(2024, 1, 1)}, errs.ErrValidation},
		{"zero amount", Intent{UserID: f.user, Title: "x", Amount: brl("0"), Kind: ledger.KindExpense, Date: day(2024, 1, 1), SourceAccountID: &f.wallet.ID}, errs.ErrInvalidAmount},
		{"sub-cent amount", f.cardIntent("10.005", day(2024, 1, 1), 0), errs.ErrInvalidAmount},
		{"sub-cent installment total", f.cardIntent("10.005", day(2024, 1, 1), 3), errs.ErrInvalidAmount},
		{"installments on expense", Intent{UserID: f.user, Title: "x", Amount: brl("10.00"), Kind: ledger.KindExpense, Date: day(2024, 1, 1), SourceAccountID: &f.wallet.ID, Installments: 2}, errs.ErrValidation},
		{"too many installments", f.cardIntent("10.00", day(2024, 1, 1), 1000), errs.ErrInvalidInstallmentCount},
		{"fixed transfer", Intent{UserID: f.user, Title: "x", Amount: brl("1.00"), Kind: ledger.KindTransfer, Date: day(2024, 1, 1), SourceAccountID: &f.wallet.ID, DestAccountID: &f.bank.ID, Fixed: true}, errs.ErrValidation},
		{"missing account", Intent{UserID: f.user, Title: "x", Amount: brl("1.00"), Kind: ledger.KindTransfer, Date: day(2024, 1, 1), SourceAccountID: &f.wallet.ID, DestAccountID: ptr(uuid.New())}, errs.ErrAccountNotFound},
		{"missing card", Intent{UserID: f.user, Title: "x", Amount: brl("1.00"), Kind: ledger.KindCardExpense, Date: day(2024, 1, 1), CardID: ptr(uuid.New())}, errs.ErrCardNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.Empty(t, f.all(t))
	require.Equal(t, "1000.00", f.available(t))
	require.Equal(t, "1000.00", f.balance(t, f.wallet.ID))
	require.Equal(t, "500.00", f.balance(t, f.bank.ID))
	require.Empty(t, f.pub.Names())
}

func TestCreate_FixedSeries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows, err := f.svc.Create(ctx, Intent{UserID: f.user, Title: "gym", Amount: brl("80.00"), Kind: ledger.KindExpense, Date: day(2024, time.January, 15), SourceAccountID: &f.wallet.ID, Fixed: true})
	require.NoError(t, err)
	require.Len(t, rows, FixedOccurrences)
	for i, r := range rows {
		require.True(t, r.IsFixed)
		require.False(t, r.IsInstallment)
		require.Nil(t, r.InstallmentGroupID)
		require.Equal(t, *rows[0].RecurrenceID, *r.RecurrenceID)
		require.Equal(t, i == 0, r.Applied)
		require.Equal(t, day(2024, time.January, 15).AddDate(0, i, 0), r.Date)
	}
	require.Equal(t, "920.00", f.balance(t, f.wallet.ID))

	// Inert rows carry no effect to revert.
	require.NoError(t, f.svc.Delete(ctx, f.user, rows[5].ID))
	require.Equal(t, "920.00", f.balance(t, f.wallet.ID))
	require.NoError(t, f.svc.Delete(ctx, f.user, rows[0].ID))
	require.Equal(t, "1000.00", f.balance(t, f.wallet.ID))
	require.Len(t, f.all(t), FixedOccurrences-2)
}

func TestUpdate_RegenerateFixed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows, err := f.svc.Create(ctx, Intent{UserID: f.user, Title: "gym", Amount: brl("80.00"), Kind: ledger.KindExpense, Date: day(2024, time.January, 15), SourceAccountID: &f.wallet.ID, Fixed: true})
	require.NoError(t, err)

	// Edit the fourth occurrence and rebuild the series from there.
	res, err := f.svc.Update(ctx, f.user, rows[3].ID, Patch{Amount: ptr(brl("90.00")), Date: ptr(day(2024, time.April, 20))}, UpdateOptions{RegenerateFixed: true})
	require.NoError(t, err)
	require.Equal(t, FixedOccurrences, res.Count)
	require.Equal(t, day(2025, time.March, 20), res.Transactions[FixedOccurrences-1].Date)
	for _, r := range res.Transactions[1:] {
		require.False(t, r.Applied)
		require.Equal(t, "90.00", r.Amount.Decimal().String())
	}
	// Rows 0..3 are kept, 4..11 replaced by 11 fresh ones.
	require.Len(t, f.all(t), 4+FixedOccurrences-1)
	require.Equal(t, "920.00", f.balance(t, f.wallet.ID))

	_, err = f.svc.Update(ctx, f.user, rows[0].ID, Patch{}, UpdateOptions{RegenerateFixed: true})
	require.NoError(t, err)
	other, err := f.svc.Create(ctx, Intent{UserID: f.user, Title: "one-off", Amount: brl("1.00"), Kind: ledger.KindExpense, Date: day(2024, time.January, 15), SourceAccountID: &f.wallet.ID})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, f.user, other[0].ID, Patch{}, UpdateOptions{RegenerateFixed: true})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestUpdate_SingleRevertsThenApplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows, err := f.svc.Create(ctx, Intent{UserID: f.user, Title: "market", Amount: brl("100.00"), Kind: ledger.KindExpense, Date: day(2024, time.March, 1), SourceAccountID: &f.wallet.ID})
	require.NoError(t, err)
	require.Equal(t, "900.00", f.balance(t, f.wallet.ID))

	_, err = f.svc.Update(ctx, f.user, rows[0].ID, Patch{Amount: ptr(brl("150.00"))}, UpdateOptions{})
	require.NoError(t, err)
	require.Equal(t, "850.00", f.balance(t, f.wallet.ID))

	// Moving to another account reverts on the old one.
	_, err = f.svc.Update(ctx, f.user, rows[0].ID, Patch{SourceAccountID: &f.bank.ID}, UpdateOptions{})
	require.NoError(t, err)
	require.Equal(t, "1000.00", f.balance(t, f.wallet.ID))
	require.Equal(t, "350.00", f.balance(t, f.bank.ID))

	// Kind change: now it is a card expense on the card.
	res, err := f.svc.Update(ctx, f.user, rows[0].ID, Patch{Kind: ptr(ledger.KindCardExpense), CardID: &f.card.ID}, UpdateOptions{})
	require.NoError(t, err)
	require.Equal(t, ledger.KindCardExpense, res.Transactions[0].Kind)
	require.Equal(t, "500.00", f.balance(t, f.bank.ID))
	require.Equal(t, "850.00", f.available(t))
	require.Equal(t, "150.00", f.invoice(t, ledger.Month{Year: 2024, Month: time.March}).Amount.Decimal().String())
}

func TestUpdate_CardExpenseMovesInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows, err := f.svc.Create(ctx, f.cardIntent("80.00", day(2024, time.March, 5), 0))
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, f.user, rows[0].ID, Patch{Date: ptr(day(2024, time.March, 12))}, UpdateOptions{})
	require.NoError(t, err)
	require.True(t, f.invoice(t, ledger.Month{Year: 2024, Month: time.March}).Amount.IsZero())
	require.Equal(t, "80.00", f.invoice(t, ledger.Month{Year: 2024, Month: time.April}).Amount.Decimal().String())
	require.Equal(t, "920.00", f.available(t))
}

func TestUpdate_ValidationNeverMutates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows, err := f.svc.Create(ctx, Intent{UserID: f.user, Title: "move", Amount: brl("100.00"), Kind: ledger.KindTransfer, Date: day(2024, time.March, 1), SourceAccountID: &f.wallet.ID, DestAccountID: &f.bank.ID})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, f.user, rows[0].ID, Patch{DestAccountID: &f.wallet.ID, Amount: ptr(brl("10.00"))}, UpdateOptions{})
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.svc.Update(ctx, f.user, rows[0].ID, Patch{DestAccountID: ptr(uuid.New())}, UpdateOptions{})
	require.ErrorIs(t, err, errs.ErrAccountNotFound)
	_, err = f.svc.Update(ctx, f.user, rows[0].ID, Patch{Amount: ptr(brl("-1.00"))}, UpdateOptions{})
	require.ErrorIs(t, err, errs.ErrInvalidAmount)
	_, err = f.svc.Update(ctx, f.user, rows[0].ID, Patch{Amount: ptr(brl("99.999"))}, UpdateOptions{})
	require.ErrorIs(t, err, errs.ErrInvalidAmount)

	require.Equal(t, "900.00", f.balance(t, f.wallet.ID))
	require.Equal(t, "600.00", f.balance(t, f.bank.ID))
	got, err := f.svc.Get(ctx, f.user, rows[0].ID)
	require.NoError(t, err)
	require.Equal(t, "100.00", got.Amount.Decimal().String())
}

func TestUpdate_GroupRewrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows, err := f.svc.Create(ctx, f.cardIntent("300.00", day(2024, time.March, 15), 3))
	require.NoError(t, err)
	require.Equal(t, "700.00", f.available(t))

	res, err := f.svc.Update(ctx, f.user, rows[1].ID, Patch{Amount: ptr(brl("600.00")), InstallmentCount: ptr(4)}, UpdateOptions{ApplyToGroup: true})
	require.NoError(t, err)
	require.Equal(t, 4, res.Count)
	require.Len(t, res.Transactions, 4)
	require.NotEqual(t, *rows[0].InstallmentGroupID, *res.Transactions[0].InstallmentGroupID)
	require.Equal(t, "400.00", f.available(t))
	require.Len(t, f.all(t), 4)
	require.Equal(t, "150.00", f.invoice(t, ledger.Month{Year: 2024, Month: time.April}).Amount.Decimal().String())

	// Collapsing to one part leaves a plain card expense.
	res, err = f.svc.Update(ctx, f.user, res.Transactions[0].ID, Patch{InstallmentCount: ptr(1)}, UpdateOptions{ApplyToGroup: true})
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	require.False(t, res.Transactions[0].IsInstallment)
	require.Equal(t, "600.00", res.Transactions[0].Amount.Decimal().String())
	require.Equal(t, "400.00", f.available(t))

	require.NoError(t, f.svc.Delete(ctx, f.user, res.Transactions[0].ID))
	require.Equal(t, "1000.00", f.available(t))
}

func TestUpdate_GroupRewriteReleasesRemainder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows, err := f.svc.Create(ctx, f.cardIntent("100.00", day(2024, time.March, 15), 3))
	require.NoError(t, err)
	require.Equal(t, "33.34", rows[2].Amount.Decimal().String())
	require.Equal(t, "900.00", f.available(t))

	// 33.33 x 3 would release only 99.99.
	res, err := f.svc.Update(ctx, f.user, rows[0].ID, Patch{InstallmentCount: ptr(2)}, UpdateOptions{ApplyToGroup: true})
	require.NoError(t, err)
	require.Equal(t, 2, res.Count)
	require.Equal(t, "900.00", f.available(t))
}

func TestUpdate_InstallmentRowKeepsGroupSum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rows, err := f.svc.Create(ctx, f.cardIntent("300.00", day(2024, time.March, 15), 3))
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, f.user, rows[1].ID, Patch{Amount: ptr(brl("150.00"))}, UpdateOptions{})
	require.NoError(t, err)
	require.Equal(t, "650.00", f.available(t))
	head, err := f.svc.Get(ctx, f.user, rows[0].ID)
	require.NoError(t, err)
	require.Equal(t, "350.00", head.OriginalTotalAmount.Decimal().String())

	_, err = f.svc.Update(ctx, f.user, rows[1].ID, Patch{InstallmentCount: ptr(2)}, UpdateOptions{})
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.svc.Update(ctx, f.user, rows[1].ID, Patch{Kind: ptr(ledger.KindExpense), SourceAccountID: &f.wallet.ID}, UpdateOptions{})
	require.ErrorIs(t, err, errs.ErrValidation)

	require.NoError(t, f.svc.Delete(ctx, f.user, rows[0].ID))
	require.Equal(t, "1000.00", f.available(t))
}

// failingStore hands out transactions whose invoice writes fail with a
// plain driver error.
type failingStore struct {
	*memory.Store
	err error
}

func (s failingStore) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	return s.Store.InTx(ctx, func(tx storage.Tx) error {
		return fn(failingTx{Tx: tx, err: s.err})
	})
}

type failingTx struct {
	storage.Tx
	err error
}

func (t failingTx) CreateInvoice(context.Context, ledger.Invoice) error { return t.err }
func (t failingTx) SaveInvoice(context.Context, ledger.Invoice) error   { return t.err }

func TestCreate_StorageFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var logs bytes.Buffer
	diskFull := errors.New("disk full")
	svc := New(failingStore{Store: f.store, err: diskFull}, f.pub, slog.New(slog.NewTextHandler(&logs, nil)))

	_, err := svc.Create(ctx, f.cardIntent("300.00", day(2024, time.March, 5), 3))
	require.ErrorIs(t, err, errs.ErrOperationFailed)
	require.NotErrorIs(t, err, diskFull)
	require.NotContains(t, err.Error(), "disk full")
	require.Contains(t, logs.String(), "disk full")

	require.Equal(t, "1000.00", f.available(t))
	require.Empty(t, f.all(t))
	require.Empty(t, f.pub.Names())
}
