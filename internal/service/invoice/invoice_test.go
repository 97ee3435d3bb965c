package invoice

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
	"github.com/tinoosan/fintrack/internal/storage"
	"github.com/tinoosan/fintrack/internal/storage/memory"
)

func brl(s string) money.Amount { return money.MustParseAmount("BRL", s) }

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

var march = ledger.Month{Year: 2024, Month: time.March}

type fixture struct {
	store *memory.Store
	svc   Service
	pub   *events.Recorder
	user  uuid.UUID
	card  ledger.Card
	bank  ledger.Account
}

func newFixture(t *testing.T, available string) fixture {
	t.Helper()
	f := fixture{store: memory.New(), pub: &events.Recorder{}, user: uuid.New()}
	f.svc = NewService(f.store, f.pub, nil)
	f.card = ledger.Card{ID: uuid.New(), UserID: f.user, Name: "Visa", CreditLimit: brl("1000.00"), AvailableLimit: brl(available), ClosingDay: 10, DueDay: 20}
	f.bank = ledger.Account{ID: uuid.New(), UserID: f.user, Name: "Bank", Kind: ledger.AccountKindChecking, IsMain: true, Balance: brl("2000.00")}
	f.store.SeedCard(f.card)
	f.store.SeedAccount(f.bank)
	return f
}

func (f fixture) cardExpense(date time.Time, amount string) ledger.Transaction {
	id := f.card.ID
	return ledger.Transaction{ID: uuid.New(), UserID: f.user, Title: "purchase", Kind: ledger.KindCardExpense, Amount: brl(amount), Date: date, CardID: &id, Applied: true}
}

func (f fixture) seed(t *testing.T, ts ...ledger.Transaction) {
	t.Helper()
	require.NoError(t, f.store.InTx(context.Background(), func(tx storage.Tx) error {
		return tx.CreateTransactions(context.Background(), ts)
	}))
}

func (f fixture) state(t *testing.T) (available, bank string) {
	t.Helper()
	require.NoError(t, f.store.InTx(context.Background(), func(tx storage.Tx) error {
		c, err := tx.GetCard(context.Background(), f.user, f.card.ID)
		if err != nil {
			return err
		}
		a, err := tx.GetAccount(context.Background(), f.user, f.bank.ID)
		if err != nil {
			return err
		}
		available, bank = c.AvailableLimit.Decimal().String(), a.Balance.Decimal().String()
		return nil
	}))
	return available, bank
}

func TestEnsure_Idempotent(t *testing.T) {
	f := newFixture(t, "700.00")
	f.seed(t, f.cardExpense(day(2024, time.March, 5), "300.00"))
	ctx := context.Background()

	first, err := f.svc.Ensure(ctx, f.user, f.card.ID, march)
	require.NoError(t, err)
	require.Equal(t, "300.00", first.Amount.Decimal().String())
	require.False(t, first.Paid)

	second, err := f.svc.Ensure(ctx, f.user, f.card.ID, march)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Amount.Decimal().String(), second.Amount.Decimal().String())

	all, err := f.svc.List(ctx, f.user, &f.card.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestEnsure_SumsRepresentativeRowsInWindow(t *testing.T) {
	f := newFixture(t, "1000.00")
	group := uuid.New()
	total := brl("90.00")
	head := f.cardExpense(day(2024, time.February, 20), "30.00")
	head.IsInstallment, head.InstallmentIndex, head.InstallmentCount, head.InstallmentGroupID, head.OriginalTotalAmount = true, 1, 3, &group, &total
	second := f.cardExpense(day(2024, time.March, 1), "30.00")
	second.IsInstallment, second.InstallmentIndex, second.InstallmentCount, second.InstallmentGroupID = true, 2, 3, &group

	f.seed(t,
		f.cardExpense(day(2024, time.February, 10), "11.00"), // closes on the February invoice
		f.cardExpense(day(2024, time.February, 11), "12.00"),
		f.cardExpense(day(2024, time.March, 10), "13.00"),
		f.cardExpense(day(2024, time.March, 11), "14.00"), // April
		head, second,
	)
	inv, err := f.svc.Ensure(context.Background(), f.user, f.card.ID, march)
	require.NoError(t, err)
	require.Equal(t, "55.00", inv.Amount.Decimal().String())
}

func TestEnsure_RecomputesWithoutTouchingPaidState(t *testing.T) {
	f := newFixture(t, "700.00")
	f.seed(t, f.cardExpense(day(2024, time.March, 5), "300.00"))
	ctx := context.Background()
	inv, err := f.svc.Ensure(ctx, f.user, f.card.ID, march)
	require.NoError(t, err)
	_, err = f.svc.Pay(ctx, f.user, inv.ID, PayInput{Amount: brl("300.00"), Date: day(2024, time.March, 20)})
	require.NoError(t, err)

	f.seed(t, f.cardExpense(day(2024, time.March, 6), "20.00"))
	again, err := f.svc.Ensure(ctx, f.user, f.card.ID, march)
	require.NoError(t, err)
	require.True(t, again.Paid)
	require.NotNil(t, again.PaymentDate)
	require.Equal(t, "320.00", again.Amount.Decimal().String())
}

func TestEnsure_Errors(t *testing.T) {
	f := newFixture(t, "1000.00")
	_, err := f.svc.Ensure(context.Background(), f.user, uuid.New(), march)
	require.ErrorIs(t, err, errs.ErrCardNotFound)
	_, err = f.svc.Ensure(context.Background(), f.user, f.card.ID, ledger.Month{Year: 2024, Month: 13})
	require.ErrorIs(t, err, errs.ErrInvalidMonthFormat)
}

func TestPayUnpay_KeepsLimitAndBalanceInLockstep(t *testing.T) {
	f := newFixture(t, "700.00")
	f.seed(t, f.cardExpense(day(2024, time.March, 5), "300.00"))
	ctx := context.Background()
	inv, err := f.svc.Ensure(ctx, f.user, f.card.ID, march)
	require.NoError(t, err)

	paid, err := f.svc.Pay(ctx, f.user, inv.ID, PayInput{Amount: brl("300.00"), Date: day(2024, time.March, 20), AccountID: &f.bank.ID})
	require.NoError(t, err)
	require.True(t, paid.Paid)
	require.Equal(t, f.bank.ID, *paid.PaidFromAccountID)
	available, bank := f.state(t)
	require.Equal(t, "1000.00", available)
	require.Equal(t, "1700.00", bank)

	unpaid, err := f.svc.Unpay(ctx, f.user, inv.ID)
	require.NoError(t, err)
	require.False(t, unpaid.Paid)
	require.Nil(t, unpaid.PaymentDate)
	require.Nil(t, unpaid.PaidAmount)
	available, bank = f.state(t)
	require.Equal(t, "700.00", available)
	require.Equal(t, "2000.00", bank)

	require.Equal(t, []string{events.InvoicePaid, events.InvoiceUnpaid}, f.pub.Names())
}

func TestPay_OverpaymentNeverExceedsLimit(t *testing.T) {
	f := newFixture(t, "900.00")
	f.seed(t, f.cardExpense(day(2024, time.March, 5), "100.00"))
	ctx := context.Background()
	inv, err := f.svc.Ensure(ctx, f.user, f.card.ID, march)
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, f.user, inv.ID, PayInput{Amount: brl("500.00"), AccountID: &f.bank.ID})
	require.NoError(t, err)
	available, bank := f.state(t)
	require.Equal(t, "1000.00", available)
	require.Equal(t, "1500.00", bank)
}

func TestUnpay_UsesRecomputedTotal(t *testing.T) {
	f := newFixture(t, "700.00")
	f.seed(t, f.cardExpense(day(2024, time.March, 5), "300.00"))
	ctx := context.Background()
	inv, err := f.svc.Ensure(ctx, f.user, f.card.ID, march)
	require.NoError(t, err)
	_, err = f.svc.Pay(ctx, f.user, inv.ID, PayInput{Amount: brl("300.00")})
	require.NoError(t, err)

	f.seed(t, f.cardExpense(day(2024, time.March, 7), "50.00"))
	unpaid, err := f.svc.Unpay(ctx, f.user, inv.ID)
	require.NoError(t, err)
	require.Equal(t, "350.00", unpaid.Amount.Decimal().String())
	available, bank := f.state(t)
	require.Equal(t, "650.00", available)
	require.Equal(t, "2000.00", bank)
}

func TestPay_Errors(t *testing.T) {
	f := newFixture(t, "700.00")
	f.seed(t, f.cardExpense(day(2024, time.March, 5), "300.00"))
	ctx := context.Background()
	inv, err := f.svc.Ensure(ctx, f.user, f.card.ID, march)
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, f.user, inv.ID, PayInput{Amount: brl("0")})
	require.ErrorIs(t, err, errs.ErrInvalidAmount)
	_, err = f.svc.Pay(ctx, f.user, inv.ID, PayInput{Amount: brl("299.995"), AccountID: &f.bank.ID})
	require.ErrorIs(t, err, errs.ErrInvalidAmount)
	_, err = f.svc.Pay(ctx, f.user, uuid.New(), PayInput{Amount: brl("1.00")})
	require.ErrorIs(t, err, errs.ErrInvoiceNotFound)

	missing := uuid.New()
	_, err = f.svc.Pay(ctx, f.user, inv.ID, PayInput{Amount: brl("300.00"), AccountID: &missing})
	require.ErrorIs(t, err, errs.ErrAccountNotFound)
	available, _ := f.state(t)
	require.Equal(t, "700.00", available)

	_, err = f.svc.Pay(ctx, f.user, inv.ID, PayInput{Amount: brl("300.00")})
	require.NoError(t, err)
	_, err = f.svc.Pay(ctx, f.user, inv.ID, PayInput{Amount: brl("300.00")})
	require.ErrorIs(t, err, errs.ErrConflict)

	_, err = f.svc.Unpay(ctx, f.user, inv.ID)
	require.NoError(t, err)
	_, err = f.svc.Unpay(ctx, f.user, inv.ID)
	require.ErrorIs(t, err, errs.ErrConflict)
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

func (t failingTx) SaveInvoice(context.Context, ledger.Invoice) error { return t.err }

func TestPay_StorageFailureRollsBack(t *testing.T) {
	f := newFixture(t, "700.00")
	f.seed(t, f.cardExpense(day(2024, time.March, 5), "300.00"))
	ctx := context.Background()
	inv, err := f.svc.Ensure(ctx, f.user, f.card.ID, march)
	require.NoError(t, err)

	var logs bytes.Buffer
	diskFull := errors.New("disk full")
	svc := NewService(failingStore{Store: f.store, err: diskFull}, f.pub, slog.New(slog.NewTextHandler(&logs, nil)))

	_, err = svc.Pay(ctx, f.user, inv.ID, PayInput{Amount: brl("300.00"), AccountID: &f.bank.ID})
	require.ErrorIs(t, err, errs.ErrOperationFailed)
	require.NotErrorIs(t, err, diskFull)
	require.NotContains(t, err.Error(), "disk full")
	require.Contains(t, logs.String(), "disk full")

	available, bank := f.state(t)
	require.Equal(t, "700.00", available)
	require.Equal(t, "2000.00", bank)
	got, err := f.svc.Get(ctx, f.user, inv.ID)
	require.NoError(t, err)
	require.False(t, got.Paid)
	require.Empty(t, f.pub.Names())
}
