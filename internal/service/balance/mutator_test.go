package balance

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/storage"
	"github.com/tinoosan/fintrack/internal/storage/memory"
)

func brl(s string) money.Amount { return money.MustParseAmount("BRL", s) }

func ptr[T any](v T) *T { return &v }

type fixture struct {
	store  *memory.Store
	user   uuid.UUID
	wallet ledger.Account
	bank   ledger.Account
	card   ledger.Card
	goal   ledger.Goal
}

func newFixture(walletBalance string) fixture {
	f := fixture{store: memory.New(), user: uuid.New()}
	f.wallet = ledger.Account{ID: uuid.New(), UserID: f.user, Name: "Wallet", Kind: ledger.AccountKindWallet, IsMain: true, Balance: brl(walletBalance)}
	f.bank = ledger.Account{ID: uuid.New(), UserID: f.user, Name: "Bank", Kind: ledger.AccountKindChecking, Balance: brl("50.00")}
	f.card = ledger.Card{ID: uuid.New(), UserID: f.user, Name: "Visa", CreditLimit: brl("1000.00"), AvailableLimit: brl("1000.00"), ClosingDay: 10, DueDay: 20}
	f.goal = ledger.Goal{ID: uuid.New(), UserID: f.user, Name: "Trip", TargetAmount: brl("5000.00"), CurrentAmount: brl("0.00")}
	f.store.SeedAccount(f.wallet)
	f.store.SeedAccount(f.bank)
	f.store.SeedCard(f.card)
	f.store.SeedGoal(f.goal)
	return f
}

func (f fixture) run(t *testing.T, fn func(m *Mutator) error) {
	t.Helper()
	require.NoError(t, f.store.InTx(context.Background(), func(tx storage.Tx) error { return fn(New(tx)) }))
}

type snapshot struct {
	wallet, bank, available, goal string
}

func (f fixture) snap(t *testing.T) snapshot {
	t.Helper()
	var s snapshot
	require.NoError(t, f.store.InTx(context.Background(), func(tx storage.Tx) error {
		ctx := context.Background()
		w, err := tx.GetAccount(ctx, f.user, f.wallet.ID)
		if err != nil {
			return err
		}
		b, err := tx.GetAccount(ctx, f.user, f.bank.ID)
		if err != nil {
			return err
		}
		c, err := tx.GetCard(ctx, f.user, f.card.ID)
		if err != nil {
			return err
		}
		g, err := tx.GetGoal(ctx, f.user, f.goal.ID)
		if err != nil {
			return err
		}
		s = snapshot{
			wallet:    w.Balance.Decimal().String(),
			bank:      b.Balance.Decimal().String(),
			available: c.AvailableLimit.Decimal().String(),
			goal:      g.CurrentAmount.Decimal().String(),
		}
		return nil
	}))
	return s
}

func (f fixture) txOf(kind ledger.TransactionKind, amount string) ledger.Transaction {
	t := ledger.Transaction{ID: uuid.New(), UserID: f.user, Kind: kind, Amount: brl(amount)}
	switch kind {
	case ledger.KindIncome, ledger.KindExpense:
		t.SourceAccountID = ptr(f.wallet.ID)
	case ledger.KindTransfer:
		t.SourceAccountID = ptr(f.wallet.ID)
		t.DestAccountID = ptr(f.bank.ID)
	case ledger.KindCardExpense:
		t.CardID = ptr(f.card.ID)
	case ledger.KindGoalDeposit:
		t.SourceAccountID = ptr(f.wallet.ID)
		t.GoalID = ptr(f.goal.ID)
	}
	return t
}

func TestApplyRevert_RoundTrip(t *testing.T) {
	kinds := []ledger.TransactionKind{
		ledger.KindIncome, ledger.KindExpense, ledger.KindTransfer, ledger.KindCardExpense, ledger.KindGoalDeposit,
	}
	for _, start := range []string{"100.00", "-250.37"} {
		for _, kind := range kinds {
			t.Run(string(kind)+"/"+start, func(t *testing.T) {
				f := newFixture(start)
				before := f.snap(t)
				tr := f.txOf(kind, "123.45")
				f.run(t, func(m *Mutator) error { return m.Apply(context.Background(), tr, false) })
				require.NotEqual(t, before, f.snap(t))
				f.run(t, func(m *Mutator) error { return m.Apply(context.Background(), tr, true) })
				require.Equal(t, before, f.snap(t))
			})
		}
	}
}

func TestApply_Directions(t *testing.T) {
	f := newFixture("100.00")
	f.run(t, func(m *Mutator) error {
		ctx := context.Background()
		if err := m.Apply(ctx, f.txOf(ledger.KindIncome, "10.00"), false); err != nil {
			return err
		}
		if err := m.Apply(ctx, f.txOf(ledger.KindExpense, "30.00"), false); err != nil {
			return err
		}
		if err := m.Apply(ctx, f.txOf(ledger.KindTransfer, "5.00"), false); err != nil {
			return err
		}
		if err := m.Apply(ctx, f.txOf(ledger.KindGoalDeposit, "20.00"), false); err != nil {
			return err
		}
		return m.Apply(ctx, f.txOf(ledger.KindCardExpense, "300.00"), false)
	})
	s := f.snap(t)
	require.Equal(t, "55.00", s.wallet)
	require.Equal(t, "55.00", s.bank)
	require.Equal(t, "20.00", s.goal)
	require.Equal(t, "700.00", s.available)
}

func TestApplyAccountEffect_NoopWithoutAccount(t *testing.T) {
	f := newFixture("100.00")
	before := f.snap(t)
	f.run(t, func(m *Mutator) error {
		ctx := context.Background()
		if err := m.ApplyAccountEffect(ctx, f.user, nil, brl("10.00"), EffectExpense, false); err != nil {
			return err
		}
		return m.ApplyAccountEffect(ctx, f.user, ptr(uuid.New()), brl("10.00"), EffectExpense, false)
	})
	require.Equal(t, before, f.snap(t))
}

func TestApplyTransferEffect_NoPartialApply(t *testing.T) {
	f := newFixture("100.00")
	before := f.snap(t)
	f.run(t, func(m *Mutator) error {
		ctx := context.Background()
		if err := m.ApplyTransferEffect(ctx, f.user, ptr(f.wallet.ID), ptr(uuid.New()), brl("10.00"), false); err != nil {
			return err
		}
		if err := m.ApplyTransferEffect(ctx, f.user, ptr(uuid.New()), ptr(f.bank.ID), brl("10.00"), false); err != nil {
			return err
		}
		return m.ApplyTransferEffect(ctx, f.user, nil, ptr(f.bank.ID), brl("10.00"), false)
	})
	require.Equal(t, before, f.snap(t))
}

func TestApplyCardEffect_Clamps(t *testing.T) {
	f := newFixture("0")
	f.run(t, func(m *Mutator) error {
		ctx := context.Background()
		c, err := m.ApplyCardEffect(ctx, f.user, f.card.ID, brl("1500.00"), false)
		if err != nil {
			return err
		}
		require.True(t, c.AvailableLimit.IsZero())
		c, err = m.ApplyCardEffect(ctx, f.user, f.card.ID, brl("400.00"), true)
		if err != nil {
			return err
		}
		require.Equal(t, "400.00", c.AvailableLimit.Decimal().String())
		c, err = m.ApplyCardEffect(ctx, f.user, f.card.ID, brl("5000.00"), true)
		if err != nil {
			return err
		}
		require.Equal(t, "1000.00", c.AvailableLimit.Decimal().String())
		return nil
	})
}

func TestApplyCardEffect_UnknownCard(t *testing.T) {
	f := newFixture("0")
	err := f.store.InTx(context.Background(), func(tx storage.Tx) error {
		_, err := New(tx).ApplyCardEffect(context.Background(), f.user, uuid.New(), brl("1.00"), false)
		return err
	})
	require.ErrorIs(t, err, errs.ErrCardNotFound)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestApplyGoalEffect_UnknownGoal(t *testing.T) {
	f := newFixture("0")
	tr := f.txOf(ledger.KindGoalDeposit, "10.00")
	tr.GoalID = ptr(uuid.New())
	before := f.snap(t)
	err := f.store.InTx(context.Background(), func(tx storage.Tx) error {
		return New(tx).Apply(context.Background(), tr, false)
	})
	require.ErrorIs(t, err, errs.ErrGoalNotFound)
	require.Equal(t, before, f.snap(t))
}
