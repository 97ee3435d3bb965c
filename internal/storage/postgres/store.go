// Package postgres provides a pgx-backed storage.Store.
//
// Each InTx call runs in one database transaction. Balance-carrying rows
// (accounts, cards, goals, invoices) are read with "for update" so two
// concurrent ledger operations on the same row serialize. Amounts are stored
// as minor units next to their currency code. The schema is embedded and
// applied by Migrate.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/storage"
)

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string and
// applies pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := &Store{pool: pool}
	if err := s.Migrate(); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// InTx implements storage.Store.
func (s *Store) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(ptx pgx.Tx) error {
		return fn(&tx{tx: ptx})
	})
}

type tx struct{ tx pgx.Tx }

// --- money ---

func amount(curr string, minor int64) (money.Amount, error) {
	return money.NewAmountFromMinorUnits(curr, minor)
}

func optAmount(curr string, minor *int64) (*money.Amount, error) {
	if minor == nil {
		return nil, nil
	}
	a, err := amount(curr, *minor)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func optMinor(a *money.Amount) (*int64, error) {
	if a == nil {
		return nil, nil
	}
	m, err := ledger.Minor(*a)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// --- accounts ---

const accountCols = `id, user_id, name, kind, is_main, balance_minor, currency`

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var a ledger.Account
	var minor int64
	var curr string
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Kind, &a.IsMain, &minor, &curr); err != nil {
		return ledger.Account{}, err
	}
	bal, err := amount(curr, minor)
	if err != nil {
		return ledger.Account{}, err
	}
	a.Balance = bal
	return a, nil
}

func (t *tx) ListAccounts(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	rows, err := t.tx.Query(ctx, `select `+accountCols+` from accounts where user_id = $1 order by name, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *tx) GetAccount(ctx context.Context, userID, accountID uuid.UUID) (ledger.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx, `
		select `+accountCols+` from accounts
		where id = $1 and user_id = $2
		for update
	`, accountID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrAccountNotFound
	}
	return a, err
}

func (t *tx) CreateAccount(ctx context.Context, a ledger.Account) error {
	m, err := ledger.Minor(a.Balance)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		insert into accounts (id, user_id, name, kind, is_main, balance_minor, currency)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, a.ID, a.UserID, a.Name, a.Kind, a.IsMain, m, a.Balance.Curr().Code())
	return err
}

func (t *tx) SaveAccount(ctx context.Context, a ledger.Account) error {
	m, err := ledger.Minor(a.Balance)
	if err != nil {
		return err
	}
	ct, err := t.tx.Exec(ctx, `
		update accounts set name=$1, kind=$2, is_main=$3, balance_minor=$4
		where id=$5 and user_id=$6
	`, a.Name, a.Kind, a.IsMain, m, a.ID, a.UserID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrAccountNotFound
	}
	return nil
}

func (t *tx) DeleteAccount(ctx context.Context, userID, accountID uuid.UUID) error {
	ct, err := t.tx.Exec(ctx, `delete from accounts where id=$1 and user_id=$2`, accountID, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrAccountNotFound
	}
	return nil
}

// --- cards ---

const cardCols = `id, user_id, name, brand, credit_limit_minor, available_limit_minor, closing_day, due_day, currency`

func scanCard(row pgx.Row) (ledger.Card, error) {
	var c ledger.Card
	var limit, avail int64
	var curr string
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Brand, &limit, &avail, &c.ClosingDay, &c.DueDay, &curr); err != nil {
		return ledger.Card{}, err
	}
	var err error
	if c.CreditLimit, err = amount(curr, limit); err != nil {
		return ledger.Card{}, err
	}
	if c.AvailableLimit, err = amount(curr, avail); err != nil {
		return ledger.Card{}, err
	}
	return c, nil
}

func (t *tx) ListCards(ctx context.Context, userID uuid.UUID) ([]ledger.Card, error) {
	rows, err := t.tx.Query(ctx, `select `+cardCols+` from cards where user_id = $1 order by name, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Card, 0)
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *tx) GetCard(ctx context.Context, userID, cardID uuid.UUID) (ledger.Card, error) {
	c, err := scanCard(t.tx.QueryRow(ctx, `
		select `+cardCols+` from cards
		where id = $1 and user_id = $2
		for update
	`, cardID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Card{}, errs.ErrCardNotFound
	}
	return c, err
}

func (t *tx) CreateCard(ctx context.Context, c ledger.Card) error {
	m, err := ledger.Minors(c.CreditLimit, c.AvailableLimit)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		insert into cards (id, user_id, name, brand, credit_limit_minor, available_limit_minor, closing_day, due_day, currency)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, c.ID, c.UserID, c.Name, c.Brand, m[0], m[1], c.ClosingDay, c.DueDay, c.CreditLimit.Curr().Code())
	return err
}

func (t *tx) SaveCard(ctx context.Context, c ledger.Card) error {
	m, err := ledger.Minors(c.CreditLimit, c.AvailableLimit)
	if err != nil {
		return err
	}
	ct, err := t.tx.Exec(ctx, `
		update cards
		set name=$1, brand=$2, credit_limit_minor=$3, available_limit_minor=$4, closing_day=$5, due_day=$6
		where id=$7 and user_id=$8
	`, c.Name, c.Brand, m[0], m[1], c.ClosingDay, c.DueDay, c.ID, c.UserID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrCardNotFound
	}
	return nil
}

// DeleteCard removes the card; invoices go with it (on delete cascade).
func (t *tx) DeleteCard(ctx context.Context, userID, cardID uuid.UUID) error {
	ct, err := t.tx.Exec(ctx, `delete from cards where id=$1 and user_id=$2`, cardID, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrCardNotFound
	}
	return nil
}

// --- goals ---

const goalCols = `id, user_id, name, target_minor, current_minor, currency`

func scanGoal(row pgx.Row) (ledger.Goal, error) {
	var g ledger.Goal
	var target, current int64
	var curr string
	if err := row.Scan(&g.ID, &g.UserID, &g.Name, &target, &current, &curr); err != nil {
		return ledger.Goal{}, err
	}
	var err error
	if g.TargetAmount, err = amount(curr, target); err != nil {
		return ledger.Goal{}, err
	}
	if g.CurrentAmount, err = amount(curr, current); err != nil {
		return ledger.Goal{}, err
	}
	return g, nil
}

func (t *tx) ListGoals(ctx context.Context, userID uuid.UUID) ([]ledger.Goal, error) {
	rows, err := t.tx.Query(ctx, `select `+goalCols+` from goals where user_id = $1 order by name, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Goal, 0)
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (t *tx) GetGoal(ctx context.Context, userID, goalID uuid.UUID) (ledger.Goal, error) {
	g, err := scanGoal(t.tx.QueryRow(ctx, `
		select `+goalCols+` from goals
		where id = $1 and user_id = $2
		for update
	`, goalID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Goal{}, errs.ErrGoalNotFound
	}
	return g, err
}

func (t *tx) CreateGoal(ctx context.Context, g ledger.Goal) error {
	m, err := ledger.Minors(g.TargetAmount, g.CurrentAmount)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		insert into goals (id, user_id, name, target_minor, current_minor, currency)
		values ($1,$2,$3,$4,$5,$6)
	`, g.ID, g.UserID, g.Name, m[0], m[1], g.TargetAmount.Curr().Code())
	return err
}

func (t *tx) SaveGoal(ctx context.Context, g ledger.Goal) error {
	m, err := ledger.Minors(g.TargetAmount, g.CurrentAmount)
	if err != nil {
		return err
	}
	ct, err := t.tx.Exec(ctx, `
		update goals set name=$1, target_minor=$2, current_minor=$3
		where id=$4 and user_id=$5
	`, g.Name, m[0], m[1], g.ID, g.UserID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrGoalNotFound
	}
	return nil
}

// --- transactions ---

const txCols = `id, user_id, title, amount_minor, currency, kind, date, category_id,
	source_account_id, dest_account_id, card_id, goal_id,
	is_installment, installment_index, installment_count, installment_group_id, original_total_minor,
	is_fixed, recurrence_id, applied, created_at`

const txOrder = ` order by date, installment_index, id`

func scanTransaction(row pgx.Row) (ledger.Transaction, error) {
	var tr ledger.Transaction
	var minor int64
	var total *int64
	var curr string
	err := row.Scan(&tr.ID, &tr.UserID, &tr.Title, &minor, &curr, &tr.Kind, &tr.Date, &tr.CategoryID,
		&tr.SourceAccountID, &tr.DestAccountID, &tr.CardID, &tr.GoalID,
		&tr.IsInstallment, &tr.InstallmentIndex, &tr.InstallmentCount, &tr.InstallmentGroupID, &total,
		&tr.IsFixed, &tr.RecurrenceID, &tr.Applied, &tr.CreatedAt)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if tr.Amount, err = amount(curr, minor); err != nil {
		return ledger.Transaction{}, err
	}
	if tr.OriginalTotalAmount, err = optAmount(curr, total); err != nil {
		return ledger.Transaction{}, err
	}
	tr.Date = tr.Date.UTC()
	tr.CreatedAt = tr.CreatedAt.UTC()
	return tr, nil
}

func (t *tx) queryTransactions(ctx context.Context, sql string, args ...any) ([]ledger.Transaction, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Transaction, 0)
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (t *tx) GetTransaction(ctx context.Context, userID, txID uuid.UUID) (ledger.Transaction, error) {
	tr, err := scanTransaction(t.tx.QueryRow(ctx, `
		select `+txCols+` from transactions
		where id = $1 and user_id = $2
		for update
	`, txID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Transaction{}, errs.ErrTransactionNotFound
	}
	return tr, err
}

func (t *tx) ListTransactions(ctx context.Context, userID uuid.UUID, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	var kind *string
	if f.Kind != "" {
		k := string(f.Kind)
		kind = &k
	}
	return t.queryTransactions(ctx, `
		select `+txCols+` from transactions
		where user_id = $1
		  and ($2::timestamptz is null or date >= $2)
		  and ($3::timestamptz is null or date <= $3)
		  and ($4::text is null or kind = $4)
		  and ($5::uuid is null or card_id = $5)
		  and ($6::uuid is null or installment_group_id = $6)
	`+txOrder, userID, f.From, f.To, kind, f.CardID, f.GroupID)
}

func (t *tx) CreateTransactions(ctx context.Context, ts []ledger.Transaction) error {
	batch := &pgx.Batch{}
	for _, tr := range ts {
		created := tr.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		m, err := ledger.Minor(tr.Amount)
		if err != nil {
			return err
		}
		orig, err := optMinor(tr.OriginalTotalAmount)
		if err != nil {
			return err
		}
		batch.Queue(`
			insert into transactions (`+txCols+`)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		`, tr.ID, tr.UserID, tr.Title, m, tr.Amount.Curr().Code(), tr.Kind, tr.Date, tr.CategoryID,
			tr.SourceAccountID, tr.DestAccountID, tr.CardID, tr.GoalID,
			tr.IsInstallment, tr.InstallmentIndex, tr.InstallmentCount, tr.InstallmentGroupID, orig,
			tr.IsFixed, tr.RecurrenceID, tr.Applied, created)
	}
	br := t.tx.SendBatch(ctx, batch)
	for range ts {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert transaction: %w", err)
		}
	}
	return br.Close()
}

func (t *tx) UpdateTransaction(ctx context.Context, tr ledger.Transaction) error {
	m, err := ledger.Minor(tr.Amount)
	if err != nil {
		return err
	}
	orig, err := optMinor(tr.OriginalTotalAmount)
	if err != nil {
		return err
	}
	ct, err := t.tx.Exec(ctx, `
		update transactions
		set title=$1, amount_minor=$2, kind=$3, date=$4, category_id=$5,
		    source_account_id=$6, dest_account_id=$7, card_id=$8, goal_id=$9,
		    is_installment=$10, installment_index=$11, installment_count=$12,
		    installment_group_id=$13, original_total_minor=$14,
		    is_fixed=$15, recurrence_id=$16, applied=$17
		where id=$18 and user_id=$19
	`, tr.Title, m, tr.Kind, tr.Date, tr.CategoryID,
		tr.SourceAccountID, tr.DestAccountID, tr.CardID, tr.GoalID,
		tr.IsInstallment, tr.InstallmentIndex, tr.InstallmentCount,
		tr.InstallmentGroupID, orig,
		tr.IsFixed, tr.RecurrenceID, tr.Applied, tr.ID, tr.UserID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrTransactionNotFound
	}
	return nil
}

func (t *tx) DeleteTransactions(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, `delete from transactions where user_id = $1 and id = any($2)`, userID, ids)
	return err
}

func (t *tx) TransactionsByGroup(ctx context.Context, userID, groupID uuid.UUID) ([]ledger.Transaction, error) {
	return t.queryTransactions(ctx, `
		select `+txCols+` from transactions
		where user_id = $1 and installment_group_id = $2
		order by installment_index, id
	`, userID, groupID)
}

func (t *tx) TransactionsByRecurrence(ctx context.Context, userID, recurrenceID uuid.UUID) ([]ledger.Transaction, error) {
	return t.queryTransactions(ctx, `
		select `+txCols+` from transactions
		where user_id = $1 and recurrence_id = $2
	`+txOrder, userID, recurrenceID)
}

func (t *tx) CardExpensesBetween(ctx context.Context, userID, cardID uuid.UUID, from, to time.Time) ([]ledger.Transaction, error) {
	return t.queryTransactions(ctx, `
		select `+txCols+` from transactions
		where user_id = $1 and card_id = $2 and kind = 'card_expense'
		  and date >= $3 and date <= $4
	`+txOrder, userID, cardID, from, to)
}

// --- invoices ---

const invoiceCols = `id, card_id, user_id, month, amount_minor, currency, paid, payment_date, paid_amount_minor, paid_from_account_id`

func scanInvoice(row pgx.Row) (ledger.Invoice, error) {
	var inv ledger.Invoice
	var month, curr string
	var minor int64
	var paid *int64
	err := row.Scan(&inv.ID, &inv.CardID, &inv.UserID, &month, &minor, &curr, &inv.Paid, &inv.PaymentDate, &paid, &inv.PaidFromAccountID)
	if err != nil {
		return ledger.Invoice{}, err
	}
	if inv.Month, err = ledger.ParseMonth(month); err != nil {
		return ledger.Invoice{}, err
	}
	if inv.Amount, err = amount(curr, minor); err != nil {
		return ledger.Invoice{}, err
	}
	if inv.PaidAmount, err = optAmount(curr, paid); err != nil {
		return ledger.Invoice{}, err
	}
	if inv.PaymentDate != nil {
		d := inv.PaymentDate.UTC()
		inv.PaymentDate = &d
	}
	return inv, nil
}

func (t *tx) GetInvoice(ctx context.Context, userID, invoiceID uuid.UUID) (ledger.Invoice, error) {
	inv, err := scanInvoice(t.tx.QueryRow(ctx, `
		select `+invoiceCols+` from invoices
		where id = $1 and user_id = $2
		for update
	`, invoiceID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Invoice{}, errs.ErrInvoiceNotFound
	}
	return inv, err
}

func (t *tx) InvoiceByCardMonth(ctx context.Context, userID, cardID uuid.UUID, month ledger.Month) (ledger.Invoice, error) {
	inv, err := scanInvoice(t.tx.QueryRow(ctx, `
		select `+invoiceCols+` from invoices
		where user_id = $1 and card_id = $2 and month = $3
		for update
	`, userID, cardID, month.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Invoice{}, errs.ErrInvoiceNotFound
	}
	return inv, err
}

func (t *tx) ListInvoices(ctx context.Context, userID uuid.UUID, cardID *uuid.UUID) ([]ledger.Invoice, error) {
	rows, err := t.tx.Query(ctx, `
		select `+invoiceCols+` from invoices
		where user_id = $1 and ($2::uuid is null or card_id = $2)
		order by month, card_id
	`, userID, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// CreateInvoice skips the insert on a (card, month) collision instead of
// raising a unique violation, which would abort the surrounding transaction.
func (t *tx) CreateInvoice(ctx context.Context, inv ledger.Invoice) error {
	m, err := ledger.Minor(inv.Amount)
	if err != nil {
		return err
	}
	paid, err := optMinor(inv.PaidAmount)
	if err != nil {
		return err
	}
	ct, err := t.tx.Exec(ctx, `
		insert into invoices (`+invoiceCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		on conflict (card_id, month) do nothing
	`, inv.ID, inv.CardID, inv.UserID, inv.Month.String(), m, inv.Amount.Curr().Code(),
		inv.Paid, inv.PaymentDate, paid, inv.PaidFromAccountID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("invoice %s for card %s: %w", inv.Month, inv.CardID, errs.ErrConflict)
	}
	return nil
}

func (t *tx) SaveInvoice(ctx context.Context, inv ledger.Invoice) error {
	m, err := ledger.Minor(inv.Amount)
	if err != nil {
		return err
	}
	paid, err := optMinor(inv.PaidAmount)
	if err != nil {
		return err
	}
	ct, err := t.tx.Exec(ctx, `
		update invoices
		set amount_minor=$1, paid=$2, payment_date=$3, paid_amount_minor=$4, paid_from_account_id=$5
		where id=$6 and user_id=$7
	`, m, inv.Paid, inv.PaymentDate, paid, inv.PaidFromAccountID, inv.ID, inv.UserID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrInvoiceNotFound
	}
	return nil
}
