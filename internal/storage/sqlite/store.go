// Package sqlite provides a storage.Store on a single-file SQLite database
// (modernc.org/sqlite, no cgo).
//
// The pool is capped at one connection, so transactions are serialized by
// database/sql itself. Dates are stored as fixed-width UTC text, which keeps
// lexicographic and chronological order identical.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/storage"

	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db *sql.DB
}

// Open creates (if needed) and migrates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if err := RunMigrations(path); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ready(ctx context.Context) error { return s.db.PingContext(ctx) }

// InTx implements storage.Store.
func (s *Store) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	stx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&tx{tx: stx}); err != nil {
		_ = stx.Rollback()
		return err
	}
	return stx.Commit()
}

type tx struct{ tx *sql.Tx }

type scanner interface{ Scan(dest ...any) error }

func stamp(t time.Time) string { return t.UTC().Format(timeLayout) }

func optStamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := stamp(*t)
	return &s
}

func parseStamp(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

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

func optAmount(curr string, minor *int64) (*money.Amount, error) {
	if minor == nil {
		return nil, nil
	}
	a, err := money.NewAmountFromMinorUnits(curr, *minor)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func affected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// --- accounts ---

const accountCols = `id, user_id, name, kind, is_main, balance_minor, currency`

func scanAccount(row scanner) (ledger.Account, error) {
	var a ledger.Account
	var minor int64
	var curr string
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Kind, &a.IsMain, &minor, &curr); err != nil {
		return ledger.Account{}, err
	}
	bal, err := money.NewAmountFromMinorUnits(curr, minor)
	if err != nil {
		return ledger.Account{}, err
	}
	a.Balance = bal
	return a, nil
}

func (t *tx) ListAccounts(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE user_id = ? ORDER BY name, id`, userID)
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
	a, err := scanAccount(t.tx.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ? AND user_id = ?`, accountID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, errs.ErrAccountNotFound
	}
	return a, err
}

func (t *tx) CreateAccount(ctx context.Context, a ledger.Account) error {
	m, err := ledger.Minor(a.Balance)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO accounts (`+accountCols+`) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.UserID, a.Name, a.Kind, a.IsMain, m, a.Balance.Curr().Code())
	return err
}

func (t *tx) SaveAccount(ctx context.Context, a ledger.Account) error {
	m, err := ledger.Minor(a.Balance)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE accounts SET name=?, kind=?, is_main=?, balance_minor=? WHERE id=? AND user_id=?`,
		a.Name, a.Kind, a.IsMain, m, a.ID, a.UserID)
	if err != nil {
		return err
	}
	return affected(res, errs.ErrAccountNotFound)
}

func (t *tx) DeleteAccount(ctx context.Context, userID, accountID uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM accounts WHERE id=? AND user_id=?`, accountID, userID)
	if err != nil {
		return err
	}
	return affected(res, errs.ErrAccountNotFound)
}

// --- cards ---

const cardCols = `id, user_id, name, brand, credit_limit_minor, available_limit_minor, closing_day, due_day, currency`

func scanCard(row scanner) (ledger.Card, error) {
	var c ledger.Card
	var limit, avail int64
	var curr string
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Brand, &limit, &avail, &c.ClosingDay, &c.DueDay, &curr); err != nil {
		return ledger.Card{}, err
	}
	var err error
	if c.CreditLimit, err = money.NewAmountFromMinorUnits(curr, limit); err != nil {
		return ledger.Card{}, err
	}
	if c.AvailableLimit, err = money.NewAmountFromMinorUnits(curr, avail); err != nil {
		return ledger.Card{}, err
	}
	return c, nil
}

func (t *tx) ListCards(ctx context.Context, userID uuid.UUID) ([]ledger.Card, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+cardCols+` FROM cards WHERE user_id = ? ORDER BY name, id`, userID)
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
	c, err := scanCard(t.tx.QueryRowContext(ctx, `SELECT `+cardCols+` FROM cards WHERE id = ? AND user_id = ?`, cardID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Card{}, errs.ErrCardNotFound
	}
	return c, err
}

func (t *tx) CreateCard(ctx context.Context, c ledger.Card) error {
	m, err := ledger.Minors(c.CreditLimit, c.AvailableLimit)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO cards (`+cardCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		c.ID, c.UserID, c.Name, c.Brand, m[0], m[1], c.ClosingDay, c.DueDay, c.CreditLimit.Curr().Code())
	return err
}

func (t *tx) SaveCard(ctx context.Context, c ledger.Card) error {
	m, err := ledger.Minors(c.CreditLimit, c.AvailableLimit)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE cards SET name=?, brand=?, credit_limit_minor=?, available_limit_minor=?, closing_day=?, due_day=?
		WHERE id=? AND user_id=?`,
		c.Name, c.Brand, m[0], m[1], c.ClosingDay, c.DueDay, c.ID, c.UserID)
	if err != nil {
		return err
	}
	return affected(res, errs.ErrCardNotFound)
}

func (t *tx) DeleteCard(ctx context.Context, userID, cardID uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM cards WHERE id=? AND user_id=?`, cardID, userID)
	if err != nil {
		return err
	}
	if err := affected(res, errs.ErrCardNotFound); err != nil {
		return err
	}
	// foreign_keys is off by default in SQLite, so the cascade is explicit.
	_, err = t.tx.ExecContext(ctx, `DELETE FROM invoices WHERE card_id=? AND user_id=?`, cardID, userID)
	return err
}

// --- goals ---

const goalCols = `id, user_id, name, target_minor, current_minor, currency`

func scanGoal(row scanner) (ledger.Goal, error) {
	var g ledger.Goal
	var target, current int64
	var curr string
	if err := row.Scan(&g.ID, &g.UserID, &g.Name, &target, &current, &curr); err != nil {
		return ledger.Goal{}, err
	}
	var err error
	if g.TargetAmount, err = money.NewAmountFromMinorUnits(curr, target); err != nil {
		return ledger.Goal{}, err
	}
	if g.CurrentAmount, err = money.NewAmountFromMinorUnits(curr, current); err != nil {
		return ledger.Goal{}, err
	}
	return g, nil
}

func (t *tx) ListGoals(ctx context.Context, userID uuid.UUID) ([]ledger.Goal, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+goalCols+` FROM goals WHERE user_id = ? ORDER BY name, id`, userID)
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
	g, err := scanGoal(t.tx.QueryRowContext(ctx, `SELECT `+goalCols+` FROM goals WHERE id = ? AND user_id = ?`, goalID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Goal{}, errs.ErrGoalNotFound
	}
	return g, err
}

func (t *tx) CreateGoal(ctx context.Context, g ledger.Goal) error {
	m, err := ledger.Minors(g.TargetAmount, g.CurrentAmount)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO goals (`+goalCols+`) VALUES (?,?,?,?,?,?)`,
		g.ID, g.UserID, g.Name, m[0], m[1], g.TargetAmount.Curr().Code())
	return err
}

func (t *tx) SaveGoal(ctx context.Context, g ledger.Goal) error {
	m, err := ledger.Minors(g.TargetAmount, g.CurrentAmount)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE goals SET name=?, target_minor=?, current_minor=? WHERE id=? AND user_id=?`,
		g.Name, m[0], m[1], g.ID, g.UserID)
	if err != nil {
		return err
	}
	return affected(res, errs.ErrGoalNotFound)
}

// --- transactions ---

const txCols = `id, user_id, title, amount_minor, currency, kind, date, category_id,
	source_account_id, dest_account_id, card_id, goal_id,
	is_installment, installment_index, installment_count, installment_group_id, original_total_minor,
	is_fixed, recurrence_id, applied, created_at`

const txOrder = ` ORDER BY date, installment_index, id`

func scanTransaction(row scanner) (ledger.Transaction, error) {
	var tr ledger.Transaction
	var minor int64
	var total *int64
	var curr, date, created string
	err := row.Scan(&tr.ID, &tr.UserID, &tr.Title, &minor, &curr, &tr.Kind, &date, &tr.CategoryID,
		&tr.SourceAccountID, &tr.DestAccountID, &tr.CardID, &tr.GoalID,
		&tr.IsInstallment, &tr.InstallmentIndex, &tr.InstallmentCount, &tr.InstallmentGroupID, &total,
		&tr.IsFixed, &tr.RecurrenceID, &tr.Applied, &created)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if tr.Amount, err = money.NewAmountFromMinorUnits(curr, minor); err != nil {
		return ledger.Transaction{}, err
	}
	if tr.OriginalTotalAmount, err = optAmount(curr, total); err != nil {
		return ledger.Transaction{}, err
	}
	if tr.Date, err = parseStamp(date); err != nil {
		return ledger.Transaction{}, err
	}
	if tr.CreatedAt, err = parseStamp(created); err != nil {
		return ledger.Transaction{}, err
	}
	return tr, nil
}

func (t *tx) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
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
	tr, err := scanTransaction(t.tx.QueryRowContext(ctx, `SELECT `+txCols+` FROM transactions WHERE id = ? AND user_id = ?`, txID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, errs.ErrTransactionNotFound
	}
	return tr, err
}

func (t *tx) ListTransactions(ctx context.Context, userID uuid.UUID, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}
	if f.From != nil {
		where = append(where, "date >= ?")
		args = append(args, stamp(*f.From))
	}
	if f.To != nil {
		where = append(where, "date <= ?")
		args = append(args, stamp(*f.To))
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.CardID != nil {
		where = append(where, "card_id = ?")
		args = append(args, *f.CardID)
	}
	if f.GroupID != nil {
		where = append(where, "installment_group_id = ?")
		args = append(args, *f.GroupID)
	}
	return t.queryTransactions(ctx, `SELECT `+txCols+` FROM transactions WHERE `+strings.Join(where, " AND ")+txOrder, args...)
}

func (t *tx) CreateTransactions(ctx context.Context, ts []ledger.Transaction) error {
	stmt, err := t.tx.PrepareContext(ctx, `INSERT INTO transactions (`+txCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, tr := range ts {
		created := tr.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		m, err := ledger.Minor(tr.Amount)
		if err != nil {
			return err
		}
		orig, err := optMinor(tr.OriginalTotalAmount)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, tr.ID, tr.UserID, tr.Title, m, tr.Amount.Curr().Code(), tr.Kind, stamp(tr.Date), tr.CategoryID,
			tr.SourceAccountID, tr.DestAccountID, tr.CardID, tr.GoalID,
			tr.IsInstallment, tr.InstallmentIndex, tr.InstallmentCount, tr.InstallmentGroupID, orig,
			tr.IsFixed, tr.RecurrenceID, tr.Applied, stamp(created)); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}
	return nil
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
	res, err := t.tx.ExecContext(ctx, `
		UPDATE transactions
		SET title=?, amount_minor=?, kind=?, date=?, category_id=?,
		    source_account_id=?, dest_account_id=?, card_id=?, goal_id=?,
		    is_installment=?, installment_index=?, installment_count=?,
		    installment_group_id=?, original_total_minor=?,
		    is_fixed=?, recurrence_id=?, applied=?
		WHERE id=? AND user_id=?`,
		tr.Title, m, tr.Kind, stamp(tr.Date), tr.CategoryID,
		tr.SourceAccountID, tr.DestAccountID, tr.CardID, tr.GoalID,
		tr.IsInstallment, tr.InstallmentIndex, tr.InstallmentCount,
		tr.InstallmentGroupID, orig,
		tr.IsFixed, tr.RecurrenceID, tr.Applied, tr.ID, tr.UserID)
	if err != nil {
		return err
	}
	return affected(res, errs.ErrTransactionNotFound)
}

func (t *tx) DeleteTransactions(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	_, err := t.tx.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ? AND id IN (`+marks+`)`, args...)
	return err
}

func (t *tx) TransactionsByGroup(ctx context.Context, userID, groupID uuid.UUID) ([]ledger.Transaction, error) {
	return t.queryTransactions(ctx, `SELECT `+txCols+` FROM transactions
		WHERE user_id = ? AND installment_group_id = ? ORDER BY installment_index, id`, userID, groupID)
}

func (t *tx) TransactionsByRecurrence(ctx context.Context, userID, recurrenceID uuid.UUID) ([]ledger.Transaction, error) {
	return t.queryTransactions(ctx, `SELECT `+txCols+` FROM transactions
		WHERE user_id = ? AND recurrence_id = ?`+txOrder, userID, recurrenceID)
}

func (t *tx) CardExpensesBetween(ctx context.Context, userID, cardID uuid.UUID, from, to time.Time) ([]ledger.Transaction, error) {
	return t.queryTransactions(ctx, `SELECT `+txCols+` FROM transactions
		WHERE user_id = ? AND card_id = ? AND kind = 'card_expense' AND date >= ? AND date <= ?`+txOrder,
		userID, cardID, stamp(from), stamp(to))
}

// --- invoices ---

const invoiceCols = `id, card_id, user_id, month, amount_minor, currency, paid, payment_date, paid_amount_minor, paid_from_account_id`

func scanInvoice(row scanner) (ledger.Invoice, error) {
	var inv ledger.Invoice
	var month, curr string
	var minor int64
	var paid *int64
	var paidAt *string
	err := row.Scan(&inv.ID, &inv.CardID, &inv.UserID, &month, &minor, &curr, &inv.Paid, &paidAt, &paid, &inv.PaidFromAccountID)
	if err != nil {
		return ledger.Invoice{}, err
	}
	if inv.Month, err = ledger.ParseMonth(month); err != nil {
		return ledger.Invoice{}, err
	}
	if inv.Amount, err = money.NewAmountFromMinorUnits(curr, minor); err != nil {
		return ledger.Invoice{}, err
	}
	if inv.PaidAmount, err = optAmount(curr, paid); err != nil {
		return ledger.Invoice{}, err
	}
	if paidAt != nil {
		at, err := parseStamp(*paidAt)
		if err != nil {
			return ledger.Invoice{}, err
		}
		inv.PaymentDate = &at
	}
	return inv, nil
}

func (t *tx) queryInvoice(ctx context.Context, query string, args ...any) (ledger.Invoice, error) {
	inv, err := scanInvoice(t.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Invoice{}, errs.ErrInvoiceNotFound
	}
	return inv, err
}

func (t *tx) GetInvoice(ctx context.Context, userID, invoiceID uuid.UUID) (ledger.Invoice, error) {
	return t.queryInvoice(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id = ? AND user_id = ?`, invoiceID, userID)
}

func (t *tx) InvoiceByCardMonth(ctx context.Context, userID, cardID uuid.UUID, month ledger.Month) (ledger.Invoice, error) {
	return t.queryInvoice(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE user_id = ? AND card_id = ? AND month = ?`, userID, cardID, month.String())
}

func (t *tx) ListInvoices(ctx context.Context, userID uuid.UUID, cardID *uuid.UUID) ([]ledger.Invoice, error) {
	query := `SELECT ` + invoiceCols + ` FROM invoices WHERE user_id = ?`
	args := []any{userID}
	if cardID != nil {
		query += ` AND card_id = ?`
		args = append(args, *cardID)
	}
	rows, err := t.tx.QueryContext(ctx, query+` ORDER BY month, card_id`, args...)
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

func (t *tx) CreateInvoice(ctx context.Context, inv ledger.Invoice) error {
	m, err := ledger.Minor(inv.Amount)
	if err != nil {
		return err
	}
	paid, err := optMinor(inv.PaidAmount)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `INSERT INTO invoices (`+invoiceCols+`) VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (card_id, month) DO NOTHING`,
		inv.ID, inv.CardID, inv.UserID, inv.Month.String(), m, inv.Amount.Curr().Code(),
		inv.Paid, optStamp(inv.PaymentDate), paid, inv.PaidFromAccountID)
	if err != nil {
		return err
	}
	return affected(res, fmt.Errorf("invoice %s for card %s: %w", inv.Month, inv.CardID, errs.ErrConflict))
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
	res, err := t.tx.ExecContext(ctx, `
		UPDATE invoices SET amount_minor=?, paid=?, payment_date=?, paid_amount_minor=?, paid_from_account_id=?
		WHERE id=? AND user_id=?`,
		m, inv.Paid, optStamp(inv.PaymentDate), paid, inv.PaidFromAccountID, inv.ID, inv.UserID)
	if err != nil {
		return err
	}
	return affected(res, errs.ErrInvoiceNotFound)
}
