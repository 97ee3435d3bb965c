package v1

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
)

const dateLayout = "2006-01-02"

// parseAmount reads a decimal string ("123.45") in the server currency.
func (s *Server) parseAmount(field, raw string) (money.Amount, error) {
	a, err := money.ParseAmount(s.currency, strings.TrimSpace(raw))
	if err != nil {
		return money.Amount{}, fmt.Errorf("%s %q: %w", field, raw, errs.ErrInvalidAmount)
	}
	if a, err = ledger.Exact(a); err != nil {
		return money.Amount{}, fmt.Errorf("%s: %w", field, err)
	}
	return a, nil
}

// parseDate accepts a calendar date (YYYY-MM-DD) or an RFC 3339 timestamp.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, errs.Validation(fmt.Sprintf("invalid %s %q", field, raw))
}

// minor renders amounts that already passed ledger.Exact, so they always fit.
func minor(a money.Amount) int64 {
	m, _ := ledger.Minor(a)
	return m
}

func optString(a *money.Amount) *string {
	if a == nil {
		return nil
	}
	s := a.Decimal().String()
	return &s
}

// Transactions

type postTransactionRequest struct {
	Title           string     `json:"title"`
	Amount          string     `json:"amount"`
	Kind            string     `json:"kind"`
	Date            string     `json:"date"`
	CategoryID      *uuid.UUID `json:"category_id,omitempty"`
	SourceAccountID *uuid.UUID `json:"source_account_id,omitempty"`
	DestAccountID   *uuid.UUID `json:"dest_account_id,omitempty"`
	CardID          *uuid.UUID `json:"card_id,omitempty"`
	GoalID          *uuid.UUID `json:"goal_id,omitempty"`
	Installments    int        `json:"installments,omitempty"`
	Fixed           bool       `json:"fixed,omitempty"`
}

type patchTransactionRequest struct {
	Title            *string    `json:"title,omitempty"`
	Amount           *string    `json:"amount,omitempty"`
	Kind             *string    `json:"kind,omitempty"`
	Date             *string    `json:"date,omitempty"`
	CategoryID       *uuid.UUID `json:"category_id,omitempty"`
	SourceAccountID  *uuid.UUID `json:"source_account_id,omitempty"`
	DestAccountID    *uuid.UUID `json:"dest_account_id,omitempty"`
	CardID           *uuid.UUID `json:"card_id,omitempty"`
	GoalID           *uuid.UUID `json:"goal_id,omitempty"`
	InstallmentCount *int       `json:"installment_count,omitempty"`
}

type transactionResponse struct {
	ID                  uuid.UUID              `json:"id"`
	UserID              uuid.UUID              `json:"user_id"`
	Title               string                 `json:"title"`
	Amount              string                 `json:"amount"`
	AmountMinor         int64                  `json:"amount_minor"`
	Kind                ledger.TransactionKind `json:"kind"`
	Date                string                 `json:"date"`
	CategoryID          *uuid.UUID             `json:"category_id,omitempty"`
	SourceAccountID     *uuid.UUID             `json:"source_account_id,omitempty"`
	DestAccountID       *uuid.UUID             `json:"dest_account_id,omitempty"`
	CardID              *uuid.UUID             `json:"card_id,omitempty"`
	GoalID              *uuid.UUID             `json:"goal_id,omitempty"`
	IsInstallment       bool                   `json:"is_installment"`
	InstallmentIndex    int                    `json:"installment_index,omitempty"`
	InstallmentCount    int                    `json:"installment_count,omitempty"`
	InstallmentGroupID  *uuid.UUID             `json:"installment_group_id,omitempty"`
	OriginalTotalAmount *string                `json:"original_total_amount,omitempty"`
	IsFixed             bool                   `json:"is_fixed"`
	RecurrenceID        *uuid.UUID             `json:"recurrence_id,omitempty"`
	Applied             bool                   `json:"applied"`
	CreatedAt           time.Time              `json:"created_at"`
}

type transactionsResponse struct {
	Items []transactionResponse `json:"items"`
	Count int                   `json:"count"`
}

func toTransactionResponse(t ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:                  t.ID,
		UserID:              t.UserID,
		Title:               t.Title,
		Amount:              t.Amount.Decimal().String(),
		AmountMinor:         minor(t.Amount),
		Kind:                t.Kind,
		Date:                t.Date.Format(dateLayout),
		CategoryID:          t.CategoryID,
		SourceAccountID:     t.SourceAccountID,
		DestAccountID:       t.DestAccountID,
		CardID:              t.CardID,
		GoalID:              t.GoalID,
		IsInstallment:       t.IsInstallment,
		InstallmentIndex:    t.InstallmentIndex,
		InstallmentCount:    t.InstallmentCount,
		InstallmentGroupID:  t.InstallmentGroupID,
		OriginalTotalAmount: optString(t.OriginalTotalAmount),
		IsFixed:             t.IsFixed,
		RecurrenceID:        t.RecurrenceID,
		Applied:             t.Applied,
		CreatedAt:           t.CreatedAt,
	}
}

func toTransactionsResponse(ts []ledger.Transaction, count int) transactionsResponse {
	out := transactionsResponse{Items: make([]transactionResponse, 0, len(ts)), Count: count}
	for _, t := range ts {
		out.Items = append(out.Items, toTransactionResponse(t))
	}
	return out
}

// Invoices

type payInvoiceRequest struct {
	Amount    string     `json:"amount"`
	Date      string     `json:"date,omitempty"`
	AccountID *uuid.UUID `json:"account_id,omitempty"`
}

type invoiceResponse struct {
	ID                uuid.UUID  `json:"id"`
	CardID            uuid.UUID  `json:"card_id"`
	UserID            uuid.UUID  `json:"user_id"`
	Month             string     `json:"month"`
	Amount            string     `json:"amount"`
	AmountMinor       int64      `json:"amount_minor"`
	Paid              bool       `json:"paid"`
	PaymentDate       *string    `json:"payment_date,omitempty"`
	PaidAmount        *string    `json:"paid_amount,omitempty"`
	PaidFromAccountID *uuid.UUID `json:"paid_from_account_id,omitempty"`
}

func toInvoiceResponse(inv ledger.Invoice) invoiceResponse {
	out := invoiceResponse{
		ID:                inv.ID,
		CardID:            inv.CardID,
		UserID:            inv.UserID,
		Month:             inv.Month.String(),
		Amount:            inv.Amount.Decimal().String(),
		AmountMinor:       minor(inv.Amount),
		Paid:              inv.Paid,
		PaidAmount:        optString(inv.PaidAmount),
		PaidFromAccountID: inv.PaidFromAccountID,
	}
	if inv.PaymentDate != nil {
		d := inv.PaymentDate.Format(dateLayout)
		out.PaymentDate = &d
	}
	return out
}

// Accounts

type postAccountRequest struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	IsMain  bool   `json:"is_main,omitempty"`
	Balance string `json:"balance,omitempty"`
}

type patchAccountRequest struct {
	Name   *string `json:"name,omitempty"`
	Kind   *string `json:"kind,omitempty"`
	IsMain *bool   `json:"is_main,omitempty"`
}

type accountResponse struct {
	ID           uuid.UUID          `json:"id"`
	UserID       uuid.UUID          `json:"user_id"`
	Name         string             `json:"name"`
	Kind         ledger.AccountKind `json:"kind"`
	IsMain       bool               `json:"is_main"`
	Balance      string             `json:"balance"`
	BalanceMinor int64              `json:"balance_minor"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{
		ID:           a.ID,
		UserID:       a.UserID,
		Name:         a.Name,
		Kind:         a.Kind,
		IsMain:       a.IsMain,
		Balance:      a.Balance.Decimal().String(),
		BalanceMinor: minor(a.Balance),
	}
}

// Cards

type postCardRequest struct {
	Name        string `json:"name"`
	Brand       string `json:"brand,omitempty"`
	CreditLimit string `json:"credit_limit"`
	ClosingDay  int    `json:"closing_day"`
	DueDay      int    `json:"due_day"`
}

type patchCardRequest struct {
	Name        *string `json:"name,omitempty"`
	Brand       *string `json:"brand,omitempty"`
	CreditLimit *string `json:"credit_limit,omitempty"`
	ClosingDay  *int    `json:"closing_day,omitempty"`
	DueDay      *int    `json:"due_day,omitempty"`
}

type cardResponse struct {
	ID                  uuid.UUID `json:"id"`
	UserID              uuid.UUID `json:"user_id"`
	Name                string    `json:"name"`
	Brand               string    `json:"brand"`
	CreditLimit         string    `json:"credit_limit"`
	CreditLimitMinor    int64     `json:"credit_limit_minor"`
	AvailableLimit      string    `json:"available_limit"`
	AvailableLimitMinor int64     `json:"available_limit_minor"`
	ClosingDay          int       `json:"closing_day"`
	DueDay              int       `json:"due_day"`
}

func toCardResponse(c ledger.Card) cardResponse {
	return cardResponse{
		ID:                  c.ID,
		UserID:              c.UserID,
		Name:                c.Name,
		Brand:               c.Brand,
		CreditLimit:         c.CreditLimit.Decimal().String(),
		CreditLimitMinor:    minor(c.CreditLimit),
		AvailableLimit:      c.AvailableLimit.Decimal().String(),
		AvailableLimitMinor: minor(c.AvailableLimit),
		ClosingDay:          c.ClosingDay,
		DueDay:              c.DueDay,
	}
}

// Goals

type postGoalRequest struct {
	Name         string `json:"name"`
	TargetAmount string `json:"target_amount"`
}

type goalResponse struct {
	ID                 uuid.UUID `json:"id"`
	UserID             uuid.UUID `json:"user_id"`
	Name               string    `json:"name"`
	TargetAmount       string    `json:"target_amount"`
	TargetAmountMinor  int64     `json:"target_amount_minor"`
	CurrentAmount      string    `json:"current_amount"`
	CurrentAmountMinor int64     `json:"current_amount_minor"`
}

func toGoalResponse(g ledger.Goal) goalResponse {
	return goalResponse{
		ID:                 g.ID,
		UserID:             g.UserID,
		Name:               g.Name,
		TargetAmount:       g.TargetAmount.Decimal().String(),
		TargetAmountMinor:  minor(g.TargetAmount),
		CurrentAmount:      g.CurrentAmount.Decimal().String(),
		CurrentAmountMinor: minor(g.CurrentAmount),
	}
}

// Billing

type billingWindowResponse struct {
	Month      string    `json:"month"`
	ClosingDay int       `json:"closing_day"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

type invoiceMonthResponse struct {
	Date       string `json:"date"`
	ClosingDay int    `json:"closing_day"`
	Month      string `json:"month"`
}
