package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
)

// AccountKind enumerates the broad classification of a money account.
type AccountKind string

const (
	// AccountKindWallet is cash on hand; every user gets one on registration.
	AccountKindWallet AccountKind = "wallet"
	// AccountKindChecking is a bank checking account.
	AccountKindChecking AccountKind = "checking"
	// AccountKindSavings is a savings account.
	AccountKindSavings AccountKind = "savings"
	// AccountKindOther covers anything else (prepaid, brokerage cash, ...).
	AccountKindOther AccountKind = "other"
)

// Valid reports whether k is one of the known account kinds.
func (k AccountKind) Valid() bool {
	switch k {
	case AccountKindWallet, AccountKindChecking, AccountKindSavings, AccountKindOther:
		return true
	}
	return false
}

// TransactionKind identifies which ledger effect a transaction carries.
type TransactionKind string

const (
	// KindIncome credits the source account.
	KindIncome TransactionKind = "income"
	// KindExpense debits the source account.
	KindExpense TransactionKind = "expense"
	// KindTransfer debits the source account and credits the destination account.
	KindTransfer TransactionKind = "transfer"
	// KindCardExpense reserves the amount against a card's available limit.
	KindCardExpense TransactionKind = "card_expense"
	// KindGoalDeposit moves money from an account (optional) into a goal.
	KindGoalDeposit TransactionKind = "goal_deposit"
)

// Valid reports whether k is one of the closed set of transaction kinds.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindIncome, KindExpense, KindTransfer, KindCardExpense, KindGoalDeposit:
		return true
	}
	return false
}

// User captures the owner of ledger data.
type User struct {
	ID    uuid.UUID
	Email *string
}

// Account is a money account owned by a user.
type Account struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Name   string
	Kind   AccountKind
	// IsMain marks the user's primary account; at most one per user.
	IsMain bool
	// Balance may go negative.
	Balance money.Amount
}

// Card is a credit card with a limit and a monthly billing cycle.
type Card struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	Brand       string
	CreditLimit money.Amount
	// AvailableLimit always stays within [0, CreditLimit].
	AvailableLimit money.Amount
	// ClosingDay is the day of month after which purchases roll into the next invoice.
	ClosingDay int
	DueDay     int
}

// Transaction is one ledger movement. For installment purchases Amount is the
// per-installment value.
type Transaction struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Title           string
	Amount          money.Amount
	Kind            TransactionKind
	Date            time.Time
	CategoryID      *uuid.UUID
	SourceAccountID *uuid.UUID
	DestAccountID   *uuid.UUID
	CardID          *uuid.UUID
	GoalID          *uuid.UUID

	IsInstallment      bool
	InstallmentIndex   int
	InstallmentCount   int
	InstallmentGroupID *uuid.UUID
	// OriginalTotalAmount is only set on installment #1 of a group.
	OriginalTotalAmount *money.Amount

	// IsFixed marks rows generated by a fixed (monthly recurring) series.
	IsFixed      bool
	RecurrenceID *uuid.UUID
	// Applied reports whether the ledger effect of this row is currently in
	// effect. Future rows of a fixed series are stored inert (Applied=false).
	Applied bool

	CreatedAt time.Time
}

// IsGroupHead reports whether t is installment #1 of a group.
func (t Transaction) IsGroupHead() bool {
	return t.IsInstallment && t.InstallmentIndex == 1 && t.InstallmentGroupID != nil
}

// CountsTowardInvoice reports whether t is a representative row for invoice
// totals: card expenses that are either standalone or installment #1.
func (t Transaction) CountsTowardInvoice() bool {
	if t.Kind != KindCardExpense {
		return false
	}
	return !t.IsInstallment || t.InstallmentIndex == 1
}

// TransactionFilter narrows transaction listings. Zero values mean "any".
type TransactionFilter struct {
	From    *time.Time
	To      *time.Time
	Kind    TransactionKind
	CardID  *uuid.UUID
	GroupID *uuid.UUID
}

// Invoice aggregates one billing cycle of a card.
type Invoice struct {
	ID     uuid.UUID
	CardID uuid.UUID
	UserID uuid.UUID
	Month  Month
	// Amount is recomputed from transactions; never edited directly.
	Amount      money.Amount
	Paid        bool
	PaymentDate *time.Time
	// PaidAmount and PaidFromAccountID record what the last payment moved so
	// that unpaying can refund it.
	PaidAmount        *money.Amount
	PaidFromAccountID *uuid.UUID
}

// Goal is a savings target fed by goal deposits.
type Goal struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Name          string
	TargetAmount  money.Amount
	CurrentAmount money.Amount
}
