package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/events"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/storage"
)

// PayInput describes an invoice payment.
type PayInput struct {
	Amount money.Amount
	Date   time.Time
	// AccountID is the paying account; nil records the payment without
	// touching any balance.
	AccountID *uuid.UUID
}

type Service interface {
	Ensure(ctx context.Context, userID, cardID uuid.UUID, month ledger.Month) (ledger.Invoice, error)
	Pay(ctx context.Context, userID, invoiceID uuid.UUID, in PayInput) (ledger.Invoice, error)
	Unpay(ctx context.Context, userID, invoiceID uuid.UUID) (ledger.Invoice, error)
	Get(ctx context.Context, userID, invoiceID uuid.UUID) (ledger.Invoice, error)
	List(ctx context.Context, userID uuid.UUID, cardID *uuid.UUID) ([]ledger.Invoice, error)
}

type service struct {
	store  storage.Store
	pub    events.Publisher
	logger *slog.Logger
}

func NewService(store storage.Store, pub events.Publisher, logger *slog.Logger) Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &service{store: store, pub: pub, logger: logger}
}

func (s *service) Ensure(ctx context.Context, userID, cardID uuid.UUID, month ledger.Month) (ledger.Invoice, error) {
	if userID == uuid.Nil || cardID == uuid.Nil {
		return ledger.Invoice{}, errs.ErrInvalid
	}
	if !month.Valid() {
		return ledger.Invoice{}, fmt.Errorf("%s: %w", month, errs.ErrInvalidMonthFormat)
	}
	var out ledger.Invoice
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = NewManager(tx).Ensure(ctx, userID, cardID, month)
		return err
	})
	if err != nil {
		return ledger.Invoice{}, s.fail(ctx, "ensure invoice", err)
	}
	return out, nil
}

func (s *service) Pay(ctx context.Context, userID, invoiceID uuid.UUID, in PayInput) (ledger.Invoice, error) {
	if userID == uuid.Nil || invoiceID == uuid.Nil {
		return ledger.Invoice{}, errs.ErrInvalid
	}
	if !in.Amount.IsPos() {
		return ledger.Invoice{}, fmt.Errorf("paid amount must be > 0: %w", errs.ErrInvalidAmount)
	}
	if in.Date.IsZero() {
		in.Date = time.Now().UTC()
	}
	var out ledger.Invoice
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = NewManager(tx).MarkPaid(ctx, userID, invoiceID, in.Amount, in.Date, in.AccountID)
		return err
	})
	if err != nil {
		return ledger.Invoice{}, s.fail(ctx, "pay invoice", err)
	}
	s.publish(ctx, events.New(events.InvoicePaid, userID, out.ID, map[string]string{
		"card_id": out.CardID.String(),
		"month":   out.Month.String(),
		"amount":  out.Amount.Decimal().String(),
	}))
	return out, nil
}

func (s *service) Unpay(ctx context.Context, userID, invoiceID uuid.UUID) (ledger.Invoice, error) {
	if userID == uuid.Nil || invoiceID == uuid.Nil {
		return ledger.Invoice{}, errs.ErrInvalid
	}
	var out ledger.Invoice
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = NewManager(tx).MarkUnpaid(ctx, userID, invoiceID)
		return err
	})
	if err != nil {
		return ledger.Invoice{}, s.fail(ctx, "unpay invoice", err)
	}
	s.publish(ctx, events.New(events.InvoiceUnpaid, userID, out.ID, map[string]string{
		"card_id": out.CardID.String(),
		"month":   out.Month.String(),
	}))
	return out, nil
}

func (s *service) Get(ctx context.Context, userID, invoiceID uuid.UUID) (ledger.Invoice, error) {
	var out ledger.Invoice
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.GetInvoice(ctx, userID, invoiceID)
		return err
	})
	if err != nil {
		return ledger.Invoice{}, s.fail(ctx, "get invoice", err)
	}
	return out, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, cardID *uuid.UUID) ([]ledger.Invoice, error) {
	if userID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	var out []ledger.Invoice
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.ListInvoices(ctx, userID, cardID)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "list invoices", err)
	}
	return out, nil
}

// fail returns domain errors untouched and hides anything else behind
// ErrOperationFailed after logging the cause.
func (s *service) fail(ctx context.Context, op string, err error) error {
	if errs.IsDomain(err) {
		return err
	}
	s.logger.ErrorContext(ctx, op+" failed", "err", err)
	return fmt.Errorf("%s: %w", op, errs.ErrOperationFailed)
}

func (s *service) publish(ctx context.Context, e events.Event) {
	if err := s.pub.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "publish event failed", "event", e.Name, "err", err)
	}
}
