// Package account implements the rules for the entities the ledger engine
// mutates: accounts (one main account per user, per-user unique names),
// credit cards (limit bookkeeping) and goals.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/slug"
	"github.com/tinoosan/fintrack/internal/storage"
)

// DefaultWalletName names the account every user gets on registration.
const DefaultWalletName = "Wallet"

// ErrNameExists indicates an account with the same normalized name already exists for the user.
var ErrNameExists = fmt.Errorf("account name already exists for user: %w", errs.ErrConflict)

type Service interface {
	ValidateCreate(a ledger.Account) error
	Create(ctx context.Context, a ledger.Account) (ledger.Account, error)
	EnsureDefaultWallet(ctx context.Context, userID uuid.UUID) (ledger.Account, error)
	List(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error)
	Get(ctx context.Context, userID, accountID uuid.UUID) (ledger.Account, error)
	Update(ctx context.Context, a ledger.Account) (ledger.Account, error)
	Delete(ctx context.Context, userID, accountID uuid.UUID) error

	CreateCard(ctx context.Context, c ledger.Card) (ledger.Card, error)
	ListCards(ctx context.Context, userID uuid.UUID) ([]ledger.Card, error)
	GetCard(ctx context.Context, userID, cardID uuid.UUID) (ledger.Card, error)
	UpdateCard(ctx context.Context, c ledger.Card) (ledger.Card, error)
	DeleteCard(ctx context.Context, userID, cardID uuid.UUID) error

	CreateGoal(ctx context.Context, g ledger.Goal) (ledger.Goal, error)
	ListGoals(ctx context.Context, userID uuid.UUID) ([]ledger.Goal, error)
	GetGoal(ctx context.Context, userID, goalID uuid.UUID) (ledger.Goal, error)
}

type service struct {
	store    storage.Store
	currency string
	logger   *slog.Logger
}

func New(store storage.Store, currency string, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{store: store, currency: strings.ToUpper(currency), logger: logger}
}

func (s *service) ValidateCreate(a ledger.Account) error {
	if a.UserID == uuid.Nil {
		return errs.ErrInvalid
	}
	if strings.TrimSpace(a.Name) == "" {
		return errs.Validation("name is required")
	}
	if slug.Slugify(a.Name) == "" {
		return errs.Validation("name must contain letters or digits")
	}
	if !a.Kind.Valid() {
		return errs.Validation(fmt.Sprintf("invalid account kind %q", a.Kind))
	}
	if _, err := ledger.Exact(a.Balance); err != nil {
		return err
	}
	return nil
}

// Create persists a new account. Setting IsMain moves the flag away from the
// user's current main account.
func (s *service) Create(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	a.Name = strings.TrimSpace(a.Name)
	if err := s.ValidateCreate(a); err != nil {
		return ledger.Account{}, err
	}
	acc := ledger.Account{ID: uuid.New(), UserID: a.UserID, Name: a.Name, Kind: a.Kind, IsMain: a.IsMain, Balance: a.Balance}
	if acc.Balance.Curr().Code() != s.currency {
		acc.Balance = ledger.Zero(s.currency)
	}
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		existing, err := tx.ListAccounts(ctx, a.UserID)
		if err != nil {
			return err
		}
		if nameTaken(existing, acc) {
			return ErrNameExists
		}
		if acc.IsMain {
			if err := clearMain(ctx, tx, existing, acc.ID); err != nil {
				return err
			}
		}
		return tx.CreateAccount(ctx, acc)
	})
	if err != nil {
		return ledger.Account{}, s.fail(ctx, "create account", err)
	}
	return acc, nil
}

// EnsureDefaultWallet returns the user's wallet, creating it if missing
// (idempotent per user). The wallet becomes the main account only when the
// user has none.
func (s *service) EnsureDefaultWallet(ctx context.Context, userID uuid.UUID) (ledger.Account, error) {
	if userID == uuid.Nil {
		return ledger.Account{}, errs.ErrInvalid
	}
	var out ledger.Account
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		existing, err := tx.ListAccounts(ctx, userID)
		if err != nil {
			return err
		}
		hasMain := false
		for _, a := range existing {
			if a.Kind == ledger.AccountKindWallet && slug.Slugify(a.Name) == slug.Slugify(DefaultWalletName) {
				out = a
				return nil
			}
			hasMain = hasMain || a.IsMain
		}
		out = ledger.Account{
			ID:      uuid.New(),
			UserID:  userID,
			Name:    DefaultWalletName,
			Kind:    ledger.AccountKindWallet,
			IsMain:  !hasMain,
			Balance: ledger.Zero(s.currency),
		}
		return tx.CreateAccount(ctx, out)
	})
	if err != nil {
		return ledger.Account{}, s.fail(ctx, "ensure default wallet", err)
	}
	return out, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	if userID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	var out []ledger.Account
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.ListAccounts(ctx, userID)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "list accounts", err)
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, userID, accountID uuid.UUID) (ledger.Account, error) {
	var out ledger.Account
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.GetAccount(ctx, userID, accountID)
		return err
	})
	if err != nil {
		return ledger.Account{}, s.fail(ctx, "get account", err)
	}
	return out, nil
}

// Update applies changes to name/kind/isMain using a complete domain account.
// The balance is owned by the ledger and cannot be edited here.
func (s *service) Update(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if a.UserID == uuid.Nil || a.ID == uuid.Nil {
		return ledger.Account{}, errs.ErrInvalid
	}
	a.Name = strings.TrimSpace(a.Name)
	if err := s.ValidateCreate(a); err != nil {
		return ledger.Account{}, err
	}
	var out ledger.Account
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		current, err := tx.GetAccount(ctx, a.UserID, a.ID)
		if err != nil {
			return err
		}
		existing, err := tx.ListAccounts(ctx, a.UserID)
		if err != nil {
			return err
		}
		if nameTaken(existing, a) {
			return ErrNameExists
		}
		if a.IsMain && !current.IsMain {
			if err := clearMain(ctx, tx, existing, a.ID); err != nil {
				return err
			}
		}
		current.Name, current.Kind, current.IsMain = a.Name, a.Kind, a.IsMain
		out = current
		return tx.SaveAccount(ctx, current)
	})
	if err != nil {
		return ledger.Account{}, s.fail(ctx, "update account", err)
	}
	return out, nil
}

// Delete removes the account. Transactions that reference it are left as
// they are; reverting them later is a no-op for this account.
func (s *service) Delete(ctx context.Context, userID, accountID uuid.UUID) error {
	if userID == uuid.Nil || accountID == uuid.Nil {
		return errs.ErrInvalid
	}
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.DeleteAccount(ctx, userID, accountID)
	})
	if err != nil {
		return s.fail(ctx, "delete account", err)
	}
	return nil
}

// nameTaken reports whether another account of the user has a's normalized name.
func nameTaken(existing []ledger.Account, a ledger.Account) bool {
	want := slug.Slugify(a.Name)
	for _, other := range existing {
		if other.ID != a.ID && other.UserID == a.UserID && slug.Slugify(other.Name) == want {
			return true
		}
	}
	return false
}

func clearMain(ctx context.Context, tx storage.Tx, existing []ledger.Account, keep uuid.UUID) error {
	for _, other := range existing {
		if other.ID == keep || !other.IsMain {
			continue
		}
		other.IsMain = false
		if err := tx.SaveAccount(ctx, other); err != nil {
			return err
		}
	}
	return nil
}

func validDay(d int) bool { return d >= 1 && d <= 31 }

func (s *service) validateCard(c ledger.Card) error {
	if c.UserID == uuid.Nil {
		return errs.ErrInvalid
	}
	if strings.TrimSpace(c.Name) == "" {
		return errs.Validation("name is required")
	}
	if c.CreditLimit.IsNeg() {
		return fmt.Errorf("credit limit must be >= 0: %w", errs.ErrInvalidAmount)
	}
	if _, err := ledger.Exact(c.CreditLimit); err != nil {
		return err
	}
	if !validDay(c.ClosingDay) || !validDay(c.DueDay) {
		return errs.Validation("closing_day and due_day must be between 1 and 31")
	}
	return nil
}

// CreateCard persists a card with its whole limit available.
func (s *service) CreateCard(ctx context.Context, c ledger.Card) (ledger.Card, error) {
	if err := s.validateCard(c); err != nil {
		return ledger.Card{}, err
	}
	card := ledger.Card{
		ID:             uuid.New(),
		UserID:         c.UserID,
		Name:           strings.TrimSpace(c.Name),
		Brand:          strings.TrimSpace(c.Brand),
		CreditLimit:    c.CreditLimit,
		AvailableLimit: c.CreditLimit,
		ClosingDay:     c.ClosingDay,
		DueDay:         c.DueDay,
	}
	err := s.store.InTx(ctx, func(tx storage.Tx) error { return tx.CreateCard(ctx, card) })
	if err != nil {
		return ledger.Card{}, s.fail(ctx, "create card", err)
	}
	return card, nil
}

func (s *service) ListCards(ctx context.Context, userID uuid.UUID) ([]ledger.Card, error) {
	if userID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	var out []ledger.Card
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.ListCards(ctx, userID)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "list cards", err)
	}
	return out, nil
}

func (s *service) GetCard(ctx context.Context, userID, cardID uuid.UUID) (ledger.Card, error) {
	var out ledger.Card
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.GetCard(ctx, userID, cardID)
		return err
	})
	if err != nil {
		return ledger.Card{}, s.fail(ctx, "get card", err)
	}
	return out, nil
}

// UpdateCard edits descriptive fields, days and the limit. A limit change
// shifts the available limit by the same delta, clamped to [0, limit].
func (s *service) UpdateCard(ctx context.Context, c ledger.Card) (ledger.Card, error) {
	if c.ID == uuid.Nil {
		return ledger.Card{}, errs.ErrInvalid
	}
	if err := s.validateCard(c); err != nil {
		return ledger.Card{}, err
	}
	var out ledger.Card
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		current, err := tx.GetCard(ctx, c.UserID, c.ID)
		if err != nil {
			return err
		}
		available, err := shiftAvailable(current, c.CreditLimit)
		if err != nil {
			return err
		}
		current.Name = strings.TrimSpace(c.Name)
		current.Brand = strings.TrimSpace(c.Brand)
		current.ClosingDay, current.DueDay = c.ClosingDay, c.DueDay
		current.CreditLimit, current.AvailableLimit = c.CreditLimit, available
		out = current
		return tx.SaveCard(ctx, current)
	})
	if err != nil {
		return ledger.Card{}, s.fail(ctx, "update card", err)
	}
	return out, nil
}

func shiftAvailable(current ledger.Card, limit money.Amount) (money.Amount, error) {
	delta, err := limit.Sub(current.CreditLimit)
	if err != nil {
		return current.AvailableLimit, err
	}
	next, err := current.AvailableLimit.Add(delta)
	if err != nil {
		return current.AvailableLimit, err
	}
	return ledger.Clamp(next, ledger.Zero(limit.Curr().Code()), limit)
}

// DeleteCard removes the card and its invoices.
func (s *service) DeleteCard(ctx context.Context, userID, cardID uuid.UUID) error {
	if userID == uuid.Nil || cardID == uuid.Nil {
		return errs.ErrInvalid
	}
	err := s.store.InTx(ctx, func(tx storage.Tx) error { return tx.DeleteCard(ctx, userID, cardID) })
	if err != nil {
		return s.fail(ctx, "delete card", err)
	}
	return nil
}

func (s *service) CreateGoal(ctx context.Context, g ledger.Goal) (ledger.Goal, error) {
	if g.UserID == uuid.Nil {
		return ledger.Goal{}, errs.ErrInvalid
	}
	if strings.TrimSpace(g.Name) == "" {
		return ledger.Goal{}, errs.Validation("name is required")
	}
	if !g.TargetAmount.IsPos() {
		return ledger.Goal{}, fmt.Errorf("target amount must be > 0: %w", errs.ErrInvalidAmount)
	}
	if _, err := ledger.Exact(g.TargetAmount); err != nil {
		return ledger.Goal{}, err
	}
	goal := ledger.Goal{ID: uuid.New(), UserID: g.UserID, Name: strings.TrimSpace(g.Name), TargetAmount: g.TargetAmount, CurrentAmount: ledger.Zero(g.TargetAmount.Curr().Code())}
	err := s.store.InTx(ctx, func(tx storage.Tx) error { return tx.CreateGoal(ctx, goal) })
	if err != nil {
		return ledger.Goal{}, s.fail(ctx, "create goal", err)
	}
	return goal, nil
}

func (s *service) ListGoals(ctx context.Context, userID uuid.UUID) ([]ledger.Goal, error) {
	if userID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	var out []ledger.Goal
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.ListGoals(ctx, userID)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "list goals", err)
	}
	return out, nil
}

func (s *service) GetGoal(ctx context.Context, userID, goalID uuid.UUID) (ledger.Goal, error) {
	var out ledger.Goal
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.GetGoal(ctx, userID, goalID)
		return err
	})
	if err != nil {
		return ledger.Goal{}, s.fail(ctx, "get goal", err)
	}
	return out, nil
}

func (s *service) fail(ctx context.Context, op string, err error) error {
	if errs.IsDomain(err) || errors.Is(err, context.Canceled) {
		return err
	}
	s.logger.ErrorContext(ctx, op+" failed", "err", err)
	return fmt.Errorf("%s: %w", op, errs.ErrOperationFailed)
}
