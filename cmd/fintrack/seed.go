package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/service/account"
	"github.com/tinoosan/fintrack/internal/storage"
)

type devSeed struct {
	user     uuid.UUID
	wallet   ledger.Account
	checking ledger.Account
	card     ledger.Card
	goal     ledger.Goal
}

// seedDev creates a fresh user with a wallet, a checking account, a card and
// a goal through the account service.
func seedDev(ctx context.Context, store storage.Store, currency string, logger *slog.Logger) (devSeed, error) {
	svc := account.New(store, currency, logger)
	out := devSeed{user: uuid.New()}
	var err error
	if out.wallet, err = svc.EnsureDefaultWallet(ctx, out.user); err != nil {
		return out, err
	}
	opening, err := money.ParseAmount(currency, "2500.00")
	if err != nil {
		return out, err
	}
	if out.checking, err = svc.Create(ctx, ledger.Account{UserID: out.user, Name: "Checking", Kind: ledger.AccountKindChecking, Balance: opening}); err != nil {
		return out, err
	}
	limit, err := money.ParseAmount(currency, "3000.00")
	if err != nil {
		return out, err
	}
	if out.card, err = svc.CreateCard(ctx, ledger.Card{UserID: out.user, Name: "Dev Card", Brand: "visa", CreditLimit: limit, ClosingDay: 10, DueDay: 20}); err != nil {
		return out, err
	}
	target, err := money.ParseAmount(currency, "5000.00")
	if err != nil {
		return out, err
	}
	out.goal, err = svc.CreateGoal(ctx, ledger.Goal{UserID: out.user, Name: "Emergency fund", TargetAmount: target})
	return out, err
}

func (s devSeed) log(l *slog.Logger, backend string) {
	l.Info("DEV seed ("+backend+")",
		"user_id", s.user.String(),
		"wallet_account_id", s.wallet.ID.String(),
		"checking_account_id", s.checking.ID.String(),
		"card_id", s.card.ID.String(),
		"goal_id", s.goal.ID.String(),
	)
}

// printBanner prints the seeded ids to stdout for easy copy/paste.
func (s devSeed) printBanner() {
	head := color.New(color.FgGreen, color.Bold)
	key := color.New(color.FgYellow)
	head.Println("==================== DEV SEED ====================")
	for _, kv := range [][2]string{
		{"user_id", s.user.String()},
		{"wallet_account_id", s.wallet.ID.String()},
		{"checking_account_id", s.checking.ID.String()},
		{"card_id", s.card.ID.String()},
		{"goal_id", s.goal.ID.String()},
	} {
		key.Printf("%s: ", kv[0])
		fmt.Println(kv[1])
	}
	head.Println("==================================================")
}
