// Package dictionary translates external vocabulary into the closed set of
// transaction kinds. It is applied once, at ingestion.
package dictionary

import (
	"fmt"
	"sort"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/slug"
)

type KindDef struct {
	Kind    ledger.TransactionKind `json:"kind"`
	Label   string                 `json:"label"`
	Aliases []string               `json:"aliases"`
}

var curated = []KindDef{
	{Kind: ledger.KindIncome, Label: "Income", Aliases: []string{"income", "receita", "entrada", "salario"}},
	{Kind: ledger.KindExpense, Label: "Expense", Aliases: []string{"expense", "despesa", "gasto", "saida"}},
	{Kind: ledger.KindTransfer, Label: "Transfer", Aliases: []string{"transfer", "transferencia", "pix"}},
	{Kind: ledger.KindCardExpense, Label: "Card expense", Aliases: []string{"card_expense", "card", "credit", "cartao", "cartao_de_credito", "credito"}},
	{Kind: ledger.KindGoalDeposit, Label: "Goal deposit", Aliases: []string{"goal_deposit", "goal", "meta", "deposito_meta", "objetivo"}},
}

var byAlias = func() map[string]ledger.TransactionKind {
	m := make(map[string]ledger.TransactionKind)
	for _, d := range curated {
		for _, a := range d.Aliases {
			key := slug.Slugify(a)
			if !slug.IsSlug(key) {
				panic(fmt.Sprintf("dictionary: alias %q does not normalize to a slug", a))
			}
			m[key] = d.Kind
		}
	}
	return m
}()

// ParseKind maps s (any case, accents and separators) to a transaction kind.
func ParseKind(s string) (ledger.TransactionKind, error) {
	if k, ok := byAlias[slug.Slugify(s)]; ok {
		return k, nil
	}
	return "", errs.Validation(fmt.Sprintf("unknown transaction kind %q", s))
}

// Kinds lists the table, ordered by kind.
func Kinds() []KindDef {
	out := make([]KindDef, len(curated))
	copy(out, curated)
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}
