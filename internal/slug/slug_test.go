package slug

import "testing"

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"":                   "",
		"Wallet":             "wallet",
		"  Cartão de Crédito": "cartao_de_credito",
		"Transferência":      "transferencia",
		"card-expense":       "card_expense",
		"card__expense":      "card_expense",
		"__x__":              "x",
		"Poupança 2024!":     "poupanca_2024",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlugify_Truncates(t *testing.T) {
	long := "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz"
	if got := Slugify(long); len(got) != 40 {
		t.Fatalf("len = %d", len(got))
	}
}

func TestIsSlug(t *testing.T) {
	if !IsSlug("card_expense") || IsSlug("Card") || IsSlug("a") {
		t.Fatal("unexpected IsSlug result")
	}
}
