// Command cycles prints credit card billing windows and the invoice month a
// purchase date falls into.
//
//	cycles -closing-day 10 -months 2024-02,2024-03 -dates 2024-03-10,2024-03-11
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/tinoosan/fintrack/internal/billing"
)

const dateLayout = "2006-01-02"

var (
	header = color.New(color.FgGreen, color.Bold)
	label  = color.New(color.FgBlue)
	fail   = color.New(color.FgRed)
)

func main() {
	closingDay := flag.Int("closing-day", 10, "card closing day (1-31)")
	months := flag.String("months", "", "comma separated YYYY-MM months to print windows for")
	dates := flag.String("dates", "", "comma separated YYYY-MM-DD purchase dates to map to invoice months")
	flag.Parse()

	if *closingDay < 1 || *closingDay > 31 {
		fail.Fprintln(os.Stderr, "closing-day must be between 1 and 31")
		os.Exit(2)
	}
	if *months == "" && *dates == "" {
		*months = time.Now().UTC().Format("2006-01")
	}

	ok := true
	if ms := split(*months); len(ms) > 0 {
		header.Printf("Billing windows (closing day %d)\n", *closingDay)
		for _, m := range ms {
			start, end, err := billing.WindowFor(m, *closingDay)
			if err != nil {
				fail.Printf("  %s: %v\n", m, err)
				ok = false
				continue
			}
			label.Printf("  %s", m)
			fmt.Printf("  %s .. %s\n", start.Format(dateLayout), end.Format(dateLayout))
		}
	}
	if ds := split(*dates); len(ds) > 0 {
		header.Printf("Invoice months (closing day %d)\n", *closingDay)
		for _, d := range ds {
			t, err := time.Parse(dateLayout, d)
			if err != nil {
				fail.Printf("  %s: invalid date\n", d)
				ok = false
				continue
			}
			label.Printf("  %s", d)
			fmt.Printf("  -> %s\n", billing.InvoiceMonth(t, *closingDay))
		}
	}
	if !ok {
		os.Exit(1)
	}
}

func split(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
