package v1

import (
	"net/http"
	"strconv"

	"github.com/tinoosan/fintrack/internal/billing"
	"github.com/tinoosan/fintrack/internal/ledger"
)

func closingDay(r *http.Request) (int, bool) {
	d, err := strconv.Atoi(r.URL.Query().Get("closing_day"))
	if err != nil || d < 1 || d > 31 {
		return 0, false
	}
	return d, true
}

// GET /v1/billing/window?month=YYYY-MM&closing_day=
func (s *Server) billingWindow(w http.ResponseWriter, r *http.Request) {
	day, ok := closingDay(r)
	if !ok {
		badRequest(w, "closing_day must be between 1 and 31")
		return
	}
	month, err := ledger.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	start, end, err := billing.Window(month, day)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, billingWindowResponse{Month: month.String(), ClosingDay: day, Start: start, End: end})
}

// GET /v1/billing/invoice-month?date=YYYY-MM-DD&closing_day=
func (s *Server) invoiceMonth(w http.ResponseWriter, r *http.Request) {
	day, ok := closingDay(r)
	if !ok {
		badRequest(w, "closing_day must be between 1 and 31")
		return
	}
	date, err := parseDate("date", r.URL.Query().Get("date"))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	m := billing.InvoiceMonth(date, day)
	toJSON(w, http.StatusOK, invoiceMonthResponse{Date: date.Format(dateLayout), ClosingDay: day, Month: m.String()})
}
