package service

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"royalbakes/backend/internal/domain"
)

// Summarize builds the end-of-shift report plus a prefilled WhatsApp share
// link. The link is handed to the operator; no response is consumed.
func Summarize(shift domain.Shift) domain.ShiftSummary {
	var b strings.Builder
	fmt.Fprintf(&b, "Shift Summary - %s\n", shift.Cashier)
	fmt.Fprintf(&b, "Start: %s\n", shift.StartTime.Format(time.RFC1123))
	if shift.EndTime != nil {
		fmt.Fprintf(&b, "End: %s\n", shift.EndTime.Format(time.RFC1123))
	}
	fmt.Fprintf(&b, "Sales: %d\n", len(shift.Sales))
	fmt.Fprintf(&b, "Refunds: %d\n", len(shift.Refunds))
	fmt.Fprintf(&b, "Cash: %.0f\n", shift.CashTotal)
	fmt.Fprintf(&b, "MoMo: %.0f\n", shift.MomoTotal)
	fmt.Fprintf(&b, "Total: %.0f\n", shift.Total)
	fmt.Fprintf(&b, "Starting cash: %.0f\n", shift.StartingCash)
	cashExpected := shift.StartingCash + shift.CashTotal
	fmt.Fprintf(&b, "Cash expected in drawer: %.0f", cashExpected)

	text := b.String()
	return domain.ShiftSummary{
		Shift:        shift,
		SaleCount:    len(shift.Sales),
		RefundCount:  len(shift.Refunds),
		CashExpected: cashExpected,
		Text:         text,
		ShareLink:    "https://wa.me/?text=" + url.QueryEscape(text),
	}
}
