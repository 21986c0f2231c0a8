// Package pricing computes the tax-inclusive price breakdown for a ticket
// selection. All amounts are integer paise; each tax component is rounded
// independently, half up, so the same selection always reproduces the same
// totals wherever it is computed.
package pricing

import (
	"errors"
	"fmt"

	"tbs/src/config"
)

var ErrInvalidSelection = errors.New("invalid ticket selection")

type Line struct {
	TicketID  uint
	Qty       int
	UnitPrice int64
}

type Breakdown struct {
	Subtotal    int64 `json:"subtotal"`
	Discount    int64 `json:"discount"`
	TicketTax   int64 `json:"ticket_tax"`
	PlatformFee int64 `json:"platform_fee"`
	PlatformTax int64 `json:"platform_fee_tax"`
	GrandTotal  int64 `json:"grand_total"`
}

// RoundPercent applies pct percent to amount with half-up rounding.
func RoundPercent(amount int64, pct int64) int64 {
	return (amount*pct + 50) / 100
}

// Compute builds a Breakdown from selection lines and an already-validated
// discount. Tax and platform fee are charged on the undiscounted subtotal;
// the discount only ever reduces the subtotal portion of the total.
func Compute(lines []Line, discount int64) (*Breakdown, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty selection", ErrInvalidSelection)
	}
	var subtotal int64
	for _, l := range lines {
		if l.Qty <= 0 {
			return nil, fmt.Errorf("%w: quantity %d for ticket %d", ErrInvalidSelection, l.Qty, l.TicketID)
		}
		if l.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: negative unit price for ticket %d", ErrInvalidSelection, l.TicketID)
		}
		subtotal += int64(l.Qty) * l.UnitPrice
	}
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	ticketTax := RoundPercent(subtotal, config.TAX_RATE_PERCENT)
	platformFee := RoundPercent(subtotal, config.PLATFORM_FEE_RATE_PERCENT)
	platformTax := RoundPercent(platformFee, config.TAX_RATE_PERCENT)
	b := &Breakdown{
		Subtotal:    subtotal,
		Discount:    discount,
		TicketTax:   ticketTax,
		PlatformFee: platformFee,
		PlatformTax: platformTax,
		GrandTotal:  subtotal + ticketTax + platformFee + platformTax - discount,
	}
	return b, nil
}
