// Package money computes order totals in integer minor currency units.
// Floating point never enters the arithmetic; percentage rates are carried in
// basis points (10.00% == 1000 bps). Rounding is half-up, which is the rule
// printed on receipts and must not change.
package money

import (
	"fmt"
	"strconv"
	"strings"

	"quickbite/internal/domain"
)

const bpsScale = 10000

// Totals is the deterministic monetary breakdown of an order.
// Total = Subtotal + Tax + ServiceCharge - Discount.
type Totals struct {
	Subtotal      int64
	Tax           int64
	ServiceCharge int64
	Discount      int64
	Total         int64
}

// Compute sums line totals and applies the tax and service-charge rates.
// It is side-effect free and safe for concurrent use. Rates are in basis
// points, 0..10000. Fails with domain.ErrInvalidAmount on any negative input
// or a negative computed total.
func Compute(lineTotals []int64, taxRateBps, serviceRateBps, discount int64) (Totals, error) {
	if taxRateBps < 0 || taxRateBps > bpsScale {
		return Totals{}, fmt.Errorf("%w: tax rate %d bps out of range", domain.ErrInvalidAmount, taxRateBps)
	}
	if serviceRateBps < 0 || serviceRateBps > bpsScale {
		return Totals{}, fmt.Errorf("%w: service rate %d bps out of range", domain.ErrInvalidAmount, serviceRateBps)
	}
	if discount < 0 {
		return Totals{}, fmt.Errorf("%w: negative discount %d", domain.ErrInvalidAmount, discount)
	}

	var subtotal int64
	for i, lt := range lineTotals {
		if lt < 0 {
			return Totals{}, fmt.Errorf("%w: line %d has negative total %d", domain.ErrInvalidAmount, i, lt)
		}
		subtotal += lt
	}

	t := Totals{
		Subtotal:      subtotal,
		Tax:           roundRate(subtotal, taxRateBps),
		ServiceCharge: roundRate(subtotal, serviceRateBps),
		Discount:      discount,
	}
	t.Total = t.Subtotal + t.Tax + t.ServiceCharge - t.Discount
	if t.Total < 0 {
		return Totals{}, fmt.Errorf("%w: computed total %d is negative", domain.ErrInvalidAmount, t.Total)
	}
	return t, nil
}

// roundRate is round(amount * rate / 10000) with ties rounded up.
// Operands are non-negative, so integer arithmetic is exact.
func roundRate(amount, rateBps int64) int64 {
	return (amount*rateBps + bpsScale/2) / bpsScale
}

// LineTotal prices one order line: base price times quantity plus the selected
// option deltas. Deltas may be negative (discounted options) but the line as a
// whole must not be.
func LineTotal(basePrice int64, quantity int, optionDeltas []int64) (int64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: quantity %d must be positive", domain.ErrInvalidAmount, quantity)
	}
	if basePrice < 0 {
		return 0, fmt.Errorf("%w: negative base price %d", domain.ErrInvalidAmount, basePrice)
	}
	var deltas int64
	for _, d := range optionDeltas {
		deltas += d
	}
	total := basePrice*int64(quantity) + deltas
	if total < 0 {
		return 0, fmt.Errorf("%w: line total %d is negative", domain.ErrInvalidAmount, total)
	}
	return total, nil
}

// ParseRateBps converts a decimal percent string like "10" or "8.25" into
// basis points. At most two fractional digits are kept; "10.00" -> 1000.
func ParseRateBps(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty rate", domain.ErrInvalidAmount)
	}
	whole, frac, _ := strings.Cut(s, ".")
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w < 0 {
		return 0, fmt.Errorf("%w: bad rate %q", domain.ErrInvalidAmount, s)
	}
	bps := w * 100
	if frac != "" {
		if len(frac) > 2 {
			frac = frac[:2]
		}
		for len(frac) < 2 {
			frac += "0"
		}
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bad rate %q", domain.ErrInvalidAmount, s)
		}
		bps += f
	}
	if bps > bpsScale {
		return 0, fmt.Errorf("%w: rate %q above 100%%", domain.ErrInvalidAmount, s)
	}
	return bps, nil
}
