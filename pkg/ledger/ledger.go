// Package ledger holds accumulated token amounts per address. Amounts are
// fixed-point decimals so thousands of day-by-day accumulations do not
// drift the way float64 sums would.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/libertai/ltai-points/pkg/types"
)

// Ledger maps addresses to non-negative accumulated token amounts. It is
// built by summation only; nothing decrements an entry during accumulation.
type Ledger map[types.Address]decimal.Decimal

// New returns an empty ledger.
func New() Ledger {
	return Ledger{}
}

// Add accumulates amount into the address entry.
func (l Ledger) Add(addr types.Address, amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	l[addr] = l[addr].Add(amount)
}

// Get returns the accumulated amount for addr, zero when absent.
func (l Ledger) Get(addr types.Address) decimal.Decimal {
	return l[addr]
}

// Scale multiplies the entry for addr by a float factor. Used for the
// cluster holding multiplier on pending amounts.
func (l Ledger) Scale(addr types.Address, factor float64) {
	if amt, ok := l[addr]; ok {
		l[addr] = amt.Mul(decimal.NewFromFloat(factor))
	}
}

// Merge adds every entry of other into l.
func (l Ledger) Merge(other Ledger) {
	for addr, amt := range other {
		l.Add(addr, amt)
	}
}

// Clone returns an independent copy.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for addr, amt := range l {
		out[addr] = amt
	}
	return out
}

// Total sums every entry.
func (l Ledger) Total() decimal.Decimal {
	total := decimal.Zero
	for _, amt := range l {
		total = total.Add(amt)
	}
	return total
}

// Reconcile splits an accrued ledger against previously-minted amounts.
// Addresses with a mint record keep the minted amount as their settled
// baseline and carry max(accrued-minted, 0) as pending; addresses never
// minted carry their whole accrued amount as pending with a zero baseline.
// Whenever minted <= accrued, baseline + pending == accrued exactly.
func Reconcile(accrued Ledger, previousMints map[types.Address]decimal.Decimal) (settled, pending Ledger) {
	settled = New()
	pending = New()
	for addr, amt := range accrued {
		prev := previousMints[addr]
		if prev.IsPositive() {
			settled[addr] = prev
			if owed := amt.Sub(prev); owed.IsPositive() {
				pending[addr] = owed
			}
			continue
		}
		if amt.IsPositive() {
			pending[addr] = amt
		}
	}
	// Addresses minted in the past but absent from this run's accrual keep
	// their historical baseline.
	for addr, prev := range previousMints {
		if _, ok := accrued[addr]; !ok && prev.IsPositive() {
			settled[addr] = prev
		}
	}
	return settled, pending
}
