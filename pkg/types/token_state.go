package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenState is the on-chain view of the token at run start: what has been
// minted to whom, current balances, and when distributions happened. All of
// it is read-only to the computation.
type TokenState struct {
	PreviousMints     map[Address]decimal.Decimal
	Balances          map[Address]decimal.Decimal
	LastMintTime      time.Time
	DistributionTimes []time.Time
}

// LastDistributionOn returns the most recent distribution instant that falls
// on the given UTC day, or the zero time when none does.
func (s *TokenState) LastDistributionOn(day time.Time) time.Time {
	var last time.Time
	key := DayKey(day)
	for _, t := range s.DistributionTimes {
		if DayKey(t) == key && t.After(last) {
			last = t
		}
	}
	return last
}
