// Package vesting resolves the static token allocation schedule (instant
// grants and linear/cliff vesting against named pools) into amounts due at
// any instant.
package vesting

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/libertai/ltai-points/pkg/types"
)

// Allocation kinds.
const (
	KindInstant = "instant"
	KindLinear  = "linear"
)

const minutesPerDay = 24 * 60

// Pool is a named bucket of pre-committed tokens. Distributed only ever
// grows as allocations are realized against it.
type Pool struct {
	Name        string
	Total       decimal.Decimal
	Distributed decimal.Decimal
}

// Allocation is one grant from a pool to an address.
type Allocation struct {
	Address      types.Address
	Pool         string
	Amount       decimal.Decimal
	Kind         string
	DurationDays int
	CliffDays    int
}

// Schedule is the full allocation schedule, loaded once per run. Start is
// the instant linear vesting is measured from (the TGE).
type Schedule struct {
	logger      *zap.Logger
	Start       time.Time
	MaxSupply   decimal.Decimal
	Pools       map[string]*Pool
	Allocations []Allocation
}

type scheduleFile struct {
	MaxSupply decimal.Decimal `yaml:"max_supply"`
	Pools     map[string]struct {
		Total    decimal.Decimal `yaml:"total"`
		Initial  float64         `yaml:"initial"`
		Type     string          `yaml:"type"`
		Duration int             `yaml:"duration"`
	} `yaml:"pools"`
	Allocations []struct {
		Address  string          `yaml:"address"`
		Amount   decimal.Decimal `yaml:"amount"`
		Pool     string          `yaml:"pool"`
		Type     string          `yaml:"type"`
		Duration int             `yaml:"duration"`
		Cliff    int             `yaml:"cliff"`
	} `yaml:"allocations"`
}

// Load reads the supply schedule file.
func Load(path string, start time.Time, logger *zap.Logger) (*Schedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read supply schedule: %w", err)
	}
	var file scheduleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse supply schedule: %w", err)
	}

	s := &Schedule{
		logger:    logger,
		Start:     start,
		MaxSupply: file.MaxSupply,
		Pools:     map[string]*Pool{},
	}
	for name, p := range file.Pools {
		s.Pools[name] = &Pool{Name: name, Total: p.Total}
	}
	for i, a := range file.Allocations {
		addr, err := types.Normalize(a.Address)
		if err != nil {
			return nil, fmt.Errorf("allocation %d: %w", i, err)
		}
		if a.Type != KindInstant && a.Type != KindLinear {
			return nil, fmt.Errorf("allocation %d: unknown type %q", i, a.Type)
		}
		if a.Type == KindLinear && a.Duration <= 0 {
			return nil, fmt.Errorf("allocation %d: linear allocation without duration", i)
		}
		if _, ok := s.Pools[a.Pool]; !ok {
			return nil, fmt.Errorf("allocation %d: unknown pool %q", i, a.Pool)
		}
		s.Allocations = append(s.Allocations, Allocation{
			Address:      addr,
			Pool:         a.Pool,
			Amount:       a.Amount,
			Kind:         a.Type,
			DurationDays: a.Duration,
			CliffDays:    a.Cliff,
		})
	}
	return s, nil
}

// InstantTotals sums all instant allocation amounts per address. When pools
// is non-nil the matching pool counters are incremented by the same amounts.
func (s *Schedule) InstantTotals(pools map[string]*Pool) map[types.Address]decimal.Decimal {
	out := map[types.Address]decimal.Decimal{}
	for _, a := range s.Allocations {
		if a.Kind != KindInstant {
			continue
		}
		out[a.Address] = out[a.Address].Add(a.Amount)
		s.distribute(pools, a.Pool, a.Amount)
	}
	return out
}

// LinearTotals resolves every linear allocation as of asOf. With a nil from,
// amounts accrue from the schedule start (past any cliff); a non-nil from
// yields the incremental amount accrued since that instant instead. Returns
// an empty map for asOf before the schedule start.
func (s *Schedule) LinearTotals(asOf time.Time, from *time.Time, pools map[string]*Pool) map[types.Address]decimal.Decimal {
	out := map[types.Address]decimal.Decimal{}
	if asOf.Before(s.Start) {
		return out
	}
	for _, a := range s.Allocations {
		if a.Kind != KindLinear {
			continue
		}
		due := s.linearDue(a, asOf, from)
		if !due.IsPositive() {
			continue
		}
		out[a.Address] = out[a.Address].Add(due)
		s.distribute(pools, a.Pool, due)
	}
	return out
}

func (s *Schedule) linearDue(a Allocation, asOf time.Time, from *time.Time) decimal.Decimal {
	cliffEnd := s.Start.Add(time.Duration(a.CliffDays) * 24 * time.Hour)
	begin := cliffEnd
	if from != nil && from.After(begin) {
		begin = *from
	}
	elapsed := asOf.Sub(begin).Minutes()
	if elapsed <= 0 {
		return decimal.Zero
	}
	total := decimal.NewFromInt(int64(a.DurationDays) * minutesPerDay)
	due := a.Amount.Mul(decimal.NewFromFloat(elapsed)).Div(total)
	if due.GreaterThan(a.Amount) {
		return a.Amount
	}
	return due
}

// distribute increments a pool counter. Overshoot of the pool total is
// logged, not clamped: the schedule file is the authority and an overrun
// there needs a human, not silent truncation.
func (s *Schedule) distribute(pools map[string]*Pool, name string, amount decimal.Decimal) {
	if pools == nil {
		return
	}
	pool, ok := pools[name]
	if !ok {
		return
	}
	pool.Distributed = pool.Distributed.Add(amount)
	if pool.Distributed.GreaterThan(pool.Total) {
		s.logger.Error("pool distribution exceeds pool total",
			zap.String("pool", name),
			zap.String("distributed", pool.Distributed.String()),
			zap.String("total", pool.Total.String()))
	}
}
