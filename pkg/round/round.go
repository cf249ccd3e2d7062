// Package round computes the token emission of a single day's network
// snapshot, split across stakers, nodes and resource nodes, and accumulates
// it into a running ledger.
package round

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/libertai/ltai-points/pkg/cluster"
	"github.com/libertai/ltai-points/pkg/config"
	"github.com/libertai/ltai-points/pkg/emission"
	"github.com/libertai/ltai-points/pkg/ledger"
	"github.com/libertai/ltai-points/pkg/types"
)

// daysPerMonth converts the resource-node monthly bases to daily rates.
var daysPerMonth = decimal.NewFromFloat(365.0 / 12.0)

// Processor replays network snapshots day by day. It must be driven in
// strict date order: bonus decay and address links depend on cumulative
// elapsed time.
type Processor struct {
	logger        *zap.Logger
	cfg           *config.Settings
	clusters      *cluster.Engine
	registrations map[types.Address]time.Time
	bonusSet      map[types.Address]bool
}

// New builds a processor. clusters may be nil for projection replays that
// must not record further address links.
func New(cfg *config.Settings, logger *zap.Logger, clusters *cluster.Engine, registrations map[types.Address]time.Time) *Processor {
	bonusSet := make(map[types.Address]bool, len(cfg.BonusAddresses))
	for _, addr := range cfg.BonusAddresses {
		bonusSet[addr] = true
	}
	return &Processor{
		logger:        logger,
		cfg:           cfg,
		clusters:      clusters,
		registrations: registrations,
		bonusSet:      bonusSet,
	}
}

// ProcessDay distributes the emission of one day into led. day is the UTC
// start of the snapshot's day; dayRatio in (0, 1] weights partial-day
// accounting for today. Zero active nodes or zero total stake indicate a
// malformed snapshot and fail the day loudly.
func (p *Processor) ProcessDay(snap *types.NetworkSnapshot, day time.Time, dayRatio float64, led ledger.Ledger) error {
	if dayRatio <= 0 || dayRatio > 1 {
		return fmt.Errorf("day %s: day ratio %v outside (0, 1]", snap.Date, dayRatio)
	}
	daysSinceStart := day.Sub(p.cfg.RewardStart).Hours() / 24
	if daysSinceStart < 0 {
		return fmt.Errorf("day %s precedes program start", snap.Date)
	}

	active := snap.ActiveNodes()
	if len(active) == 0 {
		return fmt.Errorf("day %s: no active nodes in snapshot", snap.Date)
	}
	nodeCount := decimal.NewFromInt(int64(len(active)))

	totalStaked := p.cfg.NodeBaseStake.Mul(nodeCount)
	for _, node := range active {
		for _, stake := range node.Stakers {
			totalStaked = totalStaked.Add(stake)
		}
	}
	if !totalStaked.IsPositive() {
		return fmt.Errorf("day %s: total staked amount is zero", snap.Date)
	}

	decayed := emission.Decay(daysSinceStart, p.cfg.DailyDecay)
	// Sub-linear growth scaling of the staker budget with node count.
	growth := (math.Log10(float64(len(active))) + 1) / 3

	stakersBudget := p.cfg.StakersDailyBase.
		Mul(decimal.NewFromFloat(growth * decayed * p.cfg.StakedRatio))
	stakeRate := stakersBudget.Div(totalStaked)
	perNodeShare := p.cfg.NodesDailyBase.Div(nodeCount).Mul(decimal.NewFromFloat(decayed))

	scale := dayRatio * p.cfg.RewardRatio
	byHash := snap.ResourceNodeByHash()

	for _, node := range active {
		payout, err := node.PayoutAddress()
		if err != nil {
			p.logger.Warn("node has no usable payout address, skipping",
				zap.String("node", node.Hash), zap.Error(err))
			continue
		}
		owner, err := types.Normalize(node.Owner)
		if err != nil {
			owner = payout
		}

		// Base self-stake earns for the owner like any other stake.
		selfStake := stakeRate.Mul(p.cfg.NodeBaseStake).
			Mul(decimal.NewFromFloat(p.bonus(owner, day, daysSinceStart) * scale))
		led.Add(owner, selfStake)

		for raw, stake := range node.Stakers {
			staker, err := types.Normalize(raw)
			if err != nil {
				p.logger.Warn("skipping malformed staker address",
					zap.String("node", node.Hash), zap.String("address", raw))
				continue
			}
			amount := stakeRate.Mul(stake).
				Mul(decimal.NewFromFloat(p.bonus(staker, day, daysSinceStart) * scale))
			led.Add(staker, amount)
		}

		paid := p.payResourceNodes(&node, byHash, day, daysSinceStart, scale, led)

		linkage := 0.7 + 0.1*float64(paid)
		if linkage > 1 {
			linkage = 1
		}
		nodeAmount := perNodeShare.Mul(decimal.NewFromFloat(
			linkage * emission.ScoreMultiplier(node.Score) * p.bonus(payout, day, daysSinceStart) * scale))
		led.Add(payout, nodeAmount)

		if p.clusters != nil {
			p.clusters.RecordLink(node.Hash, owner, payout)
		}
	}
	return nil
}

// payResourceNodes pays the first NodeMaxPaid linked resource nodes with a
// nonzero score multiplier, in the node's declared order. Excess linked
// resource nodes beyond the cap earn nothing by policy.
func (p *Processor) payResourceNodes(node *types.Node, byHash map[string]*types.ResourceNode, day time.Time, daysSinceStart, scale float64, led ledger.Ledger) int {
	paid := 0
	for _, hash := range node.ResourceNodeIDs {
		if paid >= p.cfg.NodeMaxPaid {
			break
		}
		rn, ok := byHash[hash]
		if !ok || rn.Status != types.ResourceNodeStatusLinked {
			continue
		}
		score := emission.ScoreMultiplier(rn.Score)
		if score == 0 {
			continue
		}
		payout, err := rn.PayoutAddress()
		if err != nil {
			p.logger.Warn("resource node has no usable payout address, skipping",
				zap.String("resource_node", rn.Hash), zap.Error(err))
			continue
		}

		monthly := p.cfg.ResourceNodeMonthlyBase.
			Add(p.cfg.ResourceNodeMonthlyVariable.Mul(decimal.NewFromFloat(rn.Decentralization)))
		amount := monthly.Div(daysPerMonth).
			Mul(decimal.NewFromFloat(score * p.bonus(payout, day, daysSinceStart) * scale))
		led.Add(payout, amount)
		paid++

		if p.clusters != nil {
			owner, err := types.Normalize(rn.Owner)
			if err != nil {
				owner = payout
			}
			p.clusters.RecordLink(rn.Hash, owner, payout)
		}
	}
	return paid
}

// bonus returns the early-registrant multiplier for addr on the given day.
// Static bonus addresses always qualify; registrants qualify only when they
// opted in before both the bonus cutoff and the day being processed.
func (p *Processor) bonus(addr types.Address, day time.Time, daysSinceStart float64) float64 {
	if !p.bonusSet[addr] {
		reg, ok := p.registrations[addr]
		if !ok || !reg.Before(p.cfg.BonusLimit) || !reg.Before(day.Add(24*time.Hour)) {
			return 1
		}
	}
	return emission.BonusMultiplier(p.cfg.BonusRatio, p.cfg.BonusDurationDays, daysSinceStart)
}
