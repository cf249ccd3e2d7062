package engine_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/libertai/ltai-points/pkg/config"
	"github.com/libertai/ltai-points/pkg/engine"
	"github.com/libertai/ltai-points/pkg/types"
	"github.com/libertai/ltai-points/pkg/vesting"
)

var (
	programStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tge          = time.Date(2024, 6, 18, 12, 0, 0, 0, time.UTC)

	ownerAddr  = types.Address("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	rewardAddr = types.Address("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	stakerX    = types.Address("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	bonusAddr  = types.Address("0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65")
	vestAddr   = types.Address("0x9965507D1a55bcC2695C58ba16FB37d819B0A4dc")
)

func engineSettings() *config.Settings {
	return &config.Settings{
		RewardStart:                 programStart,
		TGE:                         tge,
		DailyDecay:                  0.99722,
		RewardRatio:                 0.35,
		StakersDailyBase:            decimal.NewFromInt(15000),
		NodesDailyBase:              decimal.NewFromInt(15000),
		StakedRatio:                 0.7,
		NodeBaseStake:               decimal.NewFromInt(200000),
		NodeMaxPaid:                 5,
		ResourceNodeMonthlyBase:     decimal.NewFromInt(250),
		ResourceNodeMonthlyVariable: decimal.NewFromInt(1250),
		BonusRatio:                  1.5,
		BonusDurationDays:           365,
		BonusLimit:                  time.Date(2024, 2, 26, 12, 0, 0, 0, time.UTC),
		BonusAddresses:              []types.Address{bonusAddr},
		BonusAddressGrant:           decimal.NewFromInt(5000),
		SignupBonus:                 decimal.NewFromInt(100),
		MinClusterMint:              decimal.NewFromInt(100),
	}
}

type fakeSource struct {
	snaps map[string]*types.NetworkSnapshot
}

func (f *fakeSource) Snapshot(_ context.Context, day time.Time) (*types.NetworkSnapshot, error) {
	key := types.DayKey(day)
	if snap, ok := f.snaps[key]; ok {
		return snap, nil
	}
	return nil, fmt.Errorf("day %s: %w", key, types.ErrSnapshotUnavailable)
}

func sourceFor(days ...time.Time) *fakeSource {
	f := &fakeSource{snaps: map[string]*types.NetworkSnapshot{}}
	for _, day := range days {
		key := types.DayKey(day)
		f.snaps[key] = &types.NetworkSnapshot{
			Date: key,
			Nodes: []types.Node{{
				Hash:    "node1",
				Owner:   string(ownerAddr),
				Reward:  string(rewardAddr),
				Status:  types.NodeStatusActive,
				Score:   0.9,
				Stakers: map[string]decimal.Decimal{string(stakerX): decimal.NewFromInt(100)},
			}},
		}
	}
	return f
}

func loadSchedule(t *testing.T) *vesting.Schedule {
	t.Helper()
	yaml := `max_supply: 60000000
pools:
  community:
    total: 1000000
allocations:
  - address: ` + string(vestAddr) + `
    amount: 1000
    pool: community
    type: instant
`
	path := filepath.Join(t.TempDir(), "supply.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	s, err := vesting.Load(path, tge, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func newEngine(t *testing.T, src engine.SnapshotSource, state *types.TokenState, now time.Time) *engine.Engine {
	t.Helper()
	registrations := map[types.Address]time.Time{
		stakerX: programStart.Add(-24 * time.Hour),
	}
	e := engine.New(engineSettings(), zaptest.NewLogger(t), src, registrations, state, loadSchedule(t))
	e.Now = func() time.Time { return now }
	return e
}

func emptyState() *types.TokenState {
	return &types.TokenState{
		PreviousMints: map[types.Address]decimal.Decimal{},
		Balances:      map[types.Address]decimal.Decimal{},
	}
}

func TestComputeEndToEnd(t *testing.T) {
	day0 := programStart
	day1 := programStart.Add(24 * time.Hour)
	today := programStart.Add(48 * time.Hour)
	now := today.Add(12 * time.Hour)

	e := newEngine(t, sourceFor(day0, day1, today), emptyState(), now)
	res, err := e.Compute(context.Background())
	require.NoError(t, err)

	// Settled counts today at full weight, the accrued view it derives
	// pending from only at half weight.
	assert.True(t, res.Settled.Get(stakerX).GreaterThan(res.Pending.Get(stakerX)))
	// Signup bonus seeds the registrant past the seed alone.
	assert.True(t, res.Pending.Get(stakerX).GreaterThan(decimal.NewFromInt(100)))

	// Static bonus address holds at least its grant.
	assert.True(t, res.Settled.Get(bonusAddr).GreaterThanOrEqual(decimal.NewFromInt(5000)))

	// Instant vesting shows up identically in every view.
	grant := decimal.NewFromInt(1000)
	assert.True(t, res.Settled.Get(vestAddr).Equal(grant))
	assert.True(t, res.Pending.Get(vestAddr).Equal(grant))
	assert.True(t, res.Estimated.Get(vestAddr).Equal(grant))

	// Nothing minted yet: no baseline, pending equals accrued.
	assert.Empty(t, res.SettledBaseline)

	// Three projected years dwarf three elapsed days.
	assert.True(t, res.Estimated.Get(stakerX).GreaterThan(res.Settled.Get(stakerX)))
	assert.True(t, res.Estimated.Get(rewardAddr).GreaterThan(res.Settled.Get(rewardAddr)))

	assert.InDelta(t, 0.5, res.Info["day_ratio"].(float64), 1e-9)
	assert.Contains(t, res.Info["boosted_addresses"], string(bonusAddr))
	assert.Contains(t, res.Info["boosted_addresses"], string(stakerX))
}

func TestComputeFailsOnMissingPastDay(t *testing.T) {
	day0 := programStart
	today := programStart.Add(48 * time.Hour)
	// Day 1 is missing from the source.
	e := newEngine(t, sourceFor(day0, today), emptyState(), today.Add(time.Hour))

	_, err := e.Compute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrSnapshotUnavailable)
	assert.Contains(t, err.Error(), "2024-01-02")
}

func TestComputeSkipsUnavailableToday(t *testing.T) {
	day0 := programStart
	day1 := programStart.Add(24 * time.Hour)
	today := programStart.Add(48 * time.Hour)

	e := newEngine(t, sourceFor(day0, day1), emptyState(), today.Add(6*time.Hour))
	res, err := e.Compute(context.Background())
	require.NoError(t, err)

	// Without today's snapshot the settled and accrued views coincide, and
	// there is nothing to project from.
	assert.True(t, res.Settled.Get(stakerX).Equal(res.Pending.Get(stakerX)))
	assert.True(t, res.Estimated.Get(stakerX).Equal(res.Settled.Get(stakerX)))
}

func TestComputeThrottlesSellersPendingOnly(t *testing.T) {
	day0 := programStart
	day1 := programStart.Add(24 * time.Hour)
	today := programStart.Add(48 * time.Hour)

	// The reward address minted 1000 and holds nothing. Its cluster (the
	// node links owner and reward address) is throttled to zero.
	state := emptyState()
	state.PreviousMints[rewardAddr] = decimal.NewFromInt(1000)

	e := newEngine(t, sourceFor(day0, day1, today), state, today.Add(12*time.Hour))
	res, err := e.Compute(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Pending.Get(rewardAddr).IsZero())
	assert.True(t, res.Pending.Get(ownerAddr).IsZero(), "cluster members share the throttle")
	assert.True(t, res.Pending.Get(stakerX).IsPositive(), "unlinked addresses are untouched")

	// Already-minted amounts survive as the settled baseline.
	assert.True(t, res.SettledBaseline.Get(rewardAddr).Equal(decimal.NewFromInt(1000)))

	// The projection is throttled the same way: nothing accrues on top of
	// the settled totals for the seller's cluster.
	assert.True(t, res.Estimated.Get(rewardAddr).Equal(res.Settled.Get(rewardAddr)))
	// Settled history itself is never throttled.
	assert.True(t, res.Settled.Get(rewardAddr).IsPositive())
}

func TestDayRatioCountsFromLastDistribution(t *testing.T) {
	day0 := programStart
	today := programStart.Add(24 * time.Hour)

	state := emptyState()
	state.DistributionTimes = []time.Time{today.Add(6 * time.Hour)}
	state.LastMintTime = today.Add(6 * time.Hour)

	e := newEngine(t, sourceFor(day0, today), state, today.Add(18*time.Hour))
	res, err := e.Compute(context.Background())
	require.NoError(t, err)

	// 12 of 24 hours elapsed since the morning distribution, not the 18
	// since midnight.
	assert.InDelta(t, 0.5, res.Info["day_ratio"].(float64), 1e-9)
}
