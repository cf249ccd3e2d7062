// Package engine drives one end-to-end computation run: replaying every day
// since program inception, finalizing address clustering, merging vesting
// allocations, reconciling against on-chain mints and projecting three
// years forward.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/libertai/ltai-points/pkg/cluster"
	"github.com/libertai/ltai-points/pkg/config"
	"github.com/libertai/ltai-points/pkg/ledger"
	"github.com/libertai/ltai-points/pkg/round"
	"github.com/libertai/ltai-points/pkg/types"
	"github.com/libertai/ltai-points/pkg/vesting"
)

// projectionDays is the horizon of the estimated ledger.
const projectionDays = 1095

// prefetchWorkers bounds the snapshot prefetch pool. Prefetching is the
// only concurrency in a run; processing stays strictly sequential.
const prefetchWorkers = 8

// SnapshotSource serves the immutable daily snapshots. A source must wrap
// types.ErrSnapshotUnavailable for days not yet recorded.
type SnapshotSource interface {
	Snapshot(ctx context.Context, day time.Time) (*types.NetworkSnapshot, error)
}

// Engine wires the computation inputs together for one run.
type Engine struct {
	logger        *zap.Logger
	cfg           *config.Settings
	snapshots     SnapshotSource
	registrations map[types.Address]time.Time
	tokenState    *types.TokenState
	schedule      *vesting.Schedule

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// New builds an engine over already-loaded external state.
func New(cfg *config.Settings, logger *zap.Logger, snapshots SnapshotSource,
	registrations map[types.Address]time.Time, tokenState *types.TokenState,
	schedule *vesting.Schedule) *Engine {
	return &Engine{
		logger:        logger,
		cfg:           cfg,
		snapshots:     snapshots,
		registrations: registrations,
		tokenState:    tokenState,
		schedule:      schedule,
		Now:           time.Now,
	}
}

// Result carries the three ledgers of a run plus the info metadata for the
// publish sink. Settled is the as-if-distributed-completely-to-date total;
// SettledBaseline is the reconciled already-minted baseline per address.
type Result struct {
	Settled         ledger.Ledger
	Pending         ledger.Ledger
	Estimated       ledger.Ledger
	SettledBaseline ledger.Ledger
	Info            map[string]any
}

// Compute runs the full pipeline. Any missing or malformed past-day
// snapshot aborts the run: gaps would corrupt the decay arithmetic of every
// later day.
func (e *Engine) Compute(ctx context.Context) (*Result, error) {
	now := e.Now().UTC()
	today := now.Truncate(24 * time.Hour)
	startDay := e.cfg.RewardStart.Truncate(24 * time.Hour)

	clusters := cluster.New(e.logger, e.cfg.MinClusterMint)
	proc := round.New(e.cfg, e.logger, clusters, e.registrations)

	totals := e.seedLedger()

	e.prefetch(ctx, startDay, today)

	// Replay every full day since inception, oldest first. Bonus decay and
	// cluster links depend on this order.
	for day := startDay; day.Before(today); day = day.Add(24 * time.Hour) {
		snap, err := e.snapshots.Snapshot(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("replay day %s: %w", types.DayKey(day), err)
		}
		dayTime := day
		if e.cfg.RewardStart.After(dayTime) {
			dayTime = e.cfg.RewardStart
		}
		if err := proc.ProcessDay(snap, dayTime, 1.0, totals); err != nil {
			return nil, err
		}
	}

	// Today is replayed twice: at partial weight for the accrued-to-now
	// view pending is derived from, and at full weight so the settled
	// totals read as if today had been distributed completely.
	dayRatio := e.todayRatio(now, today)
	accrued := totals.Clone()

	todaySnap, err := e.snapshots.Snapshot(ctx, today)
	switch {
	case errors.Is(err, types.ErrSnapshotUnavailable):
		e.logger.Warn("today's snapshot not yet available, skipping today")
		todaySnap = nil
	case err != nil:
		return nil, fmt.Errorf("fetch today's snapshot: %w", err)
	}
	if todaySnap != nil {
		if dayRatio > 0 {
			if err := proc.ProcessDay(todaySnap, today, dayRatio, accrued); err != nil {
				return nil, err
			}
		}
		if err := proc.ProcessDay(todaySnap, today, 1.0, totals); err != nil {
			return nil, err
		}
	}

	// Clusters are only valid once every day's links are known.
	clusters.Finalize()

	// Vesting merges into both views; pool counters increment once, against
	// the full-schedule resolution.
	instant := e.schedule.InstantTotals(e.schedule.Pools)
	linear := e.schedule.LinearTotals(now, nil, e.schedule.Pools)
	for addr, amt := range instant {
		totals.Add(addr, amt)
		accrued.Add(addr, amt)
	}
	for addr, amt := range linear {
		totals.Add(addr, amt)
		accrued.Add(addr, amt)
	}

	// Split accrued-to-now against on-chain mints, then throttle pending by
	// the cluster holding multiplier. Settled history is never throttled.
	baseline, pending := ledger.Reconcile(accrued, e.tokenState.PreviousMints)
	for addr := range pending {
		m, err := clusters.Multiplier(addr, e.tokenState.PreviousMints, e.tokenState.Balances)
		if err != nil {
			return nil, err
		}
		pending.Scale(addr, m)
	}

	estimated, err := e.project(clusters, totals, todaySnap, today, now)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Settled:         totals,
		Pending:         pending,
		Estimated:       estimated,
		SettledBaseline: baseline,
		Info:            e.runInfo(totals, pending, dayRatio),
	}
	e.logger.Info("computation complete",
		zap.Int("addresses", len(totals)),
		zap.String("settled_total", totals.Total().String()),
		zap.String("pending_total", pending.Total().String()))
	return res, nil
}

// seedLedger applies the static bonus-address grants and the per-registrant
// signup bonus.
func (e *Engine) seedLedger() ledger.Ledger {
	led := ledger.New()
	for _, addr := range e.cfg.BonusAddresses {
		led.Add(addr, e.cfg.BonusAddressGrant)
	}
	for addr := range e.registrations {
		led.Add(addr, e.cfg.SignupBonus)
	}
	return led
}

// todayRatio is the fraction of today already elapsed since the last
// on-chain distribution event, or since midnight when none happened today.
func (e *Engine) todayRatio(now, today time.Time) float64 {
	ref := today
	if last := e.tokenState.LastDistributionOn(today); last.After(ref) {
		ref = last
	}
	ratio := now.Sub(ref).Seconds() / 86400
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	return ratio
}

// project re-runs today's snapshot forward for three years under a
// nothing-changes assumption, cluster-throttled, plus the linear vesting
// due between now and the horizon.
func (e *Engine) project(clusters *cluster.Engine, totals ledger.Ledger,
	todaySnap *types.NetworkSnapshot, today, now time.Time) (ledger.Ledger, error) {
	estimated := totals.Clone()

	if todaySnap != nil {
		// Nil cluster engine: projection must not grow the link graph.
		proc := round.New(e.cfg, e.logger, nil, e.registrations)
		projected := ledger.New()
		for i := 1; i <= projectionDays; i++ {
			day := today.Add(time.Duration(i) * 24 * time.Hour)
			if err := proc.ProcessDay(todaySnap, day, 1.0, projected); err != nil {
				return nil, fmt.Errorf("project day %d: %w", i, err)
			}
		}
		for addr := range projected {
			m, err := clusters.Multiplier(addr, e.tokenState.PreviousMints, e.tokenState.Balances)
			if err != nil {
				return nil, err
			}
			projected.Scale(addr, m)
		}
		estimated.Merge(projected)
	}

	horizon := now.Add(projectionDays * 24 * time.Hour)
	for addr, amt := range e.schedule.LinearTotals(horizon, &now, nil) {
		estimated.Add(addr, amt)
	}
	return estimated, nil
}

// prefetch warms the snapshot source concurrently. Failures here are not
// fatal; the sequential replay is the authority on missing days.
func (e *Engine) prefetch(ctx context.Context, startDay, today time.Time) {
	pool := pond.NewPool(prefetchWorkers)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	warmed := xsync.NewMap[string, bool]()
	for day := startDay; !day.After(today); day = day.Add(24 * time.Hour) {
		day := day
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			if _, err := e.snapshots.Snapshot(groupCtx, day); err == nil {
				warmed.Store(types.DayKey(day), true)
			}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		e.logger.Warn("snapshot prefetch incomplete", zap.Error(err))
	}
	e.logger.Debug("snapshot prefetch done", zap.Int("days", warmed.Size()))
}

// runInfo assembles the metadata aggregate published next to the ledgers.
func (e *Engine) runInfo(totals, pending ledger.Ledger, dayRatio float64) map[string]any {
	boosted := make([]string, 0, len(e.cfg.BonusAddresses))
	seen := map[types.Address]bool{}
	for _, addr := range e.cfg.BonusAddresses {
		boosted = append(boosted, string(addr))
		seen[addr] = true
	}
	for addr, reg := range e.registrations {
		if reg.Before(e.cfg.BonusLimit) && !seen[addr] {
			boosted = append(boosted, string(addr))
		}
	}

	pools := map[string]any{}
	for name, pool := range e.schedule.Pools {
		pools[name] = map[string]any{
			"total":       pool.Total.InexactFloat64(),
			"distributed": pool.Distributed.InexactFloat64(),
		}
	}

	return map[string]any{
		"last_time":         float64(e.tokenState.LastMintTime.Unix()),
		"total_addresses":   len(totals),
		"pending_addresses": len(pending),
		"boosted_addresses": boosted,
		"max_supply":        e.schedule.MaxSupply.InexactFloat64(),
		"pools":             pools,
		"day_ratio":         dayRatio,
	}
}
