// Package cluster links every owner/reward address pair ever observed on a
// node into equivalence classes, so an operator routing rewards to a fresh
// wallet is still evaluated against the holdings of every wallet they have
// used. Closure is computed with a disjoint-set forest, which is complete
// for arbitrary link chain depth.
package cluster

import (
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/libertai/ltai-points/pkg/emission"
	"github.com/libertai/ltai-points/pkg/types"
)

// ErrNotFinalized is returned when clusters are queried before every day's
// links have been recorded and Finalize called. Early queries would report
// incomplete, self-only clusters.
var ErrNotFinalized = errors.New("cluster engine queried before finalize")

// Engine accumulates address links during round processing and exposes
// cluster-level queries after Finalize.
type Engine struct {
	logger *zap.Logger

	parent map[types.Address]types.Address
	size   map[types.Address]int

	// minMint is the floor below which a cluster's previous mints are too
	// small for the holding multiplier to apply.
	minMint decimal.Decimal

	members   map[types.Address][]types.Address
	finalized bool
}

// New returns an engine applying the holding multiplier only to clusters
// minted at least minMint tokens.
func New(logger *zap.Logger, minMint decimal.Decimal) *Engine {
	return &Engine{
		logger:  logger,
		parent:  map[types.Address]types.Address{},
		size:    map[types.Address]int{},
		minMint: minMint,
	}
}

// RecordLink unions the owner and reward addresses observed on a node or
// paid resource node. Called once per node per processed day; re-adding the
// same pair is a no-op.
func (e *Engine) RecordLink(nodeHash string, owner, reward types.Address) {
	if e.finalized {
		// Projection replays run after finalize and must not grow clusters.
		return
	}
	if owner == "" || reward == "" || owner == reward {
		return
	}
	e.union(owner, reward)
	e.logger.Debug("recorded address link",
		zap.String("node", nodeHash),
		zap.String("owner", string(owner)),
		zap.String("reward", string(reward)))
}

func (e *Engine) find(a types.Address) types.Address {
	root, ok := e.parent[a]
	if !ok {
		e.parent[a] = a
		e.size[a] = 1
		return a
	}
	if root == a {
		return a
	}
	top := e.find(root)
	e.parent[a] = top
	return top
}

func (e *Engine) union(a, b types.Address) {
	ra, rb := e.find(a), e.find(b)
	if ra == rb {
		return
	}
	if e.size[ra] < e.size[rb] {
		ra, rb = rb, ra
	}
	e.parent[rb] = ra
	e.size[ra] += e.size[rb]
}

// Finalize materializes the member set of every cluster. Links recorded
// afterwards are ignored.
func (e *Engine) Finalize() {
	e.members = map[types.Address][]types.Address{}
	for addr := range e.parent {
		root := e.find(addr)
		e.members[root] = append(e.members[root], addr)
	}
	e.finalized = true
	e.logger.Info("clustering finalized",
		zap.Int("addresses", len(e.parent)),
		zap.Int("clusters", len(e.members)))
}

// Members returns the full cluster of addr, itself included. Unlinked
// addresses form a cluster of one.
func (e *Engine) Members(addr types.Address) ([]types.Address, error) {
	if !e.finalized {
		return nil, ErrNotFinalized
	}
	if _, ok := e.parent[addr]; !ok {
		return []types.Address{addr}, nil
	}
	return e.members[e.find(addr)], nil
}

// Multiplier evaluates the holding multiplier for addr at the cluster
// level: balances and previous mints are summed over the whole cluster.
// Clusters minted less than the configured floor are left untouched.
func (e *Engine) Multiplier(addr types.Address, previousMints, balances map[types.Address]decimal.Decimal) (float64, error) {
	members, err := e.Members(addr)
	if err != nil {
		return 0, err
	}
	minted := decimal.Zero
	held := decimal.Zero
	for _, m := range members {
		minted = minted.Add(previousMints[m])
		held = held.Add(balances[m])
	}
	if minted.LessThan(e.minMint) {
		return 1, nil
	}
	ratio, _ := held.Div(minted).Float64()
	return emission.HoldingMultiplier(ratio), nil
}
