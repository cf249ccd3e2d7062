package types

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrSnapshotUnavailable marks a day whose snapshot has not been recorded
// yet. Only today's snapshot may legitimately be in this state.
var ErrSnapshotUnavailable = errors.New("snapshot not yet available")

// Node and resource-node statuses as recorded by the corechannel.
const (
	NodeStatusActive         = "active"
	ResourceNodeStatusLinked = "linked"
)

// Node is one staking node in a daily network snapshot.
type Node struct {
	Hash            string                     `json:"hash"`
	Owner           string                     `json:"owner"`
	Reward          string                     `json:"reward,omitempty"`
	Status          string                     `json:"status"`
	Score           float64                    `json:"score"`
	Stakers         map[string]decimal.Decimal `json:"stakers"`
	ResourceNodeIDs []string                   `json:"resource_nodes"`
}

// ResourceNode is one compute resource node in a daily network snapshot.
type ResourceNode struct {
	Hash             string  `json:"hash"`
	Owner            string  `json:"owner"`
	Reward           string  `json:"reward,omitempty"`
	Status           string  `json:"status"`
	Score            float64 `json:"score"`
	Decentralization float64 `json:"decentralization"`
}

// NetworkSnapshot is the immutable record of the network for one calendar
// day. Once stored it is only ever fetched, never recomputed.
type NetworkSnapshot struct {
	Date          string         `json:"date"` // YYYY-MM-DD, UTC
	Nodes         []Node         `json:"nodes"`
	ResourceNodes []ResourceNode `json:"resource_nodes"`
}

// PayoutAddress resolves where a node's own emission goes: the designated
// reward address, falling back to the owner when it is absent or malformed.
func (n *Node) PayoutAddress() (Address, error) {
	return payout(n.Reward, n.Owner)
}

// PayoutAddress resolves a resource node's target the same way nodes do.
func (r *ResourceNode) PayoutAddress() (Address, error) {
	return payout(r.Reward, r.Owner)
}

func payout(reward, owner string) (Address, error) {
	if reward != "" {
		if addr, err := Normalize(reward); err == nil {
			return addr, nil
		}
	}
	return Normalize(owner)
}

// ActiveNodes returns the snapshot's nodes with active status.
func (s *NetworkSnapshot) ActiveNodes() []Node {
	out := make([]Node, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.Status == NodeStatusActive {
			out = append(out, n)
		}
	}
	return out
}

// ResourceNodeByHash indexes the snapshot's resource nodes for linkage
// lookups during round processing.
func (s *NetworkSnapshot) ResourceNodeByHash() map[string]*ResourceNode {
	out := make(map[string]*ResourceNode, len(s.ResourceNodes))
	for i := range s.ResourceNodes {
		out[s.ResourceNodes[i].Hash] = &s.ResourceNodes[i]
	}
	return out
}

// SnapshotDateFormat is the canonical day key used by the store and the
// snapshot source.
const SnapshotDateFormat = "2006-01-02"

// DayKey formats a UTC instant as its snapshot day key.
func DayKey(t time.Time) string {
	return t.UTC().Format(SnapshotDateFormat)
}
