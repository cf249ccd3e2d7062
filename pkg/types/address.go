package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a canonical EIP-55 checksummed account identifier. Every map in
// the engine is keyed by Address; raw strings must go through Normalize
// before any aggregation so two casings of one account collapse to one key.
type Address string

// Normalize canonicalizes a raw hex address. It fails on anything that is
// not a well-formed 20-byte hex address.
func Normalize(raw string) (Address, error) {
	if !common.IsHexAddress(raw) {
		return "", fmt.Errorf("malformed address %q", raw)
	}
	return Address(common.HexToAddress(raw).Hex()), nil
}

// NormalizeAll canonicalizes the keys of an amount map, summing entries that
// collapse to the same canonical address and dropping malformed keys into
// the returned slice.
func NormalizeAll[V any](in map[string]V, merge func(a, b V) V) (map[Address]V, []string) {
	out := make(map[Address]V, len(in))
	var bad []string
	for raw, v := range in {
		addr, err := Normalize(raw)
		if err != nil {
			bad = append(bad, raw)
			continue
		}
		if prev, ok := out[addr]; ok {
			out[addr] = merge(prev, v)
		} else {
			out[addr] = v
		}
	}
	return out, bad
}
