package types_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libertai/ltai-points/pkg/types"
)

func TestNormalizeCollapsesCasings(t *testing.T) {
	lower, err := types.Normalize("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	require.NoError(t, err)
	upper, err := types.Normalize("0x70997970C51812DC3A010C7D01B50E0D17DC79C8")
	require.NoError(t, err)
	assert.Equal(t, lower, upper)
	// The canonical form is the EIP-55 checksummed one.
	assert.Equal(t, types.Address("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), lower)
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "0x123", "not-an-address", "0x70997970c51812dc3a010c7d01b50e0d17dc79"} {
		_, err := types.Normalize(raw)
		assert.Error(t, err, "%q", raw)
	}
}

func TestNormalizeAllMergesAndReportsBad(t *testing.T) {
	in := map[string]decimal.Decimal{
		"0x70997970c51812dc3a010c7d01b50e0d17dc79c8": decimal.NewFromInt(10),
		"0x70997970C51812DC3A010C7D01B50E0D17DC79C8": decimal.NewFromInt(5),
		"bogus": decimal.NewFromInt(99),
	}
	out, bad := types.NormalizeAll(in, decimal.Decimal.Add)
	require.Len(t, out, 1)
	assert.True(t, out["0x70997970C51812dc3A010C7d01b50e0d17dc79C8"].Equal(decimal.NewFromInt(15)))
	assert.Equal(t, []string{"bogus"}, bad)
}

func TestPayoutAddressFallback(t *testing.T) {
	n := types.Node{
		Owner:  "0x70997970c51812dc3a010c7d01b50e0d17dc79c8",
		Reward: "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc",
	}
	addr, err := n.PayoutAddress()
	require.NoError(t, err)
	assert.Equal(t, types.Address("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"), addr)

	n.Reward = "not-an-address"
	addr, err = n.PayoutAddress()
	require.NoError(t, err)
	assert.Equal(t, types.Address("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), addr)

	n.Owner = "also-bad"
	_, err = n.PayoutAddress()
	assert.Error(t, err)
}

func TestDayKeyIsUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	// 23:30 EST on Jan 1 is already Jan 2 in UTC.
	local := time.Date(2024, 1, 1, 23, 30, 0, 0, est)
	assert.Equal(t, "2024-01-02", types.DayKey(local))
}
