// Package ethereum adapts the on-chain side: reading the token contract's
// mint/transfer history and broadcasting batched mint transactions. The
// computation core only ever sees the derived TokenState.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/libertai/ltai-points/pkg/config"
	"github.com/libertai/ltai-points/pkg/retry"
	"github.com/libertai/ltai-points/pkg/types"
)

// tokenDecimals is the ERC-20 precision of the token contract.
const tokenDecimals = 18

// logScanChunk bounds eth_getLogs ranges; public RPC nodes reject wide ones.
const logScanChunk = 50000

var (
	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	zeroAddress   = types.Address(common.Address{}.Hex())
)

// Client wraps an Ethereum RPC connection for the token contract.
type Client struct {
	eth    *ethclient.Client
	cfg    *config.Settings
	logger *zap.Logger
	retry  retry.Config
	token  common.Address
}

// Dial connects to the configured RPC endpoint.
func Dial(ctx context.Context, cfg *config.Settings, logger *zap.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.EthereumEndpoint)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum rpc: %w", err)
	}
	return &Client{
		eth:    eth,
		cfg:    cfg,
		logger: logger,
		retry:  retry.DefaultConfig(),
		token:  common.HexToAddress(cfg.TokenContract),
	}, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// TokenState replays every Transfer log of the token contract since the
// configured minimum height into previous mints (transfers from the zero
// address), current balances, the last mint time and the set of
// distribution instants.
func (c *Client) TokenState(ctx context.Context) (*types.TokenState, error) {
	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain head: %w", err)
	}

	state := &types.TokenState{
		PreviousMints: map[types.Address]decimal.Decimal{},
		Balances:      map[types.Address]decimal.Decimal{},
	}
	mintBlocks := map[uint64]bool{}

	for from := c.cfg.MinHeight; from <= head; from += logScanChunk {
		to := from + logScanChunk - 1
		if to > head {
			to = head
		}
		var logs []ethtypes.Log
		err := retry.WithBackoff(ctx, c.retry, c.logger, "scan transfer logs", func() error {
			var ferr error
			logs, ferr = c.eth.FilterLogs(ctx, ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(from),
				ToBlock:   new(big.Int).SetUint64(to),
				Addresses: []common.Address{c.token},
				Topics:    [][]common.Hash{{transferTopic}},
			})
			return ferr
		})
		if err != nil {
			return nil, err
		}

		for _, l := range logs {
			if len(l.Topics) < 3 {
				continue
			}
			sender := types.Address(common.BytesToAddress(l.Topics[1].Bytes()).Hex())
			receiver := types.Address(common.BytesToAddress(l.Topics[2].Bytes()).Hex())
			amount := decimal.NewFromBigInt(new(big.Int).SetBytes(l.Data), -tokenDecimals)

			if sender == zeroAddress {
				state.PreviousMints[receiver] = state.PreviousMints[receiver].Add(amount)
				mintBlocks[l.BlockNumber] = true
			} else {
				state.Balances[sender] = state.Balances[sender].Sub(amount)
			}
			state.Balances[receiver] = state.Balances[receiver].Add(amount)
		}
	}

	if err := c.resolveDistributionTimes(ctx, state, mintBlocks); err != nil {
		return nil, err
	}

	c.logger.Info("token state loaded",
		zap.Int("minted_addresses", len(state.PreviousMints)),
		zap.Int("holders", len(state.Balances)),
		zap.Time("last_mint", state.LastMintTime))
	return state, nil
}

// resolveDistributionTimes maps each mint block to its timestamp, in block
// order, so the orchestrator can locate the last distribution event.
func (c *Client) resolveDistributionTimes(ctx context.Context, state *types.TokenState, mintBlocks map[uint64]bool) error {
	blocks := make([]uint64, 0, len(mintBlocks))
	for b := range mintBlocks {
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })

	for _, b := range blocks {
		var stamp time.Time
		err := retry.WithBackoff(ctx, c.retry, c.logger, "fetch block header", func() error {
			h, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(b))
			if err != nil {
				return err
			}
			stamp = time.Unix(int64(h.Time), 0).UTC()
			return nil
		})
		if err != nil {
			return err
		}
		state.DistributionTimes = append(state.DistributionTimes, stamp)
	}
	if n := len(state.DistributionTimes); n > 0 {
		state.LastMintTime = state.DistributionTimes[n-1]
	}
	return nil
}
