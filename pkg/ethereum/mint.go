package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/libertai/ltai-points/pkg/ledger"
	"github.com/libertai/ltai-points/pkg/types"
)

const mintABIJSON = `[{"type":"function","name":"mintBatch","inputs":[{"name":"recipients","type":"address[]"},{"name":"amounts","type":"uint256[]"}]}]`

// MintItem is one (address, amount) pair of a mint batch.
type MintItem struct {
	Address types.Address
	Amount  decimal.Decimal
}

// Batches partitions the pending ledger into mint batches: entries above
// the threshold, in deterministic address order, batchSize items apiece.
func Batches(pending ledger.Ledger, threshold decimal.Decimal, batchSize int) [][]MintItem {
	items := make([]MintItem, 0, len(pending))
	for addr, amt := range pending {
		if amt.GreaterThan(threshold) {
			items = append(items, MintItem{Address: addr, Amount: amt})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Address < items[j].Address })

	var batches [][]MintItem
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}

// MintBatch signs and broadcasts one mintBatch transaction. nonce is the
// account nonce to use, or nil to read it from the chain; the nonce used is
// returned so the caller can sequence the next batch without waiting for
// inclusion.
func (c *Client) MintBatch(ctx context.Context, batch []MintItem, nonce *uint64) (string, uint64, error) {
	priv, err := crypto.HexToECDSA(c.cfg.EthereumPkey)
	if err != nil {
		return "", 0, fmt.Errorf("load mint key: %w", err)
	}
	sender := crypto.PubkeyToAddress(priv.PublicKey)

	useNonce := uint64(0)
	if nonce != nil {
		useNonce = *nonce
	} else {
		useNonce, err = c.eth.PendingNonceAt(ctx, sender)
		if err != nil {
			return "", 0, fmt.Errorf("fetch nonce: %w", err)
		}
	}

	parsed, err := abi.JSON(strings.NewReader(mintABIJSON))
	if err != nil {
		return "", 0, fmt.Errorf("parse mint abi: %w", err)
	}

	recipients := make([]common.Address, 0, len(batch))
	amounts := make([]*big.Int, 0, len(batch))
	exp := decimal.New(1, tokenDecimals)
	for _, item := range batch {
		recipients = append(recipients, common.HexToAddress(string(item.Address)))
		amounts = append(amounts, item.Amount.Mul(exp).BigInt())
	}
	calldata, err := parsed.Pack("mintBatch", recipients, amounts)
	if err != nil {
		return "", 0, fmt.Errorf("pack mint call: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("suggest gas price: %w", err)
	}
	gasLimit, err := c.eth.EstimateGas(ctx, ethereumCallMsg(sender, c.token, calldata))
	if err != nil {
		return "", 0, fmt.Errorf("estimate mint gas: %w", err)
	}

	tx := ethtypes.NewTransaction(useNonce, c.token, big.NewInt(0), gasLimit, gasPrice, calldata)
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(big.NewInt(c.cfg.ChainID)), priv)
	if err != nil {
		return "", 0, fmt.Errorf("sign mint tx: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", 0, fmt.Errorf("broadcast mint tx: %w", err)
	}

	c.logger.Info("mint batch broadcast",
		zap.String("tx", signed.Hash().Hex()),
		zap.Uint64("nonce", useNonce),
		zap.Int("items", len(batch)))
	return signed.Hash().Hex(), useNonce, nil
}

func ethereumCallMsg(from, to common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{From: from, To: &to, Data: data}
}
