package aleph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/libertai/ltai-points/pkg/config"
	"github.com/libertai/ltai-points/pkg/ledger"
)

// Publisher broadcasts the computed ledgers as aleph.im aggregates. Publish
// failures are surfaced to the operator, never retried here.
type Publisher struct {
	client *Client
	cfg    *config.Settings
	logger *zap.Logger
}

// NewPublisher builds the publish sink.
func NewPublisher(client *Client, cfg *config.Settings, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, cfg: cfg, logger: logger}
}

type aggregateContent struct {
	Key     string         `json:"key"`
	Address string         `json:"address"`
	Content map[string]any `json:"content"`
	Time    float64        `json:"time"`
}

type aggregateMessage struct {
	Chain       string  `json:"chain"`
	Channel     string  `json:"channel"`
	Sender      string  `json:"sender"`
	Type        string  `json:"type"`
	Time        float64 `json:"time"`
	ItemType    string  `json:"item_type"`
	ItemContent string  `json:"item_content"`
	Signature   string  `json:"signature"`
}

// Publish broadcasts the settled, pending and estimated ledgers plus the
// run info metadata under their configured aggregate keys.
func (p *Publisher) Publish(ctx context.Context, settled, pending, estimated ledger.Ledger, info map[string]any) error {
	aggregates := []struct {
		key     string
		content map[string]any
	}{
		{p.cfg.AggregateKey, ledgerContent(settled)},
		{p.cfg.PendingAggregateKey, ledgerContent(pending)},
		{p.cfg.EstimatedAggregateKey, ledgerContent(estimated)},
		{"info", info},
	}
	for _, agg := range aggregates {
		if err := p.publishAggregate(ctx, agg.key, agg.content); err != nil {
			return fmt.Errorf("publish aggregate %s: %w", agg.key, err)
		}
		p.logger.Info("published aggregate",
			zap.String("key", agg.key), zap.Int("entries", len(agg.content)))
	}
	return nil
}

func (p *Publisher) publishAggregate(ctx context.Context, key string, content map[string]any) error {
	priv, err := crypto.HexToECDSA(p.cfg.EthereumPkey)
	if err != nil {
		return fmt.Errorf("load publish key: %w", err)
	}
	sender := crypto.PubkeyToAddress(priv.PublicKey).Hex()
	now := float64(time.Now().UnixNano()) / float64(time.Second)

	item, err := json.Marshal(aggregateContent{
		Key:     key,
		Address: sender,
		Content: content,
		Time:    now,
	})
	if err != nil {
		return err
	}

	digest := accounts.TextHash(item)
	sig, err := crypto.Sign(digest, priv)
	if err != nil {
		return fmt.Errorf("sign aggregate: %w", err)
	}

	msg := aggregateMessage{
		Chain:       "ETH",
		Channel:     p.cfg.Channel,
		Sender:      sender,
		Type:        "AGGREGATE",
		Time:        now,
		ItemType:    "inline",
		ItemContent: string(item),
		Signature:   fmt.Sprintf("0x%x", sig),
	}
	return p.client.postJSON(ctx, "/api/v0/messages", map[string]any{"message": msg, "sync": true}, nil)
}

func ledgerContent(l ledger.Ledger) map[string]any {
	out := make(map[string]any, len(l))
	for addr, amt := range l {
		out[string(addr)] = amt.InexactFloat64()
	}
	return out
}
