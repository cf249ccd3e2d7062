// Package config binds the program settings from the environment into one
// validated structure. Every tunable of the distribution program lives here
// with its default enumerated once.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/libertai/ltai-points/pkg/types"
)

// Settings is the full, typed configuration of one run.
type Settings struct {
	// Data/indexing service.
	APIEndpoint       string
	CorechannelSender string
	CalculationSender string
	Channel           string
	Tag               string
	PostType          string

	// Published aggregate keys.
	AggregateKey          string
	PendingAggregateKey   string
	EstimatedAggregateKey string

	// Emission model.
	RewardStart      time.Time
	TGE              time.Time
	DailyDecay       float64
	RewardRatio      float64
	StakersDailyBase decimal.Decimal
	NodesDailyBase   decimal.Decimal
	StakedRatio      float64
	NodeBaseStake    decimal.Decimal

	// Resource nodes.
	NodeMaxPaid                 int
	ResourceNodeMonthlyBase     decimal.Decimal
	ResourceNodeMonthlyVariable decimal.Decimal

	// Bonus window.
	BonusRatio        float64
	BonusDurationDays float64
	BonusLimit        time.Time
	BonusAddresses    []types.Address
	BonusAddressGrant decimal.Decimal
	SignupBonus       decimal.Decimal

	// Clustering.
	MinClusterMint decimal.Decimal

	// Ethereum.
	EthereumPkey     string
	EthereumEndpoint string
	ChainID          int64
	MinHeight        uint64
	TokenContract    string
	BatchSize        int
	PauseTime        time.Duration
	MintThreshold    decimal.Decimal

	// Local state.
	DBPath         string
	SupplyFilename string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_endpoint", "https://api2.aleph.im")
	v.SetDefault("aleph_corechannel_sender", "0xa1B3bb7d2332383D96b7796B908fB7f7F3c2Be10")
	v.SetDefault("aleph_calculation_sender", "0xa1B3bb7d2332383D96b7796B908fB7f7F3c2Be10")
	v.SetDefault("channel", "LIBERTAI")
	v.SetDefault("tag", "mainnet")
	v.SetDefault("post_type", "calculation")
	v.SetDefault("aggregate_key", "tokens")
	v.SetDefault("pending_aggregate_key", "pending_tokens")
	v.SetDefault("estimated_aggregate_key", "estimated_3yr_tokens")

	v.SetDefault("reward_start", int64(1704067200)) // 2024-01-01 UTC
	v.SetDefault("raise_start", int64(1718712000))  // TGE
	v.SetDefault("daily_decay", 0.99722)
	v.SetDefault("aleph_reward_ratio", 0.35)
	v.SetDefault("aleph_reward_stakers_daily_base", "15000")
	v.SetDefault("aleph_reward_nodes_daily_base", "15000")
	v.SetDefault("staked_ratio", 0.7)
	v.SetDefault("node_base_stake", "200000")

	v.SetDefault("aleph_node_max_paid", 5)
	v.SetDefault("aleph_reward_resource_node_monthly_base", "250")
	v.SetDefault("aleph_reward_resource_node_monthly_variable", "1250")

	v.SetDefault("bonus_ratio", 1.5)
	v.SetDefault("bonus_duration", 365)
	v.SetDefault("bonus_limit_date", "2024-02-26T12:00:00Z")
	v.SetDefault("bonus_addresses", "")
	v.SetDefault("bonus_address_grant", "5000")
	v.SetDefault("signup_bonus", "100")

	v.SetDefault("min_cluster_mint", "100")

	v.SetDefault("ethereum_api_server", "https://base-rpc.publicnode.com")
	v.SetDefault("ethereum_chain_id", int64(8453))
	v.SetDefault("ethereum_min_height", uint64(15961530))
	v.SetDefault("ethereum_token_contract", "0xF8B1b47AA748F5C7b5D0e80C726a843913EB573a")
	v.SetDefault("ethereum_batch_size", 400)
	v.SetDefault("pause_time_duration", "5s")
	v.SetDefault("mint_threshold", "0.05")

	v.SetDefault("db_path", "./database")
	v.SetDefault("supply_filename", "supply.yaml")
}

// Load reads settings from the environment and validates them.
func Load() (*Settings, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	limit, err := parseUTC(v.GetString("bonus_limit_date"))
	if err != nil {
		return nil, fmt.Errorf("parse bonus_limit_date: %w", err)
	}

	pause, err := time.ParseDuration(v.GetString("pause_time_duration"))
	if err != nil {
		return nil, fmt.Errorf("parse pause_time_duration: %w", err)
	}

	s := &Settings{
		APIEndpoint:       v.GetString("api_endpoint"),
		CorechannelSender: v.GetString("aleph_corechannel_sender"),
		CalculationSender: v.GetString("aleph_calculation_sender"),
		Channel:           v.GetString("channel"),
		Tag:               v.GetString("tag"),
		PostType:          v.GetString("post_type"),

		AggregateKey:          v.GetString("aggregate_key"),
		PendingAggregateKey:   v.GetString("pending_aggregate_key"),
		EstimatedAggregateKey: v.GetString("estimated_aggregate_key"),

		RewardStart:      time.Unix(v.GetInt64("reward_start"), 0).UTC(),
		TGE:              time.Unix(v.GetInt64("raise_start"), 0).UTC(),
		DailyDecay:       v.GetFloat64("daily_decay"),
		RewardRatio:      v.GetFloat64("aleph_reward_ratio"),
		StakersDailyBase: mustDecimal(v.GetString("aleph_reward_stakers_daily_base")),
		NodesDailyBase:   mustDecimal(v.GetString("aleph_reward_nodes_daily_base")),
		StakedRatio:      v.GetFloat64("staked_ratio"),
		NodeBaseStake:    mustDecimal(v.GetString("node_base_stake")),

		NodeMaxPaid:                 v.GetInt("aleph_node_max_paid"),
		ResourceNodeMonthlyBase:     mustDecimal(v.GetString("aleph_reward_resource_node_monthly_base")),
		ResourceNodeMonthlyVariable: mustDecimal(v.GetString("aleph_reward_resource_node_monthly_variable")),

		BonusRatio:        v.GetFloat64("bonus_ratio"),
		BonusDurationDays: v.GetFloat64("bonus_duration"),
		BonusLimit:        limit,
		BonusAddressGrant: mustDecimal(v.GetString("bonus_address_grant")),
		SignupBonus:       mustDecimal(v.GetString("signup_bonus")),

		MinClusterMint: mustDecimal(v.GetString("min_cluster_mint")),

		EthereumPkey:     v.GetString("ethereum_pkey"),
		EthereumEndpoint: v.GetString("ethereum_api_server"),
		ChainID:          v.GetInt64("ethereum_chain_id"),
		MinHeight:        v.GetUint64("ethereum_min_height"),
		TokenContract:    v.GetString("ethereum_token_contract"),
		BatchSize:        v.GetInt("ethereum_batch_size"),
		PauseTime:        pause,
		MintThreshold:    mustDecimal(v.GetString("mint_threshold")),

		DBPath:         v.GetString("db_path"),
		SupplyFilename: v.GetString("supply_filename"),
	}

	for _, raw := range strings.Split(v.GetString("bonus_addresses"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		addr, err := types.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("bonus_addresses: %w", err)
		}
		s.BonusAddresses = append(s.BonusAddresses, addr)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate rejects settings that would corrupt the emission arithmetic.
func (s *Settings) Validate() error {
	if s.DailyDecay <= 0 || s.DailyDecay > 1 {
		return fmt.Errorf("daily_decay %v outside (0, 1]", s.DailyDecay)
	}
	if s.BonusRatio < 1 {
		return fmt.Errorf("bonus_ratio %v below 1", s.BonusRatio)
	}
	if s.StakedRatio <= 0 || s.StakedRatio > 1 {
		return fmt.Errorf("staked_ratio %v outside (0, 1]", s.StakedRatio)
	}
	if !s.StakersDailyBase.IsPositive() || !s.NodesDailyBase.IsPositive() {
		return fmt.Errorf("daily emission bases must be positive")
	}
	if s.NodeMaxPaid < 0 {
		return fmt.Errorf("aleph_node_max_paid must not be negative")
	}
	if s.BatchSize <= 0 {
		return fmt.Errorf("ethereum_batch_size must be positive")
	}
	if !s.RewardStart.Before(s.BonusLimit) {
		return fmt.Errorf("bonus_limit_date precedes reward_start")
	}
	return nil
}

// parseUTC accepts RFC3339 or a bare "YYYY-MM-DD HH:MM:SS", read as UTC.
func parseUTC(s string) (time.Time, error) {
	s = strings.Replace(strings.TrimSuffix(s, "Z"), " ", "T", 1)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
