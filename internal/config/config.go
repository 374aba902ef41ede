package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/coldbell/signalpool/internal/pool"
	"github.com/coldbell/signalpool/internal/serum"
)

type LogConfig struct {
	Level    string
	Format   string
	Output   string
	FilePath string
}

type CrankConfig struct {
	RPCURL                        string
	WSURL                         string
	Commitment                    rpc.CommitmentType
	KeypairPath                   string
	ProgramID                     solana.PublicKey
	Pools                         []pool.Seed
	OpenOrdersLayout              serum.OpenOrdersLayout
	PollInterval                  time.Duration
	MaxSettlesPerTick             int
	TxTimeout                     time.Duration
	SkipPreflight                 bool
	MaxRetries                    *uint
	ComputeUnitLimit              uint32
	ComputeUnitPriceMicroLamports uint64
	Subscribe                     bool
	JournalDSN                    string
	OverflowCooldown              time.Duration
	MetricsListenAddr             string
	Log                           LogConfig
}

type CLIConfig struct {
	RPCURL     string
	Commitment rpc.CommitmentType
	ProgramID  solana.PublicKey
	Log        LogConfig
}

// LoadCrankConfig reads the settlement crank settings. POOL_PROGRAM_ID and CRANK_POOLS
// are required.
func LoadCrankConfig() (CrankConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return CrankConfig{}, err
	}

	e := &env{}
	programID := e.pubkey("POOL_PROGRAM_ID", true)
	pools := e.list("CRANK_POOLS")
	rpcURL := e.str("SOLANA_RPC_URL", "http://127.0.0.1:8899")
	cfg := CrankConfig{
		RPCURL:                        rpcURL,
		WSURL:                         e.str("SOLANA_WS_URL", defaultWSURL(rpcURL)),
		Commitment:                    e.commitment("SOLANA_COMMITMENT", rpc.CommitmentConfirmed),
		KeypairPath:                   e.keypairPath("CRANK_KEYPAIR_PATH", "SOLANA_KEYPAIR_PATH"),
		ProgramID:                     programID,
		PollInterval:                  e.duration("CRANK_POLL_INTERVAL", 5*time.Second),
		MaxSettlesPerTick:             e.positive("CRANK_MAX_SETTLES_PER_TICK", 16),
		TxTimeout:                     e.duration("CRANK_TX_TIMEOUT", 30*time.Second),
		SkipPreflight:                 e.bool("CRANK_SKIP_PREFLIGHT", false),
		MaxRetries:                    e.optionalUint("CRANK_MAX_RETRIES"),
		ComputeUnitLimit:              uint32(e.unsigned("CRANK_COMPUTE_UNIT_LIMIT", 0, 32)),
		ComputeUnitPriceMicroLamports: e.unsigned("CRANK_COMPUTE_UNIT_PRICE_MICRO_LAMPORTS", 0, 64),
		Subscribe:                     e.bool("CRANK_SUBSCRIBE", true),
		JournalDSN:                    e.str("CRANK_JOURNAL_DSN", ""),
		OverflowCooldown:              e.duration("CRANK_OVERFLOW_COOLDOWN", time.Minute),
		MetricsListenAddr:             e.str("CRANK_METRICS_LISTEN_ADDR", ":9464"),
		Log:                           e.log("CRANK", "crank"),
	}
	if e.err != nil {
		return CrankConfig{}, e.err
	}

	var err error
	if cfg.Pools, err = parsePoolSeeds(strings.Join(pools, ",")); err != nil {
		return CrankConfig{}, err
	}
	if len(cfg.Pools) == 0 {
		return CrankConfig{}, errors.New("CRANK_POOLS is required")
	}
	if cfg.OpenOrdersLayout, err = openOrdersLayout("CRANK_OPEN_ORDERS"); err != nil {
		return CrankConfig{}, err
	}
	return cfg, nil
}

// LoadCLIConfig reads poolctl settings. Logs default to warn so they stay out of the way
// of command output.
func LoadCLIConfig() (CLIConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return CLIConfig{}, err
	}

	e := &env{}
	cfg := CLIConfig{
		RPCURL:     e.str("SOLANA_RPC_URL", "http://127.0.0.1:8899"),
		Commitment: e.commitment("SOLANA_COMMITMENT", rpc.CommitmentConfirmed),
		ProgramID:  e.pubkey("POOL_PROGRAM_ID", false),
		Log:        e.log("POOLCTL", "poolctl"),
	}
	if e.raw("POOLCTL_LOG_LEVEL") == "" && e.raw("LOG_LEVEL") == "" {
		cfg.Log.Level = "warn"
	}
	if e.err != nil {
		return CLIConfig{}, e.err
	}
	return cfg, nil
}

// ParsePoolSeed accepts a seed as base58 or as 64 hex characters.
func ParsePoolSeed(raw string) (pool.Seed, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 2*pool.SeedSize {
		if decoded, err := hex.DecodeString(raw); err == nil {
			var seed pool.Seed
			copy(seed[:], decoded)
			return seed, nil
		}
	}
	seed, err := pool.SeedFromBase58(raw)
	if err != nil {
		return pool.Seed{}, fmt.Errorf("invalid pool seed %q: %w", raw, err)
	}
	return seed, nil
}

func parsePoolSeeds(raw string) ([]pool.Seed, error) {
	parts := strings.Split(raw, ",")
	out := make([]pool.Seed, 0, len(parts))
	seen := make(map[pool.Seed]struct{}, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		seed, err := ParsePoolSeed(part)
		if err != nil {
			return nil, fmt.Errorf("CRANK_POOLS: %w", err)
		}
		if _, ok := seen[seed]; ok {
			continue
		}
		seen[seed] = struct{}{}
		out = append(out, seed)
	}
	return out, nil
}

// openOrdersLayout starts from the v3 layout and applies per-field offset overrides.
func openOrdersLayout(prefix string) (serum.OpenOrdersLayout, error) {
	layout := serum.V3
	e := &env{}
	for _, field := range []struct {
		key string
		dst *int
	}{
		{prefix + "_SIZE", &layout.Size},
		{prefix + "_MARKET_OFFSET", &layout.MarketOffset},
		{prefix + "_OWNER_OFFSET", &layout.OwnerOffset},
		{prefix + "_COIN_FREE_OFFSET", &layout.CoinFreeOffset},
		{prefix + "_COIN_TOTAL_OFFSET", &layout.CoinTotalOffset},
		{prefix + "_PC_FREE_OFFSET", &layout.PCFreeOffset},
		{prefix + "_PC_TOTAL_OFFSET", &layout.PCTotalOffset},
	} {
		*field.dst = int(e.unsigned(field.key, uint64(*field.dst), 31))
	}
	if e.err != nil {
		return serum.OpenOrdersLayout{}, e.err
	}
	for _, offset := range []int{layout.MarketOffset, layout.OwnerOffset} {
		if offset < 0 || offset+32 > layout.Size {
			return serum.OpenOrdersLayout{}, fmt.Errorf("%s: key offset %d outside a %d byte record", prefix, offset, layout.Size)
		}
	}
	for _, offset := range []int{layout.CoinFreeOffset, layout.CoinTotalOffset, layout.PCFreeOffset, layout.PCTotalOffset} {
		if offset < 0 || offset+8 > layout.Size {
			return serum.OpenOrdersLayout{}, fmt.Errorf("%s: amount offset %d outside a %d byte record", prefix, offset, layout.Size)
		}
	}
	return layout, nil
}

func defaultWSURL(rpcURL string) string {
	switch {
	case strings.HasPrefix(rpcURL, "http://127.0.0.1:8899"):
		return "ws://127.0.0.1:8900"
	case strings.HasPrefix(rpcURL, "https://"):
		return "wss://" + strings.TrimPrefix(rpcURL, "https://")
	case strings.HasPrefix(rpcURL, "http://"):
		return "ws://" + strings.TrimPrefix(rpcURL, "http://")
	default:
		return rpcURL
	}
}
