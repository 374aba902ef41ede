package main

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/signalpool/internal/instruction"
	"github.com/coldbell/signalpool/internal/pool"
	"github.com/coldbell/signalpool/internal/serum"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("POOLCTL_LOG_OUTPUT", "discard")
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDeriveWithSeed(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	seed, err := pool.FindSeed(programID)
	require.NoError(t, err)
	mint := solana.NewWallet().PublicKey()

	out, err := run(t, "derive", "--program", programID.String(), "--seed", seed.String(), "--mint", mint.String())
	require.NoError(t, err)

	poolKey, err := pool.DerivePoolAddress(programID, seed)
	require.NoError(t, err)
	shareMint, err := pool.DeriveMintAddress(programID, seed)
	require.NoError(t, err)
	asset, err := pool.DeriveAssetAddress(poolKey, mint)
	require.NoError(t, err)

	assert.Contains(t, out, "seed        "+seed.String())
	assert.Contains(t, out, "pool        "+poolKey.String())
	assert.Contains(t, out, "share_mint  "+shareMint.String())
	assert.Contains(t, out, "asset       "+mint.String()+" "+asset.String())
}

func TestDeriveDrawsSeed(t *testing.T) {
	out, err := run(t, "derive", "--program", solana.NewWallet().PublicKey().String())
	require.NoError(t, err)
	assert.Contains(t, out, "seed_hex")
	assert.NotContains(t, out, "asset")
}

func TestDeriveNeedsProgram(t *testing.T) {
	t.Setenv("POOL_PROGRAM_ID", "")
	_, err := run(t, "derive")
	require.ErrorContains(t, err, "program id is required")
}

func TestIxEncodeDecode(t *testing.T) {
	seed := pool.Seed(solana.NewWallet().PublicKey())

	out, err := run(t, "ix", "encode", "redeem", "--seed", seed.String(), "--amount", "4200")
	require.NoError(t, err)
	data, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)

	ix, err := instruction.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, &instruction.Redeem{Seed: seed, Amount: 4200}, ix)

	out, err = run(t, "ix", "decode", hex.EncodeToString(data))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "redeem", decoded["call"])
	assert.Equal(t, seed.String(), decoded["pool_seed"])
	assert.EqualValues(t, 4200, decoded["amount"])
}

func TestIxEncodeCancelAndSettle(t *testing.T) {
	seed := pool.Seed(solana.NewWallet().PublicKey())

	out, err := run(t, "ix", "encode", "cancel", "--seed", seed.String(), "--side", "ask", "--order-id", "340282366920938463463374607431768211455")
	require.NoError(t, err)
	data, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	out, err = run(t, "ix", "decode", "--encoding", "base64", base64.StdEncoding.EncodeToString(data))
	require.NoError(t, err)
	assert.Contains(t, out, `"side": "ask"`)
	assert.Contains(t, out, `"order_id": "340282366920938463463374607431768211455"`)

	out, err = run(t, "ix", "encode", "settle", "--seed", seed.String(), "--pc-index", "2", "--coin-index", "0")
	require.NoError(t, err)
	data, err = hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	out, err = run(t, "ix", "decode", "--encoding", "base58", base58.Encode(data))
	require.NoError(t, err)
	assert.Contains(t, out, `"call": "settle_funds"`)
	assert.Contains(t, out, `"pc_index": 2`)
}

func decodeHex(t *testing.T, out string) instruction.Instruction {
	t.Helper()
	data, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	ix, err := instruction.Decode(data)
	require.NoError(t, err)
	return ix
}

func TestIxEncodeCreate(t *testing.T) {
	seed := pool.Seed(solana.NewWallet().PublicKey())
	exchange := solana.NewWallet().PublicKey()
	signal := solana.NewWallet().PublicKey()
	m1, m2 := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	out, err := run(t, "ix", "encode", "create", "--seed", seed.String(),
		"--exchange-program", exchange.String(), "--signal-provider", signal.String(),
		"--fee-period", "86400", "--fee-ratio", "655",
		"--market", m1.String(), "--market", m2.String(),
		"--amount", "1000000,500000")
	require.NoError(t, err)
	assert.Equal(t, &instruction.Create{
		Seed:                seed,
		ExchangeProgram:     exchange,
		SignalProvider:      signal,
		FeeCollectionPeriod: 86400,
		FeeRatio:            655,
		Markets:             []solana.PublicKey{m1, m2},
		DepositAmounts:      []uint64{1_000_000, 500_000},
	}, decodeHex(t, out))

	_, err = run(t, "ix", "encode", "create", "--seed", seed.String(), "--signal-provider", signal.String())
	require.ErrorContains(t, err, "--exchange-program is required")
	_, err = run(t, "ix", "encode", "create", "--seed", seed.String(),
		"--exchange-program", exchange.String(), "--signal-provider", signal.String(), "--amount", "-1")
	require.ErrorContains(t, err, "invalid --amount")
}

func TestIxEncodeCreateOrder(t *testing.T) {
	seed := pool.Seed(solana.NewWallet().PublicKey())

	out, err := run(t, "ix", "encode", "create-order", "--seed", seed.String(),
		"--side", "ask", "--price", "25", "--ratio", "32768", "--order-type", "post_only",
		"--market-index", "1", "--source-index", "2", "--target-index", "0",
		"--client-id", "7", "--self-trade", "abort_transaction")
	require.NoError(t, err)
	assert.Equal(t, &instruction.CreateOrder{
		Seed:              seed,
		Side:              serum.Ask,
		LimitPrice:        25,
		Ratio:             1 << 15,
		OrderType:         serum.PostOnly,
		MarketIndex:       1,
		SourceIndex:       2,
		TargetIndex:       0,
		ClientID:          7,
		SelfTradeBehavior: serum.AbortTransaction,
	}, decodeHex(t, out))

	_, err = run(t, "ix", "encode", "create-order", "--seed", seed.String(), "--price", "1", "--ratio", "1", "--order-type", "market")
	require.ErrorContains(t, err, "invalid order type")
	_, err = run(t, "ix", "encode", "create-order", "--seed", seed.String(), "--price", "1", "--ratio", "1", "--self-trade", "ignore")
	require.ErrorContains(t, err, "invalid self trade behavior")
}

func TestIxRejectsBadInput(t *testing.T) {
	_, err := run(t, "ix", "encode", "deposit", "--amount", "1")
	require.ErrorContains(t, err, "--seed is required")

	_, err = run(t, "ix", "decode", "--encoding", "morse", "00")
	require.ErrorContains(t, err, "unknown encoding")

	_, err = run(t, "ix", "decode", "ff")
	require.Error(t, err)
}

func TestSimulate(t *testing.T) {
	out, err := run(t, "simulate")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 8)
	assert.True(t, strings.HasPrefix(lines[0], "STEP"))
	assert.True(t, strings.HasPrefix(lines[1], "create"))
	assert.Contains(t, lines[7], "redeem investor")
	assert.Contains(t, lines[7], "uninitialized")
}
