package instruction

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/coldbell/signalpool/internal/pool"
	"github.com/coldbell/signalpool/internal/serum"
)

func testSeed(b byte) pool.Seed {
	var seed pool.Seed
	for i := range seed {
		seed[i] = b
	}
	return seed
}

func le16(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }
func le32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }
func le64(v uint64) []byte { return binary.LittleEndian.AppendUint64(nil, v) }

func concat(parts ...[]byte) []byte { return bytes.Join(parts, nil) }

func TestGoldenEncodings(t *testing.T) {
	seed := testSeed(0x5a)
	exchange := solana.PublicKeyFromBytes(bytes.Repeat([]byte{0xe1}, 32))
	signal := solana.PublicKeyFromBytes(bytes.Repeat([]byte{0x51}, 32))
	market := solana.PublicKeyFromBytes(bytes.Repeat([]byte{0x3a}, 32))

	cases := []struct {
		name string
		ix   Instruction
		want []byte
	}{
		{
			name: "init",
			ix:   &Init{Seed: seed, MaxAssets: 4, NumberOfMarkets: 2},
			want: concat([]byte{0}, seed[:], le32(4), le16(2)),
		},
		{
			name: "create",
			ix: &Create{
				Seed: seed, ExchangeProgram: exchange, SignalProvider: signal,
				FeeCollectionPeriod: 604_800, FeeRatio: 150,
				Markets:        []solana.PublicKey{market},
				DepositAmounts: []uint64{1_000_000, 500_000},
			},
			want: concat([]byte{1}, seed[:], exchange[:], signal[:], le64(604_800), le16(150), le16(1), market[:], le64(1_000_000), le64(500_000)),
		},
		{
			name: "deposit",
			ix:   &Deposit{Seed: seed, Amount: 500_000},
			want: concat([]byte{2}, seed[:], le64(500_000)),
		},
		{
			name: "create order",
			ix: &CreateOrder{
				Seed: seed, Side: serum.Ask, LimitPrice: 3, Ratio: 1 << 15,
				OrderType: serum.PostOnly, MarketIndex: 1, SourceIndex: 0, TargetIndex: 1,
				ClientID: 99, SelfTradeBehavior: serum.CancelProvide,
			},
			want: concat([]byte{3}, seed[:], []byte{1}, le64(3), le16(1<<15), []byte{2}, le16(1), le64(0), le64(1), le64(99), []byte{1}),
		},
		{
			name: "cancel order",
			ix:   &CancelOrder{Seed: seed, Side: serum.Bid, OrderID: uint128.New(7, 8)},
			want: concat([]byte{4}, seed[:], []byte{0}, le64(7), le64(8)),
		},
		{
			name: "settle funds",
			ix:   &SettleFunds{Seed: seed, PCIndex: 1, CoinIndex: 0},
			want: concat([]byte{5}, seed[:], le64(1), le64(0)),
		},
		{
			name: "redeem",
			ix:   &Redeem{Seed: seed, Amount: 1_500_000},
			want: concat([]byte{6}, seed[:], le64(1_500_000)),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Encode(tc.ix)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			decoded, err := Decode(got)
			require.NoError(t, err)
			assert.Equal(t, tc.ix, decoded)
		})
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	seed := testSeed(1)
	valid, err := Encode(&CreateOrder{
		Seed: seed, Side: serum.Bid, LimitPrice: 1, Ratio: 1,
		OrderType: serum.Limit, SelfTradeBehavior: serum.DecrementTake,
	})
	require.NoError(t, err)

	mutate := func(offset int, b byte) []byte {
		out := append([]byte(nil), valid...)
		out[offset] = b
		return out
	}
	const (
		sideAt      = 1 + 32
		priceAt     = sideAt + 1
		ratioAt     = priceAt + 8
		orderTypeAt = ratioAt + 2
	)
	zeroPrice := append([]byte(nil), valid...)
	copy(zeroPrice[priceAt:], le64(0))
	zeroRatio := append([]byte(nil), valid...)
	copy(zeroRatio[ratioAt:], le16(0))

	cases := map[string][]byte{
		"empty":           nil,
		"unknown tag":     {7},
		"short seed":      concat([]byte{2}, seed[:10]),
		"short amount":    concat([]byte{2}, seed[:], []byte{1, 2, 3}),
		"trailing bytes":  concat([]byte{6}, seed[:], le64(1), []byte{0}),
		"bad side":        mutate(sideAt, 2),
		"bad order type":  mutate(orderTypeAt, 3),
		"bad self trade":  mutate(len(valid)-1, 9),
		"zero price":      zeroPrice,
		"zero ratio":      zeroRatio,
		"ragged deposits": concat([]byte{1}, seed[:], make([]byte, 64), le64(1), le16(1), le16(0), []byte{1, 2, 3}),
		"missing markets": concat([]byte{1}, seed[:], make([]byte, 64), le64(1), le16(1), le16(2), make([]byte, 32)),
		"bad cancel side": concat([]byte{4}, seed[:], []byte{5}, le64(1), le64(0)),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			require.ErrorIs(t, err, pool.ErrInvalidInstruction)
		})
	}
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "settle_funds", TagSettleFunds.String())
	assert.Equal(t, "tag(9)", Tag(9).String())
}
