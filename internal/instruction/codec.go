// Package instruction is the wire codec of the pool program: a tag byte followed by
// little-endian fixed-width fields.
package instruction

import (
	"bytes"
	"encoding/binary"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/coldbell/signalpool/internal/pool"
	"github.com/coldbell/signalpool/internal/serum"
)

type Tag uint8

const (
	TagInit Tag = iota
	TagCreate
	TagDeposit
	TagCreateOrder
	TagCancelOrder
	TagSettleFunds
	TagRedeem
)

func (t Tag) String() string {
	switch t {
	case TagInit:
		return "init"
	case TagCreate:
		return "create"
	case TagDeposit:
		return "deposit"
	case TagCreateOrder:
		return "create_order"
	case TagCancelOrder:
		return "cancel_order"
	case TagSettleFunds:
		return "settle_funds"
	case TagRedeem:
		return "redeem"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Instruction is one decoded call.
type Instruction interface {
	Tag() Tag
	PoolSeed() pool.Seed
	encode(enc *bin.Encoder) error
}

type Init struct {
	Seed            pool.Seed
	MaxAssets       uint32
	NumberOfMarkets uint16
}

type Create struct {
	Seed                pool.Seed
	ExchangeProgram     solana.PublicKey
	SignalProvider      solana.PublicKey
	FeeCollectionPeriod uint64
	FeeRatio            uint16
	Markets             []solana.PublicKey
	DepositAmounts      []uint64
}

type Deposit struct {
	Seed   pool.Seed
	Amount uint64
}

type CreateOrder struct {
	Seed              pool.Seed
	Side              serum.Side
	LimitPrice        uint64
	Ratio             uint16
	OrderType         serum.OrderType
	MarketIndex       uint16
	SourceIndex       uint64
	TargetIndex       uint64
	ClientID          uint64
	SelfTradeBehavior serum.SelfTradeBehavior
}

type CancelOrder struct {
	Seed    pool.Seed
	Side    serum.Side
	OrderID uint128.Uint128
}

type SettleFunds struct {
	Seed      pool.Seed
	PCIndex   uint64
	CoinIndex uint64
}

type Redeem struct {
	Seed   pool.Seed
	Amount uint64
}

func (*Init) Tag() Tag        { return TagInit }
func (*Create) Tag() Tag      { return TagCreate }
func (*Deposit) Tag() Tag     { return TagDeposit }
func (*CreateOrder) Tag() Tag { return TagCreateOrder }
func (*CancelOrder) Tag() Tag { return TagCancelOrder }
func (*SettleFunds) Tag() Tag { return TagSettleFunds }
func (*Redeem) Tag() Tag      { return TagRedeem }

func (ix *Init) PoolSeed() pool.Seed        { return ix.Seed }
func (ix *Create) PoolSeed() pool.Seed      { return ix.Seed }
func (ix *Deposit) PoolSeed() pool.Seed     { return ix.Seed }
func (ix *CreateOrder) PoolSeed() pool.Seed { return ix.Seed }
func (ix *CancelOrder) PoolSeed() pool.Seed { return ix.Seed }
func (ix *SettleFunds) PoolSeed() pool.Seed { return ix.Seed }
func (ix *Redeem) PoolSeed() pool.Seed      { return ix.Seed }

// Encode serializes ix with its tag.
func Encode(ix Instruction) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteUint8(uint8(ix.Tag())); err != nil {
		return nil, err
	}
	if err := ix.encode(enc); err != nil {
		return nil, fmt.Errorf("encode %s: %w", ix.Tag(), err)
	}
	return buf.Bytes(), nil
}

func (ix *Init) encode(enc *bin.Encoder) error {
	return writeAll(
		func() error { return enc.WriteBytes(ix.Seed[:], false) },
		func() error { return enc.WriteUint32(ix.MaxAssets, binary.LittleEndian) },
		func() error { return enc.WriteUint16(ix.NumberOfMarkets, binary.LittleEndian) },
	)
}

func (ix *Create) encode(enc *bin.Encoder) error {
	if len(ix.Markets) > int(^uint16(0)) {
		return fmt.Errorf("%d markets do not fit a u16 count", len(ix.Markets))
	}
	steps := []func() error{
		func() error { return enc.WriteBytes(ix.Seed[:], false) },
		func() error { return enc.WriteBytes(ix.ExchangeProgram[:], false) },
		func() error { return enc.WriteBytes(ix.SignalProvider[:], false) },
		func() error { return enc.WriteUint64(ix.FeeCollectionPeriod, binary.LittleEndian) },
		func() error { return enc.WriteUint16(ix.FeeRatio, binary.LittleEndian) },
		func() error { return enc.WriteUint16(uint16(len(ix.Markets)), binary.LittleEndian) },
	}
	for _, market := range ix.Markets {
		steps = append(steps, func() error { return enc.WriteBytes(market[:], false) })
	}
	for _, amount := range ix.DepositAmounts {
		steps = append(steps, func() error { return enc.WriteUint64(amount, binary.LittleEndian) })
	}
	return writeAll(steps...)
}

func (ix *Deposit) encode(enc *bin.Encoder) error {
	return writeAll(
		func() error { return enc.WriteBytes(ix.Seed[:], false) },
		func() error { return enc.WriteUint64(ix.Amount, binary.LittleEndian) },
	)
}

func (ix *CreateOrder) encode(enc *bin.Encoder) error {
	return writeAll(
		func() error { return enc.WriteBytes(ix.Seed[:], false) },
		func() error { return enc.WriteUint8(uint8(ix.Side)) },
		func() error { return enc.WriteUint64(ix.LimitPrice, binary.LittleEndian) },
		func() error { return enc.WriteUint16(ix.Ratio, binary.LittleEndian) },
		func() error { return enc.WriteUint8(uint8(ix.OrderType)) },
		func() error { return enc.WriteUint16(ix.MarketIndex, binary.LittleEndian) },
		func() error { return enc.WriteUint64(ix.SourceIndex, binary.LittleEndian) },
		func() error { return enc.WriteUint64(ix.TargetIndex, binary.LittleEndian) },
		func() error { return enc.WriteUint64(ix.ClientID, binary.LittleEndian) },
		func() error { return enc.WriteUint8(uint8(ix.SelfTradeBehavior)) },
	)
}

func (ix *CancelOrder) encode(enc *bin.Encoder) error {
	return writeAll(
		func() error { return enc.WriteBytes(ix.Seed[:], false) },
		func() error { return enc.WriteUint8(uint8(ix.Side)) },
		func() error { return enc.WriteUint64(ix.OrderID.Lo, binary.LittleEndian) },
		func() error { return enc.WriteUint64(ix.OrderID.Hi, binary.LittleEndian) },
	)
}

func (ix *SettleFunds) encode(enc *bin.Encoder) error {
	return writeAll(
		func() error { return enc.WriteBytes(ix.Seed[:], false) },
		func() error { return enc.WriteUint64(ix.PCIndex, binary.LittleEndian) },
		func() error { return enc.WriteUint64(ix.CoinIndex, binary.LittleEndian) },
	)
}

func (ix *Redeem) encode(enc *bin.Encoder) error {
	return writeAll(
		func() error { return enc.WriteBytes(ix.Seed[:], false) },
		func() error { return enc.WriteUint64(ix.Amount, binary.LittleEndian) },
	)
}

func writeAll(steps ...func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// Decode parses a tagged payload. Every malformed payload is ErrInvalidInstruction.
func Decode(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return nil, errorsmod.Wrap(pool.ErrInvalidInstruction, "empty instruction data")
	}
	r := &reader{dec: bin.NewBinDecoder(data[1:])}
	var ix Instruction
	switch tag := Tag(data[0]); tag {
	case TagInit:
		ix = &Init{Seed: r.seed(), MaxAssets: r.u32(), NumberOfMarkets: r.u16()}
	case TagCreate:
		ix = r.create()
	case TagDeposit:
		ix = &Deposit{Seed: r.seed(), Amount: r.u64()}
	case TagCreateOrder:
		ix = r.createOrder()
	case TagCancelOrder:
		cancel := &CancelOrder{Seed: r.seed(), Side: serum.Side(r.u8())}
		lo, hi := r.u64(), r.u64()
		cancel.OrderID = uint128.New(lo, hi)
		if r.err == nil && !cancel.Side.Valid() {
			r.fail("side %d", cancel.Side)
		}
		ix = cancel
	case TagSettleFunds:
		ix = &SettleFunds{Seed: r.seed(), PCIndex: r.u64(), CoinIndex: r.u64()}
	case TagRedeem:
		ix = &Redeem{Seed: r.seed(), Amount: r.u64()}
	default:
		return nil, errorsmod.Wrapf(pool.ErrInvalidInstruction, "unknown tag %d", data[0])
	}
	if r.err == nil && r.dec.Remaining() != 0 {
		r.fail("%d trailing bytes", r.dec.Remaining())
	}
	if r.err != nil {
		return nil, errorsmod.Wrapf(pool.ErrInvalidInstruction, "%s: %v", ix.Tag(), r.err)
	}
	return ix, nil
}

func (r *reader) create() *Create {
	ix := &Create{
		Seed:                r.seed(),
		ExchangeProgram:     r.key(),
		SignalProvider:      r.key(),
		FeeCollectionPeriod: r.u64(),
		FeeRatio:            r.u16(),
	}
	count := r.u16()
	if r.err != nil {
		return ix
	}
	ix.Markets = make([]solana.PublicKey, 0, count)
	for i := 0; i < int(count) && r.err == nil; i++ {
		ix.Markets = append(ix.Markets, r.key())
	}
	if r.err != nil {
		return ix
	}
	rest := r.dec.Remaining()
	if rest%8 != 0 {
		r.fail("deposit amounts are %d bytes, not a multiple of 8", rest)
		return ix
	}
	ix.DepositAmounts = make([]uint64, 0, rest/8)
	for r.dec.Remaining() > 0 && r.err == nil {
		ix.DepositAmounts = append(ix.DepositAmounts, r.u64())
	}
	return ix
}

func (r *reader) createOrder() *CreateOrder {
	ix := &CreateOrder{
		Seed:              r.seed(),
		Side:              serum.Side(r.u8()),
		LimitPrice:        r.u64(),
		Ratio:             r.u16(),
		OrderType:         serum.OrderType(r.u8()),
		MarketIndex:       r.u16(),
		SourceIndex:       r.u64(),
		TargetIndex:       r.u64(),
		ClientID:          r.u64(),
		SelfTradeBehavior: serum.SelfTradeBehavior(r.u8()),
	}
	if r.err != nil {
		return ix
	}
	switch {
	case !ix.Side.Valid():
		r.fail("side %d", ix.Side)
	case !ix.OrderType.Valid():
		r.fail("order type %d", ix.OrderType)
	case !ix.SelfTradeBehavior.Valid():
		r.fail("self trade behavior %d", ix.SelfTradeBehavior)
	case ix.LimitPrice == 0:
		r.fail("limit price is zero")
	case ix.Ratio == 0:
		r.fail("ratio is zero")
	}
	return ix
}

// reader keeps the first decode error so field lists read straight through.
type reader struct {
	dec *bin.Decoder
	err error
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	b, err := r.dec.ReadNBytes(n)
	if err != nil {
		r.err = err
		return make([]byte, n)
	}
	return b
}

func (r *reader) seed() pool.Seed {
	var seed pool.Seed
	copy(seed[:], r.bytes(pool.SeedSize))
	return seed
}

func (r *reader) key() solana.PublicKey {
	return solana.PublicKeyFromBytes(r.bytes(solana.PublicKeyLength))
}

func (r *reader) u8() uint8 {
	return r.bytes(1)[0]
}

func (r *reader) u16() uint16 {
	return binary.LittleEndian.Uint16(r.bytes(2))
}

func (r *reader) u32() uint32 {
	return binary.LittleEndian.Uint32(r.bytes(4))
}

func (r *reader) u64() uint64 {
	return binary.LittleEndian.Uint64(r.bytes(8))
}
