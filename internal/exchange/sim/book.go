package sim

import (
	"bytes"
	"fmt"
	"slices"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/coldbell/signalpool/internal/serum"
)

const (
	bookCapacity  = 256
	restingSize   = 8 + 8 + 32 + 1 + 8 + 8 + 8
	bookAccountSz = 8 + 4 + bookCapacity*restingSize
)

// restingOrder is one order waiting on the book.
type restingOrder struct {
	OrderIDLo  uint64
	OrderIDHi  uint64
	OpenOrders solana.PublicKey
	Side       uint8
	LimitPrice uint64
	Lots       uint64
	ClientID   uint64
}

func (o restingOrder) ID() uint128.Uint128 {
	return uint128.New(o.OrderIDLo, o.OrderIDHi)
}

// book is the borsh-encoded content of a market's bids or asks account.
type book struct {
	NextSeq uint64
	Orders  []restingOrder
}

func decodeBook(data []byte) (*book, error) {
	b := &book{}
	if err := bin.NewBorshDecoder(data).Decode(b); err != nil {
		return nil, fmt.Errorf("decode book: %w", err)
	}
	return b, nil
}

func (b *book) encode(dst []byte) error {
	if len(b.Orders) > bookCapacity {
		return ErrBookFull
	}
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(b); err != nil {
		return fmt.Errorf("encode book: %w", err)
	}
	if buf.Len() > len(dst) {
		return ErrBookFull
	}
	clear(dst)
	copy(dst, buf.Bytes())
	return nil
}

// nextID follows the v3 convention: price in the high half, a sequence number in the low
// half, inverted for bids.
func (b *book) nextID(side serum.Side, price uint64) uint128.Uint128 {
	seq := b.NextSeq
	b.NextSeq++
	if side == serum.Bid {
		seq = ^seq
	}
	return uint128.New(seq, price)
}

func (b *book) find(id uint128.Uint128) (int, bool) {
	idx := slices.IndexFunc(b.Orders, func(o restingOrder) bool { return o.ID().Equals(id) })
	return idx, idx >= 0
}

func (b *book) remove(i int) {
	b.Orders = slices.Delete(b.Orders, i, i+1)
}
