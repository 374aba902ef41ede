package serum

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

const (
	OrderSlots     = 128
	OpenOrdersSize = 3228
)

// OpenOrdersLayout pins the byte offsets the pool reads out of an OpenOrders record.
// Offsets differ between exchange versions, so readers take the layout explicitly.
type OpenOrdersLayout struct {
	Size            int
	MarketOffset    int
	OwnerOffset     int
	CoinFreeOffset  int
	CoinTotalOffset int
	PCFreeOffset    int
	PCTotalOffset   int
}

// V3 is the published Serum DEX v3 OpenOrders layout.
var V3 = OpenOrdersLayout{
	Size:            OpenOrdersSize,
	MarketOffset:    13,
	OwnerOffset:     45,
	CoinFreeOffset:  77,
	CoinTotalOffset: 85,
	PCFreeOffset:    93,
	PCTotalOffset:   101,
}

// Funds are the native token amounts an OpenOrders record holds for its owner. Free
// amounts are settleable; totals also include what is locked in resting orders.
type Funds struct {
	CoinFree  uint64
	CoinTotal uint64
	PCFree    uint64
	PCTotal   uint64
}

// FullySettled reports that nothing is locked in resting orders on either leg.
func (f Funds) FullySettled() bool {
	return f.CoinFree == f.CoinTotal && f.PCFree == f.PCTotal
}

func (f Funds) NothingFree() bool {
	return f.CoinFree == 0 && f.PCFree == 0
}

func (l OpenOrdersLayout) check(data []byte) error {
	if len(data) < l.Size {
		return fmt.Errorf("%w: open orders is %d bytes, want %d", errTruncated, len(data), l.Size)
	}
	return nil
}

func (l OpenOrdersLayout) Owner(data []byte) (solana.PublicKey, error) {
	if err := l.check(data); err != nil {
		return solana.PublicKey{}, err
	}
	owner, _, err := readKey(data, l.OwnerOffset)
	return owner, err
}

func (l OpenOrdersLayout) Market(data []byte) (solana.PublicKey, error) {
	if err := l.check(data); err != nil {
		return solana.PublicKey{}, err
	}
	market, _, err := readKey(data, l.MarketOffset)
	return market, err
}

func (l OpenOrdersLayout) Funds(data []byte) (Funds, error) {
	if err := l.check(data); err != nil {
		return Funds{}, err
	}
	var f Funds
	var err error
	if f.CoinFree, _, err = readU64(data, l.CoinFreeOffset); err != nil {
		return Funds{}, err
	}
	if f.CoinTotal, _, err = readU64(data, l.CoinTotalOffset); err != nil {
		return Funds{}, err
	}
	if f.PCFree, _, err = readU64(data, l.PCFreeOffset); err != nil {
		return Funds{}, err
	}
	if f.PCTotal, _, err = readU64(data, l.PCTotalOffset); err != nil {
		return Funds{}, err
	}
	return f, nil
}

// OpenOrders is the full v3 record.
type OpenOrders struct {
	AccountFlags    uint64
	Market          solana.PublicKey
	Owner           solana.PublicKey
	Funds           Funds
	FreeSlotBits    uint128.Uint128
	IsBidBits       uint128.Uint128
	Orders          [OrderSlots]uint128.Uint128
	ClientOrderIDs  [OrderSlots]uint64
	ReferrerRebates uint64
}

// NewOpenOrders is an initialized record with every order slot free.
func NewOpenOrders(market, owner solana.PublicKey) *OpenOrders {
	return &OpenOrders{
		AccountFlags: FlagInitialized | FlagOpenOrders,
		Market:       market,
		Owner:        owner,
		FreeSlotBits: uint128.Max,
	}
}

func DecodeOpenOrders(data []byte) (*OpenOrders, error) {
	if err := checkPadding(data, OpenOrdersSize); err != nil {
		return nil, err
	}
	oo := &OpenOrders{}
	offset := len(headPadding)
	var err error
	if oo.AccountFlags, offset, err = readU64(data, offset); err != nil {
		return nil, err
	}
	if oo.AccountFlags&(FlagInitialized|FlagOpenOrders) != FlagInitialized|FlagOpenOrders {
		return nil, fmt.Errorf("%w: open orders flags %#x", errUnexpectedTag, oo.AccountFlags)
	}
	if oo.Market, offset, err = readKey(data, offset); err != nil {
		return nil, err
	}
	if oo.Owner, offset, err = readKey(data, offset); err != nil {
		return nil, err
	}
	for _, field := range []*uint64{&oo.Funds.CoinFree, &oo.Funds.CoinTotal, &oo.Funds.PCFree, &oo.Funds.PCTotal} {
		if *field, offset, err = readU64(data, offset); err != nil {
			return nil, err
		}
	}
	if oo.FreeSlotBits, offset, err = readU128(data, offset); err != nil {
		return nil, err
	}
	if oo.IsBidBits, offset, err = readU128(data, offset); err != nil {
		return nil, err
	}
	for i := range oo.Orders {
		if oo.Orders[i], offset, err = readU128(data, offset); err != nil {
			return nil, err
		}
	}
	for i := range oo.ClientOrderIDs {
		if oo.ClientOrderIDs[i], offset, err = readU64(data, offset); err != nil {
			return nil, err
		}
	}
	if oo.ReferrerRebates, _, err = readU64(data, offset); err != nil {
		return nil, err
	}
	return oo, nil
}

func (oo *OpenOrders) Encode(dst []byte) error {
	if len(dst) != OpenOrdersSize {
		return fmt.Errorf("%w: open orders is %d bytes, want %d", errTruncated, len(dst), OpenOrdersSize)
	}
	writePadding(dst)
	offset := putU64(dst, len(headPadding), oo.AccountFlags)
	offset = putKey(dst, offset, oo.Market)
	offset = putKey(dst, offset, oo.Owner)
	offset = putU64(dst, offset, oo.Funds.CoinFree)
	offset = putU64(dst, offset, oo.Funds.CoinTotal)
	offset = putU64(dst, offset, oo.Funds.PCFree)
	offset = putU64(dst, offset, oo.Funds.PCTotal)
	offset = putU128(dst, offset, oo.FreeSlotBits)
	offset = putU128(dst, offset, oo.IsBidBits)
	for _, order := range oo.Orders {
		offset = putU128(dst, offset, order)
	}
	for _, id := range oo.ClientOrderIDs {
		offset = putU64(dst, offset, id)
	}
	putU64(dst, offset, oo.ReferrerRebates)
	return nil
}

// AcquireSlot takes the lowest free order slot.
func (oo *OpenOrders) AcquireSlot() (int, bool) {
	for i := 0; i < OrderSlots; i++ {
		if oo.slotFree(i) {
			oo.FreeSlotBits = oo.FreeSlotBits.Xor(bit(i))
			return i, true
		}
	}
	return 0, false
}

func (oo *OpenOrders) ReleaseSlot(i int) {
	oo.FreeSlotBits = oo.FreeSlotBits.Or(bit(i))
	oo.IsBidBits = oo.IsBidBits.And(notBit(i))
	oo.Orders[i] = uint128.Zero
	oo.ClientOrderIDs[i] = 0
}

func (oo *OpenOrders) SetOrder(i int, side Side, id uint128.Uint128, clientID uint64) {
	oo.Orders[i] = id
	oo.ClientOrderIDs[i] = clientID
	if side == Bid {
		oo.IsBidBits = oo.IsBidBits.Or(bit(i))
	} else {
		oo.IsBidBits = oo.IsBidBits.And(notBit(i))
	}
}

// SlotOf finds the occupied slot holding order id.
func (oo *OpenOrders) SlotOf(id uint128.Uint128) (int, bool) {
	for i := 0; i < OrderSlots; i++ {
		if !oo.slotFree(i) && oo.Orders[i].Equals(id) {
			return i, true
		}
	}
	return 0, false
}

func (oo *OpenOrders) SideOf(i int) Side {
	if !oo.IsBidBits.And(bit(i)).IsZero() {
		return Bid
	}
	return Ask
}

func (oo *OpenOrders) slotFree(i int) bool {
	return !oo.FreeSlotBits.And(bit(i)).IsZero()
}

func bit(i int) uint128.Uint128 {
	return uint128.From64(1).Lsh(uint(i))
}

func notBit(i int) uint128.Uint128 {
	return bit(i).Xor(uint128.Max)
}
