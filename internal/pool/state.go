package pool

import (
	"encoding/binary"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"
)

const (
	HeaderSize = 32 + // exchange program
		32 + // signal provider
		1 + // status
		2 // market count
	AddressSize = 32
)

type Header struct {
	ExchangeProgram solana.PublicKey
	SignalProvider  solana.PublicKey
	Status          Status
	MarketCount     uint16
}

func (h Header) PackInto(dst []byte) {
	copy(dst[0:32], h.ExchangeProgram[:])
	copy(dst[32:64], h.SignalProvider[:])
	dst[64] = h.Status.Byte()
	binary.LittleEndian.PutUint16(dst[65:67], h.MarketCount)
}

func UnpackHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, errorsmod.Wrapf(ErrInvalidAccountData, "pool header needs %d bytes, got %d", HeaderSize, len(src))
	}
	return Header{
		ExchangeProgram: solana.PublicKeyFromBytes(src[0:32]),
		SignalProvider:  solana.PublicKeyFromBytes(src[32:64]),
		Status:          StatusFromByte(src[64]),
		MarketCount:     binary.LittleEndian.Uint16(src[65:67]),
	}, nil
}

// AccountSize is the pool account size for the given whitelist and slot table lengths.
func AccountSize(numberOfMarkets uint16, maxAssets uint32) int {
	return HeaderSize + AddressSize*int(numberOfMarkets) + AddressSize*int(maxAssets)
}

// Slots is the fixed-capacity asset slot table. Slots are addressed by index and never
// compacted; an all-zero mint marks an empty slot.
type Slots []solana.PublicKey

func (s Slots) IsEmpty(i int) bool {
	return s[i].IsZero()
}

func (s Slots) InRange(i uint64) bool {
	return i < uint64(len(s))
}

// NonEmpty returns the indexes of occupied slots in slot order.
func (s Slots) NonEmpty() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		if !s.IsEmpty(i) {
			out = append(out, i)
		}
	}
	return out
}

func (s Slots) IndexOf(mint solana.PublicKey) (int, bool) {
	for i := range s {
		if !s.IsEmpty(i) && s[i].Equals(mint) {
			return i, true
		}
	}
	return 0, false
}

// Bind lazily assigns mint to an empty slot, or checks that an occupied slot holds mint.
// A mint lives in at most one slot.
func (s Slots) Bind(i uint64, mint solana.PublicKey) error {
	if !s.InRange(i) {
		return errorsmod.Wrapf(ErrInvalidArgument, "asset slot %d out of range (%d slots)", i, len(s))
	}
	if s.IsEmpty(int(i)) {
		if j, ok := s.IndexOf(mint); ok {
			return errorsmod.Wrapf(ErrInvalidArgument, "mint %s already bound to asset slot %d", mint, j)
		}
		s[i] = mint
		return nil
	}
	if !s[i].Equals(mint) {
		return errorsmod.Wrapf(ErrInvalidArgument, "asset slot %d holds %s, expected %s", i, s[i], mint)
	}
	return nil
}

// State is the full pool account: header, market whitelist and asset slots.
type State struct {
	Header  Header
	Markets []solana.PublicKey
	Slots   Slots
}

// NewState lays out a fresh state over a pool account of dataLen bytes: the whitelist
// takes what it needs and the remainder becomes the slot table.
func NewState(dataLen int, header Header, markets []solana.PublicKey) (*State, error) {
	rest := dataLen - HeaderSize - AddressSize*len(markets)
	if rest < AddressSize || rest%AddressSize != 0 {
		return nil, errorsmod.Wrapf(ErrInvalidAccountData, "pool account of %d bytes cannot hold %d markets and at least one asset", dataLen, len(markets))
	}
	header.MarketCount = uint16(len(markets))
	return &State{
		Header:  header,
		Markets: append([]solana.PublicKey(nil), markets...),
		Slots:   make(Slots, rest/AddressSize),
	}, nil
}

func Unpack(data []byte) (*State, error) {
	header, err := UnpackHeader(data)
	if err != nil {
		return nil, err
	}
	offset := HeaderSize
	marketsEnd := offset + AddressSize*int(header.MarketCount)
	if len(data) < marketsEnd {
		return nil, errorsmod.Wrapf(ErrInvalidAccountData, "pool account too small for %d markets", header.MarketCount)
	}
	markets := make([]solana.PublicKey, header.MarketCount)
	for i := range markets {
		markets[i] = solana.PublicKeyFromBytes(data[offset : offset+AddressSize])
		offset += AddressSize
	}
	rest := len(data) - marketsEnd
	if rest%AddressSize != 0 {
		return nil, errorsmod.Wrapf(ErrInvalidAccountData, "asset table length %d is not a multiple of %d", rest, AddressSize)
	}
	slots := make(Slots, rest/AddressSize)
	for i := range slots {
		slots[i] = solana.PublicKeyFromBytes(data[offset : offset+AddressSize])
		offset += AddressSize
	}
	return &State{Header: header, Markets: markets, Slots: slots}, nil
}

// UnpackInitialized is Unpack that rejects pools which have not gone through Create.
func UnpackInitialized(data []byte) (*State, error) {
	state, err := Unpack(data)
	if err != nil {
		return nil, err
	}
	if !state.Header.Status.IsInitialized() {
		return nil, errorsmod.Wrap(ErrUninitializedAccount, "pool has not been created")
	}
	return state, nil
}

func (s *State) Size() int {
	return HeaderSize + AddressSize*len(s.Markets) + AddressSize*len(s.Slots)
}

func (s *State) PackInto(dst []byte) error {
	if len(dst) != s.Size() {
		return errorsmod.Wrapf(ErrInvalidAccountData, "pool account is %d bytes, state needs %d", len(dst), s.Size())
	}
	header := s.Header
	header.MarketCount = uint16(len(s.Markets))
	header.PackInto(dst)
	offset := HeaderSize
	for _, market := range s.Markets {
		copy(dst[offset:offset+AddressSize], market[:])
		offset += AddressSize
	}
	for _, mint := range s.Slots {
		copy(dst[offset:offset+AddressSize], mint[:])
		offset += AddressSize
	}
	return nil
}

// MarketIndex returns the whitelist position of market.
func (s *State) MarketIndex(market solana.PublicKey) (int, bool) {
	for i, m := range s.Markets {
		if m.Equals(market) {
			return i, true
		}
	}
	return 0, false
}

// Zero wipes the whole pool account, returning it to the Uninitialized state.
func Zero(data []byte) {
	clear(data)
}
