package pool

import (
	"bytes"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filledKey(b byte) solana.PublicKey {
	var key solana.PublicKey
	for i := range key {
		key[i] = b
	}
	return key
}

func TestStateGoldenLayout(t *testing.T) {
	state := &State{
		Header: Header{
			ExchangeProgram: filledKey(0x11),
			SignalProvider:  filledKey(0x22),
			Status:          PendingOrder(2),
		},
		Markets: []solana.PublicKey{filledKey(0x33)},
		Slots:   Slots{filledKey(0x44), {}},
	}
	data := make([]byte, AccountSize(1, 2))
	require.Len(t, data, 67+32+64)
	require.NoError(t, state.PackInto(data))

	assert.Equal(t, bytes.Repeat([]byte{0x11}, 32), data[0:32])
	assert.Equal(t, bytes.Repeat([]byte{0x22}, 32), data[32:64])
	assert.Equal(t, byte(0x41), data[64])
	assert.Equal(t, []byte{0x01, 0x00}, data[65:67])
	assert.Equal(t, bytes.Repeat([]byte{0x33}, 32), data[67:99])
	assert.Equal(t, bytes.Repeat([]byte{0x44}, 32), data[99:131])
	assert.Equal(t, make([]byte, 32), data[131:163])

	decoded, err := UnpackInitialized(data)
	require.NoError(t, err)
	assert.Equal(t, state.Header.ExchangeProgram, decoded.Header.ExchangeProgram)
	assert.Equal(t, PendingOrder(2), decoded.Header.Status)
	assert.EqualValues(t, 1, decoded.Header.MarketCount)
	assert.Equal(t, state.Markets, decoded.Markets)
	assert.Equal(t, []int{0}, decoded.Slots.NonEmpty())
}

func TestUnpackRejectsShortOrMisalignedAccounts(t *testing.T) {
	_, err := Unpack(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, ErrInvalidAccountData)

	data := make([]byte, HeaderSize+AddressSize+5)
	_, err = Unpack(data)
	require.ErrorIs(t, err, ErrInvalidAccountData)

	data = make([]byte, HeaderSize)
	Header{Status: Unlocked, MarketCount: 2}.PackInto(data)
	_, err = Unpack(data)
	require.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestUnpackInitializedRejectsZeroedPool(t *testing.T) {
	data := make([]byte, AccountSize(2, 4))
	_, err := UnpackInitialized(data)
	require.ErrorIs(t, err, ErrUninitializedAccount)
}

func TestNewStateSizesSlotTable(t *testing.T) {
	size := AccountSize(3, 5)
	state, err := NewState(size, Header{Status: Unlocked}, make([]solana.PublicKey, 3))
	require.NoError(t, err)
	assert.Len(t, state.Slots, 5)
	assert.EqualValues(t, 3, state.Header.MarketCount)
	assert.Equal(t, size, state.Size())

	_, err = NewState(size, Header{}, make([]solana.PublicKey, 8))
	require.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestSlotsBind(t *testing.T) {
	slots := make(Slots, 3)
	mint := filledKey(0x09)
	other := filledKey(0x0a)

	require.NoError(t, slots.Bind(1, mint))
	assert.True(t, slots.IsEmpty(0))
	assert.Equal(t, mint, slots[1])

	require.NoError(t, slots.Bind(1, mint))
	require.ErrorIs(t, slots.Bind(1, other), ErrInvalidArgument)
	require.ErrorIs(t, slots.Bind(3, other), ErrInvalidArgument)
	require.ErrorIs(t, slots.Bind(2, mint), ErrInvalidArgument)
	assert.True(t, slots.IsEmpty(2))

	idx, ok := slots.IndexOf(mint)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	_, ok = slots.IndexOf(other)
	assert.False(t, ok)
}

func TestZeroReturnsToUninitialized(t *testing.T) {
	data := make([]byte, AccountSize(1, 1))
	state := &State{
		Header:  Header{Status: Unlocked},
		Markets: []solana.PublicKey{filledKey(1)},
		Slots:   Slots{filledKey(2)},
	}
	require.NoError(t, state.PackInto(data))
	Zero(data)
	assert.Equal(t, make([]byte, len(data)), data)
	decoded, err := Unpack(data)
	require.NoError(t, err)
	assert.False(t, decoded.Header.Status.IsInitialized())
}
