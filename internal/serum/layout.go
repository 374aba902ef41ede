// Package serum decodes the account layouts of a Serum DEX v3 compatible order-book
// program: the per-trader OpenOrders record and the Market state.
package serum

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

var (
	errTruncated     = errors.New("serum account truncated")
	errBadPadding    = errors.New("serum account padding mismatch")
	errUnexpectedTag = errors.New("serum account flags mismatch")
)

var (
	headPadding = []byte("serum")
	tailPadding = []byte("padding")
)

// Account flag bits.
const (
	FlagInitialized uint64 = 1 << 0
	FlagMarket      uint64 = 1 << 1
	FlagOpenOrders  uint64 = 1 << 2
)

func readU64(data []byte, offset int) (uint64, int, error) {
	if len(data) < offset+8 {
		return 0, offset, fmt.Errorf("%w: u64 at %d", errTruncated, offset)
	}
	return binary.LittleEndian.Uint64(data[offset : offset+8]), offset + 8, nil
}

func readU128(data []byte, offset int) (uint128.Uint128, int, error) {
	if len(data) < offset+16 {
		return uint128.Zero, offset, fmt.Errorf("%w: u128 at %d", errTruncated, offset)
	}
	return uint128.FromBytes(data[offset : offset+16]), offset + 16, nil
}

func readKey(data []byte, offset int) (solana.PublicKey, int, error) {
	if len(data) < offset+32 {
		return solana.PublicKey{}, offset, fmt.Errorf("%w: key at %d", errTruncated, offset)
	}
	return solana.PublicKeyFromBytes(data[offset : offset+32]), offset + 32, nil
}

func putU64(dst []byte, offset int, v uint64) int {
	binary.LittleEndian.PutUint64(dst[offset:offset+8], v)
	return offset + 8
}

func putU128(dst []byte, offset int, v uint128.Uint128) int {
	v.PutBytes(dst[offset : offset+16])
	return offset + 16
}

func putKey(dst []byte, offset int, key solana.PublicKey) int {
	copy(dst[offset:offset+32], key[:])
	return offset + 32
}

func checkPadding(data []byte, size int) error {
	if len(data) != size {
		return fmt.Errorf("%w: %d bytes, want %d", errTruncated, len(data), size)
	}
	if !bytes.Equal(data[:len(headPadding)], headPadding) || !bytes.Equal(data[size-len(tailPadding):], tailPadding) {
		return errBadPadding
	}
	return nil
}

func writePadding(dst []byte) {
	copy(dst, headPadding)
	copy(dst[len(dst)-len(tailPadding):], tailPadding)
}
