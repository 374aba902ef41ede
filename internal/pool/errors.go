package pool

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

const Codespace = "signalpool"

var (
	// ErrInvalidArgument covers address, ownership and shape mismatches. Never retried.
	ErrInvalidArgument = errorsmod.Register(Codespace, 1, "invalid argument")
	// ErrMissingRequiredSignature is an authorization failure.
	ErrMissingRequiredSignature = errorsmod.Register(Codespace, 2, "missing required signature")
	ErrUninitializedAccount     = errorsmod.Register(Codespace, 3, "uninitialized account")
	// ErrLockedOperation rejects deposits and redeems while trades are outstanding.
	// Retrying after settlement is legitimate.
	ErrLockedOperation = errorsmod.Register(Codespace, 4, "locked operation")
	// ErrOverflow is an arithmetic bound violation: pending-order limit reached,
	// zero-size trade or deposit, nothing to settle.
	ErrOverflow           = errorsmod.Register(Codespace, 5, "overflow")
	ErrInvalidInstruction = errorsmod.Register(Codespace, 6, "invalid instruction")
	ErrInvalidAccountData = errorsmod.Register(Codespace, 7, "invalid account data")
)

var fuzzWhitelist = []*errorsmod.Error{
	ErrInvalidArgument,
	ErrMissingRequiredSignature,
	ErrLockedOperation,
	ErrOverflow,
}

// Code returns the registered code carried by err, or 0 when err is not a pool error.
func Code(err error) uint32 {
	for _, known := range []*errorsmod.Error{
		ErrInvalidArgument,
		ErrMissingRequiredSignature,
		ErrUninitializedAccount,
		ErrLockedOperation,
		ErrOverflow,
		ErrInvalidInstruction,
		ErrInvalidAccountData,
	} {
		if errors.Is(err, known) {
			return known.ABCICode()
		}
	}
	return 0
}

// ExpectedUnderFuzzing reports whether err is one of the rejections that adversarial,
// randomly interleaved callers are expected to trigger. Anything else is a real bug.
func ExpectedUnderFuzzing(err error) bool {
	for _, known := range fuzzWhitelist {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}
