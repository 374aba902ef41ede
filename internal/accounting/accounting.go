// Package accounting computes pool share issuance and redemption. Every division floors,
// so rounding dust always stays with the pool.
package accounting

import (
	"math"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/coldbell/signalpool/internal/pool"
)

// InitialShares is minted by Create regardless of the deposited amounts.
const InitialShares uint64 = 1_000_000

// MulDivFloor returns floor(a*b/c) with a 128-bit intermediate.
func MulDivFloor(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, errorsmod.Wrap(pool.ErrOverflow, "division by zero")
	}
	q := uint128.From64(a).Mul64(b).Div64(c)
	if q.Hi != 0 {
		return 0, errorsmod.Wrapf(pool.ErrOverflow, "%d*%d/%d does not fit in 64 bits", a, b, c)
	}
	return q.Lo, nil
}

// CheckCreate validates the first deposit: every amount non-zero, and at least one leg in
// the reference mint at or above min.
func CheckCreate(mints []solana.PublicKey, amounts []uint64, referenceMint solana.PublicKey, min uint64) error {
	if len(mints) != len(amounts) {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "%d mints for %d deposit amounts", len(mints), len(amounts))
	}
	if len(amounts) == 0 {
		return errorsmod.Wrap(pool.ErrInvalidArgument, "create needs at least one deposit")
	}
	referenced := false
	for i, amount := range amounts {
		if amount == 0 {
			return errorsmod.Wrapf(pool.ErrInvalidArgument, "deposit amount %d is zero", i)
		}
		if mints[i].Equals(referenceMint) && amount >= min {
			referenced = true
		}
	}
	if !referenced {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "create must deposit at least %d of %s", min, referenceMint)
	}
	return nil
}

type DepositQuote struct {
	// Shares is the effective amount minted, never more than requested.
	Shares uint64
	// Amounts[i] is what the caller pays into slot i; zero entries are skipped.
	Amounts []uint64
}

// QuoteDeposit prices a buy-in of requested shares against the pool balances, capped by
// what the caller can afford in every asset. balances and callerBalances are in slot order.
func QuoteDeposit(requested uint64, balances, callerBalances []uint64, supply uint64) (DepositQuote, error) {
	if len(balances) != len(callerBalances) {
		return DepositQuote{}, errorsmod.Wrapf(pool.ErrInvalidArgument, "%d pool balances for %d caller balances", len(balances), len(callerBalances))
	}
	if supply == 0 {
		return DepositQuote{}, errorsmod.Wrap(pool.ErrUninitializedAccount, "pool has no outstanding shares")
	}
	effective := requested
	for i, balance := range balances {
		if balance == 0 {
			continue
		}
		limit, err := MulDivFloor(callerBalances[i], supply, balance)
		if err != nil {
			limit = math.MaxUint64
		}
		effective = min(effective, limit)
	}
	if effective == 0 {
		return DepositQuote{}, errorsmod.Wrapf(pool.ErrOverflow, "deposit of %d shares resolves to zero", requested)
	}
	amounts := make([]uint64, len(balances))
	for i, balance := range balances {
		amount, err := MulDivFloor(effective, balance, supply)
		if err != nil {
			return DepositQuote{}, err
		}
		amounts[i] = amount
	}
	return DepositQuote{Shares: effective, Amounts: amounts}, nil
}

type RedeemQuote struct {
	Payouts []uint64
	// Teardown is set when the redemption retires every outstanding share.
	Teardown bool
}

// QuoteRedeem prices a buy-out of amount shares against the pool balances.
func QuoteRedeem(amount uint64, balances []uint64, supply uint64) (RedeemQuote, error) {
	if amount == 0 {
		return RedeemQuote{}, errorsmod.Wrap(pool.ErrOverflow, "redeem of zero shares")
	}
	if amount > supply {
		return RedeemQuote{}, errorsmod.Wrapf(pool.ErrInvalidArgument, "redeem of %d exceeds supply %d", amount, supply)
	}
	payouts := make([]uint64, len(balances))
	for i, balance := range balances {
		payout, err := MulDivFloor(amount, balance, supply)
		if err != nil {
			return RedeemQuote{}, err
		}
		payouts[i] = payout
	}
	return RedeemQuote{Payouts: payouts, Teardown: amount == supply}, nil
}

// TradeAmount is floor(balance * ratio / 2^16).
func TradeAmount(balance uint64, ratio uint16) uint64 {
	return uint128.From64(balance).Mul64(uint64(ratio)).Rsh(16).Lo
}
