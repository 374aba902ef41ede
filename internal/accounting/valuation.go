package accounting

import (
	"cosmossdk.io/math"
)

// PerShare is balance/supply as a decimal, the amount of one asset backing one share.
func PerShare(balance, supply uint64) math.LegacyDec {
	if supply == 0 {
		return math.LegacyZeroDec()
	}
	return math.LegacyNewDecFromInt(math.NewIntFromUint64(balance)).
		QuoInt(math.NewIntFromUint64(supply))
}

// Claim is the exact decimal amount of each asset that shares are entitled to.
func Claim(shares, supply uint64, balances []uint64) []math.LegacyDec {
	out := make([]math.LegacyDec, len(balances))
	for i, balance := range balances {
		if supply == 0 {
			out[i] = math.LegacyZeroDec()
			continue
		}
		owed := math.NewIntFromUint64(shares).Mul(math.NewIntFromUint64(balance))
		out[i] = math.LegacyNewDecFromInt(owed).QuoInt(math.NewIntFromUint64(supply))
	}
	return out
}
