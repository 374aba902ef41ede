package processor

import (
	"math/rand/v2"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/coldbell/signalpool/internal/pool"
	"github.com/coldbell/signalpool/internal/serum"
)

// TestRandomizedActors interleaves deposits, redemptions, trades, fills, cancels and
// settlements from several callers. Every rejection must be one the pool is expected to
// raise, must leave the ledger untouched, and the pool invariants must hold after every
// step.
func TestRandomizedActors(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewPCG(7, 11))

	// The house keeps its shares so the pool is never torn down mid-run.
	house := f.newUser(t, map[solana.PublicKey]uint64{f.ref: 1_000_000, f.asset: 500_000})
	require.NoError(t, f.create(t, house, 1_000_000, 500_000))
	traders := make([]*user, 3)
	for i := range traders {
		traders[i] = f.newUser(t, map[solana.PublicKey]uint64{f.ref: 5_000_000, f.asset: 2_500_000})
	}
	holders := append([]*user{house}, traders...)
	mints := []solana.PublicKey{f.ref, f.asset}
	sides := []serum.Side{serum.Bid, serum.Ask}

	counts := make(map[string]int)
	for step := 0; step < 400; step++ {
		before := f.ledger.Snapshot()
		var (
			action string
			err    error
		)
		switch rng.IntN(6) {
		case 0:
			action = "deposit"
			u := traders[rng.IntN(len(traders))]
			poolBefore, supplyBefore := f.balances(t, mints), f.supply(t)
			userBefore := f.userBalances(u, mints)
			err = f.deposit(t, u, rng.Uint64N(400_000))
			if err == nil {
				checkNonDilution(t, f, u, mints, supplyBefore, poolBefore, userBefore)
			}
		case 1:
			action = "redeem"
			u := traders[rng.IntN(len(traders))]
			held := f.balance(u.shares)
			amount := rng.Uint64N(held + 2)
			poolBefore, supplyBefore := f.balances(t, mints), f.supply(t)
			userBefore := f.userBalances(u, mints)
			err = f.redeem(t, u, amount)
			if err == nil {
				checkConservation(t, f, u, mints, amount, supplyBefore, poolBefore, userBefore)
			}
		case 2:
			action = "create_order"
			side := sides[rng.IntN(2)]
			price := rng.Uint64N(5) + 1
			ratio := uint16(rng.IntN(1<<15) + 1)
			err = f.createOrder(t, f.order(side, price, ratio))
		case 3:
			action = "fill"
			side := sides[rng.IntN(2)]
			orders := f.orders(t, side)
			if len(orders) == 0 {
				continue
			}
			order := orders[rng.IntN(len(orders))]
			f.fill(t, side, order, rng.Uint64N(order.Lots)+1)
		case 4:
			action = "cancel"
			side := sides[rng.IntN(2)]
			orders := f.orders(t, side)
			if len(orders) == 0 {
				continue
			}
			err = f.cancel(t, side, orders[rng.IntN(len(orders))])
		case 5:
			action = "settle"
			err = f.settle(t)
		}

		if err != nil {
			require.True(t, pool.ExpectedUnderFuzzing(err), "step %d %s: unexpected error %v", step, action, err)
			require.Equal(t, before, f.ledger.Snapshot(), "step %d %s: rejected call wrote state", step, action)
			counts[action+"_rejected"]++
		} else {
			counts[action]++
		}
		checkInvariants(t, f, holders, step)
	}
	t.Logf("actions: %v", counts)
	assert.Positive(t, counts["create_order"])
	assert.Positive(t, counts["settle"])
}

func (f *fixture) balances(t *testing.T, mints []solana.PublicKey) []uint64 {
	t.Helper()
	out := make([]uint64, len(mints))
	for i, mint := range mints {
		out[i] = f.poolBalance(t, mint)
	}
	return out
}

func (f *fixture) userBalances(u *user, mints []solana.PublicKey) []uint64 {
	out := make([]uint64, len(mints))
	for i, mint := range mints {
		out[i] = f.balance(u.tokens[mint])
	}
	return out
}

func checkInvariants(t *testing.T, f *fixture, holders []*user, step int) {
	t.Helper()
	status := f.status(t)
	require.True(t, status.IsInitialized(), "step %d", step)
	require.LessOrEqual(t, status.Pending(), pool.MaxPendingOrders, "step %d", step)

	resting := len(f.orders(t, serum.Bid)) + len(f.orders(t, serum.Ask))
	require.LessOrEqual(t, resting, status.Pending(), "step %d: %d resting orders under %s", step, resting, status)

	var held uint64
	for _, u := range holders {
		held += f.balance(u.shares)
	}
	require.Equal(t, f.supply(t), held, "step %d", step)
}

// checkNonDilution verifies that the shares a deposit issued never claim more of any
// asset than the depositor paid in.
func checkNonDilution(t *testing.T, f *fixture, u *user, mints []solana.PublicKey, supplyBefore uint64, poolBefore, userBefore []uint64) {
	t.Helper()
	poolAfter, userAfter := f.balances(t, mints), f.userBalances(u, mints)
	supply := f.supply(t)
	issued := supply - supplyBefore
	require.Positive(t, issued)
	for i := range mints {
		paid := userBefore[i] - userAfter[i]
		require.Equal(t, paid, poolAfter[i]-poolBefore[i], "asset %d", i)
		claim := uint128.From64(issued).Mul64(poolAfter[i]).Div64(supply)
		require.True(t, claim.Cmp64(paid) <= 0, "asset %d: claim %s exceeds payment %d", i, claim, paid)
	}
}

// checkConservation verifies every payout is exactly floor(amount * balance / supply).
func checkConservation(t *testing.T, f *fixture, u *user, mints []solana.PublicKey, amount, supply uint64, poolBefore, userBefore []uint64) {
	t.Helper()
	userAfter := f.userBalances(u, mints)
	for i := range mints {
		payout := userAfter[i] - userBefore[i]
		exact := uint128.From64(amount).Mul64(poolBefore[i])
		low := uint128.From64(payout).Mul64(supply)
		high := uint128.From64(payout + 1).Mul64(supply)
		require.True(t, low.Cmp(exact) <= 0, "asset %d: payout %d overpays", i, payout)
		require.True(t, exact.Cmp(high) < 0, "asset %d: payout %d underpays", i, payout)
	}
}
