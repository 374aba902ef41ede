package simulation

import (
	"fmt"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/signalpool/internal/accounting"
	"github.com/coldbell/signalpool/internal/serum"
)

// Step is the observable pool state after one round-trip action.
type Step struct {
	Action            string
	Status            string
	Supply            uint64
	Reference         uint64
	Asset             uint64
	ReferencePerShare math.LegacyDec
	AssetPerShare     math.LegacyDec
}

// RoundTripParams sizes the round trip. AskRatio is the share of the pool's asset sold
// on the ask, in 1/65536 units.
type RoundTripParams struct {
	CreateReference uint64
	CreateAsset     uint64
	DepositShares   uint64
	AskPrice        uint64
	AskRatio        uint16
}

func DefaultRoundTrip() RoundTripParams {
	return RoundTripParams{
		CreateReference: 1_000_000,
		CreateAsset:     500_000,
		DepositShares:   500_000,
		AskPrice:        2,
		AskRatio:        1 << 15,
	}
}

// RoundTrip runs create, deposit, an ask that is filled in full, settle, and both
// holders redeeming everything, which tears the pool down.
func (h *Harness) RoundTrip(p RoundTripParams) ([]Step, error) {
	founder, err := h.NewUser(map[solana.PublicKey]uint64{h.Reference: p.CreateReference, h.Asset: p.CreateAsset})
	if err != nil {
		return nil, err
	}
	investor, err := h.NewUser(map[solana.PublicKey]uint64{h.Reference: 10 * p.CreateReference, h.Asset: 10 * p.CreateAsset})
	if err != nil {
		return nil, err
	}

	var steps []Step
	record := func(action string) error {
		step, err := h.observe(action)
		if err != nil {
			return err
		}
		steps = append(steps, step)
		return nil
	}
	run := func(action string, fn func() error) error {
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", action, err)
		}
		return record(action)
	}

	if err := run("create", func() error { return h.Create(founder, p.CreateReference, p.CreateAsset) }); err != nil {
		return steps, err
	}
	if err := run("deposit", func() error { return h.Deposit(investor, p.DepositShares) }); err != nil {
		return steps, err
	}
	if err := run("ask", func() error { return h.PlaceOrder(serum.Ask, p.AskPrice, p.AskRatio) }); err != nil {
		return steps, err
	}
	err = run("fill", func() error {
		orders, err := h.Orders(serum.Ask)
		if err != nil {
			return err
		}
		for _, order := range orders {
			if err := h.Fill(serum.Ask, order, order.Lots); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return steps, err
	}
	if err := run("settle", h.Settle); err != nil {
		return steps, err
	}
	if err := run("redeem founder", func() error { return h.Redeem(founder, h.Balance(founder.Shares)) }); err != nil {
		return steps, err
	}
	if err := run("redeem investor", func() error { return h.Redeem(investor, h.Balance(investor.Shares)) }); err != nil {
		return steps, err
	}
	return steps, nil
}

func (h *Harness) observe(action string) (Step, error) {
	state, err := h.State()
	if err != nil {
		return Step{}, err
	}
	supply, err := h.Supply()
	if err != nil {
		return Step{}, err
	}
	reference, err := h.PoolBalance(h.Reference)
	if err != nil {
		return Step{}, err
	}
	asset, err := h.PoolBalance(h.Asset)
	if err != nil {
		return Step{}, err
	}
	return Step{
		Action:            action,
		Status:            state.Header.Status.String(),
		Supply:            supply,
		Reference:         reference,
		Asset:             asset,
		ReferencePerShare: accounting.PerShare(reference, supply),
		AssetPerShare:     accounting.PerShare(asset, supply),
	}, nil
}
