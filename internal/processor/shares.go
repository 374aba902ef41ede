package processor

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/signalpool/internal/accounting"
	"github.com/coldbell/signalpool/internal/instruction"
	"github.com/coldbell/signalpool/internal/ledger"
	"github.com/coldbell/signalpool/internal/pool"
)

// legs pairs every occupied slot with its pool asset and the caller's token account, in
// slot order.
type legs struct {
	mints    []solana.PublicKey
	pool     []solana.PublicKey
	caller   []solana.PublicKey
	balances []uint64
}

func loadLegs(tx *ledger.Tx, state *pool.State, poolKey solana.PublicKey, accounts []*solana.AccountMeta) (*legs, error) {
	occupied := state.Slots.NonEmpty()
	k := len(occupied)
	if len(accounts) != 2*k {
		return nil, errorsmod.Wrapf(pool.ErrInvalidArgument, "expected %d asset accounts for %d occupied slots, got %d", 2*k, k, len(accounts))
	}
	l := &legs{
		mints:    make([]solana.PublicKey, k),
		pool:     make([]solana.PublicKey, k),
		caller:   make([]solana.PublicKey, k),
		balances: make([]uint64, k),
	}
	for j, slot := range occupied {
		mint := state.Slots[slot]
		balance, err := poolAsset(tx, poolKey, accounts[j].PublicKey, mint)
		if err != nil {
			return nil, err
		}
		caller := accounts[k+j].PublicKey
		token, err := tokenAccount(tx, caller)
		if err != nil {
			return nil, err
		}
		if !token.Mint.Equals(mint) {
			return nil, errorsmod.Wrapf(pool.ErrInvalidArgument, "account %s holds %s, slot %d holds %s", caller, token.Mint, slot, mint)
		}
		l.mints[j] = mint
		l.pool[j] = accounts[j].PublicKey
		l.caller[j] = caller
		l.balances[j] = balance
	}
	return l, nil
}

func (p *Processor) processDeposit(tx *ledger.Tx, accounts []*solana.AccountMeta, call *instruction.Deposit) error {
	if len(accounts) < 4 {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "expected at least 4 accounts, got %d", len(accounts))
	}
	poolMeta, mintMeta, target, owner := accounts[0], accounts[1], accounts[2], accounts[3]
	authority, _, state, err := p.loadPool(tx, poolMeta.PublicKey, call.Seed)
	if err != nil {
		return err
	}
	if err := pool.CheckMintKey(p.programID, mintMeta.PublicKey, call.Seed); err != nil {
		return err
	}
	if state.Header.Status != pool.Unlocked {
		return errorsmod.Wrapf(pool.ErrLockedOperation, "deposits need an unlocked pool, status is %s", state.Header.Status)
	}
	if err := requireSigner(owner, "source owner"); err != nil {
		return err
	}
	l, err := loadLegs(tx, state, authority.Key(), accounts[4:])
	if err != nil {
		return err
	}
	callerBalances := make([]uint64, len(l.caller))
	for j, key := range l.caller {
		token, err := tokenAccount(tx, key)
		if err != nil {
			return err
		}
		callerBalances[j] = token.Amount
	}
	supply, err := tx.Supply(mintMeta.PublicKey)
	if err != nil {
		return err
	}
	quote, err := accounting.QuoteDeposit(call.Amount, l.balances, callerBalances, supply)
	if err != nil {
		return err
	}
	for j, amount := range quote.Amounts {
		if amount == 0 {
			continue
		}
		if err := tx.Transfer(l.caller[j], l.pool[j], amount); err != nil {
			return err
		}
	}
	err = authority.Sign(tx, func() error {
		return tx.MintTo(mintMeta.PublicKey, target.PublicKey, quote.Shares)
	})
	if err != nil {
		return err
	}
	p.logger.Debug("shares issued", "pool", authority.Key(), "requested", call.Amount, "issued", quote.Shares)
	return nil
}

func (p *Processor) processRedeem(tx *ledger.Tx, accounts []*solana.AccountMeta, call *instruction.Redeem) error {
	if len(accounts) < 4 {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "expected at least 4 accounts, got %d", len(accounts))
	}
	poolMeta, mintMeta, source, owner := accounts[0], accounts[1], accounts[2], accounts[3]
	authority, data, state, err := p.loadPool(tx, poolMeta.PublicKey, call.Seed)
	if err != nil {
		return err
	}
	if err := pool.CheckMintKey(p.programID, mintMeta.PublicKey, call.Seed); err != nil {
		return err
	}
	if state.Header.Status.HasPending() {
		return errorsmod.Wrapf(pool.ErrLockedOperation, "redemptions wait for pending orders to settle, status is %s", state.Header.Status)
	}
	if err := requireSigner(owner, "source owner"); err != nil {
		return err
	}
	shares, err := tokenAccount(tx, source.PublicKey)
	if err != nil {
		return err
	}
	if !shares.Mint.Equals(mintMeta.PublicKey) || !shares.Owner.Equals(owner.PublicKey) {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "share account %s is not a %s account of %s", source.PublicKey, mintMeta.PublicKey, owner.PublicKey)
	}
	if call.Amount > shares.Amount {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "redeem of %d exceeds share balance %d", call.Amount, shares.Amount)
	}
	l, err := loadLegs(tx, state, authority.Key(), accounts[4:])
	if err != nil {
		return err
	}
	supply, err := tx.Supply(mintMeta.PublicKey)
	if err != nil {
		return err
	}
	quote, err := accounting.QuoteRedeem(call.Amount, l.balances, supply)
	if err != nil {
		return err
	}
	err = authority.Sign(tx, func() error {
		for j, payout := range quote.Payouts {
			if payout == 0 {
				continue
			}
			if err := tx.Transfer(l.pool[j], l.caller[j], payout); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := tx.Burn(mintMeta.PublicKey, source.PublicKey, call.Amount); err != nil {
		return err
	}
	if quote.Teardown {
		pool.Zero(data)
		p.logger.Info("pool torn down", "pool", authority.Key())
	}
	p.logger.Debug("shares redeemed", "pool", authority.Key(), "amount", call.Amount, "teardown", quote.Teardown)
	return nil
}
