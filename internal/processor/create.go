package processor

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/signalpool/internal/accounting"
	"github.com/coldbell/signalpool/internal/instruction"
	"github.com/coldbell/signalpool/internal/ledger"
	"github.com/coldbell/signalpool/internal/pool"
)

// processInit allocates the pool account and its share mint. The header is left
// Uninitialized apart from the market count Create has to match.
func (p *Processor) processInit(tx *ledger.Tx, accounts []*solana.AccountMeta, call *instruction.Init) error {
	if err := expectAccounts(accounts, 3); err != nil {
		return err
	}
	poolMeta, mintMeta, payer := accounts[0], accounts[1], accounts[2]
	if call.MaxAssets == 0 {
		return errorsmod.Wrap(pool.ErrInvalidArgument, "max_assets must be at least 1")
	}
	authority, err := pool.CheckPoolKey(p.programID, poolMeta.PublicKey, call.Seed)
	if err != nil {
		return err
	}
	if err := pool.CheckMintKey(p.programID, mintMeta.PublicKey, call.Seed); err != nil {
		return err
	}
	if err := requireSigner(payer, "payer"); err != nil {
		return err
	}
	if tx.Exists(authority.Key()) {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "pool account %s already exists", authority.Key())
	}

	size := pool.AccountSize(call.NumberOfMarkets, call.MaxAssets)
	err = authority.Sign(tx, func() error {
		if err := tx.CreateAccount(payer.PublicKey, authority.Key(), size, p.programID); err != nil {
			return err
		}
		seed := call.Seed
		return tx.InvokeSigned([][]byte{seed[:], {1}}, func() error {
			return tx.CreateMint(mintMeta.PublicKey, authority.Key(), p.opts.ShareDecimals)
		})
	})
	if err != nil {
		return err
	}
	data, err := tx.Data(authority.Key())
	if err != nil {
		return err
	}
	pool.Header{MarketCount: call.NumberOfMarkets}.PackInto(data)

	p.logger.Info("pool initialized",
		"pool", authority.Key(),
		"mint", mintMeta.PublicKey,
		"max_assets", call.MaxAssets,
		"number_of_markets", call.NumberOfMarkets,
	)
	return nil
}

// processCreate takes the first deposit, fixes the header and issues the initial shares.
func (p *Processor) processCreate(tx *ledger.Tx, accounts []*solana.AccountMeta, call *instruction.Create) error {
	n := len(call.DepositAmounts)
	if err := expectAccounts(accounts, 4+2*n); err != nil {
		return err
	}
	poolMeta, mintMeta, target, owner := accounts[0], accounts[1], accounts[2], accounts[3]
	poolAssets, sources := accounts[4:4+n], accounts[4+n:]

	authority, err := pool.CheckPoolKey(p.programID, poolMeta.PublicKey, call.Seed)
	if err != nil {
		return err
	}
	if err := pool.CheckMintKey(p.programID, mintMeta.PublicKey, call.Seed); err != nil {
		return err
	}
	data, err := p.poolData(tx, authority.Key())
	if err != nil {
		return err
	}
	current, err := pool.UnpackHeader(data)
	if err != nil {
		return err
	}
	if current.Status.IsInitialized() {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "pool is already created (%s)", current.Status)
	}
	// A torn-down pool has a zero market count; its whitelist size is then bounded only
	// by the account length.
	if current.MarketCount != 0 && int(current.MarketCount) != len(call.Markets) {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "pool was sized for %d markets, got %d", current.MarketCount, len(call.Markets))
	}
	supply, err := tx.Supply(mintMeta.PublicKey)
	if err != nil {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "share mint: %v", err)
	}
	if supply != 0 {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "share mint already has %d outstanding", supply)
	}
	if call.FeeCollectionPeriod == 0 {
		return errorsmod.Wrap(pool.ErrInvalidArgument, "fee collection period must be positive")
	}
	if err := requireSigner(owner, "source owner"); err != nil {
		return err
	}

	state, err := pool.NewState(len(data), pool.Header{
		ExchangeProgram: call.ExchangeProgram,
		SignalProvider:  call.SignalProvider,
		Status:          pool.Unlocked,
	}, call.Markets)
	if err != nil {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "whitelist of %d markets does not fit: %v", len(call.Markets), err)
	}
	if n > len(state.Slots) {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "%d deposits for %d asset slots", n, len(state.Slots))
	}

	mints := make([]solana.PublicKey, n)
	for i, source := range sources {
		token, err := tokenAccount(tx, source.PublicKey)
		if err != nil {
			return err
		}
		if _, dup := state.Slots.IndexOf(token.Mint); dup {
			return errorsmod.Wrapf(pool.ErrInvalidArgument, "mint %s deposited twice", token.Mint)
		}
		if _, err := poolAsset(tx, authority.Key(), poolAssets[i].PublicKey, token.Mint); err != nil {
			return err
		}
		mints[i] = token.Mint
		state.Slots[i] = token.Mint
	}
	if err := accounting.CheckCreate(mints, call.DepositAmounts, p.opts.ReferenceMint, p.opts.MinReferenceDeposit); err != nil {
		return err
	}

	for i, amount := range call.DepositAmounts {
		if err := tx.Transfer(sources[i].PublicKey, poolAssets[i].PublicKey, amount); err != nil {
			return err
		}
	}
	if err := state.PackInto(data); err != nil {
		return err
	}
	err = authority.Sign(tx, func() error {
		return tx.MintTo(mintMeta.PublicKey, target.PublicKey, accounting.InitialShares)
	})
	if err != nil {
		return err
	}

	p.logger.Info("pool created",
		"pool", authority.Key(),
		"exchange_program", call.ExchangeProgram,
		"signal_provider", call.SignalProvider,
		"markets", len(call.Markets),
		"assets", n,
		"fee_collection_period", call.FeeCollectionPeriod,
		"fee_ratio", call.FeeRatio,
	)
	return nil
}
