package processor

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/signalpool/internal/exchange"
	"github.com/coldbell/signalpool/internal/ledger"
	"github.com/coldbell/signalpool/internal/pool"
	"github.com/coldbell/signalpool/internal/serum"
)

func expectAccounts(accounts []*solana.AccountMeta, n int) error {
	if len(accounts) != n {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "expected %d accounts, got %d", n, len(accounts))
	}
	return nil
}

func requireSigner(meta *solana.AccountMeta, what string) error {
	if !meta.IsSigner {
		return errorsmod.Wrapf(pool.ErrMissingRequiredSignature, "%s %s must sign", what, meta.PublicKey)
	}
	return nil
}

// poolData returns the writable pool account data after checking it is owned by this
// program.
func (p *Processor) poolData(tx *ledger.Tx, key solana.PublicKey) ([]byte, error) {
	acc, err := tx.Account(key)
	if err != nil {
		return nil, errorsmod.Wrapf(pool.ErrInvalidArgument, "pool account %s does not exist", key)
	}
	if !acc.Owner.Equals(p.programID) {
		return nil, errorsmod.Wrapf(pool.ErrInvalidArgument, "pool account %s is owned by %s", key, acc.Owner)
	}
	return tx.Data(key)
}

// loadPool checks the pool address against the seed and unpacks a created pool.
func (p *Processor) loadPool(tx *ledger.Tx, key solana.PublicKey, seed pool.Seed) (pool.Authority, []byte, *pool.State, error) {
	authority, err := pool.CheckPoolKey(p.programID, key, seed)
	if err != nil {
		return pool.Authority{}, nil, nil, err
	}
	data, err := p.poolData(tx, key)
	if err != nil {
		return pool.Authority{}, nil, nil, err
	}
	state, err := pool.UnpackInitialized(data)
	if err != nil {
		return pool.Authority{}, nil, nil, err
	}
	return authority, data, state, nil
}

func tokenAccount(tx *ledger.Tx, key solana.PublicKey) (ledger.TokenAccount, error) {
	token, err := tx.TokenAccount(key)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return ledger.TokenAccount{}, errorsmod.Wrapf(pool.ErrInvalidArgument, "token account %s does not exist", key)
	}
	return token, err
}

// poolAsset checks that key is the pool's associated account for mint and returns its
// live balance.
func poolAsset(tx *ledger.Tx, poolKey, key, mint solana.PublicKey) (uint64, error) {
	expected, err := pool.DeriveAssetAddress(poolKey, mint)
	if err != nil {
		return 0, errorsmod.Wrapf(pool.ErrInvalidArgument, "derive pool asset for %s: %v", mint, err)
	}
	if !expected.Equals(key) {
		return 0, errorsmod.Wrapf(pool.ErrInvalidArgument, "pool asset %s is not the pool account for %s (expected %s)", key, mint, expected)
	}
	token, err := tokenAccount(tx, key)
	if err != nil {
		return 0, err
	}
	if !token.Mint.Equals(mint) || !token.Owner.Equals(poolKey) {
		return 0, errorsmod.Wrapf(pool.ErrInvalidArgument, "pool asset %s holds %s for %s", key, token.Mint, token.Owner)
	}
	return token.Amount, nil
}

func checkSignalProvider(header pool.Header, meta *solana.AccountMeta) error {
	if !header.SignalProvider.Equals(meta.PublicKey) {
		return errorsmod.Wrapf(pool.ErrMissingRequiredSignature, "%s is not the signal provider", meta.PublicKey)
	}
	return requireSigner(meta, "signal provider")
}

// tradingContext is everything an order call needs once the exchange-side accounts
// have been validated against the pool.
type tradingContext struct {
	exchange   exchange.Exchange
	market     *serum.Market
	marketKey  solana.PublicKey
	openOrders solana.PublicKey
	funds      serum.Funds
}

func (p *Processor) checkTrading(tx *ledger.Tx, state *pool.State, poolKey, exchangeKey, marketKey, ooKey solana.PublicKey) (*tradingContext, error) {
	if !state.Header.ExchangeProgram.Equals(exchangeKey) {
		return nil, errorsmod.Wrapf(pool.ErrInvalidArgument, "exchange program %s is not the pool's %s", exchangeKey, state.Header.ExchangeProgram)
	}
	ex, ok := p.exchanges[exchangeKey]
	if !ok {
		return nil, errorsmod.Wrapf(pool.ErrInvalidArgument, "exchange program %s is not available", exchangeKey)
	}
	if _, ok := state.MarketIndex(marketKey); !ok {
		return nil, errorsmod.Wrapf(pool.ErrInvalidArgument, "market %s is not whitelisted", marketKey)
	}

	marketAcc, err := tx.Account(marketKey)
	if err != nil {
		return nil, errorsmod.Wrapf(pool.ErrInvalidArgument, "market %s does not exist", marketKey)
	}
	if !marketAcc.Owner.Equals(exchangeKey) {
		return nil, errorsmod.Wrapf(pool.ErrInvalidArgument, "market %s is owned by %s", marketKey, marketAcc.Owner)
	}
	market, err := serum.DecodeMarket(marketAcc.Data)
	if err != nil {
		return nil, errorsmod.Wrapf(pool.ErrInvalidAccountData, "market %s: %v", marketKey, err)
	}

	ooAcc, err := tx.Account(ooKey)
	if err != nil {
		return nil, errorsmod.Wrapf(pool.ErrInvalidArgument, "open orders %s does not exist", ooKey)
	}
	if !ooAcc.Owner.Equals(exchangeKey) {
		return nil, errorsmod.Wrapf(pool.ErrInvalidArgument, "open orders %s is owned by %s", ooKey, ooAcc.Owner)
	}
	layout := p.opts.OpenOrdersLayout
	owner, err := layout.Owner(ooAcc.Data)
	if err != nil {
		return nil, errorsmod.Wrapf(pool.ErrInvalidAccountData, "open orders %s: %v", ooKey, err)
	}
	if !owner.Equals(poolKey) {
		return nil, errorsmod.Wrapf(pool.ErrInvalidArgument, "open orders %s belongs to %s, not the pool", ooKey, owner)
	}
	ooMarket, err := layout.Market(ooAcc.Data)
	if err != nil {
		return nil, errorsmod.Wrapf(pool.ErrInvalidAccountData, "open orders %s: %v", ooKey, err)
	}
	if !ooMarket.Equals(marketKey) {
		return nil, errorsmod.Wrapf(pool.ErrInvalidArgument, "open orders %s is for market %s", ooKey, ooMarket)
	}
	funds, err := layout.Funds(ooAcc.Data)
	if err != nil {
		return nil, errorsmod.Wrapf(pool.ErrInvalidAccountData, "open orders %s: %v", ooKey, err)
	}
	return &tradingContext{
		exchange:   ex,
		market:     market,
		marketKey:  marketKey,
		openOrders: ooKey,
		funds:      funds,
	}, nil
}
