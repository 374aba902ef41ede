package processor

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/signalpool/internal/accounting"
	"github.com/coldbell/signalpool/internal/exchange"
	"github.com/coldbell/signalpool/internal/instruction"
	"github.com/coldbell/signalpool/internal/ledger"
	"github.com/coldbell/signalpool/internal/pool"
	"github.com/coldbell/signalpool/internal/serum"
)

func (p *Processor) processCreateOrder(tx *ledger.Tx, accounts []*solana.AccountMeta, call *instruction.CreateOrder) error {
	if err := expectAccounts(accounts, 6); err != nil {
		return err
	}
	signal, marketMeta, ooMeta, poolMeta, sourceMeta, exchangeMeta := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4], accounts[5]

	authority, data, state, err := p.loadPool(tx, poolMeta.PublicKey, call.Seed)
	if err != nil {
		return err
	}
	if err := checkSignalProvider(state.Header, signal); err != nil {
		return err
	}
	if int(call.MarketIndex) >= len(state.Markets) || !state.Markets[call.MarketIndex].Equals(marketMeta.PublicKey) {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "market %s is not whitelist entry %d", marketMeta.PublicKey, call.MarketIndex)
	}
	trading, err := p.checkTrading(tx, state, authority.Key(), exchangeMeta.PublicKey, marketMeta.PublicKey, ooMeta.PublicKey)
	if err != nil {
		return err
	}
	market := trading.market

	sourceMint, targetMint := market.PCMint, market.CoinMint
	if call.Side == serum.Ask {
		sourceMint, targetMint = market.CoinMint, market.PCMint
	}
	if !state.Slots.InRange(call.SourceIndex) || state.Slots.IsEmpty(int(call.SourceIndex)) {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "source slot %d is empty or out of range", call.SourceIndex)
	}
	if !state.Slots[call.SourceIndex].Equals(sourceMint) {
		return errorsmod.Wrapf(pool.ErrInvalidArgument, "source slot %d holds %s, a %s order pays %s", call.SourceIndex, state.Slots[call.SourceIndex], call.Side, sourceMint)
	}
	if err := state.Slots.Bind(call.TargetIndex, targetMint); err != nil {
		return err
	}
	balance, err := poolAsset(tx, authority.Key(), sourceMeta.PublicKey, sourceMint)
	if err != nil {
		return err
	}

	amount := accounting.TradeAmount(balance, call.Ratio)
	lots, maxPC, err := market.Lots(call.Side, amount, call.LimitPrice)
	if err != nil {
		return errorsmod.Wrapf(pool.ErrInvalidAccountData, "market %s: %v", marketMeta.PublicKey, err)
	}
	if lots == 0 {
		return errorsmod.Wrapf(pool.ErrOverflow, "%d of %d at price %d is less than one lot", amount, balance, call.LimitPrice)
	}

	next, err := state.Header.Status.WithNewOrder()
	if err != nil {
		return err
	}
	state.Header.Status = next
	if err := state.PackInto(data); err != nil {
		return err
	}

	err = authority.Sign(tx, func() error {
		return trading.exchange.PlaceOrder(tx, exchange.PlaceOrder{
			Market:            marketMeta.PublicKey,
			OpenOrders:        ooMeta.PublicKey,
			Payer:             sourceMeta.PublicKey,
			Side:              call.Side,
			LimitPrice:        call.LimitPrice,
			MaxCoinQty:        lots,
			MaxNativePCQty:    maxPC,
			OrderType:         call.OrderType,
			ClientID:          call.ClientID,
			SelfTradeBehavior: call.SelfTradeBehavior,
		})
	})
	if err != nil {
		return err
	}
	p.logger.Debug("order placed",
		"pool", authority.Key(),
		"market", marketMeta.PublicKey,
		"side", call.Side.String(),
		"price", call.LimitPrice,
		"lots", lots,
		"status", next.String(),
	)
	return nil
}

func (p *Processor) processSettleFunds(tx *ledger.Tx, accounts []*solana.AccountMeta, call *instruction.SettleFunds) error {
	if err := expectAccounts(accounts, 6); err != nil {
		return err
	}
	marketMeta, ooMeta, poolMeta, coinMeta, pcMeta, exchangeMeta := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4], accounts[5]

	authority, data, state, err := p.loadPool(tx, poolMeta.PublicKey, call.Seed)
	if err != nil {
		return err
	}
	trading, err := p.checkTrading(tx, state, authority.Key(), exchangeMeta.PublicKey, marketMeta.PublicKey, ooMeta.PublicKey)
	if err != nil {
		return err
	}
	if trading.funds.NothingFree() {
		return errorsmod.Wrapf(pool.ErrOverflow, "open orders %s has nothing to settle", ooMeta.PublicKey)
	}
	market := trading.market
	if err := state.Slots.Bind(call.CoinIndex, market.CoinMint); err != nil {
		return err
	}
	if err := state.Slots.Bind(call.PCIndex, market.PCMint); err != nil {
		return err
	}
	if _, err := poolAsset(tx, authority.Key(), coinMeta.PublicKey, market.CoinMint); err != nil {
		return err
	}
	if _, err := poolAsset(tx, authority.Key(), pcMeta.PublicKey, market.PCMint); err != nil {
		return err
	}

	prev := state.Header.Status
	if trading.funds.FullySettled() && prev.HasPending() {
		state.Header.Status = prev.WithSettledOrder()
	}
	if err := state.PackInto(data); err != nil {
		return err
	}

	err = authority.Sign(tx, func() error {
		return trading.exchange.SettleFunds(tx, exchange.SettleFunds{
			Market:     marketMeta.PublicKey,
			OpenOrders: ooMeta.PublicKey,
			CoinWallet: coinMeta.PublicKey,
			PCWallet:   pcMeta.PublicKey,
		})
	})
	if err != nil {
		return err
	}
	p.logger.Debug("funds settled",
		"pool", authority.Key(),
		"open_orders", ooMeta.PublicKey,
		"coin_free", trading.funds.CoinFree,
		"pc_free", trading.funds.PCFree,
		"status", state.Header.Status.String(),
	)
	return nil
}

func (p *Processor) processCancelOrder(tx *ledger.Tx, accounts []*solana.AccountMeta, call *instruction.CancelOrder) error {
	if err := expectAccounts(accounts, 5); err != nil {
		return err
	}
	signal, marketMeta, ooMeta, poolMeta, exchangeMeta := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]

	authority, _, state, err := p.loadPool(tx, poolMeta.PublicKey, call.Seed)
	if err != nil {
		return err
	}
	if err := checkSignalProvider(state.Header, signal); err != nil {
		return err
	}
	trading, err := p.checkTrading(tx, state, authority.Key(), exchangeMeta.PublicKey, marketMeta.PublicKey, ooMeta.PublicKey)
	if err != nil {
		return err
	}
	return authority.Sign(tx, func() error {
		return trading.exchange.CancelOrder(tx, exchange.CancelOrder{
			Market:     marketMeta.PublicKey,
			OpenOrders: ooMeta.PublicKey,
			Side:       call.Side,
			OrderID:    call.OrderID,
		})
	})
}
