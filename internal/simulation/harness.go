// Package simulation wires a pool program and a simulated exchange into one in-process
// ledger and drives them with signed instructions, the same way clients do on a cluster.
package simulation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/signalpool/internal/exchange/sim"
	"github.com/coldbell/signalpool/internal/instruction"
	"github.com/coldbell/signalpool/internal/ledger"
	"github.com/coldbell/signalpool/internal/pool"
	"github.com/coldbell/signalpool/internal/processor"
	"github.com/coldbell/signalpool/internal/serum"
)

type Params struct {
	CoinLotSize uint64
	PCLotSize   uint64
	MaxAssets   uint32
	Decimals    uint8
}

func DefaultParams() Params {
	return Params{CoinLotSize: 100, PCLotSize: 10, MaxAssets: 4, Decimals: 6}
}

// Harness is an initialized pool whitelisting one asset/reference market. Slot 0 is the
// reference mint (the market's pc leg) and slot 1 the asset (its coin leg) once Create
// has run.
type Harness struct {
	Ctx            context.Context
	Ledger         *ledger.Ledger
	ProgramID      solana.PublicKey
	Exchange       *sim.Exchange
	Seed           pool.Seed
	Pool           solana.PublicKey
	ShareMint      solana.PublicKey
	Reference      solana.PublicKey
	Asset          solana.PublicKey
	Market         solana.PublicKey
	OpenOrders     solana.PublicKey
	SignalProvider solana.PublicKey
	Payer          solana.PublicKey
	Taker          *User

	mintAuthority solana.PublicKey
}

type User struct {
	Owner  solana.PublicKey
	Shares solana.PublicKey
	Tokens map[solana.PublicKey]solana.PublicKey
}

func New(ctx context.Context, logger *slog.Logger, params Params) (*Harness, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	programID := solana.NewWallet().PublicKey()
	seed, err := pool.FindSeed(programID)
	if err != nil {
		return nil, err
	}
	poolKey, err := pool.DerivePoolAddress(programID, seed)
	if err != nil {
		return nil, err
	}
	shareMint, err := pool.DeriveMintAddress(programID, seed)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		Ctx:            ctx,
		Ledger:         ledger.New(logger.With("component", "ledger")),
		ProgramID:      programID,
		Exchange:       sim.New(solana.NewWallet().PublicKey(), logger.With("component", "exchange")),
		Seed:           seed,
		Pool:           poolKey,
		ShareMint:      shareMint,
		Reference:      solana.NewWallet().PublicKey(),
		Asset:          solana.NewWallet().PublicKey(),
		SignalProvider: solana.NewWallet().PublicKey(),
		Payer:          solana.NewWallet().PublicKey(),
		mintAuthority:  solana.NewWallet().PublicKey(),
	}
	opts := processor.DefaultOptions()
	opts.ReferenceMint = h.Reference
	opts.ShareDecimals = params.Decimals
	h.Ledger.Register(programID, processor.New(programID, opts, logger.With("component", "pool"), h.Exchange))

	err = h.Ledger.Update(ctx, []solana.PublicKey{h.Reference, h.Asset}, func(tx *ledger.Tx) error {
		if err := tx.CreateMint(h.Reference, h.mintAuthority, params.Decimals); err != nil {
			return err
		}
		return tx.CreateMint(h.Asset, h.mintAuthority, params.Decimals)
	})
	if err != nil {
		return nil, fmt.Errorf("create mints: %w", err)
	}

	h.Market, err = h.Exchange.CreateMarket(ctx, h.Ledger, h.Payer, sim.MarketParams{
		CoinMint:    h.Asset,
		PCMint:      h.Reference,
		CoinLotSize: params.CoinLotSize,
		PCLotSize:   params.PCLotSize,
	})
	if err != nil {
		return nil, err
	}
	h.OpenOrders, err = h.Exchange.CreateOpenOrders(ctx, h.Ledger, h.Payer, h.Market, poolKey)
	if err != nil {
		return nil, err
	}

	initIx, err := instruction.NewInit(programID, instruction.Init{Seed: seed, MaxAssets: params.MaxAssets, NumberOfMarkets: 1}, h.Payer)
	if err != nil {
		return nil, err
	}
	if err := h.Ledger.Submit(ctx, []solana.PublicKey{h.Payer}, initIx); err != nil {
		return nil, fmt.Errorf("init pool: %w", err)
	}
	err = h.Ledger.Update(ctx, nil, func(tx *ledger.Tx) error {
		for _, mint := range []solana.PublicKey{h.Reference, h.Asset} {
			if _, err := tx.CreateAssociatedTokenAccount(poolKey, mint); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create pool assets: %w", err)
	}

	h.Taker, err = h.NewUser(map[solana.PublicKey]uint64{h.Reference: 1 << 40, h.Asset: 1 << 40})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// NewUser opens share and asset accounts for a fresh owner and funds them.
func (h *Harness) NewUser(balances map[solana.PublicKey]uint64) (*User, error) {
	u := &User{Owner: solana.NewWallet().PublicKey(), Tokens: make(map[solana.PublicKey]solana.PublicKey)}
	err := h.Ledger.Update(h.Ctx, []solana.PublicKey{h.mintAuthority}, func(tx *ledger.Tx) error {
		var err error
		if u.Shares, err = tx.CreateAssociatedTokenAccount(u.Owner, h.ShareMint); err != nil {
			return err
		}
		for _, mint := range []solana.PublicKey{h.Reference, h.Asset} {
			account, err := tx.CreateAssociatedTokenAccount(u.Owner, mint)
			if err != nil {
				return err
			}
			u.Tokens[mint] = account
			if err := tx.MintTo(mint, account, balances[mint]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fund user: %w", err)
	}
	return u, nil
}

func (u *User) transfer(mints []solana.PublicKey) instruction.Transfer {
	accounts := make([]solana.PublicKey, len(mints))
	for i, mint := range mints {
		accounts[i] = u.Tokens[mint]
	}
	return instruction.Transfer{Owner: u.Owner, ShareAccount: u.Shares, Mints: mints, Accounts: accounts}
}

func (h *Harness) submit(ix solana.Instruction, signers ...solana.PublicKey) error {
	return h.Ledger.Submit(h.Ctx, signers, ix)
}

// Create seeds the pool with reference and asset deposits, in that slot order.
func (h *Harness) Create(u *User, referenceAmount, assetAmount uint64) error {
	ix, err := instruction.NewCreate(h.ProgramID, instruction.Create{
		Seed:                h.Seed,
		ExchangeProgram:     h.Exchange.ProgramID(),
		SignalProvider:      h.SignalProvider,
		FeeCollectionPeriod: 86_400,
		Markets:             []solana.PublicKey{h.Market},
		DepositAmounts:      []uint64{referenceAmount, assetAmount},
	}, u.transfer([]solana.PublicKey{h.Reference, h.Asset}))
	if err != nil {
		return err
	}
	return h.submit(ix, u.Owner)
}

func (h *Harness) slotMints() ([]solana.PublicKey, error) {
	state, err := h.State()
	if err != nil {
		return nil, err
	}
	var mints []solana.PublicKey
	for _, i := range state.Slots.NonEmpty() {
		mints = append(mints, state.Slots[i])
	}
	return mints, nil
}

func (h *Harness) Deposit(u *User, shares uint64) error {
	mints, err := h.slotMints()
	if err != nil {
		return err
	}
	ix, err := instruction.NewDeposit(h.ProgramID, instruction.Deposit{Seed: h.Seed, Amount: shares}, u.transfer(mints))
	if err != nil {
		return err
	}
	return h.submit(ix, u.Owner)
}

func (h *Harness) Redeem(u *User, shares uint64) error {
	mints, err := h.slotMints()
	if err != nil {
		return err
	}
	ix, err := instruction.NewRedeem(h.ProgramID, instruction.Redeem{Seed: h.Seed, Amount: shares}, u.transfer(mints))
	if err != nil {
		return err
	}
	return h.submit(ix, u.Owner)
}

func (h *Harness) trade() instruction.Trade {
	return instruction.Trade{ExchangeProgram: h.Exchange.ProgramID(), Market: h.Market, OpenOrders: h.OpenOrders}
}

// PlaceOrder trades ratio/65536 of the source asset: the asset on asks, the reference
// mint on bids.
func (h *Harness) PlaceOrder(side serum.Side, limitPrice uint64, ratio uint16) error {
	source, target, sourceMint := uint64(1), uint64(0), h.Asset
	if side == serum.Bid {
		source, target, sourceMint = 0, 1, h.Reference
	}
	ix, err := instruction.NewCreateOrder(h.ProgramID, instruction.CreateOrder{
		Seed:              h.Seed,
		Side:              side,
		LimitPrice:        limitPrice,
		Ratio:             ratio,
		OrderType:         serum.Limit,
		SourceIndex:       source,
		TargetIndex:       target,
		SelfTradeBehavior: serum.DecrementTake,
	}, h.SignalProvider, h.trade(), sourceMint)
	if err != nil {
		return err
	}
	return h.submit(ix, h.SignalProvider)
}

func (h *Harness) Orders(side serum.Side) ([]sim.Order, error) {
	return h.Exchange.Orders(h.Ledger, h.Market, h.OpenOrders, side)
}

// Fill trades lots of a resting pool order against the taker.
func (h *Harness) Fill(side serum.Side, order sim.Order, lots uint64) error {
	return h.Exchange.Fill(h.Ctx, h.Ledger, sim.Fill{
		Market:     h.Market,
		OrderID:    order.ID,
		Side:       side,
		Lots:       lots,
		Taker:      h.Taker.Owner,
		TakerCoin:  h.Taker.Tokens[h.Asset],
		TakerPC:    h.Taker.Tokens[h.Reference],
		OpenOrders: h.OpenOrders,
	})
}

// Settle is the permissionless SettleFunds call; anyone may send it.
func (h *Harness) Settle() error {
	ix, err := instruction.NewSettleFunds(h.ProgramID, instruction.SettleFunds{Seed: h.Seed, PCIndex: 0, CoinIndex: 1}, h.trade(), h.Asset, h.Reference)
	if err != nil {
		return err
	}
	return h.submit(ix)
}

func (h *Harness) Cancel(side serum.Side, order sim.Order) error {
	ix, err := instruction.NewCancelOrder(h.ProgramID, instruction.CancelOrder{Seed: h.Seed, Side: side, OrderID: order.ID}, h.SignalProvider, h.trade())
	if err != nil {
		return err
	}
	return h.submit(ix, h.SignalProvider)
}

// State unpacks the committed pool account. A torn-down pool unpacks as Uninitialized.
func (h *Harness) State() (*pool.State, error) {
	return pool.Unpack(h.Ledger.Snapshot()[h.Pool])
}

func (h *Harness) Supply() (uint64, error) {
	var supply uint64
	err := h.Ledger.View(func(tx *ledger.Tx) error {
		var err error
		supply, err = tx.Supply(h.ShareMint)
		return err
	})
	return supply, err
}

func (h *Harness) Balance(account solana.PublicKey) uint64 {
	return h.Ledger.Balances()[account].Amount
}

// PoolBalance is the pool's holding of mint.
func (h *Harness) PoolBalance(mint solana.PublicKey) (uint64, error) {
	key, err := pool.DeriveAssetAddress(h.Pool, mint)
	if err != nil {
		return 0, err
	}
	return h.Balance(key), nil
}
