// Package sim is an in-memory order-book exchange speaking the Serum v3 account layouts.
// It books resting orders, cancels and settles them, and applies fills on request; it
// never matches orders against each other.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/coldbell/signalpool/internal/exchange"
	"github.com/coldbell/signalpool/internal/ledger"
	"github.com/coldbell/signalpool/internal/serum"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrBookFull      = errors.New("order book is full")
	ErrNoFreeSlot    = errors.New("open orders has no free slot")
	ErrWrongMarket   = errors.New("open orders belongs to another market")
	ErrNotAuthorized = errors.New("open orders owner did not sign")
	ErrWrongMint     = errors.New("token account has the wrong mint")
	ErrZeroQuantity  = errors.New("order quantity is zero")
)

type Exchange struct {
	programID solana.PublicKey
	logger    *slog.Logger
}

var _ exchange.Exchange = (*Exchange)(nil)

func New(programID solana.PublicKey, logger *slog.Logger) *Exchange {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exchange{programID: programID, logger: logger}
}

func (e *Exchange) ProgramID() solana.PublicKey { return e.programID }

// session is one exchange call's view of a market and an open-orders record.
type session struct {
	tx         *ledger.Tx
	programID  solana.PublicKey
	marketKey  solana.PublicKey
	market     *serum.Market
	ooKey      solana.PublicKey
	openOrders *serum.OpenOrders
}

func (e *Exchange) open(tx *ledger.Tx, marketKey, ooKey solana.PublicKey, requireOwner bool) (*session, error) {
	marketData, err := tx.Data(marketKey)
	if err != nil {
		return nil, fmt.Errorf("load market: %w", err)
	}
	market, err := serum.DecodeMarket(marketData)
	if err != nil {
		return nil, err
	}
	ooData, err := tx.Data(ooKey)
	if err != nil {
		return nil, fmt.Errorf("load open orders: %w", err)
	}
	oo, err := serum.DecodeOpenOrders(ooData)
	if err != nil {
		return nil, err
	}
	if !oo.Market.Equals(marketKey) {
		return nil, fmt.Errorf("%w: %s", ErrWrongMarket, oo.Market)
	}
	if requireOwner && !tx.IsSigner(oo.Owner) {
		return nil, fmt.Errorf("%w: %s", ErrNotAuthorized, oo.Owner)
	}
	return &session{tx: tx, programID: e.programID, marketKey: marketKey, market: market, ooKey: ooKey, openOrders: oo}, nil
}

func (s *session) bookKey(side serum.Side) solana.PublicKey {
	if side == serum.Bid {
		return s.market.Bids
	}
	return s.market.Asks
}

func (s *session) loadBook(side serum.Side) (*book, error) {
	data, err := s.tx.Data(s.bookKey(side))
	if err != nil {
		return nil, fmt.Errorf("load %s book: %w", side, err)
	}
	return decodeBook(data)
}

func (s *session) storeBook(side serum.Side, b *book) error {
	data, err := s.tx.Data(s.bookKey(side))
	if err != nil {
		return err
	}
	return b.encode(data)
}

func (s *session) storeOpenOrders() error {
	data, err := s.tx.Data(s.ooKey)
	if err != nil {
		return err
	}
	return s.openOrders.Encode(data)
}

// fromVault pays out of a market vault under the vault signer's authority.
func (s *session) fromVault(vault, to solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return s.tx.InvokeSigned(s.market.VaultSignerSeeds(), func() error {
		return s.tx.Transfer(vault, to, amount)
	})
}

func (s *session) checkMint(account, mint solana.PublicKey) error {
	token, err := s.tx.TokenAccount(account)
	if err != nil {
		return err
	}
	if !token.Mint.Equals(mint) {
		return fmt.Errorf("%w: %s holds %s, want %s", ErrWrongMint, account, token.Mint, mint)
	}
	return nil
}

func (e *Exchange) PlaceOrder(tx *ledger.Tx, req exchange.PlaceOrder) error {
	return tx.Invoke(e.programID, func() error {
		s, err := e.open(tx, req.Market, req.OpenOrders, true)
		if err != nil {
			return err
		}
		if req.MaxCoinQty == 0 {
			return ErrZeroQuantity
		}
		var lock uint64
		var lockMint, vault solana.PublicKey
		if req.Side == serum.Bid {
			lock, lockMint, vault = req.MaxNativePCQty, s.market.PCMint, s.market.PCVault
		} else {
			lock, lockMint, vault = req.MaxCoinQty*s.market.CoinLotSize, s.market.CoinMint, s.market.CoinVault
		}
		if err := s.checkMint(req.Payer, lockMint); err != nil {
			return err
		}
		if err := tx.Transfer(req.Payer, vault, lock); err != nil {
			return fmt.Errorf("lock order funds: %w", err)
		}
		if req.Side == serum.Bid {
			s.openOrders.Funds.PCTotal += lock
		} else {
			s.openOrders.Funds.CoinTotal += lock
		}

		slot, ok := s.openOrders.AcquireSlot()
		if !ok {
			return ErrNoFreeSlot
		}
		b, err := s.loadBook(req.Side)
		if err != nil {
			return err
		}
		id := b.nextID(req.Side, req.LimitPrice)
		b.Orders = append(b.Orders, restingOrder{
			OrderIDLo:  id.Lo,
			OrderIDHi:  id.Hi,
			OpenOrders: req.OpenOrders,
			Side:       uint8(req.Side),
			LimitPrice: req.LimitPrice,
			Lots:       req.MaxCoinQty,
			ClientID:   req.ClientID,
		})
		s.openOrders.SetOrder(slot, req.Side, id, req.ClientID)
		if err := s.storeBook(req.Side, b); err != nil {
			return err
		}
		e.logger.Debug("order placed",
			"market", req.Market,
			"side", req.Side,
			"price", req.LimitPrice,
			"lots", req.MaxCoinQty,
			"order_id", id.String(),
		)
		return s.storeOpenOrders()
	})
}

func (e *Exchange) CancelOrder(tx *ledger.Tx, req exchange.CancelOrder) error {
	return tx.Invoke(e.programID, func() error {
		s, err := e.open(tx, req.Market, req.OpenOrders, true)
		if err != nil {
			return err
		}
		slot, ok := s.openOrders.SlotOf(req.OrderID)
		if !ok || s.openOrders.SideOf(slot) != req.Side {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, req.OrderID)
		}
		b, err := s.loadBook(req.Side)
		if err != nil {
			return err
		}
		idx, ok := b.find(req.OrderID)
		if !ok {
			return fmt.Errorf("%w: %s not on the book", ErrOrderNotFound, req.OrderID)
		}
		order := b.Orders[idx]
		b.remove(idx)
		s.openOrders.ReleaseSlot(slot)
		s.unlock(order)
		if err := s.storeBook(req.Side, b); err != nil {
			return err
		}
		return s.storeOpenOrders()
	})
}

// unlock frees what a resting order still had locked.
func (s *session) unlock(order restingOrder) {
	if serum.Side(order.Side) == serum.Bid {
		s.openOrders.Funds.PCFree += order.Lots * order.LimitPrice * s.market.PCLotSize
	} else {
		s.openOrders.Funds.CoinFree += order.Lots * s.market.CoinLotSize
	}
}

func (e *Exchange) SettleFunds(tx *ledger.Tx, req exchange.SettleFunds) error {
	return tx.Invoke(e.programID, func() error {
		s, err := e.open(tx, req.Market, req.OpenOrders, true)
		if err != nil {
			return err
		}
		funds := &s.openOrders.Funds
		if err := s.checkMint(req.CoinWallet, s.market.CoinMint); err != nil {
			return err
		}
		if err := s.checkMint(req.PCWallet, s.market.PCMint); err != nil {
			return err
		}
		if err := s.fromVault(s.market.CoinVault, req.CoinWallet, funds.CoinFree); err != nil {
			return fmt.Errorf("settle coin: %w", err)
		}
		if err := s.fromVault(s.market.PCVault, req.PCWallet, funds.PCFree); err != nil {
			return fmt.Errorf("settle pc: %w", err)
		}
		funds.CoinTotal -= funds.CoinFree
		funds.PCTotal -= funds.PCFree
		funds.CoinFree, funds.PCFree = 0, 0
		return s.storeOpenOrders()
	})
}

// Fill trades lots of a resting order against a taker at the order's limit price. The
// taker's token accounts pay into and receive from the market vaults.
type Fill struct {
	Market     solana.PublicKey
	OrderID    uint128.Uint128
	Side       serum.Side
	Lots       uint64
	Taker      solana.PublicKey
	TakerCoin  solana.PublicKey
	TakerPC    solana.PublicKey
	OpenOrders solana.PublicKey
}

func (e *Exchange) Fill(ctx context.Context, l *ledger.Ledger, fill Fill) error {
	return l.Update(ctx, []solana.PublicKey{fill.Taker}, func(tx *ledger.Tx) error {
		return tx.Invoke(e.programID, func() error {
			return e.fill(tx, fill)
		})
	})
}

func (e *Exchange) fill(tx *ledger.Tx, fill Fill) error {
	s, err := e.open(tx, fill.Market, fill.OpenOrders, false)
	if err != nil {
		return err
	}
	b, err := s.loadBook(fill.Side)
	if err != nil {
		return err
	}
	idx, ok := b.find(fill.OrderID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, fill.OrderID)
	}
	order := &b.Orders[idx]
	if fill.Lots == 0 || fill.Lots > order.Lots {
		return fmt.Errorf("fill of %d lots against %d resting", fill.Lots, order.Lots)
	}
	coins := fill.Lots * s.market.CoinLotSize
	pc := fill.Lots * order.LimitPrice * s.market.PCLotSize
	funds := &s.openOrders.Funds

	if fill.Side == serum.Bid {
		// The taker sells coin into the resting bid.
		if err := tx.Transfer(fill.TakerCoin, s.market.CoinVault, coins); err != nil {
			return err
		}
		if err := s.fromVault(s.market.PCVault, fill.TakerPC, pc); err != nil {
			return err
		}
		funds.PCTotal -= pc
		funds.CoinFree += coins
		funds.CoinTotal += coins
	} else {
		if err := tx.Transfer(fill.TakerPC, s.market.PCVault, pc); err != nil {
			return err
		}
		if err := s.fromVault(s.market.CoinVault, fill.TakerCoin, coins); err != nil {
			return err
		}
		funds.CoinTotal -= coins
		funds.PCFree += pc
		funds.PCTotal += pc
	}

	order.Lots -= fill.Lots
	if order.Lots == 0 {
		if slot, ok := s.openOrders.SlotOf(fill.OrderID); ok {
			s.openOrders.ReleaseSlot(slot)
		}
		b.remove(idx)
	}
	if err := s.storeBook(fill.Side, b); err != nil {
		return err
	}
	e.logger.Debug("order filled", "market", fill.Market, "order_id", fill.OrderID.String(), "lots", fill.Lots)
	return s.storeOpenOrders()
}

// Order is a resting order as seen from outside the book.
type Order struct {
	ID         uint128.Uint128
	LimitPrice uint64
	Lots       uint64
}

// Orders lists the resting orders of an open-orders account on one side of a market.
func (e *Exchange) Orders(l *ledger.Ledger, market, openOrders solana.PublicKey, side serum.Side) ([]Order, error) {
	var out []Order
	err := l.View(func(tx *ledger.Tx) error {
		return tx.Invoke(e.programID, func() error {
			s, err := e.open(tx, market, openOrders, false)
			if err != nil {
				return err
			}
			b, err := s.loadBook(side)
			if err != nil {
				return err
			}
			for _, order := range b.Orders {
				if order.OpenOrders.Equals(openOrders) {
					out = append(out, Order{ID: order.ID(), LimitPrice: order.LimitPrice, Lots: order.Lots})
				}
			}
			return nil
		})
	})
	return out, err
}
