package crank

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/signalpool/internal/pool"
	"github.com/coldbell/signalpool/internal/serum"
)

var errNoFreeSlot = errors.New("no free asset slot")

// settlement is one SettleFunds call the crank intends to send.
type settlement struct {
	seed       pool.Seed
	pool       solana.PublicKey
	exchange   solana.PublicKey
	market     solana.PublicKey
	openOrders solana.PublicKey
	coinMint   solana.PublicKey
	pcMint     solana.PublicKey
	coinIndex  uint64
	pcIndex    uint64
	funds      serum.Funds
}

// poolPlan is what one pool needs this tick.
type poolPlan struct {
	key         solana.PublicKey
	exchange    solana.PublicKey
	status      pool.Status
	settlements []settlement
}

// resolveSlots picks the slot each leg settles into: the slot already holding the mint,
// otherwise the first empty slot not taken by the other leg.
func resolveSlots(slots pool.Slots, coin, pc solana.PublicKey) (coinIndex, pcIndex uint64, err error) {
	taken := -1
	pick := func(mint solana.PublicKey) (uint64, error) {
		if i, ok := slots.IndexOf(mint); ok {
			return uint64(i), nil
		}
		for i := range slots {
			if i != taken && slots.IsEmpty(i) {
				taken = i
				return uint64(i), nil
			}
		}
		return 0, fmt.Errorf("%w for %s", errNoFreeSlot, mint)
	}
	if coinIndex, err = pick(coin); err != nil {
		return 0, 0, err
	}
	if taken < 0 {
		taken = int(coinIndex)
	}
	if pcIndex, err = pick(pc); err != nil {
		return 0, 0, err
	}
	return coinIndex, pcIndex, nil
}

// planPool loads a pool and lists the open-orders records it should settle. Pools that
// do not exist, are not created, or have no pending trades yield an empty plan.
func (s *Service) planPool(ctx context.Context, seed pool.Seed, markets map[solana.PublicKey]*serum.Market) (*poolPlan, error) {
	key, err := pool.DerivePoolAddress(s.cfg.ProgramID, seed)
	if err != nil {
		return nil, fmt.Errorf("derive pool %s: %w", seed, err)
	}
	plan := &poolPlan{key: key}

	account, err := s.chain.GetAccount(ctx, key)
	if errors.Is(err, ErrAccountNotFound) {
		return plan, nil
	}
	if err != nil {
		return nil, err
	}
	if !account.Owner.Equals(s.cfg.ProgramID) {
		return nil, fmt.Errorf("pool %s is owned by %s, not %s", key, account.Owner, s.cfg.ProgramID)
	}
	state, err := pool.Unpack(account.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack pool %s: %w", key, err)
	}
	plan.status = state.Header.Status
	plan.exchange = state.Header.ExchangeProgram
	if !state.Header.Status.HasPending() {
		return plan, nil
	}

	layout := s.cfg.OpenOrdersLayout
	records, err := s.chain.GetOwnedAccounts(ctx, plan.exchange, key, layout.OwnerOffset, layout.Size)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return bytes.Compare(records[i].Key[:], records[j].Key[:]) < 0
	})

	for _, record := range records {
		if !record.Owner.Equals(plan.exchange) {
			continue
		}
		marketKey, err := layout.Market(record.Data)
		if err != nil {
			s.logger.Warn("failed to parse open orders", "open_orders", record.Key, "err", err)
			continue
		}
		if _, ok := state.MarketIndex(marketKey); !ok {
			s.logger.Debug("open orders on a market outside the whitelist", "pool", key, "open_orders", record.Key, "market", marketKey)
			continue
		}
		funds, err := layout.Funds(record.Data)
		if err != nil {
			s.logger.Warn("failed to parse open orders funds", "open_orders", record.Key, "err", err)
			continue
		}
		if funds.NothingFree() {
			continue
		}
		market, err := s.loadMarket(ctx, marketKey, plan.exchange, markets)
		if err != nil {
			s.logger.Warn("failed to load market", "market", marketKey, "err", err)
			continue
		}
		coinIndex, pcIndex, err := resolveSlots(state.Slots, market.CoinMint, market.PCMint)
		if err != nil {
			s.logger.Warn("open orders cannot settle into the pool", "pool", key, "open_orders", record.Key, "err", err)
			continue
		}
		plan.settlements = append(plan.settlements, settlement{
			seed:       seed,
			pool:       key,
			exchange:   plan.exchange,
			market:     marketKey,
			openOrders: record.Key,
			coinMint:   market.CoinMint,
			pcMint:     market.PCMint,
			coinIndex:  coinIndex,
			pcIndex:    pcIndex,
			funds:      funds,
		})
	}
	return plan, nil
}

func (s *Service) loadMarket(ctx context.Context, key, exchange solana.PublicKey, cache map[solana.PublicKey]*serum.Market) (*serum.Market, error) {
	if market, ok := cache[key]; ok {
		return market, nil
	}
	account, err := s.chain.GetAccount(ctx, key)
	if err != nil {
		return nil, err
	}
	if !account.Owner.Equals(exchange) {
		return nil, fmt.Errorf("market %s is owned by %s, not the exchange %s", key, account.Owner, exchange)
	}
	market, err := serum.DecodeMarket(account.Data)
	if err != nil {
		return nil, fmt.Errorf("decode market %s: %w", key, err)
	}
	cache[key] = market
	return market, nil
}
