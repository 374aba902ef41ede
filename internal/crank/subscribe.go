package crank

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/coldbell/signalpool/internal/serum"
)

// Watcher signals when an open-orders record owned by a watched pool changes, so the
// crank can settle fills before the next poll.
type Watcher interface {
	Watch(ctx context.Context, exchange, owner solana.PublicKey) error
	C() <-chan struct{}
	Close() error
}

type watchKey struct {
	exchange solana.PublicKey
	owner    solana.PublicKey
}

type wsWatcher struct {
	client     *ws.Client
	commitment rpc.CommitmentType
	layout     serum.OpenOrdersLayout
	logger     *slog.Logger
	wake       chan struct{}

	mu       sync.Mutex
	watching map[watchKey]bool
}

func newWSWatcher(ctx context.Context, url string, commitment rpc.CommitmentType, layout serum.OpenOrdersLayout, logger *slog.Logger) (*wsWatcher, error) {
	client, err := ws.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to establish WebSocket connection: %w", err)
	}
	return &wsWatcher{
		client:     client,
		commitment: commitment,
		layout:     layout,
		logger:     logger,
		wake:       make(chan struct{}, 1),
		watching:   make(map[watchKey]bool),
	}, nil
}

func (w *wsWatcher) C() <-chan struct{} { return w.wake }

// Watch subscribes to the exchange's open-orders accounts owned by owner. Repeated calls
// for the same pair are no-ops while the subscription is alive.
func (w *wsWatcher) Watch(ctx context.Context, exchange, owner solana.PublicKey) error {
	key := watchKey{exchange: exchange, owner: owner}
	w.mu.Lock()
	if w.watching[key] {
		w.mu.Unlock()
		return nil
	}
	w.watching[key] = true
	w.mu.Unlock()

	sub, err := w.client.ProgramSubscribeWithOpts(
		exchange,
		w.commitment,
		solana.EncodingBase64,
		[]rpc.RPCFilter{
			{DataSize: uint64(w.layout.Size)},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: uint64(w.layout.OwnerOffset), Bytes: solana.Base58(owner[:])}},
		},
	)
	if err != nil {
		w.forget(key)
		return fmt.Errorf("programSubscribe %s: %w", exchange, err)
	}
	w.logger.Info("watching open orders", "exchange", exchange, "owner", owner)

	go func() {
		defer sub.Unsubscribe()
		defer w.forget(key)
		for {
			got, err := sub.Recv(ctx)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Warn("open orders subscription ended", "exchange", exchange, "owner", owner, "err", err)
				}
				return
			}
			if got == nil {
				continue
			}
			w.logger.Debug("open orders changed", "open_orders", got.Value.Pubkey, "owner", owner)
			w.notify()
		}
	}()
	return nil
}

func (w *wsWatcher) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *wsWatcher) forget(key watchKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watching, key)
}

func (w *wsWatcher) Close() error {
	w.client.Close()
	return nil
}
