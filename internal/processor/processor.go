// Package processor is the pool program: it decodes calls and runs them against the
// ledger, delegating trades to the exchange the pool was created for.
package processor

import (
	"context"
	"log/slog"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/signalpool/internal/exchange"
	"github.com/coldbell/signalpool/internal/instruction"
	"github.com/coldbell/signalpool/internal/ledger"
	"github.com/coldbell/signalpool/internal/pool"
	"github.com/coldbell/signalpool/internal/serum"
)

// ReferenceMint is the platform asset a new pool must be seeded with (FIDA).
var ReferenceMint = solana.MustPublicKeyFromBase58("EchesyfXePKdLtoiZSL8pBe8Myagyy8ZRqsACNCFGnvp")

const MinReferenceDeposit uint64 = 1_000_000

type Options struct {
	ReferenceMint       solana.PublicKey
	MinReferenceDeposit uint64
	OpenOrdersLayout    serum.OpenOrdersLayout
	ShareDecimals       uint8
}

func DefaultOptions() Options {
	return Options{
		ReferenceMint:       ReferenceMint,
		MinReferenceDeposit: MinReferenceDeposit,
		OpenOrdersLayout:    serum.V3,
		ShareDecimals:       6,
	}
}

type Processor struct {
	programID solana.PublicKey
	opts      Options
	exchanges map[solana.PublicKey]exchange.Exchange
	logger    *slog.Logger
}

var _ ledger.Program = (*Processor)(nil)

func New(programID solana.PublicKey, opts Options, logger *slog.Logger, exchanges ...exchange.Exchange) *Processor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Processor{
		programID: programID,
		opts:      opts,
		exchanges: make(map[solana.PublicKey]exchange.Exchange, len(exchanges)),
		logger:    logger,
	}
	for _, ex := range exchanges {
		p.exchanges[ex.ProgramID()] = ex
	}
	return p
}

func (p *Processor) ProgramID() solana.PublicKey { return p.programID }

func (p *Processor) Process(ctx context.Context, tx *ledger.Tx, accounts []*solana.AccountMeta, data []byte) error {
	ix, err := instruction.Decode(data)
	if err != nil {
		p.logger.Warn("pool call rejected", "err", err, "code", pool.Code(err))
		return err
	}
	switch call := ix.(type) {
	case *instruction.Init:
		err = p.processInit(tx, accounts, call)
	case *instruction.Create:
		err = p.processCreate(tx, accounts, call)
	case *instruction.Deposit:
		err = p.processDeposit(tx, accounts, call)
	case *instruction.Redeem:
		err = p.processRedeem(tx, accounts, call)
	case *instruction.CreateOrder:
		err = p.processCreateOrder(tx, accounts, call)
	case *instruction.SettleFunds:
		err = p.processSettleFunds(tx, accounts, call)
	case *instruction.CancelOrder:
		err = p.processCancelOrder(tx, accounts, call)
	default:
		err = errorsmod.Wrapf(pool.ErrInvalidInstruction, "unhandled call %s", ix.Tag())
	}
	seed := ix.PoolSeed()
	if err != nil {
		p.logger.Warn("pool call failed",
			"call", ix.Tag().String(),
			"pool_seed", seed.String(),
			"code", pool.Code(err),
			"err", err,
		)
		return err
	}
	p.logger.Debug("pool call processed", "call", ix.Tag().String(), "pool_seed", seed.String())
	return nil
}
