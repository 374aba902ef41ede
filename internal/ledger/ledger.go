// Package ledger is an in-process account ledger with SPL-style token balances. It runs
// programs one call at a time, each against a private copy of the state that is committed
// only when the whole call succeeds.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrMissingSignature   = errors.New("missing required signature")
	ErrNotOwner           = errors.New("account is not owned by the executing program")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrMintMismatch       = errors.New("token account mint mismatch")
	ErrSupplyOverflow     = errors.New("mint supply overflow")
	ErrUnknownProgram     = errors.New("unknown program")
	ErrInvalidSignerSeeds = errors.New("seeds do not derive a program address")
)

type Account struct {
	Key   solana.PublicKey
	Owner solana.PublicKey
	Data  []byte
}

type Mint struct {
	Authority solana.PublicKey
	Supply    uint64
	Decimals  uint8
}

type TokenAccount struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

// Program is an executable registered under a program id.
type Program interface {
	Process(ctx context.Context, tx *Tx, accounts []*solana.AccountMeta, data []byte) error
}

type ProgramFunc func(ctx context.Context, tx *Tx, accounts []*solana.AccountMeta, data []byte) error

func (f ProgramFunc) Process(ctx context.Context, tx *Tx, accounts []*solana.AccountMeta, data []byte) error {
	return f(ctx, tx, accounts, data)
}

type state struct {
	accounts map[solana.PublicKey]*Account
	mints    map[solana.PublicKey]*Mint
	tokens   map[solana.PublicKey]*TokenAccount
}

func newState() *state {
	return &state{
		accounts: make(map[solana.PublicKey]*Account),
		mints:    make(map[solana.PublicKey]*Mint),
		tokens:   make(map[solana.PublicKey]*TokenAccount),
	}
}

func (s *state) clone() *state {
	out := &state{
		accounts: make(map[solana.PublicKey]*Account, len(s.accounts)),
		mints:    make(map[solana.PublicKey]*Mint, len(s.mints)),
		tokens:   make(map[solana.PublicKey]*TokenAccount, len(s.tokens)),
	}
	for key, acc := range s.accounts {
		cp := *acc
		cp.Data = append([]byte(nil), acc.Data...)
		out.accounts[key] = &cp
	}
	for key, mint := range s.mints {
		cp := *mint
		out.mints[key] = &cp
	}
	for key, token := range s.tokens {
		cp := *token
		out.tokens[key] = &cp
	}
	return out
}

// Ledger serializes calls: at most one call runs at a time.
type Ledger struct {
	mu       sync.Mutex
	state    *state
	programs map[solana.PublicKey]Program
	logger   *slog.Logger
	calls    uint64
}

func New(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ledger{
		state:    newState(),
		programs: make(map[solana.PublicKey]Program),
		logger:   logger,
	}
}

func (l *Ledger) Register(programID solana.PublicKey, program Program) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programs[programID] = program
}

func (l *Ledger) program(programID solana.PublicKey) (Program, bool) {
	program, ok := l.programs[programID]
	return program, ok
}

// Submit executes the instructions in order as one atomic call signed by signers.
func (l *Ledger) Submit(ctx context.Context, signers []solana.PublicKey, instructions ...solana.Instruction) error {
	return l.Update(ctx, signers, func(tx *Tx) error {
		for i, ix := range instructions {
			if err := tx.Execute(ctx, ix); err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
		}
		return nil
	})
}

// Update runs fn as one atomic call. Nothing fn writes is visible unless it returns nil.
func (l *Ledger) Update(ctx context.Context, signers []solana.PublicKey, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	tx := newTx(ctx, l, l.state.clone(), signers)
	if err := fn(tx); err != nil {
		l.logger.Debug("ledger call rolled back", "call", l.calls, "err", err)
		return err
	}
	l.state = tx.state
	return nil
}

// View runs fn against a throwaway copy of the current state.
func (l *Ledger) View(fn func(tx *Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(newTx(context.Background(), l, l.state.clone(), nil))
}

// Snapshot returns the committed data of every account, keyed by address.
func (l *Ledger) Snapshot() map[solana.PublicKey][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[solana.PublicKey][]byte, len(l.state.accounts))
	for key, acc := range l.state.accounts {
		out[key] = append([]byte(nil), acc.Data...)
	}
	return out
}

// Balances returns the committed token balances, keyed by token account.
func (l *Ledger) Balances() map[solana.PublicKey]TokenAccount {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[solana.PublicKey]TokenAccount, len(l.state.tokens))
	for key, token := range l.state.tokens {
		out[key] = *token
	}
	return out
}

// ProgramAccounts returns copies of the committed data accounts owned by program whose
// data satisfies match. A nil match selects every account.
func (l *Ledger) ProgramAccounts(program solana.PublicKey, match func(data []byte) bool) []Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Account
	for _, acc := range l.state.accounts {
		if !acc.Owner.Equals(program) {
			continue
		}
		if match != nil && !match(acc.Data) {
			continue
		}
		cp := *acc
		cp.Data = append([]byte(nil), acc.Data...)
		out = append(out, cp)
	}
	return out
}
