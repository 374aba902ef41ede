package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
)

// Tx is the view of the ledger a single call executes against.
type Tx struct {
	ctx     context.Context
	ledger  *Ledger
	state   *state
	signers map[solana.PublicKey]bool
	// granted holds derived addresses currently signed for by the executing program.
	granted map[solana.PublicKey]int
	program solana.PublicKey
}

func newTx(ctx context.Context, l *Ledger, st *state, signers []solana.PublicKey) *Tx {
	set := make(map[solana.PublicKey]bool, len(signers))
	for _, signer := range signers {
		set[signer] = true
	}
	return &Tx{
		ctx:     ctx,
		ledger:  l,
		state:   st,
		signers: set,
		granted: make(map[solana.PublicKey]int),
		program: solana.SystemProgramID,
	}
}

func (tx *Tx) Context() context.Context { return tx.ctx }

// Program is the id of the program currently executing.
func (tx *Tx) Program() solana.PublicKey { return tx.program }

// Execute dispatches ix to its registered program. Accounts flagged as signers must have
// signed the call.
func (tx *Tx) Execute(ctx context.Context, ix solana.Instruction) error {
	program, ok := tx.ledger.program(ix.ProgramID())
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, ix.ProgramID())
	}
	data, err := ix.Data()
	if err != nil {
		return fmt.Errorf("instruction data: %w", err)
	}
	metas := ix.Accounts()
	for _, meta := range metas {
		if meta.IsSigner && !tx.IsSigner(meta.PublicKey) {
			return fmt.Errorf("%w: %s", ErrMissingSignature, meta.PublicKey)
		}
	}
	return tx.Invoke(ix.ProgramID(), func() error {
		return program.Process(ctx, tx, metas, data)
	})
}

// Invoke runs fn as programID. Signer privileges of the caller, derived address grants
// included, carry over into the callee.
func (tx *Tx) Invoke(programID solana.PublicKey, fn func() error) error {
	prevProgram, prevGranted := tx.program, tx.granted
	tx.program = programID
	tx.granted = make(map[solana.PublicKey]int)
	for key, n := range prevGranted {
		tx.granted[key] = n
	}
	defer func() {
		tx.program, tx.granted = prevProgram, prevGranted
	}()
	return fn()
}

// InvokeSigned runs fn with the address derived from seeds under the executing program
// counted as a signer.
func (tx *Tx) InvokeSigned(seeds [][]byte, fn func() error) error {
	key, err := solana.CreateProgramAddress(seeds, tx.program)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignerSeeds, err)
	}
	tx.granted[key]++
	defer func() {
		tx.granted[key]--
		if tx.granted[key] == 0 {
			delete(tx.granted, key)
		}
	}()
	return fn()
}

func (tx *Tx) IsSigner(key solana.PublicKey) bool {
	return tx.signers[key] || tx.granted[key] > 0
}

func (tx *Tx) requireSigner(key solana.PublicKey) error {
	if !tx.IsSigner(key) {
		return fmt.Errorf("%w: %s", ErrMissingSignature, key)
	}
	return nil
}

func (tx *Tx) exists(key solana.PublicKey) bool {
	if _, ok := tx.state.accounts[key]; ok {
		return true
	}
	if _, ok := tx.state.mints[key]; ok {
		return true
	}
	_, ok := tx.state.tokens[key]
	return ok
}

func (tx *Tx) Exists(key solana.PublicKey) bool { return tx.exists(key) }

// CreateAccount allocates a zeroed data account owned by owner. Both payer and the new
// address must sign.
func (tx *Tx) CreateAccount(payer, key solana.PublicKey, size int, owner solana.PublicKey) error {
	if err := tx.requireSigner(payer); err != nil {
		return err
	}
	if err := tx.requireSigner(key); err != nil {
		return err
	}
	if tx.exists(key) {
		return fmt.Errorf("%w: %s", ErrAccountExists, key)
	}
	tx.state.accounts[key] = &Account{Key: key, Owner: owner, Data: make([]byte, size)}
	return nil
}

// Account returns a copy of a data account.
func (tx *Tx) Account(key solana.PublicKey) (Account, error) {
	acc, ok := tx.state.accounts[key]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	cp := *acc
	cp.Data = append([]byte(nil), acc.Data...)
	return cp, nil
}

// Data returns the live data of an account owned by the executing program. Writes to the
// returned slice are part of the call.
func (tx *Tx) Data(key solana.PublicKey) ([]byte, error) {
	acc, ok := tx.state.accounts[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	if !acc.Owner.Equals(tx.program) {
		return nil, fmt.Errorf("%w: %s owned by %s", ErrNotOwner, key, acc.Owner)
	}
	return acc.Data, nil
}

// CreateMint registers a token mint at key, which must sign.
func (tx *Tx) CreateMint(key, authority solana.PublicKey, decimals uint8) error {
	if err := tx.requireSigner(key); err != nil {
		return err
	}
	if tx.exists(key) {
		return fmt.Errorf("%w: %s", ErrAccountExists, key)
	}
	tx.state.mints[key] = &Mint{Authority: authority, Decimals: decimals}
	return nil
}

func (tx *Tx) Mint(key solana.PublicKey) (Mint, error) {
	mint, ok := tx.state.mints[key]
	if !ok {
		return Mint{}, fmt.Errorf("%w: mint %s", ErrAccountNotFound, key)
	}
	return *mint, nil
}

func (tx *Tx) Supply(mint solana.PublicKey) (uint64, error) {
	m, err := tx.Mint(mint)
	if err != nil {
		return 0, err
	}
	return m.Supply, nil
}

// CreateTokenAccount opens a token account at key, which must sign.
func (tx *Tx) CreateTokenAccount(key, mint, owner solana.PublicKey) error {
	if err := tx.requireSigner(key); err != nil {
		return err
	}
	return tx.openTokenAccount(key, mint, owner)
}

// CreateAssociatedTokenAccount opens the associated token account of (owner, mint).
// Anyone may create it.
func (tx *Tx) CreateAssociatedTokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	key, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token account: %w", err)
	}
	return key, tx.openTokenAccount(key, mint, owner)
}

func (tx *Tx) openTokenAccount(key, mint, owner solana.PublicKey) error {
	if _, ok := tx.state.mints[mint]; !ok {
		return fmt.Errorf("%w: mint %s", ErrAccountNotFound, mint)
	}
	if tx.exists(key) {
		return fmt.Errorf("%w: %s", ErrAccountExists, key)
	}
	tx.state.tokens[key] = &TokenAccount{Mint: mint, Owner: owner}
	return nil
}

func (tx *Tx) TokenAccount(key solana.PublicKey) (TokenAccount, error) {
	token, ok := tx.state.tokens[key]
	if !ok {
		return TokenAccount{}, fmt.Errorf("%w: token account %s", ErrAccountNotFound, key)
	}
	return *token, nil
}

func (tx *Tx) token(key solana.PublicKey) (*TokenAccount, error) {
	token, ok := tx.state.tokens[key]
	if !ok {
		return nil, fmt.Errorf("%w: token account %s", ErrAccountNotFound, key)
	}
	return token, nil
}

// Transfer moves amount between two token accounts of the same mint. The owner of the
// source account must sign.
func (tx *Tx) Transfer(from, to solana.PublicKey, amount uint64) error {
	src, err := tx.token(from)
	if err != nil {
		return err
	}
	dst, err := tx.token(to)
	if err != nil {
		return err
	}
	if err := tx.requireSigner(src.Owner); err != nil {
		return err
	}
	if !src.Mint.Equals(dst.Mint) {
		return fmt.Errorf("%w: %s -> %s", ErrMintMismatch, src.Mint, dst.Mint)
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, from, src.Amount, amount)
	}
	if from.Equals(to) {
		return nil
	}
	if dst.Amount > math.MaxUint64-amount {
		return fmt.Errorf("%w: balance of %s", ErrSupplyOverflow, to)
	}
	src.Amount -= amount
	dst.Amount += amount
	return nil
}

// MintTo issues amount new units into a token account. The mint authority must sign.
func (tx *Tx) MintTo(mint, to solana.PublicKey, amount uint64) error {
	m, ok := tx.state.mints[mint]
	if !ok {
		return fmt.Errorf("%w: mint %s", ErrAccountNotFound, mint)
	}
	dst, err := tx.token(to)
	if err != nil {
		return err
	}
	if !dst.Mint.Equals(mint) {
		return fmt.Errorf("%w: %s is not a %s account", ErrMintMismatch, to, mint)
	}
	if err := tx.requireSigner(m.Authority); err != nil {
		return err
	}
	if m.Supply > math.MaxUint64-amount {
		return fmt.Errorf("%w: %s", ErrSupplyOverflow, mint)
	}
	m.Supply += amount
	dst.Amount += amount
	return nil
}

// Burn destroys amount units held by a token account. The account owner must sign.
func (tx *Tx) Burn(mint, from solana.PublicKey, amount uint64) error {
	m, ok := tx.state.mints[mint]
	if !ok {
		return fmt.Errorf("%w: mint %s", ErrAccountNotFound, mint)
	}
	src, err := tx.token(from)
	if err != nil {
		return err
	}
	if !src.Mint.Equals(mint) {
		return fmt.Errorf("%w: %s is not a %s account", ErrMintMismatch, from, mint)
	}
	if err := tx.requireSigner(src.Owner); err != nil {
		return err
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: %s holds %d, burning %d", ErrInsufficientFunds, from, src.Amount, amount)
	}
	src.Amount -= amount
	m.Supply -= amount
	return nil
}
