package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ledger    *Ledger
	authority solana.PublicKey
	mint      solana.PublicKey
	alice     solana.PublicKey
	bob       solana.PublicKey
	aliceATA  solana.PublicKey
	bobATA    solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger:    New(nil),
		authority: solana.NewWallet().PublicKey(),
		mint:      solana.NewWallet().PublicKey(),
		alice:     solana.NewWallet().PublicKey(),
		bob:       solana.NewWallet().PublicKey(),
	}
	err := f.ledger.Update(context.Background(), []solana.PublicKey{f.mint, f.authority}, func(tx *Tx) error {
		if err := tx.CreateMint(f.mint, f.authority, 6); err != nil {
			return err
		}
		var err error
		if f.aliceATA, err = tx.CreateAssociatedTokenAccount(f.alice, f.mint); err != nil {
			return err
		}
		if f.bobATA, err = tx.CreateAssociatedTokenAccount(f.bob, f.mint); err != nil {
			return err
		}
		return tx.MintTo(f.mint, f.aliceATA, 1_000)
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) balance(t *testing.T, key solana.PublicKey) uint64 {
	t.Helper()
	return f.ledger.Balances()[key].Amount
}

func TestTransferRequiresOwnerSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.ledger.Update(ctx, nil, func(tx *Tx) error {
		return tx.Transfer(f.aliceATA, f.bobATA, 10)
	})
	require.ErrorIs(t, err, ErrMissingSignature)

	err = f.ledger.Update(ctx, []solana.PublicKey{f.alice}, func(tx *Tx) error {
		return tx.Transfer(f.aliceATA, f.bobATA, 10)
	})
	require.NoError(t, err)
	assert.EqualValues(t, 990, f.balance(t, f.aliceATA))
	assert.EqualValues(t, 10, f.balance(t, f.bobATA))

	err = f.ledger.Update(ctx, []solana.PublicKey{f.bob}, func(tx *Tx) error {
		return tx.Transfer(f.bobATA, f.aliceATA, 11)
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestFailedCallLeavesNoPartialWrites(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")

	err := f.ledger.Update(context.Background(), []solana.PublicKey{f.alice, f.authority}, func(tx *Tx) error {
		if err := tx.Transfer(f.aliceATA, f.bobATA, 500); err != nil {
			return err
		}
		if err := tx.MintTo(f.mint, f.bobATA, 7); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1_000, f.balance(t, f.aliceATA))
	assert.EqualValues(t, 0, f.balance(t, f.bobATA))

	require.NoError(t, f.ledger.View(func(tx *Tx) error {
		supply, err := tx.Supply(f.mint)
		require.NoError(t, err)
		assert.EqualValues(t, 1_000, supply)
		return nil
	}))
}

func TestMintAndBurnTrackSupply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.ledger.Update(ctx, []solana.PublicKey{f.alice}, func(tx *Tx) error {
		return tx.MintTo(f.mint, f.aliceATA, 1)
	})
	require.ErrorIs(t, err, ErrMissingSignature)

	err = f.ledger.Update(ctx, []solana.PublicKey{f.alice}, func(tx *Tx) error {
		return tx.Burn(f.mint, f.aliceATA, 400)
	})
	require.NoError(t, err)
	require.NoError(t, f.ledger.View(func(tx *Tx) error {
		supply, err := tx.Supply(f.mint)
		require.NoError(t, err)
		assert.EqualValues(t, 600, supply)
		return nil
	}))
}

func TestProgramDerivedSigning(t *testing.T) {
	l := New(nil)
	programID := solana.NewWallet().PublicKey()
	payer := solana.NewWallet().PublicKey()
	seed := []byte("vault")

	derived, bump, err := solana.FindProgramAddress([][]byte{seed}, programID)
	require.NoError(t, err)
	signerSeeds := [][]byte{seed, {bump}}

	l.Register(programID, ProgramFunc(func(ctx context.Context, tx *Tx, accounts []*solana.AccountMeta, data []byte) error {
		if err := tx.CreateAccount(payer, derived, 8, programID); err == nil {
			return errors.New("created a derived account without its signature")
		}
		return tx.InvokeSigned(signerSeeds, func() error {
			if err := tx.CreateAccount(payer, derived, 8, programID); err != nil {
				return err
			}
			buf, err := tx.Data(derived)
			if err != nil {
				return err
			}
			copy(buf, data)
			return nil
		})
	}))

	ix := solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.Meta(payer).SIGNER().WRITE(),
		solana.Meta(derived).WRITE(),
	}, []byte{1, 2, 3})

	require.ErrorIs(t, l.Submit(context.Background(), nil, ix), ErrMissingSignature)
	require.NoError(t, l.Submit(context.Background(), []solana.PublicKey{payer}, ix))
	assert.Equal(t, []byte{1, 2, 3, 0, 0, 0, 0, 0}, l.Snapshot()[derived])

	err = l.Update(context.Background(), nil, func(tx *Tx) error {
		_, err := tx.Data(derived)
		return err
	})
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestUnknownProgram(t *testing.T) {
	l := New(nil)
	ix := solana.NewInstruction(solana.NewWallet().PublicKey(), nil, nil)
	require.ErrorIs(t, l.Submit(context.Background(), nil, ix), ErrUnknownProgram)
}

func TestProgramAccountsFiltersByOwnerAndData(t *testing.T) {
	l := New(nil)
	program := solana.NewWallet().PublicKey()
	payer := solana.NewWallet().PublicKey()
	a, b, other := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	err := l.Update(context.Background(), []solana.PublicKey{payer, a, b, other}, func(tx *Tx) error {
		if err := tx.CreateAccount(payer, a, 4, program); err != nil {
			return err
		}
		if err := tx.CreateAccount(payer, b, 8, program); err != nil {
			return err
		}
		return tx.CreateAccount(payer, other, 4, solana.SystemProgramID)
	})
	require.NoError(t, err)

	assert.Len(t, l.ProgramAccounts(program, nil), 2)
	small := l.ProgramAccounts(program, func(data []byte) bool { return len(data) == 4 })
	require.Len(t, small, 1)
	assert.Equal(t, a, small[0].Key)

	small[0].Data[0] = 9
	assert.Zero(t, l.Snapshot()[a][0])
}
