package pool

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvoker struct {
	seeds [][]byte
}

func (r *recordingInvoker) InvokeSigned(seeds [][]byte, fn func() error) error {
	r.seeds = seeds
	return fn()
}

func TestFindSeedDerivesPoolAndMint(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	seed, err := FindSeed(programID)
	require.NoError(t, err)

	poolKey, err := DerivePoolAddress(programID, seed)
	require.NoError(t, err)
	mintKey, err := DeriveMintAddress(programID, seed)
	require.NoError(t, err)
	assert.False(t, poolKey.Equals(mintKey))

	authority, err := CheckPoolKey(programID, poolKey, seed)
	require.NoError(t, err)
	assert.Equal(t, poolKey, authority.Key())
	require.NoError(t, CheckMintKey(programID, mintKey, seed))

	_, err = CheckPoolKey(programID, mintKey, seed)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.ErrorIs(t, CheckMintKey(programID, poolKey, seed), ErrInvalidArgument)
}

func TestSeedBase58RoundTrip(t *testing.T) {
	seed, err := FindSeed(solana.SystemProgramID)
	require.NoError(t, err)
	parsed, err := SeedFromBase58(seed.String())
	require.NoError(t, err)
	assert.Equal(t, seed, parsed)

	_, err = SeedFromBase58("11111111")
	require.Error(t, err)
}

func TestAuthoritySignsWithPoolSeed(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	seed, err := FindSeed(programID)
	require.NoError(t, err)
	authority, err := NewAuthority(programID, seed)
	require.NoError(t, err)

	invoker := &recordingInvoker{}
	called := false
	require.NoError(t, authority.Sign(invoker, func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
	require.Len(t, invoker.seeds, 1)
	assert.Equal(t, seed[:], invoker.seeds[0])
}

func TestDeriveAssetAddressIsAssociatedAccount(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	got, err := DeriveAssetAddress(owner, mint)
	require.NoError(t, err)
	want, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
