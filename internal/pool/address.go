package pool

import (
	"crypto/rand"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"
)

const SeedSize = 32

type Seed [SeedSize]byte

// String renders the seed in base58, the same alphabet and width as an address.
func (s Seed) String() string {
	return solana.PublicKey(s).String()
}

func SeedFromBase58(raw string) (Seed, error) {
	decoded, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return Seed{}, fmt.Errorf("decode pool seed: %w", err)
	}
	return Seed(decoded), nil
}

var mintSeedSuffix = []byte{1}

func DerivePoolAddress(programID solana.PublicKey, seed Seed) (solana.PublicKey, error) {
	return solana.CreateProgramAddress([][]byte{seed[:]}, programID)
}

func DeriveMintAddress(programID solana.PublicKey, seed Seed) (solana.PublicKey, error) {
	return solana.CreateProgramAddress([][]byte{seed[:], mintSeedSuffix}, programID)
}

// DeriveAssetAddress is the pool's associated token account for mint.
func DeriveAssetAddress(poolKey, mint solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindAssociatedTokenAddress(poolKey, mint)
	return address, err
}

// FindSeed draws random seeds until both the pool and the share mint addresses are valid
// derived addresses. The last seed byte is the bump found for the first 31 bytes.
func FindSeed(programID solana.PublicKey) (Seed, error) {
	for attempt := 0; attempt < 256; attempt++ {
		var seed Seed
		if _, err := rand.Read(seed[:]); err != nil {
			return Seed{}, fmt.Errorf("read random seed: %w", err)
		}
		_, bump, err := solana.FindProgramAddress([][]byte{seed[:SeedSize-1]}, programID)
		if err != nil {
			continue
		}
		seed[SeedSize-1] = bump
		if _, err := DerivePoolAddress(programID, seed); err != nil {
			continue
		}
		if _, err := DeriveMintAddress(programID, seed); err != nil {
			continue
		}
		return seed, nil
	}
	return Seed{}, fmt.Errorf("no valid pool seed found for program %s", programID)
}

// SignedInvoker runs fn with the signer privilege of the address derived from seeds
// under the currently executing program.
type SignedInvoker interface {
	InvokeSigned(seeds [][]byte, fn func() error) error
}

// Authority proves the holder may act as the pool derived from a seed. It can only be
// obtained by re-deriving the pool address, never from a key.
type Authority struct {
	seed Seed
	key  solana.PublicKey
}

func NewAuthority(programID solana.PublicKey, seed Seed) (Authority, error) {
	key, err := DerivePoolAddress(programID, seed)
	if err != nil {
		return Authority{}, errorsmod.Wrapf(ErrInvalidArgument, "pool seed does not derive a pool address: %v", err)
	}
	return Authority{seed: seed, key: key}, nil
}

func (a Authority) Key() solana.PublicKey { return a.key }

func (a Authority) Seed() Seed { return a.seed }

// Sign runs fn with the pool address as signer.
func (a Authority) Sign(invoker SignedInvoker, fn func() error) error {
	seed := a.seed
	return invoker.InvokeSigned([][]byte{seed[:]}, fn)
}

// CheckPoolKey validates that key is the pool address derived from seed.
func CheckPoolKey(programID, key solana.PublicKey, seed Seed) (Authority, error) {
	authority, err := NewAuthority(programID, seed)
	if err != nil {
		return Authority{}, err
	}
	if !authority.key.Equals(key) {
		return Authority{}, errorsmod.Wrapf(ErrInvalidArgument, "pool account %s does not match the pool seed (expected %s)", key, authority.key)
	}
	return authority, nil
}

func CheckMintKey(programID, key solana.PublicKey, seed Seed) error {
	expected, err := DeriveMintAddress(programID, seed)
	if err != nil {
		return errorsmod.Wrapf(ErrInvalidArgument, "pool seed does not derive a mint address: %v", err)
	}
	if !expected.Equals(key) {
		return errorsmod.Wrapf(ErrInvalidArgument, "share mint %s does not match the pool seed (expected %s)", key, expected)
	}
	return nil
}
