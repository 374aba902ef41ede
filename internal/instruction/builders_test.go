package instruction

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/signalpool/internal/pool"
)

func TestBuildersLayOutAccounts(t *testing.T) {
	programID := solana.NewWallet().PublicKey()
	seed, err := pool.FindSeed(programID)
	require.NoError(t, err)
	poolKey, err := pool.DerivePoolAddress(programID, seed)
	require.NoError(t, err)
	mintKey, err := pool.DeriveMintAddress(programID, seed)
	require.NoError(t, err)

	payer := solana.NewWallet().PublicKey()
	initIx, err := NewInit(programID, Init{Seed: seed, MaxAssets: 4, NumberOfMarkets: 1}, payer)
	require.NoError(t, err)
	assert.Equal(t, programID, initIx.ProgramID())
	metas := initIx.Accounts()
	require.Len(t, metas, 3)
	assert.Equal(t, poolKey, metas[0].PublicKey)
	assert.Equal(t, mintKey, metas[1].PublicKey)
	assert.True(t, metas[2].IsSigner)

	owner := solana.NewWallet().PublicKey()
	mints := []solana.PublicKey{solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()}
	sources := []solana.PublicKey{solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()}
	transfer := Transfer{Owner: owner, ShareAccount: solana.NewWallet().PublicKey(), Mints: mints, Accounts: sources}

	create, err := NewCreate(programID, Create{Seed: seed, DepositAmounts: []uint64{1, 2}}, transfer)
	require.NoError(t, err)
	metas = create.Accounts()
	require.Len(t, metas, 4+2*len(mints))
	assert.True(t, metas[3].IsSigner)
	assert.Equal(t, owner, metas[3].PublicKey)
	for i, mint := range mints {
		want, err := pool.DeriveAssetAddress(poolKey, mint)
		require.NoError(t, err)
		assert.Equal(t, want, metas[4+i].PublicKey)
		assert.Equal(t, sources[i], metas[4+len(mints)+i].PublicKey)
	}

	_, err = NewCreate(programID, Create{Seed: seed, DepositAmounts: []uint64{1}}, transfer)
	require.Error(t, err)

	trade := Trade{
		ExchangeProgram: solana.NewWallet().PublicKey(),
		Market:          solana.NewWallet().PublicKey(),
		OpenOrders:      solana.NewWallet().PublicKey(),
	}
	signal := solana.NewWallet().PublicKey()
	order, err := NewCreateOrder(programID, CreateOrder{Seed: seed, LimitPrice: 1, Ratio: 1}, signal, trade, mints[0])
	require.NoError(t, err)
	metas = order.Accounts()
	require.Len(t, metas, 6)
	assert.True(t, metas[0].IsSigner)
	assert.Equal(t, poolKey, metas[3].PublicKey)
	assert.Equal(t, trade.ExchangeProgram, metas[5].PublicKey)

	settle, err := NewSettleFunds(programID, SettleFunds{Seed: seed}, trade, mints[0], mints[1])
	require.NoError(t, err)
	metas = settle.Accounts()
	require.Len(t, metas, 6)
	for _, meta := range metas {
		assert.False(t, meta.IsSigner)
	}

	cancel, err := NewCancelOrder(programID, CancelOrder{Seed: seed}, signal, trade)
	require.NoError(t, err)
	require.Len(t, cancel.Accounts(), 5)

	data, err := cancel.Data()
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TagCancelOrder, decoded.Tag())
	assert.Equal(t, seed, decoded.PoolSeed())
}
