package instruction

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/signalpool/internal/pool"
)

func build(programID solana.PublicKey, ix Instruction, metas solana.AccountMetaSlice) (solana.Instruction, error) {
	data, err := Encode(ix)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(programID, metas, data), nil
}

func poolKeys(programID solana.PublicKey, seed pool.Seed) (solana.PublicKey, solana.PublicKey, error) {
	poolKey, err := pool.DerivePoolAddress(programID, seed)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("derive pool address: %w", err)
	}
	mintKey, err := pool.DeriveMintAddress(programID, seed)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("derive share mint address: %w", err)
	}
	return poolKey, mintKey, nil
}

func poolAssets(poolKey solana.PublicKey, mints []solana.PublicKey) ([]solana.PublicKey, error) {
	out := make([]solana.PublicKey, len(mints))
	for i, mint := range mints {
		asset, err := pool.DeriveAssetAddress(poolKey, mint)
		if err != nil {
			return nil, fmt.Errorf("derive pool asset for %s: %w", mint, err)
		}
		out[i] = asset
	}
	return out, nil
}

func NewInit(programID solana.PublicKey, args Init, payer solana.PublicKey) (solana.Instruction, error) {
	poolKey, mintKey, err := poolKeys(programID, args.Seed)
	if err != nil {
		return nil, err
	}
	return build(programID, &args, solana.AccountMetaSlice{
		solana.Meta(poolKey).WRITE(),
		solana.Meta(mintKey).WRITE(),
		solana.Meta(payer).SIGNER().WRITE(),
	})
}

// Transfer names the accounts of a multi-asset deposit or redemption. Mints and Accounts
// are parallel and in slot order.
type Transfer struct {
	Owner        solana.PublicKey
	ShareAccount solana.PublicKey
	Mints        []solana.PublicKey
	Accounts     []solana.PublicKey
}

func (t Transfer) metas(programID solana.PublicKey, seed pool.Seed) (solana.AccountMetaSlice, error) {
	if len(t.Mints) != len(t.Accounts) {
		return nil, fmt.Errorf("%d mints for %d token accounts", len(t.Mints), len(t.Accounts))
	}
	poolKey, mintKey, err := poolKeys(programID, seed)
	if err != nil {
		return nil, err
	}
	assets, err := poolAssets(poolKey, t.Mints)
	if err != nil {
		return nil, err
	}
	metas := solana.AccountMetaSlice{
		solana.Meta(poolKey).WRITE(),
		solana.Meta(mintKey).WRITE(),
		solana.Meta(t.ShareAccount).WRITE(),
		solana.Meta(t.Owner).SIGNER(),
	}
	for _, asset := range assets {
		metas.Append(solana.Meta(asset).WRITE())
	}
	for _, account := range t.Accounts {
		metas.Append(solana.Meta(account).WRITE())
	}
	return metas, nil
}

// NewCreate builds Create; transfer.Mints[i] lands in slot i.
func NewCreate(programID solana.PublicKey, args Create, transfer Transfer) (solana.Instruction, error) {
	if len(args.DepositAmounts) != len(transfer.Mints) {
		return nil, fmt.Errorf("%d deposit amounts for %d mints", len(args.DepositAmounts), len(transfer.Mints))
	}
	metas, err := transfer.metas(programID, args.Seed)
	if err != nil {
		return nil, err
	}
	return build(programID, &args, metas)
}

// NewDeposit builds Deposit; transfer covers every non-empty slot in slot order.
func NewDeposit(programID solana.PublicKey, args Deposit, transfer Transfer) (solana.Instruction, error) {
	metas, err := transfer.metas(programID, args.Seed)
	if err != nil {
		return nil, err
	}
	return build(programID, &args, metas)
}

// NewRedeem builds Redeem; transfer.Accounts receive the payouts.
func NewRedeem(programID solana.PublicKey, args Redeem, transfer Transfer) (solana.Instruction, error) {
	metas, err := transfer.metas(programID, args.Seed)
	if err != nil {
		return nil, err
	}
	return build(programID, &args, metas)
}

// Trade names the exchange-side accounts of an order instruction.
type Trade struct {
	ExchangeProgram solana.PublicKey
	Market          solana.PublicKey
	OpenOrders      solana.PublicKey
}

func NewCreateOrder(programID solana.PublicKey, args CreateOrder, signalProvider solana.PublicKey, trade Trade, sourceMint solana.PublicKey) (solana.Instruction, error) {
	poolKey, _, err := poolKeys(programID, args.Seed)
	if err != nil {
		return nil, err
	}
	source, err := pool.DeriveAssetAddress(poolKey, sourceMint)
	if err != nil {
		return nil, fmt.Errorf("derive source pool asset: %w", err)
	}
	return build(programID, &args, solana.AccountMetaSlice{
		solana.Meta(signalProvider).SIGNER(),
		solana.Meta(trade.Market).WRITE(),
		solana.Meta(trade.OpenOrders).WRITE(),
		solana.Meta(poolKey).WRITE(),
		solana.Meta(source).WRITE(),
		solana.Meta(trade.ExchangeProgram),
	})
}

func NewSettleFunds(programID solana.PublicKey, args SettleFunds, trade Trade, coinMint, pcMint solana.PublicKey) (solana.Instruction, error) {
	poolKey, _, err := poolKeys(programID, args.Seed)
	if err != nil {
		return nil, err
	}
	assets, err := poolAssets(poolKey, []solana.PublicKey{coinMint, pcMint})
	if err != nil {
		return nil, err
	}
	return build(programID, &args, solana.AccountMetaSlice{
		solana.Meta(trade.Market).WRITE(),
		solana.Meta(trade.OpenOrders).WRITE(),
		solana.Meta(poolKey).WRITE(),
		solana.Meta(assets[0]).WRITE(),
		solana.Meta(assets[1]).WRITE(),
		solana.Meta(trade.ExchangeProgram),
	})
}

func NewCancelOrder(programID solana.PublicKey, args CancelOrder, signalProvider solana.PublicKey, trade Trade) (solana.Instruction, error) {
	poolKey, _, err := poolKeys(programID, args.Seed)
	if err != nil {
		return nil, err
	}
	return build(programID, &args, solana.AccountMetaSlice{
		solana.Meta(signalProvider).SIGNER(),
		solana.Meta(trade.Market),
		solana.Meta(trade.OpenOrders).WRITE(),
		solana.Meta(poolKey),
		solana.Meta(trade.ExchangeProgram),
	})
}
