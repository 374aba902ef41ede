package sim

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/signalpool/internal/ledger"
	"github.com/coldbell/signalpool/internal/serum"
)

type MarketParams struct {
	CoinMint    solana.PublicKey
	PCMint      solana.PublicKey
	CoinLotSize uint64
	PCLotSize   uint64
	FeeRateBps  uint64
}

// CreateMarket allocates a market, its two books and its two vaults, paid by payer.
func (e *Exchange) CreateMarket(ctx context.Context, l *ledger.Ledger, payer solana.PublicKey, params MarketParams) (solana.PublicKey, error) {
	marketKey := solana.NewWallet().PublicKey()
	bidsKey := solana.NewWallet().PublicKey()
	asksKey := solana.NewWallet().PublicKey()
	coinVault := solana.NewWallet().PublicKey()
	pcVault := solana.NewWallet().PublicKey()

	market := &serum.Market{
		AccountFlags: serum.FlagInitialized | serum.FlagMarket,
		OwnAddress:   marketKey,
		CoinMint:     params.CoinMint,
		PCMint:       params.PCMint,
		CoinVault:    coinVault,
		PCVault:      pcVault,
		Bids:         bidsKey,
		Asks:         asksKey,
		CoinLotSize:  params.CoinLotSize,
		PCLotSize:    params.PCLotSize,
		FeeRateBps:   params.FeeRateBps,
	}
	vaultSigner, err := findVaultSigner(market, e.programID)
	if err != nil {
		return solana.PublicKey{}, err
	}

	signers := []solana.PublicKey{payer, marketKey, bidsKey, asksKey, coinVault, pcVault}
	err = l.Update(ctx, signers, func(tx *ledger.Tx) error {
		return tx.Invoke(e.programID, func() error {
			if err := tx.CreateAccount(payer, marketKey, serum.MarketSize, e.programID); err != nil {
				return err
			}
			for _, key := range []solana.PublicKey{bidsKey, asksKey} {
				if err := tx.CreateAccount(payer, key, bookAccountSz, e.programID); err != nil {
					return err
				}
			}
			if err := tx.CreateTokenAccount(coinVault, params.CoinMint, vaultSigner); err != nil {
				return err
			}
			if err := tx.CreateTokenAccount(pcVault, params.PCMint, vaultSigner); err != nil {
				return err
			}
			data, err := tx.Data(marketKey)
			if err != nil {
				return err
			}
			return market.Encode(data)
		})
	})
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("create market: %w", err)
	}
	e.logger.Info("market created", "market", marketKey, "coin_mint", params.CoinMint, "pc_mint", params.PCMint)
	return marketKey, nil
}

func findVaultSigner(market *serum.Market, programID solana.PublicKey) (solana.PublicKey, error) {
	for nonce := uint64(0); nonce < 256; nonce++ {
		market.VaultSignerNonce = nonce
		if signer, err := market.VaultSigner(programID); err == nil {
			return signer, nil
		}
	}
	return solana.PublicKey{}, fmt.Errorf("no vault signer nonce for market %s", market.OwnAddress)
}

// CreateOpenOrders allocates an open-orders record for owner on market. The owner does not
// need to sign; it must sign every order placed through the record.
func (e *Exchange) CreateOpenOrders(ctx context.Context, l *ledger.Ledger, payer, market, owner solana.PublicKey) (solana.PublicKey, error) {
	key := solana.NewWallet().PublicKey()
	err := l.Update(ctx, []solana.PublicKey{payer, key}, func(tx *ledger.Tx) error {
		return tx.Invoke(e.programID, func() error {
			if _, err := tx.Data(market); err != nil {
				return fmt.Errorf("load market: %w", err)
			}
			if err := tx.CreateAccount(payer, key, serum.OpenOrdersSize, e.programID); err != nil {
				return err
			}
			data, err := tx.Data(key)
			if err != nil {
				return err
			}
			return serum.NewOpenOrders(market, owner).Encode(data)
		})
	})
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("create open orders: %w", err)
	}
	return key, nil
}
