package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"

	"github.com/coldbell/signalpool/internal/accounting"
	"github.com/coldbell/signalpool/internal/config"
	"github.com/coldbell/signalpool/internal/pool"
)

func newInspectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show a live pool's status, whitelist, slots and per-share value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			programID, err := a.requireProgram()
			if err != nil {
				return err
			}
			rawSeed, _ := cmd.Flags().GetString("seed")
			if rawSeed == "" {
				return fmt.Errorf("--seed is required")
			}
			seed, err := config.ParsePoolSeed(rawSeed)
			if err != nil {
				return err
			}
			return a.inspect(cmd.Context(), rpc.New(a.cfg.RPCURL), programID, seed)
		},
	}
	cmd.Flags().String("seed", "", "pool seed, base58 or 64 hex characters")
	return cmd
}

func (a *app) inspect(ctx context.Context, client *rpc.Client, programID solana.PublicKey, seed pool.Seed) error {
	poolKey, err := pool.DerivePoolAddress(programID, seed)
	if err != nil {
		return err
	}
	mintKey, err := pool.DeriveMintAddress(programID, seed)
	if err != nil {
		return err
	}

	info, err := client.GetAccountInfoWithOpts(ctx, poolKey, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: a.cfg.Commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return fmt.Errorf("pool %s does not exist", poolKey)
		}
		return fmt.Errorf("fetch pool %s: %w", poolKey, err)
	}
	if info == nil || info.Value == nil {
		return fmt.Errorf("pool %s does not exist", poolKey)
	}
	if !info.Value.Owner.Equals(programID) {
		return fmt.Errorf("pool %s is owned by %s, not %s", poolKey, info.Value.Owner, programID)
	}
	state, err := pool.Unpack(info.Value.Data.GetBinary())
	if err != nil {
		return err
	}

	a.printf("pool             %s\n", poolKey)
	a.printf("share_mint       %s\n", mintKey)
	a.printf("status           %s\n", state.Header.Status)
	a.printf("signal_provider  %s\n", state.Header.SignalProvider)
	a.printf("exchange         %s\n", state.Header.ExchangeProgram)
	for i, market := range state.Markets {
		a.printf("market[%d]        %s\n", i, market)
	}
	if !state.Header.Status.IsInitialized() {
		return nil
	}

	supply, err := a.tokenSupply(ctx, client, mintKey)
	if err != nil {
		return err
	}
	a.printf("share_supply     %d\n", supply)

	for _, i := range state.Slots.NonEmpty() {
		mint := state.Slots[i]
		asset, err := pool.DeriveAssetAddress(poolKey, mint)
		if err != nil {
			return err
		}
		balance, err := a.tokenBalance(ctx, client, asset)
		if err != nil {
			return err
		}
		a.printf("slot[%d]          %s balance=%d per_share=%s\n", i, mint, balance, accounting.PerShare(balance, supply))
	}
	return nil
}

func (a *app) tokenSupply(ctx context.Context, client *rpc.Client, mint solana.PublicKey) (uint64, error) {
	out, err := client.GetTokenSupply(ctx, mint, a.cfg.Commitment)
	if err != nil {
		return 0, fmt.Errorf("fetch supply of %s: %w", mint, err)
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("empty supply response for %s", mint)
	}
	return strconv.ParseUint(out.Value.Amount, 10, 64)
}

func (a *app) tokenBalance(ctx context.Context, client *rpc.Client, account solana.PublicKey) (uint64, error) {
	out, err := client.GetTokenAccountBalance(ctx, account, a.cfg.Commitment)
	if err != nil {
		return 0, fmt.Errorf("fetch balance of %s: %w", account, err)
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("empty balance response for %s", account)
	}
	return strconv.ParseUint(out.Value.Amount, 10, 64)
}
