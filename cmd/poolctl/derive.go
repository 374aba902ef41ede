package main

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/coldbell/signalpool/internal/config"
	"github.com/coldbell/signalpool/internal/pool"
)

func newDeriveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a pool's address, share mint and asset accounts",
		Long: "Derive the pool address, share mint and, for every --mint, the pool's asset account.\n" +
			"Without --seed a fresh valid seed is drawn.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			programID, err := a.requireProgram()
			if err != nil {
				return err
			}
			rawSeed, _ := cmd.Flags().GetString("seed")
			rawMints, _ := cmd.Flags().GetStringSlice("mint")

			var seed pool.Seed
			if rawSeed == "" {
				if seed, err = pool.FindSeed(programID); err != nil {
					return err
				}
			} else if seed, err = config.ParsePoolSeed(rawSeed); err != nil {
				return err
			}

			poolKey, err := pool.DerivePoolAddress(programID, seed)
			if err != nil {
				return fmt.Errorf("seed %s does not derive a pool address: %w", seed, err)
			}
			mintKey, err := pool.DeriveMintAddress(programID, seed)
			if err != nil {
				return fmt.Errorf("seed %s does not derive a share mint: %w", seed, err)
			}
			a.printf("seed        %s\n", seed)
			a.printf("seed_hex    %x\n", seed[:])
			a.printf("pool        %s\n", poolKey)
			a.printf("share_mint  %s\n", mintKey)
			for _, raw := range rawMints {
				mint, err := solana.PublicKeyFromBase58(raw)
				if err != nil {
					return fmt.Errorf("invalid --mint %q: %w", raw, err)
				}
				asset, err := pool.DeriveAssetAddress(poolKey, mint)
				if err != nil {
					return err
				}
				a.printf("asset       %s %s\n", mint, asset)
			}
			return nil
		},
	}
	cmd.Flags().String("seed", "", "pool seed, base58 or 64 hex characters")
	cmd.Flags().StringSlice("mint", nil, "asset mints to derive pool accounts for (comma-separated)")
	return cmd
}
