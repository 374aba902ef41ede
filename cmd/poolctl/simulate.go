package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/coldbell/signalpool/internal/simulation"
)

func newSimulateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a pool round trip against the in-process ledger and exchange",
		Long: "Create a pool, deposit, sell part of the asset on a simulated exchange,\n" +
			"settle and redeem everything, printing pool state after every step.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := simulation.DefaultRoundTrip()
			flags := cmd.Flags()
			p.CreateReference, _ = flags.GetUint64("reference")
			p.CreateAsset, _ = flags.GetUint64("asset")
			p.DepositShares, _ = flags.GetUint64("deposit")
			p.AskPrice, _ = flags.GetUint64("price")
			p.AskRatio, _ = flags.GetUint16("ratio")

			h, err := simulation.New(cmd.Context(), a.logger, simulation.DefaultParams())
			if err != nil {
				return err
			}
			steps, err := h.RoundTrip(p)
			if err != nil {
				return fmt.Errorf("round trip stopped after %d steps: %w", len(steps), err)
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STEP\tSTATUS\tSUPPLY\tREFERENCE\tASSET\tREF/SHARE\tASSET/SHARE")
			for _, s := range steps {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
					s.Action, s.Status, s.Supply, s.Reference, s.Asset, s.ReferencePerShare, s.AssetPerShare)
			}
			return w.Flush()
		},
	}
	d := simulation.DefaultRoundTrip()
	cmd.Flags().Uint64("reference", d.CreateReference, "reference tokens the founder deposits at creation")
	cmd.Flags().Uint64("asset", d.CreateAsset, "asset tokens the founder deposits at creation")
	cmd.Flags().Uint64("deposit", d.DepositShares, "shares the investor buys")
	cmd.Flags().Uint64("price", d.AskPrice, "ask limit price in exchange ticks")
	cmd.Flags().Uint16("ratio", d.AskRatio, "share of the asset sold, in 1/65536 units")
	return cmd
}
