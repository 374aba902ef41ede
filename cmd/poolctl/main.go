package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/coldbell/signalpool/internal/config"
	"github.com/coldbell/signalpool/internal/logging"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg    config.CLIConfig
	logger *slog.Logger
	out    io.Writer
	close  func() error
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, close: func() error { return nil }}

	root := &cobra.Command{
		Use:          "poolctl",
		Short:        "Inspect and drive signal-provider trading pools",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().String("program", "", "pool program id (defaults to POOL_PROGRAM_ID)")
	root.PersistentFlags().String("rpc", "", "RPC URL (defaults to SOLANA_RPC_URL)")
	root.PersistentFlags().String("commitment", "", "processed|confirmed|finalized")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(newDeriveCmd(a))
	root.AddCommand(newIxCmd(a))
	root.AddCommand(newInspectCmd(a))
	root.AddCommand(newSimulateCmd(a))
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.LoadCLIConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if raw, _ := flags.GetString("program"); raw != "" {
		if cfg.ProgramID, err = solana.PublicKeyFromBase58(raw); err != nil {
			return fmt.Errorf("invalid --program: %w", err)
		}
	}
	if raw, _ := flags.GetString("rpc"); raw != "" {
		cfg.RPCURL = raw
	}
	if raw, _ := flags.GetString("commitment"); raw != "" {
		switch c := rpc.CommitmentType(strings.ToLower(raw)); c {
		case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
			cfg.Commitment = c
		default:
			return fmt.Errorf("invalid --commitment %q (expected processed|confirmed|finalized)", raw)
		}
	}
	if raw, _ := flags.GetString("log-level"); raw != "" {
		if _, err := logging.ParseLevel(raw); err != nil {
			return err
		}
		cfg.Log.Level = raw
	}
	// Results go to stdout; logs never mix with them.
	if cfg.Log.Output == "" || cfg.Log.Output == "console" {
		cfg.Log.Output = "stderr"
	}

	logger, closeLogger, err := logging.New("poolctl", cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.close = closeLogger
	return nil
}

func (a *app) requireProgram() (solana.PublicKey, error) {
	if a.cfg.ProgramID.IsZero() {
		return solana.PublicKey{}, fmt.Errorf("program id is required (--program or POOL_PROGRAM_ID)")
	}
	return a.cfg.ProgramID, nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
