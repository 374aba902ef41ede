package main

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"
	"lukechampine.com/uint128"

	"github.com/coldbell/signalpool/internal/config"
	"github.com/coldbell/signalpool/internal/instruction"
	"github.com/coldbell/signalpool/internal/serum"
)

func newIxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ix",
		Short: "Encode and decode pool instruction data",
	}
	cmd.AddCommand(newIxDecodeCmd(a))
	cmd.AddCommand(newIxEncodeCmd(a))
	return cmd
}

func newIxDecodeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <data>",
		Short: "Decode instruction data into JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			encoding, _ := cmd.Flags().GetString("encoding")
			data, err := decodeBytes(args[0], encoding)
			if err != nil {
				return err
			}
			ix, err := instruction.Decode(data)
			if err != nil {
				return err
			}
			body, err := json.MarshalIndent(describe(ix), "", "  ")
			if err != nil {
				return err
			}
			a.printf("%s\n", body)
			return nil
		},
	}
	cmd.Flags().String("encoding", "hex", "input encoding: hex|base64|base58")
	return cmd
}

func decodeBytes(raw, encoding string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(encoding) {
	case "hex":
		return hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	case "base64":
		return base64.StdEncoding.DecodeString(raw)
	case "base58":
		return base58.Decode(raw)
	default:
		return nil, fmt.Errorf("unknown encoding %q (expected hex|base64|base58)", encoding)
	}
}

// describe renders a decoded call with human-readable enums and base58 keys.
func describe(ix instruction.Instruction) map[string]any {
	out := map[string]any{
		"call":      ix.Tag().String(),
		"pool_seed": ix.PoolSeed().String(),
	}
	switch call := ix.(type) {
	case *instruction.Init:
		out["max_assets"] = call.MaxAssets
		out["number_of_markets"] = call.NumberOfMarkets
	case *instruction.Create:
		markets := make([]string, len(call.Markets))
		for i, m := range call.Markets {
			markets[i] = m.String()
		}
		out["exchange_program"] = call.ExchangeProgram.String()
		out["signal_provider"] = call.SignalProvider.String()
		out["fee_collection_period"] = call.FeeCollectionPeriod
		out["fee_ratio"] = call.FeeRatio
		out["markets"] = markets
		out["deposit_amounts"] = call.DepositAmounts
	case *instruction.Deposit:
		out["amount"] = call.Amount
	case *instruction.Redeem:
		out["amount"] = call.Amount
	case *instruction.CreateOrder:
		out["side"] = call.Side.String()
		out["limit_price"] = call.LimitPrice
		out["ratio"] = call.Ratio
		out["order_type"] = call.OrderType.String()
		out["market_index"] = call.MarketIndex
		out["source_index"] = call.SourceIndex
		out["target_index"] = call.TargetIndex
		out["client_id"] = call.ClientID
		out["self_trade_behavior"] = call.SelfTradeBehavior.String()
	case *instruction.CancelOrder:
		out["side"] = call.Side.String()
		out["order_id"] = call.OrderID.String()
	case *instruction.SettleFunds:
		out["pc_index"] = call.PCIndex
		out["coin_index"] = call.CoinIndex
	}
	return out
}

func newIxEncodeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode instruction data as hex",
	}
	cmd.PersistentFlags().String("seed", "", "pool seed, base58 or 64 hex characters")

	emit := func(cmd *cobra.Command, build func() (instruction.Instruction, error)) error {
		ix, err := build()
		if err != nil {
			return err
		}
		data, err := instruction.Encode(ix)
		if err != nil {
			return err
		}
		a.printf("%x\n", data)
		return nil
	}
	seedOf := func(cmd *cobra.Command) (instruction.Init, error) {
		raw, _ := cmd.Flags().GetString("seed")
		if raw == "" {
			return instruction.Init{}, fmt.Errorf("--seed is required")
		}
		seed, err := config.ParsePoolSeed(raw)
		return instruction.Init{Seed: seed}, err
	}

	initCmd := &cobra.Command{
		Use:  "init",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return emit(cmd, func() (instruction.Instruction, error) {
				ix, err := seedOf(cmd)
				if err != nil {
					return nil, err
				}
				ix.MaxAssets, _ = cmd.Flags().GetUint32("max-assets")
				ix.NumberOfMarkets, _ = cmd.Flags().GetUint16("markets")
				return &ix, nil
			})
		},
	}
	initCmd.Flags().Uint32("max-assets", 4, "asset slot count")
	initCmd.Flags().Uint16("markets", 1, "whitelisted market count")

	amountCall := func(use string, wrap func(instruction.Init, uint64) instruction.Instruction) *cobra.Command {
		c := &cobra.Command{
			Use:  use,
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return emit(cmd, func() (instruction.Instruction, error) {
					base, err := seedOf(cmd)
					if err != nil {
						return nil, err
					}
					amount, _ := cmd.Flags().GetUint64("amount")
					return wrap(base, amount), nil
				})
			},
		}
		c.Flags().Uint64("amount", 0, "share amount")
		return c
	}
	depositCmd := amountCall("deposit", func(base instruction.Init, amount uint64) instruction.Instruction {
		return &instruction.Deposit{Seed: base.Seed, Amount: amount}
	})
	redeemCmd := amountCall("redeem", func(base instruction.Init, amount uint64) instruction.Instruction {
		return &instruction.Redeem{Seed: base.Seed, Amount: amount}
	})

	settleCmd := &cobra.Command{
		Use:  "settle",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return emit(cmd, func() (instruction.Instruction, error) {
				base, err := seedOf(cmd)
				if err != nil {
					return nil, err
				}
				pcIndex, _ := cmd.Flags().GetUint64("pc-index")
				coinIndex, _ := cmd.Flags().GetUint64("coin-index")
				return &instruction.SettleFunds{Seed: base.Seed, PCIndex: pcIndex, CoinIndex: coinIndex}, nil
			})
		},
	}
	settleCmd.Flags().Uint64("pc-index", 0, "slot receiving the quote currency")
	settleCmd.Flags().Uint64("coin-index", 1, "slot receiving the base currency")

	cancelCmd := &cobra.Command{
		Use:  "cancel",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return emit(cmd, func() (instruction.Instruction, error) {
				base, err := seedOf(cmd)
				if err != nil {
					return nil, err
				}
				rawSide, _ := cmd.Flags().GetString("side")
				side, err := parseSide(rawSide)
				if err != nil {
					return nil, err
				}
				rawID, _ := cmd.Flags().GetString("order-id")
				id, err := uint128.FromString(rawID)
				if err != nil {
					return nil, fmt.Errorf("invalid --order-id %q: %w", rawID, err)
				}
				return &instruction.CancelOrder{Seed: base.Seed, Side: side, OrderID: id}, nil
			})
		},
	}
	cancelCmd.Flags().String("side", "bid", "bid|ask")
	cancelCmd.Flags().String("order-id", "0", "exchange order id (decimal u128)")

	createCmd := &cobra.Command{
		Use:  "create",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return emit(cmd, func() (instruction.Instruction, error) {
				base, err := seedOf(cmd)
				if err != nil {
					return nil, err
				}
				ix := &instruction.Create{Seed: base.Seed}
				if ix.ExchangeProgram, err = pubkeyFlag(cmd, "exchange-program"); err != nil {
					return nil, err
				}
				if ix.SignalProvider, err = pubkeyFlag(cmd, "signal-provider"); err != nil {
					return nil, err
				}
				ix.FeeCollectionPeriod, _ = cmd.Flags().GetUint64("fee-period")
				ix.FeeRatio, _ = cmd.Flags().GetUint16("fee-ratio")
				markets, _ := cmd.Flags().GetStringSlice("market")
				for _, raw := range markets {
					market, err := solana.PublicKeyFromBase58(strings.TrimSpace(raw))
					if err != nil {
						return nil, fmt.Errorf("invalid --market %q: %w", raw, err)
					}
					ix.Markets = append(ix.Markets, market)
				}
				amounts, _ := cmd.Flags().GetStringSlice("amount")
				for _, raw := range amounts {
					amount, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
					if err != nil {
						return nil, fmt.Errorf("invalid --amount %q: %w", raw, err)
					}
					ix.DepositAmounts = append(ix.DepositAmounts, amount)
				}
				return ix, nil
			})
		},
	}
	createCmd.Flags().String("exchange-program", "", "exchange program id")
	createCmd.Flags().String("signal-provider", "", "signal provider key")
	createCmd.Flags().Uint64("fee-period", 0, "fee collection period in seconds")
	createCmd.Flags().Uint16("fee-ratio", 0, "fee ratio, 16-bit fixed point")
	createCmd.Flags().StringSlice("market", nil, "whitelisted market, repeatable")
	createCmd.Flags().StringSlice("amount", nil, "deposit amount per asset in slot order, repeatable")

	createOrderCmd := &cobra.Command{
		Use:  "create-order",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return emit(cmd, func() (instruction.Instruction, error) {
				base, err := seedOf(cmd)
				if err != nil {
					return nil, err
				}
				ix := &instruction.CreateOrder{Seed: base.Seed}
				rawSide, _ := cmd.Flags().GetString("side")
				if ix.Side, err = parseSide(rawSide); err != nil {
					return nil, err
				}
				rawType, _ := cmd.Flags().GetString("order-type")
				if ix.OrderType, err = parseOrderType(rawType); err != nil {
					return nil, err
				}
				rawSelfTrade, _ := cmd.Flags().GetString("self-trade")
				if ix.SelfTradeBehavior, err = parseSelfTrade(rawSelfTrade); err != nil {
					return nil, err
				}
				ix.LimitPrice, _ = cmd.Flags().GetUint64("price")
				ix.Ratio, _ = cmd.Flags().GetUint16("ratio")
				ix.MarketIndex, _ = cmd.Flags().GetUint16("market-index")
				ix.SourceIndex, _ = cmd.Flags().GetUint64("source-index")
				ix.TargetIndex, _ = cmd.Flags().GetUint64("target-index")
				ix.ClientID, _ = cmd.Flags().GetUint64("client-id")
				return ix, nil
			})
		},
	}
	createOrderCmd.Flags().String("side", "bid", "bid|ask")
	createOrderCmd.Flags().Uint64("price", 0, "limit price in quote lots per base lot")
	createOrderCmd.Flags().Uint16("ratio", 0, "share of the source balance to trade, 16-bit fixed point")
	createOrderCmd.Flags().String("order-type", "limit", "limit|immediate_or_cancel|post_only")
	createOrderCmd.Flags().Uint16("market-index", 0, "whitelist entry of the market")
	createOrderCmd.Flags().Uint64("source-index", 0, "slot paying for the order")
	createOrderCmd.Flags().Uint64("target-index", 1, "slot receiving the proceeds")
	createOrderCmd.Flags().Uint64("client-id", 0, "client order id")
	createOrderCmd.Flags().String("self-trade", "decrement_take", "decrement_take|cancel_provide|abort_transaction")

	cmd.AddCommand(initCmd, createCmd, depositCmd, redeemCmd, createOrderCmd, settleCmd, cancelCmd)
	return cmd
}

func parseSide(raw string) (serum.Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "bid", "buy":
		return serum.Bid, nil
	case "ask", "sell":
		return serum.Ask, nil
	default:
		return 0, fmt.Errorf("invalid side %q (expected bid|ask)", raw)
	}
}

func pubkeyFlag(cmd *cobra.Command, name string) (solana.PublicKey, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return solana.PublicKey{}, fmt.Errorf("--%s is required", name)
	}
	key, err := solana.PublicKeyFromBase58(strings.TrimSpace(raw))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	return key, nil
}

func parseOrderType(raw string) (serum.OrderType, error) {
	for t := serum.Limit; t.Valid(); t++ {
		if strings.EqualFold(strings.TrimSpace(raw), t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("invalid order type %q (expected limit|immediate_or_cancel|post_only)", raw)
}

func parseSelfTrade(raw string) (serum.SelfTradeBehavior, error) {
	for b := serum.DecrementTake; b.Valid(); b++ {
		if strings.EqualFold(strings.TrimSpace(raw), b.String()) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("invalid self trade behavior %q (expected decrement_take|cancel_provide|abort_transaction)", raw)
}
