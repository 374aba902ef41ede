package crank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var ErrAccountNotFound = errors.New("account not found")

type Account struct {
	Key   solana.PublicKey
	Owner solana.PublicKey
	Data  []byte
}

// Chain is the cluster surface the crank reads pools from and sends settlements to.
type Chain interface {
	GetAccount(ctx context.Context, key solana.PublicKey) (*Account, error)
	// GetOwnedAccounts lists program accounts of exactly size bytes carrying owner at
	// ownerOffset.
	GetOwnedAccounts(ctx context.Context, program, owner solana.PublicKey, ownerOffset, size int) ([]Account, error)
	// Send signs instructions with the crank's fee payer and waits for confirmation.
	Send(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error)
}

type rpcChain struct {
	rpc           *rpc.Client
	signer        solana.PrivateKey
	commitment    rpc.CommitmentType
	skipPreflight bool
	maxRetries    *uint
	txTimeout     time.Duration
}

var _ Chain = (*rpcChain)(nil)

func (c *rpcChain) GetAccount(ctx context.Context, key solana.PublicKey) (*Account, error) {
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("getAccountInfo %s: %w", key, err)
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	return &Account{Key: key, Owner: out.Value.Owner, Data: out.Value.Data.GetBinary()}, nil
}

func (c *rpcChain) GetOwnedAccounts(ctx context.Context, program, owner solana.PublicKey, ownerOffset, size int) ([]Account, error) {
	items, err := c.rpc.GetProgramAccountsWithOpts(ctx, program, &rpc.GetProgramAccountsOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{DataSize: uint64(size)},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: uint64(ownerOffset), Bytes: solana.Base58(owner[:])}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getProgramAccounts %s: %w", program, err)
	}
	out := make([]Account, 0, len(items))
	for _, item := range items {
		if item == nil || item.Account == nil {
			continue
		}
		out = append(out, Account{Key: item.Pubkey, Owner: item.Account.Owner, Data: item.Account.Data.GetBinary()})
	}
	return out, nil
}

func (c *rpcChain) Send(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	txCtx, cancel := context.WithTimeout(ctx, c.txTimeout)
	defer cancel()

	signature, err := c.sendTransaction(txCtx, instructions)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	if err := c.waitForConfirmation(txCtx, signature); err != nil {
		return signature, fmt.Errorf("wait confirmation %s: %w", signature, err)
	}
	return signature, nil
}

func (c *rpcChain) sendTransaction(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	recent, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(c.signer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if c.signer.PublicKey().Equals(key) {
			return &c.signer
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	opts := rpc.TransactionOpts{
		SkipPreflight:       c.skipPreflight,
		PreflightCommitment: c.commitment,
	}
	if c.maxRetries != nil {
		retries := *c.maxRetries
		opts.MaxRetries = &retries
	}
	return c.rpc.SendTransactionWithOpts(ctx, tx, opts)
}

func (c *rpcChain) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(700 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			result, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				continue
			}
			if len(result.Value) == 0 || result.Value[0] == nil {
				continue
			}
			status := result.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction failed: %v", status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
	}
}
