// Package exchange is the contract between the pool program and the external order-book
// program it trades on.
package exchange

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/coldbell/signalpool/internal/ledger"
	"github.com/coldbell/signalpool/internal/serum"
)

type PlaceOrder struct {
	Market     solana.PublicKey
	OpenOrders solana.PublicKey
	// Payer is the token account the locked funds are drawn from.
	Payer             solana.PublicKey
	Side              serum.Side
	LimitPrice        uint64
	MaxCoinQty        uint64
	MaxNativePCQty    uint64
	OrderType         serum.OrderType
	ClientID          uint64
	SelfTradeBehavior serum.SelfTradeBehavior
}

type CancelOrder struct {
	Market     solana.PublicKey
	OpenOrders solana.PublicKey
	Side       serum.Side
	OrderID    uint128.Uint128
}

type SettleFunds struct {
	Market     solana.PublicKey
	OpenOrders solana.PublicKey
	CoinWallet solana.PublicKey
	PCWallet   solana.PublicKey
}

// Exchange is called synchronously inside the caller's ledger call. The open-orders owner
// must already hold signer privilege on tx when a method is invoked.
type Exchange interface {
	ProgramID() solana.PublicKey
	PlaceOrder(tx *ledger.Tx, req PlaceOrder) error
	CancelOrder(tx *ledger.Tx, req CancelOrder) error
	SettleFunds(tx *ledger.Tx, req SettleFunds) error
}
