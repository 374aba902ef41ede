package serum

import "fmt"

type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

func (s Side) Valid() bool { return s <= Ask }

type OrderType uint8

const (
	Limit OrderType = iota
	ImmediateOrCancel
	PostOnly
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case ImmediateOrCancel:
		return "immediate_or_cancel"
	case PostOnly:
		return "post_only"
	default:
		return fmt.Sprintf("order_type(%d)", uint8(t))
	}
}

func (t OrderType) Valid() bool { return t <= PostOnly }

type SelfTradeBehavior uint8

const (
	DecrementTake SelfTradeBehavior = iota
	CancelProvide
	AbortTransaction
)

func (b SelfTradeBehavior) String() string {
	switch b {
	case DecrementTake:
		return "decrement_take"
	case CancelProvide:
		return "cancel_provide"
	case AbortTransaction:
		return "abort_transaction"
	default:
		return fmt.Sprintf("self_trade(%d)", uint8(b))
	}
}

func (b SelfTradeBehavior) Valid() bool { return b <= AbortTransaction }
