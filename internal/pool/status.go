package pool

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
)

// MaxPendingOrders bounds the number of simultaneously outstanding trades.
const MaxPendingOrders = 64

const (
	statusPendingFlag  byte = 1 << 6
	statusLockedFlag   byte = 2 << 6
	statusPendingMask  byte = 0x3f
	statusUnlockedByte byte = statusPendingMask
)

type StatusKind uint8

const (
	StatusUninitialized StatusKind = iota
	StatusUnlocked
	StatusLocked
	StatusPendingOrder
	StatusLockedPendingOrder
)

func (k StatusKind) String() string {
	switch k {
	case StatusUninitialized:
		return "uninitialized"
	case StatusUnlocked:
		return "unlocked"
	case StatusLocked:
		return "locked"
	case StatusPendingOrder:
		return "pending_order"
	case StatusLockedPendingOrder:
		return "locked_pending_order"
	default:
		return fmt.Sprintf("status(%d)", uint8(k))
	}
}

// PendingCount is a number of outstanding trades in [1, MaxPendingOrders].
type PendingCount uint8

func NewPendingCount(n int) (PendingCount, error) {
	if n < 1 || n > MaxPendingOrders {
		return 0, errorsmod.Wrapf(ErrOverflow, "pending order count %d outside [1,%d]", n, MaxPendingOrders)
	}
	return PendingCount(n), nil
}

// Status is the pool lock flag co-located with the pending trade counter.
// The zero value is Uninitialized.
type Status struct {
	kind    StatusKind
	pending PendingCount
}

var (
	Uninitialized = Status{kind: StatusUninitialized}
	Unlocked      = Status{kind: StatusUnlocked}
	Locked        = Status{kind: StatusLocked}
)

func PendingOrder(n PendingCount) Status {
	return Status{kind: StatusPendingOrder, pending: n}
}

func LockedPendingOrder(n PendingCount) Status {
	return Status{kind: StatusLockedPendingOrder, pending: n}
}

func (s Status) Kind() StatusKind { return s.kind }

// Pending returns the outstanding trade count, 0 when the status carries none.
func (s Status) Pending() int {
	if !s.HasPending() {
		return 0
	}
	return int(s.pending)
}

func (s Status) HasPending() bool {
	return s.kind == StatusPendingOrder || s.kind == StatusLockedPendingOrder
}

func (s Status) IsInitialized() bool { return s.kind != StatusUninitialized }

func (s Status) String() string {
	if s.HasPending() {
		return fmt.Sprintf("%s(%d)", s.kind, s.pending)
	}
	return s.kind.String()
}

// WithNewOrder is the transition applied when a trade is placed.
func (s Status) WithNewOrder() (Status, error) {
	switch s.kind {
	case StatusUnlocked:
		return PendingOrder(1), nil
	case StatusLocked:
		return LockedPendingOrder(1), nil
	case StatusPendingOrder, StatusLockedPendingOrder:
		next, err := NewPendingCount(int(s.pending) + 1)
		if err != nil {
			return s, err
		}
		return Status{kind: s.kind, pending: next}, nil
	default:
		return s, errorsmod.Wrap(ErrUninitializedAccount, "pool is not created")
	}
}

// WithSettledOrder is the transition applied when a trade is fully settled.
// Statuses without a pending count are returned unchanged.
func (s Status) WithSettledOrder() Status {
	switch s.kind {
	case StatusPendingOrder:
		if s.pending == 1 {
			return Unlocked
		}
		return PendingOrder(s.pending - 1)
	case StatusLockedPendingOrder:
		if s.pending == 1 {
			return Locked
		}
		return LockedPendingOrder(s.pending - 1)
	default:
		return s
	}
}

// Byte packs the status: top 2 bits tag, low 6 bits pending-1.
func (s Status) Byte() byte {
	switch s.kind {
	case StatusUnlocked:
		return statusUnlockedByte
	case StatusLocked:
		return statusLockedFlag
	case StatusPendingOrder:
		return statusPendingFlag | (statusPendingMask & byte(s.pending-1))
	case StatusLockedPendingOrder:
		return statusLockedFlag | statusPendingFlag | (statusPendingMask & byte(s.pending-1))
	default:
		return 0
	}
}

func StatusFromByte(b byte) Status {
	if b == 0 {
		return Uninitialized
	}
	n := PendingCount(b&statusPendingMask) + 1
	switch b >> 6 {
	case 0:
		return Unlocked
	case 1:
		return PendingOrder(n)
	case 2:
		return Locked
	default:
		return LockedPendingOrder(n)
	}
}
