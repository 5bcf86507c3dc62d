// Package ledger keeps the double-entry money side of the service: payments
// in and out, the append-only entry log and withdrawal requests. Game
// settlements append entries through the exported tx helpers so money and
// pool state commit atomically.
package ledger

import (
	"errors"
	"time"
)

var (
	ErrInsufficientFunds  = errors.New("amount exceeds spendable balance")
	ErrBadAmount          = errors.New("amount must be positive")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrInvalidTransition  = errors.New("withdrawal is not in a state that allows this transition")
)

// Payment directions and statuses.
const (
	DirectionDeposit  = "deposit"
	DirectionWithdraw = "withdraw"

	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Withdrawal statuses. pending -> approved|rejected, approved -> dispatched|failed.
const (
	WithdrawalPending    = "pending"
	WithdrawalApproved   = "approved"
	WithdrawalRejected   = "rejected"
	WithdrawalDispatched = "dispatched"
	WithdrawalFailed     = "failed"
)

type Payment struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Direction   string     `json:"direction"`
	Asset       string     `json:"asset"`
	AmountNanos int64      `json:"amount_nanos"`
	Status      string     `json:"status"`
	TxHash      string     `json:"tx_hash,omitempty"`
	Memo        string     `json:"memo,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

type Entry struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	PaymentID  string    `json:"payment_id,omitempty"`
	DeltaNanos int64     `json:"delta_nanos"`
	Reason     string    `json:"reason"`
	RefID      string    `json:"ref_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Withdrawal struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	AmountNanos  int64      `json:"amount_nanos"`
	Status       string     `json:"status"`
	Network      string     `json:"network"`
	ToAddress    string     `json:"to_address"`
	TxHash       string     `json:"tx_hash,omitempty"`
	Failure      string     `json:"failure,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
}

// DepositIntent is what a client needs to make an on-chain deposit that the
// sync loop can reconcile back to them.
type DepositIntent struct {
	PaymentID      string `json:"payment_id"`
	DepositAddress string `json:"deposit_address"`
	Asset          string `json:"asset"`
	Memo           string `json:"memo"`
	AmountNanos    int64  `json:"amount_nanos"`
}
