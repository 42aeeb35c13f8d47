package ledger

import (
	"errors"
	"time"
)

// Amounts are whole CFA francs (no minor unit), stored as int64.

type TransactionType string

const (
	TypeSend    TransactionType = "send"
	TypeReceive TransactionType = "receive"
)

// TransactionDetails carries the human-facing reference and display fields
// captured at creation time.
type TransactionDetails struct {
	Reference string `json:"reference"`
	Time      string `json:"time"`
	Fee       int64  `json:"fee,omitempty"`
}

// Transaction is one recorded movement of value. Amount is signed: negative
// for outgoing transfers, positive for incoming ones. BalanceAfter is the
// ledger balance snapshot taken immediately after the transaction applied.
type Transaction struct {
	ID           string             `json:"id"`
	Type         TransactionType    `json:"type"`
	Amount       int64              `json:"amount"`
	Recipient    string             `json:"recipient,omitempty"`
	Sender       string             `json:"sender,omitempty"`
	Date         time.Time          `json:"date"`
	Category     string             `json:"category"`
	Description  string             `json:"description"`
	BalanceAfter int64              `json:"balanceAfter"`
	Details      TransactionDetails `json:"details"`
}

// BalancePoint is one sample of the running balance, used for charting.
type BalancePoint struct {
	Date    time.Time `json:"date"`
	Balance int64     `json:"balance"`
}

// TransferInput is the caller-supplied part of a transaction.
type TransferInput struct {
	Type         TransactionType
	Amount       int64
	Counterparty string
	Category     string
	Description  string
}

// Result is the structured outcome of ProcessTransaction. Failures are
// reported here, never as a panic across the engine boundary.
type Result struct {
	Success     bool         `json:"success"`
	Transaction *Transaction `json:"transaction,omitempty"`
	NewBalance  int64        `json:"newBalance"`
	Error       string       `json:"error,omitempty"`
}

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount (must be > 0)")
	ErrInvalidType         = errors.New("invalid transaction type")
)
