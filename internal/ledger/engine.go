package ledger

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/kalpe/backend/internal/config"
)

// Engine owns one user's ledger: the current balance and the append-only
// transaction log, newest first. All mutation runs under the engine mutex,
// so two concurrent sends cannot both pass the sufficiency check against
// the same balance.
type Engine struct {
	mu      sync.Mutex
	userID  string
	balance int64
	// newest first
	transactions []Transaction
	store        Store
	cfg          *config.LedgerConfig
}

func newEngine(ctx context.Context, store Store, cfg *config.LedgerConfig, userID string) *Engine {
	e := &Engine{
		userID:  userID,
		balance: cfg.InitialBalance,
		store:   store,
		cfg:     cfg,
	}
	e.load(ctx)
	return e
}

func (e *Engine) balanceKey() string { return e.cfg.BalancePrefix + e.userID }
func (e *Engine) historyKey() string { return e.cfg.HistoryPrefix + e.userID }

// load seeds the engine from the store. Missing keys mean a fresh ledger;
// unreadable data is treated as a recoverable reset back to the seed
// state, never a fatal error.
func (e *Engine) load(ctx context.Context) {
	if raw, err := e.store.Load(ctx, e.balanceKey()); err != nil {
		log.Printf("[LEDGER] Failed to load balance for user %s, using seed state: %v", e.userID, err)
	} else if raw != nil {
		balance, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			log.Printf("[LEDGER] Corrupt balance for user %s, resetting to seed state: %v", e.userID, err)
		} else {
			e.balance = balance
		}
	}

	raw, err := e.store.Load(ctx, e.historyKey())
	if err != nil {
		log.Printf("[LEDGER] Failed to load transactions for user %s, starting empty: %v", e.userID, err)
		return
	}
	if raw == nil {
		return
	}
	var transactions []Transaction
	if err := json.Unmarshal(raw, &transactions); err != nil {
		log.Printf("[LEDGER] Corrupt transaction history for user %s, resetting: %v", e.userID, err)
		e.balance = e.cfg.InitialBalance
		e.transactions = nil
		return
	}
	e.transactions = transactions
}

// persistLocked writes balance and history in one atomic round. Callers
// hold e.mu. A persistence failure leaves the in-memory state
// authoritative for the rest of the session.
func (e *Engine) persistLocked(ctx context.Context) {
	history, err := json.Marshal(e.transactions)
	if err != nil {
		log.Printf("[LEDGER] Failed to serialize transactions for user %s: %v", e.userID, err)
		return
	}
	entries := map[string][]byte{
		e.balanceKey(): []byte(strconv.FormatInt(e.balance, 10)),
		e.historyKey(): history,
	}
	if err := e.store.SaveAll(ctx, entries); err != nil {
		log.Printf("[LEDGER] Failed to persist ledger for user %s, keeping in-memory state: %v", e.userID, err)
	}
}

// Balance returns the current balance.
func (e *Engine) Balance() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// TransactionHistory returns all transactions, newest first.
func (e *Engine) TransactionHistory() []Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Transaction, len(e.transactions))
	copy(out, e.transactions)
	return out
}

// BalanceHistory replays the transaction log oldest first and emits the
// running balance after each transaction. The emitted balances are exactly
// the BalanceAfter snapshots stored on the transactions.
func (e *Engine) BalanceHistory() []BalancePoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	history := make([]BalancePoint, 0, len(e.transactions))
	for i := len(e.transactions) - 1; i >= 0; i-- {
		tx := e.transactions[i]
		history = append(history, BalancePoint{Date: tx.Date, Balance: tx.BalanceAfter})
	}
	return history
}

// ProcessTransaction applies one transfer to the ledger. Sends are charged
// the 1% processing fee and rejected, without mutation, when the balance
// cannot cover amount plus fee. The constructed transaction stores the
// amount signed by direction and a balance snapshot.
func (e *Engine) ProcessTransaction(ctx context.Context, in TransferInput) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if in.Amount <= 0 {
		return Result{Success: false, NewBalance: e.balance, Error: ErrInvalidAmount.Error()}
	}
	if in.Type != TypeSend && in.Type != TypeReceive {
		return Result{Success: false, NewBalance: e.balance, Error: ErrInvalidType.Error()}
	}

	fee := Fee(in.Amount, in.Type)
	totalAmount := in.Amount
	if in.Type == TypeSend {
		totalAmount = in.Amount + fee
	}

	if in.Type == TypeSend && e.balance < totalAmount {
		return Result{Success: false, NewBalance: e.balance, Error: ErrInsufficientBalance.Error()}
	}

	newBalance := e.balance + totalAmount
	if in.Type == TypeSend {
		newBalance = e.balance - totalAmount
	}

	now := time.Now()
	reference := NewReference(now)

	tx := Transaction{
		ID:           reference,
		Type:         in.Type,
		Amount:       in.Amount,
		Date:         now,
		Category:     in.Category,
		Description:  in.Description,
		BalanceAfter: newBalance,
		Details: TransactionDetails{
			Reference: reference,
			Time:      now.Format("15:04:05"),
			Fee:       fee,
		},
	}
	if in.Type == TypeSend {
		tx.Amount = -in.Amount
		tx.Recipient = in.Counterparty
	} else {
		tx.Sender = in.Counterparty
	}

	e.balance = newBalance
	e.transactions = append([]Transaction{tx}, e.transactions...)
	e.persistLocked(ctx)

	return Result{Success: true, Transaction: &tx, NewBalance: newBalance}
}

// UpdateBalance overwrites the balance without recording a transaction.
// Side features that derived the new balance from the current one should
// use AdjustBalance instead so a transfer landing in between is not lost.
func (e *Engine) UpdateBalance(ctx context.Context, newBalance int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balance = newBalance
	e.persistLocked(ctx)
}

// AdjustBalance applies a signed delta to the balance without recording a
// transaction, and returns the resulting balance. This is the entry point
// for side features (vaults, settlements outside the transfer flow) that
// move value relative to whatever the balance is at apply time.
func (e *Engine) AdjustBalance(ctx context.Context, delta int64) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balance += delta
	e.persistLocked(ctx)
	return e.balance
}
