package ledger

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/kalpe/backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.LedgerConfig {
	return &config.LedgerConfig{
		InitialBalance: 15000,
		Currency:       "XOF",
		BalancePrefix:  "kalpe:balance:",
		HistoryPrefix:  "kalpe:transactions:",
	}
}

func newTestEngine(t *testing.T) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	manager := NewManager(store, testConfig())
	return manager.ForUser(context.Background(), "user1"), store
}

func TestEngine_ProcessTransaction_Send(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	res := engine.ProcessTransaction(ctx, TransferInput{
		Type:         TypeSend,
		Amount:       1000,
		Counterparty: "Aminata Diallo",
		Category:     "transfer",
		Description:  "Envoi d'argent",
	})

	require.True(t, res.Success)
	require.NotNil(t, res.Transaction)
	// fee = round(1000 * 1%) = 10, total debit 1010
	assert.Equal(t, int64(13990), res.NewBalance)
	assert.Equal(t, int64(13990), engine.Balance())
	assert.Equal(t, int64(-1000), res.Transaction.Amount)
	assert.Equal(t, int64(13990), res.Transaction.BalanceAfter)
	assert.Equal(t, int64(10), res.Transaction.Details.Fee)
	assert.Equal(t, "Aminata Diallo", res.Transaction.Recipient)
	assert.Empty(t, res.Transaction.Sender)
}

func TestEngine_ProcessTransaction_Receive(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	res := engine.ProcessTransaction(ctx, TransferInput{
		Type:         TypeReceive,
		Amount:       2000,
		Counterparty: "Moussa Ndiaye",
		Category:     "transfer",
		Description:  "Argent reçu",
	})

	require.True(t, res.Success)
	assert.Equal(t, int64(17000), res.NewBalance)
	assert.Equal(t, int64(2000), res.Transaction.Amount)
	assert.Equal(t, int64(0), res.Transaction.Details.Fee)
	assert.Equal(t, "Moussa Ndiaye", res.Transaction.Sender)
	assert.Empty(t, res.Transaction.Recipient)
}

func TestEngine_ProcessTransaction_InsufficientBalance(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	engine.UpdateBalance(ctx, 500)
	res := engine.ProcessTransaction(ctx, TransferInput{
		Type:         TypeSend,
		Amount:       1000,
		Counterparty: "Aminata Diallo",
		Category:     "transfer",
	})

	assert.False(t, res.Success)
	assert.Equal(t, ErrInsufficientBalance.Error(), res.Error)
	assert.Equal(t, int64(500), res.NewBalance)
	assert.Equal(t, int64(500), engine.Balance())
	assert.Empty(t, engine.TransactionHistory())
}

func TestEngine_ProcessTransaction_InvalidAmount(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	for _, amount := range []int64{0, -5} {
		res := engine.ProcessTransaction(ctx, TransferInput{Type: TypeSend, Amount: amount})
		assert.False(t, res.Success)
		assert.Equal(t, ErrInvalidAmount.Error(), res.Error)
	}
	assert.Equal(t, int64(15000), engine.Balance())
}

func TestEngine_ProcessTransaction_FeeCoversExactBalance(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// 1000 + 10 fee exactly exhausts a 1010 balance
	engine.UpdateBalance(ctx, 1010)
	res := engine.ProcessTransaction(ctx, TransferInput{Type: TypeSend, Amount: 1000, Category: "transfer"})
	require.True(t, res.Success)
	assert.Equal(t, int64(0), res.NewBalance)

	// and one more franc of fee would have blocked it
	engine.UpdateBalance(ctx, 1009)
	res = engine.ProcessTransaction(ctx, TransferInput{Type: TypeSend, Amount: 1000, Category: "transfer"})
	assert.False(t, res.Success)
}

func TestEngine_ReferenceFormat(t *testing.T) {
	engine, _ := newTestEngine(t)
	res := engine.ProcessTransaction(context.Background(), TransferInput{Type: TypeReceive, Amount: 100})
	require.True(t, res.Success)

	ref := res.Transaction.Details.Reference
	parts := strings.Split(ref, "-")
	require.Len(t, parts, 3)
	assert.Equal(t, "KLP", parts[0])
	assert.Len(t, parts[2], 6)
	assert.Equal(t, strings.ToUpper(ref), ref)
	// one reference is generated per transaction and shared by both fields
	assert.Equal(t, res.Transaction.ID, ref)
}

func TestEngine_TransactionHistoryNewestFirst(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	engine.ProcessTransaction(ctx, TransferInput{Type: TypeReceive, Amount: 100, Description: "first"})
	engine.ProcessTransaction(ctx, TransferInput{Type: TypeReceive, Amount: 200, Description: "second"})
	engine.ProcessTransaction(ctx, TransferInput{Type: TypeSend, Amount: 50, Description: "third"})

	history := engine.TransactionHistory()
	require.Len(t, history, 3)
	assert.Equal(t, "third", history[0].Description)
	assert.Equal(t, "second", history[1].Description)
	assert.Equal(t, "first", history[2].Description)
}

func TestEngine_BalanceHistoryReplaysSnapshots(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	engine.ProcessTransaction(ctx, TransferInput{Type: TypeReceive, Amount: 1000})
	engine.ProcessTransaction(ctx, TransferInput{Type: TypeSend, Amount: 500})
	engine.ProcessTransaction(ctx, TransferInput{Type: TypeReceive, Amount: 250})

	history := engine.BalanceHistory()
	require.Len(t, history, 3)

	// oldest first, each point equal to the BalanceAfter snapshot
	transactions := engine.TransactionHistory()
	for i, point := range history {
		tx := transactions[len(transactions)-1-i]
		assert.Equal(t, tx.BalanceAfter, point.Balance)
		assert.Equal(t, tx.Date, point.Date)
	}
	assert.Equal(t, int64(16000), history[0].Balance)
	assert.Equal(t, int64(15495), history[1].Balance) // -500 -5 fee
	assert.Equal(t, int64(15745), history[2].Balance)
}

func TestEngine_PersistenceRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	cfg := testConfig()
	ctx := context.Background()

	manager := NewManager(store, cfg)
	engine := manager.ForUser(ctx, "user1")
	engine.ProcessTransaction(ctx, TransferInput{Type: TypeSend, Amount: 1000, Counterparty: "Awa", Category: "transfer", Description: "loyer"})
	engine.ProcessTransaction(ctx, TransferInput{Type: TypeReceive, Amount: 300, Counterparty: "Omar"})

	// a fresh manager over the same store must reproduce the state
	reloaded := NewManager(store, cfg).ForUser(ctx, "user1")
	assert.Equal(t, engine.Balance(), reloaded.Balance())

	original := engine.TransactionHistory()
	restored := reloaded.TransactionHistory()
	require.Len(t, restored, len(original))
	for i := range original {
		assert.Equal(t, original[i].ID, restored[i].ID)
		assert.Equal(t, original[i].Amount, restored[i].Amount)
		assert.Equal(t, original[i].BalanceAfter, restored[i].BalanceAfter)
		assert.Equal(t, original[i].Details.Reference, restored[i].Details.Reference)
		assert.True(t, original[i].Date.Equal(restored[i].Date))
	}
}

func TestEngine_CorruptHistoryFallsBackToSeed(t *testing.T) {
	store := NewMemoryStore()
	cfg := testConfig()
	ctx := context.Background()

	require.NoError(t, store.SaveAll(ctx, map[string][]byte{
		cfg.BalancePrefix + "user1": []byte("9000"),
		cfg.HistoryPrefix + "user1": []byte("{not json"),
	}))

	engine := NewManager(store, cfg).ForUser(ctx, "user1")
	assert.Equal(t, int64(15000), engine.Balance())
	assert.Empty(t, engine.TransactionHistory())
}

func TestEngine_CorruptBalanceKeepsSeedBalance(t *testing.T) {
	store := NewMemoryStore()
	cfg := testConfig()
	ctx := context.Background()

	require.NoError(t, store.SaveAll(ctx, map[string][]byte{
		cfg.BalancePrefix + "user1": []byte("not-a-number"),
	}))

	engine := NewManager(store, cfg).ForUser(ctx, "user1")
	assert.Equal(t, int64(15000), engine.Balance())
}

func TestEngine_ConcurrentSendsNeverOverdraw(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	engine.UpdateBalance(ctx, 5000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.ProcessTransaction(ctx, TransferInput{Type: TypeSend, Amount: 1000, Category: "transfer"})
		}()
	}
	wg.Wait()

	// 1000 + 10 fee per send: at most 4 of the 20 can succeed
	assert.GreaterOrEqual(t, engine.Balance(), int64(0))
	assert.Len(t, engine.TransactionHistory(), 4)
	assert.Equal(t, int64(5000-4*1010), engine.Balance())
}

func TestEngine_AdjustBalanceAppliesDelta(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// A transfer settling between the caller's balance read and the
	// adjustment is not overwritten by the delta.
	stale := engine.Balance()
	engine.ProcessTransaction(ctx, TransferInput{Type: TypeSend, Amount: 1000, Category: "transfer"})

	got := engine.AdjustBalance(ctx, -5000)
	assert.Equal(t, int64(15000-1010-5000), got)
	assert.Equal(t, got, engine.Balance())
	assert.NotEqual(t, stale-5000, got)

	got = engine.AdjustBalance(ctx, 2000)
	assert.Equal(t, int64(15000-1010-5000+2000), got)
}

func TestManager_ReturnsSameEnginePerUser(t *testing.T) {
	manager := NewManager(NewMemoryStore(), testConfig())
	ctx := context.Background()

	a := manager.ForUser(ctx, "user1")
	b := manager.ForUser(ctx, "user1")
	other := manager.ForUser(ctx, "user2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)

	a.UpdateBalance(ctx, 1)
	assert.Equal(t, int64(1), b.Balance())
	assert.Equal(t, int64(15000), other.Balance())
}
