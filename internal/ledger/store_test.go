package ledger

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

func TestRedisStore_LoadMissingKey(t *testing.T) {
	store := newTestRedisStore(t)

	val, err := store.Load(context.Background(), "kalpe:balance:nobody")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestRedisStore_SaveAllAndLoad(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	entries := map[string][]byte{
		"kalpe:balance:user1":      []byte("13990"),
		"kalpe:transactions:user1": []byte(`[{"id":"KLP-1-ABCDEF"}]`),
	}
	require.NoError(t, store.SaveAll(ctx, entries))

	balance, err := store.Load(ctx, "kalpe:balance:user1")
	require.NoError(t, err)
	assert.Equal(t, []byte("13990"), balance)

	history, err := store.Load(ctx, "kalpe:transactions:user1")
	require.NoError(t, err)
	assert.Equal(t, entries["kalpe:transactions:user1"], history)
}

func TestRedisStore_EngineRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	cfg := testConfig()
	ctx := context.Background()

	engine := NewManager(store, cfg).ForUser(ctx, "user1")
	res := engine.ProcessTransaction(ctx, TransferInput{
		Type:         TypeSend,
		Amount:       1000,
		Counterparty: "Fatou",
		Category:     "transfer",
	})
	require.True(t, res.Success)

	reloaded := NewManager(store, cfg).ForUser(ctx, "user1")
	assert.Equal(t, int64(13990), reloaded.Balance())
	history := reloaded.TransactionHistory()
	require.Len(t, history, 1)
	assert.Equal(t, res.Transaction.ID, history[0].ID)
	assert.Equal(t, int64(-1000), history[0].Amount)
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	val := []byte("15000")
	require.NoError(t, store.SaveAll(ctx, map[string][]byte{"k": val}))
	val[0] = 'X'

	got, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("15000"), got)
}
