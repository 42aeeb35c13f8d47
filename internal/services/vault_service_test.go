package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/kalpe/backend/internal/config"
	"github.com/kalpe/backend/internal/ledger"
	"github.com/kalpe/backend/internal/models"
)

func newTestVaultService(t *testing.T) (*VaultService, sqlmock.Sqlmock, *ledger.Manager) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.LedgerConfig{
		InitialBalance: 15000,
		Currency:       "XOF",
		BalancePrefix:  "kalpe:balance:",
		HistoryPrefix:  "kalpe:transactions:",
	}
	manager := ledger.NewManager(ledger.NewMemoryStore(), cfg)
	return NewVaultService(db, manager), mock, manager
}

func vaultRouter(vs *VaultService) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/vaults", vs.CreateVault)
	r.Get("/vaults", vs.ListVaults)
	r.Delete("/vaults/{vaultId}", vs.DeleteVault)
	r.Post("/vaults/{vaultId}/deposit", vs.Deposit)
	r.Post("/vaults/{vaultId}/withdraw", vs.Withdraw)
	return r
}

func testTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func vaultColumns() []string {
	return []string{"id", "user_id", "name", "purpose", "balance", "target_amount", "color", "icon", "is_locked", "created_at", "updated_at"}
}

func TestVaultService_CreateVault(t *testing.T) {
	vs, mock, _ := newTestVaultService(t)
	router := vaultRouter(vs)

	t.Run("successful creation", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO vaults").
			WillReturnRows(sqlmock.NewRows(vaultColumns()).
				AddRow("vault-1", "user1", "Tabaski", "savings", 0, 50000, "green", "sheep", false, testTime(), testTime()))

		body, _ := json.Marshal(models.CreateVaultRequest{
			Name:         "Tabaski",
			Purpose:      "savings",
			TargetAmount: 50000,
			Color:        "green",
			Icon:         "sheep",
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("POST", "/vaults", body))

		assert.Equal(t, http.StatusCreated, w.Code)

		var vault models.Vault
		json.Unmarshal(w.Body.Bytes(), &vault)
		assert.Equal(t, "Tabaski", vault.Name)
		assert.Equal(t, int64(0), vault.Balance)
	})

	t.Run("invalid purpose", func(t *testing.T) {
		body, _ := json.Marshal(models.CreateVaultRequest{
			Name:    "Tabaski",
			Purpose: "gambling",
			Color:   "green",
			Icon:    "sheep",
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("POST", "/vaults", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing auth context", func(t *testing.T) {
		body, _ := json.Marshal(models.CreateVaultRequest{Name: "Tabaski", Purpose: "savings", Color: "green", Icon: "sheep"})
		req := httptest.NewRequest("POST", "/vaults", bytes.NewBuffer(body))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestVaultService_DeleteVault(t *testing.T) {
	vs, mock, manager := newTestVaultService(t)
	router := vaultRouter(vs)

	t.Run("refunds remaining balance to wallet", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance, is_locked FROM vaults").
			WithArgs("vault-1", "user1").
			WillReturnRows(sqlmock.NewRows([]string{"balance", "is_locked"}).AddRow(3000, false))
		mock.ExpectExec("DELETE FROM vault_transactions").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("DELETE FROM vaults").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		engine := manager.ForUser(context.Background(), "user1")
		before := engine.Balance()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("DELETE", "/vaults/vault-1", nil))

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, float64(3000), response["refunded"])
		assert.Equal(t, before+3000, engine.Balance())
	})

	t.Run("locked vault rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance, is_locked FROM vaults").
			WithArgs("vault-1", "user1").
			WillReturnRows(sqlmock.NewRows([]string{"balance", "is_locked"}).AddRow(3000, true))
		mock.ExpectRollback()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("DELETE", "/vaults/vault-1", nil))

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown vault", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance, is_locked FROM vaults").
			WithArgs("vault-9", "user1").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("DELETE", "/vaults/vault-9", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestVaultService_Deposit(t *testing.T) {
	vs, mock, manager := newTestVaultService(t)
	router := vaultRouter(vs)

	t.Run("successful deposit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, user_id, name, purpose, balance").
			WithArgs("vault-1", "user1").
			WillReturnRows(sqlmock.NewRows(vaultColumns()).
				AddRow("vault-1", "user1", "Tabaski", "savings", 0, 50000, "green", "sheep", false, testTime(), testTime()))
		mock.ExpectQuery("UPDATE vaults SET balance").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(5000))
		mock.ExpectExec("INSERT INTO vault_transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(VaultMoveRequest{Amount: 5000})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("POST", "/vaults/vault-1/deposit", body))

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, float64(10000), response["walletBalance"])

		engine := manager.ForUser(context.Background(), "user1")
		assert.Equal(t, int64(10000), engine.Balance())
	})

	t.Run("insufficient wallet balance", func(t *testing.T) {
		body, _ := json.Marshal(VaultMoveRequest{Amount: 1_000_000})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("POST", "/vaults/vault-1/deposit", body))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestVaultService_Withdraw(t *testing.T) {
	vs, mock, manager := newTestVaultService(t)
	router := vaultRouter(vs)

	t.Run("locked vault rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, user_id, name, purpose, balance").
			WithArgs("vault-1", "user1").
			WillReturnRows(sqlmock.NewRows(vaultColumns()).
				AddRow("vault-1", "user1", "Tabaski", "savings", 5000, 50000, "green", "sheep", true, testTime(), testTime()))
		mock.ExpectRollback()

		body, _ := json.Marshal(VaultMoveRequest{Amount: 1000})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("POST", "/vaults/vault-1/withdraw", body))

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("insufficient vault balance", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, user_id, name, purpose, balance").
			WithArgs("vault-1", "user1").
			WillReturnRows(sqlmock.NewRows(vaultColumns()).
				AddRow("vault-1", "user1", "Tabaski", "savings", 500, 50000, "green", "sheep", false, testTime(), testTime()))
		mock.ExpectRollback()

		body, _ := json.Marshal(VaultMoveRequest{Amount: 1000})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("POST", "/vaults/vault-1/withdraw", body))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("successful withdrawal credits wallet", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, user_id, name, purpose, balance").
			WithArgs("vault-1", "user1").
			WillReturnRows(sqlmock.NewRows(vaultColumns()).
				AddRow("vault-1", "user1", "Tabaski", "savings", 5000, 50000, "green", "sheep", false, testTime(), testTime()))
		mock.ExpectQuery("UPDATE vaults SET balance").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(3000))
		mock.ExpectExec("INSERT INTO vault_transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		engine := manager.ForUser(context.Background(), "user1")
		before := engine.Balance()

		body, _ := json.Marshal(VaultMoveRequest{Amount: 2000})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("POST", "/vaults/vault-1/withdraw", body))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, before+2000, engine.Balance())
	})
}
