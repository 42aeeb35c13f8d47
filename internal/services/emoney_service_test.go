package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kalpe/backend/internal/config"
	"github.com/kalpe/backend/internal/ledger"
)

func newTestEMoneyService() *EMoneyService {
	cfg := &config.LedgerConfig{
		InitialBalance: 15000,
		Currency:       "XOF",
		BalancePrefix:  "kalpe:balance:",
		HistoryPrefix:  "kalpe:transactions:",
	}
	return NewEMoneyService(ledger.NewManager(ledger.NewMemoryStore(), cfg))
}

func TestEMoneyService_ListProviders(t *testing.T) {
	service := newTestEMoneyService()

	w := httptest.NewRecorder()
	service.ListProviders(w, httptest.NewRequest("GET", "/emoney", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Providers []EMoneyProvider `json:"providers"`
	}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Len(t, response.Providers, 4)
	assert.Equal(t, "wave", response.Providers[0].ID)
	assert.Equal(t, "Wave", response.Providers[0].Name)
}

func TestEMoneyService_Transfer(t *testing.T) {
	service := newTestEMoneyService()

	t.Run("send to provider debits wallet with fee", func(t *testing.T) {
		body, _ := json.Marshal(EMoneyTransferRequest{Provider: "wave", Type: "send", Amount: 3000})

		w := httptest.NewRecorder()
		service.Transfer(w, authedRequest("POST", "/emoney/transfer", body))

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, "Wave", response["provider"])
		// 15000 - 3000 - 30 fee
		assert.Equal(t, float64(11970), response["newBalance"])

		tx := response["transaction"].(map[string]interface{})
		assert.Equal(t, "e-money", tx["category"])
		assert.Equal(t, "Wave", tx["recipient"])
		assert.Equal(t, "Envoi vers Wave", tx["description"])
	})

	t.Run("receive from provider credits wallet without fee", func(t *testing.T) {
		body, _ := json.Marshal(EMoneyTransferRequest{Provider: "orange-money", Type: "receive", Amount: 5000})

		w := httptest.NewRecorder()
		service.Transfer(w, authedRequest("POST", "/emoney/transfer", body))

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		// 11970 + 5000
		assert.Equal(t, float64(16970), response["newBalance"])

		tx := response["transaction"].(map[string]interface{})
		assert.Equal(t, "Orange Money", tx["sender"])
		assert.Equal(t, "Réception depuis Orange Money", tx["description"])
	})

	t.Run("unknown provider rejected", func(t *testing.T) {
		body, _ := json.Marshal(EMoneyTransferRequest{Provider: "mpesa", Type: "send", Amount: 1000})

		w := httptest.NewRecorder()
		service.Transfer(w, authedRequest("POST", "/emoney/transfer", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		body, _ := json.Marshal(EMoneyTransferRequest{Provider: "kpay", Type: "send", Amount: 1_000_000})

		w := httptest.NewRecorder()
		service.Transfer(w, authedRequest("POST", "/emoney/transfer", body))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}
