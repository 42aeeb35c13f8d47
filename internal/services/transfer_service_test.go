package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kalpe/backend/internal/config"
	"github.com/kalpe/backend/internal/ledger"
)

func newTestTransferService() *TransferService {
	cfg := &config.LedgerConfig{
		InitialBalance: 15000,
		Currency:       "XOF",
		BalancePrefix:  "kalpe:balance:",
		HistoryPrefix:  "kalpe:transactions:",
	}
	manager := ledger.NewManager(ledger.NewMemoryStore(), cfg)
	return NewTransferService(manager)
}

func authedRequest(method, target string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewBuffer(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(context.WithValue(req.Context(), "userID", "user1"))
}

func TestTransferService_CreateTransfer(t *testing.T) {
	service := newTestTransferService()

	t.Run("successful send", func(t *testing.T) {
		body, _ := json.Marshal(TransferRequest{
			Type:         "send",
			Amount:       1000,
			Counterparty: "Moussa Diop",
			Category:     "transfer",
		})

		w := httptest.NewRecorder()
		service.CreateTransfer(w, authedRequest("POST", "/transfers", body))

		assert.Equal(t, http.StatusCreated, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, true, response["success"])
		assert.Equal(t, float64(13990), response["newBalance"])

		tx := response["transaction"].(map[string]interface{})
		assert.Equal(t, "send", tx["type"])
		assert.Equal(t, float64(-1000), tx["amount"])
		assert.Equal(t, "Moussa Diop", tx["recipient"])

		details := tx["details"].(map[string]interface{})
		assert.Equal(t, float64(10), details["fee"])
	})

	t.Run("successful receive", func(t *testing.T) {
		body, _ := json.Marshal(TransferRequest{
			Type:         "receive",
			Amount:       2000,
			Counterparty: "Awa Ndiaye",
		})

		w := httptest.NewRecorder()
		service.CreateTransfer(w, authedRequest("POST", "/transfers", body))

		assert.Equal(t, http.StatusCreated, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, float64(15990), response["newBalance"])
	})

	t.Run("insufficient balance", func(t *testing.T) {
		body, _ := json.Marshal(TransferRequest{
			Type:         "send",
			Amount:       1_000_000,
			Counterparty: "Moussa Diop",
		})

		w := httptest.NewRecorder()
		service.CreateTransfer(w, authedRequest("POST", "/transfers", body))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("invalid request body", func(t *testing.T) {
		w := httptest.NewRecorder()
		service.CreateTransfer(w, authedRequest("POST", "/transfers", []byte("invalid")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("validation failure on type", func(t *testing.T) {
		body, _ := json.Marshal(TransferRequest{
			Type:         "refund",
			Amount:       100,
			Counterparty: "Moussa Diop",
		})

		w := httptest.NewRecorder()
		service.CreateTransfer(w, authedRequest("POST", "/transfers", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		body := []byte(`{"type":"send","amount":100,"counterparty":"Moussa","extra":true}`)

		w := httptest.NewRecorder()
		service.CreateTransfer(w, authedRequest("POST", "/transfers", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing auth context", func(t *testing.T) {
		body, _ := json.Marshal(TransferRequest{Type: "send", Amount: 100, Counterparty: "Moussa"})
		req := httptest.NewRequest("POST", "/transfers", bytes.NewBuffer(body))

		w := httptest.NewRecorder()
		service.CreateTransfer(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestTransferService_GetBalance(t *testing.T) {
	service := newTestTransferService()

	w := httptest.NewRecorder()
	service.GetBalance(w, authedRequest("GET", "/balance", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, float64(15000), response["balance"])
	assert.Equal(t, "XOF", response["currency"])
}

func TestTransferService_GetTransactions(t *testing.T) {
	service := newTestTransferService()

	for _, amount := range []int64{500, 700} {
		body, _ := json.Marshal(TransferRequest{Type: "send", Amount: amount, Counterparty: "Moussa Diop"})
		w := httptest.NewRecorder()
		service.CreateTransfer(w, authedRequest("POST", "/transfers", body))
		assert.Equal(t, http.StatusCreated, w.Code)
	}

	t.Run("newest first", func(t *testing.T) {
		w := httptest.NewRecorder()
		service.GetTransactions(w, authedRequest("GET", "/transactions", nil))

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Transactions []ledger.Transaction `json:"transactions"`
			Count        int                  `json:"count"`
		}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, 2, response.Count)
		assert.Equal(t, int64(-700), response.Transactions[0].Amount)
		assert.Equal(t, int64(-500), response.Transactions[1].Amount)
	})

	t.Run("limit applied", func(t *testing.T) {
		w := httptest.NewRecorder()
		service.GetTransactions(w, authedRequest("GET", "/transactions?limit=1", nil))

		var response struct {
			Count int `json:"count"`
		}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, 1, response.Count)
	})

	t.Run("limit out of range", func(t *testing.T) {
		w := httptest.NewRecorder()
		service.GetTransactions(w, authedRequest("GET", "/transactions?limit=500", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTransferService_GetBalanceHistory(t *testing.T) {
	service := newTestTransferService()

	body, _ := json.Marshal(TransferRequest{Type: "receive", Amount: 1000, Counterparty: "Awa Ndiaye"})
	w := httptest.NewRecorder()
	service.CreateTransfer(w, authedRequest("POST", "/transfers", body))
	assert.Equal(t, http.StatusCreated, w.Code)

	body, _ = json.Marshal(TransferRequest{Type: "send", Amount: 500, Counterparty: "Moussa Diop"})
	w = httptest.NewRecorder()
	service.CreateTransfer(w, authedRequest("POST", "/transfers", body))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	service.GetBalanceHistory(w, authedRequest("GET", "/balance/history", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		History []ledger.BalancePoint `json:"history"`
		Count   int                   `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, 2, response.Count)
	assert.Equal(t, int64(16000), response.History[0].Balance)
	assert.Equal(t, int64(15495), response.History[1].Balance)
}

func TestTransferService_QuoteTransfer(t *testing.T) {
	service := newTestTransferService()

	t.Run("forward quote", func(t *testing.T) {
		body, _ := json.Marshal(QuoteRequest{SendAmount: 250})

		w := httptest.NewRecorder()
		service.QuoteTransfer(w, httptest.NewRequest("POST", "/transfers/quote", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, float64(250), response["sendAmount"])
		assert.Equal(t, float64(3), response["fee"])
		assert.Equal(t, float64(247), response["receiveAmount"])
	})

	t.Run("inverse quote", func(t *testing.T) {
		body, _ := json.Marshal(QuoteRequest{ReceiveAmount: 247})

		w := httptest.NewRecorder()
		service.QuoteTransfer(w, httptest.NewRequest("POST", "/transfers/quote", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, float64(250), response["sendAmount"])
		assert.Equal(t, float64(3), response["fee"])
		assert.Equal(t, float64(247), response["receiveAmount"])
	})

	t.Run("inverse quote net covers desired receive", func(t *testing.T) {
		body, _ := json.Marshal(QuoteRequest{ReceiveAmount: 100})

		w := httptest.NewRecorder()
		service.QuoteTransfer(w, httptest.NewRequest("POST", "/transfers/quote", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, float64(102), response["sendAmount"])
		assert.Equal(t, float64(100), response["receiveAmount"])
	})

	t.Run("neither amount provided", func(t *testing.T) {
		w := httptest.NewRecorder()
		service.QuoteTransfer(w, httptest.NewRequest("POST", "/transfers/quote", bytes.NewBuffer([]byte(`{}`))))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("both amounts provided", func(t *testing.T) {
		body, _ := json.Marshal(QuoteRequest{SendAmount: 100, ReceiveAmount: 99})

		w := httptest.NewRecorder()
		service.QuoteTransfer(w, httptest.NewRequest("POST", "/transfers/quote", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
