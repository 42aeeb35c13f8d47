package services

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/kalpe/backend/internal/audit"
	"github.com/kalpe/backend/internal/ledger"
)

type TransferService struct {
	ledger    *ledger.Manager
	audit     *audit.Logger
	validator *ValidationHelper
}

type TransferRequest struct {
	Type         string `json:"type" validate:"required,oneof=send receive"`
	Amount       int64  `json:"amount" validate:"required,gt=0"`
	Counterparty string `json:"counterparty" validate:"required,min=2,max=100"`
	Category     string `json:"category" validate:"omitempty,max=50"`
	Description  string `json:"description" validate:"omitempty,max=200"`
}

type QuoteRequest struct {
	SendAmount    int64 `json:"sendAmount" validate:"omitempty,gte=0"`
	ReceiveAmount int64 `json:"receiveAmount" validate:"omitempty,gte=0"`
}

func NewTransferService(manager *ledger.Manager) *TransferService {
	return &TransferService{
		ledger:    manager,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
	}
}

// CreateTransfer processes a wallet transfer
// @Summary Create a new transfer
// @Description Process a send or receive transfer against the caller's wallet
// @Tags transfers
// @Accept json
// @Produce json
// @Param transfer body TransferRequest true "Transfer data"
// @Success 201 {object} object{success=bool,transaction=ledger.Transaction,newBalance=int64}
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /transfers [post]
func (ts *TransferService) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req TransferRequest

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	engine := ts.ledger.ForUser(r.Context(), userID)
	result := engine.ProcessTransaction(r.Context(), ledger.TransferInput{
		Type:         ledger.TransactionType(req.Type),
		Amount:       req.Amount,
		Counterparty: req.Counterparty,
		Category:     req.Category,
		Description:  req.Description,
	})

	if !result.Success {
		ts.audit.LogError("", userID, errors.New(result.Error))
		switch result.Error {
		case ledger.ErrInsufficientBalance.Error():
			SendErrorResponse(w, "Insufficient balance", http.StatusUnprocessableEntity, nil)
		case ledger.ErrInvalidAmount.Error(), ledger.ErrInvalidType.Error():
			SendErrorResponse(w, result.Error, http.StatusBadRequest, nil)
		default:
			SendErrorResponse(w, "Failed to process transfer", http.StatusInternalServerError, nil)
		}
		return
	}

	tx := result.Transaction
	ts.audit.LogTransfer(tx.ID, userID, req.Counterparty, req.Amount, "SUCCESS")
	log.Printf("[TRANSFER] Processed %s of %d for user %s, reference: %s, new balance: %d",
		req.Type, req.Amount, userID, tx.ID, result.NewBalance)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"transaction": tx,
		"newBalance":  result.NewBalance,
	})
}

// GetBalance returns the caller's wallet balance
// @Summary Get wallet balance
// @Description Retrieve the current wallet balance for the authenticated user
// @Tags transfers
// @Produce json
// @Success 200 {object} object{balance=int64,currency=string}
// @Failure 401 {object} map[string]string
// @Router /balance [get]
func (ts *TransferService) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	engine := ts.ledger.ForUser(r.Context(), userID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"balance":  engine.Balance(),
		"currency": ts.ledger.Currency(),
	})
}

// GetTransactions returns the caller's transaction history, newest first
// @Summary List transactions
// @Description Get the authenticated user's transaction history, newest first
// @Tags transfers
// @Produce json
// @Param limit query int false "Number of transactions to return (default: 50, max: 200)"
// @Success 200 {object} object{transactions=[]ledger.Transaction,count=int}
// @Failure 401 {object} map[string]string
// @Router /transactions [get]
func (ts *TransferService) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Limit int `validate:"omitempty,min=1,max=200"`
	}
	req.Limit = 50

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			req.Limit = l
		}
	}

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	engine := ts.ledger.ForUser(r.Context(), userID)
	transactions := engine.TransactionHistory()
	if len(transactions) > req.Limit {
		transactions = transactions[:req.Limit]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// GetBalanceHistory returns the balance trajectory, oldest first
// @Summary Get balance history
// @Description Get the wallet balance after each transaction, oldest first
// @Tags transfers
// @Produce json
// @Success 200 {object} object{history=[]ledger.BalancePoint,count=int}
// @Failure 401 {object} map[string]string
// @Router /balance/history [get]
func (ts *TransferService) GetBalanceHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	engine := ts.ledger.ForUser(r.Context(), userID)
	history := engine.BalanceHistory()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"history": history,
		"count":   len(history),
	})
}

// QuoteTransfer computes transfer fees without moving money
// @Summary Quote a transfer
// @Description Compute the transfer fee and receive amount for a send amount, or the required send amount for a desired receive amount
// @Tags transfers
// @Accept json
// @Produce json
// @Param quote body QuoteRequest true "Quote request: exactly one of sendAmount or receiveAmount"
// @Success 200 {object} object{sendAmount=int64,fee=int64,receiveAmount=int64}
// @Failure 400 {object} map[string]string
// @Router /transfers/quote [post]
func (ts *TransferService) QuoteTransfer(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if (req.SendAmount > 0) == (req.ReceiveAmount > 0) {
		SendErrorResponse(w, "Provide exactly one of sendAmount or receiveAmount", http.StatusBadRequest, nil)
		return
	}

	var sendAmount int64
	if req.SendAmount > 0 {
		sendAmount = req.SendAmount
	} else {
		// Inverse quote: smallest send amount whose net covers the desired receive
		sendAmount = ledger.SendAmountFor(req.ReceiveAmount)
	}

	fee := ledger.TransferFee(sendAmount)
	log.Printf("[TRANSFER] Quote: send=%d, fee=%d, receive=%d", sendAmount, fee, ledger.ReceiveAmount(sendAmount))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sendAmount":    sendAmount,
		"fee":           fee,
		"receiveAmount": ledger.ReceiveAmount(sendAmount),
	})
}
