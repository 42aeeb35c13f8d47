package services

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/kalpe/backend/internal/audit"
	"github.com/kalpe/backend/internal/ledger"
)

// PaymentService handles airtime recharges and bill payments. Both settle
// through the wallet ledger as sends; the counterparty is the operator or
// the biller.
type PaymentService struct {
	ledger    *ledger.Manager
	audit     *audit.Logger
	validator *ValidationHelper
}

type AirtimeRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
}

type BillPayRequest struct {
	Biller    string `json:"biller" validate:"required,oneof=senelec sde woyofal canal aquatech"`
	Reference string `json:"reference" validate:"required,min=4,max=30"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
}

func NewPaymentService(manager *ledger.Manager) *PaymentService {
	return &PaymentService{
		ledger:    manager,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
	}
}

// RechargeAirtime buys airtime for a Senegalese mobile number
// @Summary Recharge airtime
// @Description Buy airtime for a Senegalese mobile number; the operator is detected from the prefix
// @Tags payments
// @Accept json
// @Produce json
// @Param recharge body AirtimeRequest true "Recharge data"
// @Success 200 {object} object{success=bool,operator=string,transaction=ledger.Transaction,newBalance=int64}
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /payments/airtime [post]
func (ps *PaymentService) RechargeAirtime(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req AirtimeRequest

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

	if err := ps.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	phone := NormalizePhoneNumber(req.PhoneNumber)
	operator, ok := GetOperator(phone)
	if !ok {
		log.Printf("[PAYMENT] Airtime rejected - invalid number: %s", req.PhoneNumber)
		SendErrorResponse(w, "Invalid Senegalese mobile number", http.StatusBadRequest, nil)
		return
	}

	engine := ps.ledger.ForUser(r.Context(), userID)
	result := engine.ProcessTransaction(r.Context(), ledger.TransferInput{
		Type:         ledger.TypeSend,
		Amount:       req.Amount,
		Counterparty: operator.Name + " " + FormatPhoneNumber(phone),
		Category:     "airtime",
		Description:  "Airtime recharge",
	})

	if !result.Success {
		if result.Error == ledger.ErrInsufficientBalance.Error() {
			SendErrorResponse(w, "Insufficient balance", http.StatusUnprocessableEntity, nil)
		} else {
			SendErrorResponse(w, result.Error, http.StatusBadRequest, nil)
		}
		return
	}

	log.Printf("[PAYMENT] Airtime recharge of %d for %s (%s), reference: %s",
		req.Amount, FormatPhoneNumber(phone), operator.Name, result.Transaction.ID)
	ps.audit.LogTransfer(result.Transaction.ID, userID, operator.Name, req.Amount, "SUCCESS")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"operator":    operator.Name,
		"transaction": result.Transaction,
		"newBalance":  result.NewBalance,
	})
}

// PayBill pays a utility or subscription bill
// @Summary Pay a bill
// @Description Pay a supported biller (senelec, sde, woyofal, canal, aquatech) from the wallet
// @Tags payments
// @Accept json
// @Produce json
// @Param bill body BillPayRequest true "Bill payment data"
// @Success 200 {object} object{success=bool,transaction=ledger.Transaction,newBalance=int64}
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /payments/bills [post]
func (ps *PaymentService) PayBill(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req BillPayRequest

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

	if err := ps.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	engine := ps.ledger.ForUser(r.Context(), userID)
	result := engine.ProcessTransaction(r.Context(), ledger.TransferInput{
		Type:         ledger.TypeSend,
		Amount:       req.Amount,
		Counterparty: req.Biller,
		Category:     "bills",
		Description:  "Bill payment " + req.Reference,
	})

	if !result.Success {
		if result.Error == ledger.ErrInsufficientBalance.Error() {
			SendErrorResponse(w, "Insufficient balance", http.StatusUnprocessableEntity, nil)
		} else {
			SendErrorResponse(w, result.Error, http.StatusBadRequest, nil)
		}
		return
	}

	log.Printf("[PAYMENT] Bill payment of %d to %s (ref %s), reference: %s",
		req.Amount, req.Biller, req.Reference, result.Transaction.ID)
	ps.audit.LogTransfer(result.Transaction.ID, userID, req.Biller, req.Amount, "SUCCESS")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"transaction": result.Transaction,
		"newBalance":  result.NewBalance,
	})
}
