package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/kalpe/backend/internal/ledger"
	"github.com/kalpe/backend/internal/services"
)

type QRHandler struct {
	service   *services.QRService
	ledger    *ledger.Manager
	validator *services.ValidationHelper
}

func NewQRHandler(service *services.QRService, manager *ledger.Manager) *QRHandler {
	return &QRHandler{
		service:   service,
		ledger:    manager,
		validator: services.NewValidationHelper(),
	}
}

// GenerateQR creates a payment request QR code
// @Summary Generate QR Code
// @Description Generate a single-use QR code requesting a payment to the caller
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64,note=string} true "QR generation request"
// @Success 200 {object} object{success=bool,qrCode=string,qrImage=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /qr/generate [post]
func (h *QRHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount int64  `json:"amount" validate:"required,gt=0"`
		Note   string `json:"note" validate:"omitempty,max=100"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	qrCode, qrImage, err := h.service.GeneratePaymentRequest(r.Context(), userID, req.Amount, req.Note)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[QR] Payment request of %d generated by user %s", req.Amount, userID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"qrCode":  qrCode,
		"qrImage": qrImage,
	})
}

// PayQR redeems a scanned payment request and settles it from the caller's wallet
// @Summary Pay a QR code
// @Description Redeem a scanned payment request; the amount is sent from the caller's wallet to the payee
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{qrData=string} true "QR payment request"
// @Success 200 {object} object{success=bool,transaction=ledger.Transaction,newBalance=int64}
// @Failure 400 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /qr/pay [post]
func (h *QRHandler) PayQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		QRData string `json:"qrData" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	request, err := h.service.RedeemPaymentRequest(r.Context(), req.QRData)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if request.PayeeID == userID {
		h.service.RestorePaymentRequest(r.Context(), req.QRData, request)
		services.SendErrorResponse(w, "Cannot pay your own request", http.StatusBadRequest, nil)
		return
	}

	// Debit the payer, credit the payee. The payer's send carries the fee.
	// A failed debit restores the request so the payee's code is not burned.
	payer := h.ledger.ForUser(r.Context(), userID)
	result := payer.ProcessTransaction(r.Context(), ledger.TransferInput{
		Type:         ledger.TypeSend,
		Amount:       request.Amount,
		Counterparty: request.PayeeID,
		Category:     "qr",
		Description:  request.Note,
	})
	if !result.Success {
		h.service.RestorePaymentRequest(r.Context(), req.QRData, request)
		if result.Error == ledger.ErrInsufficientBalance.Error() {
			services.SendErrorResponse(w, "Insufficient balance", http.StatusUnprocessableEntity, nil)
		} else {
			services.SendErrorResponse(w, result.Error, http.StatusBadRequest, nil)
		}
		return
	}

	payee := h.ledger.ForUser(r.Context(), request.PayeeID)
	payee.ProcessTransaction(r.Context(), ledger.TransferInput{
		Type:         ledger.TypeReceive,
		Amount:       request.Amount,
		Counterparty: userID,
		Category:     "qr",
		Description:  request.Note,
	})

	log.Printf("[QR] User %s paid %d to %s, reference: %s", userID, request.Amount, request.PayeeID, result.Transaction.ID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"transaction": result.Transaction,
		"newBalance":  result.NewBalance,
	})
}
