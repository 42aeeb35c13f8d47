package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/kalpe/backend/internal/services"
)

type CashoutHandler struct {
	service   *services.CashoutService
	validator *services.ValidationHelper
}

func NewCashoutHandler(service *services.CashoutService) *CashoutHandler {
	return &CashoutHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// GenerateCode issues an agent code for a cash withdrawal or deposit
// @Summary Generate agent code
// @Description Generate a single-use code to withdraw or deposit cash at an agent
// @Tags cashout
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{type=string,amount=int64} true "Agent code request (type: withdraw or deposit)"
// @Success 200 {object} object{success=bool,code=string,expiresIn=int}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /cashout/generate [post]
func (h *CashoutHandler) GenerateCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		log.Printf("[CASHOUT] GenerateCode - Unauthorized: userID missing or invalid")
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Type   string `json:"type" validate:"required,oneof=withdraw deposit"`
		Amount int64  `json:"amount" validate:"required,gt=0"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		log.Printf("[CASHOUT] GenerateCode - Decode error: %v", err)
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		log.Printf("[CASHOUT] GenerateCode - Validation error: %v", err)
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var code string
	var err error
	if req.Type == "withdraw" {
		code, err = h.service.GenerateCashoutCode(r.Context(), userID, req.Amount)
	} else {
		code, err = h.service.GenerateCashinCode(r.Context(), userID, req.Amount)
	}

	if err != nil {
		log.Printf("[CASHOUT] GenerateCode - Service error: %v", err)
		status := http.StatusInternalServerError
		if err.Error() == "insufficient balance" || err.Error() == "rate limit exceeded" {
			status = http.StatusUnprocessableEntity
		}
		services.SendErrorResponse(w, err.Error(), status, nil)
		return
	}

	expiresIn := int(h.service.GetCodeTimeout().Seconds())
	log.Printf("[CASHOUT] GenerateCode - Issued %s code for user %s, expiresIn=%d", req.Type, userID, expiresIn)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   true,
		"code":      code,
		"expiresIn": expiresIn,
	})
}

// ValidateCode lets an agent validate and settle a code
// @Summary Validate agent code
// @Description Validate a single-use agent code and settle it against the customer's wallet
// @Tags cashout
// @Accept json
// @Produce json
// @Param request body object{code=string,type=string,agentId=string} true "Code validation request"
// @Success 200 {object} object{code=services.AgentCode,newBalance=int64}
// @Failure 400 {object} services.ErrorResponse
// @Router /cashout/validate [post]
func (h *CashoutHandler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code    string `json:"code" validate:"required,min=4,max=12"`
		Type    string `json:"type" validate:"required,oneof=withdraw deposit"`
		AgentID string `json:"agentId" validate:"required"`
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

	codeType := services.CashOut
	if req.Type == "deposit" {
		codeType = services.CashIn
	}

	agentCode, result, err := h.service.ValidateAndSettle(r.Context(), req.Code, codeType, req.AgentID)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code":       agentCode,
		"newBalance": result.NewBalance,
	})
}

// GetUserCodes retrieves the caller's issued agent codes
// @Summary Get agent codes
// @Description Get all agent codes issued by the authenticated user, codes masked
// @Tags cashout
// @Produce json
// @Security BearerAuth
// @Success 200 {array} services.AgentCode
// @Failure 401 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /cashout/codes [get]
func (h *CashoutHandler) GetUserCodes(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	codes, err := h.service.GetUserCodes(r.Context(), userID)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(codes)
}
