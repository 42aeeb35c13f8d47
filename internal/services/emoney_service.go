package services

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/kalpe/backend/internal/audit"
	"github.com/kalpe/backend/internal/ledger"
)

// EMoneyProvider is an external e-money network the wallet bridges to.
type EMoneyProvider struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var emoneyProviders = []EMoneyProvider{
	{ID: "wave", Name: "Wave"},
	{ID: "orange-money", Name: "Orange Money"},
	{ID: "yas", Name: "Yas"},
	{ID: "kpay", Name: "KPay"},
}

// EMoneyService bridges the wallet to external e-money providers. A bridge
// out is a ledger send to the provider, a bridge in a receive from it; no
// provider network is actually called.
type EMoneyService struct {
	ledger    *ledger.Manager
	audit     *audit.Logger
	validator *ValidationHelper
}

type EMoneyTransferRequest struct {
	Provider string `json:"provider" validate:"required,oneof=wave orange-money yas kpay"`
	Type     string `json:"type" validate:"required,oneof=send receive"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
}

func NewEMoneyService(manager *ledger.Manager) *EMoneyService {
	return &EMoneyService{
		ledger:    manager,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
	}
}

func emoneyProviderByID(id string) (EMoneyProvider, bool) {
	for _, p := range emoneyProviders {
		if p.ID == id {
			return p, true
		}
	}
	return EMoneyProvider{}, false
}

// ListProviders lists the supported e-money providers
// @Summary List e-money providers
// @Description List the external e-money providers the wallet can bridge to
// @Tags emoney
// @Produce json
// @Success 200 {object} object{providers=[]EMoneyProvider}
// @Router /emoney [get]
func (es *EMoneyService) ListProviders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"providers": emoneyProviders,
	})
}

// Transfer bridges money to or from an e-money provider
// @Summary E-money transfer
// @Description Send money to an e-money provider, or record money received from one
// @Tags emoney
// @Accept json
// @Produce json
// @Param transfer body EMoneyTransferRequest true "Transfer data"
// @Success 200 {object} object{success=bool,provider=string,transaction=ledger.Transaction,newBalance=int64}
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /emoney/transfer [post]
func (es *EMoneyService) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req EMoneyTransferRequest

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

	if err := es.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	provider, ok := emoneyProviderByID(req.Provider)
	if !ok {
		SendErrorResponse(w, "Unknown provider", http.StatusBadRequest, nil)
		return
	}

	input := ledger.TransferInput{
		Amount:       req.Amount,
		Counterparty: provider.Name,
		Category:     "e-money",
	}
	if req.Type == "send" {
		input.Type = ledger.TypeSend
		input.Description = "Envoi vers " + provider.Name
	} else {
		input.Type = ledger.TypeReceive
		input.Description = "Réception depuis " + provider.Name
	}

	engine := es.ledger.ForUser(r.Context(), userID)
	result := engine.ProcessTransaction(r.Context(), input)

	if !result.Success {
		if result.Error == ledger.ErrInsufficientBalance.Error() {
			SendErrorResponse(w, "Insufficient balance", http.StatusUnprocessableEntity, nil)
		} else {
			SendErrorResponse(w, result.Error, http.StatusBadRequest, nil)
		}
		return
	}

	log.Printf("[EMONEY] %s of %d via %s for user %s, reference: %s",
		req.Type, req.Amount, provider.Name, userID, result.Transaction.ID)
	es.audit.LogTransfer(result.Transaction.ID, userID, provider.Name, req.Amount, "SUCCESS")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"provider":    provider.Name,
		"transaction": result.Transaction,
		"newBalance":  result.NewBalance,
	})
}
