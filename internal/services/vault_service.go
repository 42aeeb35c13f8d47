package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalpe/backend/internal/audit"
	"github.com/kalpe/backend/internal/ledger"
	"github.com/kalpe/backend/internal/models"
)

// VaultService manages side-pocket savings. Vault balances live in Postgres;
// each deposit or withdrawal moves value between the vault row and the main
// wallet balance.
type VaultService struct {
	db        *sql.DB
	ledger    *ledger.Manager
	audit     *audit.Logger
	validator *ValidationHelper
}

type VaultMoveRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description" validate:"omitempty,max=200"`
}

func NewVaultService(db *sql.DB, manager *ledger.Manager) *VaultService {
	return &VaultService{
		db:        db,
		ledger:    manager,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
	}
}

// CreateVault creates a new savings vault
// @Summary Create a vault
// @Description Create a new savings vault for the authenticated user
// @Tags vaults
// @Accept json
// @Produce json
// @Param vault body models.CreateVaultRequest true "Vault data"
// @Success 201 {object} models.Vault
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /vaults [post]
func (vs *VaultService) CreateVault(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req models.CreateVaultRequest

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

	if err := vs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	vaultID := uuid.New().String()

	var vault models.Vault
	err := vs.db.QueryRow(`
		INSERT INTO vaults (id, user_id, name, purpose, balance, target_amount, color, icon, is_locked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7, false, NOW(), NOW())
		RETURNING id, user_id, name, purpose, balance, target_amount, color, icon, is_locked, created_at, updated_at
	`, vaultID, userID, req.Name, req.Purpose, req.TargetAmount, req.Color, req.Icon).Scan(
		&vault.ID, &vault.UserID, &vault.Name, &vault.Purpose, &vault.Balance,
		&vault.TargetAmount, &vault.Color, &vault.Icon, &vault.IsLocked,
		&vault.CreatedAt, &vault.UpdatedAt,
	)
	if err != nil {
		log.Printf("[VAULT] Failed to create vault for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to create vault", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[VAULT] Created vault %s (%s) for user %s", vault.ID, vault.Name, userID)
	vs.audit.LogOperation(vault.ID, userID, "VAULT_CREATE", vault.Name)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(vault)
}

// ListVaults lists the caller's vaults
// @Summary List vaults
// @Description List all vaults belonging to the authenticated user
// @Tags vaults
// @Produce json
// @Success 200 {object} object{vaults=[]models.Vault,count=int}
// @Failure 401 {object} map[string]string
// @Router /vaults [get]
func (vs *VaultService) ListVaults(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := vs.db.Query(`
		SELECT id, user_id, name, purpose, balance, target_amount, color, icon, is_locked, created_at, updated_at
		FROM vaults
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		log.Printf("[VAULT] Failed to list vaults for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch vaults", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	vaults := []models.Vault{}
	for rows.Next() {
		var v models.Vault
		if err := rows.Scan(&v.ID, &v.UserID, &v.Name, &v.Purpose, &v.Balance,
			&v.TargetAmount, &v.Color, &v.Icon, &v.IsLocked, &v.CreatedAt, &v.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch vaults", http.StatusInternalServerError, nil)
			return
		}
		vaults = append(vaults, v)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"vaults": vaults,
		"count":  len(vaults),
	})
}

// UpdateVault updates vault settings
// @Summary Update a vault
// @Description Update the name, target, color, or lock state of a vault
// @Tags vaults
// @Accept json
// @Produce json
// @Param vaultId path string true "Vault ID"
// @Param vault body models.UpdateVaultRequest true "Fields to update"
// @Success 200 {object} models.Vault
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /vaults/{vaultId} [patch]
func (vs *VaultService) UpdateVault(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	vaultID := chi.URLParam(r, "vaultId")

	var req models.UpdateVaultRequest

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := vs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var vault models.Vault
	err := vs.db.QueryRow(`
		UPDATE vaults
		SET name = COALESCE($1, name),
		    target_amount = COALESCE($2, target_amount),
		    color = COALESCE($3, color),
		    is_locked = COALESCE($4, is_locked),
		    updated_at = NOW()
		WHERE id = $5 AND user_id = $6
		RETURNING id, user_id, name, purpose, balance, target_amount, color, icon, is_locked, created_at, updated_at
	`, req.Name, req.TargetAmount, req.Color, req.IsLocked, vaultID, userID).Scan(
		&vault.ID, &vault.UserID, &vault.Name, &vault.Purpose, &vault.Balance,
		&vault.TargetAmount, &vault.Color, &vault.Icon, &vault.IsLocked,
		&vault.CreatedAt, &vault.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Vault not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[VAULT] Failed to update vault %s: %v", vaultID, err)
			SendErrorResponse(w, "Failed to update vault", http.StatusInternalServerError, nil)
		}
		return
	}

	log.Printf("[VAULT] Updated vault %s for user %s", vaultID, userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(vault)
}

// DeleteVault deletes a vault, refunding any remaining balance
// @Summary Delete a vault
// @Description Delete a vault; any remaining balance is returned to the wallet
// @Tags vaults
// @Produce json
// @Param vaultId path string true "Vault ID"
// @Success 200 {object} object{success=bool,refunded=int64,walletBalance=int64}
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /vaults/{vaultId} [delete]
func (vs *VaultService) DeleteVault(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	vaultID := chi.URLParam(r, "vaultId")

	dbTx, err := vs.db.Begin()
	if err != nil {
		log.Printf("[VAULT] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to delete vault", http.StatusInternalServerError, nil)
		return
	}
	defer dbTx.Rollback()

	var balance int64
	var isLocked bool
	err = dbTx.QueryRow(`
		SELECT balance, is_locked FROM vaults
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, vaultID, userID).Scan(&balance, &isLocked)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Vault not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[VAULT] Failed to fetch vault %s: %v", vaultID, err)
			SendErrorResponse(w, "Failed to delete vault", http.StatusInternalServerError, nil)
		}
		return
	}

	if isLocked {
		SendErrorResponse(w, "Vault is locked", http.StatusForbidden, nil)
		return
	}

	if _, err := dbTx.Exec(`DELETE FROM vault_transactions WHERE vault_id = $1`, vaultID); err != nil {
		log.Printf("[VAULT] Failed to delete vault transactions %s: %v", vaultID, err)
		SendErrorResponse(w, "Failed to delete vault", http.StatusInternalServerError, nil)
		return
	}
	if _, err := dbTx.Exec(`DELETE FROM vaults WHERE id = $1`, vaultID); err != nil {
		log.Printf("[VAULT] Failed to delete vault %s: %v", vaultID, err)
		SendErrorResponse(w, "Failed to delete vault", http.StatusInternalServerError, nil)
		return
	}

	if err := dbTx.Commit(); err != nil {
		log.Printf("[VAULT] Failed to commit vault deletion: %v", err)
		SendErrorResponse(w, "Failed to delete vault", http.StatusInternalServerError, nil)
		return
	}

	engine := vs.ledger.ForUser(r.Context(), userID)
	walletBalance := engine.Balance()
	if balance > 0 {
		walletBalance = engine.AdjustBalance(r.Context(), balance)
	}

	log.Printf("[VAULT] Deleted vault %s for user %s, refunded %d", vaultID, userID, balance)
	vs.audit.LogOperation(vaultID, userID, "VAULT_DELETE", "")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":       true,
		"refunded":      balance,
		"walletBalance": walletBalance,
	})
}

// Deposit moves money from the wallet into a vault
// @Summary Deposit into a vault
// @Description Move money from the main wallet balance into a vault
// @Tags vaults
// @Accept json
// @Produce json
// @Param vaultId path string true "Vault ID"
// @Param deposit body VaultMoveRequest true "Deposit data"
// @Success 200 {object} object{vault=models.Vault,walletBalance=int64}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /vaults/{vaultId}/deposit [post]
func (vs *VaultService) Deposit(w http.ResponseWriter, r *http.Request) {
	vs.move(w, r, "deposit")
}

// Withdraw moves money from a vault back to the wallet
// @Summary Withdraw from a vault
// @Description Move money out of a vault back into the main wallet balance
// @Tags vaults
// @Accept json
// @Produce json
// @Param vaultId path string true "Vault ID"
// @Param withdrawal body VaultMoveRequest true "Withdrawal data"
// @Success 200 {object} object{vault=models.Vault,walletBalance=int64}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /vaults/{vaultId}/withdraw [post]
func (vs *VaultService) Withdraw(w http.ResponseWriter, r *http.Request) {
	vs.move(w, r, "withdrawal")
}

func (vs *VaultService) move(w http.ResponseWriter, r *http.Request, moveType string) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	vaultID := chi.URLParam(r, "vaultId")

	var req VaultMoveRequest

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := vs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	engine := vs.ledger.ForUser(r.Context(), userID)
	walletBalance := engine.Balance()

	if moveType == "deposit" && walletBalance < req.Amount {
		log.Printf("[VAULT] Insufficient wallet balance for deposit: %d < %d", walletBalance, req.Amount)
		SendErrorResponse(w, "Insufficient balance", http.StatusUnprocessableEntity, nil)
		return
	}

	dbTx, err := vs.db.Begin()
	if err != nil {
		log.Printf("[VAULT] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to process vault movement", http.StatusInternalServerError, nil)
		return
	}
	defer dbTx.Rollback()

	var vault models.Vault
	err = dbTx.QueryRow(`
		SELECT id, user_id, name, purpose, balance, target_amount, color, icon, is_locked, created_at, updated_at
		FROM vaults
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, vaultID, userID).Scan(
		&vault.ID, &vault.UserID, &vault.Name, &vault.Purpose, &vault.Balance,
		&vault.TargetAmount, &vault.Color, &vault.Icon, &vault.IsLocked,
		&vault.CreatedAt, &vault.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Vault not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[VAULT] Failed to fetch vault %s: %v", vaultID, err)
			SendErrorResponse(w, "Failed to process vault movement", http.StatusInternalServerError, nil)
		}
		return
	}

	if vault.IsLocked && moveType == "withdrawal" {
		SendErrorResponse(w, "Vault is locked", http.StatusForbidden, nil)
		return
	}

	delta := req.Amount
	if moveType == "withdrawal" {
		if vault.Balance < req.Amount {
			SendErrorResponse(w, "Insufficient vault balance", http.StatusUnprocessableEntity, nil)
			return
		}
		delta = -req.Amount
	}

	err = dbTx.QueryRow(`
		UPDATE vaults SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance
	`, delta, vaultID).Scan(&vault.Balance)
	if err != nil {
		log.Printf("[VAULT] Failed to update vault balance %s: %v", vaultID, err)
		SendErrorResponse(w, "Failed to process vault movement", http.StatusInternalServerError, nil)
		return
	}

	_, err = dbTx.Exec(`
		INSERT INTO vault_transactions (id, vault_id, type, amount, description, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, uuid.New().String(), vaultID, moveType, req.Amount, req.Description)
	if err != nil {
		log.Printf("[VAULT] Failed to record vault transaction: %v", err)
		SendErrorResponse(w, "Failed to process vault movement", http.StatusInternalServerError, nil)
		return
	}

	if err := dbTx.Commit(); err != nil {
		log.Printf("[VAULT] Failed to commit vault movement: %v", err)
		SendErrorResponse(w, "Failed to process vault movement", http.StatusInternalServerError, nil)
		return
	}

	// Apply the wallet side after the vault row committed. The wallet is the
	// in-memory authority; a crash between the two leaves the vault row as
	// the reconciliation source. The delta form keeps a transfer landing
	// between the sufficiency check and here from being overwritten.
	if moveType == "deposit" {
		walletBalance = engine.AdjustBalance(r.Context(), -req.Amount)
	} else {
		walletBalance = engine.AdjustBalance(r.Context(), req.Amount)
	}

	log.Printf("[VAULT] %s of %d on vault %s for user %s, wallet balance: %d",
		moveType, req.Amount, vaultID, userID, walletBalance)
	vs.audit.LogOperation(vaultID, userID, "VAULT_"+moveType, "")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"vault":         vault,
		"walletBalance": walletBalance,
	})
}

// GetVaultTransactions lists movements on one vault
// @Summary List vault transactions
// @Description List deposits and withdrawals on a vault, newest first
// @Tags vaults
// @Produce json
// @Param vaultId path string true "Vault ID"
// @Success 200 {object} object{transactions=[]models.VaultTransaction,count=int}
// @Failure 404 {object} map[string]string
// @Router /vaults/{vaultId}/transactions [get]
func (vs *VaultService) GetVaultTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	vaultID := chi.URLParam(r, "vaultId")

	var owner string
	if err := vs.db.QueryRow(`SELECT user_id FROM vaults WHERE id = $1`, vaultID).Scan(&owner); err != nil || owner != userID {
		SendErrorResponse(w, "Vault not found", http.StatusNotFound, nil)
		return
	}

	rows, err := vs.db.Query(`
		SELECT id, vault_id, type, amount, description, created_at
		FROM vault_transactions
		WHERE vault_id = $1
		ORDER BY created_at DESC
		LIMIT 100
	`, vaultID)
	if err != nil {
		log.Printf("[VAULT] Failed to list vault transactions %s: %v", vaultID, err)
		SendErrorResponse(w, "Failed to fetch vault transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transactions := []models.VaultTransaction{}
	for rows.Next() {
		var vt models.VaultTransaction
		if err := rows.Scan(&vt.ID, &vt.VaultID, &vt.Type, &vt.Amount, &vt.Description, &vt.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch vault transactions", http.StatusInternalServerError, nil)
			return
		}
		transactions = append(transactions, vt)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}
