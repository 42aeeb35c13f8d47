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

// TontineService manages rotating savings groups. Group and membership
// records live in Postgres; each contribution settles through the wallet
// ledger as an ordinary send.
type TontineService struct {
	db        *sql.DB
	ledger    *ledger.Manager
	audit     *audit.Logger
	validator *ValidationHelper
}

func NewTontineService(db *sql.DB, manager *ledger.Manager) *TontineService {
	return &TontineService{
		db:        db,
		ledger:    manager,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
	}
}

// CreateTontine creates a new tontine group
// @Summary Create a tontine
// @Description Create a new rotating savings group; the creator joins as the first member
// @Tags tontines
// @Accept json
// @Produce json
// @Param tontine body models.CreateTontineRequest true "Tontine data"
// @Success 201 {object} models.Tontine
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /tontines [post]
func (ts *TontineService) CreateTontine(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req models.CreateTontineRequest

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

	tontineID := uuid.New().String()

	dbTx, err := ts.db.Begin()
	if err != nil {
		log.Printf("[TONTINE] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to create tontine", http.StatusInternalServerError, nil)
		return
	}
	defer dbTx.Rollback()

	var tontine models.Tontine
	err = dbTx.QueryRow(`
		INSERT INTO tontines (id, name, creator_id, contribution_amount, frequency, max_members, member_count, current_round, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, 0, 'open', NOW())
		RETURNING id, name, creator_id, contribution_amount, frequency, max_members, member_count, current_round, status, created_at
	`, tontineID, req.Name, userID, req.ContributionAmount, req.Frequency, req.MaxMembers).Scan(
		&tontine.ID, &tontine.Name, &tontine.CreatorID, &tontine.ContributionAmount,
		&tontine.Frequency, &tontine.MaxMembers, &tontine.MemberCount,
		&tontine.CurrentRound, &tontine.Status, &tontine.CreatedAt,
	)
	if err != nil {
		log.Printf("[TONTINE] Failed to create tontine for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to create tontine", http.StatusInternalServerError, nil)
		return
	}

	// Creator takes the first payout position
	_, err = dbTx.Exec(`
		INSERT INTO tontine_members (id, tontine_id, user_id, position, joined_at)
		VALUES ($1, $2, $3, 1, NOW())
	`, uuid.New().String(), tontineID, userID)
	if err != nil {
		log.Printf("[TONTINE] Failed to add creator to tontine %s: %v", tontineID, err)
		SendErrorResponse(w, "Failed to create tontine", http.StatusInternalServerError, nil)
		return
	}

	if err := dbTx.Commit(); err != nil {
		log.Printf("[TONTINE] Failed to commit tontine creation: %v", err)
		SendErrorResponse(w, "Failed to create tontine", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TONTINE] Created tontine %s (%s) by user %s", tontineID, req.Name, userID)
	ts.audit.LogOperation(tontineID, userID, "TONTINE_CREATE", req.Name)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tontine)
}

// ListTontines lists tontines the caller belongs to
// @Summary List tontines
// @Description List the rotating savings groups the authenticated user belongs to
// @Tags tontines
// @Produce json
// @Success 200 {object} object{tontines=[]models.Tontine,count=int}
// @Failure 401 {object} map[string]string
// @Router /tontines [get]
func (ts *TontineService) ListTontines(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := ts.db.Query(`
		SELECT t.id, t.name, t.creator_id, t.contribution_amount, t.frequency, t.max_members, t.member_count, t.current_round, t.status, t.created_at
		FROM tontines t
		INNER JOIN tontine_members m ON m.tontine_id = t.id
		WHERE m.user_id = $1
		ORDER BY t.created_at DESC
	`, userID)
	if err != nil {
		log.Printf("[TONTINE] Failed to list tontines for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch tontines", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	tontines := []models.Tontine{}
	for rows.Next() {
		var t models.Tontine
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatorID, &t.ContributionAmount, &t.Frequency,
			&t.MaxMembers, &t.MemberCount, &t.CurrentRound, &t.Status, &t.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch tontines", http.StatusInternalServerError, nil)
			return
		}
		tontines = append(tontines, t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tontines": tontines,
		"count":    len(tontines),
	})
}

// JoinTontine adds the caller to an open tontine
// @Summary Join a tontine
// @Description Join an open rotating savings group; positions are assigned in join order
// @Tags tontines
// @Produce json
// @Param tontineId path string true "Tontine ID"
// @Success 200 {object} models.TontineMember
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /tontines/{tontineId}/join [post]
func (ts *TontineService) JoinTontine(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	tontineID := chi.URLParam(r, "tontineId")

	dbTx, err := ts.db.Begin()
	if err != nil {
		log.Printf("[TONTINE] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to join tontine", http.StatusInternalServerError, nil)
		return
	}
	defer dbTx.Rollback()

	var status string
	var memberCount, maxMembers int
	err = dbTx.QueryRow(`
		SELECT status, member_count, max_members FROM tontines WHERE id = $1 FOR UPDATE
	`, tontineID).Scan(&status, &memberCount, &maxMembers)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Tontine not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[TONTINE] Failed to fetch tontine %s: %v", tontineID, err)
			SendErrorResponse(w, "Failed to join tontine", http.StatusInternalServerError, nil)
		}
		return
	}

	if status != "open" {
		SendErrorResponse(w, "Tontine is not open for joining", http.StatusConflict, nil)
		return
	}
	if memberCount >= maxMembers {
		SendErrorResponse(w, "Tontine is full", http.StatusConflict, nil)
		return
	}

	member := models.TontineMember{
		ID:        uuid.New().String(),
		TontineID: tontineID,
		UserID:    userID,
		Position:  memberCount + 1,
	}
	err = dbTx.QueryRow(`
		INSERT INTO tontine_members (id, tontine_id, user_id, position, joined_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING joined_at
	`, member.ID, tontineID, userID, member.Position).Scan(&member.JoinedAt)
	if err != nil {
		log.Printf("[TONTINE] Failed to add member to tontine %s: %v", tontineID, err)
		SendErrorResponse(w, "Already a member of this tontine", http.StatusConflict, nil)
		return
	}

	newStatus := "open"
	if memberCount+1 == maxMembers {
		newStatus = "active"
	}
	_, err = dbTx.Exec(`
		UPDATE tontines SET member_count = member_count + 1, status = $1 WHERE id = $2
	`, newStatus, tontineID)
	if err != nil {
		log.Printf("[TONTINE] Failed to update member count for %s: %v", tontineID, err)
		SendErrorResponse(w, "Failed to join tontine", http.StatusInternalServerError, nil)
		return
	}

	if err := dbTx.Commit(); err != nil {
		log.Printf("[TONTINE] Failed to commit join: %v", err)
		SendErrorResponse(w, "Failed to join tontine", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TONTINE] User %s joined tontine %s at position %d", userID, tontineID, member.Position)
	ts.audit.LogOperation(tontineID, userID, "TONTINE_JOIN", "")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(member)
}

// Contribute pays the caller's contribution for the current round
// @Summary Contribute to a tontine
// @Description Pay the fixed contribution for the current round; the amount settles through the wallet as a send
// @Tags tontines
// @Produce json
// @Param tontineId path string true "Tontine ID"
// @Success 200 {object} object{contribution=models.TontineContribution,newBalance=int64}
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /tontines/{tontineId}/contribute [post]
func (ts *TontineService) Contribute(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	tontineID := chi.URLParam(r, "tontineId")

	var tontine models.Tontine
	err := ts.db.QueryRow(`
		SELECT id, name, contribution_amount, current_round, status FROM tontines WHERE id = $1
	`, tontineID).Scan(&tontine.ID, &tontine.Name, &tontine.ContributionAmount, &tontine.CurrentRound, &tontine.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Tontine not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[TONTINE] Failed to fetch tontine %s: %v", tontineID, err)
			SendErrorResponse(w, "Failed to process contribution", http.StatusInternalServerError, nil)
		}
		return
	}

	if tontine.Status != "active" {
		SendErrorResponse(w, "Tontine is not active", http.StatusConflict, nil)
		return
	}

	var member int
	if err := ts.db.QueryRow(`SELECT COUNT(1) FROM tontine_members WHERE tontine_id = $1 AND user_id = $2`,
		tontineID, userID).Scan(&member); err != nil || member == 0 {
		SendErrorResponse(w, "Not a member of this tontine", http.StatusNotFound, nil)
		return
	}

	var alreadyPaid int
	if err := ts.db.QueryRow(`SELECT COUNT(1) FROM tontine_contributions WHERE tontine_id = $1 AND user_id = $2 AND round = $3`,
		tontineID, userID, tontine.CurrentRound).Scan(&alreadyPaid); err == nil && alreadyPaid > 0 {
		SendErrorResponse(w, "Contribution already paid for this round", http.StatusConflict, nil)
		return
	}

	engine := ts.ledger.ForUser(r.Context(), userID)
	result := engine.ProcessTransaction(r.Context(), ledger.TransferInput{
		Type:         ledger.TypeSend,
		Amount:       tontine.ContributionAmount,
		Counterparty: tontine.Name,
		Category:     "tontine",
		Description:  "Tontine contribution",
	})
	if !result.Success {
		if result.Error == ledger.ErrInsufficientBalance.Error() {
			SendErrorResponse(w, "Insufficient balance", http.StatusUnprocessableEntity, nil)
		} else {
			SendErrorResponse(w, "Failed to process contribution", http.StatusInternalServerError, nil)
		}
		return
	}

	contribution := models.TontineContribution{
		ID:            uuid.New().String(),
		TontineID:     tontineID,
		UserID:        userID,
		Round:         tontine.CurrentRound,
		Amount:        tontine.ContributionAmount,
		TransactionID: result.Transaction.ID,
	}
	err = ts.db.QueryRow(`
		INSERT INTO tontine_contributions (id, tontine_id, user_id, round, amount, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`, contribution.ID, tontineID, userID, contribution.Round, contribution.Amount, contribution.TransactionID).Scan(&contribution.CreatedAt)
	if err != nil {
		// Wallet already debited; the ledger transaction carries the trail.
		log.Printf("[TONTINE] Failed to record contribution for %s (tx %s): %v", tontineID, result.Transaction.ID, err)
		ts.audit.LogError(result.Transaction.ID, userID, err)
		SendErrorResponse(w, "Failed to record contribution", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TONTINE] User %s contributed %d to tontine %s round %d, reference: %s",
		userID, tontine.ContributionAmount, tontineID, tontine.CurrentRound, result.Transaction.ID)
	ts.audit.LogTransfer(result.Transaction.ID, userID, tontine.Name, tontine.ContributionAmount, "SUCCESS")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"contribution": contribution,
		"newBalance":   result.NewBalance,
	})
}
