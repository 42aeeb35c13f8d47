package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kalpe/backend/internal/config"
	"github.com/kalpe/backend/internal/ledger"
)

// AgentCodeType distinguishes cash leaving the wallet (CASHOUT, the user
// collects cash from an agent) from cash entering it (CASHIN, the user
// hands cash to an agent).
type AgentCodeType string

const (
	CashOut AgentCodeType = "CASHOUT"
	CashIn  AgentCodeType = "CASHIN"
)

type AgentCode struct {
	Code          string        `json:"code"`
	TransactionID string        `json:"transactionId"`
	Type          AgentCodeType `json:"codeType"`
	UserID        string        `json:"userId"`
	Amount        int64         `json:"amount"`
	CreatedAt     time.Time     `json:"createdAt"`
	ExpiresAt     time.Time     `json:"expiresAt"`
	Expired       bool          `json:"expired"`
	Used          bool          `json:"used"`
	Currency      string        `json:"currency"`
}

// CashoutService issues and settles single-use agent codes. Codes are
// stored hashed; validation consumes the code and the settlement moves
// through the wallet ledger.
type CashoutService struct {
	db     *sql.DB
	redis  *redis.Client
	ledger *ledger.Manager
	config *config.CashoutConfig
}

func NewCashoutService(db *sql.DB, redis *redis.Client, manager *ledger.Manager) *CashoutService {
	return &CashoutService{
		db:     db,
		redis:  redis,
		ledger: manager,
		config: config.LoadCashoutConfig(),
	}
}

func (s *CashoutService) GenerateCashoutCode(ctx context.Context, userID string, amount int64) (string, error) {
	// A cash-out must be coverable when the code is issued; the balance is
	// checked again at settlement.
	engine := s.ledger.ForUser(ctx, userID)
	total := amount + ledger.Fee(amount, ledger.TypeSend)
	if engine.Balance() < total {
		return "", errors.New("insufficient balance")
	}
	return s.generateCode(ctx, userID, amount, CashOut)
}

func (s *CashoutService) GenerateCashinCode(ctx context.Context, userID string, amount int64) (string, error) {
	return s.generateCode(ctx, userID, amount, CashIn)
}

func (s *CashoutService) generateCode(ctx context.Context, userID string, amount int64, codeType AgentCodeType) (string, error) {
	log.Printf("[CASHOUT] generateCode - userID: %s, amount: %d, type: %s", userID, amount, codeType)

	if amount <= 0 {
		return "", errors.New("invalid amount")
	}

	if err := s.checkRateLimit(ctx, userID); err != nil {
		log.Printf("[CASHOUT] generateCode - Rate limit error: %v", err)
		return "", err
	}

	code := s.generateSecureCode()
	hashedCode := s.hashCode(code)
	transactionID := s.generateTransactionID()
	expiresAt := time.Now().Add(s.config.CodeTimeout)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cashout_codes (transaction_id, code_hash, code_type, user_id, amount, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, $6, false)
	`, transactionID, hashedCode, string(codeType), userID, amount, expiresAt)

	if err != nil {
		log.Printf("[CASHOUT] generateCode - DB insert error: %v", err)
		return "", fmt.Errorf("failed to store code: %w", err)
	}

	s.incrementRateLimit(ctx, userID)

	log.Printf("[CASHOUT] generateCode - Issued code for txID: %s, expires: %v", transactionID, expiresAt)
	return code, nil
}

// ValidateAndSettle consumes an agent code and settles it through the
// wallet: a CASHOUT debits the user (send to the agent), a CASHIN credits
// them (receive from the agent). The code row is consumed and the wallet
// settled under one DB transaction; a failed settlement leaves the code
// redeemable.
func (s *CashoutService) ValidateAndSettle(ctx context.Context, code string, expectedType AgentCodeType, agentID string) (*AgentCode, *ledger.Result, error) {
	hashedCode := s.hashCode(code)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var agentCode AgentCode
	var used bool
	err = tx.QueryRowContext(ctx, `
		SELECT transaction_id, user_id, amount, expires_at, used, code_type
		FROM cashout_codes
		WHERE code_hash = $1 AND code_type = $2
		FOR UPDATE
	`, hashedCode, string(expectedType)).Scan(&agentCode.TransactionID, &agentCode.UserID, &agentCode.Amount, &agentCode.ExpiresAt, &used, &agentCode.Type)

	if err == sql.ErrNoRows {
		return nil, nil, errors.New("invalid code")
	}
	if err != nil {
		return nil, nil, err
	}

	if used {
		return nil, nil, errors.New("code already used")
	}

	if time.Now().After(agentCode.ExpiresAt) {
		return nil, nil, errors.New("code expired")
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE cashout_codes
		SET used = true, used_at = $1, agent_id = $2
		WHERE code_hash = $3
	`, time.Now(), agentID, hashedCode)
	if err != nil {
		return nil, nil, err
	}

	input := ledger.TransferInput{
		Amount:       agentCode.Amount,
		Counterparty: "Agent " + agentID,
		Category:     "cashout",
	}
	if expectedType == CashOut {
		input.Type = ledger.TypeSend
		input.Description = "Cash withdrawal at agent"
	} else {
		input.Type = ledger.TypeReceive
		input.Category = "cashin"
		input.Description = "Cash deposit at agent"
	}

	// Settle before committing the used flag: a rejected settlement (the
	// balance may have dropped since issuance) rolls the row back so the
	// code stays redeemable.
	engine := s.ledger.ForUser(ctx, agentCode.UserID)
	result := engine.ProcessTransaction(ctx, input)
	if !result.Success {
		log.Printf("[CASHOUT] Settlement failed for code %s: %s", agentCode.TransactionID, result.Error)
		return &agentCode, &result, errors.New(result.Error)
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[CASHOUT] Code %s settled (reference %s) but consume commit failed: %v",
			agentCode.TransactionID, result.Transaction.ID, err)
		return nil, nil, err
	}

	log.Printf("[CASHOUT] Settled %s of %d for user %s via agent %s, reference: %s",
		expectedType, agentCode.Amount, agentCode.UserID, agentID, result.Transaction.ID)

	agentCode.Code = code
	agentCode.Used = true
	return &agentCode, &result, nil
}

func (s *CashoutService) generateSecureCode() string {
	const charset = "0123456789"
	code := make([]byte, s.config.CodeLength)
	charsetLen := big.NewInt(int64(len(charset)))

	for i := range code {
		n, _ := rand.Int(rand.Reader, charsetLen)
		code[i] = charset[n.Int64()]
	}

	return string(code)
}

func (s *CashoutService) generateTransactionID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("AGT-%X-%d", b, time.Now().Unix())
}

func (s *CashoutService) hashCode(code string) string {
	hash := sha256.Sum256([]byte(code))
	for i := 1; i < s.config.HashIterations; i++ {
		hash = sha256.Sum256(hash[:])
	}
	return hex.EncodeToString(hash[:])
}

func (s *CashoutService) checkRateLimit(ctx context.Context, userID string) error {
	key := fmt.Sprintf("kalpe:cashout:ratelimit:%s", userID)
	count, err := s.redis.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		return err
	}

	if count >= s.config.MaxGenerationPerUser {
		return errors.New("rate limit exceeded")
	}

	return nil
}

func (s *CashoutService) incrementRateLimit(ctx context.Context, userID string) {
	key := fmt.Sprintf("kalpe:cashout:ratelimit:%s", userID)
	pipe := s.redis.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.config.RateLimitWindow)
	pipe.Exec(ctx)
}

func (s *CashoutService) CleanupExpiredCodes(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM cashout_codes
		WHERE expires_at < $1 OR (used = true AND used_at < $2)
	`, time.Now(), time.Now().Add(-24*time.Hour))
	return err
}

func (s *CashoutService) GetCodeTimeout() time.Duration {
	return s.config.CodeTimeout
}

// GetUserCodes lists a user's issued codes with the code itself masked.
func (s *CashoutService) GetUserCodes(ctx context.Context, userID string) ([]AgentCode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, code_type, user_id, amount, expires_at, created_at, used
		FROM cashout_codes
		WHERE user_id = $1
		ORDER BY expires_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []AgentCode
	for rows.Next() {
		var code AgentCode
		var used bool
		if err := rows.Scan(&code.TransactionID, &code.Type, &code.UserID, &code.Amount, &code.ExpiresAt, &code.CreatedAt, &used); err != nil {
			return nil, err
		}

		code.Expired = time.Now().After(code.ExpiresAt) || used
		code.Used = used
		code.Currency = s.ledger.Currency()
		code.Code = "***"
		codes = append(codes, code)
	}

	return codes, rows.Err()
}
