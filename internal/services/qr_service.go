package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

const qrRequestTTL = 5 * time.Minute

// QRService issues single-use payment request codes. A request pins the
// payee and amount in Redis for five minutes; redeeming it consumes the key.
type QRService struct {
	redis *redis.Client
}

type QRPaymentRequest struct {
	PayeeID   string `json:"payeeId"`
	Amount    int64  `json:"amount"`
	Note      string `json:"note,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

func NewQRService(redis *redis.Client) *QRService {
	return &QRService{redis: redis}
}

func (s *QRService) GeneratePaymentRequest(ctx context.Context, payeeID string, amount int64, note string) (string, string, error) {
	request := QRPaymentRequest{
		PayeeID:   payeeID,
		Amount:    amount,
		Note:      note,
		Timestamp: time.Now().Unix(),
		Nonce:     s.generateNonce(),
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", "", err
	}

	qrCode := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("kalpe:qr:%s", qrCode)
	if err := s.redis.Set(ctx, key, jsonData, qrRequestTTL).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(qrCode, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	qrImage := base64.StdEncoding.EncodeToString(buf.Bytes())

	return qrCode, qrImage, nil
}

// RedeemPaymentRequest consumes a payment request code. GETDEL makes the
// consume atomic: two concurrent scans cannot both redeem the same request.
func (s *QRService) RedeemPaymentRequest(ctx context.Context, qrData string) (*QRPaymentRequest, error) {
	key := fmt.Sprintf("kalpe:qr:%s", qrData)

	data, err := s.redis.GetDel(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("invalid or expired QR code")
	}
	if err != nil {
		return nil, err
	}

	var request QRPaymentRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, err
	}

	return &request, nil
}

// RestorePaymentRequest re-pins a redeemed request whose settlement did not
// go through, so the payee's code stays scannable. The TTL starts over.
func (s *QRService) RestorePaymentRequest(ctx context.Context, qrData string, request *QRPaymentRequest) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return
	}
	key := fmt.Sprintf("kalpe:qr:%s", qrData)
	if err := s.redis.Set(ctx, key, jsonData, qrRequestTTL).Err(); err != nil {
		log.Printf("[QR] Failed to restore payment request: %v", err)
	}
}

func (s *QRService) generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
