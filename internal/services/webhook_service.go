package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	"github.com/vendora/backend/internal/models"
)

const orderLockResource = "order"

// WebhookService ingests confirmed payment events from the external
// gateway and records them in the ledger. The gateway is a black box; only
// its signed success events move funds.
type WebhookService struct {
	db        *sql.DB
	ledger    *LedgerService
	locks     *LockManager
	validator *ValidationHelper
	lockTTL   time.Duration
}

// PaymentEvent is the gateway's webhook payload.
type PaymentEvent struct {
	EventID   string          `json:"eventId" validate:"required"`
	EventType string          `json:"eventType" validate:"required"`
	StoreID   string          `json:"storeId" validate:"required"`
	OrderID   string          `json:"orderId" validate:"required"`
	Amount    int64           `json:"amount" validate:"required,gt=0"` // minor unit
	Currency  string          `json:"currency" validate:"required,len=3"`
	Metadata  models.Metadata `json:"metadata,omitempty"`
}

func NewWebhookService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService) *WebhookService {
	viper.SetDefault("webhook.lock_ttl", 30*time.Second)

	return &WebhookService{
		db:        db,
		ledger:    ledger,
		locks:     NewLockManager(redisClient),
		validator: NewValidationHelper(),
		lockTTL:   viper.GetDuration("webhook.lock_ttl"),
	}
}

// PaymentWebhook handles gateway payment notifications
// @Summary Payment gateway webhook
// @Description Record a confirmed payment in the ledger; authenticated by HMAC signature over the raw body
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-Webhook-Signature header string true "Hex HMAC-SHA256 of the request body"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /webhooks/payment [post]
func (s *WebhookService) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if !s.verifySignature(body, r.Header.Get("X-Webhook-Signature")) {
		log.Printf("[WEBHOOK] Signature verification failed from IP: %s", r.RemoteAddr)
		SendErrorResponse(w, "Invalid signature", http.StatusUnauthorized, nil)
		return
	}

	var event PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&event); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if event.EventType != "payment.success" {
		log.Printf("[WEBHOOK] Ignoring event %s of type %s", event.EventID, event.EventType)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "ignored": true})
		return
	}

	// The duplicate check and the ledger write below are two statements, so
	// concurrent redeliveries of one event must serialize on the order.
	// Losing the lock means another delivery is in flight; the gateway will
	// retry against the committed record.
	if err := s.locks.Acquire(r.Context(), orderLockResource, event.OrderID, event.EventID, s.lockTTL); err != nil {
		log.Printf("[WEBHOOK] Concurrent delivery for order %s: %v", event.OrderID, err)
		SendServiceError(w, err)
		return
	}
	defer s.locks.Release(context.Background(), orderLockResource, event.OrderID, event.EventID)

	// Gateways redeliver events; an order already in the ledger is a
	// duplicate, not an error.
	duplicate, err := s.orderRecorded(r, event.StoreID, event.OrderID)
	if err != nil {
		log.Printf("[WEBHOOK] Duplicate check failed for order %s: %v", event.OrderID, err)
		SendServiceError(w, err)
		return
	}
	if duplicate {
		log.Printf("[WEBHOOK] Duplicate payment event for order %s, already recorded", event.OrderID)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "duplicate": true})
		return
	}

	metadata := models.Metadata{"gateway_event_id": event.EventID}
	for k, v := range event.Metadata {
		metadata[k] = v
	}

	err = s.ledger.RecordTransaction(r.Context(), &TransactionRequest{
		StoreID:       event.StoreID,
		Type:          TxTypePayment,
		Amount:        event.Amount,
		Currency:      event.Currency,
		ReferenceType: "order",
		ReferenceID:   event.OrderID,
		Description:   "Order payment confirmed",
		Metadata:      metadata,
	})
	if err != nil {
		log.Printf("[WEBHOOK] Failed to record payment for order %s: %v", event.OrderID, err)
		SendServiceError(w, err)
		return
	}

	log.Printf("[WEBHOOK] Recorded payment for order %s: store=%s amount=%d %s",
		event.OrderID, event.StoreID, event.Amount, event.Currency)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
}

func (s *WebhookService) orderRecorded(r *http.Request, storeID, orderID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(r.Context(), `
		SELECT EXISTS(
			SELECT 1 FROM ledger_entries
			WHERE store_id = $1 AND reference_type = 'order' AND reference_id = $2
		)`, storeID, orderID).Scan(&exists)
	if err != nil {
		return false, &StorageError{Op: "duplicate order check", Err: err}
	}
	return exists, nil
}

func (s *WebhookService) verifySignature(body []byte, signature string) bool {
	secret := viper.GetString("webhook.secret")
	if secret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
