package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/vendora/backend/internal/models"
)

const (
	withdrawalLockResource = "withdrawal"
	requestLockResource    = "withdrawal_request"
)

// WithdrawalService owns the withdrawal lifecycle: creation (which reserves
// funds through the ledger) and validated status transitions. Concurrent
// transitions on one withdrawal are serialized by the lock manager.
type WithdrawalService struct {
	db        *sql.DB
	ledger    *LedgerService
	locks     *LockManager
	idem      *IdempotencyGuard
	audit     *AuditLogger
	validator *ValidationHelper
	lockTTL   time.Duration
	idemTTL   time.Duration
}

// WithdrawalRequest is the merchant-facing creation payload.
type WithdrawalRequest struct {
	Amount        int64  `json:"amount" validate:"required,gt=0"` // minor unit
	Currency      string `json:"currency" validate:"required,len=3"`
	BankName      string `json:"bankName" validate:"required,max=100"`
	BankCode      string `json:"bankCode" validate:"required,min=3,max=6"`
	AccountNumber string `json:"accountNumber" validate:"required,numeric,min=10,max=20"`
}

// TransitionRequest is the ops-console status change payload.
type TransitionRequest struct {
	ToStatus string `json:"toStatus" validate:"required,oneof=PENDING PROCESSING PAID FAILED CANCELED"`
}

func NewWithdrawalService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService) *WithdrawalService {
	viper.SetDefault("withdrawal.lock_ttl", 30*time.Second)
	viper.SetDefault("withdrawal.idempotency_ttl", 24*time.Hour)

	return &WithdrawalService{
		db:        db,
		ledger:    ledger,
		locks:     NewLockManager(redisClient),
		idem:      NewIdempotencyGuard(redisClient),
		audit:     NewAuditLogger(db),
		validator: NewValidationHelper(),
		lockTTL:   viper.GetDuration("withdrawal.lock_ttl"),
		idemTTL:   viper.GetDuration("withdrawal.idempotency_ttl"),
	}
}

// RequestWithdrawal creates a PENDING withdrawal
// @Summary Request a withdrawal
// @Description Reserve available funds and create a pending withdrawal to the given bank destination
// @Tags withdrawals
// @Accept json
// @Produce json
// @Param request body WithdrawalRequest true "Withdrawal request"
// @Param Idempotency-Key header string false "Client idempotency key"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /withdrawals [post]
func (s *WithdrawalService) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, storeID, ok := callerIdentity(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req WithdrawalRequest
	if !decodeStrict(w, r, &req) {
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if _, supported := LookupBank(req.BankCode); !supported {
		SendErrorResponse(w, "Unsupported bank code", http.StatusBadRequest, nil)
		return
	}

	// The cache check and the creation below are not one atomic step, so
	// concurrent retries carrying the same key must serialize on it. The
	// loser gets 409 and retries against the stored response.
	idemKey := r.Header.Get("Idempotency-Key")
	route := "POST:/withdrawals"
	if idemKey != "" {
		lockID := idemKey + ":" + userID
		if err := s.locks.Acquire(r.Context(), requestLockResource, lockID, userID, s.lockTTL); err != nil {
			SendServiceError(w, err)
			return
		}
		defer s.locks.Release(context.Background(), requestLockResource, lockID, userID)
	}
	if s.replayIfCached(w, r, idemKey, userID, storeID, route) {
		return
	}

	reference := "WD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		log.Printf("[WITHDRAWAL] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to process withdrawal", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	// Reserve the funds first: the PAYOUT write rejects the request when
	// available balance is insufficient.
	err = s.ledger.RecordTransactionTx(tx, &TransactionRequest{
		StoreID:       storeID,
		Type:          TxTypePayout,
		Amount:        req.Amount,
		Currency:      req.Currency,
		ReferenceType: "payout",
		ReferenceID:   reference,
		Description:   "Withdrawal to " + req.BankName,
	})
	if err != nil {
		log.Printf("[WITHDRAWAL] Fund reservation failed for store %s: %v", storeID, err)
		SendServiceError(w, err)
		return
	}

	withdrawal := models.Withdrawal{
		StoreID:       storeID,
		Reference:     reference,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Status:        models.WithdrawalPending,
		BankName:      req.BankName,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
	}
	err = tx.QueryRow(`
		INSERT INTO withdrawals (store_id, reference, amount, currency, status, bank_name, bank_code, account_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		storeID, reference, req.Amount, req.Currency, models.WithdrawalPending,
		req.BankName, req.BankCode, req.AccountNumber).
		Scan(&withdrawal.ID, &withdrawal.CreatedAt, &withdrawal.UpdatedAt)
	if err != nil {
		log.Printf("[WITHDRAWAL] Failed to create withdrawal for store %s: %v", storeID, err)
		SendErrorResponse(w, "Failed to create withdrawal", http.StatusInternalServerError, nil)
		return
	}

	if err := s.audit.LogEventTx(tx, storeID, userID, "withdrawal.requested", models.Metadata{
		"reference": reference,
		"bank_code": req.BankCode,
	}); err != nil {
		log.Printf("[WITHDRAWAL] Failed to write audit event: %v", err)
		SendServiceError(w, err)
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[WITHDRAWAL] Failed to commit withdrawal %s: %v", reference, err)
		SendErrorResponse(w, "Failed to process withdrawal", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[WITHDRAWAL] Created %s for store %s: amount=%d %s", reference, storeID, req.Amount, req.Currency)
	s.respond(w, idemKey, userID, storeID, route, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    withdrawal,
	})
}

// TransitionWithdrawal applies a validated status change
// @Summary Change withdrawal status
// @Description Apply a legal status transition to a withdrawal; concurrent transitions are rejected with 409
// @Tags withdrawals
// @Accept json
// @Produce json
// @Param reference path string true "Withdrawal reference"
// @Param request body TransitionRequest true "Target status"
// @Param Idempotency-Key header string false "Client idempotency key"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /withdrawals/{reference}/status [post]
func (s *WithdrawalService) TransitionWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, storeID, ok := callerIdentity(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	reference := chi.URLParam(r, "reference")

	var req TransitionRequest
	if !decodeStrict(w, r, &req) {
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	route := "POST:/withdrawals/" + reference + "/status"
	if s.replayIfCached(w, r, idemKey, userID, storeID, route) {
		return
	}

	if err := s.locks.Acquire(r.Context(), withdrawalLockResource, reference, userID, s.lockTTL); err != nil {
		SendServiceError(w, err)
		return
	}
	// Release must run on every exit path; expiry covers the crash case.
	defer s.locks.Release(context.Background(), withdrawalLockResource, reference, userID)

	withdrawal, err := s.applyTransition(r.Context(), storeID, userID, reference, req.ToStatus)
	if err != nil {
		log.Printf("[WITHDRAWAL] Transition of %s to %s failed: %v", reference, req.ToStatus, err)
		SendServiceError(w, err)
		return
	}

	log.Printf("[WITHDRAWAL] %s transitioned to %s by %s", reference, req.ToStatus, userID)
	s.respond(w, idemKey, userID, storeID, route, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    withdrawal,
	})
}

// applyTransition loads the withdrawal, validates the status change and
// applies it together with its ledger side effects and audit record in one
// atomic transaction. Amounts are never modified, only status.
func (s *WithdrawalService) applyTransition(ctx context.Context, storeID, actorID, reference, toStatus string) (*models.Withdrawal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &StorageError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	var withdrawal models.Withdrawal
	err = tx.QueryRow(`
		SELECT id, store_id, reference, amount, currency, status, bank_name, bank_code, account_number, created_at, updated_at
		FROM withdrawals
		WHERE reference = $1 AND store_id = $2
		FOR UPDATE`, reference, storeID).Scan(
		&withdrawal.ID, &withdrawal.StoreID, &withdrawal.Reference, &withdrawal.Amount,
		&withdrawal.Currency, &withdrawal.Status, &withdrawal.BankName, &withdrawal.BankCode,
		&withdrawal.AccountNumber, &withdrawal.CreatedAt, &withdrawal.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "withdrawal", ID: reference}
	}
	if err != nil {
		return nil, &StorageError{Op: "fetch withdrawal", Err: err}
	}

	if !models.CanTransition(withdrawal.Status, toStatus) {
		return nil, &InvalidTransitionError{From: withdrawal.Status, To: toStatus}
	}

	if err := tx.QueryRow(`UPDATE withdrawals SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`,
		toStatus, withdrawal.ID).Scan(&withdrawal.UpdatedAt); err != nil {
		return nil, &StorageError{Op: "update withdrawal status", Err: err}
	}

	// The PAYOUT at request time moved funds into payout_pending. PAID
	// settles them out; FAILED and CANCELED return them to the wallet.
	switch toStatus {
	case models.WithdrawalPaid:
		err = s.ledger.RecordTransactionTx(tx, &TransactionRequest{
			StoreID:       storeID,
			Type:          TxTypePayoutSettlement,
			Amount:        withdrawal.Amount,
			Currency:      withdrawal.Currency,
			ReferenceType: "payout",
			ReferenceID:   reference,
			Description:   "Withdrawal settled",
		})
	case models.WithdrawalFailed, models.WithdrawalCanceled:
		err = s.ledger.RecordTransactionTx(tx, &TransactionRequest{
			StoreID:       storeID,
			Type:          TxTypePayoutReversal,
			Amount:        withdrawal.Amount,
			Currency:      withdrawal.Currency,
			ReferenceType: "payout",
			ReferenceID:   reference,
			Description:   "Withdrawal " + strings.ToLower(toStatus) + ", funds returned",
		})
	}
	if err != nil {
		return nil, err
	}

	if err := s.audit.LogTransitionTx(tx, storeID, actorID, reference, withdrawal.Status, toStatus); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "commit transition", Err: err}
	}

	withdrawal.Status = toStatus
	return &withdrawal, nil
}

// GetWithdrawal retrieves a withdrawal by reference
// @Summary Get withdrawal
// @Description Retrieve one withdrawal owned by the caller's store
// @Tags withdrawals
// @Produce json
// @Param reference path string true "Withdrawal reference"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /withdrawals/{reference} [get]
func (s *WithdrawalService) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	_, storeID, ok := callerIdentity(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	reference := chi.URLParam(r, "reference")

	withdrawal, err := s.fetchWithdrawal(r.Context(), storeID, reference)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    withdrawal,
	})
}

// ListWithdrawals lists the store's withdrawals
// @Summary List withdrawals
// @Description List withdrawals for the caller's store, optionally filtered by status
// @Tags withdrawals
// @Produce json
// @Param status query string false "Filter by status"
// @Success 200 {object} map[string]interface{}
// @Router /withdrawals [get]
func (s *WithdrawalService) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	_, storeID, ok := callerIdentity(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	status := r.URL.Query().Get("status")
	limit := 50

	withdrawals, err := s.fetchWithdrawals(r.Context(), storeID, status, limit)
	if err != nil {
		log.Printf("[WITHDRAWAL] Failed to list withdrawals for store %s: %v", storeID, err)
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    withdrawals,
		"count":   len(withdrawals),
	})
}

func (s *WithdrawalService) fetchWithdrawal(ctx context.Context, storeID, reference string) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, reference, amount, currency, status, bank_name, bank_code, account_number, created_at, updated_at
		FROM withdrawals
		WHERE reference = $1 AND store_id = $2`, reference, storeID).Scan(
		&withdrawal.ID, &withdrawal.StoreID, &withdrawal.Reference, &withdrawal.Amount,
		&withdrawal.Currency, &withdrawal.Status, &withdrawal.BankName, &withdrawal.BankCode,
		&withdrawal.AccountNumber, &withdrawal.CreatedAt, &withdrawal.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "withdrawal", ID: reference}
	}
	if err != nil {
		return nil, &StorageError{Op: "fetch withdrawal", Err: err}
	}
	return &withdrawal, nil
}

func (s *WithdrawalService) fetchWithdrawals(ctx context.Context, storeID, status string, limit int) ([]models.Withdrawal, error) {
	query := `
		SELECT id, store_id, reference, amount, currency, status, bank_name, bank_code, account_number, created_at, updated_at
		FROM withdrawals
		WHERE store_id = $1`
	args := []interface{}{storeID}

	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "fetch withdrawals", Err: err}
	}
	defer rows.Close()

	withdrawals := []models.Withdrawal{}
	for rows.Next() {
		var withdrawal models.Withdrawal
		if err := rows.Scan(&withdrawal.ID, &withdrawal.StoreID, &withdrawal.Reference,
			&withdrawal.Amount, &withdrawal.Currency, &withdrawal.Status, &withdrawal.BankName,
			&withdrawal.BankCode, &withdrawal.AccountNumber, &withdrawal.CreatedAt,
			&withdrawal.UpdatedAt); err != nil {
			return nil, &StorageError{Op: "scan withdrawal", Err: err}
		}
		withdrawals = append(withdrawals, withdrawal)
	}
	return withdrawals, rows.Err()
}

// replayIfCached writes the cached response for the idempotency tuple and
// reports whether the caller short-circuited. A cached hit executes no side
// effects and re-emits no audit events.
func (s *WithdrawalService) replayIfCached(w http.ResponseWriter, r *http.Request, idemKey, userID, storeID, route string) bool {
	if idemKey == "" {
		return false
	}

	cached, err := s.idem.Check(r.Context(), idemKey, userID, storeID, route)
	if err != nil {
		log.Printf("[WITHDRAWAL] Idempotency check failed for key %s: %v", idemKey, err)
		SendServiceError(w, err)
		return true
	}
	if cached == nil {
		return false
	}

	log.Printf("[WITHDRAWAL] Replaying cached response for idempotency key %s", idemKey)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(cached.Status)
	w.Write(cached.Body)
	return true
}

func (s *WithdrawalService) respond(w http.ResponseWriter, idemKey, userID, storeID, route string, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		SendErrorResponse(w, "Failed to encode response", http.StatusInternalServerError, nil)
		return
	}

	if idemKey != "" {
		if err := s.idem.Store(context.Background(), idemKey, userID, storeID, route, status, body, s.idemTTL); err != nil {
			log.Printf("[WITHDRAWAL] Failed to store idempotency record for key %s: %v", idemKey, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// callerIdentity extracts the authenticated user and store from the request
// context set by the auth middleware.
func callerIdentity(r *http.Request) (userID, storeID string, ok bool) {
	userID, uok := r.Context().Value("userID").(string)
	storeID, sok := r.Context().Value("storeID").(string)
	return userID, storeID, uok && sok && userID != "" && storeID != ""
}

// decodeStrict decodes a single JSON object with the shared size and shape
// limits, writing the error response itself on failure.
func decodeStrict(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}
