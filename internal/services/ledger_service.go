package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/vendora/backend/internal/models"
)

// Transaction types accepted by the ledger. Each resolves to a balanced
// pair of entries via entrySpecs.
const (
	TxTypePayment          = "PAYMENT"
	TxTypePayout           = "PAYOUT"
	TxTypeRefund           = "REFUND"
	TxTypeAdjustment       = "ADJUSTMENT"
	TxTypePayoutReversal   = "PAYOUT_REVERSAL"
	TxTypePayoutSettlement = "PAYOUT_SETTLEMENT"
)

const defaultCurrency = "NGN"

// LedgerService owns every write to ledger_entries and wallets. No other
// component mutates a wallet row.
type LedgerService struct {
	db        *sql.DB
	validator *ValidationHelper
}

// TransactionRequest describes one fund movement for a store.
type TransactionRequest struct {
	StoreID       string          `json:"storeId" validate:"required"`
	Type          string          `json:"type" validate:"required,oneof=PAYMENT PAYOUT REFUND ADJUSTMENT PAYOUT_REVERSAL PAYOUT_SETTLEMENT"`
	Amount        int64           `json:"amount" validate:"required,gt=0"` // minor unit
	Currency      string          `json:"currency" validate:"required,len=3"`
	ReferenceType string          `json:"referenceType" validate:"required"`
	ReferenceID   string          `json:"referenceId" validate:"required"`
	Description   string          `json:"description,omitempty"`
	Metadata      models.Metadata `json:"metadata,omitempty"`
}

type entrySpec struct {
	Account   string
	Direction string
	Amount    int64
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// entrySpecs resolves a transaction type into its double-entry pair. The
// signed amounts (CREDIT positive, DEBIT negative) of every pair sum to
// zero, so the ledger stays balanced across accounts.
func entrySpecs(txType string, amount int64) []entrySpec {
	switch txType {
	case TxTypePayment:
		return []entrySpec{
			{Account: models.AccountWalletAvailable, Direction: models.DirectionCredit, Amount: amount},
			{Account: models.AccountSalesRevenue, Direction: models.DirectionDebit, Amount: amount},
		}
	case TxTypePayout:
		return []entrySpec{
			{Account: models.AccountWalletAvailable, Direction: models.DirectionDebit, Amount: amount},
			{Account: models.AccountPayoutPending, Direction: models.DirectionCredit, Amount: amount},
		}
	case TxTypeRefund:
		return []entrySpec{
			{Account: models.AccountWalletAvailable, Direction: models.DirectionDebit, Amount: amount},
			{Account: models.AccountSalesRevenue, Direction: models.DirectionCredit, Amount: amount},
		}
	case TxTypeAdjustment:
		return []entrySpec{
			{Account: models.AccountWalletAvailable, Direction: models.DirectionCredit, Amount: amount},
			{Account: models.AccountAdjustments, Direction: models.DirectionDebit, Amount: amount},
		}
	case TxTypePayoutReversal:
		return []entrySpec{
			{Account: models.AccountWalletAvailable, Direction: models.DirectionCredit, Amount: amount},
			{Account: models.AccountPayoutPending, Direction: models.DirectionDebit, Amount: amount},
		}
	case TxTypePayoutSettlement:
		return []entrySpec{
			{Account: models.AccountPayoutPending, Direction: models.DirectionDebit, Amount: amount},
			{Account: models.AccountPayoutSettled, Direction: models.DirectionCredit, Amount: amount},
		}
	}
	return nil
}

// RecordTransaction writes all entries for the request and the resulting
// wallet deltas in one atomic transaction. Either everything commits or
// nothing does.
func (s *LedgerService) RecordTransaction(ctx context.Context, req *TransactionRequest) error {
	if err := s.validateRequest(req); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	if err := s.RecordTransactionTx(tx, req); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "commit transaction", Err: err}
	}

	return nil
}

// RecordTransactionTx writes the request's entries and wallet deltas inside
// an existing transaction, so callers can bundle a ledger write with other
// row changes (e.g. a withdrawal status update) atomically.
func (s *LedgerService) RecordTransactionTx(tx *sql.Tx, req *TransactionRequest) error {
	if err := s.validateRequest(req); err != nil {
		return err
	}

	specs := entrySpecs(req.Type, req.Amount)

	var availableDelta, pendingDelta int64
	for _, spec := range specs {
		signed := spec.Amount
		if spec.Direction == models.DirectionDebit {
			signed = -signed
		}
		switch spec.Account {
		case models.AccountWalletAvailable:
			availableDelta += signed
		case models.AccountPayoutPending:
			pendingDelta += signed
		}
	}

	if err := s.applyWalletDelta(tx, req.StoreID, req.Currency, availableDelta, pendingDelta); err != nil {
		return err
	}

	for _, spec := range specs {
		if err := s.insertEntry(tx, req, spec); err != nil {
			return err
		}
	}

	log.Printf("[LEDGER] Recorded %s for store %s: amount=%d %s, ref=%s/%s",
		req.Type, req.StoreID, req.Amount, req.Currency, req.ReferenceType, req.ReferenceID)
	return nil
}

func (s *LedgerService) validateRequest(req *TransactionRequest) error {
	if err := s.validator.ValidateStruct(req); err != nil {
		return err
	}
	if req.Amount <= 0 {
		return &ValidationError{Message: "amount must be positive"}
	}
	if entrySpecs(req.Type, req.Amount) == nil {
		return &ValidationError{Message: "unknown transaction type: " + req.Type}
	}
	return nil
}

// applyWalletDelta adjusts the projection for the store. Credits use an
// upsert increment so the wallet row is created lazily; debits use a
// balance-guarded update so available funds can never go negative.
func (s *LedgerService) applyWalletDelta(tx *sql.Tx, storeID, currency string, availableDelta, pendingDelta int64) error {
	if availableDelta == 0 && pendingDelta == 0 {
		return nil
	}

	if availableDelta < 0 {
		debit := -availableDelta
		result, err := tx.Exec(`
			UPDATE wallets
			SET available_balance = available_balance - $1, pending_balance = pending_balance + $2, updated_at = NOW()
			WHERE store_id = $3 AND available_balance >= $1`,
			debit, pendingDelta, storeID)
		if err != nil {
			return &StorageError{Op: "debit wallet", Err: err}
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return &StorageError{Op: "debit wallet", Err: err}
		}
		if rowsAffected == 0 {
			return ErrInsufficientBalance
		}
		return nil
	}

	_, err := tx.Exec(`
		INSERT INTO wallets (store_id, available_balance, pending_balance, currency, kyc_status, updated_at)
		VALUES ($1, $2, $3, $4, 'UNVERIFIED', NOW())
		ON CONFLICT (store_id) DO UPDATE
		SET available_balance = wallets.available_balance + EXCLUDED.available_balance,
		    pending_balance = wallets.pending_balance + EXCLUDED.pending_balance,
		    updated_at = NOW()`,
		storeID, availableDelta, pendingDelta, currency)
	if err != nil {
		return &StorageError{Op: "credit wallet", Err: err}
	}
	return nil
}

func (s *LedgerService) insertEntry(tx *sql.Tx, req *TransactionRequest, spec entrySpec) error {
	metadataJSON, err := json.Marshal(req.Metadata)
	if err != nil {
		return &StorageError{Op: "encode metadata", Err: err}
	}

	_, err = tx.Exec(`
		INSERT INTO ledger_entries (store_id, reference_type, reference_id, account, direction, amount, currency, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		req.StoreID, req.ReferenceType, req.ReferenceID, spec.Account, spec.Direction,
		spec.Amount, req.Currency, req.Description, metadataJSON, time.Now())
	if err != nil {
		return &StorageError{Op: "insert ledger entry", Err: err}
	}
	return nil
}

// GetBalance returns the projected wallet for a store. A store that has
// never moved funds gets a zero wallet in the default currency.
func (s *LedgerService) GetBalance(ctx context.Context, storeID string) (*models.Wallet, error) {
	wallet := &models.Wallet{StoreID: storeID, Currency: defaultCurrency}
	err := s.db.QueryRowContext(ctx, `
		SELECT store_id, available_balance, pending_balance, currency, kyc_status, updated_at
		FROM wallets
		WHERE store_id = $1`, storeID).Scan(
		&wallet.StoreID, &wallet.AvailableBalance, &wallet.PendingBalance,
		&wallet.Currency, &wallet.KYCStatus, &wallet.UpdatedAt)

	if err == sql.ErrNoRows {
		return wallet, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "fetch wallet", Err: err}
	}
	return wallet, nil
}

func (s *LedgerService) fetchEntries(ctx context.Context, storeID string, limit int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, reference_type, reference_id, account, direction, amount, currency, description, created_at
		FROM ledger_entries
		WHERE store_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, storeID, limit)
	if err != nil {
		return nil, &StorageError{Op: "fetch ledger entries", Err: err}
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ReferenceType, &entry.ReferenceID,
			&entry.Account, &entry.Direction, &entry.Amount, &entry.Currency,
			&entry.Description, &entry.CreatedAt); err != nil {
			return nil, &StorageError{Op: "scan ledger entry", Err: err}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetWalletBalance returns the caller's wallet projection
// @Summary Get wallet balance
// @Description Retrieve available and pending balances for the caller's store
// @Tags wallet
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /wallet/balance [get]
func (s *LedgerService) GetWalletBalance(w http.ResponseWriter, r *http.Request) {
	storeID, ok := r.Context().Value("storeID").(string)
	if !ok || storeID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	wallet, err := s.GetBalance(r.Context(), storeID)
	if err != nil {
		log.Printf("[LEDGER] Failed to fetch balance for store %s: %v", storeID, err)
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    wallet,
	})
}

// GetWalletLedger lists recent ledger entries for the caller's store
// @Summary List ledger entries
// @Description Retrieve recent ledger entries for the caller's store
// @Tags wallet
// @Produce json
// @Param limit query int false "Number of entries to return (default: 50, max: 200)"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /wallet/ledger [get]
func (s *LedgerService) GetWalletLedger(w http.ResponseWriter, r *http.Request) {
	storeID, ok := r.Context().Value("storeID").(string)
	if !ok || storeID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	entries, err := s.fetchEntries(r.Context(), storeID, limit)
	if err != nil {
		log.Printf("[LEDGER] Failed to fetch entries for store %s: %v", storeID, err)
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    entries,
		"count":   len(entries),
	})
}
