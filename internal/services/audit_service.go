package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/vendora/backend/internal/models"
)

// AuditLogger writes immutable records of privileged actions to the
// audit_events table and mirrors each one as an AUDIT log line. Events are
// append-only and never updated.
type AuditLogger struct {
	db *sql.DB
}

func NewAuditLogger(db *sql.DB) *AuditLogger {
	return &AuditLogger{db: db}
}

// LogEventTx appends an audit event inside the caller's transaction so the
// audit trail commits atomically with the change it records.
func (a *AuditLogger) LogEventTx(tx *sql.Tx, storeID, actorID, eventType string, payload models.Metadata) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return &StorageError{Op: "encode audit payload", Err: err}
	}

	_, err = tx.Exec(`
		INSERT INTO audit_events (store_id, actor_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		storeID, actorID, eventType, payloadJSON, time.Now())
	if err != nil {
		return &StorageError{Op: "insert audit event", Err: err}
	}

	a.emit(storeID, actorID, eventType, payload)
	return nil
}

// LogTransitionTx records a withdrawal status change with both statuses in
// the payload.
func (a *AuditLogger) LogTransitionTx(tx *sql.Tx, storeID, actorID, reference, fromStatus, toStatus string) error {
	return a.LogEventTx(tx, storeID, actorID, "withdrawal.status_changed", models.Metadata{
		"reference":   reference,
		"from_status": fromStatus,
		"to_status":   toStatus,
	})
}

// LogError emits a failure line without touching the database; errors on
// the write path already roll back with their transaction.
func (a *AuditLogger) LogError(storeID, actorID string, err error) {
	a.emit(storeID, actorID, "ERROR", models.Metadata{"error": err.Error()})
}

func (a *AuditLogger) emit(storeID, actorID, eventType string, payload models.Metadata) {
	event := models.AuditEvent{
		StoreID:   storeID,
		ActorID:   actorID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
