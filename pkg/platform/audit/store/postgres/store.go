package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "admissions/pkg/domain"
	audit "admissions/pkg/platform/audit"
	txcontext "admissions/pkg/platform/tx"
)

// Store implements audit.Store with the transactional outbox pattern: every
// entry lands in audit_log for querying and in outbox for the Kafka relay,
// in the same transaction.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID         string         `json:"id"`
	Category   string         `json:"category"`
	Timestamp  string         `json:"timestamp"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	OldValues  map[string]any `json:"old_values,omitempty"`
	NewValues  map[string]any `json:"new_values,omitempty"`
	IPAddress  string         `json:"ip_address"`
	UserAgent  string         `json:"user_agent"`
	Client     string         `json:"client,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
}

// Append writes the entry and its outbox row. It joins the caller's
// transaction when the context carries one.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	if tx, ok := txcontext.From(ctx); ok {
		return s.append(ctx, tx, entry)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := s.append(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}
	return nil
}

func (s *Store) append(ctx context.Context, tx *sql.Tx, entry audit.Entry) error {
	entryID := uuid.UUID(entry.ID)

	oldValues, err := marshalNullable(entry.OldValues)
	if err != nil {
		return fmt.Errorf("marshal old values: %w", err)
	}
	newValues, err := marshalNullable(entry.NewValues)
	if err != nil {
		return fmt.Errorf("marshal new values: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_log (
			id, actor, action, entity_type, entity_id, old_values, new_values,
			ip_address, user_agent, client, request_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		entryID, entry.Actor, string(entry.Action), entry.EntityType, entry.EntityID,
		oldValues, newValues, entry.IPAddress, entry.UserAgent, entry.Client,
		entry.RequestID, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload, err := json.Marshal(outboxPayload{
		ID:         entryID.String(),
		Category:   string(entry.Action.Category()),
		Timestamp:  entry.Timestamp.UTC().Format(time.RFC3339Nano),
		Actor:      entry.Actor,
		Action:     string(entry.Action),
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		OldValues:  entry.OldValues,
		NewValues:  entry.NewValues,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
		Client:     entry.Client,
		RequestID:  entry.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), entry.EntityType, entry.EntityID, string(entry.Action), payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByEntity returns entries for one entity, oldest first.
func (s *Store) ListByEntity(ctx context.Context, entityType, entityID string) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, action, entity_type, entity_id, old_values, new_values,
			   ip_address, user_agent, client, request_id, created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC
	`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			entry              audit.Entry
			entryID            uuid.UUID
			action             string
			oldValues, newVals []byte
		)
		if err := rows.Scan(
			&entryID, &entry.Actor, &action, &entry.EntityType, &entry.EntityID,
			&oldValues, &newVals, &entry.IPAddress, &entry.UserAgent, &entry.Client,
			&entry.RequestID, &entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.ID = id.AuditEntryID(entryID)
		entry.Action = audit.Action(action)
		if entry.OldValues, err = unmarshalNullable(oldValues); err != nil {
			return nil, err
		}
		if entry.NewValues, err = unmarshalNullable(newVals); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func marshalNullable(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalNullable(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshal audit values: %w", err)
	}
	return out, nil
}
