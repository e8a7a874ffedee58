// Package postgres implements the audit store using the transactional outbox
// pattern. Events are written to the outbox table and published to Kafka by
// the outbox worker; Kafka is the source of truth for downstream consumers.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	id "civreg/pkg/domain"
	audit "civreg/pkg/platform/audit"
	txcontext "civreg/pkg/platform/tx"
)

// Store writes audit events to the audit_outbox table.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execer joins the caller's transaction when one is in context, so outcome
// records commit atomically with the identity snapshot they describe.
func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// audit.Event for deserialization by consumers.
type outboxPayload struct {
	ID                string `json:"ID"`
	Category          string `json:"Category"`
	Timestamp         string `json:"Timestamp"`
	IdentityID        string `json:"IdentityID"`
	ClientID          string `json:"ClientID,omitempty"`
	RequestID         string `json:"RequestID,omitempty"`
	Action            string `json:"Action"`
	AttributeKey      string `json:"AttributeKey,omitempty"`
	PreviousValue     string `json:"PreviousValue,omitempty"`
	NewValue          string `json:"NewValue,omitempty"`
	PreviousCertifier string `json:"PreviousCertifier,omitempty"`
	NewCertifier      string `json:"NewCertifier,omitempty"`
	Status            string `json:"Status,omitempty"`
	Reason            string `json:"Reason,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// Category is always derived from the action; the mapping is the single
	// source of truth.
	category := audit.Action(event.Action).Category()

	payload := outboxPayload{
		ID:                eventID.String(),
		Category:          string(category),
		Timestamp:         event.Timestamp.Format(time.RFC3339Nano),
		IdentityID:        event.IdentityID.String(),
		RequestID:         event.RequestID,
		Action:            event.Action,
		AttributeKey:      event.AttributeKey.String(),
		PreviousValue:     event.PreviousValue,
		NewValue:          event.NewValue,
		PreviousCertifier: event.PreviousCertifier.String(),
		NewCertifier:      event.NewCertifier.String(),
		Status:            event.Status,
		Reason:            event.Reason,
	}
	if !event.ClientID.IsNil() {
		payload.ClientID = event.ClientID.String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit_outbox (id, category, identity_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, eventID, string(category), event.IdentityID.String(), body, event.Timestamp)
	if err != nil {
		return fmt.Errorf("append audit outbox: %w", err)
	}
	return nil
}

// ListByIdentity returns the locally retained audit trail of one identity,
// newest last. Downstream history browsing reads from Kafka consumers; this
// query exists for tests and operator spot checks.
func (s *Store) ListByIdentity(ctx context.Context, identityID id.IdentityID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload
		FROM audit_outbox
		WHERE identity_id = $1
		ORDER BY created_at ASC
	`, identityID.String())
	if err != nil {
		return nil, fmt.Errorf("list audit outbox: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan audit outbox row: %w", err)
		}
		event, err := decodePayload(body)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func decodePayload(body []byte) (audit.Event, error) {
	var payload outboxPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return audit.Event{}, fmt.Errorf("unmarshal outbox payload: %w", err)
	}
	event := audit.Event{
		RequestID:         payload.RequestID,
		Action:            payload.Action,
		AttributeKey:      id.AttributeKey(payload.AttributeKey),
		PreviousValue:     payload.PreviousValue,
		NewValue:          payload.NewValue,
		PreviousCertifier: id.CertifierCode(payload.PreviousCertifier),
		NewCertifier:      id.CertifierCode(payload.NewCertifier),
		Status:            payload.Status,
		Reason:            payload.Reason,
	}
	if ts, err := time.Parse(time.RFC3339Nano, payload.Timestamp); err == nil {
		event.Timestamp = ts
	}
	if identityID, err := id.ParseIdentityID(payload.IdentityID); err == nil {
		event.IdentityID = identityID
	}
	if payload.ClientID != "" {
		if clientID, err := id.ParseClientID(payload.ClientID); err == nil {
			event.ClientID = clientID
		}
	}
	return event, nil
}
