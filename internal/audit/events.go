// Package audit emits application audit events to a Kafka-compatible
// broker. Publishing is best effort: a broken or absent broker never
// blocks or fails the user-facing request.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of audit event.
type EventType string

const (
	EventAuthorizationStarted   EventType = "AuthorizationStarted"
	EventAuthorizationCompleted EventType = "AuthorizationCompleted"
	EventAuthorizationFailed    EventType = "AuthorizationFailed"
	EventPatientViewed          EventType = "PatientViewed"
	EventMedicationsListed      EventType = "MedicationsListed"
	EventSessionReset           EventType = "SessionReset"
	EventLogout                 EventType = "Logout"
)

// Event is a single audit record. SessionID keys the Kafka record so
// events for one session stay ordered within a partition.
type Event struct {
	ID        string          `json:"id"`
	EventType EventType       `json:"event_type"`
	SessionID string          `json:"session_id"`
	PatientID string          `json:"patient_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent builds an audit event with a fresh ID and UTC timestamp.
// data may be nil when the event type alone carries the meaning.
func NewEvent(eventType EventType, sessionID string, data interface{}) (*Event, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Event{
		ID:        uuid.New().String(),
		EventType: eventType,
		SessionID: sessionID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// MedicationsListedData records a listing outcome without any PHI
// beyond the launch context patient ID.
type MedicationsListedData struct {
	PatientID string `json:"patient_id"`
	Count     int    `json:"count"`
}

// AuthorizationFailedData records why an OAuth callback was rejected.
type AuthorizationFailedData struct {
	Reason string `json:"reason"`
}
