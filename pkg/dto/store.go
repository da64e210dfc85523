package dto

import "time"

type RecordResponse struct {
	SubjectID          string         `json:"subject_id"`
	Fields             map[string]any `json:"fields"`
	PriceID            *string        `json:"price_id,omitempty"`
	SubscriptionStatus *string        `json:"subscription_status,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// RecordEnvelope wraps a record query. Data is null when the record does
// not exist yet.
type RecordEnvelope struct {
	Status string          `json:"status"`
	Data   *RecordResponse `json:"data"`
}

type StoreReadyResponse struct {
	Status    string `json:"status"`
	SubjectID string `json:"subject_id"`
}

// RecordEvent is one message on the record event stream.
type RecordEvent struct {
	Type string          `json:"type"`
	Data *RecordResponse `json:"data"`
}

const (
	RecordEventCreated = "record_created"
	RecordEventUpdated = "record_updated"
)
