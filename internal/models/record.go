package models

import "time"

// UserRecord is the per-subject document kept by the data store.
type UserRecord struct {
	SubjectID          string         `json:"subject_id"`
	Fields             map[string]any `json:"fields"`
	PriceID            *string        `json:"price_id,omitempty"`
	SubscriptionStatus *string        `json:"subscription_status,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Subscription statuses reported by the billing provider.
const (
	SubscriptionActive            = "active"
	SubscriptionTrialing          = "trialing"
	SubscriptionPastDue           = "past_due"
	SubscriptionCanceled          = "canceled"
	SubscriptionUnpaid            = "unpaid"
	SubscriptionIncomplete        = "incomplete"
	SubscriptionIncompleteExpired = "incomplete_expired"
)

// ValidSubscriptionStatus reports whether s is a known status.
func ValidSubscriptionStatus(s string) bool {
	switch s {
	case SubscriptionActive, SubscriptionTrialing, SubscriptionPastDue, SubscriptionCanceled,
		SubscriptionUnpaid, SubscriptionIncomplete, SubscriptionIncompleteExpired:
		return true
	}
	return false
}
