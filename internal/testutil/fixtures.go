package testutil

import (
	"time"

	"github.com/dimitrije/starter-api/internal/models"
	"github.com/google/uuid"
)

// AccountOption configures a test account
type AccountOption func(*models.Account)

// NewAccount returns an in-memory account with default values
func NewAccount(opts ...AccountOption) *models.Account {
	now := time.Now()
	id := uuid.New()
	a := &models.Account{
		ID:         id,
		SubjectID:  "auth0|" + id.String(),
		Provider:   "password",
		ProviderID: id.String(),
		Email:      "user@example.com",
		Name:       "Test User",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WithEmail sets the account's email
func WithEmail(email string) AccountOption {
	return func(a *models.Account) {
		a.Email = email
	}
}

// WithSocial makes the account a social account of the given provider
func WithSocial(provider, prefix, providerID string) AccountOption {
	return func(a *models.Account) {
		a.Provider = provider
		a.ProviderID = providerID
		a.SubjectID = prefix + "|" + providerID
	}
}

// NewRecord returns an in-memory user record for subject
func NewRecord(subject string, fields map[string]any) *models.UserRecord {
	now := time.Now()
	if fields == nil {
		fields = map[string]any{}
	}
	return &models.UserRecord{SubjectID: subject, Fields: fields, CreatedAt: now, UpdatedAt: now}
}
