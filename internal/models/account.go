package models

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID            uuid.UUID `json:"id"`
	SubjectID     string    `json:"subject_id"`
	Provider      string    `json:"provider"`
	ProviderID    string    `json:"-"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	Name          string    `json:"name"`
	Picture       *string   `json:"picture,omitempty"`
	PasswordHash  *string   `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
