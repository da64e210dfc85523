package handlers

import (
	"context"
	"time"

	"github.com/dimitrije/starter-api/internal/models"
	"github.com/dimitrije/starter-api/internal/oauth"
	"github.com/dimitrije/starter-api/internal/services"
	"github.com/dimitrije/starter-api/internal/sse"
	"github.com/dimitrije/starter-api/pkg/dto"
	"github.com/dimitrije/starter-api/pkg/session"
	"github.com/google/uuid"
)

// AccountServiceInterface defines the methods used by handlers from AccountService
type AccountServiceInterface interface {
	SignUp(ctx context.Context, email, password, name string) (*models.Account, error)
	Authenticate(ctx context.Context, email, password string) (*models.Account, error)
	FindOrCreateFromOAuth(ctx context.Context, info *oauth.UserInfo) (*models.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetBySubject(ctx context.Context, subjectID string) (*models.Account, error)
	ChangePassword(ctx context.Context, id uuid.UUID, password string) error
	UpdateEmail(ctx context.Context, id uuid.UUID, email string) (*models.Account, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, name, picture *string) (*models.Account, error)
	CreatePasswordReset(ctx context.Context, email string) (*models.Account, string, error)
	ResetPassword(ctx context.Context, token, password string) error
}

// TokenServiceInterface defines the methods used by handlers from TokenService
type TokenServiceInterface interface {
	StoreRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, userID uuid.UUID, oldHash, newHash string, expiresAt time.Time) error
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error
}

// JWTServiceInterface defines the methods used by handlers from JWTService
type JWTServiceInterface interface {
	GenerateTokenPair(userID uuid.UUID, subjectID, email string) (*services.TokenPair, error)
	ValidateRefreshToken(token string) (uuid.UUID, error)
	RefreshExpiry() time.Duration
}

// StoreTokenIssuer defines the methods used by handlers from StoreTokenService
type StoreTokenIssuer interface {
	Issue(subjectID string) (string, error)
}

// RecordServiceInterface defines the methods used by handlers from RecordService
type RecordServiceInterface interface {
	Get(ctx context.Context, subjectID string) (*models.UserRecord, error)
	Create(ctx context.Context, subjectID string, fields map[string]any) (*models.UserRecord, bool, error)
	Update(ctx context.Context, subjectID string, fields map[string]any) (*models.UserRecord, error)
}

// SessionServiceInterface defines the methods used by handlers from SessionService
type SessionServiceInterface interface {
	Resolve(ctx context.Context, subjectID string) (session.State, error)
}

// EmailServiceInterface defines the methods used by handlers from EmailService
type EmailServiceInterface interface {
	SendPasswordReset(to, name, resetURL string) error
}

// HubInterface defines the methods used by handlers from the SSE hub
type HubInterface interface {
	Register(client *sse.Client) bool
	Unregister(client *sse.Client)
	BroadcastRecordEvent(subject string, event dto.RecordEvent)
}
