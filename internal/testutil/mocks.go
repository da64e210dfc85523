package testutil

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
	"github.com/stretchr/testify/mock"
)

// MockAccountService mocks the AccountService
type MockAccountService struct {
	mock.Mock
}

func account(args mock.Arguments) (*models.Account, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountService) SignUp(ctx context.Context, email, password, name string) (*models.Account, error) {
	return account(m.Called(ctx, email, password, name))
}

func (m *MockAccountService) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	return account(m.Called(ctx, email, password))
}

func (m *MockAccountService) FindOrCreateFromOAuth(ctx context.Context, info *oauth.UserInfo) (*models.Account, error) {
	return account(m.Called(ctx, info))
}

func (m *MockAccountService) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return account(m.Called(ctx, id))
}

func (m *MockAccountService) GetBySubject(ctx context.Context, subjectID string) (*models.Account, error) {
	return account(m.Called(ctx, subjectID))
}

func (m *MockAccountService) ChangePassword(ctx context.Context, id uuid.UUID, password string) error {
	args := m.Called(ctx, id, password)
	return args.Error(0)
}

func (m *MockAccountService) UpdateEmail(ctx context.Context, id uuid.UUID, email string) (*models.Account, error) {
	return account(m.Called(ctx, id, email))
}

func (m *MockAccountService) UpdateProfile(ctx context.Context, id uuid.UUID, name, picture *string) (*models.Account, error) {
	return account(m.Called(ctx, id, name, picture))
}

func (m *MockAccountService) CreatePasswordReset(ctx context.Context, email string) (*models.Account, string, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*models.Account), args.String(1), args.Error(2)
}

func (m *MockAccountService) ResetPassword(ctx context.Context, token, password string) error {
	args := m.Called(ctx, token, password)
	return args.Error(0)
}

// MockTokenService mocks the TokenService
type MockTokenService struct {
	mock.Mock
}

func (m *MockTokenService) StoreRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, tokenHash, expiresAt)
	return args.Error(0)
}

func (m *MockTokenService) RotateRefreshToken(ctx context.Context, userID uuid.UUID, oldHash, newHash string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, oldHash, newHash, expiresAt)
	return args.Error(0)
}

func (m *MockTokenService) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

func (m *MockTokenService) RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockJWTService mocks the JWTService
type MockJWTService struct {
	mock.Mock
}

func (m *MockJWTService) GenerateTokenPair(userID uuid.UUID, subjectID, email string) (*services.TokenPair, error) {
	args := m.Called(userID, subjectID, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TokenPair), args.Error(1)
}

func (m *MockJWTService) ValidateRefreshToken(token string) (uuid.UUID, error) {
	args := m.Called(token)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockJWTService) RefreshExpiry() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

// MockStoreTokenIssuer mocks the StoreTokenService
type MockStoreTokenIssuer struct {
	mock.Mock
}

func (m *MockStoreTokenIssuer) Issue(subjectID string) (string, error) {
	args := m.Called(subjectID)
	return args.String(0), args.Error(1)
}

// MockRecordService mocks the RecordService
type MockRecordService struct {
	mock.Mock
}

func (m *MockRecordService) Get(ctx context.Context, subjectID string) (*models.UserRecord, error) {
	args := m.Called(ctx, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserRecord), args.Error(1)
}

func (m *MockRecordService) Create(ctx context.Context, subjectID string, fields map[string]any) (*models.UserRecord, bool, error) {
	args := m.Called(ctx, subjectID, fields)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.UserRecord), args.Bool(1), args.Error(2)
}

func (m *MockRecordService) Update(ctx context.Context, subjectID string, fields map[string]any) (*models.UserRecord, error) {
	args := m.Called(ctx, subjectID, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserRecord), args.Error(1)
}

// MockSessionService mocks the SessionService
type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Resolve(ctx context.Context, subjectID string) (session.State, error) {
	args := m.Called(ctx, subjectID)
	return args.Get(0).(session.State), args.Error(1)
}

// MockEmailService mocks the EmailService
type MockEmailService struct {
	mock.Mock
}

func (m *MockEmailService) SendPasswordReset(to, name, resetURL string) error {
	args := m.Called(to, name, resetURL)
	return args.Error(0)
}

// MockHub mocks the SSE hub
type MockHub struct {
	mock.Mock
}

func (m *MockHub) Register(client *sse.Client) bool {
	args := m.Called(client)
	return args.Bool(0)
}

func (m *MockHub) Unregister(client *sse.Client) {
	m.Called(client)
}

func (m *MockHub) BroadcastRecordEvent(subject string, event dto.RecordEvent) {
	m.Called(subject, event)
}

// MockOAuthProvider mocks an oauth.Provider
type MockOAuthProvider struct {
	mock.Mock
}

func (m *MockOAuthProvider) GetConsentURL(state string) string {
	args := m.Called(state)
	return args.String(0)
}

func (m *MockOAuthProvider) ExchangeCode(ctx context.Context, code, state string) (*oauth.UserInfo, error) {
	args := m.Called(ctx, code, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth.UserInfo), args.Error(1)
}

func (m *MockOAuthProvider) Name() session.ProviderTag {
	args := m.Called()
	return args.Get(0).(session.ProviderTag)
}
