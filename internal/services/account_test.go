package services

import (
	"context"
	"testing"
	"time"

	"github.com/dimitrije/starter-api/internal/database"
	"github.com/dimitrije/starter-api/internal/models"
	"github.com/dimitrije/starter-api/internal/oauth"
	"github.com/dimitrije/starter-api/pkg/session"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var accountColumnNames = []string{
	"id", "subject_id", "provider", "provider_id", "email", "email_verified",
	"name", "picture", "password_hash", "created_at", "updated_at",
}

func setupAccountService(t *testing.T) (*AccountService, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	db := &database.DB{Pool: mock}
	return NewAccountService(db, NewPasswordServiceWithCost(bcrypt.MinCost)), mock
}

func accountRows(a models.Account) *pgxmock.Rows {
	return pgxmock.NewRows(accountColumnNames).AddRow(
		a.ID, a.SubjectID, a.Provider, a.ProviderID, a.Email, a.EmailVerified,
		a.Name, a.Picture, a.PasswordHash, a.CreatedAt, a.UpdatedAt,
	)
}

func passwordAccount(t *testing.T, password string) models.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	h := string(hash)
	now := time.Now()
	return models.Account{
		ID:           uuid.New(),
		SubjectID:    "auth0|abc",
		Provider:     "password",
		ProviderID:   "abc",
		Email:        "user@example.com",
		Name:         "User",
		PasswordHash: &h,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestAccountService_SignUp(t *testing.T) {
	svc, mock := setupAccountService(t)
	ctx := context.Background()
	acc := passwordAccount(t, "hunter2hunter2")

	mock.ExpectQuery(`INSERT INTO accounts`).
		WithArgs(pgxmock.AnyArg(), "password", pgxmock.AnyArg(), "user@example.com", "User", pgxmock.AnyArg()).
		WillReturnRows(accountRows(acc))

	account, err := svc.SignUp(ctx, " User@Example.com ", "hunter2hunter2", "User")

	require.NoError(t, err)
	assert.Equal(t, acc.ID, account.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_SignUp_InvalidEmail(t *testing.T) {
	svc, mock := setupAccountService(t)

	_, err := svc.SignUp(context.Background(), "not-an-email", "hunter2hunter2", "")

	assert.ErrorIs(t, err, ErrInvalidEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_SignUp_WeakPassword(t *testing.T) {
	svc, mock := setupAccountService(t)

	_, err := svc.SignUp(context.Background(), "user@example.com", "short", "")

	assert.ErrorIs(t, err, ErrWeakPassword)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_SignUp_EmailTaken(t *testing.T) {
	svc, mock := setupAccountService(t)

	mock.ExpectQuery(`INSERT INTO accounts`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := svc.SignUp(context.Background(), "user@example.com", "hunter2hunter2", "")

	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_Authenticate(t *testing.T) {
	svc, mock := setupAccountService(t)
	acc := passwordAccount(t, "correct-horse")

	mock.ExpectQuery(`SELECT .+ FROM accounts\s+WHERE provider = .+ AND LOWER\(email\)`).
		WithArgs("password", "user@example.com").
		WillReturnRows(accountRows(acc))

	account, err := svc.Authenticate(context.Background(), "user@example.com", "correct-horse")

	require.NoError(t, err)
	assert.Equal(t, acc.SubjectID, account.SubjectID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_Authenticate_WrongPassword(t *testing.T) {
	svc, mock := setupAccountService(t)
	acc := passwordAccount(t, "correct-horse")

	mock.ExpectQuery(`SELECT .+ FROM accounts`).
		WithArgs("password", "user@example.com").
		WillReturnRows(accountRows(acc))

	_, err := svc.Authenticate(context.Background(), "user@example.com", "battery-staple")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAccountService_Authenticate_UnknownEmail(t *testing.T) {
	svc, mock := setupAccountService(t)

	mock.ExpectQuery(`SELECT .+ FROM accounts`).
		WithArgs("password", "ghost@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := svc.Authenticate(context.Background(), "ghost@example.com", "whatever1")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAccountService_FindOrCreateFromOAuth_CreateNew(t *testing.T) {
	svc, mock := setupAccountService(t)
	info := &oauth.UserInfo{
		ID:            "1089",
		Email:         "ada@example.com",
		EmailVerified: true,
		Name:          "Ada",
		AvatarURL:     "https://example.com/ada.png",
		Provider:      session.ProviderGoogle,
	}
	now := time.Now()
	acc := models.Account{
		ID: uuid.New(), SubjectID: "google-oauth2|1089", Provider: "google", ProviderID: "1089",
		Email: info.Email, EmailVerified: true, Name: info.Name, Picture: &info.AvatarURL,
		CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectQuery(`SELECT .+ FROM accounts\s+WHERE provider = .+ AND provider_id`).
		WithArgs("google", "1089").
		WillReturnError(pgx.ErrNoRows)

	mock.ExpectQuery(`INSERT INTO accounts`).
		WithArgs("google-oauth2|1089", "google", "1089", info.Email, true, info.Name, &info.AvatarURL).
		WillReturnRows(accountRows(acc))

	account, err := svc.FindOrCreateFromOAuth(context.Background(), info)

	require.NoError(t, err)
	assert.Equal(t, "google-oauth2|1089", account.SubjectID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_FindOrCreateFromOAuth_UpdatesChangedProfile(t *testing.T) {
	svc, mock := setupAccountService(t)
	info := &oauth.UserInfo{
		ID:       "42",
		Email:    "new@example.com",
		Name:     "Octo",
		Provider: session.ProviderGitHub,
	}
	now := time.Now()
	acc := models.Account{
		ID: uuid.New(), SubjectID: "github|42", Provider: "github", ProviderID: "42",
		Email: "old@example.com", Name: "Octo", CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectQuery(`SELECT .+ FROM accounts`).
		WithArgs("github", "42").
		WillReturnRows(accountRows(acc))
	mock.ExpectExec(`UPDATE accounts SET email`).
		WithArgs("new@example.com", false, "Octo", (*string)(nil), acc.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	account, err := svc.FindOrCreateFromOAuth(context.Background(), info)

	require.NoError(t, err)
	assert.Equal(t, "new@example.com", account.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_ChangePassword(t *testing.T) {
	svc, mock := setupAccountService(t)
	acc := passwordAccount(t, "old-password")

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE id`).
		WithArgs(acc.ID).
		WillReturnRows(accountRows(acc))
	mock.ExpectExec(`UPDATE accounts SET password_hash`).
		WithArgs(pgxmock.AnyArg(), acc.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := svc.ChangePassword(context.Background(), acc.ID, "new-password")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_ChangePassword_SocialAccount(t *testing.T) {
	svc, mock := setupAccountService(t)
	acc := passwordAccount(t, "unused-password")
	acc.PasswordHash = nil
	acc.Provider = "github"

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE id`).
		WithArgs(acc.ID).
		WillReturnRows(accountRows(acc))

	err := svc.ChangePassword(context.Background(), acc.ID, "new-password")

	assert.ErrorIs(t, err, ErrSocialAccount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_UpdateEmail_ResetsVerification(t *testing.T) {
	svc, mock := setupAccountService(t)
	acc := passwordAccount(t, "whatever-pass")
	acc.Email = "changed@example.com"

	mock.ExpectQuery(`UPDATE accounts SET email = \$1, email_verified = FALSE`).
		WithArgs("changed@example.com", acc.ID).
		WillReturnRows(accountRows(acc))

	account, err := svc.UpdateEmail(context.Background(), acc.ID, "Changed@Example.com")

	require.NoError(t, err)
	assert.False(t, account.EmailVerified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_UpdateProfile(t *testing.T) {
	svc, mock := setupAccountService(t)
	acc := passwordAccount(t, "whatever-pass")
	name := "Renamed"
	acc.Name = name

	mock.ExpectQuery(`UPDATE accounts SET name = COALESCE`).
		WithArgs(&name, (*string)(nil), acc.ID).
		WillReturnRows(accountRows(acc))

	account, err := svc.UpdateProfile(context.Background(), acc.ID, &name, nil)

	require.NoError(t, err)
	assert.Equal(t, "Renamed", account.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_GetBySubject_NotFound(t *testing.T) {
	svc, mock := setupAccountService(t)

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE subject_id`).
		WithArgs("auth0|missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := svc.GetBySubject(context.Background(), "auth0|missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccountService_CreatePasswordReset(t *testing.T) {
	svc, mock := setupAccountService(t)
	acc := passwordAccount(t, "whatever-pass")

	mock.ExpectQuery(`SELECT .+ FROM accounts`).
		WithArgs("password", "user@example.com").
		WillReturnRows(accountRows(acc))
	mock.ExpectExec(`INSERT INTO password_resets`).
		WithArgs(pgxmock.AnyArg(), acc.ID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	account, token, err := svc.CreatePasswordReset(context.Background(), "user@example.com")

	require.NoError(t, err)
	assert.Equal(t, acc.ID, account.ID)
	assert.Len(t, token, 44)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_ResetPassword(t *testing.T) {
	svc, mock := setupAccountService(t)
	accountID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`DELETE FROM password_resets`).
		WithArgs(HashToken("reset-token")).
		WillReturnRows(pgxmock.NewRows([]string{"account_id"}).AddRow(accountID))
	mock.ExpectExec(`UPDATE accounts SET password_hash`).
		WithArgs(pgxmock.AnyArg(), accountID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE user_id`).
		WithArgs(accountID).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	err := svc.ResetPassword(context.Background(), "reset-token", "brand-new-password")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_ResetPassword_ExpiredToken(t *testing.T) {
	svc, mock := setupAccountService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`DELETE FROM password_resets`).
		WithArgs(HashToken("stale")).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := svc.ResetPassword(context.Background(), "stale", "brand-new-password")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
