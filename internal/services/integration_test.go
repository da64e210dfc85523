//go:build integration

package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/dimitrije/starter-api/internal/oauth"
	"github.com/dimitrije/starter-api/internal/services"
	"github.com/dimitrije/starter-api/internal/testutil"
	"github.com/dimitrije/starter-api/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_PasswordAccountLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb := testutil.SetupTestDB(t)
	accounts := services.NewAccountService(tdb.DB, services.NewPasswordServiceWithCost(4))
	ctx := context.Background()

	account, err := accounts.SignUp(ctx, " Ada@Example.com ", "correct horse", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", account.Email)
	assert.Equal(t, "password", account.Provider)
	assert.Contains(t, account.SubjectID, "auth0|")

	_, err = accounts.SignUp(ctx, "ada@example.com", "another one", "Ada")
	assert.ErrorIs(t, err, services.ErrEmailTaken)

	_, err = accounts.Authenticate(ctx, "ada@example.com", "wrong password")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	got, err := accounts.Authenticate(ctx, "ADA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	require.NoError(t, accounts.ChangePassword(ctx, account.ID, "battery staple"))
	_, err = accounts.Authenticate(ctx, "ada@example.com", "battery staple")
	require.NoError(t, err)

	updated, err := accounts.UpdateEmail(ctx, account.ID, "lovelace@example.com")
	require.NoError(t, err)
	assert.Equal(t, "lovelace@example.com", updated.Email)
	assert.False(t, updated.EmailVerified)
}

func TestIntegration_PasswordReset(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb := testutil.SetupTestDB(t)
	accounts := services.NewAccountService(tdb.DB, services.NewPasswordServiceWithCost(4))
	tokens := services.NewTokenService(tdb.DB)
	ctx := context.Background()

	account, err := accounts.SignUp(ctx, "reset@example.com", "old password", "Reset")
	require.NoError(t, err)
	refreshHash := services.HashToken("refresh")
	require.NoError(t, tokens.StoreRefreshToken(ctx, account.ID, refreshHash, time.Now().Add(time.Hour)))

	_, token, err := accounts.CreatePasswordReset(ctx, "reset@example.com")
	require.NoError(t, err)

	require.NoError(t, accounts.ResetPassword(ctx, token, "new password"))
	_, err = accounts.Authenticate(ctx, "reset@example.com", "new password")
	require.NoError(t, err)

	// sessions are signed out and the link is single use
	_, err = tokens.ValidateRefreshToken(ctx, refreshHash)
	assert.Error(t, err)
	assert.ErrorIs(t, accounts.ResetPassword(ctx, token, "third password"), services.ErrNotFound)
}

func TestIntegration_RefreshTokenRotation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb := testutil.SetupTestDB(t)
	accounts := services.NewAccountService(tdb.DB, services.NewPasswordServiceWithCost(4))
	tokens := services.NewTokenService(tdb.DB)
	ctx := context.Background()

	account, err := accounts.SignUp(ctx, "rotate@example.com", "password123", "")
	require.NoError(t, err)

	oldHash := services.HashToken("old")
	newHash := services.HashToken("new")
	require.NoError(t, tokens.StoreRefreshToken(ctx, account.ID, oldHash, time.Now().Add(time.Hour)))

	require.NoError(t, tokens.RotateRefreshToken(ctx, account.ID, oldHash, newHash, time.Now().Add(time.Hour)))
	assert.ErrorIs(t, tokens.RotateRefreshToken(ctx, account.ID, oldHash, services.HashToken("again"), time.Now().Add(time.Hour)),
		services.ErrNotFound)

	userID, err := tokens.ValidateRefreshToken(ctx, newHash)
	require.NoError(t, err)
	assert.Equal(t, account.ID, userID)
}

func TestIntegration_RecordsAndSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb := testutil.SetupTestDB(t)
	accounts := services.NewAccountService(tdb.DB, services.NewPasswordServiceWithCost(4))
	records := services.NewRecordService(tdb.DB)
	sessions := services.NewSessionService(accounts, records, session.PlanCatalog{"price_pro": "pro"})
	ctx := context.Background()

	account, err := accounts.FindOrCreateFromOAuth(ctx, &oauth.UserInfo{
		ID:       "1234",
		Email:    "octo@example.com",
		Name:     "Octo",
		Provider: session.ProviderGitHub,
	})
	require.NoError(t, err)
	assert.Equal(t, "github|1234", account.SubjectID)

	state, err := sessions.Resolve(ctx, account.SubjectID)
	require.NoError(t, err)
	assert.True(t, state.IsLoading())

	_, created, err := records.Create(ctx, account.SubjectID, map[string]any{"email": account.Email})
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = records.Create(ctx, account.SubjectID, map[string]any{"email": "other@example.com"})
	require.NoError(t, err)
	assert.False(t, created)

	record, err := records.Update(ctx, account.SubjectID, map[string]any{"theme": "dark"})
	require.NoError(t, err)
	assert.Equal(t, "octo@example.com", record.Fields["email"])
	assert.Equal(t, "dark", record.Fields["theme"])

	_, err = records.Update(ctx, account.SubjectID, map[string]any{"priceId": "price_free"})
	assert.ErrorIs(t, err, services.ErrReservedField)

	_, err = records.SetBilling(ctx, account.SubjectID, "price_pro", "trialing")
	require.NoError(t, err)

	state, err = sessions.Resolve(ctx, account.SubjectID)
	require.NoError(t, err)
	user, ok := state.User()
	require.True(t, ok)
	assert.Equal(t, "pro", user.PlanID)
	assert.True(t, user.PlanIsActive)
	assert.Equal(t, session.ProviderGitHub, user.Provider)

	state, err = sessions.Resolve(ctx, "github|unknown")
	require.NoError(t, err)
	assert.True(t, state.IsSignedOut())
}
