package handlers

import (
	"net/http"
	"testing"

	"github.com/dimitrije/starter-api/internal/middleware"
	"github.com/dimitrije/starter-api/internal/services"
	"github.com/dimitrije/starter-api/internal/testutil"
	"github.com/dimitrije/starter-api/pkg/dto"
	"github.com/dimitrije/starter-api/pkg/session"
	"github.com/m1z23r/drift/pkg/drift"
	driftmw "github.com/m1z23r/drift/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func setupUserTest(t *testing.T) (*testutil.MockAccountService, *testutil.HTTPTestClient) {
	t.Helper()
	accounts := new(testutil.MockAccountService)
	handler := NewUserHandler(accounts, zap.NewNop())

	app := drift.New()
	app.Use(driftmw.BodyParser())
	app.Use(middleware.Auth(testutil.TestJWTService()))
	app.Get("/me", handler.GetMe)
	app.Post("/password", handler.ChangePassword)
	app.Post("/email", handler.UpdateEmail)
	app.Patch("/profile", handler.UpdateProfile)

	return accounts, testutil.NewHTTPTestClient(t, app)
}

func TestUserHandler_GetMe(t *testing.T) {
	accounts, client := setupUserTest(t)
	account := testutil.NewAccount()
	accounts.On("GetByID", mock.Anything, account.ID).Return(account, nil)

	token := testutil.GenerateTestToken(t, account.ID, account.SubjectID, account.Email)
	rec := client.GET("/me", testutil.AuthHeader(token))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp dto.IdentityResponse
	testutil.ParseJSON(t, rec, &resp)
	assert.Equal(t, account.SubjectID, resp.SubjectID)
	assert.Equal(t, account.Email, resp.Email)
}

func TestUserHandler_GetMe_NoToken(t *testing.T) {
	accounts, client := setupUserTest(t)

	rec := client.GET("/me", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	accounts.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestUserHandler_ChangePassword(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"success", nil, http.StatusOK, ""},
		{"weak password", services.ErrWeakPassword, http.StatusBadRequest, session.CodeInvalidArgument},
		{"social account", services.ErrSocialAccount, http.StatusBadRequest, session.CodeUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts, client := setupUserTest(t)
			account := testutil.NewAccount()
			accounts.On("ChangePassword", mock.Anything, account.ID, "new-password").Return(tt.err)

			token := testutil.GenerateTestToken(t, account.ID, account.SubjectID, account.Email)
			rec := client.POST("/password", dto.ChangePasswordRequest{Password: "new-password"}, testutil.AuthHeader(token))

			assert.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				var resp dto.ErrorResponse
				testutil.ParseJSON(t, rec, &resp)
				assert.Equal(t, tt.code, resp.Code)
			}
			accounts.AssertExpectations(t)
		})
	}
}

func TestUserHandler_UpdateEmail(t *testing.T) {
	accounts, client := setupUserTest(t)
	account := testutil.NewAccount()
	updated := *account
	updated.Email = "new@example.com"
	accounts.On("UpdateEmail", mock.Anything, account.ID, "new@example.com").Return(&updated, nil)

	token := testutil.GenerateTestToken(t, account.ID, account.SubjectID, account.Email)
	rec := client.POST("/email", dto.UpdateEmailRequest{Email: "new@example.com"}, testutil.AuthHeader(token))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp dto.IdentityResponse
	testutil.ParseJSON(t, rec, &resp)
	assert.Equal(t, "new@example.com", resp.Email)
	assert.False(t, resp.EmailVerified)
}

func TestUserHandler_UpdateEmail_Taken(t *testing.T) {
	accounts, client := setupUserTest(t)
	account := testutil.NewAccount()
	accounts.On("UpdateEmail", mock.Anything, account.ID, "taken@example.com").Return(nil, services.ErrEmailTaken)

	token := testutil.GenerateTestToken(t, account.ID, account.SubjectID, account.Email)
	rec := client.POST("/email", dto.UpdateEmailRequest{Email: "taken@example.com"}, testutil.AuthHeader(token))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUserHandler_UpdateProfile_WithEmail(t *testing.T) {
	accounts, client := setupUserTest(t)
	account := testutil.NewAccount()
	name := "Renamed"
	email := "renamed@example.com"
	updated := *account
	updated.Name = name
	updated.Email = email

	accounts.On("UpdateEmail", mock.Anything, account.ID, email).Return(&updated, nil).Once()
	accounts.On("UpdateProfile", mock.Anything, account.ID, &name, (*string)(nil)).Return(&updated, nil).Once()

	token := testutil.GenerateTestToken(t, account.ID, account.SubjectID, account.Email)
	rec := client.PATCH("/profile", dto.UpdateProfileRequest{Email: &email, Name: &name}, testutil.AuthHeader(token))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp dto.IdentityResponse
	testutil.ParseJSON(t, rec, &resp)
	assert.Equal(t, "Renamed", resp.Name)
	accounts.AssertExpectations(t)
}

func TestUserHandler_UpdateProfile_Empty(t *testing.T) {
	accounts, client := setupUserTest(t)
	account := testutil.NewAccount()

	token := testutil.GenerateTestToken(t, account.ID, account.SubjectID, account.Email)
	rec := client.PATCH("/profile", dto.UpdateProfileRequest{}, testutil.AuthHeader(token))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "nothing to update")
	accounts.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
