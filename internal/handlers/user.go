package handlers

import (
	"net/http"

	"github.com/dimitrije/starter-api/internal/middleware"
	"github.com/dimitrije/starter-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"go.uber.org/zap"
)

// UserHandler serves the signed-in account's identity profile.
type UserHandler struct {
	accounts AccountServiceInterface
	log      *zap.Logger
}

func NewUserHandler(accounts AccountServiceInterface, log *zap.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, log: log}
}

func (h *UserHandler) GetMe(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	account, err := h.accounts.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.NotFound("account not found")
		return
	}

	_ = c.JSON(http.StatusOK, identityResponse(account))
}

func (h *UserHandler) ChangePassword(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	if err := h.accounts.ChangePassword(c.Request.Context(), userID, req.Password); err != nil {
		if !accountError(c, err) {
			h.log.Error("change password failed", zap.Error(err))
			c.InternalServerError("failed to change password")
		}
		return
	}

	_ = c.JSON(http.StatusOK, map[string]string{"message": "password changed"})
}

func (h *UserHandler) UpdateEmail(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.UpdateEmailRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	account, err := h.accounts.UpdateEmail(c.Request.Context(), userID, req.Email)
	if err != nil {
		if !accountError(c, err) {
			h.log.Error("update email failed", zap.Error(err))
			c.InternalServerError("failed to update email")
		}
		return
	}

	_ = c.JSON(http.StatusOK, identityResponse(account))
}

// UpdateProfile writes the identity-owned profile fields. An email change
// goes through the same path as UpdateEmail and resets verification.
func (h *UserHandler) UpdateProfile(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.UpdateProfileRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	if req.Email == nil && req.Name == nil && req.Picture == nil {
		c.BadRequest("nothing to update")
		return
	}

	ctx := c.Request.Context()

	if req.Email != nil {
		if _, err := h.accounts.UpdateEmail(ctx, userID, *req.Email); err != nil {
			if !accountError(c, err) {
				h.log.Error("update email failed", zap.Error(err))
				c.InternalServerError("failed to update profile")
			}
			return
		}
	}

	account, err := h.accounts.UpdateProfile(ctx, userID, req.Name, req.Picture)
	if err != nil {
		if !accountError(c, err) {
			h.log.Error("update profile failed", zap.Error(err))
			c.InternalServerError("failed to update profile")
		}
		return
	}

	_ = c.JSON(http.StatusOK, identityResponse(account))
}
