package handlers

import (
	"errors"
	"net/http"

	"github.com/dimitrije/starter-api/internal/middleware"
	"github.com/dimitrije/starter-api/internal/services"
	"github.com/dimitrije/starter-api/pkg/dto"
	"github.com/m1z23r/drift/pkg/drift"
	"go.uber.org/zap"
)

const storeTokenFailure = "could not issue store token"

// TokenExchangeHandler trades an identity access token for a store
// credential scoped to the same subject.
type TokenExchangeHandler struct {
	accounts    AccountServiceInterface
	storeTokens StoreTokenIssuer
	log         *zap.Logger
}

func NewTokenExchangeHandler(accounts AccountServiceInterface, storeTokens StoreTokenIssuer, log *zap.Logger) *TokenExchangeHandler {
	return &TokenExchangeHandler{accounts: accounts, storeTokens: storeTokens, log: log}
}

// Exchange never reports why it failed; the reason is logged.
func (h *TokenExchangeHandler) Exchange(c *drift.Context) {
	subject := middleware.GetSubject(c)
	if subject == "" {
		h.fail(c, http.StatusUnauthorized)
		return
	}

	if _, err := h.accounts.GetBySubject(c.Request.Context(), subject); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, services.ErrNotFound) {
			status = http.StatusUnauthorized
		}
		h.log.Warn("store token: account lookup failed", zap.String("subject", subject), zap.Error(err))
		h.fail(c, status)
		return
	}

	credential, err := h.storeTokens.Issue(subject)
	if err != nil {
		h.log.Error("store token: signing failed", zap.String("subject", subject), zap.Error(err))
		h.fail(c, http.StatusBadGateway)
		return
	}

	_ = c.JSON(http.StatusOK, dto.StoreTokenResponse{Status: dto.StatusSuccess, Data: credential})
}

func (h *TokenExchangeHandler) fail(c *drift.Context, status int) {
	_ = c.JSON(status, dto.StoreTokenResponse{Status: dto.StatusError, Message: storeTokenFailure})
}
