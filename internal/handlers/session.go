package handlers

import (
	"net/http"

	"github.com/dimitrije/starter-api/internal/middleware"
	"github.com/dimitrije/starter-api/pkg/session"
	"github.com/m1z23r/drift/pkg/drift"
	"go.uber.org/zap"
)

// SessionHandler reports the merged session state of the caller. Requests
// without a valid access token are signed out rather than rejected.
type SessionHandler struct {
	jwt      middleware.AccessTokenValidator
	sessions SessionServiceInterface
	log      *zap.Logger
}

func NewSessionHandler(jwt middleware.AccessTokenValidator, sessions SessionServiceInterface, log *zap.Logger) *SessionHandler {
	return &SessionHandler{jwt: jwt, sessions: sessions, log: log}
}

func (h *SessionHandler) Get(c *drift.Context) {
	state := session.SignedOut()

	if token := middleware.RequestToken(c.Request); token != "" {
		if claims, err := h.jwt.ValidateAccessToken(token); err == nil {
			resolved, err := h.sessions.Resolve(c.Request.Context(), claims.SubjectID)
			if err != nil {
				h.log.Warn("session resolve failed", zap.String("subject", claims.SubjectID), zap.Error(err))
			}
			state = resolved
		}
	}

	_ = c.JSON(http.StatusOK, state)
}
