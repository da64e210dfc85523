package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dimitrije/starter-api/internal/config"
	"github.com/dimitrije/starter-api/internal/middleware"
	"github.com/dimitrije/starter-api/internal/models"
	"github.com/dimitrije/starter-api/internal/oauth"
	"github.com/dimitrije/starter-api/internal/services"
	"github.com/dimitrije/starter-api/pkg/dto"
	"github.com/dimitrije/starter-api/pkg/session"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"go.uber.org/zap"
)

const (
	stateTTL    = 10 * time.Minute
	authCodeTTL = 30 * time.Second
)

type AuthHandler struct {
	cfg       *config.Config
	providers map[session.ProviderTag]oauth.Provider
	accounts  AccountServiceInterface
	records   RecordServiceInterface
	tokens    TokenServiceInterface
	jwt       JWTServiceInterface
	email     EmailServiceInterface
	log       *zap.Logger
	states    sync.Map
	authCodes sync.Map
}

type stateData struct {
	provider  session.ProviderTag
	expiresAt time.Time
}

type authCodeData struct {
	userID    uuid.UUID
	expiresAt time.Time
}

func NewAuthHandler(
	cfg *config.Config,
	providers map[session.ProviderTag]oauth.Provider,
	accounts AccountServiceInterface,
	records RecordServiceInterface,
	tokens TokenServiceInterface,
	jwt JWTServiceInterface,
	email EmailServiceInterface,
	log *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		cfg:       cfg,
		providers: providers,
		accounts:  accounts,
		records:   records,
		tokens:    tokens,
		jwt:       jwt,
		email:     email,
		log:       log,
	}
}

// CleanupLoop drops expired OAuth states and one-time codes until ctx is
// cancelled.
func (h *AuthHandler) CleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.cleanup(now)
		}
	}
}

func (h *AuthHandler) cleanup(now time.Time) {
	h.states.Range(func(key, value any) bool {
		if sd, ok := value.(stateData); ok && now.After(sd.expiresAt) {
			h.states.Delete(key)
		}
		return true
	})
	h.authCodes.Range(func(key, value any) bool {
		if acd, ok := value.(authCodeData); ok && now.After(acd.expiresAt) {
			h.authCodes.Delete(key)
		}
		return true
	})
}

func respondError(c *drift.Context, status int, code, msg string) {
	_ = c.JSON(status, dto.ErrorResponse{Error: msg, Code: code})
}

// accountError maps account service errors to responses. It reports false
// when err is not one it knows.
func accountError(c *drift.Context, err error) bool {
	switch {
	case errors.Is(err, services.ErrInvalidEmail), errors.Is(err, services.ErrWeakPassword):
		respondError(c, http.StatusBadRequest, session.CodeInvalidArgument, err.Error())
	case errors.Is(err, services.ErrEmailTaken):
		respondError(c, http.StatusConflict, session.CodeInvalidArgument, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, session.CodeUnauthenticated, err.Error())
	case errors.Is(err, services.ErrSocialAccount):
		respondError(c, http.StatusBadRequest, session.CodeUnsupported, err.Error())
	case errors.Is(err, services.ErrNotFound):
		c.NotFound("account not found")
	default:
		return false
	}
	return true
}

func (h *AuthHandler) issueTokens(ctx context.Context, account *models.Account) (*dto.TokenResponse, error) {
	pair, err := h.jwt.GenerateTokenPair(account.ID, account.SubjectID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("generate tokens: %w", err)
	}

	expiresAt := time.Now().Add(h.jwt.RefreshExpiry())
	if err := h.tokens.StoreRefreshToken(ctx, account.ID, services.HashToken(pair.RefreshToken), expiresAt); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &dto.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// ensureRecord creates the user record on sign-in if it does not exist
// yet. Sign-in still succeeds when it fails; clients create it as well.
func (h *AuthHandler) ensureRecord(ctx context.Context, account *models.Account) {
	_, created, err := h.records.Create(ctx, account.SubjectID, map[string]any{"email": account.Email})
	if err != nil {
		h.log.Warn("create user record failed", zap.String("subject", account.SubjectID), zap.Error(err))
		return
	}
	if created {
		h.log.Info("user record created", zap.String("subject", account.SubjectID))
	}
}

func (h *AuthHandler) SignUp(c *drift.Context) {
	var req dto.SignUpRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	ctx := c.Request.Context()
	account, err := h.accounts.SignUp(ctx, req.Email, req.Password, req.Name)
	if err != nil {
		if !accountError(c, err) {
			h.log.Error("signup failed", zap.Error(err))
			c.InternalServerError("failed to create account")
		}
		return
	}
	h.ensureRecord(ctx, account)

	tokens, err := h.issueTokens(ctx, account)
	if err != nil {
		h.log.Error("issue tokens failed", zap.String("subject", account.SubjectID), zap.Error(err))
		c.InternalServerError("failed to generate tokens")
		return
	}

	_ = c.JSON(http.StatusCreated, dto.AuthResponse{Tokens: *tokens, User: identityResponse(account)})
}

func (h *AuthHandler) Login(c *drift.Context) {
	var req dto.LoginRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	ctx := c.Request.Context()
	account, err := h.accounts.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if !accountError(c, err) {
			h.log.Error("login failed", zap.Error(err))
			c.InternalServerError("failed to sign in")
		}
		return
	}
	h.ensureRecord(ctx, account)

	tokens, err := h.issueTokens(ctx, account)
	if err != nil {
		h.log.Error("issue tokens failed", zap.String("subject", account.SubjectID), zap.Error(err))
		c.InternalServerError("failed to generate tokens")
		return
	}

	_ = c.JSON(http.StatusOK, dto.AuthResponse{Tokens: *tokens, User: identityResponse(account)})
}

func (h *AuthHandler) provider(name string) (oauth.Provider, bool) {
	tag, err := session.ParseProvider(name)
	if err != nil || !tag.Social() {
		return nil, false
	}
	p, ok := h.providers[tag]
	return p, ok
}

func (h *AuthHandler) GetConsentURL(c *drift.Context) {
	name := c.Param("provider")

	p, ok := h.provider(name)
	if !ok {
		c.BadRequest("unsupported provider: " + name)
		return
	}

	state, err := oauth.GenerateState()
	if err != nil {
		c.InternalServerError("failed to generate state")
		return
	}

	h.states.Store(state, stateData{provider: p.Name(), expiresAt: time.Now().Add(stateTTL)})

	_ = c.JSON(http.StatusOK, dto.ConsentURLResponse{
		URL: p.GetConsentURL(state),
	})
}

func (h *AuthHandler) Callback(c *drift.Context) {
	p, ok := h.provider(c.Param("provider"))
	if !ok {
		h.redirectWithError(c, "unsupported provider")
		return
	}

	if providerErr := c.QueryParam("error"); providerErr != "" {
		h.redirectWithError(c, "sign-in was cancelled")
		return
	}

	state := c.QueryParam("state")
	if state == "" {
		h.redirectWithError(c, "missing state parameter")
		return
	}

	sd, ok := h.states.LoadAndDelete(state)
	if !ok {
		h.redirectWithError(c, "invalid or expired state")
		return
	}

	sdTyped, ok := sd.(stateData)
	if !ok || time.Now().After(sdTyped.expiresAt) || sdTyped.provider != p.Name() {
		h.redirectWithError(c, "state expired")
		return
	}

	code := c.QueryParam("code")
	if code == "" {
		h.redirectWithError(c, "missing authorization code")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	userInfo, err := p.ExchangeCode(ctx, code, state)
	if err != nil {
		h.log.Warn("oauth code exchange failed", zap.Stringer("provider", p.Name()), zap.Error(err))
		h.redirectWithError(c, "failed to exchange code")
		return
	}

	account, err := h.accounts.FindOrCreateFromOAuth(ctx, userInfo)
	if err != nil {
		h.log.Error("oauth account lookup failed", zap.Stringer("provider", p.Name()), zap.Error(err))
		h.redirectWithError(c, "failed to create account")
		return
	}
	h.ensureRecord(ctx, account)

	authCode, err := oauth.GenerateState()
	if err != nil {
		h.redirectWithError(c, "failed to generate auth code")
		return
	}

	h.authCodes.Store(authCode, authCodeData{
		userID:    account.ID,
		expiresAt: time.Now().Add(authCodeTTL),
	})

	redirectURL := fmt.Sprintf("%s?code=%s",
		h.cfg.FrontendCallbackURL,
		url.QueryEscape(authCode),
	)

	h.renderCallbackPage(c, redirectURL, authCode, "")
}

func (h *AuthHandler) ExchangeCode(c *drift.Context) {
	var req dto.ExchangeCodeRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	if req.Code == "" {
		c.BadRequest("code is required")
		return
	}

	acd, ok := h.authCodes.LoadAndDelete(req.Code)
	if !ok {
		c.Unauthorized("invalid or expired code")
		return
	}

	codeData, ok := acd.(authCodeData)
	if !ok || time.Now().After(codeData.expiresAt) {
		c.Unauthorized("code expired")
		return
	}

	ctx := c.Request.Context()

	account, err := h.accounts.GetByID(ctx, codeData.userID)
	if err != nil {
		c.Unauthorized("account not found")
		return
	}

	tokens, err := h.issueTokens(ctx, account)
	if err != nil {
		h.log.Error("issue tokens failed", zap.String("subject", account.SubjectID), zap.Error(err))
		c.InternalServerError("failed to generate tokens")
		return
	}

	_ = c.JSON(http.StatusOK, dto.AuthResponse{Tokens: *tokens, User: identityResponse(account)})
}

func (h *AuthHandler) RefreshToken(c *drift.Context) {
	var req dto.RefreshTokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	if req.RefreshToken == "" {
		c.BadRequest("refresh_token is required")
		return
	}

	userID, err := h.jwt.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		c.Unauthorized("invalid refresh token")
		return
	}

	ctx := c.Request.Context()

	account, err := h.accounts.GetByID(ctx, userID)
	if err != nil {
		c.Unauthorized("account not found")
		return
	}

	pair, err := h.jwt.GenerateTokenPair(account.ID, account.SubjectID, account.Email)
	if err != nil {
		c.InternalServerError("failed to generate tokens")
		return
	}

	expiresAt := time.Now().Add(h.jwt.RefreshExpiry())
	err = h.tokens.RotateRefreshToken(ctx, account.ID,
		services.HashToken(req.RefreshToken), services.HashToken(pair.RefreshToken), expiresAt)
	if errors.Is(err, services.ErrNotFound) {
		c.Unauthorized("refresh token not found or expired")
		return
	}
	if err != nil {
		h.log.Error("rotate refresh token failed", zap.Error(err))
		c.InternalServerError("failed to store refresh token")
		return
	}

	_ = c.JSON(http.StatusOK, dto.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

func (h *AuthHandler) Logout(c *drift.Context) {
	var req dto.RefreshTokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	if req.RefreshToken != "" {
		_ = h.tokens.RevokeRefreshToken(c.Request.Context(), services.HashToken(req.RefreshToken))
	}

	_ = c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) LogoutAll(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	if err := h.tokens.RevokeAllUserTokens(c.Request.Context(), userID); err != nil {
		c.InternalServerError("failed to revoke tokens")
		return
	}

	_ = c.JSON(http.StatusOK, map[string]string{"message": "all sessions logged out"})
}

func (h *AuthHandler) redirectWithError(c *drift.Context, errMsg string) {
	redirectURL := fmt.Sprintf("%s?error=%s",
		h.cfg.FrontendCallbackURL,
		url.QueryEscape(errMsg),
	)
	h.renderCallbackPage(c, redirectURL, errMsg, "error")
}

// frontendOrigin is the only origin the callback page hands the one-time
// code to. An unusable URL yields "" and the page falls back to a redirect.
func frontendOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func (h *AuthHandler) renderCallbackPage(c *drift.Context, redirectURL, code, status string) {
	title := "Signed in"
	heading := "You're signed in"
	subtitle := "Taking you back to the app..."
	headingColor := "#111827"
	statusCode := http.StatusOK
	codeSection := ""

	if status == "error" {
		title = "Sign-in failed"
		heading = "Sign-in failed"
		subtitle = html.EscapeString(code)
		headingColor = "#991b1b"
		statusCode = http.StatusBadRequest
	} else {
		codeSection = fmt.Sprintf(`
        <div class="divider"></div>
        <p class="fallback-hint">Signing in from the command line? Paste this code where it asks for one.</p>
        <div class="code-container">
            <code id="auth-code">%s</code>
            <button onclick="copyCode()" class="copy-btn" id="copy-btn">Copy</button>
        </div>`, html.EscapeString(code))
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>
        * { box-sizing: border-box; }
        body { font-family: system-ui, -apple-system, sans-serif; background: #f9fafb; color: #374151; margin: 0; padding: 40px 20px; min-height: 100vh; }
        .container { max-width: 400px; margin: 0 auto; background: #fff; border: 1px solid #e5e7eb; border-radius: 8px; padding: 40px 32px; text-align: center; }
        h1 { font-size: 20px; font-weight: 600; color: %s; margin: 0 0 8px 0; }
        .subtitle { color: #6b7280; font-size: 14px; margin: 0 0 4px 0; }
        .close-hint { color: #9ca3af; font-size: 13px; margin: 0; }
        .divider { border-top: 1px solid #e5e7eb; margin: 24px 0; }
        .fallback-hint { color: #6b7280; font-size: 13px; margin: 0 0 12px 0; }
        .code-container { display: flex; align-items: center; background: #f3f4f6; border: 1px solid #e5e7eb; border-radius: 6px; padding: 8px 12px; gap: 8px; }
        .code-container code { flex: 1; font-family: monospace; font-size: 13px; color: #111827; word-break: break-all; text-align: left; }
        .copy-btn { background: #374151; color: #fff; border: none; border-radius: 4px; padding: 6px 12px; font-size: 12px; font-weight: 500; cursor: pointer; white-space: nowrap; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p class="subtitle">%s</p>
        <p class="close-hint">You can close this window.</p>%s
    </div>
    <script>
        var target = %q;
        if (window.opener && target) {
            window.opener.postMessage({ redirect: %q }, target);
        } else {
            window.location.href = %q;
        }
        function copyCode() {
            var code = document.getElementById('auth-code').textContent;
            navigator.clipboard.writeText(code).then(function() {
                document.getElementById('copy-btn').textContent = 'Copied!';
                setTimeout(function() { document.getElementById('copy-btn').textContent = 'Copy'; }, 2000);
            });
        }
    </script>
</body>
</html>`, title, headingColor, heading, subtitle, codeSection, frontendOrigin(h.cfg.FrontendCallbackURL), redirectURL, redirectURL)

	_ = c.HTML(statusCode, page)
}
