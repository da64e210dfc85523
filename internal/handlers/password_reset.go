package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/dimitrije/starter-api/internal/services"
	"github.com/dimitrije/starter-api/pkg/dto"
	"github.com/dimitrije/starter-api/pkg/session"
	"github.com/m1z23r/drift/pkg/drift"
	"go.uber.org/zap"
)

// RequestPasswordReset emails a reset link to password accounts. The
// response is the same whether or not the email is known.
func (h *AuthHandler) RequestPasswordReset(c *drift.Context) {
	var req dto.PasswordResetRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	if req.Email == "" {
		respondError(c, http.StatusBadRequest, session.CodeInvalidArgument, "email is required")
		return
	}

	account, token, err := h.accounts.CreatePasswordReset(c.Request.Context(), req.Email)
	switch {
	case errors.Is(err, services.ErrNotFound):
	case err != nil:
		h.log.Error("create password reset failed", zap.Error(err))
	default:
		link := h.cfg.BaseURL + "/reset-password?token=" + url.QueryEscape(token)
		if err := h.email.SendPasswordReset(account.Email, account.Name, link); err != nil {
			h.log.Error("send password reset failed", zap.String("subject", account.SubjectID), zap.Error(err))
		}
	}

	_ = c.JSON(http.StatusOK, map[string]string{"message": "if the account exists, a reset link has been sent"})
}

// ConfirmPasswordReset is not offered through the API; reset links open
// the hosted reset page instead.
func (h *AuthHandler) ConfirmPasswordReset(c *drift.Context) {
	respondError(c, http.StatusBadRequest, session.CodeUnsupported,
		"password reset codes are confirmed on the hosted reset page")
}

// ResetPasswordPage renders the hosted form a reset link points to.
func (h *AuthHandler) ResetPasswordPage(c *drift.Context) {
	if c.QueryParam("token") == "" {
		_ = c.HTML(http.StatusBadRequest, resetPage("This reset link is incomplete."))
		return
	}
	_ = c.HTML(http.StatusOK, resetPage(""))
}

// ResetPassword redeems the token posted by the hosted reset page.
func (h *AuthHandler) ResetPassword(c *drift.Context) {
	var req dto.ConfirmPasswordResetRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	err := h.accounts.ResetPassword(c.Request.Context(), req.Code, req.Password)
	switch {
	case err == nil:
		_ = c.JSON(http.StatusOK, map[string]string{"message": "password updated"})
	case errors.Is(err, services.ErrNotFound):
		respondError(c, http.StatusBadRequest, session.CodeInvalidArgument, "reset link is invalid or has expired")
	case errors.Is(err, services.ErrWeakPassword):
		respondError(c, http.StatusBadRequest, session.CodeInvalidArgument, err.Error())
	default:
		h.log.Error("reset password failed", zap.Error(err))
		c.InternalServerError("failed to reset password")
	}
}

func resetPage(problem string) string {
	form := `
        <form id="reset-form">
            <input type="password" id="password" placeholder="New password" minlength="8" maxlength="72" required>
            <button type="submit">Set password</button>
        </form>
        <p id="result" class="hint"></p>`
	if problem != "" {
		form = `<p class="hint">` + problem + `</p>`
	}

	return `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Reset password</title>
    <style>
        body { font-family: system-ui, -apple-system, sans-serif; background: #f9fafb; color: #374151; margin: 0; padding: 40px 20px; }
        .container { max-width: 400px; margin: 0 auto; background: #fff; border: 1px solid #e5e7eb; border-radius: 8px; padding: 32px; }
        h1 { font-size: 20px; margin: 0 0 16px 0; color: #111827; }
        input { width: 100%; padding: 8px; margin-bottom: 12px; border: 1px solid #d1d5db; border-radius: 4px; box-sizing: border-box; }
        button { background: #374151; color: #fff; border: none; border-radius: 4px; padding: 8px 16px; cursor: pointer; }
        .hint { color: #6b7280; font-size: 14px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Choose a new password</h1>` + form + `
    </div>
    <script>
        var form = document.getElementById('reset-form');
        if (form) {
            form.addEventListener('submit', function(e) {
                e.preventDefault();
                var token = new URLSearchParams(window.location.search).get('token');
                fetch('/reset-password', {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify({ code: token, password: document.getElementById('password').value })
                }).then(function(r) { return r.json(); }).then(function(body) {
                    document.getElementById('result').textContent = body.message || body.error;
                });
            });
        }
    </script>
</body>
</html>`
}
