package middleware

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"

	"github.com/dimitrije/starter-api/pkg/session"
	"github.com/m1z23r/drift/pkg/drift"
	"go.uber.org/zap"
)

const SessionUserKey = "session_user"

type SessionResolver interface {
	Resolve(ctx context.Context, subjectID string) (session.State, error)
}

// GuardPage protects a server-rendered page. The request's session is
// composed server-side and fed through a session.Guard: a signed-out
// visitor is redirected to the sign-in page, a session whose record is not
// available yet gets a self-refreshing placeholder, and a ready session
// reaches the page with its user in the context.
func GuardPage(jwtService AccessTokenValidator, sessions SessionResolver, signInPath string, log *zap.Logger) drift.HandlerFunc {
	return func(c *drift.Context) {
		state := session.SignedOut()

		if token := RequestToken(c.Request); token != "" {
			if claims, err := jwtService.ValidateAccessToken(token); err == nil {
				resolved, err := sessions.Resolve(c.Request.Context(), claims.SubjectID)
				if err != nil {
					log.Warn("session resolve failed", zap.String("subject", claims.SubjectID), zap.Error(err))
				}
				state = resolved
			}
		}

		guard := session.NewGuard(signInPath)
		switch guard.Observe(state) {
		case session.Redirect:
			target := guard.SignInPath + "?next=" + url.QueryEscape(c.Request.URL.RequestURI())
			c.Response.Header().Set("Location", target)
			c.Response.WriteHeader(http.StatusFound)
			c.Abort()
		case session.ShowLoading:
			_ = c.HTML(http.StatusOK, loadingPage(c.Request.URL.RequestURI()))
			c.Abort()
		case session.Render:
			user, _ := state.User()
			c.Set(SessionUserKey, user)
			c.Next()
		}
	}
}

func GetSessionUser(c *drift.Context) *session.User {
	if v, ok := c.Get(SessionUserKey); ok {
		if u, ok := v.(*session.User); ok {
			return u
		}
	}
	return nil
}

func loadingPage(path string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta http-equiv="refresh" content="1;url=%s">
    <title>Loading</title>
    <style>
        body { font-family: system-ui, -apple-system, sans-serif; background: #f9fafb; color: #6b7280; display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0; }
    </style>
</head>
<body>
    <p>Loading your account&hellip;</p>
</body>
</html>`, html.EscapeString(path))
}
