package middleware

import (
	"net/http"
	"strings"

	"github.com/dimitrije/starter-api/internal/services"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

const (
	UserIDKey      = "user_id"
	UserSubjectKey = "user_subject"
	UserEmailKey   = "user_email"

	// AccessTokenCookie lets server-rendered pages authenticate without
	// an Authorization header.
	AccessTokenCookie = "access_token"
)

type AccessTokenValidator interface {
	ValidateAccessToken(token string) (*services.Claims, error)
}

// bearerToken returns the Bearer token of the request. An empty token with
// an empty message means no credential was sent.
func bearerToken(r *http.Request, allowCookie bool) (token, problem string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if allowCookie {
			if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
				return cookie.Value, ""
			}
		}
		return "", ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", "invalid authorization header format"
	}
	return parts[1], ""
}

// RequestToken returns the access token sent in the Authorization header
// or the access token cookie, or "" when there is none.
func RequestToken(r *http.Request) string {
	token, _ := bearerToken(r, true)
	return token
}

func Auth(jwtService AccessTokenValidator) drift.HandlerFunc {
	return func(c *drift.Context) {
		token, problem := bearerToken(c.Request, true)
		if problem != "" {
			c.Unauthorized(problem)
			return
		}
		if token == "" {
			c.Unauthorized("missing authorization header")
			return
		}

		claims, err := jwtService.ValidateAccessToken(token)
		if err != nil {
			c.Unauthorized("invalid or expired token")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UserSubjectKey, claims.SubjectID)
		c.Set(UserEmailKey, claims.Email)

		c.Next()
	}
}

func GetUserID(c *drift.Context) uuid.UUID {
	if id, ok := c.Get(UserIDKey); ok {
		if uid, ok := id.(uuid.UUID); ok {
			return uid
		}
	}
	return uuid.Nil
}

func GetSubject(c *drift.Context) string {
	return getString(c, UserSubjectKey)
}

func GetUserEmail(c *drift.Context) string {
	return getString(c, UserEmailKey)
}

func getString(c *drift.Context, key string) string {
	if v, ok := c.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
