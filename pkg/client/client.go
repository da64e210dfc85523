// Package client talks to the starter API: IdentityClient for accounts and
// tokens, StoreClient for the per-user data store. Both satisfy the
// interfaces session.Composer consumes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dimitrije/starter-api/pkg/dto"
	"github.com/dimitrije/starter-api/pkg/session"
	"go.uber.org/zap"
)

const (
	authPrefix  = "/api/v1/auth"
	storePrefix = "/api/v1/store"
)

// Config configures both clients. Only BaseURL is required.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger

	// Tokens persists the identity token pair. Defaults to memory.
	Tokens TokenStore
	// Popup completes a social sign-in. It is handed the provider consent
	// URL and returns the one-time code shown on the callback page.
	Popup PopupFunc
}

// DefaultConfig returns a Config with a 30 second request timeout.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Tokens == nil {
		c.Tokens = &MemoryTokenStore{}
	}
	return c
}

// transport is the JSON request plumbing shared by both clients.
type transport struct {
	baseURL string
	http    *http.Client
}

// newRequest builds a request for path. A nil body sends no body.
func (t *transport) newRequest(ctx context.Context, method, path, token string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends the request and decodes a 2xx response into out. Other
// responses become a *session.Error.
func (t *transport) do(ctx context.Context, method, path, token string, body, out any) error {
	req, err := t.newRequest(ctx, method, path, token, body)
	if err != nil {
		return err
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return &session.Error{Code: session.CodeUpstream, Message: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &session.Error{Code: session.CodeUpstream, Message: "decode response", Err: err}
	}
	return nil
}

// errorBody covers both the error envelope and the token exchange
// envelope.
type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func responseError(resp *http.Response) *session.Error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body errorBody
	_ = json.Unmarshal(data, &body)

	msg := body.Error
	if msg == "" {
		msg = body.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	code := body.Code
	if code == "" {
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			code = session.CodeUnauthenticated
		case http.StatusBadRequest, http.StatusConflict:
			code = session.CodeInvalidArgument
		default:
			code = session.CodeUpstream
		}
	}

	return &session.Error{Code: code, Message: msg, Err: &StatusError{StatusCode: resp.StatusCode}}
}

// StatusError carries the HTTP status behind a failed call.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

func statusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func identityOf(r dto.IdentityResponse) *session.Identity {
	return &session.Identity{
		SubjectID:     r.SubjectID,
		Email:         r.Email,
		EmailVerified: r.EmailVerified,
		Name:          r.Name,
		Picture:       r.Picture,
		Provider:      session.ProviderTag(r.Provider),
	}
}
