package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dimitrije/starter-api/internal/config"
	"github.com/dimitrije/starter-api/pkg/session"
)

type UserInfo struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	AvatarURL     string
	Provider      session.ProviderTag
}

type Provider interface {
	GetConsentURL(state string) string
	// ExchangeCode receives the state the consent URL was issued for.
	ExchangeCode(ctx context.Context, code, state string) (*UserInfo, error)
	Name() session.ProviderTag
}

// NewProviders returns the providers that have a client id configured.
func NewProviders(cfg *config.Config) map[session.ProviderTag]Provider {
	providers := make(map[session.ProviderTag]Provider)
	if cfg.GitHub.ClientID != "" {
		providers[session.ProviderGitHub] = NewGitHubProvider(cfg.GitHub)
	}
	if cfg.Google.ClientID != "" {
		providers[session.ProviderGoogle] = NewGoogleProvider(cfg.Google)
	}
	if cfg.Facebook.ClientID != "" {
		providers[session.ProviderFacebook] = NewFacebookProvider(cfg.Facebook)
	}
	if cfg.Twitter.ClientID != "" {
		providers[session.ProviderTwitter] = NewTwitterProvider(cfg.Twitter)
	}
	return providers
}

func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// getJSON fetches url with the authorized client and decodes the body.
func getJSON(client *http.Client, provider session.ProviderTag, url string, out any) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to get user info: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s api returned status %d", provider, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode user info: %w", err)
	}
	return nil
}
