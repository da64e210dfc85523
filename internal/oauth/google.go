package oauth

import (
	"context"
	"fmt"

	"github.com/dimitrije/starter-api/internal/config"
	"github.com/dimitrije/starter-api/pkg/session"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewGoogleProvider(cfg config.OAuthConfig) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
	}
}

func (p *GoogleProvider) Name() session.ProviderTag {
	return session.ProviderGoogle
}

func (p *GoogleProvider) GetConsentURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code, _ string) (*UserInfo, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	var gUser struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := getJSON(p.config.Client(ctx, token), p.Name(), p.userInfoURL, &gUser); err != nil {
		return nil, err
	}

	return &UserInfo{
		ID:            gUser.ID,
		Email:         gUser.Email,
		EmailVerified: gUser.VerifiedEmail,
		Name:          gUser.Name,
		AvatarURL:     gUser.Picture,
		Provider:      session.ProviderGoogle,
	}, nil
}
