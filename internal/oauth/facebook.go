package oauth

import (
	"context"
	"fmt"

	"github.com/dimitrije/starter-api/internal/config"
	"github.com/dimitrije/starter-api/pkg/session"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

type FacebookProvider struct {
	config *oauth2.Config
	meURL  string
}

func NewFacebookProvider(cfg config.OAuthConfig) *FacebookProvider {
	return &FacebookProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"email", "public_profile"},
			Endpoint:     facebook.Endpoint,
		},
		meURL: "https://graph.facebook.com/v19.0/me?fields=id,name,email,picture.type(large)",
	}
}

func (p *FacebookProvider) Name() session.ProviderTag {
	return session.ProviderFacebook
}

func (p *FacebookProvider) GetConsentURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *FacebookProvider) ExchangeCode(ctx context.Context, code, _ string) (*UserInfo, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	var fbUser struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := getJSON(p.config.Client(ctx, token), p.Name(), p.meURL, &fbUser); err != nil {
		return nil, err
	}

	// Graph only returns confirmed emails.
	return &UserInfo{
		ID:            fbUser.ID,
		Email:         fbUser.Email,
		EmailVerified: fbUser.Email != "",
		Name:          fbUser.Name,
		AvatarURL:     fbUser.Picture.Data.URL,
		Provider:      session.ProviderFacebook,
	}, nil
}
