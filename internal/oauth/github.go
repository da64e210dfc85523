package oauth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dimitrije/starter-api/internal/config"
	"github.com/dimitrije/starter-api/pkg/session"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

type GitHubProvider struct {
	config  *oauth2.Config
	apiBase string
}

func NewGitHubProvider(cfg config.OAuthConfig) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"user:email", "read:user"},
			Endpoint:     github.Endpoint,
		},
		apiBase: "https://api.github.com",
	}
}

func (p *GitHubProvider) Name() session.ProviderTag {
	return session.ProviderGitHub
}

func (p *GitHubProvider) GetConsentURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *GitHubProvider) ExchangeCode(ctx context.Context, code, _ string) (*UserInfo, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	client := p.config.Client(ctx, token)

	var ghUser struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(client, p.Name(), p.apiBase+"/user", &ghUser); err != nil {
		return nil, err
	}

	// The public profile email is not necessarily verified; the emails
	// endpoint says which one is.
	email, verified, err := p.getPrimaryEmail(client)
	if err != nil {
		return nil, err
	}

	name := ghUser.Name
	if name == "" {
		name = ghUser.Login
	}

	return &UserInfo{
		ID:            fmt.Sprintf("%d", ghUser.ID),
		Email:         email,
		EmailVerified: verified,
		Name:          name,
		AvatarURL:     ghUser.AvatarURL,
		Provider:      session.ProviderGitHub,
	}, nil
}

func (p *GitHubProvider) getPrimaryEmail(client *http.Client) (string, bool, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(client, p.Name(), p.apiBase+"/user/emails", &emails); err != nil {
		return "", false, fmt.Errorf("failed to get user emails: %w", err)
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, true, nil
		}
	}

	for _, e := range emails {
		if e.Verified {
			return e.Email, true, nil
		}
	}

	if len(emails) > 0 {
		return emails[0].Email, false, nil
	}

	return "", false, fmt.Errorf("no email found")
}
