package oauth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dimitrije/starter-api/internal/config"
	"github.com/dimitrije/starter-api/pkg/session"
	"golang.org/x/oauth2"
)

var twitterEndpoint = oauth2.Endpoint{
	AuthURL:   "https://twitter.com/i/oauth2/authorize",
	TokenURL:  "https://api.twitter.com/2/oauth2/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

const verifierTTL = 10 * time.Minute

// TwitterProvider uses OAuth 2.0 with PKCE. The verifier for each consent
// URL is kept until the matching callback arrives.
type TwitterProvider struct {
	config    *oauth2.Config
	meURL     string
	verifiers sync.Map
}

type pendingVerifier struct {
	verifier  string
	expiresAt time.Time
}

func NewTwitterProvider(cfg config.OAuthConfig) *TwitterProvider {
	return &TwitterProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"users.read", "tweet.read"},
			Endpoint:     twitterEndpoint,
		},
		meURL: "https://api.twitter.com/2/users/me?user.fields=profile_image_url",
	}
}

func (p *TwitterProvider) Name() session.ProviderTag {
	return session.ProviderTwitter
}

func (p *TwitterProvider) GetConsentURL(state string) string {
	p.pruneVerifiers()

	verifier := oauth2.GenerateVerifier()
	p.verifiers.Store(state, pendingVerifier{verifier: verifier, expiresAt: time.Now().Add(verifierTTL)})
	return p.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

func (p *TwitterProvider) ExchangeCode(ctx context.Context, code, state string) (*UserInfo, error) {
	v, ok := p.verifiers.LoadAndDelete(state)
	if !ok {
		return nil, fmt.Errorf("no pending verifier for state")
	}
	pending, ok := v.(pendingVerifier)
	if !ok || time.Now().After(pending.expiresAt) {
		return nil, fmt.Errorf("verifier expired")
	}

	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(pending.verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	var me struct {
		Data struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			Username        string `json:"username"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"data"`
	}
	if err := getJSON(p.config.Client(ctx, token), p.Name(), p.meURL, &me); err != nil {
		return nil, err
	}

	name := me.Data.Name
	if name == "" {
		name = me.Data.Username
	}

	// Twitter does not share email addresses through this API.
	return &UserInfo{
		ID:        me.Data.ID,
		Name:      name,
		AvatarURL: me.Data.ProfileImageURL,
		Provider:  session.ProviderTwitter,
	}, nil
}

func (p *TwitterProvider) pruneVerifiers() {
	now := time.Now()
	p.verifiers.Range(func(key, value any) bool {
		if pv, ok := value.(pendingVerifier); ok && now.After(pv.expiresAt) {
			p.verifiers.Delete(key)
		}
		return true
	})
}
