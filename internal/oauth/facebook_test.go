package oauth

import (
	"context"
	"testing"

	"github.com/dimitrije/starter-api/internal/config"
	"github.com/dimitrije/starter-api/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacebookProvider_GetConsentURL(t *testing.T) {
	p := NewFacebookProvider(config.OAuthConfig{ClientID: "fb-client"})

	url := p.GetConsentURL("fb-state")

	assert.Equal(t, session.ProviderFacebook, p.Name())
	assert.Contains(t, url, "facebook.com")
	assert.Contains(t, url, "client_id=fb-client")
	assert.Contains(t, url, "scope=email+public_profile")
}

func TestFacebookProvider_ExchangeCode(t *testing.T) {
	srv := newProviderServer(t, map[string]any{
		"/me": map[string]any{
			"id":    "555",
			"name":  "Grace",
			"email": "grace@example.com",
			"picture": map[string]any{
				"data": map[string]any{"url": "https://fb.example/555.jpg"},
			},
		},
	})

	p := NewFacebookProvider(config.OAuthConfig{ClientID: "id"})
	p.config.Endpoint = testEndpoint(srv)
	p.meURL = srv.URL + "/me"

	info, err := p.ExchangeCode(context.Background(), "code", "")
	require.NoError(t, err)

	assert.Equal(t, &UserInfo{
		ID:            "555",
		Email:         "grace@example.com",
		EmailVerified: true,
		Name:          "Grace",
		AvatarURL:     "https://fb.example/555.jpg",
		Provider:      session.ProviderFacebook,
	}, info)
}

func TestFacebookProvider_ExchangeCode_NoEmail(t *testing.T) {
	srv := newProviderServer(t, map[string]any{
		"/me": map[string]any{"id": "556", "name": "Phone Only"},
	})

	p := NewFacebookProvider(config.OAuthConfig{ClientID: "id"})
	p.config.Endpoint = testEndpoint(srv)
	p.meURL = srv.URL + "/me"

	info, err := p.ExchangeCode(context.Background(), "code", "")
	require.NoError(t, err)
	assert.Empty(t, info.Email)
	assert.False(t, info.EmailVerified)
}
