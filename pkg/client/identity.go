package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dimitrije/starter-api/pkg/dto"
	"github.com/dimitrije/starter-api/pkg/session"
	"go.uber.org/zap"
)

// PopupFunc shows the provider consent page and returns the one-time code
// the callback page hands back.
type PopupFunc func(ctx context.Context, consentURL string) (code string, err error)

// refreshSkew renews access tokens slightly before they expire.
const refreshSkew = 30 * time.Second

// IdentityClient is the client side of the identity provider. Listeners
// registered with OnChange hear about every sign-in and sign-out,
// including a session restored by Load and one lost to a failed refresh.
type IdentityClient struct {
	t      transport
	tokens TokenStore
	popup  PopupFunc
	log    *zap.Logger
	now    func() time.Time

	// refreshMu serializes token refreshes so a rotated refresh token is
	// never sent twice.
	refreshMu sync.Mutex

	mu        sync.Mutex
	current   *session.Identity
	listeners map[int]func(*session.Identity)
	next      int
}

func NewIdentityClient(cfg Config) *IdentityClient {
	cfg = cfg.withDefaults()
	return &IdentityClient{
		t:         transport{baseURL: cfg.BaseURL, http: cfg.HTTPClient},
		tokens:    cfg.Tokens,
		popup:     cfg.Popup,
		log:       cfg.Logger,
		now:       time.Now,
		listeners: make(map[int]func(*session.Identity)),
	}
}

// OnChange registers fn. The returned function removes it; calling it
// again is a no-op.
func (c *IdentityClient) OnChange(fn func(*session.Identity)) func() {
	c.mu.Lock()
	id := c.next
	c.next++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// setCurrent stores id and notifies listeners when the signed-in subject
// changed.
func (c *IdentityClient) setCurrent(id *session.Identity) {
	c.mu.Lock()
	prev := c.current
	c.current = id
	changed := (prev == nil) != (id == nil) || (prev != nil && id != nil && prev.SubjectID != id.SubjectID)
	fns := make([]func(*session.Identity), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range fns {
		fn(id)
	}
}

// Identity returns the last known identity without a network call.
func (c *IdentityClient) Identity() *session.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Load restores a stored session and always notifies listeners once with
// the result, nil when nobody is signed in.
func (c *IdentityClient) Load(ctx context.Context) error {
	stored, err := c.tokens.Load()
	if err != nil {
		return err
	}

	var id *session.Identity
	if stored != nil {
		id, err = c.CurrentUser(ctx)
		if err != nil && session.CodeOf(err) != session.CodeUnauthenticated {
			return err
		}
	}

	c.mu.Lock()
	c.current = id
	fns := make([]func(*session.Identity), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
	return nil
}

func (c *IdentityClient) saveTokens(t dto.TokenResponse) error {
	return c.tokens.Save(&Tokens{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    c.now().Add(time.Duration(t.ExpiresIn) * time.Second),
	})
}

func (c *IdentityClient) signedIn(resp dto.AuthResponse) (*session.Identity, error) {
	if err := c.saveTokens(resp.Tokens); err != nil {
		return nil, err
	}
	id := identityOf(resp.User)
	c.setCurrent(id)
	return id, nil
}

func (c *IdentityClient) SignUp(ctx context.Context, email, password string) (*session.Identity, error) {
	var resp dto.AuthResponse
	if err := c.t.do(ctx, http.MethodPost, authPrefix+"/signup", "",
		dto.SignUpRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	return c.signedIn(resp)
}

func (c *IdentityClient) Login(ctx context.Context, email, password string) (*session.Identity, error) {
	var resp dto.AuthResponse
	if err := c.t.do(ctx, http.MethodPost, authPrefix+"/login", "",
		dto.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	return c.signedIn(resp)
}

// PopupAuthorize runs the social sign-in: fetch the consent URL, let the
// popup collect the one-time code, trade the code for tokens.
func (c *IdentityClient) PopupAuthorize(ctx context.Context, provider session.ProviderTag) (*session.Identity, error) {
	if c.popup == nil {
		return nil, &session.Error{Code: session.CodeUnsupported, Message: "no popup handler configured"}
	}

	var consent dto.ConsentURLResponse
	if err := c.t.do(ctx, http.MethodGet, authPrefix+"/"+provider.String()+"/consent", "", nil, &consent); err != nil {
		return nil, err
	}

	code, err := c.popup(ctx, consent.URL)
	if err != nil {
		return nil, &session.Error{Code: session.CodeUpstream, Message: "popup closed", Err: err}
	}

	var resp dto.AuthResponse
	if err := c.t.do(ctx, http.MethodPost, authPrefix+"/exchange", "",
		dto.ExchangeCodeRequest{Code: code}, &resp); err != nil {
		return nil, err
	}
	return c.signedIn(resp)
}

// Logout revokes the refresh token. Local tokens are dropped and
// listeners told even when the server call fails.
func (c *IdentityClient) Logout(ctx context.Context) error {
	stored, err := c.tokens.Load()
	if err != nil {
		c.log.Warn("load tokens for logout", zap.Error(err))
	}

	var callErr error
	if stored != nil && stored.RefreshToken != "" {
		callErr = c.t.do(ctx, http.MethodPost, authPrefix+"/logout", "",
			dto.RefreshTokenRequest{RefreshToken: stored.RefreshToken}, nil)
	}

	if err := c.tokens.Clear(); err != nil {
		c.log.Warn("clear tokens", zap.Error(err))
	}
	c.setCurrent(nil)
	return callErr
}

func (c *IdentityClient) ChangePassword(ctx context.Context, password string) error {
	return c.authorized(ctx, http.MethodPost, authPrefix+"/password", dto.ChangePasswordRequest{Password: password}, nil)
}

func (c *IdentityClient) UpdateEmail(ctx context.Context, email string) error {
	return c.authorized(ctx, http.MethodPost, authPrefix+"/email", dto.UpdateEmailRequest{Email: email}, nil)
}

func (c *IdentityClient) UpdateProfile(ctx context.Context, update session.ProfileUpdate) error {
	return c.authorized(ctx, http.MethodPatch, authPrefix+"/profile", dto.UpdateProfileRequest{
		Email:   update.Email,
		Name:    update.Name,
		Picture: update.Picture,
	}, nil)
}

func (c *IdentityClient) RequestPasswordReset(ctx context.Context, email string) error {
	return c.t.do(ctx, http.MethodPost, authPrefix+"/password-reset", "", dto.PasswordResetRequest{Email: email}, nil)
}

// CurrentUser reads the identity from the server. It does not notify
// listeners unless the read shows the session is gone.
func (c *IdentityClient) CurrentUser(ctx context.Context) (*session.Identity, error) {
	var resp dto.IdentityResponse
	if err := c.authorized(ctx, http.MethodGet, authPrefix+"/me", nil, &resp); err != nil {
		return nil, err
	}
	id := identityOf(resp)
	c.mu.Lock()
	if c.current != nil && c.current.SubjectID == id.SubjectID {
		c.current = id
	}
	c.mu.Unlock()
	return id, nil
}

// ExchangeToken trades the identity access token for a store credential.
func (c *IdentityClient) ExchangeToken(ctx context.Context) (string, error) {
	var resp dto.StoreTokenResponse
	err := c.authorized(ctx, http.MethodPost, authPrefix+"/store-token", nil, &resp)
	if err != nil {
		msg := "could not issue store token"
		var se *session.Error
		if errors.As(err, &se) {
			msg = se.Message
		}
		return "", &session.Error{Code: session.CodeTokenExchange, Message: msg, Err: err}
	}
	if resp.Status != dto.StatusSuccess || resp.Data == "" {
		return "", &session.Error{Code: session.CodeTokenExchange, Message: resp.Message}
	}
	return resp.Data, nil
}

// accessToken returns a usable access token, refreshing it first when it
// is about to expire.
func (c *IdentityClient) accessToken(ctx context.Context) (string, error) {
	stored, err := c.tokens.Load()
	if err != nil {
		return "", err
	}
	if stored == nil {
		return "", &session.Error{Code: session.CodeUnauthenticated, Message: "not signed in"}
	}
	if stored.expired(c.now(), refreshSkew) {
		return c.refresh(ctx, stored.AccessToken)
	}
	return stored.AccessToken, nil
}

// refresh rotates the token pair unless another caller already replaced
// stale. A rejected refresh token signs the client out.
func (c *IdentityClient) refresh(ctx context.Context, stale string) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	stored, err := c.tokens.Load()
	if err != nil {
		return "", err
	}
	if stored == nil || stored.RefreshToken == "" {
		return "", &session.Error{Code: session.CodeUnauthenticated, Message: "not signed in"}
	}
	if stored.AccessToken != stale && !stored.expired(c.now(), refreshSkew) {
		return stored.AccessToken, nil
	}

	var resp dto.TokenResponse
	err = c.t.do(ctx, http.MethodPost, authPrefix+"/refresh", "",
		dto.RefreshTokenRequest{RefreshToken: stored.RefreshToken}, &resp)
	if statusOf(err) == http.StatusUnauthorized {
		c.log.Info("refresh token rejected, signing out")
		if clearErr := c.tokens.Clear(); clearErr != nil {
			c.log.Warn("clear tokens", zap.Error(clearErr))
		}
		c.setCurrent(nil)
		return "", err
	}
	if err != nil {
		return "", err
	}

	if err := c.saveTokens(resp); err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// authorized sends an access-token request, retrying once after a refresh
// when the server rejects the token.
func (c *IdentityClient) authorized(ctx context.Context, method, path string, body, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	err = c.t.do(ctx, method, path, token, body, out)
	if statusOf(err) != http.StatusUnauthorized {
		return err
	}

	token, err = c.refresh(ctx, token)
	if err != nil {
		return err
	}
	return c.t.do(ctx, method, path, token, body, out)
}
