package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ProfileUpdate carries the profile fields the identity provider owns.
// Nil fields are left unchanged.
type ProfileUpdate struct {
	Email   *string
	Name    *string
	Picture *string
}

func (p ProfileUpdate) Empty() bool {
	return p.Email == nil && p.Name == nil && p.Picture == nil
}

// IdentityProvider is the client side of the identity service.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (*Identity, error)
	Login(ctx context.Context, email, password string) (*Identity, error)
	PopupAuthorize(ctx context.Context, provider ProviderTag) (*Identity, error)
	Logout(ctx context.Context) error
	ChangePassword(ctx context.Context, password string) error
	UpdateEmail(ctx context.Context, email string) error
	UpdateProfile(ctx context.Context, update ProfileUpdate) error
	RequestPasswordReset(ctx context.Context, email string) error
	CurrentUser(ctx context.Context) (*Identity, error)
	// OnChange registers fn for identity transitions. A nil identity means
	// signed out.
	OnChange(fn func(*Identity)) (unregister func())
}

// TokenExchanger trades the current identity for a store credential.
type TokenExchanger interface {
	ExchangeToken(ctx context.Context) (string, error)
}

// Store is the client side of the data store.
type Store interface {
	// Activate signs in with credential and returns once the store has
	// confirmed it.
	Activate(ctx context.Context, credential string) error
	// AwaitReady confirms an active credential for subjectID, or returns
	// ErrNoCredential.
	AwaitReady(ctx context.Context, subjectID string) error
	SignOut()
	QueryRecord(ctx context.Context, subjectID string) RecordResult
	CreateRecord(ctx context.Context, subjectID string, fields map[string]any) error
	UpdateRecord(ctx context.Context, subjectID string, fields map[string]any) error
}

// RecordWatcher is implemented by stores that push record changes.
type RecordWatcher interface {
	Watch(ctx context.Context, subjectID string, fn func(RecordResult)) (stop func(), err error)
}

// Composer keeps the merged session state for one application instance.
type Composer struct {
	idp       IdentityProvider
	exchanger TokenExchanger
	store     Store
	plans     PlanCatalog
	log       *zap.Logger
	cell      *Cell

	// pubMu orders recomputation with delivery so subscribers observe
	// states in the order they were computed.
	pubMu sync.Mutex

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	unregister func()
	stopWatch  func()
	known      bool
	signingIn  int
	identity   *Identity
	record     RecordResult
	memo       memo
}

func NewComposer(idp IdentityProvider, exchanger TokenExchanger, store Store, plans PlanCatalog, log *zap.Logger) *Composer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Composer{
		idp:       idp,
		exchanger: exchanger,
		store:     store,
		plans:     plans,
		log:       log,
		cell:      NewCell(),
	}
}

// Start installs the single identity subscription. ctx bounds the work
// done in response to identity notifications.
func (c *Composer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.unregister != nil {
		c.mu.Unlock()
		return errors.New("session: composer already started")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	unregister := c.idp.OnChange(c.onChange)

	c.mu.Lock()
	c.unregister = unregister
	c.mu.Unlock()
	return nil
}

// Close removes the identity subscription and stops record watching.
func (c *Composer) Close() {
	c.mu.Lock()
	unregister, stop, cancel := c.unregister, c.stopWatch, c.cancel
	c.unregister, c.stopWatch = nil, nil
	c.mu.Unlock()

	if unregister != nil {
		unregister()
	}
	if stop != nil {
		stop()
	}
	if cancel != nil {
		cancel()
	}
}

func (c *Composer) State() State {
	return c.cell.Get()
}

// Subscribe registers fn for every published state. fn runs on the
// publishing goroutine and must not call back into the Composer.
func (c *Composer) Subscribe(fn func(State)) func() {
	return c.cell.Subscribe(fn)
}

func (c *Composer) SignUp(ctx context.Context, email, password string) error {
	return c.signIn(ctx, "sign up", func() (*Identity, error) {
		return c.idp.SignUp(ctx, email, password)
	})
}

func (c *Composer) SignIn(ctx context.Context, email, password string) error {
	return c.signIn(ctx, "sign in", func() (*Identity, error) {
		return c.idp.Login(ctx, email, password)
	})
}

func (c *Composer) SignInWithProvider(ctx context.Context, provider ProviderTag) error {
	if !provider.Social() {
		return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf("%s is not a social provider", provider)}
	}
	return c.signIn(ctx, "sign in with "+provider.String(), func() (*Identity, error) {
		return c.idp.PopupAuthorize(ctx, provider)
	})
}

// signIn authenticates and then runs the sign-in sequence. Identity
// notifications for a signed-in user that arrive meanwhile are ignored;
// the sequence publishes the identity itself once the record exists.
func (c *Composer) signIn(ctx context.Context, op string, authenticate func() (*Identity, error)) error {
	c.mu.Lock()
	c.signingIn++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.signingIn--
		c.mu.Unlock()
	}()

	id, err := authenticate()
	if err != nil {
		return c.fail(op, err, CodeUpstream)
	}
	return c.handleAuth(ctx, id)
}

// SignOut always leaves the state SignedOut, even when the provider
// call fails.
func (c *Composer) SignOut(ctx context.Context) error {
	err := c.idp.Logout(ctx)
	c.store.SignOut()
	c.publish(ctx, nil)
	if err != nil {
		return c.fail("sign out", err, CodeUpstream)
	}
	return nil
}

func (c *Composer) SendPasswordReset(ctx context.Context, email string) error {
	if err := c.idp.RequestPasswordReset(ctx, email); err != nil {
		return c.fail("send password reset", err, CodeUpstream)
	}
	return nil
}

// ConfirmPasswordReset is not supported: resets are completed on the
// identity provider's hosted page.
func (c *Composer) ConfirmPasswordReset(ctx context.Context, code, password string) error {
	return &Error{
		Code:    CodeUnsupported,
		Message: "password reset is completed through the link sent by email",
	}
}

func (c *Composer) UpdateEmail(ctx context.Context, email string) error {
	if err := c.idp.UpdateEmail(ctx, email); err != nil {
		return c.fail("update email", err, CodeUpstream)
	}
	return c.refreshIdentity(ctx)
}

func (c *Composer) UpdatePassword(ctx context.Context, password string) error {
	if err := c.idp.ChangePassword(ctx, password); err != nil {
		return c.fail("update password", err, CodeUpstream)
	}
	return nil
}

// UpdateProfile writes email, name and picture to the identity provider,
// then the whole of data to the store, then re-reads the identity. A store
// failure after a successful identity write is returned as is; the identity
// write is not undone.
func (c *Composer) UpdateProfile(ctx context.Context, data map[string]any) error {
	c.mu.Lock()
	id := c.identity
	c.mu.Unlock()
	if id == nil {
		return &Error{Code: CodeUnauthenticated, Message: "not signed in"}
	}

	update, err := partitionProfile(data)
	if err != nil {
		return err
	}

	if !update.Empty() {
		if err := c.idp.UpdateProfile(ctx, update); err != nil {
			return c.fail("update identity profile", err, CodeUpstream)
		}
	}

	if err := c.store.UpdateRecord(ctx, id.SubjectID, data); err != nil {
		return c.fail("update record", err, CodeUpstream)
	}

	return c.refreshIdentity(ctx)
}

func partitionProfile(data map[string]any) (ProfileUpdate, error) {
	var update ProfileUpdate
	for key, dst := range map[string]**string{
		"email":   &update.Email,
		"name":    &update.Name,
		"picture": &update.Picture,
	} {
		v, ok := data[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return ProfileUpdate{}, &Error{Code: CodeInvalidArgument, Message: key + " must be a string"}
		}
		*dst = &s
	}
	return update, nil
}

// handleAuth runs the post sign-in sequence: exchange the identity for a
// store credential, wait for the store to accept it, create the record if
// absent, publish.
func (c *Composer) handleAuth(ctx context.Context, id *Identity) error {
	credential, err := c.exchanger.ExchangeToken(ctx)
	if err != nil {
		return c.fail("exchange token", err, CodeTokenExchange)
	}

	if err := c.store.Activate(ctx, credential); err != nil {
		return c.fail("activate store credential", err, CodeStoreUnavailable)
	}

	if err := c.store.CreateRecord(ctx, id.SubjectID, map[string]any{"email": id.Email}); err != nil {
		return c.fail("create record", err, CodeUpstream)
	}

	c.publish(ctx, id)
	return nil
}

func (c *Composer) onChange(id *Identity) {
	c.mu.Lock()
	ctx := c.ctx
	signingIn := c.signingIn > 0
	c.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if id != nil && signingIn {
		c.log.Debug("identity change during sign-in", zap.String("subject_id", id.SubjectID))
		return
	}

	if id == nil {
		c.store.SignOut()
		c.publish(ctx, nil)
		return
	}

	if err := c.awaitStore(ctx, id); err != nil {
		c.log.Warn("store not ready after identity change",
			zap.String("subject_id", id.SubjectID), zap.Error(err))
	}
	c.publish(ctx, id)
}

// awaitStore confirms the store credential for id. A restored session has
// no credential yet, in which case a fresh one is exchanged.
func (c *Composer) awaitStore(ctx context.Context, id *Identity) error {
	err := c.store.AwaitReady(ctx, id.SubjectID)
	if !errors.Is(err, ErrNoCredential) {
		return err
	}
	credential, err := c.exchanger.ExchangeToken(ctx)
	if err != nil {
		return err
	}
	return c.store.Activate(ctx, credential)
}

func (c *Composer) refreshIdentity(ctx context.Context) error {
	id, err := c.idp.CurrentUser(ctx)
	if err != nil {
		return c.fail("refresh identity", err, CodeUpstream)
	}
	c.publish(ctx, id)
	return nil
}

// publish sets the identity, recomputes the state and refetches the
// record for a signed-in identity.
func (c *Composer) publish(ctx context.Context, id *Identity) {
	c.mu.Lock()
	sameSubject := id != nil && c.identity != nil && c.identity.SubjectID == id.SubjectID
	c.known = true
	c.identity = id
	var stop func()
	switch {
	case id == nil:
		c.record = RecordResult{Status: StatusIdle}
	case !sameSubject:
		c.record = RecordResult{Status: StatusLoading}
	}
	// the record and its watch belong to the subject, not to one
	// identity snapshot
	if !sameSubject {
		stop = c.stopWatch
		c.stopWatch = nil
	}
	watching := c.stopWatch != nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.recompute()

	if id == nil {
		return
	}

	res := c.store.QueryRecord(ctx, id.SubjectID)
	if res.Status == StatusError {
		c.log.Error("query user record", zap.String("subject_id", id.SubjectID), zap.Error(res.Err))
	}
	c.setRecord(id.SubjectID, res)
	if !watching {
		c.watch(id.SubjectID)
	}
}

func (c *Composer) watch(subjectID string) {
	w, ok := c.store.(RecordWatcher)
	if !ok {
		return
	}

	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx == nil {
		return
	}

	stop, err := w.Watch(ctx, subjectID, func(res RecordResult) {
		c.setRecord(subjectID, res)
	})
	if err != nil {
		c.log.Warn("watch user record", zap.String("subject_id", subjectID), zap.Error(err))
		return
	}

	c.mu.Lock()
	if c.identity == nil || c.identity.SubjectID != subjectID || c.stopWatch != nil {
		c.mu.Unlock()
		stop()
		return
	}
	c.stopWatch = stop
	c.mu.Unlock()
}

// setRecord drops results for a subject that is no longer current.
func (c *Composer) setRecord(subjectID string, res RecordResult) {
	c.mu.Lock()
	if c.identity == nil || c.identity.SubjectID != subjectID {
		c.mu.Unlock()
		return
	}
	c.record = res
	c.mu.Unlock()
	c.recompute()
}

func (c *Composer) recompute() {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	if !c.known {
		c.mu.Unlock()
		return
	}
	state, changed := c.memo.merge(c.identity, c.record, c.plans)
	c.mu.Unlock()

	if changed {
		c.cell.set(state)
	}
}

func (c *Composer) fail(op string, err error, code string) error {
	se := Wrap(err, code, op+" failed")
	c.log.Error(op, zap.String("code", se.Code), zap.Error(err))
	return se
}
