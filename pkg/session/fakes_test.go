package session

import (
	"context"
	"errors"
	"sync"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(name string) int {
	n := 0
	for _, c := range l.list() {
		if c == name {
			n++
		}
	}
	return n
}

type fakeIdentity struct {
	log       *callLog
	current   *Identity
	loginErr  error
	updateErr error
	logoutErr error
	lastWrite ProfileUpdate

	mu        sync.Mutex
	signedIn  *Identity
	listeners map[int]func(*Identity)
	next      int
}

func newFakeIdentity(log *callLog, id *Identity) *fakeIdentity {
	return &fakeIdentity{log: log, current: id, listeners: make(map[int]func(*Identity))}
}

func (f *fakeIdentity) SignUp(ctx context.Context, email, password string) (*Identity, error) {
	f.log.add("idp.signup")
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	f.setSignedIn(f.current)
	return f.current, nil
}

func (f *fakeIdentity) Login(ctx context.Context, email, password string) (*Identity, error) {
	f.log.add("idp.login")
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	f.setSignedIn(f.current)
	return f.current, nil
}

func (f *fakeIdentity) PopupAuthorize(ctx context.Context, provider ProviderTag) (*Identity, error) {
	f.log.add("idp.popup:" + provider.String())
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	f.setSignedIn(f.current)
	return f.current, nil
}

func (f *fakeIdentity) Logout(ctx context.Context) error {
	f.log.add("idp.logout")
	f.setSignedIn(nil)
	return f.logoutErr
}

// setSignedIn notifies listeners synchronously when the signed-in subject
// changes, before the sign-in call returns.
func (f *fakeIdentity) setSignedIn(id *Identity) {
	f.mu.Lock()
	prev := f.signedIn
	f.signedIn = id
	f.mu.Unlock()

	if (prev == nil) != (id == nil) || (prev != nil && id != nil && prev.SubjectID != id.SubjectID) {
		f.emit(id)
	}
}

func (f *fakeIdentity) ChangePassword(ctx context.Context, password string) error {
	f.log.add("idp.password")
	return nil
}

func (f *fakeIdentity) UpdateEmail(ctx context.Context, email string) error {
	f.log.add("idp.email")
	updated := *f.current
	updated.Email = email
	f.current = &updated
	return nil
}

func (f *fakeIdentity) UpdateProfile(ctx context.Context, update ProfileUpdate) error {
	f.log.add("idp.profile")
	if f.updateErr != nil {
		return f.updateErr
	}
	f.lastWrite = update
	updated := *f.current
	if update.Email != nil {
		updated.Email = *update.Email
	}
	if update.Name != nil {
		updated.Name = *update.Name
	}
	f.current = &updated
	return nil
}

func (f *fakeIdentity) RequestPasswordReset(ctx context.Context, email string) error {
	f.log.add("idp.reset")
	return nil
}

func (f *fakeIdentity) CurrentUser(ctx context.Context) (*Identity, error) {
	f.log.add("idp.current")
	return f.current, nil
}

func (f *fakeIdentity) OnChange(fn func(*Identity)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeIdentity) emit(id *Identity) {
	f.mu.Lock()
	fns := make([]func(*Identity), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}

func (f *fakeIdentity) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

type fakeExchanger struct {
	log *callLog
	err error
}

func (f *fakeExchanger) ExchangeToken(ctx context.Context) (string, error) {
	f.log.add("exchange")
	if f.err != nil {
		return "", f.err
	}
	return "store-credential", nil
}

type fakeStore struct {
	log *callLog

	mu         sync.Mutex
	credential string
	records    map[string]*Record
	skipCreate bool
	queryErr   error
	updateErr  error
}

func newFakeStore(log *callLog) *fakeStore {
	return &fakeStore{log: log, records: make(map[string]*Record)}
}

func (s *fakeStore) Activate(ctx context.Context, credential string) error {
	s.log.add("store.activate")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = credential
	return nil
}

func (s *fakeStore) AwaitReady(ctx context.Context, subjectID string) error {
	s.log.add("store.await")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credential == "" {
		return ErrNoCredential
	}
	return nil
}

func (s *fakeStore) SignOut() {
	s.log.add("store.signout")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = ""
}

func (s *fakeStore) QueryRecord(ctx context.Context, subjectID string) RecordResult {
	s.log.add("store.query")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return RecordResult{Status: StatusError, Err: s.queryErr}
	}
	rec, ok := s.records[subjectID]
	if !ok {
		return RecordResult{Status: StatusSuccess}
	}
	cp := *rec
	return RecordResult{Status: StatusSuccess, Data: &cp}
}

func (s *fakeStore) CreateRecord(ctx context.Context, subjectID string, fields map[string]any) error {
	s.log.add("store.create")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skipCreate {
		return nil
	}
	if _, ok := s.records[subjectID]; !ok {
		s.records[subjectID] = &Record{SubjectID: subjectID, Fields: fields}
	}
	return nil
}

func (s *fakeStore) UpdateRecord(ctx context.Context, subjectID string, fields map[string]any) error {
	s.log.add("store.update")
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[subjectID]
	if !ok {
		return errors.New("record not found")
	}
	merged := make(map[string]any, len(rec.Fields)+len(fields))
	for k, v := range rec.Fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	rec.Fields = merged
	return nil
}

type watchingStore struct {
	*fakeStore
	push    func(RecordResult)
	stopped int
}

func (s *watchingStore) Watch(ctx context.Context, subjectID string, fn func(RecordResult)) (func(), error) {
	s.push = fn
	return func() { s.stopped++ }, nil
}
