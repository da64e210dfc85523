package client

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/dimitrije/starter-api/pkg/dto"
	"github.com/dimitrije/starter-api/pkg/session"
	"go.uber.org/zap"
)

// StoreClient is the client side of the data store. It holds at most one
// store credential, scoped to one subject.
type StoreClient struct {
	t   transport
	log *zap.Logger

	mu         sync.Mutex
	credential string
	subject    string
}

func NewStoreClient(cfg Config) *StoreClient {
	cfg = cfg.withDefaults()
	return &StoreClient{
		t:   transport{baseURL: cfg.BaseURL, http: cfg.HTTPClient},
		log: cfg.Logger,
	}
}

func userPath(subjectID string) string {
	return storePrefix + "/users/" + url.PathEscape(subjectID)
}

func (s *StoreClient) active() (credential, subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential, s.subject
}

// Activate signs in with credential. It returns once the store accepted
// it; a rejected credential leaves the client signed out.
func (s *StoreClient) Activate(ctx context.Context, credential string) error {
	var ready dto.StoreReadyResponse
	if err := s.t.do(ctx, http.MethodGet, storePrefix+"/ready", credential, nil, &ready); err != nil {
		s.SignOut()
		return err
	}

	s.mu.Lock()
	s.credential = credential
	s.subject = ready.SubjectID
	s.mu.Unlock()
	return nil
}

// AwaitReady confirms the active credential still works for subjectID.
// It returns session.ErrNoCredential when there is none or it expired.
func (s *StoreClient) AwaitReady(ctx context.Context, subjectID string) error {
	credential, subject := s.active()
	if credential == "" || subject != subjectID {
		return session.ErrNoCredential
	}

	err := s.t.do(ctx, http.MethodGet, storePrefix+"/ready", credential, nil, nil)
	if statusOf(err) == http.StatusUnauthorized {
		s.SignOut()
		return session.ErrNoCredential
	}
	return err
}

func (s *StoreClient) SignOut() {
	s.mu.Lock()
	s.credential = ""
	s.subject = ""
	s.mu.Unlock()
}

// QueryRecord fetches the record. A record that does not exist yet is a
// success with nil Data.
func (s *StoreClient) QueryRecord(ctx context.Context, subjectID string) session.RecordResult {
	credential, _ := s.active()
	if credential == "" {
		return session.RecordResult{Status: session.StatusError, Err: session.ErrNoCredential}
	}

	var env dto.RecordEnvelope
	if err := s.t.do(ctx, http.MethodGet, userPath(subjectID), credential, nil, &env); err != nil {
		return session.RecordResult{Status: session.StatusError, Err: err}
	}
	return session.RecordResult{Status: session.StatusSuccess, Data: recordOf(env.Data)}
}

// CreateRecord inserts the record unless it already exists.
func (s *StoreClient) CreateRecord(ctx context.Context, subjectID string, fields map[string]any) error {
	return s.write(ctx, http.MethodPut, subjectID, fields)
}

// UpdateRecord merges fields into the existing record.
func (s *StoreClient) UpdateRecord(ctx context.Context, subjectID string, fields map[string]any) error {
	return s.write(ctx, http.MethodPatch, subjectID, fields)
}

func (s *StoreClient) write(ctx context.Context, method, subjectID string, fields map[string]any) error {
	credential, _ := s.active()
	if credential == "" {
		return &session.Error{Code: session.CodeUnauthenticated, Message: "no store credential", Err: session.ErrNoCredential}
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return s.t.do(ctx, method, userPath(subjectID), credential, fields, nil)
}

func recordOf(r *dto.RecordResponse) *session.Record {
	if r == nil {
		return nil
	}
	rec := &session.Record{SubjectID: r.SubjectID, Fields: r.Fields}
	if r.PriceID != nil {
		rec.PriceID = *r.PriceID
	}
	if r.SubscriptionStatus != nil {
		rec.SubscriptionStatus = *r.SubscriptionStatus
	}
	return rec
}
