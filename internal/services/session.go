package services

import (
	"context"
	"errors"

	"github.com/dimitrije/starter-api/internal/models"
	"github.com/dimitrije/starter-api/pkg/session"
)

// SessionService composes the session state for a subject on the server,
// using the same merge as the client SDK.
type SessionService struct {
	accounts *AccountService
	records  *RecordService
	plans    session.PlanCatalog
}

func NewSessionService(accounts *AccountService, records *RecordService, plans session.PlanCatalog) *SessionService {
	return &SessionService{accounts: accounts, records: records, plans: plans}
}

// Resolve returns SignedOut when the subject has no account. A record that
// is missing or failed to load leaves the state Loading; the load error is
// returned alongside so the caller can log it.
func (s *SessionService) Resolve(ctx context.Context, subjectID string) (session.State, error) {
	if subjectID == "" {
		return session.SignedOut(), nil
	}

	account, err := s.accounts.GetBySubject(ctx, subjectID)
	if errors.Is(err, ErrNotFound) {
		return session.SignedOut(), nil
	}
	if err != nil {
		return session.Loading(), err
	}
	identity := IdentityOf(account)

	var res session.RecordResult
	record, err := s.records.Get(ctx, subjectID)
	switch {
	case errors.Is(err, ErrNotFound):
		res = session.RecordResult{Status: session.StatusSuccess}
		err = nil
	case err != nil:
		res = session.RecordResult{Status: session.StatusError, Err: err}
	default:
		res = session.RecordResult{Status: session.StatusSuccess, Data: RecordOf(record)}
	}

	return session.Merge(&identity, res, s.plans), err
}

func IdentityOf(a *models.Account) session.Identity {
	id := session.Identity{
		SubjectID:     a.SubjectID,
		Email:         a.Email,
		EmailVerified: a.EmailVerified,
		Name:          a.Name,
		Provider:      session.ProviderTag(a.Provider),
	}
	if a.Picture != nil {
		id.Picture = *a.Picture
	}
	return id
}

func RecordOf(r *models.UserRecord) *session.Record {
	rec := &session.Record{SubjectID: r.SubjectID, Fields: r.Fields}
	if r.PriceID != nil {
		rec.PriceID = *r.PriceID
	}
	if r.SubscriptionStatus != nil {
		rec.SubscriptionStatus = *r.SubscriptionStatus
	}
	return rec
}
