package session

import (
	"encoding/json"
	"maps"
)

// Identity is the identity provider's view of the signed-in user.
type Identity struct {
	SubjectID     string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	Provider      ProviderTag
}

// Record is the persisted per-user document kept by the data store.
type Record struct {
	SubjectID          string
	Fields             map[string]any
	PriceID            string
	SubscriptionStatus string
}

type QueryStatus int

const (
	StatusIdle QueryStatus = iota
	StatusLoading
	StatusError
	StatusSuccess
)

func (s QueryStatus) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusError:
		return "error"
	case StatusSuccess:
		return "success"
	default:
		return "idle"
	}
}

// RecordResult is the outcome of a record query. A successful query for a
// record that does not exist yet has a nil Data.
type RecordResult struct {
	Status QueryStatus
	Data   *Record
	Err    error
}

// User is the merged view of identity, record and billing plan.
type User struct {
	Identity
	Fields             map[string]any
	PriceID            string
	SubscriptionStatus string
	PlanID             string
	PlanIsActive       bool
}

// Field returns an app-defined record field.
func (u *User) Field(name string) (any, bool) {
	v, ok := u.Fields[name]
	return v, ok
}

// MarshalJSON flattens record fields next to the identity fields. Typed
// fields take precedence over record fields with the same key.
func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Fields)+10)
	maps.Copy(out, u.Fields)
	out["subject_id"] = u.SubjectID
	out["email"] = u.Email
	out["email_verified"] = u.EmailVerified
	out["name"] = u.Name
	out["picture"] = u.Picture
	out["provider"] = u.Provider
	out["price_id"] = u.PriceID
	out["subscription_status"] = u.SubscriptionStatus
	out["plan_id"] = u.PlanID
	out["plan_is_active"] = u.PlanIsActive
	return json.Marshal(out)
}

type stateKind int

const (
	kindLoading stateKind = iota
	kindSignedOut
	kindReady
)

// State is exactly one of Loading, SignedOut or Ready. The zero value is
// Loading.
type State struct {
	kind stateKind
	user *User
}

func Loading() State   { return State{kind: kindLoading} }
func SignedOut() State { return State{kind: kindSignedOut} }

func Ready(u User) State {
	return State{kind: kindReady, user: &u}
}

func (s State) IsLoading() bool   { return s.kind == kindLoading }
func (s State) IsSignedOut() bool { return s.kind == kindSignedOut }
func (s State) IsReady() bool     { return s.kind == kindReady }

// User returns the merged user when the state is Ready.
func (s State) User() (*User, bool) {
	if s.kind != kindReady {
		return nil, false
	}
	return s.user, true
}

func (s State) String() string {
	switch s.kind {
	case kindSignedOut:
		return "signed_out"
	case kindReady:
		return "ready"
	default:
		return "loading"
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		State string `json:"state"`
		User  *User  `json:"user,omitempty"`
	}{State: s.String(), User: s.user})
}
