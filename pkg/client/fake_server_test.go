package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dimitrije/starter-api/pkg/dto"
)

// fakeAPI is an in-memory starter API with one account.
type fakeAPI struct {
	t *testing.T

	mu           sync.Mutex
	identity     dto.IdentityResponse
	password     string
	access       string
	refreshToken string
	issued       int
	credential   string
	records      map[string]*dto.RecordResponse
	failExchange bool
	calls        []string
	watchers     map[chan dto.RecordEvent]struct{}
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{
		t: t,
		identity: dto.IdentityResponse{
			SubjectID: "auth0|42",
			Email:     "ada@example.com",
			Name:      "Ada",
			Provider:  "password",
		},
		password: "correct horse",
		records:  make(map[string]*dto.RecordResponse),
		watchers: make(map[chan dto.RecordEvent]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", f.login)
	mux.HandleFunc("POST /api/v1/auth/signup", f.login)
	mux.HandleFunc("POST /api/v1/auth/exchange", f.exchangeCode)
	mux.HandleFunc("GET /api/v1/auth/{provider}/consent", f.consent)
	mux.HandleFunc("POST /api/v1/auth/refresh", f.refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", f.logout)
	mux.HandleFunc("GET /api/v1/auth/me", f.authed(f.me))
	mux.HandleFunc("POST /api/v1/auth/store-token", f.authed(f.storeToken))
	mux.HandleFunc("GET /api/v1/store/ready", f.stored(f.ready))
	mux.HandleFunc("GET /api/v1/store/users/{id}", f.stored(f.getRecord))
	mux.HandleFunc("PUT /api/v1/store/users/{id}", f.stored(f.putRecord))
	mux.HandleFunc("PATCH /api/v1/store/users/{id}", f.stored(f.patchRecord))
	mux.HandleFunc("GET /api/v1/store/users/{id}/events", f.stored(f.watch))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// issue mints a new pair; callers hold f.mu.
func (f *fakeAPI) issue() dto.TokenResponse {
	f.issued++
	f.access = fmt.Sprintf("access-%d", f.issued)
	f.refreshToken = fmt.Sprintf("refresh-%d", f.issued)
	return dto.TokenResponse{AccessToken: f.access, RefreshToken: f.refreshToken, ExpiresIn: 900}
}

// expireAccess makes the server reject the current access token.
func (f *fakeAPI) expireAccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = "revoked"
}

func (f *fakeAPI) login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("login")
	if req.Password != f.password {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid email or password", Code: "unauthenticated"})
		return
	}
	writeJSON(w, http.StatusOK, dto.AuthResponse{Tokens: f.issue(), User: f.identity})
}

func (f *fakeAPI) consent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.ConsentURLResponse{URL: "https://provider.example/authorize?p=" + r.PathValue("provider")})
}

func (f *fakeAPI) exchangeCode(w http.ResponseWriter, r *http.Request) {
	var req dto.ExchangeCodeRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("exchange-code")
	if req.Code != "one-time-code" {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid or expired code"})
		return
	}
	user := f.identity
	user.SubjectID = "github|7"
	user.Provider = "github"
	writeJSON(w, http.StatusOK, dto.AuthResponse{Tokens: f.issue(), User: user})
}

func (f *fakeAPI) refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshTokenRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("refresh")
	if req.RefreshToken == "" || req.RefreshToken != f.refreshToken {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid refresh token"})
		return
	}
	writeJSON(w, http.StatusOK, f.issue())
}

func (f *fakeAPI) logout(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("logout")
	f.refreshToken = ""
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (f *fakeAPI) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		ok := bearer(r) == f.access
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid or expired token"})
			return
		}
		next(w, r)
	}
}

func (f *fakeAPI) me(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("me")
	writeJSON(w, http.StatusOK, f.identity)
}

func (f *fakeAPI) storeToken(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("store-token")
	if f.failExchange {
		writeJSON(w, http.StatusBadGateway, dto.StoreTokenResponse{Status: dto.StatusError, Message: "could not issue store token"})
		return
	}
	f.credential = "store-" + f.identity.SubjectID
	writeJSON(w, http.StatusOK, dto.StoreTokenResponse{Status: dto.StatusSuccess, Data: f.credential})
}

func (f *fakeAPI) stored(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		ok := f.credential != "" && bearer(r) == f.credential
		subject := f.identity.SubjectID
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid or expired store credential"})
			return
		}
		if id := r.PathValue("id"); id != "" && id != subject {
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "forbidden"})
			return
		}
		next(w, r)
	}
}

func (f *fakeAPI) ready(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ready")
	writeJSON(w, http.StatusOK, dto.StoreReadyResponse{Status: dto.StatusSuccess, SubjectID: f.identity.SubjectID})
}

func (f *fakeAPI) getRecord(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get-record")
	writeJSON(w, http.StatusOK, dto.RecordEnvelope{Status: dto.StatusSuccess, Data: f.records[r.PathValue("id")]})
}

func (f *fakeAPI) putRecord(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	_ = json.NewDecoder(r.Body).Decode(&fields)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("put-record")
	id := r.PathValue("id")
	if rec, ok := f.records[id]; ok {
		writeJSON(w, http.StatusOK, dto.RecordEnvelope{Status: dto.StatusSuccess, Data: rec})
		return
	}
	f.records[id] = &dto.RecordResponse{SubjectID: id, Fields: fields}
	writeJSON(w, http.StatusCreated, dto.RecordEnvelope{Status: dto.StatusSuccess, Data: f.records[id]})
}

func (f *fakeAPI) patchRecord(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	_ = json.NewDecoder(r.Body).Decode(&fields)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("patch-record")
	id := r.PathValue("id")
	rec, ok := f.records[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "record not found"})
		return
	}
	merged := make(map[string]any, len(rec.Fields)+len(fields))
	for k, v := range rec.Fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	f.records[id] = &dto.RecordResponse{SubjectID: id, Fields: merged}
	writeJSON(w, http.StatusOK, dto.RecordEnvelope{Status: dto.StatusSuccess, Data: f.records[id]})
}

// publish sends ev to every open event stream.
func (f *fakeAPI) publish(ev dto.RecordEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.watchers {
		ch <- ev
	}
}

func (f *fakeAPI) watch(w http.ResponseWriter, r *http.Request) {
	events := make(chan dto.RecordEvent, 8)
	f.mu.Lock()
	f.watchers[events] = struct{}{}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.watchers, events)
		f.mu.Unlock()
	}()

	flusher := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "event: system\ndata: {\"type\":\"connected\"}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			data, _ := json.Marshal(ev)
			fmt.Fprintf(w, ": keep-alive\n\nevent: message\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
