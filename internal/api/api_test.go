package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"visitordesk/internal/backend"
	"visitordesk/internal/desk"
	"visitordesk/internal/journal"
	"visitordesk/internal/registration"
	"visitordesk/internal/session"
	"visitordesk/internal/verify"
	"visitordesk/internal/visitor"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeUpstream struct {
	mu       sync.Mutex
	records  map[string]visitor.Record
	tokens   []string
	toggled  []string
	createFn func(visitor.Record) (visitor.Record, error)
}

func newFakeUpstream(recs ...visitor.Record) *fakeUpstream {
	u := &fakeUpstream{records: map[string]visitor.Record{}}
	for _, r := range recs {
		u.records[r.ID] = r
	}
	return u
}

func (u *fakeUpstream) Login(_ context.Context, portal backend.Portal, creds backend.Credentials) (backend.LoginResult, error) {
	switch {
	case creds.Password != "secret":
		return backend.LoginResult{}, &backend.APIError{Status: http.StatusUnauthorized, Message: "Invalid credentials"}
	case portal == backend.PortalOffice:
		return backend.LoginResult{Token: "up-office", Role: "Office Staff", Office: "Registrar"}, nil
	case creds.Username == "guard":
		return backend.LoginResult{Token: "up-guard", Role: "Guard"}, nil
	case creds.Username == "visitor":
		return backend.LoginResult{Token: "up-visitor", Role: "Visitor", Name: "Jane Doe"}, nil
	}
	return backend.LoginResult{Token: "up-admin", Role: "Admin"}, nil
}

func (u *fakeUpstream) RegisterVisitorAccount(context.Context, backend.VisitorAccount) error { return nil }

func (u *fakeUpstream) ListUsers(context.Context) ([]backend.User, error) {
	return []backend.User{{ID: "u1", Name: "Guard", Email: "g@x.com", Role: "Guard", Active: true}}, nil
}

func (u *fakeUpstream) CreateUser(_ context.Context, in backend.User) (backend.User, error) {
	in.ID, in.Password = "u2", ""
	return in, nil
}

func (u *fakeUpstream) UpdateUser(_ context.Context, id string, in backend.User) (backend.User, error) {
	in.ID = id
	return in, nil
}

func (u *fakeUpstream) DeleteUser(context.Context, string) error { return nil }

func (u *fakeUpstream) ToggleUserStatus(_ context.Context, id string) (backend.User, error) {
	u.mu.Lock()
	u.toggled = append(u.toggled, id)
	u.mu.Unlock()
	return backend.User{ID: id, Active: false}, nil
}

func (u *fakeUpstream) AuditTrail(_ context.Context, office string) (json.RawMessage, error) {
	return json.RawMessage(fmt.Sprintf(`[{"office":%q}]`, office)), nil
}

func (u *fakeUpstream) GetAppointment(_ context.Context, contact string) (visitor.Record, error) {
	return visitor.Record{ContactNumber: contact, Kind: visitor.KindAppointment}, nil
}

func (u *fakeUpstream) SubmitFeedback(_ context.Context, contact, feedback string) (visitor.Record, error) {
	return visitor.Record{ContactNumber: contact, Feedback: feedback, Kind: visitor.KindAppointment}, nil
}

// desk.Backend and roster.Fetcher

func (u *fakeUpstream) ListVisitors(context.Context) ([]visitor.Record, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]visitor.Record, 0, len(u.records))
	for _, r := range u.records {
		out = append(out, r)
	}
	return out, nil
}

func (u *fakeUpstream) mutate(id string, fn func(*visitor.Record)) (visitor.Record, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	r, ok := u.records[id]
	if !ok {
		return visitor.Record{}, &backend.APIError{Status: http.StatusNotFound, Message: "Visitor not found"}
	}
	fn(&r)
	u.records[id] = r
	return r, nil
}

func now() *time.Time {
	t := time.Now().UTC()
	return &t
}

func (u *fakeUpstream) AcceptDecline(_ context.Context, id string, accepted bool) (visitor.Record, error) {
	return u.mutate(id, func(r *visitor.Record) { r.Accepted = &accepted })
}

func (u *fakeUpstream) StartProcessing(_ context.Context, id string) (visitor.Record, error) {
	return u.mutate(id, func(r *visitor.Record) { r.ProcessingStartedTime = now() })
}

func (u *fakeUpstream) OfficeProcessed(_ context.Context, id string) (visitor.Record, error) {
	return u.mutate(id, func(r *visitor.Record) { r.OfficeProcessedTime, r.Processed = now(), true })
}

func (u *fakeUpstream) TimeIn(_ context.Context, id string) (visitor.Record, error) {
	return u.mutate(id, func(r *visitor.Record) { r.TimeIn = now() })
}

func (u *fakeUpstream) TimeOut(_ context.Context, id string) (visitor.Record, error) {
	return u.mutate(id, func(r *visitor.Record) { r.TimeOut = now() })
}

func (u *fakeUpstream) UpdateVisitor(_ context.Context, id string, _ map[string]any) (visitor.Record, error) {
	return u.mutate(id, func(*visitor.Record) {})
}

func (u *fakeUpstream) DeleteVisitor(context.Context, string) error { return nil }

func (u *fakeUpstream) Notify(context.Context, string, string) error { return nil }

// registration.Creator

func (u *fakeUpstream) CreateVisitor(_ context.Context, rec visitor.Record) (visitor.Record, error) {
	if u.createFn != nil {
		return u.createFn(rec)
	}
	rec.ID = "created-1"
	return rec, nil
}

func (u *fakeUpstream) CreateAppointment(ctx context.Context, rec visitor.Record) (visitor.Record, error) {
	return u.CreateVisitor(ctx, rec)
}

func (u *fakeUpstream) seen(token string) {
	u.mu.Lock()
	u.tokens = append(u.tokens, token)
	u.mu.Unlock()
}

type harness struct {
	t      *testing.T
	engine *gin.Engine
	up     *fakeUpstream
	desk   *desk.Service
}

func newHarness(t *testing.T, recs ...visitor.Record) *harness {
	t.Helper()
	up := newFakeUpstream(recs...)
	svc := &desk.Service{
		Backend: func(tok string) desk.Backend {
			up.seen(tok)
			return up
		},
		Pages:   map[desk.PageKind]*desk.Page{},
		Journal: journal.NewMemory(),
	}
	for _, kind := range []desk.PageKind{desk.PageGuard, desk.PageOffice, desk.PageAdmin} {
		p := desk.NewPage(kind, desk.PageConfig{Fetcher: up})
		p.Poller.Tick(context.Background())
		svc.Pages[kind] = p
	}
	cal := registration.NewCalendar([]string{"2026-10-21=Foundation Day"}, nil, time.UTC)
	cal.Now = func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }
	srv := &Server{
		Tokens:   TokenConfig{SigningKey: "test-key", Issuer: "visitordesk", AccessTTL: time.Minute, RefreshTTL: time.Hour},
		Upstream: func(tok string) Upstream {
			up.seen(tok)
			return up
		},
		Sessions: session.NewMemoryStore(),
		Desk:     svc,
		Wizard: &registration.Wizard{
			Backend:  up,
			Calendar: cal,
			Drafts:   registration.NewMemoryDrafts(),
			Guard:    registration.NewMemoryGuard(),
		},
		Journal: svc.Journal,
	}
	r := gin.New()
	srv.Register(r)
	return &harness{t: t, engine: r, up: up, desk: svc}
}

func (h *harness) do(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (h *harness) login(portal, username string) string {
	h.t.Helper()
	w, body := h.do(http.MethodPost, "/v1/auth/login", "", gin.H{"portal": portal, "username": username, "password": "secret"})
	if w.Code != http.StatusOK {
		h.t.Fatalf("login %s: %d %s", username, w.Code, w.Body.String())
	}
	return body["access_token"].(string)
}

func pendingRecord(id string, office visitor.Office) visitor.Record {
	return visitor.Record{ID: id, Name: "Jane Doe", ContactNumber: "+639171234567", Office: office, Purpose: "Inquiry"}
}

func TestLoginAndPageAccess(t *testing.T) {
	h := newHarness(t, pendingRecord("v1", visitor.OfficeRegistrar))

	w, _ := h.do(http.MethodPost, "/v1/auth/login", "", gin.H{"username": "guard", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: %d", w.Code)
	}

	guard := h.login("staff", "guard")
	w, body := h.do(http.MethodGet, "/v1/auth/me", guard, nil)
	if w.Code != http.StatusOK || body["role"] != "guard" {
		t.Fatalf("me: %d %v", w.Code, body)
	}
	if w, _ := h.do(http.MethodGet, "/v1/pages/guard/visitors", guard, nil); w.Code != http.StatusOK {
		t.Errorf("guard page: %d", w.Code)
	}
	if w, _ := h.do(http.MethodGet, "/v1/pages/admin/visitors", guard, nil); w.Code != http.StatusForbidden {
		t.Errorf("guard on admin page: %d", w.Code)
	}
	if w, _ := h.do(http.MethodGet, "/v1/admin/users", guard, nil); w.Code != http.StatusForbidden {
		t.Errorf("guard on admin api: %d", w.Code)
	}
	if w, _ := h.do(http.MethodGet, "/v1/pages/lobby/visitors", guard, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown page: %d", w.Code)
	}
	if w, _ := h.do(http.MethodGet, "/v1/pages/guard/visitors", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: %d", w.Code)
	}

	admin := h.login("staff", "admin")
	if w, _ := h.do(http.MethodGet, "/v1/pages/guard/visitors", admin, nil); w.Code != http.StatusOK {
		t.Errorf("admin on guard page: %d", w.Code)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	h := newHarness(t)
	w, body := h.do(http.MethodPost, "/v1/auth/login", "", gin.H{"username": "admin", "password": "secret"})
	if w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}
	access, refresh := body["access_token"].(string), body["refresh_token"].(string)

	w, body = h.do(http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": refresh})
	if w.Code != http.StatusOK || body["access_token"] == "" {
		t.Fatalf("refresh: %d %v", w.Code, body)
	}
	if w, _ := h.do(http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": access}); w.Code != http.StatusUnauthorized {
		t.Errorf("access token accepted as refresh: %d", w.Code)
	}

	if w, _ := h.do(http.MethodPost, "/v1/auth/logout", access, nil); w.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", w.Code)
	}
	if w, _ := h.do(http.MethodGet, "/v1/auth/me", access, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("token usable after logout: %d", w.Code)
	}
}

func TestOfficeFlowUsesUpstreamToken(t *testing.T) {
	h := newHarness(t, pendingRecord("v1", visitor.OfficeRegistrar), pendingRecord("v2", visitor.OfficeCashier))
	office := h.login("office", "registrar")

	w, body := h.do(http.MethodGet, "/v1/pages/office/visitors", office, nil)
	if w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}
	if list := body["visitors"].([]any); len(list) != 1 {
		t.Errorf("office sees %d visitors, want 1", len(list))
	}

	if w, _ := h.do(http.MethodPost, "/v1/pages/office/visitors/v1/accept", office, nil); w.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", w.Code, w.Body.String())
	}
	if w, _ := h.do(http.MethodPost, "/v1/pages/office/visitors/v1/start-processing", office, nil); w.Code != http.StatusOK {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}
	w, body = h.do(http.MethodPost, "/v1/pages/office/visitors/v1/start-processing", office, nil)
	if w.Code != http.StatusConflict || body["error"] != visitor.ErrAlreadyProcessing.Error() {
		t.Errorf("second start: %d %v", w.Code, body)
	}
	if w, _ := h.do(http.MethodPost, "/v1/pages/office/visitors/v2/accept", office, nil); w.Code != http.StatusForbidden {
		t.Errorf("other office: %d", w.Code)
	}
	if w, _ := h.do(http.MethodPost, "/v1/pages/office/visitors/nope/accept", office, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown visitor: %d", w.Code)
	}

	found := false
	for _, tok := range h.up.tokens {
		if tok == "up-office" {
			found = true
		}
	}
	if !found {
		t.Error("desk actions did not use the upstream session token")
	}
}

func TestRegistrationOverHTTP(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(http.MethodPost, "/v1/registrations", "", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}
	id := body["id"].(string)
	base := "/v1/registrations/" + id

	w, body = h.do(http.MethodPut, base+"/identity", "", gin.H{"name": "Jane Doe", "contactNumber": "09171234567", "email": "jane@x.com"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad contact: %d", w.Code)
	}
	if fields, _ := body["fields"].(map[string]any); fields["contactNumber"] == nil {
		t.Errorf("fields = %v", body)
	}
	if w, _ := h.do(http.MethodPut, base+"/identity", "", gin.H{"name": "Jane Doe", "contactNumber": "+639171234567", "email": "jane@x.com"}); w.Code != http.StatusOK {
		t.Fatalf("identity: %d %s", w.Code, w.Body.String())
	}

	var img bytes.Buffer
	_ = png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(img.Bytes())
	if w, _ := h.do(http.MethodPut, base+"/id-image", "", gin.H{"data": dataURL}); w.Code != http.StatusOK {
		t.Fatalf("id image: %d %s", w.Code, w.Body.String())
	}

	appt := gin.H{"office": "Registrar", "purpose": "Inquiry", "scheduledDate": "2026-10-21", "scheduledTime": "10:00"}
	if w, _ := h.do(http.MethodPut, base+"/appointment", "", appt); w.Code != http.StatusBadRequest {
		t.Errorf("holiday accepted: %d", w.Code)
	}
	appt["scheduledDate"] = "2026-10-20"
	if w, _ := h.do(http.MethodPut, base+"/appointment", "", appt); w.Code != http.StatusOK {
		t.Fatalf("appointment: %d %s", w.Code, w.Body.String())
	}

	w, body = h.do(http.MethodPost, base+"/confirm", "", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("confirm: %d %s", w.Code, w.Body.String())
	}
	if body["qr"] != `{"contactNumber":"+639171234567","name":"Jane Doe"}` {
		t.Errorf("qr = %v", body["qr"])
	}
	rec := body["record"].(map[string]any)
	if rec["accepted"] != nil || rec["timeIn"] != nil {
		t.Errorf("record = %v", rec)
	}
	if w, _ := h.do(http.MethodGet, base, "", nil); w.Code != http.StatusNotFound {
		t.Errorf("draft kept: %d", w.Code)
	}
}

func TestConfirmConflictIsVerbatim(t *testing.T) {
	h := newHarness(t)
	h.up.createFn = func(visitor.Record) (visitor.Record, error) {
		return visitor.Record{}, &backend.APIError{Status: http.StatusConflict, Message: "You already have an appointment at this time"}
	}
	w, body := h.do(http.MethodPost, "/v1/registrations", "", gin.H{"kind": "appointment"})
	if w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}
	base := "/v1/registrations/" + body["id"].(string)
	h.do(http.MethodPut, base+"/identity", "", gin.H{"name": "Jane Doe", "contactNumber": "+639171234567", "email": "jane@x.com"})
	var img bytes.Buffer
	_ = png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	h.do(http.MethodPut, base+"/id-image", "", gin.H{"data": base64.StdEncoding.EncodeToString(img.Bytes())})
	h.do(http.MethodPut, base+"/appointment", "", gin.H{"office": "Registrar", "purpose": "Inquiry", "scheduledDate": "2026-10-20", "scheduledTime": "10:00"})

	w, body = h.do(http.MethodPost, base+"/confirm", "", nil)
	if w.Code != http.StatusConflict || body["error"] != "You already have an appointment at this time" {
		t.Errorf("confirm: %d %v", w.Code, body)
	}
}

func TestAdminProxies(t *testing.T) {
	h := newHarness(t)
	admin := h.login("staff", "admin")

	w, body := h.do(http.MethodGet, "/v1/admin/users", admin, nil)
	if w.Code != http.StatusOK || len(body["users"].([]any)) != 1 {
		t.Fatalf("users: %d %v", w.Code, body)
	}
	if w, _ := h.do(http.MethodPost, "/v1/admin/users", admin, gin.H{"name": "New", "email": "n@x.com", "role": "Office Staff", "office": "Canteen", "password": "pw"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad office accepted: %d", w.Code)
	}
	if w, _ := h.do(http.MethodPut, "/v1/admin/users/u1/toggle-status", admin, nil); w.Code != http.StatusOK {
		t.Errorf("toggle: %d", w.Code)
	}
	if len(h.up.toggled) != 1 || h.up.toggled[0] != "u1" {
		t.Errorf("toggled = %v", h.up.toggled)
	}
	w, _ = h.do(http.MethodGet, "/v1/admin/audit-trail?office=Registrar", admin, nil)
	if w.Code != http.StatusOK || w.Body.String() != `[{"office":"Registrar"}]` {
		t.Errorf("audit: %d %s", w.Code, w.Body.String())
	}
	if w, _ := h.do(http.MethodGet, "/v1/admin/journal?limit=5", admin, nil); w.Code != http.StatusOK {
		t.Errorf("journal: %d", w.Code)
	}
}

func TestVisitorPortal(t *testing.T) {
	h := newHarness(t)
	w, body := h.do(http.MethodPost, "/v1/visitor-auth/login", "", gin.H{"username": "visitor", "password": "secret"})
	if w.Code != http.StatusOK || body["token"] != "up-visitor" {
		t.Fatalf("visitor login: %d %v", w.Code, body)
	}
	w, body = h.do(http.MethodPatch, "/v1/appointments/+639171234567/feedback", "up-visitor", gin.H{"feedback": "Quick service"})
	if w.Code != http.StatusOK || body["feedback"] != "Quick service" {
		t.Errorf("feedback: %d %v", w.Code, body)
	}
	if w, _ := h.do(http.MethodPost, "/v1/visitor-accounts", "", gin.H{"name": "Jane", "email": "jane@x.com", "contactNumber": "0917", "password": "longenough"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad signup accepted: %d", w.Code)
	}
}

func TestClassify(t *testing.T) {
	s := &Server{}
	cases := []struct {
		err  error
		want int
	}{
		{&registration.ValidationError{Fields: map[string]string{"email": "bad"}}, http.StatusBadRequest},
		{fmt.Errorf("x: %w", desk.ErrInvalid), http.StatusBadRequest},
		{visitor.ErrAlreadyTimedIn, http.StatusConflict},
		{&registration.DuplicateError{Message: "dup"}, http.StatusConflict},
		{registration.ErrWrongStep, http.StatusConflict},
		{desk.ErrBusy, http.StatusConflict},
		{verify.ErrNoMatch, http.StatusForbidden},
		{desk.ErrOtherOffice, http.StatusForbidden},
		{desk.ErrNotFound, http.StatusNotFound},
		{registration.ErrDraftNotFound, http.StatusNotFound},
		{&backend.APIError{Status: http.StatusUnauthorized, Message: "expired"}, http.StatusUnauthorized},
		{&backend.APIError{Status: http.StatusInternalServerError, Message: "db down"}, http.StatusBadGateway},
		{errors.New("dial tcp: refused"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		if got, _ := s.classify(tc.err); got != tc.want {
			t.Errorf("classify(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
