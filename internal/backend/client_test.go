package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"visitordesk/internal/visitor"
)

func TestListVisitorsDecodesAliasedFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/visitors" || r.Method != http.MethodGet {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = io.WriteString(w, `[{"_id":"a1","visitorName":"Jane Doe","visitorID":"+639171234567","office":"Registrar"}]`)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second).WithToken("tok")
	recs, err := c.ListVisitors(context.Background())
	if err != nil {
		t.Fatalf("ListVisitors: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	r := recs[0]
	if r.ID != "a1" || r.Name != "Jane Doe" || r.ContactNumber != "+639171234567" {
		t.Errorf("unexpected record %+v", r)
	}
}

func TestActionEndpointsReturnEcho(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		gotBody = nil
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &gotBody)
		}
		_, _ = io.WriteString(w, `{"visitor":{"id":"v1","name":"Jane","accepted":true}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	rec, err := c.AcceptDecline(context.Background(), "v1", true)
	if err != nil {
		t.Fatalf("AcceptDecline: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/visitors/v1/accept-decline" {
		t.Errorf("called %s %s", gotMethod, gotPath)
	}
	if gotBody["accepted"] != true {
		t.Errorf("body = %v", gotBody)
	}
	if rec.ID != "v1" || !rec.IsAccepted() {
		t.Errorf("echo not decoded: %+v", rec)
	}

	if _, err := c.StartProcessing(context.Background(), "v1"); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	if gotPath != "/visitors/v1/start-processing" {
		t.Errorf("path = %s", gotPath)
	}
}

func TestConflictMapsToErrConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":"Visitor already registered for this slot"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).CreateVisitor(context.Background(), visitor.Record{Name: "Jane"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if err.Error() != "Visitor already registered for this slot" {
		t.Errorf("message = %q", err.Error())
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Errorf("not an APIError: %v", err)
	}
}

func TestLoginPortals(t *testing.T) {
	paths := map[Portal]string{
		PortalStaff:   "/auth/login",
		PortalOffice:  "/office-auth/login",
		PortalVisitor: "/visitor-auth/login",
	}
	for portal, want := range paths {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != want {
				t.Errorf("%s: path = %s, want %s", portal, r.URL.Path, want)
			}
			_, _ = io.WriteString(w, `{"token":"t","role":"Guard"}`)
		}))
		res, err := New(srv.URL, time.Second).Login(context.Background(), portal, Credentials{Username: "u", Password: "p"})
		srv.Close()
		if err != nil {
			t.Fatalf("%s: %v", portal, err)
		}
		if res.Token != "t" || res.Role != "Guard" {
			t.Errorf("%s: result %+v", portal, res)
		}
	}
}

func TestLoginWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"role":"Guard"}`)
	}))
	defer srv.Close()
	if _, err := New(srv.URL, time.Second).Login(context.Background(), PortalStaff, Credentials{}); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestAuditTrailOfficeFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("office"); got != "Registrar" {
			t.Errorf("office = %q", got)
		}
		_, _ = io.WriteString(w, `[{"action":"time-in"}]`)
	}))
	defer srv.Close()

	raw, err := New(srv.URL, time.Second).AuditTrail(context.Background(), "Registrar")
	if err != nil {
		t.Fatalf("AuditTrail: %v", err)
	}
	if string(raw) != `[{"action":"time-in"}]` {
		t.Errorf("raw = %s", raw)
	}
}

func TestGetAppointmentMarksKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"appointment":{"_id":"ap1","name":"Jane"}}`)
	}))
	defer srv.Close()

	rec, err := New(srv.URL, time.Second).GetAppointment(context.Background(), "+639171234567")
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if rec.Kind != visitor.KindAppointment || rec.ID != "ap1" {
		t.Errorf("rec = %+v", rec)
	}
}

func TestCreateSendsKindShapedBody(t *testing.T) {
	bodies := map[string]map[string]any{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode %s body: %v", r.URL.Path, err)
		}
		bodies[r.URL.Path] = body
		_, _ = io.WriteString(w, `{"_id":"srv-1","name":"Jane Doe","contactNumber":"+639171234567","office":"Registrar"}`)
	}))
	defer srv.Close()

	accepted := true
	rec := visitor.Record{
		ID: "draft-1", Kind: visitor.KindAppointment, Name: "Jane Doe", ContactNumber: "+639171234567",
		Office: visitor.OfficeRegistrar, Purpose: "Inquiry", Accepted: &accepted,
	}
	c := New(srv.URL, time.Second)
	if _, err := c.CreateVisitor(context.Background(), rec); err != nil {
		t.Fatalf("CreateVisitor: %v", err)
	}
	out, err := c.CreateAppointment(context.Background(), rec)
	if err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}
	if out.ID != "srv-1" || out.Kind != visitor.KindAppointment {
		t.Errorf("appointment echo = %+v", out)
	}

	v := bodies["/visitors"]
	if v["name"] != "Jane Doe" || v["visitorID"] != "+639171234567" || v["contactNumber"] != nil {
		t.Errorf("/visitors body = %v", v)
	}
	a := bodies["/appointments"]
	if a["name"] != "Jane Doe" || a["contactNumber"] != "+639171234567" || a["visitorID"] != nil {
		t.Errorf("/appointments body = %v", a)
	}
	for path, body := range bodies {
		for _, key := range []string{"id", "accepted", "processed"} {
			if _, ok := body[key]; ok {
				t.Errorf("%s body carries %q", path, key)
			}
		}
	}
}

func TestServiceAccountReloginOnUnauthorized(t *testing.T) {
	var mu sync.Mutex
	logins, current := 0, "fresh-1"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.URL.Path {
		case "/auth/login":
			logins++
			current = "fresh-" + strconv.Itoa(logins)
			_, _ = io.WriteString(w, `{"token":"`+current+`","role":"admin"}`)
		default:
			if r.Header.Get("Authorization") != "Bearer "+current {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"message":"Token expired"}`)
				return
			}
			if r.URL.Path == "/visitors" {
				_, _ = io.WriteString(w, `[{"id":"v1","name":"Jane"}]`)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	acct := NewServiceAccount(New(srv.URL, time.Second), "expired", Credentials{Username: "desk", Password: "pw"})
	ctx := context.Background()

	recs, err := acct.ListVisitors(ctx)
	if err != nil || len(recs) != 1 {
		t.Fatalf("ListVisitors = %v, %v", recs, err)
	}
	if acct.Token() != "fresh-1" {
		t.Errorf("token = %q", acct.Token())
	}
	if err := acct.SendOverdueEmail(ctx, "v1"); err != nil {
		t.Fatalf("SendOverdueEmail: %v", err)
	}

	mu.Lock()
	current = "rotated"
	mu.Unlock()
	if err := acct.Notify(ctx, "v1", "hello"); err != nil {
		t.Fatalf("Notify after rotation: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if logins != 2 {
		t.Errorf("logins = %d, want 2", logins)
	}
}

func TestServiceAccountWithoutCredentialsKeepsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/login" {
			t.Error("login attempted without credentials")
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	acct := NewServiceAccount(New(srv.URL, time.Second), "static", Credentials{})
	if _, err := acct.ListVisitors(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if acct.Token() != "static" {
		t.Errorf("token = %q", acct.Token())
	}
}
