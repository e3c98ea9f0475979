package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eircare/smart-meds/internal/fhir/r4"
	"github.com/eircare/smart-meds/internal/session"
	"github.com/eircare/smart-meds/internal/smart"
)

type fakeClient struct {
	ready       bool
	patientID   string
	userName    string
	authURL     string
	authErr     error
	callbackErr error
	patient     *r4.Patient
	patientErr  error
	requests    []*r4.MedicationRequest
	searchErr   error
	medCodes    map[string]*r4.CodeableConcept

	state          *smart.State
	callbackCalled bool
	resetCalled    bool
}

func (f *fakeClient) AuthorizeURL(ctx context.Context) (string, error) {
	return f.authURL, f.authErr
}

func (f *fakeClient) HandleCallback(ctx context.Context, callbackURL string) error {
	f.callbackCalled = true
	if f.callbackErr != nil {
		return f.callbackErr
	}
	f.ready = true
	return nil
}

func (f *fakeClient) Ready() bool       { return f.ready }
func (f *fakeClient) PatientID() string { return f.patientID }
func (f *fakeClient) UserName() string  { return f.userName }

func (f *fakeClient) ResetPatient() { f.resetCalled = true; f.ready = false }

func (f *fakeClient) Patient(ctx context.Context) (*r4.Patient, error) {
	return f.patient, f.patientErr
}

func (f *fakeClient) SearchMedicationRequests(ctx context.Context, patientID string) ([]*r4.MedicationRequest, error) {
	return f.requests, f.searchErr
}

func (f *fakeClient) ReadMedicationCode(ctx context.Context, id string) (*r4.CodeableConcept, error) {
	if code, ok := f.medCodes[id]; ok {
		return code, nil
	}
	return nil, errors.New("medication not found")
}

func (f *fakeClient) State() *smart.State {
	if f.state == nil {
		f.state = &smart.State{APIBase: "http://example.test/fhir"}
	}
	return f.state
}

func newTestHandler(t *testing.T, client *fakeClient) (*AppHandler, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore()
	cookies := session.NewCookieManager([]byte("test-secret"), time.Hour, false)
	h := New(smart.DefaultSettings(), store, cookies, time.Hour, nil)
	h.newClient = func(state *smart.State) smartClient { return client }
	return h, store
}

// withSession issues a valid session cookie onto the request.
func withSession(t *testing.T, h *AppHandler, r *http.Request) string {
	t.Helper()
	rec := httptest.NewRecorder()
	sessionID := h.cookies.Issue(rec)
	r.AddCookie(rec.Result().Cookies()[0])
	return sessionID
}

func TestHomeUnauthorizedShowsAuthorizeLink(t *testing.T) {
	client := &fakeClient{authURL: "https://auth.example.test/authorize?state=abc"}
	h, _ := newTestHandler(t, client)

	rec := httptest.NewRecorder()
	h.Home(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, client.authURL) {
		t.Error("page must link to the authorization server")
	}
	if !strings.Contains(body, "/reset") {
		t.Error("page must offer a reset link")
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Error("a fresh visit must set a session cookie")
	}
}

func TestHomeAuthorizedListsMedications(t *testing.T) {
	client := &fakeClient{
		ready:     true,
		patientID: "pat-123",
		userName:  "Amy Shaw",
		patient: &r4.Patient{
			Name: []r4.HumanName{{Use: "official", Given: []string{"Amy"}, Family: "Shaw"}},
		},
		requests: []*r4.MedicationRequest{
			{MedicationCodeableConcept: &r4.CodeableConcept{Text: "Aspirin 81mg"}},
			{MedicationReference: &r4.Reference{Reference: "Medication/med-1"}},
		},
		medCodes: map[string]*r4.CodeableConcept{
			"med-1": {Coding: []r4.Coding{{
				System:  r4.SystemRxNorm,
				Code:    "314076",
				Display: "Lisinopril 10 MG Oral Tablet",
			}}},
		},
	}
	h, store := newTestHandler(t, client)

	req := httptest.NewRequest("GET", "/", nil)
	sessionID := withSession(t, h, req)
	rec := httptest.NewRecorder()
	h.Home(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "Amy Shaw") {
		t.Error("patient name missing from page")
	}
	if !strings.Contains(body, "Aspirin 81mg") || !strings.Contains(body, "Lisinopril 10 MG Oral Tablet") {
		t.Errorf("medication names missing from page:\n%s", body)
	}
	if _, err := store.Get(context.Background(), sessionID); err != nil {
		t.Errorf("session must be persisted after render: %v", err)
	}
}

func TestHomePatientReadFailureFallsBack(t *testing.T) {
	client := &fakeClient{
		ready:      true,
		patientID:  "pat-123",
		patientErr: errors.New("boom"),
	}
	h, _ := newTestHandler(t, client)

	req := httptest.NewRequest("GET", "/", nil)
	withSession(t, h, req)
	rec := httptest.NewRecorder()
	h.Home(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, UnknownPatient) {
		t.Error("failed patient read must fall back to the unknown label")
	}
	if !strings.Contains(body, NoPrescriptions) {
		t.Error("empty medication list must show the empty-state line")
	}
}

func TestCallbackSuccessRedirectsHome(t *testing.T) {
	client := &fakeClient{}
	h, store := newTestHandler(t, client)

	req := httptest.NewRequest("GET", "/fhir-app/?code=abc&state=xyz", nil)
	sessionID := withSession(t, h, req)
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	if !client.callbackCalled {
		t.Fatal("callback must be forwarded to the client")
	}
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
		t.Errorf("status = %d, location = %q", rec.Code, rec.Header().Get("Location"))
	}
	if _, err := store.Get(context.Background(), sessionID); err != nil {
		t.Errorf("authorized state must be persisted: %v", err)
	}
}

func TestCallbackFailureRendersErrorPage(t *testing.T) {
	client := &fakeClient{callbackErr: smart.ErrStateMismatch}
	h, _ := newTestHandler(t, client)

	req := httptest.NewRequest("GET", "/fhir-app/?code=abc&state=forged", nil)
	withSession(t, h, req)
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Start over") {
		t.Error("error page must offer a way to restart")
	}
}

func TestLogoutDropsAuthorization(t *testing.T) {
	client := &fakeClient{ready: true}
	h, store := newTestHandler(t, client)

	req := httptest.NewRequest("GET", "/logout", nil)
	sessionID := withSession(t, h, req)
	if err := store.Set(context.Background(), sessionID, []byte(`{}`), time.Hour); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if !client.resetCalled {
		t.Error("logout must reset the client authorization")
	}
	if _, err := store.Get(context.Background(), sessionID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("stored authorization state must be deleted, got %v", err)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge < 0 {
			t.Error("logout must keep the session cookie")
		}
	}
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
		t.Errorf("status = %d, location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestHomeReadyWithoutPatientContextReauthorizes(t *testing.T) {
	client := &fakeClient{
		ready:   true,
		authURL: "https://auth.example.test/authorize?state=abc",
	}
	h, _ := newTestHandler(t, client)

	req := httptest.NewRequest("GET", "/", nil)
	withSession(t, h, req)
	rec := httptest.NewRecorder()
	h.Home(rec, req)

	if !strings.Contains(rec.Body.String(), client.authURL) {
		t.Error("a token without patient context must lead back to authorization")
	}
}

func TestResetWipesSession(t *testing.T) {
	client := &fakeClient{}
	h, store := newTestHandler(t, client)

	req := httptest.NewRequest("GET", "/reset", nil)
	sessionID := withSession(t, h, req)
	if err := store.Set(context.Background(), sessionID, []byte(`{}`), time.Hour); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	rec := httptest.NewRecorder()
	h.Reset(rec, req)

	if _, err := store.Get(context.Background(), sessionID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("session must be deleted, got %v", err)
	}
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("reset must expire the session cookie")
	}
	if rec.Code != http.StatusFound {
		t.Errorf("status = %d, want redirect", rec.Code)
	}
}
