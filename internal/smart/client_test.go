package smart

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// sandbox spins up a fake FHIR server with SMART discovery, a token
// endpoint, and a couple of resources.
func sandbox(t *testing.T) (*httptest.Server, Settings) {
	t.Helper()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/fhir/.well-known/smart-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"authorization_endpoint": server.URL + "/auth/authorize",
			"token_endpoint":         server.URL + "/auth/token",
			"capabilities":           []string{"launch-standalone", "client-public"},
		})
	})

	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"access_token": "test-access-token",
			"token_type": "bearer",
			"expires_in": 3600,
			"patient": "pat-123",
			"id_token": %q
		}`, fakeIDToken(t, map[string]interface{}{"name": "Amy Shaw"}))
	})

	mux.HandleFunc("/fhir/Patient/pat-123", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-access-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/fhir+json")
		fmt.Fprint(w, `{
			"resourceType": "Patient",
			"id": "pat-123",
			"name": [{"use": "official", "family": "Shaw", "given": ["Amy"]}]
		}`)
	})

	mux.HandleFunc("/fhir/MedicationRequest", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("patient") != "pat-123" {
			http.Error(w, "missing patient param", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/fhir+json")
		fmt.Fprint(w, `{
			"resourceType": "Bundle",
			"type": "searchset",
			"total": 1,
			"entry": [{"resource": {
				"resourceType": "MedicationRequest", "id": "rx-1",
				"status": "active", "intent": "order",
				"medicationCodeableConcept": {"text": "Aspirin 81mg"},
				"subject": {"reference": "Patient/pat-123"}
			}}]
		}`)
	})

	mux.HandleFunc("/fhir/Medication/med-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/fhir+json")
		fmt.Fprint(w, `{
			"resourceType": "Medication",
			"id": "med-1",
			"code": {"coding": [{
				"system": "http://www.nlm.nih.gov/research/umls/rxnorm",
				"code": "314076",
				"display": "Lisinopril 10 MG Oral Tablet"
			}]}
		}`)
	})

	settings := DefaultSettings()
	settings.APIBase = server.URL + "/fhir"
	settings.RedirectURI = "http://localhost:8080/fhir-app/"
	return server, settings
}

// fakeIDToken builds an unsigned JWT with the given claims. Only the
// claims segment matters; the parser never checks the signature.
func fakeIDToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func TestAuthorizeURL(t *testing.T) {
	_, settings := sandbox(t)
	client := New(settings, nil)

	authURL, err := client.AuthorizeURL(context.Background())
	if err != nil {
		t.Fatalf("AuthorizeURL: %v", err)
	}

	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse authorize url: %v", err)
	}
	q := u.Query()
	if q.Get("client_id") != settings.AppID {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("redirect_uri") != settings.RedirectURI {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	if q.Get("aud") != settings.APIBase {
		t.Errorf("aud = %q, want the FHIR base", q.Get("aud"))
	}
	if q.Get("state") == "" || q.Get("state") != client.State().AuthNonce {
		t.Error("state param must match the stored nonce")
	}
	if !strings.Contains(q.Get("scope"), "patient/MedicationRequest.read") {
		t.Errorf("scope = %q", q.Get("scope"))
	}
}

func TestHandleCallbackFullFlow(t *testing.T) {
	_, settings := sandbox(t)
	ctx := context.Background()

	client := New(settings, nil)
	if client.Ready() {
		t.Fatal("fresh client must not be ready")
	}
	if _, err := client.AuthorizeURL(ctx); err != nil {
		t.Fatalf("AuthorizeURL: %v", err)
	}
	nonce := client.State().AuthNonce

	// Simulate the session round trip through the store.
	blob, err := client.State().Marshal()
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	state, err := UnmarshalState(blob)
	if err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	client = FromState(state, nil)

	callback := settings.RedirectURI + "?code=good-code&state=" + nonce
	if err := client.HandleCallback(ctx, callback); err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}

	if !client.Ready() {
		t.Error("client must be ready after callback")
	}
	if client.PatientID() != "pat-123" {
		t.Errorf("PatientID = %q, want launch context patient", client.PatientID())
	}
	if client.UserName() != "Amy Shaw" {
		t.Errorf("UserName = %q, want name from id_token", client.UserName())
	}
	if client.State().AuthNonce != "" {
		t.Error("nonce must be cleared once consumed")
	}

	patient, err := client.Patient(ctx)
	if err != nil {
		t.Fatalf("Patient: %v", err)
	}
	if patient.GetFullName() != "Amy Shaw" {
		t.Errorf("patient name = %q", patient.GetFullName())
	}

	reqs, err := client.SearchMedicationRequests(ctx, client.PatientID())
	if err != nil {
		t.Fatalf("SearchMedicationRequests: %v", err)
	}
	if len(reqs) != 1 || reqs[0].MedicationCodeableConcept.Text != "Aspirin 81mg" {
		t.Errorf("unexpected search result: %+v", reqs)
	}

	code, err := client.ReadMedicationCode(ctx, "med-1")
	if err != nil {
		t.Fatalf("ReadMedicationCode: %v", err)
	}
	if len(code.Coding) != 1 || code.Coding[0].Display != "Lisinopril 10 MG Oral Tablet" {
		t.Errorf("unexpected medication code: %+v", code)
	}
}

func TestHandleCallbackMissingCode(t *testing.T) {
	_, settings := sandbox(t)
	client := New(settings, nil)

	err := client.HandleCallback(context.Background(), settings.RedirectURI+"?state=whatever")
	if err != ErrMissingCode {
		t.Errorf("got %v, want ErrMissingCode", err)
	}
}

func TestHandleCallbackStateMismatch(t *testing.T) {
	_, settings := sandbox(t)
	ctx := context.Background()

	client := New(settings, nil)
	if _, err := client.AuthorizeURL(ctx); err != nil {
		t.Fatalf("AuthorizeURL: %v", err)
	}

	err := client.HandleCallback(ctx, settings.RedirectURI+"?code=good-code&state=forged")
	if err != ErrStateMismatch {
		t.Errorf("got %v, want ErrStateMismatch", err)
	}
}

func TestHandleCallbackExchangeFailure(t *testing.T) {
	_, settings := sandbox(t)
	ctx := context.Background()

	client := New(settings, nil)
	if _, err := client.AuthorizeURL(ctx); err != nil {
		t.Fatalf("AuthorizeURL: %v", err)
	}
	nonce := client.State().AuthNonce

	err := client.HandleCallback(ctx, settings.RedirectURI+"?code=bad-code&state="+nonce)
	if err == nil {
		t.Fatal("expected exchange failure for rejected code")
	}
	if client.Ready() {
		t.Error("client must stay unauthorized after a failed exchange")
	}
}

func TestResetPatient(t *testing.T) {
	_, settings := sandbox(t)
	client := New(settings, nil)
	client.State().Token = &oauth2.Token{AccessToken: "tok"}
	client.State().PatientID = "pat-123"
	client.State().UserName = "Amy Shaw"

	client.ResetPatient()

	if client.Ready() || client.PatientID() != "" || client.UserName() != "" {
		t.Error("ResetPatient must drop token, patient, and user identity")
	}
}

func TestRequestObserverRecordsCalls(t *testing.T) {
	_, settings := sandbox(t)
	ctx := context.Background()

	type call struct {
		resource string
		outcome  string
	}
	var calls []call
	client := New(settings, nil, WithRequestObserver(func(resource, outcome string, duration time.Duration) {
		if duration < 0 {
			t.Errorf("negative duration for %s", resource)
		}
		calls = append(calls, call{resource, outcome})
	}))

	if _, err := client.AuthorizeURL(ctx); err != nil {
		t.Fatalf("AuthorizeURL: %v", err)
	}
	nonce := client.State().AuthNonce
	if err := client.HandleCallback(ctx, settings.RedirectURI+"?code=good-code&state="+nonce); err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}

	if _, err := client.Patient(ctx); err != nil {
		t.Fatalf("Patient: %v", err)
	}
	if _, err := client.SearchMedicationRequests(ctx, client.PatientID()); err != nil {
		t.Fatalf("SearchMedicationRequests: %v", err)
	}
	if _, err := client.ReadMedicationCode(ctx, "no-such-med"); err == nil {
		t.Fatal("expected read failure for unknown medication")
	}

	want := []call{
		{"Patient", "success"},
		{"MedicationRequest", "success"},
		{"Medication", "error"},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, calls[i], want[i])
		}
	}
}

func TestSearchRejectsEmptyPatientID(t *testing.T) {
	_, settings := sandbox(t)
	client := New(settings, nil)
	client.State().Token = &oauth2.Token{AccessToken: "tok"}

	if _, err := client.SearchMedicationRequests(context.Background(), ""); err != ErrNotAuthorized {
		t.Errorf("got %v, want ErrNotAuthorized for empty patient", err)
	}
}

func TestResourceCallsRequireAuthorization(t *testing.T) {
	_, settings := sandbox(t)
	client := New(settings, nil)
	ctx := context.Background()

	if _, err := client.Patient(ctx); err != ErrNotAuthorized {
		t.Errorf("Patient: got %v, want ErrNotAuthorized", err)
	}
	if _, err := client.SearchMedicationRequests(ctx, "pat-123"); err != ErrNotAuthorized {
		t.Errorf("SearchMedicationRequests: got %v, want ErrNotAuthorized", err)
	}
	if _, err := client.ReadMedicationCode(ctx, "med-1"); err != ErrNotAuthorized {
		t.Errorf("ReadMedicationCode: got %v, want ErrNotAuthorized", err)
	}
}

func TestDiscoveryFailure(t *testing.T) {
	settings := DefaultSettings()
	settings.APIBase = "http://127.0.0.1:1/fhir" // nothing listening

	client := New(settings, nil)
	if _, err := client.AuthorizeURL(context.Background()); err == nil {
		t.Fatal("expected discovery failure")
	}
}
