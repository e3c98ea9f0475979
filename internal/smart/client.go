package smart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/eircare/smart-meds/internal/fhir/r4"
	"github.com/eircare/smart-meds/pkg/circuitbreaker"
)

var (
	// ErrMissingCode is returned when the callback carries no
	// authorization code.
	ErrMissingCode = errors.New("smart: authorization code missing from callback")
	// ErrStateMismatch is returned when the callback state parameter
	// does not match the nonce this session issued.
	ErrStateMismatch = errors.New("smart: oauth state mismatch")
	// ErrNotAuthorized is returned for resource calls before the
	// authorization flow has completed.
	ErrNotAuthorized = errors.New("smart: client not authorized")
)

// RequestObserver receives the resource type, outcome ("success" or
// "error"), and duration of every FHIR server call.
type RequestObserver func(resource, outcome string, duration time.Duration)

// Client is a per-request handle over an authorization State. It is not
// safe for concurrent use; each request builds its own from the session.
type Client struct {
	state   *State
	http    *http.Client
	breaker *circuitbreaker.Breaker
	logger  *zap.Logger
	tracer  trace.Tracer
	observe RequestObserver
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for all server calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBreaker shares a circuit breaker across request-scoped clients.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithRequestObserver records every FHIR server call.
func WithRequestObserver(observe RequestObserver) Option {
	return func(c *Client) { c.observe = observe }
}

// New creates a client with a fresh, unauthorized state.
func New(settings Settings, logger *zap.Logger, opts ...Option) *Client {
	return FromState(newState(settings), logger, opts...)
}

// FromState restores a client from a saved state blob.
func FromState(state *State, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		state:  state,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger,
		tracer: otel.Tracer("smart-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = circuitbreaker.New(circuitbreaker.DefaultConfig("fhir-server"), logger)
	}
	return c
}

// State exposes the current authorization state for persistence.
func (c *Client) State() *State {
	return c.state
}

// Ready reports whether the client holds a usable access token.
func (c *Client) Ready() bool {
	return c.state.Token != nil && c.state.Token.Valid()
}

// PatientID returns the patient selected during authorization.
func (c *Client) PatientID() string {
	return c.state.PatientID
}

// UserName returns the authorized user's display name, if the server
// issued an id_token carrying one.
func (c *Client) UserName() string {
	return c.state.UserName
}

// AuthorizeURL discovers the server's OAuth2 endpoints and builds the
// authorization URL with a fresh state nonce. The nonce is stored in
// the State, so the caller must persist the state afterwards.
func (c *Client) AuthorizeURL(ctx context.Context) (string, error) {
	if err := c.discoverEndpoints(ctx); err != nil {
		return "", err
	}

	c.state.AuthNonce = uuid.New().String()

	// SMART requires the aud parameter to name the FHIR server.
	return c.oauthConfig().AuthCodeURL(c.state.AuthNonce,
		oauth2.SetAuthURLParam("aud", c.state.APIBase)), nil
}

// HandleCallback consumes the OAuth2 redirect: it validates code and
// state, exchanges the code for a token, and captures the SMART launch
// context (patient) and id_token identity from the token response.
func (c *Client) HandleCallback(ctx context.Context, callbackURL string) error {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return fmt.Errorf("smart: parse callback url: %w", err)
	}
	query := u.Query()

	code := query.Get("code")
	if code == "" {
		return ErrMissingCode
	}
	if nonce := query.Get("state"); c.state.AuthNonce == "" || nonce != c.state.AuthNonce {
		return ErrStateMismatch
	}

	if err := c.discoverEndpoints(ctx); err != nil {
		return err
	}

	// Route the token exchange through our HTTP client.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	token, err := c.oauthConfig().Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("smart: token exchange: %w", err)
	}

	c.state.Token = token
	c.state.AuthNonce = ""

	if patient, ok := token.Extra("patient").(string); ok && patient != "" {
		c.state.PatientID = patient
	}
	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		c.state.UserName = displayNameFromIDToken(idToken)
	}

	c.logger.Info("authorization completed",
		zap.String("patient_id", c.state.PatientID),
		zap.Bool("has_refresh_token", token.RefreshToken != ""))
	return nil
}

// ResetPatient drops the selected patient and the token that granted
// access to it, returning the client to the unauthorized state.
func (c *Client) ResetPatient() {
	c.state.Token = nil
	c.state.PatientID = ""
	c.state.UserName = ""
	c.state.AuthNonce = ""
}

// Patient reads the authorized patient's resource.
func (c *Client) Patient(ctx context.Context) (*r4.Patient, error) {
	if !c.Ready() || c.state.PatientID == "" {
		return nil, ErrNotAuthorized
	}
	patient := &r4.Patient{}
	if err := c.get(ctx, "/Patient/"+url.PathEscape(c.state.PatientID), patient); err != nil {
		return nil, err
	}
	return patient, nil
}

// SearchMedicationRequests returns the patient's prescriptions. An
// empty patient ID is rejected rather than sent as an unscoped search.
func (c *Client) SearchMedicationRequests(ctx context.Context, patientID string) ([]*r4.MedicationRequest, error) {
	if !c.Ready() || patientID == "" {
		return nil, ErrNotAuthorized
	}

	query := url.Values{}
	query.Set("patient", patientID)

	bundle := &r4.Bundle{}
	if err := c.get(ctx, "/MedicationRequest?"+query.Encode(), bundle); err != nil {
		return nil, err
	}
	return bundle.MedicationRequests()
}

// ReadMedicationCode reads a standalone Medication resource and returns
// its coded concept. Implements meds.MedicationReader.
func (c *Client) ReadMedicationCode(ctx context.Context, id string) (*r4.CodeableConcept, error) {
	if !c.Ready() {
		return nil, ErrNotAuthorized
	}
	medication := &r4.Medication{}
	if err := c.get(ctx, "/Medication/"+url.PathEscape(id), medication); err != nil {
		return nil, err
	}
	return medication.Code, nil
}

func (c *Client) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    c.state.AppID,
		RedirectURL: c.state.RedirectURI,
		Scopes:      c.state.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.state.AuthorizeEndpoint,
			TokenURL:  c.state.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// get performs an authorized FHIR read through the circuit breaker and
// decodes the response into out.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, "fhir_get",
		trace.WithAttributes(attribute.String("fhir.path", path)))
	defer span.End()

	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.doGet(ctx, path, out)
	})
	if c.observe != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		c.observe(resourceFromPath(path), outcome, time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// resourceFromPath extracts the resource type from a request path like
// "/Patient/123" or "/MedicationRequest?patient=123".
func resourceFromPath(path string) string {
	resource := strings.TrimPrefix(path, "/")
	if i := strings.IndexAny(resource, "/?"); i >= 0 {
		resource = resource[:i]
	}
	return resource
}

func (c *Client) doGet(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.state.APIBase+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/fhir+json")
	if c.state.Token != nil {
		c.state.Token.SetAuthHeader(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fhir request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fhirError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode fhir response: %w", err)
	}
	return nil
}

// fhirError turns a non-200 response into an error, surfacing the
// OperationOutcome diagnostics when the server sent one.
func fhirError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && len(body) > 0 {
		var outcome r4.OperationOutcome
		if json.Unmarshal(body, &outcome) == nil && len(outcome.Issue) > 0 {
			return fmt.Errorf("fhir server status %d: %s", resp.StatusCode, outcome.Issue[0].Diagnostics)
		}
	}
	return fmt.Errorf("fhir server status %d", resp.StatusCode)
}

// displayNameFromIDToken extracts a display name from an id_token. The
// token is used for display only, so the signature is not verified.
func displayNameFromIDToken(raw string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return ""
	}
	if name, ok := claims["name"].(string); ok && name != "" {
		return name
	}
	if fhirUser, ok := claims["fhirUser"].(string); ok && fhirUser != "" {
		return r4.ExtractIDFromReference(fhirUser)
	}
	return ""
}
