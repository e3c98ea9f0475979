// Package handlers implements the browser-facing pages of the app.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/eircare/smart-meds/internal/audit"
	"github.com/eircare/smart-meds/internal/fhir/r4"
	"github.com/eircare/smart-meds/internal/meds"
	"github.com/eircare/smart-meds/internal/observability/metrics"
	"github.com/eircare/smart-meds/internal/session"
	"github.com/eircare/smart-meds/internal/smart"
	"github.com/eircare/smart-meds/pkg/circuitbreaker"
)

// UnknownPatient is shown when the patient read fails or the name is
// missing.
const UnknownPatient = "Unknown Patient"

// NoPrescriptions is shown when the medication search returns nothing
// usable.
const NoPrescriptions = "(No prescriptions found or error fetching them for this patient)"

// smartClient is the slice of the SMART client the handlers need.
// Tests substitute a fake through the newClient factory.
type smartClient interface {
	AuthorizeURL(ctx context.Context) (string, error)
	HandleCallback(ctx context.Context, callbackURL string) error
	Ready() bool
	PatientID() string
	UserName() string
	Patient(ctx context.Context) (*r4.Patient, error)
	SearchMedicationRequests(ctx context.Context, patientID string) ([]*r4.MedicationRequest, error)
	ReadMedicationCode(ctx context.Context, id string) (*r4.CodeableConcept, error)
	State() *smart.State
	ResetPatient()
}

// AppHandler serves the SMART app pages.
type AppHandler struct {
	settings   smart.Settings
	store      session.Store
	cookies    *session.CookieManager
	sessionTTL time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics
	audit      *audit.Publisher
	breaker    *circuitbreaker.Breaker

	newClient func(state *smart.State) smartClient
}

// Option configures an AppHandler.
type Option func(*AppHandler)

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *AppHandler) { h.metrics = m }
}

// WithAudit attaches an audit publisher. A nil publisher is fine.
func WithAudit(p *audit.Publisher) Option {
	return func(h *AppHandler) { h.audit = p }
}

// New creates the handler. One circuit breaker is shared across all
// request-scoped FHIR clients so failures accumulate globally.
func New(settings smart.Settings, store session.Store, cookies *session.CookieManager, sessionTTL time.Duration, logger *zap.Logger, opts ...Option) *AppHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &AppHandler{
		settings:   settings,
		store:      store,
		cookies:    cookies,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}

	breakerCfg := circuitbreaker.DefaultConfig("fhir-server")
	clientOpts := []smart.Option{}
	if h.metrics != nil {
		breakerCfg.OnStateChange = func(name string, state gobreaker.State) {
			h.metrics.CircuitBreakerState.WithLabelValues(name).Set(circuitbreaker.StateValue(state))
		}
		h.metrics.CircuitBreakerState.WithLabelValues(breakerCfg.Name).Set(circuitbreaker.StateValue(gobreaker.StateClosed))
		clientOpts = append(clientOpts, smart.WithRequestObserver(func(resource, outcome string, duration time.Duration) {
			h.metrics.FHIRRequests.WithLabelValues(resource, outcome).Inc()
			h.metrics.FHIRRequestDuration.Observe(duration.Seconds())
		}))
	}
	h.breaker = circuitbreaker.New(breakerCfg, logger)
	clientOpts = append(clientOpts, smart.WithBreaker(h.breaker))

	h.newClient = func(state *smart.State) smartClient {
		if state == nil {
			return smart.New(h.settings, h.logger, clientOpts...)
		}
		return smart.FromState(state, h.logger, clientOpts...)
	}
	return h
}

// Routes mounts the app on a chi router.
func (h *AppHandler) Routes(r chi.Router) {
	r.Get("/", h.Home)
	r.Get("/index.html", h.Home)
	r.Get("/fhir-app/", h.Callback)
	r.Get("/logout", h.Logout)
	r.Get("/reset", h.Reset)
}

// loadClient restores the SMART client for this browser session,
// issuing a session cookie if the browser has none.
func (h *AppHandler) loadClient(w http.ResponseWriter, r *http.Request) (string, smartClient) {
	sessionID, err := h.cookies.SessionID(r)
	if err != nil {
		return h.cookies.Issue(w), h.newClient(nil)
	}

	blob, err := h.store.Get(r.Context(), sessionID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			h.logger.Error("session load failed", zap.Error(err))
		}
		return sessionID, h.newClient(nil)
	}

	state, err := smart.UnmarshalState(blob)
	if err != nil {
		h.logger.Warn("discarding undecodable session state", zap.Error(err))
		return sessionID, h.newClient(nil)
	}
	return sessionID, h.newClient(state)
}

// saveClient persists the client state back into the session store.
func (h *AppHandler) saveClient(ctx context.Context, sessionID string, client smartClient) {
	blob, err := client.State().Marshal()
	if err != nil {
		h.logger.Error("session state marshal failed", zap.Error(err))
		return
	}
	if err := h.store.Set(ctx, sessionID, blob, h.sessionTTL); err != nil {
		h.logger.Error("session save failed", zap.Error(err))
	}
}

// Home renders either the authorize prompt or the patient's
// prescription list, depending on authorization state.
func (h *AppHandler) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, client := h.loadClient(w, r)

	if !client.Ready() || client.PatientID() == "" {
		authURL, err := client.AuthorizeURL(ctx)
		if err != nil {
			h.logger.Error("authorize url failed", zap.Error(err))
			h.renderError(w, http.StatusBadGateway, "The authorization server could not be reached.")
			return
		}
		h.saveClient(ctx, sessionID, client)
		if h.metrics != nil {
			h.metrics.AuthorizationsStarted.Inc()
		}
		h.audit.Emit(ctx, audit.EventAuthorizationStarted, sessionID, nil)
		h.renderAuthorize(w, authURL)
		return
	}

	page := medsPage{PatientName: UnknownPatient, UserName: client.UserName()}

	patient, err := client.Patient(ctx)
	if err != nil {
		h.logger.Error("patient read failed",
			zap.String("patient_id", client.PatientID()),
			zap.Error(err))
	} else if name := patient.GetFullName(); name != "" {
		page.PatientName = name
	}
	h.audit.Emit(ctx, audit.EventPatientViewed, sessionID, nil)

	requests, err := client.SearchMedicationRequests(ctx, client.PatientID())
	if err != nil {
		h.logger.Error("medication search failed",
			zap.String("patient_id", client.PatientID()),
			zap.Error(err))
	}
	for _, rx := range requests {
		name := meds.ResolveName(ctx, rx, meds.ReaderFunc(client.ReadMedicationCode), h.logger)
		page.Medications = append(page.Medications, name)
		if h.metrics != nil {
			h.metrics.MedicationResolutions.WithLabelValues(resolutionOutcome(name)).Inc()
		}
	}
	h.audit.Emit(ctx, audit.EventMedicationsListed, sessionID, audit.MedicationsListedData{
		PatientID: client.PatientID(),
		Count:     len(page.Medications),
	})

	h.saveClient(ctx, sessionID, client)
	h.renderMeds(w, page)
}

// Callback completes the OAuth2 flow and bounces back to the index.
func (h *AppHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, client := h.loadClient(w, r)

	if err := client.HandleCallback(ctx, r.URL.String()); err != nil {
		h.logger.Warn("authorization callback rejected", zap.Error(err))
		if h.metrics != nil {
			h.metrics.AuthorizationsFailed.Inc()
		}
		h.audit.Emit(ctx, audit.EventAuthorizationFailed, sessionID, audit.AuthorizationFailedData{
			Reason: err.Error(),
		})
		h.renderError(w, http.StatusBadRequest, "Authorization failed. Please start over.")
		return
	}

	h.saveClient(ctx, sessionID, client)
	if h.metrics != nil {
		h.metrics.AuthorizationsCompleted.Inc()
	}
	h.audit.Emit(ctx, audit.EventAuthorizationCompleted, sessionID, nil)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout drops the stored authorization state. The session cookie
// stays; the next visit starts a fresh authorization.
func (h *AppHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, client := h.loadClient(w, r)

	client.ResetPatient()
	if err := h.store.Delete(ctx, sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		h.logger.Error("session delete failed", zap.Error(err))
	}
	h.audit.Emit(ctx, audit.EventLogout, sessionID, nil)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Reset wipes the whole session, cookie included.
func (h *AppHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if sessionID, err := h.cookies.SessionID(r); err == nil {
		if err := h.store.Delete(ctx, sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
			h.logger.Error("session delete failed", zap.Error(err))
		}
		h.audit.Emit(ctx, audit.EventSessionReset, sessionID, nil)
	}
	h.cookies.Clear(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

func resolutionOutcome(name string) string {
	switch name {
	case meds.NameInvalidData:
		return "invalid"
	case meds.NameUnnamed:
		return "unnamed"
	case meds.NameNotFound:
		return "not_found"
	default:
		return "resolved"
	}
}
