// Package smart implements a SMART-on-FHIR app client: OAuth2
// authorization against a FHIR server's authorization service, and the
// handful of resource reads the viewer needs. The OAuth2 protocol
// itself is delegated to golang.org/x/oauth2.
package smart

import "strings"

// Settings identifies the app against a FHIR server.
type Settings struct {
	// AppID is the OAuth2 client_id registered with the server.
	AppID string
	// APIBase is the FHIR base URL, without a trailing slash.
	APIBase string
	// RedirectURI is the registered OAuth2 callback URL.
	RedirectURI string
	// Scopes are the SMART scopes to request.
	Scopes []string
}

// DefaultSettings targets the public SMART sandbox.
func DefaultSettings() Settings {
	return Settings{
		AppID:       "smart-meds-app",
		APIBase:     "https://launch.smarthealthit.org/v/r4/fhir",
		RedirectURI: "http://localhost:8080/fhir-app/",
		Scopes: []string{
			"openid",
			"profile",
			"offline_access",
			"launch/patient",
			"patient/Patient.read",
			"patient/MedicationRequest.read",
			"patient/Medication.read",
		},
	}
}

// Valid reports whether the settings are usable at all.
func (s Settings) Valid() bool {
	return s.APIBase != "" && s.AppID != "" && s.RedirectURI != ""
}

// ScopeString renders the scopes space-separated, as sent on the wire.
func (s Settings) ScopeString() string {
	return strings.Join(s.Scopes, " ")
}
