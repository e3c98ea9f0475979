package smart

import (
	"encoding/json"

	"golang.org/x/oauth2"
)

// State is the authorization-state blob persisted in the session store
// between requests. It is opaque to everything outside this package.
type State struct {
	AppID       string   `json:"app_id"`
	APIBase     string   `json:"api_base"`
	RedirectURI string   `json:"redirect_uri"`
	Scopes      []string `json:"scopes,omitempty"`

	// Discovered OAuth2 endpoints.
	AuthorizeEndpoint string `json:"authorize_endpoint,omitempty"`
	TokenEndpoint     string `json:"token_endpoint,omitempty"`

	// Nonce sent as the OAuth2 state parameter, cleared after the
	// callback consumes it.
	AuthNonce string `json:"auth_nonce,omitempty"`

	Token     *oauth2.Token `json:"token,omitempty"`
	PatientID string        `json:"patient_id,omitempty"`

	// UserName is taken from the id_token, for display only.
	UserName string `json:"user_name,omitempty"`
}

// newState seeds a State from app settings.
func newState(settings Settings) *State {
	return &State{
		AppID:       settings.AppID,
		APIBase:     settings.APIBase,
		RedirectURI: settings.RedirectURI,
		Scopes:      settings.Scopes,
	}
}

// Marshal serializes the state for the session store.
func (s *State) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalState restores a state blob from the session store.
func UnmarshalState(data []byte) (*State, error) {
	state := &State{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	return state, nil
}
