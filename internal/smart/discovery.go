package smart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// smartConfiguration is the subset of the server's
// .well-known/smart-configuration document we need.
type smartConfiguration struct {
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	Capabilities          []string `json:"capabilities,omitempty"`
}

// discoverEndpoints fetches the server's SMART configuration and fills
// in the authorize and token endpoints. No-op when already discovered.
func (c *Client) discoverEndpoints(ctx context.Context) error {
	if c.state.AuthorizeEndpoint != "" && c.state.TokenEndpoint != "" {
		return nil
	}

	url := c.state.APIBase + "/.well-known/smart-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch smart configuration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch smart configuration: unexpected status %d", resp.StatusCode)
	}

	var cfg smartConfiguration
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return fmt.Errorf("decode smart configuration: %w", err)
	}
	if cfg.AuthorizationEndpoint == "" || cfg.TokenEndpoint == "" {
		return fmt.Errorf("smart configuration missing oauth endpoints")
	}

	c.state.AuthorizeEndpoint = cfg.AuthorizationEndpoint
	c.state.TokenEndpoint = cfg.TokenEndpoint
	return nil
}
