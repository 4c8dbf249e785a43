// Package salesforce implements the SandboxProvisioner and MetadataStore
// ports against the Salesforce REST, Tooling, and Metadata APIs.
package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ericfisherdev/orgforge/internal/domain/port/driven"
)

// apiVersion is the Salesforce API version every endpoint is pinned to.
const apiVersion = "v60.0"

// Client carries the connected-app identity and HTTP plumbing shared by the
// provisioner and the metadata store.
type Client struct {
	httpClient   *http.Client
	loginURL     string // OAuth host, e.g. https://login.salesforce.com
	clientID     string
	clientSecret string
}

// NewClient creates a Salesforce API client for the given connected app.
func NewClient(loginURL, clientID, clientSecret string) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		loginURL:     strings.TrimRight(loginURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client.
// Intended for testing.
func NewClientWithHTTPClient(httpClient *http.Client, loginURL, clientID, clientSecret string) *Client {
	return &Client{
		httpClient:   httpClient,
		loginURL:     strings.TrimRight(loginURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// tokenResponse is the OAuth token endpoint's response shape.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	InstanceURL  string `json:"instance_url"`
	ID           string `json:"id"`
}

// exchangeToken posts a grant to tokenHost's OAuth token endpoint.
func (c *Client) exchangeToken(ctx context.Context, tokenHost string, form url.Values) (*tokenResponse, error) {
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(tokenHost, "/")+"/services/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// A rejected grant means the org the token belongs to is gone:
		// expired scratch orgs invalidate their refresh tokens.
		var oauthErr struct {
			Code        string `json:"error"`
			Description string `json:"error_description"`
		}
		if json.Unmarshal(body, &oauthErr) == nil && oauthErr.Code == "invalid_grant" {
			return nil, fmt.Errorf("token exchange: %s: %w", oauthErr.Description, driven.ErrSandboxGone)
		}
		return nil, fmt.Errorf("token exchange: status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}

	return &tok, nil
}

// doJSON performs an authorized JSON request against an instance URL and
// decodes the response into out (when out is non-nil). Status codes outside
// 2xx return an error carrying the response body.
func (c *Client) doJSON(ctx context.Context, method, rawURL, accessToken string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apiError{Status: resp.StatusCode, Body: string(truncate(data, 500))}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

// apiError is a non-2xx Salesforce API response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("salesforce api status %d: %s", e.Status, e.Body)
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
