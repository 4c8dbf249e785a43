package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
	"github.com/ericfisherdev/orgforge/internal/domain/port/driven"
)

// Provisioner creates and destroys scratch orgs through a Dev Hub org's
// Tooling API and runs setup flows inside the resulting orgs.
type Provisioner struct {
	client *Client

	// devhub holds the configured Dev Hub credentials. The access token is
	// exchanged from the refresh token on first use and cached; mu guards the
	// token field. InstanceURL is never mutated after construction.
	mu     sync.Mutex
	devhub model.OrgCredentials
}

var _ driven.SandboxProvisioner = (*Provisioner)(nil)

// NewProvisioner creates a Provisioner bound to the given Dev Hub credentials.
// A refresh token is sufficient; a bearer token is obtained lazily.
func NewProvisioner(client *Client, devhub model.OrgCredentials) *Provisioner {
	return &Provisioner{client: client, devhub: devhub}
}

// devhubToken returns a bearer token for Dev Hub API calls, exchanging the
// configured refresh token when no cached token is held.
func (p *Provisioner) devhubToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.devhub.AccessToken != "" {
		return p.devhub.AccessToken, nil
	}

	refreshed, err := p.RefreshCredentials(ctx, p.devhub)
	if err != nil {
		return "", fmt.Errorf("authenticating dev hub: %w", err)
	}
	p.devhub.AccessToken = refreshed.AccessToken

	return p.devhub.AccessToken, nil
}

// invalidateDevhubToken discards the cached bearer token if it is still the
// one that just failed, forcing a fresh exchange on the next call.
func (p *Provisioner) invalidateDevhubToken(stale string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.devhub.AccessToken == stale {
		p.devhub.AccessToken = ""
	}
}

// devhubJSON performs an authenticated Dev Hub API call. An expired cached
// token is exchanged again and the call retried once.
func (p *Provisioner) devhubJSON(ctx context.Context, method, rawURL string, payload, out any) error {
	token, err := p.devhubToken(ctx)
	if err != nil {
		return err
	}

	err = p.client.doJSON(ctx, method, rawURL, token, payload, out)

	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		p.invalidateDevhubToken(token)
		if token, err = p.devhubToken(ctx); err != nil {
			return err
		}
		return p.client.doJSON(ctx, method, rawURL, token, payload, out)
	}

	return err
}

// scratchOrgDurationDays is the lifetime requested for every scratch org.
const scratchOrgDurationDays = 30

// scratchOrgInfo mirrors the ScratchOrgInfo Tooling API object fields we use.
type scratchOrgInfo struct {
	ID             string `json:"Id"`
	Status         string `json:"Status"`
	ErrorCode      string `json:"ErrorCode"`
	SignupUsername string `json:"SignupUsername"`
	SignupInstance string `json:"SignupInstance"`
	AuthCode       string `json:"AuthCode"`
	LoginURL       string `json:"LoginUrl"`
	ScratchOrg     string `json:"ScratchOrg"`
	ExpirationDate string `json:"ExpirationDate"`
}

// CreateSandbox requests a new scratch org from the Dev Hub and waits until
// it is active, then exchanges the signup auth code for credentials.
func (p *Provisioner) CreateSandbox(ctx context.Context, orgType model.OrgType, configName string) (*model.SandboxInfo, error) {
	payload := map[string]any{
		"Edition":       "Developer",
		"OrgName":       fmt.Sprintf("orgforge %s org", orgType),
		"ConnectedAppConsumerKey": p.client.clientID,
		"ConnectedAppCallbackUrl": p.client.loginURL + "/services/oauth2/callback",
		"DurationDays":  scratchOrgDurationDays,
		"Description":   configName,
		"HasSampleData": false,
	}

	var created struct {
		ID string `json:"id"`
	}
	createURL := p.devhub.InstanceURL + "/services/data/" + apiVersion + "/tooling/sobjects/ScratchOrgInfo"
	if err := p.devhubJSON(ctx, "POST", createURL, payload, &created); err != nil {
		return nil, &model.ProvisioningError{Step: "request_org", Err: err}
	}

	info, err := p.waitForActive(ctx, created.ID)
	if err != nil {
		return nil, &model.ProvisioningError{Step: "await_org", Err: err}
	}

	creds, err := p.authenticate(ctx, info)
	if err != nil {
		return nil, &model.ProvisioningError{Step: "authenticate", Err: err}
	}

	expires, _ := time.Parse("2006-01-02", info.ExpirationDate)

	return &model.SandboxInfo{
		SandboxID:   info.ScratchOrg,
		InstanceURL: creds.InstanceURL,
		ExpiresAt:   expires,
		Credentials: *creds,
	}, nil
}

// waitForActive polls the ScratchOrgInfo record until it leaves the pending
// states. Signup usually completes within a minute but can take several.
func (p *Provisioner) waitForActive(ctx context.Context, recordID string) (*scratchOrgInfo, error) {
	infoURL := p.devhub.InstanceURL + "/services/data/" + apiVersion + "/tooling/sobjects/ScratchOrgInfo/" + recordID

	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(2*time.Second),
		backoff.WithMaxInterval(15*time.Second),
		backoff.WithMaxElapsedTime(10*time.Minute),
	), ctx)

	var info scratchOrgInfo
	operation := func() error {
		info = scratchOrgInfo{}
		if err := p.devhubJSON(ctx, "GET", infoURL, nil, &info); err != nil {
			return backoff.Permanent(err)
		}
		switch info.Status {
		case "Active":
			return nil
		case "Error", "Deleted":
			return backoff.Permanent(fmt.Errorf("scratch org signup failed: status %s code %s", info.Status, info.ErrorCode))
		default:
			return fmt.Errorf("scratch org not ready: status %s", info.Status)
		}
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	return &info, nil
}

// authenticate exchanges the one-time signup auth code for org credentials.
func (p *Provisioner) authenticate(ctx context.Context, info *scratchOrgInfo) (*model.OrgCredentials, error) {
	host := info.LoginURL
	if host == "" {
		host = "https://" + info.SignupInstance + ".salesforce.com"
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", info.AuthCode)

	tok, err := p.client.exchangeToken(ctx, host, form)
	if err != nil {
		return nil, err
	}

	return &model.OrgCredentials{
		OrgID:        info.ScratchOrg,
		Username:     info.SignupUsername,
		InstanceURL:  tok.InstanceURL,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}, nil
}

// DeleteSandbox removes the ActiveScratchOrg record backing the given org,
// which causes the platform to reclaim it. Deleting an org that is already
// gone is not an error.
func (p *Provisioner) DeleteSandbox(ctx context.Context, creds model.OrgCredentials) error {
	soql := fmt.Sprintf("SELECT Id FROM ActiveScratchOrg WHERE ScratchOrg = '%s'", sanitizeID(creds.OrgID))
	queryURL := p.devhub.InstanceURL + "/services/data/" + apiVersion + "/tooling/query/?q=" + url.QueryEscape(soql)

	var result struct {
		Records []struct {
			ID string `json:"Id"`
		} `json:"records"`
	}
	if err := p.devhubJSON(ctx, "GET", queryURL, nil, &result); err != nil {
		return fmt.Errorf("looking up active scratch org: %w", err)
	}

	if len(result.Records) == 0 {
		slog.Info("scratch org already deleted", "org_id", creds.OrgID)
		return nil
	}

	deleteURL := p.devhub.InstanceURL + "/services/data/" + apiVersion + "/tooling/sobjects/ActiveScratchOrg/" + result.Records[0].ID
	if err := p.devhubJSON(ctx, "DELETE", deleteURL, nil, nil); err != nil {
		return fmt.Errorf("deleting active scratch org: %w", err)
	}

	return nil
}

// RunFlow invokes an autolaunched flow in the org by name. Flow inputs, when
// present, are read from orgs/<flowName>.json under the project checkout.
func (p *Provisioner) RunFlow(ctx context.Context, creds model.OrgCredentials, flowName, projectDir string) error {
	inputs, err := loadFlowInputs(projectDir, flowName)
	if err != nil {
		return fmt.Errorf("loading inputs for flow %s: %w", flowName, err)
	}

	flowURL := creds.InstanceURL + "/services/data/" + apiVersion + "/actions/custom/flow/" + url.PathEscape(flowName)

	var results []struct {
		IsSuccess bool `json:"isSuccess"`
		Errors    []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := p.client.doJSON(ctx, "POST", flowURL, creds.AccessToken, map[string]any{"inputs": inputs}, &results); err != nil {
		return fmt.Errorf("invoking flow %s: %w", flowName, err)
	}

	for _, r := range results {
		if !r.IsSuccess {
			msg := "unknown error"
			if len(r.Errors) > 0 {
				msg = r.Errors[0].Message
			}
			return fmt.Errorf("flow %s failed: %s", flowName, msg)
		}
	}

	return nil
}

// loadFlowInputs reads optional flow input parameters from the checkout.
// A missing file means the flow takes no inputs.
func loadFlowInputs(projectDir, flowName string) ([]map[string]any, error) {
	data, err := os.ReadFile(filepath.Join(projectDir, "orgs", flowName+".json"))
	if os.IsNotExist(err) {
		return []map[string]any{{}}, nil
	}
	if err != nil {
		return nil, err
	}

	var inputs map[string]any
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("parsing %s.json: %w", flowName, err)
	}

	return []map[string]any{inputs}, nil
}

// RefreshCredentials obtains a fresh access token using the org's refresh
// token and returns updated credentials.
func (p *Provisioner) RefreshCredentials(ctx context.Context, creds model.OrgCredentials) (*model.OrgCredentials, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", creds.RefreshToken)

	tok, err := p.client.exchangeToken(ctx, p.client.loginURL, form)
	if err != nil {
		return nil, fmt.Errorf("refreshing org credentials: %w", err)
	}

	refreshed := creds
	refreshed.AccessToken = tok.AccessToken
	if tok.InstanceURL != "" {
		refreshed.InstanceURL = tok.InstanceURL
	}

	return &refreshed, nil
}

// sanitizeID strips characters that would break out of a SOQL string literal.
// Salesforce IDs are strictly alphanumeric.
func sanitizeID(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
		}
	}
	return string(out)
}
