package salesforce

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/orgforge/internal/archive"
	"github.com/ericfisherdev/orgforge/internal/domain/model"
)

// metadataAPIVersion is the numeric version used in SOAP envelopes and
// package manifests.
const metadataAPIVersion = "60.0"

// RetrieveMembers pulls the named members out of the org through the Metadata
// API's retrieve call and unpacks the resulting archive under targetDir.
// metadataFormat keeps the package manifest alongside the retrieved files;
// the structured source layout drops it.
func (m *MetadataAPI) RetrieveMembers(ctx context.Context, creds model.OrgCredentials, members model.ChangeSet, targetDir string, metadataFormat bool) error {
	if !members.HasChanges() {
		return nil
	}

	asyncID, err := m.startRetrieve(ctx, creds, members)
	if err != nil {
		return fmt.Errorf("starting retrieve: %w", err)
	}

	zipData, err := m.awaitRetrieve(ctx, creds, asyncID)
	if err != nil {
		return fmt.Errorf("awaiting retrieve %s: %w", asyncID, err)
	}

	return m.unpackRetrieve(zipData, targetDir, metadataFormat)
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

type retrieveStartResponse struct {
	Fault *soapFault `xml:"Body>Fault"`
	ID    string     `xml:"Body>retrieveResponse>result>id"`
}

type retrieveStatusResponse struct {
	Fault        *soapFault `xml:"Body>Fault"`
	Done         bool       `xml:"Body>checkRetrieveStatusResponse>result>done"`
	Status       string     `xml:"Body>checkRetrieveStatusResponse>result>status"`
	ErrorMessage string     `xml:"Body>checkRetrieveStatusResponse>result>errorMessage"`
	ZipFile      string     `xml:"Body>checkRetrieveStatusResponse>result>zipFile"`
}

// startRetrieve submits the retrieve request and returns the async job id.
func (m *MetadataAPI) startRetrieve(ctx context.Context, creds model.OrgCredentials, members model.ChangeSet) (string, error) {
	var types strings.Builder
	typeNames := make([]string, 0, len(members))
	for mt := range members {
		typeNames = append(typeNames, mt)
	}
	sort.Strings(typeNames)
	for _, mt := range typeNames {
		types.WriteString("<types>")
		for _, mn := range members[mt] {
			types.WriteString("<members>" + xmlEscape(mn) + "</members>")
		}
		types.WriteString("<name>" + xmlEscape(mt) + "</name>")
		types.WriteString("</types>")
	}

	body := fmt.Sprintf(`<met:retrieve><met:retrieveRequest>`+
		`<met:apiVersion>%s</met:apiVersion>`+
		`<met:singlePackage>true</met:singlePackage>`+
		`<met:unpackaged>%s<version>%s</version></met:unpackaged>`+
		`</met:retrieveRequest></met:retrieve>`,
		metadataAPIVersion, types.String(), metadataAPIVersion)

	var result retrieveStartResponse
	if err := m.soapCall(ctx, creds, body, &result); err != nil {
		return "", err
	}
	if result.Fault != nil {
		return "", fmt.Errorf("retrieve fault %s: %s", result.Fault.FaultCode, result.Fault.FaultString)
	}
	if result.ID == "" {
		return "", fmt.Errorf("retrieve returned no job id")
	}

	return result.ID, nil
}

// awaitRetrieve polls the retrieve job until it finishes and returns the
// decoded archive bytes.
func (m *MetadataAPI) awaitRetrieve(ctx context.Context, creds model.OrgCredentials, asyncID string) ([]byte, error) {
	body := fmt.Sprintf(`<met:checkRetrieveStatus>`+
		`<met:asyncProcessId>%s</met:asyncProcessId>`+
		`<met:includeZip>true</met:includeZip>`+
		`</met:checkRetrieveStatus>`, xmlEscape(asyncID))

	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(time.Second),
		backoff.WithMaxInterval(10*time.Second),
		backoff.WithMaxElapsedTime(5*time.Minute),
	), ctx)

	var status retrieveStatusResponse
	operation := func() error {
		status = retrieveStatusResponse{}
		if err := m.soapCall(ctx, creds, body, &status); err != nil {
			return backoff.Permanent(err)
		}
		if status.Fault != nil {
			return backoff.Permanent(fmt.Errorf("status fault %s: %s", status.Fault.FaultCode, status.Fault.FaultString))
		}
		if !status.Done {
			return fmt.Errorf("retrieve in progress: %s", status.Status)
		}
		if status.Status != "Succeeded" {
			return backoff.Permanent(fmt.Errorf("retrieve %s: %s", status.Status, status.ErrorMessage))
		}
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	zipData, err := base64.StdEncoding.DecodeString(status.ZipFile)
	if err != nil {
		return nil, fmt.Errorf("decoding archive: %w", err)
	}

	return zipData, nil
}

// unpackRetrieve writes the archive to a temp file and safely extracts it.
func (m *MetadataAPI) unpackRetrieve(zipData []byte, targetDir string, metadataFormat bool) error {
	tmp, err := os.CreateTemp("", "orgforge-retrieve-*.zip")
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(zipData); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp archive: %w", err)
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("creating target dir: %w", err)
	}

	if err := archive.SafeExtract(tmp.Name(), targetDir, archive.KeepAll); err != nil {
		return fmt.Errorf("extracting retrieve archive: %w", err)
	}

	if !metadataFormat {
		// Source layout carries its manifest in sfdx-project.json instead.
		if err := os.Remove(filepath.Join(targetDir, "package.xml")); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing manifest: %w", err)
		}
	}

	return nil
}

// soapCall posts a Metadata API SOAP envelope and decodes the response.
func (m *MetadataAPI) soapCall(ctx context.Context, creds model.OrgCredentials, body string, out any) error {
	envelope := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:met="http://soap.sforce.com/2006/04/metadata">` +
		`<soapenv:Header><met:SessionHeader><met:sessionId>` + xmlEscape(creds.AccessToken) + `</met:sessionId></met:SessionHeader></soapenv:Header>` +
		`<soapenv:Body>` + body + `</soapenv:Body>` +
		`</soapenv:Envelope>`

	endpoint := creds.InstanceURL + "/services/Soap/m/" + metadataAPIVersion

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(envelope))
	if err != nil {
		return fmt.Errorf("building soap request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=UTF-8")
	req.Header.Set("SOAPAction", `""`)

	resp, err := m.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("soap request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading soap response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusInternalServerError {
		return &apiError{Status: resp.StatusCode, Body: string(truncate(data, 500))}
	}

	if err := xml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding soap response: %w", err)
	}

	return nil
}
