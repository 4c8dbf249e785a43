package salesforce

import (
	"context"
	"net/url"
	"strings"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
	"github.com/ericfisherdev/orgforge/internal/domain/port/driven"
)

// MetadataAPI implements the metadata store port against a live org's
// Tooling and Metadata APIs.
type MetadataAPI struct {
	client *Client
}

var _ driven.MetadataStore = (*MetadataAPI)(nil)

// NewMetadataAPI creates a MetadataAPI sharing the given client's plumbing.
func NewMetadataAPI(client *Client) *MetadataAPI {
	return &MetadataAPI{client: client}
}

// sourceMemberQuery selects the revision counter for every tracked member
// that has not been deleted in the org.
const sourceMemberQuery = "SELECT MemberName, MemberType, RevisionCounter FROM SourceMember WHERE IsNameObsolete = false"

// sourceMemberRecord is one row of the SourceMember tracking table.
type sourceMemberRecord struct {
	MemberName      string `json:"MemberName"`
	MemberType      string `json:"MemberType"`
	RevisionCounter int    `json:"RevisionCounter"`
}

type toolingQueryResult struct {
	Done           bool                 `json:"done"`
	NextRecordsURL string               `json:"nextRecordsUrl"`
	Records        []sourceMemberRecord `json:"records"`
}

// FetchRevisionSnapshot queries the org's source tracking table and returns
// the revision counters grouped by member type and name.
func (m *MetadataAPI) FetchRevisionSnapshot(ctx context.Context, creds model.OrgCredentials) (model.RevisionSnapshot, error) {
	queryURL := creds.InstanceURL + "/services/data/" + apiVersion + "/tooling/query/?q=" + url.QueryEscape(sourceMemberQuery)

	snapshot := make(model.RevisionSnapshot)
	for queryURL != "" {
		var page toolingQueryResult
		if err := m.client.doJSON(ctx, "GET", queryURL, creds.AccessToken, nil, &page); err != nil {
			return nil, &model.RemoteQueryError{Op: "fetch revision snapshot", Err: err}
		}

		for _, rec := range page.Records {
			snapshot.Set(rec.MemberType, rec.MemberName, rec.RevisionCounter)
		}

		if page.Done || page.NextRecordsURL == "" {
			queryURL = ""
		} else {
			queryURL = creds.InstanceURL + page.NextRecordsURL
		}
	}

	return snapshot, nil
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func xmlEscape(s string) string {
	return xmlEscaper.Replace(s)
}
