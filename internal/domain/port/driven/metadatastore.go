package driven

import (
	"context"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
)

// MetadataStore defines the driven port for the remote metadata store's query
// and retrieval surface.
type MetadataStore interface {
	// FetchRevisionSnapshot queries revision counters for all non-obsolete
	// members, grouped by member type then name. Transport or auth failure
	// surfaces *model.RemoteQueryError.
	FetchRevisionSnapshot(ctx context.Context, creds model.OrgCredentials) (model.RevisionSnapshot, error)

	// RetrieveMembers pulls the named members out of the live org and
	// materializes them as files under targetDir. metadataFormat selects the
	// legacy metadata layout over the structured source layout.
	RetrieveMembers(ctx context.Context, creds model.OrgCredentials, members model.ChangeSet, targetDir string, metadataFormat bool) error
}
