package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
)

// ErrSandboxGone reports that the remote sandbox behind a set of credentials
// no longer exists, typically because it expired or was deleted out of band.
var ErrSandboxGone = errors.New("sandbox no longer exists")

// SandboxProvisioner defines the driven port for the remote sandbox
// provisioner API.
type SandboxProvisioner interface {
	// CreateSandbox requests a new sandbox instance keyed by org type and a
	// named configuration. It blocks until the sandbox is active or the
	// context is canceled.
	CreateSandbox(ctx context.Context, orgType model.OrgType, configName string) (*model.SandboxInfo, error)

	// DeleteSandbox destroys the remote sandbox. Deleting an already-deleted
	// sandbox is a no-op, not an error.
	DeleteSandbox(ctx context.Context, creds model.OrgCredentials) error

	// RunFlow executes the named automation flow against the sandbox, with
	// projectDir as the local repository checkout the flow may read.
	RunFlow(ctx context.Context, creds model.OrgCredentials, flowName, projectDir string) error

	// RefreshCredentials exchanges the refresh token for a live access token.
	// Returns an error wrapping ErrSandboxGone when the grant is rejected
	// because the org behind it is gone.
	RefreshCredentials(ctx context.Context, creds model.OrgCredentials) (*model.OrgCredentials, error)
}
