package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
)

// Sentinel errors returned by store implementations.
var (
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrProjectNotFound    = errors.New("project not found")
	ErrTaskNotFound       = errors.New("task not found")
	ErrScratchOrgNotFound = errors.New("scratch org not found")
)

// RepositoryStore defines the driven port for repository persistence.
type RepositoryStore interface {
	Create(ctx context.Context, repo model.Repository) error
	Get(ctx context.Context, id string) (*model.Repository, error)
	ListAll(ctx context.Context) ([]model.Repository, error)
	// Save persists the full current state of an existing repository.
	Save(ctx context.Context, repo model.Repository) error
}

// ProjectStore defines the driven port for project persistence. Projects are
// restrict-deleted: deleting a project with live tasks fails at the schema.
type ProjectStore interface {
	Create(ctx context.Context, project model.Project) error
	Get(ctx context.Context, id string) (*model.Project, error)
	ListByRepository(ctx context.Context, repositoryID string) ([]model.Project, error)
	Save(ctx context.Context, project model.Project) error
}

// TaskStore defines the driven port for task persistence.
type TaskStore interface {
	Create(ctx context.Context, task model.Task) error
	Get(ctx context.Context, id string) (*model.Task, error)
	ListByProject(ctx context.Context, projectID string) ([]model.Task, error)
	// ListByBranch returns every task of the repository's projects whose
	// branch is the named one. Commits ingested for a branch attach to all
	// tasks sharing it.
	ListByBranch(ctx context.Context, repositoryID, branchName string) ([]model.Task, error)
	// ListStatusesByProject returns just the statuses of the project's tasks,
	// used to derive the project status.
	ListStatusesByProject(ctx context.Context, projectID string) ([]model.TaskStatus, error)
	Save(ctx context.Context, task model.Task) error
}

// ScratchOrgStore defines the driven port for scratch org persistence.
type ScratchOrgStore interface {
	Create(ctx context.Context, org model.ScratchOrg) error
	Get(ctx context.Context, id string) (*model.ScratchOrg, error)
	ListByTask(ctx context.Context, taskID string) ([]model.ScratchOrg, error)
	Save(ctx context.Context, org model.ScratchOrg) error
	// Delete removes the record. Deleting an already-deleted org is a no-op.
	Delete(ctx context.Context, id string) error
}
