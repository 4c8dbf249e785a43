package ws

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/orgforge/internal/domain/port/driven"
)

// Visibility decides whether a user may subscribe to an entity's stream.
type Visibility interface {
	Subscribable(ctx context.Context, kind, id, userID string) (bool, error)
}

// StoreVisibility checks subscriptions against the persisted entities. An
// entity that does not exist is not subscribable.
type StoreVisibility struct {
	repos    driven.RepositoryStore
	projects driven.ProjectStore
	tasks    driven.TaskStore
	orgs     driven.ScratchOrgStore
}

// NewStoreVisibility creates a StoreVisibility over the given stores.
func NewStoreVisibility(
	repos driven.RepositoryStore,
	projects driven.ProjectStore,
	tasks driven.TaskStore,
	orgs driven.ScratchOrgStore,
) *StoreVisibility {
	return &StoreVisibility{repos: repos, projects: projects, tasks: tasks, orgs: orgs}
}

// Subscribable resolves the entity and applies its per-user visibility rule.
// An unknown kind is an error, not a silent refusal.
func (v *StoreVisibility) Subscribable(ctx context.Context, kind, id, userID string) (bool, error) {
	switch kind {
	case driven.KindRepository:
		repo, err := v.repos.Get(ctx, id)
		if err != nil {
			return false, err
		}
		return repo.SubscribableBy(userID), nil

	case driven.KindProject:
		project, err := v.projects.Get(ctx, id)
		if err != nil {
			return false, err
		}
		return project.SubscribableBy(userID), nil

	case driven.KindTask:
		task, err := v.tasks.Get(ctx, id)
		if err != nil {
			return false, err
		}
		return task.SubscribableBy(userID), nil

	case driven.KindScratchOrg:
		org, err := v.orgs.Get(ctx, id)
		if err != nil {
			return false, err
		}
		return org.SubscribableBy(userID), nil

	default:
		return false, fmt.Errorf("unknown model kind %q", kind)
	}
}
