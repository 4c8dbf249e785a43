package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
	"github.com/ericfisherdev/orgforge/internal/domain/port/driven"
)

// commitHistoryLimit caps how many commits are attached per task branch.
const commitHistoryLimit = 1000

// SyncService handles push-driven commit refresh and collaborator roster
// population.
type SyncService struct {
	repos     driven.RepositoryStore
	tasks     driven.TaskStore
	gitHost   driven.GitHost
	finalizer *Finalizer
	queue     *JobQueue
	orgSvc    *OrgService
}

// NewSyncService creates a SyncService with all required dependencies.
func NewSyncService(
	repos driven.RepositoryStore,
	tasks driven.TaskStore,
	gitHost driven.GitHost,
	finalizer *Finalizer,
	queue *JobQueue,
	orgSvc *OrgService,
) *SyncService {
	return &SyncService{
		repos:     repos,
		tasks:     tasks,
		gitHost:   gitHost,
		finalizer: finalizer,
		queue:     queue,
		orgSvc:    orgSvc,
	}
}

// QueueRefreshCommits enqueues a commit refresh for every task whose branch
// matches the pushed ref.
func (s *SyncService) QueueRefreshCommits(ctx context.Context, repositoryID, branchName string) error {
	return s.queue.Enqueue(Job{
		Name: "refresh_commits",
		Run: func(ctx context.Context) error {
			return s.RefreshCommits(ctx, repositoryID, branchName)
		},
	})
}

// RefreshCommits re-lists commits on the pushed branch for every task bound
// to it, newest first back to each task's origin sha, then recomputes review
// validity and finalizes each task.
func (s *SyncService) RefreshCommits(ctx context.Context, repositoryID, branchName string) error {
	repo, err := s.repos.Get(ctx, repositoryID)
	if err != nil {
		return err
	}
	repoInfo, err := s.orgSvc.resolveRepoInfo(ctx, repo)
	if err != nil {
		return err
	}

	tasks, err := s.tasks.ListByBranch(ctx, repositoryID, branchName)
	if err != nil {
		return err
	}

	for i := range tasks {
		task := &tasks[i]
		commits, err := s.gitHost.ListCommits(ctx, *repoInfo, branchName, task.OriginSHA, commitHistoryLimit)
		if err != nil {
			return &model.RemoteHostError{Op: "list commits", Err: err}
		}

		task.Commits = commits
		task.UpdateReviewValid()
		if err := s.finalizer.TaskUpdated(ctx, task); err != nil {
			return fmt.Errorf("finalize task %s: %w", task.ID, err)
		}
	}

	return nil
}

// QueuePopulateUsers marks the repository as fetching and enqueues the
// collaborator roster refresh.
func (s *SyncService) QueuePopulateUsers(ctx context.Context, repo *model.Repository) error {
	repo.CurrentlyFetchingUsers = true
	if err := s.finalizer.RepositoryUpdated(ctx, repo); err != nil {
		return err
	}
	return s.queue.Enqueue(Job{
		Name: "populate_github_users",
		Run: func(ctx context.Context) error {
			return s.PopulateGitHubUsers(ctx, repo.ID)
		},
	})
}

// PopulateGitHubUsers refreshes the repository's cached collaborator roster
// from the Git host.
func (s *SyncService) PopulateGitHubUsers(ctx context.Context, repositoryID string) error {
	repo, err := s.repos.Get(ctx, repositoryID)
	if err != nil {
		return err
	}

	fail := func(opErr error) error {
		repo.CurrentlyFetchingUsers = false
		if ferr := s.finalizer.RepositoryUpdateFailed(ctx, repo, opErr); ferr != nil {
			slog.Error("repository error finalize failed", "repository", repo.ID, "error", ferr)
		}
		return opErr
	}

	repoInfo, err := s.orgSvc.resolveRepoInfo(ctx, repo)
	if err != nil {
		return fail(err)
	}

	users, err := s.gitHost.ListCollaborators(ctx, *repoInfo)
	if err != nil {
		return fail(&model.RemoteHostError{Op: "list collaborators", Err: err})
	}

	repo.GitHubUsers = users
	repo.CurrentlyFetchingUsers = false
	return s.finalizer.RepositoryUpdated(ctx, repo)
}
