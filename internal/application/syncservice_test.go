package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
)

func newSyncService(f *orgFixture) *SyncService {
	return NewSyncService(f.repos, f.tasks, f.gitHost, f.svc.finalizer, f.queue, f.svc)
}

func TestRefreshCommits(t *testing.T) {
	f := newOrgFixture(t)
	svc := newSyncService(f)
	ctx := context.Background()

	task, err := f.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	task.ReviewSHA = "new-head"
	require.NoError(t, f.tasks.Save(ctx, *task))

	var gotBranch, gotSince string
	f.gitHost.listCommitsFn = func(ctx context.Context, repo model.RepoInfo, branch, sinceSHA string, limit int) ([]model.Commit, error) {
		gotBranch, gotSince = branch, sinceSHA
		assert.Equal(t, 1000, limit)
		return []model.Commit{{SHA: "new-head"}, {SHA: "older"}}, nil
	}

	require.NoError(t, svc.RefreshCommits(ctx, "repo-1", "feature-widget-rework__add-button"))

	assert.Equal(t, "feature-widget-rework__add-button", gotBranch)
	assert.Equal(t, "origin-sha", gotSince)

	task, err = f.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, task.Commits, 2)
	assert.Equal(t, "new-head", task.Commits[0].SHA)
	// The recorded review targets the new head again.
	assert.True(t, task.ReviewValid)
	assert.Equal(t, 1, f.notifier.countEvent(EventTaskUpdate))
}

func TestRefreshCommits_InvalidatesStaleReview(t *testing.T) {
	f := newOrgFixture(t)
	svc := newSyncService(f)
	ctx := context.Background()

	task, err := f.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	task.ReviewSHA = "reviewed-sha"
	task.ReviewValid = true
	require.NoError(t, f.tasks.Save(ctx, *task))

	f.gitHost.listCommitsFn = func(ctx context.Context, repo model.RepoInfo, branch, sinceSHA string, limit int) ([]model.Commit, error) {
		return []model.Commit{{SHA: "newer-sha"}, {SHA: "reviewed-sha"}}, nil
	}

	require.NoError(t, svc.RefreshCommits(ctx, "repo-1", "feature-widget-rework__add-button"))

	task, err = f.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.False(t, task.ReviewValid)
}

func TestRefreshCommits_NoMatchingTasks(t *testing.T) {
	f := newOrgFixture(t)
	svc := newSyncService(f)
	ctx := context.Background()

	called := false
	f.gitHost.listCommitsFn = func(ctx context.Context, repo model.RepoInfo, branch, sinceSHA string, limit int) ([]model.Commit, error) {
		called = true
		return nil, nil
	}

	require.NoError(t, svc.RefreshCommits(ctx, "repo-1", "some-unrelated-branch"))
	assert.False(t, called)
	assert.Empty(t, f.notifier.eventNames())
}

func TestPopulateGitHubUsers(t *testing.T) {
	f := newOrgFixture(t)
	svc := newSyncService(f)
	ctx := context.Background()

	repo, err := f.repos.Get(ctx, "repo-1")
	require.NoError(t, err)
	repo.CurrentlyFetchingUsers = true
	require.NoError(t, f.repos.Save(ctx, *repo))

	f.gitHost.listCollaboratorsFn = func(ctx context.Context, repo model.RepoInfo) ([]model.GitHubUser, error) {
		return []model.GitHubUser{
			{ID: "u1", Login: "alice"},
			{ID: "u2", Login: "bob"},
		}, nil
	}

	require.NoError(t, svc.PopulateGitHubUsers(ctx, "repo-1"))

	repo, err = f.repos.Get(ctx, "repo-1")
	require.NoError(t, err)
	assert.False(t, repo.CurrentlyFetchingUsers)
	require.Len(t, repo.GitHubUsers, 2)
	assert.Equal(t, "alice", repo.GitHubUsers[0].Login)
	assert.Equal(t, 1, f.notifier.countEvent(EventRepositoryUpdate))
}

func TestPopulateGitHubUsers_Failure(t *testing.T) {
	f := newOrgFixture(t)
	svc := newSyncService(f)
	ctx := context.Background()

	repo, err := f.repos.Get(ctx, "repo-1")
	require.NoError(t, err)
	repo.CurrentlyFetchingUsers = true
	require.NoError(t, f.repos.Save(ctx, *repo))

	f.gitHost.listCollaboratorsFn = func(ctx context.Context, repo model.RepoInfo) ([]model.GitHubUser, error) {
		return nil, errors.New("403")
	}

	err = svc.PopulateGitHubUsers(ctx, "repo-1")
	require.Error(t, err)

	var hostErr *model.RemoteHostError
	assert.ErrorAs(t, err, &hostErr)

	repo, err = f.repos.Get(ctx, "repo-1")
	require.NoError(t, err)
	assert.False(t, repo.CurrentlyFetchingUsers)
	assert.Empty(t, repo.GitHubUsers)
	assert.Equal(t, 1, f.notifier.countEvent(EventRepositoryUpdateError))
}

func TestQueuePopulateUsers(t *testing.T) {
	f := newOrgFixture(t)
	svc := newSyncService(f)
	ctx := context.Background()

	repo, err := f.repos.Get(ctx, "repo-1")
	require.NoError(t, err)
	require.NoError(t, svc.QueuePopulateUsers(ctx, repo))

	saved, err := f.repos.Get(ctx, "repo-1")
	require.NoError(t, err)
	assert.True(t, saved.CurrentlyFetchingUsers)
	assert.Equal(t, 1, f.notifier.countEvent(EventRepositoryUpdate))
	assert.Len(t, f.queue.jobs, 1)
}
