package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
	"github.com/ericfisherdev/orgforge/internal/domain/port/driven"
)

func makeTask(projectID, name string) model.Task {
	return model.Task{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		Status:    model.TaskStatusPlanned,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

// seedProject creates a repository and project for tasks to hang off.
func seedProject(t *testing.T, db *DB) (model.Repository, model.Project) {
	t.Helper()

	repo := seedRepository(t, db)
	project := makeProject(repo.ID, "Parent project")
	require.NoError(t, NewProjectStore(db).Create(context.Background(), project))
	return repo, project
}

func TestTaskStore_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	store := NewTaskStore(db)
	ctx := context.Background()
	_, project := seedProject(t, db)

	task := makeTask(project.ID, "Build the widget")
	task.OrgConfigName = "feature"
	require.NoError(t, store.Create(ctx, task))

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)

	assert.Equal(t, "Build the widget", got.Name)
	assert.Equal(t, "feature", got.OrgConfigName)
	assert.Equal(t, model.TaskStatusPlanned, got.Status)
	assert.Empty(t, got.Commits)
	assert.Empty(t, got.CapturedSHAs)
	assert.Nil(t, got.AssignedDev)
	assert.Nil(t, got.AssignedQA)
	assert.Nil(t, got.ReviewSubmittedAt)
}

func TestTaskStore_Get_NotFound(t *testing.T) {
	db := setupTestDB(t)
	store := NewTaskStore(db)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, driven.ErrTaskNotFound)
}

func TestTaskStore_Save_FullRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	store := NewTaskStore(db)
	ctx := context.Background()
	_, project := seedProject(t, db)

	task := makeTask(project.ID, "Build the widget")
	require.NoError(t, store.Create(ctx, task))

	reviewedAt := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	prNumber := 7
	task.BranchName = "parent-project__build-the-widget"
	task.OriginSHA = "abc123"
	task.Commits = []model.Commit{
		{SHA: "def456", Message: "capture changes", Author: &model.CommitAuthor{Name: "Alice"}},
	}
	task.CapturedSHAs = []string{"def456"}
	task.HasUnmergedCommits = true
	task.PRNumber = &prNumber
	task.PRIsOpen = true
	task.ReviewSubmittedAt = &reviewedAt
	task.ReviewValid = true
	task.ReviewStatus = model.ReviewStatusApproved
	task.ReviewSHA = "def456"
	task.Status = model.TaskStatusInProgress
	task.AssignedDev = &model.GitHubUser{ID: "u1", Login: "alice"}
	task.AssignedQA = &model.GitHubUser{ID: "u2", Login: "bob"}
	require.NoError(t, store.Save(ctx, task))

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)

	assert.Equal(t, "abc123", got.OriginSHA)
	require.Len(t, got.Commits, 1)
	assert.Equal(t, "def456", got.Commits[0].SHA)
	assert.Equal(t, []string{"def456"}, got.CapturedSHAs)
	require.NotNil(t, got.PRNumber)
	assert.Equal(t, 7, *got.PRNumber)
	require.NotNil(t, got.ReviewSubmittedAt)
	assert.True(t, got.ReviewSubmittedAt.Equal(reviewedAt))
	assert.True(t, got.ReviewValid)
	assert.Equal(t, model.ReviewStatusApproved, got.ReviewStatus)
	require.NotNil(t, got.AssignedDev)
	assert.Equal(t, "alice", got.AssignedDev.Login)
	require.NotNil(t, got.AssignedQA)
	assert.Equal(t, "bob", got.AssignedQA.Login)
}

func TestTaskStore_Save_NotFound(t *testing.T) {
	db := setupTestDB(t)
	store := NewTaskStore(db)

	err := store.Save(context.Background(), makeTask("missing-project", "Ghost"))
	assert.ErrorIs(t, err, driven.ErrTaskNotFound)
}

func TestTaskStore_ListByProject(t *testing.T) {
	db := setupTestDB(t)
	store := NewTaskStore(db)
	ctx := context.Background()
	_, project := seedProject(t, db)
	_, otherProject := seedProject(t, db)

	require.NoError(t, store.Create(ctx, makeTask(project.ID, "First")))
	require.NoError(t, store.Create(ctx, makeTask(project.ID, "Second")))
	require.NoError(t, store.Create(ctx, makeTask(otherProject.ID, "Elsewhere")))

	tasks, err := store.ListByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestTaskStore_ListByBranch(t *testing.T) {
	db := setupTestDB(t)
	store := NewTaskStore(db)
	ctx := context.Background()
	repo, project := seedProject(t, db)
	otherRepo, otherProject := seedProject(t, db)

	shared := makeTask(project.ID, "Shared branch task")
	shared.BranchName = "feature-x"
	require.NoError(t, store.Create(ctx, shared))

	unrelated := makeTask(project.ID, "Different branch")
	unrelated.BranchName = "feature-y"
	require.NoError(t, store.Create(ctx, unrelated))

	// Same branch name in another repository must not match.
	foreign := makeTask(otherProject.ID, "Foreign task")
	foreign.BranchName = "feature-x"
	require.NoError(t, store.Create(ctx, foreign))

	tasks, err := store.ListByBranch(ctx, repo.ID, "feature-x")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, shared.ID, tasks[0].ID)

	tasks, err = store.ListByBranch(ctx, otherRepo.ID, "feature-x")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, foreign.ID, tasks[0].ID)
}

func TestTaskStore_ListStatusesByProject(t *testing.T) {
	db := setupTestDB(t)
	store := NewTaskStore(db)
	ctx := context.Background()
	_, project := seedProject(t, db)

	inProgress := makeTask(project.ID, "Started")
	inProgress.Status = model.TaskStatusInProgress
	require.NoError(t, store.Create(ctx, makeTask(project.ID, "Waiting")))
	require.NoError(t, store.Create(ctx, inProgress))

	statuses, err := store.ListStatusesByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.TaskStatus{model.TaskStatusPlanned, model.TaskStatusInProgress}, statuses)
}

func TestTaskStore_RestrictDeleteProject(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, project := seedProject(t, db)

	require.NoError(t, NewTaskStore(db).Create(ctx, makeTask(project.ID, "Live task")))

	_, err := db.Writer.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, project.ID)
	assert.Error(t, err, "projects with live tasks are restrict-deleted")
}
