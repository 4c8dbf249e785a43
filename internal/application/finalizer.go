package application

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
	"github.com/ericfisherdev/orgforge/internal/domain/port/driven"
)

// Finalizer terminates lifecycle operations: it performs the durable write
// first, then emits exactly one notification. Every job ends in exactly one
// finalize call, success or error.
type Finalizer struct {
	repos    driven.RepositoryStore
	projects driven.ProjectStore
	tasks    driven.TaskStore
	orgs     driven.ScratchOrgStore
	notifier driven.Notifier
}

// NewFinalizer creates a Finalizer over the given stores and notifier.
func NewFinalizer(
	repos driven.RepositoryStore,
	projects driven.ProjectStore,
	tasks driven.TaskStore,
	orgs driven.ScratchOrgStore,
	notifier driven.Notifier,
) *Finalizer {
	return &Finalizer{
		repos:    repos,
		projects: projects,
		tasks:    tasks,
		orgs:     orgs,
		notifier: notifier,
	}
}

// saveOrg persists the org and pushes the given event with its serialized
// representation.
func (f *Finalizer) saveOrg(ctx context.Context, org *model.ScratchOrg, event string) error {
	org.Config = org.Config.Clean()
	if err := f.orgs.Save(ctx, *org); err != nil {
		return fmt.Errorf("finalize scratch org %s: %w", org.ID, err)
	}
	f.notifier.Notify(driven.KindScratchOrg, org.ID, event, map[string]any{
		"model": SerializeScratchOrg(*org),
	})
	return nil
}

// orgError persists the org state and pushes an error event attributed to the
// originating user.
func (f *Finalizer) orgError(ctx context.Context, org *model.ScratchOrg, event string, opErr error) error {
	org.Config = org.Config.Clean()
	if err := f.orgs.Save(ctx, *org); err != nil {
		return fmt.Errorf("finalize scratch org %s: %w", org.ID, err)
	}
	f.notifier.NotifyError(driven.KindScratchOrg, org.ID, event, opErr, map[string]any{
		"originating_user_id": org.OwnerID,
	})
	return nil
}

// ProvisionSucceeded records a fully provisioned org.
func (f *Finalizer) ProvisionSucceeded(ctx context.Context, org *model.ScratchOrg) error {
	return f.saveOrg(ctx, org, EventScratchOrgProvision)
}

// ProvisionFailed tears down after a failed provision. When the remote
// sandbox was created (URL set) the record survives with a queued remote
// delete; otherwise the local record is removed outright.
func (f *Finalizer) ProvisionFailed(ctx context.Context, org *model.ScratchOrg, opErr error) error {
	if org.URL != "" {
		now := time.Now().UTC()
		org.DeleteQueuedAt = &now
		org.Config = org.Config.Clean()
		if err := f.orgs.Save(ctx, *org); err != nil {
			return fmt.Errorf("finalize failed provision %s: %w", org.ID, err)
		}
	} else {
		if err := f.orgs.Delete(ctx, org.ID); err != nil {
			return fmt.Errorf("finalize failed provision %s: %w", org.ID, err)
		}
	}
	f.notifier.NotifyError(driven.KindScratchOrg, org.ID, EventScratchOrgProvisionFailed, opErr, map[string]any{
		"originating_user_id": org.OwnerID,
	})
	return nil
}

// RefreshSucceeded records a refreshed org.
func (f *Finalizer) RefreshSucceeded(ctx context.Context, org *model.ScratchOrg) error {
	org.CurrentlyRefreshingOrg = false
	return f.saveOrg(ctx, org, EventScratchOrgRefresh)
}

// RefreshFailed records a failed refresh and queues the org for deletion.
func (f *Finalizer) RefreshFailed(ctx context.Context, org *model.ScratchOrg, opErr error) error {
	now := time.Now().UTC()
	org.CurrentlyRefreshingOrg = false
	org.DeleteQueuedAt = &now
	return f.orgError(ctx, org, EventScratchOrgRefreshFailed, opErr)
}

// DeleteSucceeded removes the local record. The deletion notification is
// suppressed when provisioning never completed, since subscribers were never
// told the org existed.
func (f *Finalizer) DeleteSucceeded(ctx context.Context, org *model.ScratchOrg) error {
	if err := f.orgs.Delete(ctx, org.ID); err != nil {
		return fmt.Errorf("finalize delete %s: %w", org.ID, err)
	}
	if org.LastModifiedAt != nil {
		f.notifier.Notify(driven.KindScratchOrg, org.ID, EventScratchOrgDelete, map[string]any{
			"model": SerializeScratchOrg(*org),
		})
	}
	return nil
}

// DeleteFailed clears the queued-delete marker so the org can be retried, and
// backfills the fields a failed provision may have left unset so the record
// is fully usable again.
func (f *Finalizer) DeleteFailed(ctx context.Context, org *model.ScratchOrg, opErr error) error {
	org.DeleteQueuedAt = nil
	if org.LastModifiedAt == nil {
		now := time.Now().UTC()
		org.LastModifiedAt = &now
	}
	if org.LatestRevisionNumbers == nil {
		org.LatestRevisionNumbers = model.RevisionSnapshot{}
	}
	return f.orgError(ctx, org, EventScratchOrgDeleteFailed, opErr)
}

// OrgVanished removes the local record for an org whose remote sandbox turned
// out to be gone, and tells subscribers to drop it rather than show a failure
// on an org that no longer exists.
func (f *Finalizer) OrgVanished(ctx context.Context, org *model.ScratchOrg, opErr error) error {
	if err := f.orgs.Delete(ctx, org.ID); err != nil {
		return fmt.Errorf("finalize vanished org %s: %w", org.ID, err)
	}
	f.notifier.NotifyError(driven.KindScratchOrg, org.ID, EventScratchOrgRemove, opErr, map[string]any{
		"originating_user_id": org.OwnerID,
	})
	return nil
}

// FetchChangesSucceeded records a refreshed unsaved-changes view.
func (f *Finalizer) FetchChangesSucceeded(ctx context.Context, org *model.ScratchOrg) error {
	org.CurrentlyRefreshingChanges = false
	return f.saveOrg(ctx, org, EventScratchOrgUpdate)
}

// FetchChangesFailed resets the unsaved-changes view rather than persisting a
// partial diff.
func (f *Finalizer) FetchChangesFailed(ctx context.Context, org *model.ScratchOrg, opErr error) error {
	org.CurrentlyRefreshingChanges = false
	org.UnsavedChanges = model.ChangeSet{}
	return f.orgError(ctx, org, EventScratchOrgFetchChangesFailed, opErr)
}

// CommitSucceeded records a completed change capture.
func (f *Finalizer) CommitSucceeded(ctx context.Context, org *model.ScratchOrg) error {
	org.CurrentlyCapturingChanges = false
	return f.saveOrg(ctx, org, EventScratchOrgCommitChanges)
}

// CommitFailed records a failed change capture. The watermark is untouched;
// only the advisory flag is cleared.
func (f *Finalizer) CommitFailed(ctx context.Context, org *model.ScratchOrg, opErr error) error {
	org.CurrentlyCapturingChanges = false
	return f.orgError(ctx, org, EventScratchOrgCommitFailed, opErr)
}

// TaskUpdated persists the task and pushes TASK_UPDATE.
func (f *Finalizer) TaskUpdated(ctx context.Context, task *model.Task) error {
	if err := f.tasks.Save(ctx, *task); err != nil {
		return fmt.Errorf("finalize task %s: %w", task.ID, err)
	}
	f.notifier.Notify(driven.KindTask, task.ID, EventTaskUpdate, map[string]any{
		"model": SerializeTask(*task),
	})
	return nil
}

// TaskPRCreated records the opened pull request on the task.
func (f *Finalizer) TaskPRCreated(ctx context.Context, task *model.Task, number int) error {
	task.CurrentlyCreatingPR = false
	task.PRNumber = &number
	task.PRIsOpen = true
	if err := f.tasks.Save(ctx, *task); err != nil {
		return fmt.Errorf("finalize task pr %s: %w", task.ID, err)
	}
	f.notifier.Notify(driven.KindTask, task.ID, EventTaskCreatePR, map[string]any{
		"model": SerializeTask(*task),
	})
	return nil
}

// TaskPRFailed clears the in-flight flag and pushes the failure.
func (f *Finalizer) TaskPRFailed(ctx context.Context, task *model.Task, userID string, opErr error) error {
	task.CurrentlyCreatingPR = false
	if err := f.tasks.Save(ctx, *task); err != nil {
		return fmt.Errorf("finalize task pr %s: %w", task.ID, err)
	}
	f.notifier.NotifyError(driven.KindTask, task.ID, EventTaskCreatePRFailed, opErr, map[string]any{
		"originating_user_id": userID,
	})
	return nil
}

// ReviewSubmitted records the review outcome and recomputes review validity.
func (f *Finalizer) ReviewSubmitted(ctx context.Context, task *model.Task, status model.ReviewStatus, sha string) error {
	now := time.Now().UTC()
	task.CurrentlySubmittingReview = false
	task.ReviewStatus = status
	task.ReviewSHA = sha
	task.ReviewSubmittedAt = &now
	task.UpdateReviewValid()
	if err := f.tasks.Save(ctx, *task); err != nil {
		return fmt.Errorf("finalize review %s: %w", task.ID, err)
	}
	f.notifier.Notify(driven.KindTask, task.ID, EventTaskSubmitReview, map[string]any{
		"model": SerializeTask(*task),
	})
	return nil
}

// ReviewFailed clears the in-flight flag and pushes the failure.
func (f *Finalizer) ReviewFailed(ctx context.Context, task *model.Task, userID string, opErr error) error {
	task.CurrentlySubmittingReview = false
	if err := f.tasks.Save(ctx, *task); err != nil {
		return fmt.Errorf("finalize review %s: %w", task.ID, err)
	}
	f.notifier.NotifyError(driven.KindTask, task.ID, EventTaskSubmitReviewFailed, opErr, map[string]any{
		"originating_user_id": userID,
	})
	return nil
}

// ProjectUpdated persists the project and pushes PROJECT_UPDATE.
func (f *Finalizer) ProjectUpdated(ctx context.Context, project *model.Project) error {
	if err := f.projects.Save(ctx, *project); err != nil {
		return fmt.Errorf("finalize project %s: %w", project.ID, err)
	}
	f.notifier.Notify(driven.KindProject, project.ID, EventProjectUpdate, map[string]any{
		"model": SerializeProject(*project),
	})
	return nil
}

// ProjectPRCreated records the opened pull request on the project.
func (f *Finalizer) ProjectPRCreated(ctx context.Context, project *model.Project, number int) error {
	project.CurrentlyCreatingPR = false
	project.PRNumber = &number
	project.PRIsOpen = true
	if err := f.projects.Save(ctx, *project); err != nil {
		return fmt.Errorf("finalize project pr %s: %w", project.ID, err)
	}
	f.notifier.Notify(driven.KindProject, project.ID, EventProjectCreatePR, map[string]any{
		"model": SerializeProject(*project),
	})
	return nil
}

// ProjectPRFailed clears the in-flight flag and pushes the failure.
func (f *Finalizer) ProjectPRFailed(ctx context.Context, project *model.Project, userID string, opErr error) error {
	project.CurrentlyCreatingPR = false
	if err := f.projects.Save(ctx, *project); err != nil {
		return fmt.Errorf("finalize project pr %s: %w", project.ID, err)
	}
	f.notifier.NotifyError(driven.KindProject, project.ID, EventProjectCreatePRFailed, opErr, map[string]any{
		"originating_user_id": userID,
	})
	return nil
}

// RepositoryUpdated persists the repository and pushes REPOSITORY_UPDATE.
func (f *Finalizer) RepositoryUpdated(ctx context.Context, repo *model.Repository) error {
	if err := f.repos.Save(ctx, *repo); err != nil {
		return fmt.Errorf("finalize repository %s: %w", repo.ID, err)
	}
	f.notifier.Notify(driven.KindRepository, repo.ID, EventRepositoryUpdate, map[string]any{
		"model": SerializeRepository(*repo),
	})
	return nil
}

// RepositoryUpdateFailed clears the roster-fetch flag and pushes the failure.
func (f *Finalizer) RepositoryUpdateFailed(ctx context.Context, repo *model.Repository, opErr error) error {
	repo.CurrentlyFetchingUsers = false
	if err := f.repos.Save(ctx, *repo); err != nil {
		return fmt.Errorf("finalize repository %s: %w", repo.ID, err)
	}
	f.notifier.NotifyError(driven.KindRepository, repo.ID, EventRepositoryUpdateError, opErr, nil)
	return nil
}
