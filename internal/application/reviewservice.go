package application

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
	"github.com/ericfisherdev/orgforge/internal/domain/port/driven"
)

// commitStatusContext labels the commit status posted for submitted reviews.
const commitStatusContext = "orgforge review"

// maxStatusDescription bounds the commit status description length.
const maxStatusDescription = 25

// ReviewService orchestrates pull request creation and review submission for
// tasks and projects.
type ReviewService struct {
	repos     driven.RepositoryStore
	projects  driven.ProjectStore
	tasks     driven.TaskStore
	orgs      driven.ScratchOrgStore
	gitHost   driven.GitHost
	finalizer *Finalizer
	queue     *JobQueue
	orgSvc    *OrgService
}

// NewReviewService creates a ReviewService with all required dependencies.
func NewReviewService(
	repos driven.RepositoryStore,
	projects driven.ProjectStore,
	tasks driven.TaskStore,
	orgs driven.ScratchOrgStore,
	gitHost driven.GitHost,
	finalizer *Finalizer,
	queue *JobQueue,
	orgSvc *OrgService,
) *ReviewService {
	return &ReviewService{
		repos:     repos,
		projects:  projects,
		tasks:     tasks,
		orgs:      orgs,
		gitHost:   gitHost,
		finalizer: finalizer,
		queue:     queue,
		orgSvc:    orgSvc,
	}
}

// PRRequest carries the user-authored sections of a pull request body.
type PRRequest struct {
	Title             string
	CriticalChanges   string
	AdditionalChanges string
	Issues            string
	Notes             string
	UserID            string
}

// buildPRBody assembles the pull request body from the request's sections.
// Empty sections are omitted.
func buildPRBody(req PRRequest) string {
	var b strings.Builder
	appendSection := func(heading, content string) {
		if content == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("# " + heading + "\n\n" + content)
	}

	appendSection("Critical Changes", req.CriticalChanges)
	appendSection("Changes", req.AdditionalChanges)
	appendSection("Issues Closed", req.Issues)
	appendSection("Notes", req.Notes)

	return b.String()
}

// QueueTaskPR marks the task and enqueues pull request creation.
func (s *ReviewService) QueueTaskPR(ctx context.Context, task *model.Task, req PRRequest) error {
	task.CurrentlyCreatingPR = true
	if err := s.finalizer.TaskUpdated(ctx, task); err != nil {
		return err
	}
	return s.queue.Enqueue(Job{
		Name: "create_task_pr",
		Run: func(ctx context.Context) error {
			return s.CreateTaskPR(ctx, task.ID, req)
		},
	})
}

// CreateTaskPR opens a pull request from the task branch onto the project
// branch.
func (s *ReviewService) CreateTaskPR(ctx context.Context, taskID string, req PRRequest) error {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}

	fail := func(opErr error) error {
		if ferr := s.finalizer.TaskPRFailed(ctx, task, req.UserID, opErr); ferr != nil {
			slog.Error("task pr error finalize failed", "task", task.ID, "error", ferr)
		}
		return opErr
	}

	project, err := s.projects.Get(ctx, task.ProjectID)
	if err != nil {
		return fail(err)
	}
	repo, err := s.repos.Get(ctx, project.RepositoryID)
	if err != nil {
		return fail(err)
	}
	repoInfo, err := s.orgSvc.resolveRepoInfo(ctx, repo)
	if err != nil {
		return fail(err)
	}

	number, err := s.gitHost.CreatePullRequest(ctx, *repoInfo, project.BranchName, task.BranchName, req.Title, buildPRBody(req))
	if err != nil {
		return fail(&model.RemoteHostError{Op: "create pull request", Err: err})
	}

	return s.finalizer.TaskPRCreated(ctx, task, number)
}

// QueueProjectPR marks the project and enqueues pull request creation.
func (s *ReviewService) QueueProjectPR(ctx context.Context, project *model.Project, req PRRequest) error {
	project.CurrentlyCreatingPR = true
	if err := s.finalizer.ProjectUpdated(ctx, project); err != nil {
		return err
	}
	return s.queue.Enqueue(Job{
		Name: "create_project_pr",
		Run: func(ctx context.Context) error {
			return s.CreateProjectPR(ctx, project.ID, req)
		},
	})
}

// CreateProjectPR opens a pull request from the project branch onto the
// repository's base branch.
func (s *ReviewService) CreateProjectPR(ctx context.Context, projectID string, req PRRequest) error {
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return err
	}

	fail := func(opErr error) error {
		if ferr := s.finalizer.ProjectPRFailed(ctx, project, req.UserID, opErr); ferr != nil {
			slog.Error("project pr error finalize failed", "project", project.ID, "error", ferr)
		}
		return opErr
	}

	repo, err := s.repos.Get(ctx, project.RepositoryID)
	if err != nil {
		return fail(err)
	}
	repoInfo, err := s.orgSvc.resolveRepoInfo(ctx, repo)
	if err != nil {
		return fail(err)
	}

	base := repo.BranchName
	if base == "" {
		base = repoInfo.DefaultBranch
	}

	number, err := s.gitHost.CreatePullRequest(ctx, *repoInfo, base, project.BranchName, req.Title, buildPRBody(req))
	if err != nil {
		return fail(&model.RemoteHostError{Op: "create pull request", Err: err})
	}

	return s.finalizer.ProjectPRCreated(ctx, project, number)
}

// ReviewRequest is a submitted QA review for a task.
type ReviewRequest struct {
	TaskID    string
	Status    model.ReviewStatus
	Notes     string
	OrgID     string // QA org supplying the review target sha; optional.
	DeleteOrg bool
	UserID    string
}

// QueueSubmitReview marks the task and enqueues review submission.
func (s *ReviewService) QueueSubmitReview(ctx context.Context, task *model.Task, req ReviewRequest) error {
	task.CurrentlySubmittingReview = true
	if err := s.finalizer.TaskUpdated(ctx, task); err != nil {
		return err
	}
	return s.queue.Enqueue(Job{
		Name: "submit_task_review",
		Run: func(ctx context.Context) error {
			return s.SubmitReview(ctx, req)
		},
	})
}

// SubmitReview posts the review outcome as a commit status (and a COMMENT
// review when notes are present) against the review target sha. A task with
// no open pull request or no resolvable sha fails with a
// *model.TaskReviewIntegrityError, finalized exactly once before returning.
func (s *ReviewService) SubmitReview(ctx context.Context, req ReviewRequest) error {
	task, err := s.tasks.Get(ctx, req.TaskID)
	if err != nil {
		return err
	}

	fail := func(opErr error) error {
		if ferr := s.finalizer.ReviewFailed(ctx, task, req.UserID, opErr); ferr != nil {
			slog.Error("review error finalize failed", "task", task.ID, "error", ferr)
		}
		return opErr
	}

	sha, err := s.resolveReviewSHA(ctx, task, req.OrgID)
	if err != nil {
		return fail(err)
	}
	if task.PRNumber == nil || !task.PRIsOpen {
		return fail(&model.TaskReviewIntegrityError{Reason: "the task has no open pull request"})
	}
	if sha == "" {
		return fail(&model.TaskReviewIntegrityError{Reason: "there is no commit to review"})
	}

	project, err := s.projects.Get(ctx, task.ProjectID)
	if err != nil {
		return fail(err)
	}
	repo, err := s.repos.Get(ctx, project.RepositoryID)
	if err != nil {
		return fail(err)
	}
	repoInfo, err := s.orgSvc.resolveRepoInfo(ctx, repo)
	if err != nil {
		return fail(err)
	}

	state := "success"
	if req.Status == model.ReviewStatusChangesRequested {
		state = "failure"
	}

	if err := s.gitHost.CreateCommitStatus(ctx, *repoInfo, sha, state, statusDescription(req.Notes), "", commitStatusContext); err != nil {
		return fail(&model.RemoteHostError{Op: "create commit status", Err: err})
	}

	if req.Notes != "" {
		if err := s.gitHost.CreateReview(ctx, *repoInfo, *task.PRNumber, req.Notes, "COMMENT"); err != nil {
			return fail(&model.RemoteHostError{Op: "create review", Err: err})
		}
	}

	if err := s.finalizer.ReviewSubmitted(ctx, task, req.Status, sha); err != nil {
		return err
	}

	if req.DeleteOrg && req.OrgID != "" {
		org, err := s.orgs.Get(ctx, req.OrgID)
		if err != nil {
			slog.Error("review org lookup for delete failed", "org", req.OrgID, "error", err)
			return nil
		}
		if err := s.orgSvc.QueueDelete(ctx, org); err != nil {
			slog.Error("queue review org delete failed", "org", req.OrgID, "error", err)
		}
	}

	return nil
}

// resolveReviewSHA picks the review target: the QA org's latest commit when
// an org is named, otherwise the task's recorded review sha when still valid.
func (s *ReviewService) resolveReviewSHA(ctx context.Context, task *model.Task, orgID string) (string, error) {
	if orgID != "" {
		org, err := s.orgs.Get(ctx, orgID)
		if err != nil {
			return "", err
		}
		return org.LatestCommit, nil
	}
	if task.ReviewValid {
		return task.ReviewSHA, nil
	}
	return "", nil
}

// statusDescription filters notes down to printable characters and bounds
// the length for the commit status API. The bound counts runes so a
// multi-byte character is never split.
func statusDescription(notes string) string {
	var b strings.Builder
	count := 0
	for _, r := range notes {
		if !unicode.IsPrint(r) {
			continue
		}
		if count == maxStatusDescription {
			break
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

// QueuePRSync enqueues reconciliation of a pull request's remote state onto
// the local task or project that owns it.
func (s *ReviewService) QueuePRSync(repositoryID string, prNumber int) error {
	return s.queue.Enqueue(Job{
		Name: "sync_pr_state",
		Run: func(ctx context.Context) error {
			return s.SyncPRState(ctx, repositoryID, prNumber)
		},
	})
}

// SyncPRState fetches the pull request's current state from the Git host and
// applies it to whichever task or project recorded that PR number. Merge is
// the only path that completes a task or marks a project merged; a webhook
// for a PR nothing tracks is ignored.
func (s *ReviewService) SyncPRState(ctx context.Context, repositoryID string, prNumber int) error {
	repo, err := s.repos.Get(ctx, repositoryID)
	if err != nil {
		return err
	}
	repoInfo, err := s.orgSvc.resolveRepoInfo(ctx, repo)
	if err != nil {
		return err
	}

	pr, err := s.gitHost.GetPullRequest(ctx, *repoInfo, prNumber)
	if err != nil {
		return &model.RemoteHostError{Op: "get pull request", Err: err}
	}

	projects, err := s.projects.ListByRepository(ctx, repo.ID)
	if err != nil {
		return err
	}

	for i := range projects {
		project := &projects[i]
		if project.PRNumber != nil && *project.PRNumber == prNumber {
			return s.applyProjectPRState(ctx, project, pr)
		}

		tasks, err := s.tasks.ListByProject(ctx, project.ID)
		if err != nil {
			return err
		}
		for j := range tasks {
			task := &tasks[j]
			if task.PRNumber != nil && *task.PRNumber == prNumber {
				return s.applyTaskPRState(ctx, project, task, pr)
			}
		}
	}

	return nil
}

// applyTaskPRState records the task PR's open state and, on merge, completes
// the task, recomputes the project status, and queues its orgs for deletion.
func (s *ReviewService) applyTaskPRState(ctx context.Context, project *model.Project, task *model.Task, pr *model.PullRequestInfo) error {
	task.PRIsOpen = pr.IsOpen
	merged := !pr.IsOpen && pr.IsMerged
	if merged {
		task.Status = model.TaskStatusCompleted
		task.HasUnmergedCommits = false
	}
	if err := s.finalizer.TaskUpdated(ctx, task); err != nil {
		return err
	}

	statuses, err := s.tasks.ListStatusesByProject(ctx, project.ID)
	if err != nil {
		return err
	}
	project.UpdateStatus(statuses)
	if err := s.finalizer.ProjectUpdated(ctx, project); err != nil {
		return err
	}

	if !merged {
		return nil
	}

	orgs, err := s.orgs.ListByTask(ctx, task.ID)
	if err != nil {
		return err
	}
	for i := range orgs {
		org := &orgs[i]
		if org.DeleteQueuedAt != nil {
			continue
		}
		if err := s.orgSvc.QueueDelete(ctx, org); err != nil {
			slog.Error("queueing org delete on task completion", "org", org.ID, "error", err)
		}
	}

	return nil
}

// applyProjectPRState records the project PR's open and merged state and
// recomputes the derived project status.
func (s *ReviewService) applyProjectPRState(ctx context.Context, project *model.Project, pr *model.PullRequestInfo) error {
	project.PRIsOpen = pr.IsOpen
	if !pr.IsOpen && pr.IsMerged {
		project.PRIsMerged = true
		project.HasUnmergedCommits = false
	}

	statuses, err := s.tasks.ListStatusesByProject(ctx, project.ID)
	if err != nil {
		return err
	}
	project.UpdateStatus(statuses)

	return s.finalizer.ProjectUpdated(ctx, project)
}
