// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gosimple/slug"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
	"github.com/ericfisherdev/orgforge/internal/domain/port/driven"
)

// OrgService orchestrates the scratch org lifecycle: branch setup,
// provisioning, change detection, change capture, refresh, and teardown.
type OrgService struct {
	repos       driven.RepositoryStore
	projects    driven.ProjectStore
	tasks       driven.TaskStore
	orgs        driven.ScratchOrgStore
	gitHost     driven.GitHost
	provisioner driven.SandboxProvisioner
	metadata    driven.MetadataStore
	finalizer   *Finalizer
	queue       *JobQueue

	branchPrefix string
	devFlow      string
	qaFlow       string
}

// NewOrgService creates an OrgService with all required dependencies.
func NewOrgService(
	repos driven.RepositoryStore,
	projects driven.ProjectStore,
	tasks driven.TaskStore,
	orgs driven.ScratchOrgStore,
	gitHost driven.GitHost,
	provisioner driven.SandboxProvisioner,
	metadata driven.MetadataStore,
	finalizer *Finalizer,
	queue *JobQueue,
	branchPrefix, devFlow, qaFlow string,
) *OrgService {
	return &OrgService{
		repos:        repos,
		projects:     projects,
		tasks:        tasks,
		orgs:         orgs,
		gitHost:      gitHost,
		provisioner:  provisioner,
		metadata:     metadata,
		finalizer:    finalizer,
		queue:        queue,
		branchPrefix: branchPrefix,
		devFlow:      devFlow,
		qaFlow:       qaFlow,
	}
}

// QueueProvision enqueues end-to-end provisioning for a freshly created org
// record.
func (s *OrgService) QueueProvision(orgID string) error {
	return s.queue.Enqueue(Job{
		Name: "provision_scratch_org",
		Run: func(ctx context.Context) error {
			return s.ProvisionScratchOrg(ctx, orgID)
		},
	})
}

// QueueRefresh marks the org as refreshing and enqueues the refresh job.
func (s *OrgService) QueueRefresh(ctx context.Context, org *model.ScratchOrg) error {
	org.CurrentlyRefreshingOrg = true
	if err := s.finalizer.saveOrg(ctx, org, EventScratchOrgUpdate); err != nil {
		return err
	}
	return s.queue.Enqueue(Job{
		Name: "refresh_scratch_org",
		Run: func(ctx context.Context) error {
			return s.RefreshScratchOrg(ctx, org.ID)
		},
	})
}

// QueueDelete marks the org for deletion and enqueues the delete job.
func (s *OrgService) QueueDelete(ctx context.Context, org *model.ScratchOrg) error {
	now := time.Now().UTC()
	org.DeleteQueuedAt = &now
	if err := s.finalizer.saveOrg(ctx, org, EventScratchOrgUpdate); err != nil {
		return err
	}
	return s.queue.Enqueue(Job{
		Name: "delete_scratch_org",
		Run: func(ctx context.Context) error {
			return s.DeleteScratchOrg(ctx, org.ID)
		},
	})
}

// QueueFetchChanges marks the org as refreshing its change view and enqueues
// the fetch job.
func (s *OrgService) QueueFetchChanges(ctx context.Context, org *model.ScratchOrg) error {
	org.CurrentlyRefreshingChanges = true
	if err := s.finalizer.saveOrg(ctx, org, EventScratchOrgUpdate); err != nil {
		return err
	}
	return s.queue.Enqueue(Job{
		Name: "fetch_unsaved_changes",
		Run: func(ctx context.Context) error {
			return s.FetchUnsavedChanges(ctx, org.ID)
		},
	})
}

// CommitRequest is a change capture order issued by the org owner.
type CommitRequest struct {
	OrgID           string
	DesiredChanges  model.ChangeSet
	Message         string
	TargetDirectory string
	Author          model.CommitAuthor
	UserID          string
}

// QueueCommitChanges marks the org as capturing and enqueues the commit
// pipeline.
func (s *OrgService) QueueCommitChanges(ctx context.Context, org *model.ScratchOrg, req CommitRequest) error {
	org.CurrentlyCapturingChanges = true
	if err := s.finalizer.saveOrg(ctx, org, EventScratchOrgUpdate); err != nil {
		return err
	}
	return s.queue.Enqueue(Job{
		Name: "commit_changes_from_org",
		Run: func(ctx context.Context) error {
			return s.CommitChangesFromOrg(ctx, req)
		},
	})
}

// ProvisionScratchOrg runs provisioning end to end: branch setup, sandbox
// creation, setup flow, and the initial revision watermark. Failure is fatal
// and not retried; the error finalize decides between queued remote deletion
// (sandbox exists) and local removal.
func (s *OrgService) ProvisionScratchOrg(ctx context.Context, orgID string) error {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return err
	}

	task, project, repoInfo, err := s.resolveOrgContext(ctx, org)
	if err != nil {
		return s.failProvision(ctx, org, err)
	}

	if err := s.ensureBranches(ctx, repoInfo, project, task); err != nil {
		return s.failProvision(ctx, org, err)
	}

	if err := s.provisionOrg(ctx, org, task, repoInfo); err != nil {
		return s.failProvision(ctx, org, err)
	}

	return s.finalizer.ProvisionSucceeded(ctx, org)
}

func (s *OrgService) failProvision(ctx context.Context, org *model.ScratchOrg, opErr error) error {
	if ferr := s.finalizer.ProvisionFailed(ctx, org, opErr); ferr != nil {
		slog.Error("provision error finalize failed", "org", org.ID, "error", ferr)
	}
	if org.URL != "" {
		if qerr := s.queue.Enqueue(Job{
			Name: "delete_scratch_org",
			Run: func(ctx context.Context) error {
				return s.DeleteScratchOrg(ctx, org.ID)
			},
		}); qerr != nil {
			slog.Error("queue cleanup delete failed", "org", org.ID, "error", qerr)
		}
	}
	return opErr
}

// provisionOrg creates the sandbox and runs the setup flow against the task
// branch. The sandbox URL and credentials are persisted as soon as the
// sandbox exists so a later delete works even if the flow run fails.
func (s *OrgService) provisionOrg(ctx context.Context, org *model.ScratchOrg, task *model.Task, repoInfo *model.RepoInfo) error {
	checkout, err := s.gitHost.Checkout(ctx, *repoInfo, task.BranchName)
	if err != nil {
		return fmt.Errorf("checking out task branch: %w", err)
	}
	defer checkout.Close()

	info, err := s.provisioner.CreateSandbox(ctx, org.OrgType, task.OrgConfigName)
	if err != nil {
		return err
	}

	org.URL = info.InstanceURL
	org.ExpiresAt = &info.ExpiresAt
	org.Config = info.Credentials.Clean()
	if err := s.orgs.Save(ctx, *org); err != nil {
		return fmt.Errorf("persisting sandbox handle: %w", err)
	}

	if err := s.provisioner.RunFlow(ctx, info.Credentials, s.flowName(org, task), checkout.Dir); err != nil {
		return err
	}

	snapshot, err := s.metadata.FetchRevisionSnapshot(ctx, info.Credentials)
	if err != nil {
		return err
	}

	dirs, err := ResolveTargetDirectories(checkout.Dir)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	org.LastModifiedAt = &now
	org.LatestRevisionNumbers = snapshot
	org.UnsavedChanges = model.ChangeSet{}
	org.ValidTargetDirectories = dirs

	return nil
}

// flowName resolves the setup flow: the task's named configuration wins,
// otherwise the per-org-type default.
func (s *OrgService) flowName(org *model.ScratchOrg, task *model.Task) string {
	if task.OrgConfigName != "" {
		return task.OrgConfigName
	}
	if org.OrgType == model.OrgTypeQA {
		return s.qaFlow
	}
	return s.devFlow
}

// resolveOrgContext loads the org's task, project, and repository, resolving
// the repository's stable numeric ID on first use.
func (s *OrgService) resolveOrgContext(ctx context.Context, org *model.ScratchOrg) (*model.Task, *model.Project, *model.RepoInfo, error) {
	task, err := s.tasks.Get(ctx, org.TaskID)
	if err != nil {
		return nil, nil, nil, err
	}
	project, err := s.projects.Get(ctx, task.ProjectID)
	if err != nil {
		return nil, nil, nil, err
	}
	repo, err := s.repos.Get(ctx, project.RepositoryID)
	if err != nil {
		return nil, nil, nil, err
	}

	repoInfo, err := s.resolveRepoInfo(ctx, repo)
	if err != nil {
		return nil, nil, nil, err
	}

	return task, project, repoInfo, nil
}

// resolveRepoInfo returns a live repository handle, persisting the stable
// numeric ID the first time it is seen.
func (s *OrgService) resolveRepoInfo(ctx context.Context, repo *model.Repository) (*model.RepoInfo, error) {
	if repo.RepoID != nil {
		info, err := s.gitHost.GetRepositoryByID(ctx, *repo.RepoID)
		if err != nil {
			return nil, &model.RemoteHostError{Op: "resolve repository", Err: err}
		}
		return info, nil
	}

	info, err := s.gitHost.GetRepository(ctx, repo.Owner, repo.Repo)
	if err != nil {
		return nil, &model.RemoteHostError{Op: "resolve repository", Err: err}
	}

	repo.RepoID = &info.ID
	if err := s.repos.Save(ctx, *repo); err != nil {
		return nil, err
	}

	return info, nil
}

// ensureBranches lazily creates the project and task branches. Project branch
// is cut from the repository's base branch, task branch from the project
// branch; the task records its branch point as origin sha.
func (s *OrgService) ensureBranches(ctx context.Context, repoInfo *model.RepoInfo, project *model.Project, task *model.Task) error {
	repo, err := s.repos.Get(ctx, project.RepositoryID)
	if err != nil {
		return err
	}

	baseBranch := repo.BranchName
	if baseBranch == "" {
		baseBranch = repoInfo.DefaultBranch
	}

	if project.BranchName == "" {
		baseSHA, err := s.gitHost.GetBranchHead(ctx, *repoInfo, baseBranch)
		if err != nil {
			return &model.RemoteHostError{Op: "resolve base branch", Err: err}
		}

		candidate := s.branchPrefix + slug.Make(project.Name)
		name, err := s.ensureBranch(ctx, *repoInfo, candidate, baseBranch, baseSHA)
		if err != nil {
			return err
		}

		project.BranchName = name
		if err := s.finalizer.ProjectUpdated(ctx, project); err != nil {
			return err
		}
	}

	if task.BranchName == "" {
		projectHead, err := s.gitHost.GetBranchHead(ctx, *repoInfo, project.BranchName)
		if err != nil {
			return &model.RemoteHostError{Op: "resolve project branch", Err: err}
		}

		candidate := project.BranchName + "__" + slug.Make(task.Name)
		name, err := s.ensureBranch(ctx, *repoInfo, candidate, project.BranchName, projectHead)
		if err != nil {
			return err
		}

		task.BranchName = name
		task.OriginSHA = projectHead
		if err := s.finalizer.TaskUpdated(ctx, task); err != nil {
			return err
		}
	}

	return nil
}

// ensureBranch returns a branch with the candidate name, reusing an existing
// branch only when doing so clobbers nothing: it must sit at zero commits
// ahead of its base and carry no open or closed-but-unmerged pull request.
func (s *OrgService) ensureBranch(ctx context.Context, repoInfo model.RepoInfo, candidate, baseBranch, baseSHA string) (string, error) {
	_, err := s.gitHost.GetBranchHead(ctx, repoInfo, candidate)
	if errors.Is(err, driven.ErrBranchNotFound) {
		name, err := s.gitHost.CreateBranch(ctx, repoInfo, candidate, baseSHA)
		if err != nil {
			return "", &model.RemoteHostError{Op: "create branch", Err: err}
		}
		return name, nil
	}
	if err != nil {
		return "", &model.RemoteHostError{Op: "inspect branch", Err: err}
	}

	reusable, err := s.branchReusable(ctx, repoInfo, candidate, baseBranch)
	if err != nil {
		return "", err
	}
	if reusable {
		return candidate, nil
	}

	name, err := s.gitHost.CreateBranch(ctx, repoInfo, candidate, baseSHA)
	if err != nil {
		return "", &model.RemoteHostError{Op: "create branch", Err: err}
	}
	return name, nil
}

func (s *OrgService) branchReusable(ctx context.Context, repoInfo model.RepoInfo, branch, baseBranch string) (bool, error) {
	aheadBy, err := s.gitHost.Compare(ctx, repoInfo, baseBranch, branch)
	if err != nil {
		return false, &model.RemoteHostError{Op: "compare branches", Err: err}
	}
	if aheadBy != 0 {
		return false, nil
	}

	prs, err := s.gitHost.ListPullRequestsForHead(ctx, repoInfo, branch)
	if err != nil {
		return false, &model.RemoteHostError{Op: "list pull requests", Err: err}
	}
	for _, pr := range prs {
		if pr.IsOpen || !pr.IsMerged {
			return false, nil
		}
	}

	return true, nil
}

// RefreshScratchOrg tears the sandbox down and provisions a fresh one against
// the current task branch.
func (s *OrgService) RefreshScratchOrg(ctx context.Context, orgID string) error {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return err
	}

	fail := func(opErr error) error {
		if ferr := s.finalizer.RefreshFailed(ctx, org, opErr); ferr != nil {
			slog.Error("refresh error finalize failed", "org", org.ID, "error", ferr)
		}
		if qerr := s.queue.Enqueue(Job{
			Name: "delete_scratch_org",
			Run: func(ctx context.Context) error {
				return s.DeleteScratchOrg(ctx, org.ID)
			},
		}); qerr != nil {
			slog.Error("queue cleanup delete failed", "org", org.ID, "error", qerr)
		}
		return opErr
	}

	task, _, repoInfo, err := s.resolveOrgContext(ctx, org)
	if err != nil {
		return fail(err)
	}

	if err := s.provisioner.DeleteSandbox(ctx, org.Config); err != nil {
		return fail(err)
	}

	if err := s.provisionOrg(ctx, org, task, repoInfo); err != nil {
		return fail(err)
	}

	return s.finalizer.RefreshSucceeded(ctx, org)
}

// DeleteScratchOrg deletes the remote sandbox then the local record. The
// remote delete is idempotent, so deleting an already-deleted org succeeds
// without a second notification.
func (s *OrgService) DeleteScratchOrg(ctx context.Context, orgID string) error {
	org, err := s.orgs.Get(ctx, orgID)
	if errors.Is(err, driven.ErrScratchOrgNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.provisioner.DeleteSandbox(ctx, org.Config); err != nil {
		if ferr := s.finalizer.DeleteFailed(ctx, org, err); ferr != nil {
			slog.Error("delete error finalize failed", "org", org.ID, "error", ferr)
		}
		return err
	}

	return s.finalizer.DeleteSucceeded(ctx, org)
}

// FetchUnsavedChanges refreshes the org's unsaved-changes view: a fresh
// revision snapshot diffed against the stored watermark. The watermark itself
// is not advanced. Valid target directories are re-resolved from a checkout
// so the commit UI offers current options.
func (s *OrgService) FetchUnsavedChanges(ctx context.Context, orgID string) error {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return err
	}

	fail := func(opErr error) error {
		if ferr := s.finalizer.FetchChangesFailed(ctx, org, opErr); ferr != nil {
			slog.Error("fetch changes error finalize failed", "org", org.ID, "error", ferr)
		}
		return opErr
	}

	task, _, repoInfo, err := s.resolveOrgContext(ctx, org)
	if err != nil {
		return fail(err)
	}

	creds, err := s.provisioner.RefreshCredentials(ctx, org.Config)
	if errors.Is(err, driven.ErrSandboxGone) {
		// The sandbox expired or was deleted out of band; drop the local
		// record instead of reporting a fetch failure.
		return s.finalizer.OrgVanished(ctx, org, err)
	}
	if err != nil {
		return fail(err)
	}

	snapshot, err := s.metadata.FetchRevisionSnapshot(ctx, *creds)
	if err != nil {
		return fail(err)
	}

	checkout, err := s.gitHost.Checkout(ctx, *repoInfo, task.BranchName)
	if err != nil {
		return fail(fmt.Errorf("checking out task branch: %w", err))
	}
	defer checkout.Close()

	dirs, err := ResolveTargetDirectories(checkout.Dir)
	if err != nil {
		return fail(err)
	}

	now := time.Now().UTC()
	org.UnsavedChanges = model.DiffRevisions(org.LatestRevisionNumbers, snapshot)
	org.ValidTargetDirectories = dirs
	org.LastCheckedUnsavedChangesAt = &now

	return s.finalizer.FetchChangesSucceeded(ctx, org)
}

// CommitChangesFromOrg captures the requested members out of the live org and
// commits them onto the task branch. The watermark advances only for the
// members actually committed; any failure leaves it untouched.
func (s *OrgService) CommitChangesFromOrg(ctx context.Context, req CommitRequest) error {
	org, err := s.orgs.Get(ctx, req.OrgID)
	if err != nil {
		return err
	}

	fail := func(step string, opErr error) error {
		wrapped := &model.CommitPipelineError{Step: step, Err: opErr}
		if ferr := s.finalizer.CommitFailed(ctx, org, wrapped); ferr != nil {
			slog.Error("commit error finalize failed", "org", org.ID, "error", ferr)
		}
		return wrapped
	}

	task, _, repoInfo, err := s.resolveOrgContext(ctx, org)
	if err != nil {
		return fail("resolve", err)
	}

	checkout, err := s.gitHost.Checkout(ctx, *repoInfo, task.BranchName)
	if err != nil {
		return fail("checkout", err)
	}
	defer checkout.Close()

	dirs, err := ResolveTargetDirectories(checkout.Dir)
	if err != nil {
		return fail("resolve_target_dirs", err)
	}

	target := req.TargetDirectory
	if target == "" && len(dirs["source"]) > 0 {
		target = dirs["source"][0]
	}

	// Metadata format applies unless committing into the primary source
	// directory of a structured layout.
	metadataFormat := true
	if HasStructuredLayout(checkout.Dir) && len(dirs["source"]) > 0 && target == dirs["source"][0] {
		metadataFormat = false
	}

	creds, err := s.provisioner.RefreshCredentials(ctx, org.Config)
	if err != nil {
		return fail("refresh_credentials", err)
	}

	if err := s.metadata.RetrieveMembers(ctx, *creds, req.DesiredChanges, filepath.Join(checkout.Dir, target), metadataFormat); err != nil {
		return fail("retrieve", err)
	}

	newSHA, err := s.gitHost.CommitAndPush(ctx, *repoInfo, task.BranchName, checkout.Dir, req.Message, req.Author)
	if err != nil {
		return fail("push", err)
	}

	fresh, err := s.metadata.FetchRevisionSnapshot(ctx, *creds)
	if err != nil {
		return fail("refresh_snapshot", err)
	}

	if org.LatestRevisionNumbers == nil {
		org.LatestRevisionNumbers = model.RevisionSnapshot{}
	}
	for memberType, names := range req.DesiredChanges {
		for _, name := range names {
			if counter := fresh.Counter(memberType, name); counter >= 0 {
				org.LatestRevisionNumbers.Set(memberType, name, counter)
			}
		}
	}
	org.UnsavedChanges = model.DiffRevisions(org.LatestRevisionNumbers, fresh)

	task.AddCapturedSHA(newSHA)
	task.HasUnmergedCommits = true
	if task.Status == model.TaskStatusPlanned {
		task.Status = model.TaskStatusInProgress
	}

	now := time.Now().UTC()
	org.LatestCommit = newSHA
	org.LatestCommitAt = &now
	if head, err := s.gitHost.ListCommits(ctx, *repoInfo, task.BranchName, "", 1); err == nil && len(head) > 0 {
		org.LatestCommitURL = head[0].URL
		if !head[0].Timestamp.IsZero() {
			org.LatestCommitAt = &head[0].Timestamp
		}
	}

	if err := s.finalizer.TaskUpdated(ctx, task); err != nil {
		return fail("finalize_task", err)
	}

	return s.finalizer.CommitSucceeded(ctx, org)
}
