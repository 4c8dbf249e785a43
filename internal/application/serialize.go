package application

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
)

var (
	mdRenderer    goldmark.Markdown
	htmlSanitizer *bluemonday.Policy
)

func init() {
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	htmlSanitizer = bluemonday.UGCPolicy()
}

// RenderMarkdown converts a markdown string to sanitized HTML.
// Returns empty string for empty input.
func RenderMarkdown(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return htmlSanitizer.Sanitize(src)
	}

	return htmlSanitizer.Sanitize(buf.String())
}

// SerializeRepository builds the wire representation pushed to subscribers
// and returned by the HTTP layer.
func SerializeRepository(repo model.Repository) map[string]any {
	return map[string]any{
		"id":                       repo.ID,
		"name":                     repo.Name,
		"repo_url":                 "https://github.com/" + repo.FullName(),
		"repo_owner":               repo.Owner,
		"repo_name":                repo.Repo,
		"branch_name":              repo.BranchName,
		"github_users":             repo.GitHubUsers,
		"currently_fetching_users": repo.CurrentlyFetchingUsers,
	}
}

// SerializeProject builds the wire representation of a project, including the
// rendered markdown description.
func SerializeProject(project model.Project) map[string]any {
	return map[string]any{
		"id":                    project.ID,
		"repository":            project.RepositoryID,
		"name":                  project.Name,
		"description":           project.Description,
		"description_rendered":  RenderMarkdown(project.Description),
		"branch_name":           project.BranchName,
		"has_unmerged_commits":  project.HasUnmergedCommits,
		"currently_creating_pr": project.CurrentlyCreatingPR,
		"pr_number":             project.PRNumber,
		"pr_is_open":            project.PRIsOpen,
		"pr_is_merged":          project.PRIsMerged,
		"status":                string(project.Status),
		"github_users":          project.GitHubUsers,
	}
}

// SerializeTask builds the wire representation of a task, including the
// rendered markdown description.
func SerializeTask(task model.Task) map[string]any {
	return map[string]any{
		"id":                          task.ID,
		"project":                     task.ProjectID,
		"name":                        task.Name,
		"description":                 task.Description,
		"description_rendered":        RenderMarkdown(task.Description),
		"branch_name":                 task.BranchName,
		"org_config_name":             task.OrgConfigName,
		"commits":                     task.Commits,
		"origin_sha":                  task.OriginSHA,
		"has_unmerged_commits":        task.HasUnmergedCommits,
		"currently_creating_pr":       task.CurrentlyCreatingPR,
		"pr_number":                   task.PRNumber,
		"pr_is_open":                  task.PRIsOpen,
		"currently_submitting_review": task.CurrentlySubmittingReview,
		"review_submitted_at":         task.ReviewSubmittedAt,
		"review_valid":                task.ReviewValid,
		"review_status":               string(task.ReviewStatus),
		"review_sha":                  task.ReviewSHA,
		"status":                      string(task.Status),
		"assigned_dev":                task.AssignedDev,
		"assigned_qa":                 task.AssignedQA,
	}
}

// SerializeScratchOrg builds the wire representation of a scratch org. The
// credential bundle is never included; callers who own the org receive only
// the derived login URL while a live access token is held in memory.
func SerializeScratchOrg(org model.ScratchOrg) map[string]any {
	return map[string]any{
		"id":                              org.ID,
		"task":                            org.TaskID,
		"org_type":                        string(org.OrgType),
		"owner":                           org.OwnerID,
		"owner_gh_username":               org.OwnerGHUsername,
		"last_modified_at":                org.LastModifiedAt,
		"expires_at":                      org.ExpiresAt,
		"url":                             org.URL,
		"latest_commit":                   org.LatestCommit,
		"latest_commit_url":               org.LatestCommitURL,
		"latest_commit_at":                org.LatestCommitAt,
		"last_checked_unsaved_changes_at": org.LastCheckedUnsavedChangesAt,
		"unsaved_changes":                 org.UnsavedChanges,
		"has_unsaved_changes":             org.UnsavedChanges.HasChanges(),
		"total_unsaved_changes":           org.UnsavedChanges.TotalMembers(),
		"currently_refreshing_changes":    org.CurrentlyRefreshingChanges,
		"currently_capturing_changes":     org.CurrentlyCapturingChanges,
		"currently_refreshing_org":        org.CurrentlyRefreshingOrg,
		"delete_queued_at":                org.DeleteQueuedAt,
		"valid_target_directories":        org.ValidTargetDirectories,
	}
}
