// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
)

// ErrBranchNotFound indicates the requested branch does not exist on the
// remote repository.
var ErrBranchNotFound = errors.New("branch not found")

// Checkout is a scoped local working copy of a repository ref. Close removes
// the working tree; callers must defer it on all exit paths.
type Checkout struct {
	Dir     string
	cleanup func() error
}

// NewCheckout wraps an extracted working tree with its cleanup function.
func NewCheckout(dir string, cleanup func() error) *Checkout {
	return &Checkout{Dir: dir, cleanup: cleanup}
}

// Close removes the local working copy. Safe to call more than once.
func (c *Checkout) Close() error {
	if c.cleanup == nil {
		return nil
	}
	fn := c.cleanup
	c.cleanup = nil
	return fn()
}

// GitHost defines the driven port for remote Git hosting operations.
type GitHost interface {
	// GetRepository resolves owner/name to a live handle, including the
	// stable numeric identifier and default branch.
	GetRepository(ctx context.Context, owner, name string) (*model.RepoInfo, error)

	// GetRepositoryByID resolves a previously persisted stable identifier.
	GetRepositoryByID(ctx context.Context, id int64) (*model.RepoInfo, error)

	// GetBranchHead returns the head commit sha of the named branch.
	// Returns ErrBranchNotFound if the branch does not exist.
	GetBranchHead(ctx context.Context, repo model.RepoInfo, branch string) (string, error)

	// CreateBranch creates a branch pointing at fromSHA and returns the name
	// actually created. When the name is taken, a numeric suffix is appended
	// until creation succeeds.
	CreateBranch(ctx context.Context, repo model.RepoInfo, name, fromSHA string) (string, error)

	// Compare returns how many commits head is ahead of base.
	Compare(ctx context.Context, repo model.RepoInfo, base, head string) (int, error)

	// ListCommits returns commits on branch newest first, stopping
	// (exclusive) at sinceSHA. At most limit commits are returned.
	ListCommits(ctx context.Context, repo model.RepoInfo, branch, sinceSHA string, limit int) ([]model.Commit, error)

	CreatePullRequest(ctx context.Context, repo model.RepoInfo, base, head, title, body string) (int, error)
	GetPullRequest(ctx context.Context, repo model.RepoInfo, number int) (*model.PullRequestInfo, error)

	// ListPullRequestsForHead returns all PRs (open or closed) whose head is
	// the named branch.
	ListPullRequestsForHead(ctx context.Context, repo model.RepoInfo, head string) ([]model.PullRequestInfo, error)

	// CreateReview submits a review on a pull request. event must be one of
	// "APPROVE", "REQUEST_CHANGES", or "COMMENT".
	CreateReview(ctx context.Context, repo model.RepoInfo, number int, body, event string) error

	// CreateCommitStatus posts a commit status. state must be one of
	// "success", "failure", "error", or "pending".
	CreateCommitStatus(ctx context.Context, repo model.RepoInfo, sha, state, description, targetURL, statusContext string) error

	// ListCollaborators returns the repository's collaborators sorted
	// case-insensitively by login.
	ListCollaborators(ctx context.Context, repo model.RepoInfo) ([]model.GitHubUser, error)

	// Checkout materializes ref as a scoped local working copy. The archive
	// is validated before extraction; a structurally unsafe archive is
	// rejected with *model.UnsafeArchiveError and zero files written.
	Checkout(ctx context.Context, repo model.RepoInfo, ref string) (*Checkout, error)

	// CommitAndPush commits every file under dir onto branch with the given
	// message and author, returning the new head sha.
	CommitAndPush(ctx context.Context, repo model.RepoInfo, branch, dir, message string, author model.CommitAuthor) (string, error)
}
