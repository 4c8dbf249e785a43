// Package github implements the GitHost port using the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	gh "github.com/google/go-github/v74/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
	"github.com/ericfisherdev/orgforge/internal/domain/port/driven"
)

// Branch names are bounded to leave room for collision suffixes.
const maxBranchNameLength = 100

// Compile-time interface satisfaction check.
var _ driven.GitHost = (*Client)(nil)

// Client implements the driven.GitHost port using the go-github library.
type Client struct {
	gh         *gh.Client
	httpClient *http.Client // Used for archive downloads outside the REST client.
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{
		gh:         client,
		httpClient: rateLimitClient,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{
		gh:         client,
		httpClient: httpClient,
	}, nil
}

// GetRepository resolves owner/name to a live handle.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*model.RepoInfo, error) {
	repo, resp, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("getting repository %s/%s: %w", owner, name, err)
	}

	logRateLimit(resp, owner+"/"+name)

	return mapRepoInfo(repo), nil
}

// GetRepositoryByID resolves a previously persisted stable identifier.
func (c *Client) GetRepositoryByID(ctx context.Context, id int64) (*model.RepoInfo, error) {
	repo, _, err := c.gh.Repositories.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting repository id %d: %w", id, err)
	}

	return mapRepoInfo(repo), nil
}

// GetBranchHead returns the head commit sha of the named branch.
func (c *Client) GetBranchHead(ctx context.Context, repo model.RepoInfo, branch string) (string, error) {
	ref, resp, err := c.gh.Git.GetRef(ctx, repo.Owner, repo.Name, "refs/heads/"+branch)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("branch %s on %s: %w", branch, repo.FullName(), driven.ErrBranchNotFound)
		}
		return "", fmt.Errorf("getting branch %s on %s: %w", branch, repo.FullName(), err)
	}

	return ref.GetObject().GetSHA(), nil
}

// CreateBranch creates a branch pointing at fromSHA. Name collisions retry
// with a -1, -2, ... suffix, truncating the base name so the result stays
// within the length bound.
func (c *Client) CreateBranch(ctx context.Context, repo model.RepoInfo, name, fromSHA string) (string, error) {
	for counter := 0; ; counter++ {
		candidate := name
		if counter > 0 {
			suffix := fmt.Sprintf("-%d", counter)
			if len(candidate)+len(suffix) > maxBranchNameLength {
				candidate = candidate[:maxBranchNameLength-len(suffix)]
			}
			candidate += suffix
		} else if len(candidate) > maxBranchNameLength {
			candidate = candidate[:maxBranchNameLength]
		}

		_, _, err := c.gh.Git.CreateRef(ctx, repo.Owner, repo.Name, &gh.Reference{
			Ref:    gh.Ptr("refs/heads/" + candidate),
			Object: &gh.GitObject{SHA: gh.Ptr(fromSHA)},
		})
		if err == nil {
			return candidate, nil
		}
		if !isReferenceExists(err) {
			return "", fmt.Errorf("creating branch %s on %s: %w", candidate, repo.FullName(), err)
		}
	}
}

// isReferenceExists reports whether err is GitHub's 422 for a ref that
// already exists.
func isReferenceExists(err error) bool {
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) {
		return ghErr.Response != nil &&
			ghErr.Response.StatusCode == http.StatusUnprocessableEntity &&
			strings.Contains(ghErr.Message, "already exists")
	}
	return false
}

// Compare returns how many commits head is ahead of base.
func (c *Client) Compare(ctx context.Context, repo model.RepoInfo, base, head string) (int, error) {
	cmp, _, err := c.gh.Repositories.CompareCommits(ctx, repo.Owner, repo.Name, base, head, nil)
	if err != nil {
		return 0, fmt.Errorf("comparing %s...%s on %s: %w", base, head, repo.FullName(), err)
	}

	return cmp.GetAheadBy(), nil
}

// ListCommits returns commits on branch newest first, stopping (exclusive) at
// sinceSHA. It handles pagination automatically, capped at limit commits.
func (c *Client) ListCommits(ctx context.Context, repo model.RepoInfo, branch, sinceSHA string, limit int) ([]model.Commit, error) {
	opts := &gh.CommitsListOptions{
		SHA:         branch,
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var commits []model.Commit

	for {
		page, resp, err := c.gh.Repositories.ListCommits(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("listing commits for %s@%s (page %d): %w", repo.FullName(), branch, opts.Page, err)
		}

		logRateLimit(resp, repo.FullName()+"/commits")

		for _, rc := range page {
			if rc.GetSHA() == sinceSHA {
				return commits, nil
			}
			commits = append(commits, mapCommit(rc))
			if len(commits) >= limit {
				return commits, nil
			}
		}

		if resp.NextPage == 0 {
			return commits, nil
		}
		opts.Page = resp.NextPage
	}
}

// CreatePullRequest opens a PR and returns its number.
func (c *Client) CreatePullRequest(ctx context.Context, repo model.RepoInfo, base, head, title, body string) (int, error) {
	pr, _, err := c.gh.PullRequests.Create(ctx, repo.Owner, repo.Name, &gh.NewPullRequest{
		Title: gh.Ptr(title),
		Base:  gh.Ptr(base),
		Head:  gh.Ptr(head),
		Body:  gh.Ptr(body),
	})
	if err != nil {
		return 0, fmt.Errorf("creating pull request %s -> %s on %s: %w", head, base, repo.FullName(), err)
	}

	return pr.GetNumber(), nil
}

// GetPullRequest returns the state of a single pull request.
func (c *Client) GetPullRequest(ctx context.Context, repo model.RepoInfo, number int) (*model.PullRequestInfo, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		return nil, fmt.Errorf("getting pull request %s#%d: %w", repo.FullName(), number, err)
	}

	return mapPullRequestInfo(pr), nil
}

// ListPullRequestsForHead returns all PRs, open or closed, whose head is the
// named branch.
func (c *Client) ListPullRequestsForHead(ctx context.Context, repo model.RepoInfo, head string) ([]model.PullRequestInfo, error) {
	opts := &gh.PullRequestListOptions{
		State:       "all",
		Head:        repo.Owner + ":" + head,
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var prs []model.PullRequestInfo

	for {
		page, resp, err := c.gh.PullRequests.List(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("listing pull requests for %s head %s: %w", repo.FullName(), head, err)
		}

		for _, pr := range page {
			prs = append(prs, *mapPullRequestInfo(pr))
		}

		if resp.NextPage == 0 {
			return prs, nil
		}
		opts.Page = resp.NextPage
	}
}

// CreateReview submits a review on a pull request.
func (c *Client) CreateReview(ctx context.Context, repo model.RepoInfo, number int, body, event string) error {
	_, _, err := c.gh.PullRequests.CreateReview(ctx, repo.Owner, repo.Name, number, &gh.PullRequestReviewRequest{
		Body:  gh.Ptr(body),
		Event: gh.Ptr(event),
	})
	if err != nil {
		return fmt.Errorf("creating review on %s#%d: %w", repo.FullName(), number, err)
	}

	return nil
}

// CreateCommitStatus posts a commit status.
func (c *Client) CreateCommitStatus(ctx context.Context, repo model.RepoInfo, sha, state, description, targetURL, statusContext string) error {
	_, _, err := c.gh.Repositories.CreateStatus(ctx, repo.Owner, repo.Name, sha, &gh.RepoStatus{
		State:       gh.Ptr(state),
		Description: gh.Ptr(description),
		TargetURL:   gh.Ptr(targetURL),
		Context:     gh.Ptr(statusContext),
	})
	if err != nil {
		return fmt.Errorf("creating status on %s@%s: %w", repo.FullName(), sha, err)
	}

	return nil
}

// ListCollaborators returns the repository's collaborators sorted
// case-insensitively by login. It handles pagination automatically.
func (c *Client) ListCollaborators(ctx context.Context, repo model.RepoInfo) ([]model.GitHubUser, error) {
	opts := &gh.ListCollaboratorsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var users []model.GitHubUser

	for {
		page, resp, err := c.gh.Repositories.ListCollaborators(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("listing collaborators for %s: %w", repo.FullName(), err)
		}

		for _, u := range page {
			users = append(users, model.GitHubUser{
				ID:        fmt.Sprintf("%d", u.GetID()),
				Login:     u.GetLogin(),
				AvatarURL: u.GetAvatarURL(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	sort.Slice(users, func(i, j int) bool {
		return strings.ToLower(users[i].Login) < strings.ToLower(users[j].Login)
	})

	return users, nil
}

// mapRepoInfo converts a go-github Repository to a domain model RepoInfo.
func mapRepoInfo(repo *gh.Repository) *model.RepoInfo {
	return &model.RepoInfo{
		ID:            repo.GetID(),
		Owner:         repo.GetOwner().GetLogin(),
		Name:          repo.GetName(),
		DefaultBranch: repo.GetDefaultBranch(),
		HTMLURL:       repo.GetHTMLURL(),
	}
}

// mapPullRequestInfo converts a go-github PullRequest to a domain model
// PullRequestInfo.
func mapPullRequestInfo(pr *gh.PullRequest) *model.PullRequestInfo {
	return &model.PullRequestInfo{
		Number:   pr.GetNumber(),
		IsOpen:   pr.GetState() == "open",
		IsMerged: !pr.GetMergedAt().IsZero(),
		BaseRef:  pr.GetBase().GetRef(),
		HeadRef:  pr.GetHead().GetRef(),
		HeadSHA:  pr.GetHead().GetSHA(),
	}
}

// mapCommit converts a go-github RepositoryCommit to a normalized domain
// Commit. It uses GetXxx() helper methods exclusively to avoid nil pointer
// panics.
func mapCommit(rc *gh.RepositoryCommit) model.Commit {
	var author *model.CommitAuthor
	if rc.GetCommit().GetAuthor() != nil || rc.GetAuthor() != nil {
		author = &model.CommitAuthor{
			Name:      rc.GetCommit().GetAuthor().GetName(),
			Email:     rc.GetCommit().GetAuthor().GetEmail(),
			Username:  rc.GetAuthor().GetLogin(),
			AvatarURL: rc.GetAuthor().GetAvatarURL(),
		}
	}

	return model.Commit{
		SHA:       rc.GetSHA(),
		Message:   rc.GetCommit().GetMessage(),
		Author:    author,
		Timestamp: rc.GetCommit().GetAuthor().GetDate().Time,
		URL:       rc.GetHTMLURL(),
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
