package model

import "time"

// CommitAuthor identifies the author of a captured commit. Username and
// AvatarURL are empty when the Git host has no account for the author email.
type CommitAuthor struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// Commit is the normalized representation of a commit on a task branch,
// captured from the Git host and stored on the owning task.
type Commit struct {
	SHA       string        `json:"id"`
	Message   string        `json:"message"`
	Author    *CommitAuthor `json:"author"`
	Timestamp time.Time     `json:"timestamp"`
	URL       string        `json:"url"`
}

// RepoInfo is a resolved live handle to a remote repository.
type RepoInfo struct {
	ID            int64
	Owner         string
	Name          string
	DefaultBranch string
	HTMLURL       string
}

// FullName returns the owner/name form used by the Git host API.
func (r RepoInfo) FullName() string {
	return r.Owner + "/" + r.Name
}

// PullRequestInfo is the gateway's view of a pull request's state.
type PullRequestInfo struct {
	Number   int
	IsOpen   bool
	IsMerged bool
	BaseRef  string
	HeadRef  string
	HeadSHA  string
}

// GitHubUser is a cached collaborator identity on a repository roster.
type GitHubUser struct {
	ID        string `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}
