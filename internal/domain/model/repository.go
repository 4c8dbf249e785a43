package model

import "time"

// Repository is the top-level Git hosting binding. It owns projects
// (restrict-delete) and caches a roster of collaborator identities refreshed
// by a background job.
type Repository struct {
	ID    string
	Name  string
	Owner string // Git host account owning the remote repository.
	Repo  string // Remote repository name under Owner.

	// RepoID is the stable numeric identifier on the Git host, resolved and
	// persisted on first use. Nil until resolved.
	RepoID *int64

	// BranchName optionally overrides the remote default branch as the base
	// for new project branches.
	BranchName string

	// GitHubUsers is the cached collaborator roster, sorted by lowercased
	// login.
	GitHubUsers []GitHubUser

	CurrentlyFetchingUsers bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName returns the owner/repo form used by the Git host API.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Repo
}

// SubscribableBy reports whether the given user may subscribe to this
// repository's notification stream.
func (r Repository) SubscribableBy(userID string) bool {
	return true
}
