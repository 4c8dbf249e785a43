package model

import "time"

// Task is a unit of work scoped to one developer, owned by exactly one
// project. Its branch is created from the project branch during scratch org
// provisioning; OriginSHA records the branch point.
type Task struct {
	ID          string
	ProjectID   string
	Name        string
	Description string // Markdown source; rendered at the serialization boundary.

	BranchName string

	// OrgConfigName names the sandbox configuration and automation flow used
	// when provisioning orgs for this task. Empty falls back to the
	// per-org-type default.
	OrgConfigName string

	// Commits are the captured commit records on the task branch, newest
	// first, bounded below (exclusive) by OriginSHA.
	Commits   []Commit
	OriginSHA string

	// CapturedSHAs records the shas of commits produced by the change capture
	// pipeline, in capture order.
	CapturedSHAs []string

	HasUnmergedCommits bool

	CurrentlyCreatingPR bool
	PRNumber            *int
	PRIsOpen            bool

	CurrentlySubmittingReview bool
	ReviewSubmittedAt         *time.Time
	ReviewValid               bool
	ReviewStatus              ReviewStatus
	ReviewSHA                 string

	Status TaskStatus

	AssignedDev *GitHubUser
	AssignedQA  *GitHubUser

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpdateReviewValid recomputes whether the recorded review still targets the
// head of the task branch.
func (t *Task) UpdateReviewValid() {
	t.ReviewValid = t.ReviewSHA != "" &&
		len(t.Commits) > 0 &&
		t.ReviewSHA == t.Commits[0].SHA
}

// AddCapturedSHA appends a commit sha produced by the capture pipeline.
func (t *Task) AddCapturedSHA(sha string) {
	t.CapturedSHAs = append(t.CapturedSHAs, sha)
}

// SubscribableBy reports whether the given user may subscribe to this task's
// notification stream.
func (t Task) SubscribableBy(userID string) bool {
	return true
}
