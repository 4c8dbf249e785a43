package model

import "time"

// Project is a trackable unit of work bound 1:1 to a repository branch. The
// branch is created lazily on first use. A project owns tasks
// (restrict-delete).
type Project struct {
	ID           string
	RepositoryID string
	Name         string
	Description  string // Markdown source; rendered at the serialization boundary.

	BranchName         string
	HasUnmergedCommits bool

	CurrentlyCreatingPR bool
	PRNumber            *int
	PRIsOpen            bool
	PRIsMerged          bool

	Status ProjectStatus

	// GitHubUsers are the collaborators assigned to this project, drawn from
	// the repository roster.
	GitHubUsers []GitHubUser

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpdateStatus recomputes the derived project status from the statuses of its
// tasks and the merge state of its PR. Merged wins over Review wins over
// In Progress; a project with no started tasks stays Planned.
func (p *Project) UpdateStatus(taskStatuses []TaskStatus) {
	switch {
	case p.PRIsMerged:
		p.Status = ProjectStatusMerged
	case allCompleted(taskStatuses):
		p.Status = ProjectStatusReview
	case anyStarted(taskStatuses):
		p.Status = ProjectStatusInProgress
	}
}

func allCompleted(statuses []TaskStatus) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		if s != TaskStatusCompleted {
			return false
		}
	}
	return true
}

func anyStarted(statuses []TaskStatus) bool {
	for _, s := range statuses {
		if s != TaskStatusPlanned {
			return true
		}
	}
	return false
}

// SubscribableBy reports whether the given user may subscribe to this
// project's notification stream.
func (p Project) SubscribableBy(userID string) bool {
	return true
}
