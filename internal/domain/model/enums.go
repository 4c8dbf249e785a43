package model

// OrgType distinguishes the two kinds of scratch orgs a task can own.
type OrgType string

const (
	OrgTypeDev OrgType = "dev"
	OrgTypeQA  OrgType = "qa"
)

// TaskStatus represents the lifecycle state of a task. Status only advances
// to Completed through an explicit finalize call; PR flags are an
// independent axis.
type TaskStatus string

const (
	TaskStatusPlanned    TaskStatus = "planned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// ProjectStatus is derived from the statuses of the project's tasks plus the
// project PR's merge state.
type ProjectStatus string

const (
	ProjectStatusPlanned    ProjectStatus = "planned"
	ProjectStatusInProgress ProjectStatus = "in_progress"
	ProjectStatusReview     ProjectStatus = "review"
	ProjectStatusMerged     ProjectStatus = "merged"
)

// ReviewStatus is the outcome of a submitted task review.
type ReviewStatus string

const (
	ReviewStatusApproved         ReviewStatus = "approved"
	ReviewStatusChangesRequested ReviewStatus = "changes_requested"
)
