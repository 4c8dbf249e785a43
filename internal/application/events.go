package application

// Event names pushed over the notification channel. Clients key their UI
// updates off these, so the vocabulary is part of the wire contract.
const (
	EventScratchOrgProvision          = "SCRATCH_ORG_PROVISION"
	EventScratchOrgProvisionFailed    = "SCRATCH_ORG_PROVISION_FAILED"
	EventScratchOrgUpdate             = "SCRATCH_ORG_UPDATE"
	EventScratchOrgFetchChangesFailed = "SCRATCH_ORG_FETCH_CHANGES_FAILED"
	EventScratchOrgDelete             = "SCRATCH_ORG_DELETE"
	EventScratchOrgDeleteFailed       = "SCRATCH_ORG_DELETE_FAILED"
	EventScratchOrgRemove             = "SCRATCH_ORG_REMOVE"
	EventScratchOrgCommitChanges      = "SCRATCH_ORG_COMMIT_CHANGES"
	EventScratchOrgCommitFailed       = "SCRATCH_ORG_COMMIT_CHANGES_FAILED"
	EventScratchOrgRefresh            = "SCRATCH_ORG_REFRESH"
	EventScratchOrgRefreshFailed      = "SCRATCH_ORG_REFRESH_FAILED"

	EventTaskUpdate             = "TASK_UPDATE"
	EventTaskCreatePR           = "TASK_CREATE_PR"
	EventTaskCreatePRFailed     = "TASK_CREATE_PR_FAILED"
	EventTaskSubmitReview       = "TASK_SUBMIT_REVIEW"
	EventTaskSubmitReviewFailed = "TASK_SUBMIT_REVIEW_FAILED"

	EventProjectUpdate         = "PROJECT_UPDATE"
	EventProjectCreatePR       = "PROJECT_CREATE_PR"
	EventProjectCreatePRFailed = "PROJECT_CREATE_PR_FAILED"

	EventRepositoryUpdate      = "REPOSITORY_UPDATE"
	EventRepositoryUpdateError = "REPOSITORY_UPDATE_ERROR"
)
