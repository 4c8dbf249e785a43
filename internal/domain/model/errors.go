package model

import "fmt"

// RemoteQueryError indicates the remote metadata store was unreachable or
// rejected a query. It is not retried locally; callers surface it to the
// originating lifecycle unit.
type RemoteQueryError struct {
	Op  string
	Err error
}

func (e *RemoteQueryError) Error() string {
	return fmt.Sprintf("metadata store query %s: %v", e.Op, e.Err)
}

func (e *RemoteQueryError) Unwrap() error { return e.Err }

// RemoteHostError indicates a Git host API failure, transient or permanent.
type RemoteHostError struct {
	Op  string
	Err error
}

func (e *RemoteHostError) Error() string {
	return fmt.Sprintf("git host %s: %v", e.Op, e.Err)
}

func (e *RemoteHostError) Unwrap() error { return e.Err }

// ProvisioningError indicates sandbox creation or flow execution failed.
type ProvisioningError struct {
	Step string
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning %s: %v", e.Step, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// CommitPipelineError indicates a failure anywhere in the change capture and
// commit pipeline. The revision watermark is never partially advanced when
// this error is returned.
type CommitPipelineError struct {
	Step string
	Err  error
}

func (e *CommitPipelineError) Error() string {
	return fmt.Sprintf("commit pipeline %s: %v", e.Step, e.Err)
}

func (e *CommitPipelineError) Unwrap() error { return e.Err }

// TaskReviewIntegrityError indicates a review was submitted against a task
// whose review target is stale or missing.
type TaskReviewIntegrityError struct {
	Reason string
}

func (e *TaskReviewIntegrityError) Error() string {
	return "cannot submit review for this task: " + e.Reason
}

// UnsafeArchiveError indicates an extracted archive contained a structurally
// unsafe entry (absolute path or parent-directory traversal). Extraction is
// rejected before any file is written.
type UnsafeArchiveError struct {
	Path string
}

func (e *UnsafeArchiveError) Error() string {
	return fmt.Sprintf("archive contains unsafe path %q", e.Path)
}
