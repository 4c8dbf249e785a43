package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
	"github.com/ericfisherdev/orgforge/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TaskStore = (*TaskStore)(nil)

// TaskStore is the SQLite implementation of the TaskStore port interface.
// Commit history, captured shas, and assignees live in JSON TEXT columns.
type TaskStore struct {
	db *DB
}

// NewTaskStore creates a new TaskStore backed by the given DB.
func NewTaskStore(db *DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskColumns = `id, project_id, name, description, branch_name, org_config_name,
       commits, origin_sha, captured_shas, has_unmerged_commits,
       currently_creating_pr, pr_number, pr_is_open,
       currently_submitting_review, review_submitted_at, review_valid,
       review_status, review_sha, status, assigned_dev, assigned_qa,
       created_at, updated_at`

// Create inserts a new task.
func (s *TaskStore) Create(ctx context.Context, task model.Task) error {
	const query = `
		INSERT INTO tasks (
			id, project_id, name, description, branch_name, org_config_name,
			commits, origin_sha, captured_shas, has_unmerged_commits,
			currently_creating_pr, pr_number, pr_is_open,
			currently_submitting_review, review_submitted_at, review_valid,
			review_status, review_sha, status, assigned_dev, assigned_qa,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	fields, err := marshalTaskFields(task)
	if err != nil {
		return err
	}

	_, err = s.db.Writer.ExecContext(ctx, query,
		task.ID, task.ProjectID, task.Name, task.Description, task.BranchName,
		task.OrgConfigName, fields.commits, task.OriginSHA, fields.capturedSHAs,
		boolToInt(task.HasUnmergedCommits), boolToInt(task.CurrentlyCreatingPR),
		task.PRNumber, boolToInt(task.PRIsOpen),
		boolToInt(task.CurrentlySubmittingReview), timeOrNil(task.ReviewSubmittedAt),
		boolToInt(task.ReviewValid), string(task.ReviewStatus), task.ReviewSHA,
		string(task.Status), fields.assignedDev, fields.assignedQA,
		task.CreatedAt.UTC(), task.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.Name, err)
	}

	return nil
}

// Get retrieves a task by id. Returns driven.ErrTaskNotFound if it does not
// exist.
func (s *TaskStore) Get(ctx context.Context, id string) (*model.Task, error) {
	const query = `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	task, err := scanTask(s.db.Reader.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, driven.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}

	return task, nil
}

// ListByProject returns all tasks of the project ordered by creation time.
func (s *TaskStore) ListByProject(ctx context.Context, projectID string) ([]model.Task, error) {
	const query = `SELECT ` + taskColumns + ` FROM tasks WHERE project_id = ? ORDER BY created_at`

	return s.queryTasks(ctx, query, projectID)
}

// ListByBranch returns every task across the repository's projects whose
// branch is the named one. Commits ingested for a branch attach to all tasks
// sharing it.
func (s *TaskStore) ListByBranch(ctx context.Context, repositoryID, branchName string) ([]model.Task, error) {
	const query = `
		SELECT ` + taskColumnsQualified + `
		FROM tasks t
		JOIN projects p ON p.id = t.project_id
		WHERE p.repository_id = ? AND t.branch_name = ?
		ORDER BY t.created_at
	`

	return s.queryTasks(ctx, query, repositoryID, branchName)
}

const taskColumnsQualified = `t.id, t.project_id, t.name, t.description, t.branch_name, t.org_config_name,
       t.commits, t.origin_sha, t.captured_shas, t.has_unmerged_commits,
       t.currently_creating_pr, t.pr_number, t.pr_is_open,
       t.currently_submitting_review, t.review_submitted_at, t.review_valid,
       t.review_status, t.review_sha, t.status, t.assigned_dev, t.assigned_qa,
       t.created_at, t.updated_at`

// ListStatusesByProject returns just the statuses of the project's tasks.
func (s *TaskStore) ListStatusesByProject(ctx context.Context, projectID string) ([]model.TaskStatus, error) {
	const query = `SELECT status FROM tasks WHERE project_id = ?`

	rows, err := s.db.Reader.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("query task statuses: %w", err)
	}
	defer rows.Close()

	var statuses []model.TaskStatus
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return nil, fmt.Errorf("scan task status: %w", err)
		}
		statuses = append(statuses, model.TaskStatus(status))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task statuses: %w", err)
	}

	return statuses, nil
}

// Save persists the full current state of an existing task. Returns
// driven.ErrTaskNotFound if the row is gone.
func (s *TaskStore) Save(ctx context.Context, task model.Task) error {
	const query = `
		UPDATE tasks SET
			name = ?, description = ?, branch_name = ?, org_config_name = ?,
			commits = ?, origin_sha = ?, captured_shas = ?, has_unmerged_commits = ?,
			currently_creating_pr = ?, pr_number = ?, pr_is_open = ?,
			currently_submitting_review = ?, review_submitted_at = ?, review_valid = ?,
			review_status = ?, review_sha = ?, status = ?, assigned_dev = ?,
			assigned_qa = ?, updated_at = ?
		WHERE id = ?
	`

	fields, err := marshalTaskFields(task)
	if err != nil {
		return err
	}

	result, err := s.db.Writer.ExecContext(ctx, query,
		task.Name, task.Description, task.BranchName, task.OrgConfigName,
		fields.commits, task.OriginSHA, fields.capturedSHAs,
		boolToInt(task.HasUnmergedCommits), boolToInt(task.CurrentlyCreatingPR),
		task.PRNumber, boolToInt(task.PRIsOpen),
		boolToInt(task.CurrentlySubmittingReview), timeOrNil(task.ReviewSubmittedAt),
		boolToInt(task.ReviewValid), string(task.ReviewStatus), task.ReviewSHA,
		string(task.Status), fields.assignedDev, fields.assignedQA,
		time.Now().UTC(), task.ID,
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return driven.ErrTaskNotFound
	}

	return nil
}

func (s *TaskStore) queryTasks(ctx context.Context, query string, args ...any) ([]model.Task, error) {
	rows, err := s.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, nil
}

type taskJSONFields struct {
	commits      string
	capturedSHAs string
	assignedDev  any
	assignedQA   any
}

func marshalTaskFields(task model.Task) (*taskJSONFields, error) {
	commits := task.Commits
	if commits == nil {
		commits = []model.Commit{}
	}
	commitsJSON, err := json.Marshal(commits)
	if err != nil {
		return nil, fmt.Errorf("marshal commits: %w", err)
	}

	shas := task.CapturedSHAs
	if shas == nil {
		shas = []string{}
	}
	shasJSON, err := json.Marshal(shas)
	if err != nil {
		return nil, fmt.Errorf("marshal captured shas: %w", err)
	}

	fields := &taskJSONFields{
		commits:      string(commitsJSON),
		capturedSHAs: string(shasJSON),
	}

	if task.AssignedDev != nil {
		data, err := json.Marshal(task.AssignedDev)
		if err != nil {
			return nil, fmt.Errorf("marshal assigned dev: %w", err)
		}
		fields.assignedDev = string(data)
	}

	if task.AssignedQA != nil {
		data, err := json.Marshal(task.AssignedQA)
		if err != nil {
			return nil, fmt.Errorf("marshal assigned qa: %w", err)
		}
		fields.assignedQA = string(data)
	}

	return fields, nil
}

func scanTask(s scanner) (*model.Task, error) {
	var task model.Task
	var commitsJSON, shasJSON string
	var hasUnmerged, creatingPR, prOpen, submittingReview, reviewValid int
	var prNumber sql.NullInt64
	var reviewSubmittedAt sql.NullString
	var reviewStatus, status string
	var assignedDev, assignedQA sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(
		&task.ID, &task.ProjectID, &task.Name, &task.Description,
		&task.BranchName, &task.OrgConfigName, &commitsJSON, &task.OriginSHA,
		&shasJSON, &hasUnmerged, &creatingPR, &prNumber, &prOpen,
		&submittingReview, &reviewSubmittedAt, &reviewValid, &reviewStatus,
		&task.ReviewSHA, &status, &assignedDev, &assignedQA,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.HasUnmergedCommits = hasUnmerged != 0
	task.CurrentlyCreatingPR = creatingPR != 0
	task.PRIsOpen = prOpen != 0
	task.CurrentlySubmittingReview = submittingReview != 0
	task.ReviewValid = reviewValid != 0
	task.ReviewStatus = model.ReviewStatus(reviewStatus)
	task.Status = model.TaskStatus(status)

	if prNumber.Valid {
		n := int(prNumber.Int64)
		task.PRNumber = &n
	}

	if err := json.Unmarshal([]byte(commitsJSON), &task.Commits); err != nil {
		return nil, fmt.Errorf("unmarshal commits: %w", err)
	}

	if err := json.Unmarshal([]byte(shasJSON), &task.CapturedSHAs); err != nil {
		return nil, fmt.Errorf("unmarshal captured shas: %w", err)
	}

	if assignedDev.Valid {
		task.AssignedDev = &model.GitHubUser{}
		if err := json.Unmarshal([]byte(assignedDev.String), task.AssignedDev); err != nil {
			return nil, fmt.Errorf("unmarshal assigned dev: %w", err)
		}
	}

	if assignedQA.Valid {
		task.AssignedQA = &model.GitHubUser{}
		if err := json.Unmarshal([]byte(assignedQA.String), task.AssignedQA); err != nil {
			return nil, fmt.Errorf("unmarshal assigned qa: %w", err)
		}
	}

	task.ReviewSubmittedAt, err = parseNullTime(reviewSubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("parse review_submitted_at: %w", err)
	}

	task.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	task.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &task, nil
}
