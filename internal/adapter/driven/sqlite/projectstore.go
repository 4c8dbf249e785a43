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
var _ driven.ProjectStore = (*ProjectStore)(nil)

// ProjectStore is the SQLite implementation of the ProjectStore port
// interface. The schema restrict-deletes projects that still own tasks.
type ProjectStore struct {
	db *DB
}

// NewProjectStore creates a new ProjectStore backed by the given DB.
func NewProjectStore(db *DB) *ProjectStore {
	return &ProjectStore{db: db}
}

const projectColumns = `id, repository_id, name, description, branch_name, has_unmerged_commits,
       currently_creating_pr, pr_number, pr_is_open, pr_is_merged, status,
       github_users, created_at, updated_at`

// Create inserts a new project.
func (s *ProjectStore) Create(ctx context.Context, project model.Project) error {
	const query = `
		INSERT INTO projects (
			id, repository_id, name, description, branch_name, has_unmerged_commits,
			currently_creating_pr, pr_number, pr_is_open, pr_is_merged, status,
			github_users, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	usersJSON, err := marshalUsers(project.GitHubUsers)
	if err != nil {
		return err
	}

	_, err = s.db.Writer.ExecContext(ctx, query,
		project.ID, project.RepositoryID, project.Name, project.Description,
		project.BranchName, boolToInt(project.HasUnmergedCommits),
		boolToInt(project.CurrentlyCreatingPR), project.PRNumber,
		boolToInt(project.PRIsOpen), boolToInt(project.PRIsMerged),
		string(project.Status), usersJSON,
		project.CreatedAt.UTC(), project.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create project %s: %w", project.Name, err)
	}

	return nil
}

// Get retrieves a project by id. Returns driven.ErrProjectNotFound if it does
// not exist.
func (s *ProjectStore) Get(ctx context.Context, id string) (*model.Project, error) {
	const query = `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`

	project, err := scanProject(s.db.Reader.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, driven.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}

	return project, nil
}

// ListByRepository returns all projects of the repository ordered by creation
// time, newest first.
func (s *ProjectStore) ListByRepository(ctx context.Context, repositoryID string) ([]model.Project, error) {
	const query = `SELECT ` + projectColumns + ` FROM projects WHERE repository_id = ? ORDER BY created_at DESC`

	rows, err := s.db.Reader.QueryContext(ctx, query, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	return projects, nil
}

// Save persists the full current state of an existing project. Returns
// driven.ErrProjectNotFound if the row is gone.
func (s *ProjectStore) Save(ctx context.Context, project model.Project) error {
	const query = `
		UPDATE projects SET
			name = ?, description = ?, branch_name = ?, has_unmerged_commits = ?,
			currently_creating_pr = ?, pr_number = ?, pr_is_open = ?, pr_is_merged = ?,
			status = ?, github_users = ?, updated_at = ?
		WHERE id = ?
	`

	usersJSON, err := marshalUsers(project.GitHubUsers)
	if err != nil {
		return err
	}

	result, err := s.db.Writer.ExecContext(ctx, query,
		project.Name, project.Description, project.BranchName,
		boolToInt(project.HasUnmergedCommits), boolToInt(project.CurrentlyCreatingPR),
		project.PRNumber, boolToInt(project.PRIsOpen), boolToInt(project.PRIsMerged),
		string(project.Status), usersJSON, time.Now().UTC(),
		project.ID,
	)
	if err != nil {
		return fmt.Errorf("save project %s: %w", project.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return driven.ErrProjectNotFound
	}

	return nil
}

func scanProject(s scanner) (*model.Project, error) {
	var project model.Project
	var hasUnmerged, creatingPR, prOpen, prMerged int
	var prNumber sql.NullInt64
	var status, usersJSON string
	var createdAt, updatedAt string

	err := s.Scan(
		&project.ID, &project.RepositoryID, &project.Name, &project.Description,
		&project.BranchName, &hasUnmerged, &creatingPR, &prNumber, &prOpen,
		&prMerged, &status, &usersJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	project.HasUnmergedCommits = hasUnmerged != 0
	project.CurrentlyCreatingPR = creatingPR != 0
	project.PRIsOpen = prOpen != 0
	project.PRIsMerged = prMerged != 0
	project.Status = model.ProjectStatus(status)

	if prNumber.Valid {
		n := int(prNumber.Int64)
		project.PRNumber = &n
	}

	if err := json.Unmarshal([]byte(usersJSON), &project.GitHubUsers); err != nil {
		return nil, fmt.Errorf("unmarshal github_users: %w", err)
	}

	project.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	project.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &project, nil
}
