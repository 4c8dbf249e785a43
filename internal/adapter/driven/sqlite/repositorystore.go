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
var _ driven.RepositoryStore = (*RepositoryStore)(nil)

// RepositoryStore is the SQLite implementation of the RepositoryStore port
// interface.
type RepositoryStore struct {
	db *DB
}

// NewRepositoryStore creates a new RepositoryStore backed by the given DB.
func NewRepositoryStore(db *DB) *RepositoryStore {
	return &RepositoryStore{db: db}
}

const repositoryColumns = `id, name, owner, repo, repo_id, branch_name, github_users,
       currently_fetching_users, created_at, updated_at`

// Create inserts a new repository. The collaborator roster is serialized as a
// JSON array in the TEXT column.
func (s *RepositoryStore) Create(ctx context.Context, repo model.Repository) error {
	const query = `
		INSERT INTO repositories (
			id, name, owner, repo, repo_id, branch_name, github_users,
			currently_fetching_users, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	usersJSON, err := marshalUsers(repo.GitHubUsers)
	if err != nil {
		return err
	}

	_, err = s.db.Writer.ExecContext(ctx, query,
		repo.ID, repo.Name, repo.Owner, repo.Repo, repo.RepoID, repo.BranchName,
		usersJSON, boolToInt(repo.CurrentlyFetchingUsers),
		repo.CreatedAt.UTC(), repo.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create repository %s: %w", repo.FullName(), err)
	}

	return nil
}

// Get retrieves a repository by id. Returns driven.ErrRepositoryNotFound if it
// does not exist.
func (s *RepositoryStore) Get(ctx context.Context, id string) (*model.Repository, error) {
	const query = `SELECT ` + repositoryColumns + ` FROM repositories WHERE id = ?`

	repo, err := scanRepository(s.db.Reader.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, driven.ErrRepositoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", id, err)
	}

	return repo, nil
}

// ListAll returns all repositories ordered by name.
func (s *RepositoryStore) ListAll(ctx context.Context) ([]model.Repository, error) {
	const query = `SELECT ` + repositoryColumns + ` FROM repositories ORDER BY name`

	rows, err := s.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query repositories: %w", err)
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

// Save persists the full current state of an existing repository. Returns
// driven.ErrRepositoryNotFound if the row is gone.
func (s *RepositoryStore) Save(ctx context.Context, repo model.Repository) error {
	const query = `
		UPDATE repositories SET
			name = ?, owner = ?, repo = ?, repo_id = ?, branch_name = ?,
			github_users = ?, currently_fetching_users = ?, updated_at = ?
		WHERE id = ?
	`

	usersJSON, err := marshalUsers(repo.GitHubUsers)
	if err != nil {
		return err
	}

	result, err := s.db.Writer.ExecContext(ctx, query,
		repo.Name, repo.Owner, repo.Repo, repo.RepoID, repo.BranchName,
		usersJSON, boolToInt(repo.CurrentlyFetchingUsers), time.Now().UTC(),
		repo.ID,
	)
	if err != nil {
		return fmt.Errorf("save repository %s: %w", repo.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return driven.ErrRepositoryNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRepository(s scanner) (*model.Repository, error) {
	var repo model.Repository
	var repoID sql.NullInt64
	var usersJSON string
	var fetchingUsers int
	var createdAt, updatedAt string

	err := s.Scan(
		&repo.ID, &repo.Name, &repo.Owner, &repo.Repo, &repoID, &repo.BranchName,
		&usersJSON, &fetchingUsers, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if repoID.Valid {
		repo.RepoID = &repoID.Int64
	}
	repo.CurrentlyFetchingUsers = fetchingUsers != 0

	if err := json.Unmarshal([]byte(usersJSON), &repo.GitHubUsers); err != nil {
		return nil, fmt.Errorf("unmarshal github_users: %w", err)
	}

	repo.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	repo.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &repo, nil
}

func marshalUsers(users []model.GitHubUser) (string, error) {
	if users == nil {
		users = []model.GitHubUser{}
	}
	data, err := json.Marshal(users)
	if err != nil {
		return "", fmt.Errorf("marshal github users: %w", err)
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseTime handles the timestamp formats SQLite may hand back depending on
// how the value was written.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %q", s)
}

// parseNullTime parses an optional timestamp column into a *time.Time.
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// timeOrNil converts a *time.Time into a driver-friendly value, preserving
// NULL for nil.
func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
