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
var _ driven.ScratchOrgStore = (*ScratchOrgStore)(nil)

// ScratchOrgStore is the SQLite implementation of the ScratchOrgStore port
// interface. Credentials are persisted with the access token already stripped
// by the caller; the revision watermark and change set live in JSON TEXT
// columns.
type ScratchOrgStore struct {
	db *DB
}

// NewScratchOrgStore creates a new ScratchOrgStore backed by the given DB.
func NewScratchOrgStore(db *DB) *ScratchOrgStore {
	return &ScratchOrgStore{db: db}
}

const scratchOrgColumns = `id, task_id, org_type, owner_id, owner_gh_username,
       last_modified_at, expires_at, url, latest_commit, latest_commit_url,
       latest_commit_at, last_checked_unsaved_changes_at, unsaved_changes,
       latest_revision_numbers, currently_refreshing_changes,
       currently_capturing_changes, currently_refreshing_org, config,
       delete_queued_at, valid_target_directories, created_at, updated_at`

// Create inserts a new scratch org record.
func (s *ScratchOrgStore) Create(ctx context.Context, org model.ScratchOrg) error {
	const query = `
		INSERT INTO scratch_orgs (
			id, task_id, org_type, owner_id, owner_gh_username,
			last_modified_at, expires_at, url, latest_commit, latest_commit_url,
			latest_commit_at, last_checked_unsaved_changes_at, unsaved_changes,
			latest_revision_numbers, currently_refreshing_changes,
			currently_capturing_changes, currently_refreshing_org, config,
			delete_queued_at, valid_target_directories, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	fields, err := marshalOrgFields(org)
	if err != nil {
		return err
	}

	_, err = s.db.Writer.ExecContext(ctx, query,
		org.ID, org.TaskID, string(org.OrgType), org.OwnerID, org.OwnerGHUsername,
		timeOrNil(org.LastModifiedAt), timeOrNil(org.ExpiresAt), org.URL,
		org.LatestCommit, org.LatestCommitURL, timeOrNil(org.LatestCommitAt),
		timeOrNil(org.LastCheckedUnsavedChangesAt), fields.unsavedChanges,
		fields.revisions, boolToInt(org.CurrentlyRefreshingChanges),
		boolToInt(org.CurrentlyCapturingChanges), boolToInt(org.CurrentlyRefreshingOrg),
		fields.config, timeOrNil(org.DeleteQueuedAt), fields.targetDirs,
		org.CreatedAt.UTC(), org.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create scratch org %s: %w", org.ID, err)
	}

	return nil
}

// Get retrieves a scratch org by id. Returns driven.ErrScratchOrgNotFound if
// it does not exist.
func (s *ScratchOrgStore) Get(ctx context.Context, id string) (*model.ScratchOrg, error) {
	const query = `SELECT ` + scratchOrgColumns + ` FROM scratch_orgs WHERE id = ?`

	org, err := scanScratchOrg(s.db.Reader.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, driven.ErrScratchOrgNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scratch org %s: %w", id, err)
	}

	return org, nil
}

// ListByTask returns all scratch orgs of the task ordered by creation time.
func (s *ScratchOrgStore) ListByTask(ctx context.Context, taskID string) ([]model.ScratchOrg, error) {
	const query = `SELECT ` + scratchOrgColumns + ` FROM scratch_orgs WHERE task_id = ? ORDER BY created_at`

	rows, err := s.db.Reader.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("query scratch orgs: %w", err)
	}
	defer rows.Close()

	var orgs []model.ScratchOrg
	for rows.Next() {
		org, err := scanScratchOrg(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scratch org: %w", err)
		}
		orgs = append(orgs, *org)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scratch orgs: %w", err)
	}

	return orgs, nil
}

// Save persists the full current state of an existing scratch org. Returns
// driven.ErrScratchOrgNotFound if the row is gone.
func (s *ScratchOrgStore) Save(ctx context.Context, org model.ScratchOrg) error {
	const query = `
		UPDATE scratch_orgs SET
			org_type = ?, owner_id = ?, owner_gh_username = ?, last_modified_at = ?,
			expires_at = ?, url = ?, latest_commit = ?, latest_commit_url = ?,
			latest_commit_at = ?, last_checked_unsaved_changes_at = ?,
			unsaved_changes = ?, latest_revision_numbers = ?,
			currently_refreshing_changes = ?, currently_capturing_changes = ?,
			currently_refreshing_org = ?, config = ?, delete_queued_at = ?,
			valid_target_directories = ?, updated_at = ?
		WHERE id = ?
	`

	fields, err := marshalOrgFields(org)
	if err != nil {
		return err
	}

	result, err := s.db.Writer.ExecContext(ctx, query,
		string(org.OrgType), org.OwnerID, org.OwnerGHUsername,
		timeOrNil(org.LastModifiedAt), timeOrNil(org.ExpiresAt), org.URL,
		org.LatestCommit, org.LatestCommitURL, timeOrNil(org.LatestCommitAt),
		timeOrNil(org.LastCheckedUnsavedChangesAt), fields.unsavedChanges,
		fields.revisions, boolToInt(org.CurrentlyRefreshingChanges),
		boolToInt(org.CurrentlyCapturingChanges), boolToInt(org.CurrentlyRefreshingOrg),
		fields.config, timeOrNil(org.DeleteQueuedAt), fields.targetDirs,
		time.Now().UTC(), org.ID,
	)
	if err != nil {
		return fmt.Errorf("save scratch org %s: %w", org.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return driven.ErrScratchOrgNotFound
	}

	return nil
}

// Delete removes the record. Deleting an already-deleted org is a no-op.
func (s *ScratchOrgStore) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM scratch_orgs WHERE id = ?`

	if _, err := s.db.Writer.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete scratch org %s: %w", id, err)
	}

	return nil
}

type orgJSONFields struct {
	unsavedChanges string
	revisions      string
	config         string
	targetDirs     string
}

func marshalOrgFields(org model.ScratchOrg) (*orgJSONFields, error) {
	changes := org.UnsavedChanges
	if changes == nil {
		changes = model.ChangeSet{}
	}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("marshal unsaved changes: %w", err)
	}

	revisions := org.LatestRevisionNumbers
	if revisions == nil {
		revisions = model.RevisionSnapshot{}
	}
	revisionsJSON, err := json.Marshal(revisions)
	if err != nil {
		return nil, fmt.Errorf("marshal revision numbers: %w", err)
	}

	configJSON, err := json.Marshal(org.Config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	dirs := org.ValidTargetDirectories
	if dirs == nil {
		dirs = model.TargetDirectories{}
	}
	dirsJSON, err := json.Marshal(dirs)
	if err != nil {
		return nil, fmt.Errorf("marshal target directories: %w", err)
	}

	return &orgJSONFields{
		unsavedChanges: string(changesJSON),
		revisions:      string(revisionsJSON),
		config:         string(configJSON),
		targetDirs:     string(dirsJSON),
	}, nil
}

func scanScratchOrg(s scanner) (*model.ScratchOrg, error) {
	var org model.ScratchOrg
	var orgType string
	var lastModified, expires, latestCommitAt, lastChecked, deleteQueued sql.NullString
	var changesJSON, revisionsJSON, configJSON, dirsJSON string
	var refreshingChanges, capturingChanges, refreshingOrg int
	var createdAt, updatedAt string

	err := s.Scan(
		&org.ID, &org.TaskID, &orgType, &org.OwnerID, &org.OwnerGHUsername,
		&lastModified, &expires, &org.URL, &org.LatestCommit, &org.LatestCommitURL,
		&latestCommitAt, &lastChecked, &changesJSON, &revisionsJSON,
		&refreshingChanges, &capturingChanges, &refreshingOrg, &configJSON,
		&deleteQueued, &dirsJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	org.OrgType = model.OrgType(orgType)
	org.CurrentlyRefreshingChanges = refreshingChanges != 0
	org.CurrentlyCapturingChanges = capturingChanges != 0
	org.CurrentlyRefreshingOrg = refreshingOrg != 0

	if err := json.Unmarshal([]byte(changesJSON), &org.UnsavedChanges); err != nil {
		return nil, fmt.Errorf("unmarshal unsaved changes: %w", err)
	}
	if err := json.Unmarshal([]byte(revisionsJSON), &org.LatestRevisionNumbers); err != nil {
		return nil, fmt.Errorf("unmarshal revision numbers: %w", err)
	}
	if err := json.Unmarshal([]byte(configJSON), &org.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := json.Unmarshal([]byte(dirsJSON), &org.ValidTargetDirectories); err != nil {
		return nil, fmt.Errorf("unmarshal target directories: %w", err)
	}

	org.LastModifiedAt, err = parseNullTime(lastModified)
	if err != nil {
		return nil, fmt.Errorf("parse last_modified_at: %w", err)
	}

	org.ExpiresAt, err = parseNullTime(expires)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	org.LatestCommitAt, err = parseNullTime(latestCommitAt)
	if err != nil {
		return nil, fmt.Errorf("parse latest_commit_at: %w", err)
	}

	org.LastCheckedUnsavedChangesAt, err = parseNullTime(lastChecked)
	if err != nil {
		return nil, fmt.Errorf("parse last_checked_unsaved_changes_at: %w", err)
	}

	org.DeleteQueuedAt, err = parseNullTime(deleteQueued)
	if err != nil {
		return nil, fmt.Errorf("parse delete_queued_at: %w", err)
	}

	org.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	org.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &org, nil
}
