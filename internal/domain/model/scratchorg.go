package model

import "time"

// OrgCredentials is the opaque credential bundle for a provisioned sandbox.
// AccessToken is stripped before persistence; it is re-derived from the
// refresh token when needed.
type OrgCredentials struct {
	OrgID        string `json:"org_id"`
	Username     string `json:"username"`
	InstanceURL  string `json:"instance_url"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token"`
}

// Clean returns a copy safe for persistence, with the short-lived access
// token removed.
func (c OrgCredentials) Clean() OrgCredentials {
	c.AccessToken = ""
	return c
}

// LoginURL builds the single-use frontdoor login URL for the sandbox.
// Requires a live access token.
func (c OrgCredentials) LoginURL() string {
	if c.InstanceURL == "" || c.AccessToken == "" {
		return ""
	}
	return c.InstanceURL + "/secur/frontdoor.jsp?sid=" + c.AccessToken
}

// SandboxInfo is the provisioner's description of a newly created sandbox.
type SandboxInfo struct {
	SandboxID   string
	InstanceURL string
	ExpiresAt   time.Time
	Credentials OrgCredentials
}

// TargetDirectories maps a retrieval role ("source", "pre", "post", "config")
// to the directories valid for that role in a repository checkout. The first
// entry under "source" is the primary package directory.
type TargetDirectories map[string][]string

// ScratchOrg is an ephemeral provisioned sandbox bound 1:1 to a task.
// Provisioning is asynchronous and may fail, in which case the record is
// deleted or queues its own remote deletion.
type ScratchOrg struct {
	ID              string
	TaskID          string
	OrgType         OrgType
	OwnerID         string
	OwnerGHUsername string

	// LastModifiedAt is set only once initial provisioning (including the
	// flow run) completes. A nil value means subscribers were never told the
	// org existed as active, so teardown notifications are suppressed.
	LastModifiedAt *time.Time

	ExpiresAt *time.Time

	URL             string // Sandbox instance URL; set as soon as the remote sandbox exists.
	LatestCommit    string
	LatestCommitURL string
	LatestCommitAt  *time.Time

	LastCheckedUnsavedChangesAt *time.Time

	// UnsavedChanges is always derivable as the diff between
	// LatestRevisionNumbers and a fresh snapshot; it is never asserted true
	// independent of that diff.
	UnsavedChanges ChangeSet

	// LatestRevisionNumbers is the last-seen revision watermark.
	LatestRevisionNumbers RevisionSnapshot

	CurrentlyRefreshingChanges bool
	CurrentlyCapturingChanges  bool
	CurrentlyRefreshingOrg     bool

	Config OrgCredentials

	DeleteQueuedAt *time.Time

	ValidTargetDirectories TargetDirectories

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubscribableBy reports whether the given user may subscribe to this org's
// notification stream.
func (o ScratchOrg) SubscribableBy(userID string) bool {
	return true
}
