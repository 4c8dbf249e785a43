// Package httphandler is the HTTP driving adapter that serves the REST API.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/orgforge/internal/application"
	"github.com/ericfisherdev/orgforge/internal/domain/model"
	"github.com/ericfisherdev/orgforge/internal/domain/port/driven"
)

// Handler exposes the repository/project/task/org lifecycle over REST. All
// long-running operations are enqueued and answered with 202 Accepted; their
// outcomes arrive over the websocket channel.
type Handler struct {
	repos     driven.RepositoryStore
	projects  driven.ProjectStore
	tasks     driven.TaskStore
	orgs      driven.ScratchOrgStore
	orgSvc    *application.OrgService
	reviewSvc *application.ReviewService
	syncSvc   *application.SyncService
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	repos driven.RepositoryStore,
	projects driven.ProjectStore,
	tasks driven.TaskStore,
	orgs driven.ScratchOrgStore,
	orgSvc *application.OrgService,
	reviewSvc *application.ReviewService,
	syncSvc *application.SyncService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		repos:     repos,
		projects:  projects,
		tasks:     tasks,
		orgs:      orgs,
		orgSvc:    orgSvc,
		reviewSvc: reviewSvc,
		syncSvc:   syncSvc,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware. wsHandler serves the websocket
// upgrade endpoint.
func NewServeMux(h *Handler, wsHandler http.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/repositories", h.ListRepositories)
	mux.HandleFunc("POST /api/v1/repositories", h.CreateRepository)
	mux.HandleFunc("GET /api/v1/repositories/{id}", h.GetRepository)
	mux.HandleFunc("GET /api/v1/repositories/{id}/projects", h.ListProjects)
	mux.HandleFunc("POST /api/v1/repositories/{id}/projects", h.CreateProject)
	mux.HandleFunc("POST /api/v1/repositories/{id}/refresh-users", h.RefreshUsers)

	mux.HandleFunc("GET /api/v1/projects/{id}", h.GetProject)
	mux.HandleFunc("GET /api/v1/projects/{id}/tasks", h.ListTasks)
	mux.HandleFunc("POST /api/v1/projects/{id}/tasks", h.CreateTask)
	mux.HandleFunc("POST /api/v1/projects/{id}/create-pr", h.CreateProjectPR)

	mux.HandleFunc("GET /api/v1/tasks/{id}", h.GetTask)
	mux.HandleFunc("GET /api/v1/tasks/{id}/orgs", h.ListOrgs)
	mux.HandleFunc("POST /api/v1/tasks/{id}/orgs", h.CreateOrg)
	mux.HandleFunc("POST /api/v1/tasks/{id}/create-pr", h.CreateTaskPR)
	mux.HandleFunc("POST /api/v1/tasks/{id}/submit-review", h.SubmitReview)

	mux.HandleFunc("GET /api/v1/orgs/{id}", h.GetOrg)
	mux.HandleFunc("DELETE /api/v1/orgs/{id}", h.DeleteOrg)
	mux.HandleFunc("POST /api/v1/orgs/{id}/refresh", h.RefreshOrg)
	mux.HandleFunc("POST /api/v1/orgs/{id}/fetch-changes", h.FetchChanges)
	mux.HandleFunc("POST /api/v1/orgs/{id}/commit", h.CommitChanges)

	mux.HandleFunc("POST /api/v1/hooks/push", h.PushHook)
	mux.HandleFunc("POST /api/v1/hooks/pr", h.PRHook)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	if wsHandler == nil {
		return wrapped
	}

	// The websocket upgrade needs the raw ResponseWriter (hijacking), so it
	// bypasses the status-capturing middleware.
	root := http.NewServeMux()
	root.Handle("GET /ws", wsHandler)
	root.Handle("/", wrapped)
	return root
}

// decodeBody decodes the request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// handleStoreError maps store sentinel errors to 404 and everything else to
// 500.
func (h *Handler) handleStoreError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, driven.ErrRepositoryNotFound),
		errors.Is(err, driven.ErrProjectNotFound),
		errors.Is(err, driven.ErrTaskNotFound),
		errors.Is(err, driven.ErrScratchOrgNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	default:
		h.logger.Error("store error", "what", what, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// queueOrFail maps a queue rejection to 503.
func (h *Handler) queueOrFail(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	h.logger.Error("enqueue failed", "error", err)
	writeError(w, http.StatusServiceUnavailable, "server busy, try again later")
	return false
}

// CreateRepositoryRequest is the JSON body for the create repository endpoint.
type CreateRepositoryRequest struct {
	Name       string `json:"name"`
	Owner      string `json:"repo_owner"`
	Repo       string `json:"repo_name"`
	BranchName string `json:"branch_name"`
}

// ListRepositories returns all connected repositories.
func (h *Handler) ListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.repos.ListAll(r.Context())
	if err != nil {
		h.handleStoreError(w, err, "repositories")
		return
	}

	resp := make([]map[string]any, 0, len(repos))
	for _, repo := range repos {
		resp = append(resp, application.SerializeRepository(repo))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateRepository connects a remote repository.
func (h *Handler) CreateRepository(w http.ResponseWriter, r *http.Request) {
	var req CreateRepositoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Owner == "" || req.Repo == "" {
		writeError(w, http.StatusBadRequest, "repo_owner and repo_name are required")
		return
	}
	if req.Name == "" {
		req.Name = req.Repo
	}

	now := time.Now().UTC()
	repo := model.Repository{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Owner:       req.Owner,
		Repo:        req.Repo,
		BranchName:  req.BranchName,
		GitHubUsers: []model.GitHubUser{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.repos.Create(r.Context(), repo); err != nil {
		h.logger.Error("creating repository", "error", err)
		writeError(w, http.StatusConflict, "repository already connected")
		return
	}

	writeJSON(w, http.StatusCreated, application.SerializeRepository(repo))
}

// GetRepository returns a single repository.
func (h *Handler) GetRepository(w http.ResponseWriter, r *http.Request) {
	repo, err := h.repos.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleStoreError(w, err, "repository")
		return
	}
	writeJSON(w, http.StatusOK, application.SerializeRepository(*repo))
}

// RefreshUsers queues a collaborator roster refresh.
func (h *Handler) RefreshUsers(w http.ResponseWriter, r *http.Request) {
	repo, err := h.repos.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleStoreError(w, err, "repository")
		return
	}

	if !h.queueOrFail(w, h.syncSvc.QueuePopulateUsers(r.Context(), repo)) {
		return
	}
	writeJSON(w, http.StatusAccepted, application.SerializeRepository(*repo))
}

// CreateProjectRequest is the JSON body for the create project endpoint.
type CreateProjectRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	GitHubUsers []model.GitHubUser `json:"github_users"`
}

// ListProjects returns the repository's projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	repoID := r.PathValue("id")
	if _, err := h.repos.Get(r.Context(), repoID); err != nil {
		h.handleStoreError(w, err, "repository")
		return
	}

	projects, err := h.projects.ListByRepository(r.Context(), repoID)
	if err != nil {
		h.handleStoreError(w, err, "projects")
		return
	}

	resp := make([]map[string]any, 0, len(projects))
	for _, project := range projects {
		resp = append(resp, application.SerializeProject(project))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateProject creates a project under the repository. The project branch is
// created lazily on first org provision.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	repoID := r.PathValue("id")
	if _, err := h.repos.Get(r.Context(), repoID); err != nil {
		h.handleStoreError(w, err, "repository")
		return
	}

	var req CreateProjectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	now := time.Now().UTC()
	project := model.Project{
		ID:           uuid.NewString(),
		RepositoryID: repoID,
		Name:         req.Name,
		Description:  req.Description,
		Status:       model.ProjectStatusPlanned,
		GitHubUsers:  req.GitHubUsers,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.projects.Create(r.Context(), project); err != nil {
		h.logger.Error("creating project", "error", err)
		writeError(w, http.StatusConflict, "project name already in use")
		return
	}

	writeJSON(w, http.StatusCreated, application.SerializeProject(project))
}

// GetProject returns a single project.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.projects.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleStoreError(w, err, "project")
		return
	}
	writeJSON(w, http.StatusOK, application.SerializeProject(*project))
}

// CreateTaskRequest is the JSON body for the create task endpoint.
type CreateTaskRequest struct {
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	OrgConfigName string            `json:"org_config_name"`
	AssignedDev   *model.GitHubUser `json:"assigned_dev"`
	AssignedQA    *model.GitHubUser `json:"assigned_qa"`
}

// ListTasks returns the project's tasks.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	if _, err := h.projects.Get(r.Context(), projectID); err != nil {
		h.handleStoreError(w, err, "project")
		return
	}

	tasks, err := h.tasks.ListByProject(r.Context(), projectID)
	if err != nil {
		h.handleStoreError(w, err, "tasks")
		return
	}

	resp := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		resp = append(resp, application.SerializeTask(task))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateTask creates a task under the project.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	if _, err := h.projects.Get(r.Context(), projectID); err != nil {
		h.handleStoreError(w, err, "project")
		return
	}

	var req CreateTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	now := time.Now().UTC()
	task := model.Task{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		Name:          req.Name,
		Description:   req.Description,
		OrgConfigName: req.OrgConfigName,
		Status:        model.TaskStatusPlanned,
		AssignedDev:   req.AssignedDev,
		AssignedQA:    req.AssignedQA,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := h.tasks.Create(r.Context(), task); err != nil {
		h.logger.Error("creating task", "error", err)
		writeError(w, http.StatusConflict, "task name already in use")
		return
	}

	writeJSON(w, http.StatusCreated, application.SerializeTask(task))
}

// GetTask returns a single task.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleStoreError(w, err, "task")
		return
	}
	writeJSON(w, http.StatusOK, application.SerializeTask(*task))
}

// CreateOrgRequest is the JSON body for the create scratch org endpoint.
type CreateOrgRequest struct {
	OrgType    string `json:"org_type"`
	UserID     string `json:"user_id"`
	GHUsername string `json:"gh_username"`
}

// ListOrgs returns the task's scratch orgs.
func (h *Handler) ListOrgs(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if _, err := h.tasks.Get(r.Context(), taskID); err != nil {
		h.handleStoreError(w, err, "task")
		return
	}

	orgs, err := h.orgs.ListByTask(r.Context(), taskID)
	if err != nil {
		h.handleStoreError(w, err, "orgs")
		return
	}

	resp := make([]map[string]any, 0, len(orgs))
	for _, org := range orgs {
		resp = append(resp, application.SerializeScratchOrg(org))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateOrg creates the org record and queues end-to-end provisioning.
func (h *Handler) CreateOrg(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if _, err := h.tasks.Get(r.Context(), taskID); err != nil {
		h.handleStoreError(w, err, "task")
		return
	}

	var req CreateOrgRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orgType := model.OrgType(req.OrgType)
	if orgType != model.OrgTypeDev && orgType != model.OrgTypeQA {
		writeError(w, http.StatusBadRequest, "org_type must be dev or qa")
		return
	}

	now := time.Now().UTC()
	org := model.ScratchOrg{
		ID:                    uuid.NewString(),
		TaskID:                taskID,
		OrgType:               orgType,
		OwnerID:               req.UserID,
		OwnerGHUsername:       req.GHUsername,
		UnsavedChanges:        model.ChangeSet{},
		LatestRevisionNumbers: model.RevisionSnapshot{},
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := h.orgs.Create(r.Context(), org); err != nil {
		h.logger.Error("creating scratch org", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !h.queueOrFail(w, h.orgSvc.QueueProvision(org.ID)) {
		return
	}
	writeJSON(w, http.StatusAccepted, application.SerializeScratchOrg(org))
}

// GetOrg returns a single scratch org.
func (h *Handler) GetOrg(w http.ResponseWriter, r *http.Request) {
	org, err := h.orgs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleStoreError(w, err, "org")
		return
	}
	writeJSON(w, http.StatusOK, application.SerializeScratchOrg(*org))
}

// DeleteOrg queues remote and local deletion of the org.
func (h *Handler) DeleteOrg(w http.ResponseWriter, r *http.Request) {
	org, err := h.orgs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleStoreError(w, err, "org")
		return
	}

	if !h.queueOrFail(w, h.orgSvc.QueueDelete(r.Context(), org)) {
		return
	}
	writeJSON(w, http.StatusAccepted, application.SerializeScratchOrg(*org))
}

// RefreshOrg queues a teardown-and-reprovision cycle.
func (h *Handler) RefreshOrg(w http.ResponseWriter, r *http.Request) {
	org, err := h.orgs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleStoreError(w, err, "org")
		return
	}

	if !h.queueOrFail(w, h.orgSvc.QueueRefresh(r.Context(), org)) {
		return
	}
	writeJSON(w, http.StatusAccepted, application.SerializeScratchOrg(*org))
}

// FetchChanges queues a refresh of the org's unsaved-changes view.
func (h *Handler) FetchChanges(w http.ResponseWriter, r *http.Request) {
	org, err := h.orgs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleStoreError(w, err, "org")
		return
	}

	if !h.queueOrFail(w, h.orgSvc.QueueFetchChanges(r.Context(), org)) {
		return
	}
	writeJSON(w, http.StatusAccepted, application.SerializeScratchOrg(*org))
}

// CommitChangesRequest is the JSON body for the commit changes endpoint.
type CommitChangesRequest struct {
	Changes         map[string][]string `json:"changes"`
	Message         string              `json:"commit_message"`
	TargetDirectory string              `json:"target_directory"`
	AuthorName      string              `json:"author_name"`
	AuthorEmail     string              `json:"author_email"`
	UserID          string              `json:"user_id"`
}

// CommitChanges queues the change capture pipeline for the selected members.
func (h *Handler) CommitChanges(w http.ResponseWriter, r *http.Request) {
	org, err := h.orgs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleStoreError(w, err, "org")
		return
	}

	var req CommitChangesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "commit_message is required")
		return
	}
	desired := model.ChangeSet(req.Changes)
	if !desired.HasChanges() {
		writeError(w, http.StatusBadRequest, "changes must name at least one member")
		return
	}

	commitReq := application.CommitRequest{
		OrgID:           org.ID,
		DesiredChanges:  desired,
		Message:         req.Message,
		TargetDirectory: req.TargetDirectory,
		Author:          model.CommitAuthor{Name: req.AuthorName, Email: req.AuthorEmail},
		UserID:          req.UserID,
	}
	if !h.queueOrFail(w, h.orgSvc.QueueCommitChanges(r.Context(), org, commitReq)) {
		return
	}
	writeJSON(w, http.StatusAccepted, application.SerializeScratchOrg(*org))
}

// CreatePRRequest is the JSON body for the create pull request endpoints.
type CreatePRRequest struct {
	Title             string `json:"title"`
	CriticalChanges   string `json:"critical_changes"`
	AdditionalChanges string `json:"additional_changes"`
	Issues            string `json:"issues"`
	Notes             string `json:"notes"`
	UserID            string `json:"user_id"`
}

func (r CreatePRRequest) toPRRequest() application.PRRequest {
	return application.PRRequest{
		Title:             r.Title,
		CriticalChanges:   r.CriticalChanges,
		AdditionalChanges: r.AdditionalChanges,
		Issues:            r.Issues,
		Notes:             r.Notes,
		UserID:            r.UserID,
	}
}

// CreateTaskPR queues pull request creation for the task branch.
func (h *Handler) CreateTaskPR(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleStoreError(w, err, "task")
		return
	}

	var req CreatePRRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	if !h.queueOrFail(w, h.reviewSvc.QueueTaskPR(r.Context(), task, req.toPRRequest())) {
		return
	}
	writeJSON(w, http.StatusAccepted, application.SerializeTask(*task))
}

// CreateProjectPR queues pull request creation for the project branch.
func (h *Handler) CreateProjectPR(w http.ResponseWriter, r *http.Request) {
	project, err := h.projects.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleStoreError(w, err, "project")
		return
	}

	var req CreatePRRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	if !h.queueOrFail(w, h.reviewSvc.QueueProjectPR(r.Context(), project, req.toPRRequest())) {
		return
	}
	writeJSON(w, http.StatusAccepted, application.SerializeProject(*project))
}

// SubmitReviewRequest is the JSON body for the submit review endpoint.
type SubmitReviewRequest struct {
	Status    string `json:"status"`
	Notes     string `json:"notes"`
	OrgID     string `json:"org"`
	DeleteOrg bool   `json:"delete_org"`
	UserID    string `json:"user_id"`
}

// SubmitReview queues review submission for the task.
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleStoreError(w, err, "task")
		return
	}

	var req SubmitReviewRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status := model.ReviewStatus(req.Status)
	if status != model.ReviewStatusApproved && status != model.ReviewStatusChangesRequested {
		writeError(w, http.StatusBadRequest, "status must be approved or changes_requested")
		return
	}

	reviewReq := application.ReviewRequest{
		TaskID:    task.ID,
		Status:    status,
		Notes:     req.Notes,
		OrgID:     req.OrgID,
		DeleteOrg: req.DeleteOrg,
		UserID:    req.UserID,
	}
	if !h.queueOrFail(w, h.reviewSvc.QueueSubmitReview(r.Context(), task, reviewReq)) {
		return
	}
	writeJSON(w, http.StatusAccepted, application.SerializeTask(*task))
}

// PushHookRequest is the parsed shape of a push webhook delivery.
type PushHookRequest struct {
	Ref        string `json:"ref"`
	Repository struct {
		ID int64 `json:"id"`
	} `json:"repository"`
}

// PushHook ingests a push webhook and queues a commit refresh for tasks on
// the pushed branch. Pushes to repositories this instance does not track are
// acknowledged and ignored.
func (h *Handler) PushHook(w http.ResponseWriter, r *http.Request) {
	var req PushHookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	branch := strings.TrimPrefix(req.Ref, "refs/heads/")
	if branch == req.Ref || branch == "" {
		// Tag pushes and other refs carry no task branches.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	repos, err := h.repos.ListAll(r.Context())
	if err != nil {
		h.handleStoreError(w, err, "repositories")
		return
	}

	for _, repo := range repos {
		if repo.RepoID == nil || *repo.RepoID != req.Repository.ID {
			continue
		}
		if !h.queueOrFail(w, h.syncSvc.QueueRefreshCommits(r.Context(), repo.ID, branch)) {
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PRHookRequest is the parsed shape of a pull_request webhook delivery.
type PRHookRequest struct {
	Action     string `json:"action"`
	Number     int    `json:"number"`
	Repository struct {
		ID int64 `json:"id"`
	} `json:"repository"`
}

// PRHook ingests a pull_request webhook and queues state reconciliation for
// the task or project tracking that PR. The remote state is re-fetched when
// the job runs, so the action only gates which deliveries trigger work.
func (h *Handler) PRHook(w http.ResponseWriter, r *http.Request) {
	var req PRHookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case "opened", "closed", "reopened":
	default:
		w.WriteHeader(http.StatusNoContent)
		return
	}

	repos, err := h.repos.ListAll(r.Context())
	if err != nil {
		h.handleStoreError(w, err, "repositories")
		return
	}

	for _, repo := range repos {
		if repo.RepoID == nil || *repo.RepoID != req.Repository.ID {
			continue
		}
		if !h.queueOrFail(w, h.reviewSvc.QueuePRSync(repo.ID, req.Number)) {
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
