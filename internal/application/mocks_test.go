package application

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
	"github.com/ericfisherdev/orgforge/internal/domain/port/driven"
)

// In-memory store fakes backing the service tests. They hold values under a
// mutex so jobs running on queue workers can touch them concurrently.

type memRepositoryStore struct {
	mu    sync.Mutex
	repos map[string]model.Repository
}

func newMemRepositoryStore() *memRepositoryStore {
	return &memRepositoryStore{repos: make(map[string]model.Repository)}
}

func (s *memRepositoryStore) Create(ctx context.Context, repo model.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[repo.ID] = repo
	return nil
}

func (s *memRepositoryStore) Get(ctx context.Context, id string) (*model.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repos[id]
	if !ok {
		return nil, driven.ErrRepositoryNotFound
	}
	return &repo, nil
}

func (s *memRepositoryStore) ListAll(ctx context.Context) ([]model.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Repository, 0, len(s.repos))
	for _, repo := range s.repos {
		out = append(out, repo)
	}
	return out, nil
}

func (s *memRepositoryStore) Save(ctx context.Context, repo model.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.repos[repo.ID]; !ok {
		return driven.ErrRepositoryNotFound
	}
	s.repos[repo.ID] = repo
	return nil
}

type memProjectStore struct {
	mu       sync.Mutex
	projects map[string]model.Project
}

func newMemProjectStore() *memProjectStore {
	return &memProjectStore{projects: make(map[string]model.Project)}
}

func (s *memProjectStore) Create(ctx context.Context, project model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[project.ID] = project
	return nil
}

func (s *memProjectStore) Get(ctx context.Context, id string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[id]
	if !ok {
		return nil, driven.ErrProjectNotFound
	}
	return &project, nil
}

func (s *memProjectStore) ListByRepository(ctx context.Context, repositoryID string) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Project
	for _, project := range s.projects {
		if project.RepositoryID == repositoryID {
			out = append(out, project)
		}
	}
	return out, nil
}

func (s *memProjectStore) Save(ctx context.Context, project model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[project.ID]; !ok {
		return driven.ErrProjectNotFound
	}
	s.projects[project.ID] = project
	return nil
}

type memTaskStore struct {
	mu       sync.Mutex
	tasks    map[string]model.Task
	projects *memProjectStore
}

func newMemTaskStore(projects *memProjectStore) *memTaskStore {
	return &memTaskStore{tasks: make(map[string]model.Task), projects: projects}
}

func (s *memTaskStore) Create(ctx context.Context, task model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

func (s *memTaskStore) Get(ctx context.Context, id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, driven.ErrTaskNotFound
	}
	return &task, nil
}

func (s *memTaskStore) ListByProject(ctx context.Context, projectID string) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Task
	for _, task := range s.tasks {
		if task.ProjectID == projectID {
			out = append(out, task)
		}
	}
	return out, nil
}

func (s *memTaskStore) ListByBranch(ctx context.Context, repositoryID, branchName string) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Task
	for _, task := range s.tasks {
		if task.BranchName != branchName {
			continue
		}
		project, err := s.projects.Get(ctx, task.ProjectID)
		if err != nil || project.RepositoryID != repositoryID {
			continue
		}
		out = append(out, task)
	}
	return out, nil
}

func (s *memTaskStore) ListStatusesByProject(ctx context.Context, projectID string) ([]model.TaskStatus, error) {
	tasks, err := s.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	statuses := make([]model.TaskStatus, 0, len(tasks))
	for _, task := range tasks {
		statuses = append(statuses, task.Status)
	}
	return statuses, nil
}

func (s *memTaskStore) Save(ctx context.Context, task model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return driven.ErrTaskNotFound
	}
	s.tasks[task.ID] = task
	return nil
}

type memScratchOrgStore struct {
	mu   sync.Mutex
	orgs map[string]model.ScratchOrg
}

func newMemScratchOrgStore() *memScratchOrgStore {
	return &memScratchOrgStore{orgs: make(map[string]model.ScratchOrg)}
}

func (s *memScratchOrgStore) Create(ctx context.Context, org model.ScratchOrg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[org.ID] = org
	return nil
}

func (s *memScratchOrgStore) Get(ctx context.Context, id string) (*model.ScratchOrg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, driven.ErrScratchOrgNotFound
	}
	return &org, nil
}

func (s *memScratchOrgStore) ListByTask(ctx context.Context, taskID string) ([]model.ScratchOrg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ScratchOrg
	for _, org := range s.orgs {
		if org.TaskID == taskID {
			out = append(out, org)
		}
	}
	return out, nil
}

func (s *memScratchOrgStore) Save(ctx context.Context, org model.ScratchOrg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[org.ID]; !ok {
		return driven.ErrScratchOrgNotFound
	}
	s.orgs[org.ID] = org
	return nil
}

func (s *memScratchOrgStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orgs, id)
	return nil
}

// notification is one captured push.
type notification struct {
	kind    string
	id      string
	event   string
	payload map[string]any
	err     error
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *fakeNotifier) Notify(kind, id, event string, payload map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{kind: kind, id: id, event: event, payload: payload})
}

func (n *fakeNotifier) NotifyError(kind, id, event string, err error, extra map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{kind: kind, id: id, event: event, payload: extra, err: err})
}

// eventNames returns the captured event names in delivery order.
func (n *fakeNotifier) eventNames() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, 0, len(n.events))
	for _, ev := range n.events {
		names = append(names, ev.event)
	}
	return names
}

// countEvent returns how many captured events carry the given name.
func (n *fakeNotifier) countEvent(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, ev := range n.events {
		if ev.event == event {
			count++
		}
	}
	return count
}

// fakeGitHost implements driven.GitHost through overridable function fields.
// Unset fields return zero values so tests only wire what they exercise.
type fakeGitHost struct {
	getRepositoryFn       func(ctx context.Context, owner, name string) (*model.RepoInfo, error)
	getRepositoryByIDFn   func(ctx context.Context, id int64) (*model.RepoInfo, error)
	getBranchHeadFn       func(ctx context.Context, repo model.RepoInfo, branch string) (string, error)
	createBranchFn        func(ctx context.Context, repo model.RepoInfo, name, fromSHA string) (string, error)
	compareFn             func(ctx context.Context, repo model.RepoInfo, base, head string) (int, error)
	listCommitsFn         func(ctx context.Context, repo model.RepoInfo, branch, sinceSHA string, limit int) ([]model.Commit, error)
	createPullRequestFn   func(ctx context.Context, repo model.RepoInfo, base, head, title, body string) (int, error)
	getPullRequestFn      func(ctx context.Context, repo model.RepoInfo, number int) (*model.PullRequestInfo, error)
	listPRsForHeadFn      func(ctx context.Context, repo model.RepoInfo, head string) ([]model.PullRequestInfo, error)
	createReviewFn        func(ctx context.Context, repo model.RepoInfo, number int, body, event string) error
	createCommitStatusFn  func(ctx context.Context, repo model.RepoInfo, sha, state, description, targetURL, statusContext string) error
	listCollaboratorsFn   func(ctx context.Context, repo model.RepoInfo) ([]model.GitHubUser, error)
	checkoutFn            func(ctx context.Context, repo model.RepoInfo, ref string) (*driven.Checkout, error)
	commitAndPushFn       func(ctx context.Context, repo model.RepoInfo, branch, dir, message string, author model.CommitAuthor) (string, error)
	createdBranches       []string
	mu                    sync.Mutex
}

var _ driven.GitHost = (*fakeGitHost)(nil)

func (g *fakeGitHost) recordBranch(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createdBranches = append(g.createdBranches, name)
}

func (g *fakeGitHost) branchesCreated() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.createdBranches...)
}

func (g *fakeGitHost) GetRepository(ctx context.Context, owner, name string) (*model.RepoInfo, error) {
	if g.getRepositoryFn != nil {
		return g.getRepositoryFn(ctx, owner, name)
	}
	return &model.RepoInfo{ID: 1, Owner: owner, Name: name, DefaultBranch: "main"}, nil
}

func (g *fakeGitHost) GetRepositoryByID(ctx context.Context, id int64) (*model.RepoInfo, error) {
	if g.getRepositoryByIDFn != nil {
		return g.getRepositoryByIDFn(ctx, id)
	}
	return &model.RepoInfo{ID: id, Owner: "octo", Name: "pkg", DefaultBranch: "main"}, nil
}

func (g *fakeGitHost) GetBranchHead(ctx context.Context, repo model.RepoInfo, branch string) (string, error) {
	if g.getBranchHeadFn != nil {
		return g.getBranchHeadFn(ctx, repo, branch)
	}
	return "", driven.ErrBranchNotFound
}

func (g *fakeGitHost) CreateBranch(ctx context.Context, repo model.RepoInfo, name, fromSHA string) (string, error) {
	g.recordBranch(name)
	if g.createBranchFn != nil {
		return g.createBranchFn(ctx, repo, name, fromSHA)
	}
	return name, nil
}

func (g *fakeGitHost) Compare(ctx context.Context, repo model.RepoInfo, base, head string) (int, error) {
	if g.compareFn != nil {
		return g.compareFn(ctx, repo, base, head)
	}
	return 0, nil
}

func (g *fakeGitHost) ListCommits(ctx context.Context, repo model.RepoInfo, branch, sinceSHA string, limit int) ([]model.Commit, error) {
	if g.listCommitsFn != nil {
		return g.listCommitsFn(ctx, repo, branch, sinceSHA, limit)
	}
	return nil, nil
}

func (g *fakeGitHost) CreatePullRequest(ctx context.Context, repo model.RepoInfo, base, head, title, body string) (int, error) {
	if g.createPullRequestFn != nil {
		return g.createPullRequestFn(ctx, repo, base, head, title, body)
	}
	return 1, nil
}

func (g *fakeGitHost) GetPullRequest(ctx context.Context, repo model.RepoInfo, number int) (*model.PullRequestInfo, error) {
	if g.getPullRequestFn != nil {
		return g.getPullRequestFn(ctx, repo, number)
	}
	return &model.PullRequestInfo{Number: number, IsOpen: true}, nil
}

func (g *fakeGitHost) ListPullRequestsForHead(ctx context.Context, repo model.RepoInfo, head string) ([]model.PullRequestInfo, error) {
	if g.listPRsForHeadFn != nil {
		return g.listPRsForHeadFn(ctx, repo, head)
	}
	return nil, nil
}

func (g *fakeGitHost) CreateReview(ctx context.Context, repo model.RepoInfo, number int, body, event string) error {
	if g.createReviewFn != nil {
		return g.createReviewFn(ctx, repo, number, body, event)
	}
	return nil
}

func (g *fakeGitHost) CreateCommitStatus(ctx context.Context, repo model.RepoInfo, sha, state, description, targetURL, statusContext string) error {
	if g.createCommitStatusFn != nil {
		return g.createCommitStatusFn(ctx, repo, sha, state, description, targetURL, statusContext)
	}
	return nil
}

func (g *fakeGitHost) ListCollaborators(ctx context.Context, repo model.RepoInfo) ([]model.GitHubUser, error) {
	if g.listCollaboratorsFn != nil {
		return g.listCollaboratorsFn(ctx, repo)
	}
	return nil, nil
}

func (g *fakeGitHost) Checkout(ctx context.Context, repo model.RepoInfo, ref string) (*driven.Checkout, error) {
	if g.checkoutFn != nil {
		return g.checkoutFn(ctx, repo, ref)
	}
	dir, err := os.MkdirTemp("", "orgforge-test-checkout-*")
	if err != nil {
		return nil, err
	}
	return driven.NewCheckout(dir, func() error { return os.RemoveAll(dir) }), nil
}

func (g *fakeGitHost) CommitAndPush(ctx context.Context, repo model.RepoInfo, branch, dir, message string, author model.CommitAuthor) (string, error) {
	if g.commitAndPushFn != nil {
		return g.commitAndPushFn(ctx, repo, branch, dir, message, author)
	}
	return "sha-pushed", nil
}

// fakeProvisioner implements driven.SandboxProvisioner the same way.
type fakeProvisioner struct {
	createSandboxFn      func(ctx context.Context, orgType model.OrgType, configName string) (*model.SandboxInfo, error)
	deleteSandboxFn      func(ctx context.Context, creds model.OrgCredentials) error
	runFlowFn            func(ctx context.Context, creds model.OrgCredentials, flowName, projectDir string) error
	refreshCredentialsFn func(ctx context.Context, creds model.OrgCredentials) (*model.OrgCredentials, error)

	mu       sync.Mutex
	ranFlows []string
	deleted  []string
}

var _ driven.SandboxProvisioner = (*fakeProvisioner)(nil)

func (p *fakeProvisioner) CreateSandbox(ctx context.Context, orgType model.OrgType, configName string) (*model.SandboxInfo, error) {
	if p.createSandboxFn != nil {
		return p.createSandboxFn(ctx, orgType, configName)
	}
	return &model.SandboxInfo{
		SandboxID:   "00D000000000001",
		InstanceURL: "https://scratch.example",
		ExpiresAt:   time.Now().UTC().Add(30 * 24 * time.Hour),
		Credentials: model.OrgCredentials{
			OrgID:        "00D000000000001",
			Username:     "test@example.scratch",
			InstanceURL:  "https://scratch.example",
			AccessToken:  "token",
			RefreshToken: "refresh",
		},
	}, nil
}

func (p *fakeProvisioner) DeleteSandbox(ctx context.Context, creds model.OrgCredentials) error {
	p.mu.Lock()
	p.deleted = append(p.deleted, creds.OrgID)
	p.mu.Unlock()
	if p.deleteSandboxFn != nil {
		return p.deleteSandboxFn(ctx, creds)
	}
	return nil
}

func (p *fakeProvisioner) RunFlow(ctx context.Context, creds model.OrgCredentials, flowName, projectDir string) error {
	p.mu.Lock()
	p.ranFlows = append(p.ranFlows, flowName)
	p.mu.Unlock()
	if p.runFlowFn != nil {
		return p.runFlowFn(ctx, creds, flowName, projectDir)
	}
	return nil
}

func (p *fakeProvisioner) RefreshCredentials(ctx context.Context, creds model.OrgCredentials) (*model.OrgCredentials, error) {
	if p.refreshCredentialsFn != nil {
		return p.refreshCredentialsFn(ctx, creds)
	}
	refreshed := creds
	refreshed.AccessToken = "fresh-token"
	return &refreshed, nil
}

// fakeMetadataStore implements driven.MetadataStore.
type fakeMetadataStore struct {
	fetchSnapshotFn   func(ctx context.Context, creds model.OrgCredentials) (model.RevisionSnapshot, error)
	retrieveMembersFn func(ctx context.Context, creds model.OrgCredentials, members model.ChangeSet, targetDir string, metadataFormat bool) error
}

var _ driven.MetadataStore = (*fakeMetadataStore)(nil)

func (m *fakeMetadataStore) FetchRevisionSnapshot(ctx context.Context, creds model.OrgCredentials) (model.RevisionSnapshot, error) {
	if m.fetchSnapshotFn != nil {
		return m.fetchSnapshotFn(ctx, creds)
	}
	return model.RevisionSnapshot{}, nil
}

func (m *fakeMetadataStore) RetrieveMembers(ctx context.Context, creds model.OrgCredentials, members model.ChangeSet, targetDir string, metadataFormat bool) error {
	if m.retrieveMembersFn != nil {
		return m.retrieveMembersFn(ctx, creds, members, targetDir, metadataFormat)
	}
	return nil
}
