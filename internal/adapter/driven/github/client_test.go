package github

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
	"github.com/ericfisherdev/orgforge/internal/domain/port/driven"
)

// newTestClient spins up an httptest server with the given mux and returns a
// Client pointed at it.
func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := NewClientWithHTTPClient(srv.Client(), srv.URL+"/")
	require.NoError(t, err)
	return client
}

func testRepo() model.RepoInfo {
	return model.RepoInfo{ID: 99, Owner: "octo", Name: "widgets", DefaultBranch: "main"}
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestGetRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"id":             99,
			"name":           "widgets",
			"owner":          map[string]any{"login": "octo"},
			"default_branch": "main",
			"html_url":       "https://github.com/octo/widgets",
		})
	})

	client := newTestClient(t, mux)
	info, err := client.GetRepository(context.Background(), "octo", "widgets")
	require.NoError(t, err)
	assert.Equal(t, int64(99), info.ID)
	assert.Equal(t, "octo", info.Owner)
	assert.Equal(t, "widgets", info.Name)
	assert.Equal(t, "main", info.DefaultBranch)
}

func TestGetBranchHead(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"ref":    "refs/heads/main",
			"object": map[string]any{"sha": "abc123", "type": "commit"},
		})
	})

	client := newTestClient(t, mux)
	sha, err := client.GetBranchHead(context.Background(), testRepo(), "main")
	require.NoError(t, err)
	assert.Equal(t, "abc123", sha)

	_, err = client.GetBranchHead(context.Background(), testRepo(), "missing")
	assert.ErrorIs(t, err, driven.ErrBranchNotFound)
}

func TestCreateBranch_AppendsSuffixOnCollision(t *testing.T) {
	var requested []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/octo/widgets/git/refs", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Ref string `json:"ref"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requested = append(requested, body.Ref)

		if body.Ref == "refs/heads/feature-widgets" {
			writeJSON(t, w, http.StatusUnprocessableEntity, map[string]any{
				"message": "Reference already exists",
			})
			return
		}
		writeJSON(t, w, http.StatusCreated, map[string]any{"ref": body.Ref})
	})

	client := newTestClient(t, mux)
	name, err := client.CreateBranch(context.Background(), testRepo(), "feature-widgets", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "feature-widgets-1", name)
	assert.Equal(t, []string{"refs/heads/feature-widgets", "refs/heads/feature-widgets-1"}, requested)
}

func TestCompare(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/compare/main...feature", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"ahead_by": 3, "behind_by": 0})
	})

	client := newTestClient(t, mux)
	aheadBy, err := client.Compare(context.Background(), testRepo(), "main", "feature")
	require.NoError(t, err)
	assert.Equal(t, 3, aheadBy)
}

func TestListCommits_StopsAtSinceSHA(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/commits", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"sha": "c3", "commit": map[string]any{"message": "third"}},
			{"sha": "c2", "commit": map[string]any{"message": "second"}},
			{"sha": "c1", "commit": map[string]any{"message": "first"}},
		})
	})

	client := newTestClient(t, mux)
	commits, err := client.ListCommits(context.Background(), testRepo(), "feature", "c1", 1000)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "c3", commits[0].SHA)
	assert.Equal(t, "c2", commits[1].SHA)
}

func TestListCommits_HonorsLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/commits", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"sha": "c3"}, {"sha": "c2"}, {"sha": "c1"},
		})
	})

	client := newTestClient(t, mux)
	commits, err := client.ListCommits(context.Background(), testRepo(), "feature", "", 2)
	require.NoError(t, err)
	assert.Len(t, commits, 2)
}

func TestListPullRequestsForHead(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("state"))
		assert.Equal(t, "octo:feature", r.URL.Query().Get("head"))
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"number": 7, "state": "closed", "merged_at": "2026-08-01T10:00:00Z"},
			{"number": 9, "state": "open"},
		})
	})

	client := newTestClient(t, mux)
	prs, err := client.ListPullRequestsForHead(context.Background(), testRepo(), "feature")
	require.NoError(t, err)
	require.Len(t, prs, 2)
	assert.True(t, prs[0].IsMerged)
	assert.False(t, prs[0].IsOpen)
	assert.True(t, prs[1].IsOpen)
	assert.False(t, prs[1].IsMerged)
}

func TestCreateCommitStatus(t *testing.T) {
	mux := http.NewServeMux()
	var got map[string]any
	mux.HandleFunc("POST /repos/octo/widgets/statuses/abc123", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, http.StatusCreated, map[string]any{"id": 1})
	})

	client := newTestClient(t, mux)
	err := client.CreateCommitStatus(context.Background(), testRepo(), "abc123", "success", "looks good", "", "orgforge review")
	require.NoError(t, err)
	assert.Equal(t, "success", got["state"])
	assert.Equal(t, "orgforge review", got["context"])
}

func TestListCollaborators_SortedByLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/collaborators", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"id": 3, "login": "Zed"},
			{"id": 1, "login": "alice"},
			{"id": 2, "login": "Bob"},
		})
	})

	client := newTestClient(t, mux)
	users, err := client.ListCollaborators(context.Background(), testRepo())
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "alice", users[0].Login)
	assert.Equal(t, "Bob", users[1].Login)
	assert.Equal(t, "Zed", users[2].Login)
}

func buildZipball(t *testing.T, root string, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(root + "/" + name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestCheckout(t *testing.T) {
	zipball := buildZipball(t, "octo-widgets-abc123", map[string]string{
		"sfdx-project.json": `{"packageDirectories": [{"path": "force-app", "default": true}]}`,
		"force-app/main.cls": "public class Main {}",
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/zipball/feature", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://"+r.Host+"/archive.zip", http.StatusFound)
	})
	mux.HandleFunc("GET /archive.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(zipball)
	})

	client := newTestClient(t, mux)
	checkout, err := client.Checkout(context.Background(), testRepo(), "feature")
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(checkout.Dir, "force-app", "main.cls"))
	require.NoError(t, err)
	assert.Equal(t, "public class Main {}", string(content))

	require.NoError(t, checkout.Close())
	_, err = os.Stat(checkout.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestCheckout_RejectsUnsafeArchive(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("../evil.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("bad"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/zipball/feature", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://"+r.Host+"/archive.zip", http.StatusFound)
	})
	mux.HandleFunc("GET /archive.zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	})

	client := newTestClient(t, mux)
	_, err = client.Checkout(context.Background(), testRepo(), "feature")

	var unsafeErr *model.UnsafeArchiveError
	assert.ErrorAs(t, err, &unsafeErr)
}

func TestCommitAndPush(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "classes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "classes", "Foo.cls"), []byte("public class Foo {}"), 0o644))

	blobCount := 0
	var treePaths []string
	var refUpdated bool

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/git/ref/heads/feature", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"ref":    "refs/heads/feature",
			"object": map[string]any{"sha": "head-sha", "type": "commit"},
		})
	})
	mux.HandleFunc("GET /repos/octo/widgets/git/commits/head-sha", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"sha":  "head-sha",
			"tree": map[string]any{"sha": "tree-base"},
		})
	})
	mux.HandleFunc("POST /repos/octo/widgets/git/blobs", func(w http.ResponseWriter, r *http.Request) {
		blobCount++
		writeJSON(t, w, http.StatusCreated, map[string]any{"sha": fmt.Sprintf("blob-%d", blobCount)})
	})
	mux.HandleFunc("POST /repos/octo/widgets/git/trees", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			BaseTree string `json:"base_tree"`
			Tree     []struct {
				Path string `json:"path"`
			} `json:"tree"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tree-base", body.BaseTree)
		for _, entry := range body.Tree {
			treePaths = append(treePaths, entry.Path)
		}
		writeJSON(t, w, http.StatusCreated, map[string]any{"sha": "tree-new"})
	})
	mux.HandleFunc("POST /repos/octo/widgets/git/commits", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusCreated, map[string]any{"sha": "commit-new"})
	})
	mux.HandleFunc("PATCH /repos/octo/widgets/git/refs/heads/feature", func(w http.ResponseWriter, r *http.Request) {
		refUpdated = true
		writeJSON(t, w, http.StatusOK, map[string]any{"ref": "refs/heads/feature"})
	})

	client := newTestClient(t, mux)
	sha, err := client.CommitAndPush(context.Background(), testRepo(), "feature", dir, "capture changes", model.CommitAuthor{Name: "Dev", Email: "dev@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "commit-new", sha)
	assert.Equal(t, 1, blobCount)
	assert.Equal(t, []string{"src/classes/Foo.cls"}, treePaths)
	assert.True(t, refUpdated)
}

func TestCommitAndPush_EmptyDirIsNoOp(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/git/ref/heads/feature", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"ref":    "refs/heads/feature",
			"object": map[string]any{"sha": "head-sha", "type": "commit"},
		})
	})
	mux.HandleFunc("GET /repos/octo/widgets/git/commits/head-sha", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"sha":  "head-sha",
			"tree": map[string]any{"sha": "tree-base"},
		})
	})

	client := newTestClient(t, mux)
	sha, err := client.CommitAndPush(context.Background(), testRepo(), "feature", t.TempDir(), "nothing", model.CommitAuthor{})
	require.NoError(t, err)
	assert.Equal(t, "head-sha", sha)
}
