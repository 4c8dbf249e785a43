package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	gh "github.com/google/go-github/v74/github"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
)

// CommitAndPush commits every regular file under dir onto branch via the Git
// data API (blobs, tree, commit, ref update) and returns the new head sha.
// Files are committed at their paths relative to dir, layered over the
// branch's current tree.
func (c *Client) CommitAndPush(ctx context.Context, repo model.RepoInfo, branch, dir, message string, author model.CommitAuthor) (string, error) {
	headSHA, err := c.GetBranchHead(ctx, repo, branch)
	if err != nil {
		return "", err
	}

	headCommit, _, err := c.gh.Git.GetCommit(ctx, repo.Owner, repo.Name, headSHA)
	if err != nil {
		return "", fmt.Errorf("getting head commit %s on %s: %w", headSHA, repo.FullName(), err)
	}

	entries, err := c.createBlobEntries(ctx, repo, dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return headSHA, nil
	}

	tree, _, err := c.gh.Git.CreateTree(ctx, repo.Owner, repo.Name, headCommit.GetTree().GetSHA(), entries)
	if err != nil {
		return "", fmt.Errorf("creating tree on %s: %w", repo.FullName(), err)
	}

	now := time.Now().UTC()
	commit, _, err := c.gh.Git.CreateCommit(ctx, repo.Owner, repo.Name, &gh.Commit{
		Message: gh.Ptr(message),
		Tree:    tree,
		Parents: []*gh.Commit{{SHA: gh.Ptr(headSHA)}},
		Author: &gh.CommitAuthor{
			Name:  gh.Ptr(author.Name),
			Email: gh.Ptr(author.Email),
			Date:  &gh.Timestamp{Time: now},
		},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("creating commit on %s: %w", repo.FullName(), err)
	}

	_, _, err = c.gh.Git.UpdateRef(ctx, repo.Owner, repo.Name, &gh.Reference{
		Ref:    gh.Ptr("refs/heads/" + branch),
		Object: &gh.GitObject{SHA: commit.SHA},
	}, false)
	if err != nil {
		return "", fmt.Errorf("updating ref %s on %s: %w", branch, repo.FullName(), err)
	}

	return commit.GetSHA(), nil
}

// createBlobEntries walks dir, uploads each regular file as a blob, and
// returns tree entries referencing the blobs by sha. Base64 blob encoding
// keeps binary metadata files intact.
func (c *Client) createBlobEntries(ctx context.Context, repo model.RepoInfo, dir string) ([]*gh.TreeEntry, error) {
	var entries []*gh.TreeEntry

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}

		blob, _, err := c.gh.Git.CreateBlob(ctx, repo.Owner, repo.Name, &gh.Blob{
			Content:  gh.Ptr(base64.StdEncoding.EncodeToString(content)),
			Encoding: gh.Ptr("base64"),
		})
		if err != nil {
			return fmt.Errorf("creating blob for %s: %w", rel, err)
		}

		entries = append(entries, &gh.TreeEntry{
			Path: gh.Ptr(filepath.ToSlash(rel)),
			Mode: gh.Ptr("100644"),
			Type: gh.Ptr("blob"),
			SHA:  blob.SHA,
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collecting files under %s: %w", dir, err)
	}

	return entries, nil
}
