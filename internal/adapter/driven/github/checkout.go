package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	gh "github.com/google/go-github/v74/github"

	"github.com/ericfisherdev/orgforge/internal/archive"
	"github.com/ericfisherdev/orgforge/internal/domain/model"
	"github.com/ericfisherdev/orgforge/internal/domain/port/driven"
)

// Checkout materializes ref as a scoped local working copy by downloading and
// extracting the repository's zipball. The archive is fully validated before
// any file is written; a structurally unsafe entry rejects the whole archive
// with *model.UnsafeArchiveError.
func (c *Client) Checkout(ctx context.Context, repo model.RepoInfo, ref string) (*driven.Checkout, error) {
	archiveURL, _, err := c.gh.Repositories.GetArchiveLink(ctx, repo.Owner, repo.Name, gh.Zipball, &gh.RepositoryContentGetOptions{Ref: ref}, 3)
	if err != nil {
		return nil, fmt.Errorf("resolving archive link for %s@%s: %w", repo.FullName(), ref, err)
	}

	archivePath, err := c.downloadArchive(ctx, archiveURL.String())
	if err != nil {
		return nil, err
	}
	defer os.Remove(archivePath)

	dir, err := os.MkdirTemp("", "orgforge-checkout-")
	if err != nil {
		return nil, fmt.Errorf("creating checkout dir: %w", err)
	}

	// GitHub zipballs nest contents under a single "owner-repo-sha" root.
	if err := archive.SafeExtract(archivePath, dir, archive.StripRoot); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	return driven.NewCheckout(dir, func() error {
		return os.RemoveAll(dir)
	}), nil
}

// downloadArchive fetches the zipball to a temp file and returns its path.
func (c *Client) downloadArchive(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building archive request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading archive: unexpected status %d", resp.StatusCode)
	}

	f, err := os.CreateTemp("", "orgforge-archive-*.zip")
	if err != nil {
		return "", fmt.Errorf("creating archive temp file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("writing archive: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("closing archive: %w", err)
	}

	return f.Name(), nil
}
