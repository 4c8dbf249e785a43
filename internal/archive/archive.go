// Package archive extracts zip archives received from remote services with a
// structural safety guard: absolute paths and parent-directory segments
// reject the whole archive before any file is written.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
)

// IsSafePath reports whether an archive entry path may be extracted:
// relative, and free of parent-directory segments.
func IsSafePath(path string) bool {
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return false
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == ".." {
			return false
		}
	}
	return true
}

// SafeExtract validates every entry of the zip at archivePath and extracts it
// into destDir. strip maps an entry name to its relative target path; an
// empty result skips the entry. A structurally unsafe entry returns
// *model.UnsafeArchiveError with zero files written.
func SafeExtract(archivePath, destDir string, strip func(name string) string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()

	// Validate the whole archive before writing anything.
	for _, f := range zr.File {
		if !IsSafePath(f.Name) {
			return &model.UnsafeArchiveError{Path: f.Name}
		}
	}

	for _, f := range zr.File {
		rel := strip(f.Name)
		if rel == "" {
			continue
		}

		target := filepath.Join(destDir, filepath.FromSlash(rel))

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating dir %s: %w", rel, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("creating dir for %s: %w", rel, err)
		}

		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("extracting %s: %w", rel, err)
		}
	}

	return nil
}

// StripRoot removes the first path segment of an entry name. GitHub zipballs
// and metadata retrieve results both nest contents under a single root
// directory. Returns "" for the root entry itself.
func StripRoot(name string) string {
	if i := strings.IndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return ""
}

// KeepAll leaves entry names unchanged.
func KeepAll(name string) string {
	return name
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}
