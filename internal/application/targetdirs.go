package application

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
)

// sfdxProject is the subset of sfdx-project.json the pipeline reads.
type sfdxProject struct {
	PackageDirectories []struct {
		Path    string `json:"path"`
		Default bool   `json:"default"`
	} `json:"packageDirectories"`
}

// ResolveTargetDirectories inspects a repository checkout and returns the
// directories changes may be committed into, grouped by role. A project
// descriptor selects the structured source layout with its package
// directories (default first); without one the flat "src" layout applies.
// Existing unpackaged/{pre,post,config} subtrees are included under their
// role.
func ResolveTargetDirectories(checkoutDir string) (model.TargetDirectories, error) {
	dirs := model.TargetDirectories{}

	source, err := resolveSourceDirectories(checkoutDir)
	if err != nil {
		return nil, err
	}
	dirs["source"] = source

	for _, role := range []string{"pre", "post", "config"} {
		parent := filepath.Join(checkoutDir, "unpackaged", role)
		entries, err := os.ReadDir(parent)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading unpackaged/%s: %w", role, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				dirs[role] = append(dirs[role], filepath.Join("unpackaged", role, entry.Name()))
			}
		}
	}

	return dirs, nil
}

func resolveSourceDirectories(checkoutDir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(checkoutDir, "sfdx-project.json"))
	if os.IsNotExist(err) {
		return []string{"src"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading project descriptor: %w", err)
	}

	var project sfdxProject
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("parsing project descriptor: %w", err)
	}

	if len(project.PackageDirectories) == 0 {
		return []string{"src"}, nil
	}

	// Default package directory first; the rest keep descriptor order.
	var source []string
	for _, pd := range project.PackageDirectories {
		if pd.Default {
			source = append(source, pd.Path)
		}
	}
	for _, pd := range project.PackageDirectories {
		if !pd.Default {
			source = append(source, pd.Path)
		}
	}

	return source, nil
}

// HasStructuredLayout reports whether the checkout uses the structured source
// layout (a project descriptor is present).
func HasStructuredLayout(checkoutDir string) bool {
	_, err := os.Stat(filepath.Join(checkoutDir, "sfdx-project.json"))
	return err == nil
}
