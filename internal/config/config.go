// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string

	GitHubToken string

	// Connected-app credentials for the Salesforce OAuth flows.
	SFLoginURL     string
	SFClientID     string
	SFClientSecret string

	// Dev Hub org that scratch orgs are provisioned against. Authenticated
	// with a long-lived refresh token.
	DevHubUsername     string
	DevHubInstanceURL  string
	DevHubRefreshToken string

	// BranchPrefix is prepended to every generated project branch name.
	BranchPrefix string

	// Flow names run against freshly provisioned orgs, per org type.
	DevFlow string
	QAFlow  string

	JobWorkers int
	JobBuffer  int
}

// DevHub returns the Dev Hub credentials in the shape the provisioner wants.
func (c *Config) DevHub() model.OrgCredentials {
	return model.OrgCredentials{
		Username:     c.DevHubUsername,
		InstanceURL:  c.DevHubInstanceURL,
		RefreshToken: c.DevHubRefreshToken,
	}
}

// Load reads configuration from the environment and returns a validated
// Config. A .env file in the working directory is loaded first when present.
// Required: ORGFORGE_GITHUB_TOKEN, ORGFORGE_SF_CLIENT_ID,
// ORGFORGE_SF_CLIENT_SECRET, ORGFORGE_DEVHUB_INSTANCE_URL,
// ORGFORGE_DEVHUB_REFRESH_TOKEN. Everything else has a default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:         envOr("ORGFORGE_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:             envOr("ORGFORGE_DB_PATH", "orgforge.db"),
		GitHubToken:        os.Getenv("ORGFORGE_GITHUB_TOKEN"),
		SFLoginURL:         envOr("ORGFORGE_SF_LOGIN_URL", "https://login.salesforce.com"),
		SFClientID:         os.Getenv("ORGFORGE_SF_CLIENT_ID"),
		SFClientSecret:     os.Getenv("ORGFORGE_SF_CLIENT_SECRET"),
		DevHubUsername:     os.Getenv("ORGFORGE_DEVHUB_USERNAME"),
		DevHubInstanceURL:  os.Getenv("ORGFORGE_DEVHUB_INSTANCE_URL"),
		DevHubRefreshToken: os.Getenv("ORGFORGE_DEVHUB_REFRESH_TOKEN"),
		BranchPrefix:       os.Getenv("ORGFORGE_BRANCH_PREFIX"),
		DevFlow:            envOr("ORGFORGE_DEV_FLOW", "dev_org"),
		QAFlow:             envOr("ORGFORGE_QA_FLOW", "qa_org"),
	}

	var err error
	if cfg.JobWorkers, err = envIntOr("ORGFORGE_JOB_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.JobBuffer, err = envIntOr("ORGFORGE_JOB_BUFFER", 64); err != nil {
		return nil, err
	}

	required := []struct {
		name, value string
	}{
		{"ORGFORGE_GITHUB_TOKEN", cfg.GitHubToken},
		{"ORGFORGE_SF_CLIENT_ID", cfg.SFClientID},
		{"ORGFORGE_SF_CLIENT_SECRET", cfg.SFClientSecret},
		{"ORGFORGE_DEVHUB_INSTANCE_URL", cfg.DevHubInstanceURL},
		{"ORGFORGE_DEVHUB_REFRESH_TOKEN", cfg.DevHubRefreshToken},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, fmt.Errorf("%s is required", r.name)
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if parsed < 1 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, parsed)
	}
	return parsed, nil
}
