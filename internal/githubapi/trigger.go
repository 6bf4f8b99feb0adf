package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"gitbridge/internal/config"
)

// Sentinel errors for workflow dispatch failures.
var (
	ErrGitHubUnreachable = errors.New("github unreachable")
	ErrDispatchRejected  = errors.New("workflow dispatch rejected")
)

// Trigger submits the shared contribution-refresh workflow for one
// organization. Submission is fire-and-forget: a nil return means GitHub
// accepted the dispatch, not that the run succeeded.
type Trigger interface {
	DispatchRefresh(ctx context.Context, orgSlug string) error
}

// DispatchClient triggers the pipeline workflow via the GitHub REST API.
// The workflow always lives in the bot maintainer's repo, not in the
// tenant's organization; the org to refresh is passed as a workflow input.
type DispatchClient struct {
	baseURL      string
	token        string
	owner        string
	repo         string
	workflowFile string
	ref          string
	client       *http.Client
}

// NewDispatchClient creates a new DispatchClient.
func NewDispatchClient(cfg config.GitHubConfig) *DispatchClient {
	return &DispatchClient{
		baseURL:      cfg.BaseURL,
		token:        cfg.DispatchToken,
		owner:        cfg.WorkflowOwner,
		repo:         cfg.WorkflowRepo,
		workflowFile: cfg.WorkflowFile,
		ref:          cfg.WorkflowRef,
		client:       &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *DispatchClient) DispatchRefresh(ctx context.Context, orgSlug string) error {
	url := fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/dispatches",
		c.baseURL, c.owner, c.repo, c.workflowFile)

	payload := map[string]any{
		"ref": c.ref,
		"inputs": map[string]string{
			"organization": orgSlug,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode dispatch payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build dispatch request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGitHubUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusCreated {
		return nil
	}

	// Map the common rejection codes to messages an operator can act on.
	switch resp.StatusCode {
	case http.StatusForbidden:
		return fmt.Errorf("%w: the token lacks permission to trigger workflows on %s/%s; Actions (read & write) must be enabled",
			ErrDispatchRejected, c.owner, c.repo)
	case http.StatusNotFound:
		return fmt.Errorf("%w: workflow %s not found in %s/%s; it may have been removed or renamed",
			ErrDispatchRejected, c.workflowFile, c.owner, c.repo)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: ref %q is invalid or the workflow is disabled", ErrDispatchRejected, c.ref)
	default:
		return fmt.Errorf("%w: github returned HTTP %d", ErrDispatchRejected, resp.StatusCode)
	}
}
