// Package github publishes a generated bundle to a new GitHub repository
// through the REST API.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/oauth2"

	"github.com/n0madic/go-appforge/internal/codec"
	"github.com/n0madic/go-appforge/internal/config"
)

const apiVersion = "2022-11-28"

// ErrInvalidName is returned for a repository name GitHub would reject.
var ErrInvalidName = errors.New("repository name must be 1-100 characters of letters, digits, '.', '-' or '_'")

var repoNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)

// APIError is a non-2xx GitHub response.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("github: HTTP %d: %s (request_id: %s)", e.StatusCode, e.Message, e.RequestID)
	}
	return fmt.Sprintf("github: HTTP %d: %s", e.StatusCode, e.Message)
}

// Client talks to the GitHub REST API with a personal access token.
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	Verbose   bool
}

// NewClient returns a client authenticated with token. An empty token is a
// configuration error.
func NewClient(ctx context.Context, token, baseURL string) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, &config.Error{Key: "GITHUB_ACCESS_TOKEN", Message: "GitHub token is not configured"}
	}
	if baseURL == "" {
		baseURL = config.DefaultGitHubAPIURL
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{
		http:      oauth2.NewClient(ctx, ts),
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: config.UserAgent(),
	}, nil
}

// Repository is the subset of GitHub's repository object we use.
type Repository struct {
	FullName      string `json:"full_name"`
	HTMLURL       string `json:"html_url"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
}

// CreateRepository creates a repository for the authenticated user. It is
// initialized with a README so it has a default branch to commit onto.
func (c *Client) CreateRepository(ctx context.Context, name string, private bool) (*Repository, error) {
	if !repoNamePattern.MatchString(name) {
		return nil, ErrInvalidName
	}
	var repo Repository
	err := c.do(ctx, http.MethodPost, "/user/repos", map[string]any{
		"name":      name,
		"private":   private,
		"auto_init": true,
	}, &repo)
	if err != nil {
		return nil, err
	}
	slog.Info("github.repository.created", "full_name", repo.FullName, "private", repo.Private)
	return &repo, nil
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("github: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("github: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("github: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("github: read response: %w", err)
	}
	if c.Verbose {
		slog.Info("github.response", "method", method, "path", path, "status", resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := codec.ExtractUpstreamErrorMessage(raw)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    msg,
			RequestID:  resp.Header.Get("X-GitHub-Request-Id"),
		}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("github: decode %s %s: %w", method, path, err)
	}
	return nil
}

// repoPath escapes each segment of owner/name.
func repoPath(fullName string) string {
	owner, name, _ := strings.Cut(fullName, "/")
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name)
}
