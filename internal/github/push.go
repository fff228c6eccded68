package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/n0madic/go-appforge/internal/types"
)

// Bundle files are committed under these paths.
const (
	PathFrontend = "frontend/App.tsx"
	PathBackend  = "backend/index.ts"
	PathDatabase = "database/schema.sql"
)

const blobConcurrency = 4

// ErrNoFiles is returned by PushFiles when there is nothing to commit.
var ErrNoFiles = errors.New("no files to push")

// File is a single path and its UTF-8 content.
type File struct {
	Path    string
	Content string
}

// BundleFiles maps the non-empty parts of b to repository files.
func BundleFiles(b types.CodeBundle) []File {
	if b.IsEmpty() {
		return nil
	}
	paths := map[string]string{
		types.FieldFrontend: PathFrontend,
		types.FieldBackend:  PathBackend,
		types.FieldDatabase: PathDatabase,
	}
	var files []File
	for _, field := range types.BundleFields {
		content, _ := b.Field(field)
		if strings.TrimSpace(content) == "" {
			continue
		}
		files = append(files, File{Path: paths[field], Content: content})
	}
	return files
}

type treeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

// PushFiles commits files on top of the default branch of fullName
// ("owner/name") and returns the new commit SHA.
func (c *Client) PushFiles(ctx context.Context, fullName string, files []File, message string) (string, error) {
	if len(files) == 0 {
		return "", ErrNoFiles
	}
	if message == "" {
		message = "Initial commit"
	}
	base := repoPath(fullName)

	var repo Repository
	if err := c.do(ctx, http.MethodGet, base, nil, &repo); err != nil {
		return "", err
	}
	branch := repo.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	refPath := base + "/git/refs/heads/" + url.PathEscape(branch)

	parentSHA, err := c.requestSHA(ctx, http.MethodGet, refPath, nil, "object.sha")
	if err != nil {
		return "", err
	}

	entries := make([]treeEntry, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(blobConcurrency)
	for i, f := range files {
		g.Go(func() error {
			sha, err := c.requestSHA(gctx, http.MethodPost, base+"/git/blobs", map[string]string{
				"content":  f.Content,
				"encoding": "utf-8",
			}, "sha")
			if err != nil {
				return fmt.Errorf("create blob %s: %w", f.Path, err)
			}
			entries[i] = treeEntry{Path: f.Path, Mode: "100644", Type: "blob", SHA: sha}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	treeSHA, err := c.requestSHA(ctx, http.MethodPost, base+"/git/trees", map[string]any{
		"base_tree": parentSHA,
		"tree":      entries,
	}, "sha")
	if err != nil {
		return "", err
	}

	commitSHA, err := c.requestSHA(ctx, http.MethodPost, base+"/git/commits", map[string]any{
		"message": message,
		"tree":    treeSHA,
		"parents": []string{parentSHA},
	}, "sha")
	if err != nil {
		return "", err
	}

	if err := c.do(ctx, http.MethodPatch, refPath, map[string]string{"sha": commitSHA}, nil); err != nil {
		return "", err
	}

	slog.Info("github.push.completed",
		"full_name", fullName,
		"branch", branch,
		"files", len(files),
		"commit", commitSHA,
	)
	return commitSHA, nil
}

// requestSHA performs a request and pulls a SHA out of the response at path.
func (c *Client) requestSHA(ctx context.Context, method, apiPath string, body any, shaPath string) (string, error) {
	var raw json.RawMessage
	if err := c.do(ctx, method, apiPath, body, &raw); err != nil {
		return "", err
	}
	sha := gjson.GetBytes(raw, shaPath).String()
	if sha == "" {
		return "", fmt.Errorf("github: %s %s: response has no %s", method, apiPath, shaPath)
	}
	return sha, nil
}
