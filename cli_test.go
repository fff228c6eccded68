package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/n0madic/go-appforge/internal/store"
	"github.com/n0madic/go-appforge/internal/types"
)

// runCLI runs the app against a temp database and returns stdout and the error.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newCLIApp(&out, strings.NewReader(stdin))
	err := app.Run(append([]string{"appforge"}, args...))
	return out.String(), err
}

func exitCode(err error) int {
	if ec, ok := err.(cli.ExitCoder); ok {
		return ec.ExitCode()
	}
	return -1
}

func TestNormalizeFromStdin(t *testing.T) {
	out, err := runCLI(t, "```json\n{\"frontend\":\"a\",\"backend\":\"b\",\"database\":\"\"}\n```", "normalize")
	require.NoError(t, err)

	var got struct {
		Stage  string            `json:"stage"`
		Bundle map[string]string `json:"bundle"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "fences", got.Stage)
	assert.Equal(t, map[string]string{"frontend": "a", "backend": "b", "database": ""}, got.Bundle)
}

func TestNormalizeFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "completion.txt")
	require.NoError(t, os.WriteFile(path, []byte(`{"frontend":"x","backend":"y","database":"z",}`), 0o600))

	out, err := runCLI(t, "", "normalize", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"stage": "escape"`)
}

func TestNormalizeFailureShowsDiagnostic(t *testing.T) {
	_, err := runCLI(t, `{"frontend":1,"backend":"","database":""}`, "normalize")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, err.Error(), "GENERATION_FAILED")
	assert.Contains(t, err.Error(), "invalid_field_type")
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	t.Setenv("APPFORGE_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "")
	_, err := runCLI(t, "", "--db", filepath.Join(t.TempDir(), "a.db"), "generate", "--no-store", "todo app")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, err.Error(), "CONFIGURATION")
	assert.Contains(t, err.Error(), "APPFORGE_API_KEY")
}

func TestBundlesListAndShow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bundles.db")
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	rec := &store.Record{Instruction: "todo", Model: "m", Stage: "trim", Bundle: types.NewCodeBundle("<App/>", "", "")}
	require.NoError(t, s.Insert(context.Background(), rec))
	require.NoError(t, s.Close())

	out, err := runCLI(t, "", "--db", dbPath, "bundles", "list")
	require.NoError(t, err)
	var list types.BundleList
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, rec.ID, list.Data[0].ID)

	out, err = runCLI(t, "", "--db", dbPath, "bundles", "show", "--markdown", rec.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "# Bundle "+rec.ID)

	out, err = runCLI(t, "", "--db", dbPath, "bundles", "show", "--html", rec.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "&lt;App/&gt;")

	_, err = runCLI(t, "", "--db", dbPath, "bundles", "show", "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_FOUND")

	_, err = runCLI(t, "", "--db", dbPath, "bundles", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_INPUT")
}

func TestRepoCreateRequiresToken(t *testing.T) {
	t.Setenv("GITHUB_ACCESS_TOKEN", "")
	_, err := runCLI(t, "", "repo", "create", "todo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIGURATION")
}

func TestRepoCreateReportsRepoWhenPushFails(t *testing.T) {
	gh := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/user/repos" {
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"full_name":"me/todo","html_url":"https://github.com/me/todo","private":true}`) //nolint:errcheck
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"message":"Server Error"}`) //nolint:errcheck
	}))
	defer gh.Close()
	t.Setenv("GITHUB_ACCESS_TOKEN", "ghp_test")
	t.Setenv("GITHUB_API_URL", gh.URL)

	dbPath := filepath.Join(t.TempDir(), "bundles.db")
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	rec := &store.Record{Instruction: "todo", Model: "m", Stage: "trim", Bundle: types.NewCodeBundle("<App/>", "", "")}
	require.NoError(t, s.Insert(context.Background(), rec))
	require.NoError(t, s.Close())

	out, err := runCLI(t, "", "--db", dbPath, "repo", "create", "--bundle", rec.ID, "todo")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, err.Error(), "TRANSPORT")

	var got types.RepositoryResponse
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "me/todo", got.FullName)
	assert.Equal(t, "https://github.com/me/todo", got.HTMLURL)
	require.NotNil(t, got.PushError)
	assert.Equal(t, "TRANSPORT", got.PushError.Code)
}
