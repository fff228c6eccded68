package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0madic/go-appforge/internal/config"
	"github.com/n0madic/go-appforge/internal/types"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "deepseek-chat",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"frontend\":\"a\"}"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func testConfig(baseURL string) *config.ServerConfig {
	cfg := config.Defaults()
	cfg.APIKey = "sk-test"
	cfg.BaseURL = baseURL
	return cfg
}

var testMessages = []types.ChatMessage{
	{Role: types.RoleSystem, Content: "sys"},
	{Role: types.RoleUser, Content: "make an app"},
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	cfg := config.Defaults()
	_, err := NewClient(cfg)
	var cerr *config.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "APPFORGE_API_KEY", cerr.Key)
}

func TestCompleteSendsRequestAndReturnsContent(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody) //nolint:errcheck
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completionBody) //nolint:errcheck
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL + "/v1"))
	require.NoError(t, err)

	got, err := c.Complete(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Equal(t, `{"frontend":"a"}`, got)

	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "deepseek-chat", gotBody["model"])
	assert.InDelta(t, 0.7, gotBody["temperature"], 1e-9)
	assert.InDelta(t, 4000, gotBody["max_tokens"], 1e-9)
	assert.InDelta(t, 1, gotBody["top_p"], 1e-9)
	assert.Contains(t, gotBody, "frequency_penalty")
	assert.Contains(t, gotBody, "presence_penalty")

	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	first := msgs[0].(map[string]any)
	second := msgs[1].(map[string]any)
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "sys", first["content"])
	assert.Equal(t, "user", second["role"])
	assert.Equal(t, "make an app", second["content"])
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`) //nolint:errcheck
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)
	got, err := c.Complete(context.Background(), testMessages)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCompleteNon2xxIsTransportErrorWithoutRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-Id", "req_provider_42")
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`) //nolint:errcheck
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), testMessages)

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusServiceUnavailable, terr.StatusCode)
	assert.Contains(t, terr.Error(), "503")
	assert.Contains(t, terr.Error(), "(request_id: req_provider_42)")
	assert.Equal(t, 1, calls, "no automatic retry")
}

func TestCompleteNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := NewClient(testConfig(url))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), testMessages)

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Zero(t, terr.StatusCode)
	assert.NotNil(t, terr.Err)
	assert.True(t, strings.HasPrefix(terr.Error(), "upstream request failed"))
}

func TestTransportErrorFormatting(t *testing.T) {
	e := &TransportError{StatusCode: 401, Body: []byte(`{"error":{"message":"Authentication Fails"}}`)}
	assert.Equal(t, "Upstream returned HTTP 401 Unauthorized: Authentication Fails", e.Error())

	e.Header = http.Header{"Cf-Ray": []string{"8a1b"}}
	assert.Equal(t, "Upstream returned HTTP 401 Unauthorized: Authentication Fails (request_id: 8a1b)", e.Error())

	inner := errors.New("dial tcp: refused")
	e = &TransportError{Err: inner}
	assert.ErrorIs(t, e, inner)
}

func TestDebugTransportRedactsAndDumps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"x":1}`, string(body), "body still reaches the server")
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		io.WriteString(w, "ok") //nolint:errcheck
	}))
	defer srv.Close()

	var out bytes.Buffer
	client := &http.Client{Transport: &debugTransport{next: http.DefaultTransport, out: &out}}
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"x":1}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	dump := out.String()
	assert.Contains(t, dump, "===== UPSTREAM REQUEST BEGIN =====")
	assert.Contains(t, dump, "===== UPSTREAM RESPONSE END =====")
	assert.Contains(t, dump, "Bearer [redacted]")
	assert.NotContains(t, dump, "Bearer secret")
	assert.Contains(t, dump, `{"x":1}`)
}
