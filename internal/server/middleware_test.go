package server

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/n0madic/go-appforge/internal/config"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("stderr closed") }

func swapDebugDumpOut(t *testing.T, w io.Writer) {
	t.Helper()
	prev := debugDumpOut
	debugDumpOut = w
	t.Cleanup(func() { debugDumpOut = prev })
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestDebugMiddlewareDumpsRequest(t *testing.T) {
	var out bytes.Buffer
	swapDebugDumpOut(t, &out)

	h := newHarness(t, func(cfg *config.ServerConfig) { cfg.Debug = true })
	rec := h.do(http.MethodPost, "/v1/normalize", `{"completion":"{}"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	dump := out.String()
	assert.True(t, strings.HasPrefix(dump, "===== INBOUND REQUEST BEGIN =====\n"), dump)
	assert.Contains(t, dump, "POST /v1/normalize")
	assert.True(t, strings.HasSuffix(dump, "\n===== INBOUND REQUEST END =====\n"), dump)
}

func TestDebugDumpWriteFailureIsLogged(t *testing.T) {
	swapDebugDumpOut(t, failingWriter{})
	logs := captureLogs(t)

	writeDebugDumpBlock("INBOUND REQUEST", []byte("GET / HTTP/1.1"))

	assert.Contains(t, logs.String(), "request.dump.write.failed")
	assert.Contains(t, logs.String(), "stderr closed")
}
