package upstream

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
)

// debugTransport dumps every provider request and response to out (stderr by
// default) between BEGIN/END markers. The API key is redacted.
type debugTransport struct {
	next http.RoundTripper
	out  io.Writer
	mu   sync.Mutex
}

func (d *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	dumpReq := req.Clone(req.Context())
	if dumpReq.Header.Get("Authorization") != "" {
		dumpReq.Header.Set("Authorization", "Bearer [redacted]")
	}
	if data, err := httputil.DumpRequestOut(dumpReq, true); err != nil {
		slog.Error("upstream.request.dump.failed", "error", err)
	} else {
		d.writeDebugDumpBlock("UPSTREAM REQUEST", data)
	}
	// DumpRequestOut replaced the shared body with a fresh reader.
	req.Body = dumpReq.Body

	resp, err := d.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if data, derr := httputil.DumpResponse(resp, true); derr != nil {
		slog.Error("upstream.response.dump.failed", "error", derr)
	} else {
		d.writeDebugDumpBlock("UPSTREAM RESPONSE", data)
	}
	return resp, nil
}

func (d *debugTransport) writeDebugDumpBlock(title string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := d.out
	if out == nil {
		out = os.Stderr
	}
	var b strings.Builder
	b.WriteString("===== " + strings.TrimSpace(title) + " BEGIN =====\n")
	b.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString("===== " + strings.TrimSpace(title) + " END =====\n")
	if _, err := io.WriteString(out, b.String()); err != nil {
		slog.Error("upstream.dump.write.failed", "title", title, "error", err)
	}
}
