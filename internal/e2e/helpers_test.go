package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"genrelay/internal/gateway"
	"genrelay/internal/httpapi"
	"genrelay/internal/upstream"
)

// stack is a gateway wired to a fake provider.
type stack struct {
	gateway  *httptest.Server
	provider *httptest.Server
}

// newStack starts a fake provider running providerHandler and a full gateway in
// front of it.
func newStack(t *testing.T, providerHandler http.HandlerFunc, idle time.Duration) *stack {
	t.Helper()
	prov := httptest.NewServer(providerHandler)
	t.Cleanup(prov.Close)

	client := upstream.New(upstream.Options{
		URL:            prov.URL + "/openai/v1/chat/completions",
		APIKey:         "test-key",
		ConnectTimeout: time.Second,
		IdleTimeout:    idle,
		RequestTimeout: 5 * time.Second,
	})
	t.Cleanup(func() { _ = client.Close() })
	mux := httpapi.NewMux(gateway.New(client, nil), httpapi.Options{})
	gw := httptest.NewServer(mux)
	t.Cleanup(gw.Close)
	return &stack{gateway: gw, provider: prov}
}

// writeSSE writes one event-stream line and flushes it.
func writeSSE(w http.ResponseWriter, line string) {
	_, _ = w.Write([]byte(line + "\n"))
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
