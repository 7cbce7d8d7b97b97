package httpapi

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Paintersrp/kr/internal/api"
	"github.com/Paintersrp/kr/internal/engine"
	"github.com/Paintersrp/kr/internal/metrics"
)

type mockProvider struct {
	statusFn func(stdcontext.Context) (api.StatusReport, error)
}

func (m *mockProvider) Status(ctx stdcontext.Context) (api.StatusReport, error) {
	return m.statusFn(ctx)
}

func newTestServer(t *testing.T, provider api.StatusProvider) *Server {
	t.Helper()
	server, err := NewServer(Config{Status: provider, Gatherer: metrics.Registry()})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return server
}

func TestNewServerRequiresProvider(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatalf("expected error without status provider")
	}
}

func TestNewServerDefaultAddr(t *testing.T) {
	server := newTestServer(t, &mockProvider{})
	if server.Addr() != defaultAddr {
		t.Fatalf("expected default addr %s, got %s", defaultAddr, server.Addr())
	}
}

func TestHandleStatus(t *testing.T) {
	provider := &mockProvider{
		statusFn: func(stdcontext.Context) (api.StatusReport, error) {
			return api.StatusReport{
				RunID:       "run-1",
				Command:     "worker",
				State:       engine.EventTypeRestarting,
				WindowCount: 2,
				WindowLimit: 4,
				GeneratedAt: time.Unix(123, 0),
			}, nil
		},
	}
	server := newTestServer(t, provider)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var report api.StatusReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.RunID != "run-1" || report.State != engine.EventTypeRestarting || report.WindowCount != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestHandleStatusNotStarted(t *testing.T) {
	provider := &mockProvider{
		statusFn: func(stdcontext.Context) (api.StatusReport, error) {
			return api.StatusReport{}, api.ErrNotStarted
		},
	}
	server := newTestServer(t, provider)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "not_started" {
		t.Fatalf("expected not_started code, got %q", body.Code)
	}
}

func TestHandleStatusRejectsPost(t *testing.T) {
	server := newTestServer(t, &mockProvider{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
		t.Fatalf("expected Allow GET, got %q", allow)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.SetWindow(1, 4)
	server := newTestServer(t, &mockProvider{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "kr_crash_window_limit 4") {
		t.Fatalf("expected kr metrics in body:\n%s", rec.Body.String())
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{stdcontext.Canceled, 499, "context_canceled"},
		{api.ErrNotStarted, http.StatusServiceUnavailable, "not_started"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		status, code := classifyError(tt.err)
		if status != tt.status || code != tt.code {
			t.Fatalf("classifyError(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
		}
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	provider := &mockProvider{
		statusFn: func(stdcontext.Context) (api.StatusReport, error) {
			return api.StatusReport{Command: "worker"}, nil
		},
	}
	server, err := NewServer(Config{Status: provider, Listener: ln})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx, cancel := stdcontext.WithCancel(stdcontext.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Run(ctx)
	}()

	resp, err := http.Get("http://" + server.Addr() + "/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not stop after cancel")
	}
}
