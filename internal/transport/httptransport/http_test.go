package httptransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jaakkos/masc/internal/domain"
	"github.com/jaakkos/masc/internal/eventbus"
)

type fakeAppender struct{}

func (fakeAppender) AppendEvent(ev domain.Event) error { return nil }

func newTestServer() *Server {
	bus := eventbus.New(fakeAppender{})
	return New("127.0.0.1:0", 1024, bus, nil)
}

func TestHandleMethodNotAllowed(t *testing.T) {
	s := newTestServer()
	s.Handle("/rpc", MethodHandler{
		http.MethodPost: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/rpc", nil)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestHandleUnknownPathNotFound(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleOversizeBodyRejected(t *testing.T) {
	s := newTestServer()
	s.Handle("/rpc", MethodHandler{
		http.MethodPost: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})

	body := strings.NewReader(strings.Repeat("a", 2048))
	req := httptest.NewRequest(http.MethodPost, "/rpc", body)
	req.ContentLength = 2048
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestHandleCORSHeadersPresent(t *testing.T) {
	s := newTestServer()
	s.Handle("/rpc", MethodHandler{
		http.MethodPost: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})

	req := httptest.NewRequest(http.MethodOptions, "/rpc", nil)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 for OPTIONS", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("expected Access-Control-Allow-Origin header")
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("body = %q, missing ok status", rec.Body.String())
	}
}

func TestEventsEndpointReturnsWhenClientDisconnects(t *testing.T) {
	s := newTestServer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK && rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 200 (httptest.Recorder implements Flusher)", rec.Code)
	}
}

func TestParseBodyLimitEnv(t *testing.T) {
	if got := ParseBodyLimitEnv("1048576", 20); got != 1048576 {
		t.Fatalf("got %d, want 1048576", got)
	}
	if got := ParseBodyLimitEnv("not-a-number", 20); got != 20 {
		t.Fatalf("got %d, want fallback 20", got)
	}
	if got := ParseBodyLimitEnv("-5", 20); got != 20 {
		t.Fatalf("got %d, want fallback 20 for non-positive", got)
	}
}

func TestGzipCompressionNegotiated(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", rec.Header().Get("Content-Encoding"))
	}
}
