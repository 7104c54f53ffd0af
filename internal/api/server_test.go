package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/docsage/docsage/internal/testutil"
)

func TestNewServer_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("NewServer() with no resolver should fail")
	}
}

func TestServerRouting(t *testing.T) {
	srv := newTestServer(t, testutil.NewMockLLM("ok"), &stubQuerier{})
	handler := srv.Handler()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/api/filter", http.StatusOK},
		{http.MethodGet, "/api/documents", http.StatusOK},
		{http.MethodGet, "/api/chat", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.status {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.status)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("generates when absent", func(t *testing.T) {
		t.Parallel()

		handler := requestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		got := rec.Header().Get("X-Request-ID")
		if got == "" {
			t.Fatal("X-Request-ID header not set")
		}
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("X-Request-ID = %q, not a valid UUID", got)
		}
	})

	t.Run("reuses valid incoming ID", func(t *testing.T) {
		t.Parallel()

		handler := requestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		want := uuid.New().String()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", want)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("X-Request-ID"); got != want {
			t.Errorf("X-Request-ID = %q, want %q", got, want)
		}
	})

	t.Run("replaces invalid incoming ID", func(t *testing.T) {
		t.Parallel()

		handler := requestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "not-a-uuid")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		got := rec.Header().Get("X-Request-ID")
		if got == "not-a-uuid" {
			t.Error("invalid X-Request-ID was reused")
		}
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("X-Request-ID = %q, not a valid UUID", got)
		}
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	handler := recoveryMiddleware(testutil.DiscardLogger())(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	t.Parallel()

	allowed := []string{"http://localhost:3000"}

	t.Run("allowed origin gets headers", func(t *testing.T) {
		t.Parallel()

		handler := corsMiddleware(allowed)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		t.Parallel()

		handler := corsMiddleware(allowed)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		t.Parallel()

		handler := corsMiddleware(allowed)(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			t.Error("preflight reached inner handler")
		}))

		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
	})
}
