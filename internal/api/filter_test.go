package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/docsage/docsage/internal/testutil"
)

func TestFlagStore(t *testing.T) {
	t.Parallel()

	fs := NewFlagStore()
	if fs.Enabled() {
		t.Error("new flag store should start disabled")
	}

	fs.Set(true)
	if !fs.Enabled() {
		t.Error("Enabled() = false after Set(true)")
	}

	fs.Set(false)
	if fs.Enabled() {
		t.Error("Enabled() = true after Set(false)")
	}
}

func TestFlagStoreConcurrent(t *testing.T) {
	t.Parallel()

	fs := NewFlagStore()
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(2)
		go func(v bool) {
			defer wg.Done()
			fs.Set(v)
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			_ = fs.Enabled()
		}()
	}
	wg.Wait()
}

func decodeFilter(t *testing.T, rec *httptest.ResponseRecorder) bool {
	t.Helper()

	var body struct {
		FilterEnabled *bool `json:"filterEnabled"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
	if body.FilterEnabled == nil {
		t.Fatalf("body %q missing filterEnabled", rec.Body.String())
	}
	return *body.FilterEnabled
}

func TestFilterEndpoint(t *testing.T) {
	h := &filterHandler{flags: NewFlagStore(), logger: testutil.DiscardLogger()}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/filter", h.get)
	mux.HandleFunc("POST /api/filter", h.set)

	// Flag starts off.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/filter", nil))
	if rec.Code != http.StatusOK || decodeFilter(t, rec) {
		t.Errorf("GET = %d %q, want 200 with filterEnabled=false", rec.Code, rec.Body.String())
	}

	// Enable.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/filter",
		strings.NewReader(`{"checkedFilterOption":true}`)))
	if rec.Code != http.StatusOK || !decodeFilter(t, rec) {
		t.Errorf("POST = %d %q, want 200 with filterEnabled=true", rec.Code, rec.Body.String())
	}

	// A later GET observes the update.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/filter", nil))
	if !decodeFilter(t, rec) {
		t.Error("GET after POST: filterEnabled = false, want true")
	}

	// Malformed body leaves the flag untouched.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/filter",
		strings.NewReader(`{bad`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST malformed = %d, want 400", rec.Code)
	}
	if !h.flags.Enabled() {
		t.Error("malformed POST modified the flag")
	}
}
