package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
)

// FlagStore is the process-wide document filter flag. It is advisory UI
// configuration with last-writer-wins semantics, held in an explicitly
// synchronized cell rather than a package-level variable.
type FlagStore struct {
	mu      sync.RWMutex
	enabled bool
}

// NewFlagStore creates a FlagStore with the flag off.
func NewFlagStore() *FlagStore {
	return &FlagStore{}
}

// Enabled reports the current flag value.
func (f *FlagStore) Enabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.enabled
}

// Set replaces the flag value.
func (f *FlagStore) Set(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = v
}

// filterHandler serves GET/POST /api/filter.
type filterHandler struct {
	flags  *FlagStore
	logger *slog.Logger
}

// filterResponse is the wire form of the flag for both verbs.
type filterResponse struct {
	FilterEnabled bool `json:"filterEnabled"`
}

// filterUpdate is the POST body.
type filterUpdate struct {
	CheckedFilterOption bool `json:"checkedFilterOption"`
}

func (h *filterHandler) get(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, filterResponse{FilterEnabled: h.flags.Enabled()})
}

func (h *filterHandler) set(w http.ResponseWriter, r *http.Request) {
	var update filterUpdate
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.flags.Set(update.CheckedFilterOption)
	h.logger.Debug("filter flag updated", "enabled", update.CheckedFilterOption)

	writeJSON(w, http.StatusOK, filterResponse{FilterEnabled: h.flags.Enabled()})
}
