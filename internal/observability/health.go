package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthChecker gates /readyz on a set of named components. The process is
// live as soon as it starts; it is ready once every component registered at
// construction has been marked ready.
type HealthChecker struct {
	mu      sync.RWMutex
	started time.Time
	all     []string
	pending map[string]bool
}

// NewHealthChecker registers the components readiness waits on. With no
// components the checker is ready immediately.
func NewHealthChecker(components ...string) *HealthChecker {
	pending := make(map[string]bool, len(components))
	for _, c := range components {
		pending[c] = true
	}
	return &HealthChecker{
		started: time.Now(),
		all:     components,
		pending: pending,
	}
}

// MarkReady records that one component finished starting up.
func (h *HealthChecker) MarkReady(component string) {
	h.mu.Lock()
	delete(h.pending, component)
	h.mu.Unlock()
}

// SetReady forces the overall state: true clears every pending component,
// false re-arms all of them.
func (h *HealthChecker) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ready {
		h.pending = map[string]bool{}
		return
	}
	h.pending = make(map[string]bool, len(h.all))
	for _, c := range h.all {
		h.pending[c] = true
	}
}

// IsReady reports whether every component has come up.
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pending) == 0
}

func (h *HealthChecker) waitingOn() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.pending))
	for c := range h.pending {
		out = append(out, c)
	}
	return out
}

// LivenessHandler answers 200 for the life of the process.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
		"uptime": time.Since(h.started).String(),
	})
}

// ReadinessHandler answers 200 once all components are up, 503 with the
// list of components still pending otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.IsReady() {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "not_ready",
		"waiting_on": h.waitingOn(),
	})
}
