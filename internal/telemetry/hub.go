package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/rjboer/gofpc/internal/logging"
)

const defaultHistoryLimit = 50

// Hub keeps the most recent samples and fans them out to live
// subscribers.
type Hub struct {
	mu           sync.RWMutex
	history      []Sample
	historyLimit int
	subscribers  map[chan Sample]struct{}
	logger       logging.Logger
}

// NewHub builds a hub holding at most historyLimit samples.
func NewHub(historyLimit int, logger logging.Logger) *Hub {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		historyLimit: historyLimit,
		subscribers:  make(map[chan Sample]struct{}),
		logger:       logger.With(logging.Field{Key: "subsystem", Value: "hub"}),
	}
}

// Report records s and forwards it to subscribers. Slow subscribers miss
// samples rather than block acquisition.
func (h *Hub) Report(_ context.Context, s Sample) error {
	h.mu.Lock()
	h.history = append(h.history, s)
	if len(h.history) > h.historyLimit {
		h.history = h.history[len(h.history)-h.historyLimit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- s:
		default:
			h.logger.Debug("subscriber lagging, sample dropped", logging.Field{Key: "index", Value: s.Index})
		}
	}
	h.mu.Unlock()
	return nil
}

// History returns a copy of stored samples, oldest first.
func (h *Hub) History() []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Sample, len(h.history))
	copy(out, h.history)
	return out
}

// Latest returns the most recent sample.
func (h *Hub) Latest() (Sample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.history) == 0 {
		return Sample{}, false
	}
	return h.history[len(h.history)-1], true
}

// Subscribe registers a listener for live updates.
func (h *Hub) Subscribe() (chan Sample, func()) {
	ch := make(chan Sample, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

func (h *Hub) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	history := h.History()
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if n < len(history) {
			history = history[len(history)-n:]
		}
	}
	h.writeJSON(w, history)
}

func (h *Hub) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s, ok := h.Latest()
	if !ok {
		http.Error(w, "no trace acquired yet", http.StatusNotFound)
		return
	}
	h.writeJSON(w, s)
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	// replay history for immediate display
	for _, s := range h.History() {
		h.writeEvent(w, s)
	}
	flusher.Flush()

	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return
			}
			h.writeEvent(w, s)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Hub) writeJSON(w http.ResponseWriter, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("encode response failed", logging.Field{Key: "error", Value: err.Error()})
		http.Error(w, "cannot encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(append(payload, '\n'))
}

// writeEvent sends s as one SSE event. Samples that cannot be encoded,
// e.g. traces holding NaN or Inf, are logged and skipped.
func (h *Hub) writeEvent(w http.ResponseWriter, s Sample) {
	payload, err := json.Marshal(s)
	if err != nil {
		h.logger.Warn("encode sample failed",
			logging.Field{Key: "index", Value: s.Index},
			logging.Field{Key: "error", Value: err.Error()},
		)
		return
	}
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}
