package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/foamchat/emotewatch/internal/watcher"
)

// defaultHistoryLimit caps /api/channel/{name}/history responses when no
// limit query parameter is given.
const defaultHistoryLimit = 50

func (s *StatusServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	watchers := s.getWatchers()
	runningCount := 0
	channels := make([]map[string]any, 0, len(watchers))
	for _, wt := range watchers {
		running := wt.IsRunning()
		if running {
			runningCount++
		}
		channels = append(channels, map[string]any{
			"channel": wt.Channel(),
			"running": running,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"running_channels": runningCount,
		"total_channels":   len(watchers),
		"channels":         channels,
	})
}

func (s *StatusServer) handleChannels(w http.ResponseWriter, _ *http.Request) {
	watchers := s.getWatchers()
	result := make([]watcher.Status, 0, len(watchers))
	for _, wt := range watchers {
		result = append(result, wt.Status())
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *StatusServer) handleChannel(w http.ResponseWriter, r *http.Request) {
	wt, ok := s.findWatcher(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, wt.Status())
}

func (s *StatusServer) handleEmotes(w http.ResponseWriter, r *http.Request) {
	wt, ok := s.findWatcher(w, r)
	if !ok {
		return
	}

	emotes := wt.Emotes()
	writeJSON(w, http.StatusOK, map[string]any{
		"channel": wt.Channel(),
		"count":   len(emotes),
		"emotes":  emotes,
	})
}

func (s *StatusServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	wt, ok := s.findWatcher(w, r)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	changes, err := wt.RecentChanges(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channel": wt.Channel(),
		"count":   len(changes),
		"changes": changes,
	})
}

func (s *StatusServer) handleResetBackoff(w http.ResponseWriter, r *http.Request) {
	wt, ok := s.findWatcher(w, r)
	if !ok {
		return
	}

	wt.ResetBackoff()
	writeJSON(w, http.StatusOK, map[string]any{
		"channel": wt.Channel(),
		"status":  "backoff reset",
	})
}

func (s *StatusServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	watchers := s.getWatchers()

	stats := overallStats{TotalChannels: len(watchers)}
	for _, wt := range watchers {
		st := wt.Status()
		if st.Running {
			stats.RunningChannels++
		}
		stats.TotalEmotes += st.Store.EmoteCount
		stats.TotalAdded += st.Store.TotalAdded
		stats.TotalRemoved += st.Store.TotalRemoved
	}

	writeJSON(w, http.StatusOK, stats)
}

// findWatcher resolves the {name} path value to a watcher, writing an
// error response and returning ok=false when it cannot.
func (s *StatusServer) findWatcher(w http.ResponseWriter, r *http.Request) (*watcher.Watcher, bool) {
	name := strings.ToLower(r.PathValue("name"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing channel name"})
		return nil, false
	}

	for _, wt := range s.getWatchers() {
		if wt.Channel() == name {
			return wt, true
		}
	}

	writeJSON(w, http.StatusNotFound, errorResponse{Error: "channel not found"})
	return nil, false
}

type overallStats struct {
	TotalChannels   int `json:"total_channels"`
	RunningChannels int `json:"running_channels"`
	TotalEmotes     int `json:"total_emotes"`
	TotalAdded      int `json:"total_added"`
	TotalRemoved    int `json:"total_removed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v) //nolint:errcheck
}
