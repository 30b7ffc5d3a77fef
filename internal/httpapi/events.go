package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type stateEvent struct {
	Key     string    `json:"key"`
	Deleted bool      `json:"deleted,omitempty"`
	At      time.Time `json:"at"`
}

// StateEvents стримит изменения локального состояния (products, cart, stock) как
// server-sent events. Событие только сообщает ключ, данные нужно перечитать.
func (h *Handler) StateEvents(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		writeError(w, http.StatusNotFound, codeStreamUnsupported, "")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusNotImplemented, codeStreamUnsupported, "")
		return
	}

	changes, cancel := h.feed.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			data, err := json.Marshal(stateEvent{Key: change.Key, Deleted: change.Deleted, At: change.At})
			if err != nil {
				h.requestLogger(r).WithError(err).Warn("failed to encode state event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
