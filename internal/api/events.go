package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pelden/lingobridge/internal/history"
)

// handleEvents streams full collection snapshots to the client as
// server-sent events: one snapshot immediately, then one per change. Rapid
// writes coalesce upstream in the store's subscription hub, and again here
// when the client reads slower than snapshots arrive.
func handleEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection, ok := parseCollection(w, chi.URLParam(r, "collection"))
		if !ok {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		// The subscription callback runs on the hub's goroutine; hand
		// snapshots to this handler through a capacity-1 channel,
		// dropping stale ones so the stream never blocks the store.
		snapshots := make(chan []history.HistoryItem, 1)
		unsubscribe := deps.Pipeline.Watch(collection, func(items []history.HistoryItem) {
			for {
				select {
				case snapshots <- items:
					return
				default:
					select {
					case <-snapshots: // drop the stale snapshot
					default:
					}
				}
			}
		})
		defer unsubscribe()

		for {
			select {
			case <-r.Context().Done():
				return
			case items := <-snapshots:
				payload, err := json.Marshal(items)
				if err != nil {
					slog.Error("encoding event snapshot", "collection", collection, "error", err)
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
