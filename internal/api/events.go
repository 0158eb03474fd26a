package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"taskboard/pkg/broadcast"
)

// SSE event names.
const (
	eventInitialState = "initialState"
	eventTaskUpdate   = "taskUpdate"
	eventPing         = "ping"
)

// handleEventStream subscribes the client to the hub. It sends the full
// board once, then one taskUpdate per accepted mutation. Pings that reach
// the client are acknowledged so the hub keeps the subscription alive.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// subscribe before the snapshot so no change falls between them
	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	ctx := r.Context()
	tasks, err := s.board.ListTasks(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := s.log.With("subscriber", sub.ID())
	log.Debug("stream opened", "remote", r.RemoteAddr)
	defer log.Debug("stream closed", "dropped", sub.Dropped())

	if err := writeSSE(w, eventInitialState, 0, tasks); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			name := eventTaskUpdate
			if e.Action == broadcast.ActionPing {
				name = eventPing
			}
			if err := writeSSE(w, name, e.Seq, e); err != nil {
				log.Debug("stream write failed", "error", err)
				return
			}
			flusher.Flush()
			if e.Action == broadcast.ActionPing {
				sub.Ack()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, id uint64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if id > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
