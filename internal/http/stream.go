package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const streamEventName = "orders-update"

// handleStream pushes every order-list event to the client as server-sent
// events. The stream ends on client disconnect, a failed write, hub-side
// removal, or after IdleTimeout without an order event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	sub := s.subs.Subscribe()
	defer s.subs.Unsubscribe(sub)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := s.sendStream(w, rc, ": connected\n\n"); err != nil {
		s.logger.Printf("Stream %v: initial write failed: %v", sub.ID(), err)
		return
	}

	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()
	idle := time.NewTimer(s.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			s.logger.Printf("Stream %v: subscription dropped by hub", sub.ID())
			return
		case <-idle.C:
			s.logger.Printf("Stream %v: idle for %v, closing", sub.ID(), s.opts.IdleTimeout)
			return
		case <-heartbeat.C:
			if err := s.sendStream(w, rc, ": ping\n\n"); err != nil {
				s.logger.Printf("Stream %v: heartbeat failed: %v", sub.ID(), err)
				return
			}
		case ev := <-sub.Events():
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Printf("Stream %v: encode event: %v", sub.ID(), err)
				continue
			}
			if err := s.sendStream(w, rc, fmt.Sprintf("event: %s\ndata: %s\n\n", streamEventName, data)); err != nil {
				s.logger.Printf("Stream %v: send failed: %v", sub.ID(), err)
				return
			}
			idle.Reset(s.opts.IdleTimeout)
		}
	}
}

func (s *Server) sendStream(w http.ResponseWriter, rc *http.ResponseController, chunk string) error {
	err := rc.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := io.WriteString(w, chunk); err != nil {
		return err
	}
	return rc.Flush()
}
