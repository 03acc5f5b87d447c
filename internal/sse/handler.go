package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	writeTimeout = 60 * time.Second
	// retryMillis is the reconnect delay suggested to EventSource clients.
	retryMillis = 5000
)

// UserResolver returns the authenticated user for a request, or "".
type UserResolver func(r *http.Request) string

// Handler streams events at GET /api/v1/events.
type Handler struct {
	manager     *Manager
	logger      *slog.Logger
	resolveUser UserResolver
}

// NewHandler creates a Handler. A nil resolver connects every client
// anonymously, so only broadcast events are delivered.
func NewHandler(manager *Manager, logger *slog.Logger, resolveUser UserResolver) *Handler {
	if resolveUser == nil {
		resolveUser = func(*http.Request) string { return "" }
	}
	return &Handler{manager: manager, logger: logger, resolveUser: resolveUser}
}

// stream writes text/event-stream frames and flushes each one.
type stream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (s stream) frame(id, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	if id != "" {
		if _, err := fmt.Fprintf(s.w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		return err
	}
	// Not every ResponseWriter supports deadlines.
	_ = s.rc.SetWriteDeadline(time.Now().Add(writeTimeout))
	return nil
}

// ServeHTTP holds the connection open and forwards the client's events.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	out := stream{w: w, rc: http.NewResponseController(w)}
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", retryMillis); err != nil {
		return
	}
	if err := out.rc.Flush(); err != nil {
		h.logger.Error("streaming not supported", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	client, err := h.manager.Connect(h.resolveUser(r))
	if err != nil {
		h.logger.Error("failed to register SSE client", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)

	log := h.logger.With(slog.String("client_id", client.ID))

	if err := out.frame("", "connected", map[string]string{"client_id": client.ID}); err != nil {
		log.Warn("failed to send connected frame", slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case event, ok := <-client.EventChan:
			if !ok {
				log.Info("stream closed by manager")
				return
			}
			if err := out.frame(event.ID, string(event.Type), event); err != nil {
				log.Info("client went away", slog.String("error", err.Error()))
				return
			}
		case <-client.Done:
			log.Info("stream closed by manager")
			return
		case <-r.Context().Done():
			return
		}
	}
}
