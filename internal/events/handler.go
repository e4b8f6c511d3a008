package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	domainerrors "github.com/collectr/collectr/internal/errors"
	"github.com/collectr/collectr/internal/http/response"
)

// Handler streams events to HTTP clients as Server-Sent Events. The optional
// "types" query parameter is a comma-separated list of event types to receive.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{
		manager: manager,
		logger:  logger,
	}
}

// ServeHTTP handles the stream connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.MethodNotAllowed(w, h.logger)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		response.HandleError(w, domainerrors.Wrap(err, domainerrors.CodeInternal, "streaming not supported"), h.logger)
		return
	}

	sub, err := h.manager.Subscribe(parseTypes(r.URL.Query().Get("types"))...)
	if err != nil {
		response.HandleError(w, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to establish connection"), h.logger)
		return
	}
	defer h.manager.Unsubscribe(sub.ID)

	subLogger := h.logger.With(slog.String("subscriber_id", sub.ID))

	if err := h.send(w, rc, "connected", map[string]string{"subscriber_id": sub.ID}); err != nil {
		subLogger.Warn("failed to send connection message", slog.String("error", err.Error()))
		return
	}

	ctx := r.Context()
	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := h.send(w, rc, string(event.Type), event); err != nil {
				subLogger.Info("client disconnected during send")
				return
			}
		case <-sub.Done:
			subLogger.Info("stream closed by manager")
			return
		case <-ctx.Done():
			subLogger.Debug("client context canceled")
			return
		}
	}
}

func parseTypes(raw string) []EventType {
	var out []EventType
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, EventType(part))
		}
	}
	return out
}

// send writes one event in SSE framing and flushes it.
func (h *Handler) send(w http.ResponseWriter, rc *http.ResponseController, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}

	if err := rc.SetWriteDeadline(time.Now().Add(60 * time.Second)); err != nil {
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}
