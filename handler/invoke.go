package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"agent-gateway/internal/domain"
	"agent-gateway/internal/usecase"
)

// Session id header set by the runtime front end when the caller does not
// manage session ids itself.
const runtimeSessionHeader = "X-Amzn-Bedrock-AgentCore-Runtime-Session-Id"

// InvokeRunner is the usecase surface consumed by InvokeHandler.
type InvokeRunner interface {
	Invoke(ctx context.Context, in usecase.InvokeInput, emit usecase.EventSink) (usecase.InvokeOutput, error)
}

// InvokeHandler serves the agent runtime HTTP contract: a streaming
// invocation endpoint and a liveness probe.
type InvokeHandler struct {
	svc    InvokeRunner
	logger *slog.Logger
}

type invokeRequest struct {
	Prompt    string `json:"prompt"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

func NewInvokeHandler(svc InvokeRunner, logger *slog.Logger) (*InvokeHandler, error) {
	if svc == nil {
		return nil, errors.New("handler: invoke service must not be nil")
	}
	if logger == nil {
		return nil, errors.New("handler: logger must not be nil")
	}
	return &InvokeHandler{svc: svc, logger: logger}, nil
}

// Router builds the runtime's HTTP mux.
func (h *InvokeHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ping", h.ping)
	r.Post("/invocations", h.invoke)
	return r
}

func (h *InvokeHandler) ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// invoke streams the agent turn as server-sent events. The stream is always
// well formed: chunks and tool_use events as they happen, then exactly one
// terminal done or error event. Failures never surface as transport errors
// once the stream has started.
func (h *InvokeHandler) invoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"request body must be valid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = r.Header.Get(runtimeSessionHeader)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	emit := func(ev domain.StreamEvent) {
		writeEvent(w, flusher, ev)
	}

	if _, err := h.svc.Invoke(r.Context(), usecase.InvokeInput{
		Prompt:    req.Prompt,
		UserID:    req.UserID,
		SessionID: req.SessionID,
	}, emit); err != nil {
		h.logger.Error("invocation failed", "session_id", req.SessionID, "error", err)
		writeEvent(w, flusher, domain.StreamEvent{Type: domain.EventError, Error: publicError(err)})
		return
	}

	writeEvent(w, flusher, domain.StreamEvent{Type: domain.EventDone, SessionID: req.SessionID})
}

// publicError keeps internal detail out of the stream: validation reasons are
// safe to echo, everything else collapses to the error code.
func publicError(err error) string {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		return string(usecase.ErrorInternal)
	}
	if ue.Code == usecase.ErrorInvalidInput {
		return ue.Reason
	}
	return string(ue.Code)
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, ev domain.StreamEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", raw)
	if flusher != nil {
		flusher.Flush()
	}
}
