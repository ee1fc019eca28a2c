package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/innofolio/innofolio/internal/llm"
	"github.com/innofolio/innofolio/internal/pipeline"
	"github.com/innofolio/innofolio/internal/prompt"
)

// maxRequestBody bounds chat request payloads.
const maxRequestBody = 1 << 20 // 1 MiB

// Runner is the pipeline surface the chat handlers need.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	RunStream(ctx context.Context, req pipeline.Request, cb llm.StreamCallback) (*pipeline.Result, error)
}

type chatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

type chatRequest struct {
	Message             string        `json:"message" validate:"required,max=4000"`
	ConversationHistory []chatMessage `json:"conversation_history" validate:"omitempty,dive"`
	SessionID           string        `json:"session_id" validate:"omitempty,max=128"`
	ResumeText          string        `json:"resume_text" validate:"omitempty,max=20000"`
}

type chatResponse struct {
	Response  string   `json:"response"`
	Sources   []string `json:"sources"`
	SessionID string   `json:"session_id"`
}

type chatHandler struct {
	runner   Runner
	validate *validator.Validate
	logger   *slog.Logger
}

func newChatHandler(runner Runner, logger *slog.Logger) *chatHandler {
	return &chatHandler{
		runner:   runner,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// decodeRequest parses and validates the chat payload, filling in a session
// ID when the client did not supply one.
func (h *chatHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (*chatRequest, bool) {
	var req chatRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", h.logger)
		return nil, false
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(err), h.logger)
		return nil, false
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	return &req, true
}

func (h *chatHandler) pipelineRequest(req *chatRequest) pipeline.Request {
	history := make([]prompt.Turn, 0, len(req.ConversationHistory))
	for _, msg := range req.ConversationHistory {
		history = append(history, prompt.Turn{Role: msg.Role, Content: msg.Content})
	}
	return pipeline.Request{
		Message:    req.Message,
		History:    history,
		SessionID:  req.SessionID,
		ResumeText: req.ResumeText,
	}
}

// send handles POST /api/chat: one blocking request-response turn.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	result, err := h.runner.Run(r.Context(), h.pipelineRequest(req))
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	sources := result.Sources
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Response:  result.Response,
		Sources:   sources,
		SessionID: result.SessionID,
	})
}

// stream handles POST /api/chat/stream: the response is delivered as
// server-sent events, one {"content": ...} frame per chunk, terminated by a
// [DONE] frame.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sent := false
	_, err := h.runner.RunStream(r.Context(), h.pipelineRequest(req), func(chunk string) error {
		if writeErr := writeSSEContent(w, chunk); writeErr != nil {
			return writeErr
		}
		sent = true
		flusher.Flush()
		return nil
	})
	if err != nil {
		h.logger.Error("stream pipeline failed",
			"request_id", requestIDFromContext(r.Context()),
			"chunks_sent", sent,
			"error", err)
		if !sent {
			// Nothing delivered yet: surface the failure as a frame so the
			// client does not hang on an empty stream.
			_ = writeSSEError(w, "generation_failed")
			flusher.Flush()
		}
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeSSEContent(w http.ResponseWriter, content string) error {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("encoding SSE frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("writing SSE frame: %w", err)
	}
	return nil
}

func writeSSEError(w http.ResponseWriter, code string) error {
	payload, err := json.Marshal(map[string]string{"error": code})
	if err != nil {
		return fmt.Errorf("encoding SSE error frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("writing SSE error frame: %w", err)
	}
	return nil
}

// writePipelineError maps pipeline failures onto HTTP statuses.
func (h *chatHandler) writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, prompt.ErrBudgetExceeded):
		writeError(w, http.StatusBadRequest, "message_too_long", "message is too long to process", h.logger)
	case errors.Is(err, llm.ErrRateLimited):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "model_rate_limited", "the model is temporarily overloaded, try again shortly", h.logger)
	case errors.Is(err, llm.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "generation_timeout", "response generation timed out", h.logger)
	case errors.Is(err, pipeline.ErrCircuitOpen):
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, "model_unavailable", "the model is temporarily unavailable", h.logger)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process message", h.logger)
	}
}

// validationMessage flattens a validator error into a client-friendly string.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fmt.Sprintf("%s is required", fe.Field())
		case "oneof":
			return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
		case "max":
			return fmt.Sprintf("%s exceeds maximum length %s", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
	return "invalid request"
}
