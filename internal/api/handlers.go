package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/leofalp/taxassist/core/orchestrator"
	"github.com/leofalp/taxassist/providers/memory"
	"github.com/leofalp/taxassist/providers/observability"
)

const maxBodyBytes = 64 << 10

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// ChatResponse wraps the orchestrator result with request metadata.
type ChatResponse struct {
	UserID string `json:"user_id"`
	*orchestrator.ChatResult
	Timestamp time.Time `json:"timestamp"`
}

// ThreadsResponse lists a user's threads.
type ThreadsResponse struct {
	UserID    string   `json:"user_id"`
	ThreadIDs []string `json:"thread_ids"`
}

// StatusResponse reports the outcome of an operation without a payload.
type StatusResponse struct {
	Status string `json:"status"`
}

// PromptsResponse lists example questions.
type PromptsResponse struct {
	Prompts []string `json:"prompts"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var input orchestrator.ChatInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.service.Chat(r.Context(), input)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		UserID:     input.UserID,
		ChatResult: result,
		Timestamp:  time.Now().UTC(),
	})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	history, err := s.service.GetHistory(r.Context(), r.PathValue("user"), r.PathValue("thread"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) listThreads(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	threads, err := s.service.ListThreads(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ThreadsResponse{UserID: userID, ThreadIDs: threads})
}

func (s *Server) deleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteThread(r.Context(), r.PathValue("user"), r.PathValue("thread")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "deleted"})
}

func (s *Server) prompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PromptsResponse{Prompts: s.service.SuggestPrompts(r.Context())})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, orchestrator.ErrThreadNotFound):
		return http.StatusNotFound
	case errors.Is(err, memory.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			observability.AttrRequestID, observability.RequestIDFromContext(r.Context()),
			"error", err,
		)
		// Backend details stay in the log.
		message = http.StatusText(status)
	}
	writeError(w, status, message)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Message: message, Status: status}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
