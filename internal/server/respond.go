package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/conversation"
	"github.com/Veraticus/banktalk/internal/transfer"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Session any    `json:"session,omitempty"`
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// decodeBody reads a JSON request body into dst. An empty body leaves dst
// unchanged.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var validation *transfer.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, transfer.ErrInvalidTransition),
		errors.Is(err, conversation.ErrNoClassification):
		return http.StatusConflict
	case errors.Is(err, transfer.ErrSubmissionFailed):
		return http.StatusBadGateway
	case errors.Is(err, common.ErrNotFound),
		errors.Is(err, common.ErrRuleNotFound),
		errors.Is(err, common.ErrSessionNotFound),
		errors.Is(err, common.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversation.ErrClosed):
		return http.StatusGone
	case errors.Is(err, conversation.ErrEmptyUtterance),
		errors.Is(err, common.ErrInvalidConfig),
		errors.Is(err, transfer.ErrNotTransfer):
		return http.StatusBadRequest
	case common.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns text that is safe to show to the caller.
func messageFor(err error, status int) string {
	var validation *transfer.ValidationError
	if errors.As(err, &validation) {
		return validation.Message
	}
	if msg := common.UserMessage(err, ""); msg != "" {
		return msg
	}
	switch status {
	case http.StatusInternalServerError:
		return "Something went wrong. Please try again."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again."
	default:
		return err.Error()
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"request_id", RequestID(r.Context()),
			"error", err)
	}
	writeError(w, status, messageFor(err, status))
}
