package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xhad/mindvault/internal/types"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// classify maps an error to its HTTP status, error code and user-facing
// message. Internal details are never part of the message.
func classify(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, types.ErrInvalidQuery):
		return http.StatusBadRequest, errorResponse{
			Error:   "invalid_query",
			Message: "We could not understand that question. Please rephrase your query and try again.",
		}
	case errors.Is(err, types.ErrInvalidContent):
		return http.StatusBadRequest, errorResponse{
			Error:   "invalid_content",
			Message: err.Error(),
		}
	case errors.Is(err, types.ErrUnauthenticated):
		return http.StatusUnauthorized, errorResponse{
			Error:   "unauthenticated",
			Message: "Please sign in to continue.",
		}
	case errors.Is(err, types.ErrContentNotFound):
		return http.StatusNotFound, errorResponse{
			Error:   "not_found",
			Message: "Content not found.",
		}
	case errors.Is(err, types.ErrShareNotFound):
		return http.StatusNotFound, errorResponse{
			Error:   "not_found",
			Message: "This vault is not shared.",
		}
	case types.IsUpstream(err):
		return http.StatusServiceUnavailable, errorResponse{
			Error:   "service_unavailable",
			Message: "Search is temporarily unavailable. Please try again in a moment.",
		}
	default:
		return http.StatusInternalServerError, errorResponse{
			Error:   "internal_error",
			Message: "Something went wrong. Please try again.",
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID(r.Context()),
			"status", status,
			"error", err)
	}
	writeJSON(w, status, body)
}
