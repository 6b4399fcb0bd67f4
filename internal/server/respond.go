package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/skourtis/boomtown/internal/domain"
)

// envelope is the uniform response shape: {"success": true, "data": ...} on
// the happy path, {"success": false, "error": {...}} otherwise.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errBody    `json:"error,omitempty"`
}

type errBody struct {
	Kind              string `json:"kind"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// statusFor maps error kinds to HTTP statuses.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindPreconditionFailed:
		return http.StatusUnprocessableEntity
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeData writes a success envelope.
func (s *Server) writeData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a failure envelope. Internal errors are logged with the
// real cause and surfaced with a generic message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	body := &errBody{Kind: string(kind), Message: err.Error()}

	var de *domain.Error
	if errors.As(err, &de) {
		body.Message = de.Message
		body.RetryAfterSeconds = de.RetryAfterSeconds
	} else {
		s.log.Error().Err(err).Msg("Internal error")
		body.Message = "internal error"
	}

	w.Header().Set("Content-Type", "application/json")
	if kind == domain.KindRateLimited && body.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfterSeconds))
	}
	w.WriteHeader(statusFor(kind))
	if encErr := json.NewEncoder(w).Encode(envelope{Success: false, Error: body}); encErr != nil {
		s.log.Error().Err(encErr).Msg("Failed to encode JSON error response")
	}
}

// tryDecode parses an optional request body; an empty body is fine.
func (s *Server) tryDecode(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

// decodeJSON parses a request body into dst with a size cap.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, domain.E(domain.KindInvalidRequest, "invalid request body"))
		return false
	}
	return true
}
