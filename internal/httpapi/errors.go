package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"genrelay/internal/upstream"
	"genrelay/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeUpstreamReply forwards a provider reply with its status and body unchanged.
func writeUpstreamReply(w http.ResponseWriter, status int, contentType string, body []byte) {
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeServiceError maps a service error to a response and returns the status
// written. Provider rejections are passed through verbatim.
func writeServiceError(w http.ResponseWriter, err error) int {
	if se, ok := upstream.AsStatusError(err); ok {
		writeUpstreamReply(w, se.StatusCode, se.ContentType, se.Body)
		return se.StatusCode
	}
	var he HTTPError
	if errors.As(err, &he) {
		writeJSONError(w, he.StatusCode(), he.Error())
		return he.StatusCode()
	}
	writeJSONError(w, http.StatusInternalServerError, "internal error")
	return http.StatusInternalServerError
}

// upstreamErrorKind classifies err for the upstream error counter.
func upstreamErrorKind(err error) string {
	if _, ok := upstream.AsStatusError(err); ok {
		return "status"
	}
	var te *upstream.TransportError
	if errors.As(err, &te) {
		if te.Timeout {
			return "timeout"
		}
		return "transport"
	}
	return "other"
}
