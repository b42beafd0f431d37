package utils

import (
	"encoding/json"
	"net/http"
	"strconv"

	"winkwink_server/services"
)

// APIError is the JSON body of every failed request
type APIError struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	RetryAfterSec int64  `json:"retryAfterSec,omitempty"`
}

// WriteJSONResponse writes payload as JSON with the given status
func WriteJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError maps a service error onto a status code. Internal failures keep
// their cause out of the response.
func WriteError(w http.ResponseWriter, err error) {
	se := services.AsError(err)
	if se == nil {
		return
	}
	body := APIError{Code: string(se.Kind), Message: se.Message}
	if se.Kind == services.KindRateLimited {
		body.RetryAfterSec = se.RetryAfterSec
		w.Header().Set("Retry-After", strconv.FormatInt(se.RetryAfterSec, 10))
	}
	WriteJSONResponse(w, StatusFor(se.Kind), body)
}

// WriteBadRequest is for malformed requests rejected before any service call
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteJSONResponse(w, http.StatusBadRequest, APIError{Code: string(services.KindInvalidArgument), Message: message})
}

func StatusFor(kind services.Kind) int {
	switch kind {
	case services.KindInvalidArgument:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case services.KindConflict:
		return http.StatusConflict
	case services.KindTransient:
		return http.StatusServiceUnavailable
	case services.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
