package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	pkgerrors "notemesh/pkg/errors"
)

// MaxBodyBytes caps JSON request bodies
const MaxBodyBytes = 1 << 20

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *MetaInfo   `json:"meta,omitempty"`
}

// MetaInfo contains metadata about the response
type MetaInfo struct {
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  string    `json:"timestamp,omitempty"`
	Count      *int      `json:"count,omitempty"`
	Pagination *PageInfo `json:"pagination,omitempty"`
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	RespondWithMeta(w, status, data, &MetaInfo{
		RequestID: middleware.GetReqID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RespondList sends a list response carrying its length in the meta block
func RespondList(w http.ResponseWriter, r *http.Request, items interface{}, count int) {
	RespondWithMeta(w, http.StatusOK, items, &MetaInfo{
		RequestID: middleware.GetReqID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Count:     &count,
	})
}

// RespondPage sends one page of a list
func RespondPage(w http.ResponseWriter, r *http.Request, items interface{}, count int, page *PageInfo) {
	RespondWithMeta(w, http.StatusOK, items, &MetaInfo{
		RequestID:  middleware.GetReqID(r.Context()),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Count:      &count,
		Pagination: page,
	})
}

// RespondWithMeta sends a response with metadata
func RespondWithMeta(w http.ResponseWriter, status int, data interface{}, meta *MetaInfo) {
	response := APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    meta,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// NoContent sends an empty 204
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// DecodeJSON parses a JSON request body with a size limit. An empty body
// decodes to the zero value.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.NewValidationError("Request body too large").WithDetail("limit", tooLarge.Limit)
		}
		return pkgerrors.NewValidationError("Invalid request body").WithCause(err)
	}
	return nil
}
