// Package httputil provides shared HTTP response/request helpers.
//
// Handlers use these instead of raw http.ResponseWriter calls so JSON
// formatting, error envelopes, and logging stay consistent across the API.
// Internal errors never leak upstream detail to clients; they return a
// generic message plus a trace id that can be matched against the logs.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/ignite/tubefeed/internal/pkg/logger"
)

// ErrorResponse is the standard error envelope for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("response encode failed", "error", err)
	}
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created writes a 201 response with the given data.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// Error writes a JSON error response. Use for client errors (4xx).
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// BadRequest writes a 400 error.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// NotFound writes a 404 error.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}

// InternalError writes a 500 error. The real error goes to the log with a
// trace id; the client only sees the trace id.
func InternalError(w http.ResponseWriter, err error) {
	traceID := uuid.New().String()
	logger.Error("internal error", "trace_id", traceID, "error", err)
	JSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal server error",
		TraceID: traceID,
	})
}

// Decode reads JSON from the request body into dst.
// Returns false and writes a 400 response if parsing fails.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
