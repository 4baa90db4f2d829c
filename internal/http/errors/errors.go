package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Write answers with a JSON error body carrying the request id.
func Write(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: message, RequestID: middleware.GetReqID(r.Context())})
}

func InternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	LogError(r, message, err)
	// The cause stays in the log; clients get a generic message.
	Write(w, r, http.StatusInternalServerError, "internal server error")
}

func BadRequestError(w http.ResponseWriter, r *http.Request, err error, clientMessage string) {
	logger(r).Warn("bad request", zap.Error(err))
	Write(w, r, http.StatusBadRequest, clientMessage)
}

func NotFound(w http.ResponseWriter, r *http.Request, clientMessage string) {
	Write(w, r, http.StatusNotFound, clientMessage)
}

func Unauthorized(w http.ResponseWriter, r *http.Request, clientMessage string) {
	Write(w, r, http.StatusUnauthorized, clientMessage)
}

func LogError(r *http.Request, message string, err error) {
	logger(r).Error(message, zap.Error(err))
}

func LogInfo(r *http.Request, message string) {
	logger(r).Info(message)
}

func logger(r *http.Request) *zap.Logger {
	l := zap.L()
	if requestID := middleware.GetReqID(r.Context()); requestID != "" {
		l = l.With(zap.String("request_id", requestID))
	}
	return l
}
