package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/MrEthical07/streamauth"
)

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

// mapError translates engine sentinels to a status, code and client
// message. Credential failures share one message.
func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, streamauth.ErrInvalidRequest), errors.Is(err, streamauth.ErrPasswordPolicy):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, streamauth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password"
	case errors.Is(err, streamauth.ErrInvalidToken):
		return http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token"
	case errors.Is(err, streamauth.ErrTokenRevoked):
		return http.StatusUnauthorized, "TOKEN_REVOKED", "token revoked"
	case errors.Is(err, streamauth.ErrAccountLocked):
		return http.StatusLocked, "ACCOUNT_LOCKED", "account temporarily locked"
	case errors.Is(err, streamauth.ErrLoginRateLimited), errors.Is(err, streamauth.ErrRefreshRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED", "too many requests"
	case errors.Is(err, streamauth.ErrAccountExists):
		return http.StatusConflict, "ACCOUNT_EXISTS", "account already exists"
	case errors.Is(err, streamauth.ErrDeviceQuotaExceeded):
		return http.StatusConflict, "DEVICE_LIMIT_REACHED", "device limit reached; log out another device"
	case errors.Is(err, streamauth.ErrDeviceNotFound):
		return http.StatusNotFound, "NOT_FOUND", "device not found"
	case errors.Is(err, streamauth.ErrStoreUnavailable), errors.Is(err, streamauth.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "UNAVAILABLE", "service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

func (h *Handler) writeMappedError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	status, code, msg := mapError(err)
	if streamauth.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	h.logOperationError(ctx, operation, status, code, err)
	writeError(w, status, code, msg)
}

func (h *Handler) writeValidationError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	h.logOperationError(ctx, operation, http.StatusBadRequest, "VALIDATION_ERROR", err)
	writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
}

func (h *Handler) logOperationError(ctx context.Context, operation string, statusCode int, code string, err error) {
	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", statusCode,
		"error_code", code,
		"request_id", requestIDFromContext(ctx),
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	if statusCode >= 500 {
		h.logger.ErrorContext(ctx, "http operation failed", fields...)
		return
	}
	h.logger.WarnContext(ctx, "http operation failed", fields...)
}
