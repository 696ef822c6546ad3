// Package errors provides error envelope helpers and the HTTP error
// responder. Internally every failure is a gofulmen ErrorEnvelope; on the
// wire the API speaks a deliberately flat JSON shape so browser clients can
// read it without unwrapping.
package errors

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/replysmith/replysmith/internal/metrics"
	"github.com/replysmith/replysmith/internal/observability"
	"github.com/replysmith/replysmith/internal/server/middleware"
)

// Context keys used to carry limiter data through an envelope to the wire.
const (
	ctxKeyRetryAfterSec = "retry_after_sec"
	ctxKeyRemaining     = "remaining"
)

// User errors (400-level)

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("INVALID_INPUT", message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("NOT_FOUND", message)
}

func NewUnauthorizedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("UNAUTHORIZED", message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("METHOD_NOT_ALLOWED", message)
}

func NewCaptchaFailedError(message string) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope("CAPTCHA_FAILED", message)
	env, _ = env.WithSeverity(errors.SeverityLow)
	return env
}

// NewRateLimitedError builds the per-minute rejection. retryAfterSec and
// remaining travel in the envelope context so the responder can surface them.
func NewRateLimitedError(message string, retryAfterSec, remaining int) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope("RATE_LIMITED", message)
	env, _ = env.WithSeverity(errors.SeverityLow)
	env, _ = env.WithContext(map[string]interface{}{
		ctxKeyRetryAfterSec: retryAfterSec,
		ctxKeyRemaining:     remaining,
	})
	return env
}

// NewDailyCapError builds the daily-cap rejection. Remaining is always zero
// once the cap is reached, and the wire contract requires it explicitly.
func NewDailyCapError(message string) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope("DAILY_CAP", message)
	env, _ = env.WithSeverity(errors.SeverityLow)
	env, _ = env.WithContext(map[string]interface{}{
		ctxKeyRemaining: 0,
	})
	return env
}

// Server errors (500-level)

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("INTERNAL_ERROR", message)
}

func NewConfigMissingError(message string) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope("CONFIG_MISSING", message)
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

func NewUpstreamError(message string) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope("UPSTREAM_ERROR", message)
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// WrapInternal attaches the underlying error and request correlation to an
// internal error envelope.
func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope("INTERNAL_ERROR", message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	envelope = withWrappedError(envelope, err)
	return envelope
}

// WrapUpstream attaches the underlying provider error to an upstream error
// envelope.
func WrapUpstream(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	envelope := NewUpstreamError(message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	envelope = withWrappedError(envelope, err)
	return envelope
}

// extractCorrelationID gets the request ID from context, falls back to a new UUID.
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if requestID := middleware.GetRequestID(ctx); requestID != "" {
			return requestID
		}
	}
	return uuid.New().String()
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope("INTERNAL_ERROR", "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		return envelope
	}

	env := errors.NewErrorEnvelope("INTERNAL_ERROR", "unexpected error")
	env, _ = env.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	if envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}

	if correlationID == "" {
		correlationID = "fallback-" + errors.GenerateCorrelationID()
	}

	return envelope.WithCorrelationID(correlationID)
}

// HTTPStatusFromEnvelope resolves the HTTP status code corresponding to an error envelope.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// HTTPStatusFromCode resolves the HTTP status code corresponding to an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case "INVALID_INPUT":
		return http.StatusBadRequest
	case "NOT_FOUND":
		return http.StatusNotFound
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	case "CAPTCHA_FAILED":
		return http.StatusForbidden
	case "METHOD_NOT_ALLOWED":
		return http.StatusMethodNotAllowed
	case "RATE_LIMITED", "DAILY_CAP":
		return http.StatusTooManyRequests
	case "SERVICE_UNAVAILABLE":
		return http.StatusServiceUnavailable
	default:
		// CONFIG_MISSING, UPSTREAM_ERROR, INTERNAL_ERROR
		return http.StatusInternalServerError
	}
}

// wireCode maps internal codes to the machine-readable codes clients key on.
// Everything else is identified by status alone, so code is omitted.
func wireCode(code string) string {
	switch code {
	case "CAPTCHA_FAILED":
		return "captcha_failed"
	case "RATE_LIMITED":
		return "rate_limited"
	case "DAILY_CAP":
		return "daily_cap"
	default:
		return ""
	}
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}

	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}

// APIError is the flat wire shape for every error response. Remaining is a
// pointer so a zero remaining (daily cap) still serializes.
type APIError struct {
	Error         string `json:"error"`
	Code          string `json:"code,omitempty"`
	RetryAfterSec int    `json:"retryAfterSec,omitempty"`
	Remaining     *int   `json:"remaining,omitempty"`
}

// RespondWithError normalizes the supplied error and writes a JSON response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope finalizes the provided envelope, logging and emitting metrics.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}

	if r != nil {
		envelope = EnsureCorrelationID(envelope, r.Context())
	} else {
		envelope = EnsureCorrelationID(envelope, nil)
	}

	statusCode := HTTPStatusFromEnvelope(envelope)

	response := APIError{
		Error: envelope.Message,
		Code:  wireCode(envelope.Code),
	}

	if retry, ok := contextInt(envelope, ctxKeyRetryAfterSec); ok && retry > 0 {
		response.RetryAfterSec = retry
	}
	if remaining, ok := contextInt(envelope, ctxKeyRemaining); ok {
		response.Remaining = &remaining
	}

	logHTTPError(envelope, statusCode)
	emitErrorMetrics(r, envelope, statusCode)

	w.Header().Set("Content-Type", "application/json")
	if envelope.Code == "RATE_LIMITED" && response.RetryAfterSec > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(response.RetryAfterSec))
	}
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// contextInt reads an integer out of the envelope context. Values may come
// back as json-decoded float64 after an envelope round trip.
func contextInt(envelope *errors.ErrorEnvelope, key string) (int, bool) {
	if envelope == nil || envelope.Context == nil {
		return 0, false
	}
	switch v := envelope.Context[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func logHTTPError(envelope *errors.ErrorEnvelope, statusCode int) {
	if observability.ServerLogger == nil || envelope == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", statusCode),
	}

	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}

	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("request_id", envelope.CorrelationID))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		observability.ServerLogger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		observability.ServerLogger.Warn(envelope.Message, fields...)
	default:
		observability.ServerLogger.Info(envelope.Message, fields...)
	}
}

func emitErrorMetrics(r *http.Request, envelope *errors.ErrorEnvelope, statusCode int) {
	if envelope == nil {
		return
	}

	metrics.RecordError(envelope.Code, statusCode)
	if r != nil {
		metrics.RecordErrorByEndpoint(r.URL.Path, envelope.Code)
	}
}
