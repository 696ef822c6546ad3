package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/replysmith/replysmith/internal/metrics"
	"github.com/replysmith/replysmith/internal/observability"
)

// Recovery middleware recovers from panics, logs them, and answers with the
// flat API error shape. The response is written directly here to avoid a
// circular import with the errors package.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				requestID := GetRequestID(r.Context())

				if observability.ServerLogger != nil {
					observability.ServerLogger.Error("panic recovered",
						zap.Any("panic", err),
						zap.String("request_id", requestID),
						zap.String("path", r.URL.Path),
						zap.String("stack_trace", string(debug.Stack())),
					)
				}

				metrics.RecordPanic()
				metrics.RecordError("INTERNAL_ERROR", http.StatusInternalServerError)

				writeErrorResponse(w, fmt.Sprintf("panic: %v", err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func writeErrorResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
