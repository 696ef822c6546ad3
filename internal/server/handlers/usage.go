package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/replysmith/replysmith/internal/core"
	"github.com/replysmith/replysmith/internal/core/engine"
	apperrors "github.com/replysmith/replysmith/internal/errors"
)

// UsageResponse lists the live usage records.
type UsageResponse struct {
	Count     int               `json:"count"`
	Entries   []core.UsageEntry `json:"entries"`
	Timestamp time.Time         `json:"timestamp"`
}

// UsageHandler serves the admin usage listing, gated by a bearer token.
type UsageHandler struct {
	Store engine.UsageStore
	Token string
}

// ServeHTTP implements http.Handler.
func (h *UsageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		respondWithError(w, r, apperrors.NewUnauthorizedError("Invalid or missing bearer token"))
		return
	}

	entries, err := h.Store.List(r.Context())
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "Usage store unavailable"))
		return
	}

	response := UsageResponse{
		Count:     len(entries),
		Entries:   entries,
		Timestamp: time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

func (h *UsageHandler) authorized(r *http.Request) bool {
	if h.Token == "" {
		return false
	}

	auth := r.Header.Get("Authorization")
	presented, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.Token)) == 1
}
