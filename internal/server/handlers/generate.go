package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/replysmith/replysmith/internal/captcha"
	"github.com/replysmith/replysmith/internal/core"
	"github.com/replysmith/replysmith/internal/core/engine"
	apperrors "github.com/replysmith/replysmith/internal/errors"
	"github.com/replysmith/replysmith/internal/llm/driver"
	"github.com/replysmith/replysmith/internal/metrics"
	"github.com/replysmith/replysmith/internal/observability"
	"github.com/replysmith/replysmith/internal/reply"
	"github.com/replysmith/replysmith/internal/server/middleware"
)

// DefaultReviewMaxChars bounds the review body when no limit is configured.
const DefaultReviewMaxChars = 4000

const reviewMinChars = 3

// GenerateRequest is the POST /api/generate body. Unknown tones and lengths
// are accepted and fall back to defaults downstream.
type GenerateRequest struct {
	Review       string `json:"review"`
	Tone         string `json:"tone"`
	Length       string `json:"length"`
	ReviewerName string `json:"reviewerName"`
	CaptchaToken string `json:"captchaToken"`
}

// GenerateResponse is the success payload.
type GenerateResponse struct {
	Reply     string `json:"reply"`
	Remaining int    `json:"remaining"`
}

// GenerateHandler runs the full generate pipeline: credentials, input
// validation, CAPTCHA, usage admission, then the upstream call. Order
// matters: CAPTCHA failures must not consume quota, and an admitted request
// keeps its consumed slot even if the upstream call fails.
type GenerateHandler struct {
	Tracker  *engine.Tracker
	Verifier *captcha.Verifier
	Service  *reply.Service

	// CredentialsOK reports whether the upstream API key is configured.
	// Nil means configured.
	CredentialsOK func() bool

	// ReviewMaxChars bounds the raw review length in runes. Zero means
	// DefaultReviewMaxChars.
	ReviewMaxChars int
}

// ServeHTTP implements http.Handler.
func (h *GenerateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ok := h.serve(w, r)
	metrics.RecordGenerate(ok, time.Since(start))
}

func (h *GenerateHandler) serve(w http.ResponseWriter, r *http.Request) bool {
	ctx := r.Context()
	ip := middleware.GetClientIP(ctx)

	if h.CredentialsOK != nil && !h.CredentialsOK() {
		respondWithError(w, r, apperrors.NewConfigMissingError("Missing upstream API key"))
		return false
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError("Invalid JSON body"))
		return false
	}

	if strings.TrimSpace(req.Review) == "" || utf8.RuneCountInString(strings.TrimSpace(req.Review)) < reviewMinChars {
		respondWithError(w, r, apperrors.NewInvalidInputError("Missing review text"))
		return false
	}

	maxChars := h.ReviewMaxChars
	if maxChars <= 0 {
		maxChars = DefaultReviewMaxChars
	}
	if utf8.RuneCountInString(req.Review) > maxChars {
		respondWithError(w, r, apperrors.NewInvalidInputError(fmt.Sprintf("Review too long (max %d chars)", maxChars)))
		return false
	}

	// CAPTCHA before any counter is touched. A failed human check must not
	// burn quota.
	if h.Verifier.Enabled() {
		if err := h.Verifier.Verify(ctx, req.CaptchaToken, ip); err != nil {
			metrics.RecordCaptcha(false)
			message := "CAPTCHA failed. Please try again."
			if errors.Is(err, captcha.ErrMissingToken) {
				message = "Missing CAPTCHA token."
			}
			if observability.ServerLogger != nil {
				observability.ServerLogger.Info("captcha verification rejected",
					zap.String("client_ip", ip),
					zap.Error(err),
				)
			}
			respondWithError(w, r, apperrors.NewCaptchaFailedError(message))
			return false
		}
		metrics.RecordCaptcha(true)
	}

	admission, err := h.Tracker.Admit(ctx, ip)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(ctx, err, "Usage store unavailable"))
		return false
	}
	if !admission.OK {
		metrics.RecordRejection(string(admission.Reason))
		switch admission.Reason {
		case core.ReasonDailyCap:
			respondWithError(w, r, apperrors.NewDailyCapError("Daily limit reached."))
		default:
			respondWithError(w, r, apperrors.NewRateLimitedError(
				"Too many requests. Slow down.",
				admission.RetryAfterSec,
				admission.Remaining,
			))
		}
		return false
	}

	text, err := h.Service.Generate(ctx, reply.Input{
		Review:       req.Review,
		Tone:         reply.Tone(req.Tone),
		Length:       reply.Length(req.Length),
		ReviewerName: req.ReviewerName,
	})
	if err != nil {
		// The consumed slot is not refunded; the request did reach the
		// provider.
		h.recordUpstream(false)
		respondWithError(w, r, upstreamEnvelope(err))
		return false
	}
	h.recordUpstream(true)

	response := GenerateResponse{
		Reply:     text,
		Remaining: admission.Remaining,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
	return true
}

func (h *GenerateHandler) recordUpstream(success bool) {
	provider := "unknown"
	if h.Service != nil && h.Service.Driver != nil {
		provider = h.Service.Driver.Name()
	}
	metrics.RecordUpstream(provider, success)
}

// upstreamEnvelope translates a generation failure. Provider error messages
// are passed through so callers see what the upstream rejected; anything else
// gets a generic message.
func upstreamEnvelope(err error) error {
	var provErr *driver.ProviderError
	if errors.As(err, &provErr) {
		message := strings.TrimSpace(provErr.Message)
		if message == "" {
			message = "Upstream request failed"
		}
		return apperrors.NewUpstreamError(message)
	}

	if errors.Is(err, reply.ErrEmptyReply) {
		return apperrors.NewUpstreamError("No reply returned")
	}

	return apperrors.NewUpstreamError("Upstream request failed")
}
