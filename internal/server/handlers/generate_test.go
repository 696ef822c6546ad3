package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/replysmith/replysmith/internal/captcha"
	"github.com/replysmith/replysmith/internal/core"
	"github.com/replysmith/replysmith/internal/core/engine"
	"github.com/replysmith/replysmith/internal/core/store"
	"github.com/replysmith/replysmith/internal/llm/driver"
	"github.com/replysmith/replysmith/internal/reply"
	"github.com/replysmith/replysmith/internal/server/middleware"
)

type stubDriver struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (d *stubDriver) Complete(_ context.Context, _ *driver.Request) (*driver.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return &driver.Response{Text: d.text}, nil
}

func (d *stubDriver) Name() string { return "stub" }

func (d *stubDriver) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	handler *GenerateHandler
	store   *store.MemoryStore
	driver  *stubDriver
	clock   *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mem := store.NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)}
	tracker := engine.NewTracker(mem, core.Limits{DailyCap: 20, PerMinuteCap: 6})
	tracker.Clock = clock.Now

	stub := &stubDriver{text: "Thanks so much for the kind words!"}

	return &testEnv{
		handler: &GenerateHandler{
			Tracker:  tracker,
			Verifier: captcha.NewVerifier(""),
			Service:  reply.NewService(stub, "llama-3.1-8b-instant", 0.6),
		},
		store:  mem,
		driver: stub,
		clock:  clock,
	}
}

func (env *testEnv) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewReader([]byte(body)))
	r.Header.Set(middleware.DefaultTrustedIPHeader, "203.0.113.7")
	w := httptest.NewRecorder()

	wrapped := middleware.ClientIP("")(env.handler)
	wrapped.ServeHTTP(w, r)
	return w
}

type errorBody struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	RetryAfterSec int    `json:"retryAfterSec"`
	Remaining     *int   `json:"remaining"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGenerateRejectsInvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, `{not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	require.Equal(t, "Invalid JSON body", body.Error)
	require.Empty(t, body.Code)
	require.Zero(t, env.driver.callCount())
}

func TestGenerateRejectsShortReview(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, `{"review":"ok"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Missing review text", decodeError(t, w).Error)

	// Whitespace padding does not help
	w = env.post(t, `{"review":"  ok   "}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Three trimmed characters is enough
	w = env.post(t, `{"review":" abc "}`)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestGenerateRejectsOverlongReview(t *testing.T) {
	env := newTestEnv(t)

	atLimit := strings.Repeat("a", 4000)
	w := env.post(t, fmt.Sprintf(`{"review":%q}`, atLimit))
	require.Equal(t, http.StatusOK, w.Code)

	overLimit := strings.Repeat("a", 4001)
	w = env.post(t, fmt.Sprintf(`{"review":%q}`, overLimit))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Review too long (max 4000 chars)", decodeError(t, w).Error)
}

func TestGenerateMissingCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.handler.CredentialsOK = func() bool { return false }

	w := env.post(t, `{"review":"great work"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "Missing upstream API key", decodeError(t, w).Error)
	require.Zero(t, env.driver.callCount())

	// No quota was consumed
	entries, err := env.store.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestGenerateCaptchaFailureConsumesNoQuota(t *testing.T) {
	env := newTestEnv(t)

	turnstile := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	defer turnstile.Close()

	env.handler.Verifier = captcha.NewVerifier("secret")
	env.handler.Verifier.VerifyURL = turnstile.URL
	env.handler.Verifier.HTTPClient = turnstile.Client()

	w := env.post(t, `{"review":"great work","captchaToken":"bad"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
	body := decodeError(t, w)
	require.Equal(t, "captcha_failed", body.Code)
	require.Equal(t, "CAPTCHA failed. Please try again.", body.Error)
	require.Zero(t, env.driver.callCount())

	entries, err := env.store.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestGenerateMissingCaptchaToken(t *testing.T) {
	env := newTestEnv(t)
	env.handler.Verifier = captcha.NewVerifier("secret")

	w := env.post(t, `{"review":"great work"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
	body := decodeError(t, w)
	require.Equal(t, "captcha_failed", body.Code)
	require.Equal(t, "Missing CAPTCHA token.", body.Error)
}

func TestGenerateHappyPath(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, `{"review":"Great service, arrived on time.","tone":"warm","length":"short","reviewerName":"Sam"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "Thanks so much for the kind words!", resp.Reply)
	require.Equal(t, 19, resp.Remaining)
	require.Equal(t, 1, env.driver.callCount())
}

func TestGeneratePerMinuteLimit(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 6; i++ {
		w := env.post(t, `{"review":"great work"}`)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.post(t, `{"review":"great work"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decodeError(t, w)
	require.Equal(t, "rate_limited", body.Code)
	require.Equal(t, "Too many requests. Slow down.", body.Error)
	require.GreaterOrEqual(t, body.RetryAfterSec, 1)
	require.LessOrEqual(t, body.RetryAfterSec, 60)
	require.Equal(t, fmt.Sprintf("%d", body.RetryAfterSec), w.Header().Get("Retry-After"))
	require.NotNil(t, body.Remaining)
	require.Equal(t, 14, *body.Remaining)

	// Rejected request consumed nothing and the window clears
	env.clock.Advance(time.Minute + time.Second)
	w = env.post(t, `{"review":"great work"}`)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestGenerateDailyCap(t *testing.T) {
	env := newTestEnv(t)

	granted := 0
	for i := 0; i < 21; i++ {
		if i > 0 && i%6 == 0 {
			env.clock.Advance(time.Minute + time.Second)
		}
		w := env.post(t, `{"review":"great work"}`)
		if w.Code == http.StatusOK {
			granted++
			continue
		}

		require.Equal(t, http.StatusTooManyRequests, w.Code)
		body := decodeError(t, w)
		require.Equal(t, "daily_cap", body.Code)
		require.Equal(t, "Daily limit reached.", body.Error)
		require.NotNil(t, body.Remaining)
		require.Equal(t, 0, *body.Remaining)
		require.Empty(t, w.Header().Get("Retry-After"))
	}

	require.Equal(t, 20, granted)

	// Next UTC day restores the budget
	env.clock.Advance(24 * time.Hour)
	w := env.post(t, `{"review":"great work"}`)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestGenerateUpstreamFailureKeepsConsumedSlot(t *testing.T) {
	env := newTestEnv(t)
	env.driver.err = &driver.ProviderError{Provider: "stub", StatusCode: 500, Message: "model overloaded"}

	w := env.post(t, `{"review":"great work"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "model overloaded", decodeError(t, w).Error)

	// The failed request still consumed one unit of quota
	env.driver.err = nil
	w = env.post(t, `{"review":"great work"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 18, resp.Remaining)
}

func TestGenerateEmptyUpstreamReply(t *testing.T) {
	env := newTestEnv(t)
	env.driver.text = "   "

	w := env.post(t, `{"review":"great work"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "No reply returned", decodeError(t, w).Error)
}

func TestGenerateUnknownToneFallsBack(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, `{"review":"great work","tone":"sarcastic","length":"novel"}`)
	require.Equal(t, http.StatusOK, w.Code)
}
