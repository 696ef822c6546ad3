// Package captcha verifies Cloudflare Turnstile tokens. Verification is
// opt-in by configuration presence: a verifier without a secret passes every
// request, which is the deliberate "feature disabled" state rather than an
// error.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/replysmith/replysmith/internal/core"
)

// DefaultVerifyURL is the Turnstile siteverify endpoint.
const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

const defaultTimeout = 10 * time.Second

// ErrMissingToken is returned when verification is enabled and the request
// carried no token. No network call is made in this case.
var ErrMissingToken = errors.New("missing CAPTCHA token")

// VerificationError reports a token the verification service rejected, or a
// service failure. There are no retries; a transient service failure is a
// CAPTCHA failure for that request.
type VerificationError struct {
	Codes []string
	Cause error
}

func (e *VerificationError) Error() string {
	switch {
	case e == nil:
		return "captcha verification failed"
	case e.Cause != nil:
		return fmt.Sprintf("captcha verification failed: %v", e.Cause)
	case len(e.Codes) > 0:
		return fmt.Sprintf("captcha verification failed: %s", strings.Join(e.Codes, ", "))
	default:
		return "captcha verification failed"
	}
}

func (e *VerificationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Verifier checks Turnstile tokens against the siteverify endpoint.
type Verifier struct {
	Secret     string
	VerifyURL  string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewVerifier returns a verifier with defaults applied. An empty secret
// yields a disabled verifier.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		Secret:    strings.TrimSpace(secret),
		VerifyURL: DefaultVerifyURL,
		Timeout:   defaultTimeout,
	}
}

// Enabled reports whether verification is enforced.
func (v *Verifier) Enabled() bool {
	return v != nil && strings.TrimSpace(v.Secret) != ""
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify checks the token for the given client address. A disabled verifier
// passes unconditionally. remoteIP is forwarded to the service as a hint
// except for the shared unknown bucket.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if !v.Enabled() {
		return nil
	}
	if strings.TrimSpace(token) == "" {
		return ErrMissingToken
	}

	form := url.Values{}
	form.Set("secret", v.Secret)
	form.Set("response", token)
	if remoteIP != "" && remoteIP != core.UnknownIP {
		form.Set("remoteip", remoteIP)
	}

	if v.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.Timeout)
		defer cancel()
	}

	endpoint := v.VerifyURL
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultVerifyURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &VerificationError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := v.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return &VerificationError{Cause: err}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &VerificationError{Cause: err}
	}

	var parsed siteverifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &VerificationError{Cause: err}
	}

	if !parsed.Success {
		return &VerificationError{Codes: parsed.ErrorCodes}
	}
	return nil
}
